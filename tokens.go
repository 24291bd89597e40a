package projauth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token expiry durations
const (
	TokenExpirySession       = 7 * 24 * time.Hour // 7 days
	TokenExpiryPasswordReset = 1 * time.Hour      // 1 hour
	TokenExpiryOAuthState    = 5 * time.Minute    // 5 minutes
)

// SessionClaims is the payload of a session credential
type SessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AccountID returns the subject of the credential
func (c *SessionClaims) AccountID() string {
	return c.Subject
}

// SessionTokenIssuer creates and validates signed, expiring session credentials.
// It holds no state beyond its key, so a single instance is shared across requests.
type SessionTokenIssuer struct {
	// Secret key for HS256 signing. Falls back to PROJAUTH_JWT_SECRET.
	SecretKey string

	// Issuer claim, defaults to "projauth"
	Issuer string

	// Lifetime of a credential, defaults to TokenExpirySession
	Expiry time.Duration

	// Clock, defaults to time.Now
	Now func() time.Time
}

func NewSessionTokenIssuer(secretKey string) *SessionTokenIssuer {
	return (&SessionTokenIssuer{SecretKey: secretKey}).EnsureDefaults()
}

func (s *SessionTokenIssuer) EnsureDefaults() *SessionTokenIssuer {
	if s.SecretKey == "" {
		s.SecretKey = strings.TrimSpace(os.Getenv("PROJAUTH_JWT_SECRET"))
	}
	if s.Issuer == "" {
		s.Issuer = "projauth"
	}
	if s.Expiry <= 0 {
		s.Expiry = TokenExpirySession
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// Issue returns a signed credential for the account
func (s *SessionTokenIssuer) Issue(accountID, email string) (string, error) {
	if s.SecretKey == "" {
		return "", fmt.Errorf("session token secret not configured")
	}
	now := s.Now()
	claims := SessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    s.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.Expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Verify checks the signature and then the expiry of a credential and returns its claims.
// Errors are ErrTokenMalformed, ErrTokenSignatureInvalid or ErrTokenExpired.
func (s *SessionTokenIssuer) Verify(tokenString string) (*SessionClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrTokenMalformed
	}
	// Without a key every token signed with an empty key would verify
	if s.SecretKey == "" {
		return nil, ErrTokenSignatureInvalid
	}
	// A single clock sample is used for every time based check below
	now := s.Now()

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			return []byte(s.SecretKey), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.Issuer),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrTokenSignatureInvalid
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
