package projauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultMinPasswordLength is the shortest password accepted on register, reset and change
const DefaultMinPasswordLength = 8

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// PasswordHasher is a slow, salted one-way function for passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// BcryptHasher hashes passwords with bcrypt
type BcryptHasher struct {
	// Cost defaults to bcrypt.DefaultCost
	Cost int
}

func (b *BcryptHasher) Hash(password string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (b *BcryptHasher) Verify(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateSecureToken generates a cryptographically secure random token (32 bytes, hex encoded)
func GenerateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashResetToken returns the value stored at rest for a reset token.
// Reset tokens are high entropy and single use, so a fast unsalted hash suffices.
func HashResetToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// NewUnusablePasswordHash hashes a random secret nobody knows. Accounts created through
// GitHub carry one so they can never be logged into with a password.
func NewUnusablePasswordHash(hasher PasswordHasher) (string, error) {
	secret, err := GenerateSecureToken()
	if err != nil {
		return "", err
	}
	// bcrypt only reads the first 72 bytes
	return hasher.Hash(secret[:48])
}

// ValidateEmail checks the basic shape of an email address
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// RegisterRequest is the body of POST /api/auth/register
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	GithubID string `json:"githubId,omitempty"`
}

// Validate checks a registration request and returns the first problem found
func (r *RegisterRequest) Validate(minPasswordLength int) *AuthError {
	if minPasswordLength <= 0 {
		minPasswordLength = DefaultMinPasswordLength
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	if r.Email == "" {
		return NewAuthError(ErrCodeMissingField, "Email is required", "email")
	}
	if !ValidateEmail(r.Email) {
		return NewAuthError(ErrCodeInvalidEmail, "Invalid email format", "email")
	}
	if r.Password == "" {
		return NewAuthError(ErrCodeMissingField, "Password is required", "password")
	}
	if len(r.Password) < minPasswordLength {
		return NewAuthError(ErrCodeWeakPassword, fmt.Sprintf("Password must be at least %d characters", minPasswordLength), "password")
	}
	return nil
}
