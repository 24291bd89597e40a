package projauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// PasswordResetFlow issues single use reset tokens and consumes them.
// Only the SHA-256 of a token is stored; the raw token only ever leaves in the email link.
type PasswordResetFlow struct {
	Store       AccountStore
	Hasher      PasswordHasher
	EmailSender SendEmail

	// Base URL for generating reset links, e.g. https://app.example.com
	BaseURL string

	// Lifetime of a reset token, defaults to TokenExpiryPasswordReset
	Expiry time.Duration

	MinPasswordLength int

	Logger *slog.Logger
	Now    func() time.Time
}

func (p *PasswordResetFlow) EnsureDefaults() *PasswordResetFlow {
	if p.Hasher == nil {
		p.Hasher = &BcryptHasher{}
	}
	if p.EmailSender == nil {
		p.EmailSender = &ConsoleEmailSender{Logger: p.Logger}
	}
	if p.Expiry <= 0 {
		p.Expiry = TokenExpiryPasswordReset
	}
	if p.MinPasswordLength <= 0 {
		p.MinPasswordLength = DefaultMinPasswordLength
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return p
}

// ResetLink returns the link carrying the raw token
func (p *PasswordResetFlow) ResetLink(token string) string {
	return strings.TrimRight(p.BaseURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

// RequestReset starts a reset for email. It never reports whether the email belongs to an
// account; every failure is logged and swallowed.
func (p *PasswordResetFlow) RequestReset(ctx context.Context, email string) {
	p.EnsureDefaults()
	email = strings.TrimSpace(email)
	if email == "" {
		return
	}

	account, err := p.Store.GetAccountByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			p.Logger.ErrorContext(ctx, "password reset lookup failed", "error", err)
		}
		return
	}

	token, err := GenerateSecureToken()
	if err != nil {
		p.Logger.ErrorContext(ctx, "failed to generate reset token", "error", err)
		return
	}
	expiresAt := p.Now().Add(p.Expiry)
	if err := p.Store.SetResetToken(ctx, account.ID, HashResetToken(token), expiresAt); err != nil {
		p.Logger.ErrorContext(ctx, "failed to store reset token", "account_id", account.ID, "error", err)
		return
	}

	if err := p.EmailSender.SendPasswordResetEmail(ctx, account.Email, p.ResetLink(token)); err != nil {
		p.Logger.ErrorContext(ctx, "failed to send password reset email", "account_id", account.ID, "error", err)
	}
}

// ConsumeReset sets newPassword on the account holding token and invalidates the token.
// A wrong, used or expired token all fail with ErrTokenExpiredOrInvalid.
func (p *PasswordResetFlow) ConsumeReset(ctx context.Context, token, newPassword string) (*Account, error) {
	p.EnsureDefaults()
	if token == "" {
		return nil, ErrTokenExpiredOrInvalid
	}
	// Checked before the token: consuming it sets the password, so a rejected password
	// must leave the token usable. A short password is refused for any token.
	if len(newPassword) < p.MinPasswordLength {
		return nil, NewAuthError(ErrCodeWeakPassword, fmt.Sprintf("Password must be at least %d characters", p.MinPasswordLength), "password")
	}

	passwordHash, err := p.Hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}
	account, err := p.Store.ConsumeResetToken(ctx, HashResetToken(token), p.Now(), passwordHash)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrTokenExpiredOrInvalid
		}
		return nil, fmt.Errorf("consume reset token: %w", err)
	}
	p.Logger.InfoContext(ctx, "password reset", "account_id", account.ID)
	return account, nil
}
