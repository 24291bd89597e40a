package projauth

import (
	"context"
	"time"
)

// Account providers
const (
	ProviderLocal  = "local"
	ProviderGithub = "github"
)

// Account is the single identity record of a user.
//
// Email is unique as stored (no case folding). GithubID is unique when set. The reset
// token hash and its expiry are always set and cleared together.
type Account struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	GithubID            string     `json:"github_id,omitempty"`
	PasswordHash        string     `json:"password_hash,omitempty"`
	Provider            string     `json:"provider"`
	ResetTokenHash      string     `json:"reset_token_hash,omitempty"`
	ResetTokenExpiresAt *time.Time `json:"reset_token_expires_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// HasPendingReset returns true if a reset token is stored and has not expired at now
func (a *Account) HasPendingReset(now time.Time) bool {
	return a.ResetTokenHash != "" && a.ResetTokenExpiresAt != nil && now.Before(*a.ResetTokenExpiresAt)
}

// AccountView is the public shape of an account returned to clients. It never carries hashes.
type AccountView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Provider  string    `json:"provider"`
	GithubID  string    `json:"githubId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// View returns the public view of the account
func (a *Account) View() AccountView {
	return AccountView{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Provider:  a.Provider,
		GithubID:  a.GithubID,
		CreatedAt: a.CreatedAt,
	}
}

// AccountStore persists accounts. Implementations must enforce uniqueness of Email and of
// a non-empty GithubID and report violations as ErrDuplicateAccount.
type AccountStore interface {
	// CreateAccount inserts a new account. Returns ErrDuplicateAccount if the email or
	// github id is already taken.
	CreateAccount(ctx context.Context, account *Account) error

	// GetAccountByID returns ErrAccountNotFound if no account has the id
	GetAccountByID(ctx context.Context, id string) (*Account, error)

	// GetAccountByEmail returns ErrAccountNotFound if no account has the email
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)

	// GetAccountByGithubID returns ErrAccountNotFound if no account is linked to githubID
	GetAccountByGithubID(ctx context.Context, githubID string) (*Account, error)

	// LinkGithubID attaches githubID to the account only if it has none yet.
	// Returns ErrAlreadyLinked if the account already carries a github id and
	// ErrDuplicateAccount if githubID belongs to another account.
	LinkGithubID(ctx context.Context, accountID, githubID string) (*Account, error)

	// UpdatePasswordHash replaces the password hash of the account
	UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error

	// SetResetToken stores a reset token hash and its expiry, replacing any pending one
	SetResetToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error

	// ConsumeResetToken finds the account whose reset hash equals tokenHash and whose reset
	// expiry is after now, and in one update sets its password hash and clears both reset
	// fields. Returns ErrAccountNotFound when nothing matches.
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, newPasswordHash string) (*Account, error)
}
