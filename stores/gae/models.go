//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
	pa "github.com/panyam/projauth"
)

// AccountEntity is the Datastore entity for accounts, keyed by account id
type AccountEntity struct {
	Key                 *datastore.Key `datastore:"__key__"`
	Name                string         `datastore:"name,noindex"`
	Email               string         `datastore:"email"`
	GithubID            string         `datastore:"github_id"`
	PasswordHash        string         `datastore:"password_hash,noindex"`
	Provider            string         `datastore:"provider"`
	ResetTokenHash      string         `datastore:"reset_token_hash,noindex"`
	ResetTokenExpiresAt time.Time      `datastore:"reset_token_expires_at,noindex"`
	CreatedAt           time.Time      `datastore:"created_at"`
	UpdatedAt           time.Time      `datastore:"updated_at"`
	Version             int            `datastore:"version"`
}

func (e *AccountEntity) ToAccount() *pa.Account {
	a := &pa.Account{
		ID:             e.Key.Name,
		Name:           e.Name,
		Email:          e.Email,
		GithubID:       e.GithubID,
		PasswordHash:   e.PasswordHash,
		Provider:       e.Provider,
		ResetTokenHash: e.ResetTokenHash,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
	if e.ResetTokenHash != "" && !e.ResetTokenExpiresAt.IsZero() {
		expiresAt := e.ResetTokenExpiresAt
		a.ResetTokenExpiresAt = &expiresAt
	}
	return a
}

func AccountToEntity(a *pa.Account, key *datastore.Key) *AccountEntity {
	e := &AccountEntity{
		Key:            key,
		Name:           a.Name,
		Email:          a.Email,
		GithubID:       a.GithubID,
		PasswordHash:   a.PasswordHash,
		Provider:       a.Provider,
		ResetTokenHash: a.ResetTokenHash,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
	if a.ResetTokenExpiresAt != nil {
		e.ResetTokenExpiresAt = *a.ResetTokenExpiresAt
	}
	return e
}

// IndexEntity reserves a unique value (email, github id or reset hash) for one account.
// The value is the key name, so a transactional Get is the uniqueness check.
type IndexEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	AccountID string         `datastore:"account_id"`
	CreatedAt time.Time      `datastore:"created_at,noindex"`
}
