//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	pa "github.com/panyam/projauth"
)

// AccountModel is the GORM model for accounts.
// GithubID and ResetTokenHash are nullable so the unique index ignores accounts without them.
type AccountModel struct {
	ID                  string  `gorm:"primaryKey;size:64"`
	Name                string  `gorm:"size:255"`
	Email               string  `gorm:"size:320;not null;uniqueIndex:idx_accounts_email"`
	GithubID            *string `gorm:"size:64;uniqueIndex:idx_accounts_github_id"`
	PasswordHash        string  `gorm:"size:255"`
	Provider            string  `gorm:"size:32;not null;default:local"`
	ResetTokenHash      *string `gorm:"size:64;index:idx_accounts_reset_token_hash"`
	ResetTokenExpiresAt *time.Time
	CreatedAt           time.Time `gorm:"autoCreateTime"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToAccount() *pa.Account {
	return &pa.Account{
		ID:                  m.ID,
		Name:                m.Name,
		Email:               m.Email,
		GithubID:            deref(m.GithubID),
		PasswordHash:        m.PasswordHash,
		Provider:            m.Provider,
		ResetTokenHash:      deref(m.ResetTokenHash),
		ResetTokenExpiresAt: m.ResetTokenExpiresAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func AccountToModel(a *pa.Account) *AccountModel {
	return &AccountModel{
		ID:                  a.ID,
		Name:                a.Name,
		Email:               a.Email,
		GithubID:            nullable(a.GithubID),
		PasswordHash:        a.PasswordHash,
		Provider:            a.Provider,
		ResetTokenHash:      nullable(a.ResetTokenHash),
		ResetTokenExpiresAt: a.ResetTokenExpiresAt,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
