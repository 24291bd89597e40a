//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pa "github.com/panyam/projauth"
)

// AutoMigrate runs database migrations for the accounts table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&AccountModel{})
}

// AccountStore implements pa.AccountStore using GORM
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *pa.Account) error {
	model := AccountToModel(account)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateError(err)
	}
	account.CreatedAt = model.CreatedAt
	account.UpdatedAt = model.UpdatedAt
	return nil
}

func (s *AccountStore) GetAccountByID(ctx context.Context, id string) (*pa.Account, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*pa.Account, error) {
	return s.first(ctx, "email = ?", email)
}

func (s *AccountStore) GetAccountByGithubID(ctx context.Context, githubID string) (*pa.Account, error) {
	if githubID == "" {
		return nil, pa.ErrAccountNotFound
	}
	return s.first(ctx, "github_id = ?", githubID)
}

func (s *AccountStore) LinkGithubID(ctx context.Context, accountID, githubID string) (*pa.Account, error) {
	var linked *pa.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model AccountModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", accountID).Error; err != nil {
			return translateError(err)
		}
		if model.GithubID != nil {
			return pa.ErrAlreadyLinked
		}

		// Conditional so a concurrent link cannot be overwritten
		result := tx.Model(&AccountModel{}).
			Where("id = ? AND github_id IS NULL", accountID).
			Updates(map[string]any{"github_id": githubID, "updated_at": time.Now()})
		if result.Error != nil {
			return translateError(result.Error)
		}
		if result.RowsAffected == 0 {
			return pa.ErrAlreadyLinked
		}
		model.GithubID = &githubID
		linked = model.ToAccount()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return linked, nil
}

func (s *AccountStore) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error {
	result := s.db.WithContext(ctx).Model(&AccountModel{}).
		Where("id = ?", accountID).
		Updates(map[string]any{"password_hash": passwordHash, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pa.ErrAccountNotFound
	}
	return nil
}

func (s *AccountStore) SetResetToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	result := s.db.WithContext(ctx).Model(&AccountModel{}).
		Where("id = ?", accountID).
		Updates(map[string]any{
			"reset_token_hash":       tokenHash,
			"reset_token_expires_at": expiresAt,
			"updated_at":             time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pa.ErrAccountNotFound
	}
	return nil
}

func (s *AccountStore) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, newPasswordHash string) (*pa.Account, error) {
	if tokenHash == "" {
		return nil, pa.ErrAccountNotFound
	}
	var consumed *pa.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model AccountModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "reset_token_hash = ? AND reset_token_expires_at > ?", tokenHash, now).Error
		if err != nil {
			return translateError(err)
		}

		// The WHERE repeats the match so only one of two racing consumers updates a row
		result := tx.Model(&AccountModel{}).
			Where("id = ? AND reset_token_hash = ?", model.ID, tokenHash).
			Updates(map[string]any{
				"password_hash":          newPasswordHash,
				"reset_token_hash":       nil,
				"reset_token_expires_at": nil,
				"updated_at":             time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return pa.ErrAccountNotFound
		}
		model.PasswordHash = newPasswordHash
		model.ResetTokenHash = nil
		model.ResetTokenExpiresAt = nil
		consumed = model.ToAccount()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return consumed, nil
}

func (s *AccountStore) first(ctx context.Context, query string, args ...any) (*pa.Account, error) {
	var model AccountModel
	if err := s.db.WithContext(ctx).First(&model, append([]any{query}, args...)...).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToAccount(), nil
}

// translateError maps driver errors onto projauth sentinels. Dialects only report
// gorm.ErrDuplicatedKey when the DB was opened with TranslateError, so the message is
// checked as well.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pa.ErrAccountNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return pa.ErrDuplicateAccount
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint") {
		return pa.ErrDuplicateAccount
	}
	return err
}
