//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/datastore"

	pa "github.com/panyam/projauth"
)

// Kind constants for Datastore entities
const (
	KindAccount      = "Account"
	KindAccountEmail = "AccountEmail"
	KindGithubLink   = "AccountGithub"
	KindResetToken   = "AccountResetToken"
)

// AccountStore implements pa.AccountStore using Google Cloud Datastore.
// Every write runs in a transaction together with the index entities it touches.
type AccountStore struct {
	client    *datastore.Client
	namespace string
}

// NewAccountStore creates a new Datastore-backed AccountStore
func NewAccountStore(client *datastore.Client, namespace string) *AccountStore {
	return &AccountStore{
		client:    client,
		namespace: namespace,
	}
}

func (s *AccountStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *pa.Account) error {
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		accountKey := s.namespacedKey(KindAccount, account.ID)
		reserved := []*datastore.Key{
			accountKey,
			s.namespacedKey(KindAccountEmail, account.Email),
		}
		if account.GithubID != "" {
			reserved = append(reserved, s.namespacedKey(KindGithubLink, account.GithubID))
		}
		for _, key := range reserved {
			taken, err := s.exists(tx, key)
			if err != nil {
				return err
			}
			if taken {
				return pa.ErrDuplicateAccount
			}
		}

		entity := AccountToEntity(account, accountKey)
		entity.Version = 1
		if _, err := tx.Put(accountKey, entity); err != nil {
			return err
		}
		for _, key := range reserved[1:] {
			if _, err := tx.Put(key, &IndexEntity{AccountID: account.ID, CreatedAt: now}); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

func (s *AccountStore) GetAccountByID(ctx context.Context, id string) (*pa.Account, error) {
	var entity AccountEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindAccount, id), &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, pa.ErrAccountNotFound
		}
		return nil, err
	}
	return entity.ToAccount(), nil
}

func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*pa.Account, error) {
	return s.getIndexed(ctx, s.namespacedKey(KindAccountEmail, email))
}

func (s *AccountStore) GetAccountByGithubID(ctx context.Context, githubID string) (*pa.Account, error) {
	if githubID == "" {
		return nil, pa.ErrAccountNotFound
	}
	return s.getIndexed(ctx, s.namespacedKey(KindGithubLink, githubID))
}

func (s *AccountStore) LinkGithubID(ctx context.Context, accountID, githubID string) (*pa.Account, error) {
	var linked *pa.Account
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		accountKey := s.namespacedKey(KindAccount, accountID)
		var entity AccountEntity
		if err := s.getAccount(tx, accountKey, &entity); err != nil {
			return err
		}
		if entity.GithubID != "" {
			return pa.ErrAlreadyLinked
		}
		linkKey := s.namespacedKey(KindGithubLink, githubID)
		taken, err := s.exists(tx, linkKey)
		if err != nil {
			return err
		}
		if taken {
			return pa.ErrDuplicateAccount
		}

		now := time.Now().UTC()
		entity.GithubID = githubID
		entity.UpdatedAt = now
		entity.Version++
		if _, err := tx.Put(accountKey, &entity); err != nil {
			return err
		}
		if _, err := tx.Put(linkKey, &IndexEntity{AccountID: accountID, CreatedAt: now}); err != nil {
			return err
		}
		entity.Key = accountKey
		linked = entity.ToAccount()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return linked, nil
}

func (s *AccountStore) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error {
	return s.updateAccount(ctx, accountID, func(tx *datastore.Transaction, entity *AccountEntity) error {
		entity.PasswordHash = passwordHash
		return nil
	})
}

func (s *AccountStore) SetResetToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	return s.updateAccount(ctx, accountID, func(tx *datastore.Transaction, entity *AccountEntity) error {
		if entity.ResetTokenHash != "" && entity.ResetTokenHash != tokenHash {
			if err := tx.Delete(s.namespacedKey(KindResetToken, entity.ResetTokenHash)); err != nil {
				return err
			}
		}
		entity.ResetTokenHash = tokenHash
		entity.ResetTokenExpiresAt = expiresAt
		_, err := tx.Put(s.namespacedKey(KindResetToken, tokenHash), &IndexEntity{AccountID: accountID, CreatedAt: time.Now().UTC()})
		return err
	})
}

func (s *AccountStore) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, newPasswordHash string) (*pa.Account, error) {
	if tokenHash == "" {
		return nil, pa.ErrAccountNotFound
	}
	var consumed *pa.Account
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		resetKey := s.namespacedKey(KindResetToken, tokenHash)
		var index IndexEntity
		if err := tx.Get(resetKey, &index); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return pa.ErrAccountNotFound
			}
			return err
		}

		accountKey := s.namespacedKey(KindAccount, index.AccountID)
		var entity AccountEntity
		if err := s.getAccount(tx, accountKey, &entity); err != nil {
			return err
		}
		entity.Key = accountKey
		if entity.ResetTokenHash != tokenHash || !entity.ToAccount().HasPendingReset(now) {
			return pa.ErrAccountNotFound
		}

		entity.PasswordHash = newPasswordHash
		entity.ResetTokenHash = ""
		entity.ResetTokenExpiresAt = time.Time{}
		entity.UpdatedAt = time.Now().UTC()
		entity.Version++
		if _, err := tx.Put(accountKey, &entity); err != nil {
			return err
		}
		if err := tx.Delete(resetKey); err != nil {
			return err
		}
		consumed = entity.ToAccount()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return consumed, nil
}

func (s *AccountStore) updateAccount(ctx context.Context, accountID string, mutate func(tx *datastore.Transaction, entity *AccountEntity) error) error {
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		key := s.namespacedKey(KindAccount, accountID)
		var entity AccountEntity
		if err := s.getAccount(tx, key, &entity); err != nil {
			return err
		}
		if err := mutate(tx, &entity); err != nil {
			return err
		}
		entity.UpdatedAt = time.Now().UTC()
		entity.Version++
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

func (s *AccountStore) getIndexed(ctx context.Context, indexKey *datastore.Key) (*pa.Account, error) {
	var index IndexEntity
	if err := s.client.Get(ctx, indexKey, &index); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, pa.ErrAccountNotFound
		}
		return nil, err
	}
	return s.GetAccountByID(ctx, index.AccountID)
}

func (s *AccountStore) getAccount(tx *datastore.Transaction, key *datastore.Key, entity *AccountEntity) error {
	if err := tx.Get(key, entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return pa.ErrAccountNotFound
		}
		return err
	}
	return nil
}

func (s *AccountStore) exists(tx *datastore.Transaction, key *datastore.Key) (bool, error) {
	var props datastore.PropertyList
	err := tx.Get(key, &props)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return false, nil
	}
	return false, err
}
