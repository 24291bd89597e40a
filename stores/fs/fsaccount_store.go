package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pa "github.com/panyam/projauth"
)

// FSAccountStore stores accounts as JSON files with one index file per unique field.
// A single mutex serializes writers, so it is only safe within one process.
//
// Layout under StoragePath:
//
//	accounts/<id>.json
//	index/emails/<sha256(email)>    -> account id
//	index/github/<sha256(githubId)> -> account id
//	index/resets/<reset hash>       -> account id
type FSAccountStore struct {
	StoragePath string

	// Clock for UpdatedAt, defaults to time.Now
	Now func() time.Time

	mu sync.Mutex
}

func NewFSAccountStore(storagePath string) *FSAccountStore {
	return &FSAccountStore{StoragePath: storagePath, Now: time.Now}
}

func (s *FSAccountStore) accountPath(id string) string {
	return filepath.Join(s.StoragePath, "accounts", safeName(id)+".json")
}

func (s *FSAccountStore) emailIndexPath(email string) string {
	return filepath.Join(s.StoragePath, "index", "emails", hashKey(email))
}

func (s *FSAccountStore) githubIndexPath(githubID string) string {
	return filepath.Join(s.StoragePath, "index", "github", hashKey(githubID))
}

func (s *FSAccountStore) resetIndexPath(tokenHash string) string {
	return filepath.Join(s.StoragePath, "index", "resets", safeName(tokenHash))
}

func (s *FSAccountStore) CreateAccount(ctx context.Context, account *pa.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account.ID == "" || account.Email == "" {
		return fmt.Errorf("account id and email are required")
	}
	if exists(s.accountPath(account.ID)) || exists(s.emailIndexPath(account.Email)) {
		return pa.ErrDuplicateAccount
	}
	if account.GithubID != "" && exists(s.githubIndexPath(account.GithubID)) {
		return pa.ErrDuplicateAccount
	}

	now := s.now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	if err := s.saveLocked(account); err != nil {
		return err
	}
	if err := s.writeIndex(s.emailIndexPath(account.Email), account.ID); err != nil {
		return err
	}
	if account.GithubID != "" {
		return s.writeIndex(s.githubIndexPath(account.GithubID), account.ID)
	}
	return nil
}

func (s *FSAccountStore) GetAccountByID(ctx context.Context, id string) (*pa.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(id)
}

func (s *FSAccountStore) GetAccountByEmail(ctx context.Context, email string) (*pa.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, err := s.loadIndexedLocked(s.emailIndexPath(email))
	if err != nil {
		return nil, err
	}
	// Guard against a stale index entry
	if account.Email != email {
		return nil, pa.ErrAccountNotFound
	}
	return account, nil
}

func (s *FSAccountStore) GetAccountByGithubID(ctx context.Context, githubID string) (*pa.Account, error) {
	if githubID == "" {
		return nil, pa.ErrAccountNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	account, err := s.loadIndexedLocked(s.githubIndexPath(githubID))
	if err != nil {
		return nil, err
	}
	if account.GithubID != githubID {
		return nil, pa.ErrAccountNotFound
	}
	return account, nil
}

func (s *FSAccountStore) LinkGithubID(ctx context.Context, accountID, githubID string) (*pa.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.loadLocked(accountID)
	if err != nil {
		return nil, err
	}
	if account.GithubID != "" {
		return nil, pa.ErrAlreadyLinked
	}
	if exists(s.githubIndexPath(githubID)) {
		return nil, pa.ErrDuplicateAccount
	}
	account.GithubID = githubID
	account.UpdatedAt = s.now()
	if err := s.saveLocked(account); err != nil {
		return nil, err
	}
	if err := s.writeIndex(s.githubIndexPath(githubID), account.ID); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *FSAccountStore) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.loadLocked(accountID)
	if err != nil {
		return err
	}
	account.PasswordHash = passwordHash
	account.UpdatedAt = s.now()
	return s.saveLocked(account)
}

func (s *FSAccountStore) SetResetToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.loadLocked(accountID)
	if err != nil {
		return err
	}
	previous := account.ResetTokenHash
	account.ResetTokenHash = tokenHash
	account.ResetTokenExpiresAt = &expiresAt
	account.UpdatedAt = s.now()
	if err := s.saveLocked(account); err != nil {
		return err
	}
	if previous != "" && previous != tokenHash {
		os.Remove(s.resetIndexPath(previous))
	}
	return s.writeIndex(s.resetIndexPath(tokenHash), account.ID)
}

func (s *FSAccountStore) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, newPasswordHash string) (*pa.Account, error) {
	if tokenHash == "" {
		return nil, pa.ErrAccountNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	indexPath := s.resetIndexPath(tokenHash)
	account, err := s.loadIndexedLocked(indexPath)
	if err != nil {
		return nil, err
	}
	if account.ResetTokenHash != tokenHash || !account.HasPendingReset(now) {
		return nil, pa.ErrAccountNotFound
	}

	// Password and reset fields change in the same file write
	account.PasswordHash = newPasswordHash
	account.ResetTokenHash = ""
	account.ResetTokenExpiresAt = nil
	account.UpdatedAt = s.now()
	if err := s.saveLocked(account); err != nil {
		return nil, err
	}
	os.Remove(indexPath)
	return account, nil
}

func (s *FSAccountStore) loadIndexedLocked(indexPath string) (*pa.Account, error) {
	data, err := os.ReadFile(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pa.ErrAccountNotFound
		}
		return nil, err
	}
	return s.loadLocked(strings.TrimSpace(string(data)))
}

func (s *FSAccountStore) loadLocked(id string) (*pa.Account, error) {
	if id == "" {
		return nil, pa.ErrAccountNotFound
	}
	data, err := os.ReadFile(s.accountPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pa.ErrAccountNotFound
		}
		return nil, err
	}
	var account pa.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", id, err)
	}
	return &account, nil
}

func (s *FSAccountStore) saveLocked(account *pa.Account) error {
	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(s.accountPath(account.ID), data)
}

func (s *FSAccountStore) writeIndex(path, accountID string) error {
	return writeAtomicFile(path, []byte(accountID))
}

func (s *FSAccountStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func hashKey(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// safeName keeps values usable as a single path element
func safeName(value string) string {
	if value == "" || strings.ContainsAny(value, `/\`) || value == "." || value == ".." {
		return hashKey(value)
	}
	return value
}
