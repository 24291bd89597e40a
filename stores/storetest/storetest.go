// Package storetest holds the behaviour every projauth.AccountStore must share.
// Backend packages call RunAccountStoreTests from their own tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pa "github.com/panyam/projauth"
)

// NewAccount returns an unsaved local account with a fresh id
func NewAccount(email string) *pa.Account {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &pa.Account{
		ID:           uuid.NewString(),
		Name:         "Test User",
		Email:        email,
		PasswordHash: "hash-" + email,
		Provider:     pa.ProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// uniqueEmail keeps runs against a shared database independent
func uniqueEmail(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8] + "@example.com"
}

func uniqueGithubID() string {
	return "gh-" + uuid.NewString()[:12]
}

// RunAccountStoreTests runs the conformance suite. newStore is called once per subtest.
func RunAccountStoreTests(t *testing.T, newStore func(t *testing.T) pa.AccountStore) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		store := newStore(t)
		account := NewAccount(uniqueEmail("create"))
		require.NoError(t, store.CreateAccount(ctx, account))

		byID, err := store.GetAccountByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, account.Email, byID.Email)
		assert.Equal(t, account.PasswordHash, byID.PasswordHash)
		assert.Equal(t, pa.ProviderLocal, byID.Provider)

		byEmail, err := store.GetAccountByEmail(ctx, account.Email)
		require.NoError(t, err)
		assert.Equal(t, account.ID, byEmail.ID)
	})

	t.Run("NotFound", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetAccountByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, pa.ErrAccountNotFound)
		_, err = store.GetAccountByEmail(ctx, uniqueEmail("nobody"))
		assert.ErrorIs(t, err, pa.ErrAccountNotFound)
		_, err = store.GetAccountByGithubID(ctx, uniqueGithubID())
		assert.ErrorIs(t, err, pa.ErrAccountNotFound)
	})

	t.Run("EmailIsCaseSensitive", func(t *testing.T) {
		store := newStore(t)
		email := uniqueEmail("case")
		require.NoError(t, store.CreateAccount(ctx, NewAccount(email)))
		_, err := store.GetAccountByEmail(ctx, "UPPER"+email)
		assert.ErrorIs(t, err, pa.ErrAccountNotFound)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		store := newStore(t)
		email := uniqueEmail("dup")
		require.NoError(t, store.CreateAccount(ctx, NewAccount(email)))
		err := store.CreateAccount(ctx, NewAccount(email))
		assert.ErrorIs(t, err, pa.ErrDuplicateAccount)
	})

	t.Run("DuplicateGithubID", func(t *testing.T) {
		store := newStore(t)
		githubID := uniqueGithubID()
		first := NewAccount(uniqueEmail("gh1"))
		first.GithubID = githubID
		require.NoError(t, store.CreateAccount(ctx, first))

		second := NewAccount(uniqueEmail("gh2"))
		second.GithubID = githubID
		assert.ErrorIs(t, store.CreateAccount(ctx, second), pa.ErrDuplicateAccount)

		found, err := store.GetAccountByGithubID(ctx, githubID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, found.ID)
	})

	t.Run("ConcurrentCreateSameEmail", func(t *testing.T) {
		store := newStore(t)
		email := uniqueEmail("race")
		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = store.CreateAccount(ctx, NewAccount(email))
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, pa.ErrDuplicateAccount)
			}
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("LinkGithubID", func(t *testing.T) {
		store := newStore(t)
		account := NewAccount(uniqueEmail("link"))
		require.NoError(t, store.CreateAccount(ctx, account))

		githubID := uniqueGithubID()
		linked, err := store.LinkGithubID(ctx, account.ID, githubID)
		require.NoError(t, err)
		assert.Equal(t, githubID, linked.GithubID)

		found, err := store.GetAccountByGithubID(ctx, githubID)
		require.NoError(t, err)
		assert.Equal(t, account.ID, found.ID)

		_, err = store.LinkGithubID(ctx, account.ID, uniqueGithubID())
		assert.ErrorIs(t, err, pa.ErrAlreadyLinked)
	})

	t.Run("LinkGithubIDTakenElsewhere", func(t *testing.T) {
		store := newStore(t)
		githubID := uniqueGithubID()
		owner := NewAccount(uniqueEmail("owner"))
		owner.GithubID = githubID
		require.NoError(t, store.CreateAccount(ctx, owner))

		other := NewAccount(uniqueEmail("other"))
		require.NoError(t, store.CreateAccount(ctx, other))

		_, err := store.LinkGithubID(ctx, other.ID, githubID)
		assert.ErrorIs(t, err, pa.ErrDuplicateAccount)

		reloaded, err := store.GetAccountByID(ctx, other.ID)
		require.NoError(t, err)
		assert.Empty(t, reloaded.GithubID)
	})

	t.Run("LinkUnknownAccount", func(t *testing.T) {
		store := newStore(t)
		_, err := store.LinkGithubID(ctx, uuid.NewString(), uniqueGithubID())
		assert.ErrorIs(t, err, pa.ErrAccountNotFound)
	})

	t.Run("UpdatePasswordHash", func(t *testing.T) {
		store := newStore(t)
		account := NewAccount(uniqueEmail("pw"))
		require.NoError(t, store.CreateAccount(ctx, account))
		require.NoError(t, store.UpdatePasswordHash(ctx, account.ID, "new-hash"))

		reloaded, err := store.GetAccountByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", reloaded.PasswordHash)

		assert.ErrorIs(t, store.UpdatePasswordHash(ctx, uuid.NewString(), "x"), pa.ErrAccountNotFound)
	})

	t.Run("ConsumeResetTokenOnce", func(t *testing.T) {
		store := newStore(t)
		account := NewAccount(uniqueEmail("reset"))
		require.NoError(t, store.CreateAccount(ctx, account))

		now := time.Now()
		tokenHash := pa.HashResetToken(uuid.NewString())
		require.NoError(t, store.SetResetToken(ctx, account.ID, tokenHash, now.Add(time.Hour)))

		consumed, err := store.ConsumeResetToken(ctx, tokenHash, now, "reset-hash")
		require.NoError(t, err)
		assert.Equal(t, account.ID, consumed.ID)
		assert.Equal(t, "reset-hash", consumed.PasswordHash)
		assert.Empty(t, consumed.ResetTokenHash)
		assert.Nil(t, consumed.ResetTokenExpiresAt)

		reloaded, err := store.GetAccountByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "reset-hash", reloaded.PasswordHash)
		assert.Empty(t, reloaded.ResetTokenHash)
		assert.Nil(t, reloaded.ResetTokenExpiresAt)

		_, err = store.ConsumeResetToken(ctx, tokenHash, now, "again")
		assert.ErrorIs(t, err, pa.ErrAccountNotFound)
	})

	t.Run("ConsumeExpiredResetToken", func(t *testing.T) {
		store := newStore(t)
		account := NewAccount(uniqueEmail("expired"))
		require.NoError(t, store.CreateAccount(ctx, account))

		now := time.Now()
		tokenHash := pa.HashResetToken(uuid.NewString())
		require.NoError(t, store.SetResetToken(ctx, account.ID, tokenHash, now.Add(-time.Minute)))

		_, err := store.ConsumeResetToken(ctx, tokenHash, now, "nope")
		assert.ErrorIs(t, err, pa.ErrAccountNotFound)

		reloaded, err := store.GetAccountByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, account.PasswordHash, reloaded.PasswordHash)
	})

	t.Run("NewResetTokenSupersedesOld", func(t *testing.T) {
		store := newStore(t)
		account := NewAccount(uniqueEmail("supersede"))
		require.NoError(t, store.CreateAccount(ctx, account))

		now := time.Now()
		oldHash := pa.HashResetToken(uuid.NewString())
		newHash := pa.HashResetToken(uuid.NewString())
		require.NoError(t, store.SetResetToken(ctx, account.ID, oldHash, now.Add(time.Hour)))
		require.NoError(t, store.SetResetToken(ctx, account.ID, newHash, now.Add(time.Hour)))

		_, err := store.ConsumeResetToken(ctx, oldHash, now, "old")
		assert.ErrorIs(t, err, pa.ErrAccountNotFound)

		_, err = store.ConsumeResetToken(ctx, newHash, now, "new")
		assert.NoError(t, err)
	})

	t.Run("ConcurrentConsumeSucceedsOnce", func(t *testing.T) {
		store := newStore(t)
		account := NewAccount(uniqueEmail("consume-race"))
		require.NoError(t, store.CreateAccount(ctx, account))

		now := time.Now()
		tokenHash := pa.HashResetToken(uuid.NewString())
		require.NoError(t, store.SetResetToken(ctx, account.ID, tokenHash, now.Add(time.Hour)))

		const n = 8
		var wg sync.WaitGroup
		results := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.ConsumeResetToken(ctx, tokenHash, now, "raced")
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		succeeded := 0
		for err := range results {
			if err == nil {
				succeeded++
			}
		}
		assert.Equal(t, 1, succeeded)
	})
}
