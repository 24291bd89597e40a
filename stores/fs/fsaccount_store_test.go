package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pa "github.com/panyam/projauth"
	"github.com/panyam/projauth/stores/storetest"
)

func TestFSAccountStore(t *testing.T) {
	storetest.RunAccountStoreTests(t, func(t *testing.T) pa.AccountStore {
		return NewFSAccountStore(t.TempDir())
	})
}

func TestFSAccountStore_StaleResetIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFSAccountStore(dir)

	account := storetest.NewAccount("stale@example.com")
	require.NoError(t, store.CreateAccount(ctx, account))

	now := time.Now()
	require.NoError(t, store.SetResetToken(ctx, account.ID, "first", now.Add(time.Hour)))
	require.NoError(t, store.SetResetToken(ctx, account.ID, "second", now.Add(time.Hour)))

	// The superseded index entry is gone
	_, err := os.Stat(filepath.Join(dir, "index", "resets", "first"))
	assert.True(t, os.IsNotExist(err))

	// A leftover index entry pointing at an account whose hash moved on never matches
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index", "resets", "first"), []byte(account.ID), 0644))
	_, err = store.ConsumeResetToken(ctx, "first", now, "x")
	assert.ErrorIs(t, err, pa.ErrAccountNotFound)
}

func TestFSAccountStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	account := storetest.NewAccount("persist@example.com")
	account.GithubID = "4242"
	require.NoError(t, NewFSAccountStore(dir).CreateAccount(ctx, account))

	reopened := NewFSAccountStore(dir)
	found, err := reopened.GetAccountByGithubID(ctx, "4242")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)
	assert.Equal(t, "persist@example.com", found.Email)
}
