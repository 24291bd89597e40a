//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of projauth.AccountStore.
// It is designed for deployment on Google Cloud Platform and supports multi-tenancy
// through Datastore namespaces.
//
// # Datastore Kinds
//
//   - Account: the account itself, keyed by account id
//   - AccountEmail: keyed by email, reserves the address for one account
//   - AccountGithub: keyed by GitHub user id, reserves the link for one account
//   - AccountResetToken: keyed by reset token hash, points at the account holding it
//
// Datastore has no unique constraints, so the index kinds are written in the same
// transaction as the account and a transactional Get on them is the uniqueness check.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	accounts := gae.NewAccountStore(client, "")  // default namespace
package gae
