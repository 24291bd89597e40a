// Package pg implements projauth.AccountStore directly on PostgreSQL with pgx.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	pa "github.com/panyam/projauth"
	"github.com/panyam/projauth/stores/pg/migrations"
)

const uniqueViolation = "23505"

const accountColumns = `id, name, email, github_id, password_hash, provider,
	reset_token_hash, reset_token_expires_at, created_at, updated_at`

// NewPool builds a connection pool for dsn
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second
	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// Migrate applies the embedded goose migrations
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// AccountStore implements pa.AccountStore using pgxpool
type AccountStore struct {
	pool *pgxpool.Pool
}

func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *pa.Account) error {
	const query = `
		INSERT INTO accounts (id, name, email, github_id, password_hash, provider,
			reset_token_hash, reset_token_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = now
	}
	_, err := s.pool.Exec(ctx, query,
		account.ID,
		account.Name,
		account.Email,
		nullable(account.GithubID),
		account.PasswordHash,
		account.Provider,
		nullable(account.ResetTokenHash),
		account.ResetTokenExpiresAt,
		account.CreatedAt,
		account.UpdatedAt,
	)
	return translateError(err)
}

func (s *AccountStore) GetAccountByID(ctx context.Context, id string) (*pa.Account, error) {
	return s.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*pa.Account, error) {
	return s.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

func (s *AccountStore) GetAccountByGithubID(ctx context.Context, githubID string) (*pa.Account, error) {
	if githubID == "" {
		return nil, pa.ErrAccountNotFound
	}
	return s.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE github_id = $1`, githubID)
}

func (s *AccountStore) LinkGithubID(ctx context.Context, accountID, githubID string) (*pa.Account, error) {
	const query = `
		UPDATE accounts SET github_id = $2, updated_at = now()
		WHERE id = $1 AND github_id IS NULL
		RETURNING ` + accountColumns
	account, err := s.queryOne(ctx, query, accountID, githubID)
	if !errors.Is(err, pa.ErrAccountNotFound) {
		return account, err
	}
	// No row updated: either the account is missing or it already has a link
	if _, gerr := s.GetAccountByID(ctx, accountID); gerr != nil {
		return nil, gerr
	}
	return nil, pa.ErrAlreadyLinked
}

func (s *AccountStore) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`,
		accountID, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pa.ErrAccountNotFound
	}
	return nil
}

func (s *AccountStore) SetResetToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = now() WHERE id = $1`,
		accountID, tokenHash, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pa.ErrAccountNotFound
	}
	return nil
}

// ConsumeResetToken matches, sets the password and clears the token in one statement
func (s *AccountStore) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, newPasswordHash string) (*pa.Account, error) {
	if tokenHash == "" {
		return nil, pa.ErrAccountNotFound
	}
	const query = `
		UPDATE accounts
		SET password_hash = $3, reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = now()
		WHERE reset_token_hash = $1 AND reset_token_expires_at > $2
		RETURNING ` + accountColumns
	return s.queryOne(ctx, query, tokenHash, now, newPasswordHash)
}

func (s *AccountStore) queryOne(ctx context.Context, query string, args ...any) (*pa.Account, error) {
	var (
		a              pa.Account
		githubID       *string
		resetTokenHash *string
	)
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&a.ID,
		&a.Name,
		&a.Email,
		&githubID,
		&a.PasswordHash,
		&a.Provider,
		&resetTokenHash,
		&a.ResetTokenExpiresAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	if githubID != nil {
		a.GithubID = *githubID
	}
	if resetTokenHash != nil {
		a.ResetTokenHash = *resetTokenHash
	}
	return &a, nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return pa.ErrAccountNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pa.ErrDuplicateAccount
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
