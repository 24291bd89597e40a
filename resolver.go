package projauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExternalIdentity is what the provider told us about the user
type ExternalIdentity struct {
	ProviderID string
	Email      string
	Name       string
}

// ResolutionKind tags the outcome of account resolution
type ResolutionKind int

const (
	ResolutionReuse ResolutionKind = iota + 1
	ResolutionCreate
	ResolutionConflict
	ResolutionNotFound
	ResolutionMissingEmail
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionReuse:
		return "reuse"
	case ResolutionCreate:
		return "create"
	case ResolutionConflict:
		return "conflict"
	case ResolutionNotFound:
		return "not_found"
	case ResolutionMissingEmail:
		return "missing_email"
	}
	return "unknown"
}

// Resolution is the outcome of matching an external identity against local accounts.
// Account is set for Reuse and Create. Email is set for Conflict.
type Resolution struct {
	Kind    ResolutionKind
	Account *Account
	Email   string
}

// IssuesSession returns true if the resolution should log the user in
func (r Resolution) IssuesSession() bool {
	return (r.Kind == ResolutionReuse || r.Kind == ResolutionCreate) && r.Account != nil
}

// Err returns the sentinel for resolutions that do not log the user in, or nil
func (r Resolution) Err() error {
	switch r.Kind {
	case ResolutionConflict:
		return ErrDuplicateAccount
	case ResolutionNotFound:
		return ErrAccountNotFound
	case ResolutionMissingEmail:
		return ErrMissingEmail
	}
	return nil
}

// AccountResolver decides which local account an external identity maps to
type AccountResolver struct {
	Store  AccountStore
	Hasher PasswordHasher
	Logger *slog.Logger
	Now    func() time.Time
}

func (r *AccountResolver) EnsureDefaults() *AccountResolver {
	if r.Hasher == nil {
		r.Hasher = &BcryptHasher{}
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	return r
}

// Resolve runs the decision procedure for ident under intent. The checks are ordered:
// existing link first, then email collision, then creation. Only store failures are
// returned as errors; every other outcome is a Resolution.
func (r *AccountResolver) Resolve(ctx context.Context, ident ExternalIdentity, intent OAuthIntent) (Resolution, error) {
	r.EnsureDefaults()
	email := strings.TrimSpace(ident.Email)

	if ident.ProviderID != "" {
		account, err := r.Store.GetAccountByGithubID(ctx, ident.ProviderID)
		if err == nil {
			return Resolution{Kind: ResolutionReuse, Account: account}, nil
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return Resolution{}, fmt.Errorf("lookup by github id: %w", err)
		}
	}

	if email != "" {
		account, err := r.Store.GetAccountByEmail(ctx, email)
		if err == nil {
			return r.resolveEmailMatch(ctx, account, ident, intent)
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return Resolution{}, fmt.Errorf("lookup by email: %w", err)
		}
	}

	if intent != IntentSignup {
		return Resolution{Kind: ResolutionNotFound}, nil
	}
	if email == "" {
		return Resolution{Kind: ResolutionMissingEmail}, nil
	}
	return r.create(ctx, ident, email)
}

func (r *AccountResolver) resolveEmailMatch(ctx context.Context, account *Account, ident ExternalIdentity, intent OAuthIntent) (Resolution, error) {
	if intent == IntentSignup {
		return Resolution{Kind: ResolutionConflict, Email: account.Email}, nil
	}
	if account.GithubID != "" || ident.ProviderID == "" {
		return Resolution{Kind: ResolutionReuse, Account: account}, nil
	}

	// XXX - This attaches the github id to whichever account owns the provider email,
	// without the user proving they control that account. It trusts GitHub's email
	// claim and is an account takeover vector if that claim is ever unverified.
	linked, err := r.Store.LinkGithubID(ctx, account.ID, ident.ProviderID)
	switch {
	case err == nil:
		r.Logger.Info("linked github identity", "account_id", linked.ID, "github_id", ident.ProviderID)
		return Resolution{Kind: ResolutionReuse, Account: linked}, nil
	case errors.Is(err, ErrAlreadyLinked):
		// Lost a race with another link; re-read what won
		current, gerr := r.Store.GetAccountByID(ctx, account.ID)
		if gerr != nil {
			return Resolution{}, fmt.Errorf("reload account: %w", gerr)
		}
		if current.GithubID == ident.ProviderID {
			return Resolution{Kind: ResolutionReuse, Account: current}, nil
		}
		return Resolution{Kind: ResolutionConflict, Email: current.Email}, nil
	case errors.Is(err, ErrDuplicateAccount):
		return Resolution{Kind: ResolutionConflict, Email: account.Email}, nil
	}
	return Resolution{}, fmt.Errorf("link github id: %w", err)
}

func (r *AccountResolver) create(ctx context.Context, ident ExternalIdentity, email string) (Resolution, error) {
	passwordHash, err := NewUnusablePasswordHash(r.Hasher)
	if err != nil {
		return Resolution{}, err
	}
	now := r.Now()
	account := &Account{
		ID:           uuid.NewString(),
		Name:         ident.Name,
		Email:        email,
		GithubID:     ident.ProviderID,
		PasswordHash: passwordHash,
		Provider:     ProviderGithub,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.Store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			return Resolution{Kind: ResolutionConflict, Email: email}, nil
		}
		return Resolution{}, fmt.Errorf("create account: %w", err)
	}
	r.Logger.Info("created account from github", "account_id", account.ID, "github_id", ident.ProviderID)
	return Resolution{Kind: ResolutionCreate, Account: account}, nil
}

// CallbackRedirect maps a resolution to the front end URL the callback redirects to.
// token is only used for resolutions that issue a session.
func CallbackRedirect(frontendURL string, res Resolution, token string) string {
	switch res.Kind {
	case ResolutionReuse, ResolutionCreate:
		return joinFrontendURL(frontendURL, "/github/success?token="+url.QueryEscape(token))
	case ResolutionConflict:
		return joinFrontendURL(frontendURL, "/github/link?email="+url.QueryEscape(res.Email))
	case ResolutionNotFound:
		return LoginErrorRedirect(frontendURL, LoginErrNotFound)
	case ResolutionMissingEmail:
		return LoginErrorRedirect(frontendURL, LoginErrNoEmail)
	}
	return LoginErrorRedirect(frontendURL, LoginErrServer)
}

// LoginErrorRedirect returns the login page URL carrying an error code
func LoginErrorRedirect(frontendURL, code string) string {
	return joinFrontendURL(frontendURL, "/login?error="+url.QueryEscape(code))
}

func joinFrontendURL(frontendURL, path string) string {
	return strings.TrimRight(frontendURL, "/") + path
}
