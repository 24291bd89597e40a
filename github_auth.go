package projauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ghoauth "github.com/panyam/projauth/oauth2"
	"golang.org/x/oauth2"
)

// DefaultProviderTimeout bounds the code exchange and profile fetch of one callback
const DefaultProviderTimeout = 10 * time.Second

// GithubHandshakeClient talks to GitHub on behalf of the callback handler.
// *ghoauth.GithubClient implements it.
type GithubHandshakeClient interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, token *oauth2.Token) (*ghoauth.GithubProfile, error)
}

// GithubAuth runs the GitHub login/signup round trip
type GithubAuth struct {
	Client   GithubHandshakeClient
	Ledger   *OAuthStateLedger
	Resolver *AccountResolver
	Tokens   *SessionTokenIssuer

	// Prefix for every redirect back to the front end
	FrontendURL string

	ProviderTimeout time.Duration

	Logger *slog.Logger
}

func (g *GithubAuth) EnsureDefaults() *GithubAuth {
	if g.Ledger == nil {
		g.Ledger = NewOAuthStateLedger(nil)
	}
	if g.ProviderTimeout <= 0 {
		g.ProviderTimeout = DefaultProviderTimeout
	}
	if g.Logger == nil {
		g.Logger = slog.Default()
	}
	return g
}

// HandleInitiate issues a state for the requested mode and redirects to GitHub
func (g *GithubAuth) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	intent, err := ParseOAuthIntent(r.URL.Query().Get("mode"))
	if err != nil {
		writeAuthError(w, http.StatusBadRequest, NewAuthError(ErrCodeInvalidMode, "mode must be login, signup or link", "mode"))
		return
	}
	state, err := g.Ledger.Issue(r.Context(), intent)
	if err != nil {
		g.Logger.Error("failed to issue oauth state", "error", err)
		writeAuthError(w, http.StatusInternalServerError, NewAuthError(ErrCodeServer, "Internal server error", ""))
		return
	}
	http.Redirect(w, r, g.Client.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback finishes the round trip. Every outcome is a redirect to the front end.
func (g *GithubAuth) HandleCallback(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, g.callbackRedirect(r), http.StatusFound)
}

func (g *GithubAuth) callbackRedirect(r *http.Request) string {
	ctx := r.Context()
	query := r.URL.Query()

	// The state is consumed before anything else so a replayed callback can never get further
	intent, err := g.Ledger.VerifyAndConsume(ctx, query.Get("state"))
	if err != nil {
		g.Logger.Warn("rejected oauth state", "error", err)
		return LoginErrorRedirect(g.FrontendURL, LoginErrStateExpired)
	}

	if providerErr := query.Get("error"); providerErr != "" {
		g.Logger.Warn("github returned an error", "error", providerErr, "description", query.Get("error_description"))
		return LoginErrorRedirect(g.FrontendURL, LoginErrAccessToken)
	}
	code := query.Get("code")
	if code == "" {
		return LoginErrorRedirect(g.FrontendURL, LoginErrAccessToken)
	}

	profile, err := g.fetchProfile(ctx, code)
	if err != nil {
		g.Logger.Warn("github handshake failed", "error", err)
		return LoginErrorRedirect(g.FrontendURL, LoginErrAccessToken)
	}

	res, err := g.Resolver.Resolve(ctx, ExternalIdentity{
		ProviderID: profile.ID,
		Email:      profile.Email,
		Name:       profile.DisplayName(),
	}, intent)
	if err != nil {
		g.Logger.Error("account resolution failed", "github_id", profile.ID, "error", err)
		return LoginErrorRedirect(g.FrontendURL, LoginErrServer)
	}
	if rerr := res.Err(); rerr != nil {
		g.Logger.Info("github identity not resolved", "github_id", profile.ID, "intent", string(intent), "reason", rerr)
	}

	var token string
	if res.IssuesSession() {
		token, err = g.Tokens.Issue(res.Account.ID, res.Account.Email)
		if err != nil {
			g.Logger.Error("failed to issue session token", "error", err)
			return LoginErrorRedirect(g.FrontendURL, LoginErrServer)
		}
	}
	return CallbackRedirect(g.FrontendURL, res, token)
}

func (g *GithubAuth) fetchProfile(ctx context.Context, code string) (*ghoauth.GithubProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, g.ProviderTimeout)
	defer cancel()

	token, err := g.Client.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	profile, err := g.Client.FetchProfile(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	return profile, nil
}
