package projauth

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// ProjAuth wires the auth endpoints together and serves them under /api/auth
type ProjAuth struct {
	router *mux.Router

	// Must be passed in
	Store AccountStore

	// Optional. The github routes are only mounted when set.
	GithubClient GithubHandshakeClient

	// Shared state ledger, defaults to an in-memory one
	StateStore OAuthStateStore

	Hasher      PasswordHasher
	EmailSender SendEmail

	// JWT related fields
	JWTSecretKey string
	JWTIssuer    string
	SessionTTL   time.Duration

	StateTTL        time.Duration
	ResetTokenTTL   time.Duration
	ProviderTimeout time.Duration

	// Where the front end lives. Used for callback redirects and reset links.
	FrontendURL string

	// Cookie that may carry the session credential in place of the Authorization header
	AuthTokenCookieName string

	Logger *slog.Logger

	Tokens     *SessionTokenIssuer
	Local      *LocalAuth
	Github     *GithubAuth
	Middleware *Middleware
}

func (a *ProjAuth) EnsureDefaults() *ProjAuth {
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	if a.Hasher == nil {
		a.Hasher = &BcryptHasher{}
	}
	if a.FrontendURL == "" {
		a.FrontendURL = strings.TrimSpace(os.Getenv("PROJAUTH_FRONTEND_URL"))
	}
	if a.Tokens == nil {
		a.Tokens = (&SessionTokenIssuer{
			SecretKey: a.JWTSecretKey,
			Issuer:    a.JWTIssuer,
			Expiry:    a.SessionTTL,
		}).EnsureDefaults()
	}
	if a.Middleware == nil {
		a.Middleware = &Middleware{
			Tokens:              a.Tokens,
			AuthTokenCookieName: a.AuthTokenCookieName,
			Logger:              a.Logger,
		}
	}
	a.Middleware.EnsureReasonableDefaults()

	if a.Local == nil {
		a.Local = (&LocalAuth{
			Store:  a.Store,
			Hasher: a.Hasher,
			Tokens: a.Tokens,
			Reset: (&PasswordResetFlow{
				Store:       a.Store,
				Hasher:      a.Hasher,
				EmailSender: a.EmailSender,
				BaseURL:     a.FrontendURL,
				Expiry:      a.ResetTokenTTL,
				Logger:      a.Logger,
			}).EnsureDefaults(),
			Logger: a.Logger,
		}).EnsureDefaults()
	}

	if a.Github == nil && a.GithubClient != nil {
		a.Github = (&GithubAuth{
			Client: a.GithubClient,
			Ledger: (&OAuthStateLedger{
				Store:  a.StateStore,
				Expiry: a.StateTTL,
			}).EnsureDefaults(),
			Resolver: (&AccountResolver{
				Store:  a.Store,
				Hasher: a.Hasher,
				Logger: a.Logger,
			}).EnsureDefaults(),
			Tokens:          a.Tokens,
			FrontendURL:     a.FrontendURL,
			ProviderTimeout: a.ProviderTimeout,
			Logger:          a.Logger,
		}).EnsureDefaults()
	}
	return a
}

// Handler returns the router serving every auth endpoint
func (a *ProjAuth) Handler() http.Handler {
	return a.setupRoutes().router
}

func (a *ProjAuth) setupRoutes() *ProjAuth {
	if a.router != nil {
		return a
	}
	a.EnsureDefaults()
	a.router = mux.NewRouter()
	api := a.router.PathPrefix("/api/auth").Subrouter()

	api.HandleFunc("/register", a.Local.HandleRegister).Methods(http.MethodPost)
	api.HandleFunc("/login", a.Local.HandleLogin).Methods(http.MethodPost)
	api.HandleFunc("/forgot-password", a.Local.HandleForgotPassword).Methods(http.MethodPost)
	api.HandleFunc("/reset-password", a.Local.HandleResetPassword).Methods(http.MethodPost)

	api.Handle("/me", a.Middleware.EnsureAccount(http.HandlerFunc(a.Local.HandleMe))).Methods(http.MethodGet)
	api.Handle("/change-password", a.Middleware.EnsureAccount(http.HandlerFunc(a.Local.HandleChangePassword))).Methods(http.MethodPost)

	if a.Github != nil {
		api.HandleFunc("/github/initiate", a.Github.HandleInitiate).Methods(http.MethodGet)
		api.HandleFunc("/github/callback", a.Github.HandleCallback).Methods(http.MethodGet)
	} else {
		a.Logger.Warn("github client not configured, github routes disabled")
	}
	return a
}
