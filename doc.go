// Package projauth provides token based identity and GitHub account linking for Go web
// applications.
//
// A user has exactly one Account. An account is created either by registering with an
// email and password or by signing up through GitHub, and a GitHub identity can later be
// attached to an account that was registered locally.
//
// # Components
//
// SessionTokenIssuer issues and verifies signed, expiring session credentials (HS256 JWTs).
// Verification checks the signature before the expiry so a forged credential is never
// reported as merely expired.
//
// OAuthStateLedger issues the random state carried through the GitHub round trip and
// verifies each state at most once. The default MemoryStateStore serves a single instance;
// stores/redis shares the ledger between instances.
//
// AccountResolver maps a GitHub identity to a local account. Its outcome is a Resolution
// tagged Reuse, Create, Conflict, NotFound or MissingEmail, and CallbackRedirect turns a
// Resolution into the front end URL the callback redirects to.
//
// PasswordResetFlow issues single use password reset tokens. Only the SHA-256 of a token
// is stored and consuming a token clears it in the same store operation.
//
// # Basic Usage
//
//	import (
//	    "github.com/panyam/projauth"
//	    "github.com/panyam/projauth/oauth2"
//	    "github.com/panyam/projauth/stores/fs"
//	)
//
//	auth := &projauth.ProjAuth{
//	    Store:        fs.NewFSAccountStore("/var/lib/projauth"),
//	    GithubClient: oauth2.NewGithubClient(clientID, clientSecret, callbackURL),
//	    JWTSecretKey: os.Getenv("PROJAUTH_JWT_SECRET"),
//	    FrontendURL:  "https://app.example.com",
//	}
//	http.ListenAndServe(":8080", auth.Handler())
//
// Handler serves:
//
//	POST /api/auth/register
//	POST /api/auth/login
//	POST /api/auth/forgot-password
//	POST /api/auth/reset-password
//	GET  /api/auth/me                  (session required)
//	POST /api/auth/change-password     (session required)
//	GET  /api/auth/github/initiate?mode=login|signup|link
//	GET  /api/auth/github/callback
//
// Other routes can be protected with ProjAuth.Middleware.EnsureAccount and read the
// caller with GetAccountIDFromContext.
//
// # Stores
//
// AccountStore implementations live under stores/: fs (JSON files), gorm, pg (pgx with
// goose migrations) and gae (Cloud Datastore). stores/storetest holds the behaviour every
// implementation must pass.
package projauth
