package projauth

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Account and credential errors
var (
	ErrAccountNotFound    = errors.New("account not found")         // 404 on login
	ErrInvalidCredentials = errors.New("invalid credentials")       // 400 on login
	ErrDuplicateAccount   = errors.New("account already exists")    // 400 on register, CONFLICT on oauth
	ErrAlreadyLinked      = errors.New("account already linked")    // github id already attached
	ErrMissingEmail       = errors.New("provider withheld email")   // no_email redirect
	ErrProviderError      = errors.New("oauth provider error")      // access_token redirect
	ErrInvalidIntent      = errors.New("invalid oauth intent mode") // 400 on initiate
)

// OAuth state and reset token errors
var (
	ErrStateExpiredOrUnknown = errors.New("oauth state expired or unknown")
	ErrStateNotFound         = errors.New("oauth state not found")
	ErrTokenExpiredOrInvalid = errors.New("invalid or expired token")
)

// Session credential errors. All of them are answered with 401.
var (
	ErrTokenMalformed        = errors.New("session token malformed")
	ErrTokenSignatureInvalid = errors.New("session token signature invalid")
	ErrTokenExpired          = errors.New("session token expired")
)

// Error codes carried in JSON error bodies
const (
	ErrCodeEmailExists     = "email_exists"
	ErrCodeInvalidEmail    = "invalid_email"
	ErrCodeWeakPassword    = "weak_password"
	ErrCodeMissingField    = "missing_field"
	ErrCodeInvalidCreds    = "invalid_credentials"
	ErrCodeAccountNotFound = "account_not_found"
	ErrCodeInvalidToken    = "invalid_token"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeServer          = "server_error"
	ErrCodeParse           = "parse_error"
	ErrCodeInvalidMode     = "invalid_mode"
	ErrCodeGithubLinked    = "github_linked"
)

// Error codes carried on the login page redirect after a failed GitHub callback
const (
	LoginErrStateExpired = "state_expired"
	LoginErrAccessToken  = "access_token"
	LoginErrNotFound     = "not_found"
	LoginErrNoEmail      = "no_email"
	LoginErrServer       = "server"
)

// AuthError is a user-facing error with a machine readable code and the form field it refers to
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func (e *AuthError) Error() string { return e.Message }

func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeAuthError(w http.ResponseWriter, status int, err *AuthError) {
	writeJSON(w, status, err)
}
