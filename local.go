package projauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxRequestBodyBytes = 1 << 20

// AuthResponse is returned by register and login
type AuthResponse struct {
	Token string      `json:"token"`
	User  AccountView `json:"user"`
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ForgotPasswordRequest is the body of POST /api/auth/forgot-password
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body of POST /api/auth/reset-password
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ChangePasswordRequest is the body of POST /api/auth/change-password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// SuccessResponse is the body of endpoints that only acknowledge
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ForgotPasswordMessage is returned whether or not the email belongs to an account
const ForgotPasswordMessage = "If that email exists, a reset link has been sent"

// Allows local email/password based authentication
type LocalAuth struct {
	Store  AccountStore
	Hasher PasswordHasher
	Tokens *SessionTokenIssuer

	// Handles forgot-password and reset-password
	Reset *PasswordResetFlow

	MinPasswordLength int

	Logger *slog.Logger
	Now    func() time.Time
}

func (a *LocalAuth) EnsureDefaults() *LocalAuth {
	if a.Hasher == nil {
		a.Hasher = &BcryptHasher{}
	}
	if a.MinPasswordLength <= 0 {
		a.MinPasswordLength = DefaultMinPasswordLength
	}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	if a.Now == nil {
		a.Now = time.Now
	}
	return a
}

// HandleRegister creates a local account and logs it in
func (a *LocalAuth) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !a.decode(w, r, &req) {
		return
	}
	if authErr := req.Validate(a.MinPasswordLength); authErr != nil {
		writeAuthError(w, http.StatusBadRequest, authErr)
		return
	}

	ctx := r.Context()
	if _, err := a.Store.GetAccountByEmail(ctx, req.Email); err == nil {
		writeAuthError(w, http.StatusBadRequest, NewAuthError(ErrCodeEmailExists, "Email already registered", "email"))
		return
	} else if !errors.Is(err, ErrAccountNotFound) {
		a.serverError(w, "register lookup failed", err)
		return
	}

	passwordHash, err := a.Hasher.Hash(req.Password)
	if err != nil {
		a.serverError(w, "failed to hash password", err)
		return
	}
	now := a.Now()
	account := &Account{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		GithubID:     strings.TrimSpace(req.GithubID),
		PasswordHash: passwordHash,
		Provider:     ProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.Store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			writeAuthError(w, http.StatusBadRequest, a.duplicateAccountError(ctx, account))
			return
		}
		a.serverError(w, "failed to create account", err)
		return
	}
	a.Logger.Info("registered account", "account_id", account.ID)
	a.respondWithSession(w, http.StatusCreated, account)
}

// duplicateAccountError names the field whose unique value was taken. The email was free
// before the insert, so it is only blamed when no other account holds the github id.
func (a *LocalAuth) duplicateAccountError(ctx context.Context, account *Account) *AuthError {
	if account.GithubID != "" {
		if owner, err := a.Store.GetAccountByGithubID(ctx, account.GithubID); err == nil && owner.ID != account.ID {
			return NewAuthError(ErrCodeGithubLinked, "GitHub account already linked", "githubId")
		}
	}
	return NewAuthError(ErrCodeEmailExists, "Email already registered", "email")
}

// HandleLogin checks email and password. An unknown email answers 404 and a wrong password
// 400, both with the same message.
func (a *LocalAuth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeAuthError(w, http.StatusBadRequest, NewAuthError(ErrCodeMissingField, "Email and password are required", ""))
		return
	}

	account, err := a.Store.GetAccountByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			writeAuthError(w, http.StatusNotFound, NewAuthError(ErrCodeInvalidCreds, "Invalid credentials", ""))
			return
		}
		a.serverError(w, "login lookup failed", err)
		return
	}
	if !a.Hasher.Verify(account.PasswordHash, req.Password) {
		writeAuthError(w, http.StatusBadRequest, NewAuthError(ErrCodeInvalidCreds, "Invalid credentials", ""))
		return
	}
	a.respondWithSession(w, http.StatusOK, account)
}

// HandleForgotPassword always answers the same way
func (a *LocalAuth) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		a.Reset.RequestReset(r.Context(), req.Email)
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: ForgotPasswordMessage})
}

// HandleResetPassword consumes a reset token and sets the new password
func (a *LocalAuth) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Token == "" || req.Password == "" {
		writeAuthError(w, http.StatusBadRequest, NewAuthError(ErrCodeMissingField, "Token and password required", ""))
		return
	}

	_, err := a.Reset.ConsumeReset(r.Context(), req.Token, req.Password)
	var authErr *AuthError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Password reset successfully"})
	case errors.Is(err, ErrTokenExpiredOrInvalid):
		writeAuthError(w, http.StatusBadRequest, NewAuthError(ErrCodeInvalidToken, "Invalid or expired token", "token"))
	case errors.As(err, &authErr):
		writeAuthError(w, http.StatusBadRequest, authErr)
	default:
		a.serverError(w, "password reset failed", err)
	}
}

// HandleChangePassword replaces the password of the logged in account. Must be mounted
// behind Middleware.EnsureAccount.
func (a *LocalAuth) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	account, ok := a.currentAccount(w, r)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if !a.decode(w, r, &req) {
		return
	}
	if !a.Hasher.Verify(account.PasswordHash, req.CurrentPassword) {
		writeAuthError(w, http.StatusBadRequest, NewAuthError(ErrCodeInvalidCreds, "Current password is incorrect", "currentPassword"))
		return
	}
	if len(req.NewPassword) < a.MinPasswordLength {
		writeAuthError(w, http.StatusBadRequest, NewAuthError(ErrCodeWeakPassword, fmt.Sprintf("Password must be at least %d characters", a.MinPasswordLength), "newPassword"))
		return
	}
	passwordHash, err := a.Hasher.Hash(req.NewPassword)
	if err != nil {
		a.serverError(w, "failed to hash password", err)
		return
	}
	if err := a.Store.UpdatePasswordHash(r.Context(), account.ID, passwordHash); err != nil {
		a.serverError(w, "failed to update password", err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Password changed successfully"})
}

// HandleMe returns the logged in account. Must be mounted behind Middleware.EnsureAccount.
func (a *LocalAuth) HandleMe(w http.ResponseWriter, r *http.Request) {
	account, ok := a.currentAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": account.View()})
}

func (a *LocalAuth) currentAccount(w http.ResponseWriter, r *http.Request) (*Account, bool) {
	accountID := GetAccountIDFromContext(r.Context())
	if accountID == "" {
		writeAuthError(w, http.StatusUnauthorized, NewAuthError(ErrCodeUnauthorized, "Not authenticated", ""))
		return nil, false
	}
	account, err := a.Store.GetAccountByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Signed credential for an account that no longer exists
			writeAuthError(w, http.StatusUnauthorized, NewAuthError(ErrCodeUnauthorized, "Not authenticated", ""))
			return nil, false
		}
		a.serverError(w, "account lookup failed", err)
		return nil, false
	}
	return account, true
}

func (a *LocalAuth) respondWithSession(w http.ResponseWriter, status int, account *Account) {
	token, err := a.Tokens.Issue(account.ID, account.Email)
	if err != nil {
		a.serverError(w, "failed to issue session token", err)
		return
	}
	writeJSON(w, status, AuthResponse{Token: token, User: account.View()})
}

func (a *LocalAuth) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeAuthError(w, http.StatusBadRequest, NewAuthError(ErrCodeParse, "Invalid request body", ""))
		return false
	}
	return true
}

func (a *LocalAuth) serverError(w http.ResponseWriter, msg string, err error) {
	a.Logger.Error(msg, "error", err)
	writeAuthError(w, http.StatusInternalServerError, NewAuthError(ErrCodeServer, "Internal server error", ""))
}
