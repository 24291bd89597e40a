package projauth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pa "github.com/panyam/projauth"
)

func doJSON(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON body %q: %v", rr.Body.String(), err)
	}
	return out
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, status, rr.Body.String())
	}
	if got := decodeBody[pa.AuthError](t, rr); got.Code != code {
		t.Errorf("code = %q, want %q", got.Code, code)
	}
}

func TestLocalAuth_AliceJourney(t *testing.T) {
	env := newTestEnv(t)
	h := env.handler

	rr := doJSON(t, h, http.MethodPost, "/api/auth/register", pa.RegisterRequest{
		Name: "Alice", Email: "alice@example.com", Password: "pw12345678",
	}, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rr.Code, rr.Body.String())
	}
	registered := decodeBody[pa.AuthResponse](t, rr)
	if registered.Token == "" || registered.User.Email != "alice@example.com" || registered.User.Provider != pa.ProviderLocal {
		t.Errorf("register response = %+v", registered)
	}
	if strings.Contains(rr.Body.String(), "password") {
		t.Error("response must not expose password material")
	}

	rr = doJSON(t, h, http.MethodPost, "/api/auth/login", pa.LoginRequest{Email: "alice@example.com", Password: "wrong-password"}, "")
	expectError(t, rr, http.StatusBadRequest, pa.ErrCodeInvalidCreds)

	rr = doJSON(t, h, http.MethodPost, "/api/auth/login", pa.LoginRequest{Email: "alice@example.com", Password: "pw12345678"}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rr.Code, rr.Body.String())
	}
	login := decodeBody[pa.AuthResponse](t, rr)

	claims, err := env.auth.Tokens.Verify(login.Token)
	if err != nil {
		t.Fatalf("login token does not verify: %v", err)
	}
	if claims.Email != "alice@example.com" || claims.AccountID() != registered.User.ID {
		t.Errorf("claims = %+v", claims)
	}
}

func TestLocalAuth_LoginUnknownEmailSameMessage(t *testing.T) {
	env := newTestEnv(t)
	createAccount(t, env.store, "alice@example.com", "pw12345678")

	unknown := doJSON(t, env.handler, http.MethodPost, "/api/auth/login", pa.LoginRequest{Email: "bob@example.com", Password: "pw12345678"}, "")
	expectError(t, unknown, http.StatusNotFound, pa.ErrCodeInvalidCreds)
	wrong := doJSON(t, env.handler, http.MethodPost, "/api/auth/login", pa.LoginRequest{Email: "alice@example.com", Password: "nope-nope"}, "")
	expectError(t, wrong, http.StatusBadRequest, pa.ErrCodeInvalidCreds)

	if decodeBody[pa.AuthError](t, unknown).Message != decodeBody[pa.AuthError](t, wrong).Message {
		t.Error("unknown email and wrong password must share a message")
	}
}

func TestLocalAuth_RegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	createAccount(t, env.store, "alice@example.com", "pw12345678")

	tests := []struct {
		name string
		body any
		code string
	}{
		{"duplicate", pa.RegisterRequest{Email: "alice@example.com", Password: "pw12345678"}, pa.ErrCodeEmailExists},
		{"missing email", pa.RegisterRequest{Password: "pw12345678"}, pa.ErrCodeMissingField},
		{"bad email", pa.RegisterRequest{Email: "not-an-email", Password: "pw12345678"}, pa.ErrCodeInvalidEmail},
		{"missing password", pa.RegisterRequest{Email: "bob@example.com"}, pa.ErrCodeMissingField},
		{"short password", pa.RegisterRequest{Email: "bob@example.com", Password: "short"}, pa.ErrCodeWeakPassword},
		{"bad json", "{not json", pa.ErrCodeParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, env.handler, http.MethodPost, "/api/auth/register", tt.body, "")
			expectError(t, rr, http.StatusBadRequest, tt.code)
		})
	}
}

func TestLocalAuth_RegisterGithubIDTaken(t *testing.T) {
	env := newTestEnv(t)
	alice := createAccount(t, env.store, "alice@example.com", "pw12345678")
	if _, err := env.store.LinkGithubID(context.Background(), alice.ID, "42"); err != nil {
		t.Fatal(err)
	}

	rr := doJSON(t, env.handler, http.MethodPost, "/api/auth/register",
		pa.RegisterRequest{Email: "bob@example.com", Password: "pw12345678", GithubID: "42"}, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body %s)", rr.Code, rr.Body.String())
	}
	got := decodeBody[pa.AuthError](t, rr)
	if got.Code != pa.ErrCodeGithubLinked || got.Field != "githubId" {
		t.Errorf("error = %+v, want github_linked on githubId", got)
	}
	if _, err := env.store.GetAccountByEmail(context.Background(), "bob@example.com"); err == nil {
		t.Error("bob must not be created")
	}
}

func TestLocalAuth_ForgotPasswordIdenticalResponses(t *testing.T) {
	env := newTestEnv(t)
	createAccount(t, env.store, "alice@example.com", "pw12345678")

	known := doJSON(t, env.handler, http.MethodPost, "/api/auth/forgot-password", pa.ForgotPasswordRequest{Email: "alice@example.com"}, "")
	unknown := doJSON(t, env.handler, http.MethodPost, "/api/auth/forgot-password", pa.ForgotPasswordRequest{Email: "nobody@example.com"}, "")
	garbage := doJSON(t, env.handler, http.MethodPost, "/api/auth/forgot-password", "{", "")

	for _, rr := range []*httptest.ResponseRecorder{known, unknown, garbage} {
		if rr.Code != http.StatusOK {
			t.Errorf("status = %d", rr.Code)
		}
		if rr.Body.String() != known.Body.String() {
			t.Errorf("body %q differs from %q", rr.Body.String(), known.Body.String())
		}
	}
	if got := decodeBody[pa.SuccessResponse](t, known); got.Message != pa.ForgotPasswordMessage {
		t.Errorf("message = %q", got.Message)
	}
	if env.sender.count() != 1 {
		t.Errorf("%d emails sent, want 1", env.sender.count())
	}
}

func TestLocalAuth_ResetPasswordEndpoint(t *testing.T) {
	env := newTestEnv(t)
	createAccount(t, env.store, "alice@example.com", "pw12345678")
	doJSON(t, env.handler, http.MethodPost, "/api/auth/forgot-password", pa.ForgotPasswordRequest{Email: "alice@example.com"}, "")
	token := env.sender.tokenFor(t, "alice@example.com")

	rr := doJSON(t, env.handler, http.MethodPost, "/api/auth/reset-password", pa.ResetPasswordRequest{Token: token}, "")
	expectError(t, rr, http.StatusBadRequest, pa.ErrCodeMissingField)

	rr = doJSON(t, env.handler, http.MethodPost, "/api/auth/reset-password", pa.ResetPasswordRequest{Token: token, Password: "short"}, "")
	expectError(t, rr, http.StatusBadRequest, pa.ErrCodeWeakPassword)

	rr = doJSON(t, env.handler, http.MethodPost, "/api/auth/reset-password", pa.ResetPasswordRequest{Token: token, Password: "brand-new-pw"}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reset status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, env.handler, http.MethodPost, "/api/auth/reset-password", pa.ResetPasswordRequest{Token: token, Password: "another-new-pw"}, "")
	expectError(t, rr, http.StatusBadRequest, pa.ErrCodeInvalidToken)

	rr = doJSON(t, env.handler, http.MethodPost, "/api/auth/login", pa.LoginRequest{Email: "alice@example.com", Password: "brand-new-pw"}, "")
	if rr.Code != http.StatusOK {
		t.Errorf("login with reset password status = %d", rr.Code)
	}
}

func TestLocalAuth_MeAndChangePassword(t *testing.T) {
	env := newTestEnv(t)
	h := env.handler
	rr := doJSON(t, h, http.MethodPost, "/api/auth/register", pa.RegisterRequest{
		Name: "Alice", Email: "alice@example.com", Password: "pw12345678",
	}, "")
	token := decodeBody[pa.AuthResponse](t, rr).Token

	expectError(t, doJSON(t, h, http.MethodGet, "/api/auth/me", nil, ""), http.StatusUnauthorized, pa.ErrCodeUnauthorized)
	expectError(t, doJSON(t, h, http.MethodGet, "/api/auth/me", nil, "garbage"), http.StatusUnauthorized, pa.ErrCodeUnauthorized)

	rr = doJSON(t, h, http.MethodGet, "/api/auth/me", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("me status = %d", rr.Code)
	}
	me := decodeBody[struct {
		User pa.AccountView `json:"user"`
	}](t, rr)
	if me.User.Email != "alice@example.com" || me.User.Name != "Alice" {
		t.Errorf("me = %+v", me.User)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/auth/change-password", pa.ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "another-pw-1"}, token)
	expectError(t, rr, http.StatusBadRequest, pa.ErrCodeInvalidCreds)

	rr = doJSON(t, h, http.MethodPost, "/api/auth/change-password", pa.ChangePasswordRequest{CurrentPassword: "pw12345678", NewPassword: "short"}, token)
	expectError(t, rr, http.StatusBadRequest, pa.ErrCodeWeakPassword)

	rr = doJSON(t, h, http.MethodPost, "/api/auth/change-password", pa.ChangePasswordRequest{CurrentPassword: "pw12345678", NewPassword: "another-pw-1"}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("change password status = %d: %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, h, http.MethodPost, "/api/auth/login", pa.LoginRequest{Email: "alice@example.com", Password: "another-pw-1"}, "")
	if rr.Code != http.StatusOK {
		t.Errorf("login with changed password status = %d", rr.Code)
	}
}

func TestLocalAuth_MeForDeletedAccount(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.auth.Tokens.Issue("no-such-account", "ghost@example.com")
	expectError(t, doJSON(t, env.handler, http.MethodGet, "/api/auth/me", nil, token), http.StatusUnauthorized, pa.ErrCodeUnauthorized)
}
