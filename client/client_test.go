package client

import (
	"net/http"
	"testing"
	"time"

	"github.com/panyam/projauth"
)

func TestServerCredential_IsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{
			name:      "expired",
			expiresAt: time.Now().Add(-1 * time.Hour),
			want:      true,
		},
		{
			name:      "not expired",
			expiresAt: time.Now().Add(1 * time.Hour),
			want:      false,
		},
		{
			name:      "just expired",
			expiresAt: time.Now().Add(-1 * time.Second),
			want:      true,
		},
		{
			name: "no expiry known",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &ServerCredential{ExpiresAt: tt.expiresAt}
			if got := c.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewServerCredential_ReadsClaims(t *testing.T) {
	issuer := projauth.NewSessionTokenIssuer("client-test-secret")
	issuer.Expiry = 2 * time.Hour
	token, err := issuer.Issue("acct-1", "alice@example.com")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	cred := NewServerCredential(token, "", "alice@example.com")
	if cred.UserID != "acct-1" {
		t.Errorf("UserID = %q, want subject from token", cred.UserID)
	}
	if cred.IsExpired() {
		t.Error("fresh credential should not be expired")
	}
	if d := time.Until(cred.ExpiresAt); d < 110*time.Minute || d > 2*time.Hour {
		t.Errorf("ExpiresAt %v is not about two hours out", cred.ExpiresAt)
	}
}

func TestNewServerCredential_GarbageToken(t *testing.T) {
	cred := NewServerCredential("not-a-jwt", "acct-1", "")
	if !cred.IsExpired() {
		t.Error("credential without a readable expiry must count as expired")
	}
	if cred.UserID != "acct-1" {
		t.Errorf("UserID = %q", cred.UserID)
	}
}

func TestMemoryCredentialStore(t *testing.T) {
	store := NewMemoryCredentialStore()

	cred, err := store.GetCredential("https://a.example.com")
	if err != nil || cred != nil {
		t.Fatalf("GetCredential() on empty store = %v, %v", cred, err)
	}

	want := &ServerCredential{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	store.SetCredential("https://a.example.com", want)
	got, _ := store.GetCredential("https://a.example.com")
	if got != want {
		t.Errorf("GetCredential() = %v, want %v", got, want)
	}

	other, _ := store.GetCredential("https://b.example.com")
	if other != nil {
		t.Error("credentials must be kept per server")
	}

	store.RemoveCredential("https://a.example.com")
	got, _ = store.GetCredential("https://a.example.com")
	if got != nil {
		t.Error("credential should be gone after RemoveCredential")
	}
	if err := store.Save(); err != nil {
		t.Errorf("Save() error = %v", err)
	}
}

func TestNewAuthClient_NormalizesURL(t *testing.T) {
	c := NewAuthClient("https://auth.example.com/some/path?x=1", nil)
	if c.ServerURL() != "https://auth.example.com" {
		t.Errorf("ServerURL() = %q", c.ServerURL())
	}
	want := "https://auth.example.com/api/auth/github/initiate?mode=signup"
	if got := c.GithubInitiateURL(projauth.IntentSignup); got != want {
		t.Errorf("GithubInitiateURL() = %q, want %q", got, want)
	}
}

func TestAuthTransport_SetsHeader(t *testing.T) {
	var seen string
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		seen = r.Header.Get("Authorization")
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	})
	tr := &AuthTransport{Base: base, Token: "abc"}
	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	if _, err := tr.RoundTrip(req); err != nil {
		t.Fatal(err)
	}
	if seen != "Bearer abc" {
		t.Errorf("Authorization = %q", seen)
	}
	if req.Header.Get("Authorization") != "" {
		t.Error("original request must not be mutated")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
