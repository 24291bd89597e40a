package projauth_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	pa "github.com/panyam/projauth"
	ghoauth "github.com/panyam/projauth/oauth2"
	"github.com/panyam/projauth/stores/fs"
)

const testSecret = "projauth-test-secret"

// fastHasher keeps bcrypt at its minimum cost so tests stay quick
var fastHasher = &pa.BcryptHasher{Cost: 4}

// recordingStore wraps an AccountStore and counts writes
type recordingStore struct {
	pa.AccountStore

	mu     sync.Mutex
	writes []string
}

func newRecordingStore(t *testing.T) *recordingStore {
	return &recordingStore{AccountStore: fs.NewFSAccountStore(t.TempDir())}
}

func (r *recordingStore) record(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, op)
}

func (r *recordingStore) Writes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes...)
}

func (r *recordingStore) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = nil
}

func (r *recordingStore) CreateAccount(ctx context.Context, account *pa.Account) error {
	r.record("create")
	return r.AccountStore.CreateAccount(ctx, account)
}

func (r *recordingStore) LinkGithubID(ctx context.Context, accountID, githubID string) (*pa.Account, error) {
	r.record("link")
	return r.AccountStore.LinkGithubID(ctx, accountID, githubID)
}

func (r *recordingStore) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error {
	r.record("update_password")
	return r.AccountStore.UpdatePasswordHash(ctx, accountID, passwordHash)
}

func (r *recordingStore) SetResetToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	r.record("set_reset")
	return r.AccountStore.SetResetToken(ctx, accountID, tokenHash, expiresAt)
}

func (r *recordingStore) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, newHash string) (*pa.Account, error) {
	r.record("consume_reset")
	return r.AccountStore.ConsumeResetToken(ctx, tokenHash, now, newHash)
}

// createRaceStore behaves as if another request created the same account first
type createRaceStore struct {
	*recordingStore
}

func (c *createRaceStore) CreateAccount(ctx context.Context, account *pa.Account) error {
	c.record("create")
	return pa.ErrDuplicateAccount
}

// fakeGithub answers the handshake with a fixed profile
type fakeGithub struct {
	mu          sync.Mutex
	profile     ghoauth.GithubProfile
	exchangeErr error
	profileErr  error
	exchanges   int
}

func (f *fakeGithub) AuthCodeURL(state string) string {
	return "https://github.example.com/login/oauth/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeGithub) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges++
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{AccessToken: "gho_" + code}, nil
}

func (f *fakeGithub) FetchProfile(ctx context.Context, token *oauth2.Token) (*ghoauth.GithubProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	p := f.profile
	return &p, nil
}

func (f *fakeGithub) Exchanges() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchanges
}

// captureSender records reset links instead of sending them
type captureSender struct {
	mu    sync.Mutex
	sent  map[string]string
	fails bool
}

func (c *captureSender) SendPasswordResetEmail(ctx context.Context, to, resetLink string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fails {
		return errors.New("smtp unavailable")
	}
	if c.sent == nil {
		c.sent = make(map[string]string)
	}
	c.sent[to] = resetLink
	return nil
}

func (c *captureSender) tokenFor(t *testing.T, email string) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	link, ok := c.sent[email]
	if !ok {
		t.Fatalf("no reset email sent to %s", email)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatal(err)
	}
	return u.Query().Get("token")
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type testEnv struct {
	store   *recordingStore
	github  *fakeGithub
	sender  *captureSender
	auth    *pa.ProjAuth
	handler http.Handler
}

// newTestEnv wires ProjAuth to fakes. configure runs before the routes are built.
func newTestEnv(t *testing.T, configure ...func(env *testEnv)) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  newRecordingStore(t),
		github: &fakeGithub{},
		sender: &captureSender{},
	}
	env.auth = &pa.ProjAuth{
		Store:        env.store,
		GithubClient: env.github,
		Hasher:       fastHasher,
		EmailSender:  env.sender,
		JWTSecretKey: testSecret,
		FrontendURL:  "https://app.example.com",
	}
	for _, fn := range configure {
		fn(env)
	}
	env.handler = env.auth.Handler()
	return env
}

// slowGithub never answers the code exchange before the caller gives up
type slowGithub struct {
	*fakeGithub
}

func (s *slowGithub) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func createAccount(t *testing.T, store pa.AccountStore, email, password string) *pa.Account {
	t.Helper()
	hash, err := fastHasher.Hash(password)
	if err != nil {
		t.Fatal(err)
	}
	account := &pa.Account{
		ID:           "acct-" + email,
		Name:         "Test",
		Email:        email,
		PasswordHash: hash,
		Provider:     pa.ProviderLocal,
	}
	if err := store.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("CreateAccount(%s) error = %v", email, err)
	}
	return account
}
