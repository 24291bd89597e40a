package projauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

// OAuthIntent is what the user asked for when the OAuth round trip started
type OAuthIntent string

const (
	IntentLogin  OAuthIntent = "login"
	IntentSignup OAuthIntent = "signup"
	IntentLink   OAuthIntent = "link"
)

// ParseOAuthIntent maps the initiate "mode" parameter to an intent. Empty means login.
func ParseOAuthIntent(mode string) (OAuthIntent, error) {
	switch OAuthIntent(mode) {
	case "", IntentLogin:
		return IntentLogin, nil
	case IntentSignup:
		return IntentSignup, nil
	case IntentLink:
		return IntentLink, nil
	}
	return "", ErrInvalidIntent
}

// OAuthStateEntry is the server-held half of an OAuth state value
type OAuthStateEntry struct {
	Intent    OAuthIntent `json:"intent"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// OAuthStateStore holds issued OAuth states until they are consumed.
// Shared implementations (e.g. stores/redis) allow multi-instance deployments.
type OAuthStateStore interface {
	// PutState stores an entry under state
	PutState(ctx context.Context, state string, entry OAuthStateEntry) error

	// TakeState removes state and returns the entry it held, in one atomic step.
	// Returns ErrStateNotFound if state is absent. Two concurrent calls for the same
	// state never both succeed.
	TakeState(ctx context.Context, state string) (*OAuthStateEntry, error)
}

// OAuthStateLedger issues short lived nonces bound to an intent and verifies each of
// them at most once.
type OAuthStateLedger struct {
	Store OAuthStateStore

	// Lifetime of an issued state, defaults to TokenExpiryOAuthState
	Expiry time.Duration

	// Clock, defaults to time.Now
	Now func() time.Time
}

func NewOAuthStateLedger(store OAuthStateStore) *OAuthStateLedger {
	if store == nil {
		store = NewMemoryStateStore()
	}
	return (&OAuthStateLedger{Store: store}).EnsureDefaults()
}

func (l *OAuthStateLedger) EnsureDefaults() *OAuthStateLedger {
	if l.Store == nil {
		l.Store = NewMemoryStateStore()
	}
	if l.Expiry <= 0 {
		l.Expiry = TokenExpiryOAuthState
	}
	if l.Now == nil {
		l.Now = time.Now
	}
	return l
}

// Issue creates a new random state bound to intent
func (l *OAuthStateLedger) Issue(ctx context.Context, intent OAuthIntent) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(b)
	entry := OAuthStateEntry{
		Intent:    intent,
		ExpiresAt: l.Now().Add(l.Expiry),
	}
	if err := l.Store.PutState(ctx, state, entry); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return state, nil
}

// VerifyAndConsume removes state from the ledger and returns its intent if it had not
// expired. The entry is gone after this call whatever the outcome, so a state can only
// ever be verified once.
func (l *OAuthStateLedger) VerifyAndConsume(ctx context.Context, state string) (OAuthIntent, error) {
	if state == "" {
		return "", ErrStateExpiredOrUnknown
	}
	entry, err := l.Store.TakeState(ctx, state)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return "", ErrStateExpiredOrUnknown
		}
		return "", err
	}
	if !l.Now().Before(entry.ExpiresAt) {
		return "", ErrStateExpiredOrUnknown
	}
	return entry.Intent, nil
}

// MemoryStateStore keeps OAuth states in process memory. Suitable for single instance
// deployments only.
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]OAuthStateEntry

	// Clock used for reclaiming expired entries, defaults to time.Now
	Now func() time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		entries: make(map[string]OAuthStateEntry),
		Now:     time.Now,
	}
}

func (s *MemoryStateStore) PutState(ctx context.Context, state string, entry OAuthStateEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.entries[state] = entry
	return nil
}

func (s *MemoryStateStore) TakeState(ctx context.Context, state string) (*OAuthStateEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[state]
	if !ok {
		return nil, ErrStateNotFound
	}
	delete(s.entries, state)
	return &entry, nil
}

// Sweep drops every expired entry and returns how many were dropped
func (s *MemoryStateStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

// Len returns the number of entries held, expired or not
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// sweepLocked drops expired entries (caller must hold s.mu)
func (s *MemoryStateStore) sweepLocked() int {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	dropped := 0
	for state, entry := range s.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(s.entries, state)
			dropped++
		}
	}
	return dropped
}
