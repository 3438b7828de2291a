package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/cache"
)

// Session is a signed-in device. The token is the bearer credential.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the session has lapsed at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionRepo provides session storage operations.
type SessionRepo interface {
	// Create opens a session for userID that lapses after ttl.
	Create(ctx context.Context, userID string, ttl time.Duration) (*Session, error)

	// Get returns ErrSessionNotFound for unknown tokens and ErrSessionExpired
	// once the session has lapsed.
	Get(ctx context.Context, token string) (*Session, error)

	// Delete removes a session (logout). Unknown tokens are not an error.
	Delete(ctx context.Context, token string) error

	// DeleteExpired drops lapsed sessions and reports how many went.
	DeleteExpired(ctx context.Context) (int, error)
}

// GenerateToken returns 32 random bytes, base64url encoded.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func newSession(userID string, ttl time.Duration, now time.Time) (*Session, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(ttl)}, nil
}

// SessionOption configures a session repo.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	now func() time.Time
}

// WithSessionClock overrides time.Now, mostly for tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(o *sessionOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func applySessionOptions(opts []SessionOption) sessionOptions {
	o := sessionOptions{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// MemorySessionRepo keeps sessions in process memory. Lapsed sessions stay
// until DeleteExpired runs.
type MemorySessionRepo struct {
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemorySessionRepo(opts ...SessionOption) *MemorySessionRepo {
	o := applySessionOptions(opts)
	return &MemorySessionRepo{now: o.now, sessions: make(map[string]Session)}
}

func (r *MemorySessionRepo) Create(ctx context.Context, userID string, ttl time.Duration) (*Session, error) {
	s, err := newSession(userID, ttl, r.now())
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.sessions[s.Token] = *s
	r.mu.Unlock()
	return s, nil
}

func (r *MemorySessionRepo) Get(ctx context.Context, token string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[token]
	r.mu.RUnlock()

	switch {
	case !ok:
		return nil, ErrSessionNotFound
	case s.ExpiredAt(r.now()):
		return nil, ErrSessionExpired
	}
	return &s, nil
}

func (r *MemorySessionRepo) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	delete(r.sessions, token)
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRepo) DeleteExpired(ctx context.Context) (int, error) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	for token, s := range r.sessions {
		if s.ExpiredAt(now) {
			delete(r.sessions, token)
			n++
		}
	}
	return n, nil
}

// CacheSessionRepo stores sessions in the cache under "session:<token>" with
// the session TTL, so a valkey cache shares them between server instances
// and keeps them across restarts.
type CacheSessionRepo struct {
	cache cache.Cache
	now   func() time.Time
}

func NewCacheSessionRepo(c cache.Cache, opts ...SessionOption) *CacheSessionRepo {
	o := applySessionOptions(opts)
	return &CacheSessionRepo{cache: c, now: o.now}
}

func sessionKey(token string) string { return "session:" + token }

func (r *CacheSessionRepo) Create(ctx context.Context, userID string, ttl time.Duration) (*Session, error) {
	s, err := newSession(userID, ttl, r.now())
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, sessionKey(s.Token), raw, ttl); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return s, nil
}

func (r *CacheSessionRepo) Get(ctx context.Context, token string) (*Session, error) {
	raw, err := r.cache.Get(ctx, sessionKey(token))
	if errors.Is(err, cache.ErrNotFound) || errors.Is(err, cache.ErrExpired) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.ExpiredAt(r.now()) {
		return nil, ErrSessionExpired
	}
	return &s, nil
}

func (r *CacheSessionRepo) Delete(ctx context.Context, token string) error {
	err := r.cache.Delete(ctx, sessionKey(token))
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	return err
}

// DeleteExpired is a no-op: the cache drops entries when their TTL runs out.
func (r *CacheSessionRepo) DeleteExpired(ctx context.Context) (int, error) {
	return 0, nil
}

// SweepExpired calls DeleteExpired every interval until ctx is done.
func SweepExpired(ctx context.Context, repo SessionRepo, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			repo.DeleteExpired(ctx)
		}
	}
}

var (
	_ SessionRepo = (*MemorySessionRepo)(nil)
	_ SessionRepo = (*CacheSessionRepo)(nil)
)
