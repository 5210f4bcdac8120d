package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/maxsfamily/stripgate/internal/infrastructure/config"
)

// Logger defines the logging interface used by the Cache.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Session is an authenticated mapping from bearer token to user.
type Session struct {
	UserID string `json:"user_id"`
	// Token is the bearer token the platform presents; it is the cache key
	// and does not change on refresh.
	Token string `json:"-"`
	// AccessToken is the provider access token currently backing the session.
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`

	// gen identifies one cached instance; refresh keeps it, revalidation does not.
	gen uint64
}

// Valid reports whether the session has not expired at now.
func (s *Session) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// Identity is the result of a user-info validation.
type Identity struct {
	UserID string
	// TTL is the remaining token lifetime; zero means the provider did not say.
	TTL time.Duration
}

// Grant is the result of a refresh.
type Grant struct {
	AccessToken  string
	RefreshToken string
	TTL          time.Duration
}

// Provider is the external identity provider.
type Provider interface {
	UserInfo(ctx context.Context, accessToken string) (Identity, error)
	Refresh(ctx context.Context, refreshToken string) (Grant, error)
}

// Cache holds sessions keyed by bearer token.
//
// One mutex guards the whole map. Provider calls run outside it.
type Cache struct {
	provider   Provider
	timeout    time.Duration
	defaultTTL time.Duration
	now        func() time.Time
	logger     Logger

	mu       sync.Mutex
	sessions map[string]*Session
	nextGen  uint64

	group singleflight.Group
}

// NewCache creates a session cache backed by provider.
func NewCache(provider Provider, cfg config.ProviderConfig) *Cache {
	return &Cache{
		provider:   provider,
		timeout:    time.Duration(cfg.Timeout) * time.Second,
		defaultTTL: time.Duration(cfg.DefaultTTL) * time.Second,
		now:        time.Now,
		logger:     noopLogger{},
		sessions:   make(map[string]*Session),
	}
}

// SetLogger sets the logger for the cache.
func (c *Cache) SetLogger(logger Logger) {
	c.logger = logger
}

// Resolve returns the session for token, refreshing or validating it with
// the provider as needed. The returned Session is a copy.
//
// Concurrent calls for the same token share one provider round-trip. The
// shared call ignores the first caller's cancellation and is bounded by the
// provider timeout only.
func (c *Cache) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	if s, ok := c.lookupValid(token); ok {
		return s, nil
	}

	shared := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(token, func() (any, error) {
		return c.resolve(shared, token)
	})
	if err != nil {
		return nil, err
	}
	s := *v.(*Session)
	return &s, nil
}

func (c *Cache) lookupValid(token string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[token]
	if !ok || !s.Valid(c.now()) {
		return nil, false
	}
	cpy := *s
	return &cpy, true
}

func (c *Cache) resolve(ctx context.Context, token string) (*Session, error) {
	// Another flight may have finished while this one was queued.
	if s, ok := c.lookupValid(token); ok {
		return s, nil
	}

	c.mu.Lock()
	cached, ok := c.sessions[token]
	var snapshot Session
	if ok {
		snapshot = *cached
	}
	c.mu.Unlock()

	var refreshErr error
	if ok {
		if snapshot.RefreshToken != "" {
			s, err := c.refresh(ctx, snapshot)
			if err == nil {
				return s, nil
			}
			if errors.Is(err, ErrTokenInvalid) {
				return nil, err
			}
			refreshErr = err
			c.logger.Warn("session refresh failed, revalidating", "user_id", snapshot.UserID, "error", err)
		}
		c.Evict(&snapshot)
	}

	s, err := c.validate(ctx, token)
	if err != nil {
		if refreshErr != nil {
			return nil, fmt.Errorf("%w: %w", err, refreshErr)
		}
		return nil, err
	}
	return s, nil
}

// refresh exchanges the session's refresh token and updates the cached
// entry in place of the same key. If the instance was evicted or replaced
// while the exchange ran, the result is discarded and ErrTokenInvalid is
// returned.
func (c *Cache) refresh(ctx context.Context, s Session) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	grant, err := c.provider.Refresh(ctx, s.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenRefreshFailed, err)
	}
	if grant.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrTokenRefreshFailed)
	}

	s.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		s.RefreshToken = grant.RefreshToken
	}
	s.ExpiresAt = c.now().Add(c.ttl(grant.TTL))

	c.mu.Lock()
	cur, ok := c.sessions[s.Token]
	if !ok || cur.gen != s.gen {
		c.mu.Unlock()
		c.logger.Info("session evicted during refresh, discarding grant", "user_id", s.UserID)
		return nil, fmt.Errorf("%w: session evicted", ErrTokenInvalid)
	}
	stored := s
	c.sessions[s.Token] = &stored
	c.mu.Unlock()

	c.logger.Info("session refreshed", "user_id", s.UserID, "expires_at", s.ExpiresAt)
	return &s, nil
}

// validate calls the provider's user-info endpoint and caches a new session.
func (c *Cache) validate(ctx context.Context, token string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id, err := c.provider.UserInfo(ctx, token)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn("identity provider timed out", "timeout", c.timeout)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if id.UserID == "" {
		return nil, fmt.Errorf("%w: provider returned no user id", ErrTokenInvalid)
	}

	s := Session{
		UserID:      id.UserID,
		Token:       token,
		AccessToken: token,
		ExpiresAt:   c.now().Add(c.ttl(id.TTL)),
	}
	return c.insert(s), nil
}

func (c *Cache) ttl(d time.Duration) time.Duration {
	if d <= 0 {
		return c.defaultTTL
	}
	return d
}

// insert stores s as a new instance, superseding any session for the same token.
func (c *Cache) insert(s Session) *Session {
	c.mu.Lock()
	c.nextGen++
	s.gen = c.nextGen
	stored := s
	c.sessions[s.Token] = &stored
	c.mu.Unlock()

	c.logger.Debug("session cached", "user_id", s.UserID, "expires_at", s.ExpiresAt)
	return &s
}

// Put caches a session obtained outside Resolve, such as one handed over
// by account linking with its refresh token. Token, UserID and ExpiresAt
// are required. AccessToken defaults to Token.
func (c *Cache) Put(s Session) (*Session, error) {
	if s.Token == "" || s.UserID == "" || s.ExpiresAt.IsZero() {
		return nil, errors.New("session: token, user id and expiry are required")
	}
	if s.AccessToken == "" {
		s.AccessToken = s.Token
	}
	return c.insert(s), nil
}

// Evict removes s if it is still the cached instance for its token.
// It reports whether anything was removed.
func (c *Cache) Evict(s *Session) bool {
	if s == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.sessions[s.Token]
	if !ok || cur.gen != s.gen {
		return false
	}
	delete(c.sessions, s.Token)
	c.logger.Debug("session evicted", "user_id", s.UserID)
	return true
}

// UserIDs returns the distinct users with a cached session, sorted.
func (c *Cache) UserIDs() []string {
	c.mu.Lock()
	seen := make(map[string]struct{}, len(c.sessions))
	for _, s := range c.sessions {
		seen[s.UserID] = struct{}{}
	}
	c.mu.Unlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of cached sessions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Prune drops expired sessions that cannot be refreshed.
func (c *Cache) Prune() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for token, s := range c.sessions {
		if !s.Valid(now) && s.RefreshToken == "" {
			delete(c.sessions, token)
			n++
		}
	}
	return n
}

// Run prunes the cache every interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Prune(); n > 0 {
				c.logger.Debug("expired sessions pruned", "count", n)
			}
		}
	}
}
