package supplier

import (
	"context"
	"sync"
	"time"
)

// CachingTokenProvider reuses a token until its TTL elapses.
// A zero TTL disables caching and every call reaches the wrapped source.
type CachingTokenProvider struct {
	source TokenSource
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewCachingTokenProvider wraps source with a TTL cache
func NewCachingTokenProvider(source TokenSource, ttl time.Duration) *CachingTokenProvider {
	return &CachingTokenProvider{source: source, ttl: ttl, now: time.Now}
}

// Token returns the cached token or fetches a new one.
// Concurrent callers share a single login.
func (c *CachingTokenProvider) Token(ctx context.Context) (string, error) {
	if c.ttl <= 0 {
		return c.source.Token(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	token, err := c.source.Token(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.expiresAt = c.now().Add(c.ttl)
	return token, nil
}

// Invalidate drops the cached token
func (c *CachingTokenProvider) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}
