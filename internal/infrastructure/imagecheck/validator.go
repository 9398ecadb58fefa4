// Package imagecheck decides whether supplier image URLs point at a reachable image.
package imagecheck

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/storefront/backend/internal/infrastructure/config"
)

// Observer is told the outcome of every HEAD check
type Observer func(ctx context.Context, reachable bool)

// Option configures a Validator
type Option func(*Validator)

// WithHTTPClient replaces the default client
func WithHTTPClient(client *http.Client) Option {
	return func(v *Validator) {
		v.client = client
	}
}

// WithObserver registers a callback for check outcomes
func WithObserver(fn Observer) Option {
	return func(v *Validator) {
		v.observe = fn
	}
}

// Validator checks image URLs with HEAD requests.
// It implements catalog.ImageValidator. At most concurrency checks are in flight
// across all callers, however many products are validated at once.
type Validator struct {
	client      *http.Client
	timeout     time.Duration
	concurrency int
	slots       *semaphore.Weighted
	limiter     *rate.Limiter
	userAgent   string
	observe     Observer
	logger      *zap.Logger
}

// NewValidator creates a Validator
func NewValidator(cfg *config.ImagesConfig, logger *zap.Logger, opts ...Option) *Validator {
	v := &Validator{
		// per-request deadlines come from the context
		client:      &http.Client{},
		timeout:     cfg.Timeout,
		concurrency: cfg.Concurrency,
		userAgent:   cfg.UserAgent,
		logger:      logger.Named("imagecheck"),
	}
	if v.timeout <= 0 {
		v.timeout = 5 * time.Second
	}
	if v.concurrency < 1 {
		v.concurrency = 1
	}
	v.slots = semaphore.NewWeighted(int64(v.concurrency))
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		v.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// IsValidImageURL reports whether url answers a HEAD request with 2xx and an image content type.
// Every failure, timeout included, is a plain false.
func (v *Validator) IsValidImageURL(ctx context.Context, url string) bool {
	if url == "" {
		return false
	}
	// queueing for a slot does not count against the request timeout
	if err := v.slots.Acquire(ctx, 1); err != nil {
		return false
	}
	ok := v.check(ctx, url)
	v.slots.Release(1)
	if v.observe != nil {
		v.observe(ctx, ok)
	}
	return ok
}

func (v *Validator) check(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			v.logger.Debug("Image check not started", zap.String("url", url), zap.Error(err))
			return false
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		v.logger.Debug("Malformed image url", zap.String("url", url), zap.Error(err))
		return false
	}
	if v.userAgent != "" {
		req.Header.Set("User-Agent", v.userAgent)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Debug("Image check failed", zap.String("url", url), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		v.logger.Debug("Image check rejected", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return false
	}
	return strings.HasPrefix(strings.ToLower(resp.Header.Get("Content-Type")), "image/")
}

// ValidateAll checks urls concurrently and returns the valid ones in input order
func (v *Validator) ValidateAll(ctx context.Context, urls []string) []string {
	if len(urls) == 0 {
		return []string{}
	}

	results := make([]bool, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, url := range urls {
		g.Go(func() error {
			results[i] = v.IsValidImageURL(gctx, url)
			return nil
		})
	}
	_ = g.Wait()

	valid := make([]string, 0, len(urls))
	for i, ok := range results {
		if ok {
			valid = append(valid, urls[i])
		}
	}
	return valid
}
