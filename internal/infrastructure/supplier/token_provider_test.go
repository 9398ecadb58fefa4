package supplier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/storefront/backend/internal/infrastructure/config"
)

func supplierConfig(serverURL string) *config.SupplierConfig {
	return &config.SupplierConfig{
		ID:               "42",
		Username:         "shop",
		Password:         "s3cret",
		LoginURL:         serverURL + "/login",
		CatalogURL:       serverURL + "/catalog",
		Timeout:          5 * time.Second,
		MaxResponseBytes: 1 << 20,
	}
}

func TestTokenProvider_Token(t *testing.T) {
	var got loginRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "*/*", r.Header.Get("Accept"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, "  tok-123\n")
	}))
	defer server.Close()

	p := NewTokenProvider(supplierConfig(server.URL), zap.NewNop())
	token, err := p.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "  tok-123\n", token, "token is the body verbatim")
	assert.Equal(t, loginRequest{ID: 42, Username: "shop", Password: "s3cret"}, got)
}

func TestTokenProvider_CredentialErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	tests := []struct {
		name    string
		mutate  func(*config.SupplierConfig)
		wantErr error
	}{
		{"missing id", func(c *config.SupplierConfig) { c.ID = "" }, ErrMissingCredentials},
		{"missing username", func(c *config.SupplierConfig) { c.Username = "" }, ErrMissingCredentials},
		{"missing password", func(c *config.SupplierConfig) { c.Password = "" }, ErrMissingCredentials},
		{"non numeric id", func(c *config.SupplierConfig) { c.ID = "abc" }, ErrInvalidSupplierID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.ErrorLevel)
			cfg := supplierConfig(server.URL)
			tt.mutate(cfg)

			token, err := NewTokenProvider(cfg, zap.New(core)).Token(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, token)
			assert.Equal(t, 1, logs.Len())
		})
	}
	assert.Zero(t, calls.Load(), "no request is made without usable credentials")
}

func TestTokenProvider_LoginRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "bad credentials")
	}))
	defer server.Close()

	core, logs := observer.New(zap.ErrorLevel)
	_, err := NewTokenProvider(supplierConfig(server.URL), zap.New(core)).Token(context.Background())
	require.ErrorIs(t, err, ErrLoginFailed)
	assert.Contains(t, err.Error(), "401")

	entries := logs.FilterMessage("Supplier login rejected").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "bad credentials", entries[0].ContextMap()["body"])
}

func TestTokenProvider_EmptyBodyAndTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	_, err := NewTokenProvider(supplierConfig(server.URL), zap.NewNop()).Token(context.Background())
	assert.ErrorIs(t, err, ErrLoginFailed)

	server.Close()
	_, err = NewTokenProvider(supplierConfig(server.URL), zap.NewNop()).Token(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLoginFailed)
}

type countingSource struct {
	calls atomic.Int32
	err   error
}

func (s *countingSource) Token(context.Context) (string, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return "token-" + string(rune('0'+n)), nil
}

func TestCachingTokenProvider(t *testing.T) {
	t.Run("zero ttl always delegates", func(t *testing.T) {
		src := &countingSource{}
		c := NewCachingTokenProvider(src, 0)
		for i := 0; i < 3; i++ {
			_, err := c.Token(context.Background())
			require.NoError(t, err)
		}
		assert.EqualValues(t, 3, src.calls.Load())
	})

	t.Run("reuses until expiry", func(t *testing.T) {
		src := &countingSource{}
		c := NewCachingTokenProvider(src, time.Minute)
		now := time.Now()
		c.now = func() time.Time { return now }

		first, err := c.Token(context.Background())
		require.NoError(t, err)
		second, err := c.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.EqualValues(t, 1, src.calls.Load())

		now = now.Add(2 * time.Minute)
		third, err := c.Token(context.Background())
		require.NoError(t, err)
		assert.NotEqual(t, first, third)
		assert.EqualValues(t, 2, src.calls.Load())
	})

	t.Run("invalidate forces a new login", func(t *testing.T) {
		src := &countingSource{}
		c := NewCachingTokenProvider(src, time.Hour)
		_, _ = c.Token(context.Background())
		c.Invalidate()
		_, _ = c.Token(context.Background())
		assert.EqualValues(t, 2, src.calls.Load())
	})

	t.Run("errors are not cached", func(t *testing.T) {
		src := &countingSource{err: errors.New("down")}
		c := NewCachingTokenProvider(src, time.Hour)
		_, err := c.Token(context.Background())
		require.Error(t, err)
		_, err = c.Token(context.Background())
		require.Error(t, err)
		assert.EqualValues(t, 2, src.calls.Load())
	})
}
