package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	catalogapp "github.com/storefront/backend/internal/application/catalog"
	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
)

type okProbe struct{}

func (okProbe) Ping(context.Context) error { return nil }
func (okProbe) Stats() (persistence.ConnectionStats, error) {
	return persistence.ConnectionStats{MaxOpenConnections: 5}, nil
}

// emptyCatalog is a product repository with nothing in it
type emptyCatalog struct{}

func (emptyCatalog) FindByID(context.Context, uuid.UUID) (*catalog.Product, error) {
	return nil, shared.ErrNotFound
}
func (emptyCatalog) FindActiveBySlug(context.Context, string) (*catalog.Product, error) {
	return nil, shared.ErrNotFound
}
func (emptyCatalog) FindActive(context.Context, catalog.ProductFilter) ([]catalog.Product, error) {
	return nil, nil
}
func (emptyCatalog) CountActive(context.Context, catalog.ProductFilter) (int64, error) {
	return 0, nil
}
func (emptyCatalog) FindFeatured(context.Context, int) ([]catalog.Product, error) {
	return nil, nil
}

type completedSyncer struct{ calls int }

func (s *completedSyncer) Run(context.Context, catalog.SyncTrigger) *catalog.SyncReport {
	s.calls++
	r := catalog.NewSyncReport()
	r.Complete()
	return r
}

func newTestEngine(t *testing.T, httpCfg config.HTTPConfig) (*Engine, *completedSyncer) {
	t.Helper()
	syncer := &completedSyncer{}
	taxonomy := catalog.MustNewTaxonomy(catalog.TaxonomyConfig{DisplayCategories: []string{"Notebooks"}})
	handlers := Handlers{
		System:   handler.NewSystemHandler(okProbe{}, "storefront-backend", "test", zap.NewNop()),
		Products: handler.NewProductHandler(catalogapp.NewQueryService(emptyCatalog{}, taxonomy, 4)),
		Sync:     handler.NewSyncHandler(syncer, nil),
	}
	engine, err := NewEngine(EngineConfig{
		HTTP:        httpCfg,
		SyncSecret:  "cron-secret",
		ServiceName: "storefront-backend",
	}, handlers, zap.NewNop(), nil)
	require.NoError(t, err)
	return engine, syncer
}

func do(e *Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func TestNewEngine_Routes(t *testing.T) {
	engine, syncer := newTestEngine(t, config.HTTPConfig{MaxBodySize: 1 << 20})
	assert.Nil(t, engine.Limiter)

	t.Run("health pings the database", func(t *testing.T) {
		w := do(engine, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var body handler.HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body.Status)
		assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	})

	t.Run("request id is echoed back", func(t *testing.T) {
		w := do(engine, http.MethodGet, "/api/v1/categories", map[string]string{middleware.RequestIDHeader: "req-42"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "req-42", w.Header().Get(middleware.RequestIDHeader))
	})

	t.Run("empty listing", func(t *testing.T) {
		w := do(engine, http.MethodGet, "/api/v1/products?category=Notebooks", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown product is 404", func(t *testing.T) {
		w := do(engine, http.MethodGet, "/api/v1/products/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown route uses the error envelope", func(t *testing.T) {
		w := do(engine, http.MethodGet, "/api/v1/orders", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	})

	t.Run("sync requires the bearer secret", func(t *testing.T) {
		w := do(engine, http.MethodPost, "/api/v1/sync/products", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Zero(t, syncer.calls)

		w = do(engine, http.MethodGet, "/api/v1/sync/products",
			map[string]string{"Authorization": "Bearer cron-secret"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, syncer.calls)
	})

	t.Run("job endpoints without a scheduler", func(t *testing.T) {
		auth := map[string]string{"Authorization": "Bearer cron-secret"}
		assert.Equal(t, http.StatusServiceUnavailable, do(engine, http.MethodPost, "/api/v1/sync/jobs", auth).Code)
		assert.Equal(t, http.StatusOK, do(engine, http.MethodGet, "/api/v1/sync/jobs", auth).Code)
	})
}

func TestNewEngine_RateLimit(t *testing.T) {
	engine, _ := newTestEngine(t, config.HTTPConfig{
		RateLimitEnabled:  true,
		RateLimitRequests: 2,
		RateLimitWindow:   time.Minute,
	})
	require.NotNil(t, engine.Limiter)

	for range 2 {
		assert.Equal(t, http.StatusOK, do(engine, http.MethodGet, "/api/v1/categories", nil).Code)
	}
	w := do(engine, http.MethodGet, "/api/v1/categories", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}
