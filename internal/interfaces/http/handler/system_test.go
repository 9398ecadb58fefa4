package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/infrastructure/persistence"
)

type stubProbe struct {
	pingErr error
	stats   persistence.ConnectionStats
}

func (s *stubProbe) Ping(context.Context) error { return s.pingErr }

func (s *stubProbe) Stats() (persistence.ConnectionStats, error) { return s.stats, nil }

func TestSystemHandler_Health(t *testing.T) {
	t.Run("healthy database", func(t *testing.T) {
		h := NewSystemHandler(&stubProbe{stats: persistence.ConnectionStats{OpenConnections: 2}}, "storefront", "1.0.0", zap.NewNop())
		c, w := newTestContext(http.MethodGet, "/health")

		h.Health(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "ok", resp.Database)
		require.NotNil(t, resp.Pool)
		assert.Equal(t, 2, resp.Pool.OpenConnections)
	})

	t.Run("unreachable database", func(t *testing.T) {
		h := NewSystemHandler(&stubProbe{pingErr: errors.New("dial tcp: refused")}, "storefront", "1.0.0", zap.NewNop())
		c, w := newTestContext(http.MethodGet, "/health")

		h.Health(c)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Nil(t, resp.Pool)
	})
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	h := NewSystemHandler(&stubProbe{}, "storefront-backend", "1.2.3", zap.NewNop())
	c, w := newTestContext(http.MethodGet, "/api/v1/system/info")

	h.GetSystemInfo(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "storefront-backend", data["name"])
	assert.Equal(t, "1.2.3", data["version"])
	assert.NotEmpty(t, data["go_version"])
}
