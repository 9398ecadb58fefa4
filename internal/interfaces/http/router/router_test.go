package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	products := NewDomainGroup("products", "/products").
		GET("", func(c *gin.Context) { c.String(http.StatusOK, "list") }).
		GET("/:id", func(c *gin.Context) { c.String(http.StatusOK, c.Param("id")) })
	sync := NewDomainGroup("sync", "/sync").
		POST("/products", func(c *gin.Context) { c.String(http.StatusAccepted, "sync") })

	r.Register(products).Register(sync)
	r.Setup()

	tests := []struct {
		method string
		path   string
		status int
		body   string
	}{
		{http.MethodGet, "/api/v1/products", http.StatusOK, "list"},
		{http.MethodGet, "/api/v1/products/42", http.StatusOK, "42"},
		{http.MethodPost, "/api/v1/sync/products", http.StatusAccepted, "sync"},
		{http.MethodGet, "/products", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.status, w.Code, "%s %s", tt.method, tt.path)
		if tt.body != "" {
			assert.Equal(t, tt.body, w.Body.String())
		}
	}
}

func TestDomainGroup_Middleware(t *testing.T) {
	engine := gin.New()
	g := NewDomainGroup("test", "/test").
		Use(func(c *gin.Context) {
			c.Header("X-Test-Middleware", "applied")
			c.Next()
		}).
		GET("/items", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	assert.Equal(t, "test", g.Name())

	other := NewDomainGroup("other", "/other").
		GET("/items", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	NewRouter(engine).Register(g).Register(other).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/items", nil))
	assert.Equal(t, "applied", w.Header().Get("X-Test-Middleware"))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/other/items", nil))
	assert.Empty(t, w.Header().Get("X-Test-Middleware"))
}
