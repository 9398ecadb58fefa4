package supplier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleFeed = `[
  {
    "item_id": 101,
    "codigo": "NB-14",
    "ean": "7790000000011",
    "partNumber": "PN-14",
    "item_desc_0": "Notebook Pro 14",
    "marca": "Acme",
    "categoria": "Notebooks",
    "subcategoria": "Ultralivianas",
    "peso_gr": 1400,
    "alto_cm": 2,
    "ancho_cm": 32,
    "largo_cm": 22,
    "volumen_cm3": 1408,
    "precioNeto_USD": 899.99,
    "impuestos": [{"imp_desc": "IVA", "imp_porcentaje": 10.5}],
    "stock_mdp": 3,
    "stock_caba": 0,
    "url_imagenes": [{"url": "https://img.example.com/nb14.jpg"}]
  },
  {"item_id": "not-a-number", "categoria": "Monitores"},
  {"item_id": 103, "item_desc_0": "", "categoria": "Tablets"},
  {"item_id": 104, "item_desc_0": "Tablet", "categoria": "Tablets", "precioNeto_USD": -1},
  {"item_id": 105, "item_desc_0": "Aire", "categoria": "Climatizacion", "url_imagenes": [{"url": "not a url"}]},
  {"item_id": 106, "codigo": "CODE-999999999999999999999999999999999999999999999999999999999999", "item_desc_0": "Heladera", "categoria": "Refrigeracion"}
]`

type staticTokens struct {
	token       string
	err         error
	invalidated bool
}

func (s *staticTokens) Token(context.Context) (string, error) { return s.token, s.err }
func (s *staticTokens) Invalidate()                           { s.invalidated = true }

func newCatalogServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCatalogFetcher_FetchCatalog(t *testing.T) {
	server := newCatalogServer(t, http.StatusOK, sampleFeed)
	fetcher := NewCatalogFetcher(supplierConfig(server.URL), &staticTokens{token: "tok"}, zap.NewNop())

	feed, err := fetcher.FetchCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, feed.Size())

	require.Len(t, feed.Items, 2)
	item := feed.Items[0]
	assert.EqualValues(t, 101, item.ItemID)
	assert.Equal(t, "Notebook Pro 14", item.Desc0)
	assert.Equal(t, "Notebooks", item.Category)
	assert.True(t, decimal.RequireFromString("899.99").Equal(item.NetPriceUSD))
	require.Len(t, item.Taxes, 1)
	assert.True(t, decimal.RequireFromString("10.5").Equal(item.Taxes[0].Percentage))
	assert.Equal(t, []string{"https://img.example.com/nb14.jpg"}, item.ImageURLs())

	// an unusable image url is left to the image check, the record itself is kept
	unusableImage := feed.Items[1]
	assert.EqualValues(t, 105, unusableImage.ItemID)
	assert.Equal(t, []string{"not a url"}, unusableImage.ImageURLs())

	require.Len(t, feed.Rejected, 4)

	malformed := feed.Rejected[0]
	assert.Equal(t, 1, malformed.Index)
	assert.Zero(t, malformed.ItemID)
	assert.Contains(t, malformed.Reason, "malformed record")

	missingTitle := feed.Rejected[1]
	assert.EqualValues(t, 103, missingTitle.ItemID)
	assert.Equal(t, "Tablets", missingTitle.Category)
	assert.Contains(t, missingTitle.Reason, "item_desc_0")

	negativePrice := feed.Rejected[2]
	assert.EqualValues(t, 104, negativePrice.ItemID)
	assert.Contains(t, negativePrice.Reason, "precioNeto_USD")

	longCode := feed.Rejected[3]
	assert.EqualValues(t, 106, longCode.ItemID)
	assert.Equal(t, "Refrigeracion", longCode.Category)
	assert.Contains(t, longCode.Reason, "codigo")
}

func TestCatalogFetcher_Errors(t *testing.T) {
	t.Run("token failure short-circuits", func(t *testing.T) {
		tokenErr := errors.New("no token")
		fetcher := NewCatalogFetcher(supplierConfig("http://127.0.0.1:1"), &staticTokens{err: tokenErr}, zap.NewNop())

		_, err := fetcher.FetchCatalog(context.Background())
		assert.ErrorIs(t, err, tokenErr)
	})

	t.Run("non 2xx", func(t *testing.T) {
		server := newCatalogServer(t, http.StatusBadGateway, "upstream down")
		fetcher := NewCatalogFetcher(supplierConfig(server.URL), &staticTokens{token: "tok"}, zap.NewNop())

		_, err := fetcher.FetchCatalog(context.Background())
		assert.ErrorIs(t, err, ErrCatalogRequestFailed)
	})

	t.Run("unauthorized invalidates the cached token", func(t *testing.T) {
		server := newCatalogServer(t, http.StatusUnauthorized, "")
		tokens := &staticTokens{token: "tok"}
		fetcher := NewCatalogFetcher(supplierConfig(server.URL), tokens, zap.NewNop())

		_, err := fetcher.FetchCatalog(context.Background())
		assert.ErrorIs(t, err, ErrCatalogRequestFailed)
		assert.True(t, tokens.invalidated)
	})

	t.Run("body is not an array", func(t *testing.T) {
		server := newCatalogServer(t, http.StatusOK, `{"items": []}`)
		fetcher := NewCatalogFetcher(supplierConfig(server.URL), &staticTokens{token: "tok"}, zap.NewNop())

		_, err := fetcher.FetchCatalog(context.Background())
		assert.ErrorIs(t, err, ErrCatalogRequestFailed)
	})

	t.Run("body over the size limit", func(t *testing.T) {
		server := newCatalogServer(t, http.StatusOK, "["+strings.Repeat(" ", 64)+"]")
		cfg := supplierConfig(server.URL)
		cfg.MaxResponseBytes = 16
		fetcher := NewCatalogFetcher(cfg, &staticTokens{token: "tok"}, zap.NewNop())

		_, err := fetcher.FetchCatalog(context.Background())
		assert.ErrorIs(t, err, ErrCatalogRequestFailed)
	})
}

func TestCatalogFetcher_EmptyFeed(t *testing.T) {
	server := newCatalogServer(t, http.StatusOK, `[]`)
	fetcher := NewCatalogFetcher(supplierConfig(server.URL), &staticTokens{token: "tok"}, zap.NewNop())

	feed, err := fetcher.FetchCatalog(context.Background())
	require.NoError(t, err)
	assert.Zero(t, feed.Size())
}
