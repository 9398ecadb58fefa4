package supplier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/infrastructure/config"
)

// CatalogFetcher downloads the supplier feed.
// It implements catalog.CatalogSource.
type CatalogFetcher struct {
	tokens   TokenSource
	url      string
	maxBytes int64
	client   *http.Client
	validate *validator.Validate
	logger   *zap.Logger
}

// NewCatalogFetcher creates a CatalogFetcher
func NewCatalogFetcher(cfg *config.SupplierConfig, tokens TokenSource, logger *zap.Logger, opts ...Option) *CatalogFetcher {
	o := buildOptions(cfg, opts)
	return &CatalogFetcher{
		tokens:   tokens,
		url:      cfg.CatalogURL,
		maxBytes: cfg.MaxResponseBytes,
		client:   o.client,
		validate: newFeedValidator(),
		logger:   logger.Named("supplier.catalog"),
	}
}

// FetchCatalog downloads the feed and splits it into usable and rejected records.
// A single malformed record never fails the whole feed.
func (f *CatalogFetcher) FetchCatalog(ctx context.Context) (*catalog.UpstreamCatalog, error) {
	token, err := f.tokens.Token(ctx)
	if err != nil {
		f.logger.Error("Could not obtain a token for the catalog request", zap.Error(err))
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogRequestFailed, err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("Catalog request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrCatalogRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		f.logger.Error("Catalog request rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		if resp.StatusCode == http.StatusUnauthorized {
			if inv, ok := f.tokens.(interface{ Invalidate() }); ok {
				inv.Invalidate()
			}
		}
		return nil, fmt.Errorf("%w: HTTP %d", ErrCatalogRequestFailed, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		// one extra byte tells an exact-size body from a truncated one
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		f.logger.Error("Failed to read catalog body", zap.Error(err))
		return nil, fmt.Errorf("%w: read body: %v", ErrCatalogRequestFailed, err)
	}
	if f.maxBytes > 0 && int64(len(raw)) > f.maxBytes {
		f.logger.Error("Catalog body exceeds the size limit", zap.Int64("max_bytes", f.maxBytes))
		return nil, fmt.Errorf("%w: body larger than %d bytes", ErrCatalogRequestFailed, f.maxBytes)
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		f.logger.Error("Catalog body is not a JSON array", zap.Error(err))
		return nil, fmt.Errorf("%w: decode: %v", ErrCatalogRequestFailed, err)
	}

	feed := f.decodeElements(elements)
	f.logger.Info("Catalog downloaded",
		zap.Int("records", feed.Size()),
		zap.Int("rejected", len(feed.Rejected)),
	)
	return feed, nil
}

func (f *CatalogFetcher) decodeElements(elements []json.RawMessage) *catalog.UpstreamCatalog {
	feed := &catalog.UpstreamCatalog{
		Items: make([]catalog.UpstreamProduct, 0, len(elements)),
	}

	for i, raw := range elements {
		var item catalog.UpstreamProduct
		if err := json.Unmarshal(raw, &item); err != nil {
			rejected := catalog.RejectedRecord{Index: i, Reason: "malformed record: " + err.Error()}
			// salvage identity so a broken record still shields its stored product
			var ident struct {
				ItemID   int64  `json:"item_id"`
				Category string `json:"categoria"`
			}
			if json.Unmarshal(raw, &ident) == nil {
				rejected.ItemID = ident.ItemID
				rejected.Category = ident.Category
			}
			feed.Rejected = append(feed.Rejected, rejected)
			continue
		}

		if err := f.validate.Struct(&item); err != nil {
			feed.Rejected = append(feed.Rejected, catalog.RejectedRecord{
				Index:    i,
				ItemID:   item.ItemID,
				Category: item.Category,
				Reason:   describeValidation(err),
			})
			continue
		}
		feed.Items = append(feed.Items, item)
	}
	return feed
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return "invalid record: " + strings.Join(parts, "; ")
}
