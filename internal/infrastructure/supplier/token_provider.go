package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/storefront/backend/internal/infrastructure/config"
)

// TokenSource hands out a bearer token for the catalog endpoint
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Option configures the HTTP clients of this package
type Option func(*options)

type options struct {
	client *http.Client
}

// WithHTTPClient replaces the default client built from the configured timeout
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.client = client
	}
}

func buildOptions(cfg *config.SupplierConfig, opts []Option) options {
	o := options{client: &http.Client{Timeout: cfg.Timeout}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// loginRequest is the body the login endpoint expects
type loginRequest struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenProvider logs in to the supplier on every call
type TokenProvider struct {
	cfg    *config.SupplierConfig
	client *http.Client
	logger *zap.Logger
}

// NewTokenProvider creates a TokenProvider
func NewTokenProvider(cfg *config.SupplierConfig, logger *zap.Logger, opts ...Option) *TokenProvider {
	o := buildOptions(cfg, opts)
	return &TokenProvider{
		cfg:    cfg,
		client: o.client,
		logger: logger.Named("supplier.auth"),
	}
}

func (p *TokenProvider) credentials() (loginRequest, error) {
	if p.cfg.ID == "" || p.cfg.Username == "" || p.cfg.Password == "" {
		return loginRequest{}, ErrMissingCredentials
	}
	id, err := strconv.ParseInt(strings.TrimSpace(p.cfg.ID), 10, 64)
	if err != nil {
		return loginRequest{}, fmt.Errorf("%w: %q", ErrInvalidSupplierID, p.cfg.ID)
	}
	return loginRequest{ID: id, Username: p.cfg.Username, Password: p.cfg.Password}, nil
}

// Token posts the credentials to the login endpoint and returns the body verbatim
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	creds, err := p.credentials()
	if err != nil {
		p.logger.Error("Supplier credentials are not usable", zap.Error(err))
		return "", err
	}

	payload, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("supplier: failed to encode credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.LoginURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("supplier: failed to create login request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Error("Supplier login request failed", zap.Error(err))
		return "", fmt.Errorf("supplier: login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		p.logger.Error("Supplier login rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return "", fmt.Errorf("%w: HTTP %d", ErrLoginFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.logger.Error("Failed to read supplier token", zap.Error(err))
		return "", fmt.Errorf("supplier: read token: %w", err)
	}
	if len(body) == 0 {
		p.logger.Error("Supplier returned an empty token")
		return "", fmt.Errorf("%w: empty token", ErrLoginFailed)
	}
	return string(body), nil
}
