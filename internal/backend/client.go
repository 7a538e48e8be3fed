package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Vanequal/ideafeed/pkg/config"
	"github.com/Vanequal/ideafeed/pkg/logging"
	"github.com/Vanequal/ideafeed/pkg/telemetry"
)

const maxResponseBytes = 10 << 20

// TokenSource supplies the bearer token attached to every request
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource that always returns the same token
type StaticToken string

// Token implements TokenSource
func (t StaticToken) Token() string { return string(t) }

// Client wraps the backend REST API
type Client struct {
	baseURL     string
	http        *http.Client
	tokens      TokenSource
	limiter     *rate.Limiter
	skipTunnel  bool
	contentType string
	logger      *zap.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger replaces the component logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a new backend client
func New(cfg *config.APIConfig, tokens TokenSource, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if tokens == nil {
		tokens = StaticToken("")
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	contentType := cfg.ContentType
	if contentType == "" {
		contentType = "post"
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		http:        &http.Client{Timeout: timeout},
		tokens:      tokens,
		limiter:     rate.NewLimiter(limit, burst),
		skipTunnel:  cfg.SkipTunnelWarning,
		contentType: contentType,
		logger:      logging.WithComponent("backend-client"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Info("Backend client initialized", zap.String("url", c.baseURL))
	return c, nil
}

// BaseURL returns the backend root without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AttachmentURL builds the download URL for a stored attachment path
func (c *Client) AttachmentURL(storedPath string) string {
	return AttachmentURL(c.baseURL, storedPath)
}

// AttachmentURL builds the download URL for a stored attachment path under
// baseURL. Absolute URLs pass through unchanged.
func AttachmentURL(baseURL, storedPath string) string {
	p := NormalizeStoredPath(storedPath)
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	return strings.TrimRight(baseURL, "/") + "/api/v1/attachments/" + url.PathEscape(p)
}

// request describes one backend call
type request struct {
	endpoint    string // metric and span label
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	anonymous   bool
}

// do executes req and returns the raw response body of a 2xx answer
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, "backend."+req.endpoint)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, req.endpoint, err)
	}

	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, req.body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", req.endpoint, err)
	}

	requestID := RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if c.skipTunnel {
		httpReq.Header.Set("ngrok-skip-browser-warning", "true")
	}
	if !req.anonymous {
		token := c.tokens.Token()
		if token == "" {
			return nil, fmt.Errorf("%s: %w", req.endpoint, ErrNoToken)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
		// The backend reads this header on some routes.
		httpReq.Header.Set("WWW-Authenticate", "Bearer "+token)
	}

	logger := c.logger.With(zap.String("request_id", requestID), zap.String("endpoint", req.endpoint))
	span.SetAttributes(
		attribute.String("http.method", req.method),
		attribute.String("http.url", u),
		attribute.String("request_id", requestID),
	)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		telemetry.RecordRequest(ctx, req.endpoint, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		logger.Warn("Backend request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, req.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	took := time.Since(start)
	telemetry.RecordRequest(ctx, req.endpoint, resp.StatusCode, took)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %s: reading body: %v", ErrTransport, req.endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newError(resp.StatusCode, body)
		span.SetStatus(codes.Error, apiErr.Message)
		logger.Warn("Backend returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message),
			zap.Duration("took", took))
		return nil, apiErr
	}

	logger.Debug("Backend request completed",
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", took))
	return body, nil
}

type requestIDKey struct{}

// WithRequestID makes every backend call made with ctx carry id as its
// X-Request-ID, so one inbound request can be followed through the backend.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the id set by WithRequestID, or ""
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, request{endpoint: endpoint, method: http.MethodGet, path: path, query: query})
}

func (c *Client) postJSON(ctx context.Context, endpoint, path string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", endpoint, err)
		}
		body = bytes.NewReader(b)
	}
	return c.do(ctx, request{
		endpoint:    endpoint,
		method:      http.MethodPost,
		path:        path,
		body:        body,
		contentType: "application/json",
	})
}

// IsTransport reports whether err means the backend never answered
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
