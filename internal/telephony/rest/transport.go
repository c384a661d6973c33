package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/callbridge/internal/config"
	"github.com/acme/callbridge/pkg/calls"
	apperrors "github.com/acme/callbridge/pkg/errors"
	"github.com/acme/callbridge/pkg/logger"
)

const (
	defaultBaseURL      = "https://api.twilio.com/2010-04-01"
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 64 * 1024
)

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customises the transport.
type Option func(*Transport)

// WithHTTPClient overrides the HTTP client used to talk to the provider.
func WithHTTPClient(client HTTPClient) Option {
	return func(t *Transport) {
		if client != nil {
			t.httpClient = client
		}
	}
}

// WithBaseURL sets the provider API root. Useful for tests.
func WithBaseURL(baseURL string) Option {
	return func(t *Transport) {
		if baseURL != "" {
			t.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithLogger attaches a logger for per-request debug output.
func WithLogger(lg *logger.Logger) Option {
	return func(t *Transport) {
		if lg != nil {
			t.logger = lg
		}
	}
}

// Transport implements calls.Transport over the provider's REST API.
type Transport struct {
	accountSID   string
	authToken    string
	baseURL      string
	maxBodyBytes int64
	httpClient   HTTPClient
	logger       *logger.Logger
	tracer       trace.Tracer
}

var _ calls.Transport = (*Transport)(nil)

// New constructs a transport from provider configuration.
func New(cfg config.ProviderConfig, opts ...Option) (*Transport, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" {
		return nil, fmt.Errorf("%w: rest transport: account sid is required", apperrors.ErrValidation)
	}
	if strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, fmt.Errorf("%w: rest transport: auth token is required", apperrors.ErrValidation)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	t := &Transport{
		accountSID:   strings.TrimSpace(cfg.AccountSID),
		authToken:    strings.TrimSpace(cfg.AuthToken),
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		maxBodyBytes: cfg.MaxBodyBytes,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger.NewNop(),
		tracer:       otel.Tracer("callbridge.telephony.rest"),
	}
	if t.baseURL == "" {
		t.baseURL = defaultBaseURL
	}
	if t.maxBodyBytes <= 0 {
		t.maxBodyBytes = defaultMaxBodyBytes
	}

	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// Do executes req and returns the response flattened into the decoder's key space.
func (t *Transport) Do(ctx context.Context, req calls.Request) (map[string]string, error) {
	ctx, span := t.tracer.Start(ctx, "telephony.rest "+req.Method, trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("telephony.path", req.Path),
	))
	defer span.End()

	fields, status, err := t.do(ctx, req)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.logger.Debug("telephony request failed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
		return nil, err
	}

	t.logger.Debug("telephony request",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", status),
	)
	return fields, nil
}

func (t *Transport) do(ctx context.Context, req calls.Request) (map[string]string, int, error) {
	endpoint := t.endpoint(req.Path)

	var body io.Reader
	if req.Method != http.MethodGet && len(req.Params) > 0 {
		body = strings.NewReader(encodeParams(req.Params))
	} else if len(req.Params) > 0 {
		endpoint += "?" + encodeParams(req.Params)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, body)
	if err != nil {
		return nil, 0, fmt.Errorf("rest transport: new request: %w", err)
	}
	httpReq.SetBasicAuth(t.accountSID, t.authToken)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, fmt.Errorf("rest transport: http do: %w", ctxErr)
		}
		return nil, 0, fmt.Errorf("%w: rest transport: http do: %w", apperrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodyBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, resp.StatusCode, fmt.Errorf("rest transport: read body: %w", ctxErr)
		}
		return nil, resp.StatusCode, fmt.Errorf("%w: rest transport: read body: %w", apperrors.ErrUnavailable, err)
	}
	oversized := int64(len(raw)) > t.maxBodyBytes
	if oversized {
		raw = raw[:t.maxBodyBytes]
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, newAPIError(resp.StatusCode, raw)
	}
	if oversized {
		return nil, resp.StatusCode, fmt.Errorf("%w: rest transport: response too large (limit %d bytes)", apperrors.ErrUpstream, t.maxBodyBytes)
	}

	fields, err := flatten(resp.Header.Get("Content-Type"), raw)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return fields, resp.StatusCode, nil
}

func (t *Transport) endpoint(path string) string {
	return fmt.Sprintf("%s/Accounts/%s/%s.json", t.baseURL, url.PathEscape(t.accountSID), path)
}

// encodeParams form-encodes params in their given order; url.Values would sort them.
func encodeParams(params []calls.Param) string {
	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}
	return sb.String()
}
