// Package apiclient is the request pipeline every backend call goes through.
//
// Each request carries the JSON content type, the API version header, a fresh
// correlation id and, unless skipped, the current bearer credential. Only GET
// requests are retried. A 401 triggers one coordinated re-authentication
// followed by exactly one retry.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ritikkatiyar/ecom-storefront/internal/identity"
	"github.com/ritikkatiyar/ecom-storefront/pkg/logger"
	"github.com/ritikkatiyar/ecom-storefront/pkg/retry"
	"github.com/ritikkatiyar/ecom-storefront/pkg/telemetry"
)

// Header names
const (
	HeaderAPIVersion     = "X-API-Version"
	HeaderCorrelationID  = "X-Correlation-Id"
	HeaderIdempotencyKey = "X-Idempotency-Key"

	contentTypeJSON = "application/json"
)

var errRetryableStatus = errors.New("retryable status")

// CredentialSource supplies the bearer credential at call time.
type CredentialSource interface {
	// CurrentAccessToken returns the access token, or "" when signed out
	CurrentAccessToken() string
}

// Reauthenticator recovers from a 401 by performing or joining a refresh.
type Reauthenticator interface {
	// OnUnauthorized is called with the credential the backend rejected. It
	// returns a usable access token, or false when none could be obtained.
	OnUnauthorized(ctx context.Context, rejected string) (string, bool)
}

// Config holds request pipeline settings
type Config struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	// GetRetryCount is the number of additional attempts for GET requests
	GetRetryCount int
	GetRetryDelay time.Duration
}

// DefaultConfig returns the pipeline defaults: two extra GET attempts 500ms apart
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:8080",
		APIVersion:    "v1",
		Timeout:       15 * time.Second,
		GetRetryCount: 2,
		GetRetryDelay: 500 * time.Millisecond,
	}
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client for making requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for exchange and retry logs.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithCredentials sets where the bearer credential comes from.
func WithCredentials(src CredentialSource) Option {
	return func(c *Client) {
		c.credentials = src
	}
}

// WithReauthenticator sets the capability invoked on a 401.
func WithReauthenticator(r Reauthenticator) Option {
	return func(c *Client) {
		c.reauth = r
	}
}

// Client is safe for concurrent use by unrelated callers.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	log         *logger.Logger
	credentials CredentialSource
	reauth      Reauthenticator
	getRetrier  *retry.Retrier
	onceRetrier *retry.Retrier
}

// New creates a request pipeline.
func New(cfg Config, opts ...Option) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		log:         logger.Get(),
		getRetrier:  retry.New(retry.FixedConfig(cfg.GetRetryCount, cfg.GetRetryDelay)),
		onceRetrier: retry.New(retry.FixedConfig(0, 0)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request describes one backend call
type Request struct {
	Method string
	// Path is relative to the base URL, or an absolute URL
	Path  string
	Query url.Values
	// Body is encoded as JSON. Ignored when RawBody is set.
	Body interface{}
	// RawBody is sent as-is with ContentType, e.g. multipart uploads
	RawBody     []byte
	ContentType string
	// Header carries extra headers. Pipeline headers take precedence.
	Header         http.Header
	SkipAuth       bool
	SkipRetry      bool
	IdempotencyKey string
}

// Response is a fully read backend response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// CorrelationID is the id echoed by the backend, else the one we sent
	CorrelationID string
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsJSON reports whether the response declares a JSON content type
func (r *Response) IsJSON() bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return strings.Contains(r.Header.Get("Content-Type"), contentTypeJSON)
	}
	return mt == contentTypeJSON || strings.HasSuffix(mt, "+json")
}

// Decode fills out from the body. A 204 or empty body leaves out untouched.
// Non-JSON bodies can only be decoded into *string or *[]byte.
func (r *Response) Decode(out interface{}) error {
	if out == nil || r.StatusCode == http.StatusNoContent || len(r.Body) == 0 {
		return nil
	}
	if r.IsJSON() {
		return json.Unmarshal(r.Body, out)
	}
	switch t := out.(type) {
	case *string:
		*t = string(r.Body)
		return nil
	case *[]byte:
		*t = append((*t)[:0], r.Body...)
		return nil
	default:
		return fmt.Errorf("cannot decode %q response into %T", r.Header.Get("Content-Type"), out)
	}
}

// Do sends req and decodes a successful response into out.
func (c *Client) Do(ctx context.Context, req *Request, out interface{}) error {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return &APIError{
			Kind:          KindUnexpected,
			Status:        resp.StatusCode,
			Message:       "failed to decode response",
			CorrelationID: resp.CorrelationID,
			Err:           err,
		}
	}
	return nil
}

// Send issues req and returns the response, or an *APIError for any non-2xx
// outcome.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	correlationID := identity.NewCorrelationID()

	ctx, span := telemetry.StartSpan(ctx, "apiclient.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPMethod(method),
			attribute.String("http.path", req.Path),
			attribute.String("correlation_id", correlationID),
		),
	)
	defer span.End()

	target, err := c.resolveURL(req)
	if err != nil {
		apiErr := &APIError{Kind: KindUnexpected, Message: "invalid request url", CorrelationID: correlationID, Err: err}
		telemetry.RecordError(span, apiErr)
		return nil, apiErr
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		apiErr := &APIError{Kind: KindUnexpected, Message: "failed to encode request body", CorrelationID: correlationID, Err: err}
		telemetry.RecordError(span, apiErr)
		return nil, apiErr
	}

	header := c.buildHeader(req, correlationID, contentType)

	retrier := c.onceRetrier
	if method == http.MethodGet && !req.SkipRetry {
		retrier = c.getRetrier
	}

	resp, attempts, err := c.exchange(ctx, retrier, method, target, body, header, correlationID)
	span.SetAttributes(attribute.Int("http.attempts", attempts))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	c.log.Debug("backend exchange",
		zap.String("correlation_id", correlationID),
		zap.String("method", method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Int("attempts", attempts),
	)

	if resp.StatusCode == http.StatusUnauthorized && !req.SkipAuth && c.reauth != nil {
		resp, err = c.retryAfterReauth(ctx, resp, method, target, body, header)
		if err != nil {
			telemetry.RecordError(span, err)
			span.SetAttributes(semconv.HTTPStatusCode(http.StatusUnauthorized))
			return nil, err
		}
	}

	span.SetAttributes(semconv.HTTPStatusCode(resp.StatusCode))

	if !resp.OK() {
		apiErr := parseErrorResponse(resp)
		telemetry.RecordError(span, apiErr)
		return nil, apiErr
	}
	return resp, nil
}

// retryAfterReauth asks the reauthenticator for a new credential and, when
// one is granted, re-issues the request exactly once with the same
// correlation id. The retry is never subject to the GET retry policy.
func (c *Client) retryAfterReauth(ctx context.Context, unauthorized *Response, method, target string, body []byte, header http.Header) (*Response, error) {
	rejected := strings.TrimPrefix(header.Get("Authorization"), "Bearer ")
	newToken, ok := c.reauth.OnUnauthorized(ctx, rejected)
	if !ok || newToken == "" {
		return nil, parseErrorResponse(unauthorized)
	}

	header = header.Clone()
	header.Set("Authorization", "Bearer "+newToken)

	c.log.Info("retrying after reauthentication",
		zap.String("correlation_id", header.Get(HeaderCorrelationID)),
		zap.String("method", method),
	)

	retried, err := c.roundTrip(ctx, method, target, body, header, header.Get(HeaderCorrelationID))
	if err != nil {
		original := parseErrorResponse(unauthorized)
		original.Err = networkError(header.Get(HeaderCorrelationID), err)
		return nil, original
	}
	if retried.OK() {
		return retried, nil
	}

	original := parseErrorResponse(unauthorized)
	original.Err = parseErrorResponse(retried)
	return nil, original
}

// exchange runs roundTrip under retrier. Transport errors and every non-2xx
// status except 401 are retried. A 401 ends the loop at once and goes to
// re-authentication.
func (c *Client) exchange(ctx context.Context, retrier *retry.Retrier, method, target string, body []byte, header http.Header, correlationID string) (*Response, int, error) {
	var (
		last         *Response
		transportErr error
	)

	result := retrier.DoWithCallback(ctx, func(ctx context.Context) error {
		resp, err := c.roundTrip(ctx, method, target, body, header, correlationID)
		if err != nil {
			last, transportErr = nil, err
			if ctx.Err() != nil {
				return retry.Permanent(err)
			}
			return err
		}

		last, transportErr = resp, nil
		switch {
		case resp.OK():
			return nil
		case retryableStatus(resp.StatusCode):
			return errRetryableStatus
		default:
			return retry.Permanent(errRetryableStatus)
		}
	}, func(attempt int, err error, next time.Duration) {
		status := 0
		if last != nil {
			status = last.StatusCode
		}
		c.log.Warn("retrying backend request",
			zap.String("correlation_id", correlationID),
			zap.String("method", method),
			zap.Int("attempt", attempt),
			zap.Int("status", status),
			zap.Duration("next_interval", next),
			zap.Error(err),
		)
	})

	if errors.Is(result.Err, retry.ErrContextCanceled) {
		return nil, result.Attempts, networkError(correlationID, result.Err)
	}
	if last != nil {
		return last, result.Attempts, nil
	}
	return nil, result.Attempts, networkError(correlationID, transportErr)
}

func retryableStatus(status int) bool {
	return status != http.StatusUnauthorized
}

func (c *Client) roundTrip(ctx context.Context, method, target string, body []byte, header http.Header, correlationID string) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header = header.Clone()
	telemetry.InjectHTTPHeaders(ctx, httpReq.Header)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	echoed := httpResp.Header.Get(HeaderCorrelationID)
	if echoed == "" {
		echoed = correlationID
	}

	return &Response{
		StatusCode:    httpResp.StatusCode,
		Header:        httpResp.Header,
		Body:          respBody,
		CorrelationID: echoed,
	}, nil
}

func (c *Client) resolveURL(req *Request) (string, error) {
	target := req.Path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.cfg.BaseURL + "/" + strings.TrimLeft(target, "/")
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) buildHeader(req *Request, correlationID, contentType string) http.Header {
	header := http.Header{}
	for k, vs := range req.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}

	header.Set("Content-Type", contentType)
	header.Set(HeaderAPIVersion, c.cfg.APIVersion)
	header.Set(HeaderCorrelationID, correlationID)

	if req.IdempotencyKey != "" {
		header.Set(HeaderIdempotencyKey, req.IdempotencyKey)
	}

	if !req.SkipAuth && c.credentials != nil {
		if tok := c.credentials.CurrentAccessToken(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}
	return header
}

func encodeBody(req *Request) ([]byte, string, error) {
	if req.RawBody != nil {
		ct := req.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		return req.RawBody, ct, nil
	}
	if req.Body == nil {
		return nil, contentTypeJSON, nil
	}
	b, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", err
	}
	return b, contentTypeJSON, nil
}
