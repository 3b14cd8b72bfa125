// Package client talks to the restaurant backend REST API.
//
// Client is the authenticated transport: it injects the bearer token,
// carries the session's backend cookies, and hides a single access token
// expiry from callers by refreshing once on 401 and repeating the request.
// CashClient, CatalogClient, OrdersClient and AuthClient are typed wrappers
// over it.
package client

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

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/infra/observability"
	"github.com/boddenberg/cash-console-bfa/internal/infra/resilience"
	"github.com/boddenberg/cash-console-bfa/internal/port"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("client")

const serviceName = "backend"

// Request describes one backend call.
type Request struct {
	// Operation labels metrics and spans; defaults to Method.
	Operation string
	Method    string
	Path      string
	Query     url.Values
	// Body is JSON-encoded when non-nil.
	Body    any
	Headers map[string]string
	Cookies []domain.StoredCookie
}

// Response is a successful (2xx) backend answer.
type Response struct {
	Status int
	Header http.Header
	Raw    []byte
	// Payload is the decoded JSON body, or the raw text when the body is
	// not JSON. Numbers decode as json.Number.
	Payload any
	// NoContent is set for 204 and empty bodies, so "nothing returned" is
	// never confused with an empty object.
	NoContent bool
	Cookies   []domain.StoredCookie
}

// Client performs authenticated calls against the backend. It holds no
// per-call state and is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     port.TokenSource
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// New creates an unauthenticated Client. Use WithTokens to bind a session.
func New(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, bulkhead *resilience.Bulkhead, metrics *observability.Metrics, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		bulkhead:   bulkhead,
		metrics:    metrics,
		logger:     logger,
	}
}

// WithTokens returns a copy of c that authenticates with tokens. The
// transport, breaker and bulkhead stay shared.
func (c *Client) WithTokens(tokens port.TokenSource) *Client {
	cp := *c
	cp.tokens = tokens
	return &cp
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *gobreaker.CircuitBreaker {
	return c.cb
}

// Do executes req. A 401 triggers exactly one Refresh; when it yields a
// token the request is repeated once and that outcome is returned as is.
// Every other failure propagates immediately.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	op := req.Operation
	if op == "" {
		op = req.Method
	}

	ctx, span := tracer.Start(ctx, "Client.Do")
	defer span.End()
	span.SetAttributes(
		attribute.String("backend.operation", op),
		attribute.String("http.method", req.Method),
		attribute.String("http.path", req.Path),
	)

	var body []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", op, err)
		}
		body = b
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, op, req, body, token)
	if err == nil || c.tokens == nil {
		recordSpanError(span, err)
		return resp, err
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		recordSpanError(span, err)
		return nil, err
	}

	newToken, refreshErr := c.tokens.Refresh(ctx)
	switch {
	case refreshErr != nil:
		c.metrics.IncrTokenRefresh("error")
		c.logger.Warn("client: token refresh failed",
			zap.String("operation", op),
			zap.Error(refreshErr),
		)
		recordSpanError(span, err)
		return nil, err
	case newToken == "":
		c.metrics.IncrTokenRefresh("refused")
		c.logger.Debug("client: token refresh refused", zap.String("operation", op))
		recordSpanError(span, err)
		return nil, err
	}

	c.metrics.IncrTokenRefresh("success")
	span.AddEvent("token refreshed")

	resp, err = c.send(ctx, op, req, body, newToken)
	recordSpanError(span, err)
	return resp, err
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	return token, nil
}

// send runs one attempt under the bulkhead and the circuit breaker.
func (c *Client) send(ctx context.Context, op string, req Request, body []byte, token string) (*Response, error) {
	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.bulkhead.Release()

	start := time.Now()
	result, err := c.cb.Execute(func() (any, error) {
		return c.roundTrip(ctx, req, body, token)
	})
	c.metrics.RecordBackendCall(op, time.Since(start))

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("client: circuit open", zap.String("operation", op))
		return nil, &domain.ErrCircuitOpen{Service: serviceName}
	}
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			c.metrics.IncrBackendError(apiErr.Status)
		} else {
			c.metrics.IncrBackendError(0)
		}
		return nil, err
	}
	return result.(*Response), nil
}

func (c *Client) roundTrip(ctx context.Context, req Request, body []byte, token string) (*Response, error) {
	target, err := c.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for _, ck := range c.cookies(ctx, req.Cookies) {
		httpReq.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("client: request failed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Error(err),
		)
		return nil, &domain.ErrExternalService{Service: serviceName, Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: serviceName, Err: fmt.Errorf("read response body: %w", err)}
	}

	payload := decodePayload(raw)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		apiErr := newAPIError(httpResp, req.Method, req.Path, raw, payload)
		c.logger.Warn("client: non-2xx response",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("status", httpResp.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return nil, apiErr
	}

	c.logger.Debug("client: request OK",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", httpResp.StatusCode),
	)

	return &Response{
		Status:    httpResp.StatusCode,
		Header:    httpResp.Header,
		Raw:       raw,
		Payload:   payload,
		NoContent: httpResp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0,
		Cookies:   storedCookies(httpResp.Cookies()),
	}, nil
}

// cookies merges explicit request cookies with the session's, request first.
func (c *Client) cookies(ctx context.Context, explicit []domain.StoredCookie) []domain.StoredCookie {
	src, ok := c.tokens.(port.CookieSource)
	if !ok {
		return explicit
	}
	out := append([]domain.StoredCookie{}, explicit...)
	seen := make(map[string]bool, len(explicit))
	for _, ck := range explicit {
		seen[ck.Name] = true
	}
	for _, ck := range src.Cookies(ctx) {
		if !seen[ck.Name] {
			out = append(out, ck)
		}
	}
	return out
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("build url for %s: %w", path, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// decodePayload attempts JSON and falls back to the raw text.
func decodePayload(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return string(raw)
	}
	return v
}

func storedCookies(cookies []*http.Cookie) []domain.StoredCookie {
	if len(cookies) == 0 {
		return nil
	}
	out := make([]domain.StoredCookie, 0, len(cookies))
	for _, ck := range cookies {
		out = append(out, domain.StoredCookie{Name: ck.Name, Value: ck.Value, Path: ck.Path})
	}
	return out
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// DecodeJSON unmarshals resp into out. It returns false without touching
// out when the backend answered with no content.
func DecodeJSON(resp *Response, out any) (bool, error) {
	if resp == nil || resp.NoContent {
		return false, nil
	}
	if err := json.Unmarshal(resp.Raw, out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return true, nil
}

// IsBackendFailure reports whether err means the backend itself is in
// trouble (transport failure or 5xx). Business rejections are not failures
// for the circuit breaker.
func IsBackendFailure(err error) bool {
	var ext *domain.ErrExternalService
	if errors.As(err, &ext) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return false
}
