// Package graphql issues operations against the backend's GraphQL endpoint,
// refreshing expired credentials once before giving up on a session.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	apperrors "github.com/louisbranch/linkpage/internal/platform/errors"
	"github.com/louisbranch/linkpage/internal/platform/errors/i18n"
	"github.com/louisbranch/linkpage/internal/platform/timeouts"
	"github.com/louisbranch/linkpage/internal/services/linkpage/api"
	"github.com/louisbranch/linkpage/internal/services/linkpage/credentials"
	"github.com/louisbranch/linkpage/internal/services/linkpage/events"
)

const maxBodyBytes = 4 << 20

// ErrSessionExpired is the cause of failures that invalidated the session.
var ErrSessionExpired = errors.New("session expired")

// authMarkers are substrings of backend messages that signal a missing or
// rejected access token.
var authMarkers = []string{
	"인증이 필요합니다",
	"유효하지 않은 토큰",
	"authentication required",
	"invalid token",
}

// IsAuthMessage reports whether a backend error message signals an
// authentication failure.
func IsAuthMessage(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Client posts GraphQL operations.
type Client struct {
	endpoint       string
	httpClient     *http.Client
	store          credentials.Store
	bus            *events.Bus
	logger         *zap.Logger
	tracer         trace.Tracer
	catalog        *i18n.Catalog
	requestTimeout time.Duration

	refreshMu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithCredentials sets the token store.
func WithCredentials(store credentials.Store) Option {
	return func(c *Client) { c.store = store }
}

// WithBus sets the bus that receives session invalidation.
func WithBus(bus *events.Bus) Option {
	return func(c *Client) { c.bus = bus }
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithCatalog sets the catalog used for fallback messages.
func WithCatalog(catalog *i18n.Catalog) Option {
	return func(c *Client) {
		if catalog != nil {
			c.catalog = catalog
		}
	}
}

// WithRequestTimeout bounds each HTTP round trip.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.requestTimeout = timeout
		}
	}
}

// NewClient builds a client for endpoint.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("graphql endpoint is required")
	}
	c := &Client{
		endpoint:       endpoint,
		httpClient:     &http.Client{},
		logger:         zap.NewNop(),
		tracer:         noop.NewTracerProvider().Tracer(""),
		catalog:        i18n.GetCatalog(i18n.BaseLocale),
		requestTimeout: timeouts.HTTPRequest,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Catalog returns the message catalog.
func (c *Client) Catalog() *i18n.Catalog {
	return c.catalog
}

// Do runs an authenticated operation and decodes its data object into out.
//
// An authentication failure triggers one token refresh and one retry. When
// no refresh is possible, or the retry is rejected as well, the stored
// credentials are cleared, the session invalidation event is published, and
// the returned error wraps ErrSessionExpired.
func (c *Client) Do(ctx context.Context, query string, variables map[string]any, out any) error {
	ctx, span := c.start(ctx, query, true)
	defer span.End()

	err := c.do(ctx, query, variables, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// DoAnonymous runs an operation without credentials and without refresh.
func (c *Client) DoAnonymous(ctx context.Context, query string, variables map[string]any, out any) error {
	ctx, span := c.start(ctx, query, false)
	defer span.End()

	err := c.execute(ctx, query, variables, "", out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) do(ctx context.Context, query string, variables map[string]any, out any) error {
	token, err := credentials.AccessToken(ctx, c.store)
	if err != nil {
		c.logger.Warn("read access token", zap.Error(err))
	}
	err = c.execute(ctx, query, variables, token, out)
	if apperrors.KindOf(err) != apperrors.KindUnauthorized {
		return err
	}

	refreshed, refreshErr := c.refresh(ctx, token)
	if refreshErr != nil {
		if apperrors.IsCanceled(refreshErr) {
			return refreshErr
		}
		return c.expire(ctx, query, refreshErr)
	}
	err = c.execute(ctx, query, variables, refreshed, out)
	if apperrors.KindOf(err) == apperrors.KindUnauthorized {
		return c.expire(ctx, query, err)
	}
	return err
}

// expire invalidates the session after authentication failed for good.
func (c *Client) expire(ctx context.Context, query string, cause error) error {
	c.logger.Info("session invalidated", zap.String("operation", operationName(query)), zap.Error(cause))
	c.invalidate(ctx)
	return apperrors.Wrap(apperrors.KindUnauthorized, c.catalog.Format(i18n.CodeSessionExpired), ErrSessionExpired)
}

// refresh exchanges the stored refresh token for a new pair. Concurrent
// callers that failed with the same access token share one exchange.
func (c *Client) refresh(ctx context.Context, failed string) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	current, err := credentials.AccessToken(ctx, c.store)
	if err != nil {
		return "", err
	}
	if current != "" && current != failed {
		return current, nil
	}
	refreshToken, err := credentials.RefreshToken(ctx, c.store)
	if err != nil {
		return "", err
	}
	if refreshToken == "" {
		return "", errors.New("no refresh token stored")
	}

	var resp struct {
		RefreshToken api.TokenPair `json:"refreshToken"`
	}
	variables := map[string]any{"input": map[string]any{"refreshToken": refreshToken}}
	if err := c.execute(ctx, api.RefreshTokenMutation, variables, "", &resp); err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	if err := credentials.SaveTokens(ctx, c.store, resp.RefreshToken); err != nil {
		return "", err
	}
	c.logger.Debug("access token refreshed")
	return resp.RefreshToken.AccessToken, nil
}

func (c *Client) invalidate(ctx context.Context) {
	if err := credentials.ClearTokens(context.WithoutCancel(ctx), c.store); err != nil {
		c.logger.Warn("clear credentials", zap.Error(err))
	}
	c.bus.Publish(events.SessionInvalidated)
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

func (c *Client) execute(ctx context.Context, query string, variables map[string]any, token string, out any) error {
	payload, err := json.Marshal(request{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("encode graphql request: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(ctx, err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return c.transportError(ctx, fmt.Errorf("read graphql response: %w", err))
	}

	if !gjson.ValidBytes(body) {
		if res.StatusCode == http.StatusUnauthorized {
			return apperrors.FromStatus(res.StatusCode, c.catalog.Format(i18n.CodeSessionExpired))
		}
		return apperrors.FromStatus(res.StatusCode, c.catalog.Format(i18n.CodeRequestFailed))
	}
	if errs := gjson.GetBytes(body, "errors"); errs.IsArray() && len(errs.Array()) > 0 {
		message := errs.Get("0.message").String()
		if strings.TrimSpace(message) == "" {
			message = c.catalog.Format(i18n.CodeGraphQL)
		}
		if IsAuthMessage(message) {
			return &apperrors.Error{Kind: apperrors.KindUnauthorized, Status: http.StatusUnauthorized, Message: message}
		}
		return &apperrors.Error{Kind: apperrors.KindGraphQL, Status: res.StatusCode, Message: message}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		detail := gjson.GetBytes(body, "detail").String()
		if detail == "" {
			detail = c.catalog.Format(i18n.CodeRequestFailed)
		}
		return apperrors.FromStatus(res.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	data := gjson.GetBytes(body, "data")
	if !data.Exists() || data.Type == gjson.Null {
		return &apperrors.Error{Kind: apperrors.KindGraphQL, Status: res.StatusCode, Message: c.catalog.Format(i18n.CodeGraphQL)}
	}
	if err := json.Unmarshal([]byte(data.Raw), out); err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, c.catalog.Format(i18n.CodeUnknown), fmt.Errorf("decode graphql data: %w", err))
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apperrors.Wrap(apperrors.KindCanceled, "", ctx.Err())
	}
	return apperrors.Wrap(apperrors.KindTransport, c.catalog.Format(i18n.CodeUnknown), err)
}

func (c *Client) start(ctx context.Context, query string, authenticated bool) (context.Context, trace.Span) {
	name := operationName(query)
	return c.tracer.Start(ctx, "graphql."+name, trace.WithAttributes(
		attribute.String("graphql.operation.name", name),
		attribute.Bool("linkpage.authenticated", authenticated),
	))
}

// operationName returns the declared name of the first operation in query.
func operationName(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return r == ' ' || r == '\n' || r == '\t' || r == '(' || r == '{'
	})
	for i, field := range fields {
		if (field == "query" || field == "mutation") && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return "anonymous"
}
