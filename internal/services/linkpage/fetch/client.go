// Package fetch reads JSON resources from the backend with retry, a shared
// response cache, and superseding cancellation.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	apperrors "github.com/louisbranch/linkpage/internal/platform/errors"
	"github.com/louisbranch/linkpage/internal/platform/errors/i18n"
	"github.com/louisbranch/linkpage/internal/platform/timeouts"
	"github.com/louisbranch/linkpage/internal/services/linkpage/cache"
	"github.com/louisbranch/linkpage/internal/services/linkpage/credentials"
)

const maxBodyBytes = 4 << 20

// Client issues authenticated reads against the backend.
type Client struct {
	baseURL        *url.URL
	httpClient     *http.Client
	store          credentials.Store
	cache          cache.Cache
	logger         *zap.Logger
	tracer         trace.Tracer
	catalog        *i18n.Catalog
	requestTimeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithCredentials sets the store read for the bearer token on each attempt.
func WithCredentials(store credentials.Store) ClientOption {
	return func(c *Client) { c.store = store }
}

// WithCache sets the response cache shared by resources of this client.
func WithCache(responses cache.Cache) ClientOption {
	return func(c *Client) {
		if responses != nil {
			c.cache = responses
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(tracer trace.Tracer) ClientOption {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithCatalog sets the catalog used for fallback messages.
func WithCatalog(catalog *i18n.Catalog) ClientOption {
	return func(c *Client) {
		if catalog != nil {
			c.catalog = catalog
		}
	}
}

// WithRequestTimeout bounds each HTTP attempt.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.requestTimeout = timeout
		}
	}
}

// NewClient builds a client resolving relative locators against baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL:        base,
		httpClient:     &http.Client{},
		cache:          cache.NewMemory(),
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

// Cache returns the response cache.
func (c *Client) Cache() cache.Cache {
	return c.cache
}

// Catalog returns the message catalog.
func (c *Client) Catalog() *i18n.Catalog {
	return c.catalog
}

// Logger returns the structured logger.
func (c *Client) Logger() *zap.Logger {
	return c.logger
}

// Resolve turns locator into an absolute URL.
func (c *Client) Resolve(locator string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return "", fmt.Errorf("parse locator %q: %w", locator, err)
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}

// Response is a successful read.
type Response struct {
	Status int
	Body   []byte
}

// NoContent reports whether the backend answered 204.
func (r Response) NoContent() bool {
	return r.Status == http.StatusNoContent
}

// Retry controls how many times a failed read is repeated.
type Retry struct {
	// Retries is the number of attempts after the first.
	Retries int
	// Delay is the wait between attempts.
	Delay time.Duration
}

// Get reads locator. Server failures, transport failures, and unexpected
// statuses outside 4xx are retried within policy; 4xx responses fail on the
// first attempt. A cancelled ctx yields a KindCanceled error.
func (c *Client) Get(ctx context.Context, locator string, policy Retry) (Response, error) {
	target, err := c.Resolve(locator)
	if err != nil {
		return Response{}, apperrors.Wrap(apperrors.KindClient, err.Error(), err)
	}
	retries := max(policy.Retries, 0)

	ctx, span := c.tracer.Start(ctx, "fetch.get", trace.WithAttributes(
		attribute.String("linkpage.locator", locator),
		attribute.Int("linkpage.retries", retries),
	))
	defer span.End()

	attempt := 0
	operation := func() (Response, error) {
		attempt++
		resp, err := c.attempt(ctx, target)
		if err != nil && !apperrors.IsRetryable(err) {
			return Response{}, backoff.Permanent(err)
		}
		return resp, err
	}
	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(policy.Delay)),
		backoff.WithMaxTries(uint(retries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("fetch attempt failed",
				zap.String("locator", locator),
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", wait),
				zap.Error(err),
			)
		}),
	)
	span.SetAttributes(attribute.Int("linkpage.attempts", attempt))
	if err != nil {
		err = c.classify(ctx, err)
		if !apperrors.IsCanceled(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return Response{}, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, target string) (Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return Response{}, apperrors.Wrap(apperrors.KindClient, err.Error(), err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(ctx, req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, apperrors.Wrap(apperrors.KindCanceled, "", ctx.Err())
		}
		return Response{}, apperrors.Wrap(apperrors.KindTransport, "", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, apperrors.Wrap(apperrors.KindCanceled, "", ctx.Err())
		}
		return Response{}, apperrors.Wrap(apperrors.KindTransport, "", fmt.Errorf("read response body: %w", err))
	}
	if res.StatusCode == http.StatusNoContent {
		return Response{Status: res.StatusCode}, nil
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return Response{}, apperrors.FromStatus(res.StatusCode, c.detail(body))
	}
	return Response{Status: res.StatusCode, Body: body}, nil
}

// authorize attaches the stored access token. A missing or unreadable token
// leaves the request anonymous.
func (c *Client) authorize(ctx context.Context, req *http.Request) {
	token, err := credentials.AccessToken(ctx, c.store)
	if err != nil {
		c.logger.Warn("read access token", zap.Error(err))
		return
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// detail extracts the human-readable message of an error body.
func (c *Client) detail(body []byte) string {
	if gjson.ValidBytes(body) {
		detail := gjson.GetBytes(body, "detail")
		switch {
		case detail.Type == gjson.String && strings.TrimSpace(detail.String()) != "":
			return detail.String()
		case detail.IsArray():
			if msg := detail.Get("0.msg").String(); msg != "" {
				return msg
			}
		}
	}
	return c.catalog.Format(i18n.CodeRequestFailed)
}

func (c *Client) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apperrors.Wrap(apperrors.KindCanceled, "", ctx.Err())
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(apperrors.KindUnknown, "", err)
}

// Send issues a single unretried request and discards the response body.
// Statuses outside 2xx are reported as classified errors.
func (c *Client) Send(ctx context.Context, method, locator string) error {
	target, err := c.Resolve(locator)
	if err != nil {
		return err
	}
	attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, method, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.authorize(ctx, req)
	res, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransport, "", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return apperrors.FromStatus(res.StatusCode, c.detail(body))
	}
	return nil
}

// Location issues a GET without following redirects and returns the
// redirect target.
func (c *Client) Location(ctx context.Context, locator string) (string, error) {
	target, err := c.Resolve(locator)
	if err != nil {
		return "", err
	}
	attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	noRedirect := *c.httpClient
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	res, err := noRedirect.Do(req)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindTransport, "", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxBodyBytes))

	if res.StatusCode < 300 || res.StatusCode > 399 {
		return "", apperrors.FromStatus(res.StatusCode, fmt.Sprintf("expected redirect, got %d", res.StatusCode))
	}
	location, err := res.Location()
	if err != nil {
		return "", fmt.Errorf("read redirect location: %w", err)
	}
	return location.String(), nil
}
