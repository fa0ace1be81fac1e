package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/louisbranch/linkpage/internal/platform/errors"
	"github.com/louisbranch/linkpage/internal/platform/errors/i18n"
	"github.com/louisbranch/linkpage/internal/platform/timeouts"
	"github.com/louisbranch/linkpage/internal/services/linkpage/cache"
)

// ErrClosed is returned by runs started after Close.
var ErrClosed = errors.New("resource is closed")

// Options configures a Resource.
type Options struct {
	// Retries is the number of additional attempts after a retryable failure.
	Retries int
	// RetryDelay is the wait between attempts. Defaults to one second.
	RetryDelay time.Duration
	// BypassCache skips both reading and writing the shared cache.
	BypassCache bool
}

// State is a point-in-time view of a Resource.
type State[T any] struct {
	Data    T
	HasData bool
	Loading bool
	// Err is the user-facing message of the last failed run.
	Err string
}

// Resource is a live view of one locator. Each run supersedes the previous
// one: the older run is cancelled and its result, if any, is discarded.
type Resource[T any] struct {
	client *Client
	opts   Options

	mu         sync.Mutex
	locator    string
	state      State[T]
	generation uint64
	cancel     context.CancelFunc
	closed     bool
	listenerID uint64
	listeners  map[uint64]func(State[T])
}

// New creates a resource for locator. A cached value for locator seeds the
// initial state unless the cache is bypassed. No request is issued until
// Load is called.
func New[T any](client *Client, locator string, opts Options) *Resource[T] {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = timeouts.RetryDelay
	}
	r := &Resource[T]{
		client:    client,
		opts:      opts,
		locator:   locator,
		listeners: make(map[uint64]func(State[T])),
	}
	r.state = r.seed(locator)
	return r
}

func (r *Resource[T]) seed(locator string) State[T] {
	if !r.opts.BypassCache {
		if value, ok := cache.Lookup[T](r.client.Cache(), locator); ok {
			return State[T]{Data: value, HasData: true}
		}
	}
	return State[T]{Loading: true}
}

// Locator returns the current locator.
func (r *Resource[T]) Locator() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locator
}

// State returns the current state.
func (r *Resource[T]) State() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Subscribe registers fn to receive every committed state. The returned
// function removes it.
func (r *Resource[T]) Subscribe(fn func(State[T])) func() {
	if fn == nil {
		return func() {}
	}
	r.mu.Lock()
	r.listenerID++
	id := r.listenerID
	r.listeners[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Load fetches the locator. When the cache already holds a value the state
// keeps showing it without entering Loading while the request is in flight.
//
// Load blocks until the run finishes. It returns the classified failure the
// state now shows, or nil on success, cancellation, or supersession.
func (r *Resource[T]) Load(ctx context.Context) error {
	return r.run(ctx, false)
}

// Refetch clears the error and always performs a round trip.
func (r *Resource[T]) Refetch(ctx context.Context) error {
	return r.run(ctx, true)
}

// SetLocator points the resource at locator and loads it. A cached value for
// the new locator is shown immediately.
func (r *Resource[T]) SetLocator(ctx context.Context, locator string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.locator != locator {
		r.locator = locator
		r.state = r.seed(locator)
	}
	r.mu.Unlock()
	return r.run(ctx, false)
}

// Close cancels any in-flight run. Later runs return ErrClosed.
func (r *Resource[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.generation++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Resource[T]) run(ctx context.Context, force bool) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.generation++
	generation := r.generation
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	locator := r.locator

	r.state.Err = ""
	if force || r.opts.BypassCache || !r.client.Cache().Has(locator) {
		r.state.Loading = true
	}
	started := r.state
	listeners := r.snapshotListeners()
	r.mu.Unlock()
	defer cancel()

	notify(listeners, started)

	value, err := r.fetch(runCtx, locator)

	r.mu.Lock()
	if generation != r.generation {
		r.mu.Unlock()
		r.client.Logger().Debug("discard superseded fetch", zap.String("locator", locator))
		return nil
	}
	r.cancel = nil
	if apperrors.IsCanceled(err) {
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		r.state.Err = apperrors.UserMessage(err, r.client.Catalog().Format(i18n.CodeUnknown))
	} else {
		if !r.opts.BypassCache {
			r.client.Cache().Set(locator, value)
		}
		r.state.Data = value
		r.state.HasData = true
		r.state.Err = ""
	}
	r.state.Loading = false
	committed := r.state
	listeners = r.snapshotListeners()
	r.mu.Unlock()

	notify(listeners, committed)
	return err
}

func (r *Resource[T]) fetch(ctx context.Context, locator string) (T, error) {
	var value T
	resp, err := r.client.Get(ctx, locator, Retry{Retries: r.opts.Retries, Delay: r.opts.RetryDelay})
	if err != nil {
		return value, err
	}
	if resp.NoContent() || len(resp.Body) == 0 {
		return value, nil
	}
	if err := json.Unmarshal(resp.Body, &value); err != nil {
		r.client.Logger().Warn("decode response", zap.String("locator", locator), zap.Error(err))
		return value, apperrors.Wrap(apperrors.KindUnknown, "", err)
	}
	return value, nil
}

func (r *Resource[T]) snapshotListeners() []func(State[T]) {
	listeners := make([]func(State[T]), 0, len(r.listeners))
	for _, fn := range r.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}

func notify[T any](listeners []func(State[T]), state State[T]) {
	for _, fn := range listeners {
		fn(state)
	}
}
