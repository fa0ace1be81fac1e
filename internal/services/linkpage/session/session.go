// Package session resolves who the client is signed in as and keeps that
// answer current across sign-in, sign-out, and server-side invalidation.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/louisbranch/linkpage/internal/platform/errors"
	"github.com/louisbranch/linkpage/internal/services/linkpage/api"
	"github.com/louisbranch/linkpage/internal/services/linkpage/credentials"
	"github.com/louisbranch/linkpage/internal/services/linkpage/events"
)

// State is a session lifecycle stage.
type State int

const (
	// StateInit means no credential check has run yet.
	StateInit State = iota
	// StateResolving means a credential check or identity fetch is in flight.
	StateResolving
	// StateResolved means the identity is known.
	StateResolved
	// StateAnonymous means nobody is signed in.
	StateAnonymous
)

// String returns the lowercase name of s.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateAnonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is the observable session.
type Snapshot struct {
	State    State
	Identity *api.User
}

// Authenticator performs the account operations a session needs.
type Authenticator interface {
	Me(ctx context.Context) (api.User, error)
	Login(ctx context.Context, in api.LoginInput) (api.TokenPair, error)
	Register(ctx context.Context, in api.RegisterInput) (api.User, error)
}

// Config wires a Session.
type Config struct {
	Auth   Authenticator
	Store  credentials.Store
	Marker *credentials.Marker
	Bus    *events.Bus
	Logger *zap.Logger
}

// Session is the client's sign-in state machine. It is safe for concurrent
// use.
type Session struct {
	auth   Authenticator
	store  credentials.Store
	marker *credentials.Marker
	logger *zap.Logger

	mu           sync.Mutex
	snapshot     Snapshot
	generation   uint64
	bootstrapped bool
	listenerID   uint64
	listeners    map[uint64]func(Snapshot)

	resolved     chan struct{}
	resolvedOnce sync.Once
	unsubscribe  func()
}

// New creates a session in StateInit subscribed to session invalidation.
func New(cfg Config) (*Session, error) {
	if cfg.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("credential store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		auth:      cfg.Auth,
		store:     cfg.Store,
		marker:    cfg.Marker,
		logger:    logger,
		listeners: make(map[uint64]func(Snapshot)),
		resolved:  make(chan struct{}),
	}
	s.unsubscribe = cfg.Bus.Subscribe(events.SessionInvalidated, func(events.Event) {
		s.invalidate()
	})
	return s, nil
}

// Close stops listening for invalidation.
func (s *Session) Close() {
	s.unsubscribe()
}

// Snapshot returns the current session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Subscribe registers fn for every state change and returns a function that
// removes it.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	s.listenerID++
	id := s.listenerID
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Await blocks until the first resolution finished or ctx is done.
func (s *Session) Await(ctx context.Context) (Snapshot, error) {
	select {
	case <-s.resolved:
		return s.Snapshot(), nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Bootstrap resolves the stored credential once. Without an access token the
// session becomes anonymous without contacting the backend. With one, a
// single identity fetch decides between resolved and anonymous; a failed
// fetch clears the stored credentials. Later calls wait for and return the
// first outcome.
func (s *Session) Bootstrap(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.bootstrapped {
		s.mu.Unlock()
		return s.Await(ctx)
	}
	s.bootstrapped = true
	s.mu.Unlock()

	generation := s.begin()
	token, err := credentials.AccessToken(ctx, s.store)
	if err != nil {
		s.logger.Warn("read access token", zap.Error(err))
	}
	if token == "" {
		s.commit(generation, Snapshot{State: StateAnonymous})
		return s.Snapshot(), nil
	}
	_ = s.resolve(ctx, generation)
	return s.Snapshot(), nil
}

// SignIn exchanges email and password for tokens, stores them, sets the
// logged-in marker, and fetches the identity. It is attempted once.
func (s *Session) SignIn(ctx context.Context, email, password string) error {
	pair, err := s.auth.Login(ctx, api.LoginInput{Email: email, Password: password})
	if err != nil {
		return err
	}
	if err := credentials.SaveTokens(ctx, s.store, pair); err != nil {
		return err
	}
	s.marker.Set()

	s.mu.Lock()
	s.bootstrapped = true
	s.mu.Unlock()
	generation := s.begin()
	return s.resolve(ctx, generation)
}

// SignUp registers an account and then signs in with its credentials.
func (s *Session) SignUp(ctx context.Context, in api.RegisterInput) error {
	if _, err := s.auth.Register(ctx, in); err != nil {
		return err
	}
	return s.SignIn(ctx, in.Email, in.Password)
}

// SignOut clears credentials and the marker and becomes anonymous. It does
// not contact the backend.
func (s *Session) SignOut(ctx context.Context) error {
	err := credentials.ClearTokens(ctx, s.store)
	s.marker.Clear()
	s.mu.Lock()
	s.bootstrapped = true
	s.generation++
	generation := s.generation
	s.mu.Unlock()
	s.commit(generation, Snapshot{State: StateAnonymous})
	return err
}

// UpdateIdentity replaces the identity after a profile edit. It has no
// effect unless the session is resolved.
func (s *Session) UpdateIdentity(user api.User) {
	s.mu.Lock()
	if s.snapshot.State != StateResolved {
		s.mu.Unlock()
		return
	}
	generation := s.generation
	s.mu.Unlock()
	s.commit(generation, Snapshot{State: StateResolved, Identity: &user})
}

func (s *Session) invalidate() {
	s.logger.Info("session invalidated")
	s.marker.Clear()
	s.mu.Lock()
	s.generation++
	generation := s.generation
	s.mu.Unlock()
	s.commit(generation, Snapshot{State: StateAnonymous})
}

// begin enters StateResolving under a new generation.
func (s *Session) begin() uint64 {
	s.mu.Lock()
	s.generation++
	generation := s.generation
	s.mu.Unlock()
	s.commit(generation, Snapshot{State: StateResolving})
	return generation
}

// resolve fetches the identity for generation. A failure clears the stored
// credentials and leaves the session anonymous; a cancelled fetch keeps the
// credentials for the next run.
func (s *Session) resolve(ctx context.Context, generation uint64) error {
	user, err := s.auth.Me(ctx)
	if err != nil && (ctx.Err() != nil || apperrors.IsCanceled(err)) {
		s.logger.Debug("identity fetch canceled", zap.Error(err))
		s.commit(generation, Snapshot{State: StateAnonymous})
		return err
	}
	if err != nil {
		s.logger.Info("identity fetch failed", zap.Error(err))
		if clearErr := credentials.ClearTokens(context.WithoutCancel(ctx), s.store); clearErr != nil {
			s.logger.Warn("clear credentials", zap.Error(clearErr))
		}
		s.marker.Clear()
		s.commit(generation, Snapshot{State: StateAnonymous})
		return err
	}
	s.commit(generation, Snapshot{State: StateResolved, Identity: &user})
	return nil
}

// commit publishes next when generation is still current. Leaving
// StateResolving releases Await.
func (s *Session) commit(generation uint64, next Snapshot) {
	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		return
	}
	s.snapshot = next
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	if next.State == StateResolved || next.State == StateAnonymous {
		s.resolvedOnce.Do(func() { close(s.resolved) })
	}
	for _, fn := range listeners {
		fn(next)
	}
}
