package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/linkpage/internal/services/linkpage/api"
	"github.com/louisbranch/linkpage/internal/services/linkpage/credentials"
	"github.com/louisbranch/linkpage/internal/services/linkpage/events"
)

type fakeAuth struct {
	mu         sync.Mutex
	meCalls    int
	loginCalls int
	regCalls   int
	user       api.User
	meErr      error
	loginErr   error
	regErr     error
	pair       api.TokenPair
	meGate     chan struct{}
}

func (f *fakeAuth) Me(ctx context.Context) (api.User, error) {
	f.mu.Lock()
	f.meCalls++
	gate := f.meGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return api.User{}, ctx.Err()
		}
	}
	return f.user, f.meErr
}

func (f *fakeAuth) Login(context.Context, api.LoginInput) (api.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	return f.pair, f.loginErr
}

func (f *fakeAuth) Register(_ context.Context, in api.RegisterInput) (api.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regCalls++
	return api.User{Username: in.Username, Email: in.Email}, f.regErr
}

func (f *fakeAuth) calls() (me, login, reg int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meCalls, f.loginCalls, f.regCalls
}

type fixture struct {
	auth    *fakeAuth
	store   *credentials.Memory
	marker  *credentials.Marker
	bus     *events.Bus
	session *Session
}

func newFixture(t *testing.T, auth *fakeAuth) *fixture {
	t.Helper()
	marker, err := credentials.NewMarker("https://links.example.com")
	if err != nil {
		t.Fatalf("new marker: %v", err)
	}
	f := &fixture{auth: auth, store: credentials.NewMemory(), marker: marker, bus: events.NewBus()}
	f.session, err = New(Config{Auth: auth, Store: f.store, Marker: marker, Bus: f.bus})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(f.session.Close)
	return f
}

func (f *fixture) storeTokens(t *testing.T) {
	t.Helper()
	if err := credentials.SaveTokens(context.Background(), f.store, api.TokenPair{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("save tokens: %v", err)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Store: credentials.NewMemory()}); err == nil {
		t.Fatal("expected error without authenticator")
	}
	if _, err := New(Config{Auth: &fakeAuth{}}); err == nil {
		t.Fatal("expected error without store")
	}
}

func TestInitialState(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAuth{})
	if got := f.session.Snapshot(); got.State != StateInit || got.Identity != nil {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestBootstrapWithoutCredentialIsAnonymous(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAuth{})
	var states []State
	f.session.Subscribe(func(s Snapshot) { states = append(states, s.State) })

	snap, err := f.session.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if snap.State != StateAnonymous {
		t.Fatalf("state = %v", snap.State)
	}
	if me, _, _ := f.auth.calls(); me != 0 {
		t.Fatalf("identity fetches = %d, want 0", me)
	}
	if len(states) != 2 || states[0] != StateResolving || states[1] != StateAnonymous {
		t.Fatalf("transitions = %v", states)
	}
}

func TestBootstrapWithCredentialResolves(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAuth{user: api.User{ID: "u1", Username: "alice"}})
	f.storeTokens(t)

	snap, err := f.session.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if snap.State != StateResolved || snap.Identity == nil || snap.Identity.ID != "u1" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if me, _, _ := f.auth.calls(); me != 1 {
		t.Fatalf("identity fetches = %d, want 1", me)
	}
}

func TestBootstrapRunsOnce(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	f := newFixture(t, &fakeAuth{user: api.User{ID: "u1"}, meGate: gate})
	f.storeTokens(t)

	var wg sync.WaitGroup
	results := make([]Snapshot, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = f.session.Bootstrap(context.Background())
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	close(gate)
	wg.Wait()

	if me, _, _ := f.auth.calls(); me != 1 {
		t.Fatalf("identity fetches = %d, want 1", me)
	}
	for i, snap := range results {
		if snap.State != StateResolved {
			t.Fatalf("results[%d] = %+v", i, snap)
		}
	}
}

func TestBootstrapFailureClearsCredentials(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAuth{meErr: errors.New("expired")})
	f.storeTokens(t)
	f.marker.Set()

	snap, _ := f.session.Bootstrap(context.Background())
	if snap.State != StateAnonymous || snap.Identity != nil {
		t.Fatalf("snapshot = %+v", snap)
	}
	if access, _ := credentials.AccessToken(context.Background(), f.store); access != "" {
		t.Fatal("expected access token to be cleared")
	}
	if refresh, _ := credentials.RefreshToken(context.Background(), f.store); refresh != "" {
		t.Fatal("expected refresh token to be cleared")
	}
	if f.marker.Present() {
		t.Fatal("expected marker to be cleared")
	}
}

func TestBootstrapCanceledKeepsCredentials(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAuth{meGate: make(chan struct{})})
	f.storeTokens(t)
	f.marker.Set()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Snapshot, 1)
	go func() {
		snap, _ := f.session.Bootstrap(ctx)
		done <- snap
	}()
	for {
		if me, _, _ := f.auth.calls(); me == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	var snap Snapshot
	select {
	case snap = <-done:
	case <-time.After(time.Second):
		t.Fatal("bootstrap did not return after cancel")
	}
	if snap.State != StateAnonymous || snap.Identity != nil {
		t.Fatalf("snapshot = %+v", snap)
	}
	if access, _ := credentials.AccessToken(context.Background(), f.store); access != "a" {
		t.Fatalf("access token = %q, want it kept", access)
	}
	if refresh, _ := credentials.RefreshToken(context.Background(), f.store); refresh != "r" {
		t.Fatalf("refresh token = %q, want it kept", refresh)
	}
	if !f.marker.Present() {
		t.Fatal("expected marker to be kept")
	}
}

func TestSignInStoresTokensAndResolves(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAuth{
		user: api.User{ID: "u1"},
		pair: api.TokenPair{AccessToken: "access", RefreshToken: "refresh"},
	})

	if err := f.session.SignIn(context.Background(), "alice@example.com", "secret"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if snap := f.session.Snapshot(); snap.State != StateResolved || snap.Identity.ID != "u1" {
		t.Fatalf("snapshot = %+v", snap)
	}
	access, _ := credentials.AccessToken(context.Background(), f.store)
	refresh, _ := credentials.RefreshToken(context.Background(), f.store)
	if access != "access" || refresh != "refresh" {
		t.Fatalf("tokens = %q, %q", access, refresh)
	}
	if !f.marker.Present() {
		t.Fatal("expected marker to be set")
	}
	if me, login, _ := f.auth.calls(); me != 1 || login != 1 {
		t.Fatalf("calls me=%d login=%d", me, login)
	}
	if snap, err := f.session.Await(context.Background()); err != nil || snap.State != StateResolved {
		t.Fatalf("Await() = %+v, %v", snap, err)
	}
}

func TestSignInFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAuth{loginErr: errors.New("bad credentials")})
	if err := f.session.SignIn(context.Background(), "alice@example.com", "wrong"); err == nil {
		t.Fatal("expected error")
	}
	if me, login, _ := f.auth.calls(); me != 0 || login != 1 {
		t.Fatalf("calls me=%d login=%d", me, login)
	}
	if f.marker.Present() {
		t.Fatal("marker must not be set")
	}
	if got := f.session.Snapshot().State; got != StateInit {
		t.Fatalf("state = %v", got)
	}
}

func TestSignUpRegistersThenSignsIn(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAuth{
		user: api.User{ID: "u2", Username: "bob"},
		pair: api.TokenPair{AccessToken: "access", RefreshToken: "refresh"},
	})
	err := f.session.SignUp(context.Background(), api.RegisterInput{Username: "bob", Email: "bob@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if me, login, reg := f.auth.calls(); me != 1 || login != 1 || reg != 1 {
		t.Fatalf("calls me=%d login=%d register=%d", me, login, reg)
	}
	if got := f.session.Snapshot().State; got != StateResolved {
		t.Fatalf("state = %v", got)
	}
}

func TestSignUpStopsOnRegisterFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAuth{regErr: errors.New("taken")})
	if err := f.session.SignUp(context.Background(), api.RegisterInput{Username: "bob"}); err == nil {
		t.Fatal("expected error")
	}
	if _, login, _ := f.auth.calls(); login != 0 {
		t.Fatalf("login calls = %d", login)
	}
}

func TestSignOutIsImmediate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAuth{user: api.User{ID: "u1"}, pair: api.TokenPair{AccessToken: "a", RefreshToken: "r"}})
	if err := f.session.SignIn(context.Background(), "a@example.com", "pw"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if err := f.session.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if snap := f.session.Snapshot(); snap.State != StateAnonymous || snap.Identity != nil {
		t.Fatalf("snapshot = %+v", snap)
	}
	if access, _ := credentials.AccessToken(context.Background(), f.store); access != "" {
		t.Fatal("expected tokens to be cleared")
	}
	if f.marker.Present() {
		t.Fatal("expected marker to be cleared")
	}
	if me, _, _ := f.auth.calls(); me != 1 {
		t.Fatalf("sign out must not fetch identity, me calls = %d", me)
	}
}

func TestInvalidationForcesAnonymous(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAuth{user: api.User{ID: "u1"}})
	f.storeTokens(t)
	f.marker.Set()
	if snap, _ := f.session.Bootstrap(context.Background()); snap.State != StateResolved {
		t.Fatalf("state = %v", snap.State)
	}

	f.bus.Publish(events.SessionInvalidated)

	if snap := f.session.Snapshot(); snap.State != StateAnonymous || snap.Identity != nil {
		t.Fatalf("snapshot = %+v", snap)
	}
	if f.marker.Present() {
		t.Fatal("expected marker to be cleared")
	}
}

func TestInvalidationDuringResolveWins(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	f := newFixture(t, &fakeAuth{user: api.User{ID: "u1"}, meGate: gate})
	f.storeTokens(t)

	done := make(chan Snapshot, 1)
	go func() {
		snap, _ := f.session.Bootstrap(context.Background())
		done <- snap
	}()
	for f.session.Snapshot().State != StateResolving {
		time.Sleep(time.Millisecond)
	}
	f.bus.Publish(events.SessionInvalidated)
	close(gate)

	if snap := <-done; snap.State != StateAnonymous {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestCloseStopsInvalidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAuth{user: api.User{ID: "u1"}})
	f.storeTokens(t)
	_, _ = f.session.Bootstrap(context.Background())
	f.session.Close()
	f.bus.Publish(events.SessionInvalidated)

	if got := f.session.Snapshot().State; got != StateResolved {
		t.Fatalf("state = %v", got)
	}
}

func TestUpdateIdentity(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAuth{user: api.User{ID: "u1", DisplayName: "Old"}})
	f.session.UpdateIdentity(api.User{ID: "u1", DisplayName: "Ignored"})
	if f.session.Snapshot().Identity != nil {
		t.Fatal("update before resolution must be ignored")
	}

	f.storeTokens(t)
	_, _ = f.session.Bootstrap(context.Background())
	f.session.UpdateIdentity(api.User{ID: "u1", DisplayName: "New"})
	if got := f.session.Snapshot().Identity.DisplayName; got != "New" {
		t.Fatalf("display name = %q", got)
	}
}

func TestAwaitHonorsContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeAuth{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.session.Await(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Await() error = %v", err)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := map[State]string{
		StateInit:      "init",
		StateResolving: "resolving",
		StateResolved:  "resolved",
		StateAnonymous: "anonymous",
		State(9):       "state(9)",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Fatalf("String() = %q, want %q", got, want)
		}
	}
}
