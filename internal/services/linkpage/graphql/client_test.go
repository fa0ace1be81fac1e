package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/louisbranch/linkpage/internal/platform/errors"
	"github.com/louisbranch/linkpage/internal/platform/errors/i18n"
	"github.com/louisbranch/linkpage/internal/services/linkpage/api"
	"github.com/louisbranch/linkpage/internal/services/linkpage/credentials"
	"github.com/louisbranch/linkpage/internal/services/linkpage/events"
	"github.com/louisbranch/linkpage/internal/testkit/backendfake"
)

type harness struct {
	backend *backendfake.Server
	store   *credentials.Memory
	bus     *events.Bus
	client  *Client
	user    api.User
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	backend := backendfake.New(t)
	store := credentials.NewMemory()
	bus := events.NewBus()
	opts = append([]Option{WithCredentials(store), WithBus(bus), WithHTTPClient(backend.Client())}, opts...)
	client, err := NewClient(backend.GraphQLURL(), opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	user := backend.AddUser("alice", "alice@example.com", "secret")
	return &harness{backend: backend, store: store, bus: bus, client: client, user: user}
}

func (h *harness) signIn(t *testing.T) api.TokenPair {
	t.Helper()
	pair := h.backend.IssueTokens(h.user.ID)
	if err := credentials.SaveTokens(context.Background(), h.store, pair); err != nil {
		t.Fatalf("save tokens: %v", err)
	}
	return pair
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(" "); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

func TestDoSendsQueryAndVariables(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		_, _ = w.Write([]byte(`{"data":{"toggleLink":{"id":"l1","isActive":false}}}`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	var resp struct {
		ToggleLink api.Link `json:"toggleLink"`
	}
	if err := client.DoAnonymous(context.Background(), api.ToggleLinkMutation, map[string]any{"linkId": "l1"}, &resp); err != nil {
		t.Fatalf("DoAnonymous() error = %v", err)
	}
	want := map[string]any{
		"query":     api.ToggleLinkMutation,
		"variables": map[string]any{"linkId": "l1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("request body mismatch (-want +got):\n%s", diff)
	}
	if resp.ToggleLink.ID != "l1" || resp.ToggleLink.IsActive {
		t.Fatalf("resp = %+v", resp.ToggleLink)
	}
}

func TestDoAttachesStoredToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	pair := h.signIn(t)

	var resp struct {
		Me api.User `json:"me"`
	}
	if err := h.client.Do(context.Background(), api.MeQuery, nil, &resp); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.Me.ID != h.user.ID {
		t.Fatalf("me = %+v", resp.Me)
	}
	want := []string{"Bearer " + pair.AccessToken}
	if diff := cmp.Diff(want, h.backend.Authorizations("Me")); diff != "" {
		t.Fatalf("authorization mismatch (-want +got):\n%s", diff)
	}
}

func TestDoAnonymousOmitsToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.signIn(t)

	var resp struct {
		Login api.TokenPair `json:"login"`
	}
	input := map[string]any{"input": api.LoginInput{Email: "alice@example.com", Password: "secret"}}
	if err := h.client.DoAnonymous(context.Background(), api.LoginMutation, input, &resp); err != nil {
		t.Fatalf("DoAnonymous() error = %v", err)
	}
	if resp.Login.AccessToken == "" {
		t.Fatal("expected access token")
	}
	if diff := cmp.Diff([]string{""}, h.backend.Authorizations("Login")); diff != "" {
		t.Fatalf("authorization mismatch (-want +got):\n%s", diff)
	}
}

func TestDoRefreshesExpiredToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	pair := h.signIn(t)
	expired := h.backend.ExpiredAccessToken(h.user.ID)
	if err := h.store.Set(context.Background(), credentials.KeyAccessToken, expired); err != nil {
		t.Fatalf("set token: %v", err)
	}

	invalidated := 0
	h.bus.Subscribe(events.SessionInvalidated, func(events.Event) { invalidated++ })

	var resp struct {
		Links []api.Link `json:"links"`
	}
	if err := h.client.Do(context.Background(), api.LinksQuery, nil, &resp); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got := h.backend.Calls("RefreshToken"); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	if got := h.backend.Calls("Links"); got != 2 {
		t.Fatalf("links calls = %d, want 2", got)
	}
	access, _ := credentials.AccessToken(context.Background(), h.store)
	if access == expired || access == "" {
		t.Fatalf("access token was not replaced: %q", access)
	}
	refresh, _ := credentials.RefreshToken(context.Background(), h.store)
	if refresh == pair.RefreshToken || refresh == "" {
		t.Fatal("refresh token was not rotated")
	}
	if invalidated != 0 {
		t.Fatalf("invalidated = %d", invalidated)
	}
	variables := h.backend.LastVariables("RefreshToken")
	want := map[string]any{"input": map[string]any{"refreshToken": pair.RefreshToken}}
	if diff := cmp.Diff(want, variables); diff != "" {
		t.Fatalf("refresh variables mismatch (-want +got):\n%s", diff)
	}
}

func TestDoInvalidatesWhenRefreshFails(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		prepare func(t *testing.T, h *harness)
	}{
		{
			name: "no refresh token",
			prepare: func(t *testing.T, h *harness) {
				_ = h.store.Set(context.Background(), credentials.KeyAccessToken, "garbage")
			},
		},
		{
			name: "refresh rejected",
			prepare: func(t *testing.T, h *harness) {
				h.signIn(t)
				_ = h.store.Set(context.Background(), credentials.KeyAccessToken, "garbage")
				h.backend.Fail("RefreshToken", backendfake.Failure{Message: backendfake.MessageInvalidRefresh})
			},
		},
		{
			name: "refreshed token rejected",
			prepare: func(t *testing.T, h *harness) {
				h.signIn(t)
				h.backend.Fail("Me", backendfake.Failure{Message: backendfake.MessageInvalidToken})
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, WithCatalog(i18n.GetCatalog("ko")))
			tc.prepare(t, h)
			invalidated := 0
			h.bus.Subscribe(events.SessionInvalidated, func(events.Event) { invalidated++ })

			err := h.client.Do(context.Background(), api.MeQuery, nil, nil)
			if !errors.Is(err, ErrSessionExpired) {
				t.Fatalf("expected ErrSessionExpired, got %v", err)
			}
			if apperrors.KindOf(err) != apperrors.KindUnauthorized {
				t.Fatalf("kind = %q", apperrors.KindOf(err))
			}
			if got := apperrors.UserMessage(err, ""); got != "세션이 만료되었습니다. 다시 로그인해주세요." {
				t.Fatalf("message = %q", got)
			}
			if invalidated != 1 {
				t.Fatalf("invalidated = %d, want 1", invalidated)
			}
			access, _ := credentials.AccessToken(context.Background(), h.store)
			refresh, _ := credentials.RefreshToken(context.Background(), h.store)
			if access != "" || refresh != "" {
				t.Fatal("expected credentials to be cleared")
			}
		})
	}
}

func TestDoSurfacesBusinessErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.signIn(t)

	err := h.client.Do(context.Background(), api.ToggleLinkMutation, map[string]any{"linkId": "00000000-0000-0000-0000-000000000000"}, nil)
	if apperrors.KindOf(err) != apperrors.KindGraphQL {
		t.Fatalf("kind = %q (err %v)", apperrors.KindOf(err), err)
	}
	if apperrors.UserMessage(err, "") != backendfake.MessageLinkNotFound {
		t.Fatalf("message = %q", apperrors.UserMessage(err, ""))
	}
	if h.backend.Calls("RefreshToken") != 0 {
		t.Fatal("business errors must not refresh")
	}
}

func TestExecuteFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		wantKind apperrors.Kind
		wantMsg  string
	}{
		{name: "empty error message", status: 200, body: `{"errors":[{"message":""}]}`, wantKind: apperrors.KindGraphQL, wantMsg: "A GraphQL error occurred."},
		{name: "missing data", status: 200, body: `{"data":null}`, wantKind: apperrors.KindGraphQL, wantMsg: "A GraphQL error occurred."},
		{name: "server error", status: 502, body: `bad gateway`, wantKind: apperrors.KindServer, wantMsg: "The request failed."},
		{name: "detail body", status: 400, body: `{"detail":"nope"}`, wantKind: apperrors.KindClient, wantMsg: "nope"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(srv.Close)

			client, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			var out struct{}
			err = client.DoAnonymous(context.Background(), api.MeQuery, nil, &out)
			if apperrors.KindOf(err) != tc.wantKind {
				t.Fatalf("kind = %q, want %q (err %v)", apperrors.KindOf(err), tc.wantKind, err)
			}
			if got := apperrors.UserMessage(err, ""); got != tc.wantMsg {
				t.Fatalf("message = %q, want %q", got, tc.wantMsg)
			}
		})
	}
}

func TestTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	client, err := NewClient(endpoint)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	err = client.DoAnonymous(context.Background(), api.MeQuery, nil, nil)
	if apperrors.KindOf(err) != apperrors.KindTransport {
		t.Fatalf("kind = %q", apperrors.KindOf(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.DoAnonymous(ctx, api.MeQuery, nil, nil); !apperrors.IsCanceled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestIsAuthMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		message string
		want    bool
	}{
		{message: "인증이 필요합니다.", want: true},
		{message: "유효하지 않은 토큰입니다.", want: true},
		{message: "Invalid token", want: true},
		{message: "Authentication required", want: true},
		{message: "링크를 찾을 수 없습니다.", want: false},
		{message: "유효하지 않은 refresh token입니다.", want: false},
	}
	for _, tc := range tests {
		if got := IsAuthMessage(tc.message); got != tc.want {
			t.Fatalf("IsAuthMessage(%q) = %v, want %v", tc.message, got, tc.want)
		}
	}
}

func TestOperationName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		api.MeQuery:               "Me",
		api.DeleteAccountMutation: "DeleteAccount",
		api.UpdateLinkMutation:    "UpdateLink",
		"{ me { id } }":           "anonymous",
	}
	for query, want := range tests {
		if got := operationName(query); got != want {
			t.Fatalf("operationName(%q) = %q, want %q", query, got, want)
		}
	}
}
