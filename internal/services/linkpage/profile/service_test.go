package profile

import (
	"context"
	"errors"
	"net/http"
	"testing"

	apperrors "github.com/louisbranch/linkpage/internal/platform/errors"
	"github.com/louisbranch/linkpage/internal/services/linkpage/api"
	"github.com/louisbranch/linkpage/internal/services/linkpage/cache"
	"github.com/louisbranch/linkpage/internal/services/linkpage/credentials"
	"github.com/louisbranch/linkpage/internal/services/linkpage/fetch"
	"github.com/louisbranch/linkpage/internal/services/linkpage/graphql"
	"github.com/louisbranch/linkpage/internal/testkit/backendfake"
)

type recordingIdentity struct {
	users []api.User
}

func (r *recordingIdentity) UpdateIdentity(user api.User) {
	r.users = append(r.users, user)
}

func newTestService(t *testing.T, opts ...Option) (*Service, *backendfake.Server, api.User) {
	t.Helper()
	ctx := context.Background()
	backend := backendfake.New(t)
	user := backend.AddUser("alice", "alice@example.com", "secret")
	store := credentials.NewMemory()
	if err := credentials.SaveTokens(ctx, store, backend.IssueTokens(user.ID)); err != nil {
		t.Fatalf("save tokens: %v", err)
	}
	rest, err := fetch.NewClient(backend.URL, fetch.WithHTTPClient(backend.Client()), fetch.WithCache(cache.NewMemory()))
	if err != nil {
		t.Fatalf("new fetch client: %v", err)
	}
	gql, err := graphql.NewClient(backend.GraphQLURL(), graphql.WithHTTPClient(backend.Client()), graphql.WithCredentials(store))
	if err != nil {
		t.Fatalf("new graphql client: %v", err)
	}
	return NewService(gql, rest, opts...), backend, user
}

func TestUpdateForwardsIdentity(t *testing.T) {
	t.Parallel()

	identity := &recordingIdentity{}
	svc, _, user := newTestService(t, WithIdentity(identity))
	ctx := context.Background()

	name := "Alice Kim"
	updated, err := svc.Update(ctx, api.UpdateProfileInput{DisplayName: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DisplayName != name {
		t.Fatalf("display name = %q, want %q", updated.DisplayName, name)
	}
	if len(identity.users) != 1 || identity.users[0].ID != user.ID {
		t.Fatalf("identity updates = %+v, want one for %s", identity.users, user.ID)
	}

	mine, err := svc.Mine(ctx)
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	if mine.DisplayName != name {
		t.Fatalf("mine display name = %q, want %q", mine.DisplayName, name)
	}
}

func TestUpdateFailureSkipsIdentity(t *testing.T) {
	t.Parallel()

	identity := &recordingIdentity{}
	svc, backend, _ := newTestService(t, WithIdentity(identity))
	backend.Fail("UpdateProfile", backendfake.Failure{Message: "bio is too long"})

	bio := "x"
	if _, err := svc.Update(context.Background(), api.UpdateProfileInput{Bio: &bio}); err == nil {
		t.Fatal("expected error")
	}
	if len(identity.users) != 0 {
		t.Fatalf("identity updates = %d, want 0", len(identity.users))
	}
}

func TestNormalizeUsername(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"alice":    "alice",
		"@alice":   "alice",
		" @alice ": "alice",
		"":         "",
	}
	for in, want := range tests {
		if got := NormalizeUsername(in); got != want {
			t.Fatalf("NormalizeUsername(%q) = %q, want %q", in, got, want)
		}
	}
	if got := PublicLocator("@a b"); got != "/api/public/a%20b" {
		t.Fatalf("PublicLocator = %q", got)
	}
}

func TestVisitShowsLiveLinksAndRecordsView(t *testing.T) {
	t.Parallel()

	svc, backend, user := newTestService(t)
	backend.AddLink(user.ID, api.Link{Title: "Blog", URL: "https://example.com", IsActive: true})
	backend.AddLink(user.ID, api.Link{Title: "Hidden", URL: "https://example.com/h"})
	backend.AddLink(user.ID, api.Link{Title: "Later", URL: "https://example.com/l", IsActive: true, ScheduledStart: "2999-01-01T00:00:00Z"})

	profile, err := svc.Visit(context.Background(), "@alice")
	if err != nil {
		t.Fatalf("visit: %v", err)
	}
	if profile.Username != "alice" {
		t.Fatalf("username = %q, want alice", profile.Username)
	}
	if len(profile.Links) != 1 || profile.Links[0].Title != "Blog" {
		t.Fatalf("links = %+v, want only Blog", profile.Links)
	}
	if got := backend.Views(user.ID); got != 1 {
		t.Fatalf("views = %d, want 1", got)
	}
}

func TestVisitIgnoresViewFailure(t *testing.T) {
	t.Parallel()

	svc, backend, user := newTestService(t)
	backend.Fail("RecordView", backendfake.Failure{Status: http.StatusInternalServerError})

	if _, err := svc.Visit(context.Background(), "alice"); err != nil {
		t.Fatalf("visit: %v", err)
	}
	if got := backend.Calls("RecordView"); got != 1 {
		t.Fatalf("record view calls = %d, want 1", got)
	}
	if got := backend.Views(user.ID); got != 0 {
		t.Fatalf("views = %d, want 0", got)
	}
}

func TestVisitUnknownUser(t *testing.T) {
	t.Parallel()

	svc, backend, _ := newTestService(t)

	_, err := svc.Visit(context.Background(), "ghost")
	if got := apperrors.UserMessage(err, ""); got != `User "ghost" was not found.` {
		t.Fatalf("message = %q", got)
	}
	if !apperrors.IsClient(err) {
		t.Fatalf("kind = %s, want client", apperrors.KindOf(err))
	}
	if got := backend.Calls("RecordView"); got != 0 {
		t.Fatalf("record view calls = %d, want 0", got)
	}

	if _, err := svc.Visit(context.Background(), " @ "); apperrors.KindOf(err) != apperrors.KindClient {
		t.Fatalf("empty username err = %v", err)
	}
}

func TestPublicResourceSharesCache(t *testing.T) {
	t.Parallel()

	svc, backend, _ := newTestService(t)
	ctx := context.Background()

	first := svc.Public("alice", fetch.Options{})
	defer first.Close()
	if err := first.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	second := svc.Public("@alice", fetch.Options{})
	defer second.Close()
	state := second.State()
	if !state.HasData || state.Loading || state.Data.Username != "alice" {
		t.Fatalf("second state = %+v, want cached profile", state)
	}
	if got := backend.Calls("PublicProfile"); got != 1 {
		t.Fatalf("public profile calls = %d, want 1", got)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	svc, backend, user := newTestService(t)
	ctx := context.Background()
	plain := backend.AddLink(user.ID, api.Link{Title: "Blog", URL: "https://example.com/blog", IsActive: true})
	sensitive := backend.AddLink(user.ID, api.Link{Title: "NSFW", URL: "https://example.com/x", IsActive: true, IsSensitive: true})
	header := backend.AddLink(user.ID, api.Link{Title: "Section", LinkType: api.LinkTypeHeader, IsActive: true})

	got, err := svc.Open(ctx, plain, false)
	if err != nil || got != plain.URL {
		t.Fatalf("open plain = %q, %v", got, err)
	}

	if _, err := svc.Open(ctx, sensitive, false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("open sensitive err = %v, want ErrConfirmationRequired", err)
	}
	if got := backend.Calls("Click"); got != 1 {
		t.Fatalf("click calls = %d, want 1", got)
	}

	if got, err := svc.Open(ctx, sensitive, true); err != nil || got != sensitive.URL {
		t.Fatalf("open confirmed = %q, %v", got, err)
	}
	if _, err := svc.Open(ctx, header, true); err == nil {
		t.Fatal("expected error opening a header")
	}

	counts := map[string]int{}
	for _, link := range backend.Links(user.ID) {
		counts[link.ID] = link.ClickCount
	}
	if counts[plain.ID] != 1 || counts[sensitive.ID] != 1 {
		t.Fatalf("click counts = %v", counts)
	}
}

func TestTrackClickIgnoresFailures(t *testing.T) {
	t.Parallel()

	svc, backend, user := newTestService(t)
	link := backend.AddLink(user.ID, api.Link{Title: "Blog", URL: "https://example.com/blog", IsActive: true})

	if got := svc.TrackClick(context.Background(), link.ID); got != link.URL {
		t.Fatalf("destination = %q, want %q", got, link.URL)
	}
	if got := svc.TrackClick(context.Background(), "missing"); got != "" {
		t.Fatalf("destination = %q, want empty", got)
	}

	backend.Fail("Click", backendfake.Failure{Status: http.StatusInternalServerError})
	got, err := svc.Open(context.Background(), link, false)
	if err != nil || got != link.URL {
		t.Fatalf("open during tracking outage = %q, %v", got, err)
	}
}
