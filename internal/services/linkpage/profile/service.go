// Package profile reads and edits the owner's profile and serves the public
// page of any user.
package profile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/louisbranch/linkpage/internal/platform/errors"
	"github.com/louisbranch/linkpage/internal/platform/errors/i18n"
	"github.com/louisbranch/linkpage/internal/services/linkpage/api"
	"github.com/louisbranch/linkpage/internal/services/linkpage/fetch"
)

// ErrConfirmationRequired is returned when a sensitive link is opened
// without confirmation.
var ErrConfirmationRequired = errors.New("sensitive link requires confirmation")

// Executor runs authenticated GraphQL operations.
type Executor interface {
	Do(ctx context.Context, query string, variables map[string]any, out any) error
}

// IdentityUpdater receives the owner's identity after a successful edit.
type IdentityUpdater interface {
	UpdateIdentity(user api.User)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIdentity sets the receiver of edited identities, usually the session.
func WithIdentity(identity IdentityUpdater) Option {
	return func(s *Service) { s.identity = identity }
}

// Service issues profile operations.
type Service struct {
	gql      Executor
	rest     *fetch.Client
	identity IdentityUpdater
	logger   *zap.Logger
}

// NewService builds a service. gql serves the owner's profile and rest the
// public endpoints.
func NewService(gql Executor, rest *fetch.Client, opts ...Option) *Service {
	s := &Service{gql: gql, rest: rest, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mine returns the signed-in owner's profile.
func (s *Service) Mine(ctx context.Context) (api.User, error) {
	var resp struct {
		MyProfile api.User `json:"myProfile"`
	}
	if err := s.gql.Do(ctx, api.MyProfileQuery, nil, &resp); err != nil {
		return api.User{}, fmt.Errorf("my profile: %w", err)
	}
	return resp.MyProfile, nil
}

// Update patches the owner's profile and hands the result to the identity
// receiver.
func (s *Service) Update(ctx context.Context, in api.UpdateProfileInput) (api.User, error) {
	var resp struct {
		UpdateProfile api.User `json:"updateProfile"`
	}
	if err := s.gql.Do(ctx, api.UpdateProfileMutation, map[string]any{"input": in}, &resp); err != nil {
		return api.User{}, fmt.Errorf("update profile: %w", err)
	}
	if s.identity != nil {
		s.identity.UpdateIdentity(resp.UpdateProfile)
	}
	return resp.UpdateProfile, nil
}

// NormalizeUsername accepts both "name" and "@name".
func NormalizeUsername(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "@")
}

// PublicLocator is the locator of username's public profile.
func PublicLocator(username string) string {
	return "/api/public/" + url.PathEscape(NormalizeUsername(username))
}

// Public returns a resource over username's public profile. The caller
// loads and closes it.
func (s *Service) Public(username string, opts fetch.Options) *fetch.Resource[api.PublicProfile] {
	return fetch.New[api.PublicProfile](s.rest, PublicLocator(username), opts)
}

// Visit loads username's public profile and records a view.
func (s *Service) Visit(ctx context.Context, username string) (api.PublicProfile, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return api.PublicProfile{}, apperrors.E(apperrors.KindClient, "username is required")
	}
	res := s.Public(username, fetch.Options{BypassCache: true})
	defer res.Close()
	if err := res.Load(ctx); err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) && appErr.Status == http.StatusNotFound {
			return api.PublicProfile{}, apperrors.Wrap(apperrors.KindClient, s.rest.Catalog().Format(i18n.CodeProfileNotFound, username), err)
		}
		return api.PublicProfile{}, fmt.Errorf("load public profile: %w", err)
	}
	s.RecordView(ctx, username)
	return res.State().Data, nil
}

// RecordView counts one visit of username's page. Failures are logged only.
func (s *Service) RecordView(ctx context.Context, username string) {
	locator := PublicLocator(username) + "/view"
	if err := s.rest.Send(ctx, http.MethodPost, locator); err != nil {
		s.logger.Debug("record view", zap.String("username", username), zap.Error(err))
	}
}

// TrackClick counts a click on linkID and returns the tracked destination,
// or "" when tracking failed.
func (s *Service) TrackClick(ctx context.Context, linkID string) string {
	locator := "/api/public/links/" + url.PathEscape(linkID) + "/click"
	destination, err := s.rest.Location(ctx, locator)
	if err != nil {
		s.logger.Debug("track click", zap.String("link_id", linkID), zap.Error(err))
		return ""
	}
	return destination
}

// Open tracks a click on link and returns the URL to visit. Sensitive links
// need confirmed set.
func (s *Service) Open(ctx context.Context, link api.Link, confirmed bool) (string, error) {
	if link.IsHeader() {
		return "", apperrors.E(apperrors.KindClient, "header links have no destination")
	}
	if link.IsSensitive && !confirmed {
		return "", ErrConfirmationRequired
	}
	s.TrackClick(ctx, link.ID)
	return link.URL, nil
}
