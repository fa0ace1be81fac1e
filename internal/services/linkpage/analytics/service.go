// Package analytics reads the owner's click and view statistics.
package analytics

import (
	"context"
	"fmt"
	"slices"

	apperrors "github.com/louisbranch/linkpage/internal/platform/errors"
	"github.com/louisbranch/linkpage/internal/services/linkpage/api"
)

// Periods are the view windows the dashboard offers, in days.
var Periods = []int{7, 30}

const (
	DefaultTopLinks     = 5
	DefaultRecentClicks = 10
)

// Executor runs authenticated GraphQL operations.
type Executor interface {
	Do(ctx context.Context, query string, variables map[string]any, out any) error
}

// Service issues analytics queries.
type Service struct {
	gql Executor
}

// NewService builds a service over gql.
func NewService(gql Executor) *Service {
	return &Service{gql: gql}
}

// Summary returns the dashboard counters.
func (s *Service) Summary(ctx context.Context) (api.Summary, error) {
	var resp struct {
		Summary api.Summary `json:"summary"`
	}
	if err := s.gql.Do(ctx, api.SummaryQuery, nil, &resp); err != nil {
		return api.Summary{}, fmt.Errorf("summary: %w", err)
	}
	return resp.Summary, nil
}

// LinkStats returns the click count of every link.
func (s *Service) LinkStats(ctx context.Context) ([]api.LinkStat, error) {
	var resp struct {
		LinkStats []api.LinkStat `json:"linkStats"`
	}
	if err := s.gql.Do(ctx, api.LinkStatsQuery, nil, &resp); err != nil {
		return nil, fmt.Errorf("link stats: %w", err)
	}
	return resp.LinkStats, nil
}

// ViewStats returns daily views over the last days, which must be one of
// Periods.
func (s *Service) ViewStats(ctx context.Context, days int) (api.ViewStats, error) {
	if !slices.Contains(Periods, days) {
		return api.ViewStats{}, apperrors.E(apperrors.KindClient, fmt.Sprintf("unsupported period of %d days", days))
	}
	var resp struct {
		ViewStats api.ViewStats `json:"viewStats"`
	}
	if err := s.gql.Do(ctx, api.ViewStatsQuery, map[string]any{"days": days}, &resp); err != nil {
		return api.ViewStats{}, fmt.Errorf("view stats: %w", err)
	}
	return resp.ViewStats, nil
}

// TopLinks returns the most clicked links. A non-positive limit uses
// DefaultTopLinks.
func (s *Service) TopLinks(ctx context.Context, limit int) ([]api.TopLink, error) {
	if limit <= 0 {
		limit = DefaultTopLinks
	}
	var resp struct {
		TopLinks []api.TopLink `json:"topLinks"`
	}
	if err := s.gql.Do(ctx, api.TopLinksQuery, map[string]any{"limit": limit}, &resp); err != nil {
		return nil, fmt.Errorf("top links: %w", err)
	}
	return resp.TopLinks, nil
}

// RecentClicks returns the latest clicks. A non-positive limit uses
// DefaultRecentClicks.
func (s *Service) RecentClicks(ctx context.Context, limit int) ([]api.RecentClick, error) {
	if limit <= 0 {
		limit = DefaultRecentClicks
	}
	var resp struct {
		RecentClicks []api.RecentClick `json:"recentClicks"`
	}
	if err := s.gql.Do(ctx, api.RecentClicksQuery, map[string]any{"limit": limit}, &resp); err != nil {
		return nil, fmt.Errorf("recent clicks: %w", err)
	}
	return resp.RecentClicks, nil
}
