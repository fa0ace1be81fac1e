// Package links manages the owner's ordered link collection: the GraphQL
// mutations and the optimistic board that layers local edits over them.
package links

import (
	"context"
	"fmt"
	"slices"

	apperrors "github.com/louisbranch/linkpage/internal/platform/errors"
	"github.com/louisbranch/linkpage/internal/platform/errors/i18n"
	"github.com/louisbranch/linkpage/internal/services/linkpage/api"
)

// Executor runs authenticated GraphQL operations.
type Executor interface {
	Do(ctx context.Context, query string, variables map[string]any, out any) error
}

// Service issues link operations.
type Service struct {
	gql     Executor
	catalog *i18n.Catalog
}

// NewService builds a service over gql. Messages for failures without a
// server message come from catalog.
func NewService(gql Executor, catalog *i18n.Catalog) *Service {
	if catalog == nil {
		catalog = i18n.GetCatalog(i18n.BaseLocale)
	}
	return &Service{gql: gql, catalog: catalog}
}

// Catalog returns the message catalog used for fallbacks.
func (s *Service) Catalog() *i18n.Catalog {
	return s.catalog
}

// List returns the owner's links ordered by position.
func (s *Service) List(ctx context.Context) ([]api.Link, error) {
	var resp struct {
		Links []api.Link `json:"links"`
	}
	if err := s.gql.Do(ctx, api.LinksQuery, nil, &resp); err != nil {
		return nil, s.fail("list links", i18n.CodeLinksLoadFailed, err)
	}
	if resp.Links == nil {
		resp.Links = []api.Link{}
	}
	return resp.Links, nil
}

// Create appends a link.
func (s *Service) Create(ctx context.Context, in api.CreateLinkInput) (api.Link, error) {
	var resp struct {
		CreateLink api.Link `json:"createLink"`
	}
	if err := s.gql.Do(ctx, api.CreateLinkMutation, map[string]any{"input": in}, &resp); err != nil {
		return api.Link{}, s.fail("create link", i18n.CodeLinkCreateFailed, err)
	}
	return resp.CreateLink, nil
}

// Update patches the link id.
func (s *Service) Update(ctx context.Context, id string, in api.UpdateLinkInput) (api.Link, error) {
	linkID, err := s.linkID(id)
	if err != nil {
		return api.Link{}, err
	}
	var resp struct {
		UpdateLink api.Link `json:"updateLink"`
	}
	variables := map[string]any{"linkId": linkID, "input": in}
	if err := s.gql.Do(ctx, api.UpdateLinkMutation, variables, &resp); err != nil {
		return api.Link{}, s.fail("update link", i18n.CodeLinkUpdateFailed, err)
	}
	return resp.UpdateLink, nil
}

// Delete removes the link id.
func (s *Service) Delete(ctx context.Context, id string) error {
	linkID, err := s.linkID(id)
	if err != nil {
		return err
	}
	var resp struct {
		DeleteLink bool `json:"deleteLink"`
	}
	if err := s.gql.Do(ctx, api.DeleteLinkMutation, map[string]any{"linkId": linkID}, &resp); err != nil {
		return s.fail("delete link", i18n.CodeLinkDeleteFailed, err)
	}
	return nil
}

// Reorder submits a full ordering in one batch.
func (s *Service) Reorder(ctx context.Context, items []api.ReorderItem) ([]api.Link, error) {
	items = slices.Clone(items)
	for i, item := range items {
		linkID, err := s.linkID(item.ID)
		if err != nil {
			return nil, err
		}
		items[i].ID = linkID
	}
	var resp struct {
		ReorderLinks []api.Link `json:"reorderLinks"`
	}
	if err := s.gql.Do(ctx, api.ReorderLinksMutation, map[string]any{"items": items}, &resp); err != nil {
		return nil, s.fail("reorder links", i18n.CodeLinkReorderFailed, err)
	}
	return resp.ReorderLinks, nil
}

// Toggle flips the active flag of the link id.
func (s *Service) Toggle(ctx context.Context, id string) (api.Link, error) {
	linkID, err := s.linkID(id)
	if err != nil {
		return api.Link{}, err
	}
	var resp struct {
		ToggleLink api.Link `json:"toggleLink"`
	}
	if err := s.gql.Do(ctx, api.ToggleLinkMutation, map[string]any{"linkId": linkID}, &resp); err != nil {
		return api.Link{}, s.fail("toggle link", i18n.CodeLinkToggleFailed, err)
	}
	return resp.ToggleLink, nil
}

func (s *Service) linkID(id string) (string, error) {
	linkID, err := api.ValidateLinkID(id)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindClient, s.catalog.Format(i18n.CodeInvalidLinkID, id), err)
	}
	return linkID, nil
}

// fail keeps server messages and gives silent failures the fallback for code.
func (s *Service) fail(op string, code i18n.Code, err error) error {
	if apperrors.IsCanceled(err) || apperrors.UserMessage(err, "") != "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &apperrors.Error{
		Kind:    apperrors.KindOf(err),
		Message: s.catalog.Format(code),
		Cause:   fmt.Errorf("%s: %w", op, err),
	}
}
