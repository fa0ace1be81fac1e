// Package auth wraps the account operations of the GraphQL API.
package auth

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/linkpage/internal/platform/errors"
	"github.com/louisbranch/linkpage/internal/services/linkpage/api"
)

// Executor runs GraphQL operations.
type Executor interface {
	Do(ctx context.Context, query string, variables map[string]any, out any) error
	DoAnonymous(ctx context.Context, query string, variables map[string]any, out any) error
}

// Service issues account operations.
type Service struct {
	gql Executor
}

// NewService builds a service over gql.
func NewService(gql Executor) *Service {
	return &Service{gql: gql}
}

// Register creates an account. It does not sign in.
func (s *Service) Register(ctx context.Context, in api.RegisterInput) (api.User, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return api.User{}, apperrors.Wrap(apperrors.KindClient, err.Error(), err)
	}
	var resp struct {
		Register api.User `json:"register"`
	}
	if err := s.gql.DoAnonymous(ctx, api.RegisterMutation, map[string]any{"input": in}, &resp); err != nil {
		return api.User{}, fmt.Errorf("register: %w", err)
	}
	return resp.Register, nil
}

// Login exchanges credentials for a token pair.
func (s *Service) Login(ctx context.Context, in api.LoginInput) (api.TokenPair, error) {
	in.Email = strings.TrimSpace(in.Email)
	var resp struct {
		Login api.TokenPair `json:"login"`
	}
	if err := s.gql.DoAnonymous(ctx, api.LoginMutation, map[string]any{"input": in}, &resp); err != nil {
		return api.TokenPair{}, fmt.Errorf("login: %w", err)
	}
	return resp.Login, nil
}

// Me returns the identity of the stored access token.
func (s *Service) Me(ctx context.Context) (api.User, error) {
	var resp struct {
		Me api.User `json:"me"`
	}
	if err := s.gql.Do(ctx, api.MeQuery, nil, &resp); err != nil {
		return api.User{}, fmt.Errorf("me: %w", err)
	}
	return resp.Me, nil
}

// Refresh exchanges refreshToken for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (api.TokenPair, error) {
	var resp struct {
		RefreshToken api.TokenPair `json:"refreshToken"`
	}
	variables := map[string]any{"input": map[string]any{"refreshToken": refreshToken}}
	if err := s.gql.DoAnonymous(ctx, api.RefreshTokenMutation, variables, &resp); err != nil {
		return api.TokenPair{}, fmt.Errorf("refresh token: %w", err)
	}
	return resp.RefreshToken, nil
}

// ChangePassword rotates the account password.
func (s *Service) ChangePassword(ctx context.Context, in api.ChangePasswordInput) error {
	if in.NewPassword == "" {
		return apperrors.E(apperrors.KindClient, "new password is required")
	}
	var resp struct {
		ChangePassword bool `json:"changePassword"`
	}
	if err := s.gql.Do(ctx, api.ChangePasswordMutation, map[string]any{"input": in}, &resp); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}

// DeleteAccount removes the signed-in account.
func (s *Service) DeleteAccount(ctx context.Context) error {
	var resp struct {
		DeleteAccount bool `json:"deleteAccount"`
	}
	if err := s.gql.Do(ctx, api.DeleteAccountMutation, nil, &resp); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}
