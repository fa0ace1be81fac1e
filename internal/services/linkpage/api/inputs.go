package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RegisterInput creates a new account.
type RegisterInput struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

// Normalize trims surrounding whitespace from identifying fields.
func (in RegisterInput) Normalize() RegisterInput {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	return in
}

// Validate rejects inputs the backend would refuse outright.
func (in RegisterInput) Validate() error {
	if in.Username == "" {
		return errors.New("username is required")
	}
	if in.Email == "" {
		return errors.New("email is required")
	}
	if in.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// LoginInput exchanges credentials for a token pair.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordInput rotates the account password.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// CreateLinkInput appends a link to the owner's collection.
type CreateLinkInput struct {
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	Description    string   `json:"description,omitempty"`
	ThumbnailURL   string   `json:"thumbnailUrl,omitempty"`
	ScheduledStart string   `json:"scheduledStart,omitempty"`
	ScheduledEnd   string   `json:"scheduledEnd,omitempty"`
	IsSensitive    bool     `json:"isSensitive"`
	LinkType       LinkType `json:"linkType,omitempty"`
}

// UpdateLinkInput patches a link. Nil fields are left unchanged.
type UpdateLinkInput struct {
	Title          *string   `json:"title,omitempty"`
	URL            *string   `json:"url,omitempty"`
	Description    *string   `json:"description,omitempty"`
	ThumbnailURL   *string   `json:"thumbnailUrl,omitempty"`
	IsActive       *bool     `json:"isActive,omitempty"`
	ScheduledStart *string   `json:"scheduledStart,omitempty"`
	ScheduledEnd   *string   `json:"scheduledEnd,omitempty"`
	IsSensitive    *bool     `json:"isSensitive,omitempty"`
	LinkType       *LinkType `json:"linkType,omitempty"`
}

// UpdateProfileInput patches the owner's profile. Nil fields are left unchanged.
type UpdateProfileInput struct {
	DisplayName *string `json:"displayName,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	AvatarURL   *string `json:"avatarUrl,omitempty"`
	Theme       *string `json:"theme,omitempty"`
	BgColor     *string `json:"bgColor,omitempty"`
}

// ValidateLinkID reports whether id is a well-formed link identifier and
// returns it in canonical form.
func ValidateLinkID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", fmt.Errorf("parse link id %q: %w", id, err)
	}
	return parsed.String(), nil
}
