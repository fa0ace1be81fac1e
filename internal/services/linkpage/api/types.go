package api

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// LinkType distinguishes clickable links from section headers.
type LinkType string

const (
	LinkTypeLink   LinkType = "link"
	LinkTypeHeader LinkType = "header"
)

// SocialLinks maps a platform key to a profile URL.
type SocialLinks map[string]string

// SocialPlatforms lists the platform keys the backend accepts.
var SocialPlatforms = []string{"facebook", "github", "instagram", "linkedin", "tiktok", "twitter", "youtube"}

// Validate rejects unknown platform keys.
func (s SocialLinks) Validate() error {
	var invalid []string
	for key := range s {
		if !slices.Contains(SocialPlatforms, key) {
			invalid = append(invalid, key)
		}
	}
	if len(invalid) > 0 {
		slices.Sort(invalid)
		return fmt.Errorf("unsupported social platforms: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// SeoSettings customizes the public page metadata.
type SeoSettings struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	OGImage     string `json:"ogImage,omitempty"`
}

// UnmarshalJSON accepts both ogImage and og_image.
func (s *SeoSettings) UnmarshalJSON(data []byte) error {
	r, ok, err := object("seo settings", data)
	if err != nil || !ok {
		return err
	}
	*s = SeoSettings{
		Title:       r.Get("title").String(),
		Description: r.Get("description").String(),
		OGImage:     pick(r, "ogImage", "og_image").String(),
	}
	return nil
}

// User is the authenticated identity and profile record.
type User struct {
	ID          string       `json:"id"`
	Username    string       `json:"username"`
	Email       string       `json:"email"`
	DisplayName string       `json:"displayName,omitempty"`
	Bio         string       `json:"bio,omitempty"`
	AvatarURL   string       `json:"avatarUrl,omitempty"`
	Theme       string       `json:"theme"`
	BgColor     string       `json:"bgColor"`
	SocialLinks SocialLinks  `json:"socialLinks,omitempty"`
	SeoSettings *SeoSettings `json:"seoSettings,omitempty"`
	IsActive    bool         `json:"isActive"`
	CreatedAt   string       `json:"createdAt"`
	UpdatedAt   string       `json:"updatedAt"`
}

// UnmarshalJSON accepts camelCase and snake_case field names.
func (u *User) UnmarshalJSON(data []byte) error {
	r, ok, err := object("user", data)
	if err != nil || !ok {
		return err
	}
	decoded := User{
		ID:          r.Get("id").String(),
		Username:    r.Get("username").String(),
		Email:       r.Get("email").String(),
		DisplayName: pick(r, "displayName", "display_name").String(),
		Bio:         r.Get("bio").String(),
		AvatarURL:   pick(r, "avatarUrl", "avatar_url").String(),
		Theme:       r.Get("theme").String(),
		BgColor:     pick(r, "bgColor", "bg_color").String(),
		IsActive:    pick(r, "isActive", "is_active").Bool(),
		CreatedAt:   pick(r, "createdAt", "created_at").String(),
		UpdatedAt:   pick(r, "updatedAt", "updated_at").String(),
	}
	if social := pick(r, "socialLinks", "social_links"); social.Exists() {
		if err := decodeRaw(social, &decoded.SocialLinks); err != nil {
			return fmt.Errorf("decode user social links: %w", err)
		}
	}
	if seo := pick(r, "seoSettings", "seo_settings"); seo.Exists() {
		decoded.SeoSettings = &SeoSettings{}
		if err := decodeRaw(seo, decoded.SeoSettings); err != nil {
			return fmt.Errorf("decode user seo settings: %w", err)
		}
	}
	*u = decoded
	return nil
}

// Name returns the display name, falling back to the username.
func (u User) Name() string {
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	return u.Username
}

// Link is one ordered item of an owner's collection.
type Link struct {
	ID             string   `json:"id"`
	UserID         string   `json:"userId"`
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	Description    string   `json:"description,omitempty"`
	ThumbnailURL   string   `json:"thumbnailUrl,omitempty"`
	FaviconURL     string   `json:"faviconUrl,omitempty"`
	Position       int      `json:"position"`
	IsActive       bool     `json:"isActive"`
	ClickCount     int      `json:"clickCount"`
	ScheduledStart string   `json:"scheduledStart,omitempty"`
	ScheduledEnd   string   `json:"scheduledEnd,omitempty"`
	IsSensitive    bool     `json:"isSensitive"`
	LinkType       LinkType `json:"linkType"`
	CreatedAt      string   `json:"createdAt"`
	UpdatedAt      string   `json:"updatedAt"`
}

// UnmarshalJSON accepts camelCase and snake_case field names.
func (l *Link) UnmarshalJSON(data []byte) error {
	r, ok, err := object("link", data)
	if err != nil || !ok {
		return err
	}
	linkType := LinkType(pick(r, "linkType", "link_type").String())
	if linkType == "" {
		linkType = LinkTypeLink
	}
	*l = Link{
		ID:             r.Get("id").String(),
		UserID:         pick(r, "userId", "user_id").String(),
		Title:          r.Get("title").String(),
		URL:            r.Get("url").String(),
		Description:    r.Get("description").String(),
		ThumbnailURL:   pick(r, "thumbnailUrl", "thumbnail_url").String(),
		FaviconURL:     pick(r, "faviconUrl", "favicon_url").String(),
		Position:       int(r.Get("position").Int()),
		IsActive:       pick(r, "isActive", "is_active").Bool(),
		ClickCount:     int(pick(r, "clickCount", "click_count").Int()),
		ScheduledStart: pick(r, "scheduledStart", "scheduled_start").String(),
		ScheduledEnd:   pick(r, "scheduledEnd", "scheduled_end").String(),
		IsSensitive:    pick(r, "isSensitive", "is_sensitive").Bool(),
		LinkType:       linkType,
		CreatedAt:      pick(r, "createdAt", "created_at").String(),
		UpdatedAt:      pick(r, "updatedAt", "updated_at").String(),
	}
	return nil
}

// IsHeader reports whether the item is a section header rather than a link.
func (l Link) IsHeader() bool {
	return l.LinkType == LinkTypeHeader
}

// Live reports whether now falls inside the link's schedule window. Unset
// or unparseable bounds are open.
func (l Link) Live(now time.Time) bool {
	if start, ok := parseTimestamp(l.ScheduledStart); ok && now.Before(start) {
		return false
	}
	if end, ok := parseTimestamp(l.ScheduledEnd); ok && !now.Before(end) {
		return false
	}
	return true
}

// timestampLayouts covers the offset-aware and naive ISO 8601 forms the
// backend emits.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ReorderItem is one entry of a batch reorder request.
type ReorderItem struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// ReorderItems assigns each link its index as position.
func ReorderItems(links []Link) []ReorderItem {
	items := make([]ReorderItem, 0, len(links))
	for idx, link := range links {
		items = append(items, ReorderItem{ID: link.ID, Position: idx})
	}
	return items
}

// TokenPair is the credential pair issued by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
}

// UnmarshalJSON accepts camelCase and snake_case field names.
func (t *TokenPair) UnmarshalJSON(data []byte) error {
	r, ok, err := object("token pair", data)
	if err != nil || !ok {
		return err
	}
	*t = TokenPair{
		AccessToken:  pick(r, "accessToken", "access_token").String(),
		RefreshToken: pick(r, "refreshToken", "refresh_token").String(),
		TokenType:    pick(r, "tokenType", "token_type").String(),
	}
	return nil
}

// PublicProfile is the anonymous view of a user's page.
type PublicProfile struct {
	Username    string       `json:"username"`
	DisplayName string       `json:"displayName,omitempty"`
	Bio         string       `json:"bio,omitempty"`
	AvatarURL   string       `json:"avatarUrl,omitempty"`
	Theme       string       `json:"theme"`
	BgColor     string       `json:"bgColor"`
	SocialLinks SocialLinks  `json:"socialLinks,omitempty"`
	SeoSettings *SeoSettings `json:"seoSettings,omitempty"`
	Links       []Link       `json:"links"`
}

// UnmarshalJSON accepts camelCase and snake_case field names.
func (p *PublicProfile) UnmarshalJSON(data []byte) error {
	r, ok, err := object("public profile", data)
	if err != nil || !ok {
		return err
	}
	decoded := PublicProfile{
		Username:    r.Get("username").String(),
		DisplayName: pick(r, "displayName", "display_name").String(),
		Bio:         r.Get("bio").String(),
		AvatarURL:   pick(r, "avatarUrl", "avatar_url").String(),
		Theme:       r.Get("theme").String(),
		BgColor:     pick(r, "bgColor", "bg_color").String(),
		Links:       []Link{},
	}
	if social := pick(r, "socialLinks", "social_links"); social.Exists() {
		if err := decodeRaw(social, &decoded.SocialLinks); err != nil {
			return fmt.Errorf("decode profile social links: %w", err)
		}
	}
	if seo := pick(r, "seoSettings", "seo_settings"); seo.Exists() {
		decoded.SeoSettings = &SeoSettings{}
		if err := decodeRaw(seo, decoded.SeoSettings); err != nil {
			return fmt.Errorf("decode profile seo settings: %w", err)
		}
	}
	if err := decodeRaw(r.Get("links"), &decoded.Links); err != nil {
		return fmt.Errorf("decode profile links: %w", err)
	}
	*p = decoded
	return nil
}

// Summary aggregates the owner's dashboard counters.
type Summary struct {
	TotalClicks      int     `json:"totalClicks"`
	TotalViews       int     `json:"totalViews"`
	TotalLinks       int     `json:"totalLinks"`
	TodayClicks      int     `json:"todayClicks"`
	TodayViews       int     `json:"todayViews"`
	ClickThroughRate float64 `json:"clickThroughRate"`
}

// LinkStat is the click count of one link.
type LinkStat struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	ClickCount int    `json:"clickCount"`
	IsActive   bool   `json:"isActive"`
}

// DailyViews is one day of profile views.
type DailyViews struct {
	Date           string `json:"date"`
	ViewCount      int    `json:"viewCount"`
	UniqueVisitors int    `json:"uniqueVisitors"`
}

// ViewStats is a window of daily profile views.
type ViewStats struct {
	Days       int          `json:"days"`
	TotalViews int          `json:"totalViews"`
	Daily      []DailyViews `json:"daily"`
}

// TopLink ranks a link by clicks.
type TopLink struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	ClickCount int     `json:"clickCount"`
	CTR        float64 `json:"ctr"`
}

// RecentClick is one recorded click.
type RecentClick struct {
	LinkID    string `json:"linkId"`
	Title     string `json:"title"`
	ClickedAt string `json:"clickedAt"`
	VisitorIP string `json:"visitorIp,omitempty"`
}
