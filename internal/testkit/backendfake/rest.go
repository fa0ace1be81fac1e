package backendfake

import (
	"fmt"
	"net/http"

	"github.com/louisbranch/linkpage/internal/services/linkpage/api"
)

type publicLink struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	Title          string       `json:"title"`
	URL            string       `json:"url"`
	Description    string       `json:"description,omitempty"`
	FaviconURL     string       `json:"favicon_url,omitempty"`
	Position       int          `json:"position"`
	IsActive       bool         `json:"is_active"`
	ClickCount     int          `json:"click_count"`
	IsSensitive    bool         `json:"is_sensitive"`
	LinkType       api.LinkType `json:"link_type"`
	ScheduledStart string       `json:"scheduled_start,omitempty"`
	ScheduledEnd   string       `json:"scheduled_end,omitempty"`
}

type publicProfile struct {
	Username    string          `json:"username"`
	DisplayName string          `json:"display_name"`
	Bio         string          `json:"bio"`
	AvatarURL   string          `json:"avatar_url"`
	SocialLinks api.SocialLinks `json:"social_links"`
	Theme       string          `json:"theme"`
	BgColor     string          `json:"bg_color"`
	Links       []publicLink    `json:"links"`
}

// failRESTLocked writes an injected failure for route and reports whether it
// did.
func (s *Server) failRESTLocked(w http.ResponseWriter, route string) bool {
	s.calls[route]++
	f := s.takeFailureLocked(route)
	if f == nil {
		return false
	}
	status := f.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if f.Message == "" {
		w.WriteHeader(status)
		return true
	}
	writeDetail(w, status, f.Message)
	return true
}

func toPublicLink(link api.Link) publicLink {
	return publicLink{
		ID:             link.ID,
		UserID:         link.UserID,
		Title:          link.Title,
		URL:            link.URL,
		Description:    link.Description,
		FaviconURL:     link.FaviconURL,
		Position:       link.Position,
		IsActive:       link.IsActive,
		ClickCount:     link.ClickCount,
		IsSensitive:    link.IsSensitive,
		LinkType:       link.LinkType,
		ScheduledStart: link.ScheduledStart,
		ScheduledEnd:   link.ScheduledEnd,
	}
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRESTLocked(w, "ListLinks") {
		return
	}
	token := bearer(r)
	if token == "" {
		writeDetail(w, http.StatusUnauthorized, MessageAuthRequired)
		return
	}
	userID, ok := s.verify(token, "access")
	if _, exists := s.accounts[userID]; !ok || !exists {
		writeDetail(w, http.StatusUnauthorized, MessageInvalidToken)
		return
	}
	links := []publicLink{}
	for _, link := range s.sortedLinksLocked(userID) {
		links = append(links, toPublicLink(link))
	}
	writeJSON(w, http.StatusOK, links)
}

func (s *Server) handlePublicProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRESTLocked(w, "PublicProfile") {
		return
	}
	username := r.PathValue("username")
	acct := s.userByNameLocked(username)
	if acct == nil {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("'%s' 사용자를 찾을 수 없습니다.", username))
		return
	}
	now := s.Now()
	profile := publicProfile{
		Username:    acct.user.Username,
		DisplayName: acct.user.DisplayName,
		Bio:         acct.user.Bio,
		AvatarURL:   acct.user.AvatarURL,
		SocialLinks: acct.user.SocialLinks,
		Theme:       acct.user.Theme,
		BgColor:     acct.user.BgColor,
		Links:       []publicLink{},
	}
	for _, link := range s.sortedLinksLocked(acct.user.ID) {
		if !link.IsActive || !link.Live(now) {
			continue
		}
		profile.Links = append(profile.Links, toPublicLink(link))
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRESTLocked(w, "RecordView") {
		return
	}
	username := r.PathValue("username")
	acct := s.userByNameLocked(username)
	if acct == nil {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("'%s' 사용자를 찾을 수 없습니다.", username))
		return
	}
	acct.views++
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRESTLocked(w, "Click") {
		return
	}
	id := r.PathValue("id")
	for userID := range s.links {
		for i := range s.links[userID] {
			link := &s.links[userID][i]
			if link.ID == id && link.IsActive {
				link.ClickCount++
				http.Redirect(w, r, link.URL, http.StatusFound)
				return
			}
		}
	}
	writeDetail(w, http.StatusNotFound, MessageLinkNotFound)
}
