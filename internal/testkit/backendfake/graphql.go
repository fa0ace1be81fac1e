package backendfake

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/louisbranch/linkpage/internal/services/linkpage/api"
)

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlError struct {
	message string
}

func (e gqlError) Error() string { return e.message }

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var req gqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid graphql request")
		return
	}
	operation := OperationName(req.Query)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[operation]++
	s.requests[operation] = append(s.requests[operation], req.Variables)
	s.headers[operation] = append(s.headers[operation], r.Header.Get("Authorization"))

	if f := s.takeFailureLocked(operation); f != nil {
		status := f.Status
		if status == 0 {
			status = http.StatusOK
		}
		if f.Message == "" {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, status, map[string]any{
			"data":   nil,
			"errors": []map[string]any{{"message": f.Message}},
		})
		return
	}

	userID, _ := s.verify(bearer(r), "access")
	field, data, err := s.dispatchLocked(operation, userID, req.Variables)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"data":   nil,
			"errors": []map[string]any{{"message": err.Error()}},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{field: data}})
}

func (s *Server) dispatchLocked(operation, userID string, vars map[string]any) (string, any, error) {
	switch operation {
	case "Register":
		return s.register(vars)
	case "Login":
		return s.login(vars)
	case "RefreshToken":
		return s.refresh(vars)
	}

	acct, ok := s.accounts[userID]
	if !ok {
		return "", nil, gqlError{message: MessageAuthRequired}
	}
	switch operation {
	case "Me":
		return "me", acct.user, nil
	case "MyProfile":
		return "myProfile", acct.user, nil
	case "UpdateProfile":
		return s.updateProfile(acct, vars)
	case "ChangePassword":
		return s.changePassword(acct, vars)
	case "DeleteAccount":
		delete(s.accounts, acct.user.ID)
		delete(s.links, acct.user.ID)
		return "deleteAccount", true, nil
	case "Links":
		return "links", s.sortedLinksLocked(userID), nil
	case "CreateLink":
		return s.createLink(userID, vars)
	case "UpdateLink":
		return s.updateLink(userID, vars)
	case "DeleteLink":
		return s.deleteLink(userID, vars)
	case "ReorderLinks":
		return s.reorderLinks(userID, vars)
	case "ToggleLink":
		return s.toggleLink(userID, vars)
	case "Summary":
		return "summary", s.summary(acct), nil
	case "LinkStats":
		return "linkStats", s.linkStats(userID), nil
	case "ViewStats":
		return s.viewStats(acct, vars)
	case "TopLinks":
		return s.topLinks(userID, vars)
	case "RecentClicks":
		return "recentClicks", []api.RecentClick{}, nil
	default:
		return "", nil, gqlError{message: "unknown operation " + operation}
	}
}

func (s *Server) register(vars map[string]any) (string, any, error) {
	var in api.RegisterInput
	if err := decodeVar(vars, "input", &in); err != nil {
		return "", nil, err
	}
	for _, acct := range s.accounts {
		if acct.user.Username == in.Username {
			return "", nil, gqlError{message: "이미 사용 중인 사용자명입니다."}
		}
		if acct.user.Email == in.Email {
			return "", nil, gqlError{message: "이미 사용 중인 이메일입니다."}
		}
	}
	return "register", s.addUserLocked(in.Username, in.Email, in.Password, in.DisplayName), nil
}

func (s *Server) login(vars map[string]any) (string, any, error) {
	var in api.LoginInput
	if err := decodeVar(vars, "input", &in); err != nil {
		return "", nil, err
	}
	for _, acct := range s.accounts {
		if acct.user.Email == in.Email && acct.password == in.Password {
			return "login", s.IssueTokens(acct.user.ID), nil
		}
	}
	return "", nil, gqlError{message: MessageBadCredentials}
}

func (s *Server) refresh(vars map[string]any) (string, any, error) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeVar(vars, "input", &in); err != nil {
		return "", nil, err
	}
	userID, ok := s.verify(in.RefreshToken, "refresh")
	if !ok {
		return "", nil, gqlError{message: MessageInvalidRefresh}
	}
	if _, exists := s.accounts[userID]; !exists {
		return "", nil, gqlError{message: MessageInvalidRefresh}
	}
	return "refreshToken", s.IssueTokens(userID), nil
}

func (s *Server) updateProfile(acct *account, vars map[string]any) (string, any, error) {
	var in api.UpdateProfileInput
	if err := decodeVar(vars, "input", &in); err != nil {
		return "", nil, err
	}
	if in.DisplayName != nil {
		acct.user.DisplayName = *in.DisplayName
	}
	if in.Bio != nil {
		acct.user.Bio = *in.Bio
	}
	if in.AvatarURL != nil {
		acct.user.AvatarURL = *in.AvatarURL
	}
	if in.Theme != nil {
		acct.user.Theme = *in.Theme
	}
	if in.BgColor != nil {
		acct.user.BgColor = *in.BgColor
	}
	acct.user.UpdatedAt = s.Now().UTC().Format(time.RFC3339)
	return "updateProfile", acct.user, nil
}

func (s *Server) changePassword(acct *account, vars map[string]any) (string, any, error) {
	var in api.ChangePasswordInput
	if err := decodeVar(vars, "input", &in); err != nil {
		return "", nil, err
	}
	if in.CurrentPassword != acct.password {
		return "", nil, gqlError{message: "현재 비밀번호가 올바르지 않습니다."}
	}
	acct.password = in.NewPassword
	return "changePassword", true, nil
}

func (s *Server) createLink(userID string, vars map[string]any) (string, any, error) {
	var in api.CreateLinkInput
	if err := decodeVar(vars, "input", &in); err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return "", nil, gqlError{message: "title is required"}
	}
	linkType := in.LinkType
	if linkType == "" {
		linkType = api.LinkTypeLink
	}
	now := s.Now().UTC().Format(time.RFC3339)
	link := api.Link{
		ID:             uuid.NewString(),
		UserID:         userID,
		Title:          in.Title,
		URL:            in.URL,
		Description:    in.Description,
		ThumbnailURL:   in.ThumbnailURL,
		Position:       len(s.links[userID]),
		IsActive:       true,
		ScheduledStart: in.ScheduledStart,
		ScheduledEnd:   in.ScheduledEnd,
		IsSensitive:    in.IsSensitive,
		LinkType:       linkType,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.links[userID] = append(s.links[userID], link)
	return "createLink", link, nil
}

func (s *Server) updateLink(userID string, vars map[string]any) (string, any, error) {
	var in api.UpdateLinkInput
	if err := decodeVar(vars, "input", &in); err != nil {
		return "", nil, err
	}
	link, err := s.findLinkLocked(userID, vars)
	if err != nil {
		return "", nil, err
	}
	if in.Title != nil {
		link.Title = *in.Title
	}
	if in.URL != nil {
		link.URL = *in.URL
	}
	if in.Description != nil {
		link.Description = *in.Description
	}
	if in.ThumbnailURL != nil {
		link.ThumbnailURL = *in.ThumbnailURL
	}
	if in.IsActive != nil {
		link.IsActive = *in.IsActive
	}
	if in.ScheduledStart != nil {
		link.ScheduledStart = *in.ScheduledStart
	}
	if in.ScheduledEnd != nil {
		link.ScheduledEnd = *in.ScheduledEnd
	}
	if in.IsSensitive != nil {
		link.IsSensitive = *in.IsSensitive
	}
	if in.LinkType != nil {
		link.LinkType = *in.LinkType
	}
	link.UpdatedAt = s.Now().UTC().Format(time.RFC3339)
	return "updateLink", *link, nil
}

func (s *Server) deleteLink(userID string, vars map[string]any) (string, any, error) {
	link, err := s.findLinkLocked(userID, vars)
	if err != nil {
		return "", nil, err
	}
	id := link.ID
	s.links[userID] = slices.DeleteFunc(s.links[userID], func(l api.Link) bool { return l.ID == id })
	return "deleteLink", true, nil
}

func (s *Server) reorderLinks(userID string, vars map[string]any) (string, any, error) {
	var items []api.ReorderItem
	if err := decodeVar(vars, "items", &items); err != nil {
		return "", nil, err
	}
	for _, item := range items {
		for i := range s.links[userID] {
			if s.links[userID][i].ID == item.ID {
				s.links[userID][i].Position = item.Position
			}
		}
	}
	return "reorderLinks", s.sortedLinksLocked(userID), nil
}

func (s *Server) toggleLink(userID string, vars map[string]any) (string, any, error) {
	link, err := s.findLinkLocked(userID, vars)
	if err != nil {
		return "", nil, err
	}
	link.IsActive = !link.IsActive
	return "toggleLink", *link, nil
}

func (s *Server) findLinkLocked(userID string, vars map[string]any) (*api.Link, error) {
	id, _ := vars["linkId"].(string)
	for i := range s.links[userID] {
		if s.links[userID][i].ID == id {
			return &s.links[userID][i], nil
		}
	}
	return nil, gqlError{message: MessageLinkNotFound}
}

func (s *Server) summary(acct *account) api.Summary {
	summary := api.Summary{TotalViews: acct.views, TotalLinks: len(s.links[acct.user.ID])}
	for _, link := range s.links[acct.user.ID] {
		summary.TotalClicks += link.ClickCount
	}
	if summary.TotalViews > 0 {
		summary.ClickThroughRate = float64(summary.TotalClicks) / float64(summary.TotalViews) * 100
	}
	return summary
}

func (s *Server) linkStats(userID string) []api.LinkStat {
	stats := []api.LinkStat{}
	for _, link := range s.sortedLinksLocked(userID) {
		stats = append(stats, api.LinkStat{ID: link.ID, Title: link.Title, URL: link.URL, ClickCount: link.ClickCount, IsActive: link.IsActive})
	}
	return stats
}

func (s *Server) viewStats(acct *account, vars map[string]any) (string, any, error) {
	days := 7
	if raw, ok := vars["days"].(float64); ok {
		days = int(raw)
	}
	stats := api.ViewStats{Days: days, TotalViews: acct.views, Daily: []api.DailyViews{}}
	today := s.Now().UTC()
	for i := days - 1; i >= 0; i-- {
		day := api.DailyViews{Date: today.AddDate(0, 0, -i).Format(time.DateOnly)}
		if i == 0 {
			day.ViewCount = acct.views
			day.UniqueVisitors = acct.views
		}
		stats.Daily = append(stats.Daily, day)
	}
	return "viewStats", stats, nil
}

func (s *Server) topLinks(userID string, vars map[string]any) (string, any, error) {
	limit := 5
	if raw, ok := vars["limit"].(float64); ok {
		limit = int(raw)
	}
	links := s.sortedLinksLocked(userID)
	slices.SortStableFunc(links, func(a, b api.Link) int { return b.ClickCount - a.ClickCount })
	top := []api.TopLink{}
	for _, link := range links {
		if len(top) == limit {
			break
		}
		top = append(top, api.TopLink{ID: link.ID, Title: link.Title, URL: link.URL, ClickCount: link.ClickCount})
	}
	return "topLinks", top, nil
}

// OperationName returns the declared name of the first operation in query.
func OperationName(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return r == ' ' || r == '\n' || r == '\t' || r == '(' || r == '{'
	})
	for i, field := range fields {
		if (field == "query" || field == "mutation") && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

func decodeVar(vars map[string]any, key string, target any) error {
	raw, ok := vars[key]
	if !ok {
		return gqlError{message: "missing variable " + key}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
