// Package backendfake serves an in-memory bio-link backend for client tests.
// It speaks the GraphQL operations and public REST routes the client uses
// and signs tokens with a per-server HS256 secret.
package backendfake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/louisbranch/linkpage/internal/services/linkpage/api"
	"github.com/louisbranch/linkpage/internal/services/linkpage/credentials"
)

// Backend messages the client reacts to.
const (
	MessageAuthRequired   = "인증이 필요합니다."
	MessageInvalidToken   = "유효하지 않은 토큰입니다."
	MessageInvalidRefresh = "유효하지 않은 refresh token입니다."
	MessageBadCredentials = "이메일 또는 비밀번호가 올바르지 않습니다."
	MessageLinkNotFound   = "링크를 찾을 수 없습니다."
)

// Failure is an injected error for one operation.
type Failure struct {
	// Message is returned as errors[0].message, or as detail for REST routes.
	Message string
	// Status overrides the HTTP status; GraphQL errors default to 200.
	Status int
	// Times limits how many calls fail; zero fails every call.
	Times int
}

type account struct {
	user     api.User
	password string
	views    int
}

// Server is a fake backend. The zero value is not usable; call New.
type Server struct {
	*httptest.Server

	// Now is the clock used for tokens and schedules.
	Now func() time.Time
	// AccessTTL is the lifetime of minted access tokens.
	AccessTTL time.Duration

	secret []byte

	mu       sync.Mutex
	accounts map[string]*account
	links    map[string][]api.Link
	calls    map[string]int
	failures map[string]*Failure
	requests map[string][]map[string]any
	headers  map[string][]string
}

// New starts a fake backend closed at test cleanup.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		Now:       time.Now,
		AccessTTL: 30 * time.Minute,
		secret:    []byte(uuid.NewString()),
		accounts:  make(map[string]*account),
		links:     make(map[string][]api.Link),
		calls:     make(map[string]int),
		failures:  make(map[string]*Failure),
		requests:  make(map[string][]map[string]any),
		headers:   make(map[string][]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /graphql", s.handleGraphQL)
	mux.HandleFunc("GET /api/links", s.handleLinks)
	mux.HandleFunc("GET /api/public/links/{id}/click", s.handleClick)
	mux.HandleFunc("GET /api/public/{username}", s.handlePublicProfile)
	mux.HandleFunc("POST /api/public/{username}/view", s.handleView)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// GraphQLURL returns the GraphQL endpoint.
func (s *Server) GraphQLURL() string {
	return s.URL + "/graphql"
}

// AddUser registers an account and returns its identity.
func (s *Server) AddUser(username, email, password string) api.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, email, password, "")
}

func (s *Server) addUserLocked(username, email, password, displayName string) api.User {
	now := s.Now().UTC().Format(time.RFC3339)
	user := api.User{
		ID:          uuid.NewString(),
		Username:    username,
		Email:       email,
		DisplayName: displayName,
		Theme:       "default",
		BgColor:     "#ffffff",
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.accounts[user.ID] = &account{user: user, password: password}
	return user
}

// AddLink appends link to the user's collection, assigning an id and the
// next position.
func (s *Server) AddLink(userID string, link api.Link) api.Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.LinkType == "" {
		link.LinkType = api.LinkTypeLink
	}
	link.UserID = userID
	link.Position = len(s.links[userID])
	s.links[userID] = append(s.links[userID], link)
	return link
}

// Links returns the user's collection in position order.
func (s *Server) Links(userID string) []api.Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLinksLocked(userID)
}

// Views returns the number of recorded profile views.
func (s *Server) Views(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct, ok := s.accounts[userID]; ok {
		return acct.views
	}
	return 0
}

// Calls returns how many times operation was requested.
func (s *Server) Calls(operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[operation]
}

// LastVariables returns the variables of the latest call to operation.
func (s *Server) LastVariables(operation string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	reqs := s.requests[operation]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// Authorizations returns the Authorization headers seen for operation.
func (s *Server) Authorizations(operation string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.headers[operation])
}

// Fail injects f for operation. REST routes use the names ListLinks,
// PublicProfile, RecordView, and Click.
func (s *Server) Fail(operation string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[operation] = &f
}

// IssueTokens mints a valid token pair for userID.
func (s *Server) IssueTokens(userID string) api.TokenPair {
	now := s.Now()
	return api.TokenPair{
		AccessToken:  s.sign(userID, credentials.TokenTypeAccess, now.Add(s.AccessTTL)),
		RefreshToken: s.sign(userID, credentials.TokenTypeRefresh, now.Add(7*24*time.Hour)),
		TokenType:    "bearer",
	}
}

// ExpiredAccessToken mints an access token that is already expired.
func (s *Server) ExpiredAccessToken(userID string) string {
	return s.sign(userID, credentials.TokenTypeAccess, s.Now().Add(-time.Minute))
}

func (s *Server) sign(userID, tokenType string, expires time.Time) string {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, credentials.Claims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}).SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("sign token: %v", err))
	}
	return raw
}

// verify returns the subject of raw when it is a valid token of tokenType.
func (s *Server) verify(raw, tokenType string) (string, bool) {
	claims := &credentials.Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.Now),
	)
	if err != nil || claims.Type != tokenType || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// takeFailureLocked consumes one injected failure for operation. Callers hold mu.
func (s *Server) takeFailureLocked(operation string) *Failure {
	f, ok := s.failures[operation]
	if !ok {
		return nil
	}
	if f.Times > 0 {
		f.Times--
		if f.Times == 0 {
			delete(s.failures, operation)
		}
	}
	out := *f
	return &out
}

func (s *Server) sortedLinksLocked(userID string) []api.Link {
	links := slices.Clone(s.links[userID])
	slices.SortStableFunc(links, func(a, b api.Link) int { return a.Position - b.Position })
	return links
}

func (s *Server) userByNameLocked(username string) *account {
	for _, acct := range s.accounts {
		if acct.user.Username == username && acct.user.IsActive {
			return acct
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func bearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}
