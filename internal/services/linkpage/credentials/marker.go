package credentials

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// MarkerCookieName is the cookie that tells route guards a session exists.
const MarkerCookieName = "lt_logged_in"

// MarkerMaxAge matches the refresh token lifetime.
const MarkerMaxAge = 30 * 24 * time.Hour

// Marker keeps the logged-in cookie for the backend origin in a cookie jar.
// The jar can be shared with an http.Client so requests carry the cookie.
type Marker struct {
	jar  *cookiejar.Jar
	site *url.URL
}

// NewMarker creates a marker scoped to baseURL.
func NewMarker(baseURL string) (*Marker, error) {
	site, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if site.Scheme == "" || site.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Marker{jar: jar, site: &url.URL{Scheme: site.Scheme, Host: site.Host, Path: "/"}}, nil
}

// Jar returns the cookie jar holding the marker.
func (m *Marker) Jar() http.CookieJar {
	if m == nil {
		return nil
	}
	return m.jar
}

// Set records the logged-in marker.
func (m *Marker) Set() {
	if m == nil {
		return
	}
	m.jar.SetCookies(m.site, []*http.Cookie{{
		Name:   MarkerCookieName,
		Value:  "1",
		Path:   "/",
		MaxAge: int(MarkerMaxAge / time.Second),
	}})
}

// Clear expires the logged-in marker.
func (m *Marker) Clear() {
	if m == nil {
		return
	}
	m.jar.SetCookies(m.site, []*http.Cookie{{
		Name:   MarkerCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}})
}

// Present reports whether the marker is currently set.
func (m *Marker) Present() bool {
	if m == nil {
		return false
	}
	for _, cookie := range m.jar.Cookies(m.site) {
		if cookie.Name == MarkerCookieName && cookie.Value != "" {
			return true
		}
	}
	return false
}
