// Package policy defines the ordered cache policy table applied by the update agent.
package policy

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Strategy selects how a matched request is resolved.
type Strategy string

const (
	// NetworkFirst tries the network and falls back to the cache on failure.
	NetworkFirst Strategy = "NetworkFirst"
	// CacheFirst answers from the cache and only fills misses from the network.
	CacheFirst Strategy = "CacheFirst"
)

// Mode mirrors the fetch request mode of an intercepted request.
type Mode string

const (
	ModeNavigate   Mode = "navigate"
	ModeCORS       Mode = "cors"
	ModeNoCORS     Mode = "no-cors"
	ModeSameOrigin Mode = "same-origin"
)

// Request is an intercepted request. Body is forwarded untouched for writes.
type Request struct {
	Method string
	URL    *url.URL
	Mode   Mode
	Header http.Header
	Body   []byte
}

// Key returns the cache key for the request.
func (r Request) Key() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// IsNavigation reports whether the request is a full-page document load.
func (r Request) IsNavigation() bool {
	return r.Mode == ModeNavigate
}

// Matcher decides whether a policy applies to a request.
type Matcher func(Request) bool

// CachePolicy binds a matcher to a caching strategy and cache limits.
type CachePolicy struct {
	Name           string        `validate:"required"`
	Match          Matcher       `validate:"required"`
	Strategy       Strategy      `validate:"oneof=NetworkFirst CacheFirst"`
	CacheName      string        `validate:"required"`
	MaxEntries     int           `validate:"gt=0"`
	MaxAge         time.Duration `validate:"gt=0"`
	NetworkTimeout time.Duration `validate:"gte=0"`
}

// Table is an ordered list of policies. The first matching policy wins.
type Table []CachePolicy

// Match returns the first policy whose matcher accepts req.
func (t Table) Match(req Request) (CachePolicy, bool) {
	for _, p := range t {
		if p.Match != nil && p.Match(req) {
			return p, true
		}
	}
	return CachePolicy{}, false
}

// CacheNames returns the cache names used by the table, in table order.
func (t Table) CacheNames() []string {
	names := make([]string, 0, len(t))
	seen := make(map[string]bool, len(t))
	for _, p := range t {
		if seen[p.CacheName] {
			continue
		}
		seen[p.CacheName] = true
		names = append(names, p.CacheName)
	}
	return names
}

// Lookup returns the policy with the given name.
func (t Table) Lookup(name string) (CachePolicy, bool) {
	for _, p := range t {
		if p.Name == name {
			return p, true
		}
	}
	return CachePolicy{}, false
}

var validate = validator.New()

// ErrNavigationPolicy is returned when a policy handling navigations is not
// NetworkFirst with a positive network timeout.
var ErrNavigationPolicy = errors.New("navigation policy must be NetworkFirst with a network timeout")

// navigationSample is a navigation that only a navigation matcher accepts.
var navigationSample = Request{
	Method: http.MethodGet,
	URL:    &url.URL{Scheme: "https", Host: "navigation.invalid", Path: "/"},
	Mode:   ModeNavigate,
}

// HandlesNavigation reports whether p matches full-page document loads.
func (p CachePolicy) HandlesNavigation() bool {
	return p.Match != nil && p.Match(navigationSample)
}

// Validate checks every policy for a usable strategy and positive limits.
// Navigations must stay NetworkFirst with a bounded network timeout.
func (t Table) Validate() error {
	for i, p := range t {
		if err := validate.Struct(p); err != nil {
			return fmt.Errorf("policy %d (%s): %w", i, p.Name, err)
		}
		if p.HandlesNavigation() && (p.Strategy != NetworkFirst || p.NetworkTimeout <= 0) {
			return fmt.Errorf("policy %d (%s): %w", i, p.Name, ErrNavigationPolicy)
		}
	}
	return nil
}

// Navigation matches full-page document loads.
func Navigation() Matcher {
	return func(r Request) bool { return r.IsNavigation() }
}

// HostIn matches requests whose host equals one of hosts or is a subdomain of one.
func HostIn(hosts ...string) Matcher {
	normalized := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			normalized = append(normalized, h)
		}
	}
	return func(r Request) bool {
		if r.URL == nil {
			return false
		}
		host := strings.ToLower(r.URL.Hostname())
		for _, h := range normalized {
			if host == h || strings.HasSuffix(host, "."+h) {
				return true
			}
		}
		return false
	}
}

// Options configures the default table.
type Options struct {
	NavigationTimeout time.Duration
	DatabaseHosts     []string
	StylesheetHosts   []string
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		NavigationTimeout: 3 * time.Second,
		DatabaseHosts:     []string{"firestore.googleapis.com"},
		StylesheetHosts:   []string{"fonts.googleapis.com", "fonts.gstatic.com"},
	}
}

// Cache names used by the default table.
const (
	PagesCache       = "pages"
	DatabaseCache    = "database"
	StylesheetsCache = "stylesheets"
)

// DefaultTable returns the policy table for pages, database endpoints and
// third-party stylesheets.
func DefaultTable(opts Options) Table {
	timeout := opts.NavigationTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return Table{
		{
			Name:           "pages",
			Match:          Navigation(),
			Strategy:       NetworkFirst,
			CacheName:      PagesCache,
			MaxEntries:     10,
			MaxAge:         time.Hour,
			NetworkTimeout: timeout,
		},
		{
			Name:       "database",
			Match:      HostIn(opts.DatabaseHosts...),
			Strategy:   NetworkFirst,
			CacheName:  DatabaseCache,
			MaxEntries: 50,
			MaxAge:     time.Hour,
		},
		{
			Name:       "stylesheets",
			Match:      HostIn(opts.StylesheetHosts...),
			Strategy:   CacheFirst,
			CacheName:  StylesheetsCache,
			MaxEntries: 10,
			MaxAge:     365 * 24 * time.Hour,
		},
	}
}
