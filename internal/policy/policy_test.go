package policy

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func req(t *testing.T, raw string, mode Mode) Request {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return Request{Method: "GET", URL: u, Mode: mode}
}

func TestDefaultTableMatchesFirstPolicy(t *testing.T) {
	table := DefaultTable(DefaultOptions())

	tests := []struct {
		name      string
		request   Request
		wantName  string
		wantFound bool
	}{
		{"navigation", req(t, "https://app.example.com/teams", ModeNavigate), "pages", true},
		{"database read", req(t, "https://firestore.googleapis.com/v1/projects/p/documents/teams", ModeCORS), "database", true},
		{"stylesheet", req(t, "https://fonts.googleapis.com/css2?family=Inter", ModeNoCORS), "stylesheets", true},
		{"font subdomain", req(t, "https://sub.fonts.gstatic.com/s/inter.woff2", ModeCORS), "stylesheets", true},
		{"navigation to database host still pages", req(t, "https://firestore.googleapis.com/", ModeNavigate), "pages", true},
		{"plain asset", req(t, "https://app.example.com/assets/app.js", ModeSameOrigin), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := table.Match(tt.request)
			assert.Equal(t, tt.wantFound, ok)
			assert.Equal(t, tt.wantName, p.Name)
		})
	}
}

func TestDefaultTableLimits(t *testing.T) {
	table := DefaultTable(DefaultOptions())
	require.NoError(t, table.Validate())

	pages, ok := table.Lookup("pages")
	require.True(t, ok)
	assert.Equal(t, NetworkFirst, pages.Strategy)
	assert.Equal(t, 3*time.Second, pages.NetworkTimeout)
	assert.Equal(t, 10, pages.MaxEntries)
	assert.Equal(t, time.Hour, pages.MaxAge)

	db, ok := table.Lookup("database")
	require.True(t, ok)
	assert.Equal(t, NetworkFirst, db.Strategy)
	assert.Equal(t, 50, db.MaxEntries)
	assert.Zero(t, db.NetworkTimeout)

	styles, ok := table.Lookup("stylesheets")
	require.True(t, ok)
	assert.Equal(t, CacheFirst, styles.Strategy)
	assert.Equal(t, 365*24*time.Hour, styles.MaxAge)

	assert.Equal(t, []string{PagesCache, DatabaseCache, StylesheetsCache}, table.CacheNames())
}

func TestValidateRejectsBrokenPolicy(t *testing.T) {
	table := Table{{Name: "bad", Match: Navigation(), Strategy: "StaleWhileRevalidate", CacheName: "x", MaxEntries: 1, MaxAge: time.Second}}
	assert.Error(t, table.Validate())

	table = Table{{Name: "nomatch", Strategy: CacheFirst, CacheName: "x", MaxEntries: 1, MaxAge: time.Second}}
	assert.Error(t, table.Validate())

	table = Table{{Name: "zero", Match: Navigation(), Strategy: CacheFirst, CacheName: "x", MaxAge: time.Second}}
	assert.Error(t, table.Validate())
}

func TestValidateKeepsNavigationNetworkFirst(t *testing.T) {
	table := Table{{Name: "docs", Match: Navigation(), Strategy: CacheFirst, CacheName: "x", MaxEntries: 1, MaxAge: time.Second, NetworkTimeout: time.Second}}
	assert.ErrorIs(t, table.Validate(), ErrNavigationPolicy)

	table = Table{{Name: "docs", Match: Navigation(), Strategy: NetworkFirst, CacheName: "x", MaxEntries: 1, MaxAge: time.Second}}
	assert.ErrorIs(t, table.Validate(), ErrNavigationPolicy)

	assert.NoError(t, DefaultTable(DefaultOptions()).Validate())
}

func TestHandlesNavigation(t *testing.T) {
	table := DefaultTable(DefaultOptions())

	pages, _ := table.Lookup("pages")
	db, _ := table.Lookup("database")
	styles, _ := table.Lookup("stylesheets")
	assert.True(t, pages.HandlesNavigation())
	assert.False(t, db.HandlesNavigation())
	assert.False(t, styles.HandlesNavigation())
}

func TestManifestNeverIncludesDocuments(t *testing.T) {
	m := Manifest{Globs: []string{"**/*"}}

	assert.False(t, m.Includes("/index.html"))
	assert.False(t, m.Includes("nested/page.HTM"))
	assert.True(t, m.Includes("/assets/app.js"))
}

func TestDefaultManifestSelect(t *testing.T) {
	assets := []string{
		"/index.html",
		"/assets/app.3f2a.js",
		"assets/app.3f2a.js",
		"/assets/style.css",
		"/favicon.ico",
		"/robots.txt",
		"/img/logo.svg",
	}

	got := DefaultManifest().Select(assets)
	assert.Equal(t, []string{"/assets/app.3f2a.js", "/assets/style.css", "/favicon.ico", "/img/logo.svg"}, got)
}

func TestManifestExclude(t *testing.T) {
	m := Manifest{Globs: []string{"**/*.js"}, Exclude: []string{"**/*.map.js", "sw.js"}}

	assert.True(t, m.Includes("a/b/c.js"))
	assert.False(t, m.Includes("a/b/c.map.js"))
	assert.False(t, m.Includes("sw.js"))
}

func TestExpandBraces(t *testing.T) {
	assert.Equal(t, []string{"*.js", "*.css"}, expandBraces("*.{js,css}"))
	assert.Equal(t, []string{"a"}, expandBraces("a"))
	assert.Equal(t, []string{"a{b"}, expandBraces("a{b"))
}

func TestParseOverridesAndApply(t *testing.T) {
	data := []byte(`
[[policies]]
name = "pages"
network_timeout_seconds = 5
max_entries = 20

[[policies]]
name = "stylesheets"
strategy = "NetworkFirst"
`)
	overrides, err := ParseOverrides(data)
	require.NoError(t, err)
	require.Len(t, overrides, 2)

	table, err := DefaultTable(DefaultOptions()).WithOverrides(overrides)
	require.NoError(t, err)

	pages, _ := table.Lookup("pages")
	assert.Equal(t, 5*time.Second, pages.NetworkTimeout)
	assert.Equal(t, 20, pages.MaxEntries)
	assert.Equal(t, time.Hour, pages.MaxAge)

	styles, _ := table.Lookup("stylesheets")
	assert.Equal(t, NetworkFirst, styles.Strategy)

	original, _ := DefaultTable(DefaultOptions()).Lookup("stylesheets")
	assert.Equal(t, CacheFirst, original.Strategy)
}

func TestParseOverridesRejectsInvalidStrategy(t *testing.T) {
	_, err := ParseOverrides([]byte(`
[[policies]]
name = "pages"
strategy = "CacheOnly"
`))
	assert.Error(t, err)
}

func TestWithOverridesRejectsCacheFirstNavigation(t *testing.T) {
	overrides, err := ParseOverrides([]byte(`
[[policies]]
name = "pages"
strategy = "CacheFirst"
`))
	require.NoError(t, err)

	table, err := DefaultTable(DefaultOptions()).WithOverrides(overrides)

	assert.ErrorIs(t, err, ErrNavigationPolicy)
	assert.Nil(t, table)
}

func TestWithOverridesUnknownPolicy(t *testing.T) {
	_, err := DefaultTable(DefaultOptions()).WithOverrides([]Override{{Name: "images"}})
	assert.True(t, errors.Is(err, ErrUnknownPolicy))
}
