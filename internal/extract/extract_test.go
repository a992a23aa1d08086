package extract

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shield4u/pagescope/internal/render"
	"github.com/shield4u/pagescope/internal/techdetect"
)

const adminFixture = `<!DOCTYPE html>
<html>
<head>
	<title>Acme Admin</title>
	<meta name="generator" content="WordPress 6.2">
	<script src="/wp-content/plugins/login-shield/shield.js?ver=1.0.3"></script>
</head>
<body>
	<h1>Dashboard Login</h1>
	<a href="/admin/">Admin area</a>
	<a href="/blog">Blog</a>
	<p>Email admin@example.com for access.</p>
	<form action="/wp-login.php" method="post">
		<input type="text" name="username">
		<input type="password" name="pwd">
	</form>
</body>
</html>`

func adminPage() *render.RenderedPage {
	return &render.RenderedPage{
		URL:      "https://example.com",
		FinalURL: "https://example.com/",
		Title:    "Acme Admin",
		HTML:     adminFixture,
		Status:   200,
		SecurityHeaders: map[string]string{
			"x-frame-options": "SAMEORIGIN",
		},
		Network: []render.NetworkEntry{
			{URL: "https://example.com/", Method: "GET", Status: 200, MIMEType: "text/html"},
		},
		Cookies: []render.Cookie{
			{Name: "session", Value: "abc123"},
			{Name: "theme", Value: "dark"},
		},
		LocalStorageKeys: []string{"wp-settings"},
		FetchedAt:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestExtractAdminPage(t *testing.T) {
	e := NewExtractor(nil, nil)
	req := &Request{
		TaskID:         "task-1",
		ParentID:       "parent-1",
		TargetURL:      "https://example.com",
		RemainingDepth: 2,
		CurrentDepth:   1,
	}

	report := e.Extract(context.Background(), req, adminPage())

	assert.Equal(t, RequestInfo{
		TaskID:         "task-1",
		ParentID:       "parent-1",
		TargetURL:      "https://example.com",
		FinalURL:       "https://example.com/",
		RemainingDepth: 2,
		CurrentDepth:   1,
	}, report.RequestInfo)

	// Browser capture lifted with cookie values masked.
	assert.Equal(t, "Acme Admin", report.Browser.Meta.Title)
	assert.Equal(t, 200, report.Browser.Meta.Status)
	assert.Equal(t, []CookieSummary{
		{Name: "session", Value: "[REDACTED]"},
		{Name: "theme", Value: "dark"},
	}, report.Browser.Cookies)
	assert.Equal(t, []string{"wp-settings"}, report.Browser.StorageKeys.LocalStorage)
	assert.Equal(t, []string{}, report.Browser.StorageKeys.SessionStorage)

	// Fingerprints: generator verbatim plus the wp-content path fallback.
	assert.Contains(t, report.Fingerprints.CMS, "WordPress 6.2")
	assert.Contains(t, report.Fingerprints.CMS, "WordPress")
	require.Len(t, report.Fingerprints.Plugins, 1)
	assert.Equal(t, Plugin{
		Name:    "login-shield",
		Version: "1.0.3",
		URL:     "https://example.com/wp-content/plugins/login-shield/shield.js?ver=1.0.3",
	}, report.Fingerprints.Plugins[0])

	// Login signals from keywords, link patterns and the login form.
	assert.True(t, report.LoginSignals.IsAdminLike)
	assert.Contains(t, report.LoginSignals.CandidateURLs, "https://example.com/admin/")
	assert.Contains(t, report.LoginSignals.CandidateURLs, "https://example.com/wp-login.php")
	assert.Contains(t, report.LoginSignals.KeywordsFound, "Admin")
	assert.Contains(t, report.LoginSignals.KeywordsFound, "Dashboard")
	assert.Contains(t, report.LoginSignals.KeywordsFound, "Login")

	// Depth 2 collects links; the admin path is annotated out of scope.
	assert.Contains(t, report.DOM.VisibleLinks, Link{URL: "https://example.com/admin", InScope: false})
	assert.Contains(t, report.DOM.VisibleLinks, Link{URL: "https://example.com/blog", InScope: true})
	assert.Equal(t, "WordPress 6.2", report.DOM.Generator)

	assert.Equal(t, []string{"admin@example.com"}, report.OSINT.Emails)
}

func TestExtractDepthZeroCollectsNoLinks(t *testing.T) {
	e := NewExtractor(nil, nil)
	req := &Request{TaskID: "task-2", ParentID: "parent-2", TargetURL: "https://example.com"}

	report := e.Extract(context.Background(), req, adminPage())

	assert.Empty(t, report.DOM.VisibleLinks)
	// The other passes are unaffected by depth.
	assert.True(t, report.LoginSignals.IsAdminLike)
	assert.NotEmpty(t, report.Fingerprints.CMS)
}

func TestExtractEmptyCollectionsSerialiseAsArrays(t *testing.T) {
	e := NewExtractor(nil, nil)
	req := &Request{TaskID: "task-3", ParentID: "parent-3", TargetURL: "https://example.com"}
	page := pageWith("<html><body><p>nothing here</p></body></html>")

	report := e.Extract(context.Background(), req, page)

	data, err := json.Marshal(report)
	require.NoError(t, err)
	body := string(data)

	for _, key := range []string{
		"visible_links", "forms", "comments", "text_leaks", "scripts", "stylesheets",
		"cms", "plugins", "tech", "candidate_urls", "keywords_found",
		"emails", "phones", "social_links", "cloud_links", "open_directory",
		"cookies", "network_summary", "local_storage", "session_storage",
	} {
		assert.Contains(t, body, `"`+key+`":[]`, "expected %s to serialise as []", key)
	}
	assert.Contains(t, body, `"security_headers":{}`)
	assert.Contains(t, body, `"detected":{}`)
	assert.NotContains(t, body, "null")
}

func TestExtractWithDetector(t *testing.T) {
	detector, err := techdetect.New()
	require.NoError(t, err)

	e := NewExtractor(nil, detector)
	req := &Request{TaskID: "task-4", ParentID: "parent-4", TargetURL: "https://example.com"}

	report := e.Extract(context.Background(), req, adminPage())

	assert.NotNil(t, report.Fingerprints.Detected)
}

func TestHeaderFromPage(t *testing.T) {
	page := &render.RenderedPage{
		SecurityHeaders: map[string]string{
			"x-frame-options":         "DENY",
			"content-security-policy": "default-src 'self'",
		},
	}

	headers := headerFromPage(page)

	assert.Equal(t, "DENY", headers.Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'self'", headers.Get("Content-Security-Policy"))
}

func TestAnchorURLs(t *testing.T) {
	html := `<html><body>
		<a href="/a">one</a>
		<a href="/a">dup</a>
		<a href="https://other.com/b">two</a>
		<a href="javascript:void(0)">js</a>
		<a href="#section">frag</a>
	</body></html>`

	urls := anchorURLs(parseDocument(html), "https://example.com/")

	assert.Equal(t, []string{"https://example.com/a", "https://other.com/b"}, urls)
}
