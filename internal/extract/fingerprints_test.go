package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shield4u/pagescope/internal/render"
)

func TestFingerprintsPassCMS(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected []string
	}{
		{
			name: "generator meta recorded verbatim plus path fallback",
			html: `<html><head><meta name="generator" content="WordPress 6.4.2"></head>
				<body><script src="/wp-content/themes/x/app.js"></script></body></html>`,
			expected: []string{"WordPress 6.4.2", "WordPress"},
		},
		{
			name:     "joomla from component path",
			html:     `<html><body><a href="/components/com_contact/view">contact</a></body></html>`,
			expected: []string{"Joomla"},
		},
		{
			name:     "drupal from sites path",
			html:     `<html><body><img src="/sites/default/files/logo.png"></body></html>`,
			expected: []string{"Drupal"},
		},
		{
			name:     "no signals",
			html:     `<html><body><p>plain page</p></body></html>`,
			expected: []string{},
		},
	}

	e := NewExtractor(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := pageWith(tt.html)
			report := e.fingerprintsPass(parseDocument(tt.html), page)
			assert.Equal(t, tt.expected, report.CMS)
		})
	}
}

func TestPluginSignals(t *testing.T) {
	assets := []string{
		"https://example.com/wp-content/plugins/woocommerce/assets/js/cart.js?ver=8.1.2",
		"https://example.com/wp-content/plugins/seo-tool/main.js",
		"https://example.com/js/slider.js?v=2.0.1",
		"https://example.com/js/app.js",
	}

	plugins := pluginSignals(assets)

	require.Len(t, plugins, 3)
	assert.Equal(t, Plugin{
		Name:    "woocommerce",
		Version: "8.1.2",
		URL:     assets[0],
	}, plugins[0])
	assert.Equal(t, Plugin{
		Name:    "seo-tool",
		Version: "unknown",
		URL:     assets[1],
	}, plugins[1])
	assert.Equal(t, Plugin{
		Name:    "slider.js",
		Version: "2.0.1",
		URL:     assets[2],
	}, plugins[2])
}

func TestPluginSignalsDeduplicates(t *testing.T) {
	assets := []string{
		"https://example.com/wp-content/plugins/gallery/a.js?ver=1.2.3",
		"https://example.com/wp-content/plugins/gallery/b.css?ver=1.2.3",
	}

	plugins := pluginSignals(assets)
	require.Len(t, plugins, 1)
	assert.Equal(t, "gallery", plugins[0].Name)
}

func TestTechSignals(t *testing.T) {
	tests := []struct {
		name     string
		page     *render.RenderedPage
		assets   []string
		anchors  []string
		expected []string
	}{
		{
			name:     "jquery from script URL",
			page:     pageWith(""),
			assets:   []string{"https://example.com/js/jQuery-3.6.0.min.js"},
			expected: []string{"jQuery"},
		},
		{
			name:     "jquery from page source",
			page:     pageWith(`<script>window.jQuery = {};</script>`),
			expected: []string{"jQuery"},
		},
		{
			name:     "php from link extension",
			page:     pageWith(""),
			anchors:  []string{"https://example.com/index.php?id=3"},
			expected: []string{"PHP"},
		},
		{
			name:     "aspx and jsp extensions",
			page:     pageWith(""),
			anchors:  []string{"https://example.com/Default.aspx", "https://example.com/view.jsp"},
			expected: []string{"ASP.NET", "Java"},
		},
		{
			name: "session cookies",
			page: &render.RenderedPage{
				HTML: "",
				Cookies: []render.Cookie{
					{Name: "PHPSESSID", Value: "x"},
					{Name: "ASPSESSIONIDQWERTY", Value: "y"},
				},
			},
			expected: []string{"PHP", "ASP.NET"},
		},
		{
			name: "co-occurring signals deduplicate",
			page: &render.RenderedPage{
				HTML:    "uses jQuery",
				Cookies: []render.Cookie{{Name: "PHPSESSID", Value: "x"}},
			},
			assets:   []string{"https://example.com/js/jquery.min.js"},
			anchors:  []string{"https://example.com/page.php"},
			expected: []string{"jQuery", "PHP"},
		},
		{
			name:     "nothing detected",
			page:     pageWith("<html><body>static</body></html>"),
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, techSignals(tt.page, tt.assets, tt.anchors))
		})
	}
}

func TestFingerprintsPassDetectedWithoutDetector(t *testing.T) {
	e := NewExtractor(nil, nil)
	page := pageWith("<html><body></body></html>")

	report := e.fingerprintsPass(parseDocument(page.HTML), page)

	assert.NotNil(t, report.Detected)
	assert.Empty(t, report.Detected)
}

func TestAssetFileName(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"query stripped", "https://example.com/js/slider.js?v=2.0.1", "slider.js"},
		{"fragment stripped", "https://example.com/app.js#main", "app.js"},
		{"no path", "https://example.com", "example.com"},
		{"trailing slash", "https://example.com/css/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, assetFileName(tt.url))
		})
	}
}
