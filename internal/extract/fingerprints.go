package extract

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shield4u/pagescope/internal/render"
	"github.com/shield4u/pagescope/internal/util"
)

var (
	pluginVersionRe = regexp.MustCompile(`[?&](ver|v)=(\d+\.[\d.]+)`)
	wpPluginPathRe  = regexp.MustCompile(`/wp-content/plugins/([^/?#]+)/`)
)

// cmsPathSignals maps CMS names to static-path fragments that betray them
// when no generator meta is present.
var cmsPathSignals = []struct {
	name      string
	fragments []string
}{
	{"WordPress", []string{"/wp-content/", "/wp-includes/"}},
	{"Joomla", []string{"/media/jui/", "/components/com_"}},
	{"Drupal", []string{"/sites/default/files"}},
}

func (e *Extractor) fingerprintsPass(doc *goquery.Document, page *render.RenderedPage) FingerprintsReport {
	report := FingerprintsReport{
		CMS:      make([]string, 0),
		Plugins:  make([]Plugin, 0),
		Tech:     make([]string, 0),
		Detected: make(map[string][]string),
	}

	assets := assetURLs(doc, page.FinalURL)
	anchors := anchorURLs(doc, page.FinalURL)

	report.CMS = cmsSignals(doc, page.HTML)
	report.Plugins = pluginSignals(assets)
	report.Tech = techSignals(page, assets, anchors)

	if e.detector != nil {
		result := e.detector.Detect(headerFromPage(page), []byte(page.HTML))
		report.Detected = result.Technologies
	}

	return report
}

// assetURLs returns script sources and link hrefs resolved against the final
// URL, in document order.
func assetURLs(doc *goquery.Document, finalURL string) []string {
	assets := make([]string, 0)
	doc.Find("script[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		if resolved := util.ResolveURL(finalURL, src); resolved != "" {
			assets = append(assets, resolved)
		}
	})
	doc.Find("link[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if resolved := util.ResolveURL(finalURL, href); resolved != "" {
			assets = append(assets, resolved)
		}
	})
	return assets
}

// cmsSignals records the generator meta content verbatim, then falls back to
// vendor-path fragments in the page source.
func cmsSignals(doc *goquery.Document, pageHTML string) []string {
	cms := make([]string, 0)
	seen := make(map[string]struct{})
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		cms = append(cms, name)
	}

	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		if !strings.EqualFold(name, "generator") {
			return
		}
		content, _ := sel.Attr("content")
		add(strings.TrimSpace(content))
	})

	for _, signal := range cmsPathSignals {
		for _, fragment := range signal.fragments {
			if strings.Contains(pageHTML, fragment) {
				add(signal.name)
				break
			}
		}
	}
	return cms
}

// pluginSignals derives plugin entries from asset URLs. A WordPress plugin
// path names the entry after the plugin directory; any other asset with a
// version query is named after the asset file. Vendor-path matches without a
// version query report "unknown" rather than being omitted.
func pluginSignals(assets []string) []Plugin {
	plugins := make([]Plugin, 0)
	seen := make(map[string]struct{})

	for _, asset := range assets {
		version := "unknown"
		if m := pluginVersionRe.FindStringSubmatch(asset); m != nil {
			version = m[2]
		}

		var name string
		if m := wpPluginPathRe.FindStringSubmatch(asset); m != nil {
			name = m[1]
		} else if version != "unknown" {
			name = assetFileName(asset)
		}
		if name == "" {
			continue
		}

		key := name + "@" + version
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		plugins = append(plugins, Plugin{Name: name, Version: version, URL: asset})
	}
	return plugins
}

func assetFileName(rawURL string) string {
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return trimmed
}

// techSignals is an OR of independent signals; co-occurring technologies all
// appear, each at most once.
func techSignals(page *render.RenderedPage, assets, anchors []string) []string {
	tech := make([]string, 0)
	seen := make(map[string]struct{})
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		tech = append(tech, name)
	}

	jquery := strings.Contains(page.HTML, "jQuery")
	for _, asset := range assets {
		if strings.Contains(strings.ToLower(asset), "jquery") {
			jquery = true
			break
		}
	}
	if jquery {
		add("jQuery")
	}

	for _, u := range anchors {
		addTechByExtension(add, u)
	}
	for _, u := range assets {
		addTechByExtension(add, u)
	}

	for _, c := range page.Cookies {
		switch {
		case c.Name == "PHPSESSID":
			add("PHP")
		case c.Name == "JSESSIONID":
			add("Java")
		case strings.HasPrefix(c.Name, "ASPSESSIONID"), c.Name == "ASP.NET_SessionId":
			add("ASP.NET")
		}
	}
	return tech
}

func addTechByExtension(add func(string), rawURL string) {
	switch urlPathExt(rawURL) {
	case ".php":
		add("PHP")
	case ".asp", ".aspx":
		add("ASP.NET")
	case ".jsp":
		add("Java")
	}
}

func urlPathExt(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(parsed.Path))
}
