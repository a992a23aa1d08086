package extract

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/shield4u/pagescope/internal/render"
	"github.com/shield4u/pagescope/internal/scope"
	"github.com/shield4u/pagescope/internal/util"
)

// visibleTextSampleLimit bounds the report's text sample in code points.
const visibleTextSampleLimit = 500

const defaultEnctype = "application/x-www-form-urlencoded"

var (
	credentialLeakRe = regexp.MustCompile(`(?i)\b(api[-_]?key|secret|token|password)\b[\s=:]+[\w.\-]+`)
	debugFlagRe      = regexp.MustCompile(`(?i)\bDEBUG\s*=\s*(True|1|on)\b`)
	stackTraceRe     = regexp.MustCompile(`(?i)(Exception:|Traceback \(most recent call last\)|Warning:|Fatal error)`)
)

// Elements whose text content is never visible on the page.
var invisibleElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

func (e *Extractor) domPass(doc *goquery.Document, page *render.RenderedPage, remainingDepth int) DOMReport {
	report := DOMReport{
		Meta:         make([]MetaTag, 0),
		Scripts:      make([]string, 0),
		Stylesheets:  make([]string, 0),
		VisibleLinks: make([]Link, 0),
		Forms:        make([]Form, 0),
		Comments:     make([]string, 0),
		TextLeaks:    make([]TextLeak, 0),
	}

	report.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		tag := MetaTag{}
		tag.Name, _ = sel.Attr("name")
		tag.Property, _ = sel.Attr("property")
		tag.Content, _ = sel.Attr("content")
		if tag.Name == "" && tag.Property == "" && tag.Content == "" {
			return
		}
		report.Meta = append(report.Meta, tag)
		if report.Generator == "" && strings.EqualFold(tag.Name, "generator") {
			report.Generator = tag.Content
		}
	})

	doc.Find("script[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		if resolved := util.ResolveURL(page.FinalURL, src); resolved != "" {
			report.Scripts = append(report.Scripts, resolved)
		}
	})

	doc.Find("link[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if resolved := util.ResolveURL(page.FinalURL, href); resolved != "" {
			report.Stylesheets = append(report.Stylesheets, resolved)
		}
	})

	// Link collection is the input to the orchestrator's recursion; at depth
	// zero there is nothing left to schedule.
	if remainingDepth > 0 {
		report.VisibleLinks = e.collectLinks(doc, page.FinalURL)
	}

	doc.Find("form").Each(func(_ int, sel *goquery.Selection) {
		report.Forms = append(report.Forms, parseForm(sel, page.FinalURL))
	})

	report.Comments = collectComments(doc)

	text := visibleText(doc)
	report.TextLeaks = findTextLeaks(text)
	report.VisibleTextSample = truncateSample(text, visibleTextSampleLimit)

	return report
}

// collectLinks canonicalises the document's anchor targets and annotates each
// against the crawl scope. Links that cannot be normalised are skipped;
// duplicates keep their first-seen position.
func (e *Extractor) collectLinks(doc *goquery.Document, finalURL string) []Link {
	links := make([]Link, 0)
	seen := make(map[string]struct{})
	opts := util.NormaliseOptions{StripParams: e.policy.ParamsToRemove}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		resolved := util.ResolveURL(finalURL, href)
		if resolved == "" {
			return
		}
		canonical, err := util.NormaliseURL(resolved, opts)
		if err != nil {
			return
		}
		if _, ok := seen[canonical]; ok {
			return
		}
		seen[canonical] = struct{}{}
		links = append(links, Link{
			URL:     canonical,
			InScope: scope.InScope(finalURL, canonical, e.policy),
		})
	})
	return links
}

func parseForm(sel *goquery.Selection, finalURL string) Form {
	form := Form{
		Method:  http.MethodGet,
		Enctype: defaultEnctype,
		Inputs:  make([]string, 0),
	}

	if action, ok := sel.Attr("action"); ok && strings.TrimSpace(action) != "" {
		form.Action = util.ResolveURL(finalURL, action)
	} else {
		// A form without an action submits to the document itself.
		form.Action = finalURL
	}

	if method, ok := sel.Attr("method"); ok && strings.TrimSpace(method) != "" {
		form.Method = strings.ToUpper(strings.TrimSpace(method))
	}
	if enctype, ok := sel.Attr("enctype"); ok && strings.TrimSpace(enctype) != "" {
		form.Enctype = strings.TrimSpace(enctype)
	}

	sel.Find("input").Each(func(_ int, input *goquery.Selection) {
		if name, ok := input.Attr("name"); ok && name != "" {
			form.Inputs = append(form.Inputs, name)
		}
	})
	return form
}

func collectComments(doc *goquery.Document) []string {
	comments := make([]string, 0)
	seen := make(map[string]struct{})

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.CommentNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if _, ok := seen[text]; !ok {
					seen[text] = struct{}{}
					comments = append(comments, text)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, node := range doc.Nodes {
		walk(node)
	}
	return comments
}

// visibleText returns the page's rendered text with whitespace collapsed to
// single spaces. Script, style and template contents are excluded.
func visibleText(doc *goquery.Document) string {
	var b strings.Builder
	for _, node := range doc.Nodes {
		collectText(node, &b)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode && invisibleElements[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

func findTextLeaks(text string) []TextLeak {
	leaks := make([]TextLeak, 0)
	seen := make(map[string]struct{})

	add := func(kind string, matches []string) {
		for _, m := range matches {
			key := kind + "\x00" + m
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			leaks = append(leaks, TextLeak{Kind: kind, Snippet: m})
		}
	}

	add("credential", credentialLeakRe.FindAllString(text, -1))
	add("debug_flag", debugFlagRe.FindAllString(text, -1))
	add("stack_trace", stackTraceRe.FindAllString(text, -1))
	return leaks
}

// truncateSample limits text to the given number of code points, appending an
// ellipsis only when something was cut.
func truncateSample(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
