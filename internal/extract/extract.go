// Package extract turns a rendered page into a structured extraction report.
// Four independent passes (DOM facts, fingerprints, login-panel signals,
// OSINT exposure) run concurrently over a read-only parsed document; each
// pass is total — pages with no signal produce empty sub-reports, never
// errors.
package extract

import (
	"context"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/shield4u/pagescope/internal/render"
	"github.com/shield4u/pagescope/internal/scope"
	"github.com/shield4u/pagescope/internal/techdetect"
	"github.com/shield4u/pagescope/internal/util"
)

// Request identifies the task a report is produced for. RemainingDepth gates
// link collection: at zero the orchestrator will not recurse, so visible
// links are not gathered.
type Request struct {
	TaskID         string
	ParentID       string
	TargetURL      string
	RemainingDepth int
	CurrentDepth   int
}

// Extractor runs the extraction passes under one scope policy.
type Extractor struct {
	policy   *scope.Policy
	detector *techdetect.Detector
}

// NewExtractor creates an extractor. The detector may be nil, in which case
// fingerprints.detected stays empty.
func NewExtractor(policy *scope.Policy, detector *techdetect.Detector) *Extractor {
	if policy == nil {
		policy = scope.DefaultPolicy()
	}
	return &Extractor{policy: policy, detector: detector}
}

// Extract assembles the full report for one rendered page. The browser
// sub-report and request echo are built inline; the four document passes run
// concurrently, each writing only its own sub-report.
func (e *Extractor) Extract(ctx context.Context, req *Request, page *render.RenderedPage) *Report {
	doc := parseDocument(page.HTML)

	report := &Report{
		RequestInfo: RequestInfo{
			TaskID:         req.TaskID,
			ParentID:       req.ParentID,
			TargetURL:      req.TargetURL,
			FinalURL:       page.FinalURL,
			RemainingDepth: req.RemainingDepth,
			CurrentDepth:   req.CurrentDepth,
		},
		Browser: buildBrowserReport(page, e.policy),
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		report.DOM = e.domPass(doc, page, req.RemainingDepth)
		return nil
	})
	g.Go(func() error {
		report.Fingerprints = e.fingerprintsPass(doc, page)
		return nil
	})
	g.Go(func() error {
		report.LoginSignals = loginPass(doc, page)
		return nil
	})
	g.Go(func() error {
		report.OSINT = osintPass(doc, page)
		return nil
	})
	// Passes are total; the group only schedules them.
	_ = g.Wait()

	log.Debug().
		Str("task_id", req.TaskID).
		Str("final_url", page.FinalURL).
		Int("visible_links", len(report.DOM.VisibleLinks)).
		Bool("admin_like", report.LoginSignals.IsAdminLike).
		Msg("Extraction completed")

	return report
}

// buildBrowserReport lifts the render capture into the report, masking cookie
// values on the way.
func buildBrowserReport(page *render.RenderedPage, p *scope.Policy) BrowserReport {
	cookies := make([]CookieSummary, 0, len(page.Cookies))
	for _, c := range page.Cookies {
		cookies = append(cookies, CookieSummary{
			Name:  c.Name,
			Value: scope.Mask(c.Name, c.Value, p),
		})
	}

	network := make([]render.NetworkEntry, 0, len(page.Network))
	network = append(network, page.Network...)

	headers := page.SecurityHeaders
	if headers == nil {
		headers = map[string]string{}
	}

	return BrowserReport{
		Meta: BrowserMeta{
			URL:       page.URL,
			FinalURL:  page.FinalURL,
			Title:     page.Title,
			Status:    page.Status,
			Timestamp: page.FetchedAt,
		},
		SecurityHeaders: headers,
		StorageKeys: StorageKeys{
			LocalStorage:   stringList(page.LocalStorageKeys),
			SessionStorage: stringList(page.SessionStorageKeys),
		},
		Cookies:        cookies,
		NetworkSummary: network,
	}
}

func parseDocument(pageHTML string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	return doc
}

// anchorURLs returns the document's anchor targets resolved against the
// final URL, deduplicated preserving first-seen order. Non-navigational
// references (fragments, javascript:, mailto:) resolve away.
func anchorURLs(doc *goquery.Document, finalURL string) []string {
	urls := make([]string, 0)
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		resolved := util.ResolveURL(finalURL, href)
		if resolved == "" {
			return
		}
		if _, ok := seen[resolved]; ok {
			return
		}
		seen[resolved] = struct{}{}
		urls = append(urls, resolved)
	})
	return urls
}

// headerFromPage rebuilds an http.Header from the captured security headers
// for signature-based detection.
func headerFromPage(page *render.RenderedPage) http.Header {
	headers := make(http.Header, len(page.SecurityHeaders))
	for name, value := range page.SecurityHeaders {
		headers.Set(name, value)
	}
	return headers
}

func stringList(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
