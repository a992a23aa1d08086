package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"

	"github.com/shield4u/pagescope/internal/scope"
)

// StaticRenderer fetches the page over plain HTTP with the cookie set applied
// and redirects followed. It executes no JavaScript and captures no browser
// storage, so reports carry a single-entry network trace; intended for
// environments without a Chrome binary.
type StaticRenderer struct {
	config *Config
	policy *scope.Policy
}

// NewStaticRenderer creates the fallback renderer.
func NewStaticRenderer(config *Config, policy *scope.Policy) *StaticRenderer {
	if config == nil {
		config = DefaultConfig()
	}
	if policy == nil {
		policy = scope.DefaultPolicy()
	}
	return &StaticRenderer{config: config, policy: policy}
}

// Render performs one GET of targetURL. Responses whose content type fails
// the policy allow-list are rejected with a RenderError rather than parsed.
func (r *StaticRenderer) Render(ctx context.Context, targetURL string, cookies map[string]string) (*RenderedPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RenderError{URL: targetURL, Stage: "session", Err: err}
	}

	// ParseHTTPErrorResponse keeps parity with the browser path: a 404 page
	// is still a page, not a fetch failure.
	collector := colly.NewCollector(
		colly.UserAgent(r.config.UserAgent),
		colly.MaxDepth(1),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	collector.SetRequestTimeout(r.config.Timeout)

	if len(cookies) > 0 {
		if err := collector.SetCookies(targetURL, httpCookies(cookies)); err != nil {
			return nil, &RenderError{URL: targetURL, Stage: "session", Err: err}
		}
	}

	var (
		page     *RenderedPage
		fetchErr error
	)

	collector.OnResponse(func(resp *colly.Response) {
		contentType := resp.Headers.Get("Content-Type")
		if !scope.AllowsContentType(contentType, r.policy) {
			fetchErr = fmt.Errorf("content type %q rejected by policy", contentType)
			return
		}

		finalURL := resp.Request.URL.String()
		entry := NetworkEntry{
			URL:      finalURL,
			Method:   http.MethodGet,
			Status:   resp.StatusCode,
			MIMEType: contentType,
			CORS:     resp.Headers.Get("Access-Control-Allow-Origin") != "",
		}
		if len(resp.Body) > 0 {
			entry.BodySample = scope.MaskBody(sampleBody(resp.Body), r.policy)
		}

		page = &RenderedPage{
			URL:             targetURL,
			FinalURL:        finalURL,
			Title:           htmlTitle(resp.Body),
			HTML:            string(resp.Body),
			Status:          resp.StatusCode,
			SecurityHeaders: staticSecurityHeaders(resp.Headers),
			Network:         []NetworkEntry{entry},
			FetchedAt:       time.Now().UTC(),
		}
	})

	collector.OnError(func(resp *colly.Response, err error) {
		fetchErr = err
	})

	log.Debug().Str("url", targetURL).Msg("Starting static fetch")

	if err := collector.Visit(targetURL); err != nil {
		return nil, &RenderError{URL: targetURL, Stage: "navigate", Err: err}
	}
	collector.Wait()

	if fetchErr != nil {
		return nil, &RenderError{URL: targetURL, Stage: "navigate", Err: fetchErr}
	}
	if page == nil {
		return nil, &RenderError{URL: targetURL, Stage: "capture", Err: errors.New("no response received")}
	}
	return page, nil
}

func httpCookies(cookies map[string]string) []*http.Cookie {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	jar := make([]*http.Cookie, 0, len(cookies))
	for _, name := range names {
		jar = append(jar, &http.Cookie{Name: name, Value: cookies[name]})
	}
	return jar
}

func staticSecurityHeaders(headers *http.Header) map[string]string {
	out := make(map[string]string)
	for _, name := range securityHeaderNames {
		if value := headers.Get(name); value != "" {
			out[name] = value
		}
	}
	return out
}

func htmlTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
