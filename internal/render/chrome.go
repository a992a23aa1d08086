package render

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/shield4u/pagescope/internal/scope"
)

// Headers copied from the main document response into the report. Everything
// else the server sends is dropped.
var securityHeaderNames = []string{
	"content-security-policy",
	"x-frame-options",
	"x-content-type-options",
	"strict-transport-security",
	"referrer-policy",
	"access-control-allow-origin",
	"set-cookie",
}

const bodySampleLimit = 1024

// ChromeRenderer drives headless Chrome over CDP. Each Render call runs in an
// isolated browser profile under a fresh DevTools connection; the session
// semaphore and per-origin pacing are shared across calls.
type ChromeRenderer struct {
	config  *Config
	policy  *scope.Policy
	limiter *limiter
}

// NewChromeRenderer creates a renderer bounded by the config's session cap and
// the policy's per-origin QPS.
func NewChromeRenderer(config *Config, policy *scope.Policy) *ChromeRenderer {
	if config == nil {
		config = DefaultConfig()
	}
	if policy == nil {
		policy = scope.DefaultPolicy()
	}
	return &ChromeRenderer{
		config:  config,
		policy:  policy,
		limiter: newLimiter(config.MaxSessions, policy.QPSPerOrigin),
	}
}

// Render loads targetURL in a fresh headless session with the given cookies
// applied, waits for the page to settle, and captures the DOM snapshot plus
// the network trace, storage keys and cookie jar. The temporary profile
// directory and the browser session are released on every exit path.
func (r *ChromeRenderer) Render(ctx context.Context, targetURL string, cookies map[string]string) (*RenderedPage, error) {
	release, err := r.limiter.Acquire(ctx, originOf(targetURL))
	if err != nil {
		return nil, &RenderError{URL: targetURL, Stage: "session", Err: err}
	}
	defer release()

	profileDir, err := os.MkdirTemp("", "pagescope-chrome-")
	if err != nil {
		return nil, &RenderError{URL: targetURL, Stage: "session", Err: err}
	}
	defer os.RemoveAll(profileDir)

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, r.allocatorOptions(profileDir)...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	trace := newNetworkCapture()
	chromedp.ListenTarget(browserCtx, trace.handle)

	log.Debug().
		Str("url", targetURL).
		Int("cookies", len(cookies)).
		Msg("Starting render session")

	err = chromedp.Run(browserCtx,
		network.Enable(),
		applyCookies(targetURL, cookies),
		chromedp.Navigate(targetURL),
		chromedp.Sleep(r.config.Settle),
	)
	if err != nil {
		return nil, &RenderError{URL: targetURL, Stage: "navigate", Err: err}
	}

	var finalURL, title, html string
	err = chromedp.Run(browserCtx,
		chromedp.Location(&finalURL),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, &RenderError{URL: targetURL, Stage: "capture", Err: err}
	}

	// Storage and cookie capture are best-effort: a page that forbids
	// storage access must not fail the render.
	var localKeys, sessionKeys []string
	if err := chromedp.Run(browserCtx,
		chromedp.Evaluate(`Object.keys(window.localStorage)`, &localKeys),
		chromedp.Evaluate(`Object.keys(window.sessionStorage)`, &sessionKeys),
	); err != nil {
		log.Debug().Err(err).Str("url", targetURL).Msg("Could not read storage keys")
	}

	var jar []*network.Cookie
	if err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		jar, err = storage.GetCookies().Do(c)
		return err
	})); err != nil {
		log.Debug().Err(err).Str("url", targetURL).Msg("Could not read cookie jar")
	}

	entries, ids := trace.snapshot()
	r.attachBodySamples(browserCtx, entries, ids)

	status, securityHeaders := trace.mainDocument(finalURL)

	log.Debug().
		Str("url", targetURL).
		Str("final_url", finalURL).
		Int("status", status).
		Int("network_entries", len(entries)).
		Msg("Render session complete")

	return &RenderedPage{
		URL:                targetURL,
		FinalURL:           finalURL,
		Title:              title,
		HTML:               html,
		Status:             status,
		SecurityHeaders:    securityHeaders,
		Network:            entries,
		Cookies:            convertCookies(jar),
		LocalStorageKeys:   localKeys,
		SessionStorageKeys: sessionKeys,
		FetchedAt:          time.Now().UTC(),
	}, nil
}

func (r *ChromeRenderer) allocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.UserAgent(r.config.UserAgent),
		chromedp.UserDataDir(profileDir),
	}
	if r.config.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.config.ChromePath))
	}
	return opts
}

// attachBodySamples fetches response bodies for entries whose MIME type the
// policy allows, truncates and masks them. Bodies already evicted from the
// browser's buffer are skipped.
func (r *ChromeRenderer) attachBodySamples(browserCtx context.Context, entries []NetworkEntry, ids []network.RequestID) {
	for i := range entries {
		if entries[i].Status == 0 || !scope.AllowsContentType(entries[i].MIMEType, r.policy) {
			continue
		}

		var body []byte
		err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(c context.Context) error {
			var err error
			body, err = network.GetResponseBody(ids[i]).Do(c)
			return err
		}))
		if err != nil || len(body) == 0 {
			continue
		}
		entries[i].BodySample = scope.MaskBody(sampleBody(body), r.policy)
	}
}

// applyCookies seeds the browser's jar before navigation so the first request
// already carries them, the way an orchestrator-resumed session would.
func applyCookies(targetURL string, cookies map[string]string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, param := range cookieParams(targetURL, cookies) {
			if err := param.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %q: %w", param.Name, err)
			}
		}
		return nil
	})
}

func cookieParams(targetURL string, cookies map[string]string) []*network.SetCookieParams {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]*network.SetCookieParams, 0, len(cookies))
	for _, name := range names {
		params = append(params, network.SetCookie(name, cookies[name]).WithURL(targetURL))
	}
	return params
}

func convertCookies(jar []*network.Cookie) []Cookie {
	cookies := make([]Cookie, 0, len(jar))
	for _, c := range jar {
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return cookies
}

func sampleBody(body []byte) string {
	if len(body) > bodySampleLimit {
		body = body[:bodySampleLimit]
	}
	return strings.ToValidUTF8(string(body), "")
}

type documentResponse struct {
	status  int
	headers map[string]string
}

// networkCapture accumulates request/response events from the CDP listener.
// Entries keep request order; responses are correlated by request id.
// Document responses are tracked separately so the main document's status and
// security headers can be looked up by final URL after redirects.
type networkCapture struct {
	mu      sync.Mutex
	entries []NetworkEntry
	ids     []network.RequestID
	index   map[network.RequestID]int
	docs    map[string]documentResponse
	lastDoc documentResponse
	haveDoc bool
}

func newNetworkCapture() *networkCapture {
	return &networkCapture{
		index: make(map[network.RequestID]int),
		docs:  make(map[string]documentResponse),
	}
}

func (nc *networkCapture) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		method := strings.ToUpper(e.Request.Method)
		if method == "OPTIONS" || method == "HEAD" {
			return
		}
		nc.mu.Lock()
		// A redirect hop reuses the request id; record the hop's status on
		// the previous entry before tracking the new one.
		if e.RedirectResponse != nil {
			if idx, ok := nc.index[e.RequestID]; ok {
				nc.entries[idx].Status = int(e.RedirectResponse.Status)
				nc.entries[idx].MIMEType = e.RedirectResponse.MimeType
			}
		}
		nc.index[e.RequestID] = len(nc.entries)
		nc.entries = append(nc.entries, NetworkEntry{URL: e.Request.URL, Method: method})
		nc.ids = append(nc.ids, e.RequestID)
		nc.mu.Unlock()

	case *network.EventResponseReceived:
		nc.mu.Lock()
		if idx, ok := nc.index[e.RequestID]; ok {
			nc.entries[idx].Status = int(e.Response.Status)
			nc.entries[idx].MIMEType = e.Response.MimeType
			nc.entries[idx].CORS = hasCORSHeader(e.Response.Headers)
		}
		if e.Type == network.ResourceTypeDocument {
			doc := documentResponse{
				status:  int(e.Response.Status),
				headers: filterSecurityHeaders(e.Response.Headers),
			}
			nc.docs[e.Response.URL] = doc
			nc.lastDoc = doc
			nc.haveDoc = true
		}
		nc.mu.Unlock()
	}
}

func (nc *networkCapture) snapshot() ([]NetworkEntry, []network.RequestID) {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	entries := make([]NetworkEntry, len(nc.entries))
	copy(entries, nc.entries)
	ids := make([]network.RequestID, len(nc.ids))
	copy(ids, nc.ids)
	return entries, ids
}

// mainDocument returns the status and security headers of the document
// response matching finalURL, falling back to the most recent document
// response, then to an assumed 200 when nothing was observed.
func (nc *networkCapture) mainDocument(finalURL string) (int, map[string]string) {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	if doc, ok := nc.docs[finalURL]; ok {
		return doc.status, doc.headers
	}
	if nc.haveDoc {
		return nc.lastDoc.status, nc.lastDoc.headers
	}
	return 200, map[string]string{}
}

func filterSecurityHeaders(headers network.Headers) map[string]string {
	out := make(map[string]string)
	for name, value := range headers {
		lower := strings.ToLower(name)
		for _, want := range securityHeaderNames {
			if lower != want {
				continue
			}
			if s, ok := value.(string); ok {
				out[lower] = s
			}
		}
	}
	return out
}

func hasCORSHeader(headers network.Headers) bool {
	for name := range headers {
		if strings.EqualFold(name, "access-control-allow-origin") {
			return true
		}
	}
	return false
}
