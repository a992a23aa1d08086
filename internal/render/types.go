// Package render turns a target URL plus a cookie set into a RenderedPage:
// the final DOM snapshot along with the network trace, security headers,
// storage keys and cookie jar observed while loading it. The primary
// implementation drives headless Chrome over CDP; a static HTTP fallback
// exists for environments without a browser.
package render

import (
	"context"
	"fmt"
	"time"
)

// Renderer loads a page and captures its browser-level facts. Implementations
// must be safe for concurrent use; each call owns an isolated session.
type Renderer interface {
	Render(ctx context.Context, targetURL string, cookies map[string]string) (*RenderedPage, error)
}

// RenderedPage is the ephemeral result of one render session. It is owned by
// a single task and discarded once the task's report has been assembled.
type RenderedPage struct {
	URL                string // requested URL
	FinalURL           string // after redirects
	Title              string
	HTML               string // full DOM snapshot
	Status             int    // main document status; 200 assumed when unobservable
	SecurityHeaders    map[string]string
	Network            []NetworkEntry
	Cookies            []Cookie
	LocalStorageKeys   []string
	SessionStorageKeys []string
	FetchedAt          time.Time
}

// NetworkEntry is one observed request/response pair, in request order.
type NetworkEntry struct {
	URL        string `json:"url"`
	Method     string `json:"method"`
	Status     int    `json:"status"`
	MIMEType   string `json:"mime_type"`
	CORS       bool   `json:"cors"`
	BodySample string `json:"body_sample,omitempty"` // ≤1024 bytes of text bodies, masked
}

// Cookie is a post-render jar entry. Values are masked at report assembly,
// not here.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// RenderError wraps any adapter failure with the URL and the stage that
// failed. A RenderError is terminal for its task.
type RenderError struct {
	URL   string
	Stage string // session, navigate, capture
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s failed during %s: %v", e.URL, e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
