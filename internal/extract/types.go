package extract

import (
	"time"

	"github.com/shield4u/pagescope/internal/render"
)

// Report is the externally visible product of one crawl task. All collection
// fields are initialised empty so absent signals serialise as [] rather than
// null.
type Report struct {
	RequestInfo  RequestInfo        `json:"request_info"`
	Browser      BrowserReport      `json:"browser"`
	DOM          DOMReport          `json:"dom"`
	Fingerprints FingerprintsReport `json:"fingerprints"`
	LoginSignals LoginReport        `json:"panel_login_signals"`
	OSINT        OSINTReport        `json:"osint_exposure"`
}

// RequestInfo echoes the task identity and depth bookkeeping back to the
// orchestrator.
type RequestInfo struct {
	TaskID         string `json:"task_id"`
	ParentID       string `json:"parent_id"`
	TargetURL      string `json:"target_url"`
	FinalURL       string `json:"final_url"`
	RemainingDepth int    `json:"remaining_depth"`
	CurrentDepth   int    `json:"current_depth"`
}

// BrowserReport carries the browser- and network-level capture.
type BrowserReport struct {
	Meta            BrowserMeta           `json:"meta"`
	SecurityHeaders map[string]string     `json:"security_headers"`
	StorageKeys     StorageKeys           `json:"storage_keys"`
	Cookies         []CookieSummary       `json:"cookies"`
	NetworkSummary  []render.NetworkEntry `json:"network_summary"`
}

// BrowserMeta identifies the rendered document.
type BrowserMeta struct {
	URL       string    `json:"url"`
	FinalURL  string    `json:"final_url"`
	Title     string    `json:"title"`
	Status    int       `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StorageKeys lists the browser storage keys observed after render. Values
// are never captured.
type StorageKeys struct {
	LocalStorage   []string `json:"local_storage"`
	SessionStorage []string `json:"session_storage"`
}

// CookieSummary is a post-render cookie with its value masked.
type CookieSummary struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DOMReport holds facts read directly from the document.
type DOMReport struct {
	Title             string     `json:"title"`
	Meta              []MetaTag  `json:"meta"`
	Generator         string     `json:"generator"`
	Scripts           []string   `json:"scripts"`
	Stylesheets       []string   `json:"stylesheets"`
	VisibleLinks      []Link     `json:"visible_links"`
	Forms             []Form     `json:"forms"`
	Comments          []string   `json:"comments"`
	TextLeaks         []TextLeak `json:"text_leaks"`
	VisibleTextSample string     `json:"visible_text_sample"`
}

// MetaTag is one document meta tag; name and property are mutually optional.
type MetaTag struct {
	Name     string `json:"name,omitempty"`
	Property string `json:"property,omitempty"`
	Content  string `json:"content,omitempty"`
}

// Link is a canonicalised visible link annotated against the crawl scope.
type Link struct {
	URL     string `json:"url"`
	InScope bool   `json:"in_scope"`
}

// Form describes one document form.
type Form struct {
	Action  string   `json:"action"`
	Method  string   `json:"method"`
	Enctype string   `json:"enctype"`
	Inputs  []string `json:"inputs"`
}

// TextLeak is a typed match of a sensitive-looking fragment in the page text.
// Kind is one of credential, debug_flag or stack_trace.
type TextLeak struct {
	Kind    string `json:"kind"`
	Snippet string `json:"snippet"`
}

// FingerprintsReport holds CMS, plugin and technology signals.
type FingerprintsReport struct {
	CMS      []string            `json:"cms"`
	Plugins  []Plugin            `json:"plugins"`
	Tech     []string            `json:"tech"`
	Detected map[string][]string `json:"detected"`
}

// Plugin is a versioned asset discovered on the page. Version is "unknown"
// when a vendor path matched without a version query.
type Plugin struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	URL     string `json:"url"`
}

// LoginReport holds admin/login-panel signals.
type LoginReport struct {
	IsAdminLike   bool     `json:"is_admin_like"`
	CandidateURLs []string `json:"candidate_urls"`
	KeywordsFound []string `json:"keywords_found"`
}

// OSINTReport holds exposure signals: addresses harvested from the page text
// and link targets pointing at social or cloud-storage hosts.
type OSINTReport struct {
	Emails        []string `json:"emails"`
	Phones        []string `json:"phones"`
	SocialLinks   []string `json:"social_links"`
	CloudLinks    []string `json:"cloud_links"`
	OpenDirectory []string `json:"open_directory"`
}
