package scope

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

const defaultMaskPattern = `(?i)\b(api[-_]?key|secret|token|bearer|password|session|authorization)\b`

var defaultMaskRe = regexp.MustCompile(defaultMaskPattern)

// Policy is the immutable crawl rule set: what is in scope, which responses
// are worth capturing, and which values must be redacted before a report
// leaves the service. Construct it once per task via DefaultPolicy or
// LoadPolicy and pass it by pointer; never mutate it after construction.
type Policy struct {
	IncludeSubdomains   bool        `yaml:"include_subdomains"`    // treat *.<base host> as in scope
	PathBlacklist       []string    `yaml:"path_blacklist"`        // path substrings that reject a URL
	DestructivePaths    []string    `yaml:"destructive_paths"`     // state-changing paths a crawler must never touch
	ExtensionBlacklist  []string    `yaml:"extension_blacklist"`   // file extensions that reject a URL
	AllowedContentTypes []string    `yaml:"allowed_content_types"` // media-type prefixes worth capturing
	ParamsToRemove      []string    `yaml:"params_to_remove"`      // tracking/session query params stripped on normalisation
	MaskPattern         string      `yaml:"mask_pattern"`          // sensitive key/body pattern
	MaskReplacement     string      `yaml:"mask_replacement"`      // token written in place of a masked value
	QPSPerOrigin        float64     `yaml:"qps_per_origin"`        // request pacing per origin, enforced by the renderer
	Retry               RetryPolicy `yaml:"retry"`                 // delivery retry policy, honoured by the callback client

	maskRe *regexp.Regexp
}

// RetryPolicy bounds delivery retries. Backoff values are in seconds.
type RetryPolicy struct {
	MaxRetries    int     `yaml:"max_retries"`
	BackoffFactor float64 `yaml:"backoff_factor"`
	BackoffMax    float64 `yaml:"backoff_max"`
}

// DefaultPolicy returns a Policy with the built-in rule set.
func DefaultPolicy() *Policy {
	return &Policy{
		IncludeSubdomains: false,
		PathBlacklist: []string{
			"/admin", "/administrator", "/wp-admin", "/manager", "/login?logout", "/logout",
		},
		DestructivePaths: []string{
			"/delete", "/destroy", "/purchase", "/checkout", "/payment",
		},
		ExtensionBlacklist: []string{
			".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg",
			".mp4", ".avi", ".mov", ".wmv",
			".zip", ".tar", ".gz", ".7z", ".dmg", ".exe", ".msi", ".pdf",
		},
		AllowedContentTypes: []string{
			"text/html", "application/json", "text/javascript",
			"application/javascript", "application/xhtml+xml", "application/xml",
		},
		ParamsToRemove: []string{
			"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
			"gclid", "fbclid", "msclkid",
			"PHPSESSID", "JSESSIONID", "ASPSESSIONID",
		},
		MaskPattern:     defaultMaskPattern,
		MaskReplacement: "[REDACTED]",
		QPSPerOrigin:    1.0,
		Retry: RetryPolicy{
			MaxRetries:    2,
			BackoffFactor: 0.5,
			BackoffMax:    8.0,
		},
		maskRe: defaultMaskRe,
	}
}

// LoadPolicy reads a YAML override file on top of the defaults. A field
// present in the file replaces the default wholesale; absent fields keep
// their default values.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scope policy: %w", err)
	}

	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("failed to parse scope policy: %w", err)
	}
	if err := policy.compile(); err != nil {
		return nil, err
	}
	return policy, nil
}

func (p *Policy) compile() error {
	re, err := regexp.Compile(p.MaskPattern)
	if err != nil {
		return fmt.Errorf("invalid mask pattern %q: %w", p.MaskPattern, err)
	}
	p.maskRe = re
	return nil
}

// pattern tolerates zero-value Policy literals in tests.
func (p *Policy) pattern() *regexp.Regexp {
	if p.maskRe != nil {
		return p.maskRe
	}
	return defaultMaskRe
}
