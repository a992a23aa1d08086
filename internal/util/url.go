package util

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrMalformedURL is returned when a URL cannot be canonicalised. Callers must
// not attempt further normalisation of a value that produced this error.
var ErrMalformedURL = errors.New("malformed URL")

// NormaliseOptions controls URL canonicalisation.
type NormaliseOptions struct {
	// StripParams lists query parameter names removed during normalisation
	// (case-sensitive exact match, tracking and session identifiers).
	StripParams []string
	// TrailingSlash ensures exactly one trailing slash on the path when true;
	// when false all trailing slashes are stripped except on the root path.
	TrailingSlash bool
}

// QueryParam is one key/value pair of a canonicalised query string.
type QueryParam struct {
	Key   string
	Value string
}

// CanonicalURL is the decomposed form of a normalised URL. It is derived,
// never stored: two URLs that canonicalise identically are the same crawl
// target.
type CanonicalURL struct {
	URL    string
	Scheme string
	Host   string
	Path   string
	Query  []QueryParam
}

// NormaliseURL canonicalises a URL so that semantically identical URLs
// produce byte-identical strings:
//   - scheme and host are lower-cased
//   - default ports are stripped (80 for http, 443 for https)
//   - stripped query parameters are removed, the rest sorted by key
//   - the trailing-slash policy is applied and the fragment discarded
//
// Normalisation is idempotent and deterministic for a fixed options value.
func NormaliseURL(rawURL string, opts NormaliseOptions) (string, error) {
	c, err := Canonicalise(rawURL, opts)
	if err != nil {
		return "", err
	}
	return c.URL, nil
}

// Canonicalise normalises a URL and returns its decomposed form.
func Canonicalise(rawURL string, opts NormaliseOptions) (*CanonicalURL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrMalformedURL, rawURL)
	}

	scheme := strings.ToLower(parsed.Scheme)
	host := normaliseHostPort(strings.ToLower(parsed.Hostname()), parsed.Port(), scheme)

	// Parse the query preserving blank values, drop stripped keys, then sort
	// the remainder by key so parameter order never affects equality.
	query := ""
	var pairs []QueryParam
	if parsed.RawQuery != "" {
		values, err := url.ParseQuery(parsed.RawQuery)
		if err != nil {
			return nil, fmt.Errorf("%w: bad query: %v", ErrMalformedURL, err)
		}
		for _, key := range opts.StripParams {
			delete(values, key)
		}
		query = values.Encode() // Encode sorts by key
		pairs = sortedPairs(values)
	}

	path := applyTrailingSlash(parsed.EscapedPath(), opts.TrailingSlash)

	// Assemble by hand: the fragment is always discarded and userinfo never
	// survives canonicalisation.
	normalised := scheme + "://" + host + path
	if query != "" {
		normalised += "?" + query
	}

	return &CanonicalURL{
		URL:    normalised,
		Scheme: scheme,
		Host:   host,
		Path:   path,
		Query:  pairs,
	}, nil
}

// normaliseHostPort rebuilds host(:port), dropping the port when it equals the
// scheme default (80 for http, 443 for https). IPv6 literals keep brackets.
func normaliseHostPort(hostname, port, scheme string) string {
	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port == "" || port == defaultPort(scheme) {
		return host
	}
	return host + ":" + port
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

// applyTrailingSlash enforces the trailing-slash policy on an escaped path.
// An empty path becomes the root path.
func applyTrailingSlash(path string, trailingSlash bool) string {
	if path == "" {
		path = "/"
	}
	if trailingSlash {
		return strings.TrimRight(path, "/") + "/"
	}
	if path == "/" {
		return path
	}
	path = strings.TrimRight(path, "/")
	if path == "" {
		path = "/"
	}
	return path
}

func sortedPairs(values url.Values) []QueryParam {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]QueryParam, 0, len(values))
	for _, key := range keys {
		for _, value := range values[key] {
			pairs = append(pairs, QueryParam{Key: key, Value: value})
		}
	}
	return pairs
}

// ResolveURL resolves a possibly-relative reference against a base URL and
// returns the absolute form. Non-navigational references (fragments,
// javascript:, mailto:, tel:, data:) and non-http(s) results resolve to "".
func ResolveURL(baseURL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ""
	}

	lower := strings.ToLower(ref)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
