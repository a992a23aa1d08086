// Package scope decides which URLs and responses a crawl task may touch and
// redacts sensitive values before they reach a report. It is pure data plus
// predicate functions; the render and extract layers consult it, the
// orchestrator consults it for next-hop decisions, and nothing here performs
// network I/O.
package scope

import (
	"net/url"
	"strings"
)

// InScope reports whether candidateURL belongs to the crawl scope anchored at
// baseURL. With IncludeSubdomains off the scheme, hostname and effective port
// must match the base exactly; with it on, any host equal to or under the base
// host qualifies regardless of scheme or port. A candidate that passes the
// host check is still rejected when its path contains a blacklisted or
// destructive substring or ends with a blacklisted extension.
//
// The check is advisory: the service itself never follows links, it only
// annotates them for the orchestrator's next-hop decision.
func InScope(baseURL, candidateURL string, p *Policy) bool {
	candidate := strings.TrimSpace(candidateURL)
	if candidate == "" {
		return false
	}

	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || base.Hostname() == "" {
		return false
	}
	parsed, err := url.Parse(candidate)
	if err != nil || parsed.Hostname() == "" {
		return false
	}

	baseHost := strings.ToLower(base.Hostname())
	host := strings.ToLower(parsed.Hostname())

	if p.IncludeSubdomains {
		if host != baseHost && !strings.HasSuffix(host, "."+baseHost) {
			return false
		}
	} else {
		baseScheme := strings.ToLower(base.Scheme)
		scheme := strings.ToLower(parsed.Scheme)
		if scheme != baseScheme || host != baseHost {
			return false
		}
		if effectivePort(scheme, parsed.Port()) != effectivePort(baseScheme, base.Port()) {
			return false
		}
	}

	return allowsPath(parsed.Path, p)
}

// AllowsContentType reports whether a response with the given Content-Type
// header is worth capturing. Matching is a case-insensitive prefix check on
// the media type with parameters (charset etc.) stripped.
func AllowsContentType(contentType string, p *Policy) bool {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.IndexByte(mediaType, ';'); idx >= 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}
	if mediaType == "" {
		return false
	}

	for _, allowed := range p.AllowedContentTypes {
		if strings.HasPrefix(mediaType, allowed) {
			return true
		}
	}
	return false
}

func allowsPath(path string, p *Policy) bool {
	if path == "" {
		path = "/"
	}

	for _, blocked := range p.PathBlacklist {
		if strings.Contains(path, blocked) {
			return false
		}
	}
	for _, blocked := range p.DestructivePaths {
		if strings.Contains(path, blocked) {
			return false
		}
	}

	lower := strings.ToLower(path)
	for _, ext := range p.ExtensionBlacklist {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}

func effectivePort(scheme, port string) string {
	if port != "" {
		return port
	}
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}
