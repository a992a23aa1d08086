package extract

import (
	"net/url"
	"regexp"
	"strings"

	emailverifier "github.com/AfterShip/email-verifier"
	"github.com/PuerkitoBio/goquery"

	"github.com/shield4u/pagescope/internal/render"
)

var (
	emailRe = regexp.MustCompile(`[\w.\-]+@[\w.\-]+`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s().\-]{6,18}\d`)

	verifier = emailverifier.NewVerifier()
)

var socialHosts = []string{
	"twitter.com", "x.com", "facebook.com", "linkedin.com", "instagram.com",
	"github.com", "youtube.com", "t.me", "tiktok.com",
}

var cloudHosts = []string{
	"s3.amazonaws.com", "storage.googleapis.com", "blob.core.windows.net",
}

// osintPass harvests address and link exposure from the rendered page. All
// signals are best-effort text matching; phone false positives are accepted.
func osintPass(doc *goquery.Document, page *render.RenderedPage) OSINTReport {
	report := OSINTReport{
		Emails:        make([]string, 0),
		Phones:        make([]string, 0),
		SocialLinks:   make([]string, 0),
		CloudLinks:    make([]string, 0),
		OpenDirectory: make([]string, 0),
	}

	text := visibleText(doc)
	report.Emails = findEmails(text)
	report.Phones = findPhones(text)

	for _, link := range anchorURLs(doc, page.FinalURL) {
		if hostMatchesAny(link, socialHosts) {
			report.SocialLinks = append(report.SocialLinks, link)
		}
		if hostMatchesAny(link, cloudHosts) {
			report.CloudLinks = append(report.CloudLinks, link)
		}
	}

	if hasOpenDirectorySignal(doc) {
		report.OpenDirectory = append(report.OpenDirectory, page.FinalURL)
	}

	return report
}

// findEmails matches permissively, lower-cases and deduplicates, then keeps
// only addresses the email parser accepts. No network verification.
func findEmails(text string) []string {
	emails := make([]string, 0)
	seen := make(map[string]struct{})

	for _, match := range emailRe.FindAllString(text, -1) {
		email := strings.ToLower(match)
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}

		if syntax := verifier.ParseAddress(email); !syntax.Valid {
			continue
		}
		emails = append(emails, email)
	}
	return emails
}

// findPhones keeps candidates whose digit count is plausible for an
// international number (8–15 digits).
func findPhones(text string) []string {
	phones := make([]string, 0)
	seen := make(map[string]struct{})

	for _, match := range phoneRe.FindAllString(text, -1) {
		candidate := strings.TrimSpace(match)
		digits := 0
		for _, r := range candidate {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits < 8 || digits > 15 {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		phones = append(phones, candidate)
	}
	return phones
}

// hostMatchesAny reports whether the link's hostname equals one of the given
// hosts or is a subdomain of one.
func hostMatchesAny(link string, hosts []string) bool {
	parsed, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}
	for _, h := range hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// hasOpenDirectorySignal checks the classic autoindex tells: an "Index of"
// title, a "Parent Directory" anchor, or anchors whose href and text both end
// in a slash.
func hasOpenDirectorySignal(doc *goquery.Document) bool {
	title := strings.ToLower(doc.Find("title").First().Text())
	if strings.Contains(title, "index of") {
		return true
	}

	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if strings.EqualFold(text, "Parent Directory") {
			found = true
			return false
		}
		href, _ := sel.Attr("href")
		if strings.HasSuffix(href, "/") && strings.HasSuffix(text, "/") {
			found = true
			return false
		}
		return true
	})
	return found
}
