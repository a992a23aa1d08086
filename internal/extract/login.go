package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shield4u/pagescope/internal/render"
)

var (
	// Path fragments that mark a link as a probable panel entry point.
	loginPathPatterns = []string{"/admin", "/login", "/signin", "/manager", "/wp-login.php"}

	loginKeywordRe = regexp.MustCompile(`(?i)(Login|Admin|Sign In|Dashboard)`)
	passwordNameRe = regexp.MustCompile(`(?i)(pass|pwd)`)
	usernameNameRe = regexp.MustCompile(`(?i)(user|email|login|uname|account)`)
)

// loginPass combines two independent sources: link targets matching known
// panel paths, and DOM heuristics (panel keywords in title/headings, forms
// that pair a password-like input with a user-like one).
func loginPass(doc *goquery.Document, page *render.RenderedPage) LoginReport {
	report := LoginReport{
		CandidateURLs: make([]string, 0),
		KeywordsFound: make([]string, 0),
	}

	seen := make(map[string]struct{})
	addCandidate := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		report.CandidateURLs = append(report.CandidateURLs, u)
	}

	for _, link := range anchorURLs(doc, page.FinalURL) {
		for _, pattern := range loginPathPatterns {
			if strings.Contains(link, pattern) {
				addCandidate(link)
				break
			}
		}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	var headings strings.Builder
	doc.Find("h1, h2, h3").Each(func(_ int, sel *goquery.Selection) {
		headings.WriteByte(' ')
		headings.WriteString(sel.Text())
	})

	seenKeywords := make(map[string]struct{})
	for _, keyword := range loginKeywordRe.FindAllString(title+" "+headings.String(), -1) {
		if _, ok := seenKeywords[keyword]; ok {
			continue
		}
		seenKeywords[keyword] = struct{}{}
		report.KeywordsFound = append(report.KeywordsFound, keyword)
	}

	doc.Find("form").Each(func(_ int, sel *goquery.Selection) {
		if !isLoginForm(sel) {
			return
		}
		addCandidate(parseForm(sel, page.FinalURL).Action)
	})

	report.IsAdminLike = len(report.KeywordsFound) > 0 || len(report.CandidateURLs) > 0
	return report
}

// isLoginForm reports whether a form pairs a password-like input with a
// user-like input.
func isLoginForm(sel *goquery.Selection) bool {
	var passwordLike, userLike bool
	sel.Find("input").Each(func(_ int, input *goquery.Selection) {
		inputType, _ := input.Attr("type")
		name, _ := input.Attr("name")
		inputType = strings.ToLower(strings.TrimSpace(inputType))

		switch {
		case inputType == "password" || passwordNameRe.MatchString(name):
			passwordLike = true
		case inputType == "email" || usernameNameRe.MatchString(name):
			userLike = true
		}
	})
	return passwordLike && userLike
}
