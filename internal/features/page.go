package features

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Compiled once; ExtractPage runs per request.
var (
	reEval     = regexp.MustCompile(`eval\s*\(`)
	reUnescape = regexp.MustCompile(`unescape\s*\(`)
	reLocation = regexp.MustCompile(`window\.location|document\.location`)
)

// ExtractPage computes document signals that need a tree rather than a token
// stream: credential fields, frames, scripts and off-site links or form targets.
// pageURL resolves relative hrefs; it may be empty.
func ExtractPage(htmlContent, pageURL string) Record {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return Record{}
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		base = &url.URL{}
	}
	host := strings.ToLower(base.Hostname())

	var scriptText strings.Builder
	scripts := doc.Find("script")
	scripts.Each(func(_ int, s *goquery.Selection) {
		scriptText.WriteString(s.Text())
	})
	js := scriptText.String()

	externalLinks := 0
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if isOffsite(base, host, href) {
			externalLinks++
		}
	})

	externalForms := 0
	doc.Find("form[action]").Each(func(_ int, s *goquery.Selection) {
		action, _ := s.Attr("action")
		if isOffsite(base, host, action) {
			externalForms++
		}
	})

	passwords := doc.Find("input").FilterFunction(func(_ int, s *goquery.Selection) bool {
		t, _ := s.Attr("type")
		return strings.EqualFold(t, "password")
	})

	return Record{
		PasswordCount:     Int(passwords.Length()),
		IframeCount:       Int(doc.Find("iframe").Length()),
		ScriptCount:       Int(scripts.Length()),
		ExternalLinkCount: Int(externalLinks),
		ExternalFormCount: Int(externalForms),
		EvalCount:         Int(len(reEval.FindAllStringIndex(js, -1)) + len(reUnescape.FindAllStringIndex(js, -1))),
		RedirectCount:     Int(len(reLocation.FindAllStringIndex(js, -1))),
	}
}

// isOffsite reports whether ref resolves to an http(s) host other than host.
func isOffsite(base *url.URL, host, ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	u = base.ResolveReference(u)
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	target := strings.ToLower(u.Hostname())
	return target != "" && target != host
}
