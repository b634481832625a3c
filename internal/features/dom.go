package features

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// ExtractDOM counts forms, inputs and hidden inputs and measures the title
// in a single pass over the token stream. Scripts are never run and nothing
// is fetched; malformed markup only lowers the counts.
func ExtractDOM(htmlContent string) Record {
	var (
		forms, inputs, hidden int
		inTitle               bool
		title                 strings.Builder
	)

	z := html.NewTokenizer(strings.NewReader(htmlContent))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return Record{
				FormCount:   Int(forms),
				InputCount:  Int(inputs),
				HiddenCount: Int(hidden),
				TitleLen:    Int(utf8.RuneCountInString(strings.TrimSpace(title.String()))),
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			switch tag {
			case "form":
				forms++
			case "input":
				inputs++
				if hasAttr {
					hidden += hiddenTypes(z)
				}
			case "title":
				// <title/> is treated as empty.
				inTitle = tt == html.StartTagToken
			}
			// Only script, style and title bodies are text. Markup inside
			// noscript, iframe, textarea, xmp and the like is still scanned.
			if tt == html.SelfClosingTagToken || !textOnly[tag] {
				z.NextIsNotRawText()
			}

		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "title" {
				inTitle = false
			}

		case html.TextToken:
			if inTitle {
				title.Write(z.Text())
			}
		}
	}
}

var textOnly = map[string]bool{"script": true, "style": true, "title": true}

// hiddenTypes counts the current tag's type attributes equal to "hidden".
// Duplicate attributes are each counted.
func hiddenTypes(z *html.Tokenizer) int {
	n := 0
	for {
		key, val, more := z.TagAttr()
		if string(key) == "type" && strings.EqualFold(string(val), "hidden") {
			n++
		}
		if !more {
			return n
		}
	}
}
