package features

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Dotted-quad only: no hex, no short forms, no IPv6.
var reIPv4Host = regexp.MustCompile(`^([0-9]{1,3}\.){3}[0-9]{1,3}\z`)

// parts is what the extractors need from a URL.
type parts struct {
	host    string
	path    string
	hasPort bool
}

// Tab, CR and LF are dropped anywhere in a URL before splitting.
var urlNewlines = strings.NewReplacer("\t", "", "\r", "", "\n", "")

// splitURL never fails. It tries net/url first and falls back to a manual
// split for input net/url rejects (bad escapes, bad ports, control chars).
// Leading control characters and spaces are ignored.
func splitURL(raw string) parts {
	raw = urlNewlines.Replace(strings.TrimLeftFunc(raw, func(r rune) bool { return r <= ' ' }))

	var p parts
	if u, err := url.Parse(raw); err == nil {
		p.host = strings.ToLower(u.Hostname())
		p.path = u.EscapedPath()
		if u.Opaque != "" {
			// "javascript:x/a/b" and "localhost:8080/a" keep their path here.
			p.path = u.Opaque
		}
		p.hasPort = u.Port() != ""
	} else {
		p = lenientSplit(raw)
	}
	if p.path == "" {
		p.path = "/"
	}
	return p
}

func lenientSplit(raw string) parts {
	var p parts
	rest := raw
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	} else if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
	} else {
		p.path = rest
		return p
	}

	authority := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		authority, p.path = rest[:i], rest[i:]
	}
	if i := strings.LastIndexByte(authority, '@'); i >= 0 {
		authority = authority[i+1:]
	}

	host := authority
	if strings.HasPrefix(authority, "[") {
		if i := strings.IndexByte(authority, ']'); i >= 0 {
			host = authority[1:i]
			p.hasPort = isPort(strings.TrimPrefix(authority[i+1:], ":"))
		}
	} else if i := strings.LastIndexByte(authority, ':'); i >= 0 {
		host = authority[:i]
		p.hasPort = isPort(authority[i+1:])
	}
	p.host = strings.ToLower(host)
	return p
}

func isPort(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ExtractURL derives lexical and structural signals from a URL string.
func ExtractURL(raw string) Record {
	p := splitURL(raw)
	return Record{
		URLLen:    Int(utf8.RuneCountInString(raw)),
		HostLen:   Int(utf8.RuneCountInString(p.host)),
		DotCount:  Int(strings.Count(p.host, ".")),
		PathDepth: Int(strings.Count(p.path, "/")),
		HasIPHost: Bool(reIPv4Host.MatchString(p.host)),
		HasAt:     Bool(strings.Contains(raw, "@")),
		HasPort:   Bool(p.hasPort),
	}
}

// ExtractHost derives signals from the authority portion only.
func ExtractHost(raw string) Record {
	p := splitURL(raw)
	return Record{
		HostLen:        Int(utf8.RuneCountInString(p.host)),
		SubdomainCount: Int(strings.Count(p.host, ".")),
		HasPort:        Bool(p.hasPort),
	}
}

// Hostname returns the lowercased host of raw, or "" when there is none.
func Hostname(raw string) string {
	return splitURL(raw).host
}
