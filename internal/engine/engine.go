package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/p-wisp/anti-phishing/internal/features"
	"github.com/p-wisp/anti-phishing/internal/scoring"
)

// HTMLNotImplementedReason is returned by ScoreHTML, which does not score yet.
const HTMLNotImplementedReason = "html_scoring_not_implemented"

// ListStatus reports whether a host appears on a feed list.
type ListStatus string

const (
	Unlisted ListStatus = ""
	Blocked  ListStatus = "blocked"
	Allowed  ListStatus = "allowed"
)

type lists struct {
	blocked *DomainTrie
	allowed *DomainTrie
}

// Engine is the entry point the transport layer calls. Scoring is pure and
// needs no coordination; only the feed lists are swapped at runtime.
type Engine struct {
	scorer *scoring.Scorer
	lists  atomic.Pointer[lists]
}

// New builds an Engine around policy. A nil policy uses scoring.DefaultPolicy.
func New(policy *scoring.Policy) *Engine {
	e := &Engine{scorer: scoring.NewScorer(policy)}
	e.lists.Store(&lists{blocked: NewDomainTrie(), allowed: NewDomainTrie()})
	return e
}

func (e *Engine) Scorer() *scoring.Scorer {
	return e.scorer
}

// ScoreURL scores a URL with optional caller-collected DOM features, which
// are merged under the dom_ prefix. It never fails.
func (e *Engine) ScoreURL(rawURL string, dom features.Record) scoring.Verdict {
	return e.scorer.Score(e.Features(rawURL, "", dom))
}

// ScorePage scores a URL together with the page's HTML. DOM signals are
// extracted from htmlContent; dom overrides them key by key.
func (e *Engine) ScorePage(rawURL, htmlContent string, dom features.Record) scoring.Verdict {
	return e.scorer.Score(e.Features(rawURL, htmlContent, dom))
}

// ScoreHTML is a placeholder kept for client compatibility: HTML without a
// URL is always benign with a single not-implemented reason.
func (e *Engine) ScoreHTML(string) scoring.Verdict {
	return scoring.Verdict{
		Label:       scoring.LabelBenign,
		Probability: 0,
		Reasons:     []string{HTMLNotImplementedReason},
	}
}

// Features builds the merged record: URL, then host, then extracted DOM and
// page signals when htmlContent is non-empty, then dom overrides.
func (e *Engine) Features(rawURL, htmlContent string, dom features.Record) features.Record {
	var docs []features.Record
	if htmlContent != "" {
		docs = append(docs,
			features.ExtractDOM(htmlContent),
			features.ExtractPage(htmlContent, rawURL),
		)
	}
	if len(dom) > 0 {
		docs = append(docs, dom)
	}
	return features.Merge(features.ExtractURL(rawURL), features.ExtractHost(rawURL), docs...)
}

// ListSource is the persistent store the feed lists are loaded from.
type ListSource interface {
	BlockedDomains() ([]string, error)
	AllowedDomains() ([]string, error)
}

// LoadLists reads both lists from src and swaps them in.
func (e *Engine) LoadLists(src ListSource) error {
	blocked, err := src.BlockedDomains()
	if err != nil {
		return fmt.Errorf("loading blocked domains: %w", err)
	}
	allowed, err := src.AllowedDomains()
	if err != nil {
		return fmt.Errorf("loading allowed domains: %w", err)
	}
	e.ReplaceLists(blocked, allowed)
	return nil
}

// ReplaceLists swaps in freshly loaded feed lists.
func (e *Engine) ReplaceLists(blocked, allowed []string) {
	l := &lists{blocked: NewDomainTrie(), allowed: NewDomainTrie()}
	l.blocked.BulkInsert(blocked)
	l.allowed.BulkInsert(allowed)
	e.lists.Store(l)
}

// Lookup checks the URL's host against the feed lists. The allow list wins.
func (e *Engine) Lookup(rawURL string) ListStatus {
	host := features.Hostname(rawURL)
	if host == "" {
		return Unlisted
	}
	l := e.lists.Load()
	switch {
	case l.allowed.Contains(host):
		return Allowed
	case l.blocked.Contains(host):
		return Blocked
	}
	return Unlisted
}

// ListSizes returns how many blocked and allowed domains are loaded.
func (e *Engine) ListSizes() (blocked, allowed int) {
	l := e.lists.Load()
	return l.blocked.Len(), l.allowed.Len()
}
