// Package scoring turns a merged feature record into a phishing verdict
// using a fixed, ordered set of weighted rules.
package scoring

import (
	"errors"
	"fmt"

	"github.com/p-wisp/anti-phishing/internal/features"
)

// DefaultThreshold is the probability at or above which a URL is labelled phishing.
const DefaultThreshold = 0.5

// Rule is one weighted predicate. Reason is only called when Applies is true.
type Rule struct {
	Name    string
	Weight  float64
	Applies func(features.Record) bool
	Reason  func(features.Record) string
}

// Policy is the immutable decision surface: an ordered rule set and a threshold.
// Build it once at startup and hand it to NewScorer.
type Policy struct {
	rules     []Rule
	threshold float64
}

// NewPolicy validates rules and returns a Policy that owns a copy of them.
func NewPolicy(threshold float64, rules ...Rule) (*Policy, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold %v outside [0,1]", threshold)
	}
	if len(rules) == 0 {
		return nil, errors.New("policy needs at least one rule")
	}

	seen := make(map[string]struct{}, len(rules))
	for i, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rule %d has no name", i)
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("duplicate rule %q", r.Name)
		}
		seen[r.Name] = struct{}{}
		if !(r.Weight > 0 && r.Weight <= 1) {
			return nil, fmt.Errorf("rule %q: weight %v outside (0,1]", r.Name, r.Weight)
		}
		if r.Applies == nil || r.Reason == nil {
			return nil, fmt.Errorf("rule %q: predicate and reason are required", r.Name)
		}
	}

	return &Policy{
		rules:     append([]Rule(nil), rules...),
		threshold: threshold,
	}, nil
}

// Rules returns a copy of the rule set in evaluation order.
func (p *Policy) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

func (p *Policy) Threshold() float64 {
	return p.threshold
}

// DefaultPolicy is the built-in heuristic rule set.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultThreshold, DefaultRules()...)
	if err != nil {
		panic(fmt.Sprintf("scoring: invalid default policy: %v", err))
	}
	return p
}

// DefaultRules lists the built-in rules in the order their reasons are reported.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:    "long_url",
			Weight:  0.25,
			Applies: func(f features.Record) bool { return f.Number(features.URLLen) > 120 },
			Reason:  valueReason("url_len", features.URLLen),
		},
		{
			Name:    "many_dots",
			Weight:  0.25,
			Applies: func(f features.Record) bool { return f.Number(features.DotCount) >= 3 },
			Reason:  valueReason("dot_count", features.DotCount),
		},
		{
			Name:    "deep_path",
			Weight:  0.25,
			Applies: func(f features.Record) bool { return f.Number(features.PathDepth) >= 4 },
			Reason:  valueReason("path_depth", features.PathDepth),
		},
		{
			Name:    "ip_host",
			Weight:  0.25,
			Applies: func(f features.Record) bool { return f.Flag(features.HasIPHost) },
			Reason:  func(features.Record) string { return "has_ip_host=True" },
		},
		{
			Name:    "hidden_inputs",
			Weight:  0.10,
			Applies: func(f features.Record) bool { return f.Number(features.DOMKey(features.HiddenCount)) >= 5 },
			Reason:  valueReason("hidden_count", features.DOMKey(features.HiddenCount)),
		},
	}
}

// valueReason renders "<label>=<value of k>".
func valueReason(label string, k features.Key) func(features.Record) string {
	return func(f features.Record) string {
		return label + "=" + f.Format(k)
	}
}
