package scoring

import (
	"github.com/p-wisp/anti-phishing/internal/features"
)

// Label is the verdict class.
type Label string

const (
	LabelPhishing Label = "phishing"
	LabelBenign   Label = "benign"
)

// Verdict is the result of scoring one request. Every call returns a fresh
// Verdict; Reasons is never nil.
type Verdict struct {
	Label       Label    `json:"label"`
	Probability float64  `json:"prob"`
	Reasons     []string `json:"reasons"`
}

// IsPhishing reports whether the verdict crossed the threshold.
func (v Verdict) IsPhishing() bool {
	return v.Label == LabelPhishing
}

// Scorer evaluates a Policy. It holds no mutable state and is safe for
// concurrent use.
type Scorer struct {
	policy *Policy
}

func NewScorer(p *Policy) *Scorer {
	if p == nil {
		p = DefaultPolicy()
	}
	return &Scorer{policy: p}
}

func (s *Scorer) Policy() *Policy {
	return s.policy
}

// Score sums the weights of every rule that applies, in rule order, and caps
// the sum at 1.
func (s *Scorer) Score(f features.Record) Verdict {
	score := 0.0
	reasons := make([]string, 0, len(s.policy.rules))

	for _, r := range s.policy.rules {
		if !r.Applies(f) {
			continue
		}
		score += r.Weight
		reasons = append(reasons, r.Reason(f))
	}

	if score > 1 {
		score = 1
	}

	label := LabelBenign
	if score >= s.policy.threshold {
		label = LabelPhishing
	}

	return Verdict{
		Label:       label,
		Probability: score,
		Reasons:     reasons,
	}
}

// Triggered returns the names of the rules that apply to f, in rule order.
func (s *Scorer) Triggered(f features.Record) []string {
	var names []string
	for _, r := range s.policy.rules {
		if r.Applies(f) {
			names = append(names, r.Name)
		}
	}
	return names
}
