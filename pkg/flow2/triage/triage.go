// Package triage computes a deterministic risk score and routing decision
// from assembled topic coverage. It performs no I/O; the driver consumes the
// routing path and never recomputes scoring itself.
package triage

import (
	"fmt"
	"sort"
	"strings"
)

// Coverage levels reported by the upstream topic assembly service.
const (
	CoverageCovered = "covered"
	CoveragePartial = "partial"
	CoverageMissing = "missing"
)

// Routing paths, from least to most scrutiny.
const (
	PathFast       = "fast"
	PathCrosscheck = "crosscheck"
	PathEscalate   = "escalate"
	PathHumanGate  = "human_gate"
)

// Scoring weights and thresholds.
const (
	missingCriticalPoints = 15
	partialPoints         = 8
	keywordPoints         = 10
	maxScore              = 100

	fastCeiling       = 30
	crosscheckCeiling = 60
	escalateCeiling   = 80
)

// criticalTopics are the coverage topics whose absence is scored.
var criticalTopics = map[string]bool{
	"sanctions_screening":    true,
	"source_of_funds":        true,
	"beneficial_ownership":   true,
	"pep_exposure":           true,
	"transaction_monitoring": true,
}

// highRiskKeywords are scanned against aggregated section content.
var highRiskKeywords = []string{
	"shell company",
	"bearer shares",
	"sanctioned",
	"offshore haven",
	"nominee director",
	"cash intensive",
	"unverified source",
}

// TopicSection is one topic's assembled coverage.
type TopicSection struct {
	Topic    string `json:"topic"`
	Coverage string `json:"coverage"` // covered | partial | missing
	Content  string `json:"content"`
}

// Breakdown separates the score into its contributing categories.
type Breakdown struct {
	CoveragePoints int `json:"coverage_points"`
	KeywordPoints  int `json:"keyword_points"`
}

// Result is the triage outcome for one set of topic sections.
type Result struct {
	RiskScore int       `json:"risk_score"`
	Reasons   []string  `json:"reasons"`
	Path      string    `json:"path"`
	Breakdown Breakdown `json:"breakdown"`
}

// Triage scores the given topic sections. Additive rules: 15 points per
// missing critical topic, 8 per partial topic, 10 per distinct high-risk
// keyword in aggregated content, capped at 100. Every contributing factor is
// appended to the reasons list for audit.
func Triage(sections []TopicSection) Result {
	r := Result{Reasons: []string{}}

	var aggregated strings.Builder
	for _, s := range sections {
		switch s.Coverage {
		case CoverageMissing:
			if criticalTopics[s.Topic] {
				r.Breakdown.CoveragePoints += missingCriticalPoints
				r.Reasons = append(r.Reasons,
					fmt.Sprintf("critical topic %q missing (+%d)", s.Topic, missingCriticalPoints))
			}
		case CoveragePartial:
			r.Breakdown.CoveragePoints += partialPoints
			r.Reasons = append(r.Reasons,
				fmt.Sprintf("topic %q only partially covered (+%d)", s.Topic, partialPoints))
		}
		aggregated.WriteString(strings.ToLower(s.Content))
		aggregated.WriteByte('\n')
	}

	content := aggregated.String()
	var hits []string
	for _, kw := range highRiskKeywords {
		if strings.Contains(content, kw) {
			hits = append(hits, kw)
		}
	}
	sort.Strings(hits)
	for _, kw := range hits {
		r.Breakdown.KeywordPoints += keywordPoints
		r.Reasons = append(r.Reasons,
			fmt.Sprintf("high-risk keyword %q detected (+%d)", kw, keywordPoints))
	}

	r.RiskScore = r.Breakdown.CoveragePoints + r.Breakdown.KeywordPoints
	if r.RiskScore > maxScore {
		r.RiskScore = maxScore
		r.Reasons = append(r.Reasons, fmt.Sprintf("score capped at %d", maxScore))
	}

	switch {
	case r.RiskScore <= fastCeiling:
		r.Path = PathFast
	case r.RiskScore <= crosscheckCeiling:
		r.Path = PathCrosscheck
	case r.RiskScore <= escalateCeiling:
		r.Path = PathEscalate
	default:
		r.Path = PathHumanGate
	}

	return r
}

// CriticalTopics returns the fixed critical topic list, sorted.
func CriticalTopics() []string {
	topics := make([]string, 0, len(criticalTopics))
	for t := range criticalTopics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}
