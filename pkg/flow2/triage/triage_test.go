package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTriage_CleanDocument tests the zero-risk fast path.
func TestTriage_CleanDocument(t *testing.T) {
	sections := []TopicSection{
		{Topic: "sanctions_screening", Coverage: CoverageCovered, Content: "No matches on any list."},
		{Topic: "source_of_funds", Coverage: CoverageCovered, Content: "Salary income, documented."},
		{Topic: "beneficial_ownership", Coverage: CoverageCovered, Content: "Single natural-person owner."},
	}

	r := Triage(sections)

	assert.Equal(t, 0, r.RiskScore)
	assert.Equal(t, PathFast, r.Path)
	assert.Empty(t, r.Reasons)
	assert.Equal(t, 0, r.Breakdown.CoveragePoints)
	assert.Equal(t, 0, r.Breakdown.KeywordPoints)
}

// TestTriage_MidRisk tests additive scoring into the crosscheck band:
// two missing critical topics and one keyword = 15+15+10 = 40.
func TestTriage_MidRisk(t *testing.T) {
	sections := []TopicSection{
		{Topic: "sanctions_screening", Coverage: CoverageMissing},
		{Topic: "beneficial_ownership", Coverage: CoverageMissing},
		{Topic: "source_of_funds", Coverage: CoverageCovered,
			Content: "Held through a Shell Company registered abroad."},
	}

	r := Triage(sections)

	assert.Equal(t, 40, r.RiskScore)
	assert.Equal(t, PathCrosscheck, r.Path)
	assert.Equal(t, 30, r.Breakdown.CoveragePoints)
	assert.Equal(t, 10, r.Breakdown.KeywordPoints)
	require.Len(t, r.Reasons, 3)
	assert.Contains(t, r.Reasons, `critical topic "sanctions_screening" missing (+15)`)
	assert.Contains(t, r.Reasons, `critical topic "beneficial_ownership" missing (+15)`)
	assert.Contains(t, r.Reasons, `high-risk keyword "shell company" detected (+10)`)
}

// TestTriage_PartialCoverage tests the lighter partial-coverage weight and
// that non-critical missing topics score nothing.
func TestTriage_PartialCoverage(t *testing.T) {
	sections := []TopicSection{
		{Topic: "source_of_funds", Coverage: CoveragePartial},
		{Topic: "office_address", Coverage: CoverageMissing}, // not critical
		{Topic: "marketing_materials", Coverage: CoveragePartial},
	}

	r := Triage(sections)

	assert.Equal(t, 16, r.RiskScore)
	assert.Equal(t, PathFast, r.Path)
	require.Len(t, r.Reasons, 2)
	assert.Contains(t, r.Reasons, `topic "source_of_funds" only partially covered (+8)`)
}

// TestTriage_CapAndHumanGate tests the 100-point cap: four missing critical
// topics and three keywords = 60+30 = 90, human gate; adding more caps at 100.
func TestTriage_CapAndHumanGate(t *testing.T) {
	sections := []TopicSection{
		{Topic: "sanctions_screening", Coverage: CoverageMissing},
		{Topic: "source_of_funds", Coverage: CoverageMissing},
		{Topic: "beneficial_ownership", Coverage: CoverageMissing},
		{Topic: "pep_exposure", Coverage: CoverageMissing},
		{Topic: "transaction_monitoring", Coverage: CoverageCovered,
			Content: "Accounts are cash intensive, owner is a nominee director, funds from an unverified source."},
	}

	r := Triage(sections)
	assert.Equal(t, 90, r.RiskScore)
	assert.Equal(t, PathHumanGate, r.Path)

	// One more missing critical topic pushes past 100 and triggers the cap.
	sections[4].Coverage = CoverageMissing
	r = Triage(sections)
	assert.Equal(t, 100, r.RiskScore)
	assert.Equal(t, PathHumanGate, r.Path)
	assert.Contains(t, r.Reasons, "score capped at 100")
}

// TestTriage_Thresholds tests the routing bands at their boundaries.
func TestTriage_Thresholds(t *testing.T) {
	missing := func(n int) []TopicSection {
		topics := CriticalTopics()
		sections := make([]TopicSection, n)
		for i := 0; i < n; i++ {
			sections[i] = TopicSection{Topic: topics[i], Coverage: CoverageMissing}
		}
		return sections
	}

	// 2x15 = 30: still fast (inclusive ceiling).
	assert.Equal(t, PathFast, Triage(missing(2)).Path)
	// 3x15 = 45: crosscheck.
	assert.Equal(t, PathCrosscheck, Triage(missing(3)).Path)
	// 4x15 = 60: still crosscheck (inclusive ceiling).
	assert.Equal(t, PathCrosscheck, Triage(missing(4)).Path)
	// 5x15 = 75: escalate.
	assert.Equal(t, PathEscalate, Triage(missing(5)).Path)
}

// TestTriage_KeywordMatching tests case-insensitive, distinct keyword hits.
func TestTriage_KeywordMatching(t *testing.T) {
	sections := []TopicSection{
		{Topic: "a", Coverage: CoverageCovered, Content: "SANCTIONED entity, sanctioned again, Sanctioned thrice."},
		{Topic: "b", Coverage: CoverageCovered, Content: "Bearer Shares mentioned here."},
	}

	r := Triage(sections)

	// Repeats of one keyword count once.
	assert.Equal(t, 20, r.RiskScore)
	assert.Equal(t, 20, r.Breakdown.KeywordPoints)
	require.Len(t, r.Reasons, 2)
	// Keyword reasons come out sorted for determinism.
	assert.Equal(t, `high-risk keyword "bearer shares" detected (+10)`, r.Reasons[0])
	assert.Equal(t, `high-risk keyword "sanctioned" detected (+10)`, r.Reasons[1])
}

// TestTriage_Deterministic tests that identical input yields identical output.
func TestTriage_Deterministic(t *testing.T) {
	sections := []TopicSection{
		{Topic: "sanctions_screening", Coverage: CoverageMissing},
		{Topic: "source_of_funds", Coverage: CoveragePartial,
			Content: "Offshore haven structure with bearer shares."},
	}

	first := Triage(sections)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Triage(sections))
	}
}

// TestTriage_EmptyInput tests the degenerate no-sections case.
func TestTriage_EmptyInput(t *testing.T) {
	r := Triage(nil)

	assert.Equal(t, 0, r.RiskScore)
	assert.Equal(t, PathFast, r.Path)
	assert.NotNil(t, r.Reasons, "reasons must serialize as [], not null")
}

// TestCriticalTopics tests the exported topic list.
func TestCriticalTopics(t *testing.T) {
	topics := CriticalTopics()
	assert.Equal(t, []string{
		"beneficial_ownership",
		"pep_exposure",
		"sanctions_screening",
		"source_of_funds",
		"transaction_monitoring",
	}, topics)
}
