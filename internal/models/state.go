package models

// Phase is the coarse stage of a pipeline run.
type Phase string

const (
	PhaseGenerating Phase = "generating"
	PhaseEvaluating Phase = "evaluating"
	PhaseComplete   Phase = "complete"
)

var phaseRank = map[Phase]int{
	PhaseGenerating: 0,
	PhaseEvaluating: 1,
	PhaseComplete:   2,
}

// Before reports whether p comes strictly before other.
func (p Phase) Before(other Phase) bool {
	return phaseRank[p] < phaseRank[other]
}

// RunState is the progress of a single run.
type RunState struct {
	Phase                Phase `json:"phase"`
	CompletedCount       int   `json:"completed_count"`
	TotalExpected        int   `json:"total_expected"`
	CurrentTestCaseIndex int   `json:"current_test_case_index"`
}

// Progress converts the counters into a 0-100 value. A complete run is always 100.
func (s RunState) Progress() int {
	if s.Phase == PhaseComplete {
		return 100
	}
	if s.TotalExpected <= 0 {
		return 0
	}
	pct := s.CompletedCount * 100 / s.TotalExpected
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}
