package orchestration

import "fmt"

// ConstructionError is returned by Run when the input is malformed. It is
// detected before any engine call is made and is the only error that aborts
// a run. Index is -1 when the problem is not tied to a test case.
type ConstructionError struct {
	Index      int
	TestCaseID string
	Reason     string
}

func (e *ConstructionError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("invalid run: %s", e.Reason)
	case e.TestCaseID != "":
		return fmt.Sprintf("invalid test case %d (%s): %s", e.Index, e.TestCaseID, e.Reason)
	default:
		return fmt.Sprintf("invalid test case %d: %s", e.Index, e.Reason)
	}
}
