package orchestration

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spboyer/arena/internal/models"
)

// ErrPhaseRegression is returned when a run is asked to move back to an earlier phase.
var ErrPhaseRegression = errors.New("run phase cannot move backwards")

// ProgressListener receives progress updates
type ProgressListener func(event ProgressEvent)

// EventType represents the type of progress event
type EventType string

// EventType constants
const (
	EventRunStart      EventType = "run_start"
	EventPhaseStart    EventType = "phase_start"
	EventCallSettled   EventType = "call_settled"
	EventPhaseComplete EventType = "phase_complete"
	EventRunComplete   EventType = "run_complete"
)

// ProgressEvent is a snapshot of a run's progress.
type ProgressEvent struct {
	EventType    EventType    `json:"event"`
	RunID        string       `json:"run_id"`
	Phase        models.Phase `json:"phase"`
	Completed    int          `json:"completed"`
	Total        int          `json:"total"`
	CurrentIndex int          `json:"current_index"`
	Percent      int          `json:"percent"`

	// Set on EventCallSettled only.
	TestCaseID string `json:"test_case_id,omitempty"`
	Failed     bool   `json:"failed,omitempty"`
	Cached     bool   `json:"cached,omitempty"`
}

// progressTracker owns the RunState of one run. Events are emitted while the
// lock is held so listeners observe them in order.
type progressTracker struct {
	mu     sync.Mutex
	runID  string
	state  models.RunState
	notify func(ProgressEvent)

	// totalRevised is set once the first successful generate call has
	// told us how many outputs a test case produces.
	totalRevised bool
	numCases     int
}

func newProgressTracker(runID string, numCases int, notify func(ProgressEvent)) *progressTracker {
	if notify == nil {
		notify = func(ProgressEvent) {}
	}
	return &progressTracker{
		runID:    runID,
		numCases: numCases,
		state:    models.RunState{Phase: models.PhaseGenerating},
		notify:   notify,
	}
}

// Snapshot returns a copy of the current state.
func (p *progressTracker) Snapshot() models.RunState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Begin moves the run into phase, resetting the counters.
func (p *progressTracker) Begin(phase models.Phase, total int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.transition(phase, total); err != nil {
		return err
	}
	p.emit(EventPhaseStart, p.state.Progress(), nil)
	return nil
}

// GenerationSettled records one finished generate call. outputs is the
// number of outputs it produced; failed calls contribute nothing.
func (p *progressTracker) GenerationSettled(index int, testCaseID string, outputs int, failed, cached bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !failed {
		if !p.totalRevised {
			p.totalRevised = true
			p.state.TotalExpected = p.numCases * outputs
		}
		p.state.CompletedCount += outputs
	}
	p.state.CurrentTestCaseIndex = index

	p.emit(EventCallSettled, p.state.Progress(), func(e *ProgressEvent) {
		e.TestCaseID = testCaseID
		e.Failed = failed
		e.Cached = cached
	})
}

// EvaluationSettled records one finished evaluate call covering outputs outputs.
func (p *progressTracker) EvaluationSettled(index int, testCaseID string, outputs int, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.CompletedCount += outputs
	p.state.CurrentTestCaseIndex = index

	p.emit(EventCallSettled, p.state.Progress(), func(e *ProgressEvent) {
		e.TestCaseID = testCaseID
		e.Failed = failed
	})
}

// Finish reports the current phase as settled at lastIndex.
func (p *progressTracker) Finish(lastIndex int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.CurrentTestCaseIndex = lastIndex
	p.emit(EventPhaseComplete, 100, nil)
}

// Complete moves the run to its terminal phase.
func (p *progressTracker) Complete() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.transition(models.PhaseComplete, 0); err != nil {
		return err
	}
	p.emit(EventRunComplete, 100, nil)
	return nil
}

func (p *progressTracker) transition(phase models.Phase, total int) error {
	if phase.Before(p.state.Phase) {
		return fmt.Errorf("%w: %s to %s", ErrPhaseRegression, p.state.Phase, phase)
	}
	p.state = models.RunState{Phase: phase, TotalExpected: total}
	return nil
}

func (p *progressTracker) emit(t EventType, percent int, fill func(*ProgressEvent)) {
	e := ProgressEvent{
		EventType:    t,
		RunID:        p.runID,
		Phase:        p.state.Phase,
		Completed:    p.state.CompletedCount,
		Total:        p.state.TotalExpected,
		CurrentIndex: p.state.CurrentTestCaseIndex,
		Percent:      percent,
	}
	if fill != nil {
		fill(&e)
	}
	p.notify(e)
}
