package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spboyer/arena/internal/assignment"
	"github.com/spboyer/arena/internal/cache"
	"github.com/spboyer/arena/internal/execution"
	"github.com/spboyer/arena/internal/models"
	"github.com/spboyer/arena/internal/scoring"
)

const (
	// DefaultWorkers is the number of engine calls in flight when WithWorkers isn't used.
	DefaultWorkers = 4

	// DefaultCallTimeout bounds a single generate or evaluate call.
	DefaultCallTimeout = 5 * time.Minute
)

// Pipeline runs test cases through generation and evaluation. A Pipeline
// holds no per-run state, so Run may be called concurrently.
type Pipeline struct {
	engine     execution.Engine
	engineName string

	workers     int
	callTimeout time.Duration
	judgeModel  string
	analyzer    scoring.Analyzer

	// Generation caching
	cache *cache.Cache

	assignerMu sync.Mutex
	assigner   *assignment.Assigner

	// Progress tracking
	progressMu sync.Mutex
	listeners  []ProgressListener
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithWorkers caps the number of engine calls in flight. Zero uses
// DefaultWorkers and a negative value removes the limit.
func WithWorkers(n int) PipelineOption {
	return func(p *Pipeline) {
		p.workers = n
	}
}

// WithCallTimeout sets the timeout passed to every engine call.
func WithCallTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.callTimeout = d
		}
	}
}

// WithJudgeModel sets the judge used when no evaluation slot was assigned.
func WithJudgeModel(model string) PipelineOption {
	return func(p *Pipeline) {
		p.judgeModel = model
	}
}

// WithFormatMarker enables the format compliance suggestion.
func WithFormatMarker(marker string) PipelineOption {
	return func(p *Pipeline) {
		p.analyzer.FormatMarker = marker
	}
}

// WithCache enables generation caching
func WithCache(c *cache.Cache) PipelineOption {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// WithAssigner sets the assigner used when a request carries no assignments.
func WithAssigner(a *assignment.Assigner) PipelineOption {
	return func(p *Pipeline) {
		p.assigner = a
	}
}

// WithEngineName records the engine type in outcomes and cache keys.
func WithEngineName(name string) PipelineOption {
	return func(p *Pipeline) {
		p.engineName = name
	}
}

// NewPipeline creates a pipeline that makes its calls through engine.
func NewPipeline(engine execution.Engine, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		engine:      engine,
		workers:     DefaultWorkers,
		callTimeout: DefaultCallTimeout,
		assigner:    assignment.New(),
		listeners:   []ProgressListener{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.workers == 0 {
		p.workers = DefaultWorkers
	}
	return p
}

// OnProgress registers a progress listener. Listeners are called
// synchronously, in order, from the goroutine that settled the call.
func (p *Pipeline) OnProgress(listener ProgressListener) {
	p.progressMu.Lock()
	defer p.progressMu.Unlock()
	p.listeners = append(p.listeners, listener)
}

func (p *Pipeline) notifyProgress(event ProgressEvent) {
	p.progressMu.Lock()
	listeners := make([]ProgressListener, len(p.listeners))
	copy(listeners, p.listeners)
	p.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// RunRequest is the input of a single run.
type RunRequest struct {
	Name      string
	TestCases []models.TestCase
	Criteria  []models.Criterion
	Pool      models.ModelPool
	Strategy  models.Strategy

	// Assignments skips model assignment when set.
	Assignments []models.SelectedModel
}

// run is the state owned by a single call to Run.
type run struct {
	id       string
	progress *progressTracker

	mu       sync.Mutex
	failures []models.CallFailure
}

func (r *run) fail(phase models.Phase, index int, testCaseID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, models.CallFailure{
		Phase:      phase,
		Index:      index,
		TestCaseID: testCaseID,
		Reason:     err.Error(),
	})
}

// failuresIn returns the failures of phase ordered by test case index.
func (r *run) failuresIn(phase models.Phase) []models.CallFailure {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.CallFailure
	for _, f := range r.failures {
		if f.Phase == phase {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Run generates outputs for every test case, has them scored and returns
// one result per test case, in input order. Failed calls are recorded in
// the outcome instead of aborting the run. Only a *ConstructionError or a
// failing engine initialization return a nil outcome. When ctx is canceled
// the partial outcome is returned along with the context's error.
func (p *Pipeline) Run(ctx context.Context, req *RunRequest) (*models.RunOutcome, error) {
	if req == nil {
		return nil, &ConstructionError{Index: -1, Reason: "nil request"}
	}

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = models.StrategyRandomSelection
	}

	assignments, err := p.assignments(req, strategy)
	if err != nil {
		return nil, err
	}

	generators := models.Generators(assignments)
	if len(generators) == 0 {
		return nil, &ConstructionError{Index: -1, Reason: "no output_generation model was assigned"}
	}

	startTime := time.Now()
	r := &run{id: uuid.NewString()}
	r.progress = newProgressTracker(r.id, len(req.TestCases), p.notifyProgress)

	if err := p.engine.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer func() {
		if err := p.engine.Shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("failed to shutdown engine", "error", err)
		}
	}()

	p.notifyProgress(ProgressEvent{
		EventType: EventRunStart,
		RunID:     r.id,
		Phase:     models.PhaseGenerating,
		Total:     len(req.TestCases),
	})

	results, err := p.generate(ctx, r, req.TestCases, generators)
	if err != nil {
		return nil, err
	}

	if err := p.evaluate(ctx, r, results, req.Criteria, p.judgeFor(assignments)); err != nil {
		return nil, err
	}

	p.analyzer.AnalyzeAll(results)

	if err := r.progress.Complete(); err != nil {
		return nil, err
	}

	failures := append(r.failuresIn(models.PhaseGenerating), r.failuresIn(models.PhaseEvaluating)...)

	outcome := &models.RunOutcome{
		RunID:       r.id,
		Name:        req.Name,
		Strategy:    strategy,
		Engine:      p.engineName,
		Timestamp:   startTime.UTC(),
		DurationMs:  time.Since(startTime).Milliseconds(),
		Assignments: assignments,
		Criteria:    req.Criteria,
		Results:     results,
		Failures:    failures,
		Summary:     models.Summarize(results, failures),
	}

	if err := ctx.Err(); err != nil {
		return outcome, fmt.Errorf("run %s was interrupted: %w", r.id, err)
	}
	return outcome, nil
}

func (p *Pipeline) assignments(req *RunRequest, strategy models.Strategy) ([]models.SelectedModel, error) {
	if req.Assignments != nil {
		return req.Assignments, nil
	}

	p.assignerMu.Lock()
	defer p.assignerMu.Unlock()

	selected, err := p.assigner.Assign(req.Pool.Slots, req.Pool.Models, strategy)
	if err != nil {
		return nil, &ConstructionError{Index: -1, Reason: err.Error()}
	}
	return selected, nil
}

// judgeFor picks the model that scores outputs: the first evaluation slot,
// else the configured judge model.
func (p *Pipeline) judgeFor(assignments []models.SelectedModel) string {
	if judges := models.Judges(assignments); len(judges) > 0 {
		if judges[0].Model != "" {
			return judges[0].Model
		}
		return judges[0].ModelID
	}
	return p.judgeModel
}

func validateRequest(req *RunRequest) error {
	if len(req.TestCases) == 0 {
		return &ConstructionError{Index: -1, Reason: "no test cases"}
	}

	seen := make(map[string]int, len(req.TestCases))
	for i := range req.TestCases {
		tc := &req.TestCases[i]
		if err := tc.Validate(); err != nil {
			return &ConstructionError{Index: i, TestCaseID: tc.ID, Reason: err.Error()}
		}
		if prev, ok := seen[tc.ID]; ok {
			return &ConstructionError{Index: i, TestCaseID: tc.ID, Reason: fmt.Sprintf("duplicate of test case %d", prev)}
		}
		seen[tc.ID] = i
	}

	for i := range req.Criteria {
		if err := req.Criteria[i].Validate(); err != nil {
			return &ConstructionError{Index: -1, Reason: fmt.Sprintf("criteria[%d]: %v", i, err)}
		}
	}

	if req.Assignments == nil {
		if err := req.Pool.Validate(); err != nil {
			return &ConstructionError{Index: -1, Reason: fmt.Sprintf("pool: %v", err)}
		}
	}

	return nil
}

// callFailed turns the failures of a phase into one diagnostic line each.
func callFailed(failures []models.CallFailure) []string {
	reasons := make([]string, 0, len(failures))
	for _, f := range failures {
		reasons = append(reasons, fmt.Sprintf("%s: %s", f.TestCaseID, strings.TrimSpace(f.Reason)))
	}
	return reasons
}
