package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spboyer/arena/internal/assignment"
	"github.com/spboyer/arena/internal/cache"
	"github.com/spboyer/arena/internal/dataset"
	"github.com/spboyer/arena/internal/execution"
	"github.com/spboyer/arena/internal/hooks"
	"github.com/spboyer/arena/internal/models"
	"github.com/spboyer/arena/internal/orchestration"
	"github.com/spboyer/arena/internal/projectconfig"
	"github.com/spboyer/arena/internal/recommend"
	"github.com/spboyer/arena/internal/reporting"
	"github.com/spboyer/arena/internal/scoring"
	"github.com/spboyer/arena/internal/session"
	"github.com/spboyer/arena/internal/spinner"
	"github.com/spboyer/arena/internal/storage"
	"github.com/spboyer/arena/internal/template"
	"github.com/spboyer/arena/internal/wizard"
	"github.com/spf13/cobra"
)

var (
	strategyName string
	engineType   string
	workers      int
	timeoutSec   int
	judgeModel   string
	seed         uint64
	outputPath   string
	format       string
	enableCache  bool
	runCacheDir  string
	uploadTarget string
	sessionLog   bool
	interactive  bool
	verbose      bool
	testFilters  []string
	minLevel     string
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <run.yaml>",
		Short: "Generate outputs for every test case and score them",
		Long: `Run the test cases of a run file through the assigned generating models,
then have the judge model score every output against the run's criteria.

Settings are resolved in this order: command-line flags, the run file's
config section, then .arena.yaml defaults.

Exit codes: 0 when every call succeeded, 1 when the run finished with failed
calls, 2 on configuration or runtime errors.`,
		Args: cobra.ExactArgs(1),
		RunE: runCommandE,
	}

	cmd.Flags().StringVar(&strategyName, "strategy", "", "Assignment strategy: random_selection or unique_model")
	cmd.Flags().StringVar(&engineType, "engine", "", "Engine: mock, copilot-sdk or gateway")
	cmd.Flags().IntVar(&workers, "workers", 0, "Engine calls in flight (negative means unbounded)")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 0, "Timeout in seconds for a single engine call")
	cmd.Flags().StringVar(&judgeModel, "judge-model", "", "Judge model used when no evaluation slot is assigned")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for random_selection, makes assignments reproducible")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Save the outcome JSON to this path instead of the results directory")
	cmd.Flags().StringVar(&format, "format", "", "Report format: default, json, markdown, html or junit")
	cmd.Flags().BoolVar(&enableCache, "cache", false, "Reuse cached generations for unchanged test cases")
	cmd.Flags().StringVar(&runCacheDir, "cache-dir", "", "Generation cache directory")
	cmd.Flags().StringVar(&uploadTarget, "upload", "", "Also store the outcome at this target (s3://bucket/prefix, https://<account>.blob.core.windows.net/<container> or a directory)")
	cmd.Flags().BoolVar(&sessionLog, "session-log", false, "Write every progress event to an NDJSON log in the results directory")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Pick test cases and strategy before running")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every settled call")
	cmd.Flags().StringArrayVar(&testFilters, "filter", nil, "Only run test cases whose id, use case or category matches the glob (repeatable)")
	cmd.Flags().StringVar(&minLevel, "min-effectiveness", "", "Exit with code 1 when a scored test case is below this level: low, medium or high")

	return cmd
}

// runSettings is the merged configuration of a single run.
type runSettings struct {
	strategy   models.Strategy
	engine     string
	judgeModel string
	workers    int
	timeout    time.Duration
	seed       *uint64
	format     reporting.Format
	cache      bool
	cacheDir   string
	upload     string
	sessionLog bool
	verbose    bool
	resultsDir string
	minLevel   models.EffectivenessLevel
}

// resolveSettings merges flags over the run file over project defaults.
func resolveSettings(cmd *cobra.Command, spec *models.RunSpec, pc *projectconfig.ProjectConfig) (*runSettings, error) {
	flags := cmd.Flags()
	s := &runSettings{
		strategy:   spec.Config.Strategy,
		engine:     firstNonEmpty(engineType, spec.Config.EngineType, pc.Defaults.Engine),
		judgeModel: firstNonEmpty(judgeModel, spec.Config.JudgeModel, pc.Defaults.JudgeModel),
		workers:    pc.Defaults.Workers,
		timeout:    time.Duration(pc.Defaults.Timeout) * time.Second,
		seed:       spec.Config.Seed,
		cacheDir:   firstNonEmpty(runCacheDir, pc.Cache.Dir),
		upload:     firstNonEmpty(uploadTarget, pc.Storage.Target),
		resultsDir: pc.Paths.Results,
		cache:      enableCache || (pc.Cache.Enabled != nil && *pc.Cache.Enabled),
		sessionLog: sessionLog || (pc.Defaults.SessionLog != nil && *pc.Defaults.SessionLog),
		verbose:    verbose || (pc.Defaults.Verbose != nil && *pc.Defaults.Verbose),
	}

	if flags.Changed("strategy") {
		st, err := models.ParseStrategy(strategyName)
		if err != nil {
			return nil, err
		}
		s.strategy = st
	}

	switch {
	case flags.Changed("workers"):
		s.workers = workers
	case spec.Config.Workers != 0:
		s.workers = spec.Config.Workers
	}

	switch {
	case flags.Changed("timeout"):
		if timeoutSec <= 0 {
			return nil, fmt.Errorf("--timeout must be positive, got %d", timeoutSec)
		}
		s.timeout = time.Duration(timeoutSec) * time.Second
	case spec.Config.TimeoutSec > 0:
		s.timeout = time.Duration(spec.Config.TimeoutSec) * time.Second
	}

	if flags.Changed("seed") {
		v := seed
		s.seed = &v
	}

	f, err := reporting.ParseFormat(firstNonEmpty(format, pc.Defaults.Format))
	if err != nil {
		return nil, err
	}
	s.format = f

	if minLevel != "" {
		level, err := scoring.ParseLevel(minLevel)
		if err != nil {
			return nil, err
		}
		s.minLevel = level
	}

	return s, nil
}

func runCommandE(cmd *cobra.Command, args []string) error {
	specPath := args[0]

	pc, err := projectconfig.Load(filepath.Dir(specPath))
	if err != nil {
		return err
	}

	spec, err := models.LoadRunSpec(specPath)
	if err != nil {
		return fmt.Errorf("failed to load run file: %w", err)
	}

	settings, err := resolveSettings(cmd, spec, pc)
	if err != nil {
		return err
	}

	testCases, err := loadTestCases(spec)
	if err != nil {
		return err
	}

	testCases, err = orchestration.FilterTestCases(testCases, testFilters)
	if err != nil {
		return err
	}
	if len(testCases) == 0 {
		return fmt.Errorf("no test cases match the filters %v", testFilters)
	}

	if interactive {
		if !wizard.IsInteractive(os.Stdin) {
			return fmt.Errorf("--interactive needs a terminal")
		}
		sel, err := wizard.Pick(os.Stdin, cmd.ErrOrStderr(), testCases, settings.strategy)
		if err != nil {
			return err
		}
		if testCases, err = wizard.Apply(testCases, sel); err != nil {
			return err
		}
		settings.strategy = sel.Strategy
	}

	engine, err := newEngine(settings.engine, settings.judgeModel, pc)
	if err != nil {
		return err
	}

	pipeline, err := newPipeline(engine, spec, settings)
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()

	logger, err := openSessionLog(settings)
	if err != nil {
		return err
	}
	defer logger.Close() //nolint:errcheck
	pipeline.OnProgress(session.ProgressListener(logger))
	logEvent(logger, session.NewEvent(session.EventSessionStart,
		session.SessionStartData(specPath, settings.engine, settings.strategy, len(testCases))))

	fmt.Fprintf(stderr, "Running: %s\n", spec.Name)
	fmt.Fprintf(stderr, "Engine: %s\n", settings.engine)
	fmt.Fprintf(stderr, "Strategy: %s\n", settings.strategy)
	fmt.Fprintf(stderr, "Test cases: %d\n\n", len(testCases))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	hookRunner := &hooks.Runner{Output: stderr, Dir: spec.ResolvePath(".")}
	if err := hookRunner.Execute(ctx, hooks.BeforeRun, spec.Hooks.BeforeRun, map[string]string{"run_name": spec.Name}); err != nil {
		return err
	}

	stop := attachProgress(pipeline, stderr, settings.verbose)
	defer stop()

	outcome, runErr := pipeline.Run(ctx, &orchestration.RunRequest{
		Name:      spec.Name,
		TestCases: testCases,
		Criteria:  spec.Criteria,
		Pool:      spec.Pool,
		Strategy:  settings.strategy,
	})
	stop()

	if outcome == nil {
		logEvent(logger, session.NewEvent(session.EventError, session.ErrorData(runErr.Error(), nil)))
		return fmt.Errorf("run failed: %w", runErr)
	}

	outcome.Recommendation = recommend.NewEngine().Recommend(outcome)

	if err := writeReport(cmd.OutOrStdout(), outcome, settings.format); err != nil {
		return err
	}

	// Saving must survive an interrupted run.
	saveCtx := context.WithoutCancel(ctx)

	loc, err := saveLocal(saveCtx, outcome, settings.resultsDir)
	if err != nil {
		return fmt.Errorf("failed to save output: %w", err)
	}
	fmt.Fprintf(stderr, "\nResults saved to: %s\n", loc)

	if settings.upload != "" {
		loc, err := upload(saveCtx, outcome, settings.upload)
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Results uploaded to: %s\n", loc)
	}

	afterEnv := map[string]string{"run_name": spec.Name, "run_id": outcome.RunID, "outcome": loc}
	if err := hookRunner.Execute(saveCtx, hooks.AfterRun, spec.Hooks.AfterRun, afterEnv); err != nil {
		return err
	}

	logEvent(logger, session.NewEvent(session.EventSessionEnd,
		session.SessionCompleteData(outcome.RunID, outcome.Summary, outcome.DurationMs)))

	if runErr != nil {
		logEvent(logger, session.NewEvent(session.EventError, session.ErrorData(runErr.Error(), nil)))
		return runErr
	}

	if len(outcome.Failures) > 0 {
		return &PartialFailureError{
			Message: fmt.Sprintf("run completed with %d generation and %d evaluation failure(s)",
				outcome.Summary.GenerationFailures, outcome.Summary.EvaluationFailures),
		}
	}

	if settings.minLevel != "" {
		if ids := belowLevel(outcome.Results, settings.minLevel); len(ids) > 0 {
			return &PartialFailureError{
				Message: fmt.Sprintf("%d test case(s) below %s effectiveness: %s",
					len(ids), settings.minLevel, strings.Join(ids, ", ")),
			}
		}
	}

	return nil
}

// belowLevel returns the ids of analyzed results under the target level.
func belowLevel(results []models.TestCaseWithModelOutputs, target models.EffectivenessLevel) []string {
	var ids []string
	for _, r := range results {
		if r.Effectiveness != nil && !scoring.AtLeast(r.Effectiveness.Level, target) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// loadTestCases returns the inline test cases followed by the ones from
// test_cases_from, with {{ }} placeholders rendered.
func loadTestCases(spec *models.RunSpec) ([]models.TestCase, error) {
	testCases := append([]models.TestCase{}, spec.TestCases...)

	if spec.TestCasesFrom != "" {
		fromFile, err := dataset.LoadTestCases(spec.ResolvePath(spec.TestCasesFrom))
		if err != nil {
			return nil, fmt.Errorf("loading test_cases_from: %w", err)
		}
		testCases = append(testCases, fromFile...)
	}

	rendered, err := template.RenderTestCases(spec.Name, testCases, spec.Vars)
	if err != nil {
		return nil, err
	}
	return rendered, nil
}

func newPipeline(engine execution.Engine, spec *models.RunSpec, s *runSettings) (*orchestration.Pipeline, error) {
	opts := []orchestration.PipelineOption{
		orchestration.WithEngineName(s.engine),
		orchestration.WithWorkers(s.workers),
		orchestration.WithCallTimeout(s.timeout),
		orchestration.WithJudgeModel(s.judgeModel),
		orchestration.WithFormatMarker(spec.Config.OutputFormatMarker),
	}

	if s.seed != nil {
		opts = append(opts, orchestration.WithAssigner(assignment.New(assignment.WithSeed(*s.seed))))
	}

	if s.cache {
		absCacheDir, err := filepath.Abs(s.cacheDir)
		if err != nil {
			return nil, fmt.Errorf("resolving cache directory: %w", err)
		}
		opts = append(opts, orchestration.WithCache(cache.New(absCacheDir)))
		slog.Debug("Generation cache enabled", "dir", absCacheDir)
	}

	return orchestration.NewPipeline(engine, opts...), nil
}

// attachProgress reports progress on w and returns a function that stops
// any animation. The returned function is safe to call more than once.
func attachProgress(p *orchestration.Pipeline, w io.Writer, verbose bool) func() {
	if verbose {
		p.OnProgress(verboseProgressListener(w))
		return func() {}
	}

	f, ok := w.(*os.File)
	if !ok || !wizard.IsInteractive(f) {
		p.OnProgress(simpleProgressListener(w))
		return func() {}
	}

	s := spinner.Start(w, "Starting...")
	p.OnProgress(func(ev orchestration.ProgressEvent) {
		s.Update(fmt.Sprintf("%s %d/%d (%d%%)", ev.Phase, ev.Completed, ev.Total, ev.Percent))
	})
	return s.Stop
}

func verboseProgressListener(w io.Writer) orchestration.ProgressListener {
	return func(ev orchestration.ProgressEvent) {
		switch ev.EventType {
		case orchestration.EventRunStart:
			fmt.Fprintf(w, "Starting run %s with %d test case(s)...\n", ev.RunID, ev.Total)
		case orchestration.EventPhaseStart:
			fmt.Fprintf(w, "\n%s: %d call(s) expected\n", ev.Phase, ev.Total)
		case orchestration.EventCallSettled:
			fmt.Fprintf(w, "%s [%d/%d] %s%s\n", statusIcon(ev.Failed), ev.Completed, ev.Total, ev.TestCaseID, cachedNote(ev.Cached))
		case orchestration.EventPhaseComplete:
			fmt.Fprintf(w, "%s complete (%d%%)\n", ev.Phase, ev.Percent)
		case orchestration.EventRunComplete:
			fmt.Fprintf(w, "\nRun %s complete\n\n", ev.RunID)
		}
	}
}

func simpleProgressListener(w io.Writer) orchestration.ProgressListener {
	return func(ev orchestration.ProgressEvent) {
		if ev.EventType == orchestration.EventPhaseComplete {
			fmt.Fprintf(w, "✓ %s %d/%d\n", ev.Phase, ev.Completed, ev.Total)
		}
	}
}

func statusIcon(failed bool) string {
	if failed {
		return "✗"
	}
	return "✓"
}

func cachedNote(cached bool) string {
	if cached {
		return " [cached]"
	}
	return ""
}

func openSessionLog(s *runSettings) (session.Logger, error) {
	if !s.sessionLog {
		return session.NopLogger{}, nil
	}
	l, err := session.NewJSONLogger(session.DefaultLogPath(s.resultsDir))
	if err != nil {
		return nil, err
	}
	slog.Debug("Writing session log", "path", l.Path())
	return l, nil
}

func logEvent(l session.Logger, ev session.Event) {
	if err := l.Log(ev); err != nil {
		slog.Warn("Failed to write session event", "event", ev.Type, "error", err)
	}
}

// writeReport prints the outcome in format f.
func writeReport(w io.Writer, outcome *models.RunOutcome, f reporting.Format) error {
	if f == reporting.FormatText {
		printSummary(w, outcome)
		fmt.Fprintln(w)
		fmt.Fprint(w, reporting.FormatSummaryReport(outcome))
		return nil
	}

	data, err := reporting.Render(outcome, f)
	if err != nil {
		return fmt.Errorf("rendering %s report: %w", f, err)
	}
	_, err = w.Write(data)
	return err
}

// saveLocal writes the outcome to --output when set, else to the results directory.
func saveLocal(ctx context.Context, outcome *models.RunOutcome, resultsDir string) (string, error) {
	if outputPath != "" {
		return outputPath, saveOutcome(outcome, outputPath)
	}
	return storage.SaveOutcome(ctx, storage.NewFileStore(resultsDir), outcome)
}

func saveOutcome(outcome *models.RunOutcome, path string) error {
	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}

func upload(ctx context.Context, outcome *models.RunOutcome, target string) (string, error) {
	store, err := storage.Open(ctx, target)
	if err != nil {
		return "", fmt.Errorf("opening storage target: %w", err)
	}
	loc, err := storage.SaveOutcome(ctx, store, outcome)
	if err != nil {
		return "", fmt.Errorf("uploading outcome: %w", err)
	}
	return loc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
