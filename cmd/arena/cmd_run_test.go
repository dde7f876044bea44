package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spboyer/arena/internal/models"
	"github.com/spboyer/arena/internal/projectconfig"
	"github.com/spboyer/arena/internal/reporting"
	"github.com/spboyer/arena/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetRunGlobals zeroes the package-level flag vars so prior tests don't leak.
func resetRunGlobals() {
	strategyName = ""
	engineType = ""
	workers = 0
	timeoutSec = 0
	judgeModel = ""
	seed = 0
	outputPath = ""
	format = ""
	enableCache = false
	runCacheDir = ""
	uploadTarget = ""
	sessionLog = false
	interactive = false
	verbose = false
	testFilters = nil
	minLevel = ""
}

const testRunSpec = `name: support-bot
config:
  engine: mock
  strategy: unique_model
vars:
  product: Contoso Cloud
test_cases:
  - id: tc-1
    input: How do I reset my {{.Vars.product}} password?
    use_case: account
  - id: tc-2
    input: Where is my refund?
    context: Order 1234 was returned last week.
    use_case: billing
criteria:
  - id: accuracy
    name: Accuracy
  - id: tone
    name: Tone
pool:
  models:
    m-a:
      provider: openai
      model: gpt-4o
    m-b:
      provider: anthropic
      model: claude
  slots:
    - assistant_id: writer-a
      type: output_generation
      candidate_model_ids: [m-a]
    - assistant_id: writer-b
      type: output_generation
      candidate_model_ids: [m-b]
    - assistant_id: judge
      type: evaluation
      candidate_model_ids: [m-a]
`

// setupRun writes the run file into a fresh directory, makes it the working
// directory and returns the run file path.
func setupRun(t *testing.T, spec string) string {
	t.Helper()
	resetRunGlobals()
	t.Cleanup(resetRunGlobals)

	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(spec), 0o644))
	return path
}

// executeRun runs the command and returns stdout and stderr.
func executeRun(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRunCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func decodeOutcome(t *testing.T, data string) *models.RunOutcome {
	t.Helper()
	var outcome models.RunOutcome
	require.NoError(t, json.Unmarshal([]byte(data), &outcome))
	return &outcome
}

func TestRunCommand_RequiresExactlyOneArg(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no args", []string{}},
		{"two args", []string{"a.yaml", "b.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetRunGlobals()
			_, _, err := executeRun(t, tt.args...)
			assert.Error(t, err, "expected error for args=%v", tt.args)
		})
	}
}

func TestRunCommand_MockEngine(t *testing.T) {
	path := setupRun(t, testRunSpec)
	out := filepath.Join(filepath.Dir(path), "out", "outcome.json")

	stdout, stderr, err := executeRun(t, path, "--format", "json", "--output", out)
	require.NoError(t, err)

	outcome := decodeOutcome(t, stdout)
	require.Len(t, outcome.Results, 2)
	assert.Equal(t, "support-bot", outcome.Name)
	assert.Equal(t, "mock", outcome.Engine)
	assert.Equal(t, models.StrategyUniqueModel, outcome.Strategy)
	assert.Equal(t, "How do I reset my Contoso Cloud password?", outcome.Results[0].Input)
	assert.Empty(t, outcome.Failures)

	for _, r := range outcome.Results {
		assert.Len(t, r.ModelOutputs, 2, "test case %s", r.ID)
		assert.True(t, r.FullyScored(), "test case %s", r.ID)
	}

	require.NotNil(t, outcome.Recommendation)
	assert.Contains(t, []string{"m-a", "m-b"}, outcome.Recommendation.RecommendedModel)

	saved, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, outcome.RunID, decodeOutcome(t, string(saved)).RunID)

	assert.Contains(t, stderr, "Running: support-bot")
	assert.Contains(t, stderr, "Results saved to: "+out)
}

func TestRunCommand_DefaultFormatSavesToResultsDir(t *testing.T) {
	path := setupRun(t, testRunSpec)

	stdout, _, err := executeRun(t, path)
	require.NoError(t, err)

	assert.Contains(t, stdout, "RUN RESULTS")
	assert.Contains(t, stdout, "=== Interpretation ===")
	assert.Contains(t, stdout, "★")

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "results", "arena-*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRunCommand_Filter(t *testing.T) {
	path := setupRun(t, testRunSpec)

	stdout, _, err := executeRun(t, path, "--format", "json", "--filter", "billing")
	require.NoError(t, err)

	outcome := decodeOutcome(t, stdout)
	require.Len(t, outcome.Results, 1)
	assert.Equal(t, "tc-2", outcome.Results[0].ID)
}

func TestRunCommand_Errors(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		args    []string
		wantErr string
	}{
		{
			name:    "no filter match",
			spec:    testRunSpec,
			args:    []string{"--filter", "nothing-*"},
			wantErr: "no test cases match",
		},
		{
			name:    "unknown engine",
			spec:    testRunSpec,
			args:    []string{"--engine", "nope"},
			wantErr: "unknown engine type: nope",
		},
		{
			name:    "bad strategy",
			spec:    testRunSpec,
			args:    []string{"--strategy", "round_robin"},
			wantErr: "invalid strategy",
		},
		{
			name:    "bad format",
			spec:    testRunSpec,
			args:    []string{"--format", "pdf"},
			wantErr: "unknown format",
		},
		{
			name:    "bad timeout",
			spec:    testRunSpec,
			args:    []string{"--timeout", "0"},
			wantErr: "--timeout must be positive",
		},
		{
			name:    "bad effectiveness level",
			spec:    testRunSpec,
			args:    []string{"--min-effectiveness", "great"},
			wantErr: "invalid effectiveness level",
		},
		{
			name:    "duplicate test case ids",
			spec:    strings.Replace(testRunSpec, "id: tc-2", "id: tc-1", 1),
			wantErr: "duplicate of test case 0",
		},
		{
			name:    "unknown template variable",
			spec:    strings.Replace(testRunSpec, ".Vars.product", ".Vars.missing", 1),
			wantErr: "tc-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := setupRun(t, tt.spec)
			_, _, err := executeRun(t, append([]string{path}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, ExitError, exitCode(err))
		})
	}
}

func TestRunCommand_GatewayNeedsBaseURL(t *testing.T) {
	path := setupRun(t, testRunSpec)
	t.Setenv(envGatewayURL, "")

	_, _, err := executeRun(t, path, "--engine", "gateway")
	require.Error(t, err)
	assert.Contains(t, err.Error(), envGatewayURL)
}

func TestRunCommand_TestCasesFromCSV(t *testing.T) {
	spec := `name: from-csv
config:
  engine: mock
vars:
  team: payments
test_cases_from: cases.csv
criteria:
  - id: accuracy
pool:
  slots:
    - assistant_id: writer
      type: output_generation
      candidate_model_ids: [m-a]
`
	path := setupRun(t, spec)
	csv := "id,prompt,category\ncsv-1,Ask {{.Vars.team}} about fees,billing\ncsv-2,Close my account,account\n"
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "cases.csv"), []byte(csv), 0o644))

	stdout, _, err := executeRun(t, path, "--format", "json")
	require.NoError(t, err)

	outcome := decodeOutcome(t, stdout)
	require.Len(t, outcome.Results, 2)
	assert.Equal(t, "Ask payments about fees", outcome.Results[0].Input)
	assert.Equal(t, "billing", outcome.Results[0].ScenarioCategory)
	// One generating model, nothing to compare.
	assert.Nil(t, outcome.Recommendation)
}

func TestRunCommand_SessionLogAndUpload(t *testing.T) {
	path := setupRun(t, testRunSpec)
	uploadDir := filepath.Join(t.TempDir(), "uploaded")

	stdout, stderr, err := executeRun(t, path, "--format", "json", "--session-log", "--upload", uploadDir)
	require.NoError(t, err)
	outcome := decodeOutcome(t, stdout)

	uploaded := filepath.Join(uploadDir, "arena-"+outcome.RunID+".json")
	assert.FileExists(t, uploaded)
	assert.Contains(t, stderr, "Results uploaded to: "+uploaded)

	files, err := session.ListSessions(filepath.Join(filepath.Dir(path), "results"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	events, err := session.ReadEvents(files[0].Path)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, session.EventSessionStart, events[0].Type)
	assert.Equal(t, session.EventSessionEnd, events[len(events)-1].Type)

	var settled int
	for _, ev := range events {
		if ev.Type == session.EventCallSettled {
			settled++
		}
	}
	// Two generate calls and two evaluate calls.
	assert.Equal(t, 4, settled)
}

func TestRunCommand_CacheReusesGenerations(t *testing.T) {
	path := setupRun(t, testRunSpec)
	cacheDir := filepath.Join(filepath.Dir(path), "cache")

	_, first, err := executeRun(t, path, "--format", "json", "--cache", "--cache-dir", cacheDir, "--verbose")
	require.NoError(t, err)
	assert.NotContains(t, first, "[cached]")

	resetRunGlobals()
	_, second, err := executeRun(t, path, "--format", "json", "--cache", "--cache-dir", cacheDir, "--verbose")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(second, "[cached]"))
}

func TestResolveSettings(t *testing.T) {
	seven := uint64(7)
	spec := &models.RunSpec{Config: models.RunConfig{
		Strategy:   models.StrategyRandomSelection,
		EngineType: "gateway",
		Workers:    2,
		TimeoutSec: 60,
		Seed:       &seven,
	}}
	pc := projectconfig.New()
	pc.Defaults.JudgeModel = "gpt-4o"
	pc.Storage.Target = "s3://results"

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, s *runSettings)
	}{
		{
			name: "run file over project defaults",
			check: func(t *testing.T, s *runSettings) {
				assert.Equal(t, "gateway", s.engine)
				assert.Equal(t, "gpt-4o", s.judgeModel)
				assert.Equal(t, 2, s.workers)
				assert.Equal(t, time.Minute, s.timeout)
				assert.Equal(t, uint64(7), *s.seed)
				assert.Equal(t, "s3://results", s.upload)
				assert.Equal(t, reporting.FormatText, s.format)
				assert.Equal(t, projectconfig.DefaultCacheDir, s.cacheDir)
				assert.False(t, s.cache)
			},
		},
		{
			name: "flags over run file",
			args: []string{"--engine", "mock", "--workers", "-1", "--timeout", "5", "--seed", "0",
				"--strategy", "unique_model", "--judge-model", "judge", "--format", "markdown", "--cache"},
			check: func(t *testing.T, s *runSettings) {
				assert.Equal(t, "mock", s.engine)
				assert.Equal(t, "judge", s.judgeModel)
				assert.Equal(t, -1, s.workers)
				assert.Equal(t, 5*time.Second, s.timeout)
				assert.Equal(t, uint64(0), *s.seed)
				assert.Equal(t, models.StrategyUniqueModel, s.strategy)
				assert.Equal(t, reporting.FormatMarkdown, s.format)
				assert.True(t, s.cache)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetRunGlobals()
			t.Cleanup(resetRunGlobals)

			cmd := newRunCommand()
			require.NoError(t, cmd.ParseFlags(tt.args))

			s, err := resolveSettings(cmd, spec, pc)
			require.NoError(t, err)
			tt.check(t, s)
		})
	}
}

func TestRunCommand_MinEffectivenessLow(t *testing.T) {
	path := setupRun(t, testRunSpec)

	_, _, err := executeRun(t, path, "--format", "json", "--min-effectiveness", "low")
	assert.NoError(t, err)
}

func TestBelowLevel(t *testing.T) {
	results := []models.TestCaseWithModelOutputs{
		{ID: "tc-1", Effectiveness: &models.EffectivenessAnalysis{Level: models.EffectivenessHigh}},
		{ID: "tc-2", Effectiveness: &models.EffectivenessAnalysis{Level: models.EffectivenessMedium}},
		{ID: "tc-3", Effectiveness: &models.EffectivenessAnalysis{Level: models.EffectivenessLow}},
		{ID: "tc-4"},
	}

	tests := []struct {
		target models.EffectivenessLevel
		want   []string
	}{
		{models.EffectivenessLow, nil},
		{models.EffectivenessMedium, []string{"tc-3"}},
		{models.EffectivenessHigh, []string{"tc-2", "tc-3"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.target), func(t *testing.T) {
			assert.Equal(t, tt.want, belowLevel(results, tt.target))
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"partial failure", &PartialFailureError{Message: "1 failed"}, ExitPartialFailure},
		{"wrapped partial failure", errors.Join(errors.New("ctx"), &PartialFailureError{}), ExitPartialFailure},
		{"other", errors.New("boom"), ExitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestRunCommand_Hooks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hook commands are POSIX")
	}

	spec := testRunSpec + `hooks:
  before_run:
    - command: touch before.txt
  after_run:
    - command: printenv ARENA_RUN_ID
`
	path := setupRun(t, spec)

	stdout, stderr, err := executeRun(t, path, "--format", "json")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(filepath.Dir(path), "before.txt"))
	outcome := decodeOutcome(t, stdout)
	assert.Contains(t, stderr, "[hook:after_run] "+outcome.RunID)
}

func TestRunCommand_FailingBeforeHookAborts(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hook commands are POSIX")
	}

	spec := testRunSpec + `hooks:
  before_run:
    - command: "false"
      error_on_fail: true
`
	path := setupRun(t, spec)

	stdout, _, err := executeRun(t, path, "--format", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before_run[0]")
	assert.Empty(t, stdout)
}
