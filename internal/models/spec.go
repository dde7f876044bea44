package models

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spboyer/arena/internal/hooks"
	"gopkg.in/yaml.v3"
)

// RunSpec is a complete run definition loaded from YAML.
type RunSpec struct {
	SpecIdentity `yaml:",inline"`
	Config       RunConfig `yaml:"config"`

	TestCases     []TestCase  `yaml:"test_cases,omitempty"`
	TestCasesFrom string      `yaml:"test_cases_from,omitempty"`
	Criteria      []Criterion `yaml:"criteria"`
	Pool          ModelPool   `yaml:"pool"`

	// Vars are substituted into test case inputs, ex: {{.Vars.product}}.
	Vars map[string]string `yaml:"vars,omitempty"`

	Hooks hooks.Config `yaml:"hooks,omitempty"`

	// baseDir is the directory of the run file.
	baseDir string
}

type SpecIdentity struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// RunConfig controls how a run executes.
type RunConfig struct {
	Strategy   Strategy `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	EngineType string   `yaml:"engine,omitempty" json:"engine,omitempty"`
	JudgeModel string   `yaml:"judge_model,omitempty" json:"judge_model,omitempty"`
	Workers    int      `yaml:"max_workers,omitempty" json:"workers,omitempty"`
	TimeoutSec int      `yaml:"timeout_seconds,omitempty" json:"timeout_sec,omitempty"`
	Seed       *uint64  `yaml:"seed,omitempty" json:"seed,omitempty"`

	// OutputFormatMarker is a string every generated output is expected to contain.
	OutputFormatMarker string `yaml:"output_format_marker,omitempty" json:"output_format_marker,omitempty"`
}

// LoadRunSpec loads a run spec from a YAML file. Defaults are applied before validation.
func LoadRunSpec(path string) (*RunSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	spec, err := ParseRunSpec(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	spec.baseDir = filepath.Dir(abs)
	return spec, nil
}

// ParseRunSpec decodes and validates a run spec.
func ParseRunSpec(data []byte) (*RunSpec, error) {
	var spec RunSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}

	if spec.Config.Strategy == "" {
		spec.Config.Strategy = StrategyRandomSelection
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks that the run file is valid. Test cases are not required here
// since they may come from TestCasesFrom.
func (s *RunSpec) Validate() error {
	if _, err := ParseStrategy(string(s.Config.Strategy)); err != nil {
		return err
	}
	if s.Config.TimeoutSec < 0 {
		return fmt.Errorf("timeout_seconds must not be negative, got %d", s.Config.TimeoutSec)
	}
	if len(s.TestCases) == 0 && s.TestCasesFrom == "" {
		return fmt.Errorf("run %q has no test_cases and no test_cases_from", s.Name)
	}
	for i := range s.TestCases {
		if err := s.TestCases[i].Validate(); err != nil {
			return fmt.Errorf("test_cases[%d]: %w", i, err)
		}
	}
	for i := range s.Criteria {
		if err := s.Criteria[i].Validate(); err != nil {
			return fmt.Errorf("criteria[%d]: %w", i, err)
		}
	}
	if err := s.Pool.Validate(); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	return nil
}

// ResolvePath returns p relative to the directory of the run file.
func (s *RunSpec) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || s.baseDir == "" {
		return p
	}
	return filepath.Join(s.baseDir, p)
}
