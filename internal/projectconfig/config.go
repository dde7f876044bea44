// Package projectconfig provides the ProjectConfig struct and loader for
// .arena.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up from the working directory.
const FileName = ".arena.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultResultsDir = "results/"

	DefaultEngine  = "copilot-sdk"
	DefaultTimeout = 300
	DefaultWorkers = 4
	DefaultFormat  = "default"

	DefaultCacheDir = ".arena-cache"
)

// PathsConfig holds directory paths.
type PathsConfig struct {
	Results string `yaml:"results,omitempty"`
}

// DefaultsConfig holds default run parameters. Values in a run file and
// command-line flags take precedence.
type DefaultsConfig struct {
	Engine     string `yaml:"engine,omitempty"`
	JudgeModel string `yaml:"judge_model,omitempty"`
	Timeout    int    `yaml:"timeout,omitempty"`
	Workers    int    `yaml:"workers,omitempty"`
	Format     string `yaml:"format,omitempty"`
	Verbose    *bool  `yaml:"verbose,omitempty"`
	SessionLog *bool  `yaml:"session_log,omitempty"`
}

// CacheConfig holds generation cache settings.
type CacheConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
}

// StorageConfig names where outcomes are uploaded. Blank means no upload.
type StorageConfig struct {
	Target string `yaml:"target,omitempty"`
}

// GatewayConfig holds settings for the OpenAI-compatible gateway engine.
// The API key is only read from the environment.
type GatewayConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .arena.yaml.
type ProjectConfig struct {
	Paths    PathsConfig    `yaml:"paths,omitempty"`
	Defaults DefaultsConfig `yaml:"defaults,omitempty"`
	Cache    CacheConfig    `yaml:"cache,omitempty"`
	Storage  StorageConfig  `yaml:"storage,omitempty"`
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Paths: PathsConfig{
			Results: DefaultResultsDir,
		},
		Defaults: DefaultsConfig{
			Engine:     DefaultEngine,
			Timeout:    DefaultTimeout,
			Workers:    DefaultWorkers,
			Format:     DefaultFormat,
			Verbose:    boolPtr(false),
			SessionLog: boolPtr(false),
		},
		Cache: CacheConfig{
			Enabled: boolPtr(false),
			Dir:     DefaultCacheDir,
		},
	}
}

// Load finds .arena.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}

	mergeConfig(cfg, &fileCfg)
	return cfg, nil
}

// findConfigFile walks up from dir looking for .arena.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found.
func findConfigFile(dir string) ([]byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for range 10 {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	if src.Paths.Results != "" {
		dst.Paths.Results = src.Paths.Results
	}

	setString(&dst.Defaults.Engine, src.Defaults.Engine)
	setString(&dst.Defaults.JudgeModel, src.Defaults.JudgeModel)
	setString(&dst.Defaults.Format, src.Defaults.Format)
	if src.Defaults.Timeout != 0 {
		dst.Defaults.Timeout = src.Defaults.Timeout
	}
	// Negative workers means unbounded, so only zero is "unset".
	if src.Defaults.Workers != 0 {
		dst.Defaults.Workers = src.Defaults.Workers
	}
	if src.Defaults.Verbose != nil {
		dst.Defaults.Verbose = src.Defaults.Verbose
	}
	if src.Defaults.SessionLog != nil {
		dst.Defaults.SessionLog = src.Defaults.SessionLog
	}

	if src.Cache.Enabled != nil {
		dst.Cache.Enabled = src.Cache.Enabled
	}
	setString(&dst.Cache.Dir, src.Cache.Dir)

	setString(&dst.Storage.Target, src.Storage.Target)
	setString(&dst.Gateway.BaseURL, src.Gateway.BaseURL)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func boolPtr(b bool) *bool {
	return &b
}
