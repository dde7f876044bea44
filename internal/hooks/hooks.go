// Package hooks runs the shell commands a run file attaches to the start and
// end of a run.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Lifecycle points.
const (
	BeforeRun = "before_run"
	AfterRun  = "after_run"
)

// Hook is a single command.
type Hook struct {
	Command          string `yaml:"command" json:"command"`
	WorkingDirectory string `yaml:"working_directory,omitempty" json:"working_directory,omitempty"`

	// ExitCodes lists the accepted exit codes. Empty means only 0.
	ExitCodes []int `yaml:"exit_codes,omitempty" json:"exit_codes,omitempty"`

	// ErrorOnFail aborts the run instead of logging a warning.
	ErrorOnFail bool `yaml:"error_on_fail,omitempty" json:"error_on_fail,omitempty"`
}

// Config holds the hooks of a run.
type Config struct {
	BeforeRun []Hook `yaml:"before_run,omitempty" json:"before_run,omitempty"`
	AfterRun  []Hook `yaml:"after_run,omitempty" json:"after_run,omitempty"`
}

// Runner executes hook commands.
type Runner struct {
	// Output receives the combined output of every command. Nil discards it.
	Output io.Writer

	// Dir is used when a hook has no working_directory, or a relative one.
	Dir string
}

// Execute runs hooks in order. env is added to the process environment as
// ARENA_<KEY>=value, ex: {"run_id": "..."} becomes ARENA_RUN_ID.
func (r *Runner) Execute(ctx context.Context, point string, hooks []Hook, env map[string]string) error {
	for i, h := range hooks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("hook %s: %w", point, err)
		}

		if err := r.run(ctx, point, i, h, env); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) run(ctx context.Context, point string, index int, h Hook, env map[string]string) error {
	parts := strings.Fields(h.Command)
	if len(parts) == 0 {
		return fmt.Errorf("hook %s[%d]: empty command", point, index)
	}

	//nolint:gosec // hook commands come from the operator's own run file
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = r.workDir(h)
	cmd.Env = append(os.Environ(), environ(env)...)

	output, err := cmd.CombinedOutput()
	if r.Output != nil && len(output) > 0 {
		fmt.Fprintf(r.Output, "[hook:%s] %s", point, output)
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// The command never ran, ex: not found.
			if h.ErrorOnFail {
				return fmt.Errorf("hook %s[%d]: %w", point, index, err)
			}
			slog.Warn("Hook failed, continuing", "hook", point, "index", index, "error", err)
			return nil
		}
		exitCode = exitErr.ExitCode()
	}

	if acceptable(exitCode, h.ExitCodes) {
		return nil
	}
	if h.ErrorOnFail {
		return fmt.Errorf("hook %s[%d]: command exited with code %d", point, index, exitCode)
	}
	slog.Warn("Hook exited with an unexpected code, continuing", "hook", point, "index", index, "exitCode", exitCode)
	return nil
}

func (r *Runner) workDir(h Hook) string {
	switch {
	case h.WorkingDirectory == "":
		return r.Dir
	case r.Dir == "" || filepath.IsAbs(h.WorkingDirectory):
		return h.WorkingDirectory
	default:
		return filepath.Join(r.Dir, h.WorkingDirectory)
	}
}

// environ turns env into sorted ARENA_ prefixed assignments.
func environ(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, "ARENA_"+strings.ToUpper(k)+"="+v)
	}
	sort.Strings(out)
	return out
}

// acceptable reports whether exitCode is allowed. No codes means only 0.
func acceptable(exitCode int, allowed []int) bool {
	if len(allowed) == 0 {
		return exitCode == 0
	}
	for _, code := range allowed {
		if exitCode == code {
			return true
		}
	}
	return false
}
