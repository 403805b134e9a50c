package provisioner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// CommandResult is the captured outcome of one external command.
type CommandResult struct {
	// Stdout and Stderr are the captured output streams.
	Stdout string
	Stderr string

	// ExitCode is the process exit code, 0 on success.
	ExitCode int
}

// Combined returns stdout and stderr concatenated, for diagnostics and
// failure classification.
func (r CommandResult) Combined() string {
	if r.Stdout == "" {
		return r.Stderr
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + "\n" + r.Stderr
}

// CommandRunner executes an external command and captures its output.
// A non-zero exit code is reported through CommandResult, not as an
// error; errors are reserved for failures to start the process.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Dir is the working directory for commands, empty for inherited.
	Dir string
}

// Run executes the command and captures stdout and stderr.
func (e *ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if e.Dir != "" {
		cmd.Dir = e.Dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("failed to execute %s: %w", name, err)
	}

	return result, nil
}
