// Package tools provides reusable runtime helpers shared by collaborator
// adapters.
package tools

import (
	"context"
	"errors"
	"os/exec"
)

// Runner abstracts shell command execution for collaborator adapters.
// Output is combined stdout+stderr; exitCode is meaningful whenever the
// command actually ran, even when err is non-nil.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (output []byte, exitCode int, err error)
}

// ExecRunner executes commands on the local host.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err == nil {
		return out, 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, exitErr.ExitCode(), err
	}

	exitCode := 1
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		exitCode = 127
	}
	return out, exitCode, err
}
