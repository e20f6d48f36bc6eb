package esp

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"k8s.io/klog/v2"
)

// Result bundles all output from a completed command.
type Result struct {
	Output   string
	ExitCode int
	Duration time.Duration
	Err      error // Non-nil when the command could not be started or did not exit cleanly
}

// Runner executes external tools. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) Result
}

// DefaultRunner runs commands on the host and waits for them to exit.
type DefaultRunner struct{}

// Run executes a command and returns its combined stdout and stderr once it exits.
func (DefaultRunner) Run(ctx context.Context, name string, args ...string) Result {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	applyEnv(cmd)
	klog.V(2).Infof("exec %s %v", name, args)

	output, err := cmd.CombinedOutput()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	klog.V(2).Infof("%s exited %d after %s:\n%s", name, exitCode, duration, output)

	return Result{
		Output:   string(output),
		ExitCode: exitCode,
		Duration: duration,
		Err:      err,
	}
}
