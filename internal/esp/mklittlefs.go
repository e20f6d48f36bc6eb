package esp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
)

// BuildReason says why an image build failed.
type BuildReason int

const (
	ToolError BuildReason = iota
	ToolMissing
	PermissionDenied
)

func (r BuildReason) String() string {
	switch r {
	case ToolMissing:
		return "tool missing"
	case PermissionDenied:
		return "permission denied"
	default:
		return "tool error"
	}
}

// BuildError is returned by Builder.Build.
type BuildError struct {
	Reason BuildReason
	Code   int    // Exit code when Reason is ToolError
	Output string // Captured tool output
	Err    error
}

func (e *BuildError) Error() string {
	if e.Reason == ToolError {
		return fmt.Sprintf("mklittlefs failed with exit code %d", e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("mklittlefs: %s: %v", e.Reason, e.Err)
	}
	return "mklittlefs: " + e.Reason.String()
}

func (e *BuildError) Unwrap() error { return e.Err }

// Builder produces a LittleFS image from a folder with mklittlefs.
type Builder struct {
	Tool      string
	PageSize  int
	BlockSize int
	ImageSize int
	Runner    Runner
}

// Args returns the mklittlefs arguments for packing srcDir into outPath.
func (b *Builder) Args(srcDir, outPath string) []string {
	return []string{
		"-c", srcDir,
		"-p", strconv.Itoa(b.PageSize),
		"-b", strconv.Itoa(b.BlockSize),
		"-s", strconv.Itoa(b.ImageSize),
		outPath,
	}
}

// Build packs srcDir into an image at outPath. It blocks until the tool exits
// and never retries. Any failure is a *BuildError.
func (b *Builder) Build(ctx context.Context, srcDir, outPath string) error {
	runner := b.Runner
	if runner == nil {
		runner = DefaultRunner{}
	}

	res := runner.Run(ctx, b.Tool, b.Args(srcDir, outPath)...)
	if res.Err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(res.Err, &exitErr):
			return &BuildError{Reason: ToolError, Code: res.ExitCode, Output: res.Output, Err: res.Err}
		case errors.Is(res.Err, exec.ErrNotFound), errors.Is(res.Err, fs.ErrNotExist):
			return &BuildError{Reason: ToolMissing, Output: res.Output, Err: res.Err}
		case errors.Is(res.Err, fs.ErrPermission):
			return &BuildError{Reason: PermissionDenied, Output: res.Output, Err: res.Err}
		}
		return &BuildError{Reason: ToolError, Code: res.ExitCode, Output: res.Output, Err: res.Err}
	}
	if res.ExitCode != 0 {
		return &BuildError{Reason: ToolError, Code: res.ExitCode, Output: res.Output}
	}

	if _, err := os.Stat(outPath); err != nil {
		return &BuildError{Reason: ToolError, Output: res.Output, Err: fmt.Errorf("no image at %s: %w", outPath, err)}
	}
	return nil
}
