package esp

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrToolNotFound is returned when an external tool cannot be located.
var ErrToolNotFound = errors.New("tool not found")

// cmdEnv holds the modified environment for tool commands.
// When nil, commands inherit the parent process environment.
var cmdEnv []string

// cmdDir holds the project root directory for tool commands.
var cmdDir string

// InitEnv detects a Python virtual environment holding esptool and prepends
// its bin/ directory to PATH for all subsequent tool executions.
// Detection order: venvOverride → <root>/.venv/ → system PATH (no modification).
func InitEnv(root, venvOverride string) {
	cmdDir = root

	candidates := []string{}
	if venvOverride != "" {
		candidates = append(candidates, venvOverride)
	}
	if root != "" {
		candidates = append(candidates, filepath.Join(root, ".venv"))
	}

	for _, venv := range candidates {
		binDir := venvBinDir(venv)
		for _, name := range esptoolNames() {
			if _, err := os.Stat(filepath.Join(binDir, name)); err == nil {
				cmdEnv = buildEnvWithPath(binDir)
				return
			}
		}
	}
}

// venvBinDir returns the bin (or Scripts on Windows) directory for a venv.
func venvBinDir(venvPath string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venvPath, "Scripts")
	}
	return filepath.Join(venvPath, "bin")
}

func esptoolNames() []string {
	if runtime.GOOS == "windows" {
		return []string{"esptool.py.exe", "esptool.exe", "esptool.py"}
	}
	return []string{"esptool.py", "esptool"}
}

// buildEnvWithPath creates a copy of the current environment with binDir
// prepended to PATH.
func buildEnvWithPath(binDir string) []string {
	env := os.Environ()
	result := make([]string, 0, len(env))
	pathSet := false

	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			result = append(result, "PATH="+binDir+string(os.PathListSeparator)+e[5:])
			pathSet = true
		} else {
			result = append(result, e)
		}
	}

	if !pathSet {
		result = append(result, "PATH="+binDir)
	}

	return result
}

// applyEnv sets the environment and working directory on an exec.Cmd.
func applyEnv(cmd *exec.Cmd) {
	if cmdEnv != nil {
		cmd.Env = cmdEnv
	}
	if cmdDir != "" {
		cmd.Dir = cmdDir
	}
}

// lookPath resolves name against the tool environment's PATH rather than the
// process PATH, so a detected venv is honored.
func lookPath(name string) (string, error) {
	path := os.Getenv("PATH")
	for _, e := range cmdEnv {
		if strings.HasPrefix(e, "PATH=") {
			path = e[5:]
		}
	}
	for _, dir := range filepath.SplitList(path) {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return exec.LookPath(name)
}

// mklittlefsExtensions are tried in order next to the project root.
var mklittlefsExtensions = []string{".bin", ".exe", ""}

// LocateMklittlefs finds the image-builder executable. Search order: the
// configured path, <root>/mklittlefs/mklittlefs{.bin,.exe,}, then PATH.
func LocateMklittlefs(configured, root string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("mklittlefs at %s: %w", configured, ErrToolNotFound)
		}
		return configured, nil
	}

	for _, ext := range mklittlefsExtensions {
		candidate := filepath.Join(root, "mklittlefs", "mklittlefs"+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	if path, err := lookPath("mklittlefs"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("mklittlefs not in %s or on PATH: %w",
		filepath.Join(root, "mklittlefs"), ErrToolNotFound)
}

// LocateEsptool finds the flashing tool. Search order: the configured path,
// then esptool.py and esptool on the tool PATH (venv first when detected).
func LocateEsptool(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("esptool at %s: %w", configured, ErrToolNotFound)
		}
		return configured, nil
	}
	for _, name := range esptoolNames() {
		if path, err := lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("esptool.py not on PATH (pip install esptool): %w", ErrToolNotFound)
}
