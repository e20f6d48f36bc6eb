package esp

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func resetEnv(t *testing.T) {
	t.Helper()
	cmdEnv = nil
	cmdDir = ""
	t.Cleanup(func() { cmdEnv = nil; cmdDir = "" })
}

func makeVenv(t *testing.T, venv string) string {
	t.Helper()
	binDir := venvBinDir(venv)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	bin := filepath.Join(binDir, esptoolNames()[0])
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return binDir
}

func pathFromEnv(t *testing.T) string {
	t.Helper()
	for _, e := range cmdEnv {
		if strings.HasPrefix(e, "PATH=") {
			return e[5:]
		}
	}
	t.Fatal("PATH not found in cmdEnv")
	return ""
}

func TestInitEnvDetectsVenv(t *testing.T) {
	resetEnv(t)
	root := t.TempDir()
	binDir := makeVenv(t, filepath.Join(root, ".venv"))

	InitEnv(root, "")

	if cmdDir != root {
		t.Errorf("cmdDir = %q, want %q", cmdDir, root)
	}
	if cmdEnv == nil {
		t.Fatal("cmdEnv is nil, expected it to be set")
	}
	if p := pathFromEnv(t); !strings.HasPrefix(p, binDir) {
		t.Errorf("PATH does not start with venv bin dir\nPATH=%s", p)
	}

	got, err := LocateEsptool("")
	if err != nil {
		t.Fatalf("LocateEsptool failed: %v", err)
	}
	if filepath.Dir(got) != binDir {
		t.Errorf("expected esptool from venv, got %s", got)
	}
}

func TestInitEnvOverrideTakesPrecedence(t *testing.T) {
	resetEnv(t)
	root := t.TempDir()
	makeVenv(t, filepath.Join(root, ".venv"))
	override := filepath.Join(root, "custom-venv")
	overrideBin := makeVenv(t, override)

	InitEnv(root, override)

	if p := pathFromEnv(t); !strings.HasPrefix(p, overrideBin) {
		t.Errorf("PATH should start with override bin dir %q\nPATH=%s", overrideBin, p)
	}
}

func TestInitEnvFallbackNoVenv(t *testing.T) {
	resetEnv(t)
	root := t.TempDir()

	InitEnv(root, "")

	if cmdDir != root {
		t.Errorf("cmdDir = %q, want %q", cmdDir, root)
	}
	if cmdEnv != nil {
		t.Error("cmdEnv should stay nil without a venv")
	}
}

func TestLocateMklittlefsInProjectDir(t *testing.T) {
	resetEnv(t)
	root := t.TempDir()
	dir := filepath.Join(root, "mklittlefs")
	os.MkdirAll(dir, 0o755)
	bin := filepath.Join(dir, "mklittlefs")
	os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755)

	got, err := LocateMklittlefs("", root)
	if err != nil {
		t.Fatalf("LocateMklittlefs failed: %v", err)
	}
	if got != bin {
		t.Errorf("got %s, want %s", got, bin)
	}
}

func TestLocateMklittlefsPrefersBinExtension(t *testing.T) {
	resetEnv(t)
	root := t.TempDir()
	dir := filepath.Join(root, "mklittlefs")
	os.MkdirAll(dir, 0o755)
	os.WriteFile(filepath.Join(dir, "mklittlefs"), []byte("x"), 0o755)
	os.WriteFile(filepath.Join(dir, "mklittlefs.bin"), []byte("x"), 0o755)

	got, err := LocateMklittlefs("", root)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "mklittlefs.bin" {
		t.Errorf("expected mklittlefs.bin, got %s", got)
	}
}

func TestLocateMissingConfiguredTool(t *testing.T) {
	resetEnv(t)
	missing := filepath.Join(t.TempDir(), "nope")

	if _, err := LocateMklittlefs(missing, ""); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}
	if _, err := LocateEsptool(missing); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}
}

func TestLocateMklittlefsNotFound(t *testing.T) {
	resetEnv(t)
	if runtime.GOOS == "windows" {
		t.Skip("PATH handling differs on windows")
	}
	t.Setenv("PATH", t.TempDir())

	if _, err := LocateMklittlefs("", t.TempDir()); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}
