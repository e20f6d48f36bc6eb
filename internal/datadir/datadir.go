package datadir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Mode classifies the configuration file found in the data folder.
type Mode int

const (
	// Uniform content is identical for every board; the image is built once.
	Uniform Mode = iota
	// PerDevice content carries a channel that is rewritten before each build.
	PerDevice
)

func (m Mode) String() string {
	switch m {
	case Uniform:
		return "uniform"
	case PerDevice:
		return "per-device"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

var (
	ErrNoDataDir        = errors.New("data folder not found")
	ErrFileCount        = errors.New("data folder must contain exactly one file")
	ErrUnrecognizedFile = errors.New("unrecognized configuration file")
)

// Names are the two recognized configuration filenames.
type Names struct {
	Uniform   string
	PerDevice string
}

// Layout describes a validated data folder.
type Layout struct {
	Dir  string // Data folder
	File string // Name of the single configuration file
	Mode Mode
}

// Path returns the full path of the configuration file.
func (l Layout) Path() string {
	return filepath.Join(l.Dir, l.File)
}

// Inspect validates that dir holds exactly one visible regular file with a
// recognized name and derives the configuration mode from that name.
func Inspect(dir string, names Names) (Layout, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return Layout{}, fmt.Errorf("%w: %s, please create this directory", ErrNoDataDir, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Layout{}, fmt.Errorf("read %s: %w", dir, err)
	}

	var visible []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			continue
		}
		visible = append(visible, e.Name())
	}

	if len(visible) != 1 {
		return Layout{}, fmt.Errorf("%w: %s has %d visible files %v, expected one of [%s %s]",
			ErrFileCount, dir, len(visible), visible, names.Uniform, names.PerDevice)
	}

	file := visible[0]
	switch file {
	case names.Uniform:
		return Layout{Dir: dir, File: file, Mode: Uniform}, nil
	case names.PerDevice:
		return Layout{Dir: dir, File: file, Mode: PerDevice}, nil
	}
	return Layout{}, fmt.Errorf("%w: found %s in %s, expected one of [%s %s]",
		ErrUnrecognizedFile, file, dir, names.Uniform, names.PerDevice)
}

// Stage copies the data folder into a private working directory for the
// device at position and returns the layout of the copy. Each device owns
// its copy, so rewrites for one device never reach another device's build.
func Stage(l Layout, root string, position int) (Layout, error) {
	dst := filepath.Join(root, fmt.Sprintf("device-%d", position), "data")
	if err := os.RemoveAll(dst); err != nil {
		return Layout{}, err
	}
	if err := copyTree(l.Dir, dst); err != nil {
		return Layout{}, fmt.Errorf("stage %s: %w", dst, err)
	}
	return Layout{Dir: dst, File: l.File, Mode: l.Mode}, nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}
