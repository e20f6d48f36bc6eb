package upload

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/buckleypaul/fsflash/internal/esp"
	"github.com/buckleypaul/fsflash/internal/serial"
)

type fakeEnumerator struct {
	devices []serial.Device
	err     error
	calls   int
}

func (f *fakeEnumerator) Discover() ([]serial.Device, error) {
	f.calls++
	return f.devices, f.err
}

func ports(names ...string) *fakeEnumerator {
	e := &fakeEnumerator{}
	for _, n := range names {
		e.devices = append(e.devices, serial.Device{Port: n})
	}
	return e
}

type buildCall struct {
	srcDir  string
	outPath string
	content string // First file in srcDir at build time
}

// fakeBuilder writes a placeholder image unless fail returns an error for
// the call.
type fakeBuilder struct {
	mu    sync.Mutex
	calls []buildCall
	fail  func(call buildCall) error
}

func (f *fakeBuilder) Build(_ context.Context, srcDir, outPath string) error {
	call := buildCall{srcDir: srcDir, outPath: outPath}
	if entries, err := os.ReadDir(srcDir); err == nil && len(entries) > 0 {
		data, _ := os.ReadFile(filepath.Join(srcDir, entries[0].Name()))
		call.content = string(data)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(call); err != nil {
			return err
		}
	}
	return os.WriteFile(outPath, []byte("image:"+call.content), 0o644)
}

func (f *fakeBuilder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type flashCall struct {
	port        string
	imagePath   string
	imageExists bool
}

// fakeFlasher succeeds unless results holds an entry for the port.
type fakeFlasher struct {
	mu      sync.Mutex
	calls   []flashCall
	results map[string]esp.FlashResult
}

func (f *fakeFlasher) Upload(_ context.Context, port, imagePath string) esp.FlashResult {
	_, err := os.Stat(imagePath)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, flashCall{port: port, imagePath: imagePath, imageExists: err == nil})
	if r, ok := f.results[port]; ok {
		return r
	}
	return esp.FlashResult{Outcome: esp.FlashSuccess, Attempts: 1}
}

func (f *fakeFlasher) portsFlashed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.port)
	}
	return out
}

type fakeSource struct {
	lines  []string
	err    error
	closed bool
}

func (s *fakeSource) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, l := range s.lines {
			if !yield(l) {
				return
			}
		}
	}
}

func (s *fakeSource) Err() error   { return s.err }
func (s *fakeSource) Close() error { s.closed = true; return nil }

type fakeMonitor struct {
	mu      sync.Mutex
	opened  []string
	sources map[string]*fakeSource
	openErr map[string]error
}

func (m *fakeMonitor) open(port string) (LineSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = append(m.opened, port)
	if err := m.openErr[port]; err != nil {
		return nil, err
	}
	if s, ok := m.sources[port]; ok {
		return s, nil
	}
	return &fakeSource{lines: []string{"boot " + port}}, nil
}

// recorder keeps every event it sees.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) stages(port string) []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Stage
	for _, e := range r.events {
		if sc, ok := e.(StageChangedEvent); ok && sc.Device.Port == port {
			out = append(out, sc.Stage)
		}
	}
	return out
}

var errBuildFailed = errors.New("exit status 1")

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
