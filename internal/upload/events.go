package upload

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/buckleypaul/fsflash/internal/datadir"
	"github.com/buckleypaul/fsflash/internal/serial"
)

// Stage is the step a board is currently in.
type Stage int

const (
	StagePending Stage = iota
	StageConfigure
	StageBuild
	StageFlash
	StageMonitor
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageConfigure:
		return "configure"
	case StageBuild:
		return "build"
	case StageFlash:
		return "flash"
	case StageMonitor:
		return "monitor"
	}
	return "done"
}

// Event is sent to a Reporter as a run progresses.
type Event interface {
	event()
}

// RunStartedEvent is sent once the boards have been discovered.
type RunStartedEvent struct {
	RunID   string
	Mode    datadir.Mode
	Devices []serial.Device
}

// StageChangedEvent is sent when a board enters a new stage.
type StageChangedEvent struct {
	Device  serial.Device
	Channel int
	Stage   Stage
}

// SerialLineEvent carries one line of a board's boot log.
type SerialLineEvent struct {
	Device serial.Device
	Line   string
}

// DeviceFinishedEvent is sent with a board's final result.
type DeviceFinishedEvent struct {
	Result DeviceResult
}

// RunFinishedEvent is sent after cleanup, with the complete summary.
type RunFinishedEvent struct {
	Summary *Summary
}

func (RunStartedEvent) event()     {}
func (StageChangedEvent) event()   {}
func (SerialLineEvent) event()     {}
func (DeviceFinishedEvent) event() {}
func (RunFinishedEvent) event()    {}

// Reporter observes a run. With Concurrency above one, Report is called
// from several goroutines.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

// MultiReporter fans events out to each reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(e Event) {
	for _, r := range m {
		if r != nil {
			r.Report(e)
		}
	}
}

// LogReporter writes progress to klog.
type LogReporter struct {
	mu sync.Mutex
}

func (l *LogReporter) Report(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch e := e.(type) {
	case RunStartedEvent:
		klog.Infof("run %s: %d board(s) detected, %s mode", e.RunID, len(e.Devices), e.Mode)
	case StageChangedEvent:
		if e.Channel > 0 {
			klog.Infof("[%d] %s: %s (channel %d)", e.Device.Position, e.Device.Port, e.Stage, e.Channel)
		} else {
			klog.Infof("[%d] %s: %s", e.Device.Position, e.Device.Port, e.Stage)
		}
	case SerialLineEvent:
		klog.Infof("[%d] %s> %s", e.Device.Position, e.Device.Port, e.Line)
	case DeviceFinishedEvent:
		r := e.Result
		if r.Outcome.OK() {
			klog.Infof("[%d] %s: %s after %d attempt(s)", r.Device.Position, r.Device.Port, r.Outcome, r.Attempts)
		} else {
			klog.ErrorS(r.Outcome.Err, "board failed", "position", r.Device.Position,
				"port", r.Device.Port, "outcome", r.Outcome.String())
		}
		if r.MonitorErr != nil {
			klog.Warningf("[%d] %s: monitor: %v", r.Device.Position, r.Device.Port, r.MonitorErr)
		}
	case RunFinishedEvent:
		ok, failed := e.Summary.Counts()
		klog.Infof("run %s finished in %s: %d succeeded, %d failed", e.Summary.RunID, e.Summary.Duration, ok, failed)
	}
}
