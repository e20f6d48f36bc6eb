package upload

import (
	"errors"
	"fmt"
	"time"

	"github.com/buckleypaul/fsflash/internal/datadir"
	"github.com/buckleypaul/fsflash/internal/esp"
	"github.com/buckleypaul/fsflash/internal/serial"
)

// OutcomeKind is the final state of one board in a run.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	FailedAfterRetries
	PortUnavailable
	BuildFailure
	ConfigureFailure
	// Skipped boards were never started because the run was cancelled.
	Skipped
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case FailedAfterRetries:
		return "failed after retries"
	case PortUnavailable:
		return "port unavailable"
	case BuildFailure:
		return "build failure"
	case ConfigureFailure:
		return "configure failure"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is a tagged result. Reason and Code are set for BuildFailure; Err
// carries the underlying error for build and configure failures.
type Outcome struct {
	Kind   OutcomeKind
	Reason esp.BuildReason
	Code   int
	Err    error
}

// OK reports whether the board was flashed and verified.
func (o Outcome) OK() bool { return o.Kind == Success }

func (o Outcome) String() string {
	switch o.Kind {
	case BuildFailure:
		if o.Reason == esp.ToolError {
			return fmt.Sprintf("%s (%s, exit code %d)", o.Kind, o.Reason, o.Code)
		}
		return fmt.Sprintf("%s (%s)", o.Kind, o.Reason)
	case ConfigureFailure:
		if o.Err != nil {
			return fmt.Sprintf("%s (%v)", o.Kind, o.Err)
		}
	}
	return o.Kind.String()
}

func buildFailure(err error) Outcome {
	out := Outcome{Kind: BuildFailure, Reason: esp.ToolError, Err: err}
	var be *esp.BuildError
	if errors.As(err, &be) {
		out.Reason = be.Reason
		out.Code = be.Code
	}
	return out
}

func flashOutcome(r esp.FlashResult) Outcome {
	switch r.Outcome {
	case esp.FlashSuccess:
		return Outcome{Kind: Success}
	case esp.FlashPortUnavailable:
		return Outcome{Kind: PortUnavailable}
	}
	return Outcome{Kind: FailedAfterRetries}
}

// DeviceResult is everything recorded about one board.
type DeviceResult struct {
	Device     serial.Device
	Channel    int // Zero in uniform mode
	Outcome    Outcome
	Attempts   int      // Flash attempts made
	Lines      []string // Boot log captured after flashing
	MonitorErr error
	Duration   time.Duration
}

// Summary is the report of one run, with results in discovery order.
type Summary struct {
	RunID    string
	Mode     datadir.Mode
	Started  time.Time
	Duration time.Duration
	Results  []DeviceResult
}

// Counts returns how many boards succeeded and how many did not.
func (s *Summary) Counts() (succeeded, failed int) {
	for _, r := range s.Results {
		if r.Outcome.OK() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
