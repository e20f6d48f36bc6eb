package esp

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/avast/retry-go"
	"k8s.io/klog/v2"
)

// Signal is what the flashing tool's output says about an attempt.
type Signal int

const (
	SignalUnknown Signal = iota
	SignalVerified
	SignalPortBusy
)

func (s Signal) String() string {
	switch s {
	case SignalVerified:
		return "verified"
	case SignalPortBusy:
		return "port busy"
	}
	return "unknown"
}

const verifiedMarker = "hash of data verified"

var portBusyPattern = regexp.MustCompile(`(?is)fatal error.*could not open [^,\n]+, the port is busy or doesn't exist`)

// Classify inspects captured esptool output. The tool's exit status is not
// reliable across versions, so the output text is the only signal used.
func Classify(output string) Signal {
	if strings.Contains(strings.ToLower(output), verifiedMarker) {
		return SignalVerified
	}
	if portBusyPattern.MatchString(output) {
		return SignalPortBusy
	}
	return SignalUnknown
}

// FlashOutcome is the result of writing an image to one board.
type FlashOutcome int

const (
	FlashSuccess FlashOutcome = iota
	FlashFailed
	FlashPortUnavailable
)

func (o FlashOutcome) String() string {
	switch o {
	case FlashSuccess:
		return "success"
	case FlashPortUnavailable:
		return "port unavailable"
	}
	return "failed after retries"
}

// FlashResult captures every attempt made for one board.
type FlashResult struct {
	Outcome  FlashOutcome
	Attempts int
	Output   string // Output of the last attempt
}

// maxFlashAttempts covers hosts that drop and re-enumerate a port while
// esptool switches between boards.
const maxFlashAttempts = 2

var (
	errPortBusy    = errors.New("port busy")
	errNotVerified = errors.New("flash not verified")
)

// Flasher writes images to boards with esptool.
type Flasher struct {
	Tool     string
	Chip     string
	BaudRate int
	Offset   int
	Runner   Runner
}

// Args returns the esptool arguments for writing imagePath to port.
func (f *Flasher) Args(port, imagePath string) []string {
	return []string{
		"--chip", f.Chip,
		"--port", port,
		"--baud", strconv.Itoa(f.BaudRate),
		"write_flash", strconv.Itoa(f.Offset), imagePath,
	}
}

// Upload writes imagePath to the board on port. A busy port on the first
// attempt is retried once, immediately; nothing else is retried.
func (f *Flasher) Upload(ctx context.Context, port, imagePath string) FlashResult {
	runner := f.Runner
	if runner == nil {
		runner = DefaultRunner{}
	}

	var (
		res  FlashResult
		last Signal
	)
	_ = retry.Do(
		func() error {
			res.Attempts++
			out := runner.Run(ctx, f.Tool, f.Args(port, imagePath)...)
			res.Output = out.Output
			last = Classify(out.Output)
			switch last {
			case SignalVerified:
				return nil
			case SignalPortBusy:
				return errPortBusy
			}
			return errNotVerified
		},
		retry.Context(ctx),
		retry.Attempts(maxFlashAttempts),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errPortBusy)
		}),
		retry.OnRetry(func(n uint, err error) {
			klog.Warningf("%s: attempt %d: %v", port, n+1, err)
		}),
	)

	switch last {
	case SignalVerified:
		res.Outcome = FlashSuccess
	case SignalPortBusy:
		res.Outcome = FlashPortUnavailable
	default:
		res.Outcome = FlashFailed
	}
	return res
}
