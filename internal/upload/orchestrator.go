package upload

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/buckleypaul/fsflash/internal/datadir"
	"github.com/buckleypaul/fsflash/internal/esp"
	"github.com/buckleypaul/fsflash/internal/serial"
)

// ErrNoDevices is returned when no boards are attached.
var ErrNoDevices = errors.New("no boards detected, check your boards are plugged in")

// DefaultImageName is the file name of a built image inside the work dir.
const DefaultImageName = "littlefs.bin"

// Builder packs a folder into a filesystem image.
type Builder interface {
	Build(ctx context.Context, srcDir, outPath string) error
}

// Flasher writes an image to the board on port.
type Flasher interface {
	Upload(ctx context.Context, port, imagePath string) esp.FlashResult
}

// LineSource is an open boot-log session.
type LineSource interface {
	Lines() iter.Seq[string]
	Err() error
	Close() error
}

// MonitorFunc opens a boot-log session on port.
type MonitorFunc func(port string) (LineSource, error)

// Orchestrator provisions every attached board with the data folder.
type Orchestrator struct {
	DataDir    string
	WorkDir    string // Holds images and per-board working copies. Empty uses a temp dir.
	ImageName  string
	Names      datadir.Names
	Enumerator serial.Discoverer
	Builder    Builder
	Flasher    Flasher
	Monitor    MonitorFunc // Nil skips boot-log monitoring
	Reporter   Reporter

	// Concurrency is how many boards are provisioned at once. Values below
	// two keep the run sequential in discovery order.
	Concurrency int
}

// Run validates the data folder, discovers boards and provisions each one.
// An error is returned only when the run cannot start; per-board failures
// are recorded in the summary.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	layout, err := datadir.Inspect(o.DataDir, o.Names)
	if err != nil {
		return nil, err
	}

	devices, err := o.Enumerator.Discover()
	if err != nil {
		return nil, fmt.Errorf("discover boards: %w", err)
	}
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	// The discovery order is fixed for the rest of the run.
	devices = append([]serial.Device(nil), devices...)
	for i := range devices {
		devices[i].Position = i + 1
	}

	workDir, cleanupWork, err := o.prepareWorkDir()
	if err != nil {
		return nil, err
	}
	defer cleanupWork()

	sum := &Summary{
		RunID:   uuid.NewString(),
		Mode:    layout.Mode,
		Started: start,
		Results: make([]DeviceResult, len(devices)),
	}
	o.report(RunStartedEvent{RunID: sum.RunID, Mode: layout.Mode, Devices: devices})

	var sharedImage string
	var sharedErr error
	if layout.Mode == datadir.Uniform {
		sharedImage = filepath.Join(workDir, o.imageName())
		for _, d := range devices {
			o.report(StageChangedEvent{Device: d, Stage: StageBuild})
		}
		sharedErr = o.Builder.Build(ctx, layout.Dir, sharedImage)
		if sharedErr != nil {
			klog.Errorf("build %s: %v", sharedImage, sharedErr)
		}
	}

	p := &provisioner{o: o, layout: layout, workDir: workDir, sharedImage: sharedImage, sharedErr: sharedErr}

	if o.Concurrency < 2 {
		for i, d := range devices {
			sum.Results[i] = p.run(ctx, d)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(o.Concurrency)
		for i, d := range devices {
			g.Go(func() error {
				sum.Results[i] = p.run(ctx, d)
				return nil
			})
		}
		g.Wait()
	}

	if sharedImage != "" {
		removeArtifact(sharedImage)
	}
	sum.Duration = time.Since(start)
	o.report(RunFinishedEvent{Summary: sum})
	return sum, nil
}

func (o *Orchestrator) imageName() string {
	if o.ImageName != "" {
		return o.ImageName
	}
	return DefaultImageName
}

func (o *Orchestrator) report(e Event) {
	if o.Reporter != nil {
		o.Reporter.Report(e)
	}
}

// prepareWorkDir creates the work dir and returns a func that removes what
// the run left in it.
func (o *Orchestrator) prepareWorkDir() (string, func(), error) {
	if o.WorkDir == "" {
		dir, err := os.MkdirTemp("", "fsflash-")
		if err != nil {
			return "", nil, err
		}
		return dir, func() { removeArtifact(dir) }, nil
	}

	if err := os.MkdirAll(o.WorkDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create work dir: %w", err)
	}
	return o.WorkDir, func() {
		leftovers, _ := filepath.Glob(filepath.Join(o.WorkDir, "device-*"))
		for _, dir := range leftovers {
			removeArtifact(dir)
		}
	}, nil
}

// removeArtifact deletes path. Failures are logged and never fatal.
func removeArtifact(path string) {
	if err := os.RemoveAll(path); err != nil {
		klog.Warningf("cleanup %s: %v", path, err)
	}
}

// provisioner runs the per-board steps of one run.
type provisioner struct {
	o           *Orchestrator
	layout      datadir.Layout
	workDir     string
	sharedImage string
	sharedErr   error
}

func (p *provisioner) run(ctx context.Context, d serial.Device) (res DeviceResult) {
	start := time.Now()
	res.Device = d
	if p.layout.Mode == datadir.PerDevice {
		res.Channel = d.Position
	}
	defer func() {
		res.Duration = time.Since(start)
		p.o.report(StageChangedEvent{Device: d, Channel: res.Channel, Stage: StageDone})
		p.o.report(DeviceFinishedEvent{Result: res})
	}()

	if ctx.Err() != nil {
		res.Outcome = Outcome{Kind: Skipped, Err: ctx.Err()}
		return res
	}

	image := p.sharedImage
	if p.layout.Mode == datadir.PerDevice {
		deviceDir := filepath.Join(p.workDir, fmt.Sprintf("device-%d", d.Position))
		defer removeArtifact(deviceDir)

		p.stage(d, res.Channel, StageConfigure)
		staged, err := datadir.Stage(p.layout, p.workDir, d.Position)
		if err == nil {
			err = datadir.RewriteChannel(staged.Path(), res.Channel)
		}
		if err != nil {
			res.Outcome = Outcome{Kind: ConfigureFailure, Err: err}
			return res
		}

		p.stage(d, res.Channel, StageBuild)
		image = filepath.Join(deviceDir, p.o.imageName())
		if err := p.o.Builder.Build(ctx, staged.Dir, image); err != nil {
			res.Outcome = buildFailure(err)
			return res
		}
	} else if p.sharedErr != nil {
		res.Outcome = buildFailure(p.sharedErr)
		return res
	}

	p.stage(d, res.Channel, StageFlash)
	flashed := p.o.Flasher.Upload(ctx, d.Port, image)
	if p.layout.Mode == datadir.PerDevice {
		// The next board needs an image with its own channel.
		removeArtifact(image)
	}
	res.Attempts = flashed.Attempts
	res.Outcome = flashOutcome(flashed)
	if !res.Outcome.OK() || p.o.Monitor == nil {
		return res
	}

	p.stage(d, res.Channel, StageMonitor)
	res.Lines, res.MonitorErr = p.monitor(ctx, d)
	return res
}

func (p *provisioner) stage(d serial.Device, channel int, s Stage) {
	p.o.report(StageChangedEvent{Device: d, Channel: channel, Stage: s})
}

func (p *provisioner) monitor(ctx context.Context, d serial.Device) ([]string, error) {
	src, err := p.o.Monitor(d.Port)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Port, err)
	}
	defer src.Close()

	var lines []string
	for line := range src.Lines() {
		lines = append(lines, line)
		p.o.report(SerialLineEvent{Device: d, Line: line})
		if ctx.Err() != nil {
			break
		}
	}
	return lines, src.Err()
}
