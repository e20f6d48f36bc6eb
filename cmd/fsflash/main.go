package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"k8s.io/klog/v2"

	"github.com/buckleypaul/fsflash/internal/app"
	"github.com/buckleypaul/fsflash/internal/config"
	"github.com/buckleypaul/fsflash/internal/datadir"
	"github.com/buckleypaul/fsflash/internal/esp"
	"github.com/buckleypaul/fsflash/internal/serial"
	"github.com/buckleypaul/fsflash/internal/store"
	"github.com/buckleypaul/fsflash/internal/ui"
	"github.com/buckleypaul/fsflash/internal/upload"
)

type options struct {
	dataDir    string
	workDir    string
	portPrefix string
	wait       bool
	tui        bool
	parallel   int
}

func main() {
	klog.InitFlags(nil)

	var opts options
	flag.StringVar(&opts.dataDir, "data", "", "folder packed into the filesystem image (default from config, \"data\")")
	flag.StringVar(&opts.workDir, "work", "", "scratch folder for images and per-board copies")
	flag.StringVar(&opts.portPrefix, "port-prefix", "", "only use serial ports whose name starts with this prefix")
	flag.BoolVar(&opts.wait, "wait", false, "wait for a board to be plugged in instead of failing")
	flag.BoolVar(&opts.tui, "tui", false, "show a live dashboard while provisioning")
	flag.IntVar(&opts.parallel, "parallel", 0, "number of boards provisioned at once")
	timeout := flag.Duration("timeout", 0, "boot log read timeout per line")
	flag.Parse()
	defer klog.Flush()

	cwd, err := os.Getwd()
	if err != nil {
		fatal(err)
	}

	cfg := config.Load(cwd)
	applyFlags(&cfg, opts, *timeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, st, err := newOrchestrator(ctx, cwd, cfg, opts.wait)
	if err != nil {
		fatal(err)
	}
	record := &upload.StoreReporter{Store: st, BaudRate: cfg.BaudRate}

	var sum *upload.Summary
	if opts.tui {
		// klog output would tear the alt screen.
		logToFile(filepath.Join(cwd, ".fsflash", "fsflash.log"))
		orch.Reporter = record
		sum, err = runDashboard(ctx, orch)
	} else {
		orch.Reporter = upload.MultiReporter{&upload.LogReporter{}, record}
		sum, err = orch.Run(ctx)
	}
	if err != nil {
		fatal(err)
	}

	fmt.Print(ui.RenderSummary(sum))
}

func applyFlags(cfg *config.Config, opts options, timeout time.Duration) {
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if opts.workDir != "" {
		cfg.WorkDir = opts.workDir
	}
	if opts.portPrefix != "" {
		cfg.PortPrefix = opts.portPrefix
	}
	if opts.parallel > 0 {
		cfg.Concurrency = opts.parallel
	}
	if timeout > 0 {
		cfg.MonitorTimeout = timeout
	}
}

func newOrchestrator(ctx context.Context, root string, cfg config.Config, wait bool) (*upload.Orchestrator, *store.Store, error) {
	esp.InitEnv(root, cfg.VenvPath)

	mklittlefs, err := esp.LocateMklittlefs(cfg.MklittlefsPath, root)
	if err != nil {
		return nil, nil, err
	}
	esptool, err := esp.LocateEsptool(cfg.EsptoolPath)
	if err != nil {
		return nil, nil, err
	}
	klog.V(1).Infof("using %s and %s", mklittlefs, esptool)

	var discoverer serial.Discoverer = &serial.Enumerator{Prefix: cfg.PortPrefix}
	if wait {
		discoverer = waitingDiscoverer{ctx: ctx, inner: discoverer}
	}

	monitor := &serial.Monitor{BaudRate: cfg.BaudRate, Timeout: cfg.MonitorTimeout}

	orch := &upload.Orchestrator{
		DataDir: resolve(root, cfg.DataDir),
		WorkDir: resolve(root, cfg.WorkDir),
		Names: datadir.Names{
			Uniform:   cfg.UniformFile,
			PerDevice: cfg.PerDeviceFile,
		},
		Enumerator: discoverer,
		Builder: &esp.Builder{
			Tool:      mklittlefs,
			PageSize:  cfg.PageSize,
			BlockSize: cfg.BlockSize,
			ImageSize: cfg.ImageSize,
		},
		Flasher: &esp.Flasher{
			Tool:     esptool,
			Chip:     cfg.Chip,
			BaudRate: cfg.BaudRate,
			Offset:   cfg.FlashOffset,
		},
		Monitor: func(port string) (upload.LineSource, error) {
			s, err := monitor.Open(port)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		Concurrency: cfg.Concurrency,
	}
	return orch, store.New(filepath.Join(root, ".fsflash")), nil
}

// waitingDiscoverer blocks discovery until a board shows up.
type waitingDiscoverer struct {
	ctx   context.Context
	inner serial.Discoverer
}

func (w waitingDiscoverer) Discover() ([]serial.Device, error) {
	devices, err := serial.WaitForDevices(w.ctx, serial.DeviceDir, w.inner)
	if errors.Is(err, context.Canceled) {
		// Interrupted while waiting; the run reports no boards.
		return nil, nil
	}
	return devices, err
}

func runDashboard(ctx context.Context, orch *upload.Orchestrator) (*upload.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(app.New(cancel), tea.WithAltScreen())
	orch.Reporter = upload.MultiReporter{orch.Reporter, app.Forward(p)}

	type outcome struct {
		sum *upload.Summary
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		sum, err := orch.Run(ctx)
		if err != nil {
			p.Send(app.RunErrorMsg{Err: err})
		}
		done <- outcome{sum, err}
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return nil, err
	}
	res := <-done
	return res.sum, res.err
}

func logToFile(path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		klog.Warningf("keeping logs on stderr: %v", err)
		return
	}
	_ = flag.Set("logtostderr", "false")
	_ = flag.Set("alsologtostderr", "false")
	_ = flag.Set("log_file", path)
}

func resolve(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func fatal(err error) {
	klog.Flush()
	switch {
	case errors.Is(err, esp.ErrToolNotFound):
		fmt.Fprintf(os.Stderr, "Error: %v\nInstall the missing tool or set its path in .fsflash/config.yaml\n", err)
	case errors.Is(err, datadir.ErrNoDataDir):
		fmt.Fprintf(os.Stderr, "Error: %v\nRun fsflash next to your data folder or pass -data\n", err)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}
