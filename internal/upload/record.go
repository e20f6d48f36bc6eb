package upload

import (
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/buckleypaul/fsflash/internal/datadir"
	"github.com/buckleypaul/fsflash/internal/store"
)

// StoreReporter records each finished board in the history store and saves
// its boot log.
type StoreReporter struct {
	Store    *store.Store
	BaudRate int

	mu    sync.Mutex
	runID string
	mode  datadir.Mode
}

func (r *StoreReporter) Report(e Event) {
	switch e := e.(type) {
	case RunStartedEvent:
		r.mu.Lock()
		r.runID, r.mode = e.RunID, e.Mode
		r.mu.Unlock()
	case DeviceFinishedEvent:
		r.mu.Lock()
		runID, mode := r.runID, r.mode
		r.mu.Unlock()
		r.record(runID, mode, e.Result)
	}
}

func (r *StoreReporter) record(runID string, mode datadir.Mode, res DeviceResult) {
	now := time.Now()
	rec := store.UploadRecord{
		RunID:     runID,
		Port:      res.Device.Port,
		Position:  res.Device.Position,
		Mode:      mode.String(),
		Channel:   res.Channel,
		Timestamp: now.Add(-res.Duration),
		Outcome:   res.Outcome.Kind.String(),
		Success:   res.Outcome.OK(),
		Attempts:  res.Attempts,
		Duration:  res.Duration.String(),
	}
	if !res.Outcome.OK() {
		rec.Detail = res.Outcome.String()
	}
	if err := r.Store.AddUpload(rec); err != nil {
		klog.Warningf("record upload for %s: %v", res.Device.Port, err)
	}

	if len(res.Lines) == 0 {
		return
	}
	path, err := r.Store.WriteLog(runID, res.Device.Position, res.Lines)
	if err != nil {
		klog.Warningf("save boot log for %s: %v", res.Device.Port, err)
		return
	}
	if err := r.Store.AddSerialLog(store.SerialLog{
		RunID:     runID,
		Port:      res.Device.Port,
		BaudRate:  r.BaudRate,
		Timestamp: now,
		LogFile:   path,
		Lines:     len(res.Lines),
	}); err != nil {
		klog.Warningf("record boot log for %s: %v", res.Device.Port, err)
	}
}
