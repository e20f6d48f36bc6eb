package serial

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"
)

// DeviceDir is where USB serial adapters show up on unix hosts.
const DeviceDir = "/dev"

// rescanInterval covers hosts where the device directory cannot be watched.
const rescanInterval = 2 * time.Second

// Discoverer lists attached boards.
type Discoverer interface {
	Discover() ([]Device, error)
}

// WaitForDevices blocks until d reports at least one board or ctx is done.
// It rescans whenever something is created in dir, and periodically.
func WaitForDevices(ctx context.Context, dir string, d Discoverer) ([]Device, error) {
	devices, err := d.Discover()
	if err != nil || len(devices) > 0 {
		return devices, err
	}

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if dir != "" {
		watcher, err := NewFSWatcher(dir)
		if err != nil {
			klog.Warningf("watch %s failed, polling instead: %v", dir, err)
		} else {
			defer watcher.Close()
			events = watcher.Events
			watchErrs = watcher.Errors
		}
	}

	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()

	klog.Info("waiting for boards to be plugged in")
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event := <-events:
			if event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			klog.V(2).Infof("inotify: %s created, rescanning", event.Name)
		case err := <-watchErrs:
			klog.Warningf("watch %s: %v", dir, err)
			continue
		case <-ticker.C:
		}

		devices, err := d.Discover()
		if err != nil || len(devices) > 0 {
			return devices, err
		}
	}
}

// NewFSWatcher watches each of files for changes.
func NewFSWatcher(files ...string) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		err = watcher.Add(f)
		if err != nil {
			watcher.Close()
			return nil, err
		}
	}

	return watcher, nil
}
