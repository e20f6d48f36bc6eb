package serial

import (
	"path/filepath"
	"runtime"
	"strings"

	"go.bug.st/serial/enumerator"
)

// Device is one attached board, identified by its port. Position is its
// 1-based place in discovery order.
type Device struct {
	Port         string
	Position     int
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
}

// DefaultPrefix returns the port-name prefix USB serial adapters get on goos.
func DefaultPrefix(goos string) string {
	switch goos {
	case "darwin":
		return "tty.usbserial"
	case "windows":
		return "COM"
	default:
		return "ttyUSB"
	}
}

// Enumerator lists attached boards.
type Enumerator struct {
	// Prefix filters port base names. Empty means DefaultPrefix(runtime.GOOS).
	Prefix string
	// List overrides the host port listing. Nil uses the serial enumerator.
	List func() ([]*enumerator.PortDetails, error)
}

// Discover returns attached boards in the order the host reports them.
// No boards is an empty result, not an error.
func (e *Enumerator) Discover() ([]Device, error) {
	list := e.List
	if list == nil {
		list = enumerator.GetDetailedPortsList
	}
	ports, err := list()
	if err != nil {
		return nil, err
	}

	prefix := e.Prefix
	if prefix == "" {
		prefix = DefaultPrefix(runtime.GOOS)
	}
	// Windows names every port COMn, so only the USB flag tells them apart.
	requireUSB := prefix == "COM"

	var result []Device
	for _, p := range ports {
		if !strings.HasPrefix(filepath.Base(p.Name), prefix) {
			continue
		}
		if requireUSB && !p.IsUSB {
			continue
		}
		result = append(result, Device{
			Port:         p.Name,
			Position:     len(result) + 1,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
		})
	}
	return result, nil
}
