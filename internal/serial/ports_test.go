package serial

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.bug.st/serial/enumerator"
)

func listOf(ports ...*enumerator.PortDetails) func() ([]*enumerator.PortDetails, error) {
	return func() ([]*enumerator.PortDetails, error) { return ports, nil }
}

func TestDiscoverFiltersByPrefix(t *testing.T) {
	e := &Enumerator{
		Prefix: "ttyUSB",
		List: listOf(
			&enumerator.PortDetails{Name: "/dev/ttyS0"},
			&enumerator.PortDetails{Name: "/dev/ttyUSB1", IsUSB: true, VID: "1a86", PID: "7523"},
			&enumerator.PortDetails{Name: "/dev/ttyACM0", IsUSB: true},
			&enumerator.PortDetails{Name: "/dev/ttyUSB0", IsUSB: true, VID: "10c4", PID: "ea60", SerialNumber: "0001"},
		),
	}

	got, err := e.Discover()
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	// Host order is kept; positions follow it.
	want := []Device{
		{Port: "/dev/ttyUSB1", Position: 1, IsUSB: true, VID: "1a86", PID: "7523"},
		{Port: "/dev/ttyUSB0", Position: 2, IsUSB: true, VID: "10c4", PID: "ea60", SerialNumber: "0001"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("devices mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverDarwinPrefix(t *testing.T) {
	e := &Enumerator{
		Prefix: DefaultPrefix("darwin"),
		List: listOf(
			&enumerator.PortDetails{Name: "/dev/cu.usbserial-1410"},
			&enumerator.PortDetails{Name: "/dev/tty.usbserial-1410"},
			&enumerator.PortDetails{Name: "/dev/tty.Bluetooth-Incoming-Port"},
		),
	}
	got, _ := e.Discover()
	if len(got) != 1 || got[0].Port != "/dev/tty.usbserial-1410" {
		t.Fatalf("unexpected devices %+v", got)
	}
}

func TestDiscoverWindowsRequiresUSB(t *testing.T) {
	e := &Enumerator{
		Prefix: DefaultPrefix("windows"),
		List: listOf(
			&enumerator.PortDetails{Name: "COM1"},
			&enumerator.PortDetails{Name: "COM7", IsUSB: true},
		),
	}
	got, _ := e.Discover()
	if len(got) != 1 || got[0].Port != "COM7" {
		t.Fatalf("unexpected devices %+v", got)
	}
}

func TestDiscoverNoneIsEmpty(t *testing.T) {
	e := &Enumerator{Prefix: "ttyUSB", List: listOf()}
	got, err := e.Discover()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no devices, got %+v", got)
	}
}

func TestDiscoverPropagatesListError(t *testing.T) {
	boom := errors.New("boom")
	e := &Enumerator{List: func() ([]*enumerator.PortDetails, error) { return nil, boom }}
	if _, err := e.Discover(); !errors.Is(err, boom) {
		t.Fatalf("expected list error, got %v", err)
	}
}

func TestDefaultPrefix(t *testing.T) {
	for goos, want := range map[string]string{
		"linux":   "ttyUSB",
		"darwin":  "tty.usbserial",
		"windows": "COM",
	} {
		if got := DefaultPrefix(goos); got != want {
			t.Errorf("DefaultPrefix(%s) = %s, want %s", goos, got, want)
		}
	}
}
