package app

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/fsflash/internal/datadir"
	"github.com/buckleypaul/fsflash/internal/serial"
	"github.com/buckleypaul/fsflash/internal/upload"
)

var (
	dev1 = serial.Device{Port: "/dev/ttyUSB0", Position: 1}
	dev2 = serial.Device{Port: "/dev/ttyUSB1", Position: 2}
)

func started(t *testing.T) Model {
	t.Helper()
	m := New(nil)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	updated, _ = updated.Update(upload.RunStartedEvent{
		RunID:   "run-1",
		Mode:    datadir.PerDevice,
		Devices: []serial.Device{dev1, dev2},
	})
	return updated.(Model)
}

func TestModelTracksStagesAndFollowsActiveBoard(t *testing.T) {
	m := started(t)

	updated, _ := m.Update(upload.StageChangedEvent{Device: dev2, Channel: 2, Stage: upload.StageFlash})
	m = updated.(Model)

	if m.rows[1].stage != upload.StageFlash || m.rows[1].channel != 2 {
		t.Fatalf("unexpected row %+v", m.rows[1])
	}
	if m.selected != 1 {
		t.Fatalf("expected selection to follow board 2, got %d", m.selected)
	}
}

func TestModelCollectsSerialLines(t *testing.T) {
	m := started(t)

	updated, _ := m.Update(upload.StageChangedEvent{Device: dev1, Channel: 1, Stage: upload.StageMonitor})
	updated, _ = updated.Update(upload.SerialLineEvent{Device: dev1, Line: "Booting deauther"})
	m = updated.(Model)

	if len(m.rows[0].lines) != 1 {
		t.Fatalf("expected 1 line, got %v", m.rows[0].lines)
	}
	if !strings.Contains(m.View(), "Booting deauther") {
		t.Errorf("expected boot log in view:\n%s", m.View())
	}
}

func TestModelManualSelectionStopsFollowing(t *testing.T) {
	m := started(t)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(Model)
	if m.selected != 1 || m.follow {
		t.Fatalf("expected manual selection of board 2, got selected=%d follow=%v", m.selected, m.follow)
	}

	updated, _ = m.Update(upload.StageChangedEvent{Device: dev1, Channel: 1, Stage: upload.StageBuild})
	m = updated.(Model)
	if m.selected != 1 {
		t.Fatalf("selection should not move while not following, got %d", m.selected)
	}
}

func TestModelShowsResultsAndSummary(t *testing.T) {
	m := started(t)

	res := upload.DeviceResult{Device: dev1, Channel: 1, Outcome: upload.Outcome{Kind: upload.PortUnavailable}, Attempts: 2}
	updated, _ := m.Update(upload.DeviceFinishedEvent{Result: res})
	sum := &upload.Summary{RunID: "run-1", Mode: datadir.PerDevice, Results: []upload.DeviceResult{res}}
	updated, _ = updated.Update(upload.RunFinishedEvent{Summary: sum})
	m = updated.(Model)

	if m.Summary() != sum {
		t.Fatal("expected summary to be kept")
	}
	view := m.View()
	if !strings.Contains(view, "PORT BUSY") {
		t.Errorf("expected outcome badge in view:\n%s", view)
	}
	if !strings.Contains(view, "done: 0 ok, 1 failed") {
		t.Errorf("expected aggregate in header:\n%s", view)
	}
}

func TestModelQuitCancelsRunningRun(t *testing.T) {
	cancelled := false
	m := New(func() { cancelled = true })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if !cancelled {
		t.Error("expected quitting mid-run to cancel")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestModelRunErrorQuits(t *testing.T) {
	m := New(nil)
	updated, cmd := m.Update(RunErrorMsg{Err: errors.New("no boards detected")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	updated, _ = updated.Update(tea.WindowSizeMsg{Width: 100, Height: 20})
	if !strings.Contains(updated.View(), "no boards detected") {
		t.Errorf("expected error in view:\n%s", updated.View())
	}
}
