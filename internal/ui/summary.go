package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/buckleypaul/fsflash/internal/datadir"
	"github.com/buckleypaul/fsflash/internal/upload"
)

// OutcomeBadge renders an outcome as a colored badge.
func OutcomeBadge(o upload.Outcome) string {
	switch o.Kind {
	case upload.Success:
		return SuccessBadge("SUCCESS")
	case upload.Skipped:
		return WarningBadge("SKIPPED")
	case upload.PortUnavailable:
		return ErrorBadge("PORT BUSY")
	case upload.BuildFailure:
		return ErrorBadge("BUILD FAILED")
	case upload.ConfigureFailure:
		return ErrorBadge("CONFIG FAILED")
	}
	return ErrorBadge("FAILED")
}

// DeviceLine renders one board's result.
func DeviceLine(r upload.DeviceResult, mode datadir.Mode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", r.Device.Position, BoldStyle.Render(r.Device.Port))
	if mode == datadir.PerDevice {
		fmt.Fprintf(&b, "  channel %d", r.Channel)
	}
	b.WriteString("  ")
	b.WriteString(OutcomeBadge(r.Outcome))
	if !r.Outcome.OK() {
		b.WriteString(" ")
		b.WriteString(ErrorStyle.Render(r.Outcome.String()))
	}
	if r.Attempts > 1 {
		b.WriteString(DimStyle.Render(fmt.Sprintf("  %d attempts", r.Attempts)))
	}
	if r.Duration > 0 {
		b.WriteString(DimStyle.Render("  " + r.Duration.Round(100*time.Millisecond).String()))
	}
	if r.MonitorErr != nil {
		b.WriteString(DimStyle.Render(fmt.Sprintf("  (no boot log: %v)", r.MonitorErr)))
	}
	return b.String()
}

// RenderSummary renders the per-board results and an aggregate line.
func RenderSummary(sum *upload.Summary) string {
	var b strings.Builder
	b.WriteString(Title(fmt.Sprintf("fsflash run %s (%s mode)", sum.RunID, sum.Mode)))
	b.WriteString("\n")
	for _, r := range sum.Results {
		b.WriteString(DeviceLine(r, sum.Mode))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(AggregateLine(sum))
	b.WriteString("\n")
	return b.String()
}

// AggregateLine summarizes the run in one line.
func AggregateLine(sum *upload.Summary) string {
	ok, failed := sum.Counts()
	line := fmt.Sprintf("%d of %d board(s) provisioned, %d failed", ok, len(sum.Results), failed)
	if failed > 0 {
		return ErrorStyle.Render(line)
	}
	return AccentStyle.Render(line)
}
