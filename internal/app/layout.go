package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/fsflash/internal/datadir"
	"github.com/buckleypaul/fsflash/internal/ui"
	"github.com/buckleypaul/fsflash/internal/upload"
)

const (
	minListWidth = 34
	maxListWidth = 56
)

func deviceListWidth(total int) int {
	w := total * 2 / 5
	if w < minListWidth {
		w = minListWidth
	}
	if w > maxListWidth {
		w = maxListWidth
	}
	if w > total {
		w = total
	}
	return w
}

func renderHeader(runID string, mode datadir.Mode, sum *upload.Summary, err error, width int) string {
	var content string
	switch {
	case err != nil:
		content = "fsflash: " + err.Error()
	case runID == "":
		content = "fsflash: discovering boards..."
	case sum != nil:
		ok, failed := sum.Counts()
		content = fmt.Sprintf("fsflash %s (%s)  done: %d ok, %d failed", runID, mode, ok, failed)
	default:
		content = fmt.Sprintf("fsflash %s (%s)", runID, mode)
	}
	return ui.StatusBarStyle.Width(width).Render(content)
}

func renderDeviceList(rows []deviceRow, selected int, spin string, mode datadir.Mode, width, height int) string {
	var b strings.Builder
	for i, r := range rows {
		label := fmt.Sprintf("[%d] %s", r.device.Position, r.device.Port)
		if mode == datadir.PerDevice && r.channel > 0 {
			label += fmt.Sprintf(" ch%d", r.channel)
		}

		var state string
		switch {
		case r.result != nil:
			state = ui.OutcomeBadge(r.result.Outcome)
		case r.stage == upload.StagePending:
			state = ui.DimStyle.Render("pending")
		default:
			state = spin + " " + r.stage.String()
		}

		style := ui.DeviceStyle
		prefix := "  "
		if i == selected {
			style = ui.DeviceActiveStyle
			prefix = "▸ "
		}
		b.WriteString(style.Render(prefix+label) + " " + state)
		b.WriteString("\n")
	}
	if len(rows) == 0 {
		b.WriteString(ui.DimStyle.Render("  waiting for boards"))
	}
	return ui.Panel("Boards", b.String(), width, height, true)
}

func renderLog(title, content string, width, height int) string {
	return ui.Panel(title, content, width, height, false)
}

func renderStatusBar(keys []key.Binding, follow bool, width int) string {
	var parts []string
	for _, kb := range keys {
		if kb.Enabled() {
			parts = append(parts, ui.StatusKey(kb.Help().Key, kb.Help().Desc))
		}
	}
	if follow {
		parts = append(parts, ui.AccentStyle.Render("following"))
	}
	return ui.StatusBarStyle.Width(width).Render(strings.Join(parts, "  "))
}

func renderLayout(header, list, log, status string) string {
	main := lipgloss.JoinHorizontal(lipgloss.Top, list, log)
	return lipgloss.JoinVertical(lipgloss.Left, header, main, status)
}
