package app

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/fsflash/internal/datadir"
	"github.com/buckleypaul/fsflash/internal/serial"
	"github.com/buckleypaul/fsflash/internal/upload"
)

// RunErrorMsg is sent when the run could not start.
type RunErrorMsg struct {
	Err error
}

// Forward returns a Reporter that delivers run events to p.
func Forward(p *tea.Program) upload.Reporter {
	return upload.ReporterFunc(func(e upload.Event) {
		p.Send(e)
	})
}

type deviceRow struct {
	device  serial.Device
	channel int
	stage   upload.Stage
	result  *upload.DeviceResult
	lines   []string
}

// Model is the live provisioning dashboard.
type Model struct {
	runID    string
	mode     datadir.Mode
	rows     []deviceRow
	selected int
	follow   bool // Track whichever board is being worked on
	spinner  spinner.Model
	viewport viewport.Model
	summary  *upload.Summary
	err      error
	cancel   context.CancelFunc
	width    int
	height   int
}

// New creates a dashboard. cancel is called when the user quits mid-run.
func New(cancel context.CancelFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		follow:   true,
		spinner:  sp,
		viewport: viewport.New(0, 0),
		cancel:   cancel,
	}
}

// Summary returns the run summary once the run has finished.
func (m Model) Summary() *upload.Summary { return m.summary }

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()
		return m, nil

	case upload.RunStartedEvent:
		m.runID = msg.RunID
		m.mode = msg.Mode
		m.rows = make([]deviceRow, len(msg.Devices))
		for i, d := range msg.Devices {
			m.rows[i] = deviceRow{device: d}
		}
		return m, nil

	case upload.StageChangedEvent:
		if i := m.row(msg.Device.Position); i >= 0 {
			m.rows[i].stage = msg.Stage
			m.rows[i].channel = msg.Channel
			if m.follow && msg.Stage != upload.StageDone {
				m.selected = i
			}
			m.refreshLog()
		}
		return m, nil

	case upload.SerialLineEvent:
		if i := m.row(msg.Device.Position); i >= 0 {
			m.rows[i].lines = append(m.rows[i].lines, msg.Line)
			if i == m.selected {
				m.refreshLog()
			}
		}
		return m, nil

	case upload.DeviceFinishedEvent:
		if i := m.row(msg.Result.Device.Position); i >= 0 {
			res := msg.Result
			m.rows[i].result = &res
			m.rows[i].stage = upload.StageDone
		}
		return m, nil

	case upload.RunFinishedEvent:
		m.summary = msg.Summary
		return m, nil

	case RunErrorMsg:
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, GlobalKeys.Quit):
			if m.summary == nil && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case key.Matches(msg, GlobalKeys.Up):
			if m.selected > 0 {
				m.selected--
				m.follow = false
				m.refreshLog()
			}
			return m, nil
		case key.Matches(msg, GlobalKeys.Down):
			if m.selected < len(m.rows)-1 {
				m.selected++
				m.follow = false
				m.refreshLog()
			}
			return m, nil
		case key.Matches(msg, GlobalKeys.Follow):
			m.follow = true
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	listWidth := deviceListWidth(m.width)
	bodyHeight := m.height - 2 // header + status bar

	header := renderHeader(m.runID, m.mode, m.summary, m.err, m.width)
	list := renderDeviceList(m.rows, m.selected, m.spinner.View(), m.mode, listWidth, bodyHeight)
	log := renderLog(m.logTitle(), m.viewport.View(), m.width-listWidth, bodyHeight)
	status := renderStatusBar(GlobalKeys.ShortHelp(), m.follow, m.width)

	return renderLayout(header, list, log, status)
}

func (m Model) row(position int) int {
	for i, r := range m.rows {
		if r.device.Position == position {
			return i
		}
	}
	return -1
}

func (m *Model) resizeViewport() {
	listWidth := deviceListWidth(m.width)
	m.viewport.Width = m.width - listWidth - 4
	m.viewport.Height = m.height - 2 - 2
	if m.viewport.Width < 0 {
		m.viewport.Width = 0
	}
	if m.viewport.Height < 0 {
		m.viewport.Height = 0
	}
	m.refreshLog()
}

func (m *Model) refreshLog() {
	if m.selected < 0 || m.selected >= len(m.rows) {
		m.viewport.SetContent("")
		return
	}
	m.viewport.SetContent(strings.Join(m.rows[m.selected].lines, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) logTitle() string {
	if m.selected < 0 || m.selected >= len(m.rows) {
		return "Boot log"
	}
	return "Boot log " + m.rows[m.selected].device.Port
}
