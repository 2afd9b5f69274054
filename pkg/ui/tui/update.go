package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"twarchive/internal/downloader"
	"twarchive/pkg/ingest"
)

// CycleMsg reports a finished ingestion cycle
type CycleMsg struct {
	Summary ingest.Summary
	At      time.Time
}

// DownloadMsg reports the start or outcome of a media download
type DownloadMsg struct {
	Event ingest.DownloadEvent
	At    time.Time
}

// PoolStatsMsg carries fresh enrichment counters
type PoolStatsMsg downloader.Stats

// LogMsg adds a line to the logs panel
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg refreshes the elapsed time and the pool counters
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.stats != nil {
			m.SetPoolStats(m.stats())
		}
		return m, tickCmd()

	case CycleMsg:
		m.RecordCycle(msg.Summary, msg.At)
		return m, nil

	case DownloadMsg:
		m.RecordDownload(msg.Event, msg.At)
		return m, nil

	case PoolStatsMsg:
		m.SetPoolStats(downloader.Stats(msg))
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		m.AddLogMessage(LevelWarn, "Stopping, the page is written on exit")
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = nil
		return m, nil
	}

	return m, nil
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
