package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"twarchive/pkg/ingest"
)

// View renders the entire TUI
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderLogo())

	width := (m.width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderCyclePanel(width),
		m.renderQueuePanel(width),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderDownloadsPanel(width),
		m.renderLogsPanel(width),
	)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help, q to stop"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m Model) renderLogo() string {
	logo := `
╔════════════════════════════════════════════════╗
║  T W A R C H I V E   ::   TIMELINE  ARCHIVER   ║
╚════════════════════════════════════════════════╝`
	return logoStyle.Width(m.width).Render(logo)
}

func (m Model) renderCyclePanel(width int) string {
	title := titleStyle.Render(" POLLING ")

	last := "waiting for first cycle"
	if !m.lastCycle.IsZero() {
		last = fmt.Sprintf("%s ago (took %s)", formatDuration(time.Since(m.lastCycle)), m.lastElapsed.Round(time.Millisecond))
	}

	rows := []string{
		label("Session Time:", formatDuration(m.tracker.GetElapsedTime())),
		label("Cycles:", fmt.Sprintf("%s %d", m.spinner.View(), m.tracker.Cycles)),
		label("Archived:", fmt.Sprintf("%d posts", m.tracker.Archived)),
		label("Duplicates:", fmt.Sprintf("%d", m.tracker.Duplicates)),
		label("Rate:", fmt.Sprintf("%.1f posts/h", m.tracker.GetArchiveRate())),
		label("Last Batch:", m.tracker.GetBatchProgress()),
		label("Last Cycle:", last),
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, rows...)),
	)
}

func (m Model) renderQueuePanel(width int) string {
	title := titleStyle.Render(" ENRICHMENT QUEUE ")

	waiting := m.Waiting()
	bar := m.queueBar
	bar.Width = max(width-12, 10)

	rows := []string{
		label("Waiting:", queueStyle(waiting).Render(fmt.Sprintf("%d jobs", waiting))),
		bar.ViewAs(m.QueueProgress()),
		label("Completed:", fmt.Sprintf("%d", m.pool.Completed)),
		label("Failed:", fmt.Sprintf("%d", m.pool.Failed)),
		label("Dropped:", fmt.Sprintf("%d", m.pool.Dropped)),
		"",
		label("Media:", fmt.Sprintf("%d fetched, %d skipped, %d failed", m.fetched, m.skipped, m.failed)),
		label("Written:", FormatBytes(m.totalBytes)),
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, rows...)),
	)
}

func (m Model) renderDownloadsPanel(width int) string {
	title := titleStyle.Render(" DOWNLOADS ")

	var items []string
	active := m.ActiveDownloads()
	for _, item := range active {
		items = append(items, activeItemStyle.Render(fmt.Sprintf("%s %s (%s)", m.spinner.View(), item.Filename, item.Kind)))
	}

	for i := len(m.recent) - 1; i >= 0; i-- {
		item := m.recent[i]
		switch item.State {
		case ingest.DownloadFailed:
			items = append(items, errorStyle.PaddingLeft(2).Render("✗ "+item.Filename))
		case ingest.DownloadSkipped:
			items = append(items, doneItemStyle.Render("= "+item.Filename+" (exists)"))
		default:
			items = append(items, doneItemStyle.Render(fmt.Sprintf("✓ %s %s", item.Filename, FormatBytes(item.Bytes))))
		}
	}

	if len(items) == 0 {
		items = append(items, lipgloss.NewStyle().Foreground(dimWhite).Render("No downloads yet"))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...)),
	)
}

func (m Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" LOGS ")

	start := max(len(m.logMessages)-10, 0)
	maxMsgLen := max(width-25, 10)

	var logs []string
	for _, entry := range m.logMessages[start:] {
		message := entry.Message
		if len(message) > maxMsgLen {
			message = message[:maxMsgLen-3] + "..."
		}
		timestamp := logTimestampStyle.Render(entry.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(levelColor(entry.Level)).Bold(true).Render(fmt.Sprintf("[%-7s]", entry.Level))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, logMessageStyle.Render(message)))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = lipgloss.NewStyle().Foreground(dimWhite).Render("No logs yet...")
	}

	return panelStyle.Width(width).Height(max(m.height-30, 5)).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m Model) renderHelp() string {
	help := `
  Keys:
    q/Q, ctrl+c - Stop polling and write the page
    ctrl+l      - Clear logs
    ?           - Toggle this help

  Downloads:
    ✓ fetched   = already on disk   ✗ failed
`
	return panelStyle.Width(m.width).Render(help)
}

func label(name, value string) string {
	return fmt.Sprintf("%s %s", statsLabelStyle.Render(name), statsValueStyle.Render(value))
}

// formatDuration formats a duration as [hh:]mm:ss
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
