package tui

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"twarchive/internal/downloader"
	"twarchive/pkg/ingest"
	"twarchive/pkg/ui"
)

// Log levels shown in the logs panel
const (
	LevelInfo    = "INFO"
	LevelSuccess = "SUCCESS"
	LevelWarn    = "WARN"
	LevelError   = "ERROR"
)

// StatsFunc reports the enrichment pool counters
type StatsFunc func() downloader.Stats

// DownloadItem is one media download as shown in the panels
type DownloadItem struct {
	Kind     string
	PostID   string
	Filename string
	State    ingest.DownloadState
	Bytes    int64
	Started  time.Time
	Finished time.Time
	Err      error
}

// LogMessage is one entry of the logs panel
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
}

// Model is the archiver dashboard. It is only touched by the program's
// event loop; other goroutines talk to it through messages.
type Model struct {
	spinner  spinner.Model
	queueBar progress.Model

	tracker *ui.StatusTracker
	stats   StatsFunc
	pool    downloader.Stats

	lastCycle   time.Time
	lastElapsed time.Duration

	active     map[string]*DownloadItem
	activeKeys []string
	recent     []*DownloadItem
	maxRecent  int
	fetched    int
	skipped    int
	failed     int
	totalBytes int64

	logMessages    []LogMessage
	maxLogMessages int

	width    int
	height   int
	showHelp bool
}

// NewModel creates a dashboard for cycles of batchSize posts. stats may be
// nil.
func NewModel(batchSize int, stats StatsFunc) Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(statsLabelStyle),
	)

	return Model{
		spinner:        s,
		queueBar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		tracker:        ui.NewStatusTracker(batchSize),
		stats:          stats,
		active:         make(map[string]*DownloadItem),
		maxRecent:      8,
		maxLogMessages: 50,
	}
}

// Init starts the spinner and the refresh tick
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// RecordCycle adds a finished cycle
func (m *Model) RecordCycle(s ingest.Summary, at time.Time) {
	m.tracker.Record(s)
	m.lastCycle = at
	m.lastElapsed = s.Elapsed

	if s.Added > 0 {
		m.AddLogMessage(LevelSuccess, fmt.Sprintf("Cycle %d archived %d new posts (%d duplicates)", m.tracker.Cycles, s.Added, s.Duplicates))
	} else {
		m.AddLogMessage(LevelInfo, fmt.Sprintf("Cycle %d found nothing new", m.tracker.Cycles))
	}
}

// RecordDownload applies a download start or outcome
func (m *Model) RecordDownload(e ingest.DownloadEvent, at time.Time) {
	if e.State == ingest.DownloadStarted {
		if _, ok := m.active[e.Path]; !ok {
			m.activeKeys = append(m.activeKeys, e.Path)
		}
		m.active[e.Path] = &DownloadItem{
			Kind:     e.Kind,
			PostID:   e.PostID,
			Filename: filepath.Base(e.Path),
			State:    e.State,
			Started:  at,
		}
		return
	}

	item, ok := m.active[e.Path]
	if ok {
		delete(m.active, e.Path)
		m.removeActiveKey(e.Path)
	} else {
		item = &DownloadItem{Kind: e.Kind, PostID: e.PostID, Filename: filepath.Base(e.Path), Started: at}
	}
	item.State = e.State
	item.Bytes = e.Bytes
	item.Err = e.Err
	item.Finished = at

	switch e.State {
	case ingest.DownloadFetched:
		m.fetched++
		m.totalBytes += e.Bytes
	case ingest.DownloadSkipped:
		m.skipped++
	case ingest.DownloadFailed:
		m.failed++
		msg := "Failed: " + item.Filename
		if e.Err != nil {
			msg += " - " + e.Err.Error()
		}
		m.AddLogMessage(LevelError, msg)
	}

	m.recent = append(m.recent, item)
	if len(m.recent) > m.maxRecent {
		m.recent = m.recent[len(m.recent)-m.maxRecent:]
	}
}

func (m *Model) removeActiveKey(key string) {
	for i, k := range m.activeKeys {
		if k == key {
			m.activeKeys = append(m.activeKeys[:i], m.activeKeys[i+1:]...)
			return
		}
	}
}

// SetPoolStats replaces the enrichment counters
func (m *Model) SetPoolStats(s downloader.Stats) {
	m.pool = s
}

// AddLogMessage appends to the logs panel, keeping the newest entries
func (m *Model) AddLogMessage(level, message string) {
	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
	})
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// ActiveDownloads returns the running downloads in start order
func (m *Model) ActiveDownloads() []*DownloadItem {
	items := make([]*DownloadItem, 0, len(m.activeKeys))
	for _, k := range m.activeKeys {
		items = append(items, m.active[k])
	}
	return items
}

// Waiting is the number of enrichment jobs not finished yet
func (m *Model) Waiting() int64 {
	w := m.pool.Submitted - m.pool.Completed - m.pool.Failed - m.pool.Dropped
	if w < 0 {
		return 0
	}
	return w
}

// QueueProgress is the finished share of all submitted enrichment jobs
func (m *Model) QueueProgress() float64 {
	if m.pool.Submitted == 0 {
		return 1
	}
	return float64(m.pool.Submitted-m.Waiting()) / float64(m.pool.Submitted)
}

// FormatBytes formats bytes to human readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
