package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"twarchive/pkg/ingest"
)

// TUI is the full-screen dashboard shown by `run --tui`
type TUI struct {
	program *tea.Program
	model   *Model
	done    chan struct{}
}

// New creates a dashboard. opts are passed to the bubbletea program, e.g.
// tea.WithAltScreen().
func New(batchSize int, stats StatsFunc, opts ...tea.ProgramOption) *TUI {
	model := NewModel(batchSize, stats)
	return &TUI{
		program: tea.NewProgram(&model, opts...),
		model:   &model,
		done:    make(chan struct{}),
	}
}

// Run blocks until the user quits or Stop is called
func (t *TUI) Run() error {
	defer close(t.done)
	_, err := t.program.Run()
	return err
}

// Stop quits the program and waits for Run to return
func (t *TUI) Stop() {
	t.program.Quit()
	<-t.done
}

// Done is closed when Run has returned
func (t *TUI) Done() <-chan struct{} {
	return t.done
}

// RecordCycle reports a finished cycle
func (t *TUI) RecordCycle(s ingest.Summary) {
	t.program.Send(CycleMsg{Summary: s, At: time.Now()})
}

// RecordDownload reports a download start or outcome
func (t *TUI) RecordDownload(e ingest.DownloadEvent) {
	t.program.Send(DownloadMsg{Event: e, At: time.Now()})
}

// Log adds a formatted line to the logs panel
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.program.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogInfo logs an info message
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log(LevelInfo, format, args...)
}

// LogError logs an error message
func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log(LevelError, format, args...)
}
