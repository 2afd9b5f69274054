package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"twarchive/pkg/ingest"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// StatusTracker accumulates cycle summaries for the status line shown while
// the archiver runs
type StatusTracker struct {
	mu         sync.Mutex
	Cycles     int
	Archived   int
	Duplicates int
	LastFetch  int
	BatchSize  int
	StartTime  time.Time
}

// NewStatusTracker creates a tracker; batchSize is the requested post count
// per cycle and scales the bar
func NewStatusTracker(batchSize int) *StatusTracker {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &StatusTracker{
		BatchSize: batchSize,
		StartTime: time.Now(),
	}
}

// Record adds one finished cycle
func (st *StatusTracker) Record(s ingest.Summary) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Cycles++
	st.Archived += s.Added
	st.Duplicates += s.Duplicates
	st.LastFetch = s.Fetched
}

// GetBatchProgress renders how full the last fetched batch was
func (st *StatusTracker) GetBatchProgress() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.batchProgress()
}

func (st *StatusTracker) batchProgress() string {
	const width = 20
	filled := st.LastFetch * width / st.BatchSize
	if filled > width {
		filled = width
	}
	bar := strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, width-filled)
	return fmt.Sprintf("[%s] %d/%d", bar, st.LastFetch, st.BatchSize)
}

// GetElapsedTime returns the elapsed time since tracking started
func (st *StatusTracker) GetElapsedTime() time.Duration {
	return time.Since(st.StartTime)
}

// GetArchiveRate returns archived posts per hour
func (st *StatusTracker) GetArchiveRate() float64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	hours := st.GetElapsedTime().Hours()
	if hours == 0 {
		return 0
	}
	return float64(st.Archived) / hours
}

// StatusLine is the one-line summary printed after each cycle
func (st *StatusTracker) StatusLine() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return fmt.Sprintf("%s cycle %d | archived %d | duplicates %d | batch %s",
		Green("[ARCHIVED]"), st.Cycles, st.Archived, st.Duplicates, st.batchProgress())
}

// PrintProgress prints the status line
func (st *StatusTracker) PrintProgress() {
	printf(false, "%s\n", st.StatusLine())
}
