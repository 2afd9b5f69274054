package tui

import (
	"errors"
	"io"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"twarchive/internal/downloader"
	"twarchive/pkg/ingest"
)

func started(path string) ingest.DownloadEvent {
	return ingest.DownloadEvent{Kind: "image", PostID: "1", Path: path, State: ingest.DownloadStarted}
}

func TestModelRecordsCycles(t *testing.T) {
	m := NewModel(10, nil)
	at := time.Now()

	m.RecordCycle(ingest.Summary{Fetched: 10, Added: 4, Duplicates: 6}, at)
	m.RecordCycle(ingest.Summary{Fetched: 5, Duplicates: 5}, at)

	assert.Equal(t, 2, m.tracker.Cycles)
	assert.Equal(t, 4, m.tracker.Archived)
	assert.Equal(t, 11, m.tracker.Duplicates)
	assert.Equal(t, at, m.lastCycle)
	require.Len(t, m.logMessages, 2)
	assert.Equal(t, LevelSuccess, m.logMessages[0].Level)
	assert.Contains(t, m.logMessages[1].Message, "found nothing new")
}

func TestModelTracksDownloads(t *testing.T) {
	m := NewModel(10, nil)
	now := time.Now()

	m.RecordDownload(started("/out/tweet_images/tweet_1_image_0.jpg"), now)
	m.RecordDownload(started("/out/tweet_images/tweet_1_image_1.jpg"), now)
	m.RecordDownload(started("/out/profile_images/profile_image_user_amy.jpg"), now)

	active := m.ActiveDownloads()
	require.Len(t, active, 3)
	assert.Equal(t, "tweet_1_image_0.jpg", active[0].Filename)

	m.RecordDownload(ingest.DownloadEvent{Path: "/out/tweet_images/tweet_1_image_0.jpg", State: ingest.DownloadFetched, Bytes: 2048}, now)
	m.RecordDownload(ingest.DownloadEvent{Path: "/out/tweet_images/tweet_1_image_1.jpg", State: ingest.DownloadFailed, Err: errors.New("status 404")}, now)
	m.RecordDownload(ingest.DownloadEvent{Path: "/out/profile_images/profile_image_user_amy.jpg", State: ingest.DownloadSkipped}, now)

	assert.Empty(t, m.ActiveDownloads())
	assert.Equal(t, 1, m.fetched)
	assert.Equal(t, 1, m.failed)
	assert.Equal(t, 1, m.skipped)
	assert.Equal(t, int64(2048), m.totalBytes)
	require.Len(t, m.recent, 3)
	assert.Equal(t, "image", m.recent[0].Kind)

	require.Len(t, m.logMessages, 1)
	assert.Equal(t, LevelError, m.logMessages[0].Level)
	assert.Contains(t, m.logMessages[0].Message, "tweet_1_image_1.jpg - status 404")
}

func TestModelKeepsRecentBounded(t *testing.T) {
	m := NewModel(1, nil)
	for i := 0; i < 20; i++ {
		m.RecordDownload(ingest.DownloadEvent{Path: "/x.jpg", State: ingest.DownloadFetched}, time.Now())
	}
	assert.Len(t, m.recent, m.maxRecent)
	assert.Equal(t, 20, m.fetched)
}

func TestModelQueueProgress(t *testing.T) {
	m := NewModel(1, nil)
	assert.Equal(t, 1.0, m.QueueProgress(), "an empty queue is done")

	m.SetPoolStats(downloader.Stats{Submitted: 10, Completed: 5, Failed: 1, Dropped: 2})
	assert.Equal(t, int64(2), m.Waiting())
	assert.InDelta(t, 0.8, m.QueueProgress(), 0.0001)
}

func TestUpdateRefreshesStatsOnTick(t *testing.T) {
	calls := 0
	m := NewModel(1, func() downloader.Stats {
		calls++
		return downloader.Stats{Submitted: 3, Completed: 1}
	})

	_, cmd := m.Update(TickMsg(time.Now()))
	assert.NotNil(t, cmd, "tick reschedules itself")
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(2), m.Waiting())
}

func TestUpdateKeys(t *testing.T) {
	m := NewModel(1, nil)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	assert.True(t, m.showHelp)

	m.AddLogMessage(LevelInfo, "hello")
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Empty(t, m.logMessages)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestViewRendersPanels(t *testing.T) {
	m := NewModel(5, nil)
	assert.Equal(t, "Initializing...", m.View())

	m.Update(tea.WindowSizeMsg{Width: 160, Height: 50})
	m.RecordCycle(ingest.Summary{Fetched: 5, Added: 5}, time.Now())
	m.RecordDownload(started("/out/tweet_images/tweet_9_image_0.jpg"), time.Now())

	view := m.View()
	assert.Contains(t, view, "POLLING")
	assert.Contains(t, view, "ENRICHMENT QUEUE")
	assert.Contains(t, view, "tweet_9_image_0.jpg")
	assert.Contains(t, view, "5 posts")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{500, "500 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatBytes(tt.bytes))
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "01:05", formatDuration(65*time.Second))
	assert.Equal(t, "02:00:01", formatDuration(2*time.Hour+time.Second))
	assert.Equal(t, "00:00", formatDuration(-time.Second))
}

func TestTUIProgramReceivesEvents(t *testing.T) {
	dash := New(5, nil, tea.WithInput(nil), tea.WithOutput(io.Discard), tea.WithoutSignalHandler())

	runErr := make(chan error, 1)
	go func() { runErr <- dash.Run() }()

	dash.RecordCycle(ingest.Summary{Fetched: 2, Added: 2})
	dash.RecordDownload(started("/out/tweet_images/tweet_1_image_0.jpg"))
	dash.LogInfo("archiving to %s", "tweets.txt")
	dash.Stop()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dashboard did not stop")
	}

	assert.Equal(t, 1, dash.model.tracker.Cycles)
	assert.Len(t, dash.model.ActiveDownloads(), 1)
	require.NotEmpty(t, dash.model.logMessages)
	assert.Equal(t, "archiving to tweets.txt", dash.model.logMessages[len(dash.model.logMessages)-1].Message)

	// sends after exit are dropped
	dash.RecordCycle(ingest.Summary{})
	<-dash.Done()
}
