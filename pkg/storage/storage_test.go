package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "twarchive/pkg/errors"
	"twarchive/pkg/models"
)

var runDate = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

func TestFileNames(t *testing.T) {
	assert.Equal(t, "tweets-2026-10-18.txt", RecordsFileName(runDate))
	assert.Equal(t, "full-tweets-2026-10-18.txt", RawFileName(runDate))
	assert.Equal(t, "tweets-2026-10-18.html", PageFileName(runDate))
}

func TestLogAppendsAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenLog(dir, runDate)
	require.NoError(t, err)

	require.NoError(t, log.AppendCycleHeader(runDate))
	require.NoError(t, log.AppendRecord(models.Record{ID: "1", Text: "first", Pictures: []string{}}))
	require.NoError(t, log.AppendRaw([]byte("{\n  \"id_str\": \"1\"\n}")))
	require.NoError(t, log.AppendRecord(models.Record{ID: "2", Text: "second", InReplyToID: "1", Pictures: []string{}}))
	require.NoError(t, log.AppendBatch([][]byte{[]byte(`{"id_str":"1"}`), []byte(`{"id_str":"2"}`)}))
	require.NoError(t, log.Close())

	content, err := os.ReadFile(log.RecordsPath())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "===========Tweets at Sun, 18 Oct 2026 09:30:00 GMT: ==============", lines[0])
	assert.Equal(t, `[{"id_str":"1"},{"id_str":"2"}]`, lines[3])

	raw, err := os.ReadFile(log.RawPath())
	require.NoError(t, err)
	sep := strings.Repeat("=", 89)
	assert.Equal(t, sep+"\n"+`{"id_str":"1"}`+"\n"+sep+"\n", string(raw))

	records, err := ReadRecords(log.RecordsPath())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "first", records[0].Text)
	assert.Equal(t, "1", records[1].InReplyToID)
}

func TestOpenLogAppendsToExistingDay(t *testing.T) {
	dir := t.TempDir()

	first, err := OpenLog(dir, runDate)
	require.NoError(t, err)
	require.NoError(t, first.AppendRecord(models.Record{ID: "1"}))
	require.NoError(t, first.Close())

	second, err := OpenLog(dir, runDate)
	require.NoError(t, err)
	require.NoError(t, second.AppendRecord(models.Record{ID: "2"}))
	require.NoError(t, second.Close())

	records, err := ReadRecords(filepath.Join(dir, RecordsFileName(runDate)))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestLogWriteAfterCloseIsPersistenceError(t *testing.T) {
	log, err := OpenLog(t.TempDir(), runDate)
	require.NoError(t, err)
	require.NoError(t, log.Close())
	require.NoError(t, log.Close())

	err = log.AppendRecord(models.Record{ID: "1"})
	assert.True(t, errs.IsType(err, errs.ErrorTypePersistence))
}

func TestReadRecordsToleratesTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tweets.txt")
	content := "===========Tweets at x: ==============\n" +
		`{"id":"1","text":"ok","user":{"id":1,"name":"a","screen_name":"a"},"pictures":["p.jpg"]}` + "\n" +
		"\n" +
		`{"id":"2","text":"to`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	records, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"p.jpg"}, records[0].Pictures)
}

func TestReadRecordsMissingFile(t *testing.T) {
	records, err := ReadRecords(filepath.Join(t.TempDir(), "absent.txt"))
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func TestEnsureDirIsIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))
	assert.True(t, Exists(dir))
}

func TestWriteOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, WriteOnce(path, []byte("<html></html>")))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(content))
	assertNoTempFiles(t, filepath.Dir(path))
}

func TestWriteAtomicSizeCap(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "big.jpg")

	_, err := WriteAtomic(dest, bytes.NewReader(make([]byte, 11)), 10)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.False(t, Exists(dest))
	assertNoTempFiles(t, dir)

	n, err := WriteAtomic(dest, bytes.NewReader(make([]byte, 10)), 10)
	require.NoError(t, err)
	assert.EqualValues(t, 10, n)
}

type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("connection reset")
}

func TestWriteAtomicFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "img.jpg")

	_, err := WriteAtomic(dest, &failingReader{}, 0)
	require.Error(t, err)
	assert.False(t, Exists(dest))
	assertNoTempFiles(t, dir)
}

func TestWriteAtomicReplacesExisting(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "img.jpg")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0644))

	_, err := WriteAtomic(dest, strings.NewReader("new"), 0)
	require.NoError(t, err)

	content, _ := os.ReadFile(dest)
	assert.Equal(t, "new", string(content))
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "leftover temp file")
	}
}
