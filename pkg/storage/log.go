package storage

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	errs "twarchive/pkg/errors"
	"twarchive/pkg/models"
)

// DateLayout names the per-day log and page files
const DateLayout = "2006-01-02"

var rawSeparator = []byte(strings.Repeat("=", 89) + "\n")

// RecordsFileName is the name of the normalized record log for day
func RecordsFileName(day time.Time) string {
	return "tweets-" + day.Format(DateLayout) + ".txt"
}

// RawFileName is the name of the verbatim post log for day
func RawFileName(day time.Time) string {
	return "full-tweets-" + day.Format(DateLayout) + ".txt"
}

// PageFileName is the name of the rendered page for day
func PageFileName(day time.Time) string {
	return "tweets-" + day.Format(DateLayout) + ".html"
}

// Log is the append-only, crash-safe journal of a run. Every append is
// flushed to stable storage before it returns, so an abrupt exit loses at
// most the line being written.
type Log struct {
	mu          sync.Mutex
	records     *os.File
	raw         *os.File
	recordsPath string
	rawPath     string
}

// OpenLog opens (creating if needed) the record and raw logs for runDate in dir.
// Reopening an existing day's files appends to them.
func OpenLog(dir string, runDate time.Time) (*Log, error) {
	if err := EnsureDir(dir); err != nil {
		return nil, errs.Wrap(errs.ErrorTypePersistence, err, "open log")
	}

	l := &Log{
		recordsPath: filepath.Join(dir, RecordsFileName(runDate)),
		rawPath:     filepath.Join(dir, RawFileName(runDate)),
	}

	var err error
	if l.records, err = openAppend(l.recordsPath); err != nil {
		return nil, err
	}
	if l.raw, err = openAppend(l.rawPath); err != nil {
		l.records.Close()
		return nil, err
	}
	return l, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypePersistence, err, "open "+filepath.Base(path))
	}
	return f, nil
}

// RecordsPath returns the path of the record log
func (l *Log) RecordsPath() string { return l.recordsPath }

// RawPath returns the path of the raw log
func (l *Log) RawPath() string { return l.rawPath }

// AppendCycleHeader marks the start of a poll cycle in the record log
func (l *Log) AppendCycleHeader(at time.Time) error {
	line := fmt.Sprintf("===========Tweets at %s: ==============\n", at.UTC().Format(http.TimeFormat))
	return l.write(l.records, []byte(line))
}

// AppendRecord writes rec as one JSON line
func (l *Log) AppendRecord(rec models.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errs.Wrap(errs.ErrorTypePersistence, err, "encode record "+rec.ID)
	}
	return l.write(l.records, append(data, '\n'))
}

// AppendRaw writes the verbatim post bracketed by separator lines
func (l *Log) AppendRaw(raw []byte) error {
	var buf bytes.Buffer
	buf.Grow(len(raw) + 2*len(rawSeparator) + 1)
	buf.Write(rawSeparator)
	buf.Write(compactLine(raw))
	buf.WriteByte('\n')
	buf.Write(rawSeparator)
	return l.write(l.raw, buf.Bytes())
}

// AppendBatch writes the whole fetched batch as a single JSON array line
func (l *Log) AppendBatch(raws [][]byte) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, raw := range raws {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(compactLine(raw))
	}
	buf.WriteString("]\n")
	return l.write(l.records, buf.Bytes())
}

// compactLine strips insignificant whitespace so a post always fits on one line
func compactLine(raw []byte) []byte {
	var out bytes.Buffer
	if err := json.Compact(&out, raw); err != nil {
		return bytes.ReplaceAll(raw, []byte("\n"), []byte(" "))
	}
	return out.Bytes()
}

func (l *Log) write(f *os.File, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if f == nil {
		return errs.New(errs.ErrorTypePersistence, 0, "log is closed")
	}
	if _, err := f.Write(data); err != nil {
		return errs.Wrap(errs.ErrorTypePersistence, err, "append "+filepath.Base(f.Name()))
	}
	if err := f.Sync(); err != nil {
		return errs.Wrap(errs.ErrorTypePersistence, err, "sync "+filepath.Base(f.Name()))
	}
	return nil
}

// Close closes both files. It is safe to call more than once.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, f := range []**os.File{&l.records, &l.raw} {
		if *f == nil {
			continue
		}
		if err := (*f).Close(); err != nil && firstErr == nil {
			firstErr = errs.Wrap(errs.ErrorTypePersistence, err, "close log")
		}
		*f = nil
	}
	return firstErr
}

// ReadRecords parses the record lines of a record log in file order.
// Cycle headers, batch lines and lines that do not decode (such as a line
// torn by a crash) are skipped. A missing file yields no records.
func ReadRecords(path string) ([]models.Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open record log: %w", err)
	}
	defer f.Close()

	var records []models.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var rec models.Record
		if err := json.Unmarshal(line, &rec); err != nil || rec.ID == "" {
			continue
		}
		if rec.Pictures == nil {
			rec.Pictures = []string{}
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("failed to read record log: %w", err)
	}
	return records, nil
}
