package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

var (
	// ErrTooLarge is returned by WriteAtomic when the source exceeds the size cap
	ErrTooLarge = errors.New("file exceeds maximum size")
	// ErrSourceRead marks WriteAtomic failures caused by the reader rather than the disk
	ErrSourceRead = errors.New("source read failed")
)

// EnsureDir creates dir and its parents. An existing directory is not an error.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// Exists reports whether a regular file or directory exists at path.
// Temp files from WriteAtomic never appear under the final name, so a true
// result always means a complete file.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteOnce writes data to path through a temp file and rename, so readers
// never see a partial file
func WriteOnce(path string, data []byte) error {
	_, err := WriteAtomic(path, bytes.NewReader(data), 0)
	return err
}

// WriteAtomic streams r into a uniquely named temp file next to dest, syncs
// it, and renames it over dest. maxBytes > 0 caps the size; exceeding it
// returns ErrTooLarge. On any failure the temp file is removed and dest is
// left untouched.
func WriteAtomic(dest string, r io.Reader, maxBytes int64) (written int64, err error) {
	tempFile := fmt.Sprintf("%s.tmp-%s", dest, uuid.NewString())

	out, err := os.OpenFile(tempFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tempFile)
		}
	}()

	src := &sourceReader{r: r}
	var limited io.Reader = src
	if maxBytes > 0 {
		// One extra byte tells "exactly at the cap" apart from "over it"
		limited = io.LimitReader(src, maxBytes+1)
	}

	written, err = io.Copy(out, limited)
	if src.err != nil {
		return written, fmt.Errorf("%w: %w", ErrSourceRead, src.err)
	}
	if err != nil {
		return written, fmt.Errorf("failed to write data: %w", err)
	}
	if maxBytes > 0 && written > maxBytes {
		return written, fmt.Errorf("%s: %w (%d bytes)", filepath.Base(dest), ErrTooLarge, maxBytes)
	}

	if err = out.Sync(); err != nil {
		return written, fmt.Errorf("failed to sync file: %w", err)
	}
	if err = out.Close(); err != nil {
		return written, fmt.Errorf("failed to close file: %w", err)
	}

	if err = os.Rename(tempFile, dest); err != nil {
		return written, fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return written, nil
}

// sourceReader remembers the reader's own error so io.Copy failures can be
// attributed to the source or the destination
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}
