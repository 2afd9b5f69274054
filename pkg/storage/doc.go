// Package storage owns everything the archiver writes to disk.
//
// Log is the per-day journal. It appends to two files named after the run's
// start date:
//
//	tweets-2026-10-18.txt       cycle headers, one JSON record per line, batch lines
//	full-tweets-2026-10-18.txt  every raw post between lines of '='
//
// Each append is synced before returning and any failure is a persistence
// error, which the caller treats as fatal. ReadRecords reads a record log
// back for resume and offline rendering.
//
// The filesystem helpers (EnsureDir, Exists, WriteOnce, WriteAtomic) write
// through a temp file and rename, so Exists never reports a partial file.
package storage
