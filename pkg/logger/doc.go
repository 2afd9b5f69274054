// Package logger provides a structured logging interface for the archiver.
//
// It wraps zerolog with a small interface so components can be handed a
// logger (or a TestLogger in tests) instead of reaching for globals:
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("component", "poller").Info("started")
//	log.InfoWithFields("Cycle completed", map[string]interface{}{
//	    "added": 3,
//	    "duplicates": 12,
//	})
//
// Console output is coloured when stdout is the only sink. When
// logging.file is set, lines go to stdout and are appended as JSON to the
// file. Every line carries app, version and a per-process run_id.
package logger
