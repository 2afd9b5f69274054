package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogCycle logs the outcome of one ingestion cycle
func LogCycle(l Logger, fetched, added, duplicates int, elapsed time.Duration, err error) {
	fields := map[string]interface{}{
		"fetched":    fetched,
		"added":      added,
		"duplicates": duplicates,
		"elapsed":    elapsed,
	}

	if err != nil {
		l.WithError(err).ErrorWithFields("Cycle failed", fields)
		return
	}
	l.InfoWithFields("Cycle completed", fields)
}

// LogDownload logs a media side-fetch
func LogDownload(l Logger, kind, postID, dest string, skipped bool, err error) {
	log := l.WithFields(map[string]interface{}{
		"kind":    kind,
		"post_id": postID,
		"dest":    dest,
	})

	switch {
	case err != nil:
		log.WithError(err).Warn("Download failed")
	case skipped:
		log.Debug("Download skipped, file exists")
	default:
		log.Info("Download completed")
	}
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, config map[string]interface{}) {
	log := l.WithField("component", component)
	if len(config) > 0 {
		log = log.WithFields(config)
	}
	log.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}

func (n *nopLogger) GetZerolog() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
