package archiver

import (
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	"twarchive/pkg/config"
	errs "twarchive/pkg/errors"
	"twarchive/pkg/logger"
	"twarchive/pkg/render"
	"twarchive/pkg/storage"
	"twarchive/pkg/store"
)

// RenderResult describes a page rebuilt from a record log
type RenderResult struct {
	PagePath string
	Records  int
}

// RenderDay rebuilds the page of day from that day's record log. Unlike the
// page written at shutdown an existing page is replaced.
func RenderDay(cfg *config.Config, day time.Time, log logger.Logger) (RenderResult, error) {
	base := cfg.Output.BaseDirectory
	recordsPath := filepath.Join(base, storage.RecordsFileName(day))
	if !storage.Exists(recordsPath) {
		return RenderResult{}, errs.New(errs.ErrorTypeNotFound, 0, "no record log at %s", recordsPath)
	}

	records, err := storage.ReadRecords(recordsPath)
	if err != nil {
		return RenderResult{}, err
	}
	s := store.New()
	s.Seed(records)
	snapshot := s.Snapshot()

	page, err := render.New(render.Options{
		Title:      "Posts of " + day.Format(storage.DateLayout),
		WebBaseURL: cfg.Twitter.WebBaseURL,
		Stylesheet: cfg.Render.Stylesheet,
	}).Render(snapshot)
	if err != nil {
		return RenderResult{}, err
	}

	pagePath := filepath.Join(base, storage.PageFileName(day))
	if _, err := storage.WriteAtomic(pagePath, bytes.NewReader(page), 0); err != nil {
		return RenderResult{}, fmt.Errorf("write page: %w", err)
	}
	if _, err := render.WriteStylesheet(base, cfg.Render.Stylesheet); err != nil {
		log.WithError(err).Warn("Failed to write stylesheet")
	}

	log.InfoWithFields("Rebuilt page from record log", map[string]interface{}{
		"file":    pagePath,
		"records": len(snapshot),
	})
	return RenderResult{PagePath: pagePath, Records: len(snapshot)}, nil
}
