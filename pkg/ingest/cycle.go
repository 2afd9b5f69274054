package ingest

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"twarchive/internal/downloader"
	"twarchive/pkg/logger"
	"twarchive/pkg/media"
	"twarchive/pkg/metrics"
	"twarchive/pkg/models"
	"twarchive/pkg/retry"
	"twarchive/pkg/storage"
	"twarchive/pkg/store"
)

// shortLink matches the shortened link the platform appends to posts that
// carry media
var shortLink = regexp.MustCompile(`https?://t\.co/[A-Za-z0-9]{10}`)

const (
	kindAvatar = "avatar"
	kindScrape = "scrape"
	kindImage  = "image"
)

// Timeline fetches the newest posts, newest first
type Timeline interface {
	FetchLatest(ctx context.Context, count int) ([]models.RawPost, error)
}

// PageScraper lists the image URLs embedded in a post's public page
type PageScraper interface {
	FetchPageImages(ctx context.Context, pageURL, postID string) ([]string, error)
}

// Journal is the append-only durable trace of every accepted post
type Journal interface {
	AppendCycleHeader(at time.Time) error
	AppendRecord(rec models.Record) error
	AppendRaw(raw []byte) error
	AppendBatch(raws [][]byte) error
}

// MediaFetcher downloads a file unless it already exists
type MediaFetcher interface {
	Fetch(ctx context.Context, sourceURL, destPath string) (media.Outcome, error)
}

// Submitter queues enrichment work without blocking
type Submitter interface {
	Submit(job downloader.Job) error
}

// Config controls one cycle
type Config struct {
	Count      int
	MaxRetries int
	// Backoff between timeline retries; nil means exponential
	Backoff retry.BackoffStrategy

	// OutputDir is the base directory; the image dirs are relative to it
	OutputDir        string
	ProfileImagesDir string
	TweetImagesDir   string
	WebBaseURL       string
	// RecordsFile is only reported in logs
	RecordsFile string

	AppendBatch         bool
	PreferMediaEntities bool
}

// Dependencies are the collaborators of a Cycle. Scraper may be nil, in
// which case only media hints are used for images.
type Dependencies struct {
	Timeline Timeline
	Scraper  PageScraper
	Journal  Journal
	Fetcher  MediaFetcher
	Store    *store.RecordStore
	Pool     Submitter
	Recorder metrics.Recorder
	Logger   logger.Logger
	Now      func() time.Time
	// OnDownload, if set, observes every media download. It is called from
	// enrichment workers.
	OnDownload func(DownloadEvent)
}

// DownloadState is the phase a DownloadEvent reports
type DownloadState int

const (
	DownloadStarted DownloadState = iota
	DownloadFetched
	DownloadSkipped
	DownloadFailed
)

func (s DownloadState) String() string {
	switch s {
	case DownloadStarted:
		return "started"
	case DownloadFetched:
		return "fetched"
	case DownloadSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// DownloadEvent reports the start or the outcome of one media download
type DownloadEvent struct {
	Kind   string
	PostID string
	Path   string
	State  DownloadState
	Bytes  int64
	Err    error
}

// Summary describes a finished cycle
type Summary struct {
	Fetched    int
	Added      int
	Duplicates int
	Elapsed    time.Duration
}

// Cycle fetches the latest posts, records the new ones and schedules their
// media. It is safe to run several cycles at once.
type Cycle struct {
	deps Dependencies
	cfg  Config

	// handles whose avatar download is queued or running
	avatars sync.Map
}

// NewCycle creates a Cycle
func NewCycle(deps Dependencies, cfg Config) *Cycle {
	if deps.Logger == nil {
		deps.Logger = logger.GetLogger()
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Count <= 0 {
		cfg.Count = 15
	}
	if cfg.Backoff == nil {
		cfg.Backoff = retry.DefaultExponentialBackoff()
	}
	return &Cycle{deps: deps, cfg: cfg}
}

// Run performs one cycle. A timeline error aborts the cycle before any post
// is processed; a journal error aborts it mid-way. Both are returned.
// Enrichment failures are only logged.
func (c *Cycle) Run(ctx context.Context) (Summary, error) {
	start := c.deps.Now()
	var summary Summary

	posts, err := retry.DoWithResult(ctx, func(ctx context.Context) ([]models.RawPost, error) {
		return c.deps.Timeline.FetchLatest(ctx, c.cfg.Count)
	}, &retry.Config{
		MaxAttempts: 1 + c.cfg.MaxRetries,
		Backoff:     c.cfg.Backoff,
		Logger:      c.deps.Logger,
	})
	if err != nil {
		return c.finish(summary, start, fmt.Errorf("fetch timeline: %w", err))
	}
	summary.Fetched = len(posts)

	if err := c.deps.Journal.AppendCycleHeader(start); err != nil {
		return c.finish(summary, start, err)
	}

	for _, post := range posts {
		if c.deps.Store.Contains(post.ID) {
			summary.Duplicates++
			continue
		}

		rec := c.normalize(post)
		if err := c.deps.Journal.AppendRecord(rec); err != nil {
			return c.finish(summary, start, err)
		}
		if err := c.deps.Journal.AppendRaw(rawOf(post)); err != nil {
			return c.finish(summary, start, err)
		}

		if !c.deps.Store.InsertIfAbsent(rec) {
			// an overlapping cycle recorded it first and owns its enrichment
			summary.Duplicates++
			continue
		}
		summary.Added++

		c.scheduleAvatar(post, rec)
		c.scheduleImages(post)
	}

	if c.cfg.AppendBatch && len(posts) > 0 {
		raws := make([][]byte, 0, len(posts))
		for _, p := range posts {
			raws = append(raws, rawOf(p))
		}
		if err := c.deps.Journal.AppendBatch(raws); err != nil {
			return c.finish(summary, start, err)
		}
	}

	c.deps.Logger.InfoWithFields(fmt.Sprintf("Logged %d new posts", summary.Added), map[string]interface{}{
		"records_file": c.cfg.RecordsFile,
	})
	return c.finish(summary, start, nil)
}

func (c *Cycle) finish(s Summary, start time.Time, err error) (Summary, error) {
	s.Elapsed = c.deps.Now().Sub(start)
	c.deps.Recorder.RecordCycle(s.Added, s.Duplicates, s.Elapsed, err)
	c.deps.Recorder.SetStoreSize(c.deps.Store.Len())
	logger.LogCycle(c.deps.Logger, s.Fetched, s.Added, s.Duplicates, s.Elapsed, err)
	return s, err
}

func (c *Cycle) normalize(p models.RawPost) models.Record {
	rec := models.Record{
		ID:                  p.ID,
		Text:                p.Text,
		InReplyToID:         p.InReplyToID,
		InReplyToScreenName: p.InReplyToScreenName,
		User: models.Author{
			ID:              p.User.ID,
			Name:            p.User.Name,
			ScreenName:      p.User.ScreenName,
			ProfileImageURL: p.User.ProfileImageURL,
		},
		Pictures: []string{},
	}
	if p.User.ProfileImageURL != "" && p.User.ScreenName != "" {
		rec.User.ProfileImagePath = AvatarPath(c.cfg.ProfileImagesDir, p.User.ScreenName)
	}
	return rec
}

func (c *Cycle) scheduleAvatar(p models.RawPost, rec models.Record) {
	rel := rec.User.ProfileImagePath
	if rel == "" {
		return
	}
	dest := c.abs(rel)
	if storage.Exists(dest) {
		return
	}
	handle := rec.User.ScreenName
	if _, queued := c.avatars.LoadOrStore(handle, struct{}{}); queued {
		return
	}

	c.submit(downloader.Job{
		Kind:   kindAvatar,
		PostID: p.ID,
		Run: func(ctx context.Context) error {
			defer c.avatars.Delete(handle)
			return c.download(ctx, kindAvatar, p.ID, p.User.ProfileImageURL, dest)
		},
	}, func() { c.avatars.Delete(handle) })
}

func (c *Cycle) scheduleImages(p models.RawPost) {
	if !shortLink.MatchString(p.Text) {
		return
	}

	c.submit(downloader.Job{
		Kind:   kindScrape,
		PostID: p.ID,
		Run: func(ctx context.Context) error {
			urls, err := c.imageURLs(ctx, p)
			if err != nil {
				return err
			}
			c.deps.Logger.DebugWithFields("Found images in post", map[string]interface{}{
				"post_id": p.ID,
				"count":   len(urls),
			})
			for i, u := range urls {
				c.scheduleImage(p.ID, u, i)
			}
			return nil
		},
	}, nil)
}

func (c *Cycle) scheduleImage(postID, sourceURL string, n int) {
	rel := ImagePath(c.cfg.TweetImagesDir, postID, n)
	if rel == "" {
		return
	}
	c.submit(downloader.Job{
		Kind:   kindImage,
		PostID: postID,
		Run: func(ctx context.Context) error {
			if err := c.download(ctx, kindImage, postID, sourceURL, c.abs(rel)); err != nil {
				return err
			}
			c.deps.Store.AppendMedia(postID, rel)
			return nil
		},
	}, nil)
}

func (c *Cycle) imageURLs(ctx context.Context, p models.RawPost) ([]string, error) {
	hints := make([]string, 0, len(p.Media))
	for _, m := range p.Media {
		hints = append(hints, m.MediaURL)
	}
	if c.deps.Scraper == nil || (c.cfg.PreferMediaEntities && len(hints) > 0) {
		return hints, nil
	}

	pageURL := models.StatusURL(c.cfg.WebBaseURL, p.User.ScreenName, p.ID)
	urls, err := c.deps.Scraper.FetchPageImages(ctx, pageURL, p.ID)
	c.deps.Recorder.RecordScrape(err == nil)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", pageURL, err)
	}
	return urls, nil
}

func (c *Cycle) download(ctx context.Context, kind, postID, sourceURL, dest string) error {
	event := DownloadEvent{Kind: kind, PostID: postID, Path: dest, State: DownloadStarted}
	c.observe(event)

	out, err := c.deps.Fetcher.Fetch(ctx, sourceURL, dest)
	logger.LogDownload(c.deps.Logger, kind, postID, dest, out.Skipped, err)

	event.Bytes = out.Bytes
	switch {
	case err != nil:
		c.deps.Recorder.RecordMedia(kind, metrics.OutcomeFailed)
		event.State, event.Err = DownloadFailed, err
	case out.Skipped:
		c.deps.Recorder.RecordMedia(kind, metrics.OutcomeSkipped)
		event.State = DownloadSkipped
	default:
		c.deps.Recorder.RecordMedia(kind, metrics.OutcomeFetched)
		event.State = DownloadFetched
	}
	c.observe(event)
	return err
}

func (c *Cycle) observe(e DownloadEvent) {
	if c.deps.OnDownload != nil {
		c.deps.OnDownload(e)
	}
}

func (c *Cycle) submit(job downloader.Job, onReject func()) {
	if err := c.deps.Pool.Submit(job); err != nil {
		c.deps.Logger.WithError(err).WarnWithFields("Enrichment not scheduled", map[string]interface{}{
			"kind":    job.Kind,
			"post_id": job.PostID,
		})
		if onReject != nil {
			onReject()
		}
	}
}

func (c *Cycle) abs(rel string) string {
	return filepath.Join(c.cfg.OutputDir, filepath.FromSlash(rel))
}

// rawOf returns the verbatim object, or a minimal one for posts built
// without it
func rawOf(p models.RawPost) []byte {
	if len(p.Raw) > 0 {
		return p.Raw
	}
	raw, err := json.Marshal(map[string]string{"id_str": p.ID, "text": p.Text})
	if err != nil {
		return []byte("{}")
	}
	return raw
}

// AvatarPath is the output-relative path of a user's profile picture, or ""
// when the handle has no usable characters. Handles come from the remote
// side so only [A-Za-z0-9_] reaches the file name.
func AvatarPath(dir, screenName string) string {
	name := fileSafe(screenName)
	if name == "" {
		return ""
	}
	return path.Join(filepath.ToSlash(dir), "profile_image_user_"+name+".jpg")
}

// ImagePath is the output-relative path of the n-th image of a post, or ""
// when the id has no usable characters
func ImagePath(dir, postID string, n int) string {
	id := fileSafe(postID)
	if id == "" {
		return ""
	}
	return path.Join(filepath.ToSlash(dir), fmt.Sprintf("tweet_%s_image_%d.jpg", id, n))
}

func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return -1
	}, s)
}
