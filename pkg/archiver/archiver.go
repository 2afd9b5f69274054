package archiver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"twarchive/internal/downloader"
	"twarchive/internal/httpserver"
	"twarchive/pkg/config"
	"twarchive/pkg/ingest"
	"twarchive/pkg/logger"
	"twarchive/pkg/media"
	"twarchive/pkg/metrics"
	"twarchive/pkg/poller"
	"twarchive/pkg/ratelimit"
	"twarchive/pkg/render"
	"twarchive/pkg/scrape"
	"twarchive/pkg/storage"
	"twarchive/pkg/store"
	"twarchive/pkg/twitter"
)

// Options overrides collaborators, mainly for tests. Nil fields are built
// from the configuration.
type Options struct {
	Timeline ingest.Timeline
	Scraper  ingest.PageScraper
	Fetcher  ingest.MediaFetcher
	Registry *prometheus.Registry
	Logger   logger.Logger
	Now      func() time.Time
	// OnCycle is called after every successful cycle
	OnCycle func(ingest.Summary)
	// OnDownload observes media downloads from the enrichment workers
	OnDownload func(ingest.DownloadEvent)
}

// Archiver polls the timeline, archives every new post and renders the
// collected posts into one page when it stops
type Archiver struct {
	cfg      *config.Config
	logger   logger.Logger
	now      func() time.Time
	runDate  time.Time
	registry *prometheus.Registry
	recorder *metrics.Collector

	store    *store.RecordStore
	pool     *downloader.WorkerPool
	renderer *render.Renderer
	timeline ingest.Timeline
	scraper  ingest.PageScraper
	fetcher  ingest.MediaFetcher
	onCycle  func(ingest.Summary)
	onFetch  func(ingest.DownloadEvent)

	journal *storage.Log
	poller  *poller.Poller
	server  *httpserver.Server

	// closing is set when shutdown gives up on an in-flight cycle
	closing      atomic.Bool
	finalizeOnce sync.Once
	finalizeErr  error
}

// New wires an Archiver from cfg
func New(cfg *config.Config, opts Options) (*Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &Archiver{
		cfg:      cfg,
		logger:   opts.Logger,
		now:      opts.Now,
		registry: opts.Registry,
		timeline: opts.Timeline,
		scraper:  opts.Scraper,
		fetcher:  opts.Fetcher,
		onCycle:  opts.OnCycle,
		onFetch:  opts.OnDownload,
		store:    store.New(),
	}
	if a.logger == nil {
		a.logger = logger.GetLogger()
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}
	a.runDate = a.now()
	a.recorder = metrics.NewCollector(a.registry)
	a.pool = downloader.NewWorkerPool(cfg.Download.ConcurrentDownloads, a.logger.WithField("component", "enrichment"))
	a.renderer = render.New(render.Options{
		Title:      "Posts of " + a.runDate.Format(storage.DateLayout),
		WebBaseURL: cfg.Twitter.WebBaseURL,
		Stylesheet: cfg.Render.Stylesheet,
	})

	if a.timeline == nil {
		tl, err := a.newTimeline()
		if err != nil {
			return nil, err
		}
		a.timeline = tl
	}
	if a.scraper == nil && cfg.Scrape.Enabled {
		a.scraper = scrape.New(
			media.NewHTTPClient(cfg.Download.DownloadTimeout, cfg.Download.BlockPrivateNetworks),
			a.newLimiter(),
			scrape.Config{
				FailureThreshold: cfg.Scrape.FailureThreshold,
				OpenTimeout:      cfg.Scrape.OpenTimeout,
				UserAgent:        cfg.Twitter.UserAgent,
			},
			a.logger.WithField("component", "scrape"),
		)
	}
	if a.fetcher == nil {
		a.fetcher = media.NewFetcher(
			media.NewHTTPClient(cfg.Download.DownloadTimeout, cfg.Download.BlockPrivateNetworks),
			media.WithLimiter(a.newLimiter()),
			media.WithLogger(a.logger.WithField("component", "media")),
			media.WithMaxFileSize(cfg.Download.MaxFileSize),
			media.WithRetries(cfg.Download.RetryAttempts),
			media.WithUserAgent(cfg.Twitter.UserAgent),
		)
	}

	if cfg.Metrics.ListenAddr != "" {
		a.server = httpserver.New(cfg.Metrics.ListenAddr, a.store, a.renderer, metrics.Handler(a.registry), a.logger.WithField("component", "http"),
			httpserver.WithAssets(httpserver.Assets{
				Dir:        cfg.Output.BaseDirectory,
				Stylesheet: a.stylesheetName(),
				DefaultCSS: render.DefaultCSS(),
				MediaDirs:  []string{cfg.Output.ProfileImagesDir, cfg.Output.TweetImagesDir},
			}))
	}
	return a, nil
}

func (a *Archiver) stylesheetName() string {
	if a.cfg.Render.Stylesheet == "" {
		return render.DefaultStylesheet
	}
	return a.cfg.Render.Stylesheet
}

func (a *Archiver) newTimeline() (ingest.Timeline, error) {
	tc := a.cfg.Twitter
	creds := twitter.Credentials{
		ConsumerKey:       tc.ConsumerKey,
		ConsumerSecret:    tc.ConsumerSecret,
		AccessToken:       tc.AccessToken,
		AccessTokenSecret: tc.AccessTokenSecret,
	}
	if !creds.Complete() {
		return nil, errors.New("API credentials are incomplete: consumer key, consumer secret, access token and access token secret are required")
	}
	httpClient := twitter.NewOAuthHTTPClient(context.Background(), creds, a.cfg.Download.DownloadTimeout)
	return twitter.NewClient(httpClient, a.logger.WithField("component", "timeline"),
		twitter.WithBaseURL(tc.APIBaseURL),
		twitter.WithRecorder(a.recorder),
		twitter.WithUserAgent(tc.UserAgent),
	), nil
}

func (a *Archiver) newLimiter() ratelimit.Limiter {
	if a.cfg.Download.RequestsPerMinute <= 0 {
		return ratelimit.Unlimited()
	}
	return ratelimit.NewPerMinute(a.cfg.Download.RequestsPerMinute, a.cfg.Download.ConcurrentDownloads)
}

// Store exposes the record store
func (a *Archiver) Store() *store.RecordStore {
	return a.store
}

// PoolStats reports the enrichment queue counters
func (a *Archiver) PoolStats() downloader.Stats {
	return a.pool.Stats()
}

// Handler returns the metrics handler for the archiver's registry
func (a *Archiver) Handler() http.Handler {
	return metrics.Handler(a.registry)
}

// PagePath is where the rendered page is written
func (a *Archiver) PagePath() string {
	return filepath.Join(a.cfg.Output.BaseDirectory, storage.PageFileName(a.runDate))
}

// RecordsPath is the primary log of this run
func (a *Archiver) RecordsPath() string {
	return filepath.Join(a.cfg.Output.BaseDirectory, storage.RecordsFileName(a.runDate))
}

// Run archives until ctx is cancelled or a cycle fails. Cancellation is a
// clean stop and returns nil after the page is written. A fatal error is
// returned; the page is only written for it when render.on_fatal is set.
func (a *Archiver) Run(ctx context.Context) error {
	if err := a.prepare(); err != nil {
		return err
	}

	a.pool.Start()
	cycle := ingest.NewCycle(ingest.Dependencies{
		Timeline: a.timeline,
		Scraper:  a.scraper,
		Journal:  a.journal,
		Fetcher:  a.fetcher,
		Store:    a.store,
		Pool:     a.pool,
		Recorder: a.recorder,
		Logger:   a.logger.WithField("component", "ingest"),
		Now:      a.now,

		OnDownload: a.onFetch,
	}, ingest.Config{
		Count:               a.cfg.Poll.Count,
		MaxRetries:          a.cfg.Poll.MaxRetries,
		OutputDir:           a.cfg.Output.BaseDirectory,
		ProfileImagesDir:    a.cfg.Output.ProfileImagesDir,
		TweetImagesDir:      a.cfg.Output.TweetImagesDir,
		WebBaseURL:          a.cfg.Twitter.WebBaseURL,
		RecordsFile:         a.journal.RecordsPath(),
		AppendBatch:         a.cfg.Output.AppendBatch,
		PreferMediaEntities: a.cfg.Scrape.PreferMediaEntities,
	})

	a.poller = poller.New(a.cfg.Poll.Interval, func(ctx context.Context) error {
		summary, err := cycle.Run(ctx)
		if err != nil && a.closing.Load() {
			a.logger.WithError(err).Warn("Cycle abandoned at shutdown")
			return nil
		}
		if err == nil && a.onCycle != nil {
			a.onCycle(summary)
		}
		return err
	}, poller.WithSkipOverlap(a.cfg.Poll.SkipOverlapping), poller.WithLogger(a.logger))

	g, gctx := errgroup.WithContext(ctx)
	if err := a.poller.Start(gctx); err != nil {
		return a.finalize(err)
	}
	a.logger.InfoWithFields("Running, expect first posts within one poll interval", map[string]interface{}{
		"interval": a.cfg.Poll.Interval.String(),
		"records":  a.journal.RecordsPath(),
	})

	if a.server != nil {
		g.Go(func() error {
			if err := a.server.Run(gctx); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		select {
		case err := <-a.poller.Err():
			return err
		case <-gctx.Done():
			return nil
		}
	})

	return a.finalize(g.Wait())
}

func (a *Archiver) prepare() error {
	out := a.cfg.Output
	for _, dir := range []string{
		out.BaseDirectory,
		filepath.Join(out.BaseDirectory, out.ProfileImagesDir),
		filepath.Join(out.BaseDirectory, out.TweetImagesDir),
	} {
		if err := storage.EnsureDir(dir); err != nil {
			return err
		}
	}

	if out.Resume {
		records, err := storage.ReadRecords(a.RecordsPath())
		if err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		seeded := a.store.Seed(records)
		a.recorder.SetStoreSize(a.store.Len())
		a.logger.InfoWithFields("Resumed from existing log", map[string]interface{}{
			"records": seeded,
			"file":    a.RecordsPath(),
		})
	}

	journal, err := storage.OpenLog(out.BaseDirectory, a.runDate)
	if err != nil {
		return err
	}
	a.journal = journal
	return nil
}

// finalize runs the shutdown sequence once: stop polling, give enrichment
// the grace period, render, cancel what is left, close the log
func (a *Archiver) finalize(cause error) error {
	a.finalizeOnce.Do(func() {
		a.finalizeErr = a.shutdown(cause)
	})
	return a.finalizeErr
}

func (a *Archiver) shutdown(cause error) error {
	if a.poller != nil {
		a.poller.Stop()
		a.drainCycles()
	}

	if grace := a.cfg.Render.MediaGracePeriod; grace > 0 && cause == nil {
		graceCtx, cancel := context.WithTimeout(context.Background(), grace)
		if err := a.pool.Wait(graceCtx); err != nil {
			a.logger.InfoWithFields("Grace period over, pending media is abandoned", map[string]interface{}{
				"grace": grace.String(),
			})
		}
		cancel()
	}

	var renderErr error
	if cause == nil || a.cfg.Render.OnFatal {
		renderErr = a.writePage()
	}

	a.pool.Stop()
	closeErr := a.journal.Close()

	if cause != nil {
		a.logger.WithError(cause).Error("Archiver stopped on fatal error")
		return errors.Join(cause, renderErr)
	}
	return errors.Join(renderErr, closeErr)
}

// drainCycles waits for a cycle still running when polling stopped so its
// posts reach the log and the page. The wait is bounded by the longer of the
// poll interval and the download timeout.
func (a *Archiver) drainCycles() {
	bound := a.cfg.Poll.Interval
	if t := a.cfg.Download.DownloadTimeout; t > bound {
		bound = t
	}

	drained := make(chan struct{})
	go func() {
		a.poller.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(bound):
		a.closing.Store(true)
		a.logger.InfoWithFields("In-flight cycle did not finish, abandoning it", map[string]interface{}{
			"waited": bound.String(),
		})
	}
}

func (a *Archiver) writePage() error {
	snapshot := a.store.Snapshot()
	a.logger.InfoWithFields("Writing collected posts to HTML file", map[string]interface{}{
		"file":    a.PagePath(),
		"records": len(snapshot),
	})

	page, err := a.renderer.Render(snapshot)
	if err != nil {
		return err
	}
	if err := storage.WriteOnce(a.PagePath(), page); err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	if _, err := render.WriteStylesheet(a.cfg.Output.BaseDirectory, a.cfg.Render.Stylesheet); err != nil {
		a.logger.WithError(err).Warn("Failed to write stylesheet")
	}

	a.logger.Info("Done writing to file")
	return nil
}
