// Package media downloads avatars and post images into the archive.
//
// A fetch is conditional: when the destination already exists no request is
// made. Downloads stream into a temp file that is renamed into place only
// once complete, so an existing destination is always a whole file.
package media

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
	errs "twarchive/pkg/errors"
	"twarchive/pkg/logger"
	"twarchive/pkg/ratelimit"
	"twarchive/pkg/retry"
	"twarchive/pkg/storage"
)

// HTTPClient is the subset of *http.Client the fetcher needs
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Outcome describes what a successful Fetch did
type Outcome struct {
	// Skipped is true when the destination already existed
	Skipped bool
	Bytes   int64
}

// Fetcher performs conditional, atomic downloads
type Fetcher struct {
	client        HTTPClient
	limiter       ratelimit.Limiter
	logger        logger.Logger
	userAgent     string
	maxFileSize   int64
	retryAttempts int
	backoff       retry.BackoffStrategy
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithLimiter paces outbound requests
func WithLimiter(l ratelimit.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithMaxFileSize rejects bodies larger than n bytes (0 disables the cap)
func WithMaxFileSize(n int64) Option {
	return func(f *Fetcher) { f.maxFileSize = n }
}

// WithRetries retries transient failures n extra times
func WithRetries(n int) Option {
	return func(f *Fetcher) { f.retryAttempts = n }
}

// WithBackoff overrides the per-error-type retry delays
func WithBackoff(b retry.BackoffStrategy) Option {
	return func(f *Fetcher) { f.backoff = b }
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// NewFetcher creates a Fetcher using client for requests
func NewFetcher(client HTTPClient, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:  client,
		limiter: ratelimit.Unlimited(),
		logger:  logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewHTTPClient returns the client used for media downloads. With
// blockPrivate the client refuses private, loopback and link-local targets
// after DNS resolution, and only speaks http/https on ports 80 and 443.
func NewHTTPClient(timeout time.Duration, blockPrivate bool) *http.Client {
	if !blockPrivate {
		return &http.Client{Timeout: timeout}
	}
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

// Fetch downloads sourceURL to destPath unless destPath already exists.
// The destination directory must exist.
func (f *Fetcher) Fetch(ctx context.Context, sourceURL, destPath string) (Outcome, error) {
	if storage.Exists(destPath) {
		return Outcome{Skipped: true}, nil
	}

	var written int64
	err := retry.Do(ctx, func(ctx context.Context) error {
		n, err := f.download(ctx, sourceURL, destPath)
		written = n
		return err
	}, &retry.Config{
		MaxAttempts: 1 + f.retryAttempts,
		Backoff:     f.backoff,
		Logger:      f.logger,
	})
	if err != nil {
		return Outcome{}, err
	}

	f.logger.DebugWithFields("media saved", map[string]interface{}{
		"url":   sourceURL,
		"dest":  destPath,
		"bytes": written,
	})
	return Outcome{Bytes: written}, nil
}

func (f *Fetcher) download(ctx context.Context, sourceURL, destPath string) (int64, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeUnknown, err, "build media request")
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeNetwork, err, "get "+sourceURL)
	}
	defer resp.Body.Close()

	if err := errs.CheckStatus(resp.StatusCode, "get "+sourceURL); err != nil {
		return 0, err
	}
	if f.maxFileSize > 0 && resp.ContentLength > f.maxFileSize {
		return 0, errs.New(errs.ErrorTypePersistence, resp.StatusCode,
			"%s: %d bytes exceeds limit of %d", sourceURL, resp.ContentLength, f.maxFileSize)
	}

	n, err := storage.WriteAtomic(destPath, resp.Body, f.maxFileSize)
	if err != nil {
		if stderrors.Is(err, storage.ErrTooLarge) {
			return n, errs.Wrap(errs.ErrorTypePersistence, err, "save "+destPath)
		}
		// A body cut short mid-stream is a transport failure worth retrying
		if ctx.Err() == nil && stderrors.Is(err, storage.ErrSourceRead) {
			return n, errs.Wrap(errs.ErrorTypeNetwork, err, "read "+sourceURL)
		}
		return n, errs.Wrap(errs.ErrorTypePersistence, err, "save "+destPath)
	}
	return n, nil
}
