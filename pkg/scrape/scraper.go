// Package scrape extracts embedded image addresses from a post's public page.
package scrape

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	gobreaker "github.com/sony/gobreaker/v2"
	errs "twarchive/pkg/errors"
	"twarchive/pkg/logger"
	"twarchive/pkg/ratelimit"
)

// ErrCircuitOpen is returned while repeated page failures have tripped the breaker
var ErrCircuitOpen = stderrors.New("page scraping suspended after repeated failures")

// HTTPClient is the subset of *http.Client the scraper needs
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds scraper settings
type Config struct {
	// FailureThreshold consecutive failures open the circuit
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before a trial request
	OpenTimeout time.Duration
	UserAgent   string
}

// Scraper fetches post pages and lists their image URLs
type Scraper struct {
	client    HTTPClient
	limiter   ratelimit.Limiter
	logger    logger.Logger
	userAgent string
	breaker   *gobreaker.CircuitBreaker[[]string]
}

// New creates a Scraper. A nil limiter means unlimited.
func New(client HTTPClient, limiter ratelimit.Limiter, cfg Config, log logger.Logger) *Scraper {
	if limiter == nil {
		limiter = ratelimit.Unlimited()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	s := &Scraper{
		client:    client,
		limiter:   limiter,
		logger:    log,
		userAgent: cfg.UserAgent,
	}

	s.breaker = gobreaker.NewCircuitBreaker[[]string](gobreaker.Settings{
		Name:        "page-scrape",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.WarnWithFields("scrape circuit state changed", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
		// A page that simply no longer exists says nothing about the site's health
		IsSuccessful: func(err error) bool {
			return err == nil || errs.IsType(err, errs.ErrorTypeNotFound)
		},
	})
	return s
}

// FetchPageImages loads pageURL and returns the data-image-url of every image
// inside the post block whose data-associated-tweet-id is postID, in
// document order. A page without matching images yields an empty slice.
func (s *Scraper) FetchPageImages(ctx context.Context, pageURL, postID string) ([]string, error) {
	urls, err := s.breaker.Execute(func() ([]string, error) {
		return s.fetch(ctx, pageURL, postID)
	})
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errs.Wrap(errs.ErrorTypeScrape, ErrCircuitOpen, pageURL)
	}
	return urls, err
}

func (s *Scraper) fetch(ctx context.Context, pageURL, postID string) ([]string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeScrape, err, "build page request")
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "get "+pageURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return nil, errs.New(errs.ErrorTypeNotFound, resp.StatusCode, "page %s not found", pageURL)
		}
		return nil, errs.New(errs.ErrorTypeScrape, resp.StatusCode, "page %s: unexpected status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "parse "+pageURL)
	}

	images := ExtractImages(doc, postID)
	s.logger.DebugWithFields("scraped post page", map[string]interface{}{
		"url":     pageURL,
		"post_id": postID,
		"images":  len(images),
	})
	return images, nil
}

// ExtractImages applies the image selector for postID to a parsed page
func ExtractImages(doc *goquery.Document, postID string) []string {
	selector := fmt.Sprintf(".tweet[data-associated-tweet-id='%s'] [data-image-url]", cssEscape(postID))

	images := []string{}
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("data-image-url"); ok && strings.TrimSpace(src) != "" {
			images = append(images, strings.TrimSpace(src))
		}
	})
	return images
}

// cssEscape keeps an identifier from breaking out of a quoted attribute selector
func cssEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
