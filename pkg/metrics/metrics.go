// Package metrics exposes archiver counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Media outcomes
const (
	OutcomeFetched = "fetched"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Recorder is what the archiver components report to
type Recorder interface {
	RecordCycle(added, duplicates int, elapsed time.Duration, err error)
	RecordTimelineStatus(statusCode int)
	RecordMedia(kind, outcome string)
	RecordScrape(ok bool)
	SetStoreSize(n int)
}

// Collector is the Prometheus-backed Recorder
type Collector struct {
	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	postsAdded     prometheus.Counter
	postsDuplicate prometheus.Counter
	timelineStatus *prometheus.CounterVec
	media          *prometheus.CounterVec
	scrapes        *prometheus.CounterVec
	storeSize      prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twarchive_cycles_total",
			Help: "Ingestion cycles by result",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "twarchive_cycle_duration_seconds",
			Help:    "Time spent in the synchronous part of a cycle",
			Buckets: prometheus.DefBuckets,
		}),
		postsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "twarchive_posts_added_total",
			Help: "Posts newly archived",
		}),
		postsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "twarchive_posts_duplicate_total",
			Help: "Fetched posts that were already archived",
		}),
		timelineStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twarchive_timeline_http_status_total",
			Help: "Timeline API responses by status code",
		}, []string{"status_code"}),
		media: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twarchive_media_total",
			Help: "Media side-fetches by kind and outcome",
		}, []string{"kind", "outcome"}),
		scrapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twarchive_page_scrapes_total",
			Help: "Post page scrapes by result",
		}, []string{"result"}),
		storeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "twarchive_store_records",
			Help: "Records currently held in memory",
		}),
	}

	reg.MustRegister(
		c.cycles,
		c.cycleDuration,
		c.postsAdded,
		c.postsDuplicate,
		c.timelineStatus,
		c.media,
		c.scrapes,
		c.storeSize,
	)

	return c
}

func (c *Collector) RecordCycle(added, duplicates int, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.cycles.WithLabelValues(result).Inc()
	c.cycleDuration.Observe(elapsed.Seconds())
	c.postsAdded.Add(float64(added))
	c.postsDuplicate.Add(float64(duplicates))
}

func (c *Collector) RecordTimelineStatus(statusCode int) {
	c.timelineStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func (c *Collector) RecordMedia(kind, outcome string) {
	c.media.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) RecordScrape(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.scrapes.WithLabelValues(result).Inc()
}

func (c *Collector) SetStoreSize(n int) {
	c.storeSize.Set(float64(n))
}

// Handler returns the Prometheus scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop returns a Recorder that discards everything
func Nop() Recorder { return nopRecorder{} }

type nopRecorder struct{}

func (nopRecorder) RecordCycle(int, int, time.Duration, error) {}
func (nopRecorder) RecordTimelineStatus(int)                   {}
func (nopRecorder) RecordMedia(string, string)                 {}
func (nopRecorder) RecordScrape(bool)                          {}
func (nopRecorder) SetStoreSize(int)                           {}
