// Package metrics tracks crawl progress. Counters are kept both in a plain
// struct, exported as a JSON summary when the crawl ends, and in Prometheus
// collectors on a private registry.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alvmarrod/link-weaver/internal/storage"
)

// GraphSizer reports the size of the crawl graph
type GraphSizer interface {
	Size() int
	LinkCount() int
}

// Tracker holds and manages crawl metrics
type Tracker struct {
	mu               sync.Mutex
	data             storage.Metrics
	totalFetchTimeMs int64
	fetchCount       int
	graph            GraphSizer

	registry *prometheus.Registry
	tasks    *prometheus.CounterVec
	pages    *prometheus.CounterVec
	idle     prometheus.Counter
	fetch    prometheus.Histogram
}

// NewTracker creates a new metrics tracker
func NewTracker() *Tracker {
	t := &Tracker{
		data: storage.Metrics{
			RunID:     uuid.NewString(),
			StartTime: time.Now(),
		},
		registry: prometheus.NewRegistry(),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkweaver_tasks_total",
			Help: "Crawl tasks, labeled by event (received, queued).",
		}, []string{"event"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkweaver_pages_total",
			Help: "Fetched pages, labeled by outcome (fetched, filtered, skipped, failed).",
		}, []string{"outcome"}),
		idle: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkweaver_idle_polls_total",
			Help: "Polls that found the task queue empty.",
		}),
		fetch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkweaver_fetch_duration_seconds",
			Help:    "Page fetch latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
	}
	t.registry.MustRegister(t.tasks, t.pages, t.idle, t.fetch)
	return t
}

// RunID identifies this crawl in logs and the JSON summary
func (t *Tracker) RunID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.RunID
}

// WatchGraph exposes the size of g as gauges and in the JSON summary
func (t *Tracker) WatchGraph(g GraphSizer) {
	t.mu.Lock()
	t.graph = g
	t.mu.Unlock()

	t.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "linkweaver_graph_pages",
			Help: "Pages registered in the crawl graph.",
		}, func() float64 { return float64(g.Size()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "linkweaver_graph_links",
			Help: "Distinct links recorded in the crawl graph.",
		}, func() float64 { return float64(g.LinkCount()) }),
	)
}

// IncrementTasksReceived counts a task handed to a worker
func (t *Tracker) IncrementTasksReceived() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.TasksReceived++
	t.tasks.WithLabelValues("received").Inc()
}

// IncrementTasksQueued counts a follow-on task
func (t *Tracker) IncrementTasksQueued() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.TasksQueued++
	t.tasks.WithLabelValues("queued").Inc()
}

// IncrementPagesFetched increments the successful fetch counter
func (t *Tracker) IncrementPagesFetched() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PagesFetched++
	t.pages.WithLabelValues("fetched").Inc()
}

// IncrementPagesFiltered counts pages rejected by the keyword filter
func (t *Tracker) IncrementPagesFiltered() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PagesFiltered++
	t.pages.WithLabelValues("filtered").Inc()
}

// IncrementPagesSkipped counts pages without content or usable anchors
func (t *Tracker) IncrementPagesSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PagesSkipped++
	t.pages.WithLabelValues("skipped").Inc()
}

// IncrementPagesFailed increments the failed fetch counter
func (t *Tracker) IncrementPagesFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PagesFailed++
	t.pages.WithLabelValues("failed").Inc()
}

// IncrementIdlePolls counts a poll that found nothing to do
func (t *Tracker) IncrementIdlePolls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.IdlePolls++
	t.idle.Inc()
}

// RecordFetchTime records a page fetch duration
func (t *Tracker) RecordFetchTime(duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalFetchTimeMs += duration.Milliseconds()
	t.fetchCount++
	t.fetch.Observe(duration.Seconds())
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data
	t.fillLocked(&snapshot)
	return snapshot
}

func (t *Tracker) fillLocked(m *storage.Metrics) {
	m.TotalFetchTimeMs = t.totalFetchTimeMs
	if t.fetchCount > 0 {
		m.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}
	if t.graph != nil {
		m.PagesRegistered = t.graph.Size()
		m.LinksRecorded = t.graph.LinkCount()
	}
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	t.fillLocked(&t.data)

	jsonData, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0o644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress formats current metrics for periodic progress logs
func (t *Tracker) LogProgress() string {
	snap := t.GetSnapshot()
	return fmt.Sprintf("Pages: %d registered, %d fetched, %d filtered, %d skipped, %d failed | Links: %d | Tasks: %d received, %d queued",
		snap.PagesRegistered,
		snap.PagesFetched,
		snap.PagesFiltered,
		snap.PagesSkipped,
		snap.PagesFailed,
		snap.LinksRecorded,
		snap.TasksReceived,
		snap.TasksQueued,
	)
}

// Registry returns the Prometheus registry holding the tracker's collectors
func (t *Tracker) Registry() *prometheus.Registry {
	return t.registry
}

// Handler serves the tracker's collectors in the Prometheus text format
func (t *Tracker) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}
