// Package storage writes finished crawl graphs to disk.
package storage

import (
	"time"

	"github.com/alvmarrod/link-weaver/internal/graph"
)

// Exporter persists a graph snapshot
type Exporter interface {
	Export(snap graph.Snapshot) error
}

// Metrics tracks crawl statistics for export on exit
type Metrics struct {
	RunID             string    `json:"run_id"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	TasksReceived     int       `json:"tasks_received"`
	TasksQueued       int       `json:"tasks_queued"`
	PagesFetched      int       `json:"pages_fetched"`
	PagesFiltered     int       `json:"pages_filtered"`
	PagesSkipped      int       `json:"pages_skipped"`
	PagesFailed       int       `json:"pages_failed"`
	IdlePolls         int       `json:"idle_polls"`
	PagesRegistered   int       `json:"pages_registered"`
	LinksRecorded     int       `json:"links_recorded"`
	TotalFetchTimeMs  int64     `json:"total_fetch_time_ms"`
	AvgFetchTimeMs    int64     `json:"avg_fetch_time_ms"`
	TerminationReason string    `json:"termination_reason"`
}
