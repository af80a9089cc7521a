package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/link-weaver/internal/config"
	"github.com/alvmarrod/link-weaver/internal/crawler"
	"github.com/alvmarrod/link-weaver/internal/extractor"
	"github.com/alvmarrod/link-weaver/internal/fetcher"
	"github.com/alvmarrod/link-weaver/internal/graph"
	"github.com/alvmarrod/link-weaver/internal/metrics"
	"github.com/alvmarrod/link-weaver/internal/storage"
	"github.com/alvmarrod/link-weaver/internal/version"
)

const progressInterval = 10 * time.Second

// termination reasons written to the metrics summary
const (
	reasonQuiescent = "quiescent"
	reasonSignal    = "signal"
	reasonError     = "error"
)

// runCrawl crawls from the configured seed and exports the resulting graph.
// An interrupted crawl still exports what it found; a failed one does not.
func runCrawl(ctx context.Context, out io.Writer, cfg *config.Config) error {
	logrus.Infof("Link Weaver %s starting...", version.String())
	logrus.Infof("Configuration loaded: seed=%s, depth=%d, workers=%d",
		cfg.SeedURL, cfg.Depth, cfg.Workers)

	// fail before crawling rather than after
	var exporters []storage.Exporter
	if cfg.OutputPrefix != "" {
		csvOut := storage.CSVExporter{Prefix: cfg.OutputPrefix}
		if err := csvOut.CheckOutput(); err != nil {
			return err
		}
		exporters = append(exporters, csvOut)
	}
	if cfg.DBPath != "" {
		db, err := storage.NewStorage(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer db.Close()
		logrus.Infof("Database initialized: %s", cfg.DBPath)
		exporters = append(exporters, db)
	}

	store := graph.NewMemoryGraph()
	tracker := metrics.NewTracker()
	tracker.WatchGraph(store)
	logrus.Infof("Crawl run %s", tracker.RunID())

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, tracker)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logrus.Errorf("Metrics server shutdown failed: %v", err)
			}
		}()
	}

	f := fetcher.WithKeywords(fetcher.NewCollyFetcher(fetcher.Config{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.RequestTimeout,
	}), cfg.Keywords)

	c, err := crawler.NewCrawler(cfg, store, f, extractor.New(cfg.ContentSelector),
		crawler.WithTracker(tracker),
		crawler.WithLogger(logrus.StandardLogger()),
	)
	if err != nil {
		return err
	}

	stopProgress := logProgress(tracker, progressInterval)
	crawlErr := c.Run(ctx)
	stopProgress()

	reason := terminationReason(ctx, crawlErr)
	if reason == reasonSignal {
		logrus.Warn("Crawl interrupted, exporting the partial graph")
	}

	logrus.Info("Final stats: " + tracker.LogProgress())
	if cfg.MetricsPath != "" {
		if err := tracker.WriteToFile(cfg.MetricsPath, reason); err != nil {
			logrus.Errorf("Failed to write metrics: %v", err)
		} else {
			logrus.Infof("Metrics written to %s", cfg.MetricsPath)
		}
	}
	if reason == reasonError {
		return fmt.Errorf("crawl failed: %w", crawlErr)
	}

	snap := store.Snapshot()
	if cfg.Undirected {
		snap = graph.Undirected(snap)
		logrus.Infof("Undirected projection keeps %d pages and %d links", len(snap.Pages), len(snap.Links))
	}

	if len(exporters) == 0 {
		fmt.Fprintf(out, "Found %d pages and %d links\n", len(snap.Pages), len(snap.Links))
		return nil
	}
	for _, e := range exporters {
		if err := e.Export(snap); err != nil {
			return fmt.Errorf("failed to export graph: %w", err)
		}
	}
	logrus.Infof("Exported %d pages and %d links", len(snap.Pages), len(snap.Links))
	return nil
}

// terminationReason classifies how Run ended. Only cancellation of ctx itself
// counts as a signal; a worker error wrapping context.Canceled is an error.
func terminationReason(ctx context.Context, crawlErr error) string {
	switch {
	case crawlErr == nil:
		return reasonQuiescent
	case ctx.Err() != nil:
		return reasonSignal
	default:
		return reasonError
	}
}

// serveMetrics starts the metrics HTTP server in the background
func serveMetrics(addr string, tracker *metrics.Tracker) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.NewRouter(tracker),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logrus.Infof("Serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("Metrics server error: %v", err)
		}
	}()
	return srv
}

// logProgress logs tracker progress every interval until the returned
// function is called
func logProgress(tracker *metrics.Tracker, interval time.Duration) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logrus.Info(tracker.LogProgress())
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}
