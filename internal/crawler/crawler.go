// Package crawler runs a pool of workers over a shared task queue and merges
// the links they find into one graph.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alvmarrod/link-weaver/internal/config"
	"github.com/alvmarrod/link-weaver/internal/extractor"
	"github.com/alvmarrod/link-weaver/internal/fetcher"
	"github.com/alvmarrod/link-weaver/internal/graph"
	"github.com/alvmarrod/link-weaver/internal/metrics"
)

// ErrAlreadyRun is returned by a second call to Run
var ErrAlreadyRun = errors.New("crawler already ran")

// Crawler orchestrates the crawl: it seeds the queue, starts the workers and
// waits for them to agree that no work is left.
type Crawler struct {
	cfg        *config.Config
	store      graph.Store
	fetcher    fetcher.Fetcher
	extractor  extractor.Extractor
	normalizer *Normalizer
	seed       string
	queue      *Queue
	coord      *Coordinator
	tracker    *metrics.Tracker
	log        logrus.FieldLogger
	started    atomic.Bool
}

// Option configures a Crawler
type Option func(*Crawler)

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Crawler) {
		c.log = log
	}
}

// WithTracker reports crawl progress to t
func WithTracker(t *metrics.Tracker) Option {
	return func(c *Crawler) {
		c.tracker = t
	}
}

// NewCrawler creates a new crawler instance
func NewCrawler(cfg *config.Config, store graph.Store, f fetcher.Fetcher, e extractor.Extractor, opts ...Option) (*Crawler, error) {
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be >= 1, got %d", cfg.Workers)
	}
	if cfg.Depth < 1 {
		return nil, fmt.Errorf("depth must be >= 1, got %d", cfg.Depth)
	}

	normalizer, err := NewNormalizer(cfg.SeedURL, cfg.ContentPrefix, cfg.ReservedPrefix, cfg.KeepExternalLinks)
	if err != nil {
		return nil, err
	}
	seed, err := normalizer.Canonical(cfg.SeedURL)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	queue := NewQueue()
	c := &Crawler{
		cfg:        cfg,
		store:      store,
		fetcher:    f,
		extractor:  e,
		normalizer: normalizer,
		seed:       seed,
		queue:      queue,
		coord:      NewCoordinator(queue, cfg.Workers),
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Run crawls from the seed until the pool is quiescent or a worker fails.
// The first worker error cancels the others and is returned.
func (c *Crawler) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	if err := c.queue.Push(Task{URL: c.seed, Depth: c.cfg.Depth}); err != nil {
		return fmt.Errorf("failed to enqueue seed: %w", err)
	}

	c.log.Infof("Starting %d crawler workers (seed=%s, depth=%d)", c.cfg.Workers, c.seed, c.cfg.Depth)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Workers; i++ {
		w := &worker{
			id:      i,
			crawler: c,
			log:     c.log.WithField("worker", i),
		}
		g.Go(func() error {
			return w.run(ctx)
		})
	}

	err := g.Wait()
	// Nobody polls anymore; a late push would be lost work.
	c.queue.Close()

	if err != nil {
		c.log.Errorf("Crawl aborted after %v: %v", time.Since(start).Round(time.Millisecond), err)
		return err
	}

	c.log.Infof("Crawl finished in %v: %d pages, %d links",
		time.Since(start).Round(time.Millisecond), c.store.Size(), c.store.LinkCount())
	return nil
}

// Graph returns the store the workers write into
func (c *Crawler) Graph() graph.Store {
	return c.store
}

// Pending returns the number of queued tasks
func (c *Crawler) Pending() int {
	return c.queue.Size()
}

// IdleFlags returns a copy of the workers' idle flags
func (c *Crawler) IdleFlags() []bool {
	return c.coord.Flags()
}
