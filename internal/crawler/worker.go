package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/link-weaver/internal/extractor"
	"github.com/alvmarrod/link-weaver/internal/fetcher"
)

type worker struct {
	id      int
	crawler *Crawler
	log     logrus.FieldLogger
}

// run polls for tasks until the pool is quiescent, ctx ends or a task fails
func (w *worker) run(ctx context.Context) error {
	c := w.crawler
	w.log.Debug("Worker started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		task, state, idle := c.coord.Poll(w.id)
		switch state {
		case PollTask:
			if c.tracker != nil {
				c.tracker.IncrementTasksReceived()
			}
			w.log.Infof("Scraping %s with depth: %d", task.URL, task.Depth)
			if err := w.process(ctx, task); err != nil {
				return err
			}

		case PollQuiescent:
			w.log.Infof("All %d workers have nothing to do. Stopping", idle)
			return nil

		default:
			if c.tracker != nil {
				c.tracker.IncrementIdlePolls()
			}
			w.log.Debugf("%d workers stuck with nothing to do, sleeping %v", idle, c.cfg.IdleBackoff)

			timer := time.NewTimer(c.cfg.IdleBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// process crawls one page and queues its newly discovered internal links
func (w *worker) process(ctx context.Context, task Task) error {
	c := w.crawler

	start := time.Now()
	content, err := c.fetcher.Fetch(ctx, task.URL)
	if c.tracker != nil {
		c.tracker.RecordFetchTime(time.Since(start))
	}
	switch {
	case errors.Is(err, fetcher.ErrFiltered):
		if c.tracker != nil {
			c.tracker.IncrementPagesFiltered()
		}
		w.log.Infof("Skipping %s: no keyword matched", task.URL)
		return nil
	case err != nil && c.cfg.SkipFetchErrors && ctx.Err() == nil:
		if c.tracker != nil {
			c.tracker.IncrementPagesFailed()
		}
		w.log.Warnf("Skipping %s: %v", task.URL, err)
		return nil
	case err != nil:
		if c.tracker != nil {
			c.tracker.IncrementPagesFailed()
		}
		return fmt.Errorf("worker %d: %w", w.id, err)
	}
	if c.tracker != nil {
		c.tracker.IncrementPagesFetched()
	}

	raw, err := c.extractor.ExtractAnchors(content)
	if errors.Is(err, extractor.ErrNoContent) {
		if c.tracker != nil {
			c.tracker.IncrementPagesSkipped()
		}
		w.log.Infof("Skipping %s: %v", task.URL, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("worker %d: extract anchors from %s: %w", w.id, task.URL, err)
	}

	anchors := make([]string, 0, len(raw))
	for _, href := range raw {
		if u, ok := c.normalizer.Normalize(href); ok {
			anchors = append(anchors, u)
		}
	}
	if len(anchors) == 0 {
		if c.tracker != nil {
			c.tracker.IncrementPagesSkipped()
		}
		w.log.Infof("No links found in page %s", task.URL)
		return nil
	}

	sourceID, discovered, err := c.store.RecordPage(task.URL, anchors)
	if err != nil {
		return fmt.Errorf("worker %d: record %s: %w", w.id, task.URL, err)
	}
	w.log.Debugf("Recorded %s as %d with %d anchors, %d new", task.URL, sourceID, len(anchors), len(discovered))

	if task.Depth <= 1 {
		return nil
	}
	for _, anchor := range discovered {
		if !c.normalizer.IsInternal(anchor) {
			continue
		}
		next := Task{URL: anchor, Depth: task.Depth - 1}
		if err := c.queue.Push(next); err != nil {
			return fmt.Errorf("worker %d: enqueue %s: %w", w.id, anchor, err)
		}
		if c.tracker != nil {
			c.tracker.IncrementTasksQueued()
		}
		w.log.Debugf("Adding %s to the queue with depth: %d", anchor, next.Depth)
	}

	return nil
}
