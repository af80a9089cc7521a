// Package fetcher downloads page content for the crawler.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

// ErrFiltered means the page was fetched but does not qualify for the crawl.
// It is an outcome, not a failure.
var ErrFiltered = errors.New("page filtered out")

// Fetcher returns the raw content of a page
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Config controls collector behavior
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

// CollyFetcher fetches pages with a colly collector. Every fetch runs on a
// clone of the base collector so concurrent workers do not share callbacks.
type CollyFetcher struct {
	base *colly.Collector
}

// NewCollyFetcher builds a fetcher from cfg
func NewCollyFetcher(cfg Config) *CollyFetcher {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(), // filtered pages may be fetched again from another branch
		colly.IgnoreRobotsTxt(),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	c.SetRequestTimeout(timeout)

	return &CollyFetcher{base: c}
}

// Fetch performs a single GET. Transport errors and non-2xx responses are
// returned as errors.
func (f *CollyFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		body     []byte
		fetchErr error
	)

	collector := f.base.Clone()
	collector.Context = ctx
	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	visitErr := collector.Visit(url)
	collector.Wait()

	// OnError carries the status code, so prefer it over the Visit error.
	if fetchErr == nil {
		fetchErr = visitErr
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	return body, nil
}
