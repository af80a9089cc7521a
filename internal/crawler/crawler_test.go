package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvmarrod/link-weaver/internal/config"
	"github.com/alvmarrod/link-weaver/internal/extractor"
	"github.com/alvmarrod/link-weaver/internal/fetcher"
	"github.com/alvmarrod/link-weaver/internal/graph"
	"github.com/alvmarrod/link-weaver/internal/metrics"
)

const site = "https://en.wikipedia.org"

func wiki(name string) string {
	return site + "/wiki/" + name
}

// fakeSite serves pages from memory. Each page lists hrefs inside #bodyContent.
type fakeSite struct {
	mu      sync.Mutex
	pages   map[string][]string
	bodies  map[string]string
	fail    map[string]error
	fetches map[string]int
	delay   time.Duration
	gate    map[string]chan struct{}
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:   make(map[string][]string),
		bodies:  make(map[string]string),
		fail:    make(map[string]error),
		fetches: make(map[string]int),
		gate:    make(map[string]chan struct{}),
	}
}

func (s *fakeSite) page(name string, hrefs ...string) *fakeSite {
	s.pages[wiki(name)] = hrefs
	return s
}

func (s *fakeSite) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	s.fetches[url]++
	hrefs, ok := s.pages[url]
	body, raw := s.bodies[url]
	err := s.fail[url]
	gate := s.gate[url]
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if err != nil {
		return nil, err
	}
	if raw {
		return []byte(body), nil
	}
	if !ok {
		return nil, fmt.Errorf("status 404: %s", url)
	}

	var b strings.Builder
	b.WriteString(`<html><body><div id="bodyContent">`)
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, h)
	}
	b.WriteString(`</div></body></html>`)
	return []byte(b.String()), nil
}

func (s *fakeSite) fetchCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[url]
}

func testConfig(seed string, depth, workers int) *config.Config {
	return &config.Config{
		SeedURL:         seed,
		Depth:           depth,
		Workers:         workers,
		ContentSelector: extractor.DefaultContentSelector,
		ContentPrefix:   "/wiki/",
		ReservedPrefix:  "/w",
		IdleBackoff:     time.Millisecond,
	}
}

func runCrawl(t *testing.T, cfg *config.Config, f fetcher.Fetcher, opts ...Option) (*Crawler, *graph.MemoryGraph, error) {
	t.Helper()

	logger, _ := logtest.NewNullLogger()
	store := graph.NewMemoryGraph()
	opts = append([]Option{WithLogger(logger)}, opts...)
	c, err := NewCrawler(cfg, store, f, extractor.New(cfg.ContentSelector), opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c, store, c.Run(ctx)
}

// named maps the snapshot back to URLs for readable assertions
func named(snap graph.Snapshot) (map[string]graph.ID, [][2]string) {
	ids := make(map[string]graph.ID)
	urls := make(map[graph.ID]string)
	for _, p := range snap.Pages {
		ids[p.URL] = p.ID
		urls[p.ID] = p.URL
	}
	var links [][2]string
	for _, l := range snap.Links {
		links = append(links, [2]string{urls[l.Source], urls[l.Target]})
	}
	return ids, links
}

func assertQuiescent(t *testing.T, c *Crawler) {
	t.Helper()
	assert.Zero(t, c.Pending(), "queue must be empty at termination")
	for i, idle := range c.IdleFlags() {
		assert.True(t, idle, "worker %d not idle at termination", i)
	}
}

func TestCrawlDepthOneSkipsExternal(t *testing.T) {
	t.Parallel()

	s := newFakeSite().
		page("A", "/wiki/B", "https://example.org/X").
		page("B", "/wiki/C")

	c, store, err := runCrawl(t, testConfig(wiki("A"), 1, 2), s)
	require.NoError(t, err)

	ids, links := named(store.Snapshot())
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, wiki("A"))
	assert.Contains(t, ids, wiki("B"))
	assert.NotEqual(t, ids[wiki("A")], ids[wiki("B")])
	assert.Equal(t, [][2]string{{wiki("A"), wiki("B")}}, links)

	assert.Zero(t, s.fetchCount(wiki("B")), "depth exhausted, B must not be fetched")
	assertQuiescent(t, c)
}

func TestCrawlKeepExternal(t *testing.T) {
	t.Parallel()

	s := newFakeSite().
		page("A", "/wiki/B", "https://example.org/X").
		page("B")
	cfg := testConfig(wiki("A"), 3, 2)
	cfg.KeepExternalLinks = true

	_, store, err := runCrawl(t, cfg, s)
	require.NoError(t, err)

	ids, _ := named(store.Snapshot())
	assert.Contains(t, ids, "https://example.org/X")
	assert.Zero(t, s.fetchCount("https://example.org/X"), "external links are never crawled")
}

func TestCrawlReciprocalPair(t *testing.T) {
	t.Parallel()

	s := newFakeSite().
		page("A", "/wiki/B").
		page("B", "/wiki/A")

	c, store, err := runCrawl(t, testConfig(wiki("A"), 2, 3), s)
	require.NoError(t, err)

	snap := store.Snapshot()
	ids, links := named(snap)
	assert.Len(t, ids, 2)
	assert.ElementsMatch(t, [][2]string{{wiki("A"), wiki("B")}, {wiki("B"), wiki("A")}}, links)

	undirected := graph.Undirected(snap)
	assert.Len(t, undirected.Pages, 2)
	assert.Len(t, undirected.Links, 2)
	assertQuiescent(t, c)
}

func TestCrawlCanonicalizesSeed(t *testing.T) {
	t.Parallel()

	for _, seed := range []string{
		"https://EN.wikipedia.org/wiki/A",
		"https://en.wikipedia.org/wiki/A#History",
		"HTTPS://en.Wikipedia.org/wiki/A#History",
	} {
		t.Run(seed, func(t *testing.T) {
			t.Parallel()

			s := newFakeSite().
				page("A", "/wiki/B").
				page("B", "/wiki/A", "https://en.wikipedia.org/wiki/A#See_also")

			c, store, err := runCrawl(t, testConfig(seed, 3, 2), s)
			require.NoError(t, err)

			ids, links := named(store.Snapshot())
			assert.Equal(t, map[string]graph.ID{wiki("A"): 0, wiki("B"): 1}, ids)
			assert.ElementsMatch(t, [][2]string{{wiki("A"), wiki("B")}, {wiki("B"), wiki("A")}}, links)
			assert.Equal(t, 1, s.fetchCount(wiki("A")), "the seed is crawled once")
			assertQuiescent(t, c)
		})
	}
}

func TestCrawlKeywordFilteredSeed(t *testing.T) {
	t.Parallel()

	s := newFakeSite().page("A", "/wiki/B")
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	c, store, err := runCrawl(t, testConfig(wiki("A"), 3, 4),
		fetcher.WithKeywords(s, []string{"dragon"}), WithLogger(logger))
	require.NoError(t, err)

	assert.Zero(t, store.Size())
	assert.Zero(t, store.LinkCount())
	assertQuiescent(t, c)

	var stopped bool
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, "have nothing to do") {
			stopped = true
		}
	}
	assert.True(t, stopped, "expected a quiescence log entry")
}

func TestCrawlRaceOnSharedTarget(t *testing.T) {
	t.Parallel()

	s := newFakeSite().
		page("S", "/wiki/A", "/wiki/B").
		page("A", "/wiki/C").
		page("B", "/wiki/C").
		page("C")

	// hold A and B until both are in flight
	releaseA := make(chan struct{})
	releaseB := make(chan struct{})
	s.gate[wiki("A")] = releaseA
	s.gate[wiki("B")] = releaseB
	go func() {
		for s.fetchCount(wiki("A")) == 0 || s.fetchCount(wiki("B")) == 0 {
			time.Sleep(time.Millisecond)
		}
		close(releaseA)
		close(releaseB)
	}()

	_, store, err := runCrawl(t, testConfig(wiki("S"), 3, 4), s)
	require.NoError(t, err)

	ids, links := named(store.Snapshot())
	assert.Len(t, ids, 4)
	assert.Contains(t, links, [2]string{wiki("A"), wiki("C")})
	assert.Contains(t, links, [2]string{wiki("B"), wiki("C")})
	assert.LessOrEqual(t, s.fetchCount(wiki("C")), 1, "C must be queued at most once")
}

func TestCrawlDepthBound(t *testing.T) {
	t.Parallel()

	s := newFakeSite().
		page("P0", "/wiki/P1").
		page("P1", "/wiki/P2").
		page("P2", "/wiki/P3").
		page("P3", "/wiki/P4")

	_, store, err := runCrawl(t, testConfig(wiki("P0"), 2, 2), s)
	require.NoError(t, err)

	ids, _ := named(store.Snapshot())
	assert.Len(t, ids, 3)
	assert.Contains(t, ids, wiki("P2"))
	assert.NotContains(t, ids, wiki("P3"))
	assert.Zero(t, s.fetchCount(wiki("P2")))
}

func TestCrawlSkipsPagesWithoutContent(t *testing.T) {
	t.Parallel()

	s := newFakeSite().
		page("A", "/wiki/B", "/wiki/C").
		page("C", "/wiki/Special:Random", "#top")
	s.bodies[wiki("B")] = `<html><body><p>no content div</p></body></html>`

	c, store, err := runCrawl(t, testConfig(wiki("A"), 3, 2), s)
	require.NoError(t, err)

	// B and C are registered as link targets even though neither yields links
	ids, links := named(store.Snapshot())
	assert.Len(t, ids, 3)
	assert.Len(t, links, 2)
	assertQuiescent(t, c)
}

func TestCrawlFetchErrorAborts(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	s := newFakeSite().
		page("A", "/wiki/B", "/wiki/C").
		page("C")
	s.fail[wiki("B")] = boom
	s.delay = 5 * time.Millisecond

	_, _, err := runCrawl(t, testConfig(wiki("A"), 2, 3), s)
	require.ErrorIs(t, err, boom)
}

func TestCrawlSkipFetchErrors(t *testing.T) {
	t.Parallel()

	s := newFakeSite().
		page("A", "/wiki/B", "/wiki/C").
		page("C", "/wiki/D").
		page("D")
	s.fail[wiki("B")] = errors.New("connection reset")

	cfg := testConfig(wiki("A"), 3, 3)
	cfg.SkipFetchErrors = true
	tracker := metrics.NewTracker()

	c, store, err := runCrawl(t, cfg, s, WithTracker(tracker))
	require.NoError(t, err)

	ids, _ := named(store.Snapshot())
	assert.Contains(t, ids, wiki("D"))
	assert.Equal(t, 1, tracker.GetSnapshot().PagesFailed)
	assertQuiescent(t, c)
}

func TestCrawlContextCanceled(t *testing.T) {
	t.Parallel()

	s := newFakeSite().page("A", "/wiki/B")
	s.gate[wiki("A")] = make(chan struct{}) // never released

	logger, _ := logtest.NewNullLogger()
	cfg := testConfig(wiki("A"), 2, 2)
	c, err := NewCrawler(cfg, graph.NewMemoryGraph(), s, extractor.New(cfg.ContentSelector), WithLogger(logger))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, c.Run(ctx), context.DeadlineExceeded)
	require.ErrorIs(t, c.Run(context.Background()), ErrAlreadyRun)
}

func TestNewCrawlerValidation(t *testing.T) {
	t.Parallel()

	s := newFakeSite()
	e := extractor.New("")

	_, err := NewCrawler(testConfig(wiki("A"), 1, 0), graph.NewMemoryGraph(), s, e)
	require.Error(t, err)
	_, err = NewCrawler(testConfig(wiki("A"), 0, 1), graph.NewMemoryGraph(), s, e)
	require.Error(t, err)
	_, err = NewCrawler(testConfig("/wiki/A", 1, 1), graph.NewMemoryGraph(), s, e)
	require.Error(t, err)
}

// randomSite builds n pages with a fixed fan-out of random internal links
func randomSite(n, fanout int, seed int64) *fakeSite {
	rng := rand.New(rand.NewSource(seed))
	s := newFakeSite()
	for i := 0; i < n; i++ {
		hrefs := make([]string, fanout)
		for j := range hrefs {
			hrefs[j] = fmt.Sprintf("/wiki/P%d", rng.Intn(n))
		}
		s.page(fmt.Sprintf("P%d", i), hrefs...)
	}
	return s
}

// reachable returns the pages within depth hops of seed
func reachable(s *fakeSite, seed string, depth int) map[string]bool {
	seen := map[string]bool{seed: true}
	frontier := []string{seed}
	for d := 0; d < depth; d++ {
		var next []string
		for _, u := range frontier {
			for _, h := range s.pages[u] {
				v := site + h
				if !seen[v] {
					seen[v] = true
					next = append(next, v)
				}
			}
		}
		frontier = next
	}
	return seen
}

func TestCrawlTerminatesForAnyWorkerCount(t *testing.T) {
	t.Parallel()

	const n = 150
	for _, workers := range []int{1, 2, 4, 8, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()

			s := randomSite(n, 4, int64(workers))
			seed := wiki("P0")

			// depth n cannot run out along any chain of first discoveries
			c, store, err := runCrawl(t, testConfig(seed, n, workers), s)
			require.NoError(t, err)
			assertQuiescent(t, c)

			want := reachable(s, seed, n)
			snap := store.Snapshot()
			require.Len(t, snap.Pages, len(want))

			seenIDs := make(map[graph.ID]bool)
			for _, p := range snap.Pages {
				assert.True(t, want[p.URL], "unexpected page %s", p.URL)
				assert.False(t, seenIDs[p.ID], "duplicate id %d", p.ID)
				seenIDs[p.ID] = true
				assert.LessOrEqual(t, s.fetchCount(p.URL), 1, "%s fetched more than once", p.URL)
			}
			for _, l := range snap.Links {
				assert.True(t, seenIDs[l.Source] && seenIDs[l.Target], "dangling link %v", l)
			}
		})
	}
}

func TestCrawlDepthBoundRandomGraph(t *testing.T) {
	t.Parallel()

	s := randomSite(300, 3, 42)
	seed := wiki("P0")
	const depth = 3

	_, store, err := runCrawl(t, testConfig(seed, depth, 6), s)
	require.NoError(t, err)

	within := reachable(s, seed, depth)
	for _, p := range store.Snapshot().Pages {
		assert.True(t, within[p.URL], "%s is farther than %d hops", p.URL, depth)
	}
}
