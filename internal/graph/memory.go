package graph

import (
	"fmt"
	"sync"
)

// MemoryGraph holds the crawl graph in memory. A single mutex guards the
// registry and the link set together so that a page and its outbound links
// become visible to other workers at the same time.
type MemoryGraph struct {
	mu    sync.RWMutex
	pages map[string]ID // url -> id
	urls  map[ID]string // id -> url
	links map[Link]struct{}
}

// NewMemoryGraph creates an empty in-memory graph
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		pages: make(map[string]ID),
		urls:  make(map[ID]string),
		links: make(map[Link]struct{}),
	}
}

var _ Store = (*MemoryGraph)(nil)

// RegisterPage returns the id of url, assigning a new one if needed
func (mg *MemoryGraph) RegisterPage(url string) (ID, error) {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	id, _, err := mg.register(url)
	return id, err
}

// AddLink inserts source->target if absent
func (mg *MemoryGraph) AddLink(source, target ID) (bool, error) {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	if _, ok := mg.urls[source]; !ok {
		return false, fmt.Errorf("source %d: %w", source, ErrUnknownPage)
	}
	if _, ok := mg.urls[target]; !ok {
		return false, fmt.Errorf("target %d: %w", target, ErrUnknownPage)
	}
	return mg.link(source, target), nil
}

// RecordPage registers url and its anchors and records url->anchor for each
// anchor while holding the lock for the whole page.
func (mg *MemoryGraph) RecordPage(url string, anchors []string) (ID, []string, error) {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	sourceID, _, err := mg.register(url)
	if err != nil {
		return 0, nil, err
	}

	var discovered []string
	for _, anchor := range anchors {
		targetID, fresh, err := mg.register(anchor)
		if err != nil {
			return sourceID, discovered, err
		}

		added := mg.link(sourceID, targetID)
		if !fresh {
			continue
		}
		// A page registered just now cannot have inbound links yet.
		if !added {
			return sourceID, discovered, fmt.Errorf("%d -> %d (%s): %w", sourceID, targetID, anchor, ErrDuplicateLink)
		}
		discovered = append(discovered, anchor)
	}

	return sourceID, discovered, nil
}

// Size returns the number of registered pages
func (mg *MemoryGraph) Size() int {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	return len(mg.pages)
}

// LinkCount returns the number of distinct links
func (mg *MemoryGraph) LinkCount() int {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	return len(mg.links)
}

// Snapshot returns a sorted copy of all pages and links
func (mg *MemoryGraph) Snapshot() Snapshot {
	mg.mu.RLock()
	defer mg.mu.RUnlock()

	snap := Snapshot{
		Pages: make([]Page, 0, len(mg.pages)),
		Links: make([]Link, 0, len(mg.links)),
	}
	for url, id := range mg.pages {
		snap.Pages = append(snap.Pages, Page{ID: id, URL: url})
	}
	for l := range mg.links {
		snap.Links = append(snap.Links, l)
	}
	sortPages(snap.Pages)
	sortLinks(snap.Links)
	return snap
}

// register must be called with mu held. The new id is the registry size at
// insertion time.
func (mg *MemoryGraph) register(url string) (ID, bool, error) {
	if id, ok := mg.pages[url]; ok {
		return id, false, nil
	}

	id := ID(len(mg.pages))
	if prev, taken := mg.urls[id]; taken {
		return 0, false, fmt.Errorf("id %d for %s held by %s: %w", id, url, prev, ErrDuplicatePage)
	}

	mg.pages[url] = id
	mg.urls[id] = url
	return id, true, nil
}

// link must be called with mu held
func (mg *MemoryGraph) link(source, target ID) bool {
	l := Link{Source: source, Target: target}
	if _, ok := mg.links[l]; ok {
		return false
	}
	mg.links[l] = struct{}{}
	return true
}
