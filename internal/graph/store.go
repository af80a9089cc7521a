// Package graph holds the crawl graph: a registry assigning one identifier
// per canonical page URL and a deduplicated set of directed links between
// those identifiers.
package graph

import (
	"errors"
	"sort"
)

// ID identifies a registered page. IDs are unique per URL and never reused.
type ID uint64

var (
	// ErrDuplicatePage means a fresh identifier collided with one already
	// handed out. The registry is corrupt and the crawl must stop.
	ErrDuplicatePage = errors.New("page identifier already assigned")

	// ErrDuplicateLink means a link from a page to a page registered in the
	// same step was already present.
	ErrDuplicateLink = errors.New("link already recorded for new page")

	// ErrUnknownPage is returned when a link references an unregistered id.
	ErrUnknownPage = errors.New("page not registered")
)

// Page is a registry entry.
type Page struct {
	ID  ID
	URL string
}

// Link is a directed edge between two registered pages.
type Link struct {
	Source ID
	Target ID
}

// Store is the shared graph all workers write into.
type Store interface {
	// RegisterPage returns the id of url, assigning a fresh one on first sight.
	RegisterPage(url string) (ID, error)

	// AddLink records source->target. Recording an existing link is a no-op
	// and reports false.
	AddLink(source, target ID) (bool, error)

	// RecordPage registers url and every anchor and links url to each anchor
	// in one critical section. It returns the id of url and the anchors that
	// were registered for the first time by this call, in input order.
	RecordPage(url string, anchors []string) (ID, []string, error)

	// Size is the number of registered pages.
	Size() int

	// LinkCount is the number of distinct links.
	LinkCount() int

	// Snapshot copies the current graph.
	Snapshot() Snapshot
}

// Snapshot is an immutable copy of a graph, sorted by id and by link.
type Snapshot struct {
	Pages []Page
	Links []Link
}

// HasLink reports whether the snapshot contains source->target.
func (s Snapshot) HasLink(source, target ID) bool {
	i := sort.Search(len(s.Links), func(i int) bool {
		return !linkLess(s.Links[i], Link{Source: source, Target: target})
	})
	return i < len(s.Links) && s.Links[i] == Link{Source: source, Target: target}
}

func sortPages(pages []Page) {
	sort.Slice(pages, func(i, j int) bool { return pages[i].ID < pages[j].ID })
}

func sortLinks(links []Link) {
	sort.Slice(links, func(i, j int) bool { return linkLess(links[i], links[j]) })
}

func linkLess(a, b Link) bool {
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return a.Target < b.Target
}
