package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvmarrod/link-weaver/internal/graph"
)

func sampleSnapshot(t *testing.T) graph.Snapshot {
	t.Helper()

	g := graph.NewMemoryGraph()
	_, _, err := g.RecordPage("https://en.wikipedia.org/wiki/A", []string{
		"https://en.wikipedia.org/wiki/B",
		"https://en.wikipedia.org/wiki/C,_with_comma",
	})
	require.NoError(t, err)
	_, _, err = g.RecordPage("https://en.wikipedia.org/wiki/B", []string{"https://en.wikipedia.org/wiki/A"})
	require.NoError(t, err)
	return g.Snapshot()
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVExporter(t *testing.T) {
	t.Parallel()

	e := CSVExporter{Prefix: filepath.Join(t.TempDir(), "graph")}
	require.NoError(t, e.CheckOutput())
	require.NoError(t, e.Export(sampleSnapshot(t)))

	assert.Equal(t, [][]string{
		{"node_id", "url"},
		{"0", "https://en.wikipedia.org/wiki/A"},
		{"1", "https://en.wikipedia.org/wiki/B"},
		{"2", "https://en.wikipedia.org/wiki/C,_with_comma"},
	}, readCSV(t, e.NodesPath()))

	assert.Equal(t, [][]string{
		{"source", "target"},
		{"0", "1"},
		{"0", "2"},
		{"1", "0"},
	}, readCSV(t, e.EdgesPath()))
}

func TestCSVExporterRefusesOverwrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		existing func(e CSVExporter) string
	}{
		{name: "edges present", existing: func(e CSVExporter) string { return e.EdgesPath() }},
		{name: "nodes present", existing: func(e CSVExporter) string { return e.NodesPath() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := CSVExporter{Prefix: filepath.Join(t.TempDir(), "graph")}
			require.NoError(t, os.WriteFile(tt.existing(e), []byte("keep me"), 0o644))

			require.ErrorIs(t, e.CheckOutput(), ErrOutputExists)
			require.ErrorIs(t, e.Export(sampleSnapshot(t)), ErrOutputExists)

			data, err := os.ReadFile(tt.existing(e))
			require.NoError(t, err)
			assert.Equal(t, "keep me", string(data))
		})
	}
}

func TestSQLiteExportRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewStorage(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	defer store.Close()

	snap := sampleSnapshot(t)
	require.NoError(t, store.Export(snap))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	// a second export replaces the first one
	projected := graph.Undirected(snap)
	require.NoError(t, store.Export(projected))

	got, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, projected, got)
	assert.Len(t, got.Pages, 2)
	assert.Len(t, got.Links, 2)
}

func TestSQLiteExportRejectsDuplicateLinks(t *testing.T) {
	t.Parallel()

	store, err := NewStorage(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Export(sampleSnapshot(t)))

	bad := graph.Snapshot{
		Pages: []graph.Page{{ID: 0, URL: "a"}, {ID: 1, URL: "b"}},
		Links: []graph.Link{{Source: 0, Target: 1}, {Source: 0, Target: 1}},
	}
	require.Error(t, store.Export(bad))

	// the failed export rolled back
	got, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, got.Pages, 3)
}
