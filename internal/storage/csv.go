package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/alvmarrod/link-weaver/internal/graph"
)

// ErrOutputExists is returned instead of overwriting a previous export
var ErrOutputExists = errors.New("output file already exists")

// CSVExporter writes <prefix>_nodes.csv and <prefix>_edges.csv
type CSVExporter struct {
	Prefix string
}

// NodesPath returns the path of the page table
func (e CSVExporter) NodesPath() string {
	return e.Prefix + "_nodes.csv"
}

// EdgesPath returns the path of the link table
func (e CSVExporter) EdgesPath() string {
	return e.Prefix + "_edges.csv"
}

// CheckOutput fails if either output file is already present. Run it before
// crawling so a long crawl does not end in a refused write.
func (e CSVExporter) CheckOutput() error {
	for _, path := range []string{e.EdgesPath(), e.NodesPath()} {
		_, err := os.Stat(path)
		if err == nil {
			return fmt.Errorf("%s: %w; delete it and run again to reuse that path", path, ErrOutputExists)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to check %s: %w", path, err)
		}
	}
	return nil
}

// Export writes both tables. Files are created exclusively.
func (e CSVExporter) Export(snap graph.Snapshot) error {
	if err := e.CheckOutput(); err != nil {
		return err
	}

	nodes := make([][]string, 0, len(snap.Pages))
	for _, p := range snap.Pages {
		nodes = append(nodes, []string{strconv.FormatUint(uint64(p.ID), 10), p.URL})
	}
	if err := writeCSV(e.NodesPath(), []string{"node_id", "url"}, nodes); err != nil {
		return err
	}

	edges := make([][]string, 0, len(snap.Links))
	for _, l := range snap.Links {
		edges = append(edges, []string{
			strconv.FormatUint(uint64(l.Source), 10),
			strconv.FormatUint(uint64(l.Target), 10),
		})
	}
	return writeCSV(e.EdgesPath(), []string{"source", "target"}, edges)
}

func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", path, ErrOutputExists)
		}
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}
