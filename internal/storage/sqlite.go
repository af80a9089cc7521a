package storage

import (
	"database/sql"
	"fmt"

	"github.com/alvmarrod/link-weaver/internal/graph"
	_ "github.com/mattn/go-sqlite3"
)

// Storage writes crawl graphs into a SQLite database
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pages (
		node_id INTEGER PRIMARY KEY,
		url TEXT UNIQUE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS links (
		source INTEGER NOT NULL,
		target INTEGER NOT NULL,
		FOREIGN KEY (source) REFERENCES pages(node_id),
		FOREIGN KEY (target) REFERENCES pages(node_id),
		UNIQUE(source, target)
	);

	CREATE INDEX IF NOT EXISTS idx_links_source ON links(source);
	CREATE INDEX IF NOT EXISTS idx_links_target ON links(target);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Export replaces the stored graph with snap in a single transaction
func (s *Storage) Export(snap graph.Snapshot) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec("DELETE FROM links"); err != nil {
		return fmt.Errorf("failed to clear links: %w", err)
	}
	if _, err = tx.Exec("DELETE FROM pages"); err != nil {
		return fmt.Errorf("failed to clear pages: %w", err)
	}

	pageStmt, err := tx.Prepare("INSERT INTO pages (node_id, url) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer pageStmt.Close()

	for _, p := range snap.Pages {
		if _, err = pageStmt.Exec(int64(p.ID), p.URL); err != nil {
			return fmt.Errorf("failed to insert page %d: %w", p.ID, err)
		}
	}

	linkStmt, err := tx.Prepare("INSERT INTO links (source, target) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare link insert: %w", err)
	}
	defer linkStmt.Close()

	for _, l := range snap.Links {
		if _, err = linkStmt.Exec(int64(l.Source), int64(l.Target)); err != nil {
			return fmt.Errorf("failed to insert link %d->%d: %w", l.Source, l.Target, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit export: %w", err)
	}
	return nil
}

// Load reads the stored graph back, sorted like graph.Snapshot
func (s *Storage) Load() (graph.Snapshot, error) {
	var snap graph.Snapshot

	rows, err := s.db.Query("SELECT node_id, url FROM pages ORDER BY node_id ASC")
	if err != nil {
		return snap, fmt.Errorf("failed to load pages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var p graph.Page
		if err := rows.Scan(&id, &p.URL); err != nil {
			return snap, fmt.Errorf("failed to scan page: %w", err)
		}
		p.ID = graph.ID(id)
		snap.Pages = append(snap.Pages, p)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("error iterating pages: %w", err)
	}

	linkRows, err := s.db.Query("SELECT source, target FROM links ORDER BY source ASC, target ASC")
	if err != nil {
		return snap, fmt.Errorf("failed to load links: %w", err)
	}
	defer linkRows.Close()

	for linkRows.Next() {
		var source, target int64
		if err := linkRows.Scan(&source, &target); err != nil {
			return snap, fmt.Errorf("failed to scan link: %w", err)
		}
		snap.Links = append(snap.Links, graph.Link{Source: graph.ID(source), Target: graph.ID(target)})
	}
	if err := linkRows.Err(); err != nil {
		return snap, fmt.Errorf("error iterating links: %w", err)
	}

	return snap, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
