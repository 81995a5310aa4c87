// Package index implements the derived, rebuildable SQLite-backed lookup
// store (spec §4.4, C4): snapshot cache, lookups by isolate id, taxid,
// acronym, name and id prefix, and the otu_updates audit table. Sequence
// rows hold the sequence text for snapshot loads; there is no lookup from a
// sequence to its OTU. The invariant
// the whole package upholds is index ⊆ f(log): everything here is a cache
// that can be deleted and rebuilt from the event log without loss of
// authoritative state (spec §9, "Index as derived state").
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the sqlite-backed index database at .cache/index.db
// (spec §6.3).
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the index database at path, applying the
// schema. Callers that want a from-scratch rebuild should remove path
// first (spec §4.4, "If the index file is missing or corrupt, delete it
// and replay the log").
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("index: create cache dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal=WAL&_busy_timeout=5000&_foreign_keys=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}

	// The index is written by exactly one writer at a time (the façade
	// holds the repository's advisory lock for the duration of any
	// transaction), so a single connection avoids SQLITE_BUSY entirely
	// rather than tuning around it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: ping %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: init schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}

	return tx.Commit()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
