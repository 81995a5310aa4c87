package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// OTUIDByTaxid resolves a taxid to a live OTU id (spec §4.3 identifier
// lookup, step 2).
func (s *Store) OTUIDByTaxid(ctx context.Context, taxid int) (uuid.UUID, bool, error) {
	return s.lookupOne(ctx, `SELECT id FROM otus WHERE taxid = ? AND deleted = 0`, taxid)
}

// OTUIDByAcronym resolves an acronym to a live OTU id (spec §4.3, step 3).
func (s *Store) OTUIDByAcronym(ctx context.Context, acronym string) (uuid.UUID, bool, error) {
	return s.lookupOne(ctx, `SELECT id FROM otus WHERE acronym = ? AND deleted = 0`, acronym)
}

// OTUIDByName resolves an exact OTU name to its id.
func (s *Store) OTUIDByName(ctx context.Context, name string) (uuid.UUID, bool, error) {
	return s.lookupOne(ctx, `SELECT id FROM otus WHERE name = ? AND deleted = 0`, name)
}

func (s *Store) lookupOne(ctx context.Context, query string, arg any) (uuid.UUID, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&raw)
	if err == sql.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("index: lookup: %w", err)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("index: corrupt id %q: %w", raw, err)
	}
	return id, true, nil
}

// OTUIDsByPrefix returns every live OTU id whose canonical, hyphenated
// string form starts with prefix (spec §4.3 identifier lookup, step 4). The
// caller enforces the "prefix must be >= 8 characters" rule; this method
// does no length validation of its own.
func (s *Store) OTUIDsByPrefix(ctx context.Context, prefix string) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM otus WHERE id LIKE ? AND deleted = 0`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("index: lookup by prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("index: corrupt id %q: %w", raw, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
