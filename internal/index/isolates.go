package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// OTUIDByIsolateID resolves an isolate id to the id of the OTU that owns
// it (spec §4.4, table "isolates": "reverse lookup from isolate id to
// OTU").
func (s *Store) OTUIDByIsolateID(ctx context.Context, isolateID uuid.UUID) (uuid.UUID, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT otu_id FROM isolates WHERE id = ?`, isolateID.String(),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("index: otu id by isolate %s: %w", isolateID, err)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("index: corrupt otu id %q: %w", raw, err)
	}
	return id, true, nil
}
