package index

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"
)

// OTUMinimal is the cheap listing shape from SPEC_FULL.md §D.1: just
// enough to render a picker or summary table without materializing full
// OTUs or sequence text.
type OTUMinimal struct {
	ID      uuid.UUID
	Taxid   int
	Acronym string
	Name    string
}

// IterOTUsMinimal streams every live OTU's minimal projection directly
// from the otus table, skipping JSON decode and sequence re-attachment
// entirely (SPEC_FULL.md §D.1, grounded on original_source's
// iter_minimal_otus / OTUMinimal).
func (s *Store) IterOTUsMinimal(ctx context.Context) (iter.Seq[OTUMinimal], error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, taxid, acronym, name FROM otus WHERE deleted = 0 ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("index: iter minimal otus: %w", err)
	}

	return func(yield func(OTUMinimal) bool) {
		defer rows.Close()

		for rows.Next() {
			var (
				rawID   string
				minimal OTUMinimal
			)
			if err := rows.Scan(&rawID, &minimal.Taxid, &minimal.Acronym, &minimal.Name); err != nil {
				return
			}
			id, err := uuid.Parse(rawID)
			if err != nil {
				return
			}
			minimal.ID = id

			if !yield(minimal) {
				return
			}
		}
	}, nil
}
