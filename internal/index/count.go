package index

import (
	"context"
	"fmt"
)

// OTUCount returns the number of OTU rows, deleted OTUs included, used by
// Open to decide
// whether the index needs an initial rebuild (spec §4.4: "if the index
// file is missing or corrupt, delete it and replay the log").
func (s *Store) OTUCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM otus`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count otus: %w", err)
	}
	return n, nil
}
