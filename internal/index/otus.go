package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/crc32"

	"github.com/google/uuid"

	"github.com/ref-builder/ref-builder/internal/otu"
)

// Snapshot is a cached OTU together with the event id it was folded up to
// (spec §4.4, table "otus").
type Snapshot struct {
	OTU     *otu.OTU
	AtEvent int
	Deleted bool
}

// stripSequenceLetters returns a clone of o with every sequence's letters
// cleared, matching the on-disk shape of the otus.otu column (spec §4.4:
// "the OTU JSON serialised excluding the sequence strings"); the text is
// re-attached from the sequences table on load.
func stripSequenceLetters(o *otu.OTU) *otu.OTU {
	clone := o.Clone()
	for i := range clone.Isolates {
		for j := range clone.Isolates[i].Sequences {
			clone.Isolates[i].Sequences[j].Letters = ""
		}
	}
	return clone
}

// LoadSnapshot fetches the cached OTU JSON and at_event for otuID, with
// sequence text re-attached from the sequences table. A dangling sequence
// id (present in the snapshot but absent from the sequences table) is a
// fatal index-corrupt error (spec §4.4).
func (s *Store) LoadSnapshot(ctx context.Context, otuID uuid.UUID) (*Snapshot, error) {
	var (
		rawOTU  string
		atEvent int
		deleted bool
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT otu, at_event, deleted FROM otus WHERE id = ?`, otuID.String(),
	).Scan(&rawOTU, &atEvent, &deleted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: load snapshot %s: %w", otuID, err)
	}

	var decoded otu.OTU
	if err := json.Unmarshal([]byte(rawOTU), &decoded); err != nil {
		return nil, fmt.Errorf("index: decode snapshot %s: %w", otuID, err)
	}

	for i := range decoded.Isolates {
		for j := range decoded.Isolates[i].Sequences {
			seq := &decoded.Isolates[i].Sequences[j]
			letters, err := s.sequenceLetters(ctx, seq.ID)
			if err != nil {
				return nil, fmt.Errorf("%w: otu %s sequence %s: %v", ErrIndexCorrupt, otuID, seq.ID, err)
			}
			seq.Letters = letters
		}
	}
	decoded.RebuildIndices()

	return &Snapshot{OTU: &decoded, AtEvent: atEvent, Deleted: deleted}, nil
}

func (s *Store) sequenceLetters(ctx context.Context, sequenceID uuid.UUID) (string, error) {
	var letters string
	err := s.db.QueryRowContext(ctx,
		`SELECT sequence FROM sequences WHERE id = ?`, sequenceID.String(),
	).Scan(&letters)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("dangling sequence id")
	}
	if err != nil {
		return "", err
	}
	return letters, nil
}

// UpsertOTU writes o's snapshot at event id atEvent (spec §4.4 "Upsert"):
// sequence rows are skipped when their CRC is unchanged, isolate rows are
// upserted for reverse lookup, and the otus row carries the
// sequence-stripped OTU JSON.
func (s *Store) UpsertOTU(ctx context.Context, o *otu.OTU, atEvent int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: upsert otu %s: %w", o.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	liveSequenceIDs := make(map[string]struct{})
	for _, iso := range o.Isolates {
		for _, seq := range iso.Sequences {
			liveSequenceIDs[seq.ID.String()] = struct{}{}
		}
	}

	if err := pruneStaleSequences(ctx, tx, o.ID, liveSequenceIDs); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM isolates WHERE otu_id = ?`, o.ID.String()); err != nil {
		return fmt.Errorf("index: delete stale isolate rows for %s: %w", o.ID, err)
	}

	for _, iso := range o.Isolates {
		var name sql.NullString
		if iso.Name != nil {
			name = sql.NullString{String: iso.Name.String(), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO isolates (id, name, otu_id) VALUES (?, ?, ?)`,
			iso.ID.String(), name, o.ID.String(),
		); err != nil {
			return fmt.Errorf("index: upsert isolate %s: %w", iso.ID, err)
		}

		for _, seq := range iso.Sequences {
			if err := upsertSequence(ctx, tx, o.ID, seq); err != nil {
				return err
			}
		}
	}

	stripped := stripSequenceLetters(o)
	otuJSON, err := json.Marshal(stripped)
	if err != nil {
		return fmt.Errorf("index: marshal otu %s: %w", o.ID, err)
	}

	deleted := 0
	if o.Deleted {
		deleted = 1
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO otus (id, acronym, at_event, name, otu, taxid, deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   acronym = excluded.acronym,
		   at_event = excluded.at_event,
		   name = excluded.name,
		   otu = excluded.otu,
		   taxid = excluded.taxid,
		   deleted = excluded.deleted`,
		o.ID.String(), o.Acronym, atEvent, o.Name, string(otuJSON), o.Taxid, deleted,
	); err != nil {
		return fmt.Errorf("index: upsert otus row %s: %w", o.ID, err)
	}

	return tx.Commit()
}

func pruneStaleSequences(ctx context.Context, tx *sql.Tx, otuID uuid.UUID, live map[string]struct{}) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM sequences WHERE otu_id = ?`, otuID.String())
	if err != nil {
		return fmt.Errorf("index: list sequences for %s: %w", otuID, err)
	}

	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := live[id]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sequences WHERE id = ?`, id); err != nil {
			return fmt.Errorf("index: delete stale sequence %s: %w", id, err)
		}
	}
	return nil
}

func upsertSequence(ctx context.Context, tx *sql.Tx, otuID uuid.UUID, seq otu.Sequence) error {
	crc := crc32.ChecksumIEEE([]byte(seq.Letters))

	var existingCRC uint32
	err := tx.QueryRowContext(ctx, `SELECT crc FROM sequences WHERE id = ?`, seq.ID.String()).Scan(&existingCRC)
	if err == nil && existingCRC == crc {
		return nil
	}
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("index: check sequence crc %s: %w", seq.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sequences (id, crc, otu_id, sequence) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET crc = excluded.crc, otu_id = excluded.otu_id, sequence = excluded.sequence`,
		seq.ID.String(), crc, otuID.String(), seq.Letters,
	); err != nil {
		return fmt.Errorf("index: upsert sequence %s: %w", seq.ID, err)
	}
	return nil
}
