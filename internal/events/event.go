package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the ISO-8601 datetime form used on the wire: no
// timezone offset (spec §6.2, "implicitly UTC"), fractional seconds
// trimmed when zero.
const TimestampLayout = "2006-01-02T15:04:05.999999"

// Event is one immutable entry in the log (spec §4.2). Query and Data hold
// one of the typed variants declared in query.go/data.go, selected by
// Type; Data is always a pointer to its concrete struct, Query is always a
// value type.
type Event struct {
	ID        int
	Type      Kind
	Timestamp time.Time
	Query     any
	Data      any
}

type wireEvent struct {
	ID        int             `json:"id"`
	Type      Kind            `json:"type"`
	Timestamp string          `json:"timestamp"`
	Query     json.RawMessage `json:"query"`
	Data      json.RawMessage `json:"data"`
}

// MarshalJSON produces the canonical form required by spec §4.2/§6.2:
// sorted keys at every nesting level, fixed top-level field order
// (alphabetical: data, id, query, timestamp, type falls out of sorting
// automatically), stable timestamp formatting.
func (e Event) MarshalJSON() ([]byte, error) {
	if err := e.Type.Validate(); err != nil {
		return nil, err
	}

	queryJSON, err := json.Marshal(e.Query)
	if err != nil {
		return nil, fmt.Errorf("marshal event %d query: %w", e.ID, err)
	}
	dataJSON, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event %d data: %w", e.ID, err)
	}

	plain, err := json.Marshal(wireEvent{
		ID:        e.ID,
		Type:      e.Type,
		Timestamp: e.Timestamp.UTC().Format(TimestampLayout),
		Query:     queryJSON,
		Data:      dataJSON,
	})
	if err != nil {
		return nil, err
	}

	return Canonicalize(plain)
}

// Canonicalize re-marshals raw through an untyped decode, which sorts every
// object's keys alphabetically at every nesting level (spec §4.2,
// "Determinism ... canonical JSON ... sorted keys"). Go's encoding/json
// sorts map[string]any keys when encoding, so decode-then-reencode is
// sufficient without a bespoke canonical encoder.
func Canonicalize(raw []byte) ([]byte, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return json.Marshal(generic)
}

// UnmarshalJSON dispatches Query and Data into their kind-specific concrete
// types. An unrecognised Type is the hard "unknown event type" error from
// spec §4.2; it is never silently ignored.
func (e *Event) UnmarshalJSON(raw []byte) error {
	var wire wireEvent
	if err := json.Unmarshal(raw, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}

	if err := wire.Type.Validate(); err != nil {
		return err
	}

	ts, err := time.Parse(TimestampLayout, wire.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: event %d timestamp %q: %v", ErrSchema, wire.ID, wire.Timestamp, err)
	}

	query, err := decodeQuery(wire.Type, wire.Query)
	if err != nil {
		return fmt.Errorf("%w: event %d: %v", ErrSchema, wire.ID, err)
	}

	data, err := decodeData(wire.Type, wire.Data)
	if err != nil {
		return fmt.Errorf("%w: event %d: %v", ErrSchema, wire.ID, err)
	}

	e.ID = wire.ID
	e.Type = wire.Type
	e.Timestamp = ts.UTC()
	e.Query = query
	e.Data = data
	return nil
}

func decodeQuery(k Kind, raw json.RawMessage) (any, error) {
	switch k {
	case KindCreateRepo:
		var q RepoQuery
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		return q, nil
	case KindCreateOTU, KindCreatePlan, KindDeleteOTU, KindUpdateExcludedAccessions:
		var q OTUQuery
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		return q, nil
	case KindCreateIsolate, KindDeleteIsolate, KindPromoteIsolate:
		var q IsolateQuery
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		return q, nil
	case KindUpdateSequence:
		var q SequenceQuery
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		return q, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
}

func decodeData(k Kind, raw json.RawMessage) (any, error) {
	switch k {
	case KindCreateRepo:
		var d CreateRepoData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		return &d, nil
	case KindCreateOTU:
		var d CreateOTUData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		return &d, nil
	case KindCreatePlan:
		var d CreatePlanData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		return &d, nil
	case KindDeleteOTU:
		var d DeleteOTUData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		return &d, nil
	case KindUpdateExcludedAccessions:
		var d UpdateExcludedAccessionsData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		return &d, nil
	case KindCreateIsolate:
		var d CreateIsolateData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		return &d, nil
	case KindDeleteIsolate:
		var d DeleteIsolateData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		return &d, nil
	case KindPromoteIsolate:
		var d PromoteIsolateData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		return &d, nil
	case KindUpdateSequence:
		var d UpdateSequenceData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		return &d, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
}
