package events

import "github.com/google/uuid"

// RepoQuery targets the repository as a whole; only CreateRepo uses it.
type RepoQuery struct {
	RepositoryID uuid.UUID `json:"repository_id"`
}

// OTUQuery targets a single OTU by id. Used by CreateOTU, CreatePlan,
// DeleteOTU, and UpdateExcludedAccessions.
type OTUQuery struct {
	OTUID uuid.UUID `json:"otu_id"`
}

// IsolateQuery targets a single isolate within an OTU. Used by
// CreateIsolate, DeleteIsolate, and PromoteIsolate.
type IsolateQuery struct {
	OTUID     uuid.UUID `json:"otu_id"`
	IsolateID uuid.UUID `json:"isolate_id"`
}

// SequenceQuery targets a single sequence within an OTU by accession key.
// Used by UpdateSequence.
type SequenceQuery struct {
	OTUID     uuid.UUID `json:"otu_id"`
	Accession string    `json:"accession"`
}

// OTUIDOf extracts the otu_id an event's query names, for every kind except
// CreateRepo (which has none). It is used by the event log's (event_id,
// otu_id) index (spec §4.4) without needing a type switch at every call
// site.
func OTUIDOf(query any) (uuid.UUID, bool) {
	switch q := query.(type) {
	case OTUQuery:
		return q.OTUID, true
	case IsolateQuery:
		return q.OTUID, true
	case SequenceQuery:
		return q.OTUID, true
	default:
		return uuid.Nil, false
	}
}
