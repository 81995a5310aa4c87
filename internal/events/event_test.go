package events

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEventMarshalFieldOrderIsCanonical(t *testing.T) {
	ev := Event{
		Type:      KindCreateRepo,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Query:     RepoQuery{RepositoryID: uuid.New()},
		Data: &CreateRepoData{
			ID:       uuid.New(),
			Name:     "Generic Viruses",
			Organism: "virus",
		},
	}
	ev.ID = 1

	raw, err := ev.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	// Top-level keys must appear in the fixed order from spec §6.2: data,
	// id, query, timestamp, type (which is alphabetical order, and falls
	// out of Canonicalize's map-key sorting automatically).
	order := []string{`"data"`, `"id"`, `"query"`, `"timestamp"`, `"type"`}
	pos := -1
	for _, key := range order {
		idx := bytes.Index(raw, []byte(key))
		if idx == -1 {
			t.Fatalf("key %s missing from %s", key, raw)
		}
		if idx <= pos {
			t.Fatalf("key %s out of order in %s", key, raw)
		}
		pos = idx
	}
}

func TestEventRoundTrip(t *testing.T) {
	otuID := uuid.New()
	ev := Event{
		Type:      KindCreateOTU,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 123000, time.UTC),
		Query:     OTUQuery{OTUID: otuID},
		Data: &CreateOTUData{
			ID:      otuID,
			Acronym: "TMV",
			Name:    "Tobacco mosaic virus",
			Taxid:   12242,
		},
	}
	ev.ID = 2

	raw, err := ev.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	var got Event
	if err := got.UnmarshalJSON(raw); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}

	if got.ID != ev.ID || got.Type != ev.Type {
		t.Fatalf("got id/type %d/%s, want %d/%s", got.ID, got.Type, ev.ID, ev.Type)
	}

	query, ok := got.Query.(OTUQuery)
	if !ok || query.OTUID != otuID {
		t.Fatalf("got query %+v, want OTUQuery{%s}", got.Query, otuID)
	}

	data, ok := got.Data.(*CreateOTUData)
	if !ok || data.Taxid != 12242 {
		t.Fatalf("got data %+v, want taxid 12242", got.Data)
	}
}

func TestEventRoundTripIsByteIdentical(t *testing.T) {
	ev := Event{
		Type:      KindCreateRepo,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Query:     RepoQuery{RepositoryID: uuid.New()},
		Data:      &CreateRepoData{ID: uuid.New(), Name: "Generic Viruses", Organism: "virus"},
	}
	ev.ID = 1

	first, err := ev.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	var decoded Event
	if err := decoded.UnmarshalJSON(first); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}

	second, err := decoded.MarshalJSON()
	if err != nil {
		t.Fatalf("re-MarshalJSON: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Fatalf("re-emitting the event is not byte-identical:\nfirst:  %s\nsecond: %s", first, second)
	}
}

func TestUnmarshalUnknownKindIsHardError(t *testing.T) {
	raw := []byte(`{"id":1,"type":"frobnicate_otu","timestamp":"2026-01-02T03:04:05","query":{},"data":{}}`)

	var ev Event
	err := ev.UnmarshalJSON(raw)
	if err == nil {
		t.Fatal("UnmarshalJSON of an unknown type = nil error, want ErrUnknownKind")
	}
}

func TestCanonicalizeSortsNestedKeys(t *testing.T) {
	raw := []byte(`{"z":1,"a":{"y":2,"b":3}}`)
	got, err := Canonicalize(raw)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}

	var roundTrip map[string]json.RawMessage
	if err := json.Unmarshal(got, &roundTrip); err != nil {
		t.Fatalf("result is not valid json: %v", err)
	}

	want := `{"a":{"b":3,"y":2},"z":1}`
	if string(got) != want {
		t.Fatalf("Canonicalize(%s) = %s, want %s", raw, got, want)
	}
}
