package index

// schema declares the five tables of spec §4.4 plus their secondary
// indices. Table and column names are exactly those the spec calls
// "indicative; contents prescriptive".
const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id  INTEGER PRIMARY KEY,
	otu_id    TEXT,
	timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS otus (
	id       TEXT PRIMARY KEY,
	acronym  TEXT NOT NULL,
	at_event INTEGER NOT NULL,
	name     TEXT NOT NULL,
	otu      TEXT NOT NULL,
	taxid    INTEGER NOT NULL,
	deleted  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS isolates (
	id     TEXT PRIMARY KEY,
	name   TEXT,
	otu_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sequences (
	id       TEXT PRIMARY KEY,
	crc      INTEGER NOT NULL,
	otu_id   TEXT NOT NULL,
	sequence TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS otu_updates (
	otu_id            TEXT NOT NULL,
	timestamp_complete TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_otu_id ON events (otu_id);
CREATE INDEX IF NOT EXISTS idx_otus_name ON otus (name);
CREATE INDEX IF NOT EXISTS idx_otus_taxid ON otus (taxid);
CREATE INDEX IF NOT EXISTS idx_sequences_otu_id ON sequences (otu_id);
CREATE INDEX IF NOT EXISTS idx_sequences_crc ON sequences (crc);
CREATE INDEX IF NOT EXISTS idx_otu_updates_otu_id ON otu_updates (otu_id);
`
