// Package otu implements the OTU aggregate: the in-memory, validated
// reconstruction of one Operational Taxonomic Unit from its event stream.
package otu

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	genbankKeyPattern = regexp.MustCompile(`^[A-Z]{1,2}[0-9]{5,6}$`)
	refseqKeyPattern  = regexp.MustCompile(`^NC_[0-9A-Z]+$`)
)

// Accession is a versioned external sequence identifier, e.g. "MN908947.3".
type Accession struct {
	Key     string `json:"key"`
	Version int    `json:"version"`
}

// ParseAccession parses a "KEY.VERSION" string into an Accession.
func ParseAccession(s string) (Accession, error) {
	if strings.TrimSpace(s) == "" {
		return Accession{}, fmt.Errorf("accession string cannot be empty")
	}

	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return Accession{}, fmt.Errorf("accession %q must have the form KEY.VERSION", s)
	}

	version, err := strconv.Atoi(parts[1])
	if err != nil {
		return Accession{}, fmt.Errorf("accession %q version is not an integer", s)
	}

	return Accession{Key: parts[0], Version: version}, nil
}

// String renders the accession in canonical "KEY.VERSION" form.
func (a Accession) String() string {
	return fmt.Sprintf("%s.%d", a.Key, a.Version)
}

// IsRefSeq reports whether the accession key belongs to NCBI's RefSeq
// namespace (an "NC_" prefixed key).
func (a Accession) IsRefSeq() bool {
	return refseqKeyPattern.MatchString(a.Key)
}

// IsValidAccessionKey reports whether key matches either the GenBank or
// RefSeq accession key pattern (spec §3.1).
func IsValidAccessionKey(key string) bool {
	return genbankKeyPattern.MatchString(key) || refseqKeyPattern.MatchString(key)
}

// AccessionKey extracts and validates the bare key from either a bare key or
// a versioned "KEY.VERSION" string.
func AccessionKey(raw string) (string, error) {
	if IsValidAccessionKey(raw) {
		return raw, nil
	}

	acc, err := ParseAccession(raw)
	if err != nil {
		return "", fmt.Errorf("invalid accession key %q", raw)
	}

	if !IsValidAccessionKey(acc.Key) {
		return "", fmt.Errorf("invalid accession key %q", raw)
	}

	return acc.Key, nil
}

// Less orders accessions lexicographically by key, then numerically by
// version (spec §3.1).
func (a Accession) Less(other Accession) bool {
	if a.Key != other.Key {
		return a.Key < other.Key
	}
	return a.Version < other.Version
}
