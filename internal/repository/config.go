package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const configSchemaVersion = 1

// sideConfig is the small, non-authoritative convenience file described in
// SPEC_FULL.md §A.3 (mirrors steveyegge-beads/internal/configfile's
// metadata.json pattern). Nothing here participates in OTU validation;
// deleting it is always safe, since it is regenerated at Open.
type sideConfig struct {
	SchemaVersion int       `json:"schema_version"`
	LastOpenedAt  time.Time `json:"last_opened_at"`
}

func configPath(dir string) string {
	return filepath.Join(dir, cacheDirName, "config.json")
}

// touchConfig regenerates .cache/config.json with the current timestamp.
// Failure to write it is never fatal to Open.
func touchConfig(dir string, now time.Time) {
	path := configPath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}

	cfg := sideConfig{SchemaVersion: configSchemaVersion, LastOpenedAt: now.UTC()}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return
	}

	_ = os.WriteFile(path, raw, 0o644)
}
