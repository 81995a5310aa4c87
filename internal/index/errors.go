package index

import "errors"

// ErrIndexCorrupt signals that a snapshot references a sequence id absent
// from the sequences table (spec §7, "index-corrupt"). The façade responds
// by clearing the index and rebuilding from the log.
var ErrIndexCorrupt = errors.New("index corrupt")
