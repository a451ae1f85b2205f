package store

import "errors"

var (
	// ErrSegmentNotFound reports that no row matches the requested segment id
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrChunkNotFound reports that no chunk matches the requested chunk id
	ErrChunkNotFound = errors.New("chunk not found")

	// ErrDataUnavailable reports that a backing file is missing or unparsable.
	// It is distinct from an empty result set and must never be flattened
	// into one.
	ErrDataUnavailable = errors.New("backing data unavailable")
)
