package store

import (
	"math"
	"strconv"
)

// Segment represents a single transcript utterance belonging to a chunk.
// Optional columns serialize as explicit nulls so a consumer can tell
// "absent" from "empty"; a NaN read from the backing file is normalized to
// null and never leaks into output.
type Segment struct {
	SegmentID int      `json:"segment_id"`
	ChunkID   int      `json:"chunk_id"`
	StartSec  *float64 `json:"start_sec"`
	EndSec    *float64 `json:"end_sec"`
	Text      string   `json:"text"`
	Language  *string  `json:"language"`
	GapType   *string  `json:"gap_type"`
	Speaker   *string  `json:"speaker"`

	// extra holds column values the schema knows nothing about, keyed by
	// header name, so a write preserves them verbatim.
	extra map[string]string
}

// SegmentUpdate is a tagged partial update. Only the three operator-editable
// fields exist; everything else on a segment is read-only through the store.
type SegmentUpdate struct {
	StartSec *float64 `json:"start_sec"`
	EndSec   *float64 `json:"end_sec"`
	Text     *string  `json:"text"`
}

// Recognized reports whether the update carries at least one editable field
func (u SegmentUpdate) Recognized() bool {
	return u.StartSec != nil || u.EndSec != nil || u.Text != nil
}

// parseOptionalFloat turns a CSV cell into an optional float. Empty cells
// and NaN values both become nil.
func parseOptionalFloat(cell string) (*float64, error) {
	if cell == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) {
		return nil, nil
	}
	return &v, nil
}

// parseOptionalString turns a CSV cell into an optional string; an empty
// cell means the value is absent, not the empty string.
func parseOptionalString(cell string) *string {
	if cell == "" {
		return nil
	}
	return &cell
}

// formatOptionalFloat renders an optional float back into a CSV cell
func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

// formatOptionalString renders an optional string back into a CSV cell
func formatOptionalString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
