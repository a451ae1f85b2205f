package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// SegmentStore owns the in-memory segment table for one project and keeps
// it in step with transcriptions/segments.csv. Every mutation runs the
// reload-mutate-persist sequence as one critical section per store, so two
// concurrent updates to the same project apply in some serial order and
// neither is lost. Reads never take the write path.
type SegmentStore struct {
	mu           sync.RWMutex
	projectPath  string
	segmentsPath string
	backupDir    string
	logger       *zap.Logger

	header []string
	rows   []Segment
	loaded bool
}

// NewSegmentStore creates a SegmentStore rooted at the given project path
func NewSegmentStore(projectPath string) *SegmentStore {
	return NewSegmentStoreWithLogger(projectPath, zap.NewNop())
}

// NewSegmentStoreWithLogger creates a SegmentStore with a custom logger
func NewSegmentStoreWithLogger(projectPath string, logger *zap.Logger) *SegmentStore {
	return &SegmentStore{
		projectPath:  projectPath,
		segmentsPath: filepath.Join(projectPath, "transcriptions", "segments.csv"),
		backupDir:    filepath.Join(projectPath, "transcriptions", "backups"),
		logger:       logger,
	}
}

// ProjectPath returns the project root this store was constructed for
func (s *SegmentStore) ProjectPath() string {
	return s.projectPath
}

// SegmentsPath returns the path of the backing segments file
func (s *SegmentStore) SegmentsPath() string {
	return s.segmentsPath
}

// LoadSegments returns the segment table in file order. The cached table is
// reused unless it is empty or forceReload is set. A parse failure leaves
// the cache untouched and reports ErrDataUnavailable.
func (s *SegmentStore) LoadSegments(forceReload bool) ([]Segment, error) {
	s.mu.RLock()
	if s.loaded && !forceReload {
		rows := copySegments(s.rows)
		s.mu.RUnlock()
		return rows, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || forceReload {
		if err := s.reloadLocked(); err != nil {
			return nil, err
		}
	}
	return copySegments(s.rows), nil
}

// GetAllSegments returns every segment in file order
func (s *SegmentStore) GetAllSegments() ([]Segment, error) {
	return s.LoadSegments(false)
}

// GetSegmentsByChunk returns the segments whose chunk_id matches, keeping
// the relative order of the full table
func (s *SegmentStore) GetSegmentsByChunk(chunkID int) ([]Segment, error) {
	rows, err := s.LoadSegments(false)
	if err != nil {
		return nil, err
	}
	matched := make([]Segment, 0)
	for _, seg := range rows {
		if seg.ChunkID == chunkID {
			matched = append(matched, seg)
		}
	}
	return matched, nil
}

// GetSegment returns the first segment with the given id, or
// ErrSegmentNotFound when no row matches
func (s *SegmentStore) GetSegment(segmentID int) (*Segment, error) {
	rows, err := s.LoadSegments(false)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].SegmentID == segmentID {
			seg := rows[i]
			return &seg, nil
		}
	}
	return nil, ErrSegmentNotFound
}

// UpdateSegment applies the editable fields of the update to one segment
// and persists the full table through the backup-then-atomic-replace
// sequence. The table is force-reloaded first so a write never resurrects
// state another process has already replaced. Fields without a matching
// column in the backing schema are skipped, not rejected.
func (s *SegmentStore) UpdateSegment(segmentID int, update SegmentUpdate) (*Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadLocked(); err != nil {
		return nil, err
	}

	idx := -1
	for i := range s.rows {
		if s.rows[i].SegmentID == segmentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrSegmentNotFound
	}

	if update.StartSec != nil && s.hasColumnLocked("start_sec") {
		v := *update.StartSec
		s.rows[idx].StartSec = &v
	}
	if update.EndSec != nil && s.hasColumnLocked("end_sec") {
		v := *update.EndSec
		s.rows[idx].EndSec = &v
	}
	if update.Text != nil && s.hasColumnLocked("text") {
		s.rows[idx].Text = *update.Text
	}

	if err := s.persistLocked(); err != nil {
		return nil, err
	}

	s.logger.Info("segment updated",
		zap.Int("segment_id", segmentID),
		zap.String("project", s.projectPath))

	seg := s.rows[idx]
	return &seg, nil
}

// DeleteSegment removes one segment row and persists the table. It returns
// ErrSegmentNotFound when no row matches.
func (s *SegmentStore) DeleteSegment(segmentID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadLocked(); err != nil {
		return err
	}

	idx := -1
	for i := range s.rows {
		if s.rows[i].SegmentID == segmentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrSegmentNotFound
	}

	s.rows = append(s.rows[:idx], s.rows[idx+1:]...)

	if err := s.persistLocked(); err != nil {
		return err
	}

	s.logger.Info("segment deleted",
		zap.Int("segment_id", segmentID),
		zap.String("project", s.projectPath))
	return nil
}

// copySegments returns a non-nil copy so callers never alias the cache
func copySegments(rows []Segment) []Segment {
	out := make([]Segment, len(rows))
	copy(out, rows)
	return out
}

// hasColumnLocked reports whether the backing schema carries a column
func (s *SegmentStore) hasColumnLocked(name string) bool {
	for _, col := range s.header {
		if col == name {
			return true
		}
	}
	return false
}

// reloadLocked re-parses the backing file, replacing the cache only on a
// fully successful parse. Callers must hold the write lock.
func (s *SegmentStore) reloadLocked() error {
	header, rows, err := readSegmentsFile(s.segmentsPath)
	if err != nil {
		return err
	}
	s.header = header
	s.rows = rows
	s.loaded = true
	return nil
}

// persistLocked writes the in-memory table back to disk: backup of the
// current primary first, then temp-write and atomic rename. Callers must
// hold the write lock.
func (s *SegmentStore) persistLocked() error {
	backupPath, err := backupFile(s.segmentsPath, s.backupDir)
	if err != nil {
		return fmt.Errorf("failed to back up segments file: %w", err)
	}
	if backupPath != "" {
		s.logger.Debug("segments backup written", zap.String("backup", backupPath))
	}
	if err := writeSegmentsAtomic(s.segmentsPath, s.header, s.rows); err != nil {
		return fmt.Errorf("failed to persist segments file: %w", err)
	}
	return nil
}

// readSegmentsFile parses a segments CSV into the canonical row
// representation, preserving header order and any columns the schema does
// not recognize
func readSegmentsFile(path string) ([]string, []Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: malformed segments file %s: %v", ErrDataUnavailable, path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: segments file %s has no header", ErrDataUnavailable, path)
	}

	header := records[0]
	rows := make([]Segment, 0, len(records)-1)
	for _, record := range records[1:] {
		seg, err := parseSegmentRecord(header, record)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
		}
		rows = append(rows, seg)
	}
	return header, rows, nil
}

// parseSegmentRecord maps one CSV record onto a Segment by header name
func parseSegmentRecord(header, record []string) (Segment, error) {
	seg := Segment{}
	for i, col := range header {
		cell := record[i]
		switch col {
		case "segment_id":
			id, err := strconv.Atoi(cell)
			if err != nil {
				return Segment{}, fmt.Errorf("invalid segment_id %q: %v", cell, err)
			}
			seg.SegmentID = id
		case "chunk_id":
			id, err := strconv.Atoi(cell)
			if err != nil {
				return Segment{}, fmt.Errorf("invalid chunk_id %q: %v", cell, err)
			}
			seg.ChunkID = id
		case "start_sec":
			v, err := parseOptionalFloat(cell)
			if err != nil {
				return Segment{}, fmt.Errorf("invalid start_sec %q: %v", cell, err)
			}
			seg.StartSec = v
		case "end_sec":
			v, err := parseOptionalFloat(cell)
			if err != nil {
				return Segment{}, fmt.Errorf("invalid end_sec %q: %v", cell, err)
			}
			seg.EndSec = v
		case "text":
			seg.Text = cell
		case "language":
			seg.Language = parseOptionalString(cell)
		case "gap_type":
			seg.GapType = parseOptionalString(cell)
		case "speaker":
			seg.Speaker = parseOptionalString(cell)
		default:
			if seg.extra == nil {
				seg.extra = make(map[string]string)
			}
			seg.extra[col] = cell
		}
	}
	return seg, nil
}

// segmentRecord renders a Segment back into a CSV record in header order
func segmentRecord(header []string, seg Segment) []string {
	record := make([]string, len(header))
	for i, col := range header {
		switch col {
		case "segment_id":
			record[i] = strconv.Itoa(seg.SegmentID)
		case "chunk_id":
			record[i] = strconv.Itoa(seg.ChunkID)
		case "start_sec":
			record[i] = formatOptionalFloat(seg.StartSec)
		case "end_sec":
			record[i] = formatOptionalFloat(seg.EndSec)
		case "text":
			record[i] = seg.Text
		case "language":
			record[i] = formatOptionalString(seg.Language)
		case "gap_type":
			record[i] = formatOptionalString(seg.GapType)
		case "speaker":
			record[i] = formatOptionalString(seg.Speaker)
		default:
			record[i] = seg.extra[col]
		}
	}
	return record
}
