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

// Chunk represents one audio sub-file of the project timeline. StartTime
// and EndTime are offsets within the overall project and only feed duration
// reporting; they never rewrite segment-local times.
type Chunk struct {
	ChunkID   int     `json:"chunk_id"`
	FilePath  string  `json:"file_path"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Human-readable headers the upstream pipeline writes into
// chunks_metadata.csv. Mapping them to the canonical field names at load
// time is this component's entire value.
const (
	chunkIDHeader   = "Chunk ID"
	filePathHeader  = "File Path"
	startTimeHeader = "Start Time (s)"
	endTimeHeader   = "End Time (s)"
)

// ChunkIndex loads chunk metadata for one project and answers point and
// scan lookups. Chunk counts stay in the tens to low hundreds, so lookups
// are linear scans over the loaded table.
type ChunkIndex struct {
	mu          sync.RWMutex
	projectPath string
	metaPath    string
	logger      *zap.Logger

	chunks []Chunk
	loaded bool
}

// NewChunkIndex creates a ChunkIndex rooted at the given project path
func NewChunkIndex(projectPath string) *ChunkIndex {
	return NewChunkIndexWithLogger(projectPath, zap.NewNop())
}

// NewChunkIndexWithLogger creates a ChunkIndex with a custom logger
func NewChunkIndexWithLogger(projectPath string, logger *zap.Logger) *ChunkIndex {
	return &ChunkIndex{
		projectPath: projectPath,
		metaPath:    filepath.Join(projectPath, "chunks", "chunks_metadata.csv"),
		logger:      logger,
	}
}

// LoadChunks returns the chunk table in file order, re-parsing the backing
// file when the cache is empty or forceReload is set
func (c *ChunkIndex) LoadChunks(forceReload bool) ([]Chunk, error) {
	c.mu.RLock()
	if c.loaded && !forceReload {
		chunks := copyChunks(c.chunks)
		c.mu.RUnlock()
		return chunks, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded || forceReload {
		chunks, err := readChunksFile(c.metaPath)
		if err != nil {
			return nil, err
		}
		c.chunks = chunks
		c.loaded = true
	}
	return copyChunks(c.chunks), nil
}

// copyChunks returns a non-nil copy so callers never alias the cache
func copyChunks(chunks []Chunk) []Chunk {
	out := make([]Chunk, len(chunks))
	copy(out, chunks)
	return out
}

// GetAllChunks returns every chunk in file order
func (c *ChunkIndex) GetAllChunks() ([]Chunk, error) {
	return c.LoadChunks(false)
}

// GetChunk returns the chunk with the given id, or ErrChunkNotFound
func (c *ChunkIndex) GetChunk(chunkID int) (*Chunk, error) {
	chunks, err := c.GetAllChunks()
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		if chunks[i].ChunkID == chunkID {
			chunk := chunks[i]
			return &chunk, nil
		}
	}
	return nil, ErrChunkNotFound
}

// GetChunkFilePath resolves the audio file path for a chunk. Relative paths
// in the metadata are taken relative to the project root.
func (c *ChunkIndex) GetChunkFilePath(chunkID int) (string, error) {
	chunk, err := c.GetChunk(chunkID)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(chunk.FilePath) {
		return chunk.FilePath, nil
	}
	return filepath.Join(c.projectPath, chunk.FilePath), nil
}

// readChunksFile parses chunks_metadata.csv and normalizes the
// human-readable headers into canonical chunk fields
func readChunksFile(path string) ([]Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: malformed chunks file %s: %v", ErrDataUnavailable, path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: chunks file %s has no header", ErrDataUnavailable, path)
	}

	columns := make(map[string]int, len(records[0]))
	for i, col := range records[0] {
		columns[col] = i
	}
	for _, required := range []string{chunkIDHeader, filePathHeader, startTimeHeader, endTimeHeader} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("%w: chunks file %s missing column %q", ErrDataUnavailable, path, required)
		}
	}

	chunks := make([]Chunk, 0, len(records)-1)
	for _, record := range records[1:] {
		id, err := strconv.Atoi(record[columns[chunkIDHeader]])
		if err != nil {
			return nil, fmt.Errorf("%w: invalid chunk id %q: %v", ErrDataUnavailable, record[columns[chunkIDHeader]], err)
		}
		start, err := strconv.ParseFloat(record[columns[startTimeHeader]], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid chunk start time %q: %v", ErrDataUnavailable, record[columns[startTimeHeader]], err)
		}
		end, err := strconv.ParseFloat(record[columns[endTimeHeader]], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid chunk end time %q: %v", ErrDataUnavailable, record[columns[endTimeHeader]], err)
		}
		chunks = append(chunks, Chunk{
			ChunkID:   id,
			FilePath:  record[columns[filePathHeader]],
			StartTime: start,
			EndTime:   end,
		})
	}
	return chunks, nil
}
