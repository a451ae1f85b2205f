package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"segmenteditor/internal/store"
)

// ErrProjectNotFound reports that a name does not resolve to a project root
// with a segments file
var ErrProjectNotFound = errors.New("project not found")

// Project bundles the per-project stores under their resolved root
type Project struct {
	Name     string
	Root     string
	Segments *store.SegmentStore
	Chunks   *store.ChunkIndex
}

// ProjectInfo is one row of the projects listing. Duration is the largest
// chunk end time, best-effort: listing never fails because one project has
// broken metadata.
type ProjectInfo struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration"`
}

// ProjectRegistry maps project names to their store pair. At most one entry
// is live per name; an entry is rebuilt when the name stops resolving to
// the root it was built for, so a renamed directory never serves stale data
// under another project's name.
type ProjectRegistry struct {
	mu          sync.Mutex
	projectsDir string
	logger      *zap.Logger
	entries     map[string]*Project
}

// NewProjectRegistry creates a registry over the given projects directory
func NewProjectRegistry(projectsDir string) *ProjectRegistry {
	return NewProjectRegistryWithLogger(projectsDir, zap.NewNop())
}

// NewProjectRegistryWithLogger creates a registry with a custom logger
func NewProjectRegistryWithLogger(projectsDir string, logger *zap.Logger) *ProjectRegistry {
	return &ProjectRegistry{
		projectsDir: projectsDir,
		logger:      logger,
		entries:     make(map[string]*Project),
	}
}

// ProjectsDir returns the directory the registry scans for projects
func (r *ProjectRegistry) ProjectsDir() string {
	return r.projectsDir
}

// Resolve returns the Project for a name, constructing it on first use.
// The expected root must contain transcriptions/segments.csv or the name is
// unknown. Roots are recorded with symlinks resolved; when a cached entry's
// recorded root no longer matches, the stale entry is discarded and a fresh
// one is built against the new root.
func (r *ProjectRegistry) Resolve(name string) (*Project, error) {
	root := filepath.Join(r.projectsDir, name)
	segmentsPath := filepath.Join(root, "transcriptions", "segments.csv")
	if _, err := os.Stat(segmentsPath); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrProjectNotFound, name)
	}

	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrProjectNotFound, name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[name]; ok {
		if entry.Root == resolvedRoot {
			return entry, nil
		}
		r.logger.Info("project root changed, discarding cached stores",
			zap.String("project", name),
			zap.String("old_root", entry.Root),
			zap.String("new_root", resolvedRoot))
		delete(r.entries, name)
	}

	entry := &Project{
		Name:     name,
		Root:     resolvedRoot,
		Segments: store.NewSegmentStoreWithLogger(resolvedRoot, r.logger),
		Chunks:   store.NewChunkIndexWithLogger(resolvedRoot, r.logger),
	}
	r.entries[name] = entry
	return entry, nil
}

// ListProjects returns every directory under the projects dir that carries
// a segments file, sorted by name, with its timeline duration. A missing
// projects directory yields an empty listing.
func (r *ProjectRegistry) ListProjects() ([]ProjectInfo, error) {
	dirEntries, err := os.ReadDir(r.projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ProjectInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read projects directory: %w", err)
	}

	projects := make([]ProjectInfo, 0)
	for _, entry := range dirEntries {
		if !entry.IsDir() && entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		root := filepath.Join(r.projectsDir, entry.Name())
		if _, err := os.Stat(filepath.Join(root, "transcriptions", "segments.csv")); err != nil {
			continue
		}
		projects = append(projects, ProjectInfo{
			Name:     entry.Name(),
			Duration: projectDuration(root),
		})
	}
	return projects, nil
}

// projectDuration reports the largest chunk end time, or 0 when the chunk
// metadata is missing or unreadable
func projectDuration(root string) float64 {
	chunks, err := store.NewChunkIndex(root).GetAllChunks()
	if err != nil {
		return 0
	}
	duration := 0.0
	for _, chunk := range chunks {
		if chunk.EndTime > duration {
			duration = chunk.EndTime
		}
	}
	return duration
}
