package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"segmenteditor/internal/registry"
	"segmenteditor/internal/store"
)

// writeJSON marshals a payload; encode failures are logged, not surfaced,
// because the status line is already written
func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeStoreError maps store and registry failures onto status codes.
// DataUnavailable is a server error: it must never look like an empty
// result to the client.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrProjectNotFound):
		http.Error(w, "Project not found", http.StatusNotFound)
	case errors.Is(err, store.ErrSegmentNotFound):
		http.Error(w, "Segment not found", http.StatusNotFound)
	case errors.Is(err, store.ErrChunkNotFound):
		http.Error(w, "Chunk not found", http.StatusNotFound)
	case errors.Is(err, store.ErrDataUnavailable):
		s.logger.Error("backing data unavailable", zap.Error(err))
		http.Error(w, "Project data unavailable", http.StatusInternalServerError)
	default:
		s.logger.Error("request failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// resolveProject pulls the {project} URL param and resolves it, writing the
// failure response itself
func (s *Server) resolveProject(w http.ResponseWriter, r *http.Request) *registry.Project {
	name := chi.URLParam(r, "project")
	project, err := s.registry.Resolve(name)
	if err != nil {
		s.writeStoreError(w, err)
		return nil
	}
	return project
}

// intParam parses an integer URL param, writing a 400 on failure
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// GET /api/projects
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.registry.ListProjects()
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{
		"projects": projects,
		"total":    len(projects),
	})
}

// GET /api/{project}/project
func (s *Server) handleProjectInfo(w http.ResponseWriter, r *http.Request) {
	project := s.resolveProject(w, r)
	if project == nil {
		return
	}
	s.writeJSON(w, map[string]any{
		"name": project.Name,
		"path": project.Root,
	})
}

// GET /api/{project}/segments?chunk_id=N
func (s *Server) handleListSegments(w http.ResponseWriter, r *http.Request) {
	project := s.resolveProject(w, r)
	if project == nil {
		return
	}

	var segments []store.Segment
	var err error
	if raw := r.URL.Query().Get("chunk_id"); raw != "" {
		chunkID, convErr := strconv.Atoi(raw)
		if convErr != nil {
			http.Error(w, "invalid chunk_id", http.StatusBadRequest)
			return
		}
		segments, err = project.Segments.GetSegmentsByChunk(chunkID)
	} else {
		segments, err = project.Segments.GetAllSegments()
	}
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.writeJSON(w, map[string]any{
		"segments": segments,
		"total":    len(segments),
	})
}

// GET /api/{project}/segments/{segmentID}
func (s *Server) handleGetSegment(w http.ResponseWriter, r *http.Request) {
	project := s.resolveProject(w, r)
	if project == nil {
		return
	}
	segmentID, ok := intParam(w, r, "segmentID")
	if !ok {
		return
	}

	segment, err := project.Segments.GetSegment(segmentID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, segment)
}

// PUT /api/{project}/segments/{segmentID}
func (s *Server) handleUpdateSegment(w http.ResponseWriter, r *http.Request) {
	project := s.resolveProject(w, r)
	if project == nil {
		return
	}
	segmentID, ok := intParam(w, r, "segmentID")
	if !ok {
		return
	}

	var update store.SegmentUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	// Unknown fields are ignored; updates carrying no recognized field are
	// rejected before any write happens.
	if !update.Recognized() {
		http.Error(w, "No valid updates provided", http.StatusBadRequest)
		return
	}

	segment, err := project.Segments.UpdateSegment(segmentID, update)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.writeJSON(w, map[string]any{
		"success": true,
		"segment": segment,
	})
}

// DELETE /api/{project}/segments/{segmentID}
func (s *Server) handleDeleteSegment(w http.ResponseWriter, r *http.Request) {
	project := s.resolveProject(w, r)
	if project == nil {
		return
	}
	segmentID, ok := intParam(w, r, "segmentID")
	if !ok {
		return
	}

	if err := project.Segments.DeleteSegment(segmentID); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.writeJSON(w, map[string]any{
		"success":            true,
		"deleted_segment_id": segmentID,
	})
}

// GET /api/{project}/chunks
func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	project := s.resolveProject(w, r)
	if project == nil {
		return
	}

	chunks, err := project.Chunks.GetAllChunks()
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{
		"chunks": chunks,
		"total":  len(chunks),
	})
}

// GET /api/{project}/chunks/{chunkID}
func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	project := s.resolveProject(w, r)
	if project == nil {
		return
	}
	chunkID, ok := intParam(w, r, "chunkID")
	if !ok {
		return
	}

	chunk, err := project.Chunks.GetChunk(chunkID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, chunk)
}

// GET /api/{project}/audio/{chunkID}
func (s *Server) handleStreamAudio(w http.ResponseWriter, r *http.Request) {
	project := s.resolveProject(w, r)
	if project == nil {
		return
	}
	chunkID, ok := intParam(w, r, "chunkID")
	if !ok {
		return
	}

	path, err := project.Chunks.GetChunkFilePath(chunkID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	if err := s.streamer.ServeFile(w, r, path); err != nil {
		// The chunk row exists but its audio file does not (or vanished
		// under a concurrent delete); that is a not-found, not a crash.
		// Any other stat failure is a server-side problem.
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "Audio file not found", http.StatusNotFound)
			return
		}
		s.logger.Error("failed to stream audio", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
