package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"segmenteditor/internal/registry"
	"segmenteditor/internal/streamer"
)

// Server wires the HTTP surface over the project registry and the range
// streamer. Request handling is glue: resolve the project, call the store,
// marshal the result.
type Server struct {
	registry    *registry.ProjectRegistry
	streamer    *streamer.RangeStreamer
	logger      *zap.Logger
	frontendDir string
}

// New creates a Server. frontendDir may be empty, in which case no static
// frontend is mounted.
func New(reg *registry.ProjectRegistry, str *streamer.RangeStreamer, frontendDir string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		registry:    reg,
		streamer:    str,
		logger:      logger,
		frontendDir: frontendDir,
	}
}

// Router builds the chi router with CORS, the API routes, the health probe
// and the optional static frontend mount
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Development CORS policy: the editor frontend may be served from
	// anywhere.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Range"},
		AllowCredentials: true,
	}))

	r.Get("/api/projects", s.handleListProjects)
	r.Get("/api/{project}/project", s.handleProjectInfo)
	r.Get("/api/{project}/segments", s.handleListSegments)
	r.Get("/api/{project}/segments/{segmentID}", s.handleGetSegment)
	r.Put("/api/{project}/segments/{segmentID}", s.handleUpdateSegment)
	r.Delete("/api/{project}/segments/{segmentID}", s.handleDeleteSegment)
	r.Get("/api/{project}/chunks", s.handleListChunks)
	r.Get("/api/{project}/chunks/{chunkID}", s.handleGetChunk)
	r.Get("/api/{project}/audio/{chunkID}", s.handleStreamAudio)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	if s.frontendDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.frontendDir)))
	}

	return r
}
