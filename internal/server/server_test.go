package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"segmenteditor/internal/registry"
	"segmenteditor/internal/streamer"
)

// newTestServer builds a server over a temp projects dir containing one
// project with three segments, two chunks and a 1000-byte audio file
func newTestServer(t *testing.T) (http.Handler, string) {
	t.Helper()
	projectsDir := t.TempDir()
	root := filepath.Join(projectsDir, "demo")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "transcriptions"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "chunks"), 0o755))

	segments := `segment_id,chunk_id,start_sec,end_sec,text,speaker
1,1,0,2.5,first line,spk_0
2,1,2.5,5,second line,spk_1
3,2,0,3,third line,spk_0
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "transcriptions", "segments.csv"), []byte(segments), 0o644))

	chunks := `Chunk ID,File Path,Start Time (s),End Time (s)
1,chunks/chunk_001.mp4,0,300
2,chunks/chunk_002.mp4,300,480.5
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "chunks", "chunks_metadata.csv"), []byte(chunks), 0o644))

	audio := make([]byte, 1000)
	for i := range audio {
		audio[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "chunks", "chunk_001.mp4"), audio, 0o644))

	srv := New(
		registry.NewProjectRegistry(projectsDir),
		streamer.NewRangeStreamer(),
		"",
		zap.NewNop(),
	)
	return srv.Router(), projectsDir
}

// do runs one request against the router
func do(t *testing.T, router http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody *strings.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	} else {
		reqBody = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reqBody)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// decode unmarshals a JSON response body into a generic map
func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestServer_Projects(t *testing.T) {
	t.Run("should list projects with duration", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodGet, "/api/projects", "", nil)

		// Assert
		assert.Equal(t, http.StatusOK, rec.Code)
		payload := decode(t, rec)
		assert.Equal(t, float64(1), payload["total"])
		projects := payload["projects"].([]any)
		first := projects[0].(map[string]any)
		assert.Equal(t, "demo", first["name"])
		assert.Equal(t, 480.5, first["duration"])
	})

	t.Run("should return project info for a known project", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodGet, "/api/demo/project", "", nil)

		// Assert
		assert.Equal(t, http.StatusOK, rec.Code)
		payload := decode(t, rec)
		assert.Equal(t, "demo", payload["name"])
		assert.NotEmpty(t, payload["path"])
	})

	t.Run("should return 404 for an unknown project", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodGet, "/api/nope/project", "", nil)

		// Assert
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_Segments(t *testing.T) {
	t.Run("should list all segments", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodGet, "/api/demo/segments", "", nil)

		// Assert
		assert.Equal(t, http.StatusOK, rec.Code)
		payload := decode(t, rec)
		assert.Equal(t, float64(3), payload["total"])
	})

	t.Run("should filter segments by chunk id", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodGet, "/api/demo/segments?chunk_id=1", "", nil)

		// Assert
		assert.Equal(t, http.StatusOK, rec.Code)
		payload := decode(t, rec)
		assert.Equal(t, float64(2), payload["total"])
		segments := payload["segments"].([]any)
		first := segments[0].(map[string]any)
		assert.Equal(t, float64(1), first["segment_id"])
	})

	t.Run("should reject a non-numeric chunk filter", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodGet, "/api/demo/segments?chunk_id=abc", "", nil)

		// Assert
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should get one segment with explicit nulls for absent fields", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodGet, "/api/demo/segments/2", "", nil)

		// Assert
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"language":null`)
		payload := decode(t, rec)
		assert.Equal(t, "second line", payload["text"])
	})

	t.Run("should surface unreadable backing data as a server error", func(t *testing.T) {
		// Arrange - segments file exists but does not parse
		router, projectsDir := newTestServer(t)
		segmentsPath := filepath.Join(projectsDir, "demo", "transcriptions", "segments.csv")
		require.NoError(t, os.WriteFile(segmentsPath, []byte("segment_id,chunk_id\nbroken"), 0o644))

		// Act
		rec := do(t, router, http.MethodGet, "/api/demo/segments", "", nil)

		// Assert - never flattened into an empty result
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("should return 404 for an unknown segment", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodGet, "/api/demo/segments/404", "", nil)

		// Assert
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_UpdateSegment(t *testing.T) {
	t.Run("should apply an update and return the updated segment", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodPut, "/api/demo/segments/1",
			`{"text":"edited line","start_sec":0.25}`, nil)

		// Assert
		assert.Equal(t, http.StatusOK, rec.Code)
		payload := decode(t, rec)
		assert.Equal(t, true, payload["success"])
		segment := payload["segment"].(map[string]any)
		assert.Equal(t, "edited line", segment["text"])
		assert.Equal(t, 0.25, segment["start_sec"])
		assert.Equal(t, 2.5, segment["end_sec"], "untouched field must survive")

		// Round-trip through a fresh read.
		reread := do(t, router, http.MethodGet, "/api/demo/segments/1", "", nil)
		assert.Contains(t, reread.Body.String(), "edited line")
	})

	t.Run("should ignore forbidden fields while applying allowed ones", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodPut, "/api/demo/segments/1",
			`{"text":"kept","speaker":"spk_9","chunk_id":42}`, nil)

		// Assert
		assert.Equal(t, http.StatusOK, rec.Code)
		payload := decode(t, rec)
		segment := payload["segment"].(map[string]any)
		assert.Equal(t, "kept", segment["text"])
		assert.Equal(t, "spk_0", segment["speaker"], "speaker is read-only through this API")
		assert.Equal(t, float64(1), segment["chunk_id"], "chunk_id is read-only through this API")
	})

	t.Run("should reject an update with no recognized fields before writing", func(t *testing.T) {
		// Arrange
		router, projectsDir := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodPut, "/api/demo/segments/1", `{"speaker":"spk_9"}`, nil)

		// Assert
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		backups, err := filepath.Glob(filepath.Join(projectsDir, "demo", "transcriptions", "backups", "*"))
		require.NoError(t, err)
		assert.Empty(t, backups, "rejected update must not touch the store")
	})

	t.Run("should return 404 when updating an unknown segment", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodPut, "/api/demo/segments/404", `{"text":"x"}`, nil)

		// Assert
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_DeleteSegment(t *testing.T) {
	t.Run("should delete a segment once and 404 afterwards", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		first := do(t, router, http.MethodDelete, "/api/demo/segments/3", "", nil)
		second := do(t, router, http.MethodDelete, "/api/demo/segments/3", "", nil)

		// Assert
		assert.Equal(t, http.StatusOK, first.Code)
		payload := decode(t, first)
		assert.Equal(t, true, payload["success"])
		assert.Equal(t, float64(3), payload["deleted_segment_id"])
		assert.Equal(t, http.StatusNotFound, second.Code)
	})
}

func TestServer_Chunks(t *testing.T) {
	t.Run("should list chunks with normalized fields", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodGet, "/api/demo/chunks", "", nil)

		// Assert
		assert.Equal(t, http.StatusOK, rec.Code)
		payload := decode(t, rec)
		assert.Equal(t, float64(2), payload["total"])
		chunks := payload["chunks"].([]any)
		first := chunks[0].(map[string]any)
		assert.Equal(t, float64(1), first["chunk_id"])
		assert.Equal(t, "chunks/chunk_001.mp4", first["file_path"])
	})

	t.Run("should return 404 for an unknown chunk", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodGet, "/api/demo/chunks/404", "", nil)

		// Assert
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_StreamAudio(t *testing.T) {
	t.Run("should stream the whole file without a range header", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodGet, "/api/demo/audio/1", "", nil)

		// Assert
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
		assert.Len(t, rec.Body.Bytes(), 1000)
	})

	t.Run("should honor a byte range for seeking", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodGet, "/api/demo/audio/1", "", map[string]string{"Range": "bytes=100-199"})

		// Assert
		assert.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, "bytes 100-199/1000", rec.Header().Get("Content-Range"))
		assert.Len(t, rec.Body.Bytes(), 100)
	})

	t.Run("should 416 with the total size for an out-of-bounds range", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodGet, "/api/demo/audio/1", "", map[string]string{"Range": "bytes=2000-3000"})

		// Assert
		assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
		assert.Equal(t, "bytes */1000", rec.Header().Get("Content-Range"))
	})

	t.Run("should 404 for a chunk with no audio file on disk", func(t *testing.T) {
		// Arrange - chunk 2 has metadata but no file
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodGet, "/api/demo/audio/2", "", nil)

		// Assert
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("should 404 for an unknown chunk id", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodGet, "/api/demo/audio/404", "", nil)

		// Assert
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("should 500 when the audio path fails for a reason other than a missing file", func(t *testing.T) {
		// Arrange - chunk 3 routes through a regular file, so stat fails
		// with ENOTDIR rather than ENOENT
		router, projectsDir := newTestServer(t)
		chunks := `Chunk ID,File Path,Start Time (s),End Time (s)
1,chunks/chunk_001.mp4,0,300
2,chunks/chunk_002.mp4,300,480.5
3,chunks/chunk_001.mp4/nested.mp4,480.5,600
`
		metaPath := filepath.Join(projectsDir, "demo", "chunks", "chunks_metadata.csv")
		require.NoError(t, os.WriteFile(metaPath, []byte(chunks), 0o644))

		// Act
		rec := do(t, router, http.MethodGet, "/api/demo/audio/3", "", nil)

		// Assert
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestServer_Health(t *testing.T) {
	t.Run("should answer the health probe", func(t *testing.T) {
		// Arrange
		router, _ := newTestServer(t)

		// Act
		rec := do(t, router, http.MethodGet, "/health", "", nil)

		// Assert
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})
}
