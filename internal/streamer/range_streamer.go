package streamer

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ErrInvalidRange reports a Range header that does not parse as a single
// byte range
var ErrInvalidRange = errors.New("invalid range header")

// UnsatisfiableRangeError reports a syntactically valid range that falls
// outside the file. It carries the total size so the 416 response can tell
// the client what would satisfy.
type UnsatisfiableRangeError struct {
	Size int64
}

func (e *UnsatisfiableRangeError) Error() string {
	return fmt.Sprintf("range not satisfiable for file of %d bytes", e.Size)
}

// copyChunkSize bounds how much of the file sits in memory at once while
// streaming; the whole file is never buffered.
const copyChunkSize = 8192

// defaultMediaType is used when the file extension gives no answer; the
// upstream pipeline emits .mp4 chunks.
const defaultMediaType = "video/mp4"

// RangeStreamer serves a local file over HTTP with single-byte-range
// partial-content support, which is what lets a media player seek within a
// long chunk without downloading it in full.
type RangeStreamer struct {
	logger *zap.Logger
}

// NewRangeStreamer creates a RangeStreamer with a no-op logger
func NewRangeStreamer() *RangeStreamer {
	return NewRangeStreamerWithLogger(zap.NewNop())
}

// NewRangeStreamerWithLogger creates a RangeStreamer with a custom logger
func NewRangeStreamerWithLogger(logger *zap.Logger) *RangeStreamer {
	return &RangeStreamer{logger: logger}
}

// ParseRange parses a single-range header of the form "bytes=<start>-<end>"
// with either bound optional. A missing start means 0 and a missing end
// means size-1. Malformed syntax reports ErrInvalidRange; a range outside
// the file reports an UnsatisfiableRangeError carrying the total size.
func ParseRange(header string, size int64) (start, end int64, err error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRange, header)
	}
	parts := strings.Split(spec, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRange, header)
	}

	start = 0
	if parts[0] != "" {
		start, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRange, header)
		}
	}
	end = size - 1
	if parts[1] != "" {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRange, header)
		}
	}

	if start >= size || end >= size || start > end {
		return 0, 0, &UnsatisfiableRangeError{Size: size}
	}
	return start, end, nil
}

// ServeFile streams the file at path, honoring a single Range header. It
// returns an error only when the file cannot be opened or measured, so the
// caller can map that to a not-found response; every range outcome
// (200, 206, 416) is written here.
func (s *RangeStreamer) ServeFile(w http.ResponseWriter, r *http.Request, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	size := info.Size()
	mediaType := mediaTypeFor(path)

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Type", mediaType)
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		s.copyRange(w, path, 0, size)
		return nil
	}

	start, end, err := ParseRange(rangeHeader, size)
	if err != nil {
		var unsatisfiable *UnsatisfiableRangeError
		if errors.As(err, &unsatisfiable) {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", unsatisfiable.Size))
			http.Error(w, "Range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
			return nil
		}
		http.Error(w, "Invalid Range header", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	contentLength := end - start + 1
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(contentLength, 10))
	w.WriteHeader(http.StatusPartialContent)
	s.copyRange(w, path, start, contentLength)
	return nil
}

// copyRange streams length bytes starting at offset in bounded chunks.
// A short source is a truncated-but-complete response, never padded; a
// failed write means the client went away and the copy stops so the file
// handle is released promptly.
func (s *RangeStreamer) copyRange(w http.ResponseWriter, path string, offset, length int64) {
	f, err := os.Open(path)
	if err != nil {
		s.logger.Warn("audio file vanished mid-request",
			zap.String("path", path),
			zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		s.logger.Warn("failed to seek audio file",
			zap.String("path", path),
			zap.Int64("offset", offset),
			zap.Error(err))
		return
	}

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, copyChunkSize)
	remaining := length
	for remaining > 0 {
		chunk := int64(len(buf))
		if remaining < chunk {
			chunk = remaining
		}
		n, readErr := f.Read(buf[:chunk])
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				s.logger.Debug("client disconnected mid-stream",
					zap.String("path", path),
					zap.Error(writeErr))
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			remaining -= int64(n)
		}
		if readErr != nil {
			return
		}
	}
}

// mediaTypeFor resolves the content type from the file extension
func mediaTypeFor(path string) string {
	if mediaType := mime.TypeByExtension(filepath.Ext(path)); mediaType != "" {
		return mediaType
	}
	return defaultMediaType
}
