package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// backupTimestampLayout gives second resolution; two writes inside the same
// second share a backup name and the later copy wins. The primary file is
// unaffected either way.
const backupTimestampLayout = "20060102_150405"

// backupFile copies the current primary file byte-for-byte into the backup
// directory under a timestamped name. A missing primary is not an error:
// there is nothing to preserve, so the write simply proceeds. Backups are
// never pruned here; rotation is an external concern.
func backupFile(primaryPath, backupDir string) (string, error) {
	src, err := os.Open(primaryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to open primary file: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	base := filepath.Base(primaryPath)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	timestamp := time.Now().Format(backupTimestampLayout)
	backupPath := filepath.Join(backupDir, fmt.Sprintf("%s_%s%s", stem, timestamp, ext))

	dst, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to copy into backup file: %w", err)
	}
	return backupPath, nil
}

// writeSegmentsAtomic serializes the table to a temporary sibling and
// renames it onto the primary path in one step, so a concurrent reader sees
// either the old complete file or the new complete file. Writing the
// primary in place is forbidden: a crash mid-write would corrupt the store.
func writeSegmentsAtomic(path string, header []string, rows []Segment) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// os.CreateTemp creates 0600 files; the rename must not strip read
	// access from other pipeline processes sharing the project dir, so the
	// replacement keeps the primary's permissions.
	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}

	writer := csv.NewWriter(tmp)
	writeErr := tmp.Chmod(mode)
	if writeErr == nil {
		writeErr = writer.Write(header)
	}
	if writeErr == nil {
		for _, seg := range rows {
			if writeErr = writer.Write(segmentRecord(header, seg)); writeErr != nil {
				break
			}
		}
	}
	if writeErr == nil {
		writer.Flush()
		writeErr = writer.Error()
	}
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", writeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
