package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zauberware/smshog/internal/jsoncodec"
)

// loadSnapshot reads the messages stored at path.
// A missing file is a fresh start and returns no messages and no error.
func loadSnapshot(path string) ([]Message, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var msgs []Message
	if err := jsoncodec.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return msgs, nil
}

// writeSnapshot replaces the file at path with msgs encoded as a JSON array.
//
// The data is written to a temporary file in the same directory, synced and
// renamed over path, so the snapshot is either the previous or the new
// version and never a mix of both.
func writeSnapshot(path string, msgs []Message) (err error) {
	if msgs == nil {
		msgs = []Message{}
	}
	data, err := jsoncodec.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp snapshot: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}
	return nil
}
