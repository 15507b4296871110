package fsutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bergham123/anime-news-bot/app/fault"
)

// WriteFileAtomic writes data to a temporary file in the target directory and renames it
// over path, so readers see either the previous content or the new one, never a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fault.Write(path, fmt.Errorf("failed to create directory: %w", err))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fault.Write(path, fmt.Errorf("failed to create temp file: %w", err))
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fault.Write(path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fault.Write(path, err)
	}
	if err := tmp.Close(); err != nil {
		return fault.Write(path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fault.Write(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fault.Write(path, err)
	}
	return nil
}

// MarshalJSON encodes v with two-space indentation and without HTML escaping,
// keeping non-ASCII titles readable in the stored files.
func MarshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func WriteJSON(path string, v any) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fault.Write(path, fmt.Errorf("failed to encode JSON: %w", err))
	}
	return WriteFileAtomic(path, data, 0o644)
}

// ReadJSON decodes path into v. A missing file returns (false, nil) and leaves v untouched;
// an unreadable or invalid file returns a CorruptState fault.
func ReadJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return true, fault.New(fault.CorruptState, "failed to read", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fault.Corrupt(path, err)
	}
	return true, nil
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
