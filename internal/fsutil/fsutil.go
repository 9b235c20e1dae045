// Package fsutil holds the small file helpers shared by the workflow loaders
// and the state store.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MaxDocumentSize caps workflow, template and config documents.
const MaxDocumentSize = 4 << 20

// ErrTooLarge is returned when a document exceeds MaxDocumentSize.
var ErrTooLarge = errors.New("file exceeds maximum document size")

// ReadFileScoped reads a file by opening a root at the file's directory, so
// the name cannot climb out of it through symlinks or "..".
func ReadFileScoped(path string) ([]byte, error) {
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	if path == "" || base == "." || base == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid file path: %q", path)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	file, err := root.Open(base)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxDocumentSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxDocumentSize {
		return nil, fmt.Errorf("%s: %w", path, ErrTooLarge)
	}
	return data, nil
}
