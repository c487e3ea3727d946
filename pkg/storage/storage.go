// Package storage writes downloaded pages into their final container: a plain
// folder, a ZIP/CBZ archive, a PDF or an EPUB document.
//
// A Writer is a scoped resource. Open it once, write any number of named
// items (concurrently if needed) and always Close it, even after a failed
// write, so archives and documents are finalized.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Writer is a container of named byte blobs
type Writer interface {
	// Open acquires the underlying sink. Calling it again is a no-op.
	Open() error
	// Write stores everything read from r under name and returns the bytes consumed
	Write(r io.Reader, name string) (int64, error)
	// Close finalizes and releases the sink. Calling it again is a no-op.
	Close() error
}

// Type selects the container format
type Type string

const (
	Images Type = "images"
	Zip    Type = "zip"
	CBZ    Type = "cbz"
	PDF    Type = "pdf"
	EPUB   Type = "epub"
)

// Types lists the supported container formats
var Types = []Type{Images, Zip, CBZ, PDF, EPUB}

// ParseType validates a container format name
func ParseType(s string) (Type, error) {
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown storage type %q", s)
}

// IsContainer reports whether every chapter becomes a single file
func (t Type) IsContainer() bool {
	return t != Images
}

var (
	ErrNotOpen = errors.New("writer is not open")
	ErrClosed  = errors.New("writer is closed")
)

// StreamWriteError reports a failure of the sink to accept or finalize an item
type StreamWriteError struct {
	Item string
	Err  error
}

func (e *StreamWriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Item, e.Err)
}

func (e *StreamWriteError) Unwrap() error { return e.Err }

func writeErr(item string, err error) error {
	if err == nil {
		return nil
	}
	return &StreamWriteError{Item: item, Err: err}
}

// localName rejects names that would escape the container root
func localName(name string) (string, error) {
	p := filepath.FromSlash(name)
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("invalid item name %q", name)
	}
	return filepath.Clean(p), nil
}

func ensureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
