package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
)

// FolderWriter stores every item as its own file below a root directory.
// Writes to different names are independent and run fully in parallel.
type FolderWriter struct {
	root   string
	opened atomic.Bool
	closed atomic.Bool
}

// NewFolderWriter creates a writer rooted at dir
func NewFolderWriter(dir string) *FolderWriter {
	return &FolderWriter{root: dir}
}

func (w *FolderWriter) Open() error {
	if w.closed.Load() {
		return writeErr(w.root, ErrClosed)
	}
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return writeErr(w.root, fmt.Errorf("failed to create directory: %w", err))
	}
	w.opened.Store(true)
	return nil
}

func (w *FolderWriter) Write(r io.Reader, name string) (int64, error) {
	if !w.opened.Load() {
		return 0, writeErr(name, ErrNotOpen)
	}
	if w.closed.Load() {
		return 0, writeErr(name, ErrClosed)
	}

	rel, err := localName(name)
	if err != nil {
		return 0, writeErr(name, err)
	}
	path := filepath.Join(w.root, rel)
	if err := ensureParent(path); err != nil {
		return 0, writeErr(name, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, writeErr(name, err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return n, writeErr(name, err)
	}
	return n, nil
}

func (w *FolderWriter) Close() error {
	w.closed.Store(true)
	return nil
}
