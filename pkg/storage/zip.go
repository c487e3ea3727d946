package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"
)

// zipArchive owns the archive handle; inserts are serialized by mu
type zipArchive struct {
	path string

	mu     sync.Mutex
	file   *os.File
	zw     *zip.Writer
	closed bool
}

func (a *zipArchive) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return writeErr(a.path, ErrClosed)
	}
	if a.zw != nil {
		return nil
	}
	if err := ensureParent(a.path); err != nil {
		return writeErr(a.path, err)
	}
	f, err := os.Create(a.path)
	if err != nil {
		return writeErr(a.path, err)
	}
	a.file = f
	a.zw = zip.NewWriter(f)
	return nil
}

// insert adds one complete entry; r must already hold all of the item's bytes
func (a *zipArchive) insert(name string, r io.Reader) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.zw == nil {
		return ErrNotOpen
	}

	entry, err := a.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}
	if _, err := io.Copy(entry, r); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	return nil
}

func (a *zipArchive) ready() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if a.zw == nil {
		return ErrNotOpen
	}
	return nil
}

func (a *zipArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	if a.zw == nil {
		return nil
	}

	err := a.zw.Close()
	if cerr := a.file.Close(); err == nil {
		err = cerr
	}
	return writeErr(a.path, err)
}

// ZipWriter builds a ZIP (or CBZ) archive, buffering each item in memory
// before inserting it.
type ZipWriter struct {
	zipArchive
}

// NewZipWriter creates a writer for the archive at path
func NewZipWriter(path string) *ZipWriter {
	return &ZipWriter{zipArchive{path: path}}
}

func (w *ZipWriter) Write(r io.Reader, name string) (int64, error) {
	if err := w.ready(); err != nil {
		return 0, writeErr(name, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, writeErr(name, err)
	}
	if err := w.insert(name, bytes.NewReader(data)); err != nil {
		return 0, writeErr(name, err)
	}
	return int64(len(data)), nil
}

// BufferedZipWriter builds a ZIP (or CBZ) archive, spooling each item to a
// temporary file first so memory stays bounded.
type BufferedZipWriter struct {
	zipArchive
	tempDir string
}

// NewBufferedZipWriter creates a writer for the archive at path; tempDir may be empty
func NewBufferedZipWriter(path, tempDir string) *BufferedZipWriter {
	return &BufferedZipWriter{zipArchive: zipArchive{path: path}, tempDir: tempDir}
}

func (w *BufferedZipWriter) Write(r io.Reader, name string) (int64, error) {
	if err := w.ready(); err != nil {
		return 0, writeErr(name, err)
	}

	tmp, err := os.CreateTemp(w.tempDir, "*.webtoons.tmp")
	if err != nil {
		return 0, writeErr(name, err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return 0, writeErr(name, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return 0, writeErr(name, err)
	}
	if err := w.insert(name, tmp); err != nil {
		return 0, writeErr(name, err)
	}
	return n, nil
}
