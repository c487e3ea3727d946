package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-shiori/go-epub"
)

// EpubWriter spools pages to a temporary directory and compiles them into an
// EPUB on Close, one page after another in name order.
type EpubWriter struct {
	path   string
	title  string
	author string

	mu     sync.Mutex
	tmpDir string
	pages  []string
	opened bool
	closed bool
}

// NewEpubWriter creates a writer for the book at path
func NewEpubWriter(path, title, author string) *EpubWriter {
	return &EpubWriter{path: path, title: title, author: author}
}

func (w *EpubWriter) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return writeErr(w.path, ErrClosed)
	}
	if w.opened {
		return nil
	}
	if err := ensureParent(w.path); err != nil {
		return writeErr(w.path, err)
	}
	dir, err := os.MkdirTemp("", "webtoons-epub-*")
	if err != nil {
		return writeErr(w.path, err)
	}
	w.tmpDir = dir
	w.opened = true
	return nil
}

func (w *EpubWriter) Write(r io.Reader, name string) (int64, error) {
	w.mu.Lock()
	opened, closed, dir := w.opened, w.closed, w.tmpDir
	w.mu.Unlock()
	if !opened {
		return 0, writeErr(name, ErrNotOpen)
	}
	if closed {
		return 0, writeErr(name, ErrClosed)
	}

	if _, err := localName(name); err != nil {
		return 0, writeErr(name, err)
	}
	flat := strings.ReplaceAll(filepath.ToSlash(name), "/", "_")
	path := filepath.Join(dir, flat)

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

	w.mu.Lock()
	w.pages = append(w.pages, flat)
	w.mu.Unlock()
	return n, nil
}

func (w *EpubWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if !w.opened {
		return nil
	}
	defer os.RemoveAll(w.tmpDir)

	if len(w.pages) == 0 {
		return nil
	}
	sort.Strings(w.pages)

	book, err := epub.NewEpub(w.title)
	if err != nil {
		return writeErr(w.path, fmt.Errorf("failed to create EPub: %w", err))
	}
	if w.author != "" {
		book.SetAuthor(w.author)
	}
	book.SetLang("en")

	var body strings.Builder
	for i, page := range w.pages {
		internalPath, err := book.AddImage(filepath.Join(w.tmpDir, page), page)
		if err != nil {
			return writeErr(page, fmt.Errorf("failed to add image: %w", err))
		}
		fmt.Fprintf(&body, `<div class="page"><img src="%s" alt="Page %d" style="width:100%%;height:auto;"/></div>%s`,
			internalPath, i+1, "\n")
	}

	if _, err := book.AddSection(body.String(), w.title, "", ""); err != nil {
		return writeErr(w.path, fmt.Errorf("failed to add section: %w", err))
	}
	if err := book.Write(w.path); err != nil {
		return writeErr(w.path, fmt.Errorf("failed to write EPub: %w", err))
	}
	return nil
}
