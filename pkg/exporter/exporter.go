// Package exporter saves the text that accompanies a series: its summary and
// each chapter's title and author notes, either as plain text files, as one
// info.json document, or both.
package exporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
)

// Format selects what the exporter writes
type Format string

const (
	Text Format = "text"
	JSON Format = "json"
	All  Format = "all"
)

// Formats lists the supported export formats
var Formats = []Format{Text, JSON, All}

// ParseFormat validates an export format name
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

func (f Format) text() bool { return f == Text || f == All }
func (f Format) json() bool { return f == JSON || f == All }

// ChapterDetails is the exported text of one chapter
type ChapterDetails struct {
	Notes string `json:"notes"`
	Title string `json:"title"`
}

type chapterMap map[int]ChapterDetails

// MarshalJSON orders chapters numerically rather than by their string keys
func (m chapterMap) MarshalJSON() ([]byte, error) {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		value, err := json.Marshal(m[k])
		if err != nil {
			return nil, err
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(k)))
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type document struct {
	Chapters chapterMap `json:"chapters"`
	Summary  string     `json:"summary"`
}

// Exporter collects series and chapter text. It is safe for concurrent use by
// chapter downloads.
type Exporter struct {
	format Format

	mu  sync.Mutex
	doc document
}

// New creates an exporter for the given format
func New(format Format) *Exporter {
	return &Exporter{
		format: format,
		doc:    document{Chapters: chapterMap{}},
	}
}

// AddSeriesSummary records the series summary and, in text mode, writes it to
// dir/summary.txt. An empty summary is ignored.
func (e *Exporter) AddSeriesSummary(summary, dir string) error {
	if summary == "" {
		return nil
	}

	e.mu.Lock()
	e.doc.Summary = summary
	e.mu.Unlock()

	if !e.format.text() {
		return nil
	}
	return writeText(filepath.Join(dir, "summary.txt"), summary+"\n")
}

// AddChapterDetails records a chapter's title and notes and, in text mode,
// writes them to titlePath and notesPath. The notes file is only written when
// there are notes.
func (e *Exporter) AddChapterDetails(chapter int, title, notes, titlePath, notesPath string) error {
	e.mu.Lock()
	e.doc.Chapters[chapter] = ChapterDetails{Title: title, Notes: notes}
	e.mu.Unlock()

	if !e.format.text() {
		return nil
	}
	if err := writeText(titlePath, title+"\n"); err != nil {
		return err
	}
	if notes == "" {
		return nil
	}
	return writeText(notesPath, notes+"\n")
}

// WriteData writes everything collected so far to dir/info.json when the
// format includes JSON
func (e *Exporter) WriteData(dir string) error {
	if !e.format.json() {
		return nil
	}

	e.mu.Lock()
	data, err := json.MarshalIndent(e.doc, "", "    ")
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode export data: %w", err)
	}
	return writeText(filepath.Join(dir, "info.json"), string(data))
}

func writeText(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
