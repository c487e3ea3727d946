package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mediaBox = regexp.MustCompile(`/MediaBox \[0 0 ([\d.]+) ([\d.]+)\]`)

func pageWidths(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// the page tree root carries the A4 default box, skip it
	var widths []string
	for _, m := range mediaBox.FindAllSubmatch(data, -1) {
		if w := string(m[1]); w != "595.28" {
			widths = append(widths, w)
		}
	}
	return widths
}

func TestPdfWriterSortsPagesByName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "01.pdf")
	w := NewPdfWriter(path)
	require.NoError(t, w.Open())

	// each page gets a distinct width so the output order is observable
	for _, p := range []struct {
		name  string
		width int
	}{
		{"02", 30},
		{"00", 10},
		{"01", 20},
	} {
		_, err := w.Write(bytes.NewReader(createTestPNG(t, p.width, 15)), p.name)
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())

	assert.Equal(t, []string{"10.00", "20.00", "30.00"}, pageWidths(t, path), "pages are ordered by name, not by write order")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestPdfWriterMixedFormats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "01.pdf")
	w := NewPdfWriter(path)
	require.NoError(t, w.Open())

	_, err := w.Write(bytes.NewReader(createTestJPEG(t, 40, 60)), "01.jpg")
	require.NoError(t, err)
	_, err = w.Write(bytes.NewReader(createTestPNG(t, 50, 70)), "02.png")
	require.NoError(t, err)

	require.NoError(t, w.Close())
	assert.Equal(t, []string{"40.00", "50.00"}, pageWidths(t, path))
}

func TestPdfWriterRejectsNonImage(t *testing.T) {
	w := NewPdfWriter(filepath.Join(t.TempDir(), "01.pdf"))
	require.NoError(t, w.Open())
	defer w.Close()

	_, err := w.Write(strings.NewReader("<html>"), "01.jpg")
	var swe *StreamWriteError
	require.ErrorAs(t, err, &swe)
	assert.Equal(t, "01.jpg", swe.Item)
}

func TestPdfWriterSkipsEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "01.pdf")
	w := NewPdfWriter(path)
	require.NoError(t, w.Open())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPdfWriterRequiresOpen(t *testing.T) {
	w := NewPdfWriter(filepath.Join(t.TempDir(), "01.pdf"))

	_, err := w.Write(bytes.NewReader(createTestPNG(t, 2, 2)), "01.png")
	assert.ErrorIs(t, err, ErrNotOpen)
}
