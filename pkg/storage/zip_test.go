package storage

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type zipFactory func(path string) Writer

var zipWriters = map[string]zipFactory{
	"memory": func(path string) Writer { return NewZipWriter(path) },
	"file":   func(path string) Writer { return NewBufferedZipWriter(path, "") },
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	out := make(map[string]string)
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = string(data)
	}
	return out
}

func TestZipWriters(t *testing.T) {
	for name, newWriter := range zipWriters {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "007.cbz")
			w := newWriter(path)
			require.NoError(t, w.Open())
			require.NoError(t, w.Open())

			n, err := w.Write(strings.NewReader("page-one"), "007_01.jpg")
			require.NoError(t, err)
			assert.Equal(t, int64(8), n)

			_, err = w.Write(strings.NewReader("page-two"), "007_02.jpg")
			require.NoError(t, err)

			require.NoError(t, w.Close())
			require.NoError(t, w.Close())

			entries := readZip(t, path)
			assert.Equal(t, map[string]string{
				"007_01.jpg": "page-one",
				"007_02.jpg": "page-two",
			}, entries)
		})
	}
}

func TestZipWritersConcurrentWrites(t *testing.T) {
	for name, newWriter := range zipWriters {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "01.zip")
			w := newWriter(path)
			require.NoError(t, w.Open())

			var wg sync.WaitGroup
			for i := 1; i <= 40; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := w.Write(strings.NewReader(strings.Repeat("x", i*100)), fmt.Sprintf("%02d.jpg", i))
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()
			require.NoError(t, w.Close())

			entries := readZip(t, path)
			assert.Len(t, entries, 40)
			assert.Len(t, entries["40.jpg"], 4000)
		})
	}
}

func TestZipWritersSurviveFailedWrite(t *testing.T) {
	for name, newWriter := range zipWriters {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "01.zip")
			w := newWriter(path)
			require.NoError(t, w.Open())

			_, err := w.Write(strings.NewReader("a"), "01.jpg")
			require.NoError(t, err)

			_, err = w.Write(&brokenReader{}, "02.jpg")
			require.Error(t, err)
			var swe *StreamWriteError
			require.ErrorAs(t, err, &swe)
			assert.Equal(t, "02.jpg", swe.Item)

			_, err = w.Write(strings.NewReader("c"), "03.jpg")
			require.NoError(t, err)

			require.NoError(t, w.Close())

			entries := readZip(t, path)
			names := make([]string, 0, len(entries))
			for n := range entries {
				names = append(names, n)
			}
			sort.Strings(names)
			assert.Equal(t, []string{"01.jpg", "03.jpg"}, names)
		})
	}
}

func TestZipWriterRequiresOpen(t *testing.T) {
	for name, newWriter := range zipWriters {
		t.Run(name, func(t *testing.T) {
			w := newWriter(filepath.Join(t.TempDir(), "01.zip"))

			_, err := w.Write(strings.NewReader("x"), "01.jpg")
			assert.ErrorIs(t, err, ErrNotOpen)

			// closing a never opened writer is harmless
			assert.NoError(t, w.Close())
		})
	}
}

func TestZipWriterEmptyArchiveIsValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "01.zip")
	w := NewZipWriter(path)
	require.NoError(t, w.Open())
	require.NoError(t, w.Close())

	assert.Empty(t, readZip(t, path))
}
