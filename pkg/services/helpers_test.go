package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kerbaras/webtoons/pkg/client"
	"github.com/kerbaras/webtoons/pkg/data"
	"github.com/kerbaras/webtoons/pkg/sources"
	"github.com/kerbaras/webtoons/pkg/storage"
	"github.com/klauspost/compress/zip"
)

// Mock implementations for testing

type mockFetcher struct {
	seriesFunc   func(ctx context.Context, seriesURL string) (sources.SeriesInfo, error)
	chaptersFunc func(ctx context.Context, seriesURL string, r data.Range) ([]data.ChapterInfo, error)
	chapterFunc  func(ctx context.Context, viewerURL string) (sources.ChapterPage, error)

	calls atomic.Int32
}

func (m *mockFetcher) Series(ctx context.Context, seriesURL string) (sources.SeriesInfo, error) {
	m.calls.Add(1)
	if m.seriesFunc != nil {
		return m.seriesFunc(ctx, seriesURL)
	}
	return sources.SeriesInfo{Title: "Test Series", Summary: "A test series"}, nil
}

func (m *mockFetcher) Chapters(ctx context.Context, seriesURL string, r data.Range) ([]data.ChapterInfo, error) {
	m.calls.Add(1)
	if m.chaptersFunc != nil {
		return m.chaptersFunc(ctx, seriesURL, r)
	}
	return nil, nil
}

func (m *mockFetcher) Chapter(ctx context.Context, viewerURL string) (sources.ChapterPage, error) {
	m.calls.Add(1)
	if m.chapterFunc != nil {
		return m.chapterFunc(ctx, viewerURL)
	}
	return sources.ChapterPage{}, nil
}

// seriesFetcher serves n chapters of pages images each, viewer URLs "viewer/<n>"
func seriesFetcher(chapters, pages int) *mockFetcher {
	return &mockFetcher{
		chaptersFunc: func(ctx context.Context, seriesURL string, r data.Range) ([]data.ChapterInfo, error) {
			var all []data.ChapterInfo
			for i := 1; i <= chapters; i++ {
				all = append(all, data.ChapterInfo{
					Number:        i,
					DataEpisodeNo: i + 100,
					Title:         fmt.Sprintf("Episode %d", i),
					ViewerURL:     fmt.Sprintf("viewer/%d", i),
					TotalChapters: chapters,
				})
			}
			return data.SelectChapters(all, r), nil
		},
		chapterFunc: func(ctx context.Context, viewerURL string) (sources.ChapterPage, error) {
			var urls []string
			for p := 1; p <= pages; p++ {
				urls = append(urls, fmt.Sprintf("https://cdn.test/%s/%d.png", viewerURL, p))
			}
			return sources.ChapterPage{ImageURLs: urls, Title: "Title of " + viewerURL, Notes: "notes"}, nil
		},
	}
}

// mockStreamer is an instrumented fake HTTP client
type mockStreamer struct {
	streamFunc func(ctx context.Context, rawURL string) ([]byte, error)
	delay      time.Duration

	mu       sync.Mutex
	urls     []string
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (m *mockStreamer) Stream(ctx context.Context, rawURL string) (*client.Stream, error) {
	m.mu.Lock()
	m.urls = append(m.urls, rawURL)
	m.mu.Unlock()

	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, &client.DownloadError{URL: rawURL, Err: ctx.Err()}
		}
	}

	body := testPNG
	if m.streamFunc != nil {
		var err error
		if body, err = m.streamFunc(ctx, rawURL); err != nil {
			return nil, &client.DownloadError{URL: rawURL, Err: err}
		}
	}
	return &client.Stream{
		ReadCloser:    io.NopCloser(bytes.NewReader(body)),
		URL:           rawURL,
		ContentType:   "image/png",
		ContentLength: int64(len(body)),
	}, nil
}

func (m *mockStreamer) requested() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.urls...)
	sort.Strings(out)
	return out
}

// mockWriter is an in-memory storage.Writer counting its lifecycle calls
type mockWriter struct {
	writeFunc func(name string, data []byte) error

	opens  atomic.Int32
	closes atomic.Int32

	mu    sync.Mutex
	items map[string][]byte
}

func (m *mockWriter) Open() error {
	m.opens.Add(1)
	return nil
}

func (m *mockWriter) Write(r io.Reader, name string) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	if m.writeFunc != nil {
		if err := m.writeFunc(name, data); err != nil {
			return 0, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string][]byte)
	}
	m.items[name] = data
	return int64(len(data)), nil
}

func (m *mockWriter) Close() error {
	m.closes.Add(1)
	return nil
}

func (m *mockWriter) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name := range m.items {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type mockRecorder struct {
	saveFunc func(d *data.Download) error

	mu        sync.Mutex
	downloads []data.Download
}

func (m *mockRecorder) SaveDownload(d *data.Download) error {
	m.mu.Lock()
	m.downloads = append(m.downloads, *d)
	m.mu.Unlock()
	if m.saveFunc != nil {
		return m.saveFunc(d)
	}
	return nil
}

func (m *mockRecorder) byChapter() map[int]data.Download {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]data.Download)
	for _, d := range m.downloads {
		out[d.Chapter] = d
	}
	return out
}

// progressLog collects progress events from concurrent chapters
type progressLog struct {
	mu     sync.Mutex
	events []ChapterProgress
}

func (p *progressLog) record(e ChapterProgress) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *progressLog) types(chapter int) []ProgressType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ProgressType
	for _, e := range p.events {
		if e.Chapter.Number == chapter {
			out = append(out, e.Type)
		}
	}
	return out
}

var errPageFailed = errors.New("page failed")

var testPNG = createTestPNG()

func createTestPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 30), uint8(y * 30), 128, 255})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func testChapter(n, total int) data.ChapterInfo {
	return data.ChapterInfo{
		Number:        n,
		DataEpisodeNo: n,
		Title:         fmt.Sprintf("Episode %d", n),
		ViewerURL:     fmt.Sprintf("viewer/%d", n),
		SeriesTitle:   "Test Series",
		TotalChapters: total,
	}
}

func requireNoLeak(t *testing.T, m *mockStreamer) {
	t.Helper()
	if n := m.inFlight.Load(); n != 0 {
		t.Errorf("expected no requests in flight, got %d", n)
	}
}

// failingWriter rejects one item and counts Close calls
type failingWriter struct {
	storage.Writer
	fail   string
	closes int
}

func (f *failingWriter) Write(r io.Reader, name string) (int64, error) {
	if name == f.fail {
		return 0, &storage.StreamWriteError{Item: name, Err: errors.New("disk full")}
	}
	return f.Writer.Write(r, name)
}

func (f *failingWriter) Close() error {
	f.closes++
	return f.Writer.Close()
}

func openZip(path string) (*zip.ReadCloser, error) {
	return zip.OpenReader(path)
}
