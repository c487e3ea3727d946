package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/kerbaras/webtoons/pkg/client"
	"github.com/kerbaras/webtoons/pkg/data"
	"github.com/kerbaras/webtoons/pkg/exporter"
	"github.com/kerbaras/webtoons/pkg/metrics"
	"github.com/kerbaras/webtoons/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// E2E tests for the full download pipeline

type fakeSite struct {
	*httptest.Server

	mu       sync.Mutex
	referers []string
	images   int
}

func newFakeSite(t *testing.T, chapters, pages int) *fakeSite {
	t.Helper()
	site := &fakeSite{}
	mux := http.NewServeMux()

	mux.HandleFunc("/en/fantasy/e2e/list", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1 class="subj">E2E Series</h1><p class="summary">An end to end test.</p></body></html>`)
	})
	mux.HandleFunc("/api/v1/webtoon/42/episodes", func(w http.ResponseWriter, r *http.Request) {
		var episodes []string
		for n := chapters; n >= 1; n-- {
			episodes = append(episodes, fmt.Sprintf(
				`{"episodeNo":%d,"episodeTitle":"Ep. %d","viewerLink":"%s/viewer/%d?title_no=42&episode_no=%d"}`,
				n, n, site.URL, n, n))
		}
		fmt.Fprintf(w, `{"result":{"episodeList":[%s]}}`, strings.Join(episodes, ","))
	})
	mux.HandleFunc("/viewer/", func(w http.ResponseWriter, r *http.Request) {
		n := strings.TrimPrefix(r.URL.Path, "/viewer/")
		var imgs strings.Builder
		for p := 1; p <= pages; p++ {
			fmt.Fprintf(&imgs, `<img data-url="%s/img/%s/%d.png?type=q90">`, site.URL, n, p)
		}
		fmt.Fprintf(w, `<html><body><h1>Episode %s</h1><div class="viewer_img _img_viewer_area">%s</div>`+
			`<div class="author_text">note %s</div></body></html>`, n, imgs.String(), n)
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.referers = append(site.referers, r.Header.Get("Referer"))
		site.images++
		site.mu.Unlock()
		w.Header().Set("Content-Type", "image/png")
		w.Write(testPNG)
	})

	site.Server = httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

func e2eOptions(site *fakeSite, dest string) Options {
	opts := DefaultOptions(site.URL + "/en/fantasy/e2e/list?title_no=42")
	opts.Dest = dest
	opts.APIURL = site.URL
	opts.Client.Retry = client.RetryNone
	return opts
}

func TestE2E_DownloadToCBZ(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}

	site := newFakeSite(t, 3, 4)
	dest := t.TempDir()

	opts := e2eOptions(site, dest)
	opts.Storage = storage.CBZ
	opts.ImageFormat = "jpg"
	opts.Quality = 100
	opts.ExportMetadata = true
	opts.ExportFormat = exporter.JSON
	opts.Metrics = metrics.New()

	repo, err := data.OpenRepository(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer repo.Close()
	opts.Recorder = repo
	opts.RunID = "e2e"

	results, err := Download(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for n := 1; n <= 3; n++ {
		reader, err := openZip(filepath.Join(dest, fmt.Sprintf("%d.cbz", n)))
		require.NoError(t, err)
		var names []string
		for _, f := range reader.File {
			names = append(names, f.Name)
		}
		reader.Close()
		sort.Strings(names)
		assert.Equal(t, []string{
			fmt.Sprintf("%d_1.jpg", n), fmt.Sprintf("%d_2.jpg", n),
			fmt.Sprintf("%d_3.jpg", n), fmt.Sprintf("%d_4.jpg", n),
		}, names)
	}

	info, err := os.ReadFile(filepath.Join(dest, "info.json"))
	require.NoError(t, err)
	assert.Contains(t, string(info), `"summary": "An end to end test."`)
	assert.Contains(t, string(info), `"notes": "note 2"`)

	site.mu.Lock()
	assert.Equal(t, 12, site.images)
	for _, ref := range site.referers {
		assert.Equal(t, client.WebtoonURL+"/", ref)
	}
	site.mu.Unlock()

	chapters, err := repo.DownloadedChapters(opts.URL)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, chapters)

	assert.Contains(t, scrape(t, opts.Metrics), `webtoons_chapters_total{status="completed"} 3`)
}

func TestE2E_DownloadLatestToPDF(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}

	site := newFakeSite(t, 5, 2)
	dest := t.TempDir()

	opts := e2eOptions(site, dest)
	opts.Storage = storage.PDF
	opts.Range = data.Range{Latest: true}

	results, err := Download(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 5, results[0].Chapter.Number)

	pdf, err := os.ReadFile(filepath.Join(dest, "5.pdf"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf), "%PDF-"))
}

func TestE2E_DownloadSeparateFolders(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}

	site := newFakeSite(t, 2, 3)
	dest := t.TempDir()

	opts := e2eOptions(site, dest)
	opts.Separate = true
	opts.ExportMetadata = true
	opts.ExportFormat = exporter.Text

	_, err := Download(context.Background(), opts)
	require.NoError(t, err)

	for _, name := range []string{"1/1.png", "1/3.png", "2/2.png", "1/title.txt", "2/notes.txt", "summary.txt"} {
		_, err := os.Stat(filepath.Join(dest, filepath.FromSlash(name)))
		assert.NoError(t, err, name)
	}
}

func TestE2E_InvalidOptions(t *testing.T) {
	opts := DefaultOptions(testSeriesURL)
	opts.Separate = true
	opts.Storage = storage.PDF

	_, err := Download(context.Background(), opts)
	var wde *WebtoonDownloadError
	require.ErrorAs(t, err, &wde)
	assert.ErrorIs(t, err, ErrSeparateNeedsImages)
}
