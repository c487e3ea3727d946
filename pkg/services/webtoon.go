package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kerbaras/webtoons/pkg/data"
	"github.com/kerbaras/webtoons/pkg/exporter"
	"github.com/kerbaras/webtoons/pkg/naming"
	"github.com/kerbaras/webtoons/pkg/sources"
	"github.com/kerbaras/webtoons/pkg/storage"
	"github.com/kerbaras/webtoons/pkg/utils"
	"golang.org/x/sync/semaphore"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// NormalizeURL cleans up a user supplied series URL: surrounding space and
// shell escapes are dropped and a missing scheme defaults to https.
func NormalizeURL(raw string) (string, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), `\`, "")
	if s == "" {
		return "", errors.New("empty url")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("malformed url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("url has no host")
	}
	return u.String(), nil
}

// WebtoonDownloader downloads the selected chapters of one series. Chapters
// fail independently; the run reports every failure at the end.
type WebtoonDownloader struct {
	opts     Options
	fetcher  sources.Fetcher
	images   *ImageDownloader
	exporter *exporter.Exporter
	naming   naming.Generator
	logger   *slog.Logger

	seriesURL string
}

// NewWebtoonDownloader creates a downloader for opts
func NewWebtoonDownloader(opts Options, fetcher sources.Fetcher, images *ImageDownloader) *WebtoonDownloader {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if opts.ConcurrentChapters <= 0 {
		opts.ConcurrentChapters = DefaultConcurrentChapters
	}
	if opts.ConcurrentPages <= 0 {
		opts.ConcurrentPages = DefaultConcurrentPages
	}

	var gen naming.Generator = naming.Flat{}
	if opts.Storage == storage.Images && opts.Separate {
		gen = naming.Separate{UseTitles: opts.TitleDirs}
	}

	var exp *exporter.Exporter
	if opts.ExportMetadata {
		exp = exporter.New(opts.ExportFormat)
	}

	return &WebtoonDownloader{
		opts:     opts,
		fetcher:  fetcher,
		images:   images,
		exporter: exp,
		naming:   gen,
		logger:   logger,
	}
}

// Run downloads the series. On cancellation it returns the chapters that
// finished together with ctx.Err(), never the aggregate error.
func (d *WebtoonDownloader) Run(ctx context.Context) ([]ChapterResult, error) {
	seriesURL, err := NormalizeURL(d.opts.URL)
	if err != nil {
		return nil, &WebtoonDownloadError{URL: d.opts.URL, Msg: "invalid url", Errs: []error{err}}
	}
	d.seriesURL = seriesURL

	series, err := d.fetcher.Series(ctx, seriesURL)
	if err != nil {
		return nil, d.fetchFailed(ctx, seriesURL, err)
	}
	chapters, err := d.fetcher.Chapters(ctx, seriesURL, d.opts.Range)
	if err != nil {
		return nil, d.fetchFailed(ctx, seriesURL, err)
	}
	if len(chapters) == 0 {
		return nil, d.fetchFailed(ctx, seriesURL, &sources.FetchError{Kind: sources.ChapterList, URL: seriesURL, Err: sources.ErrNoChaptersFound})
	}
	for i := range chapters {
		chapters[i].SeriesTitle = series.Title
	}
	d.logger.Info("fetched chapters", "series", series.Title, "count", len(chapters))
	if d.opts.OnFetched != nil {
		d.opts.OnFetched(chapters)
	}

	dest := d.opts.Dest
	if dest == "" {
		dest = utils.Slugify(series.Title)
	}
	if dest == "" {
		dest = "webtoon"
	}

	if d.exporter != nil {
		if err := d.exporter.AddSeriesSummary(series.Summary, dest); err != nil {
			d.logger.Warn("failed to export series summary", "error", err)
		}
	}

	chapterPool := semaphore.NewWeighted(int64(d.opts.ConcurrentChapters))
	cd := &ChapterDownloader{
		Fetcher:  d.fetcher,
		Images:   d.images,
		Pages:    semaphore.NewWeighted(int64(d.opts.ConcurrentPages)),
		Naming:   d.naming,
		Exporter: d.exporter,
		Quality:  d.opts.Quality,
		Progress: d.opts.OnProgress,
		Logger:   d.logger,
	}

	results := make([]ChapterResult, len(chapters))
	started := make([]bool, len(chapters))
	var wg sync.WaitGroup
	for i, ch := range chapters {
		if ctx.Err() != nil {
			break
		}
		if err := chapterPool.Acquire(ctx, 1); err != nil {
			break
		}
		started[i] = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer chapterPool.Release(1)
			results[i] = d.chapter(ctx, cd, ch, dest)
		}()
	}
	wg.Wait()

	if d.exporter != nil {
		if err := d.exporter.WriteData(dest); err != nil {
			d.logger.Warn("failed to write exported data", "error", err)
		}
	}

	var done []ChapterResult
	var errs []error
	for i, r := range results {
		if !started[i] {
			continue
		}
		done = append(done, r)
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}

	if err := ctx.Err(); err != nil {
		d.logger.Info("download canceled", "finished", len(done)-len(errs))
		return done, err
	}
	if len(errs) > 0 {
		return done, &WebtoonDownloadError{URL: seriesURL, Errs: errs}
	}
	return done, nil
}

func (d *WebtoonDownloader) fetchFailed(ctx context.Context, seriesURL string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &WebtoonDownloadError{URL: seriesURL, Msg: "failed to fetch series", Errs: []error{err}}
}

func (d *WebtoonDownloader) chapter(ctx context.Context, cd *ChapterDownloader, ch data.ChapterInfo, dest string) ChapterResult {
	w, path := d.writer(ch, dest)
	pages, err := cd.Run(ctx, ch, dest, w)

	result := ChapterResult{Chapter: ch, Path: path, Pages: pages, Err: err}
	status := StatusCompleted
	switch {
	case err != nil && ctx.Err() != nil:
		status = StatusCanceled
		d.logger.Debug("chapter canceled", "chapter", ch.Number)
	case err != nil:
		status = StatusFailed
		d.logger.Error("chapter failed", "chapter", ch.Number, "error", err)
	default:
		d.logger.Info("chapter downloaded", "chapter", ch.Number, "pages", len(pages), "path", path)
	}
	result.Status = status
	d.opts.Metrics.ChapterFinished(status)
	d.record(result, status)

	if d.opts.OnChapterDone != nil {
		d.opts.OnChapterDone(result)
	}
	return result
}

// writer creates the storage for one chapter and returns where it ends up
func (d *WebtoonDownloader) writer(ch data.ChapterInfo, dest string) (storage.Writer, string) {
	container := filepath.Join(dest, naming.Container(ch, string(d.opts.Storage)))

	switch d.opts.Storage {
	case storage.Zip, storage.CBZ:
		if d.opts.ZipTempFile {
			return storage.NewBufferedZipWriter(container, ""), container
		}
		return storage.NewZipWriter(container), container
	case storage.PDF:
		return storage.NewPdfWriter(container), container
	case storage.EPUB:
		title := ch.SeriesTitle
		if ch.Title != "" {
			title = fmt.Sprintf("%s - %s", ch.SeriesTitle, ch.Title)
		}
		return storage.NewEpubWriter(container, title, ""), container
	}
	return storage.NewFolderWriter(dest), filepath.Join(dest, d.naming.ChapterDir(ch))
}

func (d *WebtoonDownloader) record(r ChapterResult, status string) {
	if d.opts.Recorder == nil || status == StatusCanceled {
		return
	}

	entry := &data.Download{
		RunID:       d.opts.RunID,
		SeriesURL:   d.seriesURL,
		SeriesTitle: r.Chapter.SeriesTitle,
		Chapter:     r.Chapter.Number,
		Pages:       len(r.Pages),
		Path:        r.Path,
		Format:      string(d.opts.Storage),
		Status:      status,
	}
	if r.Err != nil {
		entry.Error = r.Err.Error()
	}
	if err := d.opts.Recorder.SaveDownload(entry); err != nil {
		d.logger.Warn("failed to record download", "chapter", r.Chapter.Number, "error", err)
	}
}
