package services

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/kerbaras/webtoons/pkg/client"
	"github.com/kerbaras/webtoons/pkg/data"
	"github.com/kerbaras/webtoons/pkg/exporter"
	"github.com/kerbaras/webtoons/pkg/naming"
	"github.com/kerbaras/webtoons/pkg/sources"
	"github.com/kerbaras/webtoons/pkg/storage"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ChapterDownloader downloads every page of one chapter into one storage
// writer. The first failing page aborts the rest of the chapter.
type ChapterDownloader struct {
	Fetcher sources.Fetcher
	Images  *ImageDownloader
	// Pages bounds in-flight page downloads across every chapter of a run
	Pages  *semaphore.Weighted
	Naming naming.Generator

	Exporter *exporter.Exporter    // optional
	Quality  int                   // CDN image quality, 0 leaves URLs untouched
	Progress func(ChapterProgress) // optional
	Logger   *slog.Logger
}

func (d *ChapterDownloader) report(ch data.ChapterInfo, t ProgressType, total int, page PageResult) {
	if d.Progress != nil {
		d.Progress(ChapterProgress{Chapter: ch, Type: t, TotalPages: total, Page: page})
	}
}

func (d *ChapterDownloader) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

// pageName is the item name of a page inside the chapter's writer
func (d *ChapterDownloader) pageName(p data.PageInfo) string {
	return path.Join(d.Naming.ChapterDir(p.Chapter), d.Naming.PageFile(p))
}

// Run downloads ch into w, which it opens and always closes. dir is the
// series directory used for exported text.
func (d *ChapterDownloader) Run(ctx context.Context, ch data.ChapterInfo, dir string, w storage.Writer) (results []PageResult, err error) {
	d.report(ch, Start, 0, PageResult{})

	info, err := d.Fetcher.Chapter(ctx, ch.ViewerURL)
	if err != nil {
		return nil, &ChapterDownloadError{Chapter: ch, Err: err}
	}
	if len(info.ImageURLs) == 0 {
		return nil, &ChapterDownloadError{Chapter: ch, Err: ErrNoPages}
	}
	pages := data.NewPages(ch, info.ImageURLs)
	total := len(pages)
	d.report(ch, ChapterInfoFetched, total, PageResult{})

	if d.Exporter != nil {
		d.export(ch, info, dir)
	}

	if err := w.Open(); err != nil {
		return nil, &ChapterDownloadError{Chapter: ch, Err: err}
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			results = nil
			err = &ChapterDownloadError{Chapter: ch, Err: cerr}
		}
	}()

	results = make([]PageResult, total)
	g, gctx := errgroup.WithContext(ctx)
	gctx, abort := context.WithCancel(gctx)
	defer abort()
	for i, page := range pages {
		if gctx.Err() != nil {
			break
		}
		if err := d.Pages.Acquire(gctx, 1); err != nil {
			break
		}
		// Acquire may succeed on a done context when permits are free
		if gctx.Err() != nil {
			d.Pages.Release(1)
			break
		}

		g.Go(func() error {
			defer d.Pages.Release(1)

			res, err := d.page(gctx, page, w)
			if err != nil {
				// stop scheduling before the permit goes back
				abort()
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, &ChapterDownloadError{Chapter: ch, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &ChapterDownloadError{Chapter: ch, Err: err}
	}

	d.logger().Debug("chapter downloaded", "chapter", ch.Number, "pages", total)
	d.report(ch, Completed, total, PageResult{})
	return results, nil
}

func (d *ChapterDownloader) page(ctx context.Context, page data.PageInfo, w storage.Writer) (PageResult, error) {
	url := page.URL
	if d.Quality > 0 {
		var err error
		if url, err = client.ImageURL(url, d.Quality); err != nil {
			return PageResult{}, &ImageDownloadError{URL: page.URL, Name: d.pageName(page), Err: err}
		}
	}

	return d.Images.Run(ctx, url, d.pageName(page), w, func(r PageResult) {
		d.report(page.Chapter, PageCompleted, page.TotalPages, r)
	})
}

func (d *ChapterDownloader) export(ch data.ChapterInfo, info sources.ChapterPage, dir string) {
	title := info.Title
	if title == "" {
		title = ch.Title
	}
	chapterDir := filepath.Join(dir, d.Naming.ChapterDir(ch))
	err := d.Exporter.AddChapterDetails(ch.Number, title, info.Notes,
		filepath.Join(chapterDir, d.Naming.TitleFile(ch)),
		filepath.Join(chapterDir, d.Naming.NotesFile(ch)))
	if err != nil {
		d.logger().Warn("failed to export chapter details", "chapter", ch.Number, "error", err)
	}
}
