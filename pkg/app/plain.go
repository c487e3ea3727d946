package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/kerbaras/webtoons/pkg/data"
	"github.com/kerbaras/webtoons/pkg/services"
)

// Plain prints one line per event, for output that is not a terminal
type Plain struct {
	w     io.Writer
	mu    sync.Mutex
	total int
	done  int
}

func NewPlain(w io.Writer) *Plain {
	return &Plain{w: w}
}

// Bind hooks the reporter into opts
func (p *Plain) Bind(opts *services.Options) {
	opts.OnFetched = p.fetched
	opts.OnChapterDone = p.chapterDone
}

func (p *Plain) fetched(chapters []data.ChapterInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = len(chapters)
	title := ""
	if len(chapters) > 0 {
		title = chapters[0].SeriesTitle
	}
	fmt.Fprintf(p.w, "%s: downloading %d chapters\n", title, len(chapters))
}

func (p *Plain) chapterDone(r services.ChapterResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	switch r.Status {
	case services.StatusCompleted:
		fmt.Fprintf(p.w, "[%d/%d] chapter %d: %d pages -> %s\n", p.done, p.total, r.Chapter.Number, len(r.Pages), r.Path)
	case services.StatusCanceled:
		fmt.Fprintf(p.w, "[%d/%d] chapter %d: canceled\n", p.done, p.total, r.Chapter.Number)
	default:
		fmt.Fprintf(p.w, "[%d/%d] chapter %d: failed: %v\n", p.done, p.total, r.Chapter.Number, r.Err)
	}
}

// Summary prints the outcome of the whole run
func (p *Plain) Summary(results []services.ChapterResult, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	completed := 0
	for _, r := range results {
		if r.Status == services.StatusCompleted {
			completed++
		}
	}

	var wde *services.WebtoonDownloadError
	switch {
	case err == nil:
		fmt.Fprintf(p.w, "done: %d chapters downloaded\n", completed)
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(p.w, "stopped: %v (%d chapters downloaded)\n", err, completed)
	case errors.As(err, &wde) && wde.Msg == "":
		fmt.Fprintf(p.w, "finished with errors: %d/%d chapters downloaded\n", completed, len(results))
	default:
		fmt.Fprintf(p.w, "failed: %v\n", err)
	}
}
