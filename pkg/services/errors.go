package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kerbaras/webtoons/pkg/client"
	"github.com/kerbaras/webtoons/pkg/data"
)

// ErrNoPages is returned when a chapter viewer lists no images
var ErrNoPages = errors.New("no pages found")

// ImageDownloadError reports a page that could not be fetched or transformed
type ImageDownloadError struct {
	URL  string
	Name string
	Err  error
}

func (e *ImageDownloadError) Error() string {
	return fmt.Sprintf("failed to download page %s from %s: %v", e.Name, e.URL, e.Err)
}

func (e *ImageDownloadError) Unwrap() error { return e.Err }

// ChapterDownloadError reports a chapter whose page list or pages failed
type ChapterDownloadError struct {
	Chapter data.ChapterInfo
	Err     error
}

func (e *ChapterDownloadError) Error() string {
	return fmt.Sprintf("chapter %d: %v", e.Chapter.Number, e.Err)
}

func (e *ChapterDownloadError) Unwrap() error { return e.Err }

// WebtoonDownloadError is either a pre-flight failure (Msg set) or the
// aggregate of every chapter that failed during a run.
type WebtoonDownloadError struct {
	URL  string
	Msg  string
	Errs []error
}

func (e *WebtoonDownloadError) Error() string {
	if e.Msg != "" {
		if len(e.Errs) > 0 {
			return fmt.Sprintf("%s: %s: %v", e.URL, e.Msg, errors.Join(e.Errs...))
		}
		return fmt.Sprintf("%s: %s", e.URL, e.Msg)
	}

	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("failed to download %d chapter(s) of %s:\n  %s",
		len(e.Errs), e.URL, strings.Join(msgs, "\n  "))
}

func (e *WebtoonDownloadError) Unwrap() []error { return e.Errs }

// IsRateLimited reports whether any cause in err's tree is an HTTP 429
func IsRateLimited(err error) bool {
	return client.IsRateLimited(err)
}
