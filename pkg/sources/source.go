// Package sources extracts series metadata, chapter lists and page URLs from
// webtoons.com.
package sources

import (
	"context"
	"errors"
	"fmt"

	"github.com/kerbaras/webtoons/pkg/client"
	"github.com/kerbaras/webtoons/pkg/data"
)

// SeriesInfo is what the series list page tells about a series
type SeriesInfo struct {
	Title   string
	Summary string
}

// ChapterPage is what a chapter viewer page tells about a chapter
type ChapterPage struct {
	ImageURLs []string
	Title     string
	Notes     string // author notes, may be empty
}

// Fetcher resolves series, chapters and pages
type Fetcher interface {
	Series(ctx context.Context, seriesURL string) (SeriesInfo, error)
	// Chapters returns the chapters of the series that fall inside r, ordered by number
	Chapters(ctx context.Context, seriesURL string, r data.Range) ([]data.ChapterInfo, error)
	Chapter(ctx context.Context, viewerURL string) (ChapterPage, error)
}

// Getter is the part of the HTTP client a Fetcher needs
type Getter interface {
	Get(ctx context.Context, rawURL string) (*client.Response, error)
}

// FetchKind tells which piece of metadata could not be retrieved
type FetchKind string

const (
	SeriesTitle   FetchKind = "series title"
	ChapterList   FetchKind = "chapter list"
	ChapterURL    FetchKind = "chapter url"
	ChapterViewer FetchKind = "chapter page"
)

var ErrNoChaptersFound = errors.New("no chapters found")

// FetchError reports metadata that could not be retrieved or parsed
type FetchError struct {
	Kind FetchKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s from %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
