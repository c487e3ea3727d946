package data

import (
	"errors"
	"sort"
	"time"
)

// ChapterInfo describes one chapter of a series as reported by the site
type ChapterInfo struct {
	Number        int // 1-based, user facing
	DataEpisodeNo int // site internal id, may differ from Number
	Title         string
	ViewerURL     string
	SeriesTitle   string
	TotalChapters int // size of the whole series, not of the selection
}

// PageInfo describes one image of a chapter
type PageInfo struct {
	Number     int // 1-based within the chapter
	URL        string
	TotalPages int
	Chapter    ChapterInfo
}

// Range restricts which chapters of a series are downloaded.
// Start and End are 1-based and inclusive; zero leaves that side open.
type Range struct {
	Start  int
	End    int
	Latest bool
}

var (
	ErrLatestWithBounds = errors.New("latest cannot be combined with start or end")
	ErrNegativeBound    = errors.New("chapter bounds must be positive")
	ErrInvertedRange    = errors.New("start chapter must not be after end chapter")
)

// Validate reports whether the range is well formed
func (r Range) Validate() error {
	if r.Latest && (r.Start != 0 || r.End != 0) {
		return ErrLatestWithBounds
	}
	if r.Start < 0 || r.End < 0 {
		return ErrNegativeBound
	}
	if r.Start != 0 && r.End != 0 && r.Start > r.End {
		return ErrInvertedRange
	}
	return nil
}

// SortChapters orders chapters by number in place
func SortChapters(chapters []ChapterInfo) {
	sort.Slice(chapters, func(i, j int) bool {
		return chapters[i].Number < chapters[j].Number
	})
}

// SortPages orders pages by number in place
func SortPages(pages []PageInfo) {
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].Number < pages[j].Number
	})
}

// SelectChapters returns the chapters of all that fall inside r, ordered by number.
// all is not modified.
func SelectChapters(all []ChapterInfo, r Range) []ChapterInfo {
	sorted := make([]ChapterInfo, len(all))
	copy(sorted, all)
	SortChapters(sorted)

	if r.Latest {
		if len(sorted) == 0 {
			return nil
		}
		return sorted[len(sorted)-1:]
	}

	var selected []ChapterInfo
	for _, ch := range sorted {
		if r.Start != 0 && ch.Number < r.Start {
			continue
		}
		if r.End != 0 && ch.Number > r.End {
			continue
		}
		selected = append(selected, ch)
	}
	return selected
}

// NewPages builds the page list of a chapter from its image URLs, numbering from 1
func NewPages(chapter ChapterInfo, urls []string) []PageInfo {
	pages := make([]PageInfo, len(urls))
	for i, u := range urls {
		pages[i] = PageInfo{
			Number:     i + 1,
			URL:        u,
			TotalPages: len(urls),
			Chapter:    chapter,
		}
	}
	return pages
}

// Download is one row of the download history
type Download struct {
	ID          string
	RunID       string
	SeriesURL   string
	SeriesTitle string
	Chapter     int
	Pages       int
	Path        string
	Format      string
	Status      string // "completed", "error"
	Error       string
	CreatedAt   time.Time
}
