package services

import "github.com/kerbaras/webtoons/pkg/data"

// ProgressType is a point in a chapter's lifecycle
type ProgressType int

const (
	Start ProgressType = iota
	ChapterInfoFetched
	PageCompleted
	Completed
)

func (t ProgressType) String() string {
	switch t {
	case Start:
		return "start"
	case ChapterInfoFetched:
		return "chapter info fetched"
	case PageCompleted:
		return "page completed"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// ChapterProgress is reported by a ChapterDownloader. TotalPages is known from
// ChapterInfoFetched on; Page is set for PageCompleted only.
type ChapterProgress struct {
	Chapter    data.ChapterInfo
	Type       ProgressType
	TotalPages int
	Page       PageResult
}

// ChapterResult is the outcome of one chapter: its stored pages or the failure
type ChapterResult struct {
	Chapter data.ChapterInfo
	Path    string // chapter directory or container file
	Pages   []PageResult
	Status  string // StatusCompleted, StatusFailed or StatusCanceled
	Err     error
}
