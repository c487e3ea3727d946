package components

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/kerbaras/webtoons/pkg/app/styles"
	"github.com/kerbaras/webtoons/pkg/services"
)

type chapterState struct {
	number int
	title  string
	status string
	total  int
	done   int
}

// Failure is a chapter that ended with an error
type Failure struct {
	Chapter int
	Err     error
}

// ProgressTracker keeps the state of the chapters currently downloading
type ProgressTracker struct {
	chapters map[int]*chapterState
	bar      progress.Model
	width    int

	completed int
	canceled  int
	pages     int
	failures  []Failure
}

func NewProgressTracker(width int) *ProgressTracker {
	p := &ProgressTracker{
		chapters: make(map[int]*chapterState),
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
	p.SetWidth(width)
	return p
}

// SetWidth resizes the bars to fit a terminal of the given width
func (p *ProgressTracker) SetWidth(width int) {
	p.width = width
	p.bar.Width = max(width-24, 10)
}

func (p *ProgressTracker) Update(ev services.ChapterProgress) {
	st, ok := p.chapters[ev.Chapter.Number]
	if !ok {
		st = &chapterState{number: ev.Chapter.Number, title: ev.Chapter.Title}
		p.chapters[ev.Chapter.Number] = st
	}

	switch ev.Type {
	case services.Start:
		st.status = "fetching"
	case services.ChapterInfoFetched:
		st.status = "downloading"
		st.total = ev.TotalPages
	case services.PageCompleted:
		st.done++
		p.pages++
	case services.Completed:
		st.done = st.total
	}
}

// Finish removes a chapter from the active set and counts its outcome
func (p *ProgressTracker) Finish(r services.ChapterResult) {
	delete(p.chapters, r.Chapter.Number)
	switch r.Status {
	case services.StatusCompleted:
		p.completed++
	case services.StatusCanceled:
		p.canceled++
	default:
		p.failures = append(p.failures, Failure{Chapter: r.Chapter.Number, Err: r.Err})
	}
}

func (p *ProgressTracker) Clear() {
	p.chapters = make(map[int]*chapterState)
}

func (p *ProgressTracker) HasActive() bool {
	return len(p.chapters) > 0
}

// Finished is the number of chapters that ended, whatever the outcome
func (p *ProgressTracker) Finished() int {
	return p.completed + p.canceled + len(p.failures)
}

func (p *ProgressTracker) Completed() int      { return p.completed }
func (p *ProgressTracker) Pages() int          { return p.pages }
func (p *ProgressTracker) Failures() []Failure { return p.failures }

func (p *ProgressTracker) View() string {
	if len(p.chapters) == 0 {
		return ""
	}

	active := make([]*chapterState, 0, len(p.chapters))
	for _, st := range p.chapters {
		active = append(active, st)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].number < active[j].number })

	var b strings.Builder
	for _, st := range active {
		label := fmt.Sprintf("Chapter %d", st.number)
		if st.title != "" {
			label += " " + styles.MutedStyle.Render(st.title)
		}
		b.WriteString(styles.TextStyle.Render(label))
		b.WriteString("\n")

		if st.total > 0 {
			percent := float64(st.done) / float64(st.total)
			b.WriteString(p.bar.ViewAs(percent))
			b.WriteString(styles.StatusStyle(st.status).Render(fmt.Sprintf(" %d/%d", st.done, st.total)))
		} else {
			b.WriteString(styles.StatusStyle(st.status).Render(st.status))
		}
		b.WriteString("\n")
	}
	return b.String()
}
