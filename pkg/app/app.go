package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/kerbaras/webtoons/pkg/app/components"
	"github.com/kerbaras/webtoons/pkg/app/styles"
	"github.com/kerbaras/webtoons/pkg/data"
	"github.com/kerbaras/webtoons/pkg/services"
	"github.com/mattn/go-isatty"
)

// Interactive reports whether f is a terminal the progress UI can draw on
func Interactive(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type fetchedMsg []data.ChapterInfo

type progressMsg services.ChapterProgress

type chapterDoneMsg services.ChapterResult

type finishedMsg struct {
	results []services.ChapterResult
	err     error
}

// Model renders the progress of one series download
type Model struct {
	url      string
	title    string
	total    int
	tracker  *components.ProgressTracker
	spinner  spinner.Model
	cancel   context.CancelFunc
	stopping bool
	finished bool
	results  []services.ChapterResult
	err      error
}

func NewModel(url string, cancel context.CancelFunc) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.StatusDownloading
	return &Model{
		url:     url,
		tracker: components.NewProgressTracker(80),
		spinner: s,
		cancel:  cancel,
	}
}

func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.tracker.SetWidth(msg.Width)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			// the download stops on its own and reports back with finishedMsg
			if !m.stopping && m.cancel != nil {
				m.stopping = true
				m.cancel()
			}
		}

	case fetchedMsg:
		m.total = len(msg)
		if len(msg) > 0 {
			m.title = msg[0].SeriesTitle
		}

	case progressMsg:
		m.tracker.Update(services.ChapterProgress(msg))

	case chapterDoneMsg:
		m.tracker.Finish(services.ChapterResult(msg))

	case finishedMsg:
		m.finished = true
		m.results = msg.results
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) View() string {
	if m.finished {
		return m.summary()
	}

	var b strings.Builder
	title := m.title
	if title == "" {
		title = m.url
	}
	b.WriteString(styles.TitleStyle.Render(title))
	b.WriteString("\n")

	status := "fetching chapter list"
	if m.total > 0 {
		status = fmt.Sprintf("%d/%d chapters, %d pages", m.tracker.Finished(), m.total, m.tracker.Pages())
	}
	if m.stopping {
		status = "stopping, waiting for running pages"
	}
	b.WriteString(m.spinner.View() + " " + styles.SubtitleStyle.Render(status))
	b.WriteString("\n\n")

	b.WriteString(m.tracker.View())
	b.WriteString(styles.HelpStyle.Render("q: stop"))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) summary() string {
	var b strings.Builder
	if m.title != "" {
		b.WriteString(styles.TitleStyle.Render(m.title))
		b.WriteString("\n")
	}

	line := fmt.Sprintf("%d/%d chapters downloaded, %d pages", m.tracker.Completed(), m.total, m.tracker.Pages())
	switch {
	case m.stopping:
		b.WriteString(styles.StatusCanceled.Render("Stopped: " + line))
	case m.err != nil && len(m.tracker.Failures()) == 0:
		b.WriteString(styles.StatusError.Render(m.err.Error()))
	case len(m.tracker.Failures()) > 0:
		b.WriteString(styles.StatusError.Render(line))
	default:
		b.WriteString(styles.StatusCompleted.Render(line))
	}
	b.WriteString("\n")

	for _, f := range m.tracker.Failures() {
		b.WriteString(styles.MutedStyle.Render(fmt.Sprintf("  chapter %d: %v", f.Chapter, f.Err)))
		b.WriteString("\n")
	}
	return styles.CardStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

// App runs a download behind the progress UI
type App struct {
	model   *Model
	options []tea.ProgramOption
}

func NewApp(url string, cancel context.CancelFunc, options ...tea.ProgramOption) *App {
	return &App{model: NewModel(url, cancel), options: options}
}

// Run calls download with opts wired to the UI and returns its outcome once
// both the download and the UI have ended
func (a *App) Run(opts services.Options, download func(services.Options) ([]services.ChapterResult, error)) ([]services.ChapterResult, error) {
	p := tea.NewProgram(a.model, a.options...)

	onFetched, onProgress, onDone := opts.OnFetched, opts.OnProgress, opts.OnChapterDone
	opts.OnFetched = func(chapters []data.ChapterInfo) {
		if onFetched != nil {
			onFetched(chapters)
		}
		p.Send(fetchedMsg(chapters))
	}
	opts.OnProgress = func(ev services.ChapterProgress) {
		if onProgress != nil {
			onProgress(ev)
		}
		p.Send(progressMsg(ev))
	}
	opts.OnChapterDone = func(r services.ChapterResult) {
		if onDone != nil {
			onDone(r)
		}
		p.Send(chapterDoneMsg(r))
	}

	done := make(chan finishedMsg, 1)
	go func() {
		results, err := download(opts)
		done <- finishedMsg{results: results, err: err}
		p.Send(finishedMsg{results: results, err: err})
	}()

	if _, err := p.Run(); err != nil {
		if a.model.cancel != nil {
			a.model.cancel()
		}
		res := <-done
		if errors.Is(err, tea.ErrInterrupted) {
			return res.results, res.err
		}
		return res.results, fmt.Errorf("progress ui failed: %w", err)
	}

	res := <-done
	return res.results, res.err
}
