package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Color palette
	Primary    = lipgloss.Color("#00DC64")
	Secondary  = lipgloss.Color("#C792EA")
	Success    = lipgloss.Color("#C3E88D")
	Warning    = lipgloss.Color("#FFCB6B")
	Error      = lipgloss.Color("#F07178")
	Info       = lipgloss.Color("#82AAFF")
	Muted      = lipgloss.Color("#546E7A")
	Foreground = lipgloss.Color("#EEFFFF")

	RoundedBorder = lipgloss.RoundedBorder()
)

// Base styles
var (
	// Title style for headings
	TitleStyle = lipgloss.NewStyle().
		Foreground(Primary).
		Bold(true).
		MarginBottom(1)

	SubtitleStyle = lipgloss.NewStyle().
		Foreground(Secondary).
		Italic(true)

	TextStyle = lipgloss.NewStyle().
		Foreground(Foreground)

	MutedStyle = lipgloss.NewStyle().
		Foreground(Muted)

	// Summary box shown when a run ends
	CardStyle = lipgloss.NewStyle().
		Border(RoundedBorder).
		BorderForeground(Secondary).
		Padding(0, 1)

	// Status styles
	StatusDownloading = lipgloss.NewStyle().
		Foreground(Info).
		Bold(true)

	StatusCompleted = lipgloss.NewStyle().
		Foreground(Success).
		Bold(true)

	StatusCanceled = lipgloss.NewStyle().
		Foreground(Warning).
		Bold(true)

	StatusError = lipgloss.NewStyle().
		Foreground(Error).
		Bold(true)

	HelpStyle = lipgloss.NewStyle().
		Foreground(Muted).
		Italic(true).
		MarginTop(1)

	// Table header used by the history listing
	HeaderStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
)

// StatusStyle picks the style for a chapter status as stored in the history
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "downloading", "fetching":
		return StatusDownloading
	case "completed":
		return StatusCompleted
	case "canceled":
		return StatusCanceled
	case "failed":
		return StatusError
	default:
		return MutedStyle
	}
}
