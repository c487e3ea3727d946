package cmd

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/kerbaras/webtoons/pkg/app/styles"
	"github.com/kerbaras/webtoons/pkg/config"
	"github.com/kerbaras/webtoons/pkg/data"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded chapter downloads",
	Long:  "Display the most recent chapter downloads in a formatted table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("db")
		limit, _ := cmd.Flags().GetInt("limit")
		if !cmd.Flags().Changed("db") {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			path = cfg.HistoryDB
		}

		repo, err := data.OpenRepository(path)
		if err != nil {
			return err
		}
		defer repo.Close()

		downloads, err := repo.ListDownloads(limit)
		if err != nil {
			return err
		}

		if len(downloads) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No downloads recorded yet.")
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n\n", styles.TitleStyle.Render(fmt.Sprintf("History (%d chapters)", len(downloads))))
		fmt.Fprintln(cmd.OutOrStdout(), historyTable(downloads).View())
		return nil
	},
}

func init() {
	historyCmd.Flags().String("db", "webtoons.db", "Download history database")
	historyCmd.Flags().IntP("limit", "n", 50, "Number of rows to show, 0 for all")
}

func historyTable(downloads []*data.Download) table.Model {
	columns := []table.Column{
		{Title: "Date", Width: 16},
		{Title: "Series", Width: 30},
		{Title: "Chapter", Width: 8},
		{Title: "Pages", Width: 6},
		{Title: "Format", Width: 7},
		{Title: "Status", Width: 10},
		{Title: "Path", Width: 30},
	}

	rows := make([]table.Row, 0, len(downloads))
	for _, d := range downloads {
		title := d.SeriesTitle
		if title == "" {
			title = d.SeriesURL
		}
		status := d.Status
		if d.Error != "" {
			status += " *"
		}
		rows = append(rows, table.Row{
			d.CreatedAt.Format("2006-01-02 15:04"),
			truncateString(title, 28),
			fmt.Sprintf("%d", d.Chapter),
			fmt.Sprintf("%d", d.Pages),
			d.Format,
			status,
			truncateString(d.Path, 28),
		})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+2),
	)

	s := table.DefaultStyles()
	s.Header = styles.HeaderStyle
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func truncateString(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
