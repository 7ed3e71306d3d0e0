// Package report renders analysis results for the terminal.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/maastricht-university/sleepsense/event"
	"github.com/maastricht-university/sleepsense/insights"
)

// Theme defines the color scheme.
type Theme struct {
	Primary       lipgloss.Color
	Dim           lipgloss.Color
	Health        lipgloss.Color
	Behavioral    lipgloss.Color
	Informational lipgloss.Color
}

var DefaultTheme = Theme{
	Primary:       lipgloss.Color("#7aa2f7"),
	Dim:           lipgloss.Color("#6e7681"),
	Health:        lipgloss.Color("#f7768e"),
	Behavioral:    lipgloss.Color("#e0af68"),
	Informational: lipgloss.Color("#9ece6a"),
}

type Styles struct {
	Title   lipgloss.Style
	Heading lipgloss.Style
	Dim     lipgloss.Style
	Tier    map[insights.Tier]lipgloss.Style
}

func NewStyles(t Theme) Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Heading: lipgloss.NewStyle().Bold(true).Underline(true),
		Dim:     lipgloss.NewStyle().Foreground(t.Dim),
		Tier: map[insights.Tier]lipgloss.Style{
			insights.Health:        lipgloss.NewStyle().Bold(true).Foreground(t.Health),
			insights.Behavioral:    lipgloss.NewStyle().Bold(true).Foreground(t.Behavioral),
			insights.Informational: lipgloss.NewStyle().Foreground(t.Informational),
		},
	}
}

// Night is what the night report shows.
type Night struct {
	RunID            string
	Source           string
	RecordingSeconds float64
	Summary          insights.Summary
	Events           []event.Event
	Insights         []insights.Record
	// MaxEvents caps the event listing; 0 lists none.
	MaxEvents int
}

type Renderer struct {
	Styles Styles
}

func New() Renderer { return Renderer{Styles: NewStyles(DefaultTheme)} }

func (r Renderer) Night(n Night) string {
	s := r.Styles
	var b strings.Builder

	title := "Sleep analysis"
	if n.Source != "" {
		title += " · " + n.Source
	}
	b.WriteString(s.Title.Render(title) + "\n")
	b.WriteString(s.Dim.Render(fmt.Sprintf("run %s · %s recorded", n.RunID, clock(n.RecordingSeconds))) + "\n\n")

	b.WriteString(s.Heading.Render("Summary") + "\n")
	rows := [][]string{{"category", "events", "time", "share"}}
	for _, c := range event.Categories {
		st := n.Summary.Stats(c)
		rows = append(rows, []string{c.Label(), fmt.Sprint(st.Count), clock(st.Seconds), fmt.Sprintf("%.1f%%", st.Percent)})
	}
	b.WriteString(table(rows, s.Dim))
	b.WriteString(fmt.Sprintf("%d disturbances, %.0f%% quiet\n\n", n.Summary.Disturbances, n.Summary.QuietPercent))

	if n.MaxEvents > 0 && len(n.Events) > 0 {
		b.WriteString(s.Heading.Render("Events") + "\n")
		for i, ev := range n.Events {
			if i == n.MaxEvents {
				b.WriteString(s.Dim.Render(fmt.Sprintf("  ... and %d more events", len(n.Events)-n.MaxEvents)) + "\n")
				break
			}
			b.WriteString(fmt.Sprintf("  %s  %-15s %5.1fs  volume %.2f  conf %.2f\n",
				clock(ev.Start), ev.Category.Label(), ev.Duration, ev.PeakVolume, ev.Confidence))
		}
		b.WriteString("\n")
	}

	b.WriteString(s.Heading.Render("Insights") + "\n")
	for i, rec := range n.Insights {
		tag := s.Tier[rec.Priority].Render(fmt.Sprintf("[%s]", rec.Priority))
		b.WriteString(fmt.Sprintf("%d. %s %s\n", i+1, tag, rec.Text))
	}
	return b.String()
}

// RunLine is one row of the history listing.
type RunLine struct {
	ID               string
	CreatedAt        time.Time
	Source           string
	RecordingSeconds float64
	Summary          insights.Summary
}

func (r Renderer) History(runs []RunLine) string {
	if len(runs) == 0 {
		return r.Styles.Dim.Render("no runs recorded yet") + "\n"
	}
	rows := [][]string{{"run", "when", "length", "disturbances", "snoring", "quiet", "source"}}
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.CreatedAt.Local().Format("2006-01-02 15:04"),
			clock(run.RecordingSeconds),
			fmt.Sprint(run.Summary.Disturbances),
			fmt.Sprintf("%.1f%%", run.Summary.Stats(event.Snoring).Percent),
			fmt.Sprintf("%.0f%%", run.Summary.QuietPercent),
			run.Source,
		})
	}
	return table(rows, r.Styles.Dim)
}

// table left-aligns cells into columns; the first row is the header.
func table(rows [][]string, header lipgloss.Style) string {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}
	var b strings.Builder
	for ri, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		line := "  " + strings.TrimRight(strings.Join(cells, "  "), " ")
		if ri == 0 {
			line = header.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// clock formats seconds as h:mm:ss.
func clock(sec float64) string {
	d := time.Duration(sec * float64(time.Second)).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
