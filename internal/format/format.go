package format

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/miradorstack/pipeline-rca/internal/models"
	"github.com/miradorstack/pipeline-rca/internal/repo"
	"github.com/miradorstack/pipeline-rca/internal/utils"
)

// Mode controls the output format.
type Mode int

const (
	ASCII    Mode = iota // Fixed-width terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

// ParseMode maps "markdown"/"md" to Markdown and anything else to ASCII.
func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "markdown", "md":
		return Markdown
	default:
		return ASCII
	}
}

func newWriter(m Mode) table.Writer {
	w := table.NewWriter()
	if m == ASCII {
		style := table.StyleLight
		style.Format.Footer = text.FormatDefault
		w.SetStyle(style)
	}
	return w
}

func render(w table.Writer, m Mode) string {
	if m == Markdown {
		return w.RenderMarkdown()
	}
	return w.Render()
}

// Analysis renders a classification result.
func Analysis(resp models.ClassifyResponse, m Mode) string {
	w := newWriter(m)
	w.AppendHeader(table.Row{"Field", "Value"})
	a := resp.Analysis
	w.AppendRow(table.Row{"Pipeline", a.PipelineID})
	w.AppendRow(table.Row{"Category", fmt.Sprintf("%s (%s)", a.Category.Name, a.Category.ID)})
	w.AppendRow(table.Row{"Severity", a.Category.Severity})
	w.AppendRow(table.Row{"Confidence", fmt.Sprintf("%.0f%%", a.Confidence*100)})
	w.AppendRow(table.Row{"Similar failures", len(a.SimilarFailures)})
	for i, action := range resp.SuggestedActions {
		w.AppendRow(table.Row{fmt.Sprintf("Suggestion %d", i+1), action})
	}
	if resp.AutoFixScript != nil {
		w.AppendRow(table.Row{"Auto-fix", "available"})
	}
	w.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: 80}})
	return render(w, m)
}

// Notifications renders a notification list.
func Notifications(items []models.Notification, m Mode) string {
	w := newWriter(m)
	w.AppendHeader(table.Row{"Severity", "Type", "Title", "Pipeline", "Ack", "Resolved", "Time"})
	for _, n := range items {
		w.AppendRow(table.Row{
			n.Severity,
			n.Type,
			n.Title,
			n.PipelineName,
			yesNo(n.Acknowledged),
			yesNo(n.Resolved),
			utils.FormatRFC3339(n.Timestamp),
		})
	}
	w.AppendFooter(table.Row{"", "", fmt.Sprintf("%d notifications", len(items))})
	w.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: 60}})
	return render(w, m)
}

// Solutions renders knowledge base templates.
func Solutions(items []models.SolutionTemplate, m Mode) string {
	w := newWriter(m)
	w.AppendHeader(table.Row{"ID", "Title", "Category", "Severity", "Success", "Auto-fix"})
	for _, s := range items {
		w.AppendRow(table.Row{
			s.ID,
			s.Title,
			s.Category,
			s.Severity,
			fmt.Sprintf("%.0f%%", s.SuccessRate),
			yesNo(s.AutoFixScript != nil),
		})
	}
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 50},
		{Number: 5, Align: text.AlignRight},
	})
	return render(w, m)
}

// Jobs renders Jenkins job summaries.
func Jobs(items []repo.Job, m Mode) string {
	w := newWriter(m)
	w.AppendHeader(table.Row{"Job", "Status", "Last build", "Result"})
	for _, j := range items {
		number, result := "-", "-"
		if j.LastBuild != nil {
			number = fmt.Sprintf("#%d", j.LastBuild.Number)
			result = j.LastBuild.Result
		}
		w.AppendRow(table.Row{firstNonEmpty(j.FullName, j.Name), j.Status, number, result})
	}
	return render(w, m)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
