package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sells-group/qualify-cli/internal/model"
	"github.com/sells-group/qualify-cli/internal/qualify"
)

var (
	cardStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Faint(true)

	verdictColors = map[model.Verdict]lipgloss.Color{
		model.VerdictSuccess:   lipgloss.Color("10"),
		model.VerdictEarlyExit: lipgloss.Color("11"),
		model.VerdictError:     lipgloss.Color("9"),
	}
)

// renderOutcome draws a compact verdict card for terminal output.
func renderOutcome(o *qualify.Outcome) string {
	verdict := lipgloss.NewStyle().Bold(true).Foreground(verdictColors[o.Verdict]).Render(strings.ToUpper(string(o.Verdict)))

	var lines []string
	subject := o.Subject
	if subject != "" {
		subject = "@" + subject
	}
	lines = append(lines, titleStyle.Render(subject)+"  "+verdict)

	if o.Verdict == model.VerdictError {
		lines = append(lines, o.Error)
	}

	if r := o.Result; r != nil {
		if p := r.Profile; p != nil {
			lines = append(lines, row("followers", fmt.Sprintf("%d", p.FollowersCount)))
			if e := p.Engagement; p.HasEngagementData && e != nil {
				lines = append(lines, row("engagement", fmt.Sprintf("%.2f%% over %d posts", e.EngagementRate, e.SampleSize)))
			} else {
				lines = append(lines, row("engagement", "n/a"))
			}
		}
		if t := r.Triage; t != nil {
			lines = append(lines, row("lead score", fmt.Sprintf("%.0f", t.LeadScore)))
		}
		if a := r.Analysis; a != nil {
			lines = append(lines, row("fit", fmt.Sprintf("%.0f (%s)", a.FitScore, a.Qualification)))
			lines = append(lines, "", a.Summary)
		}
	}

	lines = append(lines, "",
		row("workflow", o.Workflow),
		row("cost", fmt.Sprintf("$%.4f  %d in / %d out tokens", o.Cost.ActualUSD, o.Cost.TokensIn, o.Cost.TokensOut)),
		row("credits", fmt.Sprintf("%.2f", o.Cost.Credits)),
		row("time", fmt.Sprintf("%dms (cache hit: %t)", o.Performance.TotalMs, o.Performance.CacheHit)),
	)
	return cardStyle.Render(strings.Join(lines, "\n"))
}

func row(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-11s", label)) + value
}
