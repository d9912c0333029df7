// Package ux renders analysis results and attempt traces for the terminal.
package ux

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/yoki/data-agency/internal/agent"
	"github.com/yoki/data-agency/internal/dataset"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	okStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
	codeStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Foreground(lipgloss.Color("252"))
	outputStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).PaddingLeft(1)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Report renders a terminal report: the accepted code and output, or the
// full attempt trail with the abort reason.
func Report(rep *agent.Report) string {
	var sb strings.Builder
	if rep.Accepted() {
		sb.WriteString(okStyle.Render("✓ analysis succeeded"))
		fmt.Fprintf(&sb, " %s\n\n", faintStyle.Render(fmt.Sprintf("(%d attempt(s))", len(rep.History))))
		sb.WriteString(codeStyle.Render(strings.TrimRight(rep.Code, "\n")))
		sb.WriteString("\n\n")
		if out := strings.TrimSpace(rep.Result.Stdout); out != "" {
			sb.WriteString(titleStyle.Render("Output"))
			sb.WriteString("\n")
			sb.WriteString(outputStyle.Render(out))
			sb.WriteString("\n")
		}
		if len(rep.Artifacts) > 0 {
			sb.WriteString(titleStyle.Render("Artifacts"))
			sb.WriteString("\n")
			for _, a := range rep.Artifacts {
				fmt.Fprintf(&sb, "  %s %s\n", a.Name, faintStyle.Render(a.Path))
			}
		}
		return sb.String()
	}

	sb.WriteString(failStyle.Render("✗ analysis aborted"))
	fmt.Fprintf(&sb, " %s\n\n", faintStyle.Render("reason: "+rep.Reason))
	if rep.Err != nil {
		sb.WriteString(warningStyle.Render(rep.Err.Error()))
		sb.WriteString("\n\n")
	}
	sb.WriteString(AttemptTrail(rep.History))
	return sb.String()
}

// AttemptTrail renders every attempt's code and failure so the analyst can
// see the whole reasoning trail, not just the last error.
func AttemptTrail(history agent.History) string {
	if len(history) == 0 {
		return faintStyle.Render("no attempts were made") + "\n"
	}
	var sb strings.Builder
	for _, at := range history {
		fmt.Fprintf(&sb, "%s %s\n", titleStyle.Render(fmt.Sprintf("Attempt %d", at.Seq)), faintStyle.Render(at.Outcome.String()))
		if strings.TrimSpace(at.Code) != "" {
			sb.WriteString(codeStyle.Render(strings.TrimRight(at.Code, "\n")))
			sb.WriteString("\n")
		}
		sb.WriteString(attemptDetail(at))
		sb.WriteString("\n")
	}
	return sb.String()
}

func attemptDetail(at agent.Attempt) string {
	res := at.Result
	if res == nil {
		if at.Candidate.Assessment.Unsatisfiable {
			return warningStyle.Render("generator: "+at.Candidate.Assessment.Notes) + "\n"
		}
		return ""
	}
	var sb strings.Builder
	switch {
	case res.TimedOut:
		sb.WriteString(warningStyle.Render("timed out"))
		sb.WriteString("\n")
	case res.Err != nil:
		sb.WriteString(failStyle.Render(res.Err.Error()))
		sb.WriteString("\n")
	case !at.Candidate.Assessment.MeetsRequirements:
		sb.WriteString(warningStyle.Render("requirements unmet: " + at.Candidate.Assessment.Notes))
		sb.WriteString("\n")
	}
	if out := strings.TrimSpace(res.Stdout); out != "" {
		sb.WriteString(outputStyle.Render(clip(out, 2000)))
		sb.WriteString("\n")
	}
	return sb.String()
}

// DatasetList renders the registry contents for `datasets list`.
func DatasetList(schemas []dataset.SchemaSummary) string {
	if len(schemas) == 0 {
		return faintStyle.Render("no datasets loaded") + "\n"
	}
	var sb strings.Builder
	for _, s := range schemas {
		fmt.Fprintf(&sb, "%s  %s\n", titleStyle.Render(s.Name), faintStyle.Render(fmt.Sprintf("%d rows, %d columns", s.Rows, len(s.Columns))))
		if s.Description != "" {
			fmt.Fprintf(&sb, "  %s\n", s.Description)
		}
		var cols []string
		for _, c := range s.Columns {
			cols = append(cols, fmt.Sprintf("%s(%s)", c.Name, c.Kind))
		}
		fmt.Fprintf(&sb, "  %s\n", faintStyle.Render(strings.Join(cols, " ")))
	}
	return sb.String()
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n..."
}
