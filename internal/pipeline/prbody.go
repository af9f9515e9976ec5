package pipeline

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/autofix/internal/defect"
)

// PRBody builds the change-proposal body for a fixed bundle: a Summary,
// an Issues Fixed section (each defect as "Fixes #N - title" plus its
// acceptance criteria as checkboxes), a Changes section (file counts and
// net additions/deletions), a Verification Checklist, and an automation
// footer.
func PRBody(summary string, defects []*defect.Defect, filesChanged []string, additions, deletions int, checks CheckResult) string {
	var b strings.Builder

	b.WriteString("## Summary\n\n")
	b.WriteString(strings.TrimSpace(summary))
	b.WriteString("\n\n")

	b.WriteString("## Issues Fixed\n\n")
	for _, d := range defects {
		fmt.Fprintf(&b, "- Fixes #%d - %s\n", d.ID, d.Title)
		for _, ac := range d.AcceptanceCriteria {
			fmt.Fprintf(&b, "  - [ ] %s\n", ac)
		}
	}
	b.WriteString("\n")

	b.WriteString("## Changes\n\n")
	fmt.Fprintf(&b, "- %d file(s) changed, +%d/-%d lines\n", len(filesChanged), additions, deletions)
	for _, f := range filesChanged {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\n")

	b.WriteString("## Verification Checklist\n\n")
	for _, run := range checks.Runs {
		box := " "
		if run.Status == CheckPassed {
			box = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s\n", box, run.Name)
	}
	b.WriteString("\n")

	b.WriteString("---\n")
	b.WriteString("Opened automatically by the autofix orchestrator.\n")

	return b.String()
}
