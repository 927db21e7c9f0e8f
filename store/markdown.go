package store

import (
	"fmt"
	"strings"
)

// Markdown exports the summary as a markdown document.
func (s Summary) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n## Executive Summary\n\n", s.Title)
	for _, point := range s.KeyPoints {
		fmt.Fprintf(&b, "- %s\n", point)
	}

	if len(s.Decisions) > 0 {
		b.WriteString("\n## Key Decisions\n\n")
		for _, d := range s.Decisions {
			if d.Timestamp != nil {
				fmt.Fprintf(&b, "- %s [Timestamp: %s]\n", d.Text, *d.Timestamp)
			} else {
				fmt.Fprintf(&b, "- %s\n", d.Text)
			}
		}
	}

	if len(s.ActionItems) > 0 {
		b.WriteString("\n## Action Items\n\n")
		for _, item := range s.ActionItems {
			box := "[ ]"
			if item.Completed {
				box = "[x]"
			}
			fmt.Fprintf(&b, "- %s %s", box, item.Task)
			if item.Assignee != nil {
				fmt.Fprintf(&b, " - Assigned to: %s", *item.Assignee)
			}
			if item.DueDate != nil {
				fmt.Fprintf(&b, " - Due: %s", *item.DueDate)
			}
			b.WriteString("\n")
		}
	}

	if len(s.NextSteps) > 0 {
		b.WriteString("\n## Next Steps\n\n")
		for _, step := range s.NextSteps {
			fmt.Fprintf(&b, "- %s\n", step)
		}
	}

	return b.String()
}
