package stage

import (
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// WriteOutcomes prints one row per stage outcome.
func WriteOutcomes(w io.Writer, outcomes []Outcome) {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"STAGE", "STATUS", "TIME", "NOTE"})
	for _, o := range outcomes {
		table.Append([]string{o.Name, colorStatus(o.Status), o.Duration.Round(100 * time.Millisecond).String(), o.Diagnostic})
	}
	table.Render()
}

func colorStatus(s Status) string {
	switch s {
	case StatusOK:
		return color.GreenString(string(s))
	case StatusFailed:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}
