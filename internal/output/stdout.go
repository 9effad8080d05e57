package output

import (
	"fmt"
	"io"
	"os"

	"github.com/cartpilot/cartpilot/internal/types"
	"github.com/olekukonko/tablewriter"
)

// StdoutWriter renders the run summary as a table plus the activity
// log.
type StdoutWriter struct {
	out io.Writer
}

// NewStdoutWriter returns a new StdoutWriter
func NewStdoutWriter() *StdoutWriter {
	return &StdoutWriter{out: os.Stdout}
}

func (w *StdoutWriter) Write(summary *types.RunSummary) error {
	fmt.Fprintf(w.out, "run %s on %s\n\n", summary.RunID, summary.Retailer)

	table := tablewriter.NewWriter(w.out)
	table.Header("Item", "Added", "Detail")
	for _, result := range summary.Results {
		added := "no"
		if result.Success {
			added = "yes"
		}
		if err := table.Append([]string{result.Name, added, result.Message}); err != nil {
			return fmt.Errorf("failed to render result row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render summary table: %w", err)
	}

	fmt.Fprintf(w.out, "\n%d added, %d failed\n", summary.Completed, summary.Failed)
	if len(summary.Log) > 0 {
		fmt.Fprintln(w.out, "\nactivity log:")
		for _, line := range summary.Log {
			fmt.Fprintf(w.out, "  %s\n", line)
		}
	}
	return nil
}
