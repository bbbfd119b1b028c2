package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RunSummary describes a finished crawl.
type RunSummary struct {
	RunID             string
	StartPage         int
	EndPage           int
	LastCompletedPage int
	Records           int
	State             string
	Err               error
	Output            string
	Elapsed           time.Duration
}

// Summary renders s as a table to w.
func Summary(w io.Writer, s RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Run", "Value"})

	if s.RunID != "" {
		t.AppendRow(table.Row{"id", s.RunID})
	}
	t.AppendRow(table.Row{"range", pageRange(s.StartPage, s.EndPage)})
	t.AppendRow(table.Row{"last completed page", lastPage(s.LastCompletedPage)})
	t.AppendRow(table.Row{"records", s.Records})
	t.AppendRow(table.Row{"state", s.State})
	if s.Err != nil {
		t.AppendRow(table.Row{"error", s.Err.Error()})
	}
	if s.Output != "" {
		t.AppendRow(table.Row{"output", s.Output})
	}
	t.AppendRow(table.Row{"elapsed", s.Elapsed.Round(time.Second).String()})

	t.Render()
}

func lastPage(p int) string {
	if p == 0 {
		return "none"
	}
	return fmt.Sprint(p)
}

func pageRange(start, end int) string {
	if end < 1 {
		return fmt.Sprintf("%d-?", start)
	}
	return fmt.Sprintf("%d-%d", start, end)
}
