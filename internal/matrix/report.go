package matrix

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

const SummaryFilename = "sweep-summary.json"

// Summary is written after every sweep
type Summary struct {
	RunID     string         `json:"run_id"`
	Target    Target         `json:"target"`
	Package   string         `json:"package"`
	Started   time.Time      `json:"started"`
	Finished  time.Time      `json:"finished"`
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Skipped   int            `json:"skipped"`
	Entries   []SummaryEntry `json:"entries"`
}

type SummaryEntry struct {
	Name    string  `json:"name"`
	Status  Status  `json:"status"`
	Log     string  `json:"log"`
	Seconds float64 `json:"seconds"`
	Error   string  `json:"error,omitempty"`
	Command string  `json:"command"`
}

// NewSummary aggregates the results of one sweep under a fresh run id
func NewSummary(target Target, reference string, started time.Time, results []Result) Summary {
	s := Summary{
		RunID:    uuid.New().String(),
		Target:   target,
		Package:  reference,
		Started:  started,
		Finished: time.Now(),
		Total:    len(results),
		Entries:  make([]SummaryEntry, 0, len(results)),
	}
	for _, r := range results {
		switch r.Status {
		case StatusOK:
			s.Succeeded++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
		e := SummaryEntry{
			Name:    r.Log,
			Status:  r.Status,
			Log:     r.LogPath,
			Seconds: r.Duration.Round(time.Millisecond).Seconds(),
			Command: r.Command.String(),
		}
		if r.Err != nil {
			e.Error = r.Err.Error()
		}
		s.Entries = append(s.Entries, e)
	}
	return s
}

// Write stores the summary as indented JSON
func (s Summary) Write(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RenderTable prints one row per combination followed by the totals
func (s Summary) RenderTable(w io.Writer) error {
	tbl := tablewriter.NewTable(
		w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Borders:  tw.BorderNone,
			Settings: tw.Settings{Separators: tw.Separators{BetweenColumns: tw.On, BetweenRows: tw.On}},
		})),
	)
	tbl.Header([]string{"Combination", "Status", "Duration"})

	rows := make([][]any, 0, len(s.Entries)+1)
	for _, e := range s.Entries {
		rows = append(rows, []any{e.Name, string(e.Status), time.Duration(e.Seconds * float64(time.Second)).String()})
	}
	rows = append(rows, []any{
		fmt.Sprintf("%d combinations", s.Total),
		fmt.Sprintf("%d ok, %d failed, %d skipped", s.Succeeded, s.Failed, s.Skipped),
		s.Finished.Sub(s.Started).Round(time.Second).String(),
	})
	if err := tbl.Bulk(rows); err != nil {
		return err
	}
	return tbl.Render()
}
