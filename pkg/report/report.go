// Package report renders load reports for people and for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/bruin-data/staywarehouse/pkg/load"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type Format string

const (
	FormatPlain Format = "plain"
	FormatJSON  Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatPlain:
		return FormatPlain, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", errors.Errorf("unknown output format '%s', possible values are: plain, json", s)
	}
}

type Renderer struct {
	Format Format
}

func (r Renderer) Render(w io.Writer, reports []*load.Report) error {
	if r.Format == FormatJSON {
		return RenderJSON(w, reports)
	}
	for i, rep := range reports {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := RenderPlain(w, rep); err != nil {
			return err
		}
	}
	return nil
}

type jsonOutput struct {
	Batches   []*load.Report `json:"batches"`
	Committed int            `json:"committed"`
	Failed    int            `json:"failed"`
}

func RenderJSON(w io.Writer, reports []*load.Report) error {
	committed := lo.CountBy(reports, func(r *load.Report) bool { return r.Committed() })
	out := jsonOutput{
		Batches:   reports,
		Committed: committed,
		Failed:    len(reports) - committed,
	}
	if out.Batches == nil {
		out.Batches = []*load.Report{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return errors.Wrap(err, "failed to encode the load report")
	}
	return nil
}

// RenderPlain writes a summary line, the per-table counters and the rejected rows
// of a single load.
func RenderPlain(w io.Writer, rep *load.Report) error {
	summary := fmt.Sprintf("Batch %s (ingested %s): %s in %s\n",
		rep.BatchID,
		rep.IngestedAt.UTC().Format(time.RFC3339),
		rep.Status,
		rep.Duration().Round(time.Millisecond),
	)
	if rep.Error != "" {
		summary += fmt.Sprintf("Error: %s (last state %s)\n", rep.Error, lastStateBeforeFailure(rep))
	}
	if _, err := io.WriteString(w, summary); err != nil {
		return err
	}

	if len(rep.Tables) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Table", "Inserted", "Closed", "Upserted", "Unchanged", "Removed", "Rejected"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, Align: text.AlignRight},
			{Number: 3, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
			{Number: 5, Align: text.AlignRight},
			{Number: 6, Align: text.AlignRight},
			{Number: 7, Align: text.AlignRight},
		})

		var total load.TableReport
		for _, tr := range rep.Tables {
			t.AppendRow(table.Row{tr.Table, tr.Inserted, tr.Closed, tr.Upserted, tr.Unchanged, tr.Removed, tr.Rejected})
			total.Inserted += tr.Inserted
			total.Closed += tr.Closed
			total.Upserted += tr.Upserted
			total.Unchanged += tr.Unchanged
			total.Removed += tr.Removed
			total.Rejected += tr.Rejected
		}
		t.AppendFooter(table.Row{"Total", total.Inserted, total.Closed, total.Upserted, total.Unchanged, total.Removed, total.Rejected})
		t.Render()
	}

	if len(rep.Rejections) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.SetTitle("Rejected rows")
		t.AppendHeader(table.Row{"Table", "Key", "Reason"})
		t.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: 80}})
		for _, rej := range rep.Rejections {
			t.AppendRow(table.Row{rej.Table, rej.Key, rej.Reason})
		}
		t.Render()
	}

	return nil
}

func lastStateBeforeFailure(rep *load.Report) load.State {
	for i := len(rep.History) - 1; i >= 0; i-- {
		if rep.History[i].State != load.StateFailed {
			return rep.History[i].State
		}
	}
	return load.StatePending
}
