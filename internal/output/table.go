package output

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/chart"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/stats"
)

// Table provides table rendering utilities
type Table struct {
	table  *tablewriter.Table
	header []string
	rows   [][]string
}

// NewTable creates a borderless table with right-aligned numbers
func NewTable(w io.Writer, headers []string) *Table {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignRight},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
	return &Table{table: table, header: headers}
}

// AddRow adds a row to the table
func (t *Table) AddRow(row ...string) {
	t.rows = append(t.rows, row)
}

// Render outputs the table
func (t *Table) Render() error {
	t.table.Header(t.header)
	if err := t.table.Bulk(t.rows); err != nil {
		return err
	}
	return t.table.Render()
}

// StatsTable renders one line per year
func StatsTable(w io.Writer, rows []stats.Row) error {
	t := NewTable(w, []string{"Year", "Loss (ha)", "Cumulative (ha)", "Baseline (ha)", "Loss %"})
	for _, r := range rows {
		t.AddRow(
			fmt.Sprint(r.Year),
			chart.Thousands(r.LossHa),
			chart.Thousands(r.CumulativeHa),
			chart.Thousands(r.BaselineHa),
			fmt.Sprintf("%.2f", r.Percent),
		)
	}
	return t.Render()
}

// CountiesTable renders one line per county
func CountiesTable(w io.Writer, rows []stats.Row) error {
	t := NewTable(w, []string{"County", "Cumulative (ha)", "Baseline (ha)", "Loss %"})
	for _, r := range rows {
		t.AddRow(
			r.County,
			chart.Thousands(r.CumulativeHa),
			chart.Thousands(r.BaselineHa),
			fmt.Sprintf("%.2f", r.Percent),
		)
	}
	return t.Render()
}
