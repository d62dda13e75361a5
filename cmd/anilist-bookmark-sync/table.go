package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/drallgood/anilist-bookmark-sync/internal/bookmarks"
	"github.com/drallgood/anilist-bookmark-sync/internal/checkpoint"
	"github.com/drallgood/anilist-bookmark-sync/internal/resolver"
	"github.com/drallgood/anilist-bookmark-sync/internal/sync"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

var summaryStates = []sync.State{
	sync.StateCheckpointed,
	sync.StateSkipped,
	sync.StateNotFound,
	sync.StateFailed,
	sync.StateDryRun,
	sync.StatePending,
}

func renderSummary(summary *sync.Summary) string {
	counts := summary.Counts()
	rows := make([][]string, 0, len(summaryStates)+3)
	for _, state := range summaryStates {
		if counts[state] == 0 {
			continue
		}
		rows = append(rows, []string{string(state), strconv.Itoa(counts[state])})
	}
	rows = append(rows,
		[]string{"renamed", strconv.Itoa(summary.Renamed)},
		[]string{"passes", strconv.Itoa(summary.Passes)},
		[]string{"duration", summary.Duration.Round(time.Millisecond).String()},
	)
	return renderTable([]string{"Outcome", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}

func renderStatus(items []bookmarks.Item, set *checkpoint.Set) string {
	rows := make([][]string, 0, len(items))
	done := 0
	for _, item := range items {
		state := "pending"
		if set.Contains(item.Title) {
			state = "synced"
			done++
		}
		rows = append(rows, []string{strconv.Itoa(item.Line), item.Title, item.RawProgress, state})
	}
	out := renderTable([]string{"Line", "Title", "Progress", "State"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft})
	return out + fmt.Sprintf("\n%d of %d bookmarks synced", done, len(items))
}

func renderResolution(title string, res resolver.Result) string {
	if !res.Found {
		return renderTable([]string{"Title", "Result"}, [][]string{
			{title, "not found"},
			{"query", resolver.CleanQuery(title)},
		}, nil)
	}

	rows := [][]string{
		{"media id", strconv.Itoa(res.CatalogID)},
		{"canonical title", res.CanonicalTitle},
		{"source", res.Source},
	}
	if res.Rename != nil {
		rows = append(rows, []string{"rename", fmt.Sprintf("%s -> %s (%s)", res.Rename.From, res.Rename.To, res.Rename.Source)})
	}
	return renderTable([]string{"Title", title}, rows, nil)
}
