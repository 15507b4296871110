package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/bergham123/anime-news-bot/app/cfg"
	"github.com/bergham123/anime-news-bot/app/index"
	"github.com/bergham123/anime-news-bot/app/ledger"
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

func renderIndexTable(pag index.Pagination, stats index.Stats, found bool, c *cfg.Cfg) string {
	lastUpdate := "never"
	addedToday := "-"
	if found {
		lastUpdate = formatTime(stats.LastUpdate, c)
		addedToday = strconv.Itoa(stats.AddedToday)
	}

	rows := [][]string{
		{"Total articles", strconv.Itoa(pag.TotalArticles)},
		{"Pages", strconv.Itoa(len(pag.Files))},
		{"Current page", currentPage(pag)},
		{"Added in last run", addedToday},
		{"Last update", lastUpdate},
	}
	return renderTable([]string{"Index", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

func currentPage(pag index.Pagination) string {
	if len(pag.Files) == 0 {
		return "-"
	}
	return pag.Files[len(pag.Files)-1]
}

func renderRunsTable(runs []ledger.Run, c *cfg.Cfg) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		duration := "-"
		if run.FinishedAt != nil {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			shortID(run.ID),
			run.Source,
			formatTime(run.StartedAt, c),
			duration,
			strconv.Itoa(run.Added),
			string(run.Status),
			strings.TrimSpace(run.Error),
		})
	}

	headers := []string{"Run", "Source", "Started", "Duration", "Added", "Status", "Error"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft}
	return renderTable(headers, rows, aligns)
}

func formatTime(t time.Time, c *cfg.Cfg) string {
	if t.IsZero() {
		return "-"
	}
	if c != nil && c.Location != nil {
		t = t.In(c.Location)
	}
	return t.Format("2006-01-02 15:04:05 MST")
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return fmt.Sprintf("%s…", id[:8])
}
