package console

import (
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/lysyi3m/claude-rss-reader/app/feed"
)

const maxTitleWidth = 60

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{
					AutoWrap: tw.WrapNone,
				},
				Alignment: tw.CellAlignment{
					Global: tw.AlignLeft,
				},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{
					AutoFormat: tw.On,
				},
				Alignment: tw.CellAlignment{
					Global: tw.AlignLeft,
				},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{
					ShowHeader: tw.Off,
				},
			},
		}),
	)
}

func render(w io.Writer, header []string, rows [][]string) error {
	table := newTable(w)
	table.Header(header)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// WriteItems prints one row per feed item.
func WriteItems(w io.Writer, items []feed.Item) error {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		read := ""
		if !item.Read {
			read = "●"
		}

		rows = append(rows, []string{
			read,
			item.ID,
			shorten(item.Title, maxTitleWidth),
			item.Source,
			item.PublishedAt.Local().Format(time.DateTime),
		})
	}

	return render(w, []string{"", "ID", "Title", "Source", "Published"}, rows)
}

// WriteProviders prints active providers. results may be nil when no
// connection test was run.
func WriteProviders(w io.Writer, active, available []string, results map[string]bool) error {
	header := []string{"Provider", "Active"}
	if results != nil {
		header = append(header, "Connection")
	}

	rows := make([][]string, 0, len(available))
	for _, name := range available {
		isActive := slices.Contains(active, name)
		row := []string{name, strconv.FormatBool(isActive)}

		if results != nil {
			status := "-"
			if ok, tested := results[name]; tested {
				status = "failed"
				if ok {
					status = "ok"
				}
			}
			row = append(row, status)
		}

		rows = append(rows, row)
	}

	return render(w, header, rows)
}

func shorten(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
