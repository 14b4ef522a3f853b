package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/octofetch/octofetch/internal/core"
	"github.com/octofetch/octofetch/internal/core/store"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

func (f *TableFormatter) FormatResource(res *core.Resource) (string, error) {
	if res == nil {
		return "", nil
	}
	t := newTable()
	t.SetTitle(res.Path)
	t.AppendHeader(table.Row{"Field", "Value"})
	for _, fl := range resourceFields(res.Data) {
		t.AppendRow(table.Row{fl.Key, fl.Value})
	}
	if res.Provenance.FromCache {
		t.AppendFooter(table.Row{"", "served from cache"})
	}
	return t.Render(), nil
}

func (f *TableFormatter) FormatCollection(coll *core.Collection) (string, error) {
	if coll == nil {
		return "", nil
	}
	cols := collectionColumns(coll.Items)

	t := newTable()
	t.SetTitle(coll.Path)
	t.AppendHeader(toRow(append([]string{"#"}, headerOrItem(cols)...)))
	for i, item := range coll.Items {
		t.AppendRow(toRow(append([]string{itoa(i + 1)}, collectionRow(item, cols)...)))
	}
	footer := make([]string, len(headerOrItem(cols))+1)
	footer[len(footer)-1] = collectionSummary(coll)
	t.AppendFooter(toRow(footer))
	return t.Render(), nil
}

func (f *TableFormatter) FormatRepository(repo *core.Repository) (string, error) {
	if repo == nil {
		return "", nil
	}
	return renderFields(repositoryFields(repo)), nil
}

func (f *TableFormatter) FormatRateLimits(entries []store.RateLimitEntry) (string, error) {
	t := newTable()
	t.AppendHeader(toRow(rateLimitHeader))
	for _, entry := range entries {
		t.AppendRow(toRow(rateLimitRow(entry)))
	}
	return t.Render(), nil
}

func (f *TableFormatter) FormatCacheStats(stats store.CacheStats) (string, error) {
	return renderFields(cacheStatsFields(stats)), nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	return t
}

func renderFields(fields []field) string {
	t := newTable()
	for _, fl := range fields {
		t.AppendRow(table.Row{fl.Key, fl.Value})
	}
	return t.Render()
}

func headerOrItem(cols []string) []string {
	if len(cols) == 0 {
		return []string{"item"}
	}
	return cols
}

func toRow(values []string) table.Row {
	row := make(table.Row, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}
