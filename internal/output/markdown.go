package output

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/octofetch/octofetch/internal/core"
	"github.com/octofetch/octofetch/internal/core/store"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) FormatResource(res *core.Resource) (string, error) {
	if res == nil {
		return "", nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", escapeMarkdownCell(res.Path))
	writeMarkdownTable(&sb, []string{"Field", "Value"}, fieldRows(resourceFields(res.Data)))
	if res.Provenance.FromCache {
		sb.WriteString("\n_Served from cache._\n")
	}
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatCollection(coll *core.Collection) (string, error) {
	if coll == nil {
		return "", nil
	}
	cols := collectionColumns(coll.Items)
	rows := make([][]string, 0, len(coll.Items))
	for i, item := range coll.Items {
		rows = append(rows, append([]string{itoa(i + 1)}, collectionRow(item, cols)...))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", escapeMarkdownCell(coll.Path))
	writeMarkdownTable(&sb, append([]string{"#"}, headerOrItem(cols)...), rows)
	fmt.Fprintf(&sb, "\n**Total**: %s\n", collectionSummary(coll))
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatRepository(repo *core.Repository) (string, error) {
	if repo == nil {
		return "", nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", escapeMarkdownCell(repo.FullName))
	writeMarkdownTable(&sb, []string{"Field", "Value"}, fieldRows(repositoryFields(repo)))
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatRateLimits(entries []store.RateLimitEntry) (string, error) {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, rateLimitRow(entry))
	}
	var sb strings.Builder
	writeMarkdownTable(&sb, rateLimitHeader, rows)
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatCacheStats(stats store.CacheStats) (string, error) {
	var sb strings.Builder
	writeMarkdownTable(&sb, []string{"Metric", "Value"}, fieldRows(cacheStatsFields(stats)))
	return sb.String(), nil
}

func writeMarkdownTable(sb *strings.Builder, header []string, rows [][]string) {
	writeMarkdownRow(sb, header)
	sb.WriteString("|")
	for range header {
		sb.WriteString("---|")
	}
	sb.WriteString("\n")
	for _, row := range rows {
		writeMarkdownRow(sb, row)
	}
}

func writeMarkdownRow(sb *strings.Builder, cells []string) {
	sb.WriteString("|")
	for _, cell := range cells {
		sb.WriteString(" ")
		sb.WriteString(escapeMarkdownCell(cell))
		sb.WriteString(" |")
	}
	sb.WriteString("\n")
}

func fieldRows(fields []field) [][]string {
	rows := make([][]string, 0, len(fields))
	for _, fl := range fields {
		rows = append(rows, []string{fl.Key, fl.Value})
	}
	return rows
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
