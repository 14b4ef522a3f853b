package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/octofetch/octofetch/internal/core"
	"github.com/octofetch/octofetch/internal/core/store"
)

const (
	maxColumns   = 4
	maxCellWidth = 72
)

// preferredColumns are tried in order when picking collection columns.
var preferredColumns = []string{"number", "id", "full_name", "name", "login", "title", "state", "language", "stargazers_count", "updated_at"}

type field struct {
	Key   string
	Value string
}

// resourceFields flattens the top level of a JSON object into sorted rows.
// Nested values are summarised rather than expanded.
func resourceFields(data json.RawMessage) []field {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return []field{{Key: "value", Value: summarise(data)}}
	}

	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := make([]field, 0, len(keys))
	for _, key := range keys {
		fields = append(fields, field{Key: key, Value: summarise(obj[key])})
	}
	return fields
}

// collectionColumns picks up to maxColumns well-known keys present in the
// first object item. An empty result means items are rendered whole.
func collectionColumns(items []json.RawMessage) []string {
	if len(items) == 0 {
		return nil
	}
	var first map[string]json.RawMessage
	if err := json.Unmarshal(items[0], &first); err != nil {
		return nil
	}

	var cols []string
	for _, key := range preferredColumns {
		if _, ok := first[key]; ok {
			cols = append(cols, key)
			if len(cols) == maxColumns {
				break
			}
		}
	}
	return cols
}

func collectionRow(item json.RawMessage, cols []string) []string {
	if len(cols) == 0 {
		return []string{summarise(item)}
	}
	var obj map[string]json.RawMessage
	_ = json.Unmarshal(item, &obj)

	row := make([]string, len(cols))
	for i, col := range cols {
		if value, ok := obj[col]; ok {
			row[i] = summarise(value)
		}
	}
	return row
}

// summarise renders a JSON value as a short single-line cell.
func summarise(value json.RawMessage) string {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return ""
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return truncate(s)
		}
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err == nil {
			return fmt.Sprintf("[%d items]", len(arr))
		}
	case '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err == nil {
			return truncate(buf.String())
		}
	case 'n':
		return "-"
	}
	return truncate(string(trimmed))
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxCellWidth {
		return s
	}
	return string(runes[:maxCellWidth-1]) + "…"
}

func repositoryFields(repo *core.Repository) []field {
	visibility := "public"
	if repo.Private {
		visibility = "private"
	}
	fields := []field{
		{"Repository", repo.FullName},
		{"Visibility", visibility},
		{"Language", orDash(repo.Language)},
		{"Stars", strconv.Itoa(repo.StargazersCount)},
		{"Forks", strconv.Itoa(repo.ForksCount)},
		{"Open issues", strconv.Itoa(repo.OpenIssuesCount)},
		{"Default branch", orDash(repo.DefaultBranch)},
		{"Last push", formatTime(repo.PushedAt)},
	}
	if repo.Description != "" {
		fields = append(fields, field{"Description", truncate(repo.Description)})
	}
	if repo.Archived {
		fields = append(fields, field{"Archived", "yes"})
	}
	return fields
}

var rateLimitHeader = []string{"Endpoint", "Limit", "Remaining", "Resets", "Observed", "Backoff until"}

func rateLimitRow(entry store.RateLimitEntry) []string {
	backoff := "-"
	if entry.State.BackoffUntil != nil {
		backoff = formatTime(*entry.State.BackoffUntil)
	}
	return []string{
		entry.Endpoint,
		strconv.Itoa(entry.State.Limit),
		strconv.Itoa(entry.State.Remaining),
		formatTime(entry.State.ResetAt),
		formatTime(entry.State.ObservedAt),
		backoff,
	}
}

func cacheStatsFields(stats store.CacheStats) []field {
	fields := []field{
		{"Entries", strconv.Itoa(stats.Entries)},
		{"Bytes", strconv.FormatInt(stats.Bytes, 10)},
		{"Oldest", "-"},
		{"Newest", "-"},
	}
	if stats.Oldest != nil {
		fields[2].Value = formatTime(*stats.Oldest)
	}
	if stats.Newest != nil {
		fields[3].Value = formatTime(*stats.Newest)
	}
	return fields
}

func collectionSummary(coll *core.Collection) string {
	summary := fmt.Sprintf("%d items, %d pages", len(coll.Items), coll.Pages)
	if coll.CacheHits > 0 {
		summary += fmt.Sprintf(", %d cached", coll.CacheHits)
	}
	return summary
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
