package output

import (
	"fmt"
	"strings"

	"github.com/octofetch/octofetch/internal/core"
	"github.com/octofetch/octofetch/internal/core/store"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders fetch results and local state.
type Formatter interface {
	FormatResource(res *core.Resource) (string, error)
	FormatCollection(coll *core.Collection) (string, error)
	FormatRepository(repo *core.Repository) (string, error)
	FormatRateLimits(entries []store.RateLimitEntry) (string, error)
	FormatCacheStats(stats store.CacheStats) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}
