package output

import (
	"encoding/json"
	"time"

	"github.com/octofetch/octofetch/internal/core"
	"github.com/octofetch/octofetch/internal/core/store"
)

// JSONFormatter renders values as JSON. Resources and collections keep
// their provenance so output can be piped to other tools.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatResource(res *core.Resource) (string, error) {
	return f.marshal(res)
}

func (f *JSONFormatter) FormatCollection(coll *core.Collection) (string, error) {
	return f.marshal(coll)
}

func (f *JSONFormatter) FormatRepository(repo *core.Repository) (string, error) {
	return f.marshal(repo)
}

type rateLimitJSON struct {
	Endpoint string `json:"endpoint"`
	core.RateLimitState
}

func (f *JSONFormatter) FormatRateLimits(entries []store.RateLimitEntry) (string, error) {
	rows := make([]rateLimitJSON, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, rateLimitJSON{Endpoint: entry.Endpoint, RateLimitState: entry.State})
	}
	return f.marshal(rows)
}

func (f *JSONFormatter) FormatCacheStats(stats store.CacheStats) (string, error) {
	return f.marshal(struct {
		Entries int        `json:"entries"`
		Bytes   int64      `json:"bytes"`
		Oldest  *time.Time `json:"oldest,omitempty"`
		Newest  *time.Time `json:"newest,omitempty"`
	}{stats.Entries, stats.Bytes, stats.Oldest, stats.Newest})
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
