package core

import (
	"encoding/json"
	"time"
)

const (
	// DefaultPerPage mirrors the page size GitHub uses when per_page is omitted.
	DefaultPerPage = 30
	// MaxPerPage is the largest per_page value collection endpoints accept.
	MaxPerPage = 100
)

// PageCursor tracks progress through a multi-page collection fetch.
type PageCursor struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// NewPageCursor returns a cursor positioned at page 1 with a bounded page size.
func NewPageCursor(perPage int) PageCursor {
	return PageCursor{Page: 1, PerPage: ClampPerPage(perPage)}
}

// ClampPerPage bounds a requested page size to [1, MaxPerPage].
func ClampPerPage(perPage int) int {
	switch {
	case perPage <= 0:
		return DefaultPerPage
	case perPage > MaxPerPage:
		return MaxPerPage
	default:
		return perPage
	}
}

// Advance moves the cursor to the next page.
func (c *PageCursor) Advance() {
	c.Page++
}

// Exhausted reports whether a page holding count items is the last one.
// A full page never ends the sequence on its own.
func (c PageCursor) Exhausted(count int) bool {
	return count < c.PerPage
}

// CacheEntry is a stored response payload keyed by resource identity.
type CacheEntry struct {
	Key      string    `json:"key"`
	Value    []byte    `json:"value"`
	StoredAt time.Time `json:"stored_at"`
}

// Fresh reports whether the entry is still inside its freshness window.
func (e CacheEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) < ttl
}

// Provenance captures metadata about how a lookup was resolved.
type Provenance struct {
	RequestID   string    `json:"request_id"`
	RequestedAt time.Time `json:"requested_at"`
	ResolvedAt  time.Time `json:"resolved_at"`
	Server      string    `json:"server,omitempty"`
	FromCache   bool      `json:"from_cache"`
	ToolVersion string    `json:"tool_version,omitempty"`
}

// Resource is a single JSON object returned by an item endpoint.
type Resource struct {
	Path       string          `json:"path"`
	StatusCode int             `json:"status_code,omitempty"`
	Data       json.RawMessage `json:"data"`
	Provenance Provenance      `json:"provenance"`
}

// Collection is the flattened result of a paginated fetch.
type Collection struct {
	Path       string            `json:"path"`
	PerPage    int               `json:"per_page"`
	Pages      int               `json:"pages"`
	CacheHits  int               `json:"cache_hits"`
	Items      []json.RawMessage `json:"items"`
	Provenance Provenance        `json:"provenance"`
}
