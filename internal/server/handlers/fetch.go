package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/octofetch/octofetch/internal/core"
	"github.com/octofetch/octofetch/internal/core/fetch"
	apperrors "github.com/octofetch/octofetch/internal/errors"
	"github.com/octofetch/octofetch/internal/metrics"
	"github.com/octofetch/octofetch/internal/observability"
)

// Fetcher is the upstream client behind the /v1 routes. *fetch.Session
// satisfies it.
type Fetcher interface {
	Get(ctx context.Context, path string) (*core.Resource, error)
	FetchAll(ctx context.Context, path string, opts fetch.PageOptions) (*core.Collection, error)
	RateLimit() (core.RateLimitState, bool)
}

// Response headers describing how a lookup was served.
const (
	HeaderCache      = "X-Octofetch-Cache"
	HeaderFetchError = "X-Octofetch-Fetch-Error"
)

// FetchHandlers serves upstream lookups through one shared Fetcher.
type FetchHandlers struct {
	fetcher  Fetcher
	perPage  int
	maxPages int
	now      func() time.Time
}

// NewFetchHandlers wires handlers to fetcher. perPage and maxPages are the
// defaults when a request does not set per_page or max_pages.
func NewFetchHandlers(fetcher Fetcher, perPage, maxPages int) *FetchHandlers {
	return &FetchHandlers{
		fetcher:  fetcher,
		perPage:  perPage,
		maxPages: maxPages,
		now:      time.Now,
	}
}

// Resource handles GET /v1/resources/*. The wildcard and query string are
// forwarded upstream unchanged.
func (h *FetchHandlers) Resource(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	res, err := h.fetcher.Get(r.Context(), path)
	metrics.RecordLookup("resource", err == nil)
	if err != nil {
		respondWithError(w, r, apperrors.FromFetchError(r.Context(), err))
		return
	}

	setCacheHeader(w, res.Provenance.FromCache)
	writeJSON(w, http.StatusOK, res)
}

// Collection handles GET /v1/collections/*. per_page and max_pages shape
// the walk and are not forwarded. With partial=true a failed walk returns
// 206 and the items gathered so far instead of an error envelope.
func (h *FetchHandlers) Collection(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	opts := fetch.PageOptions{PerPage: h.perPage, MaxPages: h.maxPages}
	var err error
	if opts.PerPage, err = intParam(query, "per_page", opts.PerPage); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if opts.MaxPages, err = intParam(query, "max_pages", opts.MaxPages); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	allowPartial := query.Get("partial") == "true"
	for _, key := range []string{"per_page", "max_pages", "page", "partial"} {
		query.Del(key)
	}
	opts.Query = query

	coll, err := h.fetcher.FetchAll(r.Context(), wildcardPath(r), opts)
	metrics.RecordLookup("collection", err == nil)
	if err != nil {
		fe, ok := fetch.AsFetchError(err)
		if !allowPartial || !ok || coll == nil || len(fe.Items) == 0 {
			respondWithError(w, r, apperrors.FromFetchError(r.Context(), err))
			return
		}
		if logger := observability.ServerLogger; logger != nil {
			logger.Warn("Returning partial collection",
				zap.String("path", coll.Path),
				zap.Int("items", len(coll.Items)),
				zap.String("kind", string(fe.Kind)))
		}
		w.Header().Set(HeaderFetchError, string(fe.Kind))
		writeJSON(w, http.StatusPartialContent, coll)
		return
	}

	setCacheHeader(w, coll.Pages > 0 && coll.CacheHits == coll.Pages)
	writeJSON(w, http.StatusOK, coll)
}

// RateLimitResponse reports the shared session's view of upstream quota.
type RateLimitResponse struct {
	Observed     bool       `json:"observed"`
	Limit        int        `json:"limit,omitempty"`
	Remaining    int        `json:"remaining,omitempty"`
	ResetAt      *time.Time `json:"reset_at,omitempty"`
	ObservedAt   *time.Time `json:"observed_at,omitempty"`
	BackoffUntil *time.Time `json:"backoff_until,omitempty"`
	Exhausted    bool       `json:"exhausted"`
}

// RateLimit handles GET /v1/rate-limit. It never calls upstream.
func (h *FetchHandlers) RateLimit(w http.ResponseWriter, r *http.Request) {
	state, ok := h.fetcher.RateLimit()
	if !ok {
		writeJSON(w, http.StatusOK, RateLimitResponse{})
		return
	}

	resetAt, observedAt := state.ResetAt, state.ObservedAt
	writeJSON(w, http.StatusOK, RateLimitResponse{
		Observed:     true,
		Limit:        state.Limit,
		Remaining:    state.Remaining,
		ResetAt:      &resetAt,
		ObservedAt:   &observedAt,
		BackoffUntil: state.BackoffUntil,
		Exhausted:    state.Exhausted(h.now()),
	})
}

func wildcardPath(r *http.Request) string {
	return strings.TrimPrefix(chi.URLParam(r, "*"), "/")
}

func intParam(query url.Values, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, &paramError{key: key, value: raw}
	}
	return v, nil
}

type paramError struct {
	key   string
	value string
}

func (e *paramError) Error() string {
	return e.key + " must be a non-negative integer, got " + strconv.Quote(e.value)
}

func setCacheHeader(w http.ResponseWriter, hit bool) {
	if hit {
		w.Header().Set(HeaderCache, "hit")
		return
	}
	w.Header().Set(HeaderCache, "miss")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
