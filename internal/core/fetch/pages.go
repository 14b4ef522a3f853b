package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/octofetch/octofetch/internal/core"
)

// PageOptions bound a collection fetch. MaxPages <= 0 means unbounded.
type PageOptions struct {
	PerPage  int
	MaxPages int
	Query    url.Values
}

// Pages walks a paginated collection lazily, one page per request. Every
// element yields a nil error; a failure yields exactly one non-nil error and
// ends the sequence. Breaking out of the loop stops further requests.
func (s *Session) Pages(ctx context.Context, path string, opts PageOptions) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		p, err := s.newPager(ctx, path, opts)
		if err != nil {
			yield(nil, err)
			return
		}
		for !p.done {
			items, err := p.next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// FetchAll collects a whole collection. On failure it returns the partial
// collection together with a *FetchError whose Items hold the same elements.
func (s *Session) FetchAll(ctx context.Context, path string, opts PageOptions) (*core.Collection, error) {
	requestedAt := s.now()

	p, err := s.newPager(ctx, path, opts)
	if err != nil {
		return nil, err
	}

	coll := &core.Collection{
		Path:    p.path,
		PerPage: p.cursor.PerPage,
		Items:   []json.RawMessage{},
	}

	var fetchErr error
	for !p.done {
		items, err := p.next(ctx)
		if err != nil {
			if fe, ok := AsFetchError(err); ok {
				fe.Items = append([]json.RawMessage(nil), coll.Items...)
			}
			fetchErr = err
			break
		}
		coll.Items = append(coll.Items, items...)
	}

	coll.Pages = p.fetched
	coll.CacheHits = p.cacheHits
	coll.Provenance = core.Provenance{
		RequestID:   p.requestID,
		RequestedAt: requestedAt,
		ResolvedAt:  s.now(),
		Server:      p.base.Host,
		FromCache:   p.fetched > 0 && p.cacheHits == p.fetched,
		ToolVersion: s.ToolVersion,
	}

	return coll, fetchErr
}

type pager struct {
	s         *Session
	path      string
	base      *url.URL
	cursor    core.PageCursor
	maxPages  int
	fetched   int
	cacheHits int
	done      bool
	requestID string
}

func (s *Session) newPager(ctx context.Context, path string, opts PageOptions) (*pager, error) {
	if s == nil {
		return nil, errors.New("fetch session is not configured")
	}
	base, clean, err := s.resolve(path, opts.Query)
	if err != nil {
		return nil, err
	}
	return &pager{
		s:         s,
		path:      clean,
		base:      base,
		cursor:    core.NewPageCursor(opts.PerPage),
		maxPages:  opts.MaxPages,
		requestID: newRequestID(ctx),
	}, nil
}

// next fetches the page under the cursor. A nil slice with a nil error and
// done set means the collection ended without another element.
func (p *pager) next(ctx context.Context) ([]json.RawMessage, error) {
	if p.done {
		return nil, nil
	}
	if p.maxPages > 0 && p.fetched >= p.maxPages {
		p.done = true
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		p.done = true
		return nil, &FetchError{Kind: KindCancelled, Path: p.path, Page: p.cursor.Page, LastPage: p.fetched, Cause: err}
	}

	target := p.pageURL()
	key := p.s.cacheKey(target)

	var items []json.RawMessage
	cached := false
	if body, ok := p.s.cacheGet(ctx, key); ok {
		if decoded, err := decodeItems(body); err == nil {
			items = decoded
			cached = true
		}
	}

	if !cached {
		resp, err := p.s.execute(ctx, target, p.path, p.cursor.Page, p.fetched)
		if err != nil {
			p.done = true
			if fe, ok := AsFetchError(err); ok && fe.Kind == KindNotFound && p.fetched > 0 {
				p.s.debug("Collection ended with 404 after a successful page",
					zap.String("path", p.path),
					zap.Int("page", p.cursor.Page))
				return nil, nil
			}
			return nil, err
		}

		decoded, err := decodeItems(resp.body)
		if err != nil {
			p.done = true
			return nil, &FetchError{
				Kind:       KindFetchFailed,
				Path:       p.path,
				Page:       p.cursor.Page,
				LastPage:   p.fetched,
				StatusCode: resp.status,
				Cause:      err,
			}
		}
		items = decoded
		p.s.cachePut(ctx, key, resp.body)
	} else {
		p.cacheHits++
	}

	p.s.debug("Fetched page",
		zap.String("path", p.path),
		zap.Int("page", p.cursor.Page),
		zap.Int("items", len(items)),
		zap.Bool("cached", cached))

	p.fetched++
	if p.cursor.Exhausted(len(items)) || (p.maxPages > 0 && p.fetched >= p.maxPages) {
		p.done = true
	} else {
		p.cursor.Advance()
	}

	return items, nil
}

func (p *pager) pageURL() *url.URL {
	target := *p.base
	values := target.Query()
	values.Set("page", strconv.Itoa(p.cursor.Page))
	values.Set("per_page", strconv.Itoa(p.cursor.PerPage))
	target.RawQuery = values.Encode()
	return &target
}

// decodeItems accepts a bare JSON array or a search-style object wrapping the
// array under "items". An empty body is an empty page.
func decodeItems(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode collection page: %w", err)
		}
		return items, nil
	case '{':
		var envelope struct {
			Items *[]json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("decode collection page: %w", err)
		}
		if envelope.Items == nil {
			return nil, errors.New("decode collection page: expected a JSON array or an object with an items array")
		}
		return *envelope.Items, nil
	default:
		return nil, errors.New("decode collection page: expected a JSON array")
	}
}
