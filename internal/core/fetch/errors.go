package fetch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a fetch stopped.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindRejected     Kind = "rejected"
	KindRateLimited  Kind = "rate_limited"
	KindFetchFailed  Kind = "fetch_failed"
	KindCancelled    Kind = "cancelled"
)

// Sentinels matched by errors.Is against any *FetchError of the same kind.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("credential missing or invalid")
	ErrForbidden    = errors.New("access forbidden")
	ErrRejected     = errors.New("request rejected")
	ErrRateLimited  = errors.New("rate limited")
	ErrFetchFailed  = errors.New("fetch failed")
	ErrCancelled    = errors.New("fetch cancelled")
)

// ErrInvalidPath is returned before any request when a resource path is
// empty, malformed, or absolute.
var ErrInvalidPath = errors.New("invalid resource path")

// FetchError reports a fetch that could not complete. For collection fetches
// Items holds everything gathered before the failure so callers can decide
// whether a partial result is usable.
type FetchError struct {
	Kind       Kind
	Path       string
	Page       int
	LastPage   int
	StatusCode int
	Items      []json.RawMessage
	Cause      error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var sb strings.Builder
	sb.WriteString("fetch ")
	sb.WriteString(e.Path)
	if e.Page > 0 {
		fmt.Fprintf(&sb, " page %d", e.Page)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Kind.sentinel().Error())
	if e.StatusCode > 0 {
		fmt.Fprintf(&sb, " (status %d)", e.StatusCode)
	}
	if e.Page > 0 {
		fmt.Fprintf(&sb, ", last complete page %d", e.LastPage)
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *FetchError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := []error{e.Kind.sentinel()}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Partial returns the items gathered before the failure.
func (e *FetchError) Partial() []json.RawMessage {
	if e == nil {
		return nil
	}
	return e.Items
}

// AsFetchError extracts a *FetchError from err.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) && fe != nil {
		return fe, true
	}
	return nil, false
}

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindUnauthorized:
		return ErrUnauthorized
	case KindForbidden:
		return ErrForbidden
	case KindRejected:
		return ErrRejected
	case KindRateLimited:
		return ErrRateLimited
	case KindCancelled:
		return ErrCancelled
	default:
		return ErrFetchFailed
	}
}
