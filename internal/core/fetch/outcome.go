package fetch

import (
	"net/http"
	"strings"

	"github.com/octofetch/octofetch/internal/core/engine"
)

// Outcome is the classified result of a single request attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotFound
	OutcomeUnauthorized
	OutcomeForbidden
	OutcomeRejected
	OutcomeRateLimited
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeRejected:
		return "rejected"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Retryable reports whether the outcome may succeed if the request is repeated.
func (o Outcome) Retryable() bool {
	return o == OutcomeRateLimited || o == OutcomeTransient
}

func (o Outcome) kind() Kind {
	switch o {
	case OutcomeNotFound:
		return KindNotFound
	case OutcomeUnauthorized:
		return KindUnauthorized
	case OutcomeForbidden:
		return KindForbidden
	case OutcomeRejected:
		return KindRejected
	case OutcomeRateLimited:
		return KindRateLimited
	default:
		return KindFetchFailed
	}
}

// Classify maps a transport error or response status to an Outcome.
// A 403 only counts as throttling when the response says so through an
// exhausted quota or a Retry-After header.
func Classify(status int, header http.Header, transportErr error) Outcome {
	if transportErr != nil {
		return OutcomeTransient
	}

	switch {
	case status >= 200 && status < 300:
		return OutcomeOK
	case status == http.StatusUnauthorized:
		return OutcomeUnauthorized
	case status == http.StatusNotFound:
		return OutcomeNotFound
	case status == http.StatusTooManyRequests:
		return OutcomeRateLimited
	case status == http.StatusForbidden:
		if throttled(header) {
			return OutcomeRateLimited
		}
		return OutcomeForbidden
	case status == http.StatusRequestTimeout || status >= 500:
		return OutcomeTransient
	default:
		return OutcomeRejected
	}
}

func throttled(header http.Header) bool {
	if header == nil {
		return false
	}
	if strings.TrimSpace(header.Get(engine.HeaderRemaining)) == "0" {
		return true
	}
	return strings.TrimSpace(header.Get(engine.HeaderRetryAfter)) != ""
}

// action is what the fetch loop does after an attempt.
type action int

const (
	actionAccept action = iota
	actionRetry
	actionWaitAndRetry
	actionGiveUp
	actionFail
)

// decide is the retry policy. transientFailures and rateLimitHits count
// consecutive attempts on the current request, including this one.
func decide(outcome Outcome, transientFailures, rateLimitHits, maxRateLimitWaits int) action {
	switch outcome {
	case OutcomeOK:
		return actionAccept
	case OutcomeTransient:
		if transientFailures <= 1 {
			return actionRetry
		}
		return actionGiveUp
	case OutcomeRateLimited:
		if rateLimitHits <= maxRateLimitWaits {
			return actionWaitAndRetry
		}
		return actionFail
	default:
		return actionFail
	}
}
