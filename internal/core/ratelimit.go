package core

import "time"

// RateLimitState is the latest known quota snapshot for an endpoint family.
type RateLimitState struct {
	Limit        int        `json:"limit"`
	Remaining    int        `json:"remaining"`
	ResetAt      time.Time  `json:"reset_at"`
	ObservedAt   time.Time  `json:"observed_at"`
	BackoffUntil *time.Time `json:"backoff_until,omitempty"`
}

// Exhausted reports whether the window has no requests left at now.
func (s RateLimitState) Exhausted(now time.Time) bool {
	return s.Remaining == 0 && now.Before(s.ResetAt)
}
