package fetch

import "time"

// Recorder receives fetch instrumentation events.
type Recorder interface {
	RequestCompleted(outcome Outcome, status int)
	Retried(outcome Outcome)
	CacheLookup(hit bool)
	RateLimitWait(wait time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RequestCompleted(Outcome, int) {}
func (nopRecorder) Retried(Outcome)               {}
func (nopRecorder) CacheLookup(bool)              {}
func (nopRecorder) RateLimitWait(time.Duration)   {}
