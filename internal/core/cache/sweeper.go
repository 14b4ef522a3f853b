package cache

import (
	"context"
	"time"
)

// Sweep calls EvictExpired on c every interval until ctx is done. The onEvict
// callback, when set, receives the outcome of each pass.
func Sweep(ctx context.Context, c Cache, interval time.Duration, onEvict func(removed int, err error)) {
	if c == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := c.EvictExpired(ctx, now.UTC())
			if onEvict != nil {
				onEvict(removed, err)
			}
		}
	}
}
