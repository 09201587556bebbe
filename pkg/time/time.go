package time

import (
	"context"
	"time"
)

// TickWithCtx returns a chan that receives time.Time every time interval ticks.
// This channel will be closed after context cancelation.
func TickWithCtx(ctx context.Context, interval time.Duration) <-chan time.Time {
	ch := make(chan time.Time)
	ticker := time.NewTicker(interval)

	go func() {
		defer close(ch)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-ticker.C:
				select {
				case ch <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch
}

// DaysBefore returns the instant n whole days before t.
func DaysBefore(t time.Time, n int) time.Time {
	return t.Add(-time.Duration(n) * 24 * time.Hour)
}
