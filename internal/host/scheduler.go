package host

import (
	"sync"
	"time"
)

// TickerScheduler runs scheduled functions on a time.Ticker goroutine.
type TickerScheduler struct{}

// Schedule calls fn every interval. Runs never overlap; a slow run delays
// the next one.
func (TickerScheduler) Schedule(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
