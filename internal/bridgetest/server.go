package bridgetest

import (
	"testing"
	"time"
)

// Ticker is the reactor surface the harness drives; both server
// variants satisfy it.
type Ticker interface {
	Tick() error
}

// StartTicker drives s.Tick on the given interval from a background
// goroutine, standing in for the host application's scheduler during
// tests. The loop stops when the returned func is called, the test
// ends, or Tick reports the server closed.
func StartTicker(tb testing.TB, s Ticker, interval time.Duration) (stop func()) {
	tb.Helper()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := s.Tick(); err != nil {
					return
				}
			}
		}
	}()

	stopped := false
	stop = func() {
		if !stopped {
			stopped = true
			close(done)
		}
	}
	tb.Cleanup(stop)
	return stop
}
