package safety

import (
	"sync/atomic"
	"time"
)

// watchdog is a cooperative timer: a background goroutine samples time
// every 100ms and, if the gap since the last pet exceeds the configured
// timeout, fires the timeout handler once and resets the gap so the
// handler doesn't refire on every subsequent sample (spec §4.3).
type watchdog struct {
	enabled atomic.Bool
	lastPet atomic.Int64 // UnixNano
	timeout atomic.Int64 // nanoseconds

	stopCh chan struct{}
	doneCh chan struct{}
}

const watchdogSampleInterval = 100 * time.Millisecond

func newWatchdog() *watchdog {
	w := &watchdog{}
	w.lastPet.Store(time.Now().UnixNano())
	return w
}

func (w *watchdog) pet() {
	w.lastPet.Store(time.Now().UnixNano())
}

func (w *watchdog) timeoutDuration() time.Duration {
	return time.Duration(w.timeout.Load())
}

// start launches the sampling loop if one isn't already running. onFire
// is called (recover-guarded by the caller) whenever the gap exceeds
// timeout; it runs on the watchdog goroutine.
func (w *watchdog) start(timeout time.Duration, onFire func(gap time.Duration)) {
	w.timeout.Store(int64(timeout))
	w.pet()
	if w.enabled.Swap(true) {
		return // already running
	}
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go func() {
		defer close(w.doneCh)
		ticker := time.NewTicker(watchdogSampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stopCh:
				return
			case <-ticker.C:
				if !w.enabled.Load() {
					return
				}
				now := time.Now()
				last := time.Unix(0, w.lastPet.Load())
				gap := now.Sub(last)
				if gap > w.timeoutDuration() {
					onFire(gap)
					// Reset so the handler fires once per breach, not
					// once per 100ms sample thereafter.
					w.lastPet.Store(now.UnixNano())
				}
			}
		}
	}()
}

func (w *watchdog) stop() {
	if !w.enabled.Swap(false) {
		return
	}
	close(w.stopCh)
	<-w.doneCh
}

func (w *watchdog) isEnabled() bool { return w.enabled.Load() }
