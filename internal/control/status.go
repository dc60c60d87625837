package control

import (
	"context"
	"time"

	"stagehand.dev/stagehand/internal/events"
)

// statusPumpRate is the ambient status broadcast rate: independent of
// any engine's own tick rate, it exists purely so a connected operator
// sees a steady heartbeat even when nothing is actively moving.
const statusPumpRate = 2 // Hz

// RunStatusPump publishes a StatusUpdate event at statusPumpRate until
// ctx is cancelled. Intended to run as its own goroutine for the life
// of the process.
func (c *Controller) RunStatusPump(ctx context.Context) {
	ticker := time.NewTicker(time.Second / statusPumpRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.events.Publish(events.Event{Type: events.StatusUpdate, Data: c.GetStatus()})
		}
	}
}
