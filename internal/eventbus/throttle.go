package eventbus

import (
	"golang.org/x/time/rate"
)

// StreamStatsHz is the maximum rate at which stream_stats events may be
// published per group.
const StreamStatsHz = 20

// Throttle rate-limits a single event source (one per group) so a fast
// producer can't flood subscribers faster than the UI can usefully render.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle builds a Throttle allowing up to hz events per second, with a
// burst of one — excess publishes within the same tick are dropped rather
// than queued.
func NewThrottle(hz float64) *Throttle {
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(hz), 1)}
}

// Allow reports whether a publish should proceed now.
func (t *Throttle) Allow() bool {
	return t.limiter.Allow()
}

// PublishStreamStats publishes a stream_stats event on bus if the group's
// throttle permits it at this moment; returns false if the event was
// dropped to respect the rate limit.
func (t *Throttle) PublishStreamStats(bus *Bus, payload any) bool {
	if !t.Allow() {
		return false
	}
	bus.Publish(Event{Name: StreamStats, Payload: payload})
	return true
}
