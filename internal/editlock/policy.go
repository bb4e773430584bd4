package editlock

import "time"

// DefaultTTL mirrors the thirty minute editing window of the reference
// deployment.
const DefaultTTL = 30 * time.Minute

// IsStale reports whether a lock whose holder last renewed at lastHeartbeat
// has been abandoned as of now. The boundary is strict: a lock exactly ttl
// old is still live.
func IsStale(lastHeartbeat, now time.Time, ttl time.Duration) bool {
	return now.Sub(lastHeartbeat) > ttl
}
