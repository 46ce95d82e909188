package oauth

import "time"

// Clock supplies the current time to expiry and TTL checks.
// Substituting a fake implementation makes token and state expiry
// deterministic in tests.
type Clock interface {
	Now() time.Time
}

// systemClock is the default Clock backed by time.Now.
type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock returns the real-time Clock used by default.
func SystemClock() Clock {
	return systemClock{}
}
