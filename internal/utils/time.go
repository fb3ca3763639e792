package utils

import "time"

// Now returns the current time in UTC. All persisted timestamps go
// through this so documents compare consistently across accounts.
func Now() time.Time {
	return time.Now().UTC()
}
