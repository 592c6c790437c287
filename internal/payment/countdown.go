package payment

import (
	"fmt"
	"time"
)

// Countdown formats the time left until expiresAt as "m:ss", or "Expired"
// once no whole second remains. Both instants are truncated to seconds.
func Countdown(expiresAt, now time.Time) string {
	diff := expiresAt.Unix() - now.Unix()
	if diff <= 0 {
		return "Expired"
	}
	return fmt.Sprintf("%d:%02d", diff/60, diff%60)
}
