package esc

import "time"

// timeNow isolates the one spot wall-clock time enters the commit protocol.
func timeNow() time.Time {
	return time.Now().UTC()
}
