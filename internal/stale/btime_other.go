//go:build !linux

package stale

import "time"

func birthTime(path string) (time.Time, bool) {
	return time.Time{}, false
}
