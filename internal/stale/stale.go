// Package stale decides whether a build output can be reused.
//
// The check is a coarse, file-level timestamp comparison: a target is up to
// date when its timestamp is not older than the modification time of any of
// its inputs. There is no content hashing and no header tracking.
package stale

import "os"

// Stamp selects which timestamp of the target is compared.
type Stamp int

const (
	// Modified compares the target's modification time.
	Modified Stamp = iota
	// Created compares the target's birth time where the platform reports
	// one and falls back to its modification time otherwise.
	Created
)

// Oracle answers up-to-date questions for one stage.
type Oracle struct {
	Stamp Stamp
}

// New returns an Oracle for the config value "modified" or "created".
func New(timestamps string) *Oracle {
	if timestamps == "created" {
		return &Oracle{Stamp: Created}
	}
	return &Oracle{Stamp: Modified}
}

// UpToDate reports whether target exists and is not older than every source.
// It is false when target or any source is missing, and when sources is empty.
func (o *Oracle) UpToDate(target string, sources ...string) bool {
	if len(sources) == 0 {
		return false
	}
	ti, err := os.Stat(target)
	if err != nil {
		return false
	}
	stamp := ti.ModTime()
	if o.Stamp == Created {
		if bt, ok := birthTime(target); ok {
			stamp = bt
		}
	}
	for _, src := range sources {
		si, err := os.Stat(src)
		if err != nil {
			return false
		}
		if stamp.Before(si.ModTime()) {
			return false
		}
	}
	return true
}
