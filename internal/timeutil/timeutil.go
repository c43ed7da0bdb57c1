// Package timeutil pins the pipeline to a single reference timezone so
// recency windows, archive keys and retention cutoffs all compare the
// same clock.
package timeutil

import (
	"log"
	"time"
)

const zoneName = "America/Los_Angeles"

var zone *time.Location

func init() {
	loc, err := time.LoadLocation(zoneName)
	if err != nil {
		log.Printf("Failed to load timezone %s, falling back to UTC: %v", zoneName, err)
		loc = time.UTC
	}
	zone = loc
}

// Zone returns the canonical pipeline timezone.
func Zone() *time.Location {
	return zone
}

// Now returns the current time in the canonical timezone.
func Now() time.Time {
	return time.Now().In(zone)
}

// Canonical converts t to the canonical timezone.
func Canonical(t time.Time) time.Time {
	return t.In(zone)
}
