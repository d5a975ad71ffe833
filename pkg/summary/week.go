package summary

import (
	"fmt"
	"time"
)

// WeekKey derives the ISO-8601 week key ("2026-W35") for a point in time.
// The key is purely calendar driven: rollover happens the instant a request
// lands in a new ISO week, regardless of how old the previous artifact is.
func WeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
