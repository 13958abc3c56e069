// Copyright 2025 James Ross
// Package drift implements timezone-correct day windowing and the
// per-feature and all-feature drift compute paths.
package drift

import (
	"time"

	"github.com/driftguard/driftguard/internal/apperr"
)

// DayWindow returns the half-open UTC interval [start, end) for calendar
// day `day` interpreted in the named IANA timezone tz. end is exclusive.
func DayWindow(day time.Time, tz string) (start, end time.Time, err error) {
	loc, lerr := time.LoadLocation(tz)
	if lerr != nil {
		return time.Time{}, time.Time{}, apperr.Newf(apperr.InvalidInput, "invalid timezone %q: %v", tz, lerr)
	}
	local := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	start = local.UTC()
	end = start.Add(24 * time.Hour)
	return start, end, nil
}
