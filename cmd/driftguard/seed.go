// Copyright 2025 James Ross
package main

import (
	"time"

	"github.com/driftguard/driftguard/internal/events"
)

// eventSeed is one synthetic sample generated by the seed role before it is
// shaped into an events.Event for insertion.
type eventSeed struct {
	ts      time.Time
	x       float64 // uniform(0,1) numeric feature
	country string  // categorical feature, skewed toward US
}

// toEvents normalizes each synthetic sample into a storable events.Event,
// discarding any that fail validation (none should, by construction).
func toEvents(project, model, endpoint string, batch []eventSeed) []events.Event {
	out := make([]events.Event, 0, len(batch))
	for _, b := range batch {
		e, err := events.Normalize(events.Event{
			ProjectID: project,
			ModelID:   model,
			Endpoint:  endpoint,
			Timestamp: b.ts,
			Features:  map[string]interface{}{"x": b.x, "country": b.country},
		})
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}
