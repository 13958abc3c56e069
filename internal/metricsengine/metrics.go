// Copyright 2025 James Ross
// Package metricsengine computes the per-day aggregate snapshot (latency
// percentiles, prediction/probability aggregates, per-feature numeric
// summaries) from a window of events.
package metricsengine

import (
	"math"
	"sort"

	"github.com/driftguard/driftguard/internal/events"
)

// FeatureStat is the {mean, std} summary for one numeric feature.
type FeatureStat struct {
	Mean float64
	Std  float64
}

// DailyMetric is the persisted per-(key, day) aggregate snapshot.
type DailyMetric struct {
	Key           events.Key
	Day           string
	NEvents       int
	LatencyP50Ms  float64
	LatencyP95Ms  float64
	YPredRate     float64
	YProbaMean    float64
	FeatureStats  map[string]FeatureStat
}

// Compute aggregates a day window's events into a DailyMetric. Percentiles
// use linear interpolation between the two closest ranks of the sorted
// latency samples.
func Compute(key events.Key, day string, evs []events.Event) DailyMetric {
	dm := DailyMetric{Key: key, Day: day, NEvents: len(evs), FeatureStats: map[string]FeatureStat{}}
	if len(evs) == 0 {
		return dm
	}

	var latencies []float64
	var yPredSum, yPredCount int
	var yProbaSum float64
	var yProbaCount int
	numericSamples := map[string][]float64{}

	for _, ev := range evs {
		if ev.LatencyMs != nil {
			latencies = append(latencies, *ev.LatencyMs)
		}
		if ev.YPred != nil {
			yPredCount++
			yPredSum += *ev.YPred
		}
		if ev.YProba != nil {
			yProbaCount++
			yProbaSum += *ev.YProba
		}
		for f, raw := range ev.Features {
			if n, ok := events.NumericValue(raw); ok {
				numericSamples[f] = append(numericSamples[f], n)
			}
		}
	}

	if len(latencies) > 0 {
		sort.Float64s(latencies)
		dm.LatencyP50Ms = percentile(latencies, 0.50)
		dm.LatencyP95Ms = percentile(latencies, 0.95)
	}
	if yPredCount > 0 {
		dm.YPredRate = float64(yPredSum) / float64(yPredCount)
	}
	if yProbaCount > 0 {
		dm.YProbaMean = yProbaSum / float64(yProbaCount)
	}
	for f, values := range numericSamples {
		dm.FeatureStats[f] = meanStd(values)
	}
	return dm
}

// percentile assumes sorted ascending values and a p in [0, 1].
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func meanStd(values []float64) FeatureStat {
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= n
	return FeatureStat{Mean: mean, Std: math.Sqrt(variance)}
}
