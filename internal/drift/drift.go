// Copyright 2025 James Ross
package drift

import (
	"context"
	"sort"
	"time"

	"github.com/driftguard/driftguard/internal/apperr"
	"github.com/driftguard/driftguard/internal/baseline"
	"github.com/driftguard/driftguard/internal/events"
	"github.com/driftguard/driftguard/internal/psi"
)

// FeatureDrift is one entry of a DailyDrift row's psi map.
type FeatureDrift struct {
	PSI        float64
	N          int
	Type       baseline.FeatureType
	Severity   psi.Severity
	Categories []string // categorical only
}

// DailyDrift is the per-(key, day) drift snapshot.
type DailyDrift struct {
	Key           events.Key
	Day           string // YYYY-MM-DD, the calendar day the window was computed for
	PSI           map[string]FeatureDrift
	MaxPSIFeature string
	MaxPSI        float64
}

// AllFeaturesResult is the return value of ComputeAll (§4.6 step 7).
type AllFeaturesResult struct {
	DailyDrift
	MissingBaseline   []string
	SkippedLowSample  map[string]int
	MaxSeverity       psi.Severity
}

// Store is the persistence surface the drift engine needs. The concrete
// Postgres implementation lives in internal/store.
type Store interface {
	GetBaseline(ctx context.Context, key events.Key, feature string) (*baseline.FeatureBaseline, error)
	GetBaselines(ctx context.Context, key events.Key) ([]baseline.FeatureBaseline, error)
	EventsInWindow(ctx context.Context, key events.Key, start, end time.Time) ([]events.Event, error)
	GetDailyDrift(ctx context.Context, key events.Key, day string) (*DailyDrift, error)
	UpsertDailyDrift(ctx context.Context, dd DailyDrift, overwrite bool) error
}

func actualValuesFor(fb baseline.FeatureBaseline, evs []events.Event) ([]float64, []string) {
	var numeric []float64
	var categorical []string
	for _, ev := range evs {
		raw, ok := ev.Features[fb.Feature]
		if !ok {
			continue
		}
		switch fb.FeatureType {
		case baseline.Numeric:
			if n, ok := events.NumericValue(raw); ok {
				numeric = append(numeric, n)
			}
		case baseline.Categorical:
			if s, ok := events.CategoricalValue(raw); ok {
				categorical = append(categorical, s)
			}
		}
	}
	return numeric, categorical
}

// computeFeatureDrift runs §4.5 steps 5-6 given an already-loaded baseline
// and the events in the day window: extract actual values of the
// baseline's type, histogram/frequency them using the baseline's fixed
// definition, compute PSI, and classify severity.
func computeFeatureDrift(fb baseline.FeatureBaseline, evs []events.Event) (FeatureDrift, int, error) {
	numeric, categorical := actualValuesFor(fb, evs)
	var n int
	var actualProbs []float64
	switch fb.FeatureType {
	case baseline.Numeric:
		n = len(numeric)
		actualProbs = baseline.NumericHistogram(fb.Definition.BinEdges, numeric)
	case baseline.Categorical:
		n = len(categorical)
		actualProbs = baseline.CategoricalFrequencies(fb.Definition.Categories, categorical)
	}

	score, err := psi.Compute(fb.BaselineProb, actualProbs)
	if err != nil {
		return FeatureDrift{}, n, err
	}
	fd := FeatureDrift{
		PSI:      score,
		N:        n,
		Type:     fb.FeatureType,
		Severity: psi.ClassifySeverity(score),
	}
	if fb.FeatureType == baseline.Categorical {
		fd.Categories = fb.Definition.Categories
	}
	return fd, n, nil
}

// ComputeFeature implements §4.5: single-feature drift compute for one key,
// day and feature, upserting the result into the key's DailyDrift row.
func ComputeFeature(ctx context.Context, store Store, key events.Key, day string, feature, tz string, minSamples int, start, end time.Time) (FeatureDrift, error) {
	fb, err := store.GetBaseline(ctx, key, feature)
	if err != nil {
		return FeatureDrift{}, err
	}
	if fb == nil {
		return FeatureDrift{}, apperr.Newf(apperr.BaselineMissing, "no baseline for feature %q", feature)
	}
	evs, err := store.EventsInWindow(ctx, key, start, end)
	if err != nil {
		return FeatureDrift{}, err
	}

	numeric, categorical := actualValuesFor(*fb, evs)
	observed := len(numeric)
	if fb.FeatureType == baseline.Categorical {
		observed = len(categorical)
	}
	if observed < minSamples {
		return FeatureDrift{}, apperr.Newf(apperr.NotEnoughData, "observed %d samples, need %d", observed, minSamples).
			WithData("observed", observed).WithData("min_samples", minSamples)
	}

	fd, _, err := computeFeatureDrift(*fb, evs)
	if err != nil {
		return FeatureDrift{}, err
	}

	existing, err := store.GetDailyDrift(ctx, key, day)
	if err != nil {
		return FeatureDrift{}, err
	}
	dd := DailyDrift{Key: key, Day: day, PSI: map[string]FeatureDrift{}}
	if existing != nil {
		dd = *existing
		if dd.PSI == nil {
			dd.PSI = map[string]FeatureDrift{}
		}
	}
	dd.PSI[feature] = fd
	recomputeMax(&dd)
	if err := store.UpsertDailyDrift(ctx, dd, true); err != nil {
		return FeatureDrift{}, err
	}
	return fd, nil
}

// ComputeAll implements §4.6: all-features drift compute for one key and
// day, scanning the window's events once, computing drift for every
// baselined feature whose sample meets min_samples, and merging (or
// replacing, per overwrite) the result into the key's DailyDrift row.
func ComputeAll(ctx context.Context, store Store, key events.Key, day, tz string, minSamples int, overwrite bool, start, end time.Time) (AllFeaturesResult, error) {
	baselines, err := store.GetBaselines(ctx, key)
	if err != nil {
		return AllFeaturesResult{}, err
	}
	if len(baselines) == 0 {
		return AllFeaturesResult{}, apperr.New(apperr.NoBaselines, "no baselines captured for key")
	}
	evs, err := store.EventsInWindow(ctx, key, start, end)
	if err != nil {
		return AllFeaturesResult{}, err
	}
	if len(evs) == 0 {
		return AllFeaturesResult{}, apperr.New(apperr.NoEvents, "no events in day window")
	}

	baselinedFeatures := make(map[string]bool, len(baselines))
	for _, b := range baselines {
		baselinedFeatures[b.Feature] = true
	}
	observedFeatures := make(map[string]bool)
	for _, ev := range evs {
		for f := range ev.Features {
			observedFeatures[f] = true
		}
	}

	results := map[string]FeatureDrift{}
	skipped := map[string]int{}
	for _, fb := range baselines {
		fd, n, err := computeFeatureDrift(fb, evs)
		if err != nil {
			return AllFeaturesResult{}, err
		}
		if n < minSamples {
			skipped[fb.Feature] = n
			continue
		}
		results[fb.Feature] = fd
	}

	if len(results) == 0 {
		return AllFeaturesResult{}, apperr.Newf(apperr.NotEnoughData, "no feature met min_samples=%d", minSamples).
			WithData("skipped_low_sample", skipped)
	}

	var missing []string
	for f := range observedFeatures {
		if !baselinedFeatures[f] {
			missing = append(missing, f)
		}
	}
	sort.Strings(missing)

	existing, err := store.GetDailyDrift(ctx, key, day)
	if err != nil {
		return AllFeaturesResult{}, err
	}
	dd := DailyDrift{Key: key, Day: day, PSI: map[string]FeatureDrift{}}
	if overwrite || existing == nil {
		dd.PSI = results
	} else {
		dd = *existing
		if dd.PSI == nil {
			dd.PSI = map[string]FeatureDrift{}
		}
		for f, fd := range results {
			dd.PSI[f] = fd
		}
	}
	recomputeMax(&dd)
	if err := store.UpsertDailyDrift(ctx, dd, overwrite); err != nil {
		return AllFeaturesResult{}, err
	}

	maxSeverity := psi.OK
	if fd, ok := dd.PSI[dd.MaxPSIFeature]; ok {
		maxSeverity = fd.Severity
	}

	return AllFeaturesResult{
		DailyDrift:       dd,
		MissingBaseline:  missing,
		SkippedLowSample: skipped,
		MaxSeverity:      maxSeverity,
	}, nil
}

func recomputeMax(dd *DailyDrift) {
	dd.MaxPSIFeature = ""
	dd.MaxPSI = 0
	// deterministic iteration: sort feature names so ties resolve stably
	names := make([]string, 0, len(dd.PSI))
	for f := range dd.PSI {
		names = append(names, f)
	}
	sort.Strings(names)
	for _, f := range names {
		if dd.PSI[f].PSI > dd.MaxPSI || dd.MaxPSIFeature == "" {
			dd.MaxPSI = dd.PSI[f].PSI
			dd.MaxPSIFeature = f
		}
	}
}
