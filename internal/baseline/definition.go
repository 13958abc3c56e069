// Copyright 2025 James Ross
package baseline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/driftguard/driftguard/internal/apperr"
	"github.com/driftguard/driftguard/internal/events"
)

type FeatureType string

const (
	Numeric     FeatureType = "numeric"
	Categorical FeatureType = "categorical"
)

// Definition is a tagged variant of a baseline's reference shape. Exactly
// one of Numeric/Categorical is populated, selected by Type.
type Definition struct {
	Type        FeatureType
	BinEdges    []float64 // numeric
	Categories  []string  // categorical
	OtherBucket bool      // categorical
}

// definitionJSON is the on-the-wire / on-disk encoding. The legacy form
// (a bare JSON array of edges) is accepted on read for numeric baselines
// captured before the tagged format existed.
type definitionJSON struct {
	Type        FeatureType `json:"type,omitempty"`
	BinEdges    []float64   `json:"bin_edges,omitempty"`
	Categories  []string    `json:"categories,omitempty"`
	OtherBucket bool        `json:"other_bucket,omitempty"`
}

func (d Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(definitionJSON{
		Type:        d.Type,
		BinEdges:    d.BinEdges,
		Categories:  d.Categories,
		OtherBucket: d.OtherBucket,
	})
}

func (d *Definition) UnmarshalJSON(raw []byte) error {
	// Legacy plain-list numeric form: a bare array of edges.
	var legacy []float64
	if err := json.Unmarshal(raw, &legacy); err == nil {
		d.Type = Numeric
		d.BinEdges = legacy
		return nil
	}
	var dj definitionJSON
	if err := json.Unmarshal(raw, &dj); err != nil {
		return err
	}
	switch dj.Type {
	case Numeric:
		d.Type = Numeric
		d.BinEdges = dj.BinEdges
	case Categorical:
		d.Type = Categorical
		d.Categories = dj.Categories
		d.OtherBucket = dj.OtherBucket
	default:
		return fmt.Errorf("baseline: unknown definition tag %q", dj.Type)
	}
	return nil
}

// FeatureBaseline is the persisted reference distribution for one feature
// of one (project, model, endpoint) key.
type FeatureBaseline struct {
	ProjectID    string
	ModelID      string
	Endpoint     string
	Feature      string
	FeatureType  FeatureType
	NBaseline    int
	Definition   Definition
	BaselineProb []float64
	CreatedAt    time.Time
}

// CaptureInput bundles the parameters of §4.3's capture algorithm.
type CaptureInput struct {
	Key              events.Key
	Feature          string
	Samples          []events.Event // already window-filtered, ascending by timestamp or most-recent-n
	NBins            int
	TopKCategories   int
}

const (
	minNumericFloor     = 20
	minCategoricalFloor = 20
)

// Capture runs the baseline capture algorithm (§4.3 steps 2-5) over a
// pre-selected, pre-windowed sample of events, classifying each value,
// dispatching to the numeric or categorical path, and returning the
// resulting FeatureBaseline. Window selection (explicit range, named-day
// range, or most-recent-n fallback) and persistence (overwrite + atomic
// insert) are the caller's (store-layer) responsibility.
func Capture(in CaptureInput) (FeatureBaseline, error) {
	var numericValues []float64
	var categoricalValues []string
	for _, ev := range in.Samples {
		raw, ok := ev.Features[in.Feature]
		if !ok {
			continue
		}
		if n, ok := events.NumericValue(raw); ok {
			numericValues = append(numericValues, n)
			continue
		}
		if s, ok := events.CategoricalValue(raw); ok {
			categoricalValues = append(categoricalValues, s)
		}
	}

	fb := FeatureBaseline{
		ProjectID: in.Key.ProjectID,
		ModelID:   in.Key.ModelID,
		Endpoint:  in.Key.Endpoint,
		Feature:   in.Feature,
		CreatedAt: time.Now().UTC(),
	}

	numericCount, categoricalCount := len(numericValues), len(categoricalValues)
	if numericCount >= categoricalCount && numericCount > 0 {
		floor := minNumericFloor
		if 2*in.NBins > floor {
			floor = 2 * in.NBins
		}
		if numericCount < floor {
			return fb, apperr.Newf(apperr.NotEnoughData, "numeric samples %d below floor %d", numericCount, floor).
				WithData("observed", numericCount).WithData("floor", floor)
		}
		edges := NumericEdges(numericValues, in.NBins)
		probs := NumericHistogram(edges, numericValues)
		fb.FeatureType = Numeric
		fb.NBaseline = numericCount
		fb.Definition = Definition{Type: Numeric, BinEdges: edges}
		fb.BaselineProb = probs
		return fb, nil
	}

	if categoricalCount < minCategoricalFloor {
		return fb, apperr.Newf(apperr.NotEnoughData, "categorical samples %d below floor %d", categoricalCount, minCategoricalFloor).
			WithData("observed", categoricalCount).WithData("floor", minCategoricalFloor)
	}
	keepSet := topKCategories(categoricalValues, in.TopKCategories)
	keepSet = append(keepSet, OtherBucketSentinel)
	probs := CategoricalFrequencies(keepSet, categoricalValues)
	fb.FeatureType = Categorical
	fb.NBaseline = categoricalCount
	fb.Definition = Definition{Type: Categorical, Categories: keepSet, OtherBucket: true}
	fb.BaselineProb = probs
	return fb, nil
}

func topKCategories(values []string, k int) []string {
	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}
	type kv struct {
		key   string
		count int
	}
	ordered := make([]kv, 0, len(counts))
	seen := make(map[string]bool, len(counts))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			ordered = append(ordered, kv{v, counts[v]})
		}
	}
	// stable descending-count sort; ties broken by first-seen insertion order
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].count > ordered[j-1].count; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	if k > len(ordered) {
		k = len(ordered)
	}
	keep := make([]string, 0, k)
	for i := 0; i < k; i++ {
		keep = append(keep, ordered[i].key)
	}
	return keep
}
