// Copyright 2025 James Ross
package baseline

import (
	"math"
	"testing"
)

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

func TestNumericEdgesLength(t *testing.T) {
	edges := NumericEdges([]float64{1, 2, 3, 4, 10}, 4)
	if len(edges) != 5 {
		t.Fatalf("expected 5 edges for n_bins=4, got %d", len(edges))
	}
	if edges[4] != 10 {
		t.Fatalf("expected last edge pinned exactly to max, got %v", edges[4])
	}
}

func TestNumericEdgesDegenerateWidensRange(t *testing.T) {
	edges := NumericEdges([]float64{5, 5, 5}, 2)
	if edges[0] != 4.5 || edges[2] != 5.5 {
		t.Fatalf("expected widened range (4.5, 5.5), got (%v, %v)", edges[0], edges[2])
	}
}

func TestNumericHistogramEmptySample(t *testing.T) {
	edges := NumericEdges([]float64{0, 10}, 5)
	probs := NumericHistogram(edges, nil)
	if len(probs) != 5 {
		t.Fatalf("expected zero-vector of length 5, got %d", len(probs))
	}
	if sum(probs) != 0 {
		t.Fatalf("expected all-zero probabilities, got sum %v", sum(probs))
	}
}

func TestNumericHistogramSumsToOne(t *testing.T) {
	edges := NumericEdges([]float64{0, 10}, 5)
	probs := NumericHistogram(edges, []float64{0, 1, 2, 9, 10, 10, 10})
	if math.Abs(sum(probs)-1.0) > 1e-9 {
		t.Fatalf("expected probabilities to sum to 1, got %v", sum(probs))
	}
}

func TestNumericHistogramClampsOutOfRange(t *testing.T) {
	edges := NumericEdges([]float64{0, 10}, 5)
	probs := NumericHistogram(edges, []float64{-100, 100})
	if probs[0] != 0.5 {
		t.Fatalf("expected below-range value clamped into bin 0, got %v", probs[0])
	}
	if probs[len(probs)-1] != 0.5 {
		t.Fatalf("expected above-range value clamped into last bin, got %v", probs[len(probs)-1])
	}
}

func TestCategoricalFrequenciesOtherBucket(t *testing.T) {
	cats := []string{"US", "CA", OtherBucketSentinel}
	probs := CategoricalFrequencies(cats, []string{"US", "US", "FR", "FR"})
	if probs[2] != 0.5 {
		t.Fatalf("expected unseen values routed to __OTHER__, got %v", probs[2])
	}
}

func TestCategoricalFrequenciesDropsWithoutOtherBucket(t *testing.T) {
	cats := []string{"US", "CA"}
	probs := CategoricalFrequencies(cats, []string{"US", "FR"})
	if sum(probs) != 1 {
		t.Fatalf("expected only recognized values counted, got sum %v", sum(probs))
	}
}
