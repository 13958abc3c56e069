// Copyright 2025 James Ross
// Package baseline implements the histogram/frequency binning contract and
// the FeatureBaseline capture algorithm.
package baseline

import "github.com/driftguard/driftguard/internal/apperr"

// NumericEdges computes n_bins+1 strictly non-decreasing bin edges from a
// sample of reals. If the sample is degenerate (min == max) the range is
// widened by 0.5 on each side so every value does not collapse into a
// single infinitesimal bin.
func NumericEdges(samples []float64, nBins int) []float64 {
	lo, hi := samples[0], samples[0]
	for _, v := range samples {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	edges := make([]float64, nBins+1)
	width := (hi - lo) / float64(nBins)
	for i := 0; i <= nBins; i++ {
		edges[i] = lo + float64(i)*width
	}
	edges[nBins] = hi // avoid floating-point drift on the final edge
	return edges
}

// NumericHistogram bins samples against fixed edges, returning per-bin
// probabilities (counts/total). Out-of-range values clamp to the first or
// last bin rather than being dropped - deliberate for PSI stability. An
// empty sample returns a zero vector of length n_bins rather than dividing
// by zero.
func NumericHistogram(edges []float64, samples []float64) []float64 {
	nBins := len(edges) - 1
	counts := make([]float64, nBins)
	if len(samples) == 0 {
		return counts
	}
	for _, x := range samples {
		counts[binIndex(edges, x)]++
	}
	total := float64(len(samples))
	probs := make([]float64, nBins)
	for i, c := range counts {
		probs[i] = c / total
	}
	return probs
}

func binIndex(edges []float64, x float64) int {
	nBins := len(edges) - 1
	if x < edges[0] {
		return 0
	}
	if x > edges[nBins] {
		return nBins - 1
	}
	for i := 0; i < nBins-1; i++ {
		if x >= edges[i] && x < edges[i+1] {
			return i
		}
	}
	return nBins - 1
}

// CategoricalFrequencies counts samples against a fixed category list,
// routing unrecognized values into the "__OTHER__" sentinel when present,
// or dropping them otherwise. Returns per-category probabilities aligned
// with categories; a zero vector if the sample is empty or every value
// was dropped.
func CategoricalFrequencies(categories []string, samples []string) []float64 {
	index := make(map[string]int, len(categories))
	otherIdx := -1
	for i, c := range categories {
		index[c] = i
		if c == OtherBucketSentinel {
			otherIdx = i
		}
	}
	counts := make([]float64, len(categories))
	total := 0.0
	for _, v := range samples {
		if i, ok := index[v]; ok {
			counts[i]++
			total++
		} else if otherIdx >= 0 {
			counts[otherIdx]++
			total++
		}
	}
	if total == 0 {
		return counts
	}
	probs := make([]float64, len(categories))
	for i, c := range counts {
		probs[i] = c / total
	}
	return probs
}

// OtherBucketSentinel is the category absorbing values outside the kept
// top-k when other_bucket is enabled.
const OtherBucketSentinel = "__OTHER__"

// ValidateEqualLength fails with InvalidInput when two probability vectors
// have mismatched lengths, per the PSI length-mismatch contract.
func ValidateEqualLength(a, b []float64) error {
	if len(a) != len(b) {
		return apperr.Newf(apperr.InvalidInput, "length mismatch: %d vs %d", len(a), len(b))
	}
	return nil
}
