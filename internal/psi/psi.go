// Copyright 2025 James Ross
// Package psi computes the Population Stability Index and the severity
// ladder derived from it.
package psi

import (
	"math"

	"github.com/driftguard/driftguard/internal/apperr"
)

const epsilon = 1e-6

type Severity string

const (
	OK    Severity = "OK"
	WARN  Severity = "WARN"
	ALERT Severity = "ALERT"
)

// Compute returns the Population Stability Index between equal-length
// ordered probability vectors expected (baseline) and actual (current),
// with epsilon-smoothing applied to both sides before the log-ratio term.
// A length mismatch fails with InvalidInput.
func Compute(expected, actual []float64) (float64, error) {
	if len(expected) != len(actual) {
		return 0, apperr.Newf(apperr.InvalidInput, "psi: length mismatch %d vs %d", len(expected), len(actual))
	}
	var sum float64
	for i := range expected {
		e := math.Max(expected[i], epsilon)
		a := math.Max(actual[i], epsilon)
		sum += (a - e) * math.Log(a/e)
	}
	return sum, nil
}

// ClassifySeverity maps a PSI value to the OK/WARN/ALERT ladder.
func ClassifySeverity(value float64) Severity {
	switch {
	case value < 0.10:
		return OK
	case value < 0.25:
		return WARN
	default:
		return ALERT
	}
}
