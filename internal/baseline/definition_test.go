// Copyright 2025 James Ross
package baseline

import (
	"encoding/json"
	"testing"

	"github.com/driftguard/driftguard/internal/apperr"
	"github.com/driftguard/driftguard/internal/events"
)

func sampleEvents(feature string, values []interface{}) []events.Event {
	out := make([]events.Event, len(values))
	for i, v := range values {
		out[i] = events.Event{Features: map[string]interface{}{feature: v}}
	}
	return out
}

func TestCaptureNumericPath(t *testing.T) {
	var values []interface{}
	for i := 0; i < 50; i++ {
		values = append(values, float64(i))
	}
	fb, err := Capture(CaptureInput{
		Key:     events.Key{ProjectID: "p", ModelID: "m", Endpoint: "e"},
		Feature: "x",
		Samples: sampleEvents("x", values),
		NBins:   10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if fb.FeatureType != Numeric {
		t.Fatalf("expected numeric classification, got %v", fb.FeatureType)
	}
	if len(fb.Definition.BinEdges) != 11 {
		t.Fatalf("expected 11 edges, got %d", len(fb.Definition.BinEdges))
	}
	if len(fb.BaselineProb) != 10 {
		t.Fatalf("expected 10 baseline probs, got %d", len(fb.BaselineProb))
	}
}

func TestCaptureNumericBelowFloorFails(t *testing.T) {
	var values []interface{}
	for i := 0; i < 10; i++ {
		values = append(values, float64(i))
	}
	_, err := Capture(CaptureInput{
		Key:     events.Key{ProjectID: "p", ModelID: "m", Endpoint: "e"},
		Feature: "x",
		Samples: sampleEvents("x", values),
		NBins:   10,
	})
	if !apperr.Is(err, apperr.NotEnoughData) {
		t.Fatalf("expected NotEnoughData, got %v", err)
	}
}

func TestCaptureCategoricalPath(t *testing.T) {
	var values []interface{}
	for i := 0; i < 30; i++ {
		values = append(values, "US")
	}
	for i := 0; i < 5; i++ {
		values = append(values, "CA")
	}
	fb, err := Capture(CaptureInput{
		Key:            events.Key{ProjectID: "p", ModelID: "m", Endpoint: "e"},
		Feature:        "country",
		Samples:        sampleEvents("country", values),
		NBins:          10,
		TopKCategories: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if fb.FeatureType != Categorical {
		t.Fatalf("expected categorical classification, got %v", fb.FeatureType)
	}
	if len(fb.Definition.Categories) != 2 || fb.Definition.Categories[1] != OtherBucketSentinel {
		t.Fatalf("expected top-1 + __OTHER__, got %v", fb.Definition.Categories)
	}
}

func TestDefinitionLegacyNumericForm(t *testing.T) {
	var d Definition
	if err := json.Unmarshal([]byte(`[0, 1, 2, 3]`), &d); err != nil {
		t.Fatal(err)
	}
	if d.Type != Numeric || len(d.BinEdges) != 4 {
		t.Fatalf("expected legacy array decoded as numeric edges, got %+v", d)
	}
}

func TestDefinitionTaggedRoundTrip(t *testing.T) {
	d := Definition{Type: Categorical, Categories: []string{"US", OtherBucketSentinel}, OtherBucket: true}
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	var got Definition
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != Categorical || len(got.Categories) != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
