package reasoningbank

import (
	"errors"
	"math"
	"testing"
)

func validRecord() MemoryRecord {
	return MemoryRecord{
		Title:       "t",
		Description: "d",
		Content:     "c",
		Category:    CategoryBuildFailure,
		Source:      SourceBuildFailure,
		Embedding:   []float32{1, 2, 3},
	}
}

func TestValidateRequiredFields(t *testing.T) {
	r := validRecord()
	r.Title = ""
	if err := r.Validate(3); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for missing title, got %v", err)
	}
}

func TestValidateUnknownCategoryAndSource(t *testing.T) {
	r := validRecord()
	r.Category = "not_a_category"
	if err := r.Validate(3); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for unknown category, got %v", err)
	}

	r = validRecord()
	r.Source = "not_a_source"
	if err := r.Validate(3); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for unknown source, got %v", err)
	}
}

func TestValidateEmbeddingLength(t *testing.T) {
	r := validRecord()
	if err := r.Validate(4); !errors.Is(err, ErrInvalidEmbedding) {
		t.Fatalf("expected ErrInvalidEmbedding for length mismatch, got %v", err)
	}
	if err := r.Validate(0); err != nil {
		t.Fatalf("dim<=0 should skip the length check, got %v", err)
	}
}

func TestValidateEmbeddingNonFinite(t *testing.T) {
	r := validRecord()
	r.Embedding = []float32{1, float32(math.NaN()), 3}
	if err := r.Validate(3); !errors.Is(err, ErrInvalidEmbedding) {
		t.Fatalf("expected ErrInvalidEmbedding for NaN component, got %v", err)
	}
}

func TestValidateCountInvariant(t *testing.T) {
	r := validRecord()
	r.TimesRetrieved = 1
	r.TimesUsedInSuccess = 1
	r.TimesUsedInFailure = 1
	if err := r.Validate(3); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord when success+failure exceeds retrieved, got %v", err)
	}
}

func TestRecomputeSuccessRateNilUntilOutcome(t *testing.T) {
	r := validRecord()
	r.RecomputeSuccessRate()
	if r.SuccessRate != nil {
		t.Fatalf("expected nil successRate before any outcome, got %v", *r.SuccessRate)
	}
	r.TimesUsedInSuccess = 3
	r.TimesUsedInFailure = 1
	r.RecomputeSuccessRate()
	if r.SuccessRate == nil || math.Abs(*r.SuccessRate-0.75) > 1e-9 {
		t.Fatalf("expected successRate 0.75, got %v", r.SuccessRate)
	}
}

func TestFiltersMatches(t *testing.T) {
	rate := 0.5
	f := Filters{MinSuccessRate: &rate, Categories: map[Category]bool{CategoryBuildFailure: true}}

	r := validRecord()
	r.SuccessRate = nil
	if !f.Matches(&r) {
		t.Fatalf("nil successRate should always pass MinSuccessRate filter")
	}

	low := 0.1
	r.SuccessRate = &low
	if f.Matches(&r) {
		t.Fatalf("successRate below threshold should be excluded")
	}

	high := 0.9
	r.SuccessRate = &high
	r.Category = CategoryErrorPattern
	if f.Matches(&r) {
		t.Fatalf("category not in whitelist should be excluded")
	}
	r.Category = CategoryBuildFailure
	if !f.Matches(&r) {
		t.Fatalf("expected record matching both filters to pass")
	}
}

func TestTaskMerge(t *testing.T) {
	base := Task{Description: "base", TemplateName: "tmpl", Parameters: map[string]any{"a": 1, "b": 2}}
	patch := Task{Description: "refined", Parameters: map[string]any{"b": 99, "c": 3}}
	merged := base.merge(patch)

	if merged.Description != "refined" {
		t.Fatalf("expected description override, got %q", merged.Description)
	}
	if merged.TemplateName != "tmpl" {
		t.Fatalf("expected template name untouched, got %q", merged.TemplateName)
	}
	if merged.Parameters["a"] != 1 || merged.Parameters["b"] != 99 || merged.Parameters["c"] != 3 {
		t.Fatalf("expected key-by-key parameter merge, got %v", merged.Parameters)
	}
}
