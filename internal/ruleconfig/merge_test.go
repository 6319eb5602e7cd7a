package ruleconfig

import (
	"errors"
	"testing"

	"github.com/openlead/kestrel/internal/domain"
)

func baseForMerge(t *testing.T) *domain.RuleConfiguration {
	t.Helper()
	cfg, err := Validate([]byte(validDoc))
	if err != nil {
		t.Fatalf("failed to validate base: %v", err)
	}
	return cfg
}

func TestMergeOverridesScalars(t *testing.T) {
	base := baseForMerge(t)

	override := `{
	  "metadata": {"version": "2.0.0"},
	  "scoring": {"thresholds": {"high": 85, "medium": 65, "low": 45}}
	}`

	merged, err := Merge(base, []byte(override))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Overridden values take effect.
	if merged.Metadata.Version != "2.0.0" {
		t.Errorf("expected version 2.0.0, got %q", merged.Metadata.Version)
	}
	if merged.Scoring.Thresholds.High != 85 {
		t.Errorf("expected high threshold 85, got %v", merged.Scoring.Thresholds.High)
	}

	// Untouched siblings survive: the name inside the same metadata object
	// and the weights inside the same scoring object.
	if merged.Metadata.Name != "de-pumps" {
		t.Errorf("expected name preserved, got %q", merged.Metadata.Name)
	}
	if merged.Scoring.Weights.Relevance != 40 {
		t.Errorf("expected weights preserved, got %v", merged.Scoring.Weights)
	}
	if merged.Scoring.Floor != 5 {
		t.Errorf("expected floor preserved, got %v", merged.Scoring.Floor)
	}
}

func TestMergeReplacesArrays(t *testing.T) {
	base := baseForMerge(t)

	override := `{
	  "company_keywords": {
	    "primary": [{"term": "pneumatic", "weight": 25}]
	  }
	}`

	merged, err := Merge(base, []byte(override))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(merged.CompanyKeywords.Primary) != 1 || merged.CompanyKeywords.Primary[0].Term != "pneumatic" {
		t.Errorf("arrays replace wholesale, got %+v", merged.CompanyKeywords.Primary)
	}
	// Secondary terms in the same object are untouched.
	if len(merged.CompanyKeywords.Secondary) != 1 {
		t.Errorf("expected secondary terms preserved, got %+v", merged.CompanyKeywords.Secondary)
	}
}

func TestMergeDoesNotMutateBase(t *testing.T) {
	base := baseForMerge(t)
	origVersion := base.Metadata.Version
	origHigh := base.Scoring.Thresholds.High

	if _, err := Merge(base, []byte(`{"metadata": {"version": "9"}, "scoring": {"thresholds": {"high": 99, "medium": 60, "low": 40}}}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if base.Metadata.Version != origVersion || base.Scoring.Thresholds.High != origHigh {
		t.Error("merge mutated the base configuration")
	}
}

func TestMergeAssignsFreshFingerprint(t *testing.T) {
	base := baseForMerge(t)

	merged, err := Merge(base, []byte(`{"metadata": {"version": "2.0.0"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged.Fingerprint == "" {
		t.Fatal("merged config needs a fingerprint")
	}
	if merged.Fingerprint == base.Fingerprint {
		t.Error("a changed document must fingerprint differently")
	}

	// An empty override yields the same content, hence the same fingerprint.
	same, err := Merge(base, []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if same.Fingerprint != base.Fingerprint {
		t.Error("an empty override must not change the fingerprint")
	}
}

func TestMergeRevalidates(t *testing.T) {
	base := baseForMerge(t)

	// The override is structurally fine but breaks threshold ordering.
	_, err := Merge(base, []byte(`{"scoring": {"thresholds": {"high": 10, "medium": 60, "low": 40}}}`))
	if err == nil {
		t.Fatal("expected the merged document to fail validation")
	}
	var schemaErr *domain.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %T", err)
	}
}

func TestMergeRejectsMalformedOverride(t *testing.T) {
	base := baseForMerge(t)
	if _, err := Merge(base, []byte(`{not json`)); err == nil {
		t.Fatal("expected an error for a malformed override")
	}

	// Unknown keys in the override fail the re-validation.
	if _, err := Merge(base, []byte(`{"surprise": true}`)); err == nil {
		t.Fatal("expected an error for an unknown override key")
	}
}
