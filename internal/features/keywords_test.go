package features

import (
	"testing"

	"github.com/openlead/kestrel/internal/domain"
)

func kwConfig() domain.KeywordConfig {
	return domain.KeywordConfig{
		Primary: []domain.KeywordTerm{
			{Term: "hydraulic", Weight: 20},
			{Term: "hydraulic pump", Weight: 35},
			{Term: "valve", Weight: 15},
		},
		Secondary: []domain.KeywordTerm{
			{Term: "industrial", Weight: 10},
		},
	}
}

func TestLongestOverlapWins(t *testing.T) {
	record := &domain.Record{Company: "Bavaria Hydraulic Pump GmbH"}
	matches := matchKeywords(record, kwConfig())

	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d: %+v", len(matches), matches)
	}
	if matches[0].Term != "hydraulic pump" || matches[0].Weight != 35 {
		t.Errorf("expected hydraulic pump / 35, got %s / %v", matches[0].Term, matches[0].Weight)
	}
}

func TestNonOverlappingOccurrencesBothCount(t *testing.T) {
	record := &domain.Record{Company: "Hydraulic fittings and hydraulic hoses"}
	matches := matchKeywords(record, kwConfig())

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(matches), matches)
	}
	for _, m := range matches {
		if m.Term != "hydraulic" {
			t.Errorf("unexpected term %q", m.Term)
		}
	}
}

func TestDisjointTermsAllMatch(t *testing.T) {
	record := &domain.Record{Company: "Hydraulic pump and valve supply"}
	matches := matchKeywords(record, kwConfig())

	got := map[string]float64{}
	for _, m := range matches {
		got[m.Term] = m.Weight
	}
	if got["hydraulic pump"] != 35 || got["valve"] != 15 {
		t.Errorf("unexpected matches: %v", got)
	}
	if _, ok := got["hydraulic"]; ok {
		t.Error("hydraulic should be suppressed inside hydraulic pump")
	}
}

func TestSecondaryHalfWeight(t *testing.T) {
	record := &domain.Record{Company: "Industrial components"}
	matches := matchKeywords(record, kwConfig())

	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Tier != "secondary" || matches[0].Weight != 5 {
		t.Errorf("expected secondary at weight 5, got %s / %v", matches[0].Tier, matches[0].Weight)
	}
}

func TestMatchesAcrossFields(t *testing.T) {
	record := &domain.Record{
		Company:     "Acme GmbH",
		Category:    "hydraulic",
		Description: "valve distribution",
	}
	matches := matchKeywords(record, kwConfig())

	fields := map[string]string{}
	for _, m := range matches {
		fields[m.Term] = m.Field
	}
	if fields["hydraulic"] != "category" || fields["valve"] != "description" {
		t.Errorf("unexpected field attribution: %v", fields)
	}
}

func TestCaseInsensitiveMatching(t *testing.T) {
	record := &domain.Record{Company: "HYDRAULIC SYSTEMS"}
	matches := matchKeywords(record, kwConfig())
	if len(matches) != 1 || matches[0].Term != "hydraulic" {
		t.Errorf("expected a case-insensitive hydraulic match, got %+v", matches)
	}
}

func TestNegativeWeightsCarryThrough(t *testing.T) {
	kw := domain.KeywordConfig{
		Primary: []domain.KeywordTerm{{Term: "recruitment", Weight: -40}},
	}
	record := &domain.Record{Company: "Recruitment Partners"}
	matches := matchKeywords(record, kw)
	if len(matches) != 1 || matches[0].Weight != -40 {
		t.Errorf("expected one -40 match, got %+v", matches)
	}
}

func TestFuzzyMatching(t *testing.T) {
	kw := domain.KeywordConfig{
		Primary: []domain.KeywordTerm{{Term: "hydraulik", Weight: 20}},
		Fuzzy:   true,
	}

	t.Run("Enabled", func(t *testing.T) {
		// The characters of "hydraulik" appear in order but not verbatim.
		record := &domain.Record{Company: "Hydraulika Systems"}
		matches := matchKeywords(record, kw)
		if len(matches) != 1 {
			t.Fatalf("expected a fuzzy match, got %+v", matches)
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		strict := kw
		strict.Fuzzy = false
		record := &domain.Record{Company: "Hdyraulic Systems"}
		if matches := matchKeywords(record, strict); len(matches) != 0 {
			t.Errorf("expected no matches with fuzzy off, got %+v", matches)
		}
	})
}

func TestRelevanceScore(t *testing.T) {
	tests := []struct {
		name    string
		matches []domain.KeywordMatch
		want    float64
	}{
		{"NoMatches", nil, 50},
		{"SingleMatch", []domain.KeywordMatch{{Weight: 35}}, 85},
		{"ClampedHigh", []domain.KeywordMatch{{Weight: 35}, {Weight: 35}}, 100},
		{"ClampedLow", []domain.KeywordMatch{{Weight: -80}}, 0},
		{"MixedWeights", []domain.KeywordMatch{{Weight: 20}, {Weight: -30}}, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := relevanceScore(tt.matches); got != tt.want {
				t.Errorf("relevanceScore = %v, want %v", got, tt.want)
			}
		})
	}
}
