package scoring

import (
	"reflect"
	"strings"
	"testing"

	"github.com/openlead/kestrel/internal/anomaly"
	"github.com/openlead/kestrel/internal/domain"
)

func baseConfig() *domain.RuleConfiguration {
	cfg := &domain.RuleConfiguration{
		Metadata: domain.ConfigMetadata{Name: "test", Version: "1.0.0"},
		Target:   domain.TargetConfig{Country: "Germany"},
		Scoring: domain.ScoringConfig{
			Weights:    domain.DimensionWeights{Quality: 30, Relevance: 40, Geography: 20, Engagement: 10},
			Thresholds: domain.TierThresholds{High: 80, Medium: 60, Low: 40},
		},
		CompanyKeywords: domain.KeywordConfig{
			Primary: []domain.KeywordTerm{
				{Term: "hydraulic", Weight: 20},
				{Term: "hydraulic pump", Weight: 35},
			},
		},
		GeographicRules: domain.GeoRules{
			TargetCountries:  []string{"Germany"},
			OthersMultiplier: 1.0,
		},
	}
	cfg.Fingerprint = cfg.ComputeFingerprint()
	return cfg
}

func goodRecord() *domain.Record {
	return &domain.Record{
		ID:      "rec-1",
		Email:   "k.mueller@rheinpumpen.de",
		Domain:  "rheinpumpen.de",
		Company: "Rhein Hydraulic Pump GmbH",
		Country: "Germany",
	}
}

func TestScoreDeterminism(t *testing.T) {
	engine := NewEngine(nil)
	cfg := baseConfig()

	first := engine.Score(goodRecord(), cfg)
	second := engine.Score(goodRecord(), cfg)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("scoring the same pair twice produced different results:\n%+v\n%+v", first, second)
	}
	if first.Status != domain.StatusScored {
		t.Fatalf("expected SCORED, got %s", first.Status)
	}
	if first.Composite < 0 || first.Composite > 100 {
		t.Errorf("composite out of range: %v", first.Composite)
	}
}

func TestWeightRenormalization(t *testing.T) {
	engine := NewEngine(nil)

	small := baseConfig()
	small.Scoring.Weights = domain.DimensionWeights{Quality: 1, Relevance: 1, Geography: 1, Engagement: 1}
	small.Fingerprint = small.ComputeFingerprint()

	large := baseConfig()
	large.Scoring.Weights = domain.DimensionWeights{Quality: 25, Relevance: 25, Geography: 25, Engagement: 25}
	large.Fingerprint = large.ComputeFingerprint()

	a := engine.Score(goodRecord(), small)
	b := engine.Score(goodRecord(), large)
	if a.Composite != b.Composite {
		t.Errorf("proportionally equal weights should score identically: %v vs %v", a.Composite, b.Composite)
	}
}

func TestKeywordWeightMonotonicity(t *testing.T) {
	engine := NewEngine(nil)

	low := baseConfig()
	low.CompanyKeywords.Primary = []domain.KeywordTerm{{Term: "hydraulic pump", Weight: 10}}
	low.Fingerprint = low.ComputeFingerprint()

	high := baseConfig()
	high.CompanyKeywords.Primary = []domain.KeywordTerm{{Term: "hydraulic pump", Weight: 40}}
	high.Fingerprint = high.ComputeFingerprint()

	a := engine.Score(goodRecord(), low)
	b := engine.Score(goodRecord(), high)
	if b.Composite <= a.Composite {
		t.Errorf("raising a matched keyword's weight should raise the score: %v -> %v", a.Composite, b.Composite)
	}
}

func TestScoreInvalidRecord(t *testing.T) {
	engine := NewEngine(nil)
	result := engine.Score(&domain.Record{ID: "bad", Email: "no-at-sign"}, baseConfig())

	if result.Status != domain.StatusInvalidRecord {
		t.Errorf("expected INVALID_RECORD, got %s", result.Status)
	}
	if result.Tier != domain.TierExcluded {
		t.Errorf("expected EXCLUDED, got %s", result.Tier)
	}
	if result.Composite != 0 {
		t.Errorf("expected score 0, got %v", result.Composite)
	}
	if result.Reason == "" {
		t.Error("expected a reason for the invalid record")
	}
}

func TestTierAssignment(t *testing.T) {
	thresholds := domain.TierThresholds{High: 80, Medium: 60, Low: 40}

	tests := []struct {
		composite float64
		want      domain.Tier
	}{
		{95, domain.TierHigh},
		{80, domain.TierHigh}, // boundary is inclusive
		{79.99, domain.TierMedium},
		{60, domain.TierMedium},
		{40, domain.TierLow},
		{39.99, domain.TierExcluded},
		{0, domain.TierExcluded},
	}

	for _, tt := range tests {
		if got := tierFor(tt.composite, thresholds); got != tt.want {
			t.Errorf("tierFor(%v) = %s, want %s", tt.composite, got, tt.want)
		}
	}
}

func TestClampFloor(t *testing.T) {
	if got := clamp(3, 20); got != 20 {
		t.Errorf("expected floor 20, got %v", got)
	}
	if got := clamp(150, 0); got != 100 {
		t.Errorf("expected ceiling 100, got %v", got)
	}
	if got := clamp(55, 20); got != 55 {
		t.Errorf("expected passthrough 55, got %v", got)
	}
}

func TestDomainRuleBonus(t *testing.T) {
	engine := NewEngine(nil)

	cfg := baseConfig()
	cfg.DomainRules = []domain.BonusRule{
		{Name: "oem_supplier", Keywords: []string{"oem", "pumpen"}, Multiplier: 1.15},
	}
	cfg.Fingerprint = cfg.ComputeFingerprint()

	result := engine.Score(goodRecord(), cfg)

	found := false
	for _, adj := range result.Adjustments {
		if adj.Name == "domain_rule:oem_supplier" {
			found = true
			if adj.Multiplier != 1.15 {
				t.Errorf("expected multiplier 1.15, got %v", adj.Multiplier)
			}
		}
	}
	if !found {
		t.Errorf("expected domain_rule adjustment, got %+v", result.Adjustments)
	}
}

func TestNegativeKeywordPenalty(t *testing.T) {
	t.Run("WorstMatchWins", func(t *testing.T) {
		adj, ok := negativeKeywordPenalty([]domain.KeywordMatch{
			{Term: "staffing", Weight: -20},
			{Term: "recruitment", Weight: -50},
			{Term: "hydraulic", Weight: 30},
		})
		if !ok {
			t.Fatal("expected a penalty")
		}
		if adj.Name != "negative_keyword:recruitment" {
			t.Errorf("expected the strongest negative term, got %s", adj.Name)
		}
		if adj.Multiplier != 0.5 {
			t.Errorf("expected multiplier 0.5, got %v", adj.Multiplier)
		}
	})

	t.Run("FloorAtTenth", func(t *testing.T) {
		adj, _ := negativeKeywordPenalty([]domain.KeywordMatch{{Term: "casino", Weight: -200}})
		if adj.Multiplier != 0.1 {
			t.Errorf("expected penalty floor 0.1, got %v", adj.Multiplier)
		}
	})

	t.Run("NoNegatives", func(t *testing.T) {
		if _, ok := negativeKeywordPenalty([]domain.KeywordMatch{{Term: "pump", Weight: 10}}); ok {
			t.Error("expected no penalty for positive matches")
		}
	})
}

func TestRiskyDomainPenalty(t *testing.T) {
	engine := NewEngine(nil)
	cfg := baseConfig()

	record := goodRecord()
	record.Email = "x@mailinator.com"
	record.Domain = "mailinator.com"

	result := engine.Score(record, cfg)

	found := false
	for _, adj := range result.Adjustments {
		if adj.Name == "risky_domain:disposable" && adj.Multiplier == disposablePenalty {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a disposable domain penalty, got %+v", result.Adjustments)
	}
}

func TestCustomRules(t *testing.T) {
	engine := NewEngine(nil)

	cfg := baseConfig()
	cfg.CustomRules = []domain.CustomRule{
		{Name: "priority_boost", Expression: `priority >= 500`, Multiplier: 1.2},
		{Name: "never_fires", Expression: `country == "Narnia"`, Multiplier: 2.0},
	}
	cfg.Fingerprint = cfg.ComputeFingerprint()

	record := goodRecord()
	record.Priority = 700

	result := engine.Score(record, cfg)

	var names []string
	for _, adj := range result.Adjustments {
		if strings.HasPrefix(adj.Name, "custom_rule:") {
			names = append(names, adj.Name)
		}
	}
	if len(names) != 1 || names[0] != "custom_rule:priority_boost" {
		t.Errorf("expected only priority_boost to fire, got %v", names)
	}
}

func TestValidateExpression(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"BoolExpr", `quality > 50.0`, false},
		{"AttrAccess", `attrs.size_of("employees") >= 0`, true}, // no such method
		{"MapAccess", `record["email"] != ""`, false},
		{"SyntaxError", `country ==`, true},
		{"UnknownVariable", `nonexistent > 1`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExpression(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateExpression(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestCriticalAnomalyForcesExclusion(t *testing.T) {
	classifier, err := anomaly.New(anomaly.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to build classifier: %v", err)
	}
	engine := NewEngine(classifier)
	cfg := baseConfig()

	record := goodRecord()
	record.Email = "spamtrap@rheinpumpen.de"

	result := engine.Score(record, cfg)

	if result.Tier != domain.TierExcluded {
		t.Errorf("expected EXCLUDED regardless of score, got %s (composite %v)", result.Tier, result.Composite)
	}
	if result.AnomalySeverity != domain.SeverityCritical {
		t.Errorf("expected CRITICAL severity, got %s", result.AnomalySeverity)
	}
	if len(result.AnomalyFlags) == 0 {
		t.Error("expected anomaly flags on the result")
	}
	// The composite itself is left intact for explainability.
	if result.Composite <= 0 {
		t.Errorf("composite should still be computed, got %v", result.Composite)
	}
}

func TestNonCriticalAnomalyKeepsTier(t *testing.T) {
	classifier, err := anomaly.New(anomaly.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to build classifier: %v", err)
	}
	engine := NewEngine(classifier)
	cfg := baseConfig()

	record := goodRecord()
	record.Email = "test42@rheinpumpen.de" // throwaway_local, MEDIUM

	result := engine.Score(record, cfg)

	if result.Tier == domain.TierExcluded {
		t.Errorf("a MEDIUM anomaly must not force exclusion, got %s", result.Tier)
	}
	if result.AnomalySeverity != domain.SeverityMedium {
		t.Errorf("expected MEDIUM severity, got %s", result.AnomalySeverity)
	}
}

func TestScoreFloorApplied(t *testing.T) {
	engine := NewEngine(nil)

	cfg := baseConfig()
	cfg.Scoring.Floor = 15
	cfg.CompanyKeywords.Primary = []domain.KeywordTerm{{Term: "casino", Weight: -200}}
	cfg.Fingerprint = cfg.ComputeFingerprint()

	record := goodRecord()
	record.Email = "x@mailinator.com"
	record.Domain = "mailinator.com"
	record.Company = "Casino Marketing"
	record.Country = "Brazil"

	result := engine.Score(record, cfg)
	if result.Composite < 15 {
		t.Errorf("composite %v fell below the configured floor", result.Composite)
	}
}
