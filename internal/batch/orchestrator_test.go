package batch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openlead/kestrel/internal/cache"
	"github.com/openlead/kestrel/internal/domain"
)

// countingScorer assigns tiers by record priority and counts invocations.
type countingScorer struct {
	calls int64
}

func (s *countingScorer) Score(record *domain.Record, cfg *domain.RuleConfiguration) *domain.ScoreResult {
	atomic.AddInt64(&s.calls, 1)

	tier := domain.TierLow
	switch {
	case record.Priority >= 500:
		tier = domain.TierHigh
	case record.Priority >= 200:
		tier = domain.TierMedium
	case record.Priority < 0:
		tier = domain.TierExcluded
	}

	return &domain.ScoreResult{
		RecordID:          record.ID,
		Status:            domain.StatusScored,
		Tier:              tier,
		Composite:         float64(record.Priority),
		RecordFingerprint: record.Fingerprint(),
		ConfigFingerprint: cfg.Fingerprint,
	}
}

type staticGeo struct {
	country string
}

func (g *staticGeo) Country(ip string) (string, error) { return g.country, nil }

func testBatchConfig() *domain.RuleConfiguration {
	cfg := &domain.RuleConfiguration{
		Metadata: domain.ConfigMetadata{Name: "batch-test", Version: "1"},
		Scoring: domain.ScoringConfig{
			Weights:    domain.DimensionWeights{Quality: 1, Relevance: 1, Geography: 1, Engagement: 1},
			Thresholds: domain.TierThresholds{High: 80, Medium: 60, Low: 40},
		},
	}
	cfg.Fingerprint = cfg.ComputeFingerprint()
	return cfg
}

func batchRecords() []*domain.Record {
	return []*domain.Record{
		{ID: "a", Email: "a@x.de", Priority: 600},
		{ID: "b", Email: "b@x.de", Priority: 300},
		{ID: "c", Email: "c@x.de", Priority: 100},
		{ID: "d", Email: "d@x.de", Priority: -1},
	}
}

func TestScoreAllAggregates(t *testing.T) {
	scorer := &countingScorer{}
	o := NewOrchestrator(scorer, nil, nil, nil, domain.BatchConfig{MaxWorkers: 2}, time.Minute)

	report, err := o.ScoreAll(context.Background(), "tenant-a", batchRecords(), testBatchConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(report.Results))
	}

	// Results keep input order.
	for i, want := range []string{"a", "b", "c", "d"} {
		if report.Results[i].RecordID != want {
			t.Errorf("result %d is %s, want %s", i, report.Results[i].RecordID, want)
		}
	}

	total := 0
	for _, n := range report.TierCounts {
		total += n
	}
	if total != len(report.Results) {
		t.Errorf("tier counts sum to %d, want %d", total, len(report.Results))
	}
	if report.TierCounts[domain.TierHigh] != 1 ||
		report.TierCounts[domain.TierMedium] != 1 ||
		report.TierCounts[domain.TierLow] != 1 ||
		report.TierCounts[domain.TierExcluded] != 1 {
		t.Errorf("unexpected tier counts: %+v", report.TierCounts)
	}

	if report.ID == "" {
		t.Error("expected a report ID")
	}
	if report.ConfigFingerprint == "" {
		t.Error("expected the config fingerprint on the report")
	}
}

func TestScoreAllUsesCache(t *testing.T) {
	scorer := &countingScorer{}
	c := cache.NewLRUCache(64)
	o := NewOrchestrator(scorer, c, nil, nil, domain.BatchConfig{MaxWorkers: 2}, time.Minute)

	cfg := testBatchConfig()

	first, err := o.ScoreAll(context.Background(), "tenant-a", batchRecords(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.CacheHits != 0 || first.CacheMisses != 4 {
		t.Errorf("first run: hits %d misses %d, want 0/4", first.CacheHits, first.CacheMisses)
	}

	second, err := o.ScoreAll(context.Background(), "tenant-a", batchRecords(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.CacheHits != 4 || second.CacheMisses != 0 {
		t.Errorf("second run: hits %d misses %d, want 4/0", second.CacheHits, second.CacheMisses)
	}
	if got := atomic.LoadInt64(&scorer.calls); got != 4 {
		t.Errorf("scorer invoked %d times, want 4", got)
	}

	// Tier counts aggregate identically from cached results.
	if second.TierCounts[domain.TierHigh] != first.TierCounts[domain.TierHigh] {
		t.Errorf("cached run changed tier counts: %+v vs %+v", second.TierCounts, first.TierCounts)
	}
}

func TestScoreAllCacheKeyedByFullRecord(t *testing.T) {
	scorer := &countingScorer{}
	c := cache.NewLRUCache(64)
	o := NewOrchestrator(scorer, c, nil, nil, domain.BatchConfig{MaxWorkers: 2}, time.Minute)

	cfg := testBatchConfig()

	high := []*domain.Record{{ID: "a", Email: "a@x.de", Priority: 600}}
	if _, err := o.ScoreAll(context.Background(), "tenant-a", high, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same record except for priority: must not be served the cached
	// high-priority result.
	low := []*domain.Record{{ID: "a", Email: "a@x.de", Priority: 100}}
	report, err := o.ScoreAll(context.Background(), "tenant-a", low, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.CacheHits != 0 {
		t.Errorf("priority change reused a cache entry: %d hits", report.CacheHits)
	}
	if report.Results[0].Tier != domain.TierLow {
		t.Errorf("expected LOW tier for priority 100, got %s", report.Results[0].Tier)
	}
	if got := atomic.LoadInt64(&scorer.calls); got != 2 {
		t.Errorf("scorer invoked %d times, want 2", got)
	}
}

func TestScoreAllCacheKeyedByConfig(t *testing.T) {
	scorer := &countingScorer{}
	c := cache.NewLRUCache(64)
	o := NewOrchestrator(scorer, c, nil, nil, domain.BatchConfig{}, time.Minute)

	if _, err := o.ScoreAll(context.Background(), "tenant-a", batchRecords(), testBatchConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other := testBatchConfig()
	other.Metadata.Version = "2"
	other.Fingerprint = other.ComputeFingerprint()

	report, err := o.ScoreAll(context.Background(), "tenant-a", batchRecords(), other)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.CacheHits != 0 {
		t.Errorf("a changed config must not hit the old cache entries, got %d hits", report.CacheHits)
	}
}

func TestScoreAllCancellation(t *testing.T) {
	scorer := &countingScorer{}
	o := NewOrchestrator(scorer, nil, nil, nil, domain.BatchConfig{MaxWorkers: 1}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.ScoreAll(ctx, "tenant-a", batchRecords(), testBatchConfig()); err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
}

func TestGeoEnrichment(t *testing.T) {
	scorer := &countingScorer{}
	o := NewOrchestrator(scorer, nil, &staticGeo{country: "Germany"}, nil, domain.BatchConfig{}, time.Minute)

	records := []*domain.Record{
		{ID: "with-ip", Email: "a@x.de", IP: "81.169.0.1"},
		{ID: "has-country", Email: "b@x.de", IP: "81.169.0.1", Country: "Italy"},
		{ID: "no-ip", Email: "c@x.de"},
	}

	if _, err := o.ScoreAll(context.Background(), "tenant-a", records, testBatchConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if records[0].Country != "Germany" {
		t.Errorf("expected enrichment to fill the country, got %q", records[0].Country)
	}
	if records[1].Country != "Italy" {
		t.Errorf("an existing country must not be overwritten, got %q", records[1].Country)
	}
	if records[2].Country != "" {
		t.Errorf("no IP means no enrichment, got %q", records[2].Country)
	}
}

func TestScoreAllEmptyBatch(t *testing.T) {
	o := NewOrchestrator(&countingScorer{}, nil, nil, nil, domain.BatchConfig{}, time.Minute)

	report, err := o.ScoreAll(context.Background(), "tenant-a", nil, testBatchConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Results) != 0 {
		t.Errorf("expected no results, got %d", len(report.Results))
	}
	total := 0
	for _, n := range report.TierCounts {
		total += n
	}
	if total != 0 {
		t.Errorf("tier counts must be zero for an empty batch, got %+v", report.TierCounts)
	}
}
