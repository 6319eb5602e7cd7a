// Package batch runs scoring over record collections: a semaphore-bounded
// worker pool with fingerprint memoization, plus the debouncer that coalesces
// recompute triggers.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openlead/kestrel/internal/domain"
)

// Scorer scores one record against one configuration. Satisfied by
// scoring.Engine.
type Scorer interface {
	Score(record *domain.Record, cfg *domain.RuleConfiguration) *domain.ScoreResult
}

// GeoResolver resolves an IP address to a country name. Satisfied by
// geo.Resolver; nil disables enrichment.
type GeoResolver interface {
	Country(ip string) (string, error)
}

// Orchestrator scores batches of records with bounded parallelism and a
// fingerprint-keyed result cache.
type Orchestrator struct {
	scorer     Scorer
	cache      domain.Cache
	geo        GeoResolver
	logger     *slog.Logger
	maxWorkers int
	scoreTTL   time.Duration
}

// NewOrchestrator creates a batch orchestrator. The cache and geo resolver
// may be nil; logger may be nil for a no-op logger.
func NewOrchestrator(scorer Scorer, cache domain.Cache, geo GeoResolver, logger *slog.Logger, cfg domain.BatchConfig, scoreTTL time.Duration) *Orchestrator {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 16
	}
	if scoreTTL <= 0 {
		scoreTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		scorer:     scorer,
		cache:      cache,
		geo:        geo,
		logger:     logger,
		maxWorkers: maxWorkers,
		scoreTTL:   scoreTTL,
	}
}

// ScoreAll scores every record in the batch. Records are independent, so
// scoring runs in parallel under a semaphore. Cached results keyed by
// (config fingerprint, record fingerprint) are reused; tier counts and cache
// hit statistics are aggregated in the same pass. Per-record failures become
// INVALID_RECORD results; the batch itself only fails on context
// cancellation.
func (o *Orchestrator) ScoreAll(ctx context.Context, tenantID string, records []*domain.Record, cfg *domain.RuleConfiguration) (*domain.BatchReport, error) {
	startedAt := time.Now()

	report := &domain.BatchReport{
		ID:                uuid.New().String(),
		TenantID:          tenantID,
		ConfigFingerprint: cfg.Fingerprint,
		Results:           make([]domain.ScoreResult, len(records)),
		TierCounts: map[domain.Tier]int{
			domain.TierHigh:     0,
			domain.TierMedium:   0,
			domain.TierLow:      0,
			domain.TierExcluded: 0,
		},
		StartedAt: startedAt,
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	sem := make(chan struct{}, o.maxWorkers)

	for i, record := range records {
		wg.Add(1)
		go func(idx int, rec *domain.Record) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			if ctx.Err() != nil {
				return
			}

			result, hit := o.scoreOne(ctx, tenantID, rec, cfg)

			mu.Lock()
			report.Results[idx] = *result
			report.TierCounts[result.Tier]++
			if hit {
				report.CacheHits++
			} else {
				report.CacheMisses++
			}
			mu.Unlock()
		}(i, record)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.Duration = time.Since(startedAt)

	o.logger.Info("batch scored",
		"batch_id", report.ID,
		"tenant_id", tenantID,
		"records", len(records),
		"cache_hits", report.CacheHits,
		"duration_ms", report.Duration.Milliseconds(),
	)

	return report, nil
}

// scoreOne returns the result for one record and whether it came from cache.
func (o *Orchestrator) scoreOne(ctx context.Context, tenantID string, record *domain.Record, cfg *domain.RuleConfiguration) (*domain.ScoreResult, bool) {
	o.enrich(record)

	key := domain.ScoreCacheKey(cfg.Fingerprint, record.Fingerprint())
	if o.cache != nil {
		cached, err := o.cache.GetScore(ctx, tenantID, key)
		if err != nil {
			o.logger.Warn("score cache read failed", "error", err)
		}
		if cached != nil {
			return cached, true
		}
	}

	result := o.scorer.Score(record, cfg)

	if o.cache != nil {
		if err := o.cache.SetScore(ctx, tenantID, key, result, o.scoreTTL); err != nil {
			o.logger.Warn("score cache write failed", "error", err)
		}
	}

	return result, false
}

// enrich fills a missing country from the record's IP address. Enrichment
// happens before fingerprinting-by-key so the cached result reflects the
// enriched record.
func (o *Orchestrator) enrich(record *domain.Record) {
	if o.geo == nil || record.Country != "" || record.IP == "" {
		return
	}
	country, err := o.geo.Country(record.IP)
	if err != nil {
		o.logger.Debug("geoip lookup failed", "ip", record.IP, "error", err)
		return
	}
	record.Country = country
}
