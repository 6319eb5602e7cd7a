package domain

import (
	"time"
)

// Tier is the priority tier assigned to a scored record.
type Tier string

const (
	TierHigh     Tier = "HIGH"
	TierMedium   Tier = "MEDIUM"
	TierLow      Tier = "LOW"
	TierExcluded Tier = "EXCLUDED"
)

// Record scoring status values.
const (
	StatusScored        = "SCORED"
	StatusInvalidRecord = "INVALID_RECORD"
)

// DomainClass is the classification of a record's email domain.
type DomainClass string

const (
	DomainCorporate    DomainClass = "corporate"
	DomainFreemail     DomainClass = "freemail"
	DomainDisposable   DomainClass = "disposable"
	DomainSuspicious   DomainClass = "suspicious"
	DomainUnclassified DomainClass = "unclassified"
)

// FeatureSet holds the normalized signal values derived from one record
// under one configuration. All dimension values are in [0, 100].
type FeatureSet struct {
	Quality    float64 `json:"quality"`
	Relevance  float64 `json:"relevance"`
	Geography  float64 `json:"geography"`
	Engagement float64 `json:"engagement"`

	DomainClass   DomainClass `json:"domainClass"`
	Structural    float64     `json:"structural"`
	GeoMultiplier float64     `json:"geoMultiplier"`
	GeoRule       string      `json:"geoRule"`

	// MatchedKeywords lists the terms that contributed to the relevance
	// score, required for explainability.
	MatchedKeywords []KeywordMatch `json:"matchedKeywords,omitempty"`

	// QualityFlags lists suspicious-pattern names that matched.
	QualityFlags []string `json:"qualityFlags,omitempty"`
}

// KeywordMatch records a single keyword contribution.
type KeywordMatch struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
	Field  string  `json:"field"`
	Tier   string  `json:"tier"` // "primary" or "secondary"
}

// Adjustment is one bonus or penalty multiplier applied to the composite.
type Adjustment struct {
	Name       string  `json:"name"`
	Multiplier float64 `json:"multiplier"`
}

// ScoreResult is the deterministic output of scoring one record against one
// configuration.
type ScoreResult struct {
	RecordID string `json:"recordId"`
	Status   string `json:"status"` // SCORED or INVALID_RECORD
	Tier     Tier   `json:"tier"`

	Composite float64 `json:"composite"`

	// Breakdown holds the per-dimension values before weighting.
	Breakdown FeatureSet `json:"breakdown"`

	// Adjustments lists applied bonuses and penalties in order.
	Adjustments []Adjustment `json:"adjustments,omitempty"`

	// AnomalyFlags names the anomaly checks that fired.
	AnomalyFlags []string `json:"anomalyFlags,omitempty"`

	// AnomalySeverity is the highest severity among fired checks.
	AnomalySeverity Severity `json:"anomalySeverity"`

	// Reason carries the extraction error for INVALID_RECORD results.
	Reason string `json:"reason,omitempty"`

	RecordFingerprint string `json:"recordFingerprint,omitempty"`
	ConfigFingerprint string `json:"configFingerprint,omitempty"`
}

// BatchReport aggregates the results of scoring a batch of records.
type BatchReport struct {
	ID                string        `json:"id"`
	TenantID          string        `json:"tenantId"`
	ConfigFingerprint string        `json:"configFingerprint"`
	Results           []ScoreResult `json:"results"`

	// TierCounts always sum to len(Results).
	TierCounts map[Tier]int `json:"tierCounts"`

	CacheHits   int `json:"cacheHits"`
	CacheMisses int `json:"cacheMisses"`

	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}
