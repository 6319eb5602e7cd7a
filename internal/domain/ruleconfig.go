package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// RuleConfiguration is a validated, immutable rule document. Construct one
// through ruleconfig.Validate; never mutate it after construction, so it can
// be shared freely across goroutines.
type RuleConfiguration struct {
	Metadata        ConfigMetadata  `json:"metadata"`
	Target          TargetConfig    `json:"target"`
	Scoring         ScoringConfig   `json:"scoring"`
	CompanyKeywords KeywordConfig   `json:"company_keywords"`
	GeographicRules GeoRules        `json:"geographic_rules"`
	EmailQuality    QualityRules    `json:"email_quality"`
	DomainRules     []BonusRule     `json:"domain_rules,omitempty"`
	CustomRules     []CustomRule    `json:"custom_rules,omitempty"`

	// Fingerprint is the content hash assigned at validation time.
	// It versions the configuration for caching and audit.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// ConfigMetadata identifies a configuration.
type ConfigMetadata struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// TargetConfig narrows the campaign to a market.
type TargetConfig struct {
	Country  string `json:"country"`
	Industry string `json:"industry"`
}

// ScoringConfig holds dimension weights and priority thresholds.
type ScoringConfig struct {
	Weights    DimensionWeights `json:"weights"`
	Thresholds TierThresholds   `json:"thresholds"`

	// Floor is the lowest composite a penalty can push a record to.
	// Zero means no floor beyond the natural non-negative clamp.
	Floor float64 `json:"floor,omitempty"`
}

// DimensionWeights are the per-dimension scoring weights. They need not sum
// to 1.0; the engine renormalizes at score time.
type DimensionWeights struct {
	Quality    float64 `json:"quality"`
	Relevance  float64 `json:"relevance"`
	Geography  float64 `json:"geography"`
	Engagement float64 `json:"engagement"`
}

// Sum returns the total weight mass.
func (w DimensionWeights) Sum() float64 {
	return w.Quality + w.Relevance + w.Geography + w.Engagement
}

// TierThresholds map a composite score to a priority tier.
// Must be strictly ordered: High > Medium > Low.
type TierThresholds struct {
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
	Low    float64 `json:"low"`
}

// KeywordConfig holds weighted company keyword terms.
// Positive weights reward a match, negative weights penalize it.
type KeywordConfig struct {
	Primary   []KeywordTerm `json:"primary,omitempty"`
	Secondary []KeywordTerm `json:"secondary,omitempty"`

	// Fuzzy enables approximate matching for terms that do not appear
	// verbatim (typos, spacing variants).
	Fuzzy bool `json:"fuzzy,omitempty"`
}

// KeywordTerm is a single weighted term.
type KeywordTerm struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// GeoRules configure geography multipliers. Resolution order is exact
// country, then region, then the others default.
type GeoRules struct {
	TargetCountries    []string           `json:"target_countries,omitempty"`
	CountryMultipliers map[string]float64 `json:"country_multipliers,omitempty"`
	RegionMultipliers  map[string]float64 `json:"region_multipliers,omitempty"`
	ExcludeCountries   []string           `json:"exclude_countries,omitempty"`
	OthersMultiplier   float64            `json:"others_multiplier"`
}

// QualityRules configure email-quality checks.
type QualityRules struct {
	RequireCorporateDomain bool     `json:"require_corporate_domain"`
	SuspiciousPatterns     []string `json:"suspicious_patterns,omitempty"`
	FreemailDomains        []string `json:"freemail_domains,omitempty"`
	DisposableDomains      []string `json:"disposable_domains,omitempty"`
}

// BonusRule is a named multiplicative adjustment triggered by keyword
// presence in the record's domain or company text.
type BonusRule struct {
	Name       string   `json:"name"`
	Keywords   []string `json:"keywords"`
	Multiplier float64  `json:"multiplier"`
}

// CustomRule is a named CEL expression evaluated against record attributes.
// A truthy result applies the multiplier to the composite score.
type CustomRule struct {
	Name       string  `json:"name"`
	Expression string  `json:"expression"`
	Multiplier float64 `json:"multiplier"`
}

// ComputeFingerprint hashes the canonical JSON form of the configuration,
// excluding any previously assigned fingerprint.
func (c *RuleConfiguration) ComputeFingerprint() string {
	clone := *c
	clone.Fingerprint = ""
	data, _ := json.Marshal(&clone)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StoredConfig wraps a configuration document for persistence.
type StoredConfig struct {
	Name        string `json:"name"`
	TenantID    string `json:"tenantId"`
	Version     string `json:"version"`
	Fingerprint string `json:"fingerprint"`
	Document    []byte `json:"document"`
	Enabled     bool   `json:"enabled"`
}
