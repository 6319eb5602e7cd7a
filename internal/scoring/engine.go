package scoring

import (
	"math"
	"strings"
	"sync"

	"github.com/openlead/kestrel/internal/domain"
	"github.com/openlead/kestrel/internal/features"
)

// Penalty multipliers for risky domain classes.
const (
	disposablePenalty = 0.4
	suspiciousPenalty = 0.6
)

// Classifier produces an anomaly report for a record. Satisfied by
// anomaly.Classifier.
type Classifier interface {
	Classify(record *domain.Record) *domain.AnomalyReport
}

// Engine scores records against validated rule configurations. Scoring is
// pure with respect to (record, configuration): the same pair always yields
// the same result, which makes results cacheable by fingerprint pair.
type Engine struct {
	classifier Classifier

	mu       sync.RWMutex
	programs map[string][]compiledCustomRule // keyed by config fingerprint
}

// NewEngine creates a scoring engine. The classifier may be nil, in which
// case no anomaly checks run.
func NewEngine(classifier Classifier) *Engine {
	return &Engine{
		classifier: classifier,
		programs:   make(map[string][]compiledCustomRule),
	}
}

// Score computes the composite score and priority tier for one record.
// Extraction failure yields an INVALID_RECORD result with score zero rather
// than an error, so a batch never aborts on a bad record.
func (e *Engine) Score(record *domain.Record, cfg *domain.RuleConfiguration) *domain.ScoreResult {
	result := &domain.ScoreResult{
		RecordID:          record.ID,
		Status:            domain.StatusScored,
		RecordFingerprint: record.Fingerprint(),
		ConfigFingerprint: cfg.Fingerprint,
	}

	fs, err := features.Extract(record, cfg)
	if err != nil {
		result.Status = domain.StatusInvalidRecord
		result.Tier = domain.TierExcluded
		result.Reason = err.Error()
		return result
	}
	result.Breakdown = *fs

	composite := weightedComposite(fs, cfg.Scoring.Weights)

	adjustments := e.adjustments(record, fs, cfg)
	for _, adj := range adjustments {
		composite *= adj.Multiplier
	}
	composite = clamp(composite, cfg.Scoring.Floor)

	result.Composite = round2(composite)
	result.Adjustments = adjustments
	result.Tier = tierFor(result.Composite, cfg.Scoring.Thresholds)

	if e.classifier != nil {
		report := e.classifier.Classify(record)
		result.AnomalySeverity = report.Severity
		for _, flag := range report.Flags {
			result.AnomalyFlags = append(result.AnomalyFlags, flag.Type)
		}
		if report.Critical() {
			result.Tier = domain.TierExcluded
			result.Reason = criticalReason(report)
		}
	}

	return result
}

// weightedComposite renormalizes the configured weights to sum to 1.0 and
// applies them to the dimension values.
func weightedComposite(fs *domain.FeatureSet, w domain.DimensionWeights) float64 {
	sum := w.Sum()
	if sum <= 0 {
		return 0
	}
	weighted := fs.Quality*w.Quality +
		fs.Relevance*w.Relevance +
		fs.Geography*w.Geography +
		fs.Engagement*w.Engagement
	return weighted / sum
}

// adjustments collects the multiplicative bonuses and penalties for a record
// in a fixed order: geography rule, domain bonus rules, negative keyword
// penalty, risky domain class penalty, custom rules.
func (e *Engine) adjustments(record *domain.Record, fs *domain.FeatureSet, cfg *domain.RuleConfiguration) []domain.Adjustment {
	var adjustments []domain.Adjustment

	if fs.GeoMultiplier != 1.0 {
		adjustments = append(adjustments, domain.Adjustment{
			Name:       "geography:" + fs.GeoRule,
			Multiplier: fs.GeoMultiplier,
		})
	}

	haystack := strings.ToLower(record.Domain + " " + record.Company)
	for _, rule := range cfg.DomainRules {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
				adjustments = append(adjustments, domain.Adjustment{
					Name:       "domain_rule:" + rule.Name,
					Multiplier: rule.Multiplier,
				})
				break
			}
		}
	}

	if adj, ok := negativeKeywordPenalty(fs.MatchedKeywords); ok {
		adjustments = append(adjustments, adj)
	}

	switch fs.DomainClass {
	case domain.DomainDisposable:
		adjustments = append(adjustments, domain.Adjustment{
			Name:       "risky_domain:disposable",
			Multiplier: disposablePenalty,
		})
	case domain.DomainSuspicious:
		adjustments = append(adjustments, domain.Adjustment{
			Name:       "risky_domain:suspicious",
			Multiplier: suspiciousPenalty,
		})
	}

	adjustments = append(adjustments, e.customAdjustments(record, fs, cfg)...)

	return adjustments
}

// negativeKeywordPenalty derives an excluded-category penalty from the
// strongest negative keyword match. A term of weight -30 yields a 0.7
// multiplier; the penalty never drops below 0.1.
func negativeKeywordPenalty(matches []domain.KeywordMatch) (domain.Adjustment, bool) {
	var worst *domain.KeywordMatch
	for i := range matches {
		if matches[i].Weight < 0 && (worst == nil || matches[i].Weight < worst.Weight) {
			worst = &matches[i]
		}
	}
	if worst == nil {
		return domain.Adjustment{}, false
	}
	multiplier := 1.0 + worst.Weight/100.0
	if multiplier < 0.1 {
		multiplier = 0.1
	}
	return domain.Adjustment{
		Name:       "negative_keyword:" + worst.Term,
		Multiplier: multiplier,
	}, true
}

// customAdjustments evaluates the configuration's custom CEL rules. Programs
// are compiled once per config fingerprint and reused. A rule that fails to
// evaluate is skipped; compile failures cannot occur here because validation
// already compiled every expression.
func (e *Engine) customAdjustments(record *domain.Record, fs *domain.FeatureSet, cfg *domain.RuleConfiguration) []domain.Adjustment {
	if len(cfg.CustomRules) == 0 {
		return nil
	}

	programs, err := e.programsFor(cfg)
	if err != nil {
		return nil
	}

	vars := activation(record, fs)
	var adjustments []domain.Adjustment
	for _, rule := range programs {
		out, _, err := rule.program.Eval(vars)
		if err != nil {
			continue
		}
		if fired(out) {
			adjustments = append(adjustments, domain.Adjustment{
				Name:       "custom_rule:" + rule.name,
				Multiplier: rule.multiplier,
			})
		}
	}
	return adjustments
}

func (e *Engine) programsFor(cfg *domain.RuleConfiguration) ([]compiledCustomRule, error) {
	e.mu.RLock()
	programs, ok := e.programs[cfg.Fingerprint]
	e.mu.RUnlock()
	if ok {
		return programs, nil
	}

	programs, err := compileCustomRules(cfg.CustomRules)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[cfg.Fingerprint] = programs
	e.mu.Unlock()
	return programs, nil
}

// tierFor assigns a tier by descending threshold comparison.
func tierFor(composite float64, t domain.TierThresholds) domain.Tier {
	switch {
	case composite >= t.High:
		return domain.TierHigh
	case composite >= t.Medium:
		return domain.TierMedium
	case composite >= t.Low:
		return domain.TierLow
	default:
		return domain.TierExcluded
	}
}

// clamp bounds the composite to [floor, 100]. The floor is never negative.
func clamp(composite, floor float64) float64 {
	if floor < 0 {
		floor = 0
	}
	if composite < floor {
		return floor
	}
	if composite > 100 {
		return 100
	}
	return composite
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func criticalReason(report *domain.AnomalyReport) string {
	for _, flag := range report.Flags {
		if flag.Severity >= domain.SeverityCritical {
			return "critical anomaly: " + flag.Reason
		}
	}
	return "critical anomaly"
}
