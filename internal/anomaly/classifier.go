// Package anomaly flags records that look like traps, bots or statistical
// outliers. Every check is parameterized heuristics over the record itself;
// nothing here is trained or updated from data.
package anomaly

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/openlead/kestrel/internal/domain"
)

// PatternRule is one regex signature check with a fixed severity.
type PatternRule struct {
	Name     string
	Pattern  string
	Severity domain.Severity
}

// Config parameterizes the classifier. All fields have working defaults via
// DefaultConfig.
type Config struct {
	// Metric names the numeric record attribute the statistical and
	// neighbor checks inspect.
	Metric string

	// Reference population statistics for the z-score check. A record
	// whose metric deviates more than DeviationLimit standard deviations
	// from Mean is flagged.
	Mean           float64
	StdDev         float64
	DeviationLimit float64

	// Patterns are matched against the full email address.
	Patterns []PatternRule

	// Sample is a reference sample of metric values for the
	// neighbor-density check. A record with fewer than MinNeighbors
	// sample values within Radius of its own metric is flagged.
	Sample       []float64
	Radius       float64
	MinNeighbors int
}

// DefaultConfig returns the built-in heuristics: spam-trap addresses are
// always CRITICAL, role and bot addresses HIGH, throwaway-looking local
// parts MEDIUM.
func DefaultConfig() Config {
	return Config{
		Metric:         "interactions",
		Mean:           4,
		StdDev:         3,
		DeviationLimit: 3,
		Patterns: []PatternRule{
			{
				Name:     "spam_trap",
				Pattern:  `(?i)(spamtrap|spam-trap|spam\.trap|honeypot|^(abuse|uce|spam)@)`,
				Severity: domain.SeverityCritical,
			},
			{
				Name:     "bot_sender",
				Pattern:  `(?i)(^|[._-])(bot|crawler|spider|daemon)([._-]|@)`,
				Severity: domain.SeverityHigh,
			},
			{
				Name:     "throwaway_local",
				Pattern:  `(?i)^(test|demo|sample|asdf|qwerty|aaa+)[0-9]*@`,
				Severity: domain.SeverityMedium,
			},
		},
		Radius:       2,
		MinNeighbors: 1,
	}
}

// Classifier runs the configured anomaly checks. Safe for concurrent use
// once constructed.
type Classifier struct {
	cfg      Config
	compiled []compiledPattern
}

type compiledPattern struct {
	name     string
	severity domain.Severity
	re       *regexp.Regexp
}

// New compiles the configured pattern rules. An invalid pattern is a
// construction error, not a per-record one.
func New(cfg Config) (*Classifier, error) {
	compiled := make([]compiledPattern, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("anomaly pattern %q: %w", p.Name, err)
		}
		compiled = append(compiled, compiledPattern{name: p.Name, severity: p.Severity, re: re})
	}
	return &Classifier{cfg: cfg, compiled: compiled}, nil
}

// Classify runs every check against the record and returns a report carrying
// the maximum severity with all contributing reasons. The report is never
// nil; a clean record yields severity NONE and no flags.
func (c *Classifier) Classify(record *domain.Record) *domain.AnomalyReport {
	report := &domain.AnomalyReport{RecordID: record.ID}

	email := strings.ToLower(strings.TrimSpace(record.Email))
	for _, p := range c.compiled {
		if p.re.MatchString(email) {
			addFlag(report, domain.AnomalyFlag{
				Type:     "pattern:" + p.name,
				Severity: p.severity,
				Reason:   fmt.Sprintf("email matches %s signature", p.name),
			})
		}
	}

	if metric, ok := metricValue(record, c.cfg.Metric); ok {
		c.checkDeviation(report, metric)
		c.checkNeighborDensity(report, metric)
	}

	return report
}

// checkDeviation flags metric values more than DeviationLimit standard
// deviations from the reference mean. Twice the limit escalates to HIGH.
func (c *Classifier) checkDeviation(report *domain.AnomalyReport, metric float64) {
	if c.cfg.StdDev <= 0 || c.cfg.DeviationLimit <= 0 {
		return
	}
	z := math.Abs(metric-c.cfg.Mean) / c.cfg.StdDev
	if z <= c.cfg.DeviationLimit {
		return
	}
	severity := domain.SeverityMedium
	if z > 2*c.cfg.DeviationLimit {
		severity = domain.SeverityHigh
	}
	addFlag(report, domain.AnomalyFlag{
		Type:     "statistical_outlier",
		Severity: severity,
		Reason:   fmt.Sprintf("metric %.2f deviates %.1f stddevs from reference mean %.2f", metric, z, c.cfg.Mean),
	})
}

// checkNeighborDensity flags metric values with too few reference-sample
// neighbors within the configured radius.
func (c *Classifier) checkNeighborDensity(report *domain.AnomalyReport, metric float64) {
	if len(c.cfg.Sample) == 0 || c.cfg.Radius <= 0 || c.cfg.MinNeighbors <= 0 {
		return
	}
	neighbors := 0
	for _, v := range c.cfg.Sample {
		if math.Abs(v-metric) <= c.cfg.Radius {
			neighbors++
		}
	}
	if neighbors >= c.cfg.MinNeighbors {
		return
	}
	addFlag(report, domain.AnomalyFlag{
		Type:     "low_neighbor_density",
		Severity: domain.SeverityMedium,
		Reason:   fmt.Sprintf("metric %.2f has %d reference neighbors within %.1f, need %d", metric, neighbors, c.cfg.Radius, c.cfg.MinNeighbors),
	})
}

func addFlag(report *domain.AnomalyReport, flag domain.AnomalyFlag) {
	report.Flags = append(report.Flags, flag)
	if flag.Severity > report.Severity {
		report.Severity = flag.Severity
	}
}

func metricValue(record *domain.Record, key string) (float64, bool) {
	if record.Attributes == nil || key == "" {
		return 0, false
	}
	switch v := record.Attributes[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
