package domain

// Severity orders anomaly flags from least to most severe.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the canonical severity label.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "NONE"
	}
}

// AnomalyFlag is a single fired anomaly check.
type AnomalyFlag struct {
	Type     string   `json:"type"` // e.g. "statistical_outlier", "pattern:spam_trap"
	Severity Severity `json:"severity"`
	Reason   string   `json:"reason"`
}

// AnomalyReport is the output of classifying one record. It carries the
// highest severity among the checks that fired, with every contributing
// reason listed.
type AnomalyReport struct {
	RecordID string        `json:"recordId"`
	Severity Severity      `json:"severity"`
	Flags    []AnomalyFlag `json:"flags,omitempty"`
}

// Critical reports whether the report carries a CRITICAL flag, which forces
// the record's priority to EXCLUDED regardless of its score.
func (r *AnomalyReport) Critical() bool {
	return r.Severity >= SeverityCritical
}
