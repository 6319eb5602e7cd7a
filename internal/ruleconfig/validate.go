// Package ruleconfig parses and validates rule configuration documents.
package ruleconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/openlead/kestrel/internal/domain"
	"github.com/openlead/kestrel/internal/scoring"
)

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchema))
		if err != nil {
			schemaErr = fmt.Errorf("parse document schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("kestrel://ruleconfig.schema.json", doc); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = c.Compile("kestrel://ruleconfig.schema.json")
	})
	return schema, schemaErr
}

// Validate parses a raw configuration document into an immutable
// RuleConfiguration. Any violation (malformed JSON, unknown keys, values out
// of range, unordered thresholds, uncompilable patterns or expressions)
// fails with a *domain.SchemaError carrying the offending field path.
func Validate(raw []byte) (*domain.RuleConfiguration, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	var parsed interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &domain.SchemaError{Reason: "malformed JSON: " + err.Error()}
	}

	if err := sch.Validate(parsed); err != nil {
		return nil, toSchemaError(err)
	}

	// Strict decode into the typed model. The schema already rejects
	// unknown keys; DisallowUnknownFields guards against schema drift.
	var cfg domain.RuleConfiguration
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, &domain.SchemaError{Reason: err.Error()}
	}

	if err := validateSemantics(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	cfg.Fingerprint = cfg.ComputeFingerprint()
	return &cfg, nil
}

// validateSemantics covers constraints the JSON schema cannot express.
func validateSemantics(cfg *domain.RuleConfiguration) error {
	th := cfg.Scoring.Thresholds
	if !(th.High > th.Medium && th.Medium > th.Low) {
		return &domain.SchemaError{
			Path:   "scoring.thresholds",
			Reason: fmt.Sprintf("thresholds must be strictly ordered high > medium > low, got %v > %v > %v", th.High, th.Medium, th.Low),
		}
	}

	if cfg.Scoring.Weights.Sum() <= 0 {
		return &domain.SchemaError{
			Path:   "scoring.weights",
			Reason: "at least one dimension weight must be positive",
		}
	}

	for i, p := range cfg.EmailQuality.SuspiciousPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return &domain.SchemaError{
				Path:   fmt.Sprintf("email_quality.suspicious_patterns.%d", i),
				Reason: "invalid pattern: " + err.Error(),
			}
		}
	}

	for i, r := range cfg.CustomRules {
		if err := scoring.ValidateExpression(r.Expression); err != nil {
			return &domain.SchemaError{
				Path:   fmt.Sprintf("custom_rules.%d.expression", i),
				Reason: err.Error(),
			}
		}
	}

	return nil
}

func applyDefaults(cfg *domain.RuleConfiguration) {
	if cfg.GeographicRules.OthersMultiplier == 0 {
		cfg.GeographicRules.OthersMultiplier = 1.0
	}
}

// toSchemaError converts a jsonschema validation failure into the domain
// error, pointing at the deepest failing instance location.
func toSchemaError(err error) error {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return &domain.SchemaError{Reason: err.Error()}
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	return &domain.SchemaError{
		Path:   strings.Join(leaf.InstanceLocation, "."),
		Reason: leaf.Error(),
	}
}
