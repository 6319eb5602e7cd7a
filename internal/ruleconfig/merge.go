package ruleconfig

import (
	"encoding/json"

	"github.com/openlead/kestrel/internal/domain"
)

// Merge deep-merges a sparse override document onto a base configuration and
// returns a new validated value. Scalars and arrays in the override replace
// the base's; nested objects merge key by key. The base is never mutated.
// Used for template application: a shared base config plus a campaign
// override.
func Merge(base *domain.RuleConfiguration, override []byte) (*domain.RuleConfiguration, error) {
	baseDoc, err := toMap(base)
	if err != nil {
		return nil, err
	}

	var overrideDoc map[string]interface{}
	if err := json.Unmarshal(override, &overrideDoc); err != nil {
		return nil, &domain.SchemaError{Reason: "malformed override document: " + err.Error()}
	}

	merged := mergeMaps(baseDoc, overrideDoc)
	delete(merged, "fingerprint")

	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}

	// Re-validate so the merged result carries a fresh fingerprint and the
	// same guarantees as a directly parsed document.
	return Validate(raw)
}

func toMap(cfg *domain.RuleConfiguration) (map[string]interface{}, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// mergeMaps returns a new map; neither argument is modified.
func mergeMaps(base, override map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if bv, ok := out[k].(map[string]interface{}); ok {
			if ov, ok := v.(map[string]interface{}); ok {
				out[k] = mergeMaps(bv, ov)
				continue
			}
		}
		out[k] = v
	}
	return out
}
