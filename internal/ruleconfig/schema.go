package ruleconfig

// Document schema for rule configurations. Unknown keys are rejected at
// every level (additionalProperties: false), so a misspelled field fails
// validation instead of being silently dropped. A serialized configuration
// carries its assigned fingerprint, so the top level accepts the field;
// Validate recomputes it regardless of what the document claims.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["metadata", "target", "scoring"],
  "properties": {
    "fingerprint": {"type": "string"},
    "metadata": {
      "type": "object",
      "additionalProperties": false,
      "required": ["name", "version"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "version": {"type": "string", "minLength": 1}
      }
    },
    "target": {
      "type": "object",
      "additionalProperties": false,
      "required": ["country"],
      "properties": {
        "country": {"type": "string", "minLength": 1},
        "industry": {"type": "string"}
      }
    },
    "scoring": {
      "type": "object",
      "additionalProperties": false,
      "required": ["weights", "thresholds"],
      "properties": {
        "weights": {
          "type": "object",
          "additionalProperties": false,
          "required": ["quality", "relevance", "geography", "engagement"],
          "properties": {
            "quality": {"type": "number", "minimum": 0},
            "relevance": {"type": "number", "minimum": 0},
            "geography": {"type": "number", "minimum": 0},
            "engagement": {"type": "number", "minimum": 0}
          }
        },
        "thresholds": {
          "type": "object",
          "additionalProperties": false,
          "required": ["high", "medium", "low"],
          "properties": {
            "high": {"type": "number", "minimum": 0, "maximum": 100},
            "medium": {"type": "number", "minimum": 0, "maximum": 100},
            "low": {"type": "number", "minimum": 0, "maximum": 100}
          }
        },
        "floor": {"type": "number", "minimum": 0, "maximum": 100}
      }
    },
    "company_keywords": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "primary": {"$ref": "#/$defs/termList"},
        "secondary": {"$ref": "#/$defs/termList"},
        "fuzzy": {"type": "boolean"}
      }
    },
    "geographic_rules": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "target_countries": {"type": "array", "items": {"type": "string", "minLength": 1}},
        "country_multipliers": {
          "type": "object",
          "additionalProperties": {"type": "number", "minimum": 0}
        },
        "region_multipliers": {
          "type": "object",
          "additionalProperties": {"type": "number", "minimum": 0}
        },
        "exclude_countries": {"type": "array", "items": {"type": "string", "minLength": 1}},
        "others_multiplier": {"type": "number", "minimum": 0}
      }
    },
    "email_quality": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "require_corporate_domain": {"type": "boolean"},
        "suspicious_patterns": {"type": "array", "items": {"type": "string", "minLength": 1}},
        "freemail_domains": {"type": "array", "items": {"type": "string", "minLength": 1}},
        "disposable_domains": {"type": "array", "items": {"type": "string", "minLength": 1}}
      }
    },
    "domain_rules": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name", "keywords", "multiplier"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "keywords": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
          "multiplier": {"type": "number", "exclusiveMinimum": 0}
        }
      }
    },
    "custom_rules": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name", "expression", "multiplier"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "expression": {"type": "string", "minLength": 1},
          "multiplier": {"type": "number", "exclusiveMinimum": 0}
        }
      }
    }
  },
  "$defs": {
    "termList": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["term", "weight"],
        "properties": {
          "term": {"type": "string", "minLength": 1},
          "weight": {"type": "number"}
        }
      }
    }
  }
}`
