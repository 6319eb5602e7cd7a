// Package scoring computes composite scores and priority tiers for contact
// records from an extracted feature set and a validated rule configuration.
package scoring

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/openlead/kestrel/internal/domain"
)

var (
	envOnce sync.Once
	celEnv  *cel.Env
	envErr  error
)

// environment builds the shared CEL environment for custom rule expressions.
// Expressions see the record's scalar fields, its free-form attributes, and
// the four dimension scores computed before adjustments run.
func environment() (*cel.Env, error) {
	envOnce.Do(func() {
		celEnv, envErr = cel.NewEnv(
			cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("email", cel.StringType),
			cel.Variable("domain", cel.StringType),
			cel.Variable("company", cel.StringType),
			cel.Variable("country", cel.StringType),
			cel.Variable("category", cel.StringType),
			cel.Variable("priority", cel.IntType),
			cel.Variable("processed", cel.BoolType),
			cel.Variable("attrs", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("quality", cel.DoubleType),
			cel.Variable("relevance", cel.DoubleType),
			cel.Variable("geography", cel.DoubleType),
			cel.Variable("engagement", cel.DoubleType),
		)
		if envErr != nil {
			envErr = fmt.Errorf("failed to create CEL environment: %w", envErr)
		}
	})
	return celEnv, envErr
}

// ValidateExpression compiles an expression without loading it, so config
// validation can reject bad expressions before a document is accepted.
func ValidateExpression(expr string) error {
	if expr == "" {
		return fmt.Errorf("expression is required")
	}
	env, err := environment()
	if err != nil {
		return err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile error: %w", issues.Err())
	}
	switch ast.OutputType() {
	case cel.BoolType, cel.IntType, cel.DoubleType, cel.DynType:
		return nil
	default:
		return fmt.Errorf("expression must produce bool or numeric, got %s", ast.OutputType())
	}
}

type compiledCustomRule struct {
	name       string
	multiplier float64
	program    cel.Program
}

// compileCustomRules compiles the custom rules of a configuration. The engine
// caches the result per config fingerprint.
func compileCustomRules(rules []domain.CustomRule) ([]compiledCustomRule, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	env, err := environment()
	if err != nil {
		return nil, err
	}

	compiled := make([]compiledCustomRule, 0, len(rules))
	for _, rule := range rules {
		ast, issues := env.Compile(rule.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("custom rule %q: %w", rule.Name, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("custom rule %q: %w", rule.Name, err)
		}
		compiled = append(compiled, compiledCustomRule{
			name:       rule.Name,
			multiplier: rule.Multiplier,
			program:    prg,
		})
	}
	return compiled, nil
}

// activation builds the CEL variable bindings for one record.
func activation(record *domain.Record, fs *domain.FeatureSet) map[string]any {
	attrs := record.Attributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	return map[string]any{
		"record": map[string]any{
			"id":       record.ID,
			"email":    record.Email,
			"domain":   record.Domain,
			"company":  record.Company,
			"country":  record.Country,
			"category": record.Category,
		},
		"email":      record.Email,
		"domain":     record.Domain,
		"company":    record.Company,
		"country":    record.Country,
		"category":   record.Category,
		"priority":   int64(record.Priority),
		"processed":  record.Processed,
		"attrs":      attrs,
		"quality":    fs.Quality,
		"relevance":  fs.Relevance,
		"geography":  fs.Geography,
		"engagement": fs.Engagement,
	}
}

// fired reports whether a rule's output means the rule matched: a true bool
// or any non-zero number.
func fired(val ref.Val) bool {
	switch v := val.(type) {
	case types.Bool:
		return bool(v)
	case types.Int:
		return v != 0
	case types.Double:
		return v != 0
	case types.Uint:
		return v != 0
	default:
		return false
	}
}
