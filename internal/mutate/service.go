// Package mutate applies validated bulk field patches to stored records.
// A request moves RECEIVED -> VALIDATED -> {APPLIED | REJECTED | PARTIAL}:
// validation failures reject the whole request before any store access, and
// the store rewrite is atomic as a whole.
package mutate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/openlead/kestrel/internal/domain"
)

// Service coordinates bulk mutations. Concurrent requests serialize around
// a single writer mutex so reads always see a consistent snapshot.
type Service struct {
	repo   domain.Repository
	logger *slog.Logger

	writeMu sync.Mutex
}

// NewService creates a bulk mutation service.
func NewService(repo domain.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Validate checks the whole request before anything touches the store. The
// first violation rejects the request with a field-qualified error.
func (s *Service) Validate(patch *domain.BulkPatch) error {
	if patch == nil || len(patch.Identifiers) == 0 {
		return &domain.ValidationError{Field: "identifiers", Reason: "identifier list must not be empty"}
	}
	if len(patch.Patch) == 0 {
		return &domain.ValidationError{Field: "patch", Reason: "patch must contain at least one field"}
	}

	for _, id := range patch.Identifiers {
		if err := validateIdentifier(id); err != nil {
			return err
		}
	}

	for field, value := range patch.Patch {
		if !domain.PatchFieldWhitelist[field] {
			return &domain.ValidationError{Field: field, Reason: "field is not patchable"}
		}
		if err := validateFieldValue(field, value); err != nil {
			return err
		}
	}

	return nil
}

// validateFieldValue type- and range-checks one whitelisted field. JSON
// decoding hands numbers over as float64.
func validateFieldValue(field string, value interface{}) error {
	switch field {
	case "country", "category":
		str, ok := value.(string)
		if !ok {
			return &domain.ValidationError{Field: field, Reason: "must be a string"}
		}
		if str == "" {
			return &domain.ValidationError{Field: field, Reason: "must not be empty"}
		}

	case "description", "display_name":
		if _, ok := value.(string); !ok {
			return &domain.ValidationError{Field: field, Reason: "must be a string"}
		}

	case "priority":
		n, ok := asInt(value)
		if !ok {
			return &domain.ValidationError{Field: field, Reason: "must be an integer"}
		}
		if n < domain.PatchPriorityMin || n > domain.PatchPriorityMax {
			return &domain.ValidationError{
				Field:  field,
				Reason: fmt.Sprintf("must be between %d and %d", domain.PatchPriorityMin, domain.PatchPriorityMax),
			}
		}

	case "processed":
		if _, ok := value.(bool); !ok {
			return &domain.ValidationError{Field: field, Reason: "must be a boolean"}
		}
	}
	return nil
}

// Apply validates the request, then applies the patch to every identifier in
// one store transaction. Missing identifiers are per-target failures; the
// store is written only when at least one target exists. A validation error
// means no store access happened at all.
func (s *Service) Apply(ctx context.Context, tenantID string, patch *domain.BulkPatch) (*domain.BulkResult, error) {
	if err := s.Validate(patch); err != nil {
		return nil, err
	}

	fields := normalizeFields(patch.Patch)

	s.writeMu.Lock()
	outcome, err := s.repo.ApplyBulkPatch(ctx, tenantID, patch.Identifiers, fields)
	s.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	updated := make(map[string]bool, len(outcome.Updated))
	for _, id := range outcome.Updated {
		updated[id] = true
	}

	result := &domain.BulkResult{
		Results: make([]domain.TargetResult, 0, len(patch.Identifiers)),
	}
	for _, id := range patch.Identifiers {
		if updated[id] {
			result.Updated++
			result.Results = append(result.Results, domain.TargetResult{Identifier: id, Success: true})
			continue
		}
		notFound := &domain.NotFoundError{ID: id}
		result.Failed++
		result.Errors = append(result.Errors, notFound.Error())
		result.Results = append(result.Results, domain.TargetResult{
			Identifier: id,
			Error:      notFound.Error(),
		})
	}

	result.Success = result.Failed == 0
	switch {
	case result.Failed == 0:
		result.State = domain.BulkStateApplied
	case result.Updated > 0:
		result.State = domain.BulkStatePartial
	default:
		result.State = domain.BulkStateRejected
	}

	s.logger.Info("bulk patch applied",
		"tenant_id", tenantID,
		"state", result.State,
		"updated", result.Updated,
		"failed", result.Failed,
	)

	if result.Updated == 0 {
		// Nothing matched: the transaction rolled back and no write is
		// observable. Surface a not-found-class error alongside the
		// per-target detail.
		return result, &domain.NotFoundError{ID: patch.Identifiers[0]}
	}

	return result, nil
}

// normalizeFields converts JSON-decoded values to their storage types,
// in particular float64 priorities to int.
func normalizeFields(patch map[string]interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(patch))
	for k, v := range patch {
		if k == "priority" {
			if n, ok := asInt(v); ok {
				fields[k] = n
				continue
			}
		}
		fields[k] = v
	}
	return fields
}

func asInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}
