package mutate

import (
	"fmt"
	"path"
	"strings"

	"github.com/openlead/kestrel/internal/domain"
)

const maxIdentifierLen = 255

// allowedExtensions are the only identifier extensions accepted when one is
// present. Bare identifiers without an extension are fine.
var allowedExtensions = map[string]bool{
	".txt":  true,
	".lvp":  true,
	".csv":  true,
	".json": true,
}

// shellMetachars are rejected anywhere in an identifier. Identifiers end up
// in filenames and audit logs; none of these have a legitimate use there.
const shellMetachars = ";&|`$<>(){}[]!*?'\"\\\n\r\t "

// ValidateIdentifier enforces name safety on a record identifier. The same
// rules gate bulk mutation targets and record storage, so every stored
// record stays reachable by a bulk patch.
func ValidateIdentifier(id string) error {
	if err := validateIdentifier(id); err != nil {
		return err
	}
	return nil
}

// validateIdentifier enforces name safety on a single target identifier.
// Returns a field-qualified ValidationError naming the offending identifier.
func validateIdentifier(id string) *domain.ValidationError {
	if id == "" {
		return &domain.ValidationError{Field: "identifiers", Reason: "identifier must not be empty"}
	}
	if len(id) > maxIdentifierLen {
		return &domain.ValidationError{
			Field:  "identifiers",
			Reason: fmt.Sprintf("identifier %q exceeds %d characters", truncate(id), maxIdentifierLen),
		}
	}
	if strings.Contains(id, "..") {
		return &domain.ValidationError{
			Field:  "identifiers",
			Reason: fmt.Sprintf("identifier %q contains a path traversal sequence", id),
		}
	}
	if strings.ContainsAny(id, "/\\") {
		return &domain.ValidationError{
			Field:  "identifiers",
			Reason: fmt.Sprintf("identifier %q contains a path separator", id),
		}
	}
	if strings.ContainsAny(id, shellMetachars) {
		return &domain.ValidationError{
			Field:  "identifiers",
			Reason: fmt.Sprintf("identifier %q contains a forbidden character", id),
		}
	}
	if ext := path.Ext(id); ext != "" && !allowedExtensions[strings.ToLower(ext)] {
		return &domain.ValidationError{
			Field:  "identifiers",
			Reason: fmt.Sprintf("identifier %q has unsupported extension %q", id, ext),
		}
	}
	return nil
}

func truncate(s string) string {
	if len(s) <= 32 {
		return s
	}
	return s[:32] + "..."
}
