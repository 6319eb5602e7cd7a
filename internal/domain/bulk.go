package domain

// Bulk mutation request states.
const (
	BulkStateReceived  = "RECEIVED"
	BulkStateValidated = "VALIDATED"
	BulkStateApplied   = "APPLIED"
	BulkStateRejected  = "REJECTED"
	BulkStatePartial   = "PARTIAL"
)

// PatchFieldWhitelist enumerates the record fields a bulk patch may touch.
var PatchFieldWhitelist = map[string]bool{
	"country":      true,
	"category":     true,
	"priority":     true,
	"processed":    true,
	"description":  true,
	"display_name": true,
}

// Priority bounds for patched records.
const (
	PatchPriorityMin = 50
	PatchPriorityMax = 999
)

// BulkPatch is a sparse field update applied to many stored records in a
// single request.
type BulkPatch struct {
	Identifiers []string               `json:"identifiers"`
	Patch       map[string]interface{} `json:"patch"`
}

// TargetResult is the per-identifier outcome of a bulk apply.
type TargetResult struct {
	Identifier string `json:"identifier"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// BulkResult aggregates a bulk mutation response. Success is true only when
// Failed is zero.
type BulkResult struct {
	Success bool           `json:"success"`
	State   string         `json:"state"`
	Updated int            `json:"updated"`
	Failed  int            `json:"failed"`
	Errors  []string       `json:"errors,omitempty"`
	Results []TargetResult `json:"results"`
}
