package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Record represents a single scoreable contact.
// Records are read-only inputs to scoring; the engine never mutates them.
type Record struct {
	// Identifier, usually an email address or an imported list entry name.
	ID string `json:"id"`

	TenantID string `json:"tenantId"`

	// Derived attributes
	Email       string `json:"email"`
	Domain      string `json:"domain"`
	Company     string `json:"company"`
	Country     string `json:"country"`
	IP          string `json:"ip,omitempty"`
	Category    string `json:"category,omitempty"`
	Priority    int    `json:"priority,omitempty"`
	Processed   bool   `json:"processed"`
	Description string `json:"description,omitempty"`
	DisplayName string `json:"displayName,omitempty"`

	// Free-form attributes (engagement signals, import metadata)
	Attributes map[string]interface{} `json:"attributes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LocalPart returns the local part of the record's email, or the whole
// identifier when no @ is present.
func (r *Record) LocalPart() string {
	at := strings.IndexByte(r.Email, '@')
	if at < 0 {
		return r.Email
	}
	return r.Email[:at]
}

// Fingerprint returns a stable hash of the record's normalized attributes.
// Used as a cache key component; insensitive to attribute map ordering and
// to casing of textual fields.
func (r *Record) Fingerprint() string {
	h := sha256.New()
	for _, s := range []string{
		strings.ToLower(r.ID),
		strings.ToLower(r.Email),
		strings.ToLower(r.Domain),
		strings.ToLower(r.Company),
		strings.ToLower(r.Country),
		strings.ToLower(r.Category),
		strings.ToLower(r.Description),
		strings.ToLower(r.DisplayName),
	} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}

	// Priority and processed state feed custom rules, so they are part of
	// the scoring identity too.
	fmt.Fprintf(h, "%d", r.Priority)
	h.Write([]byte{0})
	fmt.Fprintf(h, "%t", r.Processed)
	h.Write([]byte{0})

	keys := make([]string, 0, len(r.Attributes))
	for k := range r.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		writeAttr(h, r.Attributes[k])
	}

	return hex.EncodeToString(h.Sum(nil))
}

// RecordRequest is the API payload for scoring a record not yet stored.
type RecordRequest struct {
	ID          string                 `json:"id"`
	Email       string                 `json:"email"`
	Company     string                 `json:"company,omitempty"`
	Country     string                 `json:"country,omitempty"`
	IP          string                 `json:"ip,omitempty"`
	Description string                 `json:"description,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
}

// ToRecord converts a request to a Record domain object, deriving the
// domain attribute from the email when absent.
func (r *RecordRequest) ToRecord(tenantID string) *Record {
	now := time.Now().UTC()
	rec := &Record{
		ID:          r.ID,
		TenantID:    tenantID,
		Email:       r.Email,
		Company:     r.Company,
		Country:     r.Country,
		IP:          r.IP,
		Description: r.Description,
		Attributes:  r.Attributes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if rec.ID == "" {
		rec.ID = rec.Email
	}
	if at := strings.IndexByte(rec.Email, '@'); at >= 0 {
		rec.Domain = strings.ToLower(rec.Email[at+1:])
	}
	return rec
}

func writeAttr(h io.Writer, v interface{}) {
	switch x := v.(type) {
	case string:
		io.WriteString(h, strings.ToLower(x))
	default:
		fmt.Fprintf(h, "%v", v)
	}
	h.Write([]byte{0})
}
