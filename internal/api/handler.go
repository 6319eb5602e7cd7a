package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openlead/kestrel/internal/batch"
	"github.com/openlead/kestrel/internal/domain"
	"github.com/openlead/kestrel/internal/mutate"
	"github.com/openlead/kestrel/internal/ruleconfig"
	"github.com/openlead/kestrel/internal/scoring"
)

// Handler holds the API endpoint implementations and their dependencies.
type Handler struct {
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	engine       *scoring.Engine
	orchestrator *batch.Orchestrator
	mutator      *mutate.Service
	version      string
	maxBodyBytes int64
}

// NewHandler creates an API handler.
func NewHandler(
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	engine *scoring.Engine,
	orchestrator *batch.Orchestrator,
	mutator *mutate.Service,
	version string,
	maxBodyBytes int64,
) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &Handler{
		repo:         repo,
		cache:        cache,
		bus:          bus,
		engine:       engine,
		orchestrator: orchestrator,
		mutator:      mutator,
		version:      version,
		maxBodyBytes: maxBodyBytes,
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// Ready handles GET /ready. Checks downstream dependencies.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true

	if err := h.repo.Ping(ctx); err != nil {
		checks["repository"] = err.Error()
		ready = false
	} else {
		checks["repository"] = "ok"
	}

	if err := h.cache.Ping(ctx); err != nil {
		checks["cache"] = err.Error()
		ready = false
	} else {
		checks["cache"] = "ok"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"ready":  ready,
		"checks": checks,
	})
}

// scoreRequest is the payload for POST /score.
type scoreRequest struct {
	// Config names a stored rule configuration.
	Config string `json:"config"`

	// ConfigDocument is an inline rule configuration, used when Config is
	// empty. Validated before use like any stored document.
	ConfigDocument json.RawMessage `json:"configDocument,omitempty"`

	Record domain.RecordRequest `json:"record"`
}

// ScoreRecord handles POST /score: score a single record synchronously.
func (h *Handler) ScoreRecord(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())

	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Record.Email == "" && req.Record.ID == "" {
		writeError(w, http.StatusBadRequest, "record requires an id or email")
		return
	}

	cfg, err := h.resolveConfig(r.Context(), tenantID, req.Config, req.ConfigDocument)
	if err != nil {
		h.writeConfigError(w, err)
		return
	}

	record := req.Record.ToRecord(tenantID)
	result := h.engine.Score(record, cfg)
	writeJSON(w, http.StatusOK, result)
}

// batchRequest is the payload for POST /batch.
type batchRequest struct {
	Config    string   `json:"config"`
	RecordIDs []string `json:"recordIds,omitempty"` // empty means every stored record

	// Async queues the batch on the event bus instead of scoring inline.
	Async bool `json:"async,omitempty"`
}

// ScoreBatch handles POST /batch: score stored records against a stored
// configuration. With async=true the batch is queued for the worker and a
// 202 is returned.
func (h *Handler) ScoreBatch(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Config == "" {
		writeError(w, http.StatusBadRequest, "config name is required")
		return
	}

	if req.Async {
		payload, _ := json.Marshal(map[string]interface{}{
			"configName": req.Config,
			"recordIds":  req.RecordIDs,
		})
		if err := h.bus.Publish(r.Context(), tenantID, domain.TopicBatchRequested, payload); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to queue batch: "+err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	cfg, err := h.resolveConfig(r.Context(), tenantID, req.Config, nil)
	if err != nil {
		h.writeConfigError(w, err)
		return
	}

	records, err := h.loadRecords(r.Context(), tenantID, req.RecordIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load records: "+err.Error())
		return
	}

	report, err := h.orchestrator.ScoreAll(r.Context(), tenantID, records, cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "batch scoring failed: "+err.Error())
		return
	}

	if err := h.repo.SaveBatchReport(r.Context(), tenantID, report); err != nil {
		slog.Error("failed to persist batch report", "error", err, "report_id", report.ID)
	}

	writeJSON(w, http.StatusOK, report)
}

// Mutate handles POST /mutate: apply a bulk field patch to stored records.
// Bodies over the configured cap are rejected before parsing.
func (h *Handler) Mutate(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			sizeErr := &domain.SizeLimitError{Limit: h.maxBodyBytes}
			writeError(w, http.StatusRequestEntityTooLarge, sizeErr.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}

	var patch domain.BulkPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.mutator.Apply(r.Context(), tenantID, &patch)
	if err != nil {
		var valErr *domain.ValidationError
		if errors.As(err, &valErr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": valErr.Error(),
				"field": valErr.Field,
			})
			return
		}
		var nfErr *domain.NotFoundError
		if errors.As(err, &nfErr) {
			// No target matched: per-target detail is still reported.
			writeJSON(w, http.StatusNotFound, result)
			return
		}
		writeError(w, http.StatusInternalServerError, "mutation failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// configSummary is the list view of a stored configuration.
type configSummary struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Fingerprint string `json:"fingerprint"`
	Enabled     bool   `json:"enabled"`
}

// ListConfigs handles GET /configs.
func (h *Handler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())

	stored, err := h.repo.ListRuleConfigs(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list configs: "+err.Error())
		return
	}

	summaries := make([]configSummary, 0, len(stored))
	for _, sc := range stored {
		summaries = append(summaries, configSummary{
			Name:        sc.Name,
			Version:     sc.Version,
			Fingerprint: sc.Fingerprint,
			Enabled:     sc.Enabled,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"configs": summaries})
}

// SaveConfig handles POST /configs: validate and store a rule configuration
// document. The body is the document itself.
func (h *Handler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			sizeErr := &domain.SizeLimitError{Limit: h.maxBodyBytes}
			writeError(w, http.StatusRequestEntityTooLarge, sizeErr.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}

	cfg, err := ruleconfig.Validate(body)
	if err != nil {
		h.writeConfigError(w, err)
		return
	}

	stored := &domain.StoredConfig{
		Name:        cfg.Metadata.Name,
		TenantID:    tenantID,
		Version:     cfg.Metadata.Version,
		Fingerprint: cfg.Fingerprint,
		Document:    body,
		Enabled:     true,
	}
	if err := h.repo.SaveRuleConfig(r.Context(), tenantID, stored); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save config: "+err.Error())
		return
	}

	h.publishConfigUpdated(r.Context(), tenantID, cfg)

	writeJSON(w, http.StatusCreated, map[string]string{
		"name":        cfg.Metadata.Name,
		"version":     cfg.Metadata.Version,
		"fingerprint": cfg.Fingerprint,
	})
}

// GetConfig handles GET /configs/{name}: return the stored document.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	name := chi.URLParam(r, "name")

	stored, err := h.repo.GetRuleConfig(r.Context(), tenantID, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "config not found: "+name)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load config: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(stored.Document)
}

// reloadRequest is the payload for POST /configs/reload.
type reloadRequest struct {
	Name string `json:"name"`
}

// ReloadConfig handles POST /configs/reload: re-validate a stored document
// and broadcast the updated fingerprint so workers pick it up.
func (h *Handler) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())

	var req reloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "config name is required")
		return
	}

	stored, err := h.repo.GetRuleConfig(r.Context(), tenantID, req.Name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "config not found: "+req.Name)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load config: "+err.Error())
		return
	}

	cfg, err := ruleconfig.Validate(stored.Document)
	if err != nil {
		h.writeConfigError(w, err)
		return
	}

	h.publishConfigUpdated(r.Context(), tenantID, cfg)

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "reloaded",
		"name":        cfg.Metadata.Name,
		"fingerprint": cfg.Fingerprint,
	})
}

// SaveRecord handles PUT /records/{id}, storing a record for later batch
// scoring or bulk mutation.
func (h *Handler) SaveRecord(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	id := chi.URLParam(r, "id")

	// The mutation service gates targets by the same rules, so anything
	// accepted here stays patchable later.
	if err := mutate.ValidateIdentifier(id); err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": vErr.Error(),
				"field": vErr.Field,
			})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	var req domain.RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, (&domain.SizeLimitError{Limit: h.maxBodyBytes}).Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "record email is required")
		return
	}

	record := req.ToRecord(tenantID)
	record.ID = id
	if err := h.repo.SaveRecord(r.Context(), tenantID, record); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save record: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// GetRecord handles GET /records/{id}.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	id := chi.URLParam(r, "id")

	record, err := h.repo.GetRecord(r.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found: "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load record: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// GetReport handles GET /reports/{id}.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	id := chi.URLParam(r, "id")

	report, err := h.repo.GetBatchReport(r.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report not found: "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load report: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// resolveConfig loads a named stored configuration, or validates an inline
// document when no name is given.
func (h *Handler) resolveConfig(ctx context.Context, tenantID, name string, inline json.RawMessage) (*domain.RuleConfiguration, error) {
	if name != "" {
		stored, err := h.repo.GetRuleConfig(ctx, tenantID, name)
		if err != nil {
			return nil, err
		}
		return ruleconfig.Validate(stored.Document)
	}
	if len(inline) > 0 {
		return ruleconfig.Validate(inline)
	}
	return nil, &domain.SchemaError{Reason: "config name or inline document is required"}
}

func (h *Handler) writeConfigError(w http.ResponseWriter, err error) {
	var schemaErr *domain.SchemaError
	if errors.As(err, &schemaErr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": schemaErr.Error(),
			"path":  schemaErr.Path,
		})
		return
	}
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "config not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *Handler) loadRecords(ctx context.Context, tenantID string, ids []string) ([]*domain.Record, error) {
	if len(ids) == 0 {
		return h.repo.ListRecords(ctx, tenantID)
	}
	records := make([]*domain.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := h.repo.GetRecord(ctx, tenantID, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				slog.Warn("record not found for batch, skipping", "record_id", id)
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (h *Handler) publishConfigUpdated(ctx context.Context, tenantID string, cfg *domain.RuleConfiguration) {
	payload, _ := json.Marshal(map[string]string{
		"name":        cfg.Metadata.Name,
		"fingerprint": cfg.Fingerprint,
	})
	if err := h.bus.Publish(ctx, tenantID, domain.TopicConfigUpdated, payload); err != nil {
		slog.Warn("failed to publish config update", "error", err)
	}
}
