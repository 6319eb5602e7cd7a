// Package worker provides async batch processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openlead/kestrel/internal/batch"
	"github.com/openlead/kestrel/internal/domain"
	"github.com/openlead/kestrel/internal/ruleconfig"
)

// Worker consumes batch scoring requests from the EventBus, runs the
// orchestrator and publishes completion and anomaly events. Configuration
// updates trigger a debounced full rescore so a burst of edits leads to at
// most one recompute per quiescence window.
type Worker struct {
	bus          domain.EventBus
	repo         domain.Repository
	orchestrator *batch.Orchestrator
	logger       *slog.Logger

	subscriptions  []domain.Subscription
	debounceWindow time.Duration

	mu         sync.Mutex
	debouncers map[string]*batch.Debouncer // keyed by tenant + config name

	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process.
	TenantIDs []string

	// DebounceWindow is the quiescence window for config-update rescores.
	// Zero means the debouncer default.
	DebounceWindow time.Duration
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, orchestrator *batch.Orchestrator, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:          bus,
		repo:         repo,
		orchestrator: orchestrator,
		logger:       logger,
		debouncers:   make(map[string]*batch.Debouncer),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins processing batch requests for the given tenants.
func (w *Worker) Start(cfg Config) error {
	w.debounceWindow = cfg.DebounceWindow
	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			w.logger.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	w.logger.Info("workers started", "tenant_count", len(cfg.TenantIDs))
	return nil
}

func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicBatchRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processBatch(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	sub, err = w.bus.Subscribe(w.ctx, tenantID, domain.TopicConfigUpdated, func(ctx context.Context, msg *domain.Message) error {
		return w.processConfigUpdate(tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicBatchRequested,
	)
	return nil
}

// BatchRequest is the message payload for a batch scoring request.
type BatchRequest struct {
	ConfigName string   `json:"configName"`
	RecordIDs  []string `json:"recordIds,omitempty"` // empty means every stored record
}

// BatchCompleted is published after a batch finishes.
type BatchCompleted struct {
	ReportID   string              `json:"reportId"`
	TierCounts map[domain.Tier]int `json:"tierCounts"`
	Records    int                 `json:"records"`
	DurationMs int64               `json:"durationMs"`
}

// AnomalyAlert is published for each record a batch excluded on a critical
// anomaly.
type AnomalyAlert struct {
	ReportID string `json:"reportId"`
	RecordID string `json:"recordId"`
	Reason   string `json:"reason"`
}

// ConfigUpdated is the message payload for a configuration change.
type ConfigUpdated struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
}

// processBatch scores one requested batch end to end.
func (w *Worker) processBatch(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req BatchRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		w.logger.Error("failed to parse batch request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if req.ConfigName == "" {
		return fmt.Errorf("batch request missing config name")
	}

	if err := w.runBatch(ctx, tenantID, req.ConfigName, req.RecordIDs); err != nil {
		return err
	}

	w.logger.Info("batch request processed",
		"tenant_id", tenantID,
		"config", req.ConfigName,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// processConfigUpdate schedules a debounced rescore of every stored record
// under the updated configuration. Each (tenant, config) pair gets its own
// debouncer so edits to one config never delay another's recompute.
func (w *Worker) processConfigUpdate(tenantID string, msg *domain.Message) error {
	var upd ConfigUpdated
	if err := json.Unmarshal(msg.Payload, &upd); err != nil {
		w.logger.Error("failed to parse config update",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if upd.Name == "" {
		return fmt.Errorf("config update missing config name")
	}

	w.debouncerFor(tenantID, upd.Name).Trigger()
	return nil
}

func (w *Worker) debouncerFor(tenantID, configName string) *batch.Debouncer {
	key := tenantID + "/" + configName
	w.mu.Lock()
	defer w.mu.Unlock()

	d, ok := w.debouncers[key]
	if !ok {
		d = batch.NewDebouncer(w.debounceWindow, func(ctx context.Context) {
			if err := w.runBatch(ctx, tenantID, configName, nil); err != nil {
				w.logger.Error("debounced rescore failed",
					"tenant_id", tenantID,
					"config", configName,
					"error", err,
				)
				return
			}
			w.logger.Info("config rescored",
				"tenant_id", tenantID,
				"config", configName,
			)
		})
		w.debouncers[key] = d
	}
	return d
}

// runBatch scores the named config against the requested records (all stored
// records when ids is empty), persists the report and publishes events. A
// canceled context aborts before anything is written, so a superseded
// recompute never overwrites a newer one.
func (w *Worker) runBatch(ctx context.Context, tenantID, configName string, ids []string) error {
	stored, err := w.repo.GetRuleConfig(ctx, tenantID, configName)
	if err != nil {
		return fmt.Errorf("load config %q: %w", configName, err)
	}
	cfg, err := ruleconfig.Validate(stored.Document)
	if err != nil {
		return fmt.Errorf("stored config %q is invalid: %w", configName, err)
	}

	records, err := w.loadRecords(ctx, tenantID, ids)
	if err != nil {
		return err
	}

	report, err := w.orchestrator.ScoreAll(ctx, tenantID, records, cfg)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := w.repo.SaveBatchReport(ctx, tenantID, report); err != nil {
		return err
	}

	w.publishCompleted(ctx, tenantID, report)
	w.publishAnomalyAlerts(ctx, tenantID, report)
	return nil
}

// loadRecords fetches the requested records, or every stored record when the
// request names none. Missing identifiers are skipped with a warning; the
// batch never aborts on them.
func (w *Worker) loadRecords(ctx context.Context, tenantID string, ids []string) ([]*domain.Record, error) {
	if len(ids) == 0 {
		return w.repo.ListRecords(ctx, tenantID)
	}

	records := make([]*domain.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := w.repo.GetRecord(ctx, tenantID, id)
		if err != nil {
			w.logger.Warn("batch record not found, skipping",
				"tenant_id", tenantID,
				"record_id", id,
			)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (w *Worker) publishCompleted(ctx context.Context, tenantID string, report *domain.BatchReport) {
	payload, _ := json.Marshal(&BatchCompleted{
		ReportID:   report.ID,
		TierCounts: report.TierCounts,
		Records:    len(report.Results),
		DurationMs: report.Duration.Milliseconds(),
	})
	if err := w.bus.Publish(ctx, tenantID, domain.TopicBatchCompleted, payload); err != nil {
		w.logger.Error("failed to publish batch completed", "error", err)
	}
}

func (w *Worker) publishAnomalyAlerts(ctx context.Context, tenantID string, report *domain.BatchReport) {
	for _, result := range report.Results {
		if result.AnomalySeverity < domain.SeverityCritical {
			continue
		}
		payload, _ := json.Marshal(&AnomalyAlert{
			ReportID: report.ID,
			RecordID: result.RecordID,
			Reason:   result.Reason,
		})
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAnomalyAlert, payload); err != nil {
			w.logger.Error("failed to publish anomaly alert", "error", err)
		}
	}
}

// Stop gracefully shuts down the worker.
func (w *Worker) Stop() {
	for _, sub := range w.subscriptions {
		_ = sub.Unsubscribe()
	}

	w.mu.Lock()
	for _, d := range w.debouncers {
		d.Stop()
	}
	w.mu.Unlock()

	w.cancel()
	w.logger.Info("workers stopped")
}
