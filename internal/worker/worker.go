// Package worker provides async assessment processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/assess"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Worker processes assessment requests asynchronously from the EventBus.
// Subscriptions enqueue onto a shared job queue drained by a pool of
// WorkerCount goroutines, so one slow applicant does not stall a tenant.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	engine    *rules.Engine
	processor *assess.Processor

	subscriptions []domain.Subscription
	jobs          chan job
	workerCount   int
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

type job struct {
	tenantID string
	msg      *domain.Message
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// WorkerCount is the number of concurrent goroutines draining the
	// shared assessment queue. Zero means 1.
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, engine *rules.Engine, processor *assess.Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		engine:    engine,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	count := cfg.WorkerCount
	if count <= 0 {
		count = 1
	}
	w.workerCount = count
	w.jobs = make(chan job, count*2)

	for i := 0; i < count; i++ {
		w.wg.Add(1)
		go w.runWorker()
	}

	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicAssessmentRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAssessmentRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.enqueue(tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicAssessmentRequested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.enqueue(msg.TenantID, msg)
}

// enqueue hands a message to the worker pool, giving up on shutdown.
func (w *Worker) enqueue(tenantID string, msg *domain.Message) error {
	select {
	case w.jobs <- job{tenantID: tenantID, msg: msg}:
		return nil
	case <-w.ctx.Done():
		return w.ctx.Err()
	}
}

// runWorker drains the job queue until shutdown.
func (w *Worker) runWorker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case j := <-w.jobs:
			_ = w.processRequest(w.ctx, j.tenantID, j.msg)
		}
	}
}

// AssessmentRequest is the message payload for async assessment.
type AssessmentRequest struct {
	TenantID string         `json:"tenant_id"`
	TraceID  string         `json:"trace_id"`
	Profile  domain.Profile `json:"profile"`
}

// processRequest runs one applicant through the assessment pipeline.
func (w *Worker) processRequest(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req AssessmentRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse assessment request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if req.TenantID != "" {
		tenantID = req.TenantID
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	snapshot := w.engine.Snapshot()
	if snapshot == nil {
		slog.Error("no rule set loaded, dropping assessment request",
			"tenant_id", tenantID,
			"trace_id", traceID,
		)
		return errors.New("no rule set loaded")
	}

	slog.Debug("processing assessment request",
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	assessment, err := w.processor.Process(ctx, &assess.Input{
		TenantID:  tenantID,
		TraceID:   traceID,
		Profile:   req.Profile,
		Snapshot:  snapshot,
		StartTime: start,
	})
	if err != nil {
		var dataErr *scoring.DataError
		if errors.As(err, &dataErr) {
			// Bad applicant data is terminal for the request, not worth
			// a redelivery.
			slog.Warn("assessment rejected",
				"tenant_id", tenantID,
				"trace_id", traceID,
				"error", err,
			)
			return nil
		}
		slog.Error("assessment failed",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	if w.repo != nil {
		if err := w.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			slog.Error("failed to save assessment",
				"id", assessment.ID,
				"error", err,
			)
		}
	}

	resultPayload, _ := json.Marshal(assessment.ToResponse())
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAssessmentCompleted, resultPayload); err != nil {
		slog.Error("failed to publish assessment result",
			"id", assessment.ID,
			"error", err,
		)
	}

	if assessment.Score.AutoDecline {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAssessmentDeclined, resultPayload); err != nil {
			slog.Error("failed to publish decline event",
				"id", assessment.ID,
				"error", err,
			)
		}
	}

	slog.Info("assessment processed",
		"id", assessment.ID,
		"tenant_id", tenantID,
		"decision", assessment.Decision(),
		"total_score", assessment.Score.TotalScore,
		"risk_tier", assessment.Score.RiskTier,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	WorkerCount       int      `json:"workerCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		WorkerCount:       w.workerCount,
		Topics:            topics,
	}
}
