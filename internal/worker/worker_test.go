package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/assess"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

func testEngine(t *testing.T) *rules.Engine {
	t.Helper()

	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	rs, err := domain.ParseRuleSetDocument([]byte(`{
		"credit": {"credit_score": {"weight": 10}},
		"banking": {
			"monthly_deposits": {"weight": 10},
			"deposit_frequency": {"weight": 5}
		},
		"business": {"years_in_business": {"weight": 10}}
	}`))
	if err != nil {
		t.Fatalf("failed to parse test rule set: %v", err)
	}
	if err := engine.LoadRuleSet(rs); err != nil {
		t.Fatalf("failed to load test rule set: %v", err)
	}

	return engine
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	engine := testEngine(t)
	processor := assess.NewProcessor()

	worker := NewWorker(eventBus, nil, engine, processor)

	t.Run("StartAndStop", func(t *testing.T) {
		cfg := Config{
			TenantIDs:   []string{"tenant-001"},
			WorkerCount: 1,
		}

		err := worker.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}
		if stats.WorkerCount != 1 {
			t.Errorf("expected 1 pool worker, got %d", stats.WorkerCount)
		}

		err = worker.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessAssessmentRequest", func(t *testing.T) {
		// Create fresh worker for this test
		w := NewWorker(eventBus, nil, engine, processor)

		cfg := Config{
			TenantIDs: []string{"tenant-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track completed results
		var resultReceived atomic.Bool
		var resultPayload []byte

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicAssessmentCompleted, func(ctx context.Context, msg *domain.Message) error {
			resultPayload = msg.Payload
			resultReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		req := AssessmentRequest{
			TenantID: "tenant-test",
			TraceID:  "trace-001",
			Profile: domain.Profile{
				"credit_score":      760.0,
				"monthly_deposits":  60000.0,
				"deposit_frequency": 15.0,
			},
		}

		payload, _ := json.Marshal(req)
		err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicAssessmentRequested, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(100 * time.Millisecond)

		if !resultReceived.Load() {
			t.Fatal("expected completed assessment to be published")
		}

		var resp domain.AssessmentResponse
		if err := json.Unmarshal(resultPayload, &resp); err != nil {
			t.Fatalf("failed to parse result: %v", err)
		}

		if resp.TenantID != "tenant-test" {
			t.Errorf("expected tenantID 'tenant-test', got '%s'", resp.TenantID)
		}
		if resp.Metadata.TraceID != "trace-001" {
			t.Errorf("expected traceID 'trace-001', got '%s'", resp.Metadata.TraceID)
		}
		if resp.Decision != domain.DecisionApproved {
			t.Errorf("expected approved, got '%s'", resp.Decision)
		}
		if len(resp.Offers) == 0 {
			t.Error("expected offers on approved assessment")
		}
	})

	t.Run("DeclineEventPublished", func(t *testing.T) {
		w := NewWorker(eventBus, nil, engine, processor)

		cfg := Config{
			TenantIDs: []string{"tenant-decline"},
		}
		w.Start(cfg)
		defer w.Stop()

		var declineReceived atomic.Bool

		eventBus.Subscribe(context.Background(), "tenant-decline", domain.TopicAssessmentDeclined, func(ctx context.Context, msg *domain.Message) error {
			declineReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		// Deposits below the hard minimum trigger the gate
		req := AssessmentRequest{
			TenantID: "tenant-decline",
			Profile: domain.Profile{
				"credit_score":      800.0,
				"monthly_deposits":  10000.0,
				"deposit_frequency": 2.0,
			},
		}

		payload, _ := json.Marshal(req)
		eventBus.Publish(context.Background(), "tenant-decline", domain.TopicAssessmentRequested, payload)

		time.Sleep(100 * time.Millisecond)

		if !declineReceived.Load() {
			t.Error("expected decline event for gated applicant")
		}
	})

	t.Run("BadDateDroppedWithoutRedelivery", func(t *testing.T) {
		w := NewWorker(eventBus, nil, engine, processor)

		cfg := Config{
			TenantIDs: []string{"tenant-bad"},
		}
		w.Start(cfg)
		defer w.Stop()

		var resultReceived atomic.Bool
		eventBus.Subscribe(context.Background(), "tenant-bad", domain.TopicAssessmentCompleted, func(ctx context.Context, msg *domain.Message) error {
			resultReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		req := AssessmentRequest{
			TenantID: "tenant-bad",
			Profile: domain.Profile{
				"business_start_date": "not-a-date",
			},
		}

		payload, _ := json.Marshal(req)
		eventBus.Publish(context.Background(), "tenant-bad", domain.TopicAssessmentRequested, payload)

		time.Sleep(100 * time.Millisecond)

		if resultReceived.Load() {
			t.Error("expected no completed event for unprocessable request")
		}
	})

	t.Run("WorkerPoolFanOut", func(t *testing.T) {
		w := NewWorker(eventBus, nil, engine, processor)

		cfg := Config{
			TenantIDs:   []string{"tenant-pool"},
			WorkerCount: 3,
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.WorkerCount != 3 {
			t.Fatalf("expected 3 pool workers, got %d", stats.WorkerCount)
		}

		var completed atomic.Int32
		eventBus.Subscribe(context.Background(), "tenant-pool", domain.TopicAssessmentCompleted, func(ctx context.Context, msg *domain.Message) error {
			completed.Add(1)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		const requestCount = 6
		for i := 0; i < requestCount; i++ {
			req := AssessmentRequest{
				TenantID: "tenant-pool",
				Profile: domain.Profile{
					"credit_score":      700.0,
					"monthly_deposits":  50000.0,
					"deposit_frequency": 12.0,
				},
			}
			payload, _ := json.Marshal(req)
			if err := eventBus.Publish(context.Background(), "tenant-pool", domain.TopicAssessmentRequested, payload); err != nil {
				t.Fatalf("Publish failed: %v", err)
			}
		}

		deadline := time.Now().Add(2 * time.Second)
		for completed.Load() < requestCount && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}

		if completed.Load() != requestCount {
			t.Errorf("expected %d completed assessments, got %d", requestCount, completed.Load())
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, nil, engine, processor)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestAssessmentRequestParsing(t *testing.T) {
	req := AssessmentRequest{
		TenantID: "tenant-001",
		TraceID:  "trace-456",
		Profile: domain.Profile{
			"credit_score":     720.0,
			"monthly_deposits": 45000.0,
			"industry":         "trucking",
		},
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed AssessmentRequest
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.TenantID != req.TenantID {
		t.Errorf("expected TenantID '%s', got '%s'", req.TenantID, parsed.TenantID)
	}
	if parsed.TraceID != req.TraceID {
		t.Errorf("expected TraceID '%s', got '%s'", req.TraceID, parsed.TraceID)
	}
	if parsed.Profile.Number("credit_score", 0) != 720 {
		t.Errorf("expected profile round trip, got %v", parsed.Profile)
	}
}
