package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openclinical/klinscore/internal/bus"
	"github.com/openclinical/klinscore/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuditWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewAuditWorker(eventBus, testLogger())

		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("HighRiskEscalated", func(t *testing.T) {
		w := NewAuditWorker(eventBus, testLogger())
		w.Start()
		defer w.Stop()

		var alertReceived atomic.Bool
		var alertPayload []byte

		eventBus.Subscribe(context.Background(), domain.TopicRiskAlert, func(ctx context.Context, msg *domain.Message) error {
			alertPayload = msg.Payload
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		rec := domain.CalculationRecord{
			ID:        "calc-high",
			ScoreID:   "cha2ds2_va",
			Total:     5,
			RiskLevel: domain.RiskHigh,
			CreatedAt: time.Now().UTC(),
		}
		payload, _ := json.Marshal(rec)

		if err := eventBus.Publish(context.Background(), domain.TopicCalculationCompleted, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		time.Sleep(100 * time.Millisecond)

		if !alertReceived.Load() {
			t.Fatal("expected high-risk result to be escalated")
		}

		var escalated domain.CalculationRecord
		if err := json.Unmarshal(alertPayload, &escalated); err != nil {
			t.Fatalf("failed to parse alert payload: %v", err)
		}
		if escalated.ID != "calc-high" {
			t.Errorf("expected calculation calc-high, got %s", escalated.ID)
		}
	})

	t.Run("LowRiskNotEscalated", func(t *testing.T) {
		w := NewAuditWorker(eventBus, testLogger())
		w.Start()
		defer w.Stop()

		var alertCount atomic.Int32

		eventBus.Subscribe(context.Background(), domain.TopicRiskAlert, func(ctx context.Context, msg *domain.Message) error {
			alertCount.Add(1)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		rec := domain.CalculationRecord{
			ID:        "calc-low",
			ScoreID:   "curb65",
			Total:     1,
			RiskLevel: domain.RiskLow,
			CreatedAt: time.Now().UTC(),
		}
		payload, _ := json.Marshal(rec)
		eventBus.Publish(context.Background(), domain.TopicCalculationCompleted, payload)

		time.Sleep(100 * time.Millisecond)

		if alertCount.Load() != 0 {
			t.Errorf("expected no alerts for low-risk result, got %d", alertCount.Load())
		}
	})

	t.Run("MalformedPayloadIgnored", func(t *testing.T) {
		w := NewAuditWorker(eventBus, testLogger())
		w.Start()
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		// Must not panic or stop the worker.
		eventBus.Publish(context.Background(), domain.TopicCalculationCompleted, []byte("not json"))
		time.Sleep(50 * time.Millisecond)

		if w.GetStats().SubscriptionCount != 1 {
			t.Error("worker should remain subscribed after a bad message")
		}
	})
}
