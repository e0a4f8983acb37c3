// Package worker provides async processing of calculation events.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/openclinical/klinscore/internal/domain"
)

// AuditWorker consumes completed calculations from the event bus,
// writes an audit log entry for each, and escalates high-risk results
// to the alert topic.
type AuditWorker struct {
	bus    domain.EventBus
	logger *slog.Logger

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewAuditWorker creates a new audit worker.
func NewAuditWorker(bus domain.EventBus, logger *slog.Logger) *AuditWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &AuditWorker{
		bus:    bus,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the calculation-completed topic.
func (w *AuditWorker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicCalculationCompleted, w.handleCalculation)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("audit worker started", "topic", domain.TopicCalculationCompleted)
	return nil
}

// handleCalculation processes one completed calculation.
func (w *AuditWorker) handleCalculation(ctx context.Context, msg *domain.Message) error {
	var rec domain.CalculationRecord
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		w.logger.Error("failed to parse calculation message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	w.logger.Info("calculation audited",
		"calculation_id", rec.ID,
		"score_id", rec.ScoreID,
		"total", rec.Total,
		"risk_level", rec.RiskLevel,
	)

	if rec.RiskLevel.Alertable() {
		if err := w.bus.Publish(ctx, domain.TopicRiskAlert, msg.Payload); err != nil {
			w.logger.Error("failed to publish risk alert",
				"calculation_id", rec.ID,
				"error", err,
			)
			return err
		}
		w.logger.Warn("high-risk result escalated",
			"calculation_id", rec.ID,
			"score_id", rec.ScoreID,
			"risk_level", rec.RiskLevel,
			"recommendation", rec.Recommendation,
		)
	}

	return nil
}

// Stop gracefully stops the worker.
func (w *AuditWorker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.logger.Info("audit worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *AuditWorker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
