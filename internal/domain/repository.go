package domain

import "context"

// Repository defines the interface for calculation-history persistence.
type Repository interface {
	// SaveCalculation stores a completed calculation.
	SaveCalculation(ctx context.Context, rec *CalculationRecord) error

	// GetCalculation retrieves a calculation by ID.
	GetCalculation(ctx context.Context, id string) (*CalculationRecord, error)

	// ListCalculations returns the most recent calculations, newest
	// first. scoreID filters to one score when non-empty.
	ListCalculations(ctx context.Context, scoreID string, limit int) ([]*CalculationRecord, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
