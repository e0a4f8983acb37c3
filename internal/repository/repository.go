// Package repository provides calculation-history persistence.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openclinical/klinscore/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// defaultListLimit caps ListCalculations when the caller passes no
// limit.
const defaultListLimit = 100

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveCalculation stores a completed calculation.
func (r *SQLRepository) SaveCalculation(ctx context.Context, rec *domain.CalculationRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: record ID is required", ErrInvalidInput)
	}
	if rec.ScoreID == "" {
		return fmt.Errorf("%w: score ID is required", ErrInvalidInput)
	}

	fieldScores, _ := json.Marshal(rec.FieldScores)
	inputs, _ := json.Marshal(rec.Inputs)

	query := `
		INSERT INTO calculations (
			id, score_id, score_name, total, risk, risk_level,
			recommendation, field_scores, inputs, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.ScoreID, rec.ScoreName,
		rec.Total, rec.Risk, string(rec.RiskLevel),
		rec.Recommendation, string(fieldScores), string(inputs),
		rec.CreatedAt,
	)
	return err
}

// GetCalculation retrieves a calculation by ID.
func (r *SQLRepository) GetCalculation(ctx context.Context, id string) (*domain.CalculationRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: record ID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, score_id, score_name, total, risk, risk_level,
			   recommendation, field_scores, inputs, created_at
		FROM calculations
		WHERE id = ?
	`

	rec, err := scanCalculation(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListCalculations returns the most recent calculations, newest first.
// scoreID filters to one score when non-empty.
func (r *SQLRepository) ListCalculations(ctx context.Context, scoreID string, limit int) ([]*domain.CalculationRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, score_id, score_name, total, risk, risk_level,
			   recommendation, field_scores, inputs, created_at
		FROM calculations
	`
	args := []any{}
	if scoreID != "" {
		query += " WHERE score_id = ?"
		args = append(args, scoreID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.CalculationRecord
	for rows.Next() {
		rec, err := scanCalculation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCalculation(s scanner) (*domain.CalculationRecord, error) {
	var rec domain.CalculationRecord
	var riskLevel, fieldScores, inputs string

	if err := s.Scan(
		&rec.ID, &rec.ScoreID, &rec.ScoreName,
		&rec.Total, &rec.Risk, &riskLevel,
		&rec.Recommendation, &fieldScores, &inputs,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}

	rec.RiskLevel = domain.RiskLevel(riskLevel)
	if fieldScores != "" {
		json.Unmarshal([]byte(fieldScores), &rec.FieldScores)
	}
	if inputs != "" {
		json.Unmarshal([]byte(inputs), &rec.Inputs)
	}

	return &rec, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
