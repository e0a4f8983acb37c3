package repository

// Schema definitions for the klinscore history database.
// Compatible with both SQLite and PostgreSQL.

const schemaCalculations = `
CREATE TABLE IF NOT EXISTS calculations (
    id TEXT PRIMARY KEY,
    score_id TEXT NOT NULL,
    score_name TEXT NOT NULL,
    total INTEGER NOT NULL,
    risk TEXT,
    risk_level TEXT,
    recommendation TEXT,
    field_scores TEXT NOT NULL,
    inputs TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_calculations_score ON calculations(score_id);
CREATE INDEX IF NOT EXISTS idx_calculations_created ON calculations(created_at);
CREATE INDEX IF NOT EXISTS idx_calculations_risk_level ON calculations(risk_level);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCalculations,
	}
}
