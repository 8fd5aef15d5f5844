package database

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// PostgresAssignmentChecker reads exercise_assignments.
type PostgresAssignmentChecker struct {
	db *sql.DB
}

// NewPostgresAssignmentChecker wraps an open pool.
func NewPostgresAssignmentChecker(db *sql.DB) *PostgresAssignmentChecker {
	return &PostgresAssignmentChecker{db: db}
}

// HasActiveAssignment reports whether the patient has a started, not yet
// ended assignment for the exercise.
func (c *PostgresAssignmentChecker) HasActiveAssignment(ctx context.Context, patientID, exerciseID uuid.UUID) (bool, error) {
	var ok bool
	err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM exercise_assignments
			WHERE patient_id = $1 AND exercise_id = $2
				AND started_at <= NOW()
				AND (ended_at IS NULL OR ended_at > NOW())
		)`, patientID, exerciseID).Scan(&ok)
	return ok, err
}
