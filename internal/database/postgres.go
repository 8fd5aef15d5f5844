package database

import (
	"context"
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// ConnectPostgres opens the PostgreSQL pool and makes sure the schema exists.
func ConnectPostgres(ctx context.Context, postgresURI string) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresURI)
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}

	log.Println("✅ Connected to PostgreSQL")

	if err = InitPostgresTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InitPostgresTables creates all necessary tables if they don't exist
func InitPostgresTables(ctx context.Context, db *sql.DB) error {
	queries := []string{
		// Patients (PII encrypted, email searchable through its blind index)
		`CREATE TABLE IF NOT EXISTS patients (
			id UUID PRIMARY KEY,
			name_ciphertext BYTEA NOT NULL,
			name_iv BYTEA NOT NULL,
			email_ciphertext BYTEA NOT NULL,
			email_iv BYTEA NOT NULL,
			email_digest CHAR(64) NOT NULL,
			birth_date_ciphertext BYTEA,
			birth_date_iv BYTEA,
			password_hash VARCHAR(255) NOT NULL,
			failed_attempt_count INTEGER NOT NULL DEFAULT 0 CHECK (failed_attempt_count >= 0),
			locked_until TIMESTAMPTZ,
			soft_deleted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK ((birth_date_ciphertext IS NULL) = (birth_date_iv IS NULL))
		)`,

		// Staff (staff number is the identity, email optional)
		`CREATE TABLE IF NOT EXISTS staff (
			id UUID PRIMARY KEY,
			staff_number_ciphertext BYTEA NOT NULL,
			staff_number_iv BYTEA NOT NULL,
			staff_number_digest CHAR(64) NOT NULL,
			name_ciphertext BYTEA NOT NULL,
			name_iv BYTEA NOT NULL,
			email_ciphertext BYTEA,
			email_iv BYTEA,
			email_digest CHAR(64),
			role VARCHAR(20) NOT NULL CHECK (role IN ('therapist', 'admin')),
			password_hash VARCHAR(255) NOT NULL,
			failed_attempt_count INTEGER NOT NULL DEFAULT 0 CHECK (failed_attempt_count >= 0),
			locked_until TIMESTAMPTZ,
			soft_deleted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK ((email_ciphertext IS NULL) = (email_digest IS NULL))
		)`,

		// Exercise assignments (owned by the exercise module, read here for video access)
		`CREATE TABLE IF NOT EXISTS exercise_assignments (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			patient_id UUID NOT NULL REFERENCES patients(id),
			exercise_id UUID NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ended_at TIMESTAMPTZ
		)`,

		// Ephemeral tokens (only the SHA-256 of the value is stored)
		`CREATE TABLE IF NOT EXISTS ephemeral_tokens (
			id UUID PRIMARY KEY,
			token_hash CHAR(64) NOT NULL UNIQUE,
			patient_id UUID REFERENCES patients(id),
			staff_id UUID REFERENCES staff(id),
			scope VARCHAR(32) NOT NULL CHECK (scope IN ('password_reset', 'video_access')),
			exercise_id UUID,
			issued_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			used_at TIMESTAMPTZ,
			CHECK ((patient_id IS NULL) <> (staff_id IS NULL)),
			CHECK (scope <> 'video_access' OR (patient_id IS NOT NULL AND exercise_id IS NOT NULL)),
			CHECK (scope <> 'password_reset' OR exercise_id IS NULL),
			CHECK (expires_at > issued_at)
		)`,

		// Audit log (append only)
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id UUID PRIMARY KEY,
			actor_kind VARCHAR(10),
			actor_id UUID,
			action VARCHAR(40) NOT NULL,
			status VARCHAR(10) NOT NULL CHECK (status IN ('success', 'failure')),
			ip_address VARCHAR(255),
			user_agent TEXT,
			context JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK ((actor_kind IS NULL) = (actor_id IS NULL))
		)`,

		// Identity uniqueness lives on the digests; soft-deleted rows free their identity
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_patients_email_digest ON patients(email_digest) WHERE soft_deleted_at IS NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_staff_number_digest ON staff(staff_number_digest) WHERE soft_deleted_at IS NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_staff_email_digest ON staff(email_digest) WHERE soft_deleted_at IS NULL AND email_digest IS NOT NULL`,

		// Create indexes for better performance
		`CREATE INDEX IF NOT EXISTS idx_exercise_assignments_patient ON exercise_assignments(patient_id, exercise_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ephemeral_tokens_patient ON ephemeral_tokens(patient_id, scope) WHERE used_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_ephemeral_tokens_staff ON ephemeral_tokens(staff_id, scope) WHERE used_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_ephemeral_tokens_expires_at ON ephemeral_tokens(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_actor ON audit_logs(actor_kind, actor_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return err
		}
	}

	log.Println("✅ PostgreSQL tables initialized")
	return nil
}
