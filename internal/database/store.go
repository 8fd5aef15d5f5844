package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/AnshRaj112/rehab-backend/internal/services"
	"github.com/lib/pq"
)

// queryer is what *sql.DB and *sql.Tx have in common.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore is the services.Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	q  queryer
	tx *sql.Tx
}

var _ services.Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

func (s *PostgresStore) Principals() services.PrincipalRepository { return principalRepo{q: s.q} }
func (s *PostgresStore) Tokens() services.TokenRepository         { return tokenRepo{q: s.q} }
func (s *PostgresStore) Audit() services.AuditRepository          { return auditRepo{q: s.q} }

// WithinTx runs fn in a transaction, committing when fn returns nil. A store
// that is already inside a transaction runs fn in it.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx services.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&PostgresStore{db: s.db, q: tx, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports a 23505 from lib/pq.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// principalTable maps a kind to its table. Only these two names ever reach SQL.
func principalTable(kind models.PrincipalKind) (string, error) {
	switch kind {
	case models.KindPatient:
		return "patients", nil
	case models.KindStaff:
		return "staff", nil
	default:
		return "", fmt.Errorf("unknown principal kind %q", kind)
	}
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
