package adminpin

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store is the persistence surface the service needs. *Repository is the
// Postgres implementation; tests swap in a fake.
type Store interface {
	Get(ctx context.Context, adminID uuid.UUID) (*AdminPin, error)
	Upsert(ctx context.Context, adminID uuid.UUID, pinHash string) error
	RecordFailure(ctx context.Context, adminID uuid.UUID, failedAttempts int, isActive bool) error
	RecordSuccess(ctx context.Context, adminID uuid.UUID) error
}

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, adminID uuid.UUID) (*AdminPin, error) {
	var pin AdminPin
	err := r.db.GetContext(ctx, &pin, `SELECT * FROM admin_pins WHERE admin_id = $1`, adminID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPinNotSet
	}
	if err != nil {
		return nil, err
	}
	return &pin, nil
}

// Upsert sets or rotates the PIN. Rotation reactivates a locked PIN and
// zeroes the failure counter.
func (r *Repository) Upsert(ctx context.Context, adminID uuid.UUID, pinHash string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admin_pins (admin_id, pin_hash, failed_attempts, is_active, created_at)
		VALUES ($1, $2, 0, true, $3)
		ON CONFLICT (admin_id) DO UPDATE
		SET pin_hash = EXCLUDED.pin_hash, failed_attempts = 0, is_active = true, rotated_at = now()
	`, adminID, pinHash, time.Now())
	return err
}

func (r *Repository) RecordFailure(ctx context.Context, adminID uuid.UUID, failedAttempts int, isActive bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE admin_pins SET failed_attempts = $1, is_active = $2 WHERE admin_id = $3
	`, failedAttempts, isActive, adminID)
	return err
}

func (r *Repository) RecordSuccess(ctx context.Context, adminID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE admin_pins SET failed_attempts = 0, last_used_at = now() WHERE admin_id = $1
	`, adminID)
	return err
}
