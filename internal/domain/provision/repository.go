package provision

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store is the persistence surface the service needs. *Repository is the
// Postgres implementation; tests swap in a fake.
type Store interface {
	Create(ctx context.Context, req *ProvisionRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*ProvisionRequest, error)
	MarkExpired(ctx context.Context, id uuid.UUID) (bool, error)
	Confirm(ctx context.Context, requestID uuid.UUID, secretHash string) (*ProvisionRequest, error)
}

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Create opens a new window and retires any other pending one for the same
// user in the same transaction, so a card writer can never race two open
// windows for one user.
func (r *Repository) Create(ctx context.Context, req *ProvisionRequest) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE provision_card_requests
		SET status = 'EXPIRED'
		WHERE user_id = $1 AND status = 'PENDING'
	`, req.UserID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO provision_card_requests (id, user_id, requested_by_admin_id, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, req.ID, req.UserID, req.RequestedByAdminID, req.Status, req.ExpiresAt, req.CreatedAt); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*ProvisionRequest, error) {
	var req ProvisionRequest
	err := r.db.GetContext(ctx, &req, `SELECT * FROM provision_card_requests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// MarkExpired lazily transitions a lapsed PENDING request to EXPIRED.
// Conditional on PENDING so it can never roll back a terminal state.
func (r *Repository) MarkExpired(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE provision_card_requests
		SET status = 'EXPIRED'
		WHERE id = $1 AND status = 'PENDING'
	`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Confirm claims the window and binds the secret hash to the target user
// in one transaction. The conditional claim's affected-row count is the
// single-winner primitive, exactly as for payment requests. Because the
// hash column is unique, any other user currently holding this hash loses
// it inside the same transaction before the new binding lands.
func (r *Repository) Confirm(ctx context.Context, requestID uuid.UUID, secretHash string) (*ProvisionRequest, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE provision_card_requests
		SET status = 'COMPLETED'
		WHERE id = $1 AND status = 'PENDING' AND expires_at > now()
	`, requestID)
	if err != nil {
		return nil, err
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if claimed == 0 {
		tx.Rollback()
		return nil, r.classifyClaimFailure(ctx, requestID)
	}

	var req ProvisionRequest
	if err := tx.GetContext(ctx, &req, `SELECT * FROM provision_card_requests WHERE id = $1`, requestID); err != nil {
		return nil, err
	}
	req.Status = StatusCompleted

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET card_secret_hash = NULL, updated_at = now()
		WHERE card_secret_hash = $1 AND id <> $2
	`, secretHash, req.UserID); err != nil {
		return nil, err
	}

	bound, err := tx.ExecContext(ctx, `
		UPDATE users SET card_secret_hash = $1, updated_at = now()
		WHERE id = $2
	`, secretHash, req.UserID)
	if err != nil {
		return nil, err
	}
	affected, err := bound.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrUserNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Repository) classifyClaimFailure(ctx context.Context, requestID uuid.UUID) error {
	req, err := r.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != StatusPending {
		return ErrAlreadyProcessed
	}
	if _, err := r.MarkExpired(ctx, requestID); err != nil {
		return err
	}
	return ErrExpired
}
