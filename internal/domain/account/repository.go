package account

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, a *Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, balance, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.Name, a.Email, a.PasswordHash, a.Role, a.Balance, a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrEmailAlreadyExists
		}
		return err
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	var a Account
	err := r.db.GetContext(ctx, &a, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	var a Account
	err := r.db.GetContext(ctx, &a, `SELECT * FROM users WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) GetByCardSecretHash(ctx context.Context, hash string) (*Account, error) {
	var a Account
	err := r.db.GetContext(ctx, &a, `SELECT * FROM users WHERE card_secret_hash = $1`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) ListByRole(ctx context.Context, role string) ([]Account, error) {
	accounts := []Account{}
	err := r.db.SelectContext(ctx, &accounts, `
		SELECT * FROM users WHERE role = $1 ORDER BY created_at DESC
	`, role)
	return accounts, err
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET status = $1, updated_at = now() WHERE id = $2
	`, status, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete blocks the account, unbinds its card, zeroes the balance, and
// expires any open provisioning window, all in one transaction.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE users
		SET status = 'BLOCKED', card_secret_hash = NULL, balance = 0, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE provision_card_requests
		SET status = 'EXPIRED'
		WHERE user_id = $1 AND status = 'PENDING'
	`, id); err != nil {
		return err
	}

	return tx.Commit()
}

// InsertActionLog records an admin mutation. Callers treat failures as
// best-effort: audit loss must not fail the primary operation.
func (r *Repository) InsertActionLog(ctx context.Context, entry *ActionLog) error {
	var metadata interface{}
	if len(entry.Metadata) > 0 {
		metadata = entry.Metadata
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admin_action_logs (id, admin_id, action_type, target_type, target_identifier, metadata, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.AdminID, entry.ActionType, entry.TargetType, entry.TargetIdentifier,
		metadata, entry.IPAddress, entry.UserAgent, time.Now())
	return err
}
