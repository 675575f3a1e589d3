package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Store is the persistence surface the service needs. *Repository is the
// Postgres implementation; tests swap in a fake.
type Store interface {
	FindByClientTxID(ctx context.Context, clientTxID string) (*Transaction, int64, error)
	Apply(ctx context.Context, params ApplyParams) (*Transaction, int64, error)
	ResolveUserByCardHash(ctx context.Context, secretHash string) (uuid.UUID, error)
	ListRecent(ctx context.Context, limit int) ([]Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Transaction, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]Transaction, error)
}

// ApplyParams describes one atomic balance mutation. Amount is always
// positive; Type decides the sign.
type ApplyParams struct {
	UserID            uuid.UUID
	Amount            int64
	Type              TransactionType
	ClientTxID        string
	DeviceID          string
	MerchantID        uuid.NullUUID
	ApprovedByAdminID uuid.NullUUID
}

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// FindByClientTxID returns an existing transaction and the account's current
// balance, for idempotent replay responses.
func (r *Repository) FindByClientTxID(ctx context.Context, clientTxID string) (*Transaction, int64, error) {
	var tx Transaction
	err := r.db.GetContext(ctx, &tx, `SELECT * FROM transactions WHERE client_tx_id = $1`, clientTxID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	var balance int64
	if err := r.db.GetContext(ctx, &balance, `SELECT balance FROM users WHERE id = $1`, tx.UserID); err != nil {
		return nil, 0, err
	}
	return &tx, balance, nil
}

// ResolveUserByCardHash maps a hashed card secret to its owning account.
func (r *Repository) ResolveUserByCardHash(ctx context.Context, secretHash string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.GetContext(ctx, &id, `SELECT id FROM users WHERE card_secret_hash = $1`, secretHash)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrUserNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Apply mutates the balance and writes the ledger row in one transaction.
// The account row is locked FOR UPDATE so balance and ledger never diverge
// under concurrent writers; a client_tx_id unique violation means a
// concurrent duplicate won, and the original row is returned instead.
func (r *Repository) Apply(ctx context.Context, params ApplyParams) (*Transaction, int64, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	var account struct {
		Balance int64  `db:"balance"`
		Status  string `db:"status"`
	}
	err = tx.GetContext(ctx, &account, `SELECT balance, status FROM users WHERE id = $1 FOR UPDATE`, params.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrUserNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	if account.Status != "ACTIVE" {
		return nil, 0, ErrUserBlocked
	}

	delta := params.Amount
	if params.Type == TypeDebit {
		delta = -delta
	}
	nextBalance := account.Balance + delta
	if nextBalance < 0 {
		return nil, 0, ErrInsufficientBalance
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET balance = $1, updated_at = now() WHERE id = $2
	`, nextBalance, params.UserID); err != nil {
		return nil, 0, err
	}

	entry := &Transaction{
		ID:                uuid.New(),
		UserID:            params.UserID,
		Amount:            params.Amount,
		Type:              params.Type,
		Status:            StatusSuccess,
		ClientTxID:        params.ClientTxID,
		MerchantID:        params.MerchantID,
		ApprovedByAdminID: params.ApprovedByAdminID,
		CreatedAt:         time.Now(),
	}
	if params.DeviceID != "" {
		entry.DeviceID = sql.NullString{String: params.DeviceID, Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount, type, status, client_tx_id, device_id, merchant_id, approved_by_admin_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.ID, entry.UserID, entry.Amount, entry.Type, entry.Status, entry.ClientTxID,
		entry.DeviceID, entry.MerchantID, entry.ApprovedByAdminID, entry.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, 0, ErrDuplicateClientTx
		}
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	return entry, nextBalance, nil
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Transaction, error) {
	txs := []Transaction{}
	err := r.db.SelectContext(ctx, &txs, `
		SELECT * FROM transactions ORDER BY created_at DESC LIMIT $1
	`, limit)
	return txs, err
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Transaction, error) {
	txs := []Transaction{}
	err := r.db.SelectContext(ctx, &txs, `
		SELECT * FROM transactions WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	return txs, err
}

func (r *Repository) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]Transaction, error) {
	txs := []Transaction{}
	err := r.db.SelectContext(ctx, &txs, `
		SELECT * FROM transactions WHERE merchant_id = $1 ORDER BY created_at DESC
	`, merchantID)
	return txs, err
}
