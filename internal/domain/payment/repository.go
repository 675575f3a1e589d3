package payment

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
	Create(ctx context.Context, req *PaymentRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*PaymentRequest, error)
	MarkExpired(ctx context.Context, id uuid.UUID) (bool, error)
	Cancel(ctx context.Context, id, merchantID uuid.UUID) error
	AuthorizeTap(ctx context.Context, requestID uuid.UUID, secretHash string) (*TapOutcome, error)
	InsertAttemptLog(ctx context.Context, entry *AttemptLog) error
}

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, req *PaymentRequest) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_requests (id, merchant_id, amount, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, req.ID, req.MerchantID, req.Amount, req.Status, req.ExpiresAt, req.CreatedAt)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*PaymentRequest, error) {
	var req PaymentRequest
	err := r.db.GetContext(ctx, &req, `SELECT * FROM payment_requests WHERE id = $1`, id)
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
		UPDATE payment_requests
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

// Cancel is the merchant's cooperative early termination of its own
// PENDING request.
func (r *Repository) Cancel(ctx context.Context, id, merchantID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_requests
		SET status = 'EXPIRED'
		WHERE id = $1 AND merchant_id = $2 AND status = 'PENDING'
	`, id, merchantID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	req, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if req.MerchantID != merchantID {
		return ErrNotOwner
	}
	return ErrAlreadyProcessed
}

// AuthorizeTap runs the whole authorization as one database transaction.
//
// The conditional claim (UPDATE ... WHERE status='PENDING' AND expires_at >
// now()) goes first: its affected-row count is the single-winner primitive,
// and the row lock it takes serializes every concurrent tap on the same
// request. The debit and ledger insert share the claim's transaction, so a
// validation failure after the claim rolls everything back and the request
// stays PENDING and re-claimable. Exactly one concurrent caller can ever
// reach commit.
func (r *Repository) AuthorizeTap(ctx context.Context, requestID uuid.UUID, secretHash string) (*TapOutcome, error) {
	outcome := &TapOutcome{}

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE payment_requests
		SET status = 'USED'
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
		return r.classifyClaimFailure(ctx, requestID, outcome)
	}

	var req PaymentRequest
	if err := tx.GetContext(ctx, &req, `SELECT * FROM payment_requests WHERE id = $1`, requestID); err != nil {
		return nil, err
	}
	req.Status = StatusUsed
	outcome.Request = &req

	var payer struct {
		ID      uuid.UUID `db:"id"`
		Name    string    `db:"name"`
		Email   string    `db:"email"`
		Balance int64     `db:"balance"`
		Status  string    `db:"status"`
	}
	err = tx.GetContext(ctx, &payer, `
		SELECT id, name, email, balance, status
		FROM users
		WHERE card_secret_hash = $1
		FOR UPDATE
	`, secretHash)
	if errors.Is(err, sql.ErrNoRows) {
		return outcome, ErrCardNotProvisioned
	}
	if err != nil {
		return nil, err
	}
	outcome.UserID = uuid.NullUUID{UUID: payer.ID, Valid: true}

	if payer.Status != "ACTIVE" {
		return outcome, ErrUserBlocked
	}
	if payer.Balance < req.Amount {
		return outcome, ErrInsufficientBalance
	}

	newBalance := payer.Balance - req.Amount
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET balance = $1, updated_at = now() WHERE id = $2
	`, newBalance, payer.ID); err != nil {
		return nil, err
	}

	txID := uuid.New()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount, type, status, client_tx_id, merchant_id, created_at)
		VALUES ($1, $2, $3, 'DEBIT', 'SUCCESS', $4, $5, $6)
	`, txID, payer.ID, req.Amount, uuid.New().String(), req.MerchantID, time.Now()); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	outcome.Result = &AuthorizeResult{
		TransactionID: txID,
		NewBalance:    newBalance,
		PayerName:     payer.Name,
		PayerEmail:    payer.Email,
	}
	return outcome, nil
}

// classifyClaimFailure turns a zero-row claim into the precise failure the
// caller reports: never existed, already terminal, or just lapsed (which
// gets marked EXPIRED on the way out).
func (r *Repository) classifyClaimFailure(ctx context.Context, requestID uuid.UUID, outcome *TapOutcome) (*TapOutcome, error) {
	req, err := r.GetByID(ctx, requestID)
	if errors.Is(err, ErrNotFound) {
		return outcome, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	outcome.Request = req

	if req.Status != StatusPending {
		return outcome, ErrAlreadyProcessed
	}

	// PENDING but past expires_at: the claim's WHERE clause rejected it
	if _, err := r.MarkExpired(ctx, requestID); err != nil {
		return nil, err
	}
	req.Status = StatusExpired
	return outcome, ErrExpired
}

// InsertAttemptLog writes an audit row. Callers treat failures as
// best-effort: a logging error never changes the authorization result.
func (r *Repository) InsertAttemptLog(ctx context.Context, entry *AttemptLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_attempt_logs (id, merchant_id, user_id, payment_request_id, amount, status, failure_reason, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.MerchantID, entry.UserID, entry.PaymentRequestID, entry.Amount,
		entry.Status, entry.FailureReason, entry.IPAddress, time.Now())
	return err
}
