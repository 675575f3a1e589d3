package payment

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusUsed    Status = "USED"
	StatusExpired Status = "EXPIRED"
)

// PaymentRequest is a merchant's ephemeral ask for payment. At most one
// transition out of PENDING ever succeeds; the conditional claim in the
// repository is the only thing enforcing that.
type PaymentRequest struct {
	ID         uuid.UUID `db:"id" json:"id"`
	MerchantID uuid.UUID `db:"merchant_id" json:"merchant_id"`
	Amount     int64     `db:"amount" json:"amount"`
	Status     Status    `db:"status" json:"status"`
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Expired reports whether the window has lapsed; the status column may
// still read PENDING until a lazy expiry write lands.
func (p *PaymentRequest) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

type AttemptStatus string

const (
	AttemptSuccess AttemptStatus = "SUCCESS"
	AttemptFailed  AttemptStatus = "FAILED"
)

// AttemptLog records one authorization attempt for audit and fraud review.
// Writes are best-effort and never block the authorization response.
type AttemptLog struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	MerchantID       uuid.UUID      `db:"merchant_id" json:"merchant_id"`
	UserID           uuid.NullUUID  `db:"user_id" json:"user_id,omitempty"`
	PaymentRequestID uuid.NullUUID  `db:"payment_request_id" json:"payment_request_id,omitempty"`
	Amount           int64          `db:"amount" json:"amount"`
	Status           AttemptStatus  `db:"status" json:"status"`
	FailureReason    sql.NullString `db:"failure_reason" json:"failure_reason,omitempty"`
	IPAddress        sql.NullString `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// Failure reasons persisted to the attempt log
const (
	ReasonNotPending          = "REQUEST_NOT_PENDING"
	ReasonExpired             = "REQUEST_EXPIRED"
	ReasonCardNotProvisioned  = "CARD_NOT_PROVISIONED"
	ReasonUserBlocked         = "USER_BLOCKED"
	ReasonInsufficientBalance = "INSUFFICIENT_BALANCE"
)

// AuthorizeResult is the success payload of a tap authorization.
type AuthorizeResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	NewBalance    int64     `json:"balance"`
	PayerName     string    `json:"payer_name"`
	PayerEmail    string    `json:"payer_email"`
}

// TapOutcome carries what the atomic authorize transaction learned, for
// both the response and the attempt log. Request is nil only when the id
// was never seen; UserID is set once a provisioned card was matched.
type TapOutcome struct {
	Result  *AuthorizeResult
	Request *PaymentRequest
	UserID  uuid.NullUUID
}
