package ledger

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TypeCredit TransactionType = "CREDIT"
	TypeDebit  TransactionType = "DEBIT"
)

// StatusSuccess is the only persisted transaction status: failed attempts
// are recorded in the payment attempt log, never as transactions.
const StatusSuccess = "SUCCESS"

// Transaction is an immutable ledger entry, created exactly once per
// successful authorization or top-up. ClientTxID is the idempotency key.
type Transaction struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	UserID            uuid.UUID       `db:"user_id" json:"user_id"`
	Amount            int64           `db:"amount" json:"amount"`
	Type              TransactionType `db:"type" json:"type"`
	Status            string          `db:"status" json:"status"`
	ClientTxID        string          `db:"client_tx_id" json:"client_tx_id"`
	DeviceID          sql.NullString  `db:"device_id" json:"device_id,omitempty"`
	MerchantID        uuid.NullUUID   `db:"merchant_id" json:"merchant_id,omitempty"`
	ApprovedByAdminID uuid.NullUUID   `db:"approved_by_admin_id" json:"approved_by_admin_id,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}
