package account

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusBlocked Status = "BLOCKED"
)

const (
	RoleAdmin    = "ADMIN"
	RoleMerchant = "MERCHANT"
	RoleUser     = "USER"
)

// Account holds a user, merchant, or admin identity. Balance is in minor
// currency units and is only mutated inside atomic ledger transactions.
// CardSecretHash is unique across accounts: at most one account owns a
// given physical card at a time.
type Account struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	Email          string         `db:"email" json:"email"`
	PasswordHash   string         `db:"password_hash" json:"-"`
	Role           string         `db:"role" json:"role"`
	Balance        int64          `db:"balance" json:"balance"`
	Status         Status         `db:"status" json:"status"`
	CardSecretHash sql.NullString `db:"card_secret_hash" json:"-"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// HasCard reports whether a physical card is bound to the account.
func (a *Account) HasCard() bool {
	return a.CardSecretHash.Valid && a.CardSecretHash.String != ""
}

// ActionLog is a best-effort audit row for admin mutations.
type ActionLog struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	AdminID          uuid.UUID      `db:"admin_id" json:"admin_id"`
	ActionType       string         `db:"action_type" json:"action_type"`
	TargetType       string         `db:"target_type" json:"target_type"`
	TargetIdentifier string         `db:"target_identifier" json:"target_identifier"`
	Metadata         []byte         `db:"metadata" json:"metadata,omitempty"`
	IPAddress        sql.NullString `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent        sql.NullString `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// Admin action types
const (
	ActionCreateUser     = "CREATE_USER"
	ActionCreateMerchant = "CREATE_MERCHANT"
	ActionBlockUser      = "BLOCK_USER"
	ActionUnblockUser    = "UNBLOCK_USER"
	ActionDeleteUser     = "DELETE_USER"
	ActionTopUp          = "TOP_UP"
	ActionProvisionCard  = "PROVISION_CARD"
)
