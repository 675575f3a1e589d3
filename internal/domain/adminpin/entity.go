package adminpin

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// MaxFailedAttempts is the consecutive-failure threshold after which the
// PIN deactivates until rotated.
const MaxFailedAttempts = 5

type AdminPin struct {
	AdminID        uuid.UUID    `db:"admin_id" json:"admin_id"`
	PinHash        string       `db:"pin_hash" json:"-"`
	FailedAttempts int          `db:"failed_attempts" json:"failed_attempts"`
	IsActive       bool         `db:"is_active" json:"is_active"`
	RotatedAt      sql.NullTime `db:"rotated_at" json:"rotated_at,omitempty"`
	LastUsedAt     sql.NullTime `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}
