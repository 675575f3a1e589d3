package provision

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
)

// ProvisionRequest is a short-lived window during which a physical card
// write may bind a new secret to the target user. Starting a new window
// expires any other pending one for the same user, so at most one is
// claimable at a time.
type ProvisionRequest struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	UserID             uuid.UUID `db:"user_id" json:"user_id"`
	RequestedByAdminID uuid.UUID `db:"requested_by_admin_id" json:"requested_by_admin_id"`
	Status             Status    `db:"status" json:"status"`
	ExpiresAt          time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

func (p *ProvisionRequest) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
