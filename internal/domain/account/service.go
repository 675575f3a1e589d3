package account

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tapfinity/tapfinity-api/internal/pkg/password"
)

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, name, email, plainPassword, role string) (*Account, error) {
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := password.Hash(plainPassword)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	a := &Account{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Balance:      0,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	log.Info().Str("account_id", a.ID.String()).Str("role", role).Msg("account created")
	return a, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context) ([]Account, error) {
	return s.repo.ListByRole(ctx, RoleUser)
}

func (s *Service) ListMerchants(ctx context.Context) ([]Account, error) {
	return s.repo.ListByRole(ctx, RoleMerchant)
}

func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Account, error) {
	if status != StatusActive && status != StatusBlocked {
		return nil, ErrInvalidStatus
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	log.Info().Str("account_id", id.String()).Str("status", string(status)).Msg("account status changed")
	return s.repo.GetByID(ctx, id)
}

// BlockSelf lets a user freeze their own account after losing the card.
// Repeat reports are fine: the call is idempotent and tells the caller
// whether the account was already frozen.
func (s *Service) BlockSelf(ctx context.Context, id uuid.UUID) (alreadyBlocked bool, err error) {
	acc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if acc.Status == StatusBlocked {
		return true, nil
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusBlocked); err != nil {
		return false, err
	}
	log.Info().Str("account_id", id.String()).Msg("account self-blocked, card reported lost")
	return false, nil
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("account_id", id.String()).Msg("account soft-deleted")
	return nil
}

// LogAdminAction writes an audit row. Errors are logged, never propagated.
func (s *Service) LogAdminAction(ctx context.Context, adminID uuid.UUID, actionType, targetIdentifier string, metadata map[string]interface{}) {
	entry := &ActionLog{
		ID:               uuid.New(),
		AdminID:          adminID,
		ActionType:       actionType,
		TargetType:       "USER",
		TargetIdentifier: targetIdentifier,
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = raw
		}
	}
	if err := s.repo.InsertActionLog(ctx, entry); err != nil {
		log.Warn().Err(err).Str("action", actionType).Msg("failed to write admin action log")
	}
}
