package adminpin

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tapfinity/tapfinity-api/internal/pkg/password"
)

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Verify checks the admin's PIN. Each consecutive failure increments the
// counter; at MaxFailedAttempts the PIN deactivates and every further
// attempt fails with ErrPinLocked until the PIN is rotated, even if correct.
func (s *Service) Verify(ctx context.Context, adminID uuid.UUID, pin string) error {
	record, err := s.store.Get(ctx, adminID)
	if err != nil {
		return err
	}

	if !record.IsActive {
		return ErrPinLocked
	}

	if !password.Verify(pin, record.PinHash) {
		failed := record.FailedAttempts + 1
		if err := s.store.RecordFailure(ctx, adminID, failed, failed < MaxFailedAttempts); err != nil {
			log.Error().Err(err).Str("admin_id", adminID.String()).Msg("failed to record PIN failure")
		}
		if failed >= MaxFailedAttempts {
			log.Warn().Str("admin_id", adminID.String()).Msg("admin PIN locked")
			return ErrPinLocked
		}
		return ErrInvalidPin
	}

	if err := s.store.RecordSuccess(ctx, adminID); err != nil {
		log.Error().Err(err).Str("admin_id", adminID.String()).Msg("failed to reset PIN failure counter")
	}
	return nil
}

// Set stores or rotates a 6-digit PIN. Format validation happens at the
// handler; rotation clears any lockout.
func (s *Service) Set(ctx context.Context, adminID uuid.UUID, pin string) error {
	hash, err := password.Hash(pin)
	if err != nil {
		return err
	}
	if err := s.store.Upsert(ctx, adminID, hash); err != nil {
		return err
	}
	log.Info().Str("admin_id", adminID.String()).Msg("admin PIN set")
	return nil
}
