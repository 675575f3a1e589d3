package provision

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tapfinity/tapfinity-api/internal/domain/account"
	"github.com/tapfinity/tapfinity-api/internal/pkg/cardsecret"
	"github.com/tapfinity/tapfinity-api/internal/pkg/statushub"
)

// AccountReader resolves the target user of a provisioning window.
type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error)
}

// PinVerifier gates window creation behind the admin PIN.
type PinVerifier interface {
	Verify(ctx context.Context, adminID uuid.UUID, pin string) error
}

type Service struct {
	store    Store
	accounts AccountReader
	pins     PinVerifier
	hasher   *cardsecret.Hasher
	hub      *statushub.Hub
	ttl      time.Duration

	now func() time.Time
}

func NewService(store Store, accounts AccountReader, pins PinVerifier, hasher *cardsecret.Hasher, hub *statushub.Hub, ttl time.Duration) *Service {
	return &Service{
		store:    store,
		accounts: accounts,
		pins:     pins,
		hasher:   hasher,
		hub:      hub,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Begin opens a provisioning window for the target user after the admin's
// PIN checks out. Any other pending window for the user is retired by the
// repository in the same transaction.
func (s *Service) Begin(ctx context.Context, adminID, userID uuid.UUID, pin string) (*ProvisionRequest, error) {
	if err := s.pins.Verify(ctx, adminID, pin); err != nil {
		return nil, err
	}

	target, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if target.Status != account.StatusActive {
		return nil, ErrUserBlocked
	}

	now := s.now()
	req := &ProvisionRequest{
		ID:                 uuid.New(),
		UserID:             userID,
		RequestedByAdminID: adminID,
		Status:             StatusPending,
		ExpiresAt:          now.Add(s.ttl),
		CreatedAt:          now,
	}
	if err := s.store.Create(ctx, req); err != nil {
		return nil, err
	}

	log.Info().
		Str("request_id", req.ID.String()).
		Str("user_id", userID.String()).
		Str("admin_id", adminID.String()).
		Msg("card provisioning window opened")

	return req, nil
}

// Confirm is called by the card writer once the secret has been written to
// the physical tag. The claim and the hash binding are one transaction;
// whoever held this hash before loses it. The handler throttles before
// anything reaches here.
func (s *Service) Confirm(ctx context.Context, requestID uuid.UUID, cardSecret string) (*ProvisionRequest, error) {
	req, err := s.store.Confirm(ctx, requestID, s.hasher.Hash(cardSecret))
	if err != nil {
		if errors.Is(err, ErrExpired) {
			s.publish(ctx, requestID, StatusExpired)
		}
		return nil, err
	}

	s.publish(ctx, requestID, StatusCompleted)
	log.Info().
		Str("request_id", requestID.String()).
		Str("user_id", req.UserID.String()).
		Msg("card provisioned")

	return req, nil
}

// Status reads the current window state, lazily expiring a lapsed one.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (Status, error) {
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	if req.Status == StatusPending && req.Expired(s.now()) {
		expired, err := s.store.MarkExpired(ctx, id)
		if err != nil {
			return "", err
		}
		if expired {
			s.publish(ctx, id, StatusExpired)
		}
		return StatusExpired, nil
	}

	return req.Status, nil
}

func (s *Service) publish(ctx context.Context, id uuid.UUID, status Status) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(ctx, statushub.Event{
		RequestID: id.String(),
		Kind:      "provision",
		Status:    string(status),
	})
}
