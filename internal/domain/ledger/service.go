package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tapfinity/tapfinity-api/internal/pkg/cardsecret"
)

type Service struct {
	store  Store
	hasher *cardsecret.Hasher
}

func NewService(store Store, hasher *cardsecret.Hasher) *Service {
	return &Service{store: store, hasher: hasher}
}

// IngestResult carries the response for a device event, identical for first
// delivery and replay.
type IngestResult struct {
	TransactionID uuid.UUID
	Balance       int64
	Replayed      bool
}

// Ingest applies a device or legacy reader event exactly once. UID is the
// card secret read from the tag; ClientTxID deduplicates redeliveries.
func (s *Service) Ingest(ctx context.Context, uid, deviceID string, amount int64, txType TransactionType, clientTxID string) (*IngestResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if existing, balance, err := s.store.FindByClientTxID(ctx, clientTxID); err != nil {
		return nil, err
	} else if existing != nil {
		return &IngestResult{TransactionID: existing.ID, Balance: balance, Replayed: true}, nil
	}

	userID, err := s.store.ResolveUserByCardHash(ctx, s.hasher.Hash(uid))
	if err != nil {
		return nil, err
	}

	entry, balance, err := s.store.Apply(ctx, ApplyParams{
		UserID:     userID,
		Amount:     amount,
		Type:       txType,
		ClientTxID: clientTxID,
		DeviceID:   deviceID,
	})
	if errors.Is(err, ErrDuplicateClientTx) {
		// concurrent redelivery won the insert race
		existing, balance, findErr := s.store.FindByClientTxID(ctx, clientTxID)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, err
		}
		return &IngestResult{TransactionID: existing.ID, Balance: balance, Replayed: true}, nil
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("transaction_id", entry.ID.String()).
		Str("user_id", userID.String()).
		Int64("amount", amount).
		Str("type", string(txType)).
		Str("client_tx_id", clientTxID).
		Msg("device event applied")

	return &IngestResult{TransactionID: entry.ID, Balance: balance}, nil
}

// TopUp credits a user on behalf of an admin. Blocked accounts cannot be
// topped up; the check lives in Apply's locked read.
func (s *Service) TopUp(ctx context.Context, adminID, userID uuid.UUID, amount int64) (*Transaction, int64, error) {
	if amount <= 0 {
		return nil, 0, ErrInvalidAmount
	}

	entry, balance, err := s.store.Apply(ctx, ApplyParams{
		UserID:            userID,
		Amount:            amount,
		Type:              TypeCredit,
		ClientTxID:        uuid.New().String(),
		ApprovedByAdminID: uuid.NullUUID{UUID: adminID, Valid: true},
	})
	if err != nil {
		return nil, 0, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("admin_id", adminID.String()).
		Int64("amount", amount).
		Msg("admin top-up applied")

	return entry, balance, nil
}

func (s *Service) ListRecent(ctx context.Context, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListRecent(ctx, limit)
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]Transaction, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]Transaction, error) {
	return s.store.ListByMerchant(ctx, merchantID)
}
