package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tapfinity/tapfinity-api/internal/pkg/cardsecret"
	"github.com/tapfinity/tapfinity-api/internal/pkg/statushub"
)

type Service struct {
	store  Store
	hasher *cardsecret.Hasher
	hub    *statushub.Hub
	ttl    time.Duration

	now func() time.Time
}

func NewService(store Store, hasher *cardsecret.Hasher, hub *statushub.Hub, ttl time.Duration) *Service {
	return &Service{
		store:  store,
		hasher: hasher,
		hub:    hub,
		ttl:    ttl,
		now:    time.Now,
	}
}

// CreateRequest opens a merchant's payment window with the configured TTL.
func (s *Service) CreateRequest(ctx context.Context, merchantID uuid.UUID, amount int64) (*PaymentRequest, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	now := s.now()
	req := &PaymentRequest{
		ID:         uuid.New(),
		MerchantID: merchantID,
		Amount:     amount,
		Status:     StatusPending,
		ExpiresAt:  now.Add(s.ttl),
		CreatedAt:  now,
	}
	if err := s.store.Create(ctx, req); err != nil {
		return nil, err
	}

	log.Info().
		Str("request_id", req.ID.String()).
		Str("merchant_id", merchantID.String()).
		Int64("amount", amount).
		Msg("payment request created")

	return req, nil
}

// Status reads the current request state, lazily expiring a lapsed window.
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

// Cancel is the merchant's best-effort early termination; expiry remains
// the backstop for abandoned windows.
func (s *Service) Cancel(ctx context.Context, id, merchantID uuid.UUID) error {
	if err := s.store.Cancel(ctx, id, merchantID); err != nil {
		return err
	}
	s.publish(ctx, id, StatusExpired)
	log.Info().Str("request_id", id.String()).Msg("payment request cancelled")
	return nil
}

// Authorize resolves a tapped card against a pending request and performs
// the atomic debit. The handler throttles before anything reaches here.
// Every outcome that reached the request is recorded in the attempt log;
// log failures never change the result.
func (s *Service) Authorize(ctx context.Context, requestID uuid.UUID, cardSecret, clientIP string) (*AuthorizeResult, error) {
	outcome, err := s.store.AuthorizeTap(ctx, requestID, s.hasher.Hash(cardSecret))
	if err != nil {
		s.logFailedAttempt(outcome, err, clientIP)
		if errors.Is(err, ErrExpired) {
			s.publish(ctx, requestID, StatusExpired)
		}
		return nil, err
	}

	s.logAttempt(&AttemptLog{
		ID:               uuid.New(),
		MerchantID:       outcome.Request.MerchantID,
		UserID:           outcome.UserID,
		PaymentRequestID: uuid.NullUUID{UUID: requestID, Valid: true},
		Amount:           outcome.Request.Amount,
		Status:           AttemptSuccess,
		IPAddress:        nullString(clientIP),
	})
	s.publish(ctx, requestID, StatusUsed)

	log.Info().
		Str("request_id", requestID.String()).
		Str("transaction_id", outcome.Result.TransactionID.String()).
		Int64("amount", outcome.Request.Amount).
		Msg("tap authorized")

	return outcome.Result, nil
}

func (s *Service) logFailedAttempt(outcome *TapOutcome, cause error, clientIP string) {
	// nothing to attribute the attempt to when the id was never seen
	if outcome == nil || outcome.Request == nil {
		return
	}

	var reason string
	switch {
	case errors.Is(cause, ErrAlreadyProcessed):
		reason = ReasonNotPending
	case errors.Is(cause, ErrExpired):
		reason = ReasonExpired
	case errors.Is(cause, ErrCardNotProvisioned):
		reason = ReasonCardNotProvisioned
	case errors.Is(cause, ErrUserBlocked):
		reason = ReasonUserBlocked
	case errors.Is(cause, ErrInsufficientBalance):
		reason = ReasonInsufficientBalance
	default:
		return
	}

	s.logAttempt(&AttemptLog{
		ID:               uuid.New(),
		MerchantID:       outcome.Request.MerchantID,
		UserID:           outcome.UserID,
		PaymentRequestID: uuid.NullUUID{UUID: outcome.Request.ID, Valid: true},
		Amount:           outcome.Request.Amount,
		Status:           AttemptFailed,
		FailureReason:    nullString(reason),
		IPAddress:        nullString(clientIP),
	})
}

func (s *Service) logAttempt(entry *AttemptLog) {
	// detached context: the attempt log must outlive a cancelled request
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.InsertAttemptLog(ctx, entry); err != nil {
		log.Warn().Err(err).Str("merchant_id", entry.MerchantID.String()).Msg("failed to write payment attempt log")
	}
}

func (s *Service) publish(ctx context.Context, id uuid.UUID, status Status) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(ctx, statushub.Event{
		RequestID: id.String(),
		Kind:      "payment",
		Status:    string(status),
	})
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
