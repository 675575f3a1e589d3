package ledger

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tapfinity/tapfinity-api/internal/middleware"
	"github.com/tapfinity/tapfinity-api/internal/pkg/response"
	"github.com/tapfinity/tapfinity-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type deviceEventRequest struct {
	UID        string `json:"uid" validate:"required"`
	DeviceID   string `json:"device_id"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
	Type       string `json:"type" validate:"required,tx_type"`
	ClientTxID string `json:"client_tx_id" validate:"required"`
}

// IngestEvent accepts a top-up or debit from a physical reader. Duplicate
// client_tx_id deliveries return the original result without re-executing.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var req deviceEventRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	result, err := h.svc.Ingest(r.Context(), req.UID, req.DeviceID, req.Amount, TransactionType(req.Type), req.ClientTxID)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			response.BadRequest(w, "amount must be greater than zero")
		case errors.Is(err, ErrUserNotFound):
			response.NotFound(w, "unknown card")
		case errors.Is(err, ErrUserBlocked):
			response.ForbiddenWithCode(w, "USER_BLOCKED", "user is blocked")
		case errors.Is(err, ErrInsufficientBalance):
			response.ConflictWithCode(w, "INSUFFICIENT_BALANCE", "balance too low")
		default:
			response.InternalError(w)
		}
		return
	}

	response.OK(w, map[string]interface{}{
		"transaction_id": result.TransactionID,
		"balance":        result.Balance,
		"replayed":       result.Replayed,
	})
}

// ListRecent returns the latest ledger entries (admin view).
func (h *Handler) ListRecent(w http.ResponseWriter, r *http.Request) {
	txs, err := h.svc.ListRecent(r.Context(), 50)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{"transactions": txs})
}

// ListMine returns the calling account's own ledger entries.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	txs, err := h.svc.ListByUser(r.Context(), userID)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{"transactions": txs})
}

// ListMerchant returns entries credited to the calling merchant.
func (h *Handler) ListMerchant(w http.ResponseWriter, r *http.Request) {
	merchantID := middleware.GetUserID(r.Context())
	txs, err := h.svc.ListByMerchant(r.Context(), merchantID)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{"transactions": txs})
}

// Routes returns the ledger router.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	// Device/legacy readers authenticate out of band (network allowlist),
	// matching the original reader protocol.
	r.Post("/", h.IngestEvent)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/me", h.ListMine)
	})

	return r
}
