package account

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tapfinity/tapfinity-api/internal/domain/adminpin"
	"github.com/tapfinity/tapfinity-api/internal/domain/ledger"
	"github.com/tapfinity/tapfinity-api/internal/middleware"
	"github.com/tapfinity/tapfinity-api/internal/pkg/response"
	"github.com/tapfinity/tapfinity-api/internal/pkg/validator"
)

// PinVerifier gates destructive admin operations behind the admin PIN.
type PinVerifier interface {
	Verify(ctx context.Context, adminID uuid.UUID, pin string) error
}

// TopUpper credits a user's balance through the ledger.
type TopUpper interface {
	TopUp(ctx context.Context, adminID, userID uuid.UUID, amount int64) (*ledger.Transaction, int64, error)
}

type Handler struct {
	svc    *Service
	pins   PinVerifier
	topups TopUpper
}

func NewHandler(svc *Service, pins PinVerifier, topups TopUpper) *Handler {
	return &Handler{svc: svc, pins: pins, topups: topups}
}

// Create provisions a new USER or MERCHANT account.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())

	var body createAccountRequest
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(body); details != nil {
		response.ValidationError(w, details)
		return
	}

	acc, err := h.svc.Create(r.Context(), body.Name, body.Email, body.Password, body.Role)
	if err != nil {
		if errors.Is(err, ErrEmailAlreadyExists) {
			response.Conflict(w, "email already registered")
			return
		}
		response.InternalError(w)
		return
	}

	action := ActionCreateUser
	if body.Role == RoleMerchant {
		action = ActionCreateMerchant
	}
	h.svc.LogAdminAction(r.Context(), adminID, action, acc.Email, nil)

	response.Created(w, acc)
}

// ListUsers returns all USER accounts.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListUsers(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, accounts)
}

// ListMerchants returns all MERCHANT accounts.
func (h *Handler) ListMerchants(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListMerchants(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, accounts)
}

// Get returns a single account.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.NotFound(w, "account not found")
		return
	}

	acc, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "account not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, acc)
}

// SetStatus blocks or unblocks an account. PIN-gated.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.NotFound(w, "account not found")
		return
	}

	var body setStatusRequest
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(body); details != nil {
		response.ValidationError(w, details)
		return
	}

	if err := h.pins.Verify(r.Context(), adminID, body.Pin); err != nil {
		h.writePinError(w, err)
		return
	}

	acc, err := h.svc.SetStatus(r.Context(), id, Status(body.Status))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(w, "account not found")
		case errors.Is(err, ErrInvalidStatus):
			response.BadRequest(w, "invalid status")
		default:
			response.InternalError(w)
		}
		return
	}

	action := ActionUnblockUser
	if acc.Status == StatusBlocked {
		action = ActionBlockUser
	}
	h.svc.LogAdminAction(r.Context(), adminID, action, acc.Email, nil)

	response.OK(w, acc)
}

// TopUp credits a user's balance through the ledger. PIN-gated.
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.NotFound(w, "account not found")
		return
	}

	var body topUpRequest
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(body); details != nil {
		response.ValidationError(w, details)
		return
	}

	if err := h.pins.Verify(r.Context(), adminID, body.Pin); err != nil {
		h.writePinError(w, err)
		return
	}

	tx, newBalance, err := h.topups.TopUp(r.Context(), adminID, id, body.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrUserNotFound):
			response.NotFound(w, "account not found")
		case errors.Is(err, ledger.ErrUserBlocked):
			response.ConflictWithCode(w, "USER_BLOCKED", "user is blocked")
		case errors.Is(err, ledger.ErrInvalidAmount):
			response.BadRequest(w, "amount must be greater than zero")
		default:
			response.InternalError(w)
		}
		return
	}

	h.svc.LogAdminAction(r.Context(), adminID, ActionTopUp, id.String(), map[string]interface{}{
		"amount":         body.Amount,
		"transaction_id": tx.ID,
	})

	response.OK(w, map[string]interface{}{
		"transaction_id": tx.ID,
		"balance":        newBalance,
	})
}

// Deactivate soft-deletes an account: blocks it, unbinds its card, zeroes
// the balance, and retires pending provisioning windows. PIN-gated.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.NotFound(w, "account not found")
		return
	}

	var body deactivateRequest
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(body); details != nil {
		response.ValidationError(w, details)
		return
	}

	if err := h.pins.Verify(r.Context(), adminID, body.Pin); err != nil {
		h.writePinError(w, err)
		return
	}

	if err := h.svc.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "account not found")
			return
		}
		response.InternalError(w)
		return
	}

	h.svc.LogAdminAction(r.Context(), adminID, ActionDeleteUser, id.String(), nil)

	response.OK(w, map[string]string{"status": "deactivated"})
}

// BlockCard freezes the calling user's own account, the "report lost
// card" path. Reporting twice is not an error.
func (h *Handler) BlockCard(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	alreadyBlocked, err := h.svc.BlockSelf(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "account not found")
			return
		}
		response.InternalError(w)
		return
	}

	status := "BLOCKED"
	if alreadyBlocked {
		status = "ALREADY_BLOCKED"
	}
	response.OK(w, map[string]string{"status": status})
}

func (h *Handler) writePinError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, adminpin.ErrPinNotSet):
		response.ForbiddenWithCode(w, "PIN_NOT_SET", "admin PIN has not been set")
	case errors.Is(err, adminpin.ErrPinLocked):
		response.ForbiddenWithCode(w, "PIN_LOCKED", "admin PIN is locked")
	case errors.Is(err, adminpin.ErrInvalidPin):
		response.ForbiddenWithCode(w, "INVALID_PIN", "invalid admin PIN")
	default:
		response.InternalError(w)
	}
}

// Routes returns the admin account-management router, mounted under
// /admin/users.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireAdmin())
	r.Post("/", h.Create)
	r.Get("/", h.ListUsers)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.SetStatus)
	r.Post("/{id}/topup", h.TopUp)
	r.Post("/{id}/deactivate", h.Deactivate)
	return r
}

// SelfRoutes returns the user-facing router, mounted under /user.
func (h *Handler) SelfRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireRole(middleware.RoleUser))
	r.Post("/block-card", h.BlockCard)
	return r
}
