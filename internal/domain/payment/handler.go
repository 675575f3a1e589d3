package payment

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tapfinity/tapfinity-api/internal/middleware"
	"github.com/tapfinity/tapfinity-api/internal/pkg/ratelimit"
	"github.com/tapfinity/tapfinity-api/internal/pkg/response"
	"github.com/tapfinity/tapfinity-api/internal/pkg/statushub"
	"github.com/tapfinity/tapfinity-api/internal/pkg/validator"
)

// wsWaitCap bounds how long a status stream stays open; every request TTL
// is well under this.
const wsWaitCap = 3 * time.Minute

type Handler struct {
	svc     *Service
	hub     *statushub.Hub
	limiter ratelimit.Limiter

	upgrader websocket.Upgrader
}

func NewHandler(svc *Service, hub *statushub.Hub, limiter ratelimit.Limiter, allowedOrigins []string) *Handler {
	return &Handler{
		svc:     svc,
		hub:     hub,
		limiter: limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  512,
			WriteBufferSize: 512,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}
				return false
			},
		},
	}
}

type createRequestBody struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type authorizeBody struct {
	RequestID  string `json:"request_id" validate:"required"`
	CardSecret string `json:"card_secret" validate:"required"`
}

// Create opens a new payment window for the calling merchant.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	merchantID := middleware.GetUserID(r.Context())

	var body createRequestBody
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(body); details != nil {
		response.ValidationError(w, details)
		return
	}

	req, err := h.svc.CreateRequest(r.Context(), merchantID, body.Amount)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			response.BadRequest(w, "amount must be greater than zero")
			return
		}
		response.InternalError(w)
		return
	}

	response.Created(w, map[string]interface{}{
		"request_id": req.ID,
		"expires_at": req.ExpiresAt,
	})
}

// Poll returns the request's current (monotonic) status.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.NotFound(w, "payment request not found")
		return
	}

	status, err := h.svc.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "payment request not found")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]string{"status": string(status)})
}

// Cancel terminates the calling merchant's own pending request.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	merchantID := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.NotFound(w, "payment request not found")
		return
	}

	if err := h.svc.Cancel(r.Context(), id, merchantID); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(w, "payment request not found")
		case errors.Is(err, ErrNotOwner):
			response.Forbidden(w, "payment request belongs to another merchant")
		case errors.Is(err, ErrAlreadyProcessed):
			response.Conflict(w, "payment request already used or expired")
		default:
			response.InternalError(w)
		}
		return
	}

	response.OK(w, map[string]string{"status": string(StatusExpired)})
}

// Authorize handles the physical card tap. Public: the card secret is the
// credential. The throttle runs before the body is even read, so malformed
// floods consume the same budget as real attempts.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	clientIP := middleware.ClientIP(r)
	if !h.limiter.Allow(r.Context(), clientIP) {
		response.TooManyRequests(w)
		return
	}

	var body authorizeBody
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(body); details != nil {
		response.ValidationError(w, details)
		return
	}

	requestID, err := uuid.Parse(body.RequestID)
	if err != nil {
		response.NotFound(w, "invalid payment request")
		return
	}

	result, err := h.svc.Authorize(r.Context(), requestID, body.CardSecret, clientIP)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(w, "invalid payment request")
		case errors.Is(err, ErrAlreadyProcessed):
			response.ConflictWithCode(w, "REQUEST_NOT_PENDING", "payment request already used or expired")
		case errors.Is(err, ErrExpired):
			response.Gone(w, "payment request expired")
		case errors.Is(err, ErrCardNotProvisioned):
			response.ForbiddenWithCode(w, "CARD_NOT_PROVISIONED", "invalid or unprovisioned card")
		case errors.Is(err, ErrUserBlocked):
			response.ForbiddenWithCode(w, "USER_BLOCKED", "user is blocked")
		case errors.Is(err, ErrInsufficientBalance):
			response.ConflictWithCode(w, "INSUFFICIENT_BALANCE", "insufficient balance")
		default:
			response.InternalError(w)
		}
		return
	}

	response.OK(w, map[string]interface{}{
		"transaction_id": result.TransactionID,
		"balance":        result.NewBalance,
		"user": map[string]string{
			"name":  result.PayerName,
			"email": result.PayerEmail,
		},
	})
}

// StatusStream is the push alternative to polling: one WebSocket per
// request id, fed terminal transitions by the status hub. The database
// status field stays authoritative, so the current state is sent first and
// the socket closes after any terminal status.
func (h *Handler) StatusStream(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.NotFound(w, "payment request not found")
		return
	}

	status, err := h.svc.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "payment request not found")
			return
		}
		response.InternalError(w)
		return
	}

	events, cancel := h.hub.Subscribe(id.String())
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	writeStatus := func(s string) error {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(map[string]string{"status": s})
	}

	if err := writeStatus(string(status)); err != nil {
		return
	}
	if status != StatusPending {
		return
	}

	timeout := time.NewTimer(wsWaitCap)
	defer timeout.Stop()

	for {
		select {
		case event := <-events:
			if err := writeStatus(event.Status); err != nil {
				return
			}
			if event.Status != string(StatusPending) {
				return
			}
		case <-timeout.C:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// Routes returns the merchant-facing payment request router.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireMerchant())
	r.Post("/", h.Create)
	r.Get("/{id}", h.Poll)
	r.Delete("/{id}", h.Cancel)
	return r
}
