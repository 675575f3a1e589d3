package provision

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tapfinity/tapfinity-api/internal/domain/adminpin"
	"github.com/tapfinity/tapfinity-api/internal/middleware"
	"github.com/tapfinity/tapfinity-api/internal/pkg/ratelimit"
	"github.com/tapfinity/tapfinity-api/internal/pkg/response"
	"github.com/tapfinity/tapfinity-api/internal/pkg/statushub"
	"github.com/tapfinity/tapfinity-api/internal/pkg/validator"
)

// wsWaitCap bounds how long a status stream stays open; provisioning
// windows are far shorter than this.
const wsWaitCap = time.Minute

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

type beginBody struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Pin    string `json:"pin" validate:"required,pin"`
}

type confirmBody struct {
	RequestID  string `json:"request_id" validate:"required"`
	CardSecret string `json:"card_secret" validate:"required"`
}

// Begin opens a provisioning window. Admin-only and PIN-gated.
func (h *Handler) Begin(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())

	var body beginBody
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(body); details != nil {
		response.ValidationError(w, details)
		return
	}
	userID, err := uuid.Parse(body.UserID)
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}

	req, err := h.svc.Begin(r.Context(), adminID, userID, body.Pin)
	if err != nil {
		switch {
		case errors.Is(err, adminpin.ErrPinNotSet):
			response.ForbiddenWithCode(w, "PIN_NOT_SET", "admin PIN has not been set")
		case errors.Is(err, adminpin.ErrPinLocked):
			response.ForbiddenWithCode(w, "PIN_LOCKED", "admin PIN is locked")
		case errors.Is(err, adminpin.ErrInvalidPin):
			response.ForbiddenWithCode(w, "INVALID_PIN", "invalid admin PIN")
		case errors.Is(err, ErrUserNotFound):
			response.NotFound(w, "user not found")
		case errors.Is(err, ErrUserBlocked):
			response.ConflictWithCode(w, "USER_BLOCKED", "user is blocked")
		default:
			response.InternalError(w)
		}
		return
	}

	response.Created(w, map[string]interface{}{
		"request_id": req.ID,
		"expires_at": req.ExpiresAt,
	})
}

// Confirm is called by the card writer after the secret landed on the tag.
// Public: the fresh request id is the credential. The throttle runs before
// the body is even read.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(r.Context(), middleware.ClientIP(r)) {
		response.TooManyRequests(w)
		return
	}

	var body confirmBody
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
		response.NotFound(w, "provision request not found")
		return
	}

	req, err := h.svc.Confirm(r.Context(), requestID, body.CardSecret)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(w, "provision request not found")
		case errors.Is(err, ErrAlreadyProcessed):
			response.ConflictWithCode(w, "REQUEST_NOT_PENDING", "provision request already completed or expired")
		case errors.Is(err, ErrExpired):
			response.Gone(w, "provision request expired")
		case errors.Is(err, ErrUserNotFound):
			response.NotFound(w, "user not found")
		default:
			response.InternalError(w)
		}
		return
	}

	response.OK(w, map[string]interface{}{
		"status":  req.Status,
		"user_id": req.UserID,
	})
}

// Poll returns the window's current (monotonic) status.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.NotFound(w, "provision request not found")
		return
	}

	status, err := h.svc.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "provision request not found")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]string{"status": string(status)})
}

// StatusStream pushes the window's terminal transition over a WebSocket,
// same contract as the payment stream: current state first, close after
// any terminal status.
func (h *Handler) StatusStream(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.NotFound(w, "provision request not found")
		return
	}

	status, err := h.svc.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "provision request not found")
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

// AdminRoutes returns the admin-facing router for opening windows.
func (h *Handler) AdminRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireAdmin())
	r.Post("/", h.Begin)
	return r
}

// PublicRoutes returns the card-writer-facing router.
func (h *Handler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/confirm", h.Confirm)
	r.Get("/{id}", h.Poll)
	return r
}
