package adminpin

import (
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

type setPinRequest struct {
	Pin string `json:"pin" validate:"required,pin"`
}

// Set stores or rotates the calling admin's PIN.
func (h *Handler) Set(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())

	var req setPinRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	if err := h.svc.Set(r.Context(), adminID, req.Pin); err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]bool{"ok": true})
}

// Routes returns admin PIN router; callers mount it behind admin auth.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Set)
	return r
}
