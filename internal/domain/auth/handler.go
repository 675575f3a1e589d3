package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tapfinity/tapfinity-api/internal/domain/account"
	"github.com/tapfinity/tapfinity-api/internal/middleware"
	"github.com/tapfinity/tapfinity-api/internal/pkg/response"
	"github.com/tapfinity/tapfinity-api/internal/pkg/validator"
)

// MeReader loads the caller's own account for the /me endpoint.
type MeReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error)
}

type Handler struct {
	svc      *Service
	accounts MeReader
}

func NewHandler(svc *Service, accounts MeReader) *Handler {
	return &Handler{svc: svc, accounts: accounts}
}

type loginBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(body); details != nil {
		response.ValidationError(w, details)
		return
	}

	result, err := h.svc.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(w, "invalid email or password")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{
		"token": result.Token,
		"user": map[string]interface{}{
			"id":    result.Account.ID,
			"name":  result.Account.Name,
			"email": result.Account.Email,
			"role":  result.Account.Role,
		},
	})
}

// Me handles GET /auth/me for the authenticated account.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	acc, err := h.accounts.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			response.NotFound(w, "account not found")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, acc)
}

// Routes returns the auth router. Login is public; /me requires a token.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/me", h.Me)
	})
	return r
}
