package payment_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tapfinity/tapfinity-api/internal/domain/payment"
)

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(context.Context, string) bool { return true }

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(context.Context, string) bool { return false }

type apiResponse struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doAuthorize(t *testing.T, h *payment.Handler, body string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/nfc/authorize", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.9:40112"
	rec := httptest.NewRecorder()

	h.Authorize(rec, req)

	var parsed apiResponse
	if err := json.NewDecoder(rec.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rec, parsed
}

func TestAuthorizeHandlerThrottledBeforeBodyRead(t *testing.T) {
	store := newFakeStore()
	hasher := testHasher(t)
	svc := payment.NewService(store, hasher, nil, 2*time.Minute)
	h := payment.NewHandler(svc, nil, denyAllLimiter{}, nil)

	// a malformed body must still cost the caller their budget: the 429
	// wins over the 400 the decoder would produce
	rec, parsed := doAuthorize(t, h, `{"request_id": "broken`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if parsed.Error == nil || parsed.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Fatalf("expected RATE_LIMIT_EXCEEDED, got %+v", parsed.Error)
	}
	if len(store.attempts) != 0 {
		t.Fatalf("throttled request reached the store: %+v", store.attempts)
	}
}

func TestAuthorizeHandlerMalformedBody(t *testing.T) {
	store := newFakeStore()
	hasher := testHasher(t)
	svc := payment.NewService(store, hasher, nil, 2*time.Minute)
	h := payment.NewHandler(svc, nil, allowAllLimiter{}, nil)

	rec, parsed := doAuthorize(t, h, `{"request_id": "broken`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if parsed.Error == nil || parsed.Error.Code != "BAD_REQUEST" {
		t.Fatalf("expected BAD_REQUEST, got %+v", parsed.Error)
	}
}

func TestAuthorizeHandlerHappyPath(t *testing.T) {
	store := newFakeStore()
	hasher := testHasher(t)
	svc := payment.NewService(store, hasher, nil, 2*time.Minute)
	h := payment.NewHandler(svc, nil, allowAllLimiter{}, nil)

	req := seedRequest(store, 150, time.Minute)
	seedPayer(store, hasher, "card-secret", 500, "ACTIVE")

	body := fmt.Sprintf(`{"request_id":%q,"card_secret":"card-secret"}`, req.ID)
	rec, parsed := doAuthorize(t, h, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if parsed.Data["balance"].(float64) != 350 {
		t.Fatalf("expected balance 350, got %v", parsed.Data["balance"])
	}

	// the window is consumed; the same tap replayed maps to a conflict
	rec, parsed = doAuthorize(t, h, body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on replay, got %d", rec.Code)
	}
	if parsed.Error == nil || parsed.Error.Code != "REQUEST_NOT_PENDING" {
		t.Fatalf("expected REQUEST_NOT_PENDING, got %+v", parsed.Error)
	}
}
