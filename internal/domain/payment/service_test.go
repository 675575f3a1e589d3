package payment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tapfinity/tapfinity-api/internal/domain/payment"
	"github.com/tapfinity/tapfinity-api/internal/pkg/cardsecret"
)

type fakeUser struct {
	name     string
	email    string
	balance  int64
	status   string
	cardHash string
}

// fakeStore mirrors the repository's claim semantics: a mutex plays the
// role of the database row lock, so concurrent AuthorizeTap calls observe
// exactly the single-winner behavior of the conditional UPDATE.
type fakeStore struct {
	mu       sync.Mutex
	reqs     map[uuid.UUID]*payment.PaymentRequest
	users    map[uuid.UUID]*fakeUser
	attempts []payment.AttemptLog
	debits   int

	attemptErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reqs:  make(map[uuid.UUID]*payment.PaymentRequest),
		users: make(map[uuid.UUID]*fakeUser),
	}
}

func (f *fakeStore) Create(_ context.Context, req *payment.PaymentRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *req
	f.reqs[req.ID] = &copied
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*payment.PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok {
		return nil, payment.ErrNotFound
	}
	copied := *req
	return &copied, nil
}

func (f *fakeStore) MarkExpired(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok || req.Status != payment.StatusPending {
		return false, nil
	}
	req.Status = payment.StatusExpired
	return true, nil
}

func (f *fakeStore) Cancel(_ context.Context, id, merchantID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok {
		return payment.ErrNotFound
	}
	if req.MerchantID != merchantID {
		return payment.ErrNotOwner
	}
	if req.Status != payment.StatusPending {
		return payment.ErrAlreadyProcessed
	}
	req.Status = payment.StatusExpired
	return nil
}

func (f *fakeStore) AuthorizeTap(_ context.Context, requestID uuid.UUID, secretHash string) (*payment.TapOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	outcome := &payment.TapOutcome{}

	req, ok := f.reqs[requestID]
	if !ok {
		return outcome, payment.ErrNotFound
	}
	snapshot := *req
	outcome.Request = &snapshot

	if req.Status != payment.StatusPending {
		return outcome, payment.ErrAlreadyProcessed
	}
	if time.Now().After(req.ExpiresAt) {
		req.Status = payment.StatusExpired
		outcome.Request.Status = payment.StatusExpired
		return outcome, payment.ErrExpired
	}

	var payerID uuid.UUID
	var payer *fakeUser
	for id, u := range f.users {
		if u.cardHash == secretHash {
			payerID, payer = id, u
			break
		}
	}
	if payer == nil {
		return outcome, payment.ErrCardNotProvisioned
	}
	outcome.UserID = uuid.NullUUID{UUID: payerID, Valid: true}

	if payer.status != "ACTIVE" {
		return outcome, payment.ErrUserBlocked
	}
	if payer.balance < req.Amount {
		return outcome, payment.ErrInsufficientBalance
	}

	payer.balance -= req.Amount
	req.Status = payment.StatusUsed
	outcome.Request.Status = payment.StatusUsed
	f.debits++

	outcome.Result = &payment.AuthorizeResult{
		TransactionID: uuid.New(),
		NewBalance:    payer.balance,
		PayerName:     payer.name,
		PayerEmail:    payer.email,
	}
	return outcome, nil
}

func (f *fakeStore) InsertAttemptLog(_ context.Context, entry *payment.AttemptLog) error {
	if f.attemptErr != nil {
		return f.attemptErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, *entry)
	return nil
}

func testHasher(t *testing.T) *cardsecret.Hasher {
	t.Helper()
	h, err := cardsecret.NewHasher("test-salt")
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	return h
}

func seedRequest(store *fakeStore, amount int64, ttl time.Duration) *payment.PaymentRequest {
	req := &payment.PaymentRequest{
		ID:         uuid.New(),
		MerchantID: uuid.New(),
		Amount:     amount,
		Status:     payment.StatusPending,
		ExpiresAt:  time.Now().Add(ttl),
		CreatedAt:  time.Now(),
	}
	store.reqs[req.ID] = req
	return req
}

func seedPayer(store *fakeStore, hasher *cardsecret.Hasher, secret string, balance int64, status string) uuid.UUID {
	id := uuid.New()
	store.users[id] = &fakeUser{
		name:     "Dana Payer",
		email:    "dana@example.edu",
		balance:  balance,
		status:   status,
		cardHash: hasher.Hash(secret),
	}
	return id
}

func TestAuthorizeHappyPath(t *testing.T) {
	store := newFakeStore()
	hasher := testHasher(t)
	svc := payment.NewService(store, hasher, nil, 2*time.Minute)

	req := seedRequest(store, 100, time.Minute)
	payerID := seedPayer(store, hasher, "card-secret", 500, "ACTIVE")

	result, err := svc.Authorize(context.Background(), req.ID, "card-secret", "10.0.0.1")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if result.NewBalance != 400 {
		t.Fatalf("expected balance 400, got %d", result.NewBalance)
	}
	if store.users[payerID].balance != 400 {
		t.Fatalf("stored balance not debited: %d", store.users[payerID].balance)
	}
	if store.reqs[req.ID].Status != payment.StatusUsed {
		t.Fatalf("request not USED: %s", store.reqs[req.ID].Status)
	}
	if store.debits != 1 {
		t.Fatalf("expected exactly one debit, got %d", store.debits)
	}

	if len(store.attempts) != 1 || store.attempts[0].Status != payment.AttemptSuccess {
		t.Fatalf("expected one SUCCESS attempt log, got %+v", store.attempts)
	}
}

func TestAuthorizeConcurrentTapsSingleWinner(t *testing.T) {
	store := newFakeStore()
	hasher := testHasher(t)
	svc := payment.NewService(store, hasher, nil, 2*time.Minute)

	req := seedRequest(store, 100, time.Minute)
	payerID := seedPayer(store, hasher, "card-secret", 10_000, "ACTIVE")

	const workers = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Authorize(context.Background(), req.ID, "card-secret", "10.0.0.1")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, payment.ErrAlreadyProcessed) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly 1 successful tap, got %d", successes)
	}
	if store.users[payerID].balance != 9_900 {
		t.Fatalf("expected a single 100 debit, balance is %d", store.users[payerID].balance)
	}
	if store.debits != 1 {
		t.Fatalf("expected one debit, got %d", store.debits)
	}
}

func TestAuthorizeRepeatTapRejected(t *testing.T) {
	store := newFakeStore()
	hasher := testHasher(t)
	svc := payment.NewService(store, hasher, nil, 2*time.Minute)

	req := seedRequest(store, 100, time.Minute)
	payerID := seedPayer(store, hasher, "card-secret", 500, "ACTIVE")

	if _, err := svc.Authorize(context.Background(), req.ID, "card-secret", "ip"); err != nil {
		t.Fatalf("first tap: %v", err)
	}
	_, err := svc.Authorize(context.Background(), req.ID, "card-secret", "ip")
	if !errors.Is(err, payment.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed on repeat tap, got %v", err)
	}
	if store.users[payerID].balance != 400 {
		t.Fatalf("repeat tap changed balance: %d", store.users[payerID].balance)
	}
}

func TestAuthorizeExpiredRequest(t *testing.T) {
	store := newFakeStore()
	hasher := testHasher(t)
	svc := payment.NewService(store, hasher, nil, 2*time.Minute)

	req := seedRequest(store, 100, -time.Second)
	payerID := seedPayer(store, hasher, "card-secret", 500, "ACTIVE")

	_, err := svc.Authorize(context.Background(), req.ID, "card-secret", "ip")
	if !errors.Is(err, payment.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if store.reqs[req.ID].Status != payment.StatusExpired {
		t.Fatalf("request not lazily expired: %s", store.reqs[req.ID].Status)
	}
	if store.users[payerID].balance != 500 {
		t.Fatalf("expired request changed balance: %d", store.users[payerID].balance)
	}
}

func TestAuthorizeInsufficientBalanceLeavesRequestPending(t *testing.T) {
	store := newFakeStore()
	hasher := testHasher(t)
	svc := payment.NewService(store, hasher, nil, 2*time.Minute)

	req := seedRequest(store, 100, time.Minute)
	payerID := seedPayer(store, hasher, "card-secret", 50, "ACTIVE")

	_, err := svc.Authorize(context.Background(), req.ID, "card-secret", "ip")
	if !errors.Is(err, payment.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if store.users[payerID].balance != 50 {
		t.Fatalf("balance changed on failed authorization: %d", store.users[payerID].balance)
	}
	// the claim rolls back with the debit, so the window stays claimable
	if store.reqs[req.ID].Status != payment.StatusPending {
		t.Fatalf("request should remain PENDING, got %s", store.reqs[req.ID].Status)
	}

	if len(store.attempts) != 1 || store.attempts[0].FailureReason.String != payment.ReasonInsufficientBalance {
		t.Fatalf("expected INSUFFICIENT_BALANCE attempt log, got %+v", store.attempts)
	}
}

func TestAuthorizeUnprovisionedCard(t *testing.T) {
	store := newFakeStore()
	hasher := testHasher(t)
	svc := payment.NewService(store, hasher, nil, 2*time.Minute)

	req := seedRequest(store, 100, time.Minute)

	_, err := svc.Authorize(context.Background(), req.ID, "never-written", "ip")
	if !errors.Is(err, payment.ErrCardNotProvisioned) {
		t.Fatalf("expected ErrCardNotProvisioned, got %v", err)
	}
	if len(store.attempts) != 1 || store.attempts[0].FailureReason.String != payment.ReasonCardNotProvisioned {
		t.Fatalf("expected CARD_NOT_PROVISIONED attempt log, got %+v", store.attempts)
	}
}

func TestAuthorizeBlockedUser(t *testing.T) {
	store := newFakeStore()
	hasher := testHasher(t)
	svc := payment.NewService(store, hasher, nil, 2*time.Minute)

	req := seedRequest(store, 100, time.Minute)
	payerID := seedPayer(store, hasher, "card-secret", 500, "BLOCKED")

	_, err := svc.Authorize(context.Background(), req.ID, "card-secret", "ip")
	if !errors.Is(err, payment.ErrUserBlocked) {
		t.Fatalf("expected ErrUserBlocked, got %v", err)
	}
	if store.users[payerID].balance != 500 {
		t.Fatalf("blocked user balance changed: %d", store.users[payerID].balance)
	}
}

func TestAuthorizeUnknownRequestNotLogged(t *testing.T) {
	store := newFakeStore()
	hasher := testHasher(t)
	svc := payment.NewService(store, hasher, nil, 2*time.Minute)

	_, err := svc.Authorize(context.Background(), uuid.New(), "card-secret", "ip")
	if !errors.Is(err, payment.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(store.attempts) != 0 {
		t.Fatalf("unattributable attempt was logged: %+v", store.attempts)
	}
}

func TestAuthorizeSurvivesAttemptLogFailure(t *testing.T) {
	store := newFakeStore()
	store.attemptErr = errors.New("audit table on fire")
	hasher := testHasher(t)
	svc := payment.NewService(store, hasher, nil, 2*time.Minute)

	req := seedRequest(store, 100, time.Minute)
	seedPayer(store, hasher, "card-secret", 500, "ACTIVE")

	result, err := svc.Authorize(context.Background(), req.ID, "card-secret", "ip")
	if err != nil {
		t.Fatalf("logging failure leaked into authorization: %v", err)
	}
	if result.NewBalance != 400 {
		t.Fatalf("expected balance 400, got %d", result.NewBalance)
	}
}

func TestStatusLazyExpiry(t *testing.T) {
	store := newFakeStore()
	hasher := testHasher(t)
	svc := payment.NewService(store, hasher, nil, 2*time.Minute)

	req := seedRequest(store, 100, -time.Second)

	status, err := svc.Status(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != payment.StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", status)
	}
	if store.reqs[req.ID].Status != payment.StatusExpired {
		t.Fatalf("lazy expiry not persisted: %s", store.reqs[req.ID].Status)
	}
}

func TestCancelOnlyPendingAndOwned(t *testing.T) {
	store := newFakeStore()
	hasher := testHasher(t)
	svc := payment.NewService(store, hasher, nil, 2*time.Minute)

	req := seedRequest(store, 100, time.Minute)

	if err := svc.Cancel(context.Background(), req.ID, uuid.New()); !errors.Is(err, payment.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := svc.Cancel(context.Background(), req.ID, req.MerchantID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := svc.Cancel(context.Background(), req.ID, req.MerchantID); !errors.Is(err, payment.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed on second cancel, got %v", err)
	}
}

func TestCreateRequestRejectsNonPositiveAmount(t *testing.T) {
	store := newFakeStore()
	hasher := testHasher(t)
	svc := payment.NewService(store, hasher, nil, 2*time.Minute)

	for _, amount := range []int64{0, -5} {
		if _, err := svc.CreateRequest(context.Background(), uuid.New(), amount); !errors.Is(err, payment.ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}
