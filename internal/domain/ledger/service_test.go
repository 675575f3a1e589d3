package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/tapfinity/tapfinity-api/internal/domain/ledger"
	"github.com/tapfinity/tapfinity-api/internal/pkg/cardsecret"
)

type fakeAccount struct {
	balance  int64
	status   string
	cardHash string
}

type fakeStore struct {
	accounts map[uuid.UUID]*fakeAccount
	txs      map[string]*ledger.Transaction
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[uuid.UUID]*fakeAccount),
		txs:      make(map[string]*ledger.Transaction),
	}
}

func (f *fakeStore) FindByClientTxID(_ context.Context, clientTxID string) (*ledger.Transaction, int64, error) {
	tx, ok := f.txs[clientTxID]
	if !ok {
		return nil, 0, nil
	}
	return tx, f.accounts[tx.UserID].balance, nil
}

func (f *fakeStore) ResolveUserByCardHash(_ context.Context, secretHash string) (uuid.UUID, error) {
	for id, a := range f.accounts {
		if a.cardHash == secretHash {
			return id, nil
		}
	}
	return uuid.Nil, ledger.ErrUserNotFound
}

func (f *fakeStore) Apply(_ context.Context, params ledger.ApplyParams) (*ledger.Transaction, int64, error) {
	account, ok := f.accounts[params.UserID]
	if !ok {
		return nil, 0, ledger.ErrUserNotFound
	}
	if account.status != "ACTIVE" {
		return nil, 0, ledger.ErrUserBlocked
	}
	if _, exists := f.txs[params.ClientTxID]; exists {
		return nil, 0, ledger.ErrDuplicateClientTx
	}

	delta := params.Amount
	if params.Type == ledger.TypeDebit {
		delta = -delta
	}
	if account.balance+delta < 0 {
		return nil, 0, ledger.ErrInsufficientBalance
	}
	account.balance += delta

	entry := &ledger.Transaction{
		ID:                uuid.New(),
		UserID:            params.UserID,
		Amount:            params.Amount,
		Type:              params.Type,
		Status:            ledger.StatusSuccess,
		ClientTxID:        params.ClientTxID,
		MerchantID:        params.MerchantID,
		ApprovedByAdminID: params.ApprovedByAdminID,
	}
	f.txs[params.ClientTxID] = entry
	return entry, account.balance, nil
}

func (f *fakeStore) ListRecent(context.Context, int) ([]ledger.Transaction, error) {
	return nil, nil
}

func (f *fakeStore) ListByUser(context.Context, uuid.UUID) ([]ledger.Transaction, error) {
	return nil, nil
}

func (f *fakeStore) ListByMerchant(context.Context, uuid.UUID) ([]ledger.Transaction, error) {
	return nil, nil
}

func newTestService(t *testing.T, store *fakeStore) (*ledger.Service, *cardsecret.Hasher) {
	t.Helper()
	hasher, err := cardsecret.NewHasher("test-salt")
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	return ledger.NewService(store, hasher), hasher
}

func TestIngestIdempotent(t *testing.T) {
	store := newFakeStore()
	svc, hasher := newTestService(t, store)

	userID := uuid.New()
	store.accounts[userID] = &fakeAccount{balance: 500, status: "ACTIVE", cardHash: hasher.Hash("card-1")}

	first, err := svc.Ingest(context.Background(), "card-1", "reader-7", 100, ledger.TypeDebit, "tx-abc")
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if first.Balance != 400 {
		t.Fatalf("expected balance 400, got %d", first.Balance)
	}

	second, err := svc.Ingest(context.Background(), "card-1", "reader-7", 100, ledger.TypeDebit, "tx-abc")
	if err != nil {
		t.Fatalf("replay ingest: %v", err)
	}
	if !second.Replayed {
		t.Fatal("expected replay to be flagged")
	}
	if second.TransactionID != first.TransactionID {
		t.Fatalf("replay returned a different transaction id")
	}
	if store.accounts[userID].balance != 400 {
		t.Fatalf("replay mutated balance: %d", store.accounts[userID].balance)
	}
}

func TestIngestBlockedUser(t *testing.T) {
	store := newFakeStore()
	svc, hasher := newTestService(t, store)

	userID := uuid.New()
	store.accounts[userID] = &fakeAccount{balance: 500, status: "BLOCKED", cardHash: hasher.Hash("card-2")}

	for _, txType := range []ledger.TransactionType{ledger.TypeDebit, ledger.TypeCredit} {
		_, err := svc.Ingest(context.Background(), "card-2", "", 50, txType, "tx-"+string(txType))
		if !errors.Is(err, ledger.ErrUserBlocked) {
			t.Fatalf("%s: expected ErrUserBlocked, got %v", txType, err)
		}
	}
	if store.accounts[userID].balance != 500 {
		t.Fatalf("blocked account balance changed: %d", store.accounts[userID].balance)
	}
}

func TestIngestUnknownCard(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)

	_, err := svc.Ingest(context.Background(), "not-provisioned", "", 50, ledger.TypeDebit, "tx-1")
	if !errors.Is(err, ledger.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestIngestRejectsNonPositiveAmount(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)

	_, err := svc.Ingest(context.Background(), "card", "", 0, ledger.TypeCredit, "tx-0")
	if !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestTopUpBlockedUser(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)

	userID := uuid.New()
	store.accounts[userID] = &fakeAccount{balance: 0, status: "BLOCKED"}

	_, _, err := svc.TopUp(context.Background(), uuid.New(), userID, 100)
	if !errors.Is(err, ledger.ErrUserBlocked) {
		t.Fatalf("expected ErrUserBlocked, got %v", err)
	}
}

func TestTopUpCreditsBalance(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)

	userID := uuid.New()
	store.accounts[userID] = &fakeAccount{balance: 250, status: "ACTIVE"}

	entry, balance, err := svc.TopUp(context.Background(), uuid.New(), userID, 100)
	if err != nil {
		t.Fatalf("topup: %v", err)
	}
	if balance != 350 {
		t.Fatalf("expected balance 350, got %d", balance)
	}
	if !entry.ApprovedByAdminID.Valid {
		t.Fatal("expected approving admin recorded")
	}
	if entry.Type != ledger.TypeCredit {
		t.Fatalf("expected CREDIT entry, got %s", entry.Type)
	}
}
