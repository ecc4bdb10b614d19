package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/ledger"
	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// --- IntentStore mock ---

type mockIntents struct {
	mu      sync.Mutex
	byOrder map[string]*models.PurchaseIntent
}

func newMockIntents(intents ...*models.PurchaseIntent) *mockIntents {
	m := &mockIntents{byOrder: make(map[string]*models.PurchaseIntent)}
	for _, i := range intents {
		cp := *i
		m.byOrder[i.ProviderOrderID] = &cp
	}
	return m
}

func (m *mockIntents) GetByProviderOrderID(_ context.Context, orderID string) (*models.PurchaseIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byOrder[orderID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *i
	return &cp, nil
}

func (m *mockIntents) MarkVerified(_ context.Context, _ pgx.Tx, id uuid.UUID, paymentID string, credits int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.byOrder {
		if i.ID == id {
			i.Status = models.PurchaseStatusVerified
			i.ProviderPaymentID = &paymentID
			i.CreditsGranted = credits
			return nil
		}
	}
	return fmt.Errorf("intent %s not found", id)
}

func (m *mockIntents) Create(_ context.Context, p *models.PurchaseIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byOrder[p.ProviderOrderID] = &cp
	return nil
}

// --- Ledger mock ---

type mockLedger struct {
	mu      sync.Mutex
	credits map[string]int64
	total   int64
}

func newMockLedger() *mockLedger { return &mockLedger{credits: make(map[string]int64)} }

func (m *mockLedger) Credit(_ context.Context, _ pgx.Tx, accountID uuid.UUID, amount int64, key string) (*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prior, ok := m.credits[key]; ok {
		return &models.LedgerEntry{AccountID: accountID, Delta: prior}, ledger.ErrAlreadyApplied
	}
	m.credits[key] = amount
	m.total += amount
	return &models.LedgerEntry{AccountID: accountID, Delta: amount}, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const testSecret = "test-webhook-secret"

func sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%s|%s", orderID, paymentID)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestReconciler(intents *mockIntents, led *mockLedger, perUnit string) *Reconciler {
	cpu, err := decimal.NewFromString(perUnit)
	if err != nil {
		panic(err)
	}
	return NewReconciler(mockPool{}, intents, led, Config{WebhookSecret: testSecret, CreditsPerUnit: cpu})
}

func intent(orderID string, amount int64) *models.PurchaseIntent {
	return &models.PurchaseIntent{
		ID:              uuid.New(),
		OwnerID:         uuid.New(),
		RequestedAmount: amount,
		ProviderOrderID: orderID,
		Status:          models.PurchaseStatusCreated,
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestVerifyUnknownOrder(t *testing.T) {
	r := newTestReconciler(newMockIntents(), newMockLedger(), "0.1")
	_, err := r.Verify(context.Background(), "order_missing", "pay_1", sign("order_missing", "pay_1"))
	if !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("err: got %v, want ErrUnknownOrder", err)
	}
}

func TestVerifyInvalidSignatureMutatesNothing(t *testing.T) {
	intents := newMockIntents(intent("order_1", 500))
	led := newMockLedger()
	r := newTestReconciler(intents, led, "0.1")

	_, err := r.Verify(context.Background(), "order_1", "pay_1", "deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err: got %v, want ErrInvalidSignature", err)
	}
	if led.total != 0 {
		t.Errorf("credits granted on forged callback: %d", led.total)
	}
	got, _ := intents.GetByProviderOrderID(context.Background(), "order_1")
	if got.Status != models.PurchaseStatusCreated {
		t.Errorf("intent status changed: %q", got.Status)
	}
}

func TestVerifyGrantsFlooredCredits(t *testing.T) {
	in := intent("order_1", 500)
	intents := newMockIntents(in)
	led := newMockLedger()
	// 500 * 0.011 = 5.5, floored to 5.
	r := newTestReconciler(intents, led, "0.011")

	credits, err := r.Verify(context.Background(), "order_1", "pay_1", sign("order_1", "pay_1"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if credits != 5 {
		t.Errorf("credits: got %d, want 5", credits)
	}
	if led.total != 5 {
		t.Errorf("ledger total: got %d, want 5", led.total)
	}
	got, _ := intents.GetByProviderOrderID(context.Background(), "order_1")
	if got.Status != models.PurchaseStatusVerified {
		t.Errorf("intent status: got %q, want verified", got.Status)
	}
	if got.ProviderPaymentID == nil || *got.ProviderPaymentID != "pay_1" {
		t.Errorf("payment id not recorded: %v", got.ProviderPaymentID)
	}
	if got.CreditsGranted != 5 {
		t.Errorf("credits granted on intent: got %d, want 5", got.CreditsGranted)
	}
}

func TestVerifyReplayCreditsOnce(t *testing.T) {
	intents := newMockIntents(intent("order_1", 500))
	led := newMockLedger()
	r := newTestReconciler(intents, led, "0.01")

	sig := sign("order_1", "pay_1")
	first, err := r.Verify(context.Background(), "order_1", "pay_1", sig)
	if err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if first != 5 {
		t.Fatalf("first credits: got %d, want 5", first)
	}

	replay, err := r.Verify(context.Background(), "order_1", "pay_1", sig)
	if !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("replay err: got %v, want ErrAlreadyVerified", err)
	}
	if replay != 5 {
		t.Errorf("replay credits: got %d, want 5", replay)
	}
	if led.total != 5 {
		t.Errorf("replay granted additional credits: total %d", led.total)
	}
}

func TestVerifyRetryAfterPartialFailureIsExactlyOnce(t *testing.T) {
	// Simulates a crash between the ledger credit and marking the intent:
	// the credit landed but the intent still reads created. The retry must
	// not double-credit.
	in := intent("order_1", 100)
	intents := newMockIntents(in)
	led := newMockLedger()
	if _, err := led.Credit(context.Background(), nil, in.OwnerID, 10, "pay_1"); err != nil {
		t.Fatal(err)
	}
	r := newTestReconciler(intents, led, "0.1")

	credits, err := r.Verify(context.Background(), "order_1", "pay_1", sign("order_1", "pay_1"))
	if err != nil {
		t.Fatalf("retry Verify: %v", err)
	}
	if credits != 10 {
		t.Errorf("credits: got %d, want 10", credits)
	}
	if led.total != 10 {
		t.Errorf("retry double-credited: total %d", led.total)
	}
	got, _ := intents.GetByProviderOrderID(context.Background(), "order_1")
	if got.Status != models.PurchaseStatusVerified {
		t.Errorf("intent not verified after retry: %q", got.Status)
	}
}

func TestVerifyExpiredOrder(t *testing.T) {
	in := intent("order_1", 500)
	in.Status = models.PurchaseStatusExpired
	r := newTestReconciler(newMockIntents(in), newMockLedger(), "0.1")

	_, err := r.Verify(context.Background(), "order_1", "pay_1", sign("order_1", "pay_1"))
	if !errors.Is(err, ErrOrderExpired) {
		t.Fatalf("err: got %v, want ErrOrderExpired", err)
	}
}

// ---------------------------------------------------------------------------
// Order creation
// ---------------------------------------------------------------------------

type mockProvider struct {
	orders int
	err    error
}

func (m *mockProvider) CreateOrder(_ context.Context, amount int64, receipt string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.orders++
	return fmt.Sprintf("order_%d", m.orders), nil
}

func TestCreateIntent(t *testing.T) {
	intents := newMockIntents()
	provider := &mockProvider{}
	orders := NewOrders(provider, intents)

	owner := uuid.New()
	in, err := orders.CreateIntent(context.Background(), owner, 500)
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if in.ProviderOrderID != "order_1" {
		t.Errorf("provider order id: got %q", in.ProviderOrderID)
	}
	if in.Status != models.PurchaseStatusCreated {
		t.Errorf("status: got %q, want created", in.Status)
	}
	stored, err := intents.GetByProviderOrderID(context.Background(), "order_1")
	if err != nil {
		t.Fatalf("intent not stored: %v", err)
	}
	if stored.OwnerID != owner || stored.RequestedAmount != 500 {
		t.Errorf("stored intent: %+v", stored)
	}
}

func TestCreateIntentRejectsNonPositiveAmount(t *testing.T) {
	orders := NewOrders(&mockProvider{}, newMockIntents())
	for _, amount := range []int64{0, -5} {
		if _, err := orders.CreateIntent(context.Background(), uuid.New(), amount); err == nil {
			t.Errorf("amount %d accepted", amount)
		}
	}
}

func TestCreateIntentProviderDown(t *testing.T) {
	intents := newMockIntents()
	orders := NewOrders(&mockProvider{err: errors.New("connection refused")}, intents)

	if _, err := orders.CreateIntent(context.Background(), uuid.New(), 500); err == nil {
		t.Fatal("provider failure not surfaced")
	}
	if len(intents.byOrder) != 0 {
		t.Errorf("intent stored despite provider failure")
	}
}
