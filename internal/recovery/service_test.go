package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/customer"
	"github.com/fjod/go_cart/storefront/internal/kv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]string
	fail bool
}

func (s *recordingSender) Send(_ context.Context, recipient, content string) (bool, error) {
	if s.fail {
		return false, errors.New("smtp unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(map[string][]string)
	}
	s.sent[recipient] = append(s.sent[recipient], content)
	return true, nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, msgs := range s.sent {
		n += len(msgs)
	}
	return n
}

type fixture struct {
	svc     *Service
	tracker *customer.Tracker
	sender  *recordingSender
	carts   *kv.MemoryStore
	clock   *clock
}

func newFixture() *fixture {
	c := &clock{t: t0}
	tracker := customer.NewTracker(customer.NewMemoryRepository(), nil).WithClock(c.Now)
	sender := &recordingSender{}
	carts := kv.NewMemoryStore()
	store := domain.StoreProfile{ID: "store-1", Name: "Casa Mia", Phone: "+51 1 555 0100"}
	svc := NewService(tracker, sender, carts, store, Config{BaseURL: "https://shop.example/"}, nil).WithClock(c.Now)
	return &fixture{svc: svc, tracker: tracker, sender: sender, carts: carts, clock: c}
}

func mugCart() domain.CartSnapshot {
	line := domain.CartLine{
		LineID: "mug", ProductID: "mug", Name: "Mug",
		UnitPrice: decimal.RequireFromString("12.50"), Currency: "USD", Quantity: 2,
	}
	return domain.CartSnapshot{Lines: []domain.CartLine{line}, TotalItems: 2, Subtotal: line.Subtotal(), Currency: "USD"}
}

func (f *fixture) abandon(t *testing.T, email, phone string) string {
	t.Helper()
	id, err := f.tracker.UpsertStep1(context.Background(), customer.Identity{
		StoreID: "store-1", Email: email, Phone: phone, FullName: "Ana", Currency: "USD",
	}, mugCart())
	require.NoError(t, err)
	return id
}

func TestScan_RespectsIdleWindow(t *testing.T) {
	f := newFixture()
	f.abandon(t, "ana@example.com", "")

	got, err := f.svc.Scan(context.Background(), "store-1", 2)
	require.NoError(t, err)
	assert.Empty(t, got)

	f.clock.Advance(3 * time.Hour)
	got, err = f.svc.Scan(context.Background(), "store-1", 2)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = f.svc.Scan(context.Background(), "store-1", -1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRun_SendsAndRecordsReminder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.abandon(t, "ana@example.com", "")
	f.clock.Advance(3 * time.Hour)

	report, err := f.svc.Run(ctx, "store-1", 2)
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Sent: 1}, report)

	msgs := f.sender.sent["ana@example.com"]
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "2 x Mug")
	assert.Contains(t, msgs[0], "25.00 USD")
	assert.Contains(t, msgs[0], "https://shop.example/recover/"+id)
	assert.Contains(t, msgs[0], "Casa Mia")

	rec, err := f.tracker.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec.AbandonedCart)
	assert.True(t, rec.AbandonedCart.EmailSent)
	assert.Equal(t, 1, rec.AbandonedCart.ReminderCount)
	require.NotNil(t, rec.AbandonedCart.LastReminderAt)
	assert.Equal(t, f.clock.Now(), *rec.AbandonedCart.LastReminderAt)
}

func TestRun_FailedSendsNeverCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.abandon(t, "ana@example.com", "")
	f.clock.Advance(3 * time.Hour)
	f.sender.fail = true

	for i := 0; i < 2; i++ {
		report, err := f.svc.Run(ctx, "store-1", 2)
		require.NoError(t, err)
		assert.Equal(t, Report{Scanned: 1, Failed: 1}, report)
		f.clock.Advance(25 * time.Hour)
	}

	rec, err := f.tracker.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.AbandonedCart.ReminderCount)
	assert.False(t, rec.AbandonedCart.EmailSent)
	assert.Nil(t, rec.AbandonedCart.LastReminderAt)
}

func TestRun_CapAndInterval(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.abandon(t, "ana@example.com", "")
	f.clock.Advance(3 * time.Hour)

	report, err := f.svc.Run(ctx, "store-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)

	// too soon for another one
	f.clock.Advance(time.Hour)
	report, err = f.svc.Run(ctx, "store-1", 2)
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Skipped: 1}, report)

	for i := 0; i < 4; i++ {
		f.clock.Advance(DefaultMinInterval)
		_, err = f.svc.Run(ctx, "store-1", 2)
		require.NoError(t, err)
	}

	rec, err := f.tracker.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxReminders, rec.AbandonedCart.ReminderCount)
	assert.Equal(t, DefaultMaxReminders, f.sender.count())
}

func TestRun_PhoneOnlyCustomer(t *testing.T) {
	f := newFixture()
	f.abandon(t, "", "999 123 456")
	f.clock.Advance(3 * time.Hour)

	report, err := f.svc.Run(context.Background(), "store-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Len(t, f.sender.sent["999123456"], 1)
}

func TestRun_FinalizedCustomerIsNotReminded(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.abandon(t, "ana@example.com", "")
	require.NoError(t, f.tracker.Finalize(ctx, id, decimal.RequireFromString("25"), "USD"))
	f.clock.Advance(3 * time.Hour)

	report, err := f.svc.Run(ctx, "store-1", 2)
	require.NoError(t, err)
	assert.Zero(t, report.Sent)
	assert.Zero(t, f.sender.count())
}

func TestRun_ReturningCustomerIsRemindedAgain(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.abandon(t, "ana@example.com", "")
	require.NoError(t, f.tracker.Finalize(ctx, id, decimal.RequireFromString("25"), "USD"))

	f.clock.Advance(48 * time.Hour)
	require.Equal(t, id, f.abandon(t, "ana@example.com", ""))
	f.clock.Advance(3 * time.Hour)

	report, err := f.svc.Run(ctx, "store-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Len(t, f.sender.sent["ana@example.com"], 1)
}

func TestRun_ManyCandidatesConcurrently(t *testing.T) {
	f := newFixture()
	for _, email := range []string{"a@x.io", "b@x.io", "c@x.io", "d@x.io", "e@x.io", "f@x.io"} {
		f.abandon(t, email, "")
	}
	f.clock.Advance(3 * time.Hour)

	report, err := f.svc.Run(context.Background(), "store-1", 2)
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 6, Sent: 6}, report)
	assert.Equal(t, 6, f.sender.count())
}

func TestRestore_LoadsSavedCartIntoSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.abandon(t, "ana@example.com", "")

	snap, err := f.svc.Restore(ctx, "new-session", id)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalItems)
	assert.True(t, decimal.RequireFromString("25").Equal(snap.Subtotal))

	reopened, err := cart.Open(ctx, f.carts, "new-session")
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Snapshot().TotalItems)
}

func TestRestore_NothingSaved(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.abandon(t, "ana@example.com", "")
	require.NoError(t, f.tracker.Finalize(ctx, id, decimal.RequireFromString("25"), "USD"))

	_, err := f.svc.Restore(ctx, "s1", id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Restore(ctx, "s1", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
