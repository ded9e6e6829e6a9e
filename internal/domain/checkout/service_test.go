package checkout

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/academy-ledger/internal/domain/cart"
	"github.com/xenking/academy-ledger/internal/domain/catalog"
	"github.com/xenking/academy-ledger/internal/domain/commission"
	"github.com/xenking/academy-ledger/internal/domain/enrollment"
	"github.com/xenking/academy-ledger/internal/domain/purchase"
	"github.com/xenking/academy-ledger/internal/domain/referral"
	"github.com/xenking/academy-ledger/internal/events"
)

// --- Mock implementations ---

type enrollmentKey struct {
	userID int64
	ref    catalog.ItemRef
}

type memState struct {
	carts       map[int64]*cart.Cart
	codes       map[int64]*referral.Code
	purchases   map[string]*purchase.Purchase
	usages      []referral.Usage
	commissions []commission.Commission
	enrollments map[enrollmentKey]enrollment.Enrollment
}

func (s *memState) clone() *memState {
	out := &memState{
		carts:       make(map[int64]*cart.Cart, len(s.carts)),
		codes:       make(map[int64]*referral.Code, len(s.codes)),
		purchases:   make(map[string]*purchase.Purchase, len(s.purchases)),
		usages:      append([]referral.Usage(nil), s.usages...),
		commissions: append([]commission.Commission(nil), s.commissions...),
		enrollments: make(map[enrollmentKey]enrollment.Enrollment, len(s.enrollments)),
	}
	for k, c := range s.carts {
		cp := *c
		cp.Items = append([]cart.Item(nil), c.Items...)
		out.carts[k] = &cp
	}
	for k, c := range s.codes {
		cp := *c
		out.codes[k] = &cp
	}
	for k, p := range s.purchases {
		cp := *p
		out.purchases[k] = &cp
	}
	for k, e := range s.enrollments {
		out.enrollments[k] = e
	}
	return out
}

// memStore is an in-memory Store. A transaction works on the live state and
// restores a snapshot when fn fails.
type memStore struct {
	state   *memState
	failOn  string
	takeUse int64
	seq     int64
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		carts:       map[int64]*cart.Cart{},
		codes:       map[int64]*referral.Code{},
		purchases:   map[string]*purchase.Purchase{},
		enrollments: map[enrollmentKey]enrollment.Enrollment{},
	}}
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	snapshot := m.state.clone()
	if err := fn(ctx, memTx{m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *memStore) next() int64 {
	m.seq++
	return m.seq
}

func (m *memStore) fail(op string) error {
	if m.failOn == op {
		return errors.Errorf("%s: connection reset", op)
	}
	return nil
}

type memTx struct{ m *memStore }

func (t memTx) Carts() CartStore                   { return memCarts{t.m} }
func (t memTx) Referrals() ReferralStore           { return memReferrals{t.m} }
func (t memTx) Purchases() PurchaseStore           { return memPurchases{t.m} }
func (t memTx) Commissions() CommissionStore       { return memCommissions{t.m} }
func (t memTx) Enrollments() enrollment.Repository { return memEnrollments{t.m} }

type memCarts struct{ m *memStore }

func (c memCarts) LockForCheckout(_ context.Context, userID int64) (*cart.Cart, error) {
	if err := c.m.fail("cart.lock"); err != nil {
		return nil, err
	}
	stored, ok := c.m.state.carts[userID]
	if !ok {
		return nil, nil
	}
	cp := *stored
	cp.Items = append([]cart.Item(nil), stored.Items...)
	if stored.Referral != nil {
		code := *c.m.state.codes[stored.Referral.ID]
		cp.Referral = &code
	}
	return &cp, nil
}

func (c memCarts) Clear(_ context.Context, cartID int64) error {
	if err := c.m.fail("cart.clear"); err != nil {
		return err
	}
	for _, stored := range c.m.state.carts {
		if stored.ID == cartID {
			stored.Items = nil
			stored.Referral = nil
		}
	}
	return nil
}

type memReferrals struct{ m *memStore }

func (r memReferrals) ConsumeUse(_ context.Context, codeID int64) error {
	if err := r.m.fail("referral.consume"); err != nil {
		return err
	}
	code, ok := r.m.state.codes[codeID]
	if !ok {
		return referral.ErrCodeNotFound
	}
	if r.m.takeUse == codeID {
		code.CurrentUses++
	}
	if err := code.Check(); err != nil {
		return err
	}
	code.CurrentUses++
	return nil
}

type memPurchases struct{ m *memStore }

func (p memPurchases) Create(_ context.Context, pu *purchase.Purchase) error {
	if err := p.m.fail("purchase.create"); err != nil {
		return err
	}
	cp := *pu
	p.m.state.purchases[pu.ID] = &cp
	return nil
}

func (p memPurchases) LockByIDs(_ context.Context, ids []string) ([]purchase.Purchase, error) {
	var out []purchase.Purchase
	for _, id := range ids {
		if pu, ok := p.m.state.purchases[id]; ok {
			out = append(out, *pu)
		}
	}
	return out, nil
}

func (p memPurchases) UpdateStatus(_ context.Context, id string, status purchase.Status, txnID string) (*purchase.Purchase, error) {
	pu, ok := p.m.state.purchases[id]
	if !ok {
		return nil, purchase.ErrNotFound
	}
	pu.Status = status
	pu.TransactionID = txnID
	pu.UpdatedAt = pu.UpdatedAt.Add(time.Minute)
	cp := *pu
	return &cp, nil
}

type memCommissions struct{ m *memStore }

func (c memCommissions) CreateUsage(_ context.Context, u *referral.Usage) error {
	for _, existing := range c.m.state.usages {
		if existing.CodeID == u.CodeID && existing.PurchaseID == u.PurchaseID {
			return errors.New("duplicate usage")
		}
	}
	u.ID = c.m.next()
	c.m.state.usages = append(c.m.state.usages, *u)
	return nil
}

func (c memCommissions) Create(_ context.Context, cm *commission.Commission) error {
	if err := c.m.fail("commission.create"); err != nil {
		return err
	}
	cm.ID = c.m.next()
	c.m.state.commissions = append(c.m.state.commissions, *cm)
	return nil
}

func (c memCommissions) CancelPendingForPurchase(_ context.Context, purchaseID string) (int64, error) {
	var n int64
	for i := range c.m.state.commissions {
		cm := &c.m.state.commissions[i]
		if cm.PurchaseID == purchaseID && cm.Status == commission.StatusPending {
			cm.Status = commission.StatusCancelled
			n++
		}
	}
	return n, nil
}

type memEnrollments struct{ m *memStore }

func (e memEnrollments) GetOrCreate(_ context.Context, userID int64, ref catalog.ItemRef, purchaseID string) (*enrollment.Enrollment, bool, error) {
	k := enrollmentKey{userID, ref}
	if existing, ok := e.m.state.enrollments[k]; ok {
		return &existing, false, nil
	}
	en := enrollment.Enrollment{ID: e.m.next(), UserID: userID, Ref: ref, PurchaseID: purchaseID}
	e.m.state.enrollments[k] = en
	return &en, true, nil
}

func (e memEnrollments) Exists(_ context.Context, userID int64, ref catalog.ItemRef) (bool, error) {
	_, ok := e.m.state.enrollments[enrollmentKey{userID, ref}]
	return ok, nil
}

func (e memEnrollments) ListByUser(context.Context, int64) ([]enrollment.Enrollment, error) {
	return nil, nil
}

type recordingPublisher struct {
	events []events.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, evs ...events.Event) error {
	r.events = append(r.events, evs...)
	return r.err
}

// --- Helpers ---

func intPtr(v int) *int { return &v }

func newTestService(t *testing.T, store *memStore, mode Mode, pub events.Publisher) *Service {
	t.Helper()
	svc, err := NewService(store, mode, pub, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)

	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("purchase-%d", n)
	}
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func (m *memStore) putCode(c referral.Code) {
	m.state.codes[c.ID] = &c
}

func (m *memStore) putCart(userID int64, codeID int64, items ...cart.Item) {
	c := &cart.Cart{ID: m.next(), UserID: userID}
	for _, it := range items {
		it.ID = m.next()
		c.Items = append(c.Items, it)
	}
	if codeID != 0 {
		c.Referral = &referral.Code{ID: codeID}
	}
	m.state.carts[userID] = c
}

func course(id int64, price string) cart.Item {
	return cart.Item{Ref: catalog.CourseRef(id), Title: fmt.Sprintf("Course %d", id), Price: d(price)}
}

func section(id int64, price string) cart.Item {
	return cart.Item{Ref: catalog.SectionRef(id), Title: fmt.Sprintf("Section %d", id), Price: d(price)}
}

func spring10() referral.Code {
	return referral.Code{
		ID:                   10,
		MarketerID:           7,
		Code:                 "SPRING10",
		DiscountPercentage:   d("10"),
		CommissionPercentage: d("15"),
		IsActive:             true,
	}
}

func sortedPurchases(m *memStore) []purchase.Purchase {
	out := make([]purchase.Purchase, 0, len(m.state.purchases))
	for _, p := range m.state.purchases {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- Tests ---

func TestCheckout_SingleCourseWithReferral(t *testing.T) {
	store := newMemStore()
	store.putCode(spring10())
	store.putCart(42, 10, course(1, "1000000"))
	pub := &recordingPublisher{}
	svc := newTestService(t, store, ModeInstant, pub)

	res, err := svc.Checkout(context.Background(), 42)
	require.NoError(t, err)

	require.Len(t, res.Purchases, 1)
	p := res.Purchases[0]
	assert.True(t, d("1000000").Equal(p.OriginalAmount))
	assert.True(t, d("100000").Equal(p.DiscountAmount))
	assert.True(t, d("900000").Equal(p.Amount))
	assert.Equal(t, purchase.StatusCompleted, p.Status)
	require.NotNil(t, p.ReferralCodeID)
	assert.Equal(t, int64(10), *p.ReferralCodeID)

	require.Len(t, store.state.usages, 1)
	u := store.state.usages[0]
	assert.True(t, d("100000").Equal(u.DiscountAmount))
	assert.True(t, d("150000").Equal(u.CommissionAmount))
	assert.Equal(t, p.ID, u.PurchaseID)

	require.Len(t, store.state.commissions, 1)
	cm := store.state.commissions[0]
	assert.Equal(t, commission.StatusPending, cm.Status)
	assert.True(t, d("150000").Equal(cm.Amount))
	assert.Equal(t, int64(7), cm.MarketerID)
	assert.Equal(t, u.ID, cm.ReferralUsageID)

	assert.Equal(t, 1, store.state.codes[10].CurrentUses)
	assert.Empty(t, store.state.carts[42].Items)
	assert.Nil(t, store.state.carts[42].Referral)

	_, enrolled := store.state.enrollments[enrollmentKey{42, catalog.CourseRef(1)}]
	assert.True(t, enrolled)

	require.Len(t, pub.events, 2)
	assert.Equal(t, events.PurchaseCreated, pub.events[0].Type)
	assert.Equal(t, events.PurchaseCompleted, pub.events[1].Type)
	assert.Equal(t, "SPRING10", pub.events[1].ReferralCode)
}

func TestCheckout_ManyItemsOneUse(t *testing.T) {
	store := newMemStore()
	store.putCode(spring10())
	store.putCart(42, 10,
		course(1, "1000000"),
		section(5, "250000"),
		section(6, "333333"),
	)
	svc := newTestService(t, store, ModeInstant, events.Nop{})

	res, err := svc.Checkout(context.Background(), 42)
	require.NoError(t, err)

	assert.Len(t, res.Purchases, 3)
	assert.Len(t, store.state.purchases, 3)
	assert.Len(t, store.state.usages, 3)
	assert.Len(t, store.state.commissions, 3)
	assert.Len(t, store.state.enrollments, 3)
	assert.Equal(t, 1, store.state.codes[10].CurrentUses)

	discount := d("0")
	for _, p := range res.Purchases {
		assert.True(t, p.Amount.Equal(p.OriginalAmount.Sub(p.DiscountAmount)))
		discount = discount.Add(p.DiscountAmount)
	}
	assert.True(t, res.Pricing.Discount.Equal(discount), "allocated %s of %s", discount, res.Pricing.Discount)
	assert.True(t, d("158333.3").Equal(res.Pricing.Discount))
}

func TestCheckout_WithoutReferral(t *testing.T) {
	store := newMemStore()
	store.putCart(42, 0, course(1, "500000"))
	svc := newTestService(t, store, ModeInstant, events.Nop{})

	res, err := svc.Checkout(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, res.Purchases, 1)
	assert.True(t, res.Purchases[0].DiscountAmount.IsZero())
	assert.Nil(t, res.Purchases[0].ReferralCodeID)
	assert.Empty(t, store.state.usages)
	assert.Empty(t, store.state.commissions)
}

func TestCheckout_EmptyCart(t *testing.T) {
	store := newMemStore()
	store.putCode(spring10())
	store.putCart(42, 10)
	svc := newTestService(t, store, ModeInstant, events.Nop{})

	_, err := svc.Checkout(context.Background(), 42)
	require.ErrorIs(t, err, ErrEmptyCart)

	_, err = svc.Checkout(context.Background(), 43)
	require.ErrorIs(t, err, ErrEmptyCart)

	assert.Empty(t, store.state.purchases)
	assert.Equal(t, 0, store.state.codes[10].CurrentUses)
}

func TestCheckout_StaleCodeDropped(t *testing.T) {
	exhausted := spring10()
	exhausted.MaxUses = intPtr(1)
	exhausted.CurrentUses = 1

	inactive := spring10()
	inactive.IsActive = false

	for _, tt := range []struct {
		name   string
		code   referral.Code
		reason referral.Reason
	}{
		{name: "Inactive", code: inactive, reason: referral.ReasonCodeInactive},
		{name: "Exhausted", code: exhausted, reason: referral.ReasonCodeExhausted},
	} {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.putCode(tt.code)
			store.putCart(42, 10, course(1, "1000000"))
			svc := newTestService(t, store, ModeInstant, events.Nop{})

			// Priced exactly as the cart shows it.
			locked, err := memCarts{store}.LockForCheckout(context.Background(), 42)
			require.NoError(t, err)
			shown := cart.Price(locked.Items, locked.Referral)

			res, err := svc.Checkout(context.Background(), 42)
			require.NoError(t, err)
			assert.Equal(t, tt.reason, res.DroppedReferral)
			assert.True(t, res.Pricing.Total.Equal(shown.Total))
			assert.True(t, res.Pricing.Discount.IsZero())

			require.Len(t, res.Purchases, 1)
			p := res.Purchases[0]
			assert.True(t, p.Amount.Equal(d("1000000")))
			assert.True(t, p.DiscountAmount.IsZero())
			assert.Nil(t, p.ReferralCodeID)
			assert.Empty(t, p.ReferralCode)

			assert.Empty(t, store.state.usages)
			assert.Empty(t, store.state.commissions)
			assert.Equal(t, tt.code.CurrentUses, store.state.codes[10].CurrentUses)
			assert.Empty(t, store.state.carts[42].Items)
			assert.Nil(t, store.state.carts[42].Referral)
		})
	}
}

func TestCheckout_CodeExhaustedBySecondBuyer(t *testing.T) {
	store := newMemStore()
	code := spring10()
	code.MaxUses = intPtr(1)
	store.putCode(code)
	store.putCart(42, 10, course(1, "1000000"))
	store.putCart(43, 10, course(1, "1000000"))
	svc := newTestService(t, store, ModeInstant, events.Nop{})

	first, err := svc.Checkout(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, referral.ReasonNone, first.DroppedReferral)
	assert.True(t, first.Pricing.Total.Equal(d("900000")))

	second, err := svc.Checkout(context.Background(), 43)
	require.NoError(t, err)
	assert.Equal(t, referral.ReasonCodeExhausted, second.DroppedReferral)
	assert.True(t, second.Pricing.Total.Equal(d("1000000")))

	assert.Equal(t, 1, store.state.codes[10].CurrentUses)
	assert.Len(t, store.state.usages, 1)
	assert.Len(t, store.state.commissions, 1)
}

func TestCheckout_LastUseTakenConcurrently(t *testing.T) {
	store := newMemStore()
	code := spring10()
	code.MaxUses = intPtr(1)
	store.putCode(code)
	store.putCart(42, 10, course(1, "1000000"))
	// Another checkout consumes the last use between the cart lock and ours.
	store.takeUse = 10
	svc := newTestService(t, store, ModeInstant, events.Nop{})

	res, err := svc.Checkout(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, referral.ReasonCodeExhausted, res.DroppedReferral)
	assert.True(t, res.Pricing.Total.Equal(d("1000000")))
	assert.Empty(t, store.state.usages)
	assert.Equal(t, 1, store.state.codes[10].CurrentUses)
}

func TestCheckout_ConsumeFailure(t *testing.T) {
	store := newMemStore()
	store.putCode(spring10())
	store.putCart(42, 10, course(1, "1000000"))
	store.failOn = "referral.consume"
	svc := newTestService(t, store, ModeInstant, events.Nop{})

	_, err := svc.Checkout(context.Background(), 42)
	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Empty(t, store.state.purchases)
	assert.Len(t, store.state.carts[42].Items, 1)
}

func TestCheckout_RollsBackOnFailure(t *testing.T) {
	for _, op := range []string{"cart.lock", "purchase.create", "commission.create", "cart.clear"} {
		t.Run(op, func(t *testing.T) {
			store := newMemStore()
			store.putCode(spring10())
			store.putCart(42, 10, course(1, "1000000"), section(5, "250000"))
			store.failOn = op
			pub := &recordingPublisher{}
			svc := newTestService(t, store, ModeInstant, pub)

			_, err := svc.Checkout(context.Background(), 42)
			var failed *FailedError
			require.ErrorAs(t, err, &failed)

			assert.Empty(t, store.state.purchases)
			assert.Empty(t, store.state.usages)
			assert.Empty(t, store.state.commissions)
			assert.Empty(t, store.state.enrollments)
			assert.Equal(t, 0, store.state.codes[10].CurrentUses)
			assert.Len(t, store.state.carts[42].Items, 2)
			assert.NotNil(t, store.state.carts[42].Referral)
			assert.Empty(t, pub.events)
		})
	}
}

func TestCheckout_PublishFailureIsNotFatal(t *testing.T) {
	store := newMemStore()
	store.putCart(42, 0, course(1, "500000"))
	svc := newTestService(t, store, ModeInstant, &recordingPublisher{err: errors.New("broker down")})

	res, err := svc.Checkout(context.Background(), 42)
	require.NoError(t, err)
	assert.Len(t, res.Purchases, 1)
}

func TestCheckout_GatewayMode(t *testing.T) {
	store := newMemStore()
	store.putCode(spring10())
	store.putCart(42, 10, course(1, "1000000"), section(5, "250000"))
	pub := &recordingPublisher{}
	svc := newTestService(t, store, ModeGateway, pub)
	ctx := context.Background()

	res, err := svc.Checkout(ctx, 42)
	require.NoError(t, err)
	for _, p := range res.Purchases {
		assert.Equal(t, purchase.StatusPending, p.Status)
	}
	assert.Empty(t, res.Enrollments)
	assert.Empty(t, store.state.enrollments)
	assert.Len(t, store.state.commissions, 2)
	assert.Len(t, pub.events, 2)

	ids := []string{res.Purchases[0].ID, res.Purchases[1].ID}
	confirmed, err := svc.ConfirmPayment(ctx, Confirmation{TransactionID: "txn-1", PurchaseIDs: ids, Succeeded: true})
	require.NoError(t, err)
	require.Len(t, confirmed, 2)
	for _, p := range confirmed {
		assert.Equal(t, purchase.StatusCompleted, p.Status)
		assert.Equal(t, "txn-1", p.TransactionID)
	}
	assert.Len(t, store.state.enrollments, 2)
	assert.Len(t, pub.events, 4)

	again, err := svc.ConfirmPayment(ctx, Confirmation{TransactionID: "txn-1", PurchaseIDs: ids, Succeeded: true})
	require.NoError(t, err)
	assert.Len(t, again, 2)
	assert.Len(t, store.state.enrollments, 2)
	assert.Len(t, pub.events, 4)

	_, err = svc.ConfirmPayment(ctx, Confirmation{TransactionID: "txn-1", PurchaseIDs: ids, Succeeded: false})
	require.ErrorIs(t, err, purchase.ErrInvalidTransition)
}

func TestConfirmPayment_Failed(t *testing.T) {
	store := newMemStore()
	store.putCode(spring10())
	store.putCart(42, 10, course(1, "1000000"))
	svc := newTestService(t, store, ModeGateway, events.Nop{})
	ctx := context.Background()

	res, err := svc.Checkout(ctx, 42)
	require.NoError(t, err)

	out, err := svc.ConfirmPayment(ctx, Confirmation{TransactionID: "txn-9", PurchaseIDs: []string{res.Purchases[0].ID}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, purchase.StatusFailed, out[0].Status)
	assert.Equal(t, commission.StatusCancelled, store.state.commissions[0].Status)
	assert.Empty(t, store.state.enrollments)
}

func TestConfirmPayment_Validation(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, ModeGateway, events.Nop{})
	ctx := context.Background()

	_, err := svc.ConfirmPayment(ctx, Confirmation{PurchaseIDs: []string{"x"}})
	require.ErrorIs(t, err, ErrInvalidConfirmation)

	_, err = svc.ConfirmPayment(ctx, Confirmation{TransactionID: "txn"})
	require.ErrorIs(t, err, ErrInvalidConfirmation)

	_, err = svc.ConfirmPayment(ctx, Confirmation{TransactionID: "txn", PurchaseIDs: []string{"missing"}, Succeeded: true})
	require.ErrorIs(t, err, purchase.ErrNotFound)
}

func TestRefund(t *testing.T) {
	store := newMemStore()
	store.putCode(spring10())
	store.putCart(42, 10, course(1, "1000000"))
	pub := &recordingPublisher{}
	svc := newTestService(t, store, ModeInstant, pub)
	ctx := context.Background()

	res, err := svc.Checkout(ctx, 42)
	require.NoError(t, err)
	id := res.Purchases[0].ID

	refunded, err := svc.Refund(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusRefunded, refunded.Status)
	assert.Equal(t, commission.StatusCancelled, store.state.commissions[0].Status)
	assert.Equal(t, events.PurchaseRefunded, pub.events[len(pub.events)-1].Type)

	_, err = svc.Refund(ctx, id)
	require.ErrorIs(t, err, purchase.ErrInvalidTransition)

	_, err = svc.Refund(ctx, "missing")
	require.ErrorIs(t, err, purchase.ErrNotFound)
}

func TestRefund_PaidCommissionKept(t *testing.T) {
	store := newMemStore()
	store.putCode(spring10())
	store.putCart(42, 10, course(1, "1000000"))
	svc := newTestService(t, store, ModeInstant, events.Nop{})
	ctx := context.Background()

	res, err := svc.Checkout(ctx, 42)
	require.NoError(t, err)
	store.state.commissions[0].Status = commission.StatusPaid

	_, err = svc.Refund(ctx, res.Purchases[0].ID)
	require.NoError(t, err)
	assert.Equal(t, commission.StatusPaid, store.state.commissions[0].Status)
}

func TestRefund_PendingPurchase(t *testing.T) {
	store := newMemStore()
	store.putCart(42, 0, course(1, "1000000"))
	svc := newTestService(t, store, ModeGateway, events.Nop{})

	res, err := svc.Checkout(context.Background(), 42)
	require.NoError(t, err)

	_, err = svc.Refund(context.Background(), res.Purchases[0].ID)
	require.ErrorIs(t, err, purchase.ErrInvalidTransition)
	assert.Equal(t, purchase.StatusPending, sortedPurchases(store)[0].Status)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("gateway")
	require.NoError(t, err)
	assert.Equal(t, ModeGateway, m)

	_, err = ParseMode("cash")
	require.Error(t, err)
}
