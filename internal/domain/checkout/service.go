package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/academy-ledger/internal/domain/cart"
	"github.com/xenking/academy-ledger/internal/domain/commission"
	"github.com/xenking/academy-ledger/internal/domain/enrollment"
	"github.com/xenking/academy-ledger/internal/domain/purchase"
	"github.com/xenking/academy-ledger/internal/domain/referral"
	"github.com/xenking/academy-ledger/internal/events"
)

const instrumentationName = "github.com/xenking/academy-ledger/internal/domain/checkout"

// Result is everything a successful checkout recorded.
type Result struct {
	Pricing     cart.Pricing
	Purchases   []purchase.Purchase
	Usages      []referral.Usage
	Commissions []commission.Commission
	Enrollments []enrollment.Enrollment

	// DroppedReferral is why the attached code was not applied, or
	// referral.ReasonNone.
	DroppedReferral referral.Reason
}

// Confirmation is a payment gateway's verdict on a set of purchases.
type Confirmation struct {
	TransactionID string
	PurchaseIDs   []string
	Succeeded     bool
}

// Service turns carts into purchases and drives purchase payment state.
type Service struct {
	store  Store
	mode   Mode
	events events.Publisher
	newID  func() string
	now    func() time.Time

	tracer    trace.Tracer
	completed metric.Int64Counter
	failed    metric.Int64Counter
}

// NewService creates a checkout Service.
func NewService(
	store Store,
	mode Mode,
	publisher events.Publisher,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Service, error) {
	meter := mp.Meter(instrumentationName)
	completed, err := meter.Int64Counter("ledger.checkout.completed",
		metric.WithDescription("Checkouts that recorded purchases"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create completed counter")
	}
	failed, err := meter.Int64Counter("ledger.checkout.failed",
		metric.WithDescription("Checkouts rejected or rolled back"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create failed counter")
	}

	return &Service{
		store:     store,
		mode:      mode,
		events:    publisher,
		newID:     func() string { return uuid.New().String() },
		now:       time.Now,
		tracer:    tp.Tracer(instrumentationName),
		completed: completed,
		failed:    failed,
	}, nil
}

// Mode returns the configured payment mode.
func (s *Service) Mode() Mode { return s.mode }

// Checkout converts the user's cart into one purchase per item. With a
// referral code attached it also records a usage and a pending commission per
// purchase and consumes one use of the code. Either everything is recorded
// and the cart is emptied, or nothing changes.
func (s *Service) Checkout(ctx context.Context, userID int64) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Checkout",
		trace.WithAttributes(attribute.Int64("user.id", userID), attribute.String("payment.mode", string(s.mode))),
	)
	defer span.End()

	var res *Result
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := s.checkout(ctx, tx, userID)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", failureReason(err))))
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		if expected(err) {
			return nil, err
		}
		return nil, &FailedError{Err: err}
	}

	s.completed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("referral", len(res.Usages) > 0)))
	span.SetAttributes(attribute.Int("purchases", len(res.Purchases)))

	zctx.From(ctx).Info("Checkout completed",
		zap.Int64("user_id", userID),
		zap.Int("purchases", len(res.Purchases)),
		zap.String("total", res.Pricing.Total.StringFixed(2)),
		zap.Int("commissions", len(res.Commissions)),
	)

	evs := make([]events.Event, 0, 2*len(res.Purchases))
	for i := range res.Purchases {
		evs = append(evs, purchaseEvent(events.PurchaseCreated, &res.Purchases[i]))
		if res.Purchases[i].Status == purchase.StatusCompleted {
			evs = append(evs, purchaseEvent(events.PurchaseCompleted, &res.Purchases[i]))
		}
	}
	s.publish(ctx, evs)

	return res, nil
}

func (s *Service) checkout(ctx context.Context, tx Tx, userID int64) (*Result, error) {
	c, err := tx.Carts().LockForCheckout(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "lock cart")
	}
	if c == nil || c.Empty() {
		return nil, ErrEmptyCart
	}

	code, dropped, err := consumeReferral(ctx, tx, c.Referral)
	if err != nil {
		return nil, err
	}

	pricing := cart.Price(c.Items, code)
	prices := make([]decimal.Decimal, len(c.Items))
	for i, it := range c.Items {
		prices[i] = it.Price
	}
	shares := Allocate(prices, pricing.Discount)

	status := s.mode.initialStatus()
	now := s.now().UTC()
	res := &Result{Pricing: pricing, DroppedReferral: dropped}
	if dropped != referral.ReasonNone {
		zctx.From(ctx).Info("Referral code dropped at checkout",
			zap.Int64("user_id", userID),
			zap.String("code", c.Referral.Code),
			zap.String("reason", string(dropped)),
		)
	}

	for i, it := range c.Items {
		p := purchase.Purchase{
			ID:             s.newID(),
			UserID:         userID,
			Ref:            it.Ref,
			Title:          it.Title,
			OriginalAmount: it.Price,
			DiscountAmount: shares[i],
			Amount:         it.Price.Sub(shares[i]),
			Status:         status,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if code != nil {
			p.ReferralCodeID = &code.ID
			p.ReferralCode = code.Code
		}
		if err := tx.Purchases().Create(ctx, &p); err != nil {
			return nil, errors.Wrapf(err, "create purchase for %s", it.Ref)
		}
		res.Purchases = append(res.Purchases, p)

		if code != nil {
			u := referral.Usage{
				CodeID:           code.ID,
				CustomerID:       userID,
				PurchaseID:       p.ID,
				DiscountAmount:   p.DiscountAmount,
				CommissionAmount: code.Commission(p.OriginalAmount),
				CreatedAt:        now,
			}
			if err := tx.Commissions().CreateUsage(ctx, &u); err != nil {
				return nil, errors.Wrap(err, "create referral usage")
			}
			cm := commission.Commission{
				MarketerID:      code.MarketerID,
				ReferralUsageID: u.ID,
				ReferralCode:    code.Code,
				PurchaseID:      p.ID,
				CustomerID:      userID,
				Amount:          u.CommissionAmount,
				Status:          commission.StatusPending,
				CreatedAt:       now,
			}
			if err := tx.Commissions().Create(ctx, &cm); err != nil {
				return nil, errors.Wrap(err, "create commission")
			}
			res.Usages = append(res.Usages, u)
			res.Commissions = append(res.Commissions, cm)
		}

		if p.Status == purchase.StatusCompleted {
			e, err := enrollment.Grant(ctx, tx.Enrollments(), &p)
			if err != nil {
				return nil, err
			}
			res.Enrollments = append(res.Enrollments, *e)
		}
	}

	if err := tx.Carts().Clear(ctx, c.ID); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}
	return res, nil
}

// consumeReferral takes one use of the attached code. A code that is no
// longer available, either before the attempt or because another checkout
// took the last use, is dropped and the cart is priced without it, the same
// way cart.Price treats it.
func consumeReferral(ctx context.Context, tx Tx, attached *referral.Code) (*referral.Code, referral.Reason, error) {
	if attached == nil {
		return nil, referral.ReasonNone, nil
	}
	if err := attached.Check(); err != nil {
		return nil, referral.ReasonError(err), nil
	}
	if err := tx.Referrals().ConsumeUse(ctx, attached.ID); err != nil {
		if reason := referral.ReasonError(err); reason != referral.ReasonNone {
			return nil, reason, nil
		}
		return nil, referral.ReasonNone, errors.Wrap(err, "consume referral use")
	}
	return attached, referral.ReasonNone, nil
}

// ConfirmPayment applies a gateway verdict. Success completes pending
// purchases and grants enrollments; failure marks them failed and cancels
// their pending commissions. Purchases already in the target state are left
// as they are, so re-delivery of the same verdict is harmless.
func (s *Service) ConfirmPayment(ctx context.Context, c Confirmation) ([]purchase.Purchase, error) {
	if c.TransactionID == "" || len(c.PurchaseIDs) == 0 {
		return nil, ErrInvalidConfirmation
	}

	ctx, span := s.tracer.Start(ctx, "checkout.ConfirmPayment",
		trace.WithAttributes(attribute.String("transaction.id", c.TransactionID), attribute.Bool("succeeded", c.Succeeded)),
	)
	defer span.End()

	target := purchase.StatusFailed
	evType := events.PurchaseFailed
	if c.Succeeded {
		target = purchase.StatusCompleted
		evType = events.PurchaseCompleted
	}

	var (
		out     []purchase.Purchase
		changed []purchase.Purchase
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		out, changed = nil, nil
		ps, err := lockAll(ctx, tx, c.PurchaseIDs)
		if err != nil {
			return err
		}

		for _, p := range ps {
			if p.Status == target {
				out = append(out, p)
				continue
			}
			if !p.Status.CanTransition(target) {
				return errors.Wrapf(purchase.ErrInvalidTransition, "purchase %s is %s", p.ID, p.Status)
			}
			updated, err := tx.Purchases().UpdateStatus(ctx, p.ID, target, c.TransactionID)
			if err != nil {
				return errors.Wrapf(err, "update purchase %s", p.ID)
			}
			if target == purchase.StatusCompleted {
				if _, err := enrollment.Grant(ctx, tx.Enrollments(), updated); err != nil {
					return err
				}
			} else if _, err := tx.Commissions().CancelPendingForPurchase(ctx, p.ID); err != nil {
				return errors.Wrapf(err, "cancel commissions of %s", p.ID)
			}
			out = append(out, *updated)
			changed = append(changed, *updated)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm payment failed")
		if expected(err) {
			return nil, err
		}
		return nil, &FailedError{Err: err}
	}

	zctx.From(ctx).Info("Payment confirmed",
		zap.String("transaction_id", c.TransactionID),
		zap.Bool("succeeded", c.Succeeded),
		zap.Int("changed", len(changed)),
	)

	evs := make([]events.Event, 0, len(changed))
	for i := range changed {
		evs = append(evs, purchaseEvent(evType, &changed[i]))
	}
	s.publish(ctx, evs)

	return out, nil
}

// Refund moves a completed purchase to refunded and cancels its commissions
// that are still pending. Paid commissions are left for manual settlement.
func (s *Service) Refund(ctx context.Context, purchaseID string) (*purchase.Purchase, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Refund",
		trace.WithAttributes(attribute.String("purchase.id", purchaseID)),
	)
	defer span.End()

	var (
		refunded  *purchase.Purchase
		cancelled int64
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		ps, err := lockAll(ctx, tx, []string{purchaseID})
		if err != nil {
			return err
		}
		p := ps[0]
		if !p.Status.CanTransition(purchase.StatusRefunded) {
			return errors.Wrapf(purchase.ErrInvalidTransition, "purchase %s is %s", p.ID, p.Status)
		}
		refunded, err = tx.Purchases().UpdateStatus(ctx, p.ID, purchase.StatusRefunded, p.TransactionID)
		if err != nil {
			return errors.Wrapf(err, "update purchase %s", p.ID)
		}
		cancelled, err = tx.Commissions().CancelPendingForPurchase(ctx, p.ID)
		if err != nil {
			return errors.Wrapf(err, "cancel commissions of %s", p.ID)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refund failed")
		if expected(err) {
			return nil, err
		}
		return nil, &FailedError{Err: err}
	}

	zctx.From(ctx).Info("Purchase refunded",
		zap.String("purchase_id", purchaseID),
		zap.Int64("commissions_cancelled", cancelled),
	)
	s.publish(ctx, []events.Event{purchaseEvent(events.PurchaseRefunded, refunded)})

	return refunded, nil
}

// lockAll locks every requested purchase, failing with purchase.ErrNotFound
// when any of them is missing. Duplicate ids are collapsed.
func lockAll(ctx context.Context, tx Tx, ids []string) ([]purchase.Purchase, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	ps, err := tx.Purchases().LockByIDs(ctx, unique)
	if err != nil {
		return nil, errors.Wrap(err, "lock purchases")
	}
	if len(ps) != len(unique) {
		found := make(map[string]struct{}, len(ps))
		for _, p := range ps {
			found[p.ID] = struct{}{}
		}
		for _, id := range unique {
			if _, ok := found[id]; !ok {
				return nil, errors.Wrapf(purchase.ErrNotFound, "purchase %s", id)
			}
		}
	}
	return ps, nil
}

func (s *Service) publish(ctx context.Context, evs []events.Event) {
	if len(evs) == 0 {
		return
	}
	if err := s.events.Publish(ctx, evs...); err != nil {
		zctx.From(ctx).Warn("Publish purchase events",
			zap.Int("events", len(evs)),
			zap.Error(err),
		)
	}
}

func purchaseEvent(t events.Type, p *purchase.Purchase) events.Event {
	return events.Event{
		Type:         t,
		PurchaseID:   p.ID,
		UserID:       p.UserID,
		ItemKind:     string(p.Ref.Kind()),
		ItemID:       p.Ref.ID(),
		Amount:       p.Amount,
		ReferralCode: p.ReferralCode,
		OccurredAt:   p.UpdatedAt,
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	default:
		return "error"
	}
}
