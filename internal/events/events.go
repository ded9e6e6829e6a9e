// Package events publishes purchase lifecycle events for downstream
// consumers (analytics, notifications).
package events

import (
	"context"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Type names a purchase lifecycle event.
type Type string

const (
	PurchaseCreated   Type = "purchase.created"
	PurchaseCompleted Type = "purchase.completed"
	PurchaseFailed    Type = "purchase.failed"
	PurchaseRefunded  Type = "purchase.refunded"
)

// Event describes a change to one purchase.
type Event struct {
	Type         Type
	PurchaseID   string
	UserID       int64
	ItemKind     string
	ItemID       int64
	Amount       decimal.Decimal
	ReferralCode string
	OccurredAt   time.Time
}

// Encode writes e as a JSON object.
func (e Event) Encode(enc *jx.Encoder) {
	enc.ObjStart()
	enc.FieldStart("type")
	enc.Str(string(e.Type))
	enc.FieldStart("purchase_id")
	enc.Str(e.PurchaseID)
	enc.FieldStart("user_id")
	enc.Int64(e.UserID)
	enc.FieldStart("item_kind")
	enc.Str(e.ItemKind)
	enc.FieldStart("item_id")
	enc.Int64(e.ItemID)
	enc.FieldStart("amount")
	enc.Str(e.Amount.StringFixed(2))
	if e.ReferralCode != "" {
		enc.FieldStart("referral_code")
		enc.Str(e.ReferralCode)
	}
	enc.FieldStart("occurred_at")
	enc.Str(e.OccurredAt.UTC().Format(time.RFC3339Nano))
	enc.ObjEnd()
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Nop discards every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }
