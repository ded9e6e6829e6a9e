package cart

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/academy-ledger/internal/domain/referral"
)

// Pricing is the derived price of a cart. It is never stored.
type Pricing struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
	// ReferralApplied is false when no code is attached or the attached code
	// is no longer available.
	ReferralApplied bool
}

// Price sums the items and applies code when it is available.
func Price(items []Item, code *referral.Code) Pricing {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Price)
	}

	p := Pricing{Subtotal: subtotal, Discount: decimal.Zero, Total: subtotal}
	if code == nil || !code.IsAvailable() {
		return p
	}

	p.Discount = code.Discount(subtotal)
	p.Total = subtotal.Sub(p.Discount)
	p.ReferralApplied = true
	return p
}
