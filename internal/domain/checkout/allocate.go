package checkout

import "github.com/shopspring/decimal"

// Allocate splits discount across prices in proportion to each price's share
// of the subtotal. Each share is truncated to cents and the rounding residual
// goes to the most expensive item, so the shares always sum to discount and
// no share exceeds its price. A zero subtotal yields zero shares.
func Allocate(prices []decimal.Decimal, discount decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(prices))
	subtotal := decimal.Zero
	largest := -1
	for i, p := range prices {
		shares[i] = decimal.Zero
		subtotal = subtotal.Add(p)
		if largest < 0 || p.GreaterThan(prices[largest]) {
			largest = i
		}
	}
	if !subtotal.IsPositive() || !discount.IsPositive() {
		return shares
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	allocated := decimal.Zero
	for i, p := range prices {
		if i == largest {
			continue
		}
		shares[i] = p.Mul(discount).Div(subtotal).Truncate(2)
		allocated = allocated.Add(shares[i])
	}
	shares[largest] = discount.Sub(allocated)

	// Truncation can push the residual past the largest price when the
	// discount is close to the subtotal; hand the excess back to the others.
	if excess := shares[largest].Sub(prices[largest]); excess.IsPositive() {
		shares[largest] = prices[largest]
		for i, p := range prices {
			if i == largest || !excess.IsPositive() {
				continue
			}
			room := p.Sub(shares[i])
			take := decimal.Min(room, excess)
			shares[i] = shares[i].Add(take)
			excess = excess.Sub(take)
		}
	}
	return shares
}
