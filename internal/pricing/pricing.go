package pricing

import "buysell/backend/internal/domain"

// Quote is the settled price breakdown for one sale line.
type Quote struct {
	FinalUnitPrice float64
	DiscountAmount float64
	LineTotal      float64
	LineProfit     float64
}

// Compute settles a sale line. It is total over its numeric inputs: unknown
// discount types fall back to the undiscounted sell price, a direct price
// above the sell price yields a negative discount amount, and selling below
// cost yields a negative profit. Range checks on discount values and quantity
// belong to the caller.
func Compute(sellPrice float64, buyPrice float64, quantity int, discountType domain.DiscountType, discountValue float64) Quote {
	finalUnit := sellPrice
	switch discountType {
	case domain.DiscountPercentage:
		finalUnit = sellPrice * (1 - discountValue/100)
	case domain.DiscountDirectPrice:
		finalUnit = discountValue
	}

	qty := float64(quantity)
	return Quote{
		FinalUnitPrice: finalUnit,
		DiscountAmount: sellPrice - finalUnit,
		LineTotal:      finalUnit * qty,
		LineProfit:     (finalUnit - buyPrice) * qty,
	}
}
