package lifecycle

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Quote returns unit*qty + shipping and the same amount in minor units,
// rounded half away from zero.
func Quote(unitPrice float64, quantity int, shipping float64) (float64, int64) {
	total := decimal.NewFromFloat(unitPrice).
		Mul(decimal.NewFromInt(int64(quantity))).
		Add(decimal.NewFromFloat(shipping))
	minor := total.Mul(hundred).Round(0).IntPart()
	f, _ := total.Float64()
	return f, minor
}
