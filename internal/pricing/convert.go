package pricing

import "github.com/shopspring/decimal"

var (
	decimalOne     = decimal.NewFromInt(1)
	decimalHundred = decimal.NewFromInt(100)
)

// ConvertCredits returns ceil(cost * rate * (1 + markup/100) / creditRate), never negative.
// A non-positive creditRate is treated as 1.
func ConvertCredits(cost, rate, markupPercentage, creditRate decimal.Decimal) int64 {
	if !creditRate.IsPositive() {
		creditRate = decimalOne
	}
	withMarkup := cost.Mul(rate).Mul(decimalOne.Add(markupPercentage.Div(decimalHundred)))
	return ceilCredits(withMarkup.Div(creditRate))
}

func ceilCredits(amount decimal.Decimal) int64 {
	credits := amount.Ceil()
	if credits.IsNegative() {
		return 0
	}
	return credits.IntPart()
}
