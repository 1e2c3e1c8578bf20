// Package calc holds the derived-quantity formulas shared by manufacturing,
// dispatches, daily consumption, the stock ledger and cost reporting.
package calc

import (
	"strings"

	"github.com/shopspring/decimal"

	"filmtrack/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Area returns square meters for rolls of widthCM x lengthM, at full precision.
func Area(widthCM decimal.Decimal, lengthM decimal.Decimal, quantity int64) decimal.Decimal {
	return widthCM.Div(hundred).Mul(lengthM).Mul(decimal.NewFromInt(quantity))
}

// AreaFromInputs is the form-preview variant: any missing or non-numeric
// input yields zero instead of an error.
func AreaFromInputs(width string, length string, quantity string) decimal.Decimal {
	w, okW := ParseQuantity(width)
	l, okL := ParseQuantity(length)
	q, okQ := ParseQuantity(quantity)
	if !okW || !okL || !okQ {
		return decimal.Zero
	}
	return Area(w, l, q.IntPart())
}

// ParseQuantity parses a raw form value. Blank or malformed input reports false.
func ParseQuantity(raw string) (decimal.Decimal, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(strings.ReplaceAll(trimmed, ",", "."))
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

// OrZero defaults an absent quantity to zero.
func OrZero(value *decimal.Decimal) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return *value
}

func Round2(value decimal.Decimal) decimal.Decimal {
	return value.Round(2)
}

func Display2(value decimal.Decimal) string {
	return value.StringFixed(2)
}

// IsLowStock is inclusive: sitting exactly on the threshold counts as low.
func IsLowStock(current decimal.Decimal, minLevel decimal.Decimal) bool {
	return current.LessThanOrEqual(minLevel)
}

// Balance folds signed ledger quantities. Addition is commutative, so the
// result does not depend on read order.
func Balance(transactions []domain.StockTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range transactions {
		total = total.Add(tx.Quantity)
	}
	return total
}

// Percent returns part/total*100, or zero when total is zero.
func Percent(part decimal.Decimal, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Div(total).Mul(hundred)
}
