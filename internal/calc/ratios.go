package calc

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	DefaultAdditiveARatio = decimal.RequireFromString("0.03")
	DefaultAdditiveBRatio = decimal.RequireFromString("0.015")
)

// Ratios are the fixed shares of total primary material drawn as additives.
// Changing them affects only records written afterwards.
type Ratios struct {
	AdditiveA decimal.Decimal
	AdditiveB decimal.Decimal
}

type Derived struct {
	Primary      decimal.Decimal
	Waste        decimal.Decimal
	TotalPrimary decimal.Decimal
	AdditiveA    decimal.Decimal
	AdditiveB    decimal.Decimal
}

func DefaultRatios() Ratios {
	return Ratios{AdditiveA: DefaultAdditiveARatio, AdditiveB: DefaultAdditiveBRatio}
}

// NewRatios validates configured ratios; each must lie in [0, 1].
func NewRatios(a float64, b float64) (Ratios, error) {
	ra := decimal.NewFromFloat(a)
	rb := decimal.NewFromFloat(b)
	for _, r := range []decimal.Decimal{ra, rb} {
		if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
			return Ratios{}, fmt.Errorf("additive ratio %s out of range [0,1]", r)
		}
	}
	return Ratios{AdditiveA: ra, AdditiveB: rb}, nil
}

func (r Ratios) Derive(primary decimal.Decimal, waste decimal.Decimal) Derived {
	total := primary.Add(waste)
	return Derived{
		Primary:      primary,
		Waste:        waste,
		TotalPrimary: total,
		AdditiveA:    total.Mul(r.AdditiveA),
		AdditiveB:    total.Mul(r.AdditiveB),
	}
}

// DeriveFromInputs treats blank or non-numeric values as zero.
func (r Ratios) DeriveFromInputs(primary string, waste string) Derived {
	p, _ := ParseQuantity(primary)
	w, _ := ParseQuantity(waste)
	return r.Derive(p, w)
}
