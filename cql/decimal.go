package cql

import (
	"github.com/cockroachdb/apd/v3"
)

// maxDecimalScale is the number of fractional digits a Decimal may carry.
const maxDecimalScale = 8

var defaultAPDContext = apd.BaseContext.WithPrecision(34)

// verifyPrecision floors d to maxDecimalScale fractional digits when it
// carries more.
func verifyPrecision(d *apd.Decimal) (*apd.Decimal, error) {
	if d.Form != apd.Finite || -d.Exponent <= maxDecimalScale {
		return d, nil
	}
	return floorToScale(d)
}

func floorToScale(d *apd.Decimal) (*apd.Decimal, error) {
	ctx := defaultAPDContext.WithPrecision(defaultAPDContext.Precision)
	ctx.Rounding = apd.RoundFloor
	var res apd.Decimal
	if _, err := ctx.Quantize(&res, d, -maxDecimalScale); err != nil {
		return nil, err
	}
	return &res, nil
}

func decimalOf(i int64) *apd.Decimal {
	return apd.New(i, 0)
}

func toDecimal(v Value) (Decimal, bool) {
	switch v := v.(type) {
	case Integer:
		return Decimal{Value: decimalOf(int64(v))}, true
	case Long:
		return Decimal{Value: decimalOf(int64(v))}, true
	case Decimal:
		return v, true
	}
	return Decimal{}, false
}

// promote converts a mixed Integer/Long/Decimal pair to their common type.
// Other pairs are returned unchanged.
func promote(l, r Value) (Value, Value) {
	switch l.(type) {
	case Integer:
		switch r := r.(type) {
		case Long:
			return Long(l.(Integer)), r
		case Decimal:
			d, _ := toDecimal(l)
			return d, r
		}
	case Long:
		switch r := r.(type) {
		case Integer:
			return l, Long(r)
		case Decimal:
			d, _ := toDecimal(l)
			return d, r
		}
	case Decimal:
		switch r.(type) {
		case Integer, Long:
			d, _ := toDecimal(r)
			return l, d
		}
	}
	return l, r
}

type decimalOp func(ctx *apd.Context, d, x, y *apd.Decimal) (apd.Condition, error)

func applyDecimal(op decimalOp, x, y *apd.Decimal) (*apd.Decimal, error) {
	var res apd.Decimal
	if _, err := op(defaultAPDContext, &res, x, y); err != nil {
		return nil, err
	}
	return verifyPrecision(&res)
}
