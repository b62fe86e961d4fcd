package cql

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// UnitConverter converts and composes quantity units.
//
// Convert reports ok=false for unknown or incompatible units; that is a data
// condition and makes the calling operator return Null. A non-nil error is an
// internal failure of the converter and aborts the evaluation.
type UnitConverter interface {
	Convert(value *apd.Decimal, from, to string) (v *apd.Decimal, ok bool, err error)
	Multiply(lv *apd.Decimal, lu string, rv *apd.Decimal, ru string) (*apd.Decimal, string, error)
	Divide(lv *apd.Decimal, lu string, rv *apd.Decimal, ru string) (*apd.Decimal, string, error)
}

func unitConverter(s *State) (UnitConverter, error) {
	if s == nil || s.converter == nil {
		return nil, ErrNoUnitConverter
	}
	return s.converter, nil
}

// convertUnit converts value from one unit into another.
func convertUnit(s *State, value *apd.Decimal, from, to string) (*apd.Decimal, bool, error) {
	from, to = normalizeUnit(from), normalizeUnit(to)
	if from == to {
		return value, true, nil
	}
	conv, err := unitConverter(s)
	if err != nil {
		return nil, false, err
	}
	v, ok, err := conv.Convert(value, from, to)
	if err != nil {
		return nil, false, &UnitConversionError{Operation: "convert", FromUnit: from, ToUnit: to, Err: err}
	}
	if !ok || v == nil {
		return nil, false, nil
	}
	return v, true, nil
}

// convertIfLessGranular converts value only if the converted number is not
// smaller than the original, i.e. the target unit is at least as fine.
func convertIfLessGranular(s *State, value *apd.Decimal, from, to string) (*apd.Decimal, bool, error) {
	v, ok, err := convertUnit(s, value, from, to)
	if err != nil || !ok {
		return nil, false, err
	}
	if v.Cmp(value) < 0 {
		return nil, false, nil
	}
	return v, true, nil
}

type unitComputation func(unit string, lv, rv *apd.Decimal) (Value, error)

// computeWithConvertedUnits runs compute on both quantity values expressed in
// a common unit, preferring the finer of both units. Quantities that cannot
// be brought to a common unit yield Null.
func computeWithConvertedUnits(s *State, l, r Quantity, compute unitComputation) (Value, error) {
	lu, ru := normalizeUnit(l.Unit), normalizeUnit(r.Unit)
	if lu == ru {
		return compute(lu, l.Value.Value, r.Value.Value)
	}
	rv, ok, err := convertIfLessGranular(s, r.Value.Value, ru, lu)
	if err != nil {
		return nil, err
	}
	if ok {
		return compute(lu, l.Value.Value, rv)
	}
	lv, ok, err := convertIfLessGranular(s, l.Value.Value, lu, ru)
	if err != nil {
		return nil, err
	}
	if ok {
		return compute(ru, lv, r.Value.Value)
	}
	return nil, nil
}

func multiplyQuantities(s *State, l, r Quantity) (Value, error) {
	lu, ru := normalizeUnit(l.Unit), normalizeUnit(r.Unit)
	var (
		v    *apd.Decimal
		unit string
		err  error
	)
	switch {
	case lu == IdentityUnit:
		v, err = applyDecimal((*apd.Context).Mul, l.Value.Value, r.Value.Value)
		unit = ru
	case ru == IdentityUnit:
		v, err = applyDecimal((*apd.Context).Mul, l.Value.Value, r.Value.Value)
		unit = lu
	default:
		conv, cerr := unitConverter(s)
		if cerr != nil {
			return nil, cerr
		}
		v, unit, err = conv.Multiply(l.Value.Value, lu, r.Value.Value, ru)
		if err != nil {
			return nil, &UnitConversionError{Operation: "multiply", FromUnit: lu, ToUnit: ru, Err: err}
		}
		v, err = verifyPrecision(v)
	}
	if err != nil {
		return nil, err
	}
	return NewQuantity(Decimal{Value: v}, unit), nil
}

func divideQuantities(s *State, l, r Quantity) (Value, error) {
	if r.Value.Value.IsZero() {
		return nil, nil
	}
	lu, ru := normalizeUnit(l.Unit), normalizeUnit(r.Unit)
	if lu == IdentityUnit || ru == IdentityUnit {
		v, err := divideDecimals(l.Value.Value, r.Value.Value)
		if err != nil || v == nil {
			return nil, err
		}
		return NewQuantity(Decimal{Value: v}, formatDivisionUnit(lu, ru)), nil
	}
	conv, err := unitConverter(s)
	if err != nil {
		return nil, err
	}
	v, unit, err := conv.Divide(l.Value.Value, lu, r.Value.Value, ru)
	if err != nil {
		return nil, &UnitConversionError{Operation: "divide", FromUnit: lu, ToUnit: ru, Err: err}
	}
	if v, err = verifyPrecision(v); err != nil {
		return nil, err
	}
	return NewQuantity(Decimal{Value: v}, unit), nil
}

func formatDivisionUnit(numerator, denominator string) string {
	switch {
	case numerator == denominator:
		return IdentityUnit
	case denominator == IdentityUnit:
		return numerator
	case numerator == IdentityUnit:
		return fmt.Sprintf("1/%s", wrapDenominator(denominator))
	}
	return fmt.Sprintf("%s/%s", wrapNumerator(numerator), wrapDenominator(denominator))
}

func wrapNumerator(u string) string {
	if strings.ContainsRune(u, '/') {
		return fmt.Sprintf("(%s)", u)
	}
	return u
}

func wrapDenominator(u string) string {
	if strings.ContainsAny(u, "./") {
		return fmt.Sprintf("(%s)", u)
	}
	return u
}
