package cql

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Equal implements =. The result is a Boolean or Null.
func Equal(s *State, l, r Value) (Value, error) {
	if l == nil || r == nil {
		return nil, nil
	}
	l, r = promote(l, r)

	switch lv := l.(type) {
	case Boolean, Integer, Long, String:
		return Boolean(l == r), nil
	case Decimal:
		if rv, ok := r.(Decimal); ok {
			return Boolean(lv.Value.Cmp(rv.Value) == 0), nil
		}
	case Quantity:
		if rv, ok := r.(Quantity); ok {
			c, ok, err := compareQuantities(s, lv, rv)
			if err != nil || !ok {
				return nil, err
			}
			return Boolean(c == 0), nil
		}
	case Ratio:
		if rv, ok := r.(Ratio); ok {
			return equalAll(s, []Value{lv.Numerator, lv.Denominator}, []Value{rv.Numerator, rv.Denominator})
		}
	case Code:
		if rv, ok := r.(Code); ok {
			return Boolean(lv == rv), nil
		}
	case Concept:
		if rv, ok := r.(Concept); ok {
			if len(lv.Codes) != len(rv.Codes) || lv.Display != rv.Display {
				return Boolean(false), nil
			}
			for i := range lv.Codes {
				if lv.Codes[i] != rv.Codes[i] {
					return Boolean(false), nil
				}
			}
			return Boolean(true), nil
		}
	case Date, DateTime, Time:
		c, ok, matched := compareTemporal(l, r)
		if !matched {
			break
		}
		if !ok {
			return nil, nil
		}
		return Boolean(c == 0), nil
	case Interval:
		if rv, ok := r.(Interval); ok {
			if lv.LowClosed != rv.LowClosed || lv.HighClosed != rv.HighClosed {
				return Boolean(false), nil
			}
			return equalAll(s, []Value{lv.Low, lv.High}, []Value{rv.Low, rv.High})
		}
	case List:
		if rv, ok := r.(List); ok {
			if len(lv) != len(rv) {
				return Boolean(false), nil
			}
			return equalAll(s, lv, rv)
		}
	case Tuple:
		if rv, ok := r.(Tuple); ok {
			rvs, ok := alignTuple(lv, rv)
			if !ok {
				return Boolean(false), nil
			}
			return equalAll(s, tupleValues(lv), rvs)
		}
	}
	return Boolean(false), nil
}

// equalAll is the conjunction of pairwise Equal: false wins over Null, Null
// over true. Null elements on both sides count as indeterminate.
func equalAll(s *State, l, r []Value) (Value, error) {
	indeterminate := false
	for i := range l {
		eq, err := Equal(s, l[i], r[i])
		if err != nil {
			return nil, err
		}
		switch eq {
		case nil:
			indeterminate = true
		case Boolean(false):
			return Boolean(false), nil
		}
	}
	if indeterminate {
		return nil, nil
	}
	return Boolean(true), nil
}

// Equivalent implements ~. It never returns Null: Null ~ Null is true.
func Equivalent(s *State, l, r Value) (bool, error) {
	if l == nil || r == nil {
		return l == nil && r == nil, nil
	}
	l, r = promote(l, r)

	switch lv := l.(type) {
	case Boolean, Integer, Long:
		return l == r, nil
	case String:
		if rv, ok := r.(String); ok {
			return normalizeString(string(lv)) == normalizeString(string(rv)), nil
		}
	case Decimal:
		if rv, ok := r.(Decimal); ok {
			return decimalEquivalent(lv.Value, rv.Value), nil
		}
	case Quantity:
		if rv, ok := r.(Quantity); ok {
			v, ok, err := convertUnit(s, rv.Value.Value, rv.Unit, lv.Unit)
			if err != nil || !ok {
				return false, ignoreMissingConverter(err)
			}
			return decimalEquivalent(lv.Value.Value, v), nil
		}
	case Ratio:
		if rv, ok := r.(Ratio); ok {
			return ratioEquivalent(s, lv, rv)
		}
	case Code:
		if rv, ok := r.(Code); ok {
			return lv.Code == rv.Code && lv.System == rv.System, nil
		}
	case Concept:
		if rv, ok := r.(Concept); ok {
			for _, lc := range lv.Codes {
				for _, rc := range rv.Codes {
					if lc.Code == rc.Code && lc.System == rc.System {
						return true, nil
					}
				}
			}
			return false, nil
		}
	case Date, DateTime, Time:
		lp, _ := temporalPrecision(l)
		rp, isTemporal := temporalPrecision(r)
		if !isTemporal || lp != rp {
			return false, nil
		}
		c, ok, matched := compareTemporal(l, r)
		return matched && ok && c == 0, nil
	case Interval:
		if rv, ok := r.(Interval); ok {
			if lv.LowClosed != rv.LowClosed || lv.HighClosed != rv.HighClosed {
				return false, nil
			}
			return equivalentAll(s, []Value{lv.Low, lv.High}, []Value{rv.Low, rv.High})
		}
	case List:
		if rv, ok := r.(List); ok {
			if len(lv) != len(rv) {
				return false, nil
			}
			return equivalentAll(s, lv, rv)
		}
	case Tuple:
		if rv, ok := r.(Tuple); ok {
			rvs, ok := alignTuple(lv, rv)
			if !ok {
				return false, nil
			}
			return equivalentAll(s, tupleValues(lv), rvs)
		}
	}
	return false, nil
}

func equivalentAll(s *State, l, r []Value) (bool, error) {
	for i := range l {
		eq, err := Equivalent(s, l[i], r[i])
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

// ignoreMissingConverter treats a missing converter as "not equivalent"
// since equivalence is total.
func ignoreMissingConverter(err error) error {
	if err == ErrNoUnitConverter {
		return nil
	}
	return err
}

func normalizeString(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// decimalEquivalent compares at the precision of the less precise operand.
func decimalEquivalent(x, y *apd.Decimal) bool {
	prec := uint32(min(x.NumDigits(), y.NumDigits()))
	ctx := apd.BaseContext.WithPrecision(prec)
	var a, b apd.Decimal
	if _, err := ctx.Round(&a, x); err != nil {
		return false
	}
	if _, err := ctx.Round(&b, y); err != nil {
		return false
	}
	return a.Cmp(&b) == 0
}

// ratioEquivalent cross-multiplies: a:b ~ c:d iff a*d ~ c*b.
func ratioEquivalent(s *State, l, r Ratio) (bool, error) {
	ad, err := Multiply(s, l.Numerator, r.Denominator)
	if err != nil {
		return false, ignoreMissingConverter(err)
	}
	cb, err := Multiply(s, r.Numerator, l.Denominator)
	if err != nil {
		return false, ignoreMissingConverter(err)
	}
	return Equivalent(s, ad, cb)
}

// alignTuple returns the values of r in the field order of l.
func alignTuple(l, r Tuple) ([]Value, bool) {
	if len(l) != len(r) {
		return nil, false
	}
	out := make([]Value, 0, len(l))
	for _, f := range l {
		v, ok := r.Field(f.Name)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func tupleValues(t Tuple) []Value {
	out := make([]Value, 0, len(t))
	for _, f := range t {
		out = append(out, f.Value)
	}
	return out
}

// Compare orders two values of the same type. ok is false when the order is
// indeterminate, e.g. for temporals of differing precision or quantities
// with incompatible units.
func Compare(s *State, l, r Value) (c int, ok bool, err error) {
	if l == nil || r == nil {
		return 0, false, nil
	}
	l, r = promote(l, r)

	switch lv := l.(type) {
	case Integer:
		if rv, isType := r.(Integer); isType {
			return cmp.Compare(lv, rv), true, nil
		}
	case Long:
		if rv, isType := r.(Long); isType {
			return cmp.Compare(lv, rv), true, nil
		}
	case Decimal:
		if rv, isType := r.(Decimal); isType {
			return lv.Value.Cmp(rv.Value), true, nil
		}
	case String:
		if rv, isType := r.(String); isType {
			return strings.Compare(string(lv), string(rv)), true, nil
		}
	case Quantity:
		if rv, isType := r.(Quantity); isType {
			return compareQuantities(s, lv, rv)
		}
	case Date, DateTime, Time:
		c, ok, matched := compareTemporal(l, r)
		if matched {
			return c, ok, nil
		}
	}
	return 0, false, &InvalidOperatorArgumentError{
		Expected: "comparable operands of the same type (Integer, Long, Decimal, String, Quantity, Date, DateTime or Time)",
		Found:    fmt.Sprintf("Compare(%s, %s)", TypeName(l), TypeName(r)),
	}
}

// compareQuantities compares after converting r into the unit of l.
func compareQuantities(s *State, l, r Quantity) (int, bool, error) {
	v, ok, err := convertUnit(s, r.Value.Value, r.Unit, l.Unit)
	if err != nil || !ok {
		return 0, false, err
	}
	return l.Value.Value.Cmp(v), true, nil
}

func Less(s *State, l, r Value) (Value, error) {
	return ordered(s, l, r, func(c int) bool { return c < 0 })
}

func Greater(s *State, l, r Value) (Value, error) {
	return ordered(s, l, r, func(c int) bool { return c > 0 })
}

func LessOrEqual(s *State, l, r Value) (Value, error) {
	return ordered(s, l, r, func(c int) bool { return c <= 0 })
}

func GreaterOrEqual(s *State, l, r Value) (Value, error) {
	return ordered(s, l, r, func(c int) bool { return c >= 0 })
}

func ordered(s *State, l, r Value, pred func(int) bool) (Value, error) {
	c, ok, err := Compare(s, l, r)
	if err != nil || !ok {
		return nil, err
	}
	return Boolean(pred(c)), nil
}
