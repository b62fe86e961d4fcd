package cql

import (
	"github.com/cockroachdb/apd/v3"

	"github.com/damedic/cql-engine-go/internal/overflow"
)

const (
	addSignatures = "Add(Integer, Integer), Add(Long, Long), Add(Decimal, Decimal), Add(Quantity, Quantity), " +
		"Add(Date, Quantity), Add(DateTime, Quantity), Add(Time, Quantity), Add(Interval, Interval) or Add(String, String)"
	subtractSignatures = "Subtract(Integer, Integer), Subtract(Long, Long), Subtract(Decimal, Decimal), Subtract(Quantity, Quantity), " +
		"Subtract(Date, Quantity), Subtract(DateTime, Quantity), Subtract(Time, Quantity) or Subtract(Interval, Interval)"
	multiplySignatures = "Multiply(Integer, Integer), Multiply(Long, Long), Multiply(Decimal, Decimal), Multiply(Decimal, Quantity), " +
		"Multiply(Quantity, Decimal), Multiply(Quantity, Quantity) or Multiply(Interval, Interval)"
	divideSignatures = "Divide(Decimal, Decimal), Divide(Quantity, Decimal), Divide(Quantity, Quantity) or Divide(Interval, Interval)"
	truncatedDivideSignatures = "TruncatedDivide(Integer, Integer), TruncatedDivide(Long, Long) or TruncatedDivide(Decimal, Decimal)"
	negateSignatures          = "Negate(Integer), Negate(Long), Negate(Decimal) or Negate(Quantity)"
)

type binaryOperator func(s *State, l, r Value) (Value, error)

// Add implements the + operator.
func Add(s *State, l, r Value) (Value, error) {
	if l == nil || r == nil {
		return nil, nil
	}
	l, r = promote(l, r)

	switch lv := l.(type) {
	case Integer:
		if rv, ok := r.(Integer); ok {
			return checkedInteger(overflow.Add(int32(lv), int32(rv)))
		}
	case Long:
		if rv, ok := r.(Long); ok {
			return checkedLong(overflow.Add(int64(lv), int64(rv)))
		}
	case Decimal:
		if rv, ok := r.(Decimal); ok {
			return decimalResult(applyDecimal((*apd.Context).Add, lv.Value, rv.Value))
		}
	case Quantity:
		if rv, ok := r.(Quantity); ok {
			return computeWithConvertedUnits(s, lv, rv, quantityComputation((*apd.Context).Add))
		}
	case Date, DateTime, Time:
		if q, ok := r.(Quantity); ok {
			return addQuantityToTemporal("Add", l, q, 1)
		}
	case Interval:
		if rv, ok := r.(Interval); ok {
			return intervalArithmetic(s, Add, lv, rv)
		}
	case String:
		if rv, ok := r.(String); ok {
			return lv + rv, nil
		}
	}
	return nil, invalidArguments("Add", addSignatures, l, r)
}

// Subtract implements the - operator.
func Subtract(s *State, l, r Value) (Value, error) {
	if l == nil || r == nil {
		return nil, nil
	}
	l, r = promote(l, r)

	switch lv := l.(type) {
	case Integer:
		if rv, ok := r.(Integer); ok {
			return checkedInteger(overflow.Sub(int32(lv), int32(rv)))
		}
	case Long:
		if rv, ok := r.(Long); ok {
			return checkedLong(overflow.Sub(int64(lv), int64(rv)))
		}
	case Decimal:
		if rv, ok := r.(Decimal); ok {
			return decimalResult(applyDecimal((*apd.Context).Sub, lv.Value, rv.Value))
		}
	case Quantity:
		if rv, ok := r.(Quantity); ok {
			return computeWithConvertedUnits(s, lv, rv, quantityComputation((*apd.Context).Sub))
		}
	case Date, DateTime, Time:
		if q, ok := r.(Quantity); ok {
			return addQuantityToTemporal("Subtract", l, q, -1)
		}
	case Interval:
		if rv, ok := r.(Interval); ok {
			return intervalArithmetic(s, Subtract, lv, rv)
		}
	}
	return nil, invalidArguments("Subtract", subtractSignatures, l, r)
}

// Multiply implements the * operator.
func Multiply(s *State, l, r Value) (Value, error) {
	if l == nil || r == nil {
		return nil, nil
	}
	l, r = promoteWithQuantity(l, r)

	switch lv := l.(type) {
	case Integer:
		if rv, ok := r.(Integer); ok {
			return checkedInteger(overflow.Mul(int32(lv), int32(rv)))
		}
	case Long:
		if rv, ok := r.(Long); ok {
			return checkedLong(overflow.Mul(int64(lv), int64(rv)))
		}
	case Decimal:
		switch rv := r.(type) {
		case Decimal:
			return decimalResult(applyDecimal((*apd.Context).Mul, lv.Value, rv.Value))
		case Quantity:
			return scaleQuantity(rv, lv)
		}
	case Quantity:
		switch rv := r.(type) {
		case Quantity:
			return multiplyQuantities(s, lv, rv)
		case Decimal:
			return scaleQuantity(lv, rv)
		}
	case Interval:
		if rv, ok := r.(Interval); ok {
			return intervalArithmetic(s, Multiply, lv, rv)
		}
	}
	return nil, invalidArguments("Multiply", multiplySignatures, l, r)
}

// Divide implements the / operator. Integer operands are divided as Decimals.
func Divide(s *State, l, r Value) (Value, error) {
	if l == nil || r == nil {
		return nil, nil
	}
	l, r = promoteWithQuantity(l, r)
	if d, ok := toDecimal(l); ok {
		l = d
	}
	if d, ok := toDecimal(r); ok {
		r = d
	}

	switch lv := l.(type) {
	case Decimal:
		if rv, ok := r.(Decimal); ok {
			return decimalResult(divideDecimals(lv.Value, rv.Value))
		}
	case Quantity:
		switch rv := r.(type) {
		case Quantity:
			return divideQuantities(s, lv, rv)
		case Decimal:
			v, err := divideDecimals(lv.Value.Value, rv.Value)
			if err != nil || v == nil {
				return nil, err
			}
			return NewQuantity(Decimal{Value: v}, lv.Unit), nil
		}
	case Interval:
		if rv, ok := r.(Interval); ok {
			return intervalArithmetic(s, Divide, lv, rv)
		}
	}
	return nil, invalidArguments("Divide", divideSignatures, l, r)
}

// TruncatedDivide implements div. Division by zero yields Null.
func TruncatedDivide(s *State, l, r Value) (Value, error) {
	if l == nil || r == nil {
		return nil, nil
	}
	l, r = promote(l, r)

	switch lv := l.(type) {
	case Integer:
		if rv, ok := r.(Integer); ok {
			return checkedInteger(overflow.Div(int32(lv), int32(rv)))
		}
	case Long:
		if rv, ok := r.(Long); ok {
			return checkedLong(overflow.Div(int64(lv), int64(rv)))
		}
	case Decimal:
		if rv, ok := r.(Decimal); ok {
			if rv.Value.IsZero() {
				return nil, nil
			}
			var res apd.Decimal
			if _, err := defaultAPDContext.QuoInteger(&res, lv.Value, rv.Value); err != nil {
				return nil, err
			}
			return Decimal{Value: &res}, nil
		}
	}
	return nil, invalidArguments("TruncatedDivide", truncatedDivideSignatures, l, r)
}

// Negate implements unary minus.
func Negate(s *State, v Value) (Value, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case Integer:
		return checkedInteger(overflow.Sub(0, int32(v)))
	case Long:
		return checkedLong(overflow.Sub(0, int64(v)))
	case Decimal:
		var res apd.Decimal
		res.Neg(v.Value)
		return Decimal{Value: &res}, nil
	case Quantity:
		var res apd.Decimal
		res.Neg(v.Value.Value)
		return NewQuantity(Decimal{Value: &res}, v.Unit), nil
	}
	return nil, invalidArguments("Negate", negateSignatures, v)
}

// divideDecimals divides exactly when the quotient is representable and
// otherwise floors it to eight fractional digits. A zero divisor yields nil.
func divideDecimals(x, y *apd.Decimal) (*apd.Decimal, error) {
	if y.IsZero() {
		return nil, nil
	}
	ctx := defaultAPDContext.WithPrecision(defaultAPDContext.Precision)
	ctx.Rounding = apd.RoundFloor
	var res apd.Decimal
	cond, err := ctx.Quo(&res, x, y)
	if err != nil {
		return nil, err
	}
	if cond.Inexact() {
		return floorToScale(&res)
	}
	return verifyPrecision(&res)
}

func checkedInteger(v int32, ok bool) (Value, error) {
	if !ok {
		return nil, nil
	}
	return Integer(v), nil
}

func checkedLong(v int64, ok bool) (Value, error) {
	if !ok {
		return nil, nil
	}
	return Long(v), nil
}

func decimalResult(d *apd.Decimal, err error) (Value, error) {
	if err != nil || d == nil {
		return nil, err
	}
	return Decimal{Value: d}, nil
}

func quantityComputation(op decimalOp) unitComputation {
	return func(unit string, lv, rv *apd.Decimal) (Value, error) {
		v, err := applyDecimal(op, lv, rv)
		if err != nil {
			return nil, err
		}
		return NewQuantity(Decimal{Value: v}, unit), nil
	}
}

func scaleQuantity(q Quantity, factor Decimal) (Value, error) {
	v, err := applyDecimal((*apd.Context).Mul, q.Value.Value, factor.Value)
	if err != nil {
		return nil, err
	}
	return NewQuantity(Decimal{Value: v}, q.Unit), nil
}

// promoteWithQuantity extends promote so that Integer and Long operands
// paired with a Quantity become Decimals.
func promoteWithQuantity(l, r Value) (Value, Value) {
	_, lq := l.(Quantity)
	_, rq := r.(Quantity)
	switch {
	case lq:
		if d, ok := toDecimal(r); ok {
			return l, d
		}
	case rq:
		if d, ok := toDecimal(l); ok {
			return d, r
		}
	}
	return promote(l, r)
}

// intervalArithmetic applies op to both endpoint pairs, keeping the
// boundary inclusivity of l.
func intervalArithmetic(s *State, op binaryOperator, l, r Interval) (Value, error) {
	low, err := op(s, l.Low, r.Low)
	if err != nil {
		return nil, err
	}
	high, err := op(s, l.High, r.High)
	if err != nil {
		return nil, err
	}
	return Interval{Low: low, High: high, LowClosed: l.LowClosed, HighClosed: l.HighClosed}, nil
}
