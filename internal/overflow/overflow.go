// Package overflow provides checked integer arithmetic.
//
// Each function reports ok == false when the exact result is not representable
// in the operand type. Callers translate that into the language Null.
package overflow

import "math"

type Integer interface {
	int32 | int64
}

func bounds[T Integer]() (lo, hi int64) {
	var zero T
	switch any(zero).(type) {
	case int32:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

func Add[T Integer](a, b T) (T, bool) {
	c := a + b
	if (c > a) == (b > 0) {
		return c, true
	}
	return c, false
}

func Sub[T Integer](a, b T) (T, bool) {
	c := a - b
	if (c < a) == (b > 0) {
		return c, true
	}
	return c, false
}

func Mul[T Integer](a, b T) (T, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	lo, _ := bounds[T]()
	if (int64(a) == lo && b == -1) || (int64(b) == lo && a == -1) {
		return 0, false
	}
	c := a * b
	if (c < 0) == ((a < 0) != (b < 0)) && c/b == a {
		return c, true
	}
	return c, false
}

// Div is truncated integer division. Division by zero is reported as not ok.
func Div[T Integer](a, b T) (T, bool) {
	if b == 0 {
		return 0, false
	}
	lo, _ := bounds[T]()
	if int64(a) == lo && b == -1 {
		return 0, false
	}
	return a / b, true
}
