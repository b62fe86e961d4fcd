package cql

import (
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// And is three-valued conjunction: false wins over Null.
func And(s *State, l, r Value) (Value, error) {
	lb, ok := booleanOperand(l)
	if !ok {
		return nil, invalidArguments("And", "And(Boolean, Boolean)", l, r)
	}
	rb, ok := booleanOperand(r)
	if !ok {
		return nil, invalidArguments("And", "And(Boolean, Boolean)", l, r)
	}
	switch {
	case lb == Boolean(false) || rb == Boolean(false):
		return Boolean(false), nil
	case lb == nil || rb == nil:
		return nil, nil
	}
	return Boolean(true), nil
}

// Or is three-valued disjunction: true wins over Null.
func Or(s *State, l, r Value) (Value, error) {
	lb, ok := booleanOperand(l)
	if !ok {
		return nil, invalidArguments("Or", "Or(Boolean, Boolean)", l, r)
	}
	rb, ok := booleanOperand(r)
	if !ok {
		return nil, invalidArguments("Or", "Or(Boolean, Boolean)", l, r)
	}
	switch {
	case lb == Boolean(true) || rb == Boolean(true):
		return Boolean(true), nil
	case lb == nil || rb == nil:
		return nil, nil
	}
	return Boolean(false), nil
}

func Not(s *State, v Value) (Value, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case Boolean:
		return !b, nil
	}
	return nil, invalidArguments("Not", "Not(Boolean)", v)
}

// NotEqual is Not(Equal(l, r)).
func NotEqual(s *State, l, r Value) (Value, error) {
	eq, err := Equal(s, l, r)
	if err != nil {
		return nil, err
	}
	return Not(s, eq)
}

func IsNull(s *State, v Value) (Value, error) {
	return Boolean(v == nil), nil
}

// booleanOperand returns v as Boolean or nil. ok is false for other types.
func booleanOperand(v Value) (Value, bool) {
	switch v.(type) {
	case nil, Boolean:
		return v, true
	}
	return nil, false
}

// ToDecimal converts Integer, Long, Boolean and String values. Strings that
// do not parse as a decimal yield Null.
func ToDecimal(s *State, v Value) (Value, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case Integer, Long, Decimal:
		d, _ := toDecimal(v)
		return d, nil
	case Boolean:
		if v {
			return NewDecimal(10, -1), nil
		}
		return NewDecimal(0, -1), nil
	case String:
		d, _, err := apd.NewFromString(strings.TrimSpace(string(v)))
		if err != nil || d.Form != apd.Finite {
			return nil, nil
		}
		return decimalResult(verifyPrecision(d))
	}
	return nil, invalidArguments("ToDecimal", "ToDecimal(Integer), ToDecimal(Long), ToDecimal(Boolean) or ToDecimal(String)", v)
}

// ToLong converts Integer, Boolean and String values. Out of range or
// unparseable strings yield Null.
func ToLong(s *State, v Value) (Value, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case Integer:
		return Long(v), nil
	case Long:
		return v, nil
	case Boolean:
		if v {
			return Long(1), nil
		}
		return Long(0), nil
	case String:
		d, _, err := apd.NewFromString(strings.TrimSpace(string(v)))
		if err != nil || d.Form != apd.Finite || d.Exponent < 0 {
			return nil, nil
		}
		i, err := d.Int64()
		if err != nil {
			return nil, nil
		}
		return Long(i), nil
	}
	return nil, invalidArguments("ToLong", "ToLong(Integer), ToLong(Boolean) or ToLong(String)", v)
}
