package cql

import (
	"fmt"
	"slices"
	"strings"
)

// sourceList returns the list behind an aggregate source. A Null source
// yields a nil list.
func sourceList(op, expected string, source Value) (List, error) {
	switch src := source.(type) {
	case nil:
		return nil, nil
	case List:
		if src == nil {
			return List{}, nil
		}
		return src, nil
	}
	return nil, invalidArguments(op, expected, source)
}

func nonNull(l List) List {
	out := make(List, 0, len(l))
	for _, v := range l {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// Count returns the number of non-null elements.
func Count(s *State, source Value) (Value, error) {
	if source == nil {
		return nil, nil
	}
	l, err := sourceList("Count", "Count(List<T>)", source)
	if err != nil {
		return nil, err
	}
	return Integer(len(nonNull(l))), nil
}

func Sum(s *State, source Value) (Value, error) {
	if source == nil {
		return nil, nil
	}
	l, err := sourceList("Sum", "Sum(List<Integer>), Sum(List<Long>), Sum(List<Decimal>) or Sum(List<Quantity>)", source)
	if err != nil {
		return nil, err
	}
	var sum Value
	for _, v := range nonNull(l) {
		if sum == nil {
			sum = v
			continue
		}
		if sum, err = Add(s, sum, v); err != nil {
			return nil, err
		}
		if sum == nil {
			return nil, nil
		}
	}
	return sum, nil
}

// Avg returns the arithmetic mean of the non-null elements as a Decimal or
// Quantity.
func Avg(s *State, source Value) (Value, error) {
	if source == nil {
		return nil, nil
	}
	l, err := sourceList("Avg", "Avg(List<Decimal>) or Avg(List<Quantity>)", source)
	if err != nil {
		return nil, err
	}
	values := nonNull(l)
	if len(values) == 0 {
		return nil, nil
	}
	sum, err := Sum(s, values)
	if err != nil || sum == nil {
		return nil, err
	}
	return Divide(s, sum, NewDecimal(int64(len(values)), 0))
}

func Min(s *State, source Value) (Value, error) {
	return extremum(s, "Min", source, Less)
}

func Max(s *State, source Value) (Value, error) {
	return extremum(s, "Max", source, Greater)
}

// extremum keeps the current candidate whenever better is indeterminate.
func extremum(s *State, op string, source Value, better binaryOperator) (Value, error) {
	if source == nil {
		return nil, nil
	}
	expected := fmt.Sprintf("%[1]s(List<Integer>), %[1]s(List<Long>), %[1]s(List<Decimal>), %[1]s(List<Quantity>), "+
		"%[1]s(List<Date>), %[1]s(List<DateTime>), %[1]s(List<Time>) or %[1]s(List<String>)", op)
	l, err := sourceList(op, expected, source)
	if err != nil {
		return nil, err
	}
	var result Value
	for _, v := range nonNull(l) {
		if result == nil {
			result = v
			continue
		}
		b, err := better(s, v, result)
		if err != nil {
			return nil, err
		}
		if b == Boolean(true) {
			result = v
		}
	}
	return result, nil
}

// Median sorts the non-null elements and returns the middle one, or the
// mean of both middle elements for an even count.
func Median(s *State, source Value) (Value, error) {
	if source == nil {
		return nil, nil
	}
	const expected = "Median(List<Integer>), Median(List<Long>), Median(List<Decimal>) or Median(List<Quantity>)"
	l, err := sourceList("Median", expected, source)
	if err != nil {
		return nil, err
	}
	values, err := sortValues(s, nonNull(l))
	if err != nil {
		return nil, err
	}
	n := len(values)
	if n == 0 {
		return nil, nil
	}
	if n%2 != 0 {
		return values[n/2], nil
	}

	sum, err := Add(s, values[n/2-1], values[n/2])
	if err != nil {
		return nil, err
	}
	switch values[0].(type) {
	case Integer:
		return TruncatedDivide(s, sum, Integer(2))
	case Long:
		return TruncatedDivide(s, sum, Long(2))
	case Decimal, Quantity:
		return Divide(s, sum, NewDecimal(20, -1))
	}
	return nil, invalidArguments("Median", expected, l)
}

// sortValues returns a sorted copy of values. Indeterminate comparisons keep
// the original relative order.
func sortValues(s *State, values List) (List, error) {
	sorted := slices.Clone(values)
	var sortErr error
	slices.SortStableFunc(sorted, func(a, b Value) int {
		if sortErr != nil {
			return 0
		}
		c, ok, err := Compare(s, a, b)
		if err != nil {
			sortErr = err
			return 0
		}
		if !ok {
			return 0
		}
		return c
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return sorted, nil
}

// Variance is the sample variance: the sum of squared deviations from the
// mean divided by n-1.
func Variance(s *State, source Value) (Value, error) {
	if source == nil {
		return nil, nil
	}
	const expected = "Variance(List<Decimal>) or Variance(List<Quantity>)"
	squares, ok, err := squaredDeviations(s, "Variance", expected, source)
	if err != nil || !ok {
		return nil, err
	}
	sum, err := Sum(s, squares)
	if err != nil {
		return nil, err
	}
	return Divide(s, sum, NewDecimal(int64(len(squares)-1), 0))
}

// PopulationVariance is the mean of the squared deviations from the mean.
func PopulationVariance(s *State, source Value) (Value, error) {
	if source == nil {
		return nil, nil
	}
	const expected = "PopulationVariance(List<Decimal>) or PopulationVariance(List<Quantity>)"
	squares, ok, err := squaredDeviations(s, "PopulationVariance", expected, source)
	if err != nil || !ok {
		return nil, err
	}
	return Avg(s, squares)
}

// squaredDeviations returns (x - mean)^2 for each non-null element. ok is
// false when there are no elements or the mean is Null.
func squaredDeviations(s *State, op, expected string, source Value) (List, bool, error) {
	l, err := sourceList(op, expected, source)
	if err != nil {
		return nil, false, err
	}
	values := make(List, 0, len(l))
	for _, v := range nonNull(l) {
		switch v.(type) {
		case Integer, Long:
			d, _ := toDecimal(v)
			values = append(values, d)
		case Decimal, Quantity:
			values = append(values, v)
		default:
			return nil, false, invalidArguments(op, expected, List{v})
		}
	}
	if len(values) == 0 {
		return nil, false, nil
	}
	mean, err := Avg(s, values)
	if err != nil || mean == nil {
		return nil, false, err
	}
	squares := make(List, 0, len(values))
	for _, v := range values {
		diff, err := Subtract(s, v, mean)
		if err != nil {
			return nil, false, err
		}
		sq, err := Multiply(s, diff, diff)
		if err != nil {
			return nil, false, err
		}
		squares = append(squares, sq)
	}
	return squares, true, nil
}

// AllTrue is true when no non-null element is false.
func AllTrue(s *State, source Value) (Value, error) {
	return booleanAggregate("AllTrue", source, false)
}

// AnyTrue is true when some element is true.
func AnyTrue(s *State, source Value) (Value, error) {
	return booleanAggregate("AnyTrue", source, true)
}

// booleanAggregate returns decisive as soon as an element equals it and
// !decisive otherwise.
func booleanAggregate(op string, source Value, decisive Boolean) (Value, error) {
	if source == nil {
		return nil, nil
	}
	expected := op + "(List<Boolean>)"
	l, err := sourceList(op, expected, source)
	if err != nil {
		return nil, err
	}
	for _, v := range l {
		switch b := v.(type) {
		case nil:
		case Boolean:
			if b == decisive {
				return decisive, nil
			}
		default:
			return nil, invalidArguments(op, expected, List{v})
		}
	}
	return !decisive, nil
}

// Combine joins strings with separator. A Null element or separator makes
// the result Null.
func Combine(s *State, source, separator Value) (Value, error) {
	if source == nil || separator == nil {
		return nil, nil
	}
	const expected = "Combine(List<String>) or Combine(List<String>, String)"
	sep, ok := separator.(String)
	if !ok {
		return nil, invalidArguments("Combine", expected, source, separator)
	}
	l, err := sourceList("Combine", expected, source)
	if err != nil {
		return nil, invalidArguments("Combine", expected, source, separator)
	}
	var b strings.Builder
	for i, v := range l {
		switch str := v.(type) {
		case nil:
			return nil, nil
		case String:
			if i > 0 {
				b.WriteString(string(sep))
			}
			b.WriteString(string(str))
		default:
			return nil, invalidArguments("Combine", expected, List{v}, separator)
		}
	}
	return String(b.String()), nil
}
