package cql

import "time"

// Indexer returns the element (or character) at a 0-based index. Out of
// range indexes yield Null.
func Indexer(s *State, source, index Value) (Value, error) {
	if source == nil || index == nil {
		return nil, nil
	}
	const expected = "Indexer(String, Integer) or Indexer(List<T>, Integer)"
	i, ok := index.(Integer)
	if !ok {
		return nil, invalidArguments("Indexer", expected, source, index)
	}
	if i < 0 {
		switch source.(type) {
		case String, List:
			return nil, nil
		}
		return nil, invalidArguments("Indexer", expected, source, index)
	}
	switch src := source.(type) {
	case String:
		runes := []rune(string(src))
		if int(i) >= len(runes) {
			return nil, nil
		}
		return String(runes[i]), nil
	case List:
		if int(i) >= len(src) {
			return nil, nil
		}
		return src[i], nil
	}
	return nil, invalidArguments("Indexer", expected, source, index)
}

// Slice returns the elements whose index is at least start and, unless end
// is Null, less than end. A Null start counts from 0.
func Slice(s *State, source, start, end Value) (Value, error) {
	if source == nil {
		return nil, nil
	}
	const expected = "Slice(List<T>, Integer, Integer)"
	l, ok := source.(List)
	if !ok {
		return nil, invalidArguments("Slice", expected, source, start, end)
	}
	from := 0
	switch v := start.(type) {
	case nil:
	case Integer:
		from = int(v)
	default:
		return nil, invalidArguments("Slice", expected, source, start, end)
	}
	to := len(l)
	switch v := end.(type) {
	case nil:
	case Integer:
		to = min(int(v), len(l))
	default:
		return nil, invalidArguments("Slice", expected, source, start, end)
	}

	result := List{}
	for i := max(from, 0); i < to; i++ {
		result = append(result, l[i])
	}
	return result, nil
}

// Skip drops the first n elements. A Null count keeps the whole list.
func Skip(s *State, source, n Value) (Value, error) {
	if i, ok := n.(Integer); ok && i < 0 {
		return Slice(s, source, Integer(0), Integer(0))
	}
	return Slice(s, source, n, nil)
}

// Take keeps the first n elements. A Null count yields an empty list.
func Take(s *State, source, n Value) (Value, error) {
	if n == nil {
		return Slice(s, source, Integer(0), Integer(0))
	}
	return Slice(s, source, Integer(0), n)
}

// Tail drops the first element.
func Tail(s *State, source Value) (Value, error) {
	return Slice(s, source, Integer(1), nil)
}

// ProperContains reports strict membership of x in a List or Interval.
func ProperContains(s *State, container, x Value) (Value, error) {
	switch c := container.(type) {
	case nil:
		return Boolean(false), nil
	case Interval:
		return properContainsInterval(s, c, x)
	case List:
		return properContainsList(s, c, x)
	}
	return nil, invalidArguments("ProperContains", "ProperContains(List<T>, T) or ProperContains(Interval<T>, T)", container, x)
}

// properContainsList requires x to be present by equality and at least one
// further element to exist.
func properContainsList(s *State, l List, x Value) (Value, error) {
	if len(l) < 2 {
		return Boolean(false), nil
	}
	if x == nil {
		hasNull, hasOther := false, false
		for _, e := range l {
			if e == nil {
				hasNull = true
			} else {
				hasOther = true
			}
		}
		return Boolean(hasNull && hasOther), nil
	}

	found, unknown := false, false
	for _, e := range l {
		eq, err := Equal(s, e, x)
		if err != nil {
			return nil, err
		}
		switch eq {
		case nil:
			unknown = true
		case Boolean(true):
			found = true
		}
	}
	if found {
		return Boolean(true), nil
	}
	if unknown {
		return nil, nil
	}
	return Boolean(false), nil
}

// properContainsInterval tests low < x < high regardless of the interval's
// own boundary inclusivity.
func properContainsInterval(s *State, iv Interval, x Value) (Value, error) {
	afterLow, err := Greater(s, x, iv.Low)
	if err != nil {
		return nil, err
	}
	beforeHigh, err := Less(s, x, iv.High)
	if err != nil {
		return nil, err
	}
	if afterLow == nil || beforeHigh == nil {
		return nil, nil
	}
	return afterLow.(Boolean) && beforeHigh.(Boolean), nil
}

// Children decomposes a value one structural level.
func Children(s *State, source Value) (Value, error) {
	if source == nil {
		return nil, nil
	}
	return children(source), nil
}

func children(source Value) List {
	out := List{}
	switch v := source.(type) {
	case Boolean, Integer, Long, Decimal, String:
		out = append(out, v)
	case Quantity:
		out = append(out, v.Value, String(normalizeUnit(v.Unit)))
	case Ratio:
		out = append(out, v.Numerator, v.Denominator)
	case Code:
		out = append(out, codeChildren(v)...)
	case Concept:
		for _, c := range v.Codes {
			out = append(out, codeChildren(c)...)
		}
		out = append(out, optionalString(v.Display))
	case Date:
		out = append(out, temporalChildren(v.Value, 0, v.Precision)...)
	case DateTime:
		out = append(out, temporalChildren(v.Value, 0, v.Precision)...)
		out = append(out, v.OffsetHours())
	case Time:
		out = append(out, temporalChildren(v.Value, PrecisionHour.DateTimeIndex(), v.Precision)...)
	case Interval:
		out = append(out, v.Low, v.High)
	case Tuple:
		out = append(out, tupleValues(v)...)
	case List:
		for _, e := range v {
			if e == nil {
				continue
			}
			out = append(out, children(e)...)
		}
	}
	return out
}

func codeChildren(c Code) []Value {
	return []Value{
		optionalString(c.System),
		optionalString(c.Version),
		optionalString(c.Code),
		optionalString(c.Display),
	}
}

func optionalString(s string) Value {
	if s == "" {
		return nil
	}
	return String(s)
}

func temporalChildren(t time.Time, from int, p Precision) []Value {
	comps := components(t)
	out := make([]Value, 0, p.DateTimeIndex()-from+1)
	for i := from; i <= p.DateTimeIndex(); i++ {
		out = append(out, Integer(comps[i]))
	}
	return out
}

// Descendants flattens a value recursively through lists, tuples and
// interval endpoints.
func Descendants(s *State, source Value) (Value, error) {
	if source == nil {
		return nil, nil
	}
	out := List{}
	collectDescendants(source, &out)
	return out, nil
}

func collectDescendants(v Value, into *List) {
	switch v := v.(type) {
	case List:
		for _, e := range v {
			collectDescendants(e, into)
		}
	case Tuple:
		for _, f := range v {
			collectDescendants(f.Value, into)
		}
	case Interval:
		collectDescendants(v.Low, into)
		collectDescendants(v.High, into)
	default:
		*into = append(*into, v)
	}
}

// Width returns high - low of an interval.
func Width(s *State, v Value) (Value, error) {
	switch iv := v.(type) {
	case nil:
		return nil, nil
	case Interval:
		return Subtract(s, iv.High, iv.Low)
	}
	return nil, invalidArguments("Width", "Width(Interval<T>)", v)
}
