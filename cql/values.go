// Package cql implements the runtime value model and operator semantics of
// the Clinical Quality Language, evaluated over pre-built ELM trees.
//
// The language Null is represented by the nil Value. Operators take the
// evaluation State as first argument and return (Value, error); a nil Value
// with a nil error is a legitimate Null result, a non-nil error is fatal to
// the evaluation.
package cql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Value is a CQL runtime value. The set of implementations is closed.
type Value interface {
	fmt.Stringer
	json.Marshaler
	value()
}

type Boolean bool

func (b Boolean) value() {}
func (b Boolean) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}
func (b Boolean) String() string {
	return strconv.FormatBool(bool(b))
}

type Integer int32

func (i Integer) value() {}
func (i Integer) MarshalJSON() ([]byte, error) {
	return json.Marshal(int32(i))
}
func (i Integer) String() string {
	return strconv.FormatInt(int64(i), 10)
}

type Long int64

func (l Long) value() {}
func (l Long) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(l))
}
func (l Long) String() string {
	return fmt.Sprintf("%dL", int64(l))
}

type Decimal struct {
	Value *apd.Decimal
}

// NewDecimal returns the Decimal coeff * 10^exp.
func NewDecimal(coeff int64, exp int32) Decimal {
	return Decimal{Value: apd.New(coeff, exp)}
}

// ParseDecimal parses a decimal literal.
func ParseDecimal(s string) (Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid Decimal %q: %w", s, err)
	}
	return Decimal{Value: d}, nil
}

func (d Decimal) value() {}
func (d Decimal) MarshalJSON() ([]byte, error) {
	if d.Value == nil || d.Value.Form != apd.Finite {
		return nil, fmt.Errorf("cannot marshal Decimal %v", d.Value)
	}
	return []byte(d.Value.Text('f')), nil
}
func (d Decimal) String() string {
	return d.Value.Text('f')
}

type String string

func (s String) value() {}
func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}
func (s String) String() string {
	return string(s)
}

// IdentityUnit is the dimensionless unit.
const IdentityUnit = "1"

type Quantity struct {
	Value Decimal
	Unit  string
}

// NewQuantity returns a Quantity, normalising an empty unit to IdentityUnit.
func NewQuantity(v Decimal, unit string) Quantity {
	return Quantity{Value: v, Unit: normalizeUnit(unit)}
}

func normalizeUnit(unit string) string {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return IdentityUnit
	}
	return unit
}

func (q Quantity) value() {}
func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Value Decimal `json:"value"`
		Unit  string  `json:"unit"`
	}{q.Value, normalizeUnit(q.Unit)})
}
func (q Quantity) String() string {
	return fmt.Sprintf("%s '%s'", q.Value, normalizeUnit(q.Unit))
}

type Ratio struct {
	Numerator   Quantity
	Denominator Quantity
}

func (r Ratio) value() {}
func (r Ratio) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Numerator   Quantity `json:"numerator"`
		Denominator Quantity `json:"denominator"`
	}{r.Numerator, r.Denominator})
}
func (r Ratio) String() string {
	return fmt.Sprintf("%s:%s", r.Numerator, r.Denominator)
}

type Code struct {
	System  string
	Version string
	Code    string
	Display string
}

func (c Code) value() {}
func (c Code) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		System  string `json:"system,omitempty"`
		Version string `json:"version,omitempty"`
		Code    string `json:"code"`
		Display string `json:"display,omitempty"`
	}{c.System, c.Version, c.Code, c.Display})
}
func (c Code) String() string {
	s := fmt.Sprintf("Code '%s' from '%s'", c.Code, c.System)
	if c.Display != "" {
		s += fmt.Sprintf(" display '%s'", c.Display)
	}
	return s
}

type Concept struct {
	Codes   []Code
	Display string
}

func (c Concept) value() {}
func (c Concept) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Codes   []Code `json:"codes"`
		Display string `json:"display,omitempty"`
	}{c.Codes, c.Display})
}
func (c Concept) String() string {
	codes := make([]string, 0, len(c.Codes))
	for _, code := range c.Codes {
		codes = append(codes, code.String())
	}
	return fmt.Sprintf("Concept { %s }", strings.Join(codes, ", "))
}

// Interval is bounded by Low and High; either may be Null.
type Interval struct {
	Low        Value
	High       Value
	LowClosed  bool
	HighClosed bool
}

func (i Interval) value() {}
func (i Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Low        Value `json:"low"`
		High       Value `json:"high"`
		LowClosed  bool  `json:"lowClosed"`
		HighClosed bool  `json:"highClosed"`
	}{i.Low, i.High, i.LowClosed, i.HighClosed})
}
func (i Interval) String() string {
	lb, hb := "(", ")"
	if i.LowClosed {
		lb = "["
	}
	if i.HighClosed {
		hb = "]"
	}
	return fmt.Sprintf("Interval%s%s, %s%s", lb, Format(i.Low), Format(i.High), hb)
}

// List may contain Null elements.
type List []Value

func (l List) value() {}
func (l List) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Value(l))
}
func (l List) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, v := range l {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Format(v))
	}
	b.WriteString("}")
	return b.String()
}

type TupleField struct {
	Name  string
	Value Value
}

// Tuple keeps fields in insertion order. Field order does not affect equality.
type Tuple []TupleField

// Field returns the named element.
func (t Tuple) Field(name string) (Value, bool) {
	for _, f := range t {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

func (t Tuple) value() {}
func (t Tuple) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		var v []byte
		if f.Value == nil {
			v = []byte("null")
		} else if v, err = f.Value.MarshalJSON(); err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
func (t Tuple) String() string {
	fields := make([]string, 0, len(t))
	for _, f := range t {
		fields = append(fields, fmt.Sprintf("%s: %s", f.Name, Format(f.Value)))
	}
	return fmt.Sprintf("Tuple { %s }", strings.Join(fields, ", "))
}

// Format renders v, including the Null value.
func Format(v Value) string {
	if v == nil {
		return "null"
	}
	return v.String()
}

// TypeName names the runtime type of v, e.g. Integer or List<Decimal>.
func TypeName(v Value) string {
	switch v := v.(type) {
	case nil:
		return "Null"
	case Boolean:
		return "Boolean"
	case Integer:
		return "Integer"
	case Long:
		return "Long"
	case Decimal:
		return "Decimal"
	case String:
		return "String"
	case Date:
		return "Date"
	case Time:
		return "Time"
	case DateTime:
		return "DateTime"
	case Quantity:
		return "Quantity"
	case Ratio:
		return "Ratio"
	case Code:
		return "Code"
	case Concept:
		return "Concept"
	case Interval:
		point := v.Low
		if point == nil {
			point = v.High
		}
		if point == nil {
			return "Interval<Any>"
		}
		return fmt.Sprintf("Interval<%s>", TypeName(point))
	case List:
		for _, e := range v {
			if e != nil {
				return fmt.Sprintf("List<%s>", TypeName(e))
			}
		}
		return "List<Any>"
	case Tuple:
		return "Tuple"
	}
	return fmt.Sprintf("%T", v)
}
