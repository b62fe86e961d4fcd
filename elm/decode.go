package elm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// operatorTypes are node types with an "operand" member (object or array).
var operatorTypes = map[string]bool{
	"Add":             true,
	"Subtract":        true,
	"Multiply":        true,
	"Divide":          true,
	"TruncatedDivide": true,
	"Negate":          true,
	"Equal":           true,
	"Equivalent":      true,
	"NotEqual":        true,
	"Less":            true,
	"Greater":         true,
	"LessOrEqual":     true,
	"GreaterOrEqual":  true,
	"And":             true,
	"Or":              true,
	"Not":             true,
	"IsNull":          true,
	"Indexer":         true,
	"ProperContains":  true,
	"Width":           true,
	"ToDecimal":       true,
	"ToLong":          true,
}

// sourceTypes are node types with a single "source" member.
var sourceTypes = map[string]bool{
	"Count":              true,
	"Sum":                true,
	"Avg":                true,
	"Min":                true,
	"Max":                true,
	"Median":             true,
	"Variance":           true,
	"PopulationVariance": true,
	"AllTrue":            true,
	"AnyTrue":            true,
	"Children":           true,
	"Descendants":        true,
}

type libraryJSON struct {
	Library struct {
		Identifier VersionedIdentifier `json:"identifier"`
		Includes   struct {
			Def []IncludeDef `json:"def"`
		} `json:"includes"`
		CodeSystems struct {
			Def []CodeSystemDef `json:"def"`
		} `json:"codeSystems"`
		Statements struct {
			Def []struct {
				Name        string          `json:"name"`
				Context     string          `json:"context"`
				AccessLevel string          `json:"accessLevel"`
				Expression  json.RawMessage `json:"expression"`
			} `json:"def"`
		} `json:"statements"`
	} `json:"library"`
}

// DecodeLibrary reads a library in the ELM JSON serialization.
func DecodeLibrary(r io.Reader) (*Library, error) {
	var raw libraryJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode library: %w", err)
	}
	if raw.Library.Identifier.ID == "" {
		return nil, fmt.Errorf("decode library: missing identifier")
	}

	lib := &Library{
		Identifier:  raw.Library.Identifier,
		Includes:    raw.Library.Includes.Def,
		CodeSystems: raw.Library.CodeSystems.Def,
	}
	for _, def := range raw.Library.Statements.Def {
		path := fmt.Sprintf("%s.%s", lib.Identifier.ID, def.Name)
		expr, err := decodeExpression(def.Expression, path)
		if err != nil {
			return nil, err
		}
		lib.Statements = append(lib.Statements, &ExpressionDef{
			Name:        def.Name,
			Context:     def.Context,
			AccessLevel: def.AccessLevel,
			Expression:  expr,
		})
	}
	return lib, nil
}

// DecodeExpression decodes a single ELM JSON expression node.
func DecodeExpression(data []byte) (Expression, error) {
	return decodeExpression(data, "$")
}

func decodeExpression(data json.RawMessage, path string) (Expression, error) {
	if isAbsent(data) {
		return nil, fmt.Errorf("%s: missing expression", path)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var typ string
	if err := json.Unmarshal(fields["type"], &typ); err != nil || typ == "" {
		return nil, fmt.Errorf("%s: missing node type", path)
	}
	path = fmt.Sprintf("%s(%s)", path, typ)

	str := func(name string) (string, error) {
		var s string
		if isAbsent(fields[name]) {
			return "", nil
		}
		if err := json.Unmarshal(fields[name], &s); err != nil {
			return "", fmt.Errorf("%s.%s: %w", path, name, err)
		}
		return s, nil
	}
	child := func(name string) (Expression, error) {
		return decodeExpression(fields[name], path+"."+name)
	}
	optional := func(name string) (Expression, error) {
		if isAbsent(fields[name]) {
			return nil, nil
		}
		return child(name)
	}

	switch {
	case operatorTypes[typ]:
		operands, err := decodeOperands(fields["operand"], path+".operand")
		if err != nil {
			return nil, err
		}
		return Operator{Name: typ, Operands: operands}, nil
	case sourceTypes[typ]:
		source, err := child("source")
		if err != nil {
			return nil, err
		}
		return SourceOperator{Name: typ, Source: source}, nil
	}

	switch typ {
	case "Literal":
		valueType, err := str("valueType")
		if err != nil {
			return nil, err
		}
		value, err := str("value")
		if err != nil {
			return nil, err
		}
		return Literal{ValueType: valueType, Value: value}, nil
	case "Null":
		return Null{}, nil
	case "Quantity":
		return decodeQuantity(fields, path)
	case "Ratio":
		var r Ratio
		for name, q := range map[string]*Quantity{"numerator": &r.Numerator, "denominator": &r.Denominator} {
			var qf map[string]json.RawMessage
			if err := json.Unmarshal(fields[name], &qf); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", path, name, err)
			}
			v, err := decodeQuantity(qf, path+"."+name)
			if err != nil {
				return nil, err
			}
			*q = v
		}
		return r, nil
	case "List":
		elements, err := decodeList(fields["element"], path+".element")
		if err != nil {
			return nil, err
		}
		return List{Elements: elements}, nil
	case "Interval":
		iv := Interval{LowClosed: true, HighClosed: true}
		for name, b := range map[string]*bool{"lowClosed": &iv.LowClosed, "highClosed": &iv.HighClosed} {
			if isAbsent(fields[name]) {
				continue
			}
			if err := json.Unmarshal(fields[name], b); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", path, name, err)
			}
		}
		var err error
		if iv.Low, err = child("low"); err != nil {
			return nil, err
		}
		if iv.High, err = child("high"); err != nil {
			return nil, err
		}
		return iv, nil
	case "Tuple":
		var elements []struct {
			Name  string          `json:"name"`
			Value json.RawMessage `json:"value"`
		}
		if !isAbsent(fields["element"]) {
			if err := json.Unmarshal(fields["element"], &elements); err != nil {
				return nil, fmt.Errorf("%s.element: %w", path, err)
			}
		}
		t := Tuple{}
		for i, e := range elements {
			v, err := decodeExpression(e.Value, fmt.Sprintf("%s.element[%d]", path, i))
			if err != nil {
				return nil, err
			}
			t.Elements = append(t.Elements, TupleElement{Name: e.Name, Value: v})
		}
		return t, nil
	case "Code":
		var c struct {
			Code    string `json:"code"`
			Display string `json:"display"`
			System  struct {
				Name string `json:"name"`
			} `json:"system"`
		}
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return Code{Code: c.Code, System: c.System.Name, Display: c.Display}, nil
	case "ExpressionRef":
		name, err := str("name")
		if err != nil {
			return nil, err
		}
		libraryName, err := str("libraryName")
		if err != nil {
			return nil, err
		}
		return ExpressionRef{Name: name, LibraryName: libraryName}, nil
	case "Retrieve":
		dataType, err := str("dataType")
		if err != nil {
			return nil, err
		}
		return Retrieve{DataType: dataType}, nil
	case "Combine":
		source, err := child("source")
		if err != nil {
			return nil, err
		}
		separator, err := optional("separator")
		if err != nil {
			return nil, err
		}
		return Combine{Source: source, Separator: separator}, nil
	case "Slice":
		source, err := child("source")
		if err != nil {
			return nil, err
		}
		start, err := optional("startIndex")
		if err != nil {
			return nil, err
		}
		end, err := optional("endIndex")
		if err != nil {
			return nil, err
		}
		return Slice{Source: source, StartIndex: start, EndIndex: end}, nil
	case "Date", "DateTime", "Time":
		c := TemporalConstructor{Name: typ}
		components := []struct {
			name string
			dst  *Expression
		}{
			{"year", &c.Year},
			{"month", &c.Month},
			{"day", &c.Day},
			{"hour", &c.Hour},
			{"minute", &c.Minute},
			{"second", &c.Second},
			{"millisecond", &c.Millisecond},
			{"timezoneOffset", &c.TimezoneOffset},
		}
		for _, comp := range components {
			e, err := optional(comp.name)
			if err != nil {
				return nil, err
			}
			*comp.dst = e
		}
		if typ == "Time" && c.Hour == nil {
			return nil, fmt.Errorf("%s: missing hour", path)
		}
		if typ != "Time" && c.Year == nil {
			return nil, fmt.Errorf("%s: missing year", path)
		}
		return c, nil
	}
	return nil, fmt.Errorf("%s: unsupported expression type", path)
}

func decodeQuantity(fields map[string]json.RawMessage, path string) (Quantity, error) {
	var q Quantity
	if !isAbsent(fields["value"]) {
		var n json.Number
		if err := json.Unmarshal(fields["value"], &n); err != nil {
			return Quantity{}, fmt.Errorf("%s.value: %w", path, err)
		}
		q.Value = n.String()
	}
	if !isAbsent(fields["unit"]) {
		if err := json.Unmarshal(fields["unit"], &q.Unit); err != nil {
			return Quantity{}, fmt.Errorf("%s.unit: %w", path, err)
		}
	}
	return q, nil
}

// decodeOperands accepts both the unary (object) and n-ary (array) form.
func decodeOperands(data json.RawMessage, path string) ([]Expression, error) {
	if isAbsent(data) {
		return nil, fmt.Errorf("%s: missing operand", path)
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		return decodeList(data, path)
	}
	e, err := decodeExpression(data, path)
	if err != nil {
		return nil, err
	}
	return []Expression{e}, nil
}

func decodeList(data json.RawMessage, path string) ([]Expression, error) {
	if isAbsent(data) {
		return nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := make([]Expression, 0, len(raws))
	for i, raw := range raws {
		e, err := decodeExpression(raw, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func isAbsent(data json.RawMessage) bool {
	d := bytes.TrimSpace(data)
	return len(d) == 0 || bytes.Equal(d, []byte("null"))
}
