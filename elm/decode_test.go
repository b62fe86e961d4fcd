package elm

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeExpression(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Expression
	}{
		{
			name: "integer literal",
			json: `{"type":"Literal","valueType":"{urn:hl7-org:elm-types:r1}Integer","value":"7"}`,
			want: Literal{ValueType: "{urn:hl7-org:elm-types:r1}Integer", Value: "7"},
		},
		{
			name: "binary operator",
			json: `{"type":"Add","operand":[
				{"type":"Literal","valueType":"{urn:hl7-org:elm-types:r1}Integer","value":"1"},
				{"type":"Null"}]}`,
			want: Operator{Name: "Add", Operands: []Expression{
				Literal{ValueType: "{urn:hl7-org:elm-types:r1}Integer", Value: "1"},
				Null{},
			}},
		},
		{
			name: "unary operator",
			json: `{"type":"Negate","operand":{"type":"Quantity","value":2.50,"unit":"mg"}}`,
			want: Operator{Name: "Negate", Operands: []Expression{Quantity{Value: "2.50", Unit: "mg"}}},
		},
		{
			name: "aggregate",
			json: `{"type":"Count","source":{"type":"List","element":[{"type":"Null"}]}}`,
			want: SourceOperator{Name: "Count", Source: List{Elements: []Expression{Null{}}}},
		},
		{
			name: "interval defaults to closed",
			json: `{"type":"Interval","highClosed":false,"low":{"type":"Null"},"high":{"type":"Null"}}`,
			want: Interval{Low: Null{}, High: Null{}, LowClosed: true, HighClosed: false},
		},
		{
			name: "slice without end",
			json: `{"type":"Slice","source":{"type":"List"},"startIndex":{"type":"Literal","valueType":"{urn:hl7-org:elm-types:r1}Integer","value":"1"},"endIndex":null}`,
			want: Slice{
				Source:     List{},
				StartIndex: Literal{ValueType: "{urn:hl7-org:elm-types:r1}Integer", Value: "1"},
			},
		},
		{
			name: "code with system reference",
			json: `{"type":"Code","code":"8480-6","display":"Systolic","system":{"name":"LOINC"}}`,
			want: Code{Code: "8480-6", System: "LOINC", Display: "Systolic"},
		},
		{
			name: "date constructor",
			json: `{"type":"Date","year":{"type":"Literal","valueType":"{urn:hl7-org:elm-types:r1}Integer","value":"2014"}}`,
			want: TemporalConstructor{Name: "Date", Year: Literal{ValueType: "{urn:hl7-org:elm-types:r1}Integer", Value: "2014"}},
		},
		{
			name: "tuple",
			json: `{"type":"Tuple","element":[{"name":"a","value":{"type":"Null"}}]}`,
			want: Tuple{Elements: []TupleElement{{Name: "a", Value: Null{}}}},
		},
		{
			name: "ratio",
			json: `{"type":"Ratio","numerator":{"value":1,"unit":"mg"},"denominator":{"value":2,"unit":"mL"}}`,
			want: Ratio{Numerator: Quantity{Value: "1", Unit: "mg"}, Denominator: Quantity{Value: "2", Unit: "mL"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeExpression([]byte(tt.json))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("unexpected expression (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeExpressionErrors(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{"unknown type", `{"type":"Frobnicate"}`, "$(Frobnicate): unsupported expression type"},
		{"missing type", `{"value":"1"}`, "$: missing node type"},
		{"nested path", `{"type":"Add","operand":[{"type":"Null"},{"type":"Nope"}]}`, "$(Add).operand[1](Nope)"},
		{"missing operand", `{"type":"Negate"}`, "missing operand"},
		{"time without hour", `{"type":"Time"}`, "missing hour"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeExpression([]byte(tt.json))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeLibrary(t *testing.T) {
	src := `{"library":{
		"identifier":{"id":"Screening","version":"1.0.0"},
		"includes":{"def":[{"localIdentifier":"Common","path":"CommonLib","version":"2"}]},
		"codeSystems":{"def":[{"name":"LOINC","id":"http://loinc.org"}]},
		"statements":{"def":[
			{"name":"Answer","context":"Patient","accessLevel":"Public",
			 "expression":{"type":"ExpressionRef","name":"Base","libraryName":"Common"}}
		]}}}`

	lib, err := DecodeLibrary(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := lib.Identifier.String(); got != "Screening|1.0.0" {
		t.Errorf("identifier = %q", got)
	}
	def, ok := lib.ExpressionDef("Answer")
	if !ok {
		t.Fatal("definition Answer not found")
	}
	want := &ExpressionDef{
		Name:        "Answer",
		Context:     "Patient",
		AccessLevel: "Public",
		Expression:  ExpressionRef{Name: "Base", LibraryName: "Common"},
	}
	if diff := cmp.Diff(want, def); diff != "" {
		t.Errorf("unexpected definition (-want +got):\n%s", diff)
	}
	inc, ok := lib.Include("Common")
	if !ok || inc.Identifier() != (VersionedIdentifier{ID: "CommonLib", Version: "2"}) {
		t.Errorf("unexpected include %+v", inc)
	}
	if cs, ok := lib.CodeSystem("LOINC"); !ok || cs.ID != "http://loinc.org" {
		t.Errorf("unexpected code system %+v", cs)
	}
}

func TestDecodeLibraryMissingIdentifier(t *testing.T) {
	_, err := DecodeLibrary(strings.NewReader(`{"library":{}}`))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestLocalName(t *testing.T) {
	if got := (Retrieve{DataType: "{http://hl7.org/fhir}Observation"}).LocalDataType(); got != "Observation" {
		t.Errorf("LocalDataType = %q", got)
	}
	if got := (Literal{ValueType: "Integer"}).LocalValueType(); got != "Integer" {
		t.Errorf("LocalValueType = %q", got)
	}
}
