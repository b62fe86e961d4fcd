package engine_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/damedic/cql-engine-go/cql"
	"github.com/damedic/cql-engine-go/elm"
	"github.com/damedic/cql-engine-go/engine"
	"github.com/damedic/cql-engine-go/testdata/assert"
)

type staticLibraries map[elm.VersionedIdentifier]*elm.Library

func (l staticLibraries) ResolveLibrary(id elm.VersionedIdentifier) (*elm.Library, error) {
	lib, ok := l[id]
	if !ok {
		return nil, fmt.Errorf("library %s not found", id)
	}
	return lib, nil
}

var scratch = elm.VersionedIdentifier{ID: "Scratch", Version: "1"}

func visit(t *testing.T, node string, data engine.DataProvider) (cql.Value, error) {
	t.Helper()
	expr, err := elm.DecodeExpression([]byte(node))
	if err != nil {
		t.Fatalf("decode %s: %v", node, err)
	}

	libs := staticLibraries{scratch: {
		Identifier:  scratch,
		CodeSystems: []elm.CodeSystemDef{{Name: "SNOMED", ID: "http://snomed.info/sct"}},
	}}
	s := cql.NewState(cql.WithContextValue("Patient", cql.String("alice")))
	defer s.EnterLibrary(scratch)()
	defer s.EnterContext("Patient")()
	return engine.NewWalker(libs, data).VisitExpression(context.Background(), expr, s)
}

func lit(typ, value string) string {
	return fmt.Sprintf(`{"type":"Literal","valueType":"{urn:hl7-org:elm-types:r1}%s","value":%q}`, typ, value)
}

func TestWalkerNodes(t *testing.T) {
	tests := []struct {
		name string
		node string
		want string
	}{
		{"boolean", lit("Boolean", "true"), "true"},
		{"integer", lit("Integer", "-7"), "-7"},
		{"long", lit("Long", "10000000000L"), "10000000000L"},
		{"long without suffix", lit("Long", "42"), "42L"},
		{"decimal", lit("Decimal", "2.50"), "2.50"},
		{"string", lit("String", "abc"), "abc"},
		{"date literal", lit("Date", "@2014-03"), "2014-03"},
		{"time literal", lit("Time", "T10:30"), "10:30"},
		{"null", `{"type":"Null"}`, "null"},
		{"quantity", `{"type":"Quantity","value":5,"unit":"mg"}`, "5 'mg'"},
		{"ratio", `{"type":"Ratio","numerator":{"value":1,"unit":"mg"},"denominator":{"value":2,"unit":"mL"}}`, "1 'mg':2 'mL'"},
		{"list", `{"type":"List","element":[` + lit("Integer", "1") + `,{"type":"Null"}]}`, "{1, null}"},
		{"tuple", `{"type":"Tuple","element":[{"name":"a","value":` + lit("Integer", "1") + `}]}`, "Tuple { a: 1 }"},
		{"add", `{"type":"Add","operand":[` + lit("Integer", "1") + `,` + lit("Integer", "2") + `]}`, "3"},
		{"negate", `{"type":"Negate","operand":` + lit("Integer", "4") + `}`, "-4"},
		{"equivalent", `{"type":"Equivalent","operand":[{"type":"Null"},{"type":"Null"}]}`, "true"},
		{"and", `{"type":"And","operand":[` + lit("Boolean", "true") + `,{"type":"Null"}]}`, "null"},
		{"is null", `{"type":"IsNull","operand":{"type":"Null"}}`, "true"},
		{"to decimal", `{"type":"ToDecimal","operand":` + lit("Integer", "3") + `}`, "3"},
		{"indexer", `{"type":"Indexer","operand":[` + lit("String", "abc") + `,` + lit("Integer", "1") + `]}`, "b"},
		{"count", `{"type":"Count","source":{"type":"List","element":[` + lit("Integer", "1") + `,{"type":"Null"}]}}`, "1"},
		{"combine without separator", `{"type":"Combine","source":{"type":"List","element":[` + lit("String", "a") + `,` + lit("String", "b") + `]}}`, "ab"},
		{"slice", `{"type":"Slice","source":{"type":"List","element":[` + lit("Integer", "1") + `,` + lit("Integer", "2") + `,` + lit("Integer", "3") + `]},"startIndex":` + lit("Integer", "1") + `}`, "{2, 3}"},
		{"date", `{"type":"Date","year":` + lit("Integer", "2020") + `,"month":` + lit("Integer", "2") + `}`, "2020-02"},
		{"time", `{"type":"Time","hour":` + lit("Integer", "7") + `,"minute":` + lit("Integer", "5") + `}`, "07:05"},
		{"datetime with offset", `{"type":"DateTime","year":` + lit("Integer", "2020") + `,"month":` + lit("Integer", "1") +
			`,"day":` + lit("Integer", "2") + `,"hour":` + lit("Integer", "3") + `,"timezoneOffset":` + lit("Decimal", "-5.5") + `}`,
			"2020-01-02T03-05:30"},
		{"datetime null component", `{"type":"DateTime","year":` + lit("Integer", "2020") + `,"month":{"type":"Null"},"day":` + lit("Integer", "2") + `}`, "2020T"},
		{"date without year", `{"type":"Date","year":{"type":"Null"}}`, "null"},
		{"code", `{"type":"Code","code":"123","system":{"name":"SNOMED"}}`, "Code '123' from 'http://snomed.info/sct'"},
		{"interval", `{"type":"Interval","low":` + lit("Integer", "1") + `,"high":` + lit("Integer", "3") + `,"highClosed":false}`, "Interval[1, 3)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := visit(t, tt.node, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := cql.Format(v); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWalkerErrors(t *testing.T) {
	tests := []struct {
		name string
		node string
		want string
	}{
		{"bad integer", lit("Integer", "x"), "invalid Integer literal"},
		{"unknown literal type", lit("Quantity", "1"), "unsupported expression node"},
		{"unknown code system", `{"type":"Code","code":"1","system":{"name":"LOINC"}}`, "undefined code system"},
		{"unknown include", `{"type":"ExpressionRef","libraryName":"Other","name":"X"}`, "no include named"},
		{"undefined expression", `{"type":"ExpressionRef","name":"X"}`, "undefined expression"},
		{"retrieve without provider", `{"type":"Retrieve","dataType":"{http://hl7.org/fhir}Condition"}`, "no data provider"},
		{"wrong arity", `{"type":"Add","operand":[` + lit("Integer", "1") + `]}`, "expected 2 operands"},
		{"non integer component", `{"type":"Date","year":` + lit("String", "2020") + `}`, "temporal component"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := visit(t, tt.node, nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want one containing %q", err, tt.want)
			}
		})
	}
}

func TestWalkerRetrieve(t *testing.T) {
	data := engine.NewMemoryData()
	data.Add("alice", "Condition", cql.String("Condition/1"), cql.String("Condition/2"))
	data.Add("bob", "Condition", cql.String("Condition/3"))

	v, err := visit(t, `{"type":"Retrieve","dataType":"{http://hl7.org/fhir}Condition"}`, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.ValueEqual(t, cql.List{cql.String("Condition/1"), cql.String("Condition/2")}, v)

	v, err = visit(t, `{"type":"Retrieve","dataType":"{http://hl7.org/fhir}Encounter"}`, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.ValueEqual(t, cql.List{}, v)
}
