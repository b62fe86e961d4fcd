package cql_test

import (
	"testing"
	"time"

	"github.com/damedic/cql-engine-go/cql"
	"github.com/damedic/cql-engine-go/testdata/assert"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		l, r cql.Value
		want cql.Value
	}{
		{"integers", cql.Integer(1), cql.Integer(1), cql.Boolean(true)},
		{"integer and decimal", cql.Integer(1), dec("1.0"), cql.Boolean(true)},
		{"strings differ", cql.String("a"), cql.String("A"), cql.Boolean(false)},
		{"null operand", cql.Integer(1), nil, nil},
		{"mismatched types", cql.Integer(1), cql.String("1"), cql.Boolean(false)},
		{"quantities in same unit", qty("1", "g"), qty("1.0", "g"), cql.Boolean(true)},
		{"lists", cql.List{cql.Integer(1), cql.Integer(2)}, cql.List{cql.Integer(1), cql.Integer(2)}, cql.Boolean(true)},
		{"lists of different length", cql.List{cql.Integer(1)}, cql.List{cql.Integer(1), cql.Integer(2)}, cql.Boolean(false)},
		{"lists with null", cql.List{cql.Integer(1), nil}, cql.List{cql.Integer(1), nil}, nil},
		{"false wins over null", cql.List{cql.Integer(2), nil}, cql.List{cql.Integer(1), nil}, cql.Boolean(false)},
		{
			"tuples ignore field order",
			cql.Tuple{{Name: "a", Value: cql.Integer(1)}, {Name: "b", Value: cql.String("x")}},
			cql.Tuple{{Name: "b", Value: cql.String("x")}, {Name: "a", Value: cql.Integer(1)}},
			cql.Boolean(true),
		},
		{
			"intervals of different inclusivity",
			cql.Interval{Low: cql.Integer(1), High: cql.Integer(2), LowClosed: true, HighClosed: true},
			cql.Interval{Low: cql.Integer(1), High: cql.Integer(2), LowClosed: true, HighClosed: false},
			cql.Boolean(false),
		},
		{
			"dates",
			cql.NewDate(2014, 1, 1, cql.PrecisionDay),
			cql.NewDate(2014, 1, 1, cql.PrecisionDay),
			cql.Boolean(true),
		},
		{
			"dates of different precision",
			cql.NewDate(2014, 1, 1, cql.PrecisionYear),
			cql.NewDate(2014, 1, 1, cql.PrecisionDay),
			nil,
		},
		{
			"different years decide despite precision",
			cql.NewDate(2014, 1, 1, cql.PrecisionYear),
			cql.NewDate(2015, 1, 1, cql.PrecisionDay),
			cql.Boolean(false),
		},
		{
			"datetimes in different zones",
			cql.NewDateTime(2014, 1, 1, 12, 0, 0, 0, time.UTC, cql.PrecisionHour),
			cql.NewDateTime(2014, 1, 1, 13, 0, 0, 0, time.FixedZone("", 3600), cql.PrecisionHour),
			cql.Boolean(true),
		},
		{
			"codes",
			cql.Code{System: "http://loinc.org", Code: "8480-6"},
			cql.Code{System: "http://loinc.org", Code: "8480-6", Display: "Systolic"},
			cql.Boolean(false),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cql.Equal(nil, tt.l, tt.r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assert.ValueEqual(t, tt.want, got)
		})
	}
}

func TestEquivalent(t *testing.T) {
	tests := []struct {
		name string
		l, r cql.Value
		want bool
	}{
		{"nulls", nil, nil, true},
		{"null and value", nil, cql.Integer(1), false},
		{"strings ignore case and whitespace", cql.String("Hello  World"), cql.String("hello world"), true},
		{"decimals at lower precision", dec("1.10"), dec("1.1"), true},
		{"decimals differ", dec("1.2"), dec("1.1"), false},
		{"lists with nulls", cql.List{nil, cql.Integer(1)}, cql.List{nil, cql.Integer(1)}, true},
		{
			"codes ignore display",
			cql.Code{System: "http://loinc.org", Code: "8480-6"},
			cql.Code{System: "http://loinc.org", Code: "8480-6", Display: "Systolic"},
			true,
		},
		{
			"concepts sharing a code",
			cql.Concept{Codes: []cql.Code{{System: "a", Code: "1"}, {System: "b", Code: "2"}}},
			cql.Concept{Codes: []cql.Code{{System: "b", Code: "2"}}},
			true,
		},
		{
			"dates of different precision",
			cql.NewDate(2014, 1, 1, cql.PrecisionYear),
			cql.NewDate(2014, 1, 1, cql.PrecisionDay),
			false,
		},
		{"quantities without converter", qty("1", "g"), qty("1000", "mg"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cql.Equivalent(nil, tt.l, tt.r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Equivalent(%s, %s) = %v, want %v", cql.Format(tt.l), cql.Format(tt.r), got, tt.want)
			}
		})
	}
}

func TestEquivalentQuantities(t *testing.T) {
	s, _ := withConverter()
	tests := []struct {
		name string
		l, r cql.Value
		want bool
	}{
		{"converted", qty("1", "g"), qty("1000", "mg"), true},
		{"incompatible", qty("1", "g"), qty("1", "m"), false},
		{
			"ratios cross multiplied",
			cql.Ratio{Numerator: qty("1", "1"), Denominator: qty("2", "1")},
			cql.Ratio{Numerator: qty("2", "1"), Denominator: qty("4", "1")},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cql.Equivalent(s, tt.l, tt.r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Equivalent(%s, %s) = %v, want %v", tt.l, tt.r, got, tt.want)
			}
		})
	}
}

func TestOrdering(t *testing.T) {
	s, _ := withConverter()
	tests := []struct {
		name string
		op   binaryOp
		l, r cql.Value
		want cql.Value
	}{
		{"less integers", cql.Less, cql.Integer(1), cql.Integer(2), cql.Boolean(true)},
		{"greater long", cql.Greater, cql.Long(1), cql.Integer(2), cql.Boolean(false)},
		{"less or equal decimals", cql.LessOrEqual, dec("1.0"), dec("1"), cql.Boolean(true)},
		{"greater or equal strings", cql.GreaterOrEqual, cql.String("b"), cql.String("a"), cql.Boolean(true)},
		{"null", cql.Less, nil, cql.Integer(1), nil},
		{"quantities converted", cql.Less, qty("900", "mg"), qty("1", "g"), cql.Boolean(true)},
		{"incompatible quantities", cql.Less, qty("1", "g"), qty("1", "m"), nil},
		{
			"indeterminate precision",
			cql.Less,
			cql.NewDateTime(2014, 1, 1, 0, 0, 0, 0, time.UTC, cql.PrecisionYear),
			cql.NewDateTime(2014, 6, 1, 0, 0, 0, 0, time.UTC, cql.PrecisionMonth),
			nil,
		},
		{
			"date against datetime",
			cql.Less,
			cql.NewDate(2014, 1, 1, cql.PrecisionDay),
			cql.NewDateTime(2014, 1, 2, 10, 0, 0, 0, time.UTC, cql.PrecisionHour),
			cql.Boolean(true),
		},
		{
			"times",
			cql.Greater,
			cql.NewTime(10, 30, 0, 0, cql.PrecisionMinute),
			cql.NewTime(10, 15, 0, 0, cql.PrecisionMinute),
			cql.Boolean(true),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op(s, tt.l, tt.r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assert.ValueEqual(t, tt.want, got)
		})
	}
}

func TestCompareInvalidArguments(t *testing.T) {
	_, _, err := cql.Compare(nil, cql.Boolean(true), cql.Boolean(false))
	if !cql.IsInvalidOperatorArgument(err) {
		t.Fatalf("expected InvalidOperatorArgumentError, got %v", err)
	}
}
