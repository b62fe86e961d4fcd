package units_test

import (
	"strings"
	"testing"

	"github.com/cockroachdb/apd/v3"

	"github.com/damedic/cql-engine-go/cql"
	"github.com/damedic/cql-engine-go/units"
)

func decimal(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func TestUCUMConvert(t *testing.T) {
	u := units.NewUCUM()
	tests := []struct {
		name     string
		value    string
		from, to string
		want     string
		ok       bool
	}{
		{"grams to milligrams", "1", "g", "mg", "1000", true},
		{"milligrams to grams", "250", "mg", "g", "0.25", true},
		{"deciliters to liters", "5", "dL", "L", "0.5", true},
		{"same unit", "3", "cm", "cm", "3", true},
		{"incommensurable", "1", "g", "m", "", false},
		{"unknown unit", "1", "g", "not-a-unit", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := u.Convert(decimal(t, tt.value), tt.from, tt.to)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tt.ok {
				t.Fatalf("convertible = %v, want %v", ok, tt.ok)
			}
			if !tt.ok {
				if got != nil {
					t.Errorf("got %s for non-convertible units", got)
				}
				return
			}
			if got.Cmp(decimal(t, tt.want)) != 0 {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestUCUMConvertNilValue(t *testing.T) {
	if _, _, err := units.NewUCUM().Convert(nil, "g", "mg"); err == nil {
		t.Error("expected an error for a nil value")
	}
}

func TestUCUMComposition(t *testing.T) {
	u := units.NewUCUM()
	tests := []struct {
		name      string
		divide    bool
		lv, lu    string
		rv, ru    string
		wantValue string
		wantUnit  string
	}{
		{"square", false, "2", "cm", "3", "cm", "6", "cm2"},
		{"cancel atom", true, "6", "cm2", "3", "cm", "2", "cm"},
		{"dimensionless", true, "6", "m", "3", "m", "2", "1"},
		{"verbatim", false, "1", "mg", "1", "[in_i", "1", "(mg).([in_i)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := u.Multiply
			if tt.divide {
				op = u.Divide
			}
			v, unit, err := op(decimal(t, tt.lv), tt.lu, decimal(t, tt.rv), tt.ru)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if unit != tt.wantUnit {
				t.Errorf("unit = %q, want %q", unit, tt.wantUnit)
			}
			if v.Cmp(decimal(t, tt.wantValue)) != 0 {
				t.Errorf("value = %s, want %s", v, tt.wantValue)
			}
		})
	}
}

func TestUCUMDivideFloors(t *testing.T) {
	u := units.NewUCUM()

	v, _, err := u.Divide(decimal(t, "2"), "m", decimal(t, "3"), "s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "0." + strings.Repeat("6", 34); v.Text('f') != want {
		t.Errorf("2/3 = %s, want %s", v.Text('f'), want)
	}

	v, _, err = u.Divide(decimal(t, "-2"), "m", decimal(t, "3"), "s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "-0." + strings.Repeat("6", 33) + "7"; v.Text('f') != want {
		t.Errorf("-2/3 = %s, want %s", v.Text('f'), want)
	}

	// Through the operator the quotient is trimmed to eight digits without
	// carrying into the integer part.
	s := cql.NewState(cql.WithUnitConverter(u))
	got, err := cql.Divide(s,
		cql.NewQuantity(cql.Decimal{Value: decimal(t, "0.99999999999999999999999999999999999")}, "m"),
		cql.NewQuantity(cql.NewDecimal(1, 0), "s"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q, ok := got.(cql.Quantity)
	if !ok || q.Value.Value.Text('f') != "0.99999999" {
		t.Errorf("Divide = %s, want 0.99999999", cql.Format(got))
	}
}

func TestUCUMWithOperators(t *testing.T) {
	s := cql.NewState(cql.WithUnitConverter(units.NewUCUM()))

	got, err := cql.Add(s, cql.NewQuantity(cql.NewDecimal(1, 0), "g"), cql.NewQuantity(cql.NewDecimal(500, 0), "mg"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q, ok := got.(cql.Quantity)
	if !ok {
		t.Fatalf("got %s, want a Quantity", cql.Format(got))
	}
	if q.Unit != "mg" || q.Value.Value.Cmp(decimal(t, "1500")) != 0 {
		t.Errorf("1 'g' + 500 'mg' = %s, want 1500 'mg'", cql.Format(q))
	}

	got, err = cql.Add(s, cql.NewQuantity(cql.NewDecimal(1, 0), "g"), cql.NewQuantity(cql.NewDecimal(1, 0), "m"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("1 'g' + 1 'm' = %s, want null", cql.Format(got))
	}
}

func TestUCUMValid(t *testing.T) {
	u := units.NewUCUM()
	if !u.Valid("mg/dL") {
		t.Error("mg/dL reported invalid")
	}
	if u.Valid("mg//") {
		t.Error("mg// reported valid")
	}
}
