package cql_test

import (
	"errors"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/damedic/cql-engine-go/cql"
)

type unitFactor struct {
	dimension string
	factor    string
}

var testUnits = map[string]unitFactor{
	"mg": {"mass", "0.001"},
	"g":  {"mass", "1"},
	"kg": {"mass", "1000"},
	"cm": {"length", "0.01"},
	"m":  {"length", "1"},
}

// countingConverter knows a handful of units and counts how often it is used.
type countingConverter struct {
	converts, multiplies, divides int
}

var _ cql.UnitConverter = (*countingConverter)(nil)

func (c *countingConverter) Convert(v *apd.Decimal, from, to string) (*apd.Decimal, bool, error) {
	c.converts++
	if from == "bad" || to == "bad" {
		return nil, false, errors.New("broken unit table")
	}
	f, okFrom := testUnits[from]
	t, okTo := testUnits[to]
	if !okFrom || !okTo || f.dimension != t.dimension {
		return nil, false, nil
	}
	ff, _, _ := apd.NewFromString(f.factor)
	tf, _, _ := apd.NewFromString(t.factor)
	ctx := apd.BaseContext.WithPrecision(34)
	var res apd.Decimal
	if _, err := ctx.Mul(&res, v, ff); err != nil {
		return nil, false, err
	}
	if _, err := ctx.Quo(&res, &res, tf); err != nil {
		return nil, false, err
	}
	return &res, true, nil
}

func (c *countingConverter) Multiply(lv *apd.Decimal, lu string, rv *apd.Decimal, ru string) (*apd.Decimal, string, error) {
	c.multiplies++
	var res apd.Decimal
	if _, err := apd.BaseContext.WithPrecision(34).Mul(&res, lv, rv); err != nil {
		return nil, "", err
	}
	if lu == ru {
		return &res, lu + "2", nil
	}
	return &res, lu + "." + ru, nil
}

func (c *countingConverter) Divide(lv *apd.Decimal, lu string, rv *apd.Decimal, ru string) (*apd.Decimal, string, error) {
	c.divides++
	var res apd.Decimal
	if _, err := apd.BaseContext.WithPrecision(34).Quo(&res, lv, rv); err != nil {
		return nil, "", err
	}
	switch {
	case lu == ru:
		return &res, "", nil
	case strings.TrimSuffix(lu, "2") == ru:
		return &res, ru, nil
	}
	return &res, lu + "/" + ru, nil
}

func dec(s string) cql.Decimal {
	d, err := cql.ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

func qty(v, unit string) cql.Quantity {
	return cql.NewQuantity(dec(v), unit)
}

func withConverter() (*cql.State, *countingConverter) {
	c := &countingConverter{}
	return cql.NewState(cql.WithUnitConverter(c)), c
}
