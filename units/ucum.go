// Package units implements quantity unit conversion on top of UCUM.
package units

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/cockroachdb/apd/v3"
	"github.com/iimos/ucum"
	"github.com/iimos/ucum/ucumapd"

	"github.com/damedic/cql-engine-go/cql"
)

var apdContext = apd.BaseContext.WithPrecision(34)

var floorContext = func() *apd.Context {
	c := apdContext.WithPrecision(apdContext.Precision)
	c.Rounding = apd.RoundFloor
	return c
}()

var errNilValue = errors.New("nil quantity value")

// UCUM converts between UCUM units and composes product and quotient units.
// It is safe for concurrent use.
type UCUM struct {
	parsed sync.Map // unit string -> ucum.Unit
	logger *slog.Logger
}

var _ cql.UnitConverter = (*UCUM)(nil)

type Option func(*UCUM)

func WithLogger(l *slog.Logger) Option {
	return func(u *UCUM) {
		if l != nil {
			u.logger = l
		}
	}
}

func NewUCUM(opts ...Option) *UCUM {
	u := &UCUM{logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(u)
	}
	return u
}

func (u *UCUM) parse(unit string) (ucum.Unit, error) {
	if cached, ok := u.parsed.Load(unit); ok {
		return cached.(ucum.Unit), nil
	}
	parsed, err := ucum.Parse([]byte(unit))
	if err != nil {
		var zero ucum.Unit
		return zero, err
	}
	u.parsed.Store(unit, parsed)
	return parsed, nil
}

// Valid reports whether unit is a well-formed UCUM expression.
func (u *UCUM) Valid(unit string) bool {
	_, err := u.parse(unit)
	return err == nil
}

// Convert expresses value in unit to. Unknown or incommensurable units are
// reported as not convertible.
func (u *UCUM) Convert(value *apd.Decimal, from, to string) (*apd.Decimal, bool, error) {
	if value == nil {
		return nil, false, errNilValue
	}
	if from == to {
		return value, true, nil
	}
	for _, unit := range []string{from, to} {
		if _, err := u.parse(unit); err != nil {
			u.logger.Debug("unparseable unit", slog.String("unit", unit), slog.Any("error", err))
			return nil, false, nil
		}
	}
	v, err := ucumapd.ConvDecimal(value, from, to, apdContext)
	if err != nil {
		u.logger.Debug("units not convertible", slog.String("from", from), slog.String("to", to), slog.Any("error", err))
		return nil, false, nil
	}
	return v, true, nil
}

// Multiply returns lv*rv and the product unit, e.g. cm × cm = cm2.
func (u *UCUM) Multiply(lv *apd.Decimal, lu string, rv *apd.Decimal, ru string) (*apd.Decimal, string, error) {
	v, err := combine(apdContext, (*apd.Context).Mul, lv, rv)
	if err != nil {
		return nil, "", err
	}
	return v, u.composeUnit(lu, ru, false), nil
}

// Divide returns lv/rv and the quotient unit, e.g. cm2 / cm = cm. Inexact
// quotients are rounded toward negative infinity.
func (u *UCUM) Divide(lv *apd.Decimal, lu string, rv *apd.Decimal, ru string) (*apd.Decimal, string, error) {
	v, err := combine(floorContext, (*apd.Context).Quo, lv, rv)
	if err != nil {
		return nil, "", err
	}
	return v, u.composeUnit(lu, ru, true), nil
}

func combine(ctx *apd.Context, op func(*apd.Context, *apd.Decimal, *apd.Decimal, *apd.Decimal) (apd.Condition, error), x, y *apd.Decimal) (*apd.Decimal, error) {
	if x == nil || y == nil {
		return nil, errNilValue
	}
	var res apd.Decimal
	if _, err := op(ctx, &res, x, y); err != nil {
		return nil, err
	}
	return &res, nil
}

// composeUnit cancels common atoms of both units. Units outside the term
// grammar are joined verbatim.
func (u *UCUM) composeUnit(lu, ru string, divide bool) string {
	lt, lerr := parseTerms(lu)
	rt, rerr := parseTerms(ru)
	if lerr != nil || rerr != nil {
		u.logger.Debug("composing units verbatim", slog.String("left", lu), slog.String("right", ru))
		if divide {
			return "(" + lu + ")/(" + ru + ")"
		}
		return "(" + lu + ").(" + ru + ")"
	}
	if divide {
		rt = rt.inverse()
	}
	return lt.mul(rt).String()
}
