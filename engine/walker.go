package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/damedic/cql-engine-go/cql"
	"github.com/damedic/cql-engine-go/elm"
)

var (
	ErrNoDataProvider       = errors.New("no data provider configured")
	ErrUndefinedExpression  = errors.New("undefined expression")
	ErrUnsupportedNode      = errors.New("unsupported expression node")
	ErrPrivateAccess        = errors.New("private expression is not accessible")
	errNoCurrentLibrary     = errors.New("no current library")
	errUnexpectedComponents = errors.New("temporal component must be an Integer")
)

// LibraryResolver returns the decoded library for an identifier.
// *library.Manager implements it.
type LibraryResolver interface {
	ResolveLibrary(id elm.VersionedIdentifier) (*elm.Library, error)
}

type (
	unaryOp  func(s *cql.State, v cql.Value) (cql.Value, error)
	binaryOp func(s *cql.State, l, r cql.Value) (cql.Value, error)
)

var unaryOperators = map[string]unaryOp{
	"Negate":    cql.Negate,
	"Not":       cql.Not,
	"IsNull":    cql.IsNull,
	"Width":     cql.Width,
	"ToDecimal": cql.ToDecimal,
	"ToLong":    cql.ToLong,
}

var binaryOperators = map[string]binaryOp{
	"Add":             cql.Add,
	"Subtract":        cql.Subtract,
	"Multiply":        cql.Multiply,
	"Divide":          cql.Divide,
	"TruncatedDivide": cql.TruncatedDivide,
	"Equal":           cql.Equal,
	"NotEqual":        cql.NotEqual,
	"Equivalent":      equivalent,
	"Less":            cql.Less,
	"Greater":         cql.Greater,
	"LessOrEqual":     cql.LessOrEqual,
	"GreaterOrEqual":  cql.GreaterOrEqual,
	"And":             cql.And,
	"Or":              cql.Or,
	"Indexer":         cql.Indexer,
	"ProperContains":  cql.ProperContains,
}

var sourceOperators = map[string]unaryOp{
	"Count":              cql.Count,
	"Sum":                cql.Sum,
	"Avg":                cql.Avg,
	"Min":                cql.Min,
	"Max":                cql.Max,
	"Median":             cql.Median,
	"Variance":           cql.Variance,
	"PopulationVariance": cql.PopulationVariance,
	"AllTrue":            cql.AllTrue,
	"AnyTrue":            cql.AnyTrue,
	"Children":           cql.Children,
	"Descendants":        cql.Descendants,
}

func equivalent(s *cql.State, l, r cql.Value) (cql.Value, error) {
	eq, err := cql.Equivalent(s, l, r)
	if err != nil {
		return nil, err
	}
	return cql.Boolean(eq), nil
}

// Walker evaluates ELM expression trees. The current library is taken from
// the State; expression references into included libraries switch it for
// the duration of the referenced definition.
type Walker struct {
	libraries LibraryResolver
	data      DataProvider
}

// NewWalker returns a Walker. data may be nil as long as no Retrieve is
// evaluated.
func NewWalker(libraries LibraryResolver, data DataProvider) *Walker {
	return &Walker{libraries: libraries, data: data}
}

func (w *Walker) VisitExpression(ctx context.Context, expr elm.Expression, s *cql.State) (cql.Value, error) {
	switch e := expr.(type) {
	case nil, elm.Null:
		return nil, nil
	case elm.Literal:
		return literal(e)
	case elm.Quantity:
		return quantity(e)
	case elm.Ratio:
		n, err := quantity(e.Numerator)
		if err != nil {
			return nil, err
		}
		d, err := quantity(e.Denominator)
		if err != nil {
			return nil, err
		}
		return cql.Ratio{Numerator: n, Denominator: d}, nil
	case elm.List:
		return w.list(ctx, e.Elements, s)
	case elm.Interval:
		low, err := w.VisitExpression(ctx, e.Low, s)
		if err != nil {
			return nil, err
		}
		high, err := w.VisitExpression(ctx, e.High, s)
		if err != nil {
			return nil, err
		}
		return cql.Interval{Low: low, High: high, LowClosed: e.LowClosed, HighClosed: e.HighClosed}, nil
	case elm.Tuple:
		t := make(cql.Tuple, 0, len(e.Elements))
		for _, el := range e.Elements {
			v, err := w.VisitExpression(ctx, el.Value, s)
			if err != nil {
				return nil, err
			}
			t = append(t, cql.TupleField{Name: el.Name, Value: v})
		}
		return t, nil
	case elm.Code:
		return w.code(e, s)
	case elm.ExpressionRef:
		return w.expressionRef(ctx, e, s)
	case elm.Retrieve:
		return w.retrieve(ctx, e, s)
	case elm.Operator:
		return w.operator(ctx, e, s)
	case elm.SourceOperator:
		op, ok := sourceOperators[e.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedNode, e.Name)
		}
		source, err := w.VisitExpression(ctx, e.Source, s)
		if err != nil {
			return nil, err
		}
		return op(s, source)
	case elm.Combine:
		source, err := w.VisitExpression(ctx, e.Source, s)
		if err != nil {
			return nil, err
		}
		var separator cql.Value = cql.String("")
		if e.Separator != nil {
			if separator, err = w.VisitExpression(ctx, e.Separator, s); err != nil {
				return nil, err
			}
		}
		return cql.Combine(s, source, separator)
	case elm.Slice:
		operands, err := w.list(ctx, []elm.Expression{e.Source, e.StartIndex, e.EndIndex}, s)
		if err != nil {
			return nil, err
		}
		return cql.Slice(s, operands[0], operands[1], operands[2])
	case elm.TemporalConstructor:
		return w.temporal(ctx, e, s)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedNode, expr.ExpressionType())
}

func (w *Walker) list(ctx context.Context, exprs []elm.Expression, s *cql.State) (cql.List, error) {
	out := make(cql.List, 0, len(exprs))
	for _, e := range exprs {
		v, err := w.VisitExpression(ctx, e, s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (w *Walker) operator(ctx context.Context, e elm.Operator, s *cql.State) (cql.Value, error) {
	operands, err := w.list(ctx, e.Operands, s)
	if err != nil {
		return nil, err
	}
	if op, ok := unaryOperators[e.Name]; ok {
		if len(operands) != 1 {
			return nil, fmt.Errorf("%s: expected 1 operand, got %d", e.Name, len(operands))
		}
		return op(s, operands[0])
	}
	if op, ok := binaryOperators[e.Name]; ok {
		if len(operands) != 2 {
			return nil, fmt.Errorf("%s: expected 2 operands, got %d", e.Name, len(operands))
		}
		return op(s, operands[0], operands[1])
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedNode, e.Name)
}

func literal(l elm.Literal) (cql.Value, error) {
	switch typ := l.LocalValueType(); typ {
	case "Boolean":
		b, err := strconv.ParseBool(l.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid Boolean literal %q", l.Value)
		}
		return cql.Boolean(b), nil
	case "Integer":
		i, err := strconv.ParseInt(l.Value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid Integer literal %q: %w", l.Value, err)
		}
		return cql.Integer(i), nil
	case "Long":
		i, err := strconv.ParseInt(strings.TrimSuffix(l.Value, "L"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid Long literal %q: %w", l.Value, err)
		}
		return cql.Long(i), nil
	case "Decimal":
		return cql.ParseDecimal(l.Value)
	case "String":
		return cql.String(l.Value), nil
	case "Date":
		return cql.ParseDate(l.Value)
	case "DateTime":
		return cql.ParseDateTime(l.Value)
	case "Time":
		return cql.ParseTime(l.Value)
	default:
		return nil, fmt.Errorf("%w: Literal of type %s", ErrUnsupportedNode, typ)
	}
}

func quantity(q elm.Quantity) (cql.Quantity, error) {
	v, err := cql.ParseDecimal(q.Value)
	if err != nil {
		return cql.Quantity{}, err
	}
	return cql.NewQuantity(v, q.Unit), nil
}

func (w *Walker) currentLibrary(s *cql.State) (*elm.Library, error) {
	id, ok := s.CurrentLibrary()
	if !ok {
		return nil, errNoCurrentLibrary
	}
	return w.libraries.ResolveLibrary(id)
}

func (w *Walker) code(c elm.Code, s *cql.State) (cql.Value, error) {
	lib, err := w.currentLibrary(s)
	if err != nil {
		return nil, err
	}
	cs, ok := lib.CodeSystem(c.System)
	if !ok {
		return nil, fmt.Errorf("code %s: undefined code system %q in library %s", c.Code, c.System, lib.Identifier)
	}
	return cql.Code{System: cs.ID, Version: cs.Version, Code: c.Code, Display: c.Display}, nil
}

func (w *Walker) expressionRef(ctx context.Context, ref elm.ExpressionRef, s *cql.State) (cql.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	current, err := w.currentLibrary(s)
	if err != nil {
		return nil, err
	}
	lib := current
	if ref.LibraryName != "" {
		inc, ok := current.Include(ref.LibraryName)
		if !ok {
			return nil, fmt.Errorf("library %s has no include named %q", current.Identifier, ref.LibraryName)
		}
		if lib, err = w.libraries.ResolveLibrary(inc.Identifier()); err != nil {
			return nil, err
		}
	}
	def, ok := lib.ExpressionDef(ref.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUndefinedExpression, lib.Identifier.ID, ref.Name)
	}
	if lib.Identifier != current.Identifier {
		if def.AccessLevel == "Private" {
			return nil, fmt.Errorf("%w: %s.%s from %s", ErrPrivateAccess, lib.Identifier.ID, ref.Name, current.Identifier.ID)
		}
		exit := s.EnterLibrary(lib.Identifier)
		defer exit()
	}
	return cql.EvaluateExpressionDef(ctx, def, s, w)
}

func (w *Walker) retrieve(ctx context.Context, r elm.Retrieve, s *cql.State) (cql.Value, error) {
	if w.data == nil {
		return nil, ErrNoDataProvider
	}
	contextName := s.CurrentContext()
	contextValue, _ := s.ContextValue(contextName)
	resources, err := w.data.Retrieve(ctx, contextName, contextValue, r.LocalDataType())
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", r.LocalDataType(), err)
	}
	if resources == nil {
		resources = cql.List{}
	}
	for _, res := range resources {
		s.RecordEvaluatedResource(res)
	}
	return resources, nil
}

// temporal evaluates a Date, DateTime or Time constructor. The precision is
// that of the last component given before the first absent or Null one.
func (w *Walker) temporal(ctx context.Context, c elm.TemporalConstructor, s *cql.State) (cql.Value, error) {
	var exprs []elm.Expression
	if c.Name == "Time" {
		exprs = []elm.Expression{c.Hour, c.Minute, c.Second, c.Millisecond}
	} else {
		exprs = []elm.Expression{c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second, c.Millisecond}
	}
	if c.Name == "Date" {
		exprs = exprs[:3]
	}

	comps := make([]int, 0, len(exprs))
	for _, e := range exprs {
		if e == nil {
			break
		}
		v, err := w.VisitExpression(ctx, e, s)
		if err != nil {
			return nil, err
		}
		if v == nil {
			break
		}
		i, ok := v.(cql.Integer)
		if !ok {
			return nil, fmt.Errorf("%s: %w, found %s", c.Name, errUnexpectedComponents, cql.TypeName(v))
		}
		comps = append(comps, int(i))
	}
	if len(comps) == 0 {
		return nil, nil
	}
	last := len(comps) - 1
	full := append(comps, make([]int, len(exprs)-len(comps))...)

	switch c.Name {
	case "Date":
		p, _ := cql.PrecisionFromDateTimeIndex(last)
		return cql.NewDate(full[0], full[1], full[2], p), nil
	case "Time":
		p, _ := cql.PrecisionFromTimeIndex(last)
		return cql.NewTime(full[0], full[1], full[2], full[3], p), nil
	}

	loc := time.UTC
	if c.TimezoneOffset != nil {
		off, err := w.VisitExpression(ctx, c.TimezoneOffset, s)
		if err != nil {
			return nil, err
		}
		if off != nil {
			if loc, err = fixedZone(off); err != nil {
				return nil, err
			}
		}
	}
	p, _ := cql.PrecisionFromDateTimeIndex(last)
	return cql.NewDateTime(full[0], full[1], full[2], full[3], full[4], full[5], full[6], loc, p), nil
}

// fixedZone converts an offset in hours into a location.
func fixedZone(offset cql.Value) (*time.Location, error) {
	var hours *apd.Decimal
	switch v := offset.(type) {
	case cql.Decimal:
		hours = v.Value
	case cql.Integer:
		hours = apd.New(int64(v), 0)
	default:
		return nil, fmt.Errorf("DateTime: timezoneOffset must be a Decimal, found %s", cql.TypeName(offset))
	}
	var seconds apd.Decimal
	if _, err := apd.BaseContext.WithPrecision(34).Mul(&seconds, hours, apd.New(3600, 0)); err != nil {
		return nil, err
	}
	var whole apd.Decimal
	if _, err := apd.BaseContext.WithPrecision(34).RoundToIntegralValue(&whole, &seconds); err != nil {
		return nil, err
	}
	secs, err := whole.Int64()
	if err != nil {
		return nil, fmt.Errorf("DateTime: timezoneOffset %s: %w", hours.Text('f'), err)
	}
	if secs < -18*3600 || secs > 18*3600 {
		return nil, fmt.Errorf("DateTime: timezoneOffset %s out of range", hours.Text('f'))
	}
	return time.FixedZone("", int(secs)), nil
}
