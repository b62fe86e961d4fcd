// Package engine evaluates the expression definitions of ELM libraries.
//
// An Engine ties the operator library of package cql to a library source,
// a data provider and a unit converter. Each call to Evaluate uses a fresh
// cql.State; EvaluatePopulation evaluates many subjects concurrently with
// one State per subject.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/damedic/cql-engine-go/cql"
	"github.com/damedic/cql-engine-go/elm"
)

type Engine struct {
	libraries   LibraryResolver
	data        DataProvider
	converter   cql.UnitConverter
	logger      *slog.Logger
	metrics     *Metrics
	caching     bool
	concurrency int
}

type Option func(*Engine)

func WithDataProvider(d DataProvider) Option {
	return func(e *Engine) {
		e.data = d
	}
}

func WithUnitConverter(c cql.UnitConverter) Option {
	return func(e *Engine) {
		e.converter = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithExpressionCaching toggles memoization of definition results within
// one evaluation. It is enabled by default.
func WithExpressionCaching(enabled bool) Option {
	return func(e *Engine) {
		e.caching = enabled
	}
}

// WithConcurrency limits the number of subjects EvaluatePopulation
// evaluates at the same time. Values below 1 mean no limit.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		e.concurrency = n
	}
}

func New(libraries LibraryResolver, opts ...Option) *Engine {
	e := &Engine{
		libraries:   libraries,
		logger:      slog.New(slog.DiscardHandler),
		caching:     true,
		concurrency: 8,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Request names a library and the definitions to evaluate. An empty
// Expressions evaluates every public definition in statement order.
type Request struct {
	Library     elm.VersionedIdentifier
	Expressions []string
	// ContextValues binds context names to values, e.g. "Patient" to the
	// subject id.
	ContextValues map[string]cql.Value
}

// ExpressionResult is the outcome of one definition.
type ExpressionResult struct {
	Name               string
	Value              cql.Value
	EvaluatedResources cql.List
}

type Result struct {
	Library      elm.VersionedIdentifier
	InvocationID uuid.UUID
	Expressions  []ExpressionResult
}

// Value returns the value of the named definition.
func (r *Result) Value(name string) (cql.Value, bool) {
	for _, e := range r.Expressions {
		if e.Name == name {
			return e.Value, true
		}
	}
	return nil, false
}

// MarshalJSON renders the result as an object of definition name to value,
// in evaluation order.
func (r *Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r.Expressions {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", e.Name, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Evaluate evaluates the requested definitions in one invocation. The first
// failing definition aborts the evaluation.
func (e *Engine) Evaluate(ctx context.Context, req Request) (*Result, error) {
	lib, err := e.libraries.ResolveLibrary(req.Library)
	if err != nil {
		return nil, err
	}
	defs, err := selectDefinitions(lib, req.Expressions)
	if err != nil {
		return nil, err
	}

	opts := []cql.StateOption{
		cql.WithUnitConverter(e.converter),
		cql.WithExpressionCaching(e.caching),
		cql.WithLogger(e.logger),
		cql.WithCacheObserver(func(hit bool, _ elm.VersionedIdentifier, _ string) {
			e.metrics.observeCache(hit)
		}),
	}
	for name, v := range req.ContextValues {
		opts = append(opts, cql.WithContextValue(name, v))
	}
	s := cql.NewState(opts...)
	exit := s.EnterLibrary(lib.Identifier)
	defer exit()

	walker := NewWalker(e.libraries, e.data)
	result := &Result{Library: lib.Identifier, InvocationID: s.ID()}
	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := e.evaluateDef(ctx, lib.Identifier, def, s, walker)
		if err != nil {
			return nil, err
		}
		result.Expressions = append(result.Expressions, r)
	}
	return result, nil
}

func (e *Engine) evaluateDef(ctx context.Context, library elm.VersionedIdentifier, def *elm.ExpressionDef, s *cql.State, v cql.Visitor) (ExpressionResult, error) {
	log := s.Logger().With(slog.String("library", library.String()), slog.String("expression", def.Name))
	log.Debug("evaluate expression")

	start := time.Now()
	pop := s.PushEvaluatedResources()
	value, err := cql.EvaluateExpressionDef(ctx, def, s, v)
	resources := slices.Clone(s.EvaluatedResources())
	pop()
	e.metrics.observeEvaluation(library.String(), start, err)
	if err != nil {
		log.Warn("expression evaluation failed", slog.Any("error", err))
		return ExpressionResult{}, fmt.Errorf("evaluate %s.%s: %w", library.ID, def.Name, err)
	}

	if cached, ok := s.Result(library, def.Name); ok {
		resources = cached.EvaluatedResources
	}
	log.Debug("expression evaluated", slog.Duration("duration", time.Since(start)), slog.Int("resources", len(resources)))
	return ExpressionResult{Name: def.Name, Value: value, EvaluatedResources: resources}, nil
}

func selectDefinitions(lib *elm.Library, names []string) ([]*elm.ExpressionDef, error) {
	if len(names) == 0 {
		var defs []*elm.ExpressionDef
		for _, def := range lib.Statements {
			if def.AccessLevel != "Private" {
				defs = append(defs, def)
			}
		}
		return defs, nil
	}
	defs := make([]*elm.ExpressionDef, 0, len(names))
	for _, name := range names {
		def, ok := lib.ExpressionDef(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUndefinedExpression, lib.Identifier.ID, name)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// EvaluatePopulation evaluates req once per subject, binding contextName to
// the subject id. Results are in subject order. The first failure cancels
// the evaluations still running.
func (e *Engine) EvaluatePopulation(ctx context.Context, req Request, contextName string, subjects []string) ([]*Result, error) {
	results := make([]*Result, len(subjects))
	g, ctx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, subject := range subjects {
		g.Go(func() error {
			r := req
			r.ContextValues = maps.Clone(req.ContextValues)
			if r.ContextValues == nil {
				r.ContextValues = map[string]cql.Value{}
			}
			r.ContextValues[contextName] = cql.String(subject)

			res, err := e.Evaluate(ctx, r)
			if err != nil {
				return fmt.Errorf("subject %s: %w", subject, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
