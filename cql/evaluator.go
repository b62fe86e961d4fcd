package cql

import (
	"context"
	"log/slog"
	"slices"

	"github.com/damedic/cql-engine-go/elm"
)

// Visitor evaluates arbitrary expression nodes.
type Visitor interface {
	VisitExpression(ctx context.Context, expr elm.Expression, s *State) (Value, error)
}

// VisitorFunc adapts a function to the Visitor interface.
type VisitorFunc func(ctx context.Context, expr elm.Expression, s *State) (Value, error)

func (f VisitorFunc) VisitExpression(ctx context.Context, expr elm.Expression, s *State) (Value, error) {
	return f(ctx, expr, s)
}

// EvaluateExpressionDef evaluates a named definition of the current library.
//
// With caching enabled, a cached result is returned without entering the
// definition's context, evaluating the body again or recording any resources.
// Otherwise the body is evaluated in a fresh resource set and the declared
// context, and the result together with the resources read is cached. Failed evaluations are never
// cached. Context and resource stacks are restored on every return path.
func EvaluateExpressionDef(ctx context.Context, def *elm.ExpressionDef, s *State, v Visitor) (Value, error) {
	popFrame := s.PushActivationFrame(def)
	defer popFrame()

	library, _ := s.CurrentLibrary()
	log := s.logger.With(slog.String("library", library.String()), slog.String("expression", def.Name))

	if !s.cacheEnabled {
		return evaluateInContext(ctx, def, s, v)
	}

	if r, ok := s.CachedResult(library, def.Name); ok {
		if frame, ok := s.TopActivationFrame(); ok {
			frame.IsCached = true
		}
		log.Debug("expression cache hit")
		return r.Value, nil
	}
	log.Debug("expression cache miss")

	popResources := s.PushEvaluatedResources()
	defer popResources()

	value, err := evaluateInContext(ctx, def, s, v)
	if err != nil {
		return nil, err
	}
	s.StoreResult(library, def.Name, ExpressionResult{
		Value:              value,
		EvaluatedResources: slices.Clone(s.EvaluatedResources()),
	})
	return value, nil
}

func evaluateInContext(ctx context.Context, def *elm.ExpressionDef, s *State, v Visitor) (Value, error) {
	exit := s.EnterContext(def.Context)
	defer exit()
	return v.VisitExpression(ctx, def.Expression, s)
}
