package cql

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/damedic/cql-engine-go/elm"
)

// ExpressionResult is a cached definition result together with the
// resources read while computing it.
type ExpressionResult struct {
	Value              Value
	EvaluatedResources List
}

// ActivationFrame records a definition that is currently being evaluated.
type ActivationFrame struct {
	Element  *elm.ExpressionDef
	IsCached bool
}

// CacheObserver is notified about every cache lookup.
type CacheObserver func(hit bool, library elm.VersionedIdentifier, name string)

type cacheKey struct {
	library elm.VersionedIdentifier
	name    string
}

// State is the mutable context of one evaluation invocation. It is owned by
// a single goroutine; independent invocations use independent States.
type State struct {
	id            uuid.UUID
	converter     UnitConverter
	cacheEnabled  bool
	cache         map[cacheKey]ExpressionResult
	frames        []*ActivationFrame
	contexts      []string
	contextValues map[string]Value
	resources     []List
	libraries     []elm.VersionedIdentifier
	logger        *slog.Logger
	observer      CacheObserver
}

type StateOption func(*State)

func WithUnitConverter(c UnitConverter) StateOption {
	return func(s *State) {
		s.converter = c
	}
}

// WithExpressionCaching toggles memoization of definition results. It is
// enabled by default.
func WithExpressionCaching(enabled bool) StateOption {
	return func(s *State) {
		s.cacheEnabled = enabled
	}
}

func WithLogger(l *slog.Logger) StateOption {
	return func(s *State) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithContextValue binds the value of a named context, e.g. the Patient
// being evaluated.
func WithContextValue(name string, v Value) StateOption {
	return func(s *State) {
		s.contextValues[name] = v
	}
}

func WithCacheObserver(o CacheObserver) StateOption {
	return func(s *State) {
		s.observer = o
	}
}

func WithInvocationID(id uuid.UUID) StateOption {
	return func(s *State) {
		s.id = id
	}
}

func NewState(opts ...StateOption) *State {
	s := &State{
		id:            uuid.New(),
		cacheEnabled:  true,
		cache:         map[cacheKey]ExpressionResult{},
		contextValues: map[string]Value{},
		resources:     []List{{}},
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With(slog.String("invocation", s.id.String()))
	return s
}

func (s *State) ID() uuid.UUID {
	return s.id
}

func (s *State) Logger() *slog.Logger {
	return s.logger
}

func (s *State) UnitConverter() UnitConverter {
	return s.converter
}

func (s *State) CachingEnabled() bool {
	return s.cacheEnabled
}

// CachedResult looks up a definition result and reports the lookup to the
// cache observer.
func (s *State) CachedResult(library elm.VersionedIdentifier, name string) (ExpressionResult, bool) {
	r, ok := s.cache[cacheKey{library, name}]
	if s.observer != nil {
		s.observer(ok, library, name)
	}
	return r, ok
}

// Result returns a cached definition result without notifying the cache
// observer.
func (s *State) Result(library elm.VersionedIdentifier, name string) (ExpressionResult, bool) {
	r, ok := s.cache[cacheKey{library, name}]
	return r, ok
}

func (s *State) StoreResult(library elm.VersionedIdentifier, name string, r ExpressionResult) {
	s.cache[cacheKey{library, name}] = r
}

// PushActivationFrame pushes a frame for def and returns the func popping it.
func (s *State) PushActivationFrame(def *elm.ExpressionDef) (pop func()) {
	s.frames = append(s.frames, &ActivationFrame{Element: def})
	depth := len(s.frames)
	return func() {
		s.frames = s.frames[:depth-1]
	}
}

func (s *State) TopActivationFrame() (*ActivationFrame, bool) {
	if len(s.frames) == 0 {
		return nil, false
	}
	return s.frames[len(s.frames)-1], true
}

func (s *State) ActivationDepth() int {
	return len(s.frames)
}

// EnterContext makes name the current context. Nothing is pushed when name
// already is the current context; the returned func undoes exactly what was
// done.
func (s *State) EnterContext(name string) (exit func()) {
	if name == "" || name == s.CurrentContext() {
		return func() {}
	}
	s.contexts = append(s.contexts, name)
	depth := len(s.contexts)
	s.logger.Debug("enter context", slog.String("context", name), slog.Int("depth", depth))
	return func() {
		s.contexts = s.contexts[:depth-1]
		s.logger.Debug("exit context", slog.String("context", name), slog.Int("depth", depth-1))
	}
}

func (s *State) CurrentContext() string {
	if len(s.contexts) == 0 {
		return ""
	}
	return s.contexts[len(s.contexts)-1]
}

func (s *State) ContextDepth() int {
	return len(s.contexts)
}

func (s *State) ContextValue(name string) (Value, bool) {
	v, ok := s.contextValues[name]
	return v, ok
}

// PushEvaluatedResources starts a fresh resource set. The returned func pops
// it and merges its content into the enclosing set.
func (s *State) PushEvaluatedResources() (pop func()) {
	s.resources = append(s.resources, List{})
	depth := len(s.resources)
	return func() {
		top := s.resources[depth-1]
		s.resources = s.resources[:depth-1]
		for _, r := range top {
			s.RecordEvaluatedResource(r)
		}
	}
}

// RecordEvaluatedResource adds r to the current resource set unless an
// equivalent resource is already present.
func (s *State) RecordEvaluatedResource(r Value) {
	top := len(s.resources) - 1
	for _, existing := range s.resources[top] {
		if eq, err := Equivalent(s, existing, r); err == nil && eq {
			return
		}
	}
	s.resources[top] = append(s.resources[top], r)
}

// EvaluatedResources returns the current resource set.
func (s *State) EvaluatedResources() List {
	return s.resources[len(s.resources)-1]
}

// EnterLibrary makes id the current library until the returned func is called.
func (s *State) EnterLibrary(id elm.VersionedIdentifier) (exit func()) {
	s.libraries = append(s.libraries, id)
	depth := len(s.libraries)
	return func() {
		s.libraries = s.libraries[:depth-1]
	}
}

func (s *State) CurrentLibrary() (elm.VersionedIdentifier, bool) {
	if len(s.libraries) == 0 {
		return elm.VersionedIdentifier{}, false
	}
	return s.libraries[len(s.libraries)-1], true
}
