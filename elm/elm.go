// Package elm contains the expression tree (ELM) consumed by the evaluator.
//
// Trees arrive pre-built: this package only models the nodes and decodes the
// ELM JSON serialization. Evaluation lives in the cql and engine packages.
package elm

import "fmt"

// VersionedIdentifier identifies a library.
type VersionedIdentifier struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
	System  string `json:"system,omitempty"`
}

func (v VersionedIdentifier) String() string {
	if v.Version == "" {
		return v.ID
	}
	return fmt.Sprintf("%s|%s", v.ID, v.Version)
}

// Library is a compiled ELM library.
type Library struct {
	Identifier  VersionedIdentifier
	Includes    []IncludeDef
	CodeSystems []CodeSystemDef
	Statements  []*ExpressionDef
}

// ExpressionDef returns the named statement.
func (l *Library) ExpressionDef(name string) (*ExpressionDef, bool) {
	for _, def := range l.Statements {
		if def.Name == name {
			return def, true
		}
	}
	return nil, false
}

// Include resolves a local library alias.
func (l *Library) Include(localIdentifier string) (IncludeDef, bool) {
	for _, inc := range l.Includes {
		if inc.LocalIdentifier == localIdentifier {
			return inc, true
		}
	}
	return IncludeDef{}, false
}

// CodeSystem resolves a code system by its local name.
func (l *Library) CodeSystem(name string) (CodeSystemDef, bool) {
	for _, cs := range l.CodeSystems {
		if cs.Name == name {
			return cs, true
		}
	}
	return CodeSystemDef{}, false
}

type IncludeDef struct {
	LocalIdentifier string `json:"localIdentifier"`
	Path            string `json:"path"`
	Version         string `json:"version,omitempty"`
}

// Identifier returns the identifier of the included library.
func (i IncludeDef) Identifier() VersionedIdentifier {
	return VersionedIdentifier{ID: i.Path, Version: i.Version}
}

type CodeSystemDef struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

// ExpressionDef is a named expression definition.
//
// Context is the population context the body is evaluated in, e.g. "Patient"
// or "Unfiltered". An empty Context leaves the active context untouched.
type ExpressionDef struct {
	Name        string
	Context     string
	AccessLevel string
	Expression  Expression
}

// Expression is any ELM expression node.
type Expression interface {
	// ExpressionType returns the ELM node type, e.g. "Add" or "Literal".
	ExpressionType() string
}

// Literal is a System-typed literal value.
//
// ValueType is the qualified type name, e.g. "{urn:hl7-org:elm-types:r1}Integer".
type Literal struct {
	ValueType string
	Value     string
}

func (Literal) ExpressionType() string { return "Literal" }

// LocalValueType strips the namespace from ValueType.
func (l Literal) LocalValueType() string {
	return localName(l.ValueType)
}

type Null struct{}

func (Null) ExpressionType() string { return "Null" }

type Quantity struct {
	Value string
	Unit  string
}

func (Quantity) ExpressionType() string { return "Quantity" }

type Ratio struct {
	Numerator   Quantity
	Denominator Quantity
}

func (Ratio) ExpressionType() string { return "Ratio" }

type List struct {
	Elements []Expression
}

func (List) ExpressionType() string { return "List" }

type Interval struct {
	Low, High             Expression
	LowClosed, HighClosed bool
}

func (Interval) ExpressionType() string { return "Interval" }

type TupleElement struct {
	Name  string
	Value Expression
}

type Tuple struct {
	Elements []TupleElement
}

func (Tuple) ExpressionType() string { return "Tuple" }

// Code is a code literal. System names a CodeSystemDef of the enclosing library.
type Code struct {
	Code    string
	System  string
	Display string
}

func (Code) ExpressionType() string { return "Code" }

// ExpressionRef references a definition, optionally in an included library.
type ExpressionRef struct {
	Name        string
	LibraryName string
}

func (ExpressionRef) ExpressionType() string { return "ExpressionRef" }

// Retrieve requests data of the given type from the active context.
type Retrieve struct {
	DataType string
}

func (Retrieve) ExpressionType() string { return "Retrieve" }

// LocalDataType strips the namespace from DataType.
func (r Retrieve) LocalDataType() string {
	return localName(r.DataType)
}

// Operator is a unary, binary or n-ary operator applied to its operands in order.
type Operator struct {
	Name     string
	Operands []Expression
}

func (o Operator) ExpressionType() string { return o.Name }

// SourceOperator is an operator over a single source, e.g. Count or Children.
type SourceOperator struct {
	Name   string
	Source Expression
}

func (o SourceOperator) ExpressionType() string { return o.Name }

type Combine struct {
	Source    Expression
	Separator Expression
}

func (Combine) ExpressionType() string { return "Combine" }

// Slice covers Skip, Take and Tail. Nil indexes mean "absent".
type Slice struct {
	Source     Expression
	StartIndex Expression
	EndIndex   Expression
}

func (Slice) ExpressionType() string { return "Slice" }

// TemporalConstructor builds a Date, DateTime or Time from components.
// Components that are nil were not specified.
type TemporalConstructor struct {
	Name           string
	Year           Expression
	Month          Expression
	Day            Expression
	Hour           Expression
	Minute         Expression
	Second         Expression
	Millisecond    Expression
	TimezoneOffset Expression
}

func (c TemporalConstructor) ExpressionType() string { return c.Name }

func localName(qualified string) string {
	for i := len(qualified) - 1; i >= 0; i-- {
		if qualified[i] == '}' {
			return qualified[i+1:]
		}
	}
	return qualified
}
