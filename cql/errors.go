package cql

import (
	"errors"
	"fmt"
)

// InvalidOperatorArgumentError reports operands that match no overload of
// an operator.
type InvalidOperatorArgumentError struct {
	// Expected lists the supported signatures.
	Expected string
	// Found is the signature that was actually presented, e.g. Add(Integer, String).
	Found string
}

func (e *InvalidOperatorArgumentError) Error() string {
	return fmt.Sprintf("invalid operator argument: expected %s, found %s", e.Expected, e.Found)
}

func invalidArguments(op, expected string, args ...Value) error {
	types := make([]any, 0, len(args))
	format := op + "("
	for i, a := range args {
		if i > 0 {
			format += ", "
		}
		format += "%s"
		types = append(types, TypeName(a))
	}
	return &InvalidOperatorArgumentError{Expected: expected, Found: fmt.Sprintf(format+")", types...)}
}

// IsInvalidOperatorArgument reports whether err wraps an InvalidOperatorArgumentError.
func IsInvalidOperatorArgument(err error) bool {
	var target *InvalidOperatorArgumentError
	return errors.As(err, &target)
}

// UnitConversionError wraps an internal failure of the UnitConverter.
// Incompatible units are not an error and never produce it.
type UnitConversionError struct {
	Operation string
	FromUnit  string
	ToUnit    string
	Err       error
}

func (e *UnitConversionError) Error() string {
	return fmt.Sprintf("unit conversion %s from '%s' to '%s' failed: %v", e.Operation, e.FromUnit, e.ToUnit, e.Err)
}

func (e *UnitConversionError) Unwrap() error {
	return e.Err
}

// ErrNoUnitConverter is returned when an operation needs unit conversion but
// the State has no UnitConverter.
var ErrNoUnitConverter = errors.New("no unit converter configured")
