package assert

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/damedic/cql-engine-go/cql"
)

// ValueEqual fails the test when expected and actual differ. Decimals are
// compared numerically, so 2.5 and 2.50 are equal.
func ValueEqual(t *testing.T, expected, actual cql.Value) {
	t.Helper()
	if diff := cmp.Diff(expected, actual, ValueOptions()...); diff != "" {
		t.Errorf("unexpected value (-want +got):\n%s", diff)
	}
}

// ValueOptions are the cmp options used by ValueEqual.
func ValueOptions() []cmp.Option {
	return []cmp.Option{
		cmp.Comparer(func(a, b cql.Decimal) bool {
			if a.Value == nil || b.Value == nil {
				return a.Value == b.Value
			}
			return a.Value.Cmp(b.Value) == 0
		}),
	}
}
