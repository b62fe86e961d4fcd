package assert

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// JSONEqual compares two JSON documents structurally.
func JSONEqual(t *testing.T, expected, actual string) {
	t.Helper()
	if diff := cmp.Diff(jsonDecode(t, expected), jsonDecode(t, actual)); diff != "" {
		t.Errorf("unexpected JSON (-want +got):\n%s", diff)
	}
}

func jsonDecode(t *testing.T, input string) any {
	t.Helper()
	var obj any
	if err := json.Unmarshal([]byte(input), &obj); err != nil {
		t.Fatalf("invalid JSON %q: %v", input, err)
	}
	return obj
}
