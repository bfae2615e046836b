package testenv

import (
	"encoding/json"
	"testing"
)

// FromJSON unmarshals from JSON string.
// Error fails the test immediately.
func FromJSON(t testing.TB, j string, ptr any) {
	t.Helper()
	if e := json.Unmarshal([]byte(j), ptr); e != nil {
		t.Fatalf("json.Unmarshal(%q) %v", j, e)
	}
}

// ToJSON marshals a value as JSON string.
func ToJSON(v any) string {
	j, e := json.Marshal(v)
	if e != nil {
		return "ERROR: " + e.Error()
	}
	return string(j)
}
