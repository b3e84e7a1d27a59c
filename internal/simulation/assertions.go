package simulation

import (
	"math"
	"strings"
	"testing"
)

// AssertValue asserts that a specific results key holds a value within tol
// of want.
func AssertValue(t *testing.T, result RunResult, key string, want, tol float64) {
	t.Helper()
	got, ok := result.Results[key]
	if !ok {
		t.Errorf("AssertValue: key %s not in results", key)
		return
	}
	if math.Abs(got-want) > tol {
		t.Errorf("AssertValue: %s = %v, want %v (tol %v)", key, got, want, tol)
	}
}

// AssertKeysPresent asserts that every listed key exists in the results,
// whatever its value.
func AssertKeysPresent(t *testing.T, result RunResult, keys ...string) {
	t.Helper()
	for _, key := range keys {
		if _, ok := result.Results[key]; !ok {
			t.Errorf("AssertKeysPresent: key %s not in results", key)
		}
	}
}

// SumByPrefix totals every results value whose key starts with prefix.
func SumByPrefix(result RunResult, prefix string) float64 {
	var total float64
	for key, v := range result.Results {
		if strings.HasPrefix(key, prefix) {
			total += v
		}
	}
	return total
}

// AssertPersonTimeConserved asserts that the mortality observer's total
// accrued person time matches the expected simulant-years within tol. The
// sum runs over the fully stratified person_time keys; state person time
// and anemia person time are excluded by the prefix.
func AssertPersonTimeConserved(t *testing.T, result RunResult, want, tol float64) {
	t.Helper()
	got := SumByPrefix(result, "person_time_in_")
	if math.Abs(got-want) > tol {
		t.Errorf("AssertPersonTimeConserved: total person time = %v, want %v (tol %v)", got, want, tol)
	}
}
