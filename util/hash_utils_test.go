package util

import "testing"

func TestHashCode_Deterministic(t *testing.T) {
	a := HashCode([]byte("page-17"))
	b := HashCode([]byte("page-17"))
	if a != b {
		t.Fatalf("HashCode must be deterministic for the same input, got %d and %d", a, b)
	}
}

func TestHashCode_DistinctInputsUsuallyDiffer(t *testing.T) {
	a := HashCode([]byte("page-17"))
	b := HashCode([]byte("page-18"))
	if a == b {
		t.Fatalf("distinct inputs collided: both hashed to %d", a)
	}
}
