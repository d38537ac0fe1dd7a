package testfixtures

import "testing"

func TestIDGenerator(t *testing.T) {
	gen := NewIDGenerator("")
	if got := gen.Next(); got != "id-1" {
		t.Fatalf("expected id-1, got %s", got)
	}
	if got := gen.Next(); got != "id-2" {
		t.Fatalf("expected id-2, got %s", got)
	}

	next := Sequence("night")
	if got := next(); got != "night-1" {
		t.Fatalf("expected night-1, got %s", got)
	}
}
