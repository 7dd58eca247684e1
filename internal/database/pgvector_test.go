package database

import (
	"testing"
)

func TestHalfVector_RoundTrip(t *testing.T) {
	v := NewHalfVector([]float32{1, -0.5, 0.25})

	val, err := v.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if val != "[1,-0.5,0.25]" {
		t.Errorf("Value() = %v, want [1,-0.5,0.25]", val)
	}

	var scanned HalfVector
	if err := scanned.Scan(val); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if scanned.Dimension() != 3 {
		t.Fatalf("Dimension() = %d, want 3", scanned.Dimension())
	}
	got := scanned.Floats()
	for i, want := range []float32{1, -0.5, 0.25} {
		if got[i] != want {
			t.Errorf("element %d = %v, want %v", i, got[i], want)
		}
	}
}

func TestHalfVector_ScanNil(t *testing.T) {
	var v HalfVector
	if err := v.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if v.Floats() != nil {
		t.Error("expected nil floats after scanning nil")
	}
	if !v.IsZero() {
		t.Error("expected IsZero() after scanning nil")
	}
}

func TestHalfVector_ScanEmpty(t *testing.T) {
	var v HalfVector
	if err := v.Scan("[]"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if v.Dimension() != 0 {
		t.Errorf("Dimension() = %d, want 0", v.Dimension())
	}
}

func TestHalfVector_ScanBytes(t *testing.T) {
	var v HalfVector
	if err := v.Scan([]byte("[0.5,2]")); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if v.Dimension() != 2 {
		t.Errorf("Dimension() = %d, want 2", v.Dimension())
	}
}

func TestHalfVector_ScanUnsupportedType(t *testing.T) {
	var v HalfVector
	if err := v.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}

func TestHalfVector_DefensiveCopy(t *testing.T) {
	src := []float32{1, 2, 3}
	v := NewHalfVector(src)
	src[0] = 99
	if v.Floats()[0] != 1 {
		t.Error("NewHalfVector should copy its input")
	}
}
