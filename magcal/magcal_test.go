package magcal

import (
	"math"
	"testing"
)

func TestSimpleUncalibrated(t *testing.T) {
	s := NewSimple(0)
	if s.Field != AvgMagField {
		t.Errorf("field %g", s.Field)
	}
	m := [3]float64{3, -4, 5}
	if s.Add(m) {
		t.Error("single reading changed the calibration")
	}
	if s.Apply(m) != m || s.Calibrated() {
		t.Error("uncalibrated axes not passed through")
	}
}

func TestSimpleHardIron(t *testing.T) {
	s := NewSimple(50)
	// Readings of a 25 uT field on every axis, offset by (10, -20, 5).
	offset := [3]float64{10, -20, 5}
	for _, sign := range []float64{1, -1} {
		for i := 0; i < 3; i++ {
			m := offset
			m[i] += sign * 25
			s.Add(m)
		}
	}
	if !s.Calibrated() {
		t.Fatalf("not calibrated: K=%v", s.K)
	}
	for i := 0; i < 3; i++ {
		if math.Abs(s.K[i]-2) > 1e-9 {
			t.Errorf("K[%d] = %g, want 2", i, s.K[i])
		}
	}
	if c := s.Apply(offset); math.Abs(c[0])+math.Abs(c[1])+math.Abs(c[2]) > 1e-9 {
		t.Errorf("offset calibrates to %v, want zero", c)
	}
	// East is +x.
	if h := s.Heading([3]float64{35, -20, 5}); math.Abs(h-90) > 1e-9 {
		t.Errorf("heading %g, want 90", h)
	}

	// A reading inside the seen range changes nothing.
	if s.Add(offset) {
		t.Error("interior reading changed the calibration")
	}
	s.Reset()
	if s.Calibrated() {
		t.Error("calibration survived Reset")
	}
}
