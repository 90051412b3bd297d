// Package magcal estimates magnetometer scale and offset from the extremes seen on each axis.
// The min/max procedure gives a usable hard/soft iron calibration but the device has to be
// turned through every orientation by hand.
package magcal

import (
	"math"

	"github.com/d2r2/go-logger"

	"github.com/westphae/dmp9250/fusion"
)

var lg = logger.NewPackageLogger("magcal", logger.InfoLevel)

const (
	Big = 1e9
	// AvgMagField is a typical horizontal plus vertical earth field, uT.
	AvgMagField = 50
)

/*
Simple tracks the per-axis min and max of the readings it is given. A calibrated value is
K*m + L; an axis keeps K=1, L=0 until it has seen a spread.
K and L only change when an axis range grows beyond what the current K already accounts for.
*/
type Simple struct {
	Field float64 // Field magnitude the calibrated output is scaled to
	K, L  [3]float64

	min, max [3]float64
}

// NewSimple returns an uncalibrated estimator scaling to field. field <= 0 means AvgMagField.
func NewSimple(field float64) *Simple {
	if field <= 0 {
		field = AvgMagField
	}
	s := &Simple{Field: field}
	s.Reset()
	return s
}

// Reset forgets every reading.
func (s *Simple) Reset() {
	s.K = [3]float64{}
	s.L = [3]float64{}
	s.min = [3]float64{Big, Big, Big}
	s.max = [3]float64{-Big, -Big, -Big}
}

// Add folds m into the estimate and reports whether K or L changed.
func (s *Simple) Add(m [3]float64) bool {
	var changed bool
	for i := 0; i < 3; i++ {
		s.min[i], s.max[i] = math.Min(s.min[i], m[i]), math.Max(s.max[i], m[i])
		span := s.max[i] - s.min[i]
		if span <= 0 {
			continue
		}
		if s.K[i] == 0 || span > 2*s.Field/s.K[i] {
			s.K[i] = 2 * s.Field / span
			s.L[i] = -s.K[i] * (s.max[i] + s.min[i]) / 2
			lg.Debugf("axis %d K=%1.4f L=%1.4f", i, s.K[i], s.L[i])
			changed = true
		}
	}
	return changed
}

// Calibrated reports whether every axis has a scale.
func (s *Simple) Calibrated() bool {
	return s.K[0] != 0 && s.K[1] != 0 && s.K[2] != 0
}

// Apply returns the calibrated form of m.
func (s *Simple) Apply(m [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		if s.K[i] == 0 {
			out[i] = m[i]
			continue
		}
		out[i] = s.K[i]*m[i] + s.L[i]
	}
	return out
}

// Heading returns the compass heading in degrees of the calibrated m.
func (s *Simple) Heading(m [3]float64) float64 {
	c := s.Apply(m)
	return fusion.Heading(c[0], c[1])
}
