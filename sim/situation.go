// Package sim emulates an MPU9250 and its AK8963 magnetometer at register level, driven by
// a scripted attitude situation, so the driver can run without hardware.
package sim

import (
	"errors"
	"math"
	"sort"

	"github.com/westphae/quaternion"
)

const (
	pi  = math.Pi
	deg = pi / 180

	earthFieldH = 20.0  // uT, horizontal component of the earth's field, pointing north
	earthFieldV = -45.0 // uT, vertical component, pointing down
)

// Situation defines an attitude scenario by piecewise-linear interpolation of roll, pitch
// and heading over time. Past its last time it repeats from the start.
type Situation struct {
	t                []float64 // times for situation, s
	roll, pitch, yaw []float64 // attitude, rad
}

// NewSituation builds a Situation from matching slices of times (s, increasing) and angles (rad).
func NewSituation(t, roll, pitch, yaw []float64) (*Situation, error) {
	n := len(t)
	if n < 2 || len(roll) != n || len(pitch) != n || len(yaw) != n {
		return nil, errors.New("situation needs at least two points and equal-length slices")
	}
	if !sort.Float64sAreSorted(t) {
		return nil, errors.New("situation times must be increasing")
	}
	return &Situation{t: t, roll: roll, pitch: pitch, yaw: yaw}, nil
}

// Level is a situation sitting still, level and facing north.
func Level() *Situation {
	s, _ := NewSituation([]float64{0, 1}, []float64{0, 0}, []float64{0, 0}, []float64{0, 0})
	return s
}

// Turn is a full turn at bank degrees taking period seconds.
func Turn(bank, period float64) *Situation {
	s, _ := NewSituation(
		[]float64{0, period / 4, period / 2, 3 * period / 4, period},
		[]float64{bank * deg, bank * deg, bank * deg, bank * deg, bank * deg},
		[]float64{0, 0, 0, 0, 0},
		[]float64{0, pi / 2, pi, 3 * pi / 2, 2 * pi},
	)
	return s
}

// Angles interpolates roll, pitch and yaw at time t, in rad.
func (s *Situation) Angles(t float64) (roll, pitch, yaw float64) {
	t0, t1 := s.t[0], s.t[len(s.t)-1]
	if t < t0 {
		t = t0
	}
	if t > t1 {
		t = t0 + math.Mod(t-t0, t1-t0)
	}
	ix := 0
	if t > t0 {
		ix = sort.SearchFloat64s(s.t, t) - 1
	}
	if ix >= len(s.t)-1 {
		ix = len(s.t) - 2
	}

	f := (s.t[ix+1] - t) / (s.t[ix+1] - s.t[ix])
	roll = f*s.roll[ix] + (1-f)*s.roll[ix+1]
	pitch = f*s.pitch[ix] + (1-f)*s.pitch[ix+1]
	yaw = f*s.yaw[ix] + (1-f)*s.yaw[ix+1]
	return
}

// Attitude returns the quaternion rotating the sensor frame to the earth frame at time t.
func (s *Situation) Attitude(t float64) quaternion.Quaternion {
	roll, pitch, yaw := s.Angles(t)
	return ToQuaternion(roll, pitch, yaw)
}

// Rates returns the rates of change of roll, pitch and yaw at time t, in deg/s.
func (s *Situation) Rates(t float64) (r [3]float64) {
	const ddt = 0.001
	r0, p0, y0 := s.Angles(t)
	r1, p1, y1 := s.Angles(t + ddt)
	for i, d := range []float64{r1 - r0, p1 - p0, y1 - y0} {
		// Unwrap across the repeat point.
		if d > pi {
			d -= 2 * pi
		} else if d < -pi {
			d += 2 * pi
		}
		r[i] = d / ddt / deg
	}
	return
}

// Gravity returns the accelerometer reading at time t, in g.
func (s *Situation) Gravity(t float64) [3]float64 {
	return toSensor(s.Attitude(t), [3]float64{0, 0, 1})
}

// Field returns the magnetometer reading at time t, in uT.
func (s *Situation) Field(t float64) [3]float64 {
	return toSensor(s.Attitude(t), [3]float64{0, earthFieldH, earthFieldV})
}

// ToQuaternion composes yaw about z, then pitch about y, then roll about x.
func ToQuaternion(roll, pitch, yaw float64) quaternion.Quaternion {
	qr := quaternion.Quaternion{W: math.Cos(roll / 2), X: math.Sin(roll / 2)}
	qp := quaternion.Quaternion{W: math.Cos(pitch / 2), Y: math.Sin(pitch / 2)}
	qy := quaternion.Quaternion{W: math.Cos(yaw / 2), Z: math.Sin(yaw / 2)}
	return quaternion.Prod(qy, qp, qr)
}

// FromQuaternion recovers roll, pitch and yaw from q.
func FromQuaternion(q quaternion.Quaternion) (roll, pitch, yaw float64) {
	roll = math.Atan2(2*(q.W*q.X+q.Y*q.Z), 1-2*(q.X*q.X+q.Y*q.Y))
	pitch = math.Asin(math.Max(-1, math.Min(1, 2*(q.W*q.Y-q.Z*q.X))))
	yaw = math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
	return
}

// toSensor expresses the earth-frame vector v in the sensor frame rotated by e.
func toSensor(e quaternion.Quaternion, v [3]float64) [3]float64 {
	r := quaternion.Prod(e.Conj(), quaternion.Quaternion{X: v[0], Y: v[1], Z: v[2]}, e)
	return [3]float64{r.X, r.Y, r.Z}
}
