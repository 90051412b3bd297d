// Package fusion interprets the fixed-point output of the MPU9250 DMP: Q-format unpacking,
// Euler angles in two conventions and magnetic heading.
package fusion

import (
	"math"

	"github.com/westphae/quaternion"
)

const (
	Deg = 180 / math.Pi
	Q30 = 30
	Q16 = 16
)

// QToFloat converts a signed fixed-point number with q fractional bits to a float.
func QToFloat(n int32, q uint) float64 {
	mask := int32(1)<<q - 1
	return float64(n>>q) + float64(n&mask)/float64(uint64(1)<<q)
}

// FloatToQ converts f to a signed fixed-point number with q fractional bits,
// rounding to the nearest step and saturating at the int32 range.
func FloatToQ(f float64, q uint) int32 {
	v := math.Round(f * float64(uint64(1)<<q))
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

// Q30Quaternion unpacks the four q30 components emitted by the DMP.
func Q30Quaternion(w, x, y, z int32) quaternion.Quaternion {
	return quaternion.Quaternion{
		W: QToFloat(w, Q30),
		X: QToFloat(x, Q30),
		Y: QToFloat(y, Q30),
		Z: QToFloat(z, Q30),
	}
}

// EulerA returns pitch, roll and yaw from q.
// The gimbal term is clamped into the asin domain and pitch is twice its asin.
// In degrees, negative angles are wrapped into [0, 360).
func EulerA(q quaternion.Quaternion, degrees bool) (pitch, roll, yaw float64) {
	ysqr := q.Y * q.Y
	t0 := -2*(ysqr+q.Z*q.Z) + 1
	t1 := 2 * (q.X*q.Y - q.W*q.Z)
	t2 := -2 * (q.X*q.Z + q.W*q.Y)
	t3 := 2 * (q.Y*q.Z - q.W*q.X)
	t4 := -2*(q.X*q.X+ysqr) + 1

	t2 = math.Max(-1, math.Min(1, t2))

	pitch = 2 * math.Asin(t2)
	roll = math.Atan2(t3, t4)
	yaw = math.Atan2(t1, t0)
	if !degrees {
		return
	}
	return wrap360(pitch * Deg), wrap360(roll * Deg), wrap360(yaw * Deg)
}

// EulerB returns pitch, roll and yaw from q in the aerospace convention.
// Nothing is clamped or wrapped: degrees are a plain rescale of the radian values.
func EulerB(q quaternion.Quaternion, degrees bool) (pitch, roll, yaw float64) {
	q02, q12, q22, q32 := q.W*q.W, q.X*q.X, q.Y*q.Y, q.Z*q.Z

	yaw = math.Atan2(2*(q.X*q.Y+q.W*q.Z), q02+q12-q22-q32)
	pitch = math.Atan2(2*(q.W*q.X+q.Y*q.Z), q02-q12-q22+q32)
	roll = -math.Asin(2 * (q.X*q.Z - q.W*q.Y))
	if degrees {
		pitch, roll, yaw = pitch*Deg, roll*Deg, yaw*Deg
	}
	return
}

// Heading returns the magnetic heading in degrees, in [0, 360), for a level magnetometer:
// 0 along +y, 90 along +x. A zero field reads as 0.
func Heading(mx, my float64) float64 {
	if mx == 0 && my == 0 {
		return 0
	}
	return wrap360(math.Atan2(mx, my) * Deg)
}

func wrap360(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d -= 360
	}
	return d
}
