package mpu9250

import (
	"time"

	"github.com/westphae/quaternion"

	"github.com/westphae/dmp9250/fusion"
)

/*
Sample holds the most recent good readings of the device.
Every successful update overwrites only the fields it read; a failed update leaves the
whole Sample unchanged, so stale values persist rather than being zeroed.
Pitch, Roll, Yaw and Heading are only set by the Compute* methods.
*/
type Sample struct {
	AX, AY, AZ     int16 // Raw accelerometer
	GX, GY, GZ     int16 // Raw gyro
	MX, MY, MZ     int16 // Sensitivity-adjusted magnetometer
	QW, QX, QY, QZ int32 // q30 quaternion from the DMP
	Temperature    int32 // Degrees C, q16
	Time           time.Time

	Pitch, Roll, Yaw float64
	Heading          float64 // Degrees, [0, 360)
}

func (s *Sample) apply(p Packet) {
	if p.Fields&FIELD_ACCEL != 0 {
		s.AX, s.AY, s.AZ = p.Accel[0], p.Accel[1], p.Accel[2]
	}
	if p.Fields&FIELD_X_GYRO != 0 {
		s.GX = p.Gyro[0]
	}
	if p.Fields&FIELD_Y_GYRO != 0 {
		s.GY = p.Gyro[1]
	}
	if p.Fields&FIELD_Z_GYRO != 0 {
		s.GZ = p.Gyro[2]
	}
	if p.Fields&FIELD_QUAT != 0 {
		s.QW, s.QX, s.QY, s.QZ = p.Quat[0], p.Quat[1], p.Quat[2], p.Quat[3]
	}
}

// Quaternion returns the last DMP quaternion as floats.
func (s *Sample) Quaternion() quaternion.Quaternion {
	return fusion.Q30Quaternion(s.QW, s.QX, s.QY, s.QZ)
}

// CalcAccel converts a raw accelerometer value to g at the current range.
func (mpu *MPU9250) CalcAccel(axis int16) float64 {
	if mpu.aSense == 0 {
		return 0
	}
	return float64(axis) / float64(mpu.aSense)
}

// CalcGyro converts a raw gyro value to deg/s at the current range.
func (mpu *MPU9250) CalcGyro(axis int16) float64 {
	if mpu.gSense == 0 {
		return 0
	}
	return float64(axis) / mpu.gSense
}

// CalcMag converts a magnetometer value to uT.
func (mpu *MPU9250) CalcMag(axis int16) float64 {
	return float64(axis) / magSense
}

// CalcQuat converts a q30 quaternion component to a float.
func (mpu *MPU9250) CalcQuat(axis int32) float64 {
	return fusion.QToFloat(axis, fusion.Q30)
}

// CalcTemp converts the q16 temperature to degrees C.
func (mpu *MPU9250) CalcTemp(t int32) float64 {
	return fusion.QToFloat(t, fusion.Q16)
}

// ComputeEulerAngles sets Sample.Pitch, Roll and Yaw from the last quaternion, with
// angles in degrees wrapped into [0, 360) when degrees is set.
func (mpu *MPU9250) ComputeEulerAngles(degrees bool) {
	s := &mpu.Sample
	s.Pitch, s.Roll, s.Yaw = fusion.EulerA(s.Quaternion(), degrees)
}

// ComputeEulerAngles2 sets Sample.Pitch, Roll and Yaw from the last quaternion in the
// aerospace convention, signed.
func (mpu *MPU9250) ComputeEulerAngles2(degrees bool) {
	s := &mpu.Sample
	s.Pitch, s.Roll, s.Yaw = fusion.EulerB(s.Quaternion(), degrees)
}

// ComputeCompassHeading sets and returns Sample.Heading, in degrees, from the last magnetometer reading.
func (mpu *MPU9250) ComputeCompassHeading() float64 {
	s := &mpu.Sample
	s.Heading = fusion.Heading(float64(s.MX), float64(s.MY))
	return s.Heading
}
