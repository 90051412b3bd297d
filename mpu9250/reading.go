package mpu9250

import (
	"time"
)

// Reading is a Sample converted to physical units, ready to publish or record.
type Reading struct {
	Time        time.Time  `json:"time"`
	Accel       [3]float64 `json:"accel"` // g
	Gyro        [3]float64 `json:"gyro"`  // deg/s
	Mag         [3]float64 `json:"mag"`   // uT
	Quat        [4]float64 `json:"quat"`  // w, x, y, z
	Temperature float64    `json:"temperature"`
	Pitch       float64    `json:"pitch"`
	Roll        float64    `json:"roll"`
	Yaw         float64    `json:"yaw"`
	Heading     float64    `json:"heading"`
	Tap         *TapEvent  `json:"tap,omitempty"`
	Orientation byte       `json:"orientation"`
}

// Reading converts the current Sample. A pending tap is consumed and attached.
func (mpu *MPU9250) Reading() Reading {
	s := &mpu.Sample
	r := Reading{
		Time:        s.Time,
		Accel:       [3]float64{mpu.CalcAccel(s.AX), mpu.CalcAccel(s.AY), mpu.CalcAccel(s.AZ)},
		Gyro:        [3]float64{mpu.CalcGyro(s.GX), mpu.CalcGyro(s.GY), mpu.CalcGyro(s.GZ)},
		Mag:         [3]float64{mpu.CalcMag(s.MX), mpu.CalcMag(s.MY), mpu.CalcMag(s.MZ)},
		Quat:        [4]float64{mpu.CalcQuat(s.QW), mpu.CalcQuat(s.QX), mpu.CalcQuat(s.QY), mpu.CalcQuat(s.QZ)},
		Temperature: mpu.CalcTemp(s.Temperature),
		Pitch:       s.Pitch,
		Roll:        s.Roll,
		Yaw:         s.Yaw,
		Heading:     s.Heading,
		Orientation: mpu.Events.Orientation(),
	}
	if tap, ok := mpu.Events.ReadTap(); ok {
		r.Tap = &tap
	}
	return r
}
