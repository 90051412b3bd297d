package mpu9250

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// UpdateMask selects which raw readings Update refreshes.
type UpdateMask byte

const (
	UPDATE_ACCEL   UpdateMask = 1 << 1
	UPDATE_GYRO    UpdateMask = 1 << 2
	UPDATE_COMPASS UpdateMask = 1 << 3
	UPDATE_TEMP    UpdateMask = 1 << 4
	UPDATE_ALL                = UPDATE_ACCEL | UPDATE_GYRO | UPDATE_COMPASS | UPDATE_TEMP
)

// Update refreshes the selected readings directly from the sensor registers, bypassing the FIFO.
// Every selected kind is attempted. The returned error is nil only if all of them succeeded;
// it combines the individual failures but callers should only rely on it being non-nil.
func (mpu *MPU9250) Update(mask UpdateMask) error {
	var err error
	if mask&UPDATE_ACCEL != 0 {
		err = multierr.Append(err, mpu.UpdateAccel())
	}
	if mask&UPDATE_GYRO != 0 {
		err = multierr.Append(err, mpu.UpdateGyro())
	}
	if mask&UPDATE_COMPASS != 0 {
		err = multierr.Append(err, mpu.UpdateCompass())
	}
	if mask&UPDATE_TEMP != 0 {
		err = multierr.Append(err, mpu.UpdateTemperature())
	}
	return err
}

// UpdateAccel reads the accelerometer registers into Sample.AX, AY, AZ.
func (mpu *MPU9250) UpdateAccel() error {
	if mpu.sensors&INV_XYZ_ACCEL == 0 {
		return rejected("accelerometer is not enabled")
	}
	v, err := mpu.readVector(MPUREG_ACCEL_XOUT_H)
	if err != nil {
		return errors.Wrap(err, "reading accelerometer")
	}
	mpu.Sample.AX, mpu.Sample.AY, mpu.Sample.AZ = v[0], v[1], v[2]
	mpu.Sample.Time = mpu.clock()
	return nil
}

// UpdateGyro reads the gyro registers into Sample.GX, GY, GZ.
func (mpu *MPU9250) UpdateGyro() error {
	if mpu.sensors&INV_XYZ_GYRO == 0 {
		return rejected("gyro is not enabled")
	}
	v, err := mpu.readVector(MPUREG_GYRO_XOUT_H)
	if err != nil {
		return errors.Wrap(err, "reading gyro")
	}
	mpu.Sample.GX, mpu.Sample.GY, mpu.Sample.GZ = v[0], v[1], v[2]
	mpu.Sample.Time = mpu.clock()
	return nil
}

// UpdateCompass reads the magnetometer into Sample.MX, MY, MZ.
func (mpu *MPU9250) UpdateCompass() error {
	v, err := mpu.readCompassReg()
	if err != nil {
		return err
	}
	mpu.Sample.MX, mpu.Sample.MY, mpu.Sample.MZ = v[0], v[1], v[2]
	mpu.Sample.Time = mpu.clock()
	return nil
}

// UpdateTemperature reads the die temperature into Sample.Temperature, in degrees C as q16.
func (mpu *MPU9250) UpdateTemperature() error {
	if mpu.sensors == 0 {
		return rejected("all sensors are off")
	}
	b, err := mpu.i2cReadBytes(MPUREG_TEMP_OUT_H, 2)
	if err != nil {
		return errors.Wrap(err, "reading temperature")
	}
	raw := float64(int16(uint16(b[0])<<8 | uint16(b[1])))
	mpu.Sample.Temperature = int32((35 + (raw-MPU_TEMP_OFFSET)/MPU_TEMP_SENS) * 65536)
	mpu.Sample.Time = mpu.clock()
	return nil
}

func (mpu *MPU9250) readVector(register byte) ([3]int16, error) {
	var v [3]int16
	b, err := mpu.i2cReadBytes(register, 6)
	if err != nil {
		return v, err
	}
	for i := range v {
		v[i] = int16(uint16(b[2*i])<<8 | uint16(b[2*i+1]))
	}
	return v, nil
}
