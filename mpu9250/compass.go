package mpu9250

import (
	"github.com/pkg/errors"
)

// setupCompass finds the AK8963 on the auxiliary bus, reads its sensitivity adjustment
// from fuse ROM and sets up I2C master slaves 0 and 1 to read it at every sample.
func (mpu *MPU9250) setupCompass() error {
	if err := mpu.SetBypass(true); err != nil {
		return err
	}

	// Find compass. Possible addresses range from 0x0C to 0x0F.
	found := false
	for addr := byte(AK8963_I2C_ADDR); addr <= AK8963_I2C_ADDR+3; addr++ {
		id, err := mpu.bus.ReadByteFromReg(addr, AK8963_WIA)
		if err == nil && id == AK8963_WHOAMI {
			mpu.compassAddr = addr
			found = true
			break
		}
	}
	if !found {
		return errors.WithMessage(ErrConfigRejected, "AK8963 magnetometer not found on auxiliary bus")
	}

	if err := mpu.i2cWriteTo(mpu.compassAddr, AK8963_CNTL1, AKM_POWER_DOWN); err != nil {
		return errors.Wrap(err, "powering down AK8963")
	}
	mpu.sleep(compassSetupDelay)
	if err := mpu.i2cWriteTo(mpu.compassAddr, AK8963_CNTL1, AKM_FUSE_ROM_ACCESS); err != nil {
		return errors.Wrap(err, "opening AK8963 fuse ROM")
	}
	mpu.sleep(compassSetupDelay)

	// Get sensitivity adjustment data from fuse ROM.
	asa, err := mpu.i2cReadBytesFrom(mpu.compassAddr, AK8963_ASAX, 3)
	if err != nil {
		return errors.Wrap(err, "reading AK8963 sensitivity adjustment")
	}
	for i := range asa {
		mpu.magSensAdj[i] = int32(asa[i]) + 128
	}

	if err := mpu.i2cWriteTo(mpu.compassAddr, AK8963_CNTL1, AKM_POWER_DOWN); err != nil {
		return errors.Wrap(err, "powering down AK8963")
	}
	mpu.sleep(compassSetupDelay)

	if err := mpu.SetBypass(false); err != nil {
		return err
	}

	setup := []struct {
		reg, value byte
		what       string
	}{
		// Set up master mode, master clock, and ES bit.
		{MPUREG_I2C_MST_CTRL, 0x40, "master mode"},
		// Slave 0 reads from AKM data registers.
		{MPUREG_I2C_SLV0_ADDR, BIT_I2C_READ | mpu.compassAddr, "slave 0 address"},
		// Compass reads start here.
		{MPUREG_I2C_SLV0_REG, AK8963_ST1, "slave 0 register"},
		// Enable slave 0, 8-byte reads.
		{MPUREG_I2C_SLV0_CTRL, BIT_SLAVE_EN | 8, "slave 0 control"},
		// Slave 1 changes AKM measurement mode.
		{MPUREG_I2C_SLV1_ADDR, mpu.compassAddr, "slave 1 address"},
		// AKM measurement mode register.
		{MPUREG_I2C_SLV1_REG, AK8963_CNTL1, "slave 1 register"},
		// Enable slave 1, 1-byte writes.
		{MPUREG_I2C_SLV1_CTRL, BIT_SLAVE_EN | 1, "slave 1 control"},
		// Set slave 1 data.
		{MPUREG_I2C_SLV1_DO, AKM_SINGLE_MEASUREMENT, "slave 1 data"},
		// Trigger slave 0 and slave 1 actions at each sample.
		{MPUREG_I2C_MST_DELAY_CTRL, BIT_SLAVE0_DLY_EN | BIT_SLAVE1_DLY_EN, "slave delay"},
	}
	for _, s := range setup {
		if err := mpu.i2cWrite(s.reg, s.value); err != nil {
			return errors.Wrapf(err, "setting up AK8963 %s", s.what)
		}
	}

	lg.Debugf("AK8963 at %#02x, sensitivity adjustment %v", mpu.compassAddr, mpu.magSensAdj)
	return nil
}

// SetCompassSampleRate sets the magnetometer sample rate in Hz. It must not exceed the
// gyro/accel sample rate or 100Hz.
func (mpu *MPU9250) SetCompassSampleRate(rate uint16) error {
	if rate == 0 || rate > mpu.sampleRate || rate > maxCompassRate {
		return rejected("%d Hz is not a valid compass rate at sample rate %d Hz", rate, mpu.sampleRate)
	}
	div := mpu.sampleRate/rate - 1
	if err := mpu.i2cWrite(MPUREG_I2C_SLV4_CTRL, byte(div)); err != nil {
		return errors.Wrap(err, "setting compass rate")
	}
	mpu.compassSampleRate = mpu.sampleRate / (div + 1)
	return nil
}

// CompassSampleRate returns the magnetometer sample rate in Hz.
func (mpu *MPU9250) CompassSampleRate() uint16 {
	return mpu.compassSampleRate
}

// readCompassReg returns one sensitivity-adjusted magnetometer reading.
// In bypass mode the AK8963 is read directly and retriggered, otherwise its data is
// taken from the external sensor registers filled by slave 0.
func (mpu *MPU9250) readCompassReg() ([3]int16, error) {
	var data [3]int16
	if mpu.sensors&INV_XYZ_COMPASS == 0 {
		return data, rejected("compass is not enabled")
	}

	var (
		raw []byte
		err error
	)
	if mpu.bypassMode {
		raw, err = mpu.i2cReadBytesFrom(mpu.compassAddr, AK8963_ST1, 8)
	} else {
		raw, err = mpu.i2cReadBytes(MPUREG_EXT_SENS_DATA_00, 8)
	}
	if err != nil {
		return data, errors.Wrap(err, "reading compass")
	}
	if raw[0]&AKM_DATA_READY == 0 {
		return data, ErrNoData
	}
	if mpu.bypassMode {
		if err := mpu.i2cWriteTo(mpu.compassAddr, AK8963_CNTL1, AKM_SINGLE_MEASUREMENT); err != nil {
			return data, errors.Wrap(err, "triggering compass measurement")
		}
	}
	if raw[0]&AKM_DATA_OVERRUN != 0 {
		return data, errors.WithMessage(ErrNoData, "compass data overrun")
	}
	if raw[7]&AKM_OVERFLOW != 0 {
		return data, ErrCompassOverflow
	}
	for i := 0; i < 3; i++ {
		v := int32(int16(uint16(raw[2*i+2])<<8 | uint16(raw[2*i+1])))
		data[i] = int16(v * mpu.magSensAdj[i] >> 8)
	}
	return data, nil
}
