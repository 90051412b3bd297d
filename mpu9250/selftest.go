package mpu9250

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Self-test result bits, set for each sensor that passed.
const (
	SELF_TEST_GYRO    = 0x01
	SELF_TEST_ACCEL   = 0x02
	SELF_TEST_COMPASS = 0x04
)

const (
	selfTestSamples  = 200
	selfTestSettle   = 200 * time.Millisecond
	selfTestStSettle = 20 * time.Millisecond
	compassTestTries = 10
	compassTestWait  = 10 * time.Millisecond

	// Limits at 250dps and 2g.
	gyroSens250      = 131.0
	accelSens2g      = 16384.0
	maxGyroVar       = 0.5   // Minimum ratio of gyro response to factory trim
	maxAccelVar      = 0.5   // Allowed deviation of accel response from factory trim
	minGyroResponse  = 60.0  // dps, without factory trim
	maxGyroOffset    = 20.0  // dps
	minAccelResponse = 0.225 // g, without factory trim
	maxAccelResponse = 0.675 // g, without factory trim

	compassXYLimit = 200
	compassZMin    = -3200
	compassZMax    = -800
)

/*
SelfTest runs the gyro and accelerometer self-test against the factory trim stored in the
chip, then the AK8963 magnetometer self-test. It returns SELF_TEST_* bits for the sensors
that passed. The previous configuration, including the DMP state, is restored afterwards.
An error means the test could not be carried out, not that a sensor failed it.
*/
func (mpu *MPU9250) SelfTest() (result byte, err error) {
	var (
		gyroFSR    = mpu.gyroFSR
		accelFSR   = mpu.accelFSR
		lpf        = mpu.lpf
		sampleRate = mpu.sampleRate
		sensors    = mpu.sensors
		fifo       = mpu.fifoEnable
		dmpWasOn   = mpu.dmpOn
	)
	if dmpWasOn {
		if err := mpu.SetDMPState(false); err != nil {
			return 0, err
		}
	}
	defer func() {
		if rerr := mpu.restoreAfterSelfTest(gyroFSR, accelFSR, lpf, sampleRate, sensors, fifo, dmpWasOn); rerr != nil {
			err = multierr.Append(err, rerr)
		}
	}()

	gyroOK, accelOK, err := mpu.selfTest6500()
	if err != nil {
		return 0, err
	}
	if gyroOK {
		result |= SELF_TEST_GYRO
	}
	if accelOK {
		result |= SELF_TEST_ACCEL
	}
	compassOK, err := mpu.selfTestCompass()
	if err != nil {
		return 0, err
	}
	if compassOK {
		result |= SELF_TEST_COMPASS
	}
	lg.Infof("self-test: gyro %t, accel %t, compass %t", gyroOK, accelOK, compassOK)
	return result, nil
}

// restoreAfterSelfTest puts back the configuration SelfTest found. Every step is attempted
// even when an earlier one fails.
func (mpu *MPU9250) restoreAfterSelfTest(gyroFSR uint16, accelFSR uint8, lpf, sampleRate uint16,
	sensors, fifo SensorMask, dmpWasOn bool) error {
	// The self test leaves the chip at 250dps and 2g behind the cache; until a setter
	// succeeds the scale factors describe that, and the range is unknown.
	mpu.gyroFSR, mpu.accelFSR, mpu.lpf = 0xFFFF, 0xFF, 0xFFFF
	mpu.gSense, mpu.aSense = gyroSens250, uint16(accelSens2g)
	mpu.sensors = INV_XYZ_GYRO | INV_XYZ_ACCEL

	var err error
	for _, f := range []func() error{
		func() error { return mpu.SetGyroFSR(gyroFSR) },
		func() error { return mpu.SetAccelFSR(accelFSR) },
		func() error { return mpu.SetSampleRate(sampleRate) },
		func() error { return mpu.SetLPF(lpf) },
		func() error { return mpu.SetSensors(sensors) },
	} {
		err = multierr.Append(err, f())
	}
	if sensors != 0 {
		err = multierr.Append(err, mpu.ConfigureFifo(fifo))
	}
	if dmpWasOn {
		err = multierr.Append(err, mpu.SetDMPState(true))
	}
	return errors.Wrap(err, "restoring configuration after self-test")
}

// selfTest6500 compares the gyro and accel response to their self-test excitation with
// the factory trim values.
func (mpu *MPU9250) selfTest6500() (gyroOK, accelOK bool, err error) {
	setup := []struct {
		reg, value byte
	}{
		{MPUREG_PWR_MGMT_1, INV_CLK_PLL},
		{MPUREG_PWR_MGMT_2, 0},
		{MPUREG_INT_ENABLE, 0},
		{MPUREG_FIFO_EN, 0},
		{MPUREG_SMPLRT_DIV, 0},
		{MPUREG_CONFIG, BITS_DLPF_CFG_98HZ},
		{MPUREG_GYRO_CONFIG, BITS_FS_250DPS},
		{MPUREG_ACCEL_CONFIG_2, BIT_FIFO_SIZE_1024 | BITS_DLPF_CFG_98HZ},
		{MPUREG_ACCEL_CONFIG, BITS_FS_2G},
	}
	for _, s := range setup {
		if err := mpu.i2cWrite(s.reg, s.value); err != nil {
			return false, false, errors.Wrap(err, "preparing self-test")
		}
	}
	mpu.intEnable = 0
	mpu.sleep(selfTestSettle)

	gAvg, aAvg, err := mpu.averageRaw()
	if err != nil {
		return false, false, err
	}

	if err := mpu.i2cWrite(MPUREG_GYRO_CONFIG, BITS_SELF_TEST_EN|BITS_FS_250DPS); err != nil {
		return false, false, errors.Wrap(err, "enabling gyro self-test")
	}
	if err := mpu.i2cWrite(MPUREG_ACCEL_CONFIG, BITS_SELF_TEST_EN|BITS_FS_2G); err != nil {
		return false, false, errors.Wrap(err, "enabling accel self-test")
	}
	mpu.sleep(selfTestStSettle)

	gST, aST, err := mpu.averageRaw()
	if err != nil {
		return false, false, err
	}

	if err := mpu.i2cWrite(MPUREG_GYRO_CONFIG, BITS_FS_250DPS); err != nil {
		return false, false, errors.Wrap(err, "disabling gyro self-test")
	}
	if err := mpu.i2cWrite(MPUREG_ACCEL_CONFIG, BITS_FS_2G); err != nil {
		return false, false, errors.Wrap(err, "disabling accel self-test")
	}
	mpu.sleep(selfTestStSettle)

	gCodes, err := mpu.i2cReadBytes(MPUREG_SELF_TEST_X_GYRO, 3)
	if err != nil {
		return false, false, errors.Wrap(err, "reading gyro factory trim")
	}
	aCodes, err := mpu.i2cReadBytes(MPUREG_SELF_TEST_X_ACCEL, 3)
	if err != nil {
		return false, false, errors.Wrap(err, "reading accel factory trim")
	}

	gyroOK, accelOK = true, true
	for i := 0; i < 3; i++ {
		gResp := gST[i] - gAvg[i]
		if gCodes[i] != 0 {
			if gResp/factoryTrim(gCodes[i]) <= maxGyroVar {
				gyroOK = false
			}
		} else if math.Abs(gResp) < minGyroResponse*gyroSens250 {
			gyroOK = false
		}
		if math.Abs(gAvg[i]) > maxGyroOffset*gyroSens250 {
			gyroOK = false
		}

		aResp := aST[i] - aAvg[i]
		if aCodes[i] != 0 {
			if math.Abs(aResp/factoryTrim(aCodes[i])-1) > maxAccelVar {
				accelOK = false
			}
		} else if math.Abs(aResp) < minAccelResponse*accelSens2g || math.Abs(aResp) > maxAccelResponse*accelSens2g {
			accelOK = false
		}
		lg.Debugf("self-test axis %d: gyro %.1f (trim %d), accel %.1f (trim %d)", i, gResp, gCodes[i], aResp, aCodes[i])
	}
	return gyroOK, accelOK, nil
}

// factoryTrim is the expected self-test response, in LSB at the lowest range, for an OTP code.
func factoryTrim(code byte) float64 {
	return 2620 * math.Pow(1.01, float64(code)-1)
}

func (mpu *MPU9250) averageRaw() (gyro, accel [3]float64, err error) {
	for n := 0; n < selfTestSamples; n++ {
		a, err := mpu.readVector(MPUREG_ACCEL_XOUT_H)
		if err != nil {
			return gyro, accel, errors.Wrap(err, "sampling accel for self-test")
		}
		g, err := mpu.readVector(MPUREG_GYRO_XOUT_H)
		if err != nil {
			return gyro, accel, errors.Wrap(err, "sampling gyro for self-test")
		}
		for i := 0; i < 3; i++ {
			accel[i] += float64(a[i])
			gyro[i] += float64(g[i])
		}
	}
	for i := 0; i < 3; i++ {
		accel[i] /= selfTestSamples
		gyro[i] /= selfTestSamples
	}
	return gyro, accel, nil
}

// selfTestCompass runs the AK8963 internal field self-test.
func (mpu *MPU9250) selfTestCompass() (bool, error) {
	bypass := mpu.bypassMode
	if err := mpu.SetBypass(true); err != nil {
		return false, err
	}
	defer func() {
		if err := mpu.SetBypass(bypass); err != nil {
			lg.Errorf("restoring bypass after compass self-test: %s", err)
		}
	}()

	addr := mpu.compassAddr
	if err := mpu.i2cWriteTo(addr, AK8963_CNTL1, AKM_POWER_DOWN); err != nil {
		return false, errors.Wrap(err, "powering down AK8963")
	}
	if err := mpu.i2cWriteTo(addr, AK8963_ASTC, AKM_BIT_SELF_TEST); err != nil {
		return false, errors.Wrap(err, "enabling AK8963 self-test field")
	}
	if err := mpu.i2cWriteTo(addr, AK8963_CNTL1, AKM_MODE_SELF_TEST); err != nil {
		return false, errors.Wrap(err, "starting AK8963 self-test")
	}

	ready := false
	for try := 0; try < compassTestTries; try++ {
		mpu.sleep(compassTestWait)
		st1, err := mpu.bus.ReadByteFromReg(addr, AK8963_ST1)
		if err != nil {
			return false, &BusError{Op: "read", Addr: addr, Reg: AK8963_ST1, Err: err}
		}
		if st1&AKM_DATA_READY != 0 {
			ready = true
			break
		}
	}

	pass := false
	if ready {
		raw, err := mpu.i2cReadBytesFrom(addr, AK8963_HXL, 6)
		if err != nil {
			return false, errors.Wrap(err, "reading AK8963 self-test field")
		}
		x := int16(uint16(raw[1])<<8 | uint16(raw[0]))
		y := int16(uint16(raw[3])<<8 | uint16(raw[2]))
		z := int16(uint16(raw[5])<<8 | uint16(raw[4]))
		pass = x >= -compassXYLimit && x <= compassXYLimit &&
			y >= -compassXYLimit && y <= compassXYLimit &&
			z >= compassZMin && z <= compassZMax
		lg.Debugf("AK8963 self-test field %d, %d, %d", x, y, z)
	} else {
		lg.Warnf("AK8963 self-test produced no data")
	}

	if err := mpu.i2cWriteTo(addr, AK8963_ASTC, 0); err != nil {
		return false, errors.Wrap(err, "disabling AK8963 self-test field")
	}
	if err := mpu.i2cWriteTo(addr, AK8963_CNTL1, AKM_POWER_DOWN); err != nil {
		return false, errors.Wrap(err, "powering down AK8963")
	}
	return pass, nil
}
