package mpu9250

// DMP loading and configuration, adapted from inv_mpu_dmp_motion_driver.c (MotionDriver 6.12)

import (
	"math"

	"github.com/pkg/errors"
)

type dmpState struct {
	features Features
	mask     FeatureMask // As enabled on the chip, pedometer always included
	fifoRate uint16
	layout   PacketLayout
	orient   uint16
	tapCB    func(direction, count byte)
	orientCB func(orientation byte)
}

// DmpLoad uploads the DMP firmware image unless it is already resident.
// A failure wraps ErrFirmwareLoad.
func (mpu *MPU9250) DmpLoad() error {
	if mpu.dmpLoaded {
		return nil
	}
	return mpu.loadFirmware(mpu.firmware, DMP_START_ADDRESS, DMP_SAMPLE_RATE)
}

/*
DmpBegin loads the DMP firmware, enables the requested features and starts the DMP
emitting packets at fifoRate Hz (clamped to [1, 200]).
If both quaternion features are requested only the 3-axis quaternion is enabled.
The first failing step aborts the sequence; nothing after it is attempted.
*/
func (mpu *MPU9250) DmpBegin(features FeatureMask, fifoRate uint16) error {
	if err := mpu.DmpLoad(); err != nil {
		return err
	}

	f := ResolveFeatures(features)
	switch f.Quat {
	case Quat3Axis:
		if err := mpu.DmpEnableLPQuat(true); err != nil {
			return err
		}
	case Quat6Axis:
		if err := mpu.DmpEnable6xLPQuat(true); err != nil {
			return err
		}
	}
	if f.GyroCal {
		if err := mpu.DmpEnableGyroCal(true); err != nil {
			return err
		}
	}
	if err := mpu.DmpEnableFeatures(f.Mask()); err != nil {
		return err
	}

	if fifoRate < 1 {
		fifoRate = 1
	} else if fifoRate > MAX_DMP_SAMPLE_RATE {
		fifoRate = MAX_DMP_SAMPLE_RATE
	}
	if err := mpu.DmpSetFifoRate(fifoRate); err != nil {
		return err
	}
	if err := mpu.SetDMPState(true); err != nil {
		return err
	}
	lg.Infof("DMP started: %s quaternion, features %#03x, %d Hz", f.Quat, mpu.dmp.mask, fifoRate)
	return nil
}

// SetDMPState starts or stops the DMP. The firmware must be loaded before it can start.
func (mpu *MPU9250) SetDMPState(enable bool) error {
	if mpu.dmpOn == enable {
		return nil
	}
	if enable {
		if !mpu.dmpLoaded {
			return errors.WithMessage(ErrDMPState, "DMP firmware not loaded")
		}
		// Disable data ready interrupt.
		if err := mpu.setIntEnable(false); err != nil {
			return err
		}
		// Disable bypass mode.
		if err := mpu.SetBypass(false); err != nil {
			return err
		}
		// Keep constant sample rate, FIFO rate controlled by DMP.
		if err := mpu.SetSampleRate(mpu.dmpSampleRate); err != nil {
			return err
		}
		// Remove FIFO elements.
		if err := mpu.i2cWrite(MPUREG_FIFO_EN, 0); err != nil {
			return errors.Wrap(err, "clearing FIFO sensors")
		}
		mpu.dmpOn = true
		// Enable DMP interrupt.
		if err := mpu.setIntEnable(true); err != nil {
			return err
		}
		return mpu.ResetFifo()
	}

	// Disable DMP interrupt.
	if err := mpu.setIntEnable(false); err != nil {
		return err
	}
	// Restore FIFO settings.
	if err := mpu.i2cWrite(MPUREG_FIFO_EN, byte(mpu.fifoEnable)); err != nil {
		return errors.Wrap(err, "restoring FIFO sensors")
	}
	mpu.dmpOn = false
	return mpu.ResetFifo()
}

// DMPState reports whether the DMP is running.
func (mpu *MPU9250) DMPState() bool {
	return mpu.dmpOn
}

// DmpEnableFeatures applies a feature mask to the DMP and resets the FIFO.
// Tap detection is always enabled as well: without it the DMP does not honour the FIFO rate.
func (mpu *MPU9250) DmpEnableFeatures(mask FeatureMask) error {
	f := ResolveFeatures(mask | DMP_FEATURE_TAP)

	// Set integration scale factor.
	gsf := uint32(GYRO_SF)
	sf := []byte{byte(gsf >> 24), byte(gsf >> 16), byte(gsf >> 8), byte(gsf)}
	if err := mpu.memWrite(D_0_104, sf); err != nil {
		return errors.Wrap(err, "setting DMP integration scale")
	}

	// Send sensor data to the FIFO.
	tmp := []byte{0xA3, 0xA3, 0xA3, 0xA3, 0xA3, 0xA3, 0xA3, 0xA3, 0xA3, 0xA3}
	if f.SendRawAccel {
		tmp[1], tmp[2], tmp[3] = 0xC0, 0xC8, 0xC2
	}
	if f.sendAnyGyro() {
		tmp[4], tmp[5], tmp[6] = 0xC4, 0xCC, 0xC6
	}
	if err := mpu.memWrite(CFG_15, tmp); err != nil {
		return errors.Wrap(err, "routing DMP sensor data")
	}

	// Send gesture data to the FIFO.
	gesture := byte(0xD8)
	if f.gestures() {
		gesture = DINA20
	}
	if err := mpu.memWrite(CFG_27, []byte{gesture}); err != nil {
		return errors.Wrap(err, "routing DMP gesture data")
	}

	if err := mpu.DmpEnableGyroCal(f.GyroCal); err != nil {
		return err
	}

	if f.sendAnyGyro() {
		regs := []byte{DINAC0, DINA80, DINAC2, DINA90}
		if f.SendCalGyro {
			regs = []byte{0xB2, 0x8B, 0xB6, 0x9B}
		}
		if err := mpu.memWrite(CFG_GYRO_RAW_DATA, regs); err != nil {
			return errors.Wrap(err, "selecting DMP gyro data")
		}
	}

	if err := mpu.enableTapDefaults(f.Tap); err != nil {
		return err
	}

	orient := byte(0xD8)
	if f.AndroidOrient {
		orient = 0xD9
	}
	if err := mpu.memWrite(CFG_ANDROID_ORIENT_INT, []byte{orient}); err != nil {
		return errors.Wrap(err, "setting DMP orientation interrupt")
	}

	if err := mpu.writeLPQuat(f.Quat == Quat3Axis); err != nil {
		return err
	}
	if err := mpu.write6xLPQuat(f.Quat == Quat6Axis); err != nil {
		return err
	}

	// Pedometer is always enabled.
	f.Pedometer = true
	mpu.dmp.features = f
	mpu.dmp.mask = f.Mask()
	mpu.dmp.layout = DmpLayout(f)
	lg.Debugf("DMP features %#03x, packet length %d", mpu.dmp.mask, mpu.dmp.layout.Length())
	return mpu.ResetFifo()
}

// DmpEnabledFeatures returns the features active on the DMP.
func (mpu *MPU9250) DmpEnabledFeatures() FeatureMask {
	return mpu.dmp.mask
}

func (mpu *MPU9250) enableTapDefaults(enable bool) error {
	if !enable {
		if err := mpu.memWrite(CFG_20, []byte{0xD8}); err != nil {
			return errors.Wrap(err, "disabling DMP tap")
		}
		return nil
	}
	// Enable tap.
	if err := mpu.memWrite(CFG_20, []byte{0xF8}); err != nil {
		return errors.Wrap(err, "enabling DMP tap")
	}
	if err := mpu.dmpSetTapThresh(TAP_XYZ, 250); err != nil {
		return err
	}
	steps := []func() error{
		func() error { return mpu.dmpSetTapAxes(TAP_XYZ) },
		func() error { return mpu.dmpSetTapCount(1) },
		func() error { return mpu.dmpSetTapTime(100) },
		func() error { return mpu.dmpSetTapTimeMulti(500) },
		func() error { return mpu.DmpSetShakeRejectThresh(GYRO_SF, 200) },
		func() error { return mpu.DmpSetShakeRejectTime(40) },
		func() error { return mpu.DmpSetShakeRejectTimeout(10) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// DmpSetFifoRate sets the DMP output rate in Hz; rates above 200Hz are reduced to 200Hz.
func (mpu *MPU9250) DmpSetFifoRate(rate uint16) error {
	if rate == 0 {
		return rejected("DMP FIFO rate must be positive")
	}
	if rate > MAX_DMP_SAMPLE_RATE {
		rate = MAX_DMP_SAMPLE_RATE
	}
	regsEnd := []byte{DINAFE, DINAF2, DINAAB, 0xc4, DINAAA, DINAF1, DINADF, DINADF, 0xBB, 0xAF, DINADF, DINADF}
	div := uint16(DMP_SAMPLE_RATE/rate - 1)
	if err := mpu.memWrite(D_0_22, []byte{byte(div >> 8), byte(div)}); err != nil {
		return errors.Wrap(err, "setting DMP rate divider")
	}
	if err := mpu.memWrite(CFG_6, regsEnd); err != nil {
		return errors.Wrap(err, "setting DMP FIFO output")
	}
	mpu.dmp.fifoRate = rate
	return nil
}

// DmpFifoRate returns the DMP output rate in Hz.
func (mpu *MPU9250) DmpFifoRate() uint16 {
	return mpu.dmp.fifoRate
}

// DmpEnableGyroCal turns the DMP's automatic gyro bias calibration on or off.
func (mpu *MPU9250) DmpEnableGyroCal(enable bool) error {
	regs := []byte{0xb8, 0xaa, 0xaa, 0xaa, 0xb0, 0x88, 0xc3, 0xc5, 0xc7}
	if enable {
		regs = []byte{0xb8, 0xaa, 0xb3, 0x8d, 0xb4, 0x98, 0x0d, 0x35, 0x5d}
	}
	if err := mpu.memWrite(CFG_MOTION_BIAS, regs); err != nil {
		return errors.Wrapf(err, "setting gyro bias calibration to %t", enable)
	}
	return nil
}

func (mpu *MPU9250) writeLPQuat(enable bool) error {
	regs := []byte{0x8B, 0x8B, 0x8B, 0x8B}
	if enable {
		regs = []byte{DINBC0, DINBC2, DINBC4, DINBC6}
	}
	if err := mpu.memWrite(CFG_LP_QUAT, regs); err != nil {
		return errors.Wrap(err, "setting 3-axis quaternion")
	}
	return nil
}

func (mpu *MPU9250) write6xLPQuat(enable bool) error {
	regs := []byte{0xA3, 0xA3, 0xA3, 0xA3}
	if enable {
		regs = []byte{DINA20, DINA28, DINA30, DINA38}
	}
	if err := mpu.memWrite(CFG_8, regs); err != nil {
		return errors.Wrap(err, "setting 6-axis quaternion")
	}
	return nil
}

// DmpEnableLPQuat turns the gyro-only low-power quaternion on or off.
func (mpu *MPU9250) DmpEnableLPQuat(enable bool) error {
	if err := mpu.writeLPQuat(enable); err != nil {
		return err
	}
	return mpu.ResetFifo()
}

// DmpEnable6xLPQuat turns the gyro and accel low-power quaternion on or off.
func (mpu *MPU9250) DmpEnable6xLPQuat(enable bool) error {
	if err := mpu.write6xLPQuat(enable); err != nil {
		return err
	}
	return mpu.ResetFifo()
}

// DmpEnable3Quat switches the enabled features from the 6-axis to the 3-axis quaternion.
func (mpu *MPU9250) DmpEnable3Quat() error {
	f := mpu.dmp.features
	f.Quat = Quat3Axis
	if err := mpu.DmpEnableFeatures(f.Mask()); err != nil {
		return err
	}
	return mpu.DmpEnableLPQuat(true)
}

// DmpSetInterruptMode selects whether the DMP interrupts on gestures or on every packet.
func (mpu *MPU9250) DmpSetInterruptMode(mode byte) error {
	var regs []byte
	switch mode {
	case DMP_INT_CONTINUOUS:
		regs = []byte{0xd8, 0xb1, 0xb9, 0xf3, 0x8b, 0xa3, 0x91, 0xb6, 0x09, 0xb4, 0xd9}
	case DMP_INT_GESTURE:
		regs = []byte{0xda, 0xb1, 0xb9, 0xf3, 0x8b, 0xa3, 0x91, 0xb6, 0xda, 0xb4, 0xda}
	default:
		return rejected("%d is not a DMP interrupt mode", mode)
	}
	if err := mpu.memWrite(CFG_FIFO_ON_EVENT, regs); err != nil {
		return errors.Wrap(err, "setting DMP interrupt mode")
	}
	return nil
}

/*
DmpSetTap configures tap detection. Each axis with a nonzero threshold (mg/ms, clamped
to [1, 1600]) is enabled; the others are left out of the axis mask. taps is the minimum
tap count, tapTime the minimum gap between taps and tapMulti the maximum gap for a
multi-tap, both in ms.
The tap callback is registered last, so a partly configured setup never reports taps.
*/
func (mpu *MPU9250) DmpSetTap(xThresh, yThresh, zThresh uint16, taps byte, tapTime, tapMulti uint16) error {
	var axes byte
	for _, a := range []struct {
		thresh uint16
		axis   byte
	}{{xThresh, TAP_X}, {yThresh, TAP_Y}, {zThresh, TAP_Z}} {
		if a.thresh == 0 {
			continue
		}
		axes |= a.axis
		if err := mpu.dmpSetTapThresh(a.axis, clampTapThresh(a.thresh)); err != nil {
			return err
		}
	}
	if err := mpu.dmpSetTapAxes(axes); err != nil {
		return err
	}
	if err := mpu.dmpSetTapCount(taps); err != nil {
		return err
	}
	if err := mpu.dmpSetTapTime(tapTime); err != nil {
		return err
	}
	if err := mpu.dmpSetTapTimeMulti(tapMulti); err != nil {
		return err
	}
	mpu.dmp.tapCB = mpu.Events.OnTap
	return nil
}

func clampTapThresh(t uint16) uint16 {
	if t < 1 {
		return 1
	}
	if t > 1600 {
		return 1600
	}
	return t
}

// dmpSetTapThresh sets the tap threshold, in mg/ms, for each axis in axis.
func (mpu *MPU9250) dmpSetTapThresh(axis byte, thresh uint16) error {
	if axis&TAP_XYZ == 0 || thresh > 1600 {
		return rejected("bad tap threshold %d for axes %#x", thresh, axis)
	}
	scaled := float64(thresh) / DMP_SAMPLE_RATE
	var lsb float64 // LSB per g
	switch mpu.accelFSR {
	case 2:
		lsb = 16384
	case 4:
		lsb = 8192
	case 8:
		lsb = 4096
	case 16:
		lsb = 2048
	default:
		return rejected("accel range %d unknown", mpu.accelFSR)
	}
	thresh1, thresh2 := saturate16(scaled*lsb), saturate16(scaled*lsb*0.75)
	t1 := []byte{byte(thresh1 >> 8), byte(thresh1)}
	t2 := []byte{byte(thresh2 >> 8), byte(thresh2)}

	for _, a := range []struct {
		axis        byte
		addr, addr2 uint16
	}{{TAP_X, DMP_TAP_THX, D_1_36}, {TAP_Y, DMP_TAP_THY, D_1_40}, {TAP_Z, DMP_TAP_THZ, D_1_44}} {
		if axis&a.axis == 0 {
			continue
		}
		if err := mpu.memWrite(a.addr, t1); err != nil {
			return errors.Wrap(err, "setting tap threshold")
		}
		if err := mpu.memWrite(a.addr2, t2); err != nil {
			return errors.Wrap(err, "setting tap threshold")
		}
	}
	return nil
}

func saturate16(v float64) uint16 {
	if v >= math.MaxUint16 {
		return math.MaxUint16
	}
	if v <= 0 {
		return 0
	}
	return uint16(v)
}

func (mpu *MPU9250) dmpSetTapAxes(axis byte) error {
	var tmp byte
	if axis&TAP_X != 0 {
		tmp |= 0x30
	}
	if axis&TAP_Y != 0 {
		tmp |= 0x0C
	}
	if axis&TAP_Z != 0 {
		tmp |= 0x03
	}
	if err := mpu.memWrite(D_1_72, []byte{tmp}); err != nil {
		return errors.Wrap(err, "setting tap axes")
	}
	return nil
}

// dmpSetTapCount sets the minimum number of taps, 1 to 4.
func (mpu *MPU9250) dmpSetTapCount(minTaps byte) error {
	if minTaps < 1 {
		minTaps = 1
	} else if minTaps > 4 {
		minTaps = 4
	}
	if err := mpu.memWrite(D_1_79, []byte{minTaps - 1}); err != nil {
		return errors.Wrap(err, "setting tap count")
	}
	return nil
}

func (mpu *MPU9250) dmpWriteMs(addr uint16, ms uint16, what string) error {
	t := ms / (1000 / DMP_SAMPLE_RATE)
	if err := mpu.memWrite(addr, []byte{byte(t >> 8), byte(t)}); err != nil {
		return errors.Wrapf(err, "setting %s", what)
	}
	return nil
}

func (mpu *MPU9250) dmpSetTapTime(ms uint16) error {
	return mpu.dmpWriteMs(DMP_TAPW_MIN, ms, "tap time")
}

func (mpu *MPU9250) dmpSetTapTimeMulti(ms uint16) error {
	return mpu.dmpWriteMs(D_1_218, ms, "multi-tap time")
}

// DmpSetShakeRejectThresh sets the gyro threshold, in deg/s, above which taps are rejected.
func (mpu *MPU9250) DmpSetShakeRejectThresh(sf int64, thresh uint16) error {
	scaled := uint32(sf / 1000 * int64(thresh))
	tmp := []byte{byte(scaled >> 24), byte(scaled >> 16), byte(scaled >> 8), byte(scaled)}
	if err := mpu.memWrite(D_1_92, tmp); err != nil {
		return errors.Wrap(err, "setting shake reject threshold")
	}
	return nil
}

// DmpSetShakeRejectTime sets how long, in ms, the gyro must stay above the threshold to reject a tap.
func (mpu *MPU9250) DmpSetShakeRejectTime(ms uint16) error {
	return mpu.dmpWriteMs(D_1_90, ms, "shake reject time")
}

// DmpSetShakeRejectTimeout sets how long, in ms, the gyro must stay below the threshold before taps count again.
func (mpu *MPU9250) DmpSetShakeRejectTimeout(ms uint16) error {
	return mpu.dmpWriteMs(D_1_88, ms, "shake reject timeout")
}

// DmpSetOrientation pushes the chip mounting matrix (row-major, entries -1, 0 or 1) to the
// DMP and registers the orientation callback.
func (mpu *MPU9250) DmpSetOrientation(m [9]int8) error {
	scalar := OrientationScalar(m)
	mpu.dmp.orientCB = mpu.Events.OnOrientation

	gyroAxes := []byte{DINA4C, DINACD, DINA6C}
	accelAxes := []byte{DINA0C, DINAC9, DINA2C}
	gyroRegs := []byte{gyroAxes[scalar&3], gyroAxes[(scalar>>3)&3], gyroAxes[(scalar>>6)&3]}
	accelRegs := []byte{accelAxes[scalar&3], accelAxes[(scalar>>3)&3], accelAxes[(scalar>>6)&3]}

	// Chip-to-body, axes only.
	if err := mpu.memWrite(FCFG_1, gyroRegs); err != nil {
		return errors.Wrap(err, "setting gyro axes")
	}
	if err := mpu.memWrite(FCFG_2, accelRegs); err != nil {
		return errors.Wrap(err, "setting accel axes")
	}

	gyroSign := []byte{DINA36, DINA56, DINA76}
	accelSign := []byte{DINA26, DINA46, DINA66}
	for i, bit := range []uint16{0x004, 0x020, 0x100} {
		if scalar&bit != 0 {
			gyroSign[i] |= 1
			accelSign[i] |= 1
		}
	}
	// Chip-to-body, sign only.
	if err := mpu.memWrite(FCFG_3, gyroSign); err != nil {
		return errors.Wrap(err, "setting gyro signs")
	}
	if err := mpu.memWrite(FCFG_7, accelSign); err != nil {
		return errors.Wrap(err, "setting accel signs")
	}
	mpu.dmp.orient = scalar
	return nil
}

// DmpOrientation returns the last orientation reported by the DMP.
func (mpu *MPU9250) DmpOrientation() byte {
	return mpu.Events.Orientation()
}

// OrientationScalar packs a mounting matrix into the DMP's 9-bit orientation scalar.
func OrientationScalar(m [9]int8) uint16 {
	return rowToScale(m[0:3]) | rowToScale(m[3:6])<<3 | rowToScale(m[6:9])<<6
}

func rowToScale(row []int8) uint16 {
	switch {
	case row[0] > 0:
		return 0
	case row[0] < 0:
		return 4
	case row[1] > 0:
		return 1
	case row[1] < 0:
		return 5
	case row[2] > 0:
		return 2
	case row[2] < 0:
		return 6
	}
	return 7 // error
}

// DmpPedometerSteps returns the number of steps counted by the DMP pedometer.
func (mpu *MPU9250) DmpPedometerSteps() (uint32, error) {
	return mpu.memRead32(D_PEDSTD_STEPCTR, "pedometer steps")
}

// DmpSetPedometerSteps overwrites the pedometer step count.
func (mpu *MPU9250) DmpSetPedometerSteps(steps uint32) error {
	return mpu.memWrite32(D_PEDSTD_STEPCTR, steps, "pedometer steps")
}

// DmpPedometerTime returns the time spent walking, in ms.
func (mpu *MPU9250) DmpPedometerTime() (uint32, error) {
	t, err := mpu.memRead32(D_PEDSTD_TIMECTR, "pedometer time")
	return t * 20, err
}

// DmpSetPedometerTime overwrites the time spent walking, in ms.
func (mpu *MPU9250) DmpSetPedometerTime(ms uint32) error {
	return mpu.memWrite32(D_PEDSTD_TIMECTR, ms/20, "pedometer time")
}

func (mpu *MPU9250) memRead32(addr uint16, what string) (uint32, error) {
	b, err := mpu.memRead(addr, 4)
	if err != nil {
		return 0, errors.Wrapf(err, "reading %s", what)
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func (mpu *MPU9250) memWrite32(addr uint16, v uint32, what string) error {
	if err := mpu.memWrite(addr, []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}); err != nil {
		return errors.Wrapf(err, "writing %s", what)
	}
	return nil
}
