package mpu9250

// Approach adapted from the InvenSense Embedded MotionDriver 6.12 (inv_mpu.c)
// Also referenced https://github.com/sparkfun/SparkFun_MPU-9250-DMP_Arduino_Library

import (
	"time"

	"github.com/d2r2/go-logger"
	"github.com/pkg/errors"
)

var lg = logger.NewPackageLogger("mpu9250", logger.InfoLevel)

const (
	defaultBusSpeed   = 400000
	maxCompassRate    = AK8963_MAX_SAMPLE_RATE
	magSense          = 6.665 // LSB/uT, 32760/4915
	resetDelay        = 100 * time.Millisecond
	sensorsDelay      = 50 * time.Millisecond
	bypassDelay       = 3 * time.Millisecond
	compassSetupDelay = time.Millisecond
)

// Options configure a new MPU9250. The zero value is usable.
type Options struct {
	Address  byte                // Defaults to MPU_ADDRESS
	Firmware []byte              // DMP image uploaded by DmpLoad
	Clock    func() time.Time    // Timestamp source, defaults to time.Now
	Sleep    func(time.Duration) // Delay used between device commands, defaults to time.Sleep
}

/*
MPU9250 represents an InvenSense MPU9250 9DoF chip with its Digital Motion Processor.
All calls are synchronous: each one completes its bus transactions before returning,
and nothing runs in the background. One MPU9250 owns its bus address exclusively.
*/
type MPU9250 struct {
	Address byte
	Sample  Sample  // Last good values from Update*, UpdateFifo and DmpUpdateFifo
	Events  *Events // Tap and orientation notifications decoded from the DMP FIFO

	bus      Bus
	clock    func() time.Time
	sleep    func(time.Duration)
	firmware []byte

	gyroFSR           uint16
	accelFSR          uint8
	lpf               uint16
	sampleRate        uint16
	compassSampleRate uint16
	sensors           SensorMask // Enabled sensors
	fifoEnable        SensorMask // Sensors written to the FIFO when the DMP is off
	intEnable         byte
	bypassMode        bool
	activeLowInt      bool
	latchedInt        bool
	lpAccelMode       bool
	dmpOn             bool
	dmpLoaded         bool
	dmpSampleRate     uint16
	compassAddr       byte
	magSensAdj        [3]int32

	gSense float64 // LSB per deg/s, follows gyroFSR
	aSense uint16  // LSB per g, follows accelFSR

	dmp dmpState
}

// New creates an MPU9250 on the given bus. No bus traffic happens until Begin.
func New(bus Bus, opts *Options) *MPU9250 {
	if opts == nil {
		opts = &Options{}
	}
	mpu := &MPU9250{
		Address:  opts.Address,
		Events:   NewEvents(),
		bus:      bus,
		clock:    opts.Clock,
		sleep:    opts.Sleep,
		firmware: opts.Firmware,
	}
	if mpu.Address == 0 {
		mpu.Address = MPU_ADDRESS
	}
	if mpu.clock == nil {
		mpu.clock = time.Now
	}
	if mpu.sleep == nil {
		mpu.sleep = time.Sleep
	}
	return mpu
}

// Begin sets the bus speed, resets the chip and brings it up with gyro, accel and compass
// enabled and the auxiliary bus bypassed onto the primary bus.
// A busSpeed of 0 selects 400kHz.
func (mpu *MPU9250) Begin(busSpeed uint32) error {
	if busSpeed == 0 {
		busSpeed = defaultBusSpeed
	}
	if s, ok := mpu.bus.(SpeedSetter); ok {
		if err := s.SetSpeed(busSpeed); err != nil {
			return errors.Wrap(err, "setting bus speed")
		}
	}
	if err := mpu.init(); err != nil {
		return err
	}
	if err := mpu.SetBypass(true); err != nil {
		return err
	}
	if err := mpu.SetSensors(INV_XYZ_GYRO | INV_XYZ_ACCEL | INV_XYZ_COMPASS); err != nil {
		return err
	}
	lg.Infof("MPU9250 at %#02x ready: gyro %d dps, accel %d g, %d Hz", mpu.Address, mpu.gyroFSR, mpu.accelFSR, mpu.sampleRate)
	return nil
}

func (mpu *MPU9250) init() error {
	// Reset device
	if err := mpu.i2cWrite(MPUREG_PWR_MGMT_1, BIT_H_RESET); err != nil {
		return errors.Wrap(err, "resetting MPU9250")
	}
	mpu.sleep(resetDelay)
	// Wake device
	if err := mpu.i2cWrite(MPUREG_PWR_MGMT_1, 0x00); err != nil {
		return errors.Wrap(err, "waking MPU9250")
	}
	id, err := mpu.i2cRead(MPUREG_WHOAMI)
	if err != nil {
		return errors.Wrap(err, "reading WHO_AM_I")
	}
	if id != MPU9250_WHOAMI && id != MPU9255_WHOAMI {
		return errors.Wrapf(ErrConfigRejected, "chip is not an MPU9250, WHO_AM_I is %#02x", id)
	}
	// Don't let FIFO overwrite DMP data
	if err := mpu.i2cWrite(MPUREG_ACCEL_CONFIG_2, BIT_FIFO_SIZE_1024|0x8); err != nil {
		return errors.Wrap(err, "setting up MPU9250")
	}

	// Forget everything cached from a previous session; sensors are assumed on
	// until SetSensors says otherwise so the range setters are accepted.
	*mpu = MPU9250{
		Address: mpu.Address, Sample: mpu.Sample, Events: mpu.Events,
		bus: mpu.bus, clock: mpu.clock, sleep: mpu.sleep, firmware: mpu.firmware,
		sensors: INV_XYZ_GYRO | INV_XYZ_ACCEL | INV_XYZ_COMPASS,
		gyroFSR: 0xFFFF, accelFSR: 0xFF, lpf: 0xFFFF,
	}

	if err := mpu.SetGyroFSR(2000); err != nil {
		return err
	}
	if err := mpu.SetAccelFSR(2); err != nil {
		return err
	}
	if err := mpu.SetLPF(42); err != nil {
		return err
	}
	if err := mpu.SetSampleRate(50); err != nil {
		return err
	}
	if err := mpu.ConfigureFifo(0); err != nil {
		return err
	}
	if err := mpu.setupCompass(); err != nil {
		return err
	}
	if err := mpu.SetCompassSampleRate(10); err != nil {
		return err
	}
	if err := mpu.SetBypass(false); err != nil {
		return err
	}
	return mpu.SetSensors(0)
}

// SetGyroFSR sets the gyro full scale range, in deg/s: 250, 500, 1000 or 2000.
// The gyro sensitivity follows only once the device accepted the new range.
func (mpu *MPU9250) SetGyroFSR(fsr uint16) error {
	var (
		data byte
		sens float64
	)
	switch fsr {
	case 2000:
		data, sens = BITS_FS_2000DPS, 16.4
	case 1000:
		data, sens = BITS_FS_1000DPS, 32.8
	case 500:
		data, sens = BITS_FS_500DPS, 65.5
	case 250:
		data, sens = BITS_FS_250DPS, 131.0
	default:
		return rejected("%d is not a valid gyro range", fsr)
	}
	if mpu.sensors == 0 {
		return rejected("gyro range cannot be set with all sensors off")
	}
	if mpu.gyroFSR == fsr {
		return nil
	}
	if err := mpu.i2cWrite(MPUREG_GYRO_CONFIG, data); err != nil {
		return errors.Wrap(err, "setting gyro range")
	}
	mpu.gyroFSR = fsr
	mpu.gSense = sens
	return nil
}

// GyroFSR returns the gyro full scale range in deg/s.
func (mpu *MPU9250) GyroFSR() uint16 {
	return mpu.gyroFSR
}

// SetAccelFSR sets the accelerometer full scale range, in g: 2, 4, 8 or 16.
func (mpu *MPU9250) SetAccelFSR(fsr uint8) error {
	var (
		data byte
		sens uint16
	)
	switch fsr {
	case 16:
		data, sens = BITS_FS_16G, 2048
	case 8:
		data, sens = BITS_FS_8G, 4096
	case 4:
		data, sens = BITS_FS_4G, 8192
	case 2:
		data, sens = BITS_FS_2G, 16384
	default:
		return rejected("%d is not a valid accel range", fsr)
	}
	if mpu.sensors == 0 {
		return rejected("accel range cannot be set with all sensors off")
	}
	if mpu.accelFSR == fsr {
		return nil
	}
	if err := mpu.i2cWrite(MPUREG_ACCEL_CONFIG, data); err != nil {
		return errors.Wrap(err, "setting accel range")
	}
	mpu.accelFSR = fsr
	mpu.aSense = sens
	return nil
}

// AccelFSR returns the accelerometer full scale range in g.
func (mpu *MPU9250) AccelFSR() uint8 {
	return mpu.accelFSR
}

// CompassFSR returns the fixed magnetometer full scale range in uT.
func (mpu *MPU9250) CompassFSR() uint16 {
	return AK8963_FSR
}

// GyroSens returns the gyro sensitivity in LSB per deg/s.
func (mpu *MPU9250) GyroSens() float64 {
	return mpu.gSense
}

// AccelSens returns the accelerometer sensitivity in LSB per g.
func (mpu *MPU9250) AccelSens() uint16 {
	return mpu.aSense
}

// MagSens returns the magnetometer sensitivity in LSB per uT.
func (mpu *MPU9250) MagSens() float64 {
	return magSense
}

// SetLPF sets the digital low pass filter to the nearest supported cutoff at or below lpf Hz:
// 188, 98, 42, 20, 10 or 5.
func (mpu *MPU9250) SetLPF(lpf uint16) error {
	var (
		r   byte
		cut uint16
	)
	switch {
	case lpf >= 188:
		r, cut = BITS_DLPF_CFG_188HZ, 188
	case lpf >= 98:
		r, cut = BITS_DLPF_CFG_98HZ, 98
	case lpf >= 42:
		r, cut = BITS_DLPF_CFG_42HZ, 42
	case lpf >= 20:
		r, cut = BITS_DLPF_CFG_20HZ, 20
	case lpf >= 10:
		r, cut = BITS_DLPF_CFG_10HZ, 10
	default:
		r, cut = BITS_DLPF_CFG_5HZ, 5
	}
	if mpu.sensors == 0 {
		return rejected("LPF cannot be set with all sensors off")
	}
	if mpu.lpf == cut {
		return nil
	}
	if err := mpu.i2cWrite(MPUREG_CONFIG, r); err != nil {
		return errors.Wrap(err, "setting gyro LPF")
	}
	if err := mpu.i2cWrite(MPUREG_ACCEL_CONFIG_2, BIT_FIFO_SIZE_1024|r); err != nil {
		return errors.Wrap(err, "setting accel LPF")
	}
	mpu.lpf = cut
	return nil
}

// LPF returns the low pass filter cutoff in Hz.
func (mpu *MPU9250) LPF() uint16 {
	return mpu.lpf
}

// SetSampleRate sets the gyro/accel sample rate in Hz, clamped to [4, 1000].
// The LPF is set to half the resulting rate. It cannot be changed while the DMP runs:
// the DMP output rate is set with DmpSetFifoRate instead.
func (mpu *MPU9250) SetSampleRate(rate uint16) error {
	if mpu.sensors == 0 {
		return rejected("sample rate cannot be set with all sensors off")
	}
	if mpu.dmpOn {
		return errors.WithMessage(ErrDMPState, "sample rate is fixed while the DMP is on")
	}
	if mpu.lpAccelMode {
		if rate != 0 && rate <= 40 {
			// Just stay in low-power accel mode.
			return mpu.LowPowerAccel(lpaNearest(rate))
		}
		// Requested rate exceeds the allowed frequencies in LP accel mode, switch back to full-power mode.
		if err := mpu.LowPowerAccel(0); err != nil {
			return err
		}
	}
	if rate < 4 {
		rate = 4
	} else if rate > 1000 {
		rate = 1000
	}
	div := byte(1000/rate - 1)
	if err := mpu.i2cWrite(MPUREG_SMPLRT_DIV, div); err != nil {
		return errors.Wrap(err, "setting sample rate")
	}
	mpu.sampleRate = 1000 / (1 + uint16(div))

	compassRate := mpu.compassSampleRate
	if compassRate > maxCompassRate {
		compassRate = maxCompassRate
	}
	if err := mpu.SetCompassSampleRate(compassRate); err != nil {
		lg.Debugf("compass rate not updated: %s", err)
	}

	// Automatically set LPF to 1/2 sampling rate.
	return mpu.SetLPF(mpu.sampleRate >> 1)
}

// SampleRate returns the current sample rate in Hz, or the DMP rate while the DMP is on.
func (mpu *MPU9250) SampleRate() uint16 {
	if mpu.dmpOn {
		return mpu.dmpSampleRate
	}
	return mpu.sampleRate
}

// SetSensors turns on the sensors in mask and puts the others in standby.
func (mpu *MPU9250) SetSensors(mask SensorMask) error {
	var clk byte
	switch {
	case mask&INV_XYZ_GYRO != 0:
		clk = INV_CLK_PLL
	case mask != 0:
		clk = INV_CLK_INTERNAL
	default:
		clk = BIT_SLEEP
	}
	if err := mpu.i2cWrite(MPUREG_PWR_MGMT_1, clk); err != nil {
		mpu.sensors = 0
		return errors.Wrap(err, "setting clock source")
	}

	var standby byte
	if mask&INV_X_GYRO == 0 {
		standby |= BIT_STBY_XG
	}
	if mask&INV_Y_GYRO == 0 {
		standby |= BIT_STBY_YG
	}
	if mask&INV_Z_GYRO == 0 {
		standby |= BIT_STBY_ZG
	}
	if mask&INV_XYZ_ACCEL == 0 {
		standby |= BIT_STBY_XYZA
	}
	if err := mpu.i2cWrite(MPUREG_PWR_MGMT_2, standby); err != nil {
		mpu.sensors = 0
		return errors.Wrap(err, "setting sensor standby")
	}

	if mask != 0 && mask != INV_XYZ_ACCEL {
		// Latched interrupts only used in LP accel mode.
		if err := mpu.SetIntLatched(false); err != nil {
			return err
		}
	}

	userCtrl, err := mpu.i2cRead(MPUREG_USER_CTRL)
	if err != nil {
		return errors.Wrap(err, "reading user control")
	}
	akm := byte(AKM_POWER_DOWN)
	if mask&INV_XYZ_COMPASS != 0 {
		akm = AKM_SINGLE_MEASUREMENT
		userCtrl |= BIT_AUX_IF_EN
	} else {
		userCtrl &^= BIT_AUX_IF_EN
	}
	if mpu.dmpOn {
		userCtrl |= BIT_DMP_EN
	} else {
		userCtrl &^= BIT_DMP_EN
	}
	// Enable/disable I2C master mode.
	if err := mpu.i2cWrite(MPUREG_I2C_SLV1_DO, akm); err != nil {
		return errors.Wrap(err, "setting compass mode")
	}
	if err := mpu.i2cWrite(MPUREG_USER_CTRL, userCtrl); err != nil {
		return errors.Wrap(err, "setting user control")
	}

	mpu.sensors = mask
	mpu.lpAccelMode = false
	mpu.sleep(sensorsDelay)
	return nil
}

// Sensors returns the enabled sensors.
func (mpu *MPU9250) Sensors() SensorMask {
	return mpu.sensors
}

// SetBypass places the auxiliary bus devices (the magnetometer) directly on the primary bus.
func (mpu *MPU9250) SetBypass(on bool) error {
	if mpu.bypassMode == on {
		return nil
	}
	userCtrl, err := mpu.i2cRead(MPUREG_USER_CTRL)
	if err != nil {
		return errors.Wrap(err, "reading user control")
	}
	if on || mpu.sensors&INV_XYZ_COMPASS == 0 {
		userCtrl &^= BIT_AUX_IF_EN
	} else {
		userCtrl |= BIT_AUX_IF_EN
	}
	if err := mpu.i2cWrite(MPUREG_USER_CTRL, userCtrl); err != nil {
		return errors.Wrap(err, "setting user control")
	}
	mpu.sleep(bypassDelay)

	cfg := mpu.intPinConfig()
	if on {
		cfg |= BIT_BYPASS_EN
	}
	if err := mpu.i2cWrite(MPUREG_INT_PIN_CFG, cfg); err != nil {
		return errors.Wrap(err, "setting interrupt pin config")
	}
	mpu.bypassMode = on
	return nil
}

// Bypass reports whether the auxiliary bus is bypassed onto the primary bus.
func (mpu *MPU9250) Bypass() bool {
	return mpu.bypassMode
}

func (mpu *MPU9250) intPinConfig() byte {
	var cfg byte
	if mpu.activeLowInt {
		cfg |= BIT_ACTL
	}
	if mpu.latchedInt {
		cfg |= BIT_LATCH_EN | BIT_ANY_RD_CLR
	}
	return cfg
}

var lpaRates = []struct {
	hz  float64
	odr byte
}{
	{1.25, INV_LPA_1_25HZ}, {2.5, INV_LPA_2_5HZ}, {5, INV_LPA_5HZ}, {10, INV_LPA_10HZ},
	{20, INV_LPA_20HZ}, {40, INV_LPA_40HZ}, {80, INV_LPA_80HZ}, {160, INV_LPA_160HZ},
	{320, INV_LPA_320HZ}, {640, INV_LPA_640HZ},
}

// lpaNearest maps an integer rate onto the lowest supported LP rate at or above it.
// 1 and 2 stand for 1.25 and 2.5Hz.
func lpaNearest(rate uint16) float64 {
	for _, r := range lpaRates {
		if float64(rate) <= r.hz {
			return r.hz
		}
	}
	return lpaRates[len(lpaRates)-1].hz
}

// LowPowerAccel enters low-power accel-only mode at one of 1.25, 2.5, 5, 10, 20, 40, 80,
// 160, 320 or 640 Hz. The gyro and compass are turned off. A rate of 0 leaves LP mode.
func (mpu *MPU9250) LowPowerAccel(rate float64) error {
	if rate == 0 {
		if err := mpu.SetIntLatched(false); err != nil {
			return err
		}
		if err := mpu.i2cWriteBytes(MPUREG_PWR_MGMT_1, []byte{0, BIT_STBY_XYZG}); err != nil {
			return errors.Wrap(err, "leaving low-power accel mode")
		}
		mpu.lpAccelMode = false
		return nil
	}

	odr, ok := byte(0), false
	for _, r := range lpaRates {
		if r.hz == rate {
			odr, ok = r.odr, true
			break
		}
	}
	if !ok {
		return rejected("%g Hz is not a valid low-power accel rate", rate)
	}

	// For LP accel, we automatically configure the hardware to produce latched interrupts.
	if err := mpu.SetIntLatched(true); err != nil {
		return err
	}
	if err := mpu.i2cWrite(MPUREG_LP_ACCEL_ODR, odr); err != nil {
		return errors.Wrap(err, "setting low-power accel rate")
	}
	if err := mpu.i2cWrite(MPUREG_ACCEL_CONFIG_2, BIT_FIFO_SIZE_1024|0x8); err != nil {
		return errors.Wrap(err, "setting low-power accel filter")
	}
	if err := mpu.i2cWrite(MPUREG_PWR_MGMT_2, BIT_STBY_XYZG); err != nil {
		return errors.Wrap(err, "turning off gyro")
	}
	if err := mpu.i2cWrite(MPUREG_I2C_SLV1_DO, AKM_POWER_DOWN); err != nil {
		return errors.Wrap(err, "turning off compass")
	}
	if err := mpu.i2cWrite(MPUREG_PWR_MGMT_1, BIT_LPA_CYCLE); err != nil {
		return errors.Wrap(err, "entering low-power accel mode")
	}
	mpu.sensors = INV_XYZ_ACCEL
	mpu.lpAccelMode = true
	return mpu.ConfigureFifo(0)
}

// EnableInterrupt enables or disables the data-ready (or DMP, when it is on) interrupt.
func (mpu *MPU9250) EnableInterrupt(enable bool) error {
	return mpu.setIntEnable(enable)
}

func (mpu *MPU9250) setIntEnable(enable bool) error {
	var v byte
	if mpu.dmpOn {
		if enable {
			v = BIT_DMP_INT_EN
		}
	} else {
		if mpu.sensors == 0 {
			return rejected("interrupts cannot be set with all sensors off")
		}
		if enable && mpu.intEnable != 0 {
			return nil
		}
		if enable {
			v = BIT_DATA_RDY_EN
		}
	}
	if err := mpu.i2cWrite(MPUREG_INT_ENABLE, v); err != nil {
		return errors.Wrap(err, "setting interrupt enable")
	}
	mpu.intEnable = v
	return nil
}

// SetIntLevel selects an active-low interrupt pin. It takes effect on the next pin reconfiguration.
func (mpu *MPU9250) SetIntLevel(activeLow bool) error {
	mpu.activeLowInt = activeLow
	return nil
}

// SetIntLatched makes the interrupt pin stay asserted until any register read.
func (mpu *MPU9250) SetIntLatched(enable bool) error {
	if mpu.latchedInt == enable {
		return nil
	}
	var cfg byte
	if enable {
		cfg = BIT_LATCH_EN | BIT_ANY_RD_CLR
	}
	if mpu.bypassMode {
		cfg |= BIT_BYPASS_EN
	}
	if mpu.activeLowInt {
		cfg |= BIT_ACTL
	}
	if err := mpu.i2cWrite(MPUREG_INT_PIN_CFG, cfg); err != nil {
		return errors.Wrap(err, "setting interrupt latch")
	}
	mpu.latchedInt = enable
	return nil
}

// IntStatus returns the DMP and main interrupt status registers as MPU_INT_STATUS_* bits.
func (mpu *MPU9250) IntStatus() (uint16, error) {
	b, err := mpu.i2cReadBytes(MPUREG_DMP_INT_STATUS, 2)
	if err != nil {
		return 0, errors.Wrap(err, "reading interrupt status")
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// DataReady reports whether new raw sensor data is available.
func (mpu *MPU9250) DataReady() bool {
	s, err := mpu.i2cRead(MPUREG_INT_STATUS)
	if err != nil {
		lg.Debugf("data ready: %s", err)
		return false
	}
	return s&BIT_RAW_RDY_INT != 0
}
