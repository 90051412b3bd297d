package mpu9250_test

import (
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/westphae/dmp9250/mpu9250"
	"github.com/westphae/dmp9250/sim"
)

var errBus = errors.New("no ack")

func firmware() []byte {
	fw := make([]byte, mpu9250.DMP_CODE_SIZE)
	for i := range fw {
		fw[i] = byte(i * 7)
	}
	return fw
}

// newMPU brings up a driver on an emulated device following situation.
func newMPU(t *testing.T, situation *sim.Situation) (*sim.Device, *mpu9250.MPU9250) {
	t.Helper()
	d := sim.NewDevice(situation)
	mpu := mpu9250.New(d, &mpu9250.Options{
		Firmware: firmware(),
		Sleep:    func(time.Duration) {},
	})
	if err := mpu.Begin(0); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return d, mpu
}

func TestBegin(t *testing.T) {
	d, mpu := newMPU(t, nil)
	if d.Speed() != 400000 {
		t.Errorf("bus speed %d, want 400kHz", d.Speed())
	}
	if mpu.GyroFSR() != 2000 || mpu.AccelFSR() != 2 || mpu.SampleRate() != 50 {
		t.Errorf("defaults: gyro %d, accel %d, rate %d", mpu.GyroFSR(), mpu.AccelFSR(), mpu.SampleRate())
	}
	if mpu.Sensors() != mpu9250.INV_XYZ_GYRO|mpu9250.INV_XYZ_ACCEL|mpu9250.INV_XYZ_COMPASS {
		t.Errorf("sensors %#x", mpu.Sensors())
	}
	if !mpu.Bypass() {
		t.Error("bypass not enabled")
	}
	if mpu.CompassSampleRate() != 10 {
		t.Errorf("compass rate %d, want 10", mpu.CompassSampleRate())
	}
}

func TestBeginUnreadableChip(t *testing.T) {
	d := sim.NewDevice(nil)
	d.Fail = func(write bool, addr, reg byte) error {
		if addr == d.Address && reg == mpu9250.MPUREG_WHOAMI && !write {
			return errBus
		}
		return nil
	}
	mpu := mpu9250.New(d, &mpu9250.Options{Sleep: func(time.Duration) {}})
	if err := mpu.Begin(0); !errors.Is(err, mpu9250.ErrTransport) {
		t.Errorf("Begin with unreadable WHO_AM_I: %v", err)
	}
}

func TestSensitivityFollowsRange(t *testing.T) {
	_, mpu := newMPU(t, nil)
	gyro := []struct {
		fsr  uint16
		sens float64
	}{{250, 131}, {500, 65.5}, {1000, 32.8}, {2000, 16.4}}
	for _, g := range gyro {
		if err := mpu.SetGyroFSR(g.fsr); err != nil {
			t.Fatalf("SetGyroFSR(%d): %v", g.fsr, err)
		}
		if mpu.GyroSens() != g.sens || mpu.GyroFSR() != g.fsr {
			t.Errorf("gyro %d dps: sensitivity %g, want %g", g.fsr, mpu.GyroSens(), g.sens)
		}
	}
	accel := []struct {
		fsr  uint8
		sens uint16
	}{{2, 16384}, {4, 8192}, {8, 4096}, {16, 2048}}
	for _, a := range accel {
		if err := mpu.SetAccelFSR(a.fsr); err != nil {
			t.Fatalf("SetAccelFSR(%d): %v", a.fsr, err)
		}
		if mpu.AccelSens() != a.sens || mpu.AccelFSR() != a.fsr {
			t.Errorf("accel %d g: sensitivity %d, want %d", a.fsr, mpu.AccelSens(), a.sens)
		}
	}

	if err := mpu.SetGyroFSR(300); !errors.Is(err, mpu9250.ErrConfigRejected) {
		t.Errorf("SetGyroFSR(300) = %v, want rejection", err)
	}
	if err := mpu.SetAccelFSR(3); !errors.Is(err, mpu9250.ErrConfigRejected) {
		t.Errorf("SetAccelFSR(3) = %v, want rejection", err)
	}
	if mpu.GyroFSR() != 2000 || mpu.AccelFSR() != 16 {
		t.Error("rejected range changed the configuration")
	}
}

func TestFailedWriteKeepsScale(t *testing.T) {
	d, mpu := newMPU(t, nil)
	d.Fail = func(write bool, addr, reg byte) error {
		if write && (reg == mpu9250.MPUREG_GYRO_CONFIG || reg == mpu9250.MPUREG_ACCEL_CONFIG) {
			return errBus
		}
		return nil
	}
	if err := mpu.SetGyroFSR(500); !errors.Is(err, mpu9250.ErrTransport) {
		t.Errorf("SetGyroFSR = %v, want transport error", err)
	}
	if mpu.GyroFSR() != 2000 || mpu.GyroSens() != 16.4 {
		t.Errorf("gyro range %d, sensitivity %g after failed write", mpu.GyroFSR(), mpu.GyroSens())
	}
	if err := mpu.SetAccelFSR(8); !errors.Is(err, mpu9250.ErrTransport) {
		t.Errorf("SetAccelFSR = %v, want transport error", err)
	}
	if mpu.AccelFSR() != 2 || mpu.AccelSens() != 16384 {
		t.Errorf("accel range %d, sensitivity %d after failed write", mpu.AccelFSR(), mpu.AccelSens())
	}
}

func TestSampleRate(t *testing.T) {
	_, mpu := newMPU(t, nil)
	for _, c := range []struct{ in, out, lpf uint16 }{
		{1, 4, 5}, {100, 100, 42}, {200, 200, 98}, {5000, 1000, 188},
	} {
		if err := mpu.SetSampleRate(c.in); err != nil {
			t.Fatalf("SetSampleRate(%d): %v", c.in, err)
		}
		if mpu.SampleRate() != c.out || mpu.LPF() != c.lpf {
			t.Errorf("SetSampleRate(%d): rate %d, lpf %d, want %d, %d", c.in, mpu.SampleRate(), mpu.LPF(), c.out, c.lpf)
		}
	}
}

func TestSensorsOff(t *testing.T) {
	_, mpu := newMPU(t, nil)
	if err := mpu.SetSensors(0); err != nil {
		t.Fatal(err)
	}
	if err := mpu.SetGyroFSR(250); !errors.Is(err, mpu9250.ErrConfigRejected) {
		t.Errorf("SetGyroFSR with sensors off = %v", err)
	}
	if err := mpu.UpdateAccel(); !errors.Is(err, mpu9250.ErrConfigRejected) {
		t.Errorf("UpdateAccel with sensors off = %v", err)
	}
}

func TestLowPowerAccel(t *testing.T) {
	d, mpu := newMPU(t, nil)
	if err := mpu.LowPowerAccel(3); !errors.Is(err, mpu9250.ErrConfigRejected) {
		t.Errorf("LowPowerAccel(3) = %v", err)
	}
	if err := mpu.LowPowerAccel(40); err != nil {
		t.Fatal(err)
	}
	if mpu.Sensors() != mpu9250.INV_XYZ_ACCEL {
		t.Errorf("sensors %#x in LP accel mode", mpu.Sensors())
	}
	if r := d.Register(mpu9250.MPUREG_PWR_MGMT_1); r&mpu9250.BIT_LPA_CYCLE == 0 {
		t.Errorf("PWR_MGMT_1 = %#x, want cycle bit", r)
	}
	if r := d.Register(mpu9250.MPUREG_LP_ACCEL_ODR); r != mpu9250.INV_LPA_40HZ {
		t.Errorf("LP_ACCEL_ODR = %#x", r)
	}
}

func TestUpdate(t *testing.T) {
	d, mpu := newMPU(t, nil)
	d.Step(0.01)
	if err := mpu.Update(mpu9250.UPDATE_ALL); err != nil {
		t.Fatal(err)
	}
	s := mpu.Sample
	if s.AX != 0 || s.AY != 0 || s.AZ != 16384 {
		t.Errorf("level accel %d, %d, %d", s.AX, s.AY, s.AZ)
	}
	if g := mpu.CalcAccel(s.AZ); g != 1 {
		t.Errorf("CalcAccel = %g g, want 1", g)
	}
	if s.GX != 0 || s.GY != 0 || s.GZ != 0 {
		t.Errorf("still gyro %d, %d, %d", s.GX, s.GY, s.GZ)
	}
	if temp := mpu.CalcTemp(s.Temperature); math.Abs(temp-25) > 0.01 {
		t.Errorf("temperature %g, want 25", temp)
	}
	if s.MX != 0 || s.MY != 133 {
		t.Errorf("level field %d, %d, want 0, 133", s.MX, s.MY)
	}
	if uT := mpu.CalcMag(s.MY); math.Abs(uT-20) > 0.1 {
		t.Errorf("north field %g uT, want 20", uT)
	}
	if h := mpu.ComputeCompassHeading(); h != 0 {
		t.Errorf("heading facing north = %g", h)
	}
}

func TestUpdateAggregatesErrors(t *testing.T) {
	d, mpu := newMPU(t, nil)
	d.Step(0.01)
	mpu.Sample.GX = 42
	d.Fail = func(write bool, addr, reg byte) error {
		if !write && reg == mpu9250.MPUREG_GYRO_XOUT_H {
			return errBus
		}
		return nil
	}
	err := mpu.Update(mpu9250.UPDATE_ALL)
	if err == nil {
		t.Fatal("Update succeeded with a failing gyro")
	}
	if !errors.Is(err, mpu9250.ErrTransport) {
		t.Errorf("Update error %v does not match ErrTransport", err)
	}
	if n := len(multierr.Errors(err)); n != 1 {
		t.Errorf("%d errors combined, want 1", n)
	}
	if mpu.Sample.GX != 42 {
		t.Errorf("gyro changed to %d by a failed read", mpu.Sample.GX)
	}
	if mpu.Sample.AZ != 16384 || mpu.Sample.MY != 133 {
		t.Error("accel and compass not updated alongside the failing gyro")
	}
}

func TestCompassNoData(t *testing.T) {
	d, mpu := newMPU(t, nil)
	// Nothing measured yet, the compass has no data until the device samples.
	if err := mpu.UpdateCompass(); !errors.Is(err, mpu9250.ErrNoData) {
		t.Errorf("UpdateCompass = %v, want ErrNoData", err)
	}
	d.Step(0.01)
	if err := mpu.UpdateCompass(); err != nil {
		t.Errorf("UpdateCompass after a sample: %v", err)
	}
}

func TestCompassOverrun(t *testing.T) {
	d, mpu := newMPU(t, nil)
	d.Step(0.01)
	mpu.Sample.MY = 7
	d.Overrun()
	if err := mpu.UpdateCompass(); !errors.Is(err, mpu9250.ErrNoData) {
		t.Errorf("UpdateCompass with overrun data = %v, want ErrNoData", err)
	}
	if mpu.Sample.MY != 7 {
		t.Errorf("overrun reading stored: MY %d", mpu.Sample.MY)
	}
	d.Step(0.01)
	if err := mpu.UpdateCompass(); err != nil || mpu.Sample.MY != 133 {
		t.Errorf("next reading: MY %d, %v", mpu.Sample.MY, err)
	}
}

func TestHeadingThroughTurn(t *testing.T) {
	d, mpu := newMPU(t, sim.Turn(0, 40))
	for _, c := range []struct{ dt, heading float64 }{{10, 90}, {10, 180}, {10, 270}, {5, 315}} {
		d.Step(c.dt)
		if err := mpu.UpdateCompass(); err != nil {
			t.Fatal(err)
		}
		if h := mpu.ComputeCompassHeading(); math.Abs(h-c.heading) > 1 {
			t.Errorf("heading %g, want %g", h, c.heading)
		}
	}
}

func TestRawFifoKeepsOtherFields(t *testing.T) {
	d, mpu := newMPU(t, nil)
	if err := mpu.ConfigureFifo(mpu9250.INV_XYZ_ACCEL); err != nil {
		t.Fatal(err)
	}
	if l := mpu.Layout(); l.DMP || l.Length() != 6 {
		t.Errorf("layout %+v", l)
	}
	mpu.Sample.GX, mpu.Sample.QW = 42, 7
	d.Step(0.01)
	more, err := mpu.UpdateFifo()
	if err != nil {
		t.Fatal(err)
	}
	if more != 0 {
		t.Errorf("%d packets left, want 0", more)
	}
	s := mpu.Sample
	if s.AZ != 16384 || s.GX != 42 || s.QW != 7 {
		t.Errorf("after accel-only packet: az %d, gx %d, qw %d", s.AZ, s.GX, s.QW)
	}

	mpu.Sample.AZ = 1
	if _, err := mpu.UpdateFifo(); !errors.Is(err, mpu9250.ErrFifoEmpty) {
		t.Errorf("UpdateFifo on empty FIFO = %v", err)
	}
	if mpu.Sample.AZ != 1 {
		t.Error("empty FIFO changed the sample")
	}
}

func TestRawFifoGyro(t *testing.T) {
	d, mpu := newMPU(t, sim.Turn(0, 40))
	if err := mpu.ConfigureFifo(mpu9250.INV_XYZ_ACCEL | mpu9250.INV_Z_GYRO); err != nil {
		t.Fatal(err)
	}
	d.Step(1)
	d.Step(1)
	more, err := mpu.UpdateFifo()
	if err != nil {
		t.Fatal(err)
	}
	if more != 1 {
		t.Errorf("%d packets left, want 1", more)
	}
	if r := mpu.CalcGyro(mpu.Sample.GZ); math.Abs(r-9) > 0.1 {
		t.Errorf("yaw rate %g deg/s, want 9", r)
	}
}

func TestConfigureFifoDropsDisabledSensors(t *testing.T) {
	_, mpu := newMPU(t, nil)
	if err := mpu.SetSensors(mpu9250.INV_XYZ_ACCEL); err != nil {
		t.Fatal(err)
	}
	err := mpu.ConfigureFifo(mpu9250.INV_XYZ_ACCEL | mpu9250.INV_XYZ_GYRO | mpu9250.INV_XYZ_COMPASS)
	if !errors.Is(err, mpu9250.ErrConfigRejected) {
		t.Errorf("ConfigureFifo = %v, want partial rejection", err)
	}
	if mpu.FifoConfig() != mpu9250.INV_XYZ_ACCEL {
		t.Errorf("FIFO gets %#x, want accel only", mpu.FifoConfig())
	}
}

func TestFifoOverflow(t *testing.T) {
	d, mpu := newMPU(t, nil)
	if err := mpu.ConfigureFifo(mpu9250.INV_XYZ_ACCEL); err != nil {
		t.Fatal(err)
	}
	d.Push(make([]byte, 1100))
	mpu.Sample.AZ = 1
	if _, err := mpu.UpdateFifo(); !errors.Is(err, mpu9250.ErrFifoOverflow) {
		t.Errorf("UpdateFifo = %v, want overflow", err)
	}
	if n := d.FifoLen(); n != 0 {
		t.Errorf("FIFO holds %d bytes after overflow", n)
	}
	if mpu.Sample.AZ != 1 {
		t.Error("overflow changed the sample")
	}
	d.Step(0.01)
	if _, err := mpu.UpdateFifo(); err != nil {
		t.Errorf("UpdateFifo after recovery: %v", err)
	}
}

func TestDataReadyAndIntStatus(t *testing.T) {
	_, mpu := newMPU(t, nil)
	if !mpu.DataReady() {
		t.Error("no data ready")
	}
	if _, err := mpu.IntStatus(); err != nil {
		t.Error(err)
	}
	if err := mpu.EnableInterrupt(true); err != nil {
		t.Error(err)
	}
}
