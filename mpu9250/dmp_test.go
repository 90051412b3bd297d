package mpu9250_test

import (
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/skelterjohn/go.matrix"

	"github.com/westphae/dmp9250/mpu9250"
	"github.com/westphae/dmp9250/sim"
)

func TestDmpBeginPrefers3AxisQuaternion(t *testing.T) {
	d, mpu := newMPU(t, nil)
	err := mpu.DmpBegin(mpu9250.DMP_FEATURE_LP_QUAT|mpu9250.DMP_FEATURE_6X_LP_QUAT|mpu9250.DMP_FEATURE_SEND_RAW_ACCEL, 10)
	if err != nil {
		t.Fatal(err)
	}
	f := mpu.DmpEnabledFeatures()
	if f&mpu9250.DMP_FEATURE_6X_LP_QUAT != 0 || f&mpu9250.DMP_FEATURE_LP_QUAT == 0 {
		t.Errorf("enabled features %#x, want the 3-axis quaternion only", f)
	}
	if m := d.Memory(mpu9250.CFG_8, 4); m[0] != 0xA3 {
		t.Errorf("6-axis quaternion slot %x, want disabled", m)
	}
	if m := d.Memory(mpu9250.CFG_LP_QUAT, 4); m[0] != mpu9250.DINBC0 {
		t.Errorf("3-axis quaternion slot %x, want enabled", m)
	}
	if !mpu.DMPState() || mpu.DmpFifoRate() != 10 || mpu.SampleRate() != 200 {
		t.Errorf("DMP on %t, FIFO rate %d, sample rate %d", mpu.DMPState(), mpu.DmpFifoRate(), mpu.SampleRate())
	}
	// Tap is always on, so the packet carries quaternion, accel and gesture words.
	if l := mpu.Layout(); !l.DMP || l.Length() != 26 {
		t.Errorf("layout %+v, length %d", l, l.Length())
	}

	d.Step(0.1)
	if _, err := mpu.DmpUpdateFifo(); err != nil {
		t.Fatal(err)
	}
	s := mpu.Sample
	if s.QW != 1<<30 || s.QX != 0 || s.QY != 0 || s.QZ != 0 {
		t.Errorf("level quaternion %d, %d, %d, %d", s.QW, s.QX, s.QY, s.QZ)
	}
	if s.AZ != 16384 {
		t.Errorf("accel z %d", s.AZ)
	}
	if mpu.CalcQuat(s.QW) != 1 {
		t.Errorf("CalcQuat = %g", mpu.CalcQuat(s.QW))
	}
}

func TestDmpBeginClampsRate(t *testing.T) {
	_, mpu := newMPU(t, nil)
	if err := mpu.DmpBegin(mpu9250.DMP_FEATURE_6X_LP_QUAT, 500); err != nil {
		t.Fatal(err)
	}
	if mpu.DmpFifoRate() != 200 {
		t.Errorf("FIFO rate %d, want 200", mpu.DmpFifoRate())
	}
	if err := mpu.DmpSetFifoRate(0); !errors.Is(err, mpu9250.ErrConfigRejected) {
		t.Errorf("DmpSetFifoRate(0) = %v", err)
	}
	if err := mpu.SetSampleRate(100); !errors.Is(err, mpu9250.ErrDMPState) {
		t.Errorf("SetSampleRate with the DMP on = %v", err)
	}
	if _, err := mpu.UpdateFifo(); !errors.Is(err, mpu9250.ErrDMPState) {
		t.Errorf("UpdateFifo with the DMP on = %v", err)
	}
}

func TestDmpBeginFirmwareFailure(t *testing.T) {
	d, mpu := newMPU(t, nil)
	d.Fail = func(write bool, addr, reg byte) error {
		if write && reg == mpu9250.MPUREG_MEM_R_W {
			return errBus
		}
		return nil
	}
	d.ClearWrites()
	err := mpu.DmpBegin(mpu9250.DMP_FEATURE_6X_LP_QUAT, 50)
	if !errors.Is(err, mpu9250.ErrFirmwareLoad) {
		t.Fatalf("DmpBegin = %v, want firmware load failure", err)
	}
	// Only the memory bank selection for the first chunk got through.
	w := d.Writes()
	if len(w) != 1 || w[0].Reg != mpu9250.MPUREG_BANK_SEL {
		t.Errorf("writes after failed load: %+v", w)
	}
	if mpu.DMPState() {
		t.Error("DMP running after failed load")
	}
	if _, err := mpu.DmpUpdateFifo(); !errors.Is(err, mpu9250.ErrDMPState) {
		t.Errorf("DmpUpdateFifo = %v", err)
	}
}

func TestDmpBeginWithoutFirmware(t *testing.T) {
	d := sim.NewDevice(nil)
	mpu := mpu9250.New(d, &mpu9250.Options{Sleep: func(time.Duration) {}})
	if err := mpu.Begin(100000); err != nil {
		t.Fatal(err)
	}
	if d.Speed() != 100000 {
		t.Errorf("bus speed %d", d.Speed())
	}
	if err := mpu.DmpBegin(mpu9250.DMP_FEATURE_6X_LP_QUAT, 50); !errors.Is(err, mpu9250.ErrFirmwareLoad) {
		t.Errorf("DmpBegin = %v", err)
	}
	if err := mpu.SetDMPState(true); !errors.Is(err, mpu9250.ErrDMPState) {
		t.Errorf("SetDMPState = %v", err)
	}
}

func TestDmpLoadVerifies(t *testing.T) {
	d, mpu := newMPU(t, nil)
	if err := mpu.DmpLoad(); err != nil {
		t.Fatal(err)
	}
	fw := firmware()
	if got := d.Memory(0x100, 16); string(got) != string(fw[0x100:0x110]) {
		t.Errorf("memory at 0x100 = %x", got)
	}
	if h, l := d.Register(mpu9250.MPUREG_PRGM_START_H), d.Register(mpu9250.MPUREG_PRGM_START_H+1); h != 0x04 || l != 0x00 {
		t.Errorf("program start %#02x%02x", h, l)
	}
	// A second load is a no-op.
	d.ClearWrites()
	if err := mpu.DmpLoad(); err != nil {
		t.Fatal(err)
	}
	if n := len(d.Writes()); n != 0 {
		t.Errorf("%d writes for an already loaded image", n)
	}
}

func TestDmpTapNeedsCallback(t *testing.T) {
	d, mpu := newMPU(t, nil)
	if err := mpu.DmpBegin(mpu9250.DMP_FEATURE_6X_LP_QUAT|mpu9250.DMP_FEATURE_TAP, 50); err != nil {
		t.Fatal(err)
	}
	d.Tap(mpu9250.TAP_Z_UP, 2)
	d.Step(0.02)
	if _, err := mpu.DmpUpdateFifo(); err != nil {
		t.Fatal(err)
	}
	if mpu.Events.TapAvailable() {
		t.Error("tap delivered before DmpSetTap")
	}

	if err := mpu.DmpSetTap(250, 250, 250, 1, 100, 500); err != nil {
		t.Fatal(err)
	}
	d.Tap(mpu9250.TAP_X_DOWN, 3)
	d.Step(0.02)
	if _, err := mpu.DmpUpdateFifo(); err != nil {
		t.Fatal(err)
	}
	ev, ok := mpu.Events.ReadTap()
	if !ok || ev.Direction != mpu9250.TAP_X_DOWN || ev.Count != 3 {
		t.Errorf("tap %+v, available %t", ev, ok)
	}
	if ev, ok := mpu.Events.ReadTap(); ok || ev.Count != 3 {
		t.Errorf("second read: %+v, available %t", ev, ok)
	}

	// Packets without a gesture leave the mailbox alone.
	d.Step(0.02)
	if _, err := mpu.DmpUpdateFifo(); err != nil {
		t.Fatal(err)
	}
	if mpu.Events.TapAvailable() {
		t.Error("tap reported without a gesture")
	}
}

func TestDmpSetTapAxes(t *testing.T) {
	d, mpu := newMPU(t, nil)
	if err := mpu.DmpBegin(mpu9250.DMP_FEATURE_6X_LP_QUAT|mpu9250.DMP_FEATURE_TAP, 50); err != nil {
		t.Fatal(err)
	}
	if err := mpu.DmpSetTap(100, 0, 0, 2, 100, 500); err != nil {
		t.Fatal(err)
	}
	if m := d.Memory(mpu9250.D_1_72, 1); m[0] != 0x30 {
		t.Errorf("tap axes %#x, want x only", m[0])
	}
	// 100 mg/ms at 200Hz and 2g.
	if m := d.Memory(mpu9250.DMP_TAP_THX, 2); m[0] != 0x20 || m[1] != 0x00 {
		t.Errorf("x threshold %x", m)
	}
	if m := d.Memory(mpu9250.D_1_79, 1); m[0] != 1 {
		t.Errorf("tap count %d, want 1 (two taps)", m[0])
	}
	if m := d.Memory(mpu9250.DMP_TAPW_MIN, 2); m[1] != 20 {
		t.Errorf("tap time %x, want 20 ticks", m)
	}
}

func TestDmpOrientation(t *testing.T) {
	d, mpu := newMPU(t, nil)
	if err := mpu.DmpBegin(mpu9250.DMP_FEATURE_6X_LP_QUAT|mpu9250.DMP_FEATURE_ANDROID_ORIENT, 50); err != nil {
		t.Fatal(err)
	}
	if err := mpu.DmpSetOrientation([9]int8{1, 0, 0, 0, 1, 0, 0, 0, 1}); err != nil {
		t.Fatal(err)
	}
	if m := d.Memory(mpu9250.FCFG_1, 3); m[0] != mpu9250.DINA4C || m[1] != mpu9250.DINACD || m[2] != mpu9250.DINA6C {
		t.Errorf("gyro axes %x", m)
	}
	d.Orient(mpu9250.ANDROID_ORIENT_LANDSCAPE)
	d.Step(0.02)
	if _, err := mpu.DmpUpdateFifo(); err != nil {
		t.Fatal(err)
	}
	if o := mpu.DmpOrientation(); o != mpu9250.ANDROID_ORIENT_LANDSCAPE {
		t.Errorf("orientation %d", o)
	}
	if mpu.Events.TapAvailable() {
		t.Error("orientation change reported as a tap")
	}
}

func TestDmpCorruptQuaternion(t *testing.T) {
	d, mpu := newMPU(t, nil)
	if err := mpu.DmpBegin(mpu9250.DMP_FEATURE_6X_LP_QUAT, 50); err != nil {
		t.Fatal(err)
	}
	d.Step(0.02)
	if _, err := mpu.DmpUpdateFifo(); err != nil {
		t.Fatal(err)
	}
	d.SetRawQuaternion([4]int32{1 << 30, 1 << 30, 0, 0})
	d.Step(0.02)
	d.Step(0.02)
	if _, err := mpu.DmpUpdateFifo(); !errors.Is(err, mpu9250.ErrPacketDecode) {
		t.Errorf("DmpUpdateFifo = %v, want decode failure", err)
	}
	if mpu.Sample.QW != 1<<30 || mpu.Sample.QX != 0 {
		t.Errorf("corrupt packet reached the sample: %d, %d", mpu.Sample.QW, mpu.Sample.QX)
	}
	if n := d.FifoLen(); n != 0 {
		t.Errorf("FIFO holds %d bytes after a corrupt packet", n)
	}
}

func TestDmpEulerAngles(t *testing.T) {
	// 30 degrees of heading.
	s, err := sim.NewSituation([]float64{0, 1}, []float64{0, 0}, []float64{0, 0}, []float64{-math.Pi / 6, -math.Pi / 6})
	if err != nil {
		t.Fatal(err)
	}
	d, mpu := newMPU(t, s)
	if err := mpu.DmpBegin(mpu9250.DMP_FEATURE_6X_LP_QUAT|mpu9250.DMP_FEATURE_GYRO_CAL, 50); err != nil {
		t.Fatal(err)
	}
	d.Step(0.02)
	if _, err := mpu.DmpUpdateFifo(); err != nil {
		t.Fatal(err)
	}
	mpu.ComputeEulerAngles(true)
	if math.Abs(mpu.Sample.Yaw-30) > 0.01 || math.Abs(mpu.Sample.Pitch) > 0.01 || math.Abs(mpu.Sample.Roll) > 0.01 {
		t.Errorf("pitch %g, roll %g, yaw %g", mpu.Sample.Pitch, mpu.Sample.Roll, mpu.Sample.Yaw)
	}
	mpu.ComputeEulerAngles2(true)
	if math.Abs(mpu.Sample.Yaw+30) > 0.01 {
		t.Errorf("aerospace yaw %g, want -30", mpu.Sample.Yaw)
	}
}

func TestDmpEnable3Quat(t *testing.T) {
	d, mpu := newMPU(t, nil)
	if err := mpu.DmpBegin(mpu9250.DMP_FEATURE_6X_LP_QUAT|mpu9250.DMP_FEATURE_SEND_CAL_GYRO, 50); err != nil {
		t.Fatal(err)
	}
	if err := mpu.DmpEnable3Quat(); err != nil {
		t.Fatal(err)
	}
	f := mpu.DmpEnabledFeatures()
	if f&mpu9250.DMP_FEATURE_LP_QUAT == 0 || f&mpu9250.DMP_FEATURE_6X_LP_QUAT != 0 || f&mpu9250.DMP_FEATURE_SEND_CAL_GYRO == 0 {
		t.Errorf("features %#x", f)
	}
	if m := d.Memory(mpu9250.CFG_GYRO_RAW_DATA, 4); m[0] != 0xB2 {
		t.Errorf("gyro source %x, want calibrated", m)
	}
}

func TestPedometer(t *testing.T) {
	_, mpu := newMPU(t, nil)
	if err := mpu.DmpSetPedometerSteps(1234); err != nil {
		t.Fatal(err)
	}
	if n, err := mpu.DmpPedometerSteps(); err != nil || n != 1234 {
		t.Errorf("steps %d, %v", n, err)
	}
	if err := mpu.DmpSetPedometerTime(60000); err != nil {
		t.Fatal(err)
	}
	if ms, err := mpu.DmpPedometerTime(); err != nil || ms != 60000 {
		t.Errorf("walk time %d ms, %v", ms, err)
	}
}

func TestOrientationFromMatrix(t *testing.T) {
	m, err := mpu9250.OrientationFromMatrix(matrix.Eye(3))
	if err != nil {
		t.Fatal(err)
	}
	if s := mpu9250.OrientationScalar(m); s != 136 {
		t.Errorf("identity scalar %d, want 136", s)
	}

	// Rotated 90 degrees about z.
	rot := [9]int8{0, 1, 0, -1, 0, 0, 0, 0, 1}
	m, err = mpu9250.OrientationFromMatrix(mpu9250.MountingMatrix(rot))
	if err != nil || m != rot {
		t.Errorf("rotation %v, %v", m, err)
	}

	bad := []*matrix.DenseMatrix{
		matrix.MakeDenseMatrix([]float64{0.5, 0, 0, 0, 1, 0, 0, 0, 1}, 3, 3),
		mpu9250.MountingMatrix([9]int8{1, 0, 0, 1, 0, 0, 0, 0, 1}),
		matrix.Eye(2),
	}
	for i, b := range bad {
		if _, err := mpu9250.OrientationFromMatrix(b); !errors.Is(err, mpu9250.ErrConfigRejected) {
			t.Errorf("bad matrix %d accepted: %v", i, err)
		}
	}
}

func TestSelfTest(t *testing.T) {
	_, mpu := newMPU(t, nil)
	if err := mpu.DmpBegin(mpu9250.DMP_FEATURE_6X_LP_QUAT, 50); err != nil {
		t.Fatal(err)
	}
	r, err := mpu.SelfTest()
	if err != nil {
		t.Fatal(err)
	}
	if r != mpu9250.SELF_TEST_GYRO|mpu9250.SELF_TEST_ACCEL|mpu9250.SELF_TEST_COMPASS {
		t.Errorf("self-test result %#x, want all passed", r)
	}
	if !mpu.DMPState() || mpu.GyroFSR() != 2000 || mpu.AccelFSR() != 2 {
		t.Errorf("configuration not restored: DMP %t, gyro %d, accel %d", mpu.DMPState(), mpu.GyroFSR(), mpu.AccelFSR())
	}
}

func TestSelfTestDetectsWeakSensors(t *testing.T) {
	d, mpu := newMPU(t, nil)
	d.GyroSelfTest = [3]int16{100, 100, 100}
	d.CompassSelfTest = [3]int16{0, 0, 0}
	r, err := mpu.SelfTest()
	if err != nil {
		t.Fatal(err)
	}
	if r != mpu9250.SELF_TEST_ACCEL {
		t.Errorf("self-test result %#x, want accel only", r)
	}
}

func TestSelfTestRestoresAfterBusError(t *testing.T) {
	for _, reg := range []byte{mpu9250.MPUREG_SELF_TEST_X_ACCEL, mpu9250.MPUREG_SELF_TEST_X_GYRO} {
		d, mpu := newMPU(t, nil)
		if err := mpu.DmpBegin(mpu9250.DMP_FEATURE_6X_LP_QUAT, 50); err != nil {
			t.Fatal(err)
		}
		failing := reg
		d.Fail = func(write bool, addr, r byte) error {
			if !write && r == failing {
				return errBus
			}
			return nil
		}
		if _, err := mpu.SelfTest(); !errors.Is(err, mpu9250.ErrTransport) {
			t.Errorf("reg %#x: self-test error %v", reg, err)
		}
		if g := d.Register(mpu9250.MPUREG_GYRO_CONFIG) >> 3 & 3; g != 3 || mpu.GyroFSR() != 2000 || mpu.GyroSens() != 16.4 {
			t.Errorf("reg %#x: chip gyro range bits %d, cached %d dps at %g LSB", reg, g, mpu.GyroFSR(), mpu.GyroSens())
		}
		if a := d.Register(mpu9250.MPUREG_ACCEL_CONFIG) >> 3 & 3; a != 0 || mpu.AccelFSR() != 2 || mpu.AccelSens() != 16384 {
			t.Errorf("reg %#x: chip accel range bits %d, cached %d g", reg, a, mpu.AccelFSR())
		}
		if !mpu.DMPState() {
			t.Errorf("reg %#x: DMP left off", reg)
		}
	}
}

func TestDmpSetTapSaturates(t *testing.T) {
	for _, fsr := range []uint8{2, 4, 8, 16} {
		d, mpu := newMPU(t, nil)
		if err := mpu.SetAccelFSR(fsr); err != nil {
			t.Fatal(err)
		}
		if err := mpu.DmpBegin(mpu9250.DMP_FEATURE_6X_LP_QUAT|mpu9250.DMP_FEATURE_TAP, 50); err != nil {
			t.Fatal(err)
		}
		if err := mpu.DmpSetTap(1600, 0, 0, 1, 100, 500); err != nil {
			t.Fatal(err)
		}
		m := d.Memory(mpu9250.DMP_TAP_THX, 2)
		th := uint16(m[0])<<8 | uint16(m[1])
		// 1600 mg/ms at 200Hz is 8g per sample, beyond 16 bits at 2g and 4g.
		want := map[uint8]uint16{2: math.MaxUint16, 4: math.MaxUint16, 8: 32768, 16: 16384}[fsr]
		if th != want {
			t.Errorf("%dg: x threshold %d, want %d", fsr, th, want)
		}
	}
}
