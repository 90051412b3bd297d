package transport

import (
	"strings"
	"testing"

	"github.com/westphae/dmp9250/mpu9250"
	"github.com/westphae/dmp9250/sim"
)

func TestTracedPassesThrough(t *testing.T) {
	d := sim.NewDevice(nil)
	var bus mpu9250.Bus = Traced{Bus: d}

	id, err := bus.ReadByteFromReg(d.Address, mpu9250.MPUREG_WHOAMI)
	if err != nil || id != mpu9250.MPU9250_WHOAMI {
		t.Errorf("WHO_AM_I %#x, %v", id, err)
	}
	if err := bus.WriteToReg(d.Address, mpu9250.MPUREG_SMPLRT_DIV, []byte{4, 3}); err != nil {
		t.Fatal(err)
	}
	b := make([]byte, 2)
	if err := bus.ReadFromReg(d.Address, mpu9250.MPUREG_SMPLRT_DIV, b); err != nil || b[0] != 4 || b[1] != 3 {
		t.Errorf("read back %v, %v", b, err)
	}
	if _, err := bus.ReadByteFromReg(sim.CompassAddress, 0); err == nil {
		t.Error("error from the wrapped bus was lost")
	}

	if err := bus.(mpu9250.SpeedSetter).SetSpeed(100000); err != nil || d.Speed() != 100000 {
		t.Errorf("speed %d, %v", d.Speed(), err)
	}
}

func TestTracedDrivesMPU(t *testing.T) {
	d := sim.NewDevice(nil)
	mpu := mpu9250.New(Traced{Bus: d}, nil)
	if err := mpu.Begin(0); err != nil {
		t.Fatal(err)
	}
	if d.Speed() != 400000 {
		t.Errorf("speed %d", d.Speed())
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("spi", 1); err == nil || !strings.Contains(err.Error(), `"spi"`) {
		t.Errorf("unknown driver: %v", err)
	}
}
