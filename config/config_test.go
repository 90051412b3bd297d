package config

import (
	"os"
	"path"
	"testing"

	"github.com/spf13/cobra"

	"github.com/westphae/dmp9250/mpu9250"
)

func command(args ...string) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().Int("line", 1, "")
	cmd.Flags().String("listen", "", "")
	cmd.Flags().Bool("debug", false, "")
	if err := cmd.Flags().Parse(args); err != nil {
		panic(err)
	}
	return cmd
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvPrefix+"_CONFIG", "")

	o, err := Load(command())
	if err != nil {
		t.Fatal(err)
	}
	d := Default()
	if o.Bus.Driver != d.Bus.Driver || o.Bus.Address != mpu9250.MPU_ADDRESS || o.DMP.FifoRate != 100 {
		t.Errorf("got %+v", o)
	}
	if len(o.DMP.Orientation) != 9 || o.DMP.Tap.Multi != 500 {
		t.Errorf("nested defaults lost: %+v", o.DMP)
	}
}

func TestLoadPrecedence(t *testing.T) {
	file := path.Join(t.TempDir(), "dmp9250.yaml")
	o := Default()
	o.DMP.FifoRate = 50
	o.Sensor.GyroFSR = 500
	o.Web.Listen = "0.0.0.0:9000"
	if err := o.Save(file, false); err != nil {
		t.Fatal(err)
	}
	if err := o.Save(file, false); err == nil {
		t.Error("existing file replaced without overwrite")
	}

	t.Setenv(EnvPrefix+"_SENSOR_GYRO_FSR", "1000")
	got, err := Load(command("--config", file, "--listen", ":8080"))
	if err != nil {
		t.Fatal(err)
	}
	if got.DMP.FifoRate != 50 {
		t.Errorf("fifo rate %d, want 50 from file", got.DMP.FifoRate)
	}
	if got.Sensor.GyroFSR != 1000 {
		t.Errorf("gyro fsr %d, want 1000 from environment", got.Sensor.GyroFSR)
	}
	if got.Web.Listen != ":8080" {
		t.Errorf("listen %q, want flag value", got.Web.Listen)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	file := path.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(file, []byte("bus: [\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(command("--config", file)); err == nil {
		t.Error("malformed file accepted")
	}
}

func TestFeatureMask(t *testing.T) {
	d := DMPOpt{Features: []string{"6x_lp_quat", " TAP", "send_raw_accel"}}
	m, err := d.FeatureMask()
	if err != nil {
		t.Fatal(err)
	}
	if m != mpu9250.DMP_FEATURE_6X_LP_QUAT|mpu9250.DMP_FEATURE_TAP|mpu9250.DMP_FEATURE_SEND_RAW_ACCEL {
		t.Errorf("mask %#x", m)
	}
	d.Features = append(d.Features, "compass")
	if _, err := d.FeatureMask(); err == nil {
		t.Error("unknown feature accepted")
	}
}

func TestMountingMatrix(t *testing.T) {
	d := DMPOpt{Orientation: []int{0, 1, 0, 1, 0, 0, 0, 0, -1}}
	m, err := d.MountingMatrix()
	if err != nil {
		t.Fatal(err)
	}
	if m != [9]int8{0, 1, 0, 1, 0, 0, 0, 0, -1} {
		t.Errorf("matrix %v", m)
	}
	for _, bad := range [][]int{
		{1, 0, 0, 0, 1, 0},
		{1, 0, 0, 1, 0, 0, 0, 0, 1},
		{2, 0, 0, 0, 1, 0, 0, 0, 1},
	} {
		d.Orientation = bad
		if _, err := d.MountingMatrix(); err == nil {
			t.Errorf("orientation %v accepted", bad)
		}
	}
}

func TestLoadFirmware(t *testing.T) {
	d := DMPOpt{}
	if _, err := d.LoadFirmware(); err == nil {
		t.Error("empty firmware path accepted")
	}
	d.Firmware = path.Join(t.TempDir(), "dmp.bin")
	if err := os.WriteFile(d.Firmware, make([]byte, mpu9250.DMP_CODE_SIZE), 0644); err != nil {
		t.Fatal(err)
	}
	b, err := d.LoadFirmware()
	if err != nil || len(b) != mpu9250.DMP_CODE_SIZE {
		t.Errorf("read %d bytes, %v", len(b), err)
	}
}

func TestInitCfg(t *testing.T) {
	t.Setenv(EnvPrefix+"_CONFIG", "")
	file := path.Join(t.TempDir(), "init", "config.yaml")
	cmd := command()
	cmd.Flags().Bool("print", false, "")
	cmd.Flags().BoolP("yes", "y", false, "")
	cmd.Flags().StringP("output", "o", "", "")
	if err := cmd.Flags().Parse([]string{"-o", file}); err != nil {
		t.Fatal(err)
	}
	if err := InitCfg(cmd, nil); err != nil {
		t.Fatal(err)
	}
	if err := InitCfg(cmd, nil); err == nil {
		t.Error("second init overwrote without --yes")
	}
	cmd.Flags().Set("yes", "true")
	if err := InitCfg(cmd, nil); err != nil {
		t.Error(err)
	}
}
