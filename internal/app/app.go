// Package app opens a configured MPU9250 and streams its readings.
package app

import (
	"context"
	"time"

	"github.com/d2r2/go-logger"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/westphae/dmp9250/config"
	"github.com/westphae/dmp9250/magcal"
	"github.com/westphae/dmp9250/mpu9250"
	"github.com/westphae/dmp9250/sim"
	"github.com/westphae/dmp9250/transport"
)

var lg = logger.NewPackageLogger("app", logger.InfoLevel)

var packages = []string{"app", "config", "magcal", "mpu9250", "recorder", "transport", "web"}

// App is an initialized device and the settings it was opened with.
type App struct {
	Opts *config.Options
	MPU  *mpu9250.MPU9250
	Sim  *sim.Device // Non-nil when running against the emulated device
	Cal  *magcal.Simple

	closer transport.Closer
	dmp    bool
}

// Situations the emulated device can follow.
var Situations = map[string]func() *sim.Situation{
	"level": sim.Level,
	"turn":  func() *sim.Situation { return sim.Turn(20, 60) },
}

// Flags registers the device flags shared by every command that opens one.
func Flags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "configuration file")
	cmd.Flags().String("sim", "", "use the emulated device following a situation: level or turn")
	cmd.Flags().Bool("calibrate", false, "calibrate the magnetometer while running")
	cmd.Flags().String("driver", "embd", "I2C driver: embd or d2r2")
	cmd.Flags().Int("line", 1, "I2C bus line")
	cmd.Flags().Bool("trace", false, "log every bus transaction")
	cmd.Flags().Uint16("rate", 100, "DMP FIFO rate, Hz")
	cmd.Flags().Bool("dmp", true, "run the Digital Motion Processor")
	cmd.Flags().String("firmware", "", "DMP firmware image")
	cmd.Flags().Bool("debug", false, "toggle debug logging")
}

// Open loads the configuration for cmd and brings up the device it names.
func Open(cmd *cobra.Command) (*App, error) {
	opts, err := config.Load(cmd)
	if err != nil {
		return nil, err
	}
	for _, p := range packages {
		logger.ChangePackageLogLevel(p, opts.LogLevel())
	}

	a := &App{Opts: opts}
	var bus mpu9250.Bus
	if name, _ := cmd.Flags().GetString("sim"); name != "" {
		situation, ok := Situations[name]
		if !ok {
			return nil, errors.Errorf("unknown situation %q", name)
		}
		a.Sim = sim.NewDevice(situation())
		bus = a.Sim
		lg.Infof("using emulated device following %q", name)
	} else {
		a.closer, err = transport.Open(opts.Bus.Driver, opts.Bus.Line)
		if err != nil {
			return nil, err
		}
		bus = a.closer
	}
	if opts.Bus.Trace {
		bus = &transport.Traced{Bus: bus}
	}

	var fw []byte
	if opts.DMP.Enabled {
		if fw, err = opts.DMP.LoadFirmware(); err != nil {
			if a.Sim == nil {
				return nil, multierr.Append(err, a.Close())
			}
			fw = make([]byte, mpu9250.DMP_CODE_SIZE)
		}
	}
	a.MPU = mpu9250.New(bus, &mpu9250.Options{Address: opts.Bus.Address, Firmware: fw})
	if err := a.setup(); err != nil {
		return nil, multierr.Append(err, a.Close())
	}
	if calibrate, _ := cmd.Flags().GetBool("calibrate"); calibrate {
		a.Cal = magcal.NewSimple(magcal.AvgMagField)
	}
	return a, nil
}

func (a *App) setup() error {
	o := a.Opts
	mpu := a.MPU
	if err := mpu.Begin(o.Bus.Speed); err != nil {
		return err
	}
	steps := []struct {
		what string
		f    func() error
	}{
		{"gyro range", func() error { return mpu.SetGyroFSR(o.Sensor.GyroFSR) }},
		{"accel range", func() error { return mpu.SetAccelFSR(o.Sensor.AccelFSR) }},
		{"low pass filter", func() error { return mpu.SetLPF(o.Sensor.LPF) }},
		{"sample rate", func() error { return mpu.SetSampleRate(o.Sensor.SampleRate) }},
		{"compass rate", func() error { return mpu.SetCompassSampleRate(o.Sensor.CompassRate) }},
	}
	for _, s := range steps {
		if err := s.f(); err != nil {
			return errors.WithMessage(err, s.what)
		}
	}
	if !o.DMP.Enabled {
		return nil
	}

	mask, err := o.DMP.FeatureMask()
	if err != nil {
		return err
	}
	orientation, err := o.DMP.MountingMatrix()
	if err != nil {
		return err
	}
	if err := mpu.DmpBegin(mask, o.DMP.FifoRate); err != nil {
		return err
	}
	if err := mpu.DmpSetOrientation(orientation); err != nil {
		return err
	}
	if mask&mpu9250.DMP_FEATURE_TAP != 0 {
		t := o.DMP.Tap
		if err := mpu.DmpSetTap(t.X, t.Y, t.Z, t.Count, t.Time, t.Multi); err != nil {
			return err
		}
	}
	a.dmp = true
	return nil
}

// Period is the interval between readings.
func (a *App) Period() time.Duration {
	rate := a.MPU.SampleRate()
	if a.dmp {
		rate = a.MPU.DmpFifoRate()
	}
	if rate == 0 {
		rate = 1
	}
	return time.Second / time.Duration(rate)
}

/*
Next takes one reading. With the DMP running it drains the FIFO to the newest packet and
refreshes the compass and temperature registers; otherwise it reads every sensor register.
ErrFifoEmpty and ErrNoData are not failures: the previous values are reported again.
*/
func (a *App) Next() (mpu9250.Reading, error) {
	mpu := a.MPU
	if a.Sim != nil {
		a.Sim.Step(a.Period().Seconds())
	}

	var err error
	if a.dmp {
		for more := 1; more > 0; {
			var e error
			if more, e = mpu.DmpUpdateFifo(); e != nil {
				if !errors.Is(e, mpu9250.ErrFifoEmpty) {
					err = multierr.Append(err, e)
				}
				break
			}
		}
		mpu.ComputeEulerAngles(true)
		err = multierr.Append(err, ignoreNoData(mpu.Update(mpu9250.UPDATE_COMPASS|mpu9250.UPDATE_TEMP)))
	} else {
		err = ignoreNoData(mpu.Update(mpu9250.UPDATE_ALL))
	}

	mpu.ComputeCompassHeading()
	r := mpu.Reading()
	if a.Cal != nil {
		a.Cal.Add(r.Mag)
		r.Mag = a.Cal.Apply(r.Mag)
		r.Heading = a.Cal.Heading(r.Mag)
	}
	return r, err
}

func ignoreNoData(err error) error {
	var out error
	for _, e := range multierr.Errors(err) {
		if !errors.Is(e, mpu9250.ErrNoData) {
			out = multierr.Append(out, e)
		}
	}
	return out
}

// Stream calls each with a reading every Period until ctx is done or each fails.
// Read errors are logged and streaming continues.
func (a *App) Stream(ctx context.Context, each func(mpu9250.Reading) error) error {
	ticker := time.NewTicker(a.Period())
	defer ticker.Stop()
	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		r, err := a.Next()
		if err != nil {
			lg.Warnf("reading device: %s", err)
		}
		if err := each(r); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the DMP and releases the bus.
func (a *App) Close() error {
	var err error
	if a.MPU != nil && a.MPU.DMPState() {
		err = a.MPU.SetDMPState(false)
	}
	if a.closer != nil {
		err = multierr.Append(err, a.closer.Close())
	}
	return err
}
