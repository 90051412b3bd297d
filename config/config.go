// Package config loads the dmp9250 tool configuration from flags, DMP9250_* environment
// variables and a yaml file, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/d2r2/go-logger"
	"github.com/pkg/errors"
	"github.com/skelterjohn/go.matrix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/westphae/dmp9250/mpu9250"
)

var lg = logger.NewPackageLogger("config", logger.InfoLevel)

const (
	DefaultAppName    = "dmp9250"
	DefaultConfigName = "config"
	EnvPrefix         = "DMP9250"
)

var userHomeDir, _ = os.UserHomeDir()
var DefaultConfig = path.Join(userHomeDir, ".config", DefaultAppName, DefaultConfigName+".yaml")

var searchPath = []string{
	path.Join(userHomeDir, ".config", DefaultAppName),
	"/etc/" + DefaultAppName,
	"./",
}

type BusOpt struct {
	Driver  string `yaml:"driver" mapstructure:"driver"` // embd or d2r2
	Line    int    `yaml:"line" mapstructure:"line"`
	Address uint8  `yaml:"address" mapstructure:"address"`
	Speed   uint32 `yaml:"speed" mapstructure:"speed"`
	Trace   bool   `yaml:"trace" mapstructure:"trace"`
}

type SensorOpt struct {
	GyroFSR     uint16 `yaml:"gyro_fsr" mapstructure:"gyro_fsr"`
	AccelFSR    uint8  `yaml:"accel_fsr" mapstructure:"accel_fsr"`
	LPF         uint16 `yaml:"lpf" mapstructure:"lpf"`
	SampleRate  uint16 `yaml:"sample_rate" mapstructure:"sample_rate"`
	CompassRate uint16 `yaml:"compass_rate" mapstructure:"compass_rate"`
}

type TapOpt struct {
	X     uint16 `yaml:"x" mapstructure:"x"` // mg/ms, 0 disables the axis
	Y     uint16 `yaml:"y" mapstructure:"y"`
	Z     uint16 `yaml:"z" mapstructure:"z"`
	Count uint8  `yaml:"count" mapstructure:"count"`
	Time  uint16 `yaml:"time" mapstructure:"time"`   // ms
	Multi uint16 `yaml:"multi" mapstructure:"multi"` // ms
}

type DMPOpt struct {
	Enabled     bool     `yaml:"enabled" mapstructure:"enabled"`
	Firmware    string   `yaml:"firmware" mapstructure:"firmware"`
	Features    []string `yaml:"features" mapstructure:"features"`
	FifoRate    uint16   `yaml:"fifo_rate" mapstructure:"fifo_rate"`
	Orientation []int    `yaml:"orientation" mapstructure:"orientation"` // row-major mounting matrix
	Tap         TapOpt   `yaml:"tap" mapstructure:"tap"`
}

type WebOpt struct {
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// Options is the whole tool configuration.
type Options struct {
	Bus    BusOpt    `yaml:"bus" mapstructure:"bus"`
	Sensor SensorOpt `yaml:"sensor" mapstructure:"sensor"`
	DMP    DMPOpt    `yaml:"dmp" mapstructure:"dmp"`
	Web    WebOpt    `yaml:"web" mapstructure:"web"`
	Debug  bool      `yaml:"debug" mapstructure:"debug"`
}

// Default returns the configuration used when nothing else is given.
func Default() Options {
	return Options{
		Bus: BusOpt{Driver: "embd", Line: 1, Address: mpu9250.MPU_ADDRESS, Speed: 400000},
		Sensor: SensorOpt{
			GyroFSR: 2000, AccelFSR: 2, LPF: 42, SampleRate: 100, CompassRate: 10,
		},
		DMP: DMPOpt{
			Enabled:     true,
			Features:    []string{"6x_lp_quat", "gyro_cal", "send_raw_accel", "send_cal_gyro"},
			FifoRate:    100,
			Orientation: []int{1, 0, 0, 0, 1, 0, 0, 0, 1},
			Tap:         TapOpt{X: 250, Y: 250, Z: 250, Count: 1, Time: 100, Multi: 500},
		},
		Web:   WebOpt{Listen: "127.0.0.1:8000"},
		Debug: false,
	}
}

// setDefaults registers every key with viper so the environment can override it.
func setDefaults(v *viper.Viper, o Options) {
	v.SetDefault("bus.driver", o.Bus.Driver)
	v.SetDefault("bus.line", o.Bus.Line)
	v.SetDefault("bus.address", o.Bus.Address)
	v.SetDefault("bus.speed", o.Bus.Speed)
	v.SetDefault("bus.trace", o.Bus.Trace)
	v.SetDefault("sensor.gyro_fsr", o.Sensor.GyroFSR)
	v.SetDefault("sensor.accel_fsr", o.Sensor.AccelFSR)
	v.SetDefault("sensor.lpf", o.Sensor.LPF)
	v.SetDefault("sensor.sample_rate", o.Sensor.SampleRate)
	v.SetDefault("sensor.compass_rate", o.Sensor.CompassRate)
	v.SetDefault("dmp.enabled", o.DMP.Enabled)
	v.SetDefault("dmp.firmware", o.DMP.Firmware)
	v.SetDefault("dmp.features", o.DMP.Features)
	v.SetDefault("dmp.fifo_rate", o.DMP.FifoRate)
	v.SetDefault("dmp.orientation", o.DMP.Orientation)
	v.SetDefault("dmp.tap.x", o.DMP.Tap.X)
	v.SetDefault("dmp.tap.y", o.DMP.Tap.Y)
	v.SetDefault("dmp.tap.z", o.DMP.Tap.Z)
	v.SetDefault("dmp.tap.count", o.DMP.Tap.Count)
	v.SetDefault("dmp.tap.time", o.DMP.Tap.Time)
	v.SetDefault("dmp.tap.multi", o.DMP.Tap.Multi)
	v.SetDefault("web.listen", o.Web.Listen)
	v.SetDefault("debug", o.Debug)
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"driver":   "bus.driver",
	"line":     "bus.line",
	"trace":    "bus.trace",
	"rate":     "dmp.fifo_rate",
	"dmp":      "dmp.enabled",
	"firmware": "dmp.firmware",
	"listen":   "web.listen",
	"debug":    "debug",
}

/*
Load resolves the configuration for cmd. The file comes from the --config flag, then
DMP9250_CONFIG, then config.yaml in ~/.config/dmp9250, /etc/dmp9250 or the working
directory. A missing file is not an error; a malformed one is.
*/
func Load(cmd *cobra.Command) (*Options, error) {
	v := viper.New()
	setDefaults(v, Default())

	if file, err := cmd.Flags().GetString("config"); err == nil && file != "" {
		v.SetConfigFile(file)
	} else if file := os.Getenv(EnvPrefix + "_CONFIG"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		for _, p := range searchPath {
			v.AddConfigPath(p)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errors.Wrapf(err, "binding --%s", flag)
			}
		}
	}

	if err := v.ReadInConfig(); err == nil {
		lg.Debugf("using config file %s", v.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		lg.Debugf("no config file, using defaults")
	} else {
		return nil, errors.Wrap(err, "reading config file")
	}

	var o Options
	if err := v.Unmarshal(&o); err != nil {
		return nil, errors.Wrap(err, "decoding configuration")
	}
	return &o, nil
}

// Save writes o as yaml to file. An existing file is only replaced when overwrite is set.
func (o *Options) Save(file string, overwrite bool) error {
	if _, err := os.Stat(file); err == nil && !overwrite {
		return errors.Errorf("%s exists", file)
	}
	if err := os.MkdirAll(path.Dir(file), 0755); err != nil {
		return errors.Wrap(err, "creating config directory")
	}
	b, err := yaml.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "encoding configuration")
	}
	return errors.Wrap(os.WriteFile(file, b, 0644), "writing configuration")
}

// Yaml returns o as a yaml document.
func (o *Options) Yaml() string {
	b, err := yaml.Marshal(o)
	if err != nil {
		return fmt.Sprintf("# %s\n", err)
	}
	return string(b)
}

var featureNames = map[string]mpu9250.FeatureMask{
	"tap":            mpu9250.DMP_FEATURE_TAP,
	"android_orient": mpu9250.DMP_FEATURE_ANDROID_ORIENT,
	"lp_quat":        mpu9250.DMP_FEATURE_LP_QUAT,
	"pedometer":      mpu9250.DMP_FEATURE_PEDOMETER,
	"6x_lp_quat":     mpu9250.DMP_FEATURE_6X_LP_QUAT,
	"gyro_cal":       mpu9250.DMP_FEATURE_GYRO_CAL,
	"send_raw_accel": mpu9250.DMP_FEATURE_SEND_RAW_ACCEL,
	"send_raw_gyro":  mpu9250.DMP_FEATURE_SEND_RAW_GYRO,
	"send_cal_gyro":  mpu9250.DMP_FEATURE_SEND_CAL_GYRO,
}

// FeatureNames lists the accepted DMP feature names.
func FeatureNames() []string {
	names := make([]string, 0, len(featureNames))
	for n := range featureNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FeatureMask converts the configured feature names into a DMP feature mask.
func (o *DMPOpt) FeatureMask() (mpu9250.FeatureMask, error) {
	var m mpu9250.FeatureMask
	for _, name := range o.Features {
		f, ok := featureNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, errors.Errorf("unknown DMP feature %q, want one of %s", name, strings.Join(FeatureNames(), ", "))
		}
		m |= f
	}
	return m, nil
}

// MountingMatrix validates the configured orientation as a signed permutation matrix.
func (o *DMPOpt) MountingMatrix() ([9]int8, error) {
	if len(o.Orientation) != 9 {
		return [9]int8{}, errors.Errorf("orientation needs 9 entries, got %d", len(o.Orientation))
	}
	el := make([]float64, 9)
	for i, v := range o.Orientation {
		el[i] = float64(v)
	}
	return mpu9250.OrientationFromMatrix(matrix.MakeDenseMatrix(el, 3, 3))
}

// LoadFirmware reads the DMP image named in the configuration.
func (o *DMPOpt) LoadFirmware() ([]byte, error) {
	if o.Firmware == "" {
		return nil, errors.New("no DMP firmware file configured")
	}
	b, err := os.ReadFile(o.Firmware)
	if err != nil {
		return nil, errors.Wrap(err, "reading DMP firmware")
	}
	if len(b) != mpu9250.DMP_CODE_SIZE {
		lg.Warnf("DMP firmware %s is %d bytes, expected %d", o.Firmware, len(b), mpu9250.DMP_CODE_SIZE)
	}
	return b, nil
}

// LogLevel returns the level matching the Debug setting.
func (o *Options) LogLevel() logger.LogLevel {
	if o.Debug {
		return logger.DebugLevel
	}
	return logger.InfoLevel
}

// InitCfg writes a configuration template, or prints it with --print.
func InitCfg(cmd *cobra.Command, _ []string) error {
	printFlag, _ := cmd.Flags().GetBool("print")
	outputPath, _ := cmd.Flags().GetString("output")
	overwriteFlag, _ := cmd.Flags().GetBool("yes")

	o, err := Load(cmd)
	if err != nil {
		lg.Errorf("%s", err)
		return err
	}

	if printFlag {
		fmt.Fprintln(cmd.OutOrStdout(), o.Yaml())
		return nil
	}
	if outputPath == "" {
		outputPath = DefaultConfig
	}
	if err := o.Save(outputPath, overwriteFlag); err != nil {
		return err
	}
	lg.Infof("configuration written to %s", outputPath)
	return nil
}
