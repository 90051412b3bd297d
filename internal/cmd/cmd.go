// Package cmd holds the dmp9250 command line.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/d2r2/go-logger"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/westphae/dmp9250/config"
	"github.com/westphae/dmp9250/internal/app"
	"github.com/westphae/dmp9250/mpu9250"
	"github.com/westphae/dmp9250/recorder"
	"github.com/westphae/dmp9250/web"
)

var lg = logger.NewPackageLogger("cmd", logger.InfoLevel)

var RootCmd = &cobra.Command{
	Use:   "dmp9250",
	Short: "read an MPU9250 through its Digital Motion Processor",
	Long:  "read an MPU9250 through its Digital Motion Processor",
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// recordTo opens the --record file, or returns nil when none was asked for.
func recordTo(cmd *cobra.Command) (*recorder.Recorder, error) {
	file, _ := cmd.Flags().GetString("record")
	if file == "" {
		return nil, nil
	}
	return recorder.Create(file)
}

func ReadCmdRunE(cmd *cobra.Command, _ []string) (err error) {
	count, _ := cmd.Flags().GetInt("count")
	a, err := app.Open(cmd)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()
	rec, err := recordTo(cmd)
	if err != nil {
		return err
	}
	if rec != nil {
		defer func() { err = multierr.Append(err, rec.Close()) }()
	}

	ctx, cancel := signalContext()
	defer cancel()
	enc := json.NewEncoder(cmd.OutOrStdout())
	var n int
	return a.Stream(ctx, func(r mpu9250.Reading) error {
		if rec != nil {
			if err := rec.Write(r); err != nil {
				return err
			}
		}
		if err := enc.Encode(r); err != nil {
			return errors.Wrap(err, "writing reading")
		}
		if n++; count > 0 && n >= count {
			cancel()
		}
		return nil
	})
}

func ReadCmdFlags(cmd *cobra.Command) {
	app.Flags(cmd)
	cmd.Flags().IntP("count", "n", 0, "stop after this many readings, 0 runs until interrupted")
	cmd.Flags().String("record", "", "also record readings to this CSV file")
}

var ReadCmd = &cobra.Command{
	Use: "read",
	SuggestFor: []string{
		"rea", "re",
	},
	Short: "read prints device readings as JSON lines",
	Long: `read prints device readings as JSON lines.
The configuration is found in the following order:
1. path specified in --config flag
2. path defined in the DMP9250_CONFIG environment variable
3. default location $HOME/.config/dmp9250/config.yaml, /etc/dmp9250/config.yaml, current directory
The parameters in the configuration file will be overwritten by the following order:
1. command line arguments
2. environment variables
`,
	Example: `  dmp9250 read --count 10
  dmp9250 read --sim turn --calibrate
  dmp9250 read --dmp=false --record run.csv`,
	RunE: ReadCmdRunE,
}

func ServeCmdRunE(cmd *cobra.Command, _ []string) (err error) {
	a, err := app.Open(cmd)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()
	rec, err := recordTo(cmd)
	if err != nil {
		return err
	}
	if rec != nil {
		defer func() { err = multierr.Append(err, rec.Close()) }()
	}

	ctx, cancel := signalContext()
	defer cancel()

	room := web.NewRoom()
	go room.Run(ctx)
	srv := &http.Server{Addr: a.Opts.Web.Listen, Handler: web.NewHandler(room)}
	go func() {
		lg.Infof("serving on http://%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Errorf("web server: %s", err)
			cancel()
		}
	}()
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		err = multierr.Append(err, srv.Shutdown(sctx))
	}()

	return a.Stream(ctx, func(r mpu9250.Reading) error {
		if rec != nil {
			if err := rec.Write(r); err != nil {
				return err
			}
		}
		if err := room.Publish(r); err != nil && err != web.ErrClosed {
			return err
		}
		return nil
	})
}

func ServeCmdFlags(cmd *cobra.Command) {
	app.Flags(cmd)
	cmd.Flags().String("listen", "", "address the web page and websocket stream listen on")
	cmd.Flags().String("record", "", "also record readings to this CSV file")
}

var ServeCmd = &cobra.Command{
	Use: "serve",
	SuggestFor: []string{
		"ru", "ser",
	},
	Short: "serve streams device readings to browsers over a websocket",
	Long: `serve streams device readings to browsers over a websocket.
A live page is served at /, the stream at /dmp9250 and the newest reading at /latest.
The configuration is resolved the same way as for read.
`,
	Example: `  dmp9250 serve --listen 0.0.0.0:8000
  dmp9250 serve --sim turn`,
	RunE: ServeCmdRunE,
}

func SelfTestCmdRunE(cmd *cobra.Command, _ []string) (err error) {
	a, err := app.Open(cmd)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()

	result, err := a.MPU.SelfTest()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, s := range []struct {
		name string
		bit  byte
	}{
		{"gyro", mpu9250.SELF_TEST_GYRO},
		{"accel", mpu9250.SELF_TEST_ACCEL},
		{"compass", mpu9250.SELF_TEST_COMPASS},
	} {
		status := "FAIL"
		if result&s.bit != 0 {
			status = "pass"
		}
		fmt.Fprintf(out, "%-8s %s\n", s.name, status)
	}
	if result != mpu9250.SELF_TEST_GYRO|mpu9250.SELF_TEST_ACCEL|mpu9250.SELF_TEST_COMPASS {
		return errors.Errorf("self test failed: %#02x", result)
	}
	return nil
}

var SelfTestCmd = &cobra.Command{
	Use: "selftest",
	SuggestFor: []string{
		"self", "test",
	},
	Short: "selftest runs the factory self test of every sensor",
	Long: `selftest runs the factory self test of the gyro, accelerometer and magnetometer
and compares each response against the factory trim.
`,
	Example: `  dmp9250 selftest`,
	RunE:    SelfTestCmdRunE,
}

func InitCmdFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "configuration file to start from")
	cmd.Flags().Bool("print", false, "print config to stdout")
	cmd.Flags().BoolP("yes", "y", false, "overwrite")
	cmd.Flags().StringP("output", "o", config.DefaultConfig, "specify output file")
}

var InitCmd = &cobra.Command{
	Use: "init",
	SuggestFor: []string{
		"ini", "in",
	},
	Short: "init create a configuration template",
	Long: `init create a configuration template.
If --print flag is present, the configuration will be printed to stdout.
If --output / -o flag is present, the configuration will be saved to the path specified
Otherwise init will output configuration file to $HOME/.config/dmp9250/config.yaml
If --yes / -y flag is present, the configuration will be overwritten without confirmation
`,
	Example: `  dmp9250 init --print
  dmp9250 init --output /path/to/config.yaml
  dmp9250 init -o /path/to/config.yaml -y`,
	RunE: config.InitCfg,
}

func getRootCmd() *cobra.Command {
	ReadCmdFlags(ReadCmd)
	RootCmd.AddCommand(ReadCmd)

	ServeCmdFlags(ServeCmd)
	RootCmd.AddCommand(ServeCmd)

	app.Flags(SelfTestCmd)
	RootCmd.AddCommand(SelfTestCmd)

	InitCmdFlags(InitCmd)
	RootCmd.AddCommand(InitCmd)

	return RootCmd
}

func Execute() error {
	return getRootCmd().Execute()
}
