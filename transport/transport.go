// Package transport provides the I2C buses the mpu9250 driver runs on: embd on a
// Raspberry Pi class host, d2r2/go-i2c on any Linux i2c-dev node, and a tracing wrapper
// that logs every register transaction.
package transport

import (
	"github.com/d2r2/go-logger"
	"github.com/pkg/errors"

	"github.com/westphae/dmp9250/mpu9250"
)

var lg = logger.NewPackageLogger("transport", logger.InfoLevel)

// Closer is a bus that holds an OS handle.
type Closer interface {
	mpu9250.Bus
	Close() error
}

// Open returns the bus named by driver ("embd" or "d2r2") on I2C line.
func Open(driver string, line int) (Closer, error) {
	switch driver {
	case "embd", "":
		b, err := OpenEmbd(byte(line))
		if err != nil {
			return nil, err
		}
		return b, nil
	case "d2r2":
		return OpenD2R2(line), nil
	}
	return nil, errors.Errorf("unknown I2C driver %q", driver)
}

// Traced logs every transaction on Bus at debug level.
type Traced struct {
	Bus mpu9250.Bus
}

func (t Traced) ReadByteFromReg(addr, reg byte) (byte, error) {
	v, err := t.Bus.ReadByteFromReg(addr, reg)
	lg.Debugf("%#02x read  %#02x: %#02x %v", addr, reg, v, errText(err))
	return v, err
}

func (t Traced) ReadFromReg(addr, reg byte, value []byte) error {
	err := t.Bus.ReadFromReg(addr, reg, value)
	lg.Debugf("%#02x read  %#02x: % x %v", addr, reg, value, errText(err))
	return err
}

func (t Traced) WriteByteToReg(addr, reg, value byte) error {
	err := t.Bus.WriteByteToReg(addr, reg, value)
	lg.Debugf("%#02x write %#02x: %#02x %v", addr, reg, value, errText(err))
	return err
}

func (t Traced) WriteToReg(addr, reg byte, value []byte) error {
	err := t.Bus.WriteToReg(addr, reg, value)
	lg.Debugf("%#02x write %#02x: % x %v", addr, reg, value, errText(err))
	return err
}

// SetSpeed passes the clock request through when the wrapped bus supports it.
func (t Traced) SetSpeed(hz uint32) error {
	if s, ok := t.Bus.(mpu9250.SpeedSetter); ok {
		return s.SetSpeed(hz)
	}
	lg.Debugf("bus clock %d Hz requested, bus has a fixed clock", hz)
	return nil
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return "(" + err.Error() + ")"
}
