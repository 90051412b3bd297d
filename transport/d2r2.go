package transport

import (
	"sync"

	"github.com/d2r2/go-i2c"
	"github.com/d2r2/go-logger"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// D2R2 is an I2C line driven through d2r2/go-i2c. That library binds a handle to one
// slave address, so a handle is opened for each address on first use.
type D2R2 struct {
	line int

	mu   sync.Mutex
	devs map[byte]*i2c.I2C
}

// OpenD2R2 prepares /dev/i2c-line. No handle is opened until the first transaction.
func OpenD2R2(line int) *D2R2 {
	// go-i2c logs every transfer at debug level.
	logger.ChangePackageLogLevel("i2c", logger.InfoLevel)
	return &D2R2{line: line, devs: make(map[byte]*i2c.I2C)}
}

func (d *D2R2) dev(addr byte) (*i2c.I2C, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if dev, ok := d.devs[addr]; ok {
		return dev, nil
	}
	dev, err := i2c.NewI2C(addr, d.line)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %#02x on I2C line %d", addr, d.line)
	}
	d.devs[addr] = dev
	return dev, nil
}

func (d *D2R2) ReadByteFromReg(addr, reg byte) (byte, error) {
	dev, err := d.dev(addr)
	if err != nil {
		return 0, err
	}
	return dev.ReadRegU8(reg)
}

func (d *D2R2) ReadFromReg(addr, reg byte, value []byte) error {
	dev, err := d.dev(addr)
	if err != nil {
		return err
	}
	b, n, err := dev.ReadRegBytes(reg, len(value))
	if err != nil {
		return err
	}
	if n != len(value) {
		return errors.Errorf("short read from %#02x: %d of %d bytes", reg, n, len(value))
	}
	copy(value, b)
	return nil
}

func (d *D2R2) WriteByteToReg(addr, reg, value byte) error {
	dev, err := d.dev(addr)
	if err != nil {
		return err
	}
	return dev.WriteRegU8(reg, value)
}

func (d *D2R2) WriteToReg(addr, reg byte, value []byte) error {
	dev, err := d.dev(addr)
	if err != nil {
		return err
	}
	buf := append([]byte{reg}, value...)
	n, err := dev.WriteBytes(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return errors.Errorf("short write to %#02x: %d of %d bytes", reg, n, len(buf))
	}
	return nil
}

// Close closes every handle opened on the line.
func (d *D2R2) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	for addr, dev := range d.devs {
		err = multierr.Append(err, dev.Close())
		delete(d.devs, addr)
	}
	return err
}
