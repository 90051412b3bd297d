package transport

import (
	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all" // Empty import needed to initialize embd library.
	_ "github.com/kidoman/embd/host/rpi" // Empty import needed to initialize embd library.
	"github.com/pkg/errors"
)

// Embd is an embd I2C bus. embd.I2CBus already has the register calls the driver needs.
type Embd struct {
	embd.I2CBus
	line byte
}

// OpenEmbd initializes embd's I2C driver and opens line.
func OpenEmbd(line byte) (*Embd, error) {
	if err := embd.InitI2C(); err != nil {
		return nil, errors.Wrap(err, "initializing embd I2C")
	}
	lg.Debugf("embd I2C line %d open", line)
	return &Embd{I2CBus: embd.NewI2CBus(line), line: line}, nil
}

// SetSpeed is a no-op: the embd bus clock is fixed by the kernel driver.
func (e *Embd) SetSpeed(hz uint32) error {
	lg.Debugf("embd I2C line %d: clock set by the kernel, ignoring %d Hz", e.line, hz)
	return nil
}

// Close releases the bus and embd's I2C driver.
func (e *Embd) Close() error {
	if err := e.I2CBus.Close(); err != nil {
		return errors.Wrapf(err, "closing I2C line %d", e.line)
	}
	return embd.CloseI2C()
}
