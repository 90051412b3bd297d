package mpu9250

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrTransport is matched by every error caused by a bus transaction that did not complete.
	ErrTransport = errors.New("mpu9250: bus transaction failed")
	// ErrConfigRejected means a value is outside what the device supports.
	ErrConfigRejected = errors.New("mpu9250: configuration rejected")
	// ErrFirmwareLoad means the DMP image could not be uploaded. No DMP output is possible
	// afterwards, so callers should not retry DmpBegin in a loop.
	ErrFirmwareLoad = errors.New("mpu9250: DMP firmware load failed")
	// ErrPacketDecode means FIFO content did not match the active packet layout.
	ErrPacketDecode = errors.New("mpu9250: FIFO packet does not match active layout")
	ErrFifoOverflow = errors.New("mpu9250: FIFO overflow")
	ErrFifoEmpty    = errors.New("mpu9250: no complete packet in FIFO")
	// ErrNoData means a sensor had no new measurement to read.
	ErrNoData = errors.New("mpu9250: sensor has no new data")
	// ErrCompassOverflow means the magnetic field exceeded the magnetometer range.
	ErrCompassOverflow = errors.New("mpu9250: magnetometer overflow")
	// ErrDMPState means the operation is not allowed in the current DMP state.
	ErrDMPState = errors.New("mpu9250: operation not allowed in current DMP state")
)

// BusError records a failed bus transaction.
type BusError struct {
	Op   string
	Addr byte
	Reg  byte
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("mpu9250: %s %#02x at %#02x: %v", e.Op, e.Reg, e.Addr, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

func (e *BusError) Is(target error) bool { return target == ErrTransport }

func rejected(format string, args ...interface{}) error {
	return errors.WithMessagef(ErrConfigRejected, format, args...)
}
