package mpu9250

import (
	"bytes"

	"github.com/pkg/errors"
)

// Bus is the register-level transport the driver talks through.
// embd.I2CBus satisfies it as is.
type Bus interface {
	ReadByteFromReg(addr, reg byte) (byte, error)
	ReadFromReg(addr, reg byte, value []byte) error
	WriteByteToReg(addr, reg, value byte) error
	WriteToReg(addr, reg byte, value []byte) error
}

// SpeedSetter is implemented by buses whose clock can be changed at runtime.
type SpeedSetter interface {
	SetSpeed(hz uint32) error
}

const loadChunk = 16

func (mpu *MPU9250) i2cWrite(register, value byte) error {
	return mpu.i2cWriteTo(mpu.Address, register, value)
}

func (mpu *MPU9250) i2cWriteTo(addr, register, value byte) error {
	if err := mpu.bus.WriteByteToReg(addr, register, value); err != nil {
		return &BusError{Op: "write", Addr: addr, Reg: register, Err: err}
	}
	return nil
}

func (mpu *MPU9250) i2cWriteBytes(register byte, value []byte) error {
	if err := mpu.bus.WriteToReg(mpu.Address, register, value); err != nil {
		return &BusError{Op: "burst write", Addr: mpu.Address, Reg: register, Err: err}
	}
	return nil
}

func (mpu *MPU9250) i2cRead(register byte) (byte, error) {
	v, err := mpu.bus.ReadByteFromReg(mpu.Address, register)
	if err != nil {
		return 0, &BusError{Op: "read", Addr: mpu.Address, Reg: register, Err: err}
	}
	return v, nil
}

func (mpu *MPU9250) i2cReadBytes(register byte, n int) ([]byte, error) {
	return mpu.i2cReadBytesFrom(mpu.Address, register, n)
}

func (mpu *MPU9250) i2cReadBytesFrom(addr, register byte, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := mpu.bus.ReadFromReg(addr, register, buf); err != nil {
		return nil, &BusError{Op: "burst read", Addr: addr, Reg: register, Err: err}
	}
	return buf, nil
}

// memWrite writes to DMP memory. A single write may not cross a bank boundary.
func (mpu *MPU9250) memWrite(addr uint16, data []byte) error {
	if err := mpu.selectMem(addr, len(data)); err != nil {
		return err
	}
	return mpu.i2cWriteBytes(MPUREG_MEM_R_W, data)
}

func (mpu *MPU9250) memRead(addr uint16, n int) ([]byte, error) {
	if err := mpu.selectMem(addr, n); err != nil {
		return nil, err
	}
	return mpu.i2cReadBytes(MPUREG_MEM_R_W, n)
}

func (mpu *MPU9250) selectMem(addr uint16, n int) error {
	if int(addr&0xFF)+n > MPU_BANK_SIZE {
		return rejected("memory access %#04x+%d crosses a bank boundary", addr, n)
	}
	// BANK_SEL and MEM_START_ADDR are adjacent
	return mpu.i2cWriteBytes(MPUREG_BANK_SEL, []byte{byte(addr >> 8), byte(addr & 0xFF)})
}

// loadFirmware writes the image in chunks and verifies each one by reading it back.
func (mpu *MPU9250) loadFirmware(image []byte, startAddr uint16, sampleRate uint16) error {
	if mpu.dmpLoaded {
		return errors.WithMessage(ErrDMPState, "firmware already loaded")
	}
	if len(image) == 0 {
		return errors.WithMessage(ErrFirmwareLoad, "no firmware image")
	}
	for i := 0; i < len(image); i += loadChunk {
		n := loadChunk
		if len(image)-i < n {
			n = len(image) - i
		}
		chunk := image[i : i+n]
		if err := mpu.memWrite(uint16(i), chunk); err != nil {
			return errors.Wrapf(ErrFirmwareLoad, "writing chunk at %#04x: %v", i, err)
		}
		cur, err := mpu.memRead(uint16(i), n)
		if err != nil {
			return errors.Wrapf(ErrFirmwareLoad, "verifying chunk at %#04x: %v", i, err)
		}
		if !bytes.Equal(cur, chunk) {
			return errors.Wrapf(ErrFirmwareLoad, "verify mismatch at %#04x", i)
		}
	}
	if err := mpu.i2cWriteBytes(MPUREG_PRGM_START_H, []byte{byte(startAddr >> 8), byte(startAddr & 0xFF)}); err != nil {
		return errors.Wrapf(ErrFirmwareLoad, "setting program start: %v", err)
	}
	mpu.dmpLoaded = true
	mpu.dmpSampleRate = sampleRate
	lg.Infof("DMP firmware loaded, %d bytes", len(image))
	return nil
}
