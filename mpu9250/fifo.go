package mpu9250

import (
	"time"

	"github.com/pkg/errors"
)

const fifoResetDelay = 50 * time.Millisecond

// ConfigureFifo selects which sensors are written to the FIFO while the DMP is off.
// The compass is never written to the FIFO. Sensors that are not enabled are dropped
// and reported as an error after the rest has been configured.
func (mpu *MPU9250) ConfigureFifo(sensors SensorMask) error {
	sensors &^= INV_XYZ_COMPASS
	if mpu.dmpOn {
		return nil
	}
	if mpu.sensors == 0 {
		return rejected("FIFO cannot be configured with all sensors off")
	}
	prev := mpu.fifoEnable
	mpu.fifoEnable = sensors & mpu.sensors
	var partial error
	if mpu.fifoEnable != sensors {
		partial = rejected("sensors %#02x are not enabled, FIFO gets %#02x", sensors, mpu.fifoEnable)
	}
	if err := mpu.setIntEnable(sensors != 0 || mpu.lpAccelMode); err != nil {
		return err
	}
	if sensors != 0 {
		if err := mpu.ResetFifo(); err != nil {
			mpu.fifoEnable = prev
			return err
		}
	}
	return partial
}

// FifoConfig returns the sensors written to the FIFO while the DMP is off.
func (mpu *MPU9250) FifoConfig() SensorMask {
	return mpu.fifoEnable
}

// ResetFifo empties the FIFO and restarts it, along with the DMP when it is on.
func (mpu *MPU9250) ResetFifo() error {
	if mpu.sensors == 0 {
		return rejected("FIFO cannot be reset with all sensors off")
	}
	for _, r := range []byte{MPUREG_INT_ENABLE, MPUREG_FIFO_EN, MPUREG_USER_CTRL} {
		if err := mpu.i2cWrite(r, 0); err != nil {
			return errors.Wrap(err, "stopping FIFO")
		}
	}

	var userCtrl, intEnable, fifoEn byte
	if mpu.dmpOn {
		if err := mpu.i2cWrite(MPUREG_USER_CTRL, BIT_FIFO_RST|BIT_DMP_RST); err != nil {
			return errors.Wrap(err, "resetting FIFO")
		}
		mpu.sleep(fifoResetDelay)
		userCtrl = BIT_DMP_EN | BIT_FIFO_EN
		if mpu.sensors&INV_XYZ_COMPASS != 0 {
			userCtrl |= BIT_AUX_IF_EN
		}
		if mpu.intEnable != 0 {
			intEnable = BIT_DMP_INT_EN
		}
	} else {
		if err := mpu.i2cWrite(MPUREG_USER_CTRL, BIT_FIFO_RST); err != nil {
			return errors.Wrap(err, "resetting FIFO")
		}
		userCtrl = BIT_FIFO_EN
		if !mpu.bypassMode && mpu.sensors&INV_XYZ_COMPASS != 0 {
			userCtrl |= BIT_AUX_IF_EN
		}
		if mpu.intEnable != 0 {
			intEnable = BIT_DATA_RDY_EN
		}
		fifoEn = byte(mpu.fifoEnable)
	}
	if err := mpu.i2cWrite(MPUREG_USER_CTRL, userCtrl); err != nil {
		return errors.Wrap(err, "restarting FIFO")
	}
	if !mpu.dmpOn {
		mpu.sleep(fifoResetDelay)
	}
	if err := mpu.i2cWrite(MPUREG_INT_ENABLE, intEnable); err != nil {
		return errors.Wrap(err, "restoring interrupts")
	}
	if err := mpu.i2cWrite(MPUREG_FIFO_EN, fifoEn); err != nil {
		return errors.Wrap(err, "restoring FIFO sensors")
	}
	return nil
}

// FifoAvailable returns the number of bytes waiting in the FIFO.
func (mpu *MPU9250) FifoAvailable() (uint16, error) {
	b, err := mpu.i2cReadBytes(MPUREG_FIFO_COUNTH, 2)
	if err != nil {
		return 0, errors.Wrap(err, "reading FIFO count")
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// readPacket pops one packet of the given layout off the FIFO and returns it along with
// the number of complete packets still queued.
// An overflowed FIFO is reset and reported as ErrFifoOverflow.
func (mpu *MPU9250) readPacket(layout PacketLayout) ([]byte, int, error) {
	length := layout.Length()
	if length == 0 {
		return nil, 0, rejected("nothing is routed to the FIFO")
	}
	count, err := mpu.FifoAvailable()
	if err != nil {
		return nil, 0, err
	}
	if int(count) < length {
		return nil, 0, ErrFifoEmpty
	}
	if count > MPU_MAX_FIFO>>1 {
		// FIFO is 50% full, better check overflow bit.
		status, err := mpu.i2cRead(MPUREG_INT_STATUS)
		if err != nil {
			return nil, 0, errors.Wrap(err, "reading FIFO status")
		}
		if status&BIT_FIFO_OVERFLOW != 0 {
			lg.Warnf("FIFO overflow with %d bytes queued, resetting", count)
			if err := mpu.ResetFifo(); err != nil {
				return nil, 0, err
			}
			return nil, 0, ErrFifoOverflow
		}
	}
	data, err := mpu.i2cReadBytes(MPUREG_FIFO_R_W, length)
	if err != nil {
		return nil, 0, errors.Wrap(err, "reading FIFO")
	}
	return data, int(count)/length - 1, nil
}

// UpdateFifo reads one raw packet from the FIFO while the DMP is off and stores the sensors
// it carries into Sample. It returns the number of complete packets still queued.
// On any error Sample keeps its previous values.
func (mpu *MPU9250) UpdateFifo() (int, error) {
	if mpu.dmpOn {
		return 0, errors.WithMessage(ErrDMPState, "raw FIFO is not available while the DMP is on")
	}
	if mpu.sensors == 0 || mpu.fifoEnable == 0 {
		return 0, rejected("no sensors routed to the FIFO")
	}
	layout := RawLayout(mpu.fifoEnable)
	data, more, err := mpu.readPacket(layout)
	if err != nil {
		return 0, err
	}
	p, err := DecodePacket(layout, data)
	if err != nil {
		return more, err
	}
	mpu.Sample.apply(p)
	mpu.Sample.Time = mpu.clock()
	return more, nil
}

// DmpUpdateFifo reads one DMP packet from the FIFO and stores the values it carries into Sample.
// Tap and orientation gestures are delivered to Events when their callbacks are registered.
// It returns the number of complete packets still queued.
// A packet with a corrupt quaternion resets the FIFO; on any error Sample keeps its previous values.
func (mpu *MPU9250) DmpUpdateFifo() (int, error) {
	if !mpu.dmpOn {
		return 0, errors.WithMessage(ErrDMPState, "DMP is off")
	}
	layout := mpu.dmp.layout
	data, more, err := mpu.readPacket(layout)
	if err != nil {
		return 0, err
	}
	p, err := DecodePacket(layout, data)
	if err != nil {
		if rerr := mpu.ResetFifo(); rerr != nil {
			lg.Errorf("resetting FIFO after bad packet: %s", rerr)
		}
		return 0, err
	}
	mpu.Sample.apply(p)
	mpu.Sample.Time = mpu.clock()

	if p.Fields&FIELD_GESTURE != 0 {
		g := p.Gesture
		if g.Tap && mpu.dmp.tapCB != nil {
			mpu.dmp.tapCB(g.TapDirection, g.TapCount)
		}
		if g.Orient && mpu.dmp.orientCB != nil {
			mpu.dmp.orientCB(g.Orientation)
		}
	}
	return more, nil
}

// Layout returns the layout of the packets currently written to the FIFO.
func (mpu *MPU9250) Layout() PacketLayout {
	if mpu.dmpOn {
		return mpu.dmp.layout
	}
	return RawLayout(mpu.fifoEnable)
}
