package mpu9250

import (
	"github.com/pkg/errors"
)

// PacketFields marks which fields a decoded FIFO packet carries.
type PacketFields uint16

const (
	FIELD_X_GYRO                = PacketFields(INV_X_GYRO)
	FIELD_Y_GYRO                = PacketFields(INV_Y_GYRO)
	FIELD_Z_GYRO                = PacketFields(INV_Z_GYRO)
	FIELD_XYZ_GYRO              = FIELD_X_GYRO | FIELD_Y_GYRO | FIELD_Z_GYRO
	FIELD_ACCEL                 = PacketFields(INV_XYZ_ACCEL)
	FIELD_QUAT     PacketFields = 0x100
	FIELD_GESTURE  PacketFields = 0x200
)

const (
	quatErrorThresh     = 1 << 24
	quatMagSqNormalized = 1 << 28
	quatMagSqMin        = quatMagSqNormalized - quatErrorThresh
	quatMagSqMax        = quatMagSqNormalized + quatErrorThresh

	INT_SRC_TAP            = 0x01
	INT_SRC_ANDROID_ORIENT = 0x08
)

// PacketLayout describes the content of one FIFO packet. The FIFO carries no field tags,
// so the layout must be derived from the configuration that produced the packet.
type PacketLayout struct {
	DMP    bool         // DMP order: quaternion, accel, gyro, gesture; otherwise accel, gyro
	Fields PacketFields // Fields present
}

// RawLayout is the packet layout produced with the DMP off and the given FIFO sensors enabled.
func RawLayout(fifo SensorMask) PacketLayout {
	return PacketLayout{Fields: PacketFields(fifo) & (FIELD_ACCEL | FIELD_XYZ_GYRO)}
}

// DmpLayout is the packet layout produced by the DMP with the given features enabled.
func DmpLayout(f Features) PacketLayout {
	l := PacketLayout{DMP: true}
	if f.Quat != QuatNone {
		l.Fields |= FIELD_QUAT
	}
	if f.SendRawAccel {
		l.Fields |= FIELD_ACCEL
	}
	if f.sendAnyGyro() {
		l.Fields |= FIELD_XYZ_GYRO
	}
	if f.gestures() {
		l.Fields |= FIELD_GESTURE
	}
	return l
}

// Length returns the packet size in bytes.
func (l PacketLayout) Length() int {
	n := 0
	if l.Fields&FIELD_QUAT != 0 {
		n += 16
	}
	if l.Fields&FIELD_ACCEL != 0 {
		n += 6
	}
	for _, g := range []PacketFields{FIELD_X_GYRO, FIELD_Y_GYRO, FIELD_Z_GYRO} {
		if l.Fields&g != 0 {
			n += 2
		}
	}
	if l.Fields&FIELD_GESTURE != 0 {
		n += 4
	}
	return n
}

// Gesture is the DMP gesture word found at the end of a packet.
type Gesture struct {
	Tap          bool
	TapDirection byte // TAP_X_UP..TAP_Z_DOWN
	TapCount     byte
	Orient       bool
	Orientation  byte // ANDROID_ORIENT_*
}

// Packet is one decoded FIFO packet. Only the fields marked in Fields are meaningful.
type Packet struct {
	Fields  PacketFields
	Accel   [3]int16
	Gyro    [3]int16
	Quat    [4]int32 // q30
	Gesture Gesture
}

// DecodePacket decodes data according to layout. A length mismatch or a quaternion whose
// magnitude is far from one is reported as ErrPacketDecode.
func DecodePacket(layout PacketLayout, data []byte) (Packet, error) {
	var p Packet
	if len(data) != layout.Length() {
		return p, errors.WithMessagef(ErrPacketDecode, "got %d bytes, layout needs %d", len(data), layout.Length())
	}
	i := 0
	if layout.DMP && layout.Fields&FIELD_QUAT != 0 {
		var magSq int64
		for j := range p.Quat {
			p.Quat[j] = int32(uint32(data[i])<<24 | uint32(data[i+1])<<16 | uint32(data[i+2])<<8 | uint32(data[i+3]))
			q14 := int64(p.Quat[j] >> 16)
			magSq += q14 * q14
			i += 4
		}
		if magSq < quatMagSqMin || magSq > quatMagSqMax {
			return Packet{}, errors.WithMessagef(ErrPacketDecode, "quaternion magnitude %d out of range", magSq)
		}
		p.Fields |= FIELD_QUAT
	}
	if layout.Fields&FIELD_ACCEL != 0 {
		for j := range p.Accel {
			p.Accel[j] = be16(data[i:])
			i += 2
		}
		p.Fields |= FIELD_ACCEL
	}
	for j, g := range []PacketFields{FIELD_X_GYRO, FIELD_Y_GYRO, FIELD_Z_GYRO} {
		if layout.Fields&g != 0 {
			p.Gyro[j] = be16(data[i:])
			i += 2
			p.Fields |= g
		}
	}
	if layout.DMP && layout.Fields&FIELD_GESTURE != 0 {
		p.Gesture = decodeGesture(data[i : i+4])
		p.Fields |= FIELD_GESTURE
	}
	return p, nil
}

func decodeGesture(g []byte) Gesture {
	var ges Gesture
	androidOrient := g[3] & 0xC0
	tap := g[3] & 0x3F
	if g[1]&INT_SRC_TAP != 0 {
		ges.Tap = true
		ges.TapDirection = tap >> 3
		ges.TapCount = tap%8 + 1
	}
	if g[1]&INT_SRC_ANDROID_ORIENT != 0 {
		ges.Orient = true
		ges.Orientation = androidOrient >> 6
	}
	return ges
}

func be16(b []byte) int16 {
	return int16(uint16(b[0])<<8 | uint16(b[1]))
}
