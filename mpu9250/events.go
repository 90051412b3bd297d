package mpu9250

import "sync"

// Tap directions reported by the DMP.
const (
	TAP_X_UP   = 0x01
	TAP_X_DOWN = 0x02
	TAP_Y_UP   = 0x03
	TAP_Y_DOWN = 0x04
	TAP_Z_UP   = 0x05
	TAP_Z_DOWN = 0x06
)

// Android orientations reported by the DMP.
const (
	ANDROID_ORIENT_PORTRAIT          = 0x00
	ANDROID_ORIENT_LANDSCAPE         = 0x01
	ANDROID_ORIENT_REVERSE_PORTRAIT  = 0x02
	ANDROID_ORIENT_REVERSE_LANDSCAPE = 0x03
)

// TapEvent is the last tap reported by the DMP.
type TapEvent struct {
	Direction byte
	Count     byte
}

/*
Events is a single-slot mailbox for the tap and orientation notifications of one device.
A new tap overwrites an unread one; reading clears only the availability flag, so the
last value stays readable until the next tap arrives.
*/
type Events struct {
	mu           sync.Mutex
	tap          TapEvent
	tapAvailable bool
	orientation  byte
}

// NewEvents returns an empty mailbox.
func NewEvents() *Events {
	return &Events{}
}

// OnTap records a tap. It is the callback registered by DmpSetTap.
func (e *Events) OnTap(direction, count byte) {
	e.mu.Lock()
	e.tap = TapEvent{Direction: direction, Count: count}
	e.tapAvailable = true
	e.mu.Unlock()
}

// OnOrientation records an orientation change. It is the callback registered by DmpSetOrientation.
func (e *Events) OnOrientation(orientation byte) {
	e.mu.Lock()
	e.orientation = orientation
	e.mu.Unlock()
}

// TapAvailable reports whether a tap arrived since the last read.
func (e *Events) TapAvailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tapAvailable
}

// TapDirection returns the direction of the last tap and marks it read.
func (e *Events) TapDirection() byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tapAvailable = false
	return e.tap.Direction
}

// TapCount returns the count of the last tap and marks it read.
func (e *Events) TapCount() byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tapAvailable = false
	return e.tap.Count
}

// ReadTap returns the last tap and whether it was unread, and marks it read.
func (e *Events) ReadTap() (TapEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ok := e.tapAvailable
	e.tapAvailable = false
	return e.tap, ok
}

// Orientation returns the last reported orientation.
func (e *Events) Orientation() byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orientation
}
