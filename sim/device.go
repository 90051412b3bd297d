package sim

import (
	"fmt"
	"math"
	"sync"

	"github.com/westphae/quaternion"
)

// Registers the emulation gives behaviour to. Everything else is plain storage.
const (
	regSelfTestXGyro  = 0x00
	regSelfTestXAccel = 0x0D
	regGyroConfig     = 0x1B
	regAccelConfig    = 0x1C
	regFifoEn         = 0x23
	regIntPinCfg      = 0x37
	regIntStatus      = 0x3A
	regAccelXoutH     = 0x3B
	regTempOutH       = 0x41
	regGyroXoutH      = 0x43
	regExtSensData00  = 0x49
	regUserCtrl       = 0x6A
	regPwrMgmt1       = 0x6B
	regBankSel        = 0x6D
	regMemStartAddr   = 0x6E
	regMemRW          = 0x6F
	regFifoCountH     = 0x72
	regFifoCountL     = 0x73
	regFifoRW         = 0x74
	regWhoAmI         = 0x75

	whoAmI      = 0x71
	bitHReset   = 0x80
	bitFifoRst  = 0x04
	bitDmpRst   = 0x08
	bitFifoEn   = 0x40
	bitDmpEn    = 0x80
	bitAuxIfEn  = 0x20
	bitBypassEn = 0x02
	bitOverflow = 0x10
	bitRawRdy   = 0x01
	bitsST      = 0xE0

	fifoEnAccel = 0x08
	fifoEnXGyro = 0x40
	fifoEnYGyro = 0x20
	fifoEnZGyro = 0x10

	maxFifo = 1024
	memSize = 4096

	intSrcTap    = 0x01
	intSrcOrient = 0x08
)

// AK8963 registers and modes.
const (
	CompassAddress = 0x0C

	akWIA   = 0x00
	akST1   = 0x02
	akHXL   = 0x03
	akST2   = 0x09
	akCNTL1 = 0x0A
	akASTC  = 0x0C
	akASAX  = 0x10
	akRegs  = 0x13

	akWhoAmI     = 0x48
	akModeMask   = 0x0F
	akPowerDown  = 0x00
	akSingle     = 0x01
	akSelfTest   = 0x08
	akFuseROM    = 0x0F
	akDataReady  = 0x01
	akOverrun    = 0x02
	akBitM       = 0x10
	akBitSTField = 0x40
)

// DMP memory slots that decide what the firmware writes to the FIFO.
const (
	cfgLPQuat = 2712
	cfg8      = 2718
	cfg15     = 2727
	cfg27     = 2742
)

// Write records one bus write seen by the device.
type Write struct {
	Addr, Reg byte
	Data      []byte
}

/*
Device is an emulated MPU9250 with its AK8963, reachable through the same four register
calls as a real I2C bus. DMP memory is plain storage; when the DMP is enabled the packet
content is inferred from the configuration slots the driver wrote.
Each Step advances the situation and queues one FIFO packet if the FIFO is running.
*/
type Device struct {
	mu sync.Mutex

	Address byte

	// FactoryTrim holds the self-test OTP codes: gyro x, y, z then accel x, y, z.
	FactoryTrim [6]byte
	// Self-test responses added to the readings while self-test is enabled, in LSB.
	GyroSelfTest, AccelSelfTest [3]int16
	// CompassSelfTest is the AK8963 reading in self-test mode.
	CompassSelfTest [3]int16
	// CompassAdjust is the AK8963 fuse ROM sensitivity adjustment.
	CompassAdjust [3]byte

	// Fail, when set, is consulted before every transaction; a non-nil error aborts it.
	Fail func(write bool, addr, reg byte) error

	situation *Situation
	t         float64

	regs  [128]byte
	mem   [memSize]byte
	fifo  []byte
	ak    [akRegs]byte
	speed uint32

	accel, gyro [3]int16
	mag         [3]int16
	temp        int16
	quat        [4]int32
	gesture     [4]byte
	fixedRaw    bool
	fixedQuat   bool

	writes []Write
}

// NewDevice creates a powered-up device following situation, or sitting level when it is nil.
func NewDevice(situation *Situation) *Device {
	if situation == nil {
		situation = Level()
	}
	d := &Device{
		Address:         0x68,
		situation:       situation,
		FactoryTrim:     [6]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80},
		GyroSelfTest:    [3]int16{9000, 9000, 9000},
		AccelSelfTest:   [3]int16{9000, 9000, 9000},
		CompassSelfTest: [3]int16{10, -20, -1500},
		CompassAdjust:   [3]byte{128, 128, 128},
	}
	d.reset()
	d.sample()
	return d
}

func (d *Device) reset() {
	d.regs = [128]byte{}
	d.regs[regWhoAmI] = whoAmI
	d.regs[regPwrMgmt1] = 0x01
	d.fifo = d.fifo[:0]
	d.ak = [akRegs]byte{}
	d.ak[akWIA] = akWhoAmI
}

// SetSpeed records the requested bus clock.
func (d *Device) SetSpeed(hz uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.speed = hz
	return nil
}

// Speed returns the last bus clock requested.
func (d *Device) Speed() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speed
}

func (d *Device) ReadByteFromReg(addr, reg byte) (byte, error) {
	b := make([]byte, 1)
	if err := d.ReadFromReg(addr, reg, b); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Device) ReadFromReg(addr, reg byte, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(false, addr, reg); err != nil {
		return err
	}
	if addr == d.Address {
		r := reg
		for i := range value {
			value[i] = d.readMPU(r)
			if r != regMemRW && r != regFifoRW {
				r++
			}
		}
		return nil
	}
	for i := range value {
		value[i] = d.readAK(reg + byte(i))
	}
	return nil
}

func (d *Device) WriteByteToReg(addr, reg, value byte) error {
	return d.WriteToReg(addr, reg, []byte{value})
}

func (d *Device) WriteToReg(addr, reg byte, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(true, addr, reg); err != nil {
		return err
	}
	d.writes = append(d.writes, Write{Addr: addr, Reg: reg, Data: append([]byte(nil), value...)})
	if addr == d.Address {
		r := reg
		for _, v := range value {
			d.writeMPU(r, v)
			if r != regMemRW && r != regFifoRW {
				r++
			}
		}
		return nil
	}
	for i, v := range value {
		d.writeAK(reg+byte(i), v)
	}
	return nil
}

func (d *Device) check(write bool, addr, reg byte) error {
	if d.Fail != nil {
		if err := d.Fail(write, addr, reg); err != nil {
			return err
		}
	}
	if addr == d.Address {
		return nil
	}
	if addr == CompassAddress && d.regs[regIntPinCfg]&bitBypassEn != 0 {
		return nil
	}
	return fmt.Errorf("sim: no device acknowledged address %#02x", addr)
}

func (d *Device) memAddr() int {
	return int(d.regs[regBankSel])<<8 | int(d.regs[regMemStartAddr])
}

func (d *Device) readMPU(r byte) byte {
	switch {
	case r == regMemRW:
		a := d.memAddr()
		d.regs[regMemStartAddr]++
		if a >= memSize {
			return 0
		}
		return d.mem[a]
	case r == regFifoRW:
		if len(d.fifo) == 0 {
			return 0
		}
		b := d.fifo[0]
		d.fifo = d.fifo[1:]
		return b
	case r == regFifoCountH:
		return byte(len(d.fifo) >> 8)
	case r == regFifoCountL:
		return byte(len(d.fifo))
	case r == regIntStatus:
		v := d.regs[regIntStatus] | bitRawRdy
		d.regs[regIntStatus] &^= bitOverflow
		return v
	case r >= regSelfTestXGyro && r < regSelfTestXGyro+3:
		return d.FactoryTrim[r-regSelfTestXGyro]
	case r >= regSelfTestXAccel && r < regSelfTestXAccel+3:
		return d.FactoryTrim[3+r-regSelfTestXAccel]
	case r >= regAccelXoutH && r < regTempOutH:
		v := d.accel
		if d.regs[regAccelConfig]&bitsST == bitsST {
			for i := range v {
				v[i] += d.AccelSelfTest[i]
			}
		}
		return be(v[:], int(r-regAccelXoutH))
	case r == regTempOutH || r == regTempOutH+1:
		return be([]int16{d.temp}, int(r-regTempOutH))
	case r >= regGyroXoutH && r < regGyroXoutH+6:
		v := d.gyro
		if d.regs[regGyroConfig]&bitsST == bitsST {
			for i := range v {
				v[i] += d.GyroSelfTest[i]
			}
		}
		return be(v[:], int(r-regGyroXoutH))
	case r >= regExtSensData00 && r < regExtSensData00+8:
		// Slave 0 mirrors AK8963 ST1..ST2.
		return d.ak[akST1+r-regExtSensData00]
	}
	return d.regs[r&0x7F]
}

func (d *Device) writeMPU(r, v byte) {
	switch r {
	case regPwrMgmt1:
		if v&bitHReset != 0 {
			d.reset()
			return
		}
	case regUserCtrl:
		if v&bitFifoRst != 0 {
			d.fifo = d.fifo[:0]
			d.regs[regIntStatus] &^= bitOverflow
		}
		v &^= bitFifoRst | bitDmpRst
	case regMemRW:
		if a := d.memAddr(); a < memSize {
			d.mem[a] = v
		}
		d.regs[regMemStartAddr]++
		return
	case regFifoRW, regIntStatus, regWhoAmI:
		return
	}
	d.regs[r&0x7F] = v
}

func (d *Device) readAK(r byte) byte {
	switch {
	case r >= akASAX && r < akASAX+3:
		if d.ak[akCNTL1]&akModeMask == akFuseROM {
			return d.CompassAdjust[r-akASAX]
		}
		return 0
	case r == akST2:
		d.ak[akST1] &^= akDataReady | akOverrun
	case r >= akRegs:
		return 0
	}
	return d.ak[r]
}

func (d *Device) writeAK(r, v byte) {
	if r >= akRegs || r == akWIA || r == akST1 {
		return
	}
	d.ak[r] = v
	if r == akCNTL1 {
		switch v & akModeMask {
		case akSingle:
			d.measureCompass(d.mag)
		case akSelfTest:
			if d.ak[akASTC]&akBitSTField != 0 {
				d.measureCompass(d.CompassSelfTest)
			}
		}
	}
}

// Overrun flags the latched compass reading as overrun until ST2 is next read.
func (d *Device) Overrun() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ak[akST1] |= akOverrun
}

// measureCompass latches a reading into the AK8963 data registers and returns it to power down.
func (d *Device) measureCompass(m [3]int16) {
	for i, v := range m {
		d.ak[akHXL+2*i] = byte(v)
		d.ak[akHXL+2*i+1] = byte(uint16(v) >> 8)
	}
	d.ak[akST1] |= akDataReady
	d.ak[akST2] = akBitM
	d.ak[akCNTL1] &^= akModeMask
}

func be(v []int16, i int) byte {
	u := uint16(v[i/2])
	if i%2 == 0 {
		return byte(u >> 8)
	}
	return byte(u)
}

// sample computes the sensor registers from the situation at the current time.
func (d *Device) sample() {
	accelSens := 16384.0 / float64(int(1)<<(d.regs[regAccelConfig]>>3&3))
	gyroSens := 131.0 / float64(int(1)<<(d.regs[regGyroConfig]>>3&3))

	d.temp = -3210 // 25C
	if !d.fixedRaw {
		a := d.situation.Gravity(d.t)
		g := d.situation.Rates(d.t)
		m := d.situation.Field(d.t)
		for i := 0; i < 3; i++ {
			d.accel[i] = clamp16(a[i] * accelSens)
			d.gyro[i] = clamp16(g[i] * gyroSens)
			d.mag[i] = clamp16(m[i] / 0.15)
		}
	}
	if !d.fixedQuat {
		q := d.situation.Attitude(d.t)
		d.quat = [4]int32{q30(q.W), q30(q.X), q30(q.Y), q30(q.Z)}
	}
}

func clamp16(f float64) int16 {
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(f))))
}

func q30(f float64) int32 {
	return int32(math.Round(f * (1 << 30)))
}

// Step advances the situation by dt seconds and queues one packet if the FIFO is running.
// With the I2C master running, the AK8963 is also measured.
func (d *Device) Step(dt float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.t += dt
	d.sample()
	if d.regs[regUserCtrl]&bitAuxIfEn != 0 {
		d.measureCompass(d.mag)
	}
	if d.regs[regUserCtrl]&bitFifoEn == 0 {
		return
	}
	d.push(d.packet())
	d.gesture = [4]byte{}
}

func (d *Device) packet() []byte {
	var p []byte
	put16 := func(v int16) { p = append(p, byte(uint16(v)>>8), byte(v)) }

	if d.regs[regUserCtrl]&bitDmpEn != 0 {
		if d.mem[cfgLPQuat] == 0xC0 || d.mem[cfg8] == 0x20 {
			for _, c := range d.quat {
				p = append(p, byte(c>>24), byte(c>>16), byte(c>>8), byte(c))
			}
		}
		if d.mem[cfg15+1] == 0xC0 {
			for _, v := range d.accel {
				put16(v)
			}
		}
		if d.mem[cfg15+4] == 0xC4 {
			for _, v := range d.gyro {
				put16(v)
			}
		}
		if d.mem[cfg27] == 0x20 {
			p = append(p, d.gesture[:]...)
		}
		return p
	}

	en := d.regs[regFifoEn]
	if en&fifoEnAccel != 0 {
		for _, v := range d.accel {
			put16(v)
		}
	}
	for i, bit := range []byte{fifoEnXGyro, fifoEnYGyro, fifoEnZGyro} {
		if en&bit != 0 {
			put16(d.gyro[i])
		}
	}
	return p
}

// push appends raw bytes to the FIFO. Past 1024 bytes the oldest are lost and the
// overflow flag is raised.
func (d *Device) push(b []byte) {
	d.fifo = append(d.fifo, b...)
	if n := len(d.fifo); n > maxFifo {
		d.fifo = append(d.fifo[:0], d.fifo[n-maxFifo:]...)
		d.regs[regIntStatus] |= bitOverflow
	}
}

// Push queues raw bytes in the FIFO as if the device had written them.
func (d *Device) Push(b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.push(b)
}

// Tap makes the next DMP packet report a tap.
func (d *Device) Tap(direction, count byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gesture[1] |= intSrcTap
	d.gesture[3] = d.gesture[3]&0xC0 | direction<<3 | (count-1)&7
}

// Orient makes the next DMP packet report an orientation change.
func (d *Device) Orient(orientation byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gesture[1] |= intSrcOrient
	d.gesture[3] = d.gesture[3]&0x3F | orientation<<6
}

// SetQuaternion pins the attitude reported by the DMP, ignoring the situation.
func (d *Device) SetQuaternion(q quaternion.Quaternion) {
	d.SetRawQuaternion([4]int32{q30(q.W), q30(q.X), q30(q.Y), q30(q.Z)})
}

// SetRawQuaternion pins the q30 words the DMP reports, valid or not.
func (d *Device) SetRawQuaternion(q [4]int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quat = q
	d.fixedQuat = true
}

// SetRaw pins the accel, gyro and magnetometer readings, ignoring the situation.
func (d *Device) SetRaw(accel, gyro, mag [3]int16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accel, d.gyro, d.mag = accel, gyro, mag
	d.fixedRaw = true
}

// Register returns the stored value of an MPU9250 register.
func (d *Device) Register(r byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[r&0x7F]
}

// Memory returns n bytes of DMP memory from addr.
func (d *Device) Memory(addr, n int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.mem[addr:addr+n]...)
}

// FifoLen returns the number of bytes queued in the FIFO.
func (d *Device) FifoLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fifo)
}

// Writes returns the writes seen since the last ClearWrites.
func (d *Device) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Write(nil), d.writes...)
}

// ClearWrites forgets the recorded writes.
func (d *Device) ClearWrites() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = d.writes[:0]
}
