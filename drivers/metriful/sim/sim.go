// Package sim emulates an MS430 on a host for tests and the -simulate tool
// mode. A Device answers the register protocol over Tx and drives the READY
// line from its clock, so a fake clock makes every wait deterministic.
package sim

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"metriful-go/drivers/metriful"
	"metriful-go/x/mathx"
	"metriful-go/x/timex"
)

// Compile-time checks.
var (
	_ drivers.I2C  = (*Device)(nil)
	_ metriful.Pin = (*Device)(nil)
)

// ErrNack is returned for a transfer to the wrong address.
var ErrNack = errors.New("sim: address not acknowledged")

// ResetTime is how long READY stays deasserted after a reset command.
const ResetTime = 12 * time.Millisecond

// Values are the measurements the emulated device reports.
type Values struct {
	Temperature   float64 // °C
	Pressure      uint32  // Pa
	Humidity      float64 // %RH
	GasResistance uint32  // Ω

	AQI         float64
	CO2e        float64
	BVOC        float64
	AQIAccuracy uint8

	Illuminance float64
	WhiteLevel  uint16

	SoundLevel    float64
	Bands         [metriful.SoundBands]float64
	PeakAmplitude float64
	SoundStable   uint8

	DutyCycle     float64
	Concentration float64
	ParticleValid uint8
}

// DefaultValues is a plausible indoor snapshot.
func DefaultValues() Values {
	return Values{
		Temperature: 21.5, Pressure: 101325, Humidity: 45.2, GasResistance: 123456,
		AQI: 25.3, CO2e: 512.4, BVOC: 0.6, AQIAccuracy: 3,
		Illuminance: 120.5, WhiteLevel: 750,
		SoundLevel: 42.5, Bands: [metriful.SoundBands]float64{40.1, 38.2, 35.3, 33.4, 30.5, 28.6},
		PeakAmplitude: 12.3, SoundStable: 1,
		DutyCycle: 1.5, Concentration: 310.2, ParticleValid: 1,
	}
}

// Op is one recorded bus transfer.
type Op struct {
	At    time.Time
	W     []byte
	N     int  // bytes read
	Ready bool // READY was asserted when the transfer began
}

// Device is an emulated MS430. It is safe for concurrent use.
type Device struct {
	mu    sync.Mutex
	clock timex.Clock
	addr  uint16

	vals Values
	regs map[byte][]byte // settings and raw overrides

	cycle      bool
	cycleStart time.Time
	busyUntil  time.Time

	measurements int
	lightCleared int
	soundCleared int
	closed       int

	ops     []Op
	failTx  error
	failPin error
}

// New returns a Device in Standby at the default address, ready at once.
func New(clock timex.Clock) *Device {
	if clock == nil {
		clock = timex.System
	}
	d := &Device{clock: clock, addr: metriful.AddressDefault, vals: DefaultValues()}
	d.resetSettings()
	return d
}

func (d *Device) resetSettings() {
	particle := d.regs[0x07]
	d.regs = map[byte][]byte{
		0x81: {0}, 0x82: {0, 0, 0}, 0x83: {0}, 0x84: {0},
		0x85: {0, 0}, 0x86: {0}, 0x87: {0},
		0x89: {0},
	}
	if particle == nil {
		particle = []byte{0}
	}
	d.regs[0x07] = particle
	d.cycle = false
}

// SetAddress changes the address the device acknowledges.
func (d *Device) SetAddress(a uint16) {
	d.mu.Lock()
	d.addr = a
	d.mu.Unlock()
}

// Update edits the reported values.
func (d *Device) Update(f func(v *Values)) {
	d.mu.Lock()
	f(&d.vals)
	d.mu.Unlock()
}

// SetParticleSensor sets register 0x07 (0 disabled, 1 PPD42, 2 SDS011).
func (d *Device) SetParticleSensor(v byte) { d.SetRegister(0x07, v) }

// SetLightInterrupt enables the light interrupt with the given settings.
func (d *Device) SetLightInterrupt(comparator, negative bool, threshold float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[0x81] = []byte{1}
	d.regs[0x82] = fixed16(threshold)
	d.regs[0x83] = []byte{b2u(comparator)}
	d.regs[0x84] = []byte{b2u(negative)}
}

// SetSoundInterrupt enables the sound interrupt with a threshold in mPa.
func (d *Device) SetSoundInterrupt(comparator bool, threshold uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[0x86] = []byte{1}
	d.regs[0x85] = le16(threshold)
	d.regs[0x87] = []byte{b2u(comparator)}
}

// SetRegister overrides what a read of reg returns, e.g. to present a
// corrupt enumerant.
func (d *Device) SetRegister(reg byte, b ...byte) {
	d.mu.Lock()
	d.regs[reg] = append([]byte(nil), b...)
	d.mu.Unlock()
}

// FailNextTx makes the next transfer fail with err.
func (d *Device) FailNextTx(err error) {
	d.mu.Lock()
	d.failTx = err
	d.mu.Unlock()
}

// FailPin makes every READY read fail with err until called with nil.
func (d *Device) FailPin(err error) {
	d.mu.Lock()
	d.failPin = err
	d.mu.Unlock()
}

// Get reports the READY line level: low when ready.
func (d *Device) Get() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failPin != nil {
		return false, d.failPin
	}
	return !d.readyLocked(d.clock.Now()), nil
}

// Ready reports whether READY is asserted.
func (d *Device) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readyLocked(d.clock.Now())
}

func (d *Device) readyLocked(now time.Time) bool {
	if now.Before(d.busyUntil) {
		return false
	}
	if !d.cycle {
		return true
	}
	p := d.period()
	phase := now.Sub(d.cycleStart) % p.Duration()
	return phase >= metriful.Cycle(p).ReadyLatency()
}

func (d *Device) period() metriful.CyclePeriod {
	p, err := metriful.CyclePeriodFromValue(d.regs[0x89][0])
	if err != nil {
		return metriful.Period3s
	}
	return p
}

// Close records that the owner released the bus.
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed++
	d.mu.Unlock()
	return nil
}

// Tx implements drivers.I2C.
func (d *Device) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	d.ops = append(d.ops, Op{At: now, W: append([]byte(nil), w...), N: len(r), Ready: d.readyLocked(now)})

	if err := d.failTx; err != nil {
		d.failTx = nil
		return err
	}
	if addr != d.addr {
		return ErrNack
	}
	switch {
	case len(w) == 1 && len(r) == 0:
		d.command(now, w[0])
	case len(w) == 2 && len(r) == 0:
		d.regs[w[0]] = []byte{w[1]}
	case len(w) == 1 && len(r) > 0:
		clear(r)
		copy(r, d.read(w[0], len(r)))
	default:
		return fmt.Errorf("sim: unsupported transfer w=%d r=%d", len(w), len(r))
	}
	return nil
}

func (d *Device) command(now time.Time, cmd byte) {
	switch cmd {
	case 0xE1:
		if !d.cycle {
			d.measurements++
			d.busyUntil = now.Add(metriful.Acquisition)
		}
	case 0xE2:
		d.resetSettings()
		d.busyUntil = now.Add(ResetTime)
	case 0xE4:
		d.cycle = true
		d.cycleStart = now
	case 0xE5:
		d.cycle = false
		d.busyUntil = now.Add(metriful.Standby.ReadyLatency())
	case 0xE6:
		d.lightCleared++
	case 0xE7:
		d.soundCleared++
	}
}

// read returns the bytes at reg. 0x86 is both the sound interrupt enable
// (1 byte) and its threshold (2 bytes), told apart by the read length.
func (d *Device) read(reg byte, n int) []byte {
	if reg == 0x86 && n == 2 {
		return d.regs[0x85]
	}
	if b, ok := d.regs[reg]; ok {
		return b
	}
	switch reg {
	case 0x8A:
		return []byte{b2u(d.cycle)}
	case 0x10:
		return d.air()
	case 0x11:
		return d.airQuality()
	case 0x12:
		return d.light()
	case 0x13:
		return d.sound()
	case 0x14:
		return d.particle()
	}
	return d.single(reg)
}

func (d *Device) air() []byte {
	v := d.vals
	return join(signedFixed8(v.Temperature), le32(v.Pressure), fixed8(v.Humidity), le32(v.GasResistance))
}

func (d *Device) airQuality() []byte {
	v := d.vals
	return join(fixed16(v.AQI), fixed16(v.CO2e), fixed16(v.BVOC), []byte{v.AQIAccuracy})
}

func (d *Device) light() []byte {
	return join(fixed16(d.vals.Illuminance), le16(d.vals.WhiteLevel))
}

func (d *Device) bands() []byte {
	b := make([]byte, 2*metriful.SoundBands)
	for i, v := range d.vals.Bands {
		f := fixed8(v)
		b[i], b[metriful.SoundBands+i] = f[0], f[1]
	}
	return b
}

func (d *Device) sound() []byte {
	v := d.vals
	return join(fixed8(v.SoundLevel), d.bands(), fixed16(v.PeakAmplitude), []byte{v.SoundStable})
}

func (d *Device) particle() []byte {
	v := d.vals
	return join(fixed8(v.DutyCycle), fixed16(v.Concentration), []byte{v.ParticleValid})
}

func (d *Device) single(reg byte) []byte {
	v := d.vals
	switch reg {
	case 0x21:
		return signedFixed8(v.Temperature)
	case 0x22:
		return le32(v.Pressure)
	case 0x23:
		return fixed8(v.Humidity)
	case 0x24:
		return le32(v.GasResistance)
	case 0x25:
		return fixed16(v.AQI)
	case 0x26:
		return fixed16(v.CO2e)
	case 0x27:
		return fixed16(v.BVOC)
	case 0x28:
		return []byte{v.AQIAccuracy}
	case 0x31:
		return fixed16(v.Illuminance)
	case 0x32:
		return le16(v.WhiteLevel)
	case 0x41:
		return fixed8(v.SoundLevel)
	case 0x42:
		return d.bands()
	case 0x43:
		return fixed16(v.PeakAmplitude)
	case 0x44:
		return []byte{v.SoundStable}
	case 0x51:
		return fixed8(v.DutyCycle)
	case 0x52:
		return fixed16(v.Concentration)
	case 0x53:
		return []byte{v.ParticleValid}
	}
	return nil
}

// ---------------- Inspection ----------------

// Ops returns a copy of the transfer log.
func (d *Device) Ops() []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Op(nil), d.ops...)
}

// Commands returns the command bytes issued, in order.
func (d *Device) Commands() []byte {
	var out []byte
	for _, op := range d.Ops() {
		if len(op.W) == 1 && op.N == 0 {
			out = append(out, op.W[0])
		}
	}
	return out
}

// Writes returns the register writes issued, in order.
func (d *Device) Writes() [][2]byte {
	var out [][2]byte
	for _, op := range d.Ops() {
		if len(op.W) == 2 {
			out = append(out, [2]byte{op.W[0], op.W[1]})
		}
	}
	return out
}

// ClearOps empties the transfer log.
func (d *Device) ClearOps() {
	d.mu.Lock()
	d.ops = nil
	d.mu.Unlock()
}

// Measurements counts accepted on-demand measurement commands.
func (d *Device) Measurements() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.measurements
}

// Closed counts Close calls.
func (d *Device) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// InterruptClears returns how many light and sound interrupt clears were issued.
func (d *Device) InterruptClears() (light, sound int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lightCleared, d.soundCleared
}

// ---------------- Encoding ----------------

// tenths returns |v| in tenths, saturated at limit.
func tenths(v float64, limit uint32) uint32 {
	return uint32(math.Round(mathx.Clamp(math.Abs(v)*10, 0, float64(limit))))
}

func fixed8(v float64) []byte {
	n := tenths(v, 255*10+9)
	return []byte{byte(n / 10), byte(n % 10)}
}

// signedFixed8 puts the sign in the MSB of the integer byte.
func signedFixed8(v float64) []byte {
	n := tenths(v, 127*10+9)
	b := []byte{byte(n / 10), byte(n % 10)}
	if v < 0 {
		b[0] |= 0x80
	}
	return b
}

func fixed16(v float64) []byte {
	n := tenths(v, 65535*10+9)
	return append(le16(uint16(n/10)), byte(n%10))
}

func le16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }

func le32(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }

func join(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func b2u(b bool) byte {
	if b {
		return 1
	}
	return 0
}
