// Package metriful provides a driver for the Metriful MS430 environment
// sensor (temperature, pressure, humidity, gas/air quality, light, sound and
// an optional external particle sensor).
//
// The MS430 signals with an active-low READY line when it will accept the
// next command or has finished a measurement. A Session owns the I2C bus and
// that line, tracks the last known DeviceStatus and sequences commands with
// the datasheet settle times:
//
//	s := metriful.New(bus, readyPin, metriful.Config{})
//	st, err := s.SetMode(ctx, metriful.Cycle(metriful.Period3s), 0)
//	v, err := metriful.Read(s, metriful.CombinedAir)
//
// A Session is not safe for concurrent use. Hand it to StartBackground to
// consume readings from another goroutine; the Session comes back from Join.
package metriful

import (
	"context"
	"io"
	"log/slog"
	"time"

	"tinygo.org/x/drivers"

	"metriful-go/errcode"
	"metriful-go/x/timex"
)

// Pin reads the electrical level of the READY line.
type Pin interface {
	Get() (level bool, err error)
}

// PinFunc adapts a plain level getter that cannot fail.
type PinFunc func() bool

func (f PinFunc) Get() (bool, error) { return f(), nil }

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x71 if zero.
	Address uint16
	// PollInterval is the READY poll cadence. Default 10 ms.
	PollInterval time.Duration
	// Clock defaults to the wall clock.
	Clock timex.Clock
	// Logger defaults to discarding.
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Address == 0 {
		c.Address = AddressDefault
	}
	if c.PollInterval <= 0 {
		c.PollInterval = ReadyPollCadence
	}
	if c.Clock == nil {
		c.Clock = timex.System
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Session is an exclusive connection to one MS430.
type Session struct {
	bus  drivers.I2C
	pin  Pin
	addr uint16

	cfg   Config
	clock timex.Clock
	log   *slog.Logger

	status *DeviceStatus // last known, nil until fetched
	state  error         // non-nil once closed or moved

	w   [2]byte
	buf [lenSoundData]byte // largest single transfer
}

// New creates a Session. The bus must already be configured. It does not
// touch the device.
func New(bus drivers.I2C, ready Pin, cfg Config) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		bus:   bus,
		pin:   ready,
		addr:  cfg.Address,
		cfg:   cfg,
		clock: cfg.Clock,
		log:   cfg.Logger.With("addr", cfg.Address),
	}
}

// Address returns the 7-bit device address.
func (s *Session) Address() uint16 { return s.addr }

// Close releases the bus if it implements io.Closer. It is safe to call
// more than once; a moved Session does not close the bus it handed over.
func (s *Session) Close() error {
	if s.state != nil {
		return nil
	}
	s.state = ErrClosed
	if c, ok := s.bus.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// move transfers the device to a new Session and leaves s unusable.
func (s *Session) move() *Session {
	n := *s
	s.bus, s.pin, s.status = nil, nil, nil
	s.state = ErrMoved
	return &n
}

func (s *Session) usable(op string) error {
	if s.state != nil {
		return &errcode.E{C: errcode.Of(s.state), Op: op}
	}
	return nil
}

// Status returns the cached last known status; ok is false before the
// first ReadStatus, Reset or SetMode.
func (s *Session) Status() (st DeviceStatus, ok bool) {
	if s.status == nil {
		return DeviceStatus{}, false
	}
	return *s.status, true
}

// IsReady reads the READY line. Low means commands may be issued.
func (s *Session) IsReady() (bool, error) {
	if err := s.usable("is ready"); err != nil {
		return false, err
	}
	level, err := s.pin.Get()
	if err != nil {
		return false, errcode.Wrap(errcode.Transport, "read ready line", err)
	}
	return !level, nil
}

// WaitForReady polls READY every PollInterval until it is asserted. A zero
// timeout waits indefinitely; ctx cancellation always ends the wait.
func (s *Session) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return s.waitFor(ctx, true, timeout)
}

// WaitForNotReady is the opposite of WaitForReady. In cycle mode it marks
// the start of the next measurement.
func (s *Session) WaitForNotReady(ctx context.Context, timeout time.Duration) error {
	return s.waitFor(ctx, false, timeout)
}

func (s *Session) waitFor(ctx context.Context, want bool, timeout time.Duration) error {
	start := s.clock.Now()
	for {
		ready, err := s.IsReady()
		if err != nil {
			return err
		}
		if ready == want {
			return nil
		}
		if timeout > 0 && s.clock.Now().Sub(start) >= timeout {
			return &errcode.E{C: errcode.ReadyTimeout, Op: waitOp(want), Msg: timeout.String()}
		}
		if err := ctx.Err(); err != nil {
			return &errcode.E{C: errcode.Error, Op: waitOp(want), Err: err}
		}
		s.clock.Sleep(s.cfg.PollInterval)
	}
}

func waitOp(ready bool) string {
	if ready {
		return "wait for ready"
	}
	return "wait for not ready"
}

func (s *Session) requireReady(op string) error {
	ready, err := s.IsReady()
	if err != nil {
		return err
	}
	if !ready {
		return &errcode.E{C: errcode.NotReady, Op: op}
	}
	return nil
}

// Reset issues a software reset, waits for READY and returns the fresh status.
func (s *Session) Reset(ctx context.Context) (DeviceStatus, error) {
	if err := s.requireReady("reset"); err != nil {
		return DeviceStatus{}, err
	}
	s.status = nil
	if err := s.command(cmdReset); err != nil {
		return DeviceStatus{}, err
	}
	if err := s.WaitForReady(ctx, 0); err != nil {
		return DeviceStatus{}, err
	}
	s.log.Debug("reset complete")
	return s.ReadStatus()
}

// ReadStatus reads and caches the device status. The device only answers
// coherently while ready; that is left to the caller.
func (s *Session) ReadStatus() (DeviceStatus, error) {
	if err := s.usable("read status"); err != nil {
		return DeviceStatus{}, err
	}
	st, err := s.readStatus()
	if err != nil {
		return DeviceStatus{}, err
	}
	s.status = &st
	return st, nil
}

// SetMode moves the device to target and returns the status read back
// afterwards. Switching between two cycle periods passes through Standby.
// Requesting the current mode issues no command. timeout bounds each READY
// wait; zero waits indefinitely.
func (s *Session) SetMode(ctx context.Context, target OperationalMode, timeout time.Duration) (DeviceStatus, error) {
	if err := s.WaitForReady(ctx, timeout); err != nil {
		return DeviceStatus{}, err
	}
	st, err := s.ReadStatus()
	if err != nil {
		return DeviceStatus{}, err
	}
	if st.Mode == target {
		return st, nil
	}

	start := s.clock.Now()
	if !target.CanSwitchFrom(st.Mode) {
		// Cycle(a) -> Cycle(b)
		if err := s.switchMode(Standby); err != nil {
			return DeviceStatus{}, err
		}
		if err := s.WaitForReady(ctx, timeout); err != nil {
			return DeviceStatus{}, err
		}
	}
	if err := s.switchMode(target); err != nil {
		return DeviceStatus{}, err
	}
	if err := s.WaitForReady(ctx, timeout); err != nil {
		return DeviceStatus{}, err
	}
	s.log.Debug("mode changed", "from", st.Mode.String(), "to", target.String(),
		"elapsed", s.clock.Now().Sub(start))
	return s.ReadStatus()
}

// switchMode issues the single command sequence for a legal transition and
// sleeps the mode's ready latency.
func (s *Session) switchMode(target OperationalMode) error {
	s.status = nil
	if p, ok := target.Period(); ok {
		if err := s.writeByte(regCyclePeriod, p.Value()); err != nil {
			return err
		}
		s.clock.Sleep(SettleTime)
		if err := s.tx(cmdCycleMode); err != nil {
			return err
		}
	} else if err := s.tx(cmdStandbyMode); err != nil {
		return err
	}
	s.clock.Sleep(target.ReadyLatency())
	return nil
}

// ExecuteMeasurement triggers one on-demand measurement. It needs a cached
// status in Standby and a ready device; READY drops until results are in.
func (s *Session) ExecuteMeasurement() error {
	if err := s.usable("execute measurement"); err != nil {
		return err
	}
	if s.status == nil {
		return &errcode.E{C: errcode.StatusMissing, Op: "execute measurement"}
	}
	if !s.status.Mode.IsStandby() {
		return &InvalidModeError{Current: s.status.Mode, Required: Standby}
	}
	if err := s.requireReady("execute measurement"); err != nil {
		return err
	}
	return s.command(cmdOnDemandMeasure)
}

// ClearLightInterrupt clears a latched light interrupt.
func (s *Session) ClearLightInterrupt() error {
	if err := s.requireReady("clear light interrupt"); err != nil {
		return err
	}
	return s.command(cmdClearLightInt)
}

// ClearSoundInterrupt clears a latched sound interrupt.
func (s *Session) ClearSoundInterrupt() error {
	if err := s.requireReady("clear sound interrupt"); err != nil {
		return err
	}
	return s.command(cmdClearSoundInt)
}

// ---------------- Low-level register access ----------------

// command sends a command byte and sleeps the settle time.
func (s *Session) command(cmd byte) error {
	if err := s.tx(cmd); err != nil {
		return err
	}
	s.clock.Sleep(SettleTime)
	return nil
}

func (s *Session) tx(cmd byte) error {
	s.w[0] = cmd
	if err := s.bus.Tx(s.addr, s.w[:1], nil); err != nil {
		return transportErr("command", cmd, err)
	}
	return nil
}

func (s *Session) writeByte(reg, v byte) error {
	s.w[0], s.w[1] = reg, v
	if err := s.bus.Tx(s.addr, s.w[:2], nil); err != nil {
		return transportErr("write", reg, err)
	}
	return nil
}

func (s *Session) readByte(reg byte) (byte, error) {
	b, err := s.readBlock(reg, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// readBlock reads n bytes at reg into the reuse buffer. The returned slice
// is only valid until the next transfer.
func (s *Session) readBlock(reg byte, n int) ([]byte, error) {
	s.w[0] = reg
	r := s.buf[:n]
	if err := s.bus.Tx(s.addr, s.w[:1], r); err != nil {
		return nil, transportErr("read", reg, err)
	}
	return r, nil
}
