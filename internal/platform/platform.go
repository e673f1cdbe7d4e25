// Package platform opens an MS430 on Linux through periph.io, or on the
// emulator for -simulate runs.
package platform

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"

	"metriful-go/drivers/metriful"
	"metriful-go/drivers/metriful/sim"
	"metriful-go/internal/config"
	"metriful-go/x/timex"
)

// periph.io's i2c.Bus already speaks the tinygo bus interface.
var (
	_ drivers.I2C  = i2c.BusCloser(nil)
	_ metriful.Pin = readyPin{}
)

// readyPin reads a periph input as the READY line.
type readyPin struct{ p gpio.PinIn }

func (r readyPin) Get() (bool, error) { return r.p.Read() == gpio.High, nil }

// Open initialises periph, opens cfg.Bus and the READY pin, and waits up to
// cfg.OpenTimeout for the device to become ready.
func Open(ctx context.Context, cfg config.DeviceConfig, log *slog.Logger) (*metriful.Session, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	b, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", cfg.Bus, err)
	}
	p := gpioreg.ByName(cfg.ReadyPin)
	if p == nil {
		b.Close()
		return nil, fmt.Errorf("ready pin %q not found", cfg.ReadyPin)
	}
	if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		b.Close()
		return nil, fmt.Errorf("configure ready pin %s: %w", p, err)
	}
	log.Debug("opened device", "bus", b.String(), "ready_pin", p.Name(), "addr", cfg.Address)

	s := metriful.New(b, readyPin{p}, metriful.Config{Address: cfg.Address, Logger: log})
	if err := awaitReady(ctx, s, cfg, log); err != nil {
		return nil, err
	}
	return s, nil
}

// Simulated returns a Session on an emulated device that runs on clock.
func Simulated(ctx context.Context, cfg config.DeviceConfig, clock timex.Clock, log *slog.Logger) (*metriful.Session, *sim.Device, error) {
	dev := sim.New(clock)
	dev.SetAddress(cfg.Address)
	s := metriful.New(dev, dev, metriful.Config{Address: cfg.Address, Clock: clock, Logger: log})
	if err := awaitReady(ctx, s, cfg, log); err != nil {
		return nil, nil, err
	}
	return s, dev, nil
}

func awaitReady(ctx context.Context, s *metriful.Session, cfg config.DeviceConfig, log *slog.Logger) error {
	ready, err := s.IsReady()
	if err != nil {
		s.Close()
		return err
	}
	if !ready {
		log.Warn("sensor is not ready, waiting", "timeout", cfg.OpenTimeout())
		if err := s.WaitForReady(ctx, cfg.OpenTimeout()); err != nil {
			s.Close()
			return err
		}
	}
	log.Info("sensor is ready")
	return nil
}
