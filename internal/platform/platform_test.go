package platform

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"metriful-go/drivers/metriful"
	"metriful-go/internal/config"
	"metriful-go/x/timex"
)

var discard = slog.New(slog.DiscardHandler)

func TestReadyPinIsActiveLow(t *testing.T) {
	p := &gpiotest.Pin{N: "GPIO11", L: gpio.Low}
	s := metriful.New(&i2ctest.Playback{DontPanic: true}, readyPin{p}, metriful.Config{})

	ready, err := s.IsReady()
	require.NoError(t, err)
	assert.True(t, ready)

	p.L = gpio.High
	ready, err = s.IsReady()
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestSessionOverPeriphBus(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x71, W: []byte{0x21}, R: []byte{0x80 | 4, 5}},
			{Addr: 0x71, W: []byte{0x22}, R: []byte{0xCD, 0x8B, 0x01, 0x00}},
		},
		DontPanic: true,
	}
	s := metriful.New(bus, readyPin{&gpiotest.Pin{N: "GPIO11", L: gpio.Low}}, metriful.Config{})

	temp, err := metriful.Read(s, metriful.Temperature)
	require.NoError(t, err)
	assert.Equal(t, -4.5, temp.Value)

	p, err := metriful.Read(s, metriful.Pressure)
	require.NoError(t, err)
	assert.Equal(t, uint32(101325), p.Value)

	// Close verifies the playback was fully consumed.
	assert.NoError(t, s.Close())
}

func TestSimulated(t *testing.T) {
	clk := timex.NewFake(time.Unix(0, 0))
	cfg := config.Default().Device

	s, dev, err := Simulated(context.Background(), cfg, clk, discard)
	require.NoError(t, err)
	st, err := s.ReadStatus()
	require.NoError(t, err)
	assert.Equal(t, metriful.Standby, st.Mode)

	require.NoError(t, s.Close())
	assert.Equal(t, 1, dev.Closed())
}

func TestSimulatedAlternateAddress(t *testing.T) {
	cfg := config.Default().Device
	cfg.Address = metriful.AddressAlternate

	s, _, err := Simulated(context.Background(), cfg, timex.NewFake(time.Unix(0, 0)), discard)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x70), s.Address())
	_, err = metriful.Read(s, metriful.Humidity)
	assert.NoError(t, err)
}
