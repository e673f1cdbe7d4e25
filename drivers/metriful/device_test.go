package metriful_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metriful-go/drivers/metriful"
	"metriful-go/drivers/metriful/sim"
	"metriful-go/errcode"
	"metriful-go/x/timex"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newSession(t *testing.T) (*metriful.Session, *sim.Device, *timex.Fake) {
	t.Helper()
	clk := timex.NewFake(epoch)
	dev := sim.New(clk)
	s := metriful.New(dev, dev, metriful.Config{Clock: clk})
	t.Cleanup(func() { _ = s.Close() })
	return s, dev, clk
}

func TestReadStatusDefaults(t *testing.T) {
	s, _, _ := newSession(t)

	_, ok := s.Status()
	assert.False(t, ok)

	st, err := s.ReadStatus()
	require.NoError(t, err)
	assert.Equal(t, metriful.Standby, st.Mode)
	assert.Equal(t, metriful.ParticleSensorDisabled, st.ParticleSensor)
	assert.Nil(t, st.LightInterrupt)
	assert.Nil(t, st.SoundInterrupt)

	cached, ok := s.Status()
	require.True(t, ok)
	assert.Equal(t, st, cached)
}

func TestReadStatusInterrupts(t *testing.T) {
	s, dev, _ := newSession(t)
	dev.SetParticleSensor(2)
	dev.SetLightInterrupt(true, true, 100.5)
	dev.SetSoundInterrupt(false, 300)

	st, err := s.ReadStatus()
	require.NoError(t, err)
	assert.Equal(t, metriful.ParticleSensorSDS011, st.ParticleSensor)
	require.NotNil(t, st.LightInterrupt)
	assert.Equal(t, metriful.LightInterrupt{
		Mode: metriful.InterruptComparator, Polarity: metriful.PolarityNegative, Threshold: 100.5,
	}, *st.LightInterrupt)
	require.NotNil(t, st.SoundInterrupt)
	assert.Equal(t, metriful.SoundInterrupt{Mode: metriful.InterruptLatch, Threshold: 300}, *st.SoundInterrupt)
}

func TestReadStatusRejectsCorruptBytes(t *testing.T) {
	s, dev, _ := newSession(t)
	dev.SetRegister(0x07, 5)
	_, err := s.ReadStatus()
	var de *metriful.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, metriful.FieldParticleSensorMode, de.Field)
	assert.Equal(t, byte(5), de.Value)

	dev.SetRegister(0x07, 0)
	dev.SetRegister(0x8A, 1)
	dev.SetRegister(0x89, 9)
	_, err = s.ReadStatus()
	require.ErrorAs(t, err, &de)
	assert.Equal(t, metriful.FieldCyclePeriod, de.Field)

	dev.SetRegister(0x8A, 4)
	_, err = s.ReadStatus()
	require.ErrorAs(t, err, &de)
	assert.Equal(t, metriful.FieldOperationalMode, de.Field)
}

func TestSetModeSameModeIssuesNothing(t *testing.T) {
	s, dev, _ := newSession(t)

	st, err := s.SetMode(context.Background(), metriful.Standby, 0)
	require.NoError(t, err)
	assert.Equal(t, metriful.Standby, st.Mode)
	assert.Empty(t, dev.Commands())
	assert.Empty(t, dev.Writes())
}

func TestSetModeIntoCycle(t *testing.T) {
	s, dev, clk := newSession(t)

	start := clk.Now()
	st, err := s.SetMode(context.Background(), metriful.Cycle(metriful.Period3s), 0)
	require.NoError(t, err)
	assert.Equal(t, metriful.Cycle(metriful.Period3s), st.Mode)
	assert.Equal(t, []byte{0xE4}, dev.Commands())
	assert.Equal(t, [][2]byte{{0x89, 0}}, dev.Writes())
	assert.GreaterOrEqual(t, clk.Now().Sub(start), 600*time.Millisecond)

	// Already there.
	dev.ClearOps()
	_, err = s.SetMode(context.Background(), metriful.Cycle(metriful.Period3s), 0)
	require.NoError(t, err)
	assert.Empty(t, dev.Commands())
}

func TestSetModeBetweenCyclesPassesThroughStandby(t *testing.T) {
	s, dev, _ := newSession(t)
	ctx := context.Background()

	_, err := s.SetMode(ctx, metriful.Cycle(metriful.Period3s), 0)
	require.NoError(t, err)
	dev.ClearOps()

	st, err := s.SetMode(ctx, metriful.Cycle(metriful.Period100s), 0)
	require.NoError(t, err)
	assert.Equal(t, metriful.Cycle(metriful.Period100s), st.Mode)
	assert.Equal(t, []byte{0xE5, 0xE4}, dev.Commands())

	// The period write lands after standby and before the cycle command.
	var seq []byte
	for _, op := range dev.Ops() {
		switch {
		case len(op.W) == 2:
			seq = append(seq, op.W[0])
		case len(op.W) == 1 && op.N == 0:
			seq = append(seq, op.W[0])
		}
	}
	assert.Equal(t, []byte{0xE5, 0x89, 0xE4}, seq)
	assert.Equal(t, [][2]byte{{0x89, 1}}, dev.Writes())
}

func TestCommandsOnlyIssuedWhileReady(t *testing.T) {
	s, dev, _ := newSession(t)
	ctx := context.Background()

	_, err := s.SetMode(ctx, metriful.Cycle(metriful.Period100s), 0)
	require.NoError(t, err)
	_, err = s.SetMode(ctx, metriful.Cycle(metriful.Period3s), 0)
	require.NoError(t, err)
	_, err = s.SetMode(ctx, metriful.Standby, 0)
	require.NoError(t, err)

	for _, op := range dev.Ops() {
		assert.True(t, op.Ready, "transfer %X issued while busy", op.W)
	}
}

func TestExecuteMeasurementNeedsStatus(t *testing.T) {
	s, dev, _ := newSession(t)
	err := s.ExecuteMeasurement()
	assert.ErrorIs(t, err, metriful.ErrStatusMissing)
	assert.Zero(t, dev.Measurements())
}

func TestExecuteMeasurementNeedsStandby(t *testing.T) {
	s, dev, _ := newSession(t)
	_, err := s.SetMode(context.Background(), metriful.Cycle(metriful.Period3s), 0)
	require.NoError(t, err)

	err = s.ExecuteMeasurement()
	var me *metriful.InvalidModeError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, metriful.Cycle(metriful.Period3s), me.Current)
	assert.Equal(t, metriful.Standby, me.Required)
	assert.ErrorIs(t, err, errcode.InvalidMode)
	assert.Zero(t, dev.Measurements())
}

func TestReadWhileBusyIsNotReady(t *testing.T) {
	s, _, _ := newSession(t)
	_, err := s.ReadStatus()
	require.NoError(t, err)
	require.NoError(t, s.ExecuteMeasurement())

	_, err = metriful.Read(s, metriful.Temperature)
	assert.ErrorIs(t, err, metriful.ErrNotReady)

	require.NoError(t, s.WaitForReady(context.Background(), 0))
	v, err := metriful.Read(s, metriful.Temperature)
	require.NoError(t, err)
	assert.Equal(t, 21.5, v.Value)
}

func TestWaitForReadyTimeout(t *testing.T) {
	s, _, clk := newSession(t)
	_, err := s.ReadStatus()
	require.NoError(t, err)
	require.NoError(t, s.ExecuteMeasurement())

	start := clk.Now()
	err = s.WaitForReady(context.Background(), 100*time.Millisecond)
	assert.ErrorIs(t, err, metriful.ErrReadyTimeout)
	elapsed := clk.Now().Sub(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestWaitForReadyReturnsAtOnceWhenReady(t *testing.T) {
	s, _, clk := newSession(t)
	require.NoError(t, s.WaitForReady(context.Background(), time.Millisecond))
	assert.Zero(t, clk.Slept())
}

func TestWaitForReadyHonoursContext(t *testing.T) {
	s, _, _ := newSession(t)
	_, err := s.ReadStatus()
	require.NoError(t, err)
	require.NoError(t, s.ExecuteMeasurement())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.WaitForReady(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReset(t *testing.T) {
	s, dev, _ := newSession(t)
	_, err := s.SetMode(context.Background(), metriful.Cycle(metriful.Period3s), 0)
	require.NoError(t, err)
	dev.ClearOps()

	st, err := s.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metriful.Standby, st.Mode)
	assert.Equal(t, []byte{0xE2}, dev.Commands())
}

func TestReadCombined(t *testing.T) {
	s, _, clk := newSession(t)
	_, err := s.ReadStatus()
	require.NoError(t, err)

	v, err := metriful.Read(s, metriful.CombinedAll)
	require.NoError(t, err)
	assert.Equal(t, clk.Now(), v.Time)
	assert.Equal(t, 21.5, v.Value.Air.Temperature)
	assert.Equal(t, uint32(101325), v.Value.Air.Pressure)
	assert.Equal(t, metriful.AQIHigh, v.Value.AirQuality.Accuracy)
	assert.Equal(t, uint16(750), v.Value.Light.WhiteLevel)
	assert.Equal(t, metriful.SoundStable, v.Value.Sound.Stability)
	assert.Equal(t, metriful.ParticleValid, v.Value.Particle.Validity)

	single, err := metriful.Read(s, metriful.Illuminance)
	require.NoError(t, err)
	assert.Equal(t, v.Value.Light.Illuminance, single.Value)
}

func TestReadSurfacesCorruptEnumerant(t *testing.T) {
	s, dev, _ := newSession(t)
	dev.Update(func(v *sim.Values) { v.AQIAccuracy = 9 })

	_, err := metriful.Read(s, metriful.CombinedAirQuality)
	var de *metriful.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, metriful.FieldAQIAccuracy, de.Field)
}

func TestTransportErrors(t *testing.T) {
	s, dev, _ := newSession(t)
	cause := errors.New("bus stuck")

	dev.FailNextTx(cause)
	_, err := metriful.Read(s, metriful.Pressure)
	assert.ErrorIs(t, err, errcode.Transport)
	assert.ErrorIs(t, err, cause)

	dev.FailPin(cause)
	_, err = s.IsReady()
	assert.ErrorIs(t, err, errcode.Transport)
	dev.FailPin(nil)

	dev.SetAddress(metriful.AddressAlternate)
	_, err = s.ReadStatus()
	assert.ErrorIs(t, err, sim.ErrNack)
}

func TestAlternateAddress(t *testing.T) {
	clk := timex.NewFake(epoch)
	dev := sim.New(clk)
	dev.SetAddress(metriful.AddressAlternate)
	s := metriful.New(dev, dev, metriful.Config{Address: metriful.AddressAlternate, Clock: clk})

	assert.Equal(t, uint16(0x70), s.Address())
	_, err := s.ReadStatus()
	assert.NoError(t, err)
}

func TestInterruptClear(t *testing.T) {
	s, dev, _ := newSession(t)
	require.NoError(t, s.ClearLightInterrupt())
	require.NoError(t, s.ClearSoundInterrupt())
	light, sound := dev.InterruptClears()
	assert.Equal(t, 1, light)
	assert.Equal(t, 1, sound)
}

func TestCommandsRefusedWhileBusy(t *testing.T) {
	tests := []struct {
		name string
		call func(s *metriful.Session) error
	}{
		{"reset", func(s *metriful.Session) error {
			_, err := s.Reset(context.Background())
			return err
		}},
		{"clear light interrupt", (*metriful.Session).ClearLightInterrupt},
		{"clear sound interrupt", (*metriful.Session).ClearSoundInterrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, dev, _ := newSession(t)
			_, err := s.ReadStatus()
			require.NoError(t, err)
			require.NoError(t, s.ExecuteMeasurement())
			dev.ClearOps()

			err = tt.call(s)
			assert.ErrorIs(t, err, metriful.ErrNotReady)
			assert.Empty(t, dev.Commands())
			light, sound := dev.InterruptClears()
			assert.Zero(t, light)
			assert.Zero(t, sound)

			_, ok := s.Status()
			assert.True(t, ok, "a refused command keeps the cached status")
		})
	}
}

func TestCloseReleasesBusOnce(t *testing.T) {
	clk := timex.NewFake(epoch)
	dev := sim.New(clk)
	s := metriful.New(dev, dev, metriful.Config{Clock: clk})

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, dev.Closed())

	_, err := s.ReadStatus()
	assert.ErrorIs(t, err, metriful.ErrClosed)
	_, err = s.IsReady()
	assert.ErrorIs(t, err, metriful.ErrClosed)
}
