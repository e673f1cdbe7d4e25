package metriful_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"metriful-go/drivers/metriful"
	"metriful-go/drivers/metriful/sim"
	"metriful-go/errcode"
	"metriful-go/x/timex"
)

// mockPin scripts the READY level one poll at a time.
type mockPin struct{ mock.Mock }

func (m *mockPin) Get() (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

func TestWaitForReadyPollsScriptedPin(t *testing.T) {
	clk := timex.NewFake(epoch)
	pin := new(mockPin)
	pin.On("Get").Return(true, nil).Times(3)
	pin.On("Get").Return(false, nil).Once()

	s := metriful.New(sim.New(clk), pin, metriful.Config{Clock: clk})
	require.NoError(t, s.WaitForReady(context.Background(), time.Second))

	pin.AssertExpectations(t)
	pin.AssertNumberOfCalls(t, "Get", 4)
	assert.Equal(t, 3*metriful.ReadyPollCadence, clk.Slept())
}

func TestWaitForNotReadyCustomCadence(t *testing.T) {
	clk := timex.NewFake(epoch)
	pin := new(mockPin)
	pin.On("Get").Return(false, nil).Twice()
	pin.On("Get").Return(true, nil).Once()

	s := metriful.New(sim.New(clk), pin, metriful.Config{Clock: clk, PollInterval: 25 * time.Millisecond})
	require.NoError(t, s.WaitForNotReady(context.Background(), 0))
	assert.Equal(t, 50*time.Millisecond, clk.Slept())
	pin.AssertExpectations(t)
}

func TestPinErrorIsTransport(t *testing.T) {
	clk := timex.NewFake(epoch)
	cause := errors.New("gpio: line released")
	pin := new(mockPin)
	pin.On("Get").Return(false, cause)

	s := metriful.New(sim.New(clk), pin, metriful.Config{Clock: clk})
	_, err := s.IsReady()
	assert.ErrorIs(t, err, errcode.Transport)
	assert.ErrorIs(t, err, cause)

	err = s.WaitForReady(context.Background(), time.Second)
	assert.ErrorIs(t, err, errcode.Transport)
	assert.Zero(t, clk.Slept())
}

func TestPinFunc(t *testing.T) {
	level := true
	s := metriful.New(sim.New(timex.NewFake(epoch)), metriful.PinFunc(func() bool { return level }), metriful.Config{})
	ready, err := s.IsReady()
	require.NoError(t, err)
	assert.False(t, ready)

	level = false
	ready, err = s.IsReady()
	require.NoError(t, err)
	assert.True(t, ready)
}
