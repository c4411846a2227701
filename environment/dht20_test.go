package environment

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/dht20"
)

// MockI2CBus is a mock implementation of dht20.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// recordingSleeper returns immediately and remembers what it was asked for
type recordingSleeper struct {
	slept   []time.Duration
	onSleep func(d time.Duration)
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	if s.onSleep != nil {
		s.onSleep(d)
	}
	return ctx.Err()
}

func bufLen(n int) interface{} {
	return mock.MatchedBy(func(b []byte) bool { return len(b) == n })
}

func frameOf(status byte, w0, w1, w2 uint16) Frame {
	var f Frame
	f[0] = status
	binary.BigEndian.PutUint16(f[1:3], w0)
	binary.BigEndian.PutUint16(f[3:5], w1)
	binary.BigEndian.PutUint16(f[5:7], w2)
	return f
}

func expectInit(bus *MockI2CBus, addr byte, status byte) {
	bus.On("WriteToAddr", mock.Anything, addr, []byte{0x71}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, addr, bufLen(1)).Return([]byte{status}, nil).Once()
}

func newTestDHT20(t *testing.T, bus *MockI2CBus, sleeper *recordingSleeper, opts ...DHT20Opt) *DHT20 {
	t.Helper()
	expectInit(bus, dht20DefaultAddress, 0x18)
	s, err := NewDHT20(context.Background(), bus, append([]DHT20Opt{WithSleeper(sleeper)}, opts...)...)
	require.NoError(t, err)
	return s
}

func TestDHT20_InitStatusBits(t *testing.T) {
	for status := 0; status <= 0xFF; status++ {
		bus := new(MockI2CBus)
		expectInit(bus, dht20DefaultAddress, byte(status))
		s, err := NewDHT20(context.Background(), bus)
		if byte(status)&0x18 == 0x18 {
			assert.NoError(t, err, "status 0x%02x", status)
			assert.NotNil(t, s)
		} else {
			assert.ErrorIs(t, err, ErrDeviceNotReady, "status 0x%02x", status)
			assert.Nil(t, s)
		}
		bus.AssertExpectations(t)
	}
}

func TestDHT20_Init(t *testing.T) {
	tests := []struct {
		name   string
		status byte
		err    error
	}{
		{"calibrated", 0x18, nil},
		{"calibrated and busy", 0x98, nil},
		{"not calibrated", 0x00, ErrDeviceNotReady},
		{"half calibrated", 0x08, ErrDeviceNotReady},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockI2CBus)
			expectInit(bus, dht20DefaultAddress, tt.status)
			_, err := NewDHT20(context.Background(), bus)
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
				var terr *TransportError
				assert.False(t, errors.As(err, &terr))
			}
			bus.AssertExpectations(t)
		})
	}
}

func TestDHT20_InitNotReadyReportsStatus(t *testing.T) {
	for status, expected := range map[byte]string{0x00: "status 0x00", 0x08: "status 0x08", 0x90: "status 0x90"} {
		bus := new(MockI2CBus)
		expectInit(bus, dht20DefaultAddress, status)
		_, err := NewDHT20(context.Background(), bus)
		assert.ErrorContains(t, err, expected)
	}
}

func TestDHT20_InitCustomAddress(t *testing.T) {
	bus := new(MockI2CBus)
	expectInit(bus, 0x39, 0x1C)
	s, err := NewDHT20(context.Background(), bus, WithAddress(0x39))
	require.NoError(t, err)
	assert.Equal(t, byte(0x39), s.Address())
	bus.AssertExpectations(t)
}

func TestDHT20_InitInvalidAddress(t *testing.T) {
	bus := new(MockI2CBus)
	_, err := NewDHT20(context.Background(), bus, WithAddress(0x80))
	assert.ErrorIs(t, err, ErrInvalidAddress)
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, mock.Anything, mock.Anything)
}

func TestDHT20_InitTransportError(t *testing.T) {
	busErr := fmt.Errorf("nack")

	t.Run("write", func(t *testing.T) {
		bus := new(MockI2CBus)
		bus.On("WriteToAddr", mock.Anything, byte(0x38), []byte{0x71}).Return(busErr).Once()
		_, err := NewDHT20(context.Background(), bus)
		var terr *TransportError
		require.True(t, errors.As(err, &terr))
		assert.Equal(t, "write", terr.Op)
		assert.Equal(t, byte(0x38), terr.Addr)
		assert.Equal(t, busErr, terr.Err)
		assert.NotErrorIs(t, err, ErrDeviceNotReady)
		bus.AssertExpectations(t)
	})

	t.Run("read", func(t *testing.T) {
		bus := new(MockI2CBus)
		bus.On("WriteToAddr", mock.Anything, byte(0x38), []byte{0x71}).Return(nil).Once()
		bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(1)).Return(nil, dht20.ErrBusBusy).Once()
		_, err := NewDHT20(context.Background(), bus)
		assert.ErrorIs(t, err, dht20.ErrBusBusy)
		var terr *TransportError
		require.True(t, errors.As(err, &terr))
		assert.Equal(t, "read", terr.Op)
		bus.AssertExpectations(t)
	})
}

func TestDHT20_MeasurePolling(t *testing.T) {
	bus := new(MockI2CBus)
	sleeper := &recordingSleeper{}
	s := newTestDHT20(t, bus, sleeper)

	frame := frameOf(0x18, 0x8000, 0x0800, 0x0000)
	bus.On("WriteToAddr", mock.Anything, byte(0x38), []byte{0xAC, 0x33, 0x00}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(1)).Return([]byte{0x80}, nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(1)).Return([]byte{0x80}, nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(1)).Return([]byte{0x00}, nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(7)).Return(frame[:], nil).Once()

	hum, temp, err := s.Measure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50.0, hum)
	assert.Equal(t, 50.0, temp)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 10 * time.Millisecond, 10 * time.Millisecond}, sleeper.slept)
	bus.AssertExpectations(t)
}

func TestDHT20_MeasureIdleAtFirstPoll(t *testing.T) {
	bus := new(MockI2CBus)
	sleeper := &recordingSleeper{}
	s := newTestDHT20(t, bus, sleeper)

	frame := frameOf(0x1C, 0x0000, 0x0000, 0x0000)
	bus.On("WriteToAddr", mock.Anything, byte(0x38), []byte{0xAC, 0x33, 0x00}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(1)).Return([]byte{0x1C}, nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(7)).Return(frame[:], nil).Once()

	temp, hum, err := s.GetTempAndHum(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, hum)
	assert.Equal(t, -50.0, temp)
	assert.Equal(t, []time.Duration{50 * time.Millisecond}, sleeper.slept)
	bus.AssertExpectations(t)
}

func TestDHT20_MeasureIsStateless(t *testing.T) {
	bus := new(MockI2CBus)
	sleeper := &recordingSleeper{}
	s := newTestDHT20(t, bus, sleeper)

	frames := []Frame{
		frameOf(0x18, 0x8000, 0x0800, 0x0000),
		frameOf(0x18, 0x4000, 0x0400, 0x0000),
		frameOf(0x18, 0x8000, 0x0800, 0x0000),
	}
	for _, f := range frames {
		bus.On("WriteToAddr", mock.Anything, byte(0x38), []byte{0xAC, 0x33, 0x00}).Return(nil).Once()
		bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(1)).Return([]byte{0x18}, nil).Once()
		bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(7)).Return(append([]byte(nil), f[:]...), nil).Once()
	}

	var readings []Reading
	for range frames {
		r, err := s.Sense(context.Background())
		require.NoError(t, err)
		readings = append(readings, r)
	}
	assert.Equal(t, Reading{Humidity: 50, Temperature: 50}, readings[0])
	assert.Equal(t, Reading{Humidity: 25, Temperature: 0}, readings[1])
	assert.Equal(t, readings[0], readings[2])
	bus.AssertExpectations(t)
}

func TestDHT20_MeasureTransportError(t *testing.T) {
	busErr := errors.New("bus gone")
	tests := []struct {
		name  string
		setup func(bus *MockI2CBus)
		op    string
	}{
		{
			name: "trigger",
			setup: func(bus *MockI2CBus) {
				bus.On("WriteToAddr", mock.Anything, byte(0x38), []byte{0xAC, 0x33, 0x00}).Return(busErr).Once()
			},
			op: "write",
		},
		{
			name: "status",
			setup: func(bus *MockI2CBus) {
				bus.On("WriteToAddr", mock.Anything, byte(0x38), []byte{0xAC, 0x33, 0x00}).Return(nil).Once()
				bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(1)).Return(nil, busErr).Once()
			},
			op: "read",
		},
		{
			name: "frame",
			setup: func(bus *MockI2CBus) {
				bus.On("WriteToAddr", mock.Anything, byte(0x38), []byte{0xAC, 0x33, 0x00}).Return(nil).Once()
				bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(1)).Return([]byte{0x18}, nil).Once()
				bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(7)).Return(nil, busErr).Once()
			},
			op: "read",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockI2CBus)
			s := newTestDHT20(t, bus, &recordingSleeper{})
			tt.setup(bus)
			_, _, err := s.Measure(context.Background())
			assert.ErrorIs(t, err, busErr)
			var terr *TransportError
			require.True(t, errors.As(err, &terr))
			assert.Equal(t, tt.op, terr.Op)
			bus.AssertExpectations(t)
		})
	}
}

func TestDHT20_MeasurePollLimit(t *testing.T) {
	bus := new(MockI2CBus)
	sleeper := &recordingSleeper{}
	s := newTestDHT20(t, bus, sleeper, WithPollLimit(3))

	bus.On("WriteToAddr", mock.Anything, byte(0x38), []byte{0xAC, 0x33, 0x00}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(1)).Return([]byte{0x98}, nil).Times(3)

	_, _, err := s.Measure(context.Background())
	assert.ErrorIs(t, err, ErrMeasurementTimeout)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 10 * time.Millisecond, 10 * time.Millisecond}, sleeper.slept)
	bus.AssertExpectations(t)
	bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, byte(0x38), bufLen(7))
}

func TestDHT20_MeasurePollTimeout(t *testing.T) {
	bus := new(MockI2CBus)
	now := time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)
	sleeper := &recordingSleeper{onSleep: func(d time.Duration) { now = now.Add(d) }}
	s := newTestDHT20(t, bus, sleeper, WithPollTimeout(25*time.Millisecond))
	s.now = func() time.Time { return now }

	bus.On("WriteToAddr", mock.Anything, byte(0x38), []byte{0xAC, 0x33, 0x00}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(1)).Return([]byte{0x80}, nil)

	_, _, err := s.Measure(context.Background())
	assert.ErrorIs(t, err, ErrMeasurementTimeout)
	// polls at 0, 10 and 20ms are busy, the one at 30ms is past the deadline
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 10 * time.Millisecond, 10 * time.Millisecond, 10 * time.Millisecond}, sleeper.slept)
	bus.AssertNumberOfCalls(t, "ReadFromAddr", 5)
}

func TestDHT20_MeasureCancelled(t *testing.T) {
	bus := new(MockI2CBus)
	sleeper := &recordingSleeper{}
	s := newTestDHT20(t, bus, sleeper)

	ctx, cancel := context.WithCancel(context.Background())
	bus.On("WriteToAddr", mock.Anything, byte(0x38), []byte{0xAC, 0x33, 0x00}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(1)).Return([]byte{0x80}, nil).Run(func(args mock.Arguments) {
		cancel()
	}).Once()

	_, _, err := s.Measure(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	bus.AssertExpectations(t)
}

func TestDHT20_MeasurePreciseTemperature(t *testing.T) {
	bus := new(MockI2CBus)
	s := newTestDHT20(t, bus, &recordingSleeper{}, WithPreciseTemperature())

	frame := frameOf(0x18, 0x8000, 0x0800, 0x8000)
	bus.On("WriteToAddr", mock.Anything, byte(0x38), []byte{0xAC, 0x33, 0x00}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(1)).Return([]byte{0x18}, nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x38), bufLen(7)).Return(frame[:], nil).Once()

	temp, err := s.GetTemperature(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(0x80080)/(1<<20)*200-50, temp)
	bus.AssertExpectations(t)
}
