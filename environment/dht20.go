package environment

import (
	"context"
	"fmt"
	"time"

	"github.com/mklimuk/dht20"
)

// DHT20 default 7-bit I2C address.
const dht20DefaultAddress = 0x38

const (
	dht20CmdStatus  byte = 0x71
	dht20CmdTrigger byte = 0xAC
)

var dht20TriggerArgs = []byte{dht20CmdTrigger, 0x33, 0x00}

// Status byte bit definitions:
// Bit7: busy (measurement in progress)
// Bit4..3: calibration enabled, both must be set after power-on
const (
	dht20StatusBusy       byte = 0x80
	dht20StatusCalibrated byte = 0x18
)

// Timing contracts from the datasheet. PowerOnDelay and InitSettleDelay are the caller's
// responsibility; MeasureDelay and PollInterval are applied by Measure.
const (
	PowerOnDelay    = 100 * time.Millisecond
	InitSettleDelay = 10 * time.Millisecond
	MeasureDelay    = 50 * time.Millisecond
	PollInterval    = 10 * time.Millisecond
)

const dht20FrameSize = 7

type DHT20Opts struct {
	Address byte
	Sleeper dht20.Sleeper
	// PollLimit bounds the number of busy status reads. 0 polls until the busy flag clears.
	PollLimit int
	// PollTimeout bounds the time spent polling the busy flag. 0 means no deadline.
	PollTimeout time.Duration
	// PreciseTemperature includes the low byte of the third word in the raw temperature.
	PreciseTemperature bool
}

type DHT20Opt func(*DHT20Opts)

func WithAddress(address byte) DHT20Opt {
	return func(o *DHT20Opts) {
		o.Address = address
	}
}

func WithSleeper(s dht20.Sleeper) DHT20Opt {
	return func(o *DHT20Opts) {
		o.Sleeper = s
	}
}

func WithPollLimit(limit int) DHT20Opt {
	return func(o *DHT20Opts) {
		o.PollLimit = limit
	}
}

func WithPollTimeout(timeout time.Duration) DHT20Opt {
	return func(o *DHT20Opts) {
		o.PollTimeout = timeout
	}
}

func WithPreciseTemperature() DHT20Opt {
	return func(o *DHT20Opts) {
		o.PreciseTemperature = true
	}
}

// DHT20 represents Aosong DHT20 Digital Humidity/Temperature sensor.
// Typical usage:
//
//	s, err := NewDHT20(ctx, bus)
//	// wait InitSettleDelay
//	rh, t, err := s.Measure(ctx)
//
// The driver keeps no measurement state; every call runs a fresh bus transaction sequence.
// It does not serialize access to the bus, callers sharing a bus must do that themselves.
type DHT20 struct {
	transport dht20.I2CBus
	config    DHT20Opts
	now       func() time.Time
}

// NewDHT20 checks the calibration bits of the sensor and returns a ready driver.
// At least PowerOnDelay must have elapsed since power-on before calling it.
func NewDHT20(ctx context.Context, transport dht20.I2CBus, opts ...DHT20Opt) (*DHT20, error) {
	config := DHT20Opts{
		Address: dht20DefaultAddress,
		Sleeper: dht20.ContextSleeper{},
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Address > 0x7F {
		return nil, fmt.Errorf("%w: %#x", ErrInvalidAddress, config.Address)
	}
	if config.Sleeper == nil {
		config.Sleeper = dht20.ContextSleeper{}
	}
	s := &DHT20{transport: transport, config: config, now: time.Now}
	if err := s.write(ctx, []byte{dht20CmdStatus}); err != nil {
		return nil, err
	}
	status, err := s.readStatus(ctx)
	if err != nil {
		return nil, err
	}
	if status&dht20StatusCalibrated != dht20StatusCalibrated {
		return nil, fmt.Errorf("%w: status 0x%02x", ErrDeviceNotReady, status)
	}
	return s, nil
}

// Address returns the 7-bit bus address the driver talks to.
func (s *DHT20) Address() byte {
	return s.config.Address
}

// Measure triggers a measurement, waits for the sensor to finish and returns relative humidity
// in % and temperature in Celsius.
func (s *DHT20) Measure(ctx context.Context) (float64, float64, error) {
	r, err := s.Sense(ctx)
	if err != nil {
		return 0, 0, err
	}
	return r.Humidity, r.Temperature, nil
}

// Sense is Measure returning a Reading.
func (s *DHT20) Sense(ctx context.Context) (Reading, error) {
	if err := s.write(ctx, dht20TriggerArgs); err != nil {
		return Reading{}, err
	}
	// the sensor is never ready earlier, no point polling
	if err := s.config.Sleeper.Sleep(ctx, MeasureDelay); err != nil {
		return Reading{}, err
	}
	if err := s.waitIdle(ctx); err != nil {
		return Reading{}, err
	}
	var frame Frame
	if err := s.read(ctx, frame[:]); err != nil {
		return Reading{}, err
	}
	if s.config.PreciseTemperature {
		return frame.DecodePrecise(), nil
	}
	return frame.Decode(), nil
}

// GetHumidity performs a single measurement and returns relative humidity in %RH.
func (s *DHT20) GetHumidity(ctx context.Context) (float64, error) {
	hum, _, err := s.Measure(ctx)
	return hum, err
}

// GetTemperature performs a single measurement and returns temperature in Celsius.
func (s *DHT20) GetTemperature(ctx context.Context) (float64, error) {
	_, temp, err := s.Measure(ctx)
	return temp, err
}

// GetTempAndHum performs a single measurement and returns temperature and humidity.
func (s *DHT20) GetTempAndHum(ctx context.Context) (float64, float64, error) {
	hum, temp, err := s.Measure(ctx)
	return temp, hum, err
}

func (s *DHT20) waitIdle(ctx context.Context) error {
	var deadline time.Time
	if s.config.PollTimeout > 0 {
		deadline = s.now().Add(s.config.PollTimeout)
	}
	for polls := 1; ; polls++ {
		status, err := s.readStatus(ctx)
		if err != nil {
			return err
		}
		if status&dht20StatusBusy == 0 {
			return nil
		}
		if s.config.PollLimit > 0 && polls >= s.config.PollLimit {
			return fmt.Errorf("%w: still busy after %d polls", ErrMeasurementTimeout, polls)
		}
		if !deadline.IsZero() && !s.now().Before(deadline) {
			return fmt.Errorf("%w: still busy after %s", ErrMeasurementTimeout, s.config.PollTimeout)
		}
		if err := s.config.Sleeper.Sleep(ctx, PollInterval); err != nil {
			return err
		}
	}
}

func (s *DHT20) readStatus(ctx context.Context) (byte, error) {
	var status [1]byte
	if err := s.read(ctx, status[:]); err != nil {
		return 0, err
	}
	return status[0], nil
}

func (s *DHT20) write(ctx context.Context, buf []byte) error {
	if err := s.transport.WriteToAddr(ctx, s.config.Address, buf); err != nil {
		return &TransportError{Op: "write", Addr: s.config.Address, Err: err}
	}
	return nil
}

func (s *DHT20) read(ctx context.Context, buf []byte) error {
	if err := s.transport.ReadFromAddr(ctx, s.config.Address, buf); err != nil {
		return &TransportError{Op: "read", Addr: s.config.Address, Err: err}
	}
	return nil
}
