package environment

import (
	"errors"
	"fmt"
)

var ErrDeviceNotReady = errors.New("dht20: calibration bits not set")
var ErrMeasurementTimeout = errors.New("dht20: measurement not completed in time")
var ErrInvalidAddress = errors.New("dht20: address is not a 7-bit I2C address")
var ErrInvalidFrame = errors.New("dht20: invalid measurement frame")

// TransportError wraps a failure reported by the bus. The bus error is kept as is.
type TransportError struct {
	Op   string
	Addr byte
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dht20: bus %s at %#x failed: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
