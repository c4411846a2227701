package environment

import (
	"context"
)

// HumidityTemperatureSensor is implemented by DHT20 and MockDHT20.
type HumidityTemperatureSensor interface {
	Measure(ctx context.Context) (float64, float64, error)
}

var _ HumidityTemperatureSensor = &DHT20{}
var _ HumidityTemperatureSensor = &MockDHT20{}

// MeasureBehaviorFunc defines the function signature for measurement behavior.
// It returns relative humidity in %RH and temperature in Celsius or an error.
type MeasureBehaviorFunc func(ctx context.Context) (float64, float64, error)

// MockDHT20 is a mock implementation of the DHT20 sensor that uses a behavior
// function to produce results without requiring any hardware.
type MockDHT20 struct {
	behavior MeasureBehaviorFunc
}

// NewMockDHT20 creates a new mock sensor with the given behavior function.
//
// Example usage:
//
//	// Simple static values
//	sensor := NewMockDHT20(func(ctx context.Context) (float64, float64, error) {
//		return 45.0, 22.5, nil
//	})
func NewMockDHT20(behavior MeasureBehaviorFunc) *MockDHT20 {
	return &MockDHT20{behavior: behavior}
}

// NewStaticMockDHT20 creates a mock sensor always returning the same reading.
func NewStaticMockDHT20(humidity, temperature float64) *MockDHT20 {
	return NewMockDHT20(func(ctx context.Context) (float64, float64, error) {
		return humidity, temperature, nil
	})
}

// Measure returns the behavior function result, or the context error if ctx is already done.
func (m *MockDHT20) Measure(ctx context.Context) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	return m.behavior(ctx)
}

// Sense is Measure returning a Reading.
func (m *MockDHT20) Sense(ctx context.Context) (Reading, error) {
	hum, temp, err := m.Measure(ctx)
	if err != nil {
		return Reading{}, err
	}
	return Reading{Humidity: hum, Temperature: temp}, nil
}
