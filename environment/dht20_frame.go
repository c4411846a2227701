package environment

import (
	"encoding/binary"
	"fmt"
)

// raw readings are 20 bit wide
const dht20RawScale = float64(1 << 20)

// Reading is a single decoded DHT20 measurement.
type Reading struct {
	Humidity    float64 `yaml:"humidity"`
	Temperature float64 `yaml:"temperature"`
}

// Frame is the 7 byte measurement response: status, three big endian words packing
// 20 bit humidity and 20 bit temperature, the last byte being the check value.
type Frame [dht20FrameSize]byte

// DecodeFrame copies b into a Frame and decodes it with the default arithmetic.
func DecodeFrame(b []byte) (Reading, error) {
	if len(b) != dht20FrameSize {
		return Reading{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidFrame, dht20FrameSize, len(b))
	}
	var f Frame
	copy(f[:], b)
	return f.Decode(), nil
}

func (f Frame) Status() byte {
	return f[0]
}

func (f Frame) Busy() bool {
	return f[0]&dht20StatusBusy != 0
}

// Words returns bytes 1..6 as three big endian words.
func (f Frame) Words() (uint16, uint16, uint16) {
	return binary.BigEndian.Uint16(f[1:3]), binary.BigEndian.Uint16(f[3:5]), binary.BigEndian.Uint16(f[5:7])
}

func (f Frame) RawHumidity() uint32 {
	w0, w1, _ := f.Words()
	return uint32(w0)<<4 | uint32(w1)>>12
}

// RawTemperature drops the low byte of the third word: (w2 & 0xFF) >> 8 is always zero.
// Kept that way so readings match the MicroPython dht20 library bit for bit.
func (f Frame) RawTemperature() uint32 {
	_, w1, w2 := f.Words()
	return (uint32(w1)&0x0FFF)<<8 | (uint32(w2)&0x00FF)>>8
}

// RawTemperaturePrecise is the full 20 bit temperature as laid out in the datasheet.
func (f Frame) RawTemperaturePrecise() uint32 {
	_, w1, w2 := f.Words()
	return (uint32(w1)&0x0FFF)<<8 | uint32(w2)>>8
}

func (f Frame) Decode() Reading {
	return Reading{
		Humidity:    convertDHT20Humidity(f.RawHumidity()),
		Temperature: convertDHT20Temperature(f.RawTemperature()),
	}
}

func (f Frame) DecodePrecise() Reading {
	return Reading{
		Humidity:    convertDHT20Humidity(f.RawHumidity()),
		Temperature: convertDHT20Temperature(f.RawTemperaturePrecise()),
	}
}

func convertDHT20Humidity(raw uint32) float64 {
	return float64(raw) / dht20RawScale * 100
}

func convertDHT20Temperature(raw uint32) float64 {
	return float64(raw)/dht20RawScale*200 - 50
}
