package environment

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDHT20_FrameRaw(t *testing.T) {
	tests := []struct {
		given Frame
		hum   uint32
		temp  uint32
	}{
		{frameOf(0x00, 0x8000, 0x0800, 0x0000), 0x80000, 0x80000},
		{frameOf(0x18, 0x0000, 0x0000, 0x0000), 0x00000, 0x00000},
		{frameOf(0x18, 0xFFFF, 0xF000, 0x0000), 0xFFFFF, 0x00000},
		{frameOf(0x18, 0x0000, 0x0FFF, 0xFF00), 0x00000, 0xFFF00},
		{frameOf(0x1C, 0x7552, 0x058E, 0x407F), 0x75520, 0x58E00},
	}
	for _, test := range tests {
		t.Run(hex.EncodeToString(test.given[:]), func(t *testing.T) {
			assert.Equal(t, test.hum, test.given.RawHumidity())
			assert.Equal(t, test.temp, test.given.RawTemperature())
		})
	}
}

func TestDHT20_FrameDecode(t *testing.T) {
	tests := []struct {
		name  string
		given Frame
		hum   float64
		temp  float64
	}{
		{"midscale", frameOf(0x00, 0x8000, 0x0800, 0x0000), 50.0, 50.0},
		{"zero", frameOf(0x18, 0x0000, 0x0000, 0x0000), 0.0, -50.0},
		{"quarter", frameOf(0x18, 0x4000, 0x0400, 0x0000), 25.0, 0.0},
		{"full humidity", frameOf(0x18, 0xFFFF, 0xF000, 0x0000), 99.99990463256836, -50.0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := test.given.Decode()
			assert.InDelta(t, test.hum, r.Humidity, 1e-9)
			assert.InDelta(t, test.temp, r.Temperature, 1e-9)
		})
	}
}

func TestDHT20_FrameDecodeIgnoresLowByte(t *testing.T) {
	base := frameOf(0x18, 0x6A3C, 0x5B21, 0x9E00)
	want := base.Decode()
	for low := 0; low <= 0xFF; low++ {
		f := base
		f[6] = byte(low)
		assert.Equal(t, want, f.Decode(), "low byte 0x%02x", low)
	}
}

func TestDHT20_FrameDecodePreciseUsesThirdWord(t *testing.T) {
	f := frameOf(0x18, 0x8000, 0x0800, 0x0000)
	assert.Equal(t, f.Decode(), f.DecodePrecise())

	f = frameOf(0x18, 0x8000, 0x0800, 0xFF00)
	assert.Equal(t, uint32(0x80000), f.RawTemperature())
	assert.Equal(t, uint32(0x800FF), f.RawTemperaturePrecise())
	assert.Greater(t, f.DecodePrecise().Temperature, f.Decode().Temperature)
	assert.Equal(t, f.Decode().Humidity, f.DecodePrecise().Humidity)

	// check byte never contributes
	g := f
	g[6] = 0xA5
	assert.Equal(t, f.DecodePrecise(), g.DecodePrecise())
}

func TestDHT20_FrameStatus(t *testing.T) {
	f := frameOf(0x98, 0, 0, 0)
	assert.Equal(t, byte(0x98), f.Status())
	assert.True(t, f.Busy())
	w0, w1, w2 := frameOf(0x18, 0x1234, 0x5678, 0x9ABC).Words()
	assert.Equal(t, []uint16{0x1234, 0x5678, 0x9ABC}, []uint16{w0, w1, w2})
}

func TestDHT20_DecodeFrame(t *testing.T) {
	r, err := DecodeFrame([]byte{0x00, 0x80, 0x00, 0x08, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, Reading{Humidity: 50, Temperature: 50}, r)

	_, err = DecodeFrame([]byte{0x00, 0x80, 0x00})
	assert.ErrorIs(t, err, ErrInvalidFrame)
}
