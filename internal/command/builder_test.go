package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVolumePayload(t *testing.T) {
	b := NewBuilder("0010")
	assert.Equal(t, []byte{0xB0, 0x00, 0x01, 0x04}, b.SetVolume(4))
	assert.Equal(t, []byte{0xB0, 0x00, 0x01, 0x00}, b.Mute())
}

func TestSetBuzzDurationPayload(t *testing.T) {
	b := NewBuilder("0010")
	assert.Equal(t, []byte{0xB0, 0x00, 0x02, 0x06}, b.SetBuzzDuration(6))
}

func TestSearchBeaconPayload(t *testing.T) {
	b := NewBuilder("0010")
	payload := b.SearchBeacon("64AF")

	require.Len(t, payload, 6)
	assert.Equal(t, byte(0xAC), payload[0])
	assert.Equal(t, byte(0x00), payload[1])
	assert.Equal(t, []byte{0x00, 0x10}, payload[2:4])
	assert.Equal(t, []byte{0x64, 0xAF}, payload[4:6])
}

func TestSearchBeaconSequenceIncrements(t *testing.T) {
	b := NewBuilder("0010")
	for want := 0; want < 5; want++ {
		payload := b.SearchBeacon("64AF")
		assert.Equal(t, byte(want), payload[1])
	}
}

func TestSearchBeaconSequenceWrapsAt256(t *testing.T) {
	b := NewBuilder("0010")
	var last byte
	for i := 0; i < 256; i++ {
		last = b.SearchBeacon("64AF")[1]
	}
	assert.Equal(t, byte(255), last)
	assert.Equal(t, byte(0), b.SearchBeacon("64AF")[1])
}

func TestParseHexPair(t *testing.T) {
	cases := []struct {
		in   string
		want [2]byte
	}{
		{"0010", [2]byte{0x00, 0x10}},
		{"64af", [2]byte{0x64, 0xAF}},
		{"AF", [2]byte{0x00, 0xAF}},
		{"001064AF", [2]byte{0x64, 0xAF}}, // full major+minor, minor wins
		{"", [2]byte{}},
		{"zzzz", [2]byte{}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseHexPair(tc.in), "input %q", tc.in)
	}
}
