package command

import (
	"encoding/hex"
	"strings"
	"sync"
)

const (
	typeAlarmConfig  = 0xB0
	typeSearchBeacon = 0xAC

	paramVolume   = 0x01
	paramDuration = 0x02
)

// Builder maps logical alarm commands to Lansitec downlink payloads. It is
// stateless except for the rolling message sequence number the receiving
// device uses to tell back-to-back search commands apart.
type Builder struct {
	mu    sync.Mutex
	seq   uint8
	major [2]byte
}

// NewBuilder creates a builder for beacons under the given major ID
// ("0010"). An empty or malformed major encodes as 0x0000.
func NewBuilder(majorHex string) *Builder {
	b := &Builder{}
	b.major = parseHexPair(majorHex)
	return b
}

// SetVolume builds the buzzer volume command. Level 0 mutes, 4 is loudest.
func (b *Builder) SetVolume(level byte) []byte {
	return []byte{typeAlarmConfig, 0x00, paramVolume, level}
}

// Mute is SetVolume(0): the single stop command, no sequencing needed.
func (b *Builder) Mute() []byte {
	return b.SetVolume(0)
}

// SetBuzzDuration builds the buzz duration command; units of 10 seconds.
func (b *Builder) SetBuzzDuration(units byte) []byte {
	return []byte{typeAlarmConfig, 0x00, paramDuration, units}
}

// SearchBeacon builds the beacon-search trigger: prefix, sequence byte,
// major, minor. The sequence wraps silently at 256; duplicates after
// wraparound are a known limitation of the device protocol.
func (b *Builder) SearchBeacon(minorHex string) []byte {
	minor := parseHexPair(minorHex)
	b.mu.Lock()
	seq := b.seq
	b.seq++
	b.mu.Unlock()
	return []byte{typeSearchBeacon, seq, b.major[0], b.major[1], minor[0], minor[1]}
}

// parseHexPair decodes a 2-byte big-endian hex string, left-padding short
// input. Malformed input decodes as zero rather than failing the trigger.
func parseHexPair(s string) [2]byte {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) > 4 {
		s = s[len(s)-4:]
	}
	for len(s) < 4 {
		s = "0" + s
	}
	var out [2]byte
	decoded, err := hex.DecodeString(s)
	if err != nil || len(decoded) != 2 {
		return out
	}
	copy(out[:], decoded)
	return out
}
