package command

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zonewatch/internal/downlink"
)

type capturedSend struct {
	DeviceEUI string
	Payload   []byte
	Port      int
}

type captureSender struct {
	mu    sync.Mutex
	sends []capturedSend
	fail  map[int]error // index -> error to return
}

func (c *captureSender) Send(deviceEUI string, payload []byte, port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := len(c.sends)
	c.sends = append(c.sends, capturedSend{DeviceEUI: deviceEUI, Payload: append([]byte(nil), payload...), Port: port})
	if err, ok := c.fail[idx]; ok {
		return err
	}
	return nil
}

func (c *captureSender) all() []capturedSend {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]capturedSend(nil), c.sends...)
}

func TestRunSendsSequenceInOrder(t *testing.T) {
	sender := &captureSender{}
	r := NewRunner(sender, NewBuilder("0010"), nil, 0, 10, 4, 6)

	r.Run("70b3d5a4d31205ce", "64AF")

	sends := sender.all()
	require.Len(t, sends, 3)
	assert.Equal(t, []byte{0xB0, 0x00, 0x01, 0x04}, sends[0].Payload)
	assert.Equal(t, []byte{0xB0, 0x00, 0x02, 0x06}, sends[1].Payload)
	assert.Equal(t, []byte{0xAC, 0x00, 0x00, 0x10, 0x64, 0xAF}, sends[2].Payload)
	for _, s := range sends {
		assert.Equal(t, "70b3d5a4d31205ce", s.DeviceEUI)
		assert.Equal(t, 10, s.Port)
	}
}

func TestRunContinuesPastFailedSend(t *testing.T) {
	sender := &captureSender{fail: map[int]error{0: errors.New("broker down")}}
	r := NewRunner(sender, NewBuilder("0010"), nil, 0, 10, 4, 6)

	r.Run("70b3d5a4d31205ce", "64AF")

	sends := sender.all()
	require.Len(t, sends, 3)
	assert.Equal(t, byte(0xAC), sends[2].Payload[0])
}

func TestSilenceSendsSingleMute(t *testing.T) {
	sender := &captureSender{}
	r := NewRunner(sender, NewBuilder("0010"), nil, 0, 10, 4, 6)

	r.Silence("70b3d5a4d31205ce")

	sends := sender.all()
	require.Len(t, sends, 1)
	assert.Equal(t, []byte{0xB0, 0x00, 0x01, 0x00}, sends[0].Payload)
}

func TestRunnerNilSenderIsNoOp(t *testing.T) {
	var s downlink.Sender
	r := NewRunner(s, NewBuilder("0010"), nil, 0, 10, 4, 6)
	r.Run("70b3d5a4d31205ce", "64AF")
	r.Silence("70b3d5a4d31205ce")
}
