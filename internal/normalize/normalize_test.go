package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleUplink = `{
	"deviceInfo": {
		"applicationId": "9f9d6c58-3d52-4a3e-8f38-fb0e18c7a1b2",
		"devEui": "70B3D5A4D3120591",
		"deviceName": "gw-floor-1"
	},
	"time": "2026-08-31T10:15:00.123456+00:00",
	"fPort": 8,
	"object": {
		"type": "DeviceType1",
		"number": 2,
		"beacon1": "001064AF",
		"rssi1": -42,
		"beacon2": "001064B0",
		"rssi2": "-71"
	},
	"data": "AQIDBA=="
}`

func TestObservationsFromUplink(t *testing.T) {
	up, err := ParseUplink([]byte(sampleUplink))
	require.NoError(t, err)

	obs := up.Observations(time.Now().UTC())
	require.Len(t, obs, 2)

	assert.Equal(t, "001064AF", obs[0].BeaconID)
	assert.Equal(t, -42, obs[0].RSSI)
	assert.Equal(t, "70b3d5a4d3120591", obs[0].GatewayID)
	assert.Equal(t, time.Date(2026, 8, 31, 10, 15, 0, 123456000, time.UTC), obs[0].ObservedAt)

	// String RSSI values are tolerated.
	assert.Equal(t, "001064B0", obs[1].BeaconID)
	assert.Equal(t, -71, obs[1].RSSI)

	assert.Equal(t, "9f9d6c58-3d52-4a3e-8f38-fb0e18c7a1b2", up.ApplicationID())
}

func TestObservationsSkipBadSlots(t *testing.T) {
	up, err := ParseUplink([]byte(`{
		"deviceInfo": {"devEui": "70B3D5A4D3120591"},
		"object": {
			"beacon1": "001064AF",
			"beacon2": "001064B0", "rssi2": "not-a-number",
			"beacon3": "", "rssi3": -50,
			"beacon4": "001064B1", "rssi4": -55
		}
	}`))
	require.NoError(t, err)

	obs := up.Observations(time.Now().UTC())
	require.Len(t, obs, 1)
	assert.Equal(t, "001064B1", obs[0].BeaconID)
}

func TestObservationsWithoutObject(t *testing.T) {
	up, err := ParseUplink([]byte(`{"deviceInfo": {"devEui": "x"}, "data": "sBAAZK8="}`))
	require.NoError(t, err)
	assert.Nil(t, up.Observations(time.Now().UTC()))
}

func TestObservationsFallBackToReceiveTime(t *testing.T) {
	up, err := ParseUplink([]byte(`{
		"deviceInfo": {"devEui": "70B3D5A4D3120591"},
		"time": "garbage",
		"object": {"beacon1": "64AF", "rssi1": -42}
	}`))
	require.NoError(t, err)

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	obs := up.Observations(now)
	require.Len(t, obs, 1)
	assert.Equal(t, now, obs[0].ObservedAt)
}

func TestParseUplinkRejectsGarbage(t *testing.T) {
	_, err := ParseUplink([]byte("{nope"))
	assert.Error(t, err)
}

func TestMinorID(t *testing.T) {
	assert.Equal(t, "64AF", MinorID("001064AF"))
	assert.Equal(t, "64AF", MinorID("64af"))
	assert.Equal(t, "AF", MinorID("af"))
	assert.Equal(t, "", MinorID(""))
}
