package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zonewatch/internal/model"
)

func drain(ch chan model.Observation) []model.Observation {
	var out []model.Observation
	for {
		select {
		case obs := <-ch:
			out = append(out, obs)
		default:
			return out
		}
	}
}

func TestHandleObservationsSingle(t *testing.T) {
	ch := make(chan model.Observation, 10)
	s := &RESTServer{out: ch}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/observations",
		strings.NewReader(`{"beacon_id": "64AF", "rssi": -80, "gateway_id": "70b3d5a4d3120591"}`))
	s.handleObservations(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := drain(ch)
	require.Len(t, got, 1)
	assert.Equal(t, "64AF", got[0].BeaconID)
	assert.Equal(t, -80, got[0].RSSI)
	assert.Equal(t, "rest", got[0].Source)
	assert.False(t, got[0].ObservedAt.IsZero())
}

func TestHandleObservationsBatch(t *testing.T) {
	ch := make(chan model.Observation, 10)
	s := &RESTServer{out: ch}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/observations",
		strings.NewReader(`[
			{"beacon_id": "64AF", "rssi": -80},
			{"beacon_id": "", "rssi": -50},
			{"beacon_id": "64B0", "rssi": -60}
		]`))
	s.handleObservations(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Accepted int `json:"accepted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Accepted)
	assert.Len(t, drain(ch), 2)
}

func TestHandleObservationsRejectsBadInput(t *testing.T) {
	s := &RESTServer{out: make(chan model.Observation, 1)}

	for _, body := range []string{"", "   ", "{nope", "[{]"} {
		rec := httptest.NewRecorder()
		s.handleObservations(rec, httptest.NewRequest(http.MethodPost, "/observations", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}

	rec := httptest.NewRecorder()
	s.handleObservations(rec, httptest.NewRequest(http.MethodGet, "/observations", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleUplinksReplay(t *testing.T) {
	ch := make(chan model.Observation, 10)
	s := &RESTServer{out: ch}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/uplinks", strings.NewReader(`{
		"deviceInfo": {"devEui": "70B3D5A4D3120591"},
		"object": {"beacon1": "001064AF", "rssi1": -42}
	}`))
	s.handleUplinks(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := drain(ch)
	require.Len(t, got, 1)
	assert.Equal(t, "001064AF", got[0].BeaconID)
	assert.Equal(t, "70b3d5a4d3120591", got[0].GatewayID)
	assert.Equal(t, "rest", got[0].Source)
}

func TestSendNonBlockingDropsWhenFull(t *testing.T) {
	ch := make(chan model.Observation, 1)
	ctx := context.Background()

	assert.True(t, SendNonBlocking(ctx, ch, model.Observation{BeaconID: "64AF"}, nil))
	assert.False(t, SendNonBlocking(ctx, ch, model.Observation{BeaconID: "64B0"}, nil))

	got := drain(ch)
	require.Len(t, got, 1)
	assert.Equal(t, "64AF", got[0].BeaconID)
}

func TestSendNonBlockingHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := make(chan model.Observation) // unbuffered, nobody reading
	assert.False(t, SendNonBlocking(ctx, ch, model.Observation{BeaconID: "64AF"}, nil))
}
