package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"zonewatch/internal/model"
)

// maxBeaconSlots is the number of beaconN/rssiN pairs a gateway report can
// carry.
const maxBeaconSlots = 10

// Uplink is the subset of a ChirpStack uplink event the normalizer uses.
// Object holds the gateway's decoded report:
//
//	{"type":"DeviceType1","number":2,"beacon1":"001064AF","rssi1":-42,...}
type Uplink struct {
	DeviceInfo struct {
		ApplicationID string `json:"applicationId"`
		DevEUI        string `json:"devEui"`
	} `json:"deviceInfo"`
	Time   string         `json:"time"`
	Object map[string]any `json:"object"`
	Data   string         `json:"data"`
}

func ParseUplink(data []byte) (*Uplink, error) {
	var up Uplink
	if err := json.Unmarshal(data, &up); err != nil {
		return nil, fmt.Errorf("decode uplink: %w", err)
	}
	return &up, nil
}

// Observations converts the uplink's beacon report into normalized
// observations. Slots with a missing or unparsable RSSI are skipped; a
// payload with no decoded object yields nothing (raw hex frames need the
// vendor decoder on the network server side). Never returns an error into
// the evaluation path.
func (u *Uplink) Observations(now time.Time) []model.Observation {
	if u == nil || len(u.Object) == 0 {
		return nil
	}
	ts := now
	if u.Time != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, u.Time); err == nil {
			ts = parsed.UTC()
		}
	}
	gateway := strings.ToLower(u.DeviceInfo.DevEUI)

	var out []model.Observation
	for i := 1; i <= maxBeaconSlots; i++ {
		rawID, ok := u.Object["beacon"+strconv.Itoa(i)]
		if !ok {
			continue
		}
		beaconID := strings.ToUpper(strings.TrimSpace(fmt.Sprint(rawID)))
		if beaconID == "" {
			continue
		}
		rssi, ok := slotRSSI(u.Object, i)
		if !ok {
			continue
		}
		out = append(out, model.Observation{
			BeaconID:   beaconID,
			RSSI:       rssi,
			GatewayID:  gateway,
			ObservedAt: ts,
		})
	}
	return out
}

func (u *Uplink) ApplicationID() string {
	if u == nil {
		return ""
	}
	return u.DeviceInfo.ApplicationID
}

// MinorID extracts the 4-hex-char minor from a full major+minor beacon ID
// ("001064AF" -> "64AF").
func MinorID(beaconID string) string {
	id := strings.ToUpper(strings.TrimSpace(beaconID))
	if len(id) >= 4 {
		return id[len(id)-4:]
	}
	return id
}

func slotRSSI(obj map[string]any, slot int) (int, bool) {
	raw, ok := obj["rssi"+strconv.Itoa(slot)]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
