package model

import "time"

type Zone string

const (
	ZoneUnknown Zone = "UNKNOWN"
	ZoneSafe    Zone = "SAFE"
	ZoneWeak    Zone = "WEAK"
	ZoneAlarm   Zone = "ALARM"
	ZoneLost    Zone = "LOST"
)

// UnsafeReason records why an observation failed the safety check.
// Wrong-zone takes precedence over weak-signal when both hold.
type UnsafeReason string

const (
	ReasonNone       UnsafeReason = ""
	ReasonWrongZone  UnsafeReason = "wrong_zone"
	ReasonWeakSignal UnsafeReason = "weak_signal"
	ReasonSilence    UnsafeReason = "signal_lost"
)

// Observation is one decoded beacon sighting. GatewayID is the EUI of the
// sensor or gateway that reported it and may be empty.
type Observation struct {
	BeaconID   string    `json:"beacon_id"`
	RSSI       int       `json:"rssi"`
	GatewayID  string    `json:"gateway_id,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
	Source     string    `json:"source,omitempty"`
}

// Snapshot is a consistent read-only copy of one beacon's state.
type Snapshot struct {
	BeaconID       string    `json:"beacon_id"`
	DisplayName    string    `json:"display_name"`
	Zone           Zone      `json:"zone"`
	RSSI           int       `json:"rssi"`
	LastSeen       time.Time `json:"last_seen"`
	AlarmActive    bool      `json:"alarm_active"`
	HomeZoneID     string    `json:"home_zone_id,omitempty"`
	DetectedZoneID string    `json:"detected_zone_id,omitempty"`
}

// Transition is published on the event bus and kept in the event store
// whenever a beacon's zone changes.
type Transition struct {
	Timestamp time.Time    `json:"timestamp"`
	BeaconID  string       `json:"beacon_id"`
	From      Zone         `json:"from"`
	To        Zone         `json:"to"`
	RSSI      int          `json:"rssi"`
	Reason    UnsafeReason `json:"reason,omitempty"`
	ZoneID    string       `json:"zone_id,omitempty"`
}

const EventStateChange = "beacon_state_change"
