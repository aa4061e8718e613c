package downlink

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// chirpstackDownlink is the enqueue payload ChirpStack expects on
// application/<appID>/device/<devEUI>/command/down.
type chirpstackDownlink struct {
	DevEUI    string `json:"devEui"`
	Confirmed bool   `json:"confirmed"`
	FPort     int    `json:"fPort"`
	Data      string `json:"data"`
}

// MQTTSender publishes downlink commands through the ChirpStack MQTT
// integration. The application ID is normally learned from uplinks; the
// configured one is only a fallback until the first uplink arrives.
type MQTTSender struct {
	client mqtt.Client
	appID  atomic.Value
}

func NewMQTTSender(client mqtt.Client, fallbackAppID string) *MQTTSender {
	s := &MQTTSender{client: client}
	s.appID.Store(fallbackAppID)
	return s
}

// SetApplicationID records the application ID observed on an uplink.
func (s *MQTTSender) SetApplicationID(appID string) {
	if appID != "" {
		s.appID.Store(appID)
	}
}

func (s *MQTTSender) ApplicationID() string {
	if v := s.appID.Load(); v != nil {
		return v.(string)
	}
	return ""
}

func (s *MQTTSender) Send(deviceEUI string, payload []byte, port int) error {
	if deviceEUI == "" {
		return errors.New("downlink: empty device EUI")
	}
	appID := s.ApplicationID()
	if appID == "" {
		return errors.New("downlink: no application ID known yet")
	}
	body, err := json.Marshal(chirpstackDownlink{
		DevEUI:    deviceEUI,
		Confirmed: false,
		FPort:     port,
		Data:      base64.StdEncoding.EncodeToString(payload),
	})
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("application/%s/device/%s/command/down", appID, deviceEUI)
	token := s.client.Publish(topic, 0, false, body)
	token.Wait()
	return token.Error()
}
