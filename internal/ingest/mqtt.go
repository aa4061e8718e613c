package ingest

import (
	"context"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"zonewatch/internal/config"
	"zonewatch/internal/downlink"
	"zonewatch/internal/model"
	"zonewatch/internal/normalize"
)

// StartMQTT connects to the ChirpStack MQTT broker, subscribes to uplink
// events, and pushes decoded observations into out. The returned sender
// shares the same client for downlink publishes and learns the application
// ID from incoming uplinks.
func StartMQTT(ctx context.Context, cfg *config.Manager, out chan<- model.Observation, logger *slog.Logger) (*downlink.MQTTSender, error) {
	current := cfg.Get()
	if !current.MQTT.Enabled {
		if logger != nil {
			logger.Info("mqtt ingest disabled")
		}
		return nil, nil
	}

	// sender is assigned before Connect below; the handlers only run once
	// the connection attempt starts.
	var sender *downlink.MQTTSender
	topic := current.MQTT.UplinkTopic

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		up, err := normalize.ParseUplink(msg.Payload())
		if err != nil {
			if logger != nil {
				logger.Warn("mqtt uplink decode error", "topic", msg.Topic(), "err", err)
			}
			return
		}
		if sender != nil {
			sender.SetApplicationID(up.ApplicationID())
		}
		for _, obs := range up.Observations(time.Now().UTC()) {
			obs.Source = "mqtt"
			SendNonBlocking(ctx, out, obs, logger)
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(current.MQTT.Broker)
	opts.SetClientID(current.MQTT.ClientID)
	if current.MQTT.Username != "" {
		opts.SetUsername(current.MQTT.Username)
		opts.SetPassword(current.MQTT.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if logger != nil {
			logger.Info("mqtt connected", "broker", current.MQTT.Broker)
		}
		// Resubscribe on every (re)connect; paho drops subscriptions
		// without a persistent session.
		if token := c.Subscribe(topic, 0, handler); token.Wait() && token.Error() != nil {
			if logger != nil {
				logger.Error("mqtt subscribe failed", "topic", topic, "err", token.Error())
			}
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if logger != nil {
			logger.Warn("mqtt connection lost", "err", err)
		}
	})

	client := mqtt.NewClient(opts)
	sender = downlink.NewMQTTSender(client, current.Alarm.ApplicationID)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	go func() {
		<-ctx.Done()
		client.Disconnect(250)
	}()
	if logger != nil {
		logger.Info("mqtt ingest enabled", "broker", current.MQTT.Broker, "topic", topic)
	}
	return sender, nil
}
