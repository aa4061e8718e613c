package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"zonewatch/internal/config"
	"zonewatch/internal/downlink"
	"zonewatch/internal/model"
	"zonewatch/internal/normalize"
)

// StartKafka consumes ChirpStack uplink events mirrored onto a Kafka topic
// (the usual deployment uses the network server's Kafka integration) and
// feeds them through the same normalizer as the MQTT path. sink may be nil
// when no MQTT downlink channel exists.
func StartKafka(ctx context.Context, cfg *config.Manager, out chan<- model.Observation, sink *downlink.MQTTSender, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				continue
			}
			up, err := normalize.ParseUplink(m.Value)
			if err != nil {
				if logger != nil {
					logger.Warn("kafka uplink decode error", "err", err)
				}
				continue
			}
			if sink != nil {
				sink.SetApplicationID(up.ApplicationID())
			}
			for _, obs := range up.Observations(time.Now().UTC()) {
				obs.Source = "kafka"
				SendNonBlocking(ctx, out, obs, logger)
			}
		}
	}()
}
