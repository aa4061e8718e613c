package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zonewatch/internal/api"
	"zonewatch/internal/bus"
	"zonewatch/internal/command"
	"zonewatch/internal/config"
	"zonewatch/internal/downlink"
	"zonewatch/internal/engine"
	"zonewatch/internal/events"
	"zonewatch/internal/ingest"
	"zonewatch/internal/logging"
	"zonewatch/internal/model"
	"zonewatch/internal/storage"
	"zonewatch/internal/watchlist"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "zonewatch.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("zonewatch", version)
		return
	}

	var cfgManager *config.Manager
	cfgManager, err := config.NewManager(config.ResolvePath(*configPath))
	if err != nil {
		// Degraded mode: run on defaults rather than refuse to start.
		cfgManager = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := cfgManager.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Warn("config load failed, running on defaults", "path", *configPath, "err", err)
	}
	logger.Info("starting zonewatch", "version", version)

	wl := watchlist.NewStore(config.ResolvePath(cfg.Devices.File))
	if err := wl.Load(); err != nil {
		logger.Warn("devices file load failed, tracking nothing until reload", "file", cfg.Devices.File, "err", err)
	} else {
		logger.Info("watchlist loaded", "tracked_beacons", wl.Len())
	}

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if store != nil {
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := store.Init(initCtx); err != nil {
			cancel()
			logger.Error("storage schema init failed", "err", err)
			os.Exit(1)
		}
		cancel()
		defer store.Close()
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	eventStore := events.NewStore(cfg.Events.StoreLimit)
	eventBus := bus.New(logger)
	eventBus.Subscribe(model.EventStateChange, func(payload any) {
		tr, ok := payload.(model.Transition)
		if !ok {
			return
		}
		if tr.To == model.ZoneAlarm || tr.To == model.ZoneLost {
			logger.Warn("beacon left safe zone",
				"beacon_id", tr.BeaconID,
				"zone", string(tr.To),
				"reason", string(tr.Reason),
				"rssi", tr.RSSI,
			)
		}
	})

	observations := make(chan model.Observation, cfg.Ingest.ChannelBuffer)

	ingestLogger := logging.For(logger, "ingest")
	mqttSender, err := ingest.StartMQTT(ctx, cfgManager, observations, ingestLogger)
	if err != nil {
		logger.Error("mqtt connect failed", "err", err)
		os.Exit(1)
	}
	var sender downlink.Sender
	if mqttSender != nil {
		sender = mqttSender
	}

	builder := command.NewBuilder(cfg.Alarm.BeaconMajor)
	runner := command.NewRunner(sender, builder, logging.For(logger, "downlink"),
		cfg.Alarm.CommandDelay, cfg.Alarm.FPort, cfg.Alarm.VolumeLevel, cfg.Alarm.BuzzDurationUnits)

	eng := engine.NewEngine(cfg, logging.For(logger, "engine"), wl, runner, eventBus, eventStore, store)
	eng.Start(ctx, observations)
	eng.StartWatchdog(ctx)

	ingest.StartKafka(ctx, cfgManager, observations, mqttSender, ingestLogger)
	ingest.StartREST(ctx, cfgManager, observations, ingestLogger)
	api.Start(ctx, cfgManager, wl, eventStore, eng, logging.For(logger, "api"), version)

	go cfgManager.Watch(3*time.Second, func(next *config.Config) {
		eng.UpdateConfig(next)
		if err := wl.Reload(); err != nil {
			logger.Warn("devices file reload failed", "err", err)
		}
		logger.Info("config reloaded", "path", cfgManager.Path())
	}, func(err error) {
		logger.Warn("config watch error", "err", err)
	}, ctx.Done())

	<-ctx.Done()
	logger.Info("shutting down")
}
