package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string        `json:"log_level" yaml:"log_level"`
	MQTT     MQTTConfig    `json:"mqtt" yaml:"mqtt"`
	Ingest   IngestConfig  `json:"ingest" yaml:"ingest"`
	Alarm    AlarmConfig   `json:"alarm" yaml:"alarm"`
	Devices  DevicesConfig `json:"devices" yaml:"devices"`
	API      APIConfig     `json:"api" yaml:"api"`
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	Events   EventsConfig  `json:"events" yaml:"events"`
}

type MQTTConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Broker      string `json:"broker" yaml:"broker"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	ClientID    string `json:"client_id" yaml:"client_id"`
	UplinkTopic string `json:"uplink_topic" yaml:"uplink_topic"`
}

type IngestConfig struct {
	ChannelBuffer int         `json:"channel_buffer" yaml:"channel_buffer"`
	Kafka         KafkaConfig `json:"kafka" yaml:"kafka"`
	REST          RESTConfig  `json:"rest" yaml:"rest"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type AlarmConfig struct {
	SafeRSSIThreshold int           `json:"safe_rssi_threshold" yaml:"safe_rssi_threshold"`
	SafeWhenHigher    bool          `json:"safe_when_higher" yaml:"safe_when_higher"`
	Debounce          time.Duration `json:"debounce" yaml:"debounce"`
	MaxSilence        time.Duration `json:"max_silence" yaml:"max_silence"`
	WatchdogInterval  time.Duration `json:"watchdog_interval" yaml:"watchdog_interval"`
	CommandDelay      time.Duration `json:"command_delay" yaml:"command_delay"`
	TopologyEnabled   bool          `json:"topology_enabled" yaml:"topology_enabled"`
	AutoDiscover      bool          `json:"auto_discover" yaml:"auto_discover"`
	VolumeLevel       byte          `json:"volume_level" yaml:"volume_level"`
	BuzzDurationUnits byte          `json:"buzz_duration_units" yaml:"buzz_duration_units"`
	BeaconMajor       string        `json:"beacon_major" yaml:"beacon_major"`
	TargetEUI         string        `json:"target_eui" yaml:"target_eui"`
	FPort             int           `json:"fport" yaml:"fport"`
	ApplicationID     string        `json:"application_id" yaml:"application_id"`
}

type DevicesConfig struct {
	File string `json:"file" yaml:"file"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type EventsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		MQTT: MQTTConfig{
			Enabled:     true,
			Broker:      "tcp://127.0.0.1:1883",
			ClientID:    "zonewatch",
			UplinkTopic: "application/+/device/+/event/up",
		},
		Ingest: IngestConfig{
			ChannelBuffer: 1000,
			Kafka:         KafkaConfig{Enabled: false},
			REST:          RESTConfig{Enabled: false, Addr: ":8080"},
		},
		Alarm: AlarmConfig{
			SafeRSSIThreshold: -70,
			SafeWhenHigher:    true,
			Debounce:          5 * time.Second,
			MaxSilence:        120 * time.Second,
			WatchdogInterval:  5 * time.Second,
			CommandDelay:      2 * time.Second,
			TopologyEnabled:   false,
			AutoDiscover:      false,
			VolumeLevel:       4,
			BuzzDurationUnits: 6,
			BeaconMajor:       "0010",
			FPort:             10,
		},
		Devices: DevicesConfig{File: "devices.json"},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:zonewatch.db?_pragma=busy_timeout(5000)"},
		Events:  EventsConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 1000
	}
	if cfg.Alarm.Debounce <= 0 {
		cfg.Alarm.Debounce = 5 * time.Second
	}
	if cfg.Alarm.MaxSilence <= 0 {
		cfg.Alarm.MaxSilence = 120 * time.Second
	}
	if cfg.Alarm.WatchdogInterval <= 0 {
		cfg.Alarm.WatchdogInterval = 5 * time.Second
	}
	if cfg.Alarm.CommandDelay < 0 {
		cfg.Alarm.CommandDelay = 2 * time.Second
	}
	if cfg.Alarm.FPort <= 0 {
		cfg.Alarm.FPort = 10
	}
	if cfg.Alarm.VolumeLevel == 0 {
		cfg.Alarm.VolumeLevel = 4
	}
	if cfg.Alarm.BuzzDurationUnits == 0 {
		cfg.Alarm.BuzzDurationUnits = 6
	}
	if cfg.Events.StoreLimit <= 0 {
		cfg.Events.StoreLimit = 1000
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "zonewatch"
	}
	if cfg.MQTT.UplinkTopic == "" {
		cfg.MQTT.UplinkTopic = "application/+/device/+/event/up"
	}
}

func Validate(cfg *Config) error {
	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return errors.New("mqtt.broker required when mqtt.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Alarm.FPort < 1 || cfg.Alarm.FPort > 223 {
		return fmt.Errorf("alarm.fport out of LoRaWAN range: %d", cfg.Alarm.FPort)
	}
	if len(cfg.Alarm.BeaconMajor) != 0 && len(cfg.Alarm.BeaconMajor) != 4 {
		return fmt.Errorf("alarm.beacon_major must be 4 hex chars: %q", cfg.Alarm.BeaconMajor)
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config with no backing file. Used
// when the config file is missing and the process runs on defaults.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
	}
	m.cfg.Store(cfg)
	if m.path != "" {
		if info, err := os.Stat(m.path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
