package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"zonewatch/internal/config"
	"zonewatch/internal/events"
	"zonewatch/internal/model"
	"zonewatch/internal/watchlist"
)

// Engine is the control surface the API needs from the core.
type Engine interface {
	Reset()
	UpdateConfig(cfg *config.Config)
	Snapshot() []model.Snapshot
	SnapshotOf(beaconID string) (model.Snapshot, bool)
	TriggerManual(beaconID string)
	SilenceManual(beaconID string)
}

type Server struct {
	cfg     *config.Manager
	wl      *watchlist.Store
	events  *events.Store
	engine  Engine
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string       `json:"status"`
	Time       string       `json:"time"`
	Version    string       `json:"version"`
	ConfigPath string       `json:"config_path"`
	Tracked    int          `json:"tracked_beacons"`
	Alarm      alarmStatus  `json:"alarm"`
	Ingest     ingestStatus `json:"ingest"`
}

type alarmStatus struct {
	SafeRSSIThreshold int    `json:"safe_rssi_threshold"`
	SafeWhenHigher    bool   `json:"safe_when_higher"`
	Debounce          string `json:"debounce"`
	MaxSilence        string `json:"max_silence"`
	TopologyEnabled   bool   `json:"topology_enabled"`
	AutoDiscover      bool   `json:"auto_discover"`
}

type ingestStatus struct {
	MQTT  bool `json:"mqtt"`
	Kafka bool `json:"kafka"`
	REST  bool `json:"rest"`
}

func Start(ctx context.Context, cfg *config.Manager, wl *watchlist.Store, eventStore *events.Store, engine Engine, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		wl:      wl,
		events:  eventStore,
		engine:  engine,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/beacons", server.handleBeacons)
	mux.HandleFunc("/beacons/", server.handleBeacons)
	mux.HandleFunc("/events", server.handleEvents)
	mux.HandleFunc("/config/watchlist", server.handleWatchlist)
	mux.HandleFunc("/admin/trigger", server.handleTrigger)
	mux.HandleFunc("/admin/silence", server.handleSilence)
	mux.HandleFunc("/admin/clear", server.handleClear)
	mux.HandleFunc("/admin/restart", server.handleRestart)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Tracked:    s.wl.Len(),
		Alarm: alarmStatus{
			SafeRSSIThreshold: cfg.Alarm.SafeRSSIThreshold,
			SafeWhenHigher:    cfg.Alarm.SafeWhenHigher,
			Debounce:          cfg.Alarm.Debounce.String(),
			MaxSilence:        cfg.Alarm.MaxSilence.String(),
			TopologyEnabled:   cfg.Alarm.TopologyEnabled,
			AutoDiscover:      cfg.Alarm.AutoDiscover,
		},
		Ingest: ingestStatus{
			MQTT:  cfg.MQTT.Enabled,
			Kafka: cfg.Ingest.Kafka.Enabled,
			REST:  cfg.Ingest.REST.Enabled,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBeacons(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/beacons")
	path = strings.TrimPrefix(path, "/")
	if path != "" {
		snap, ok := s.engine.SnapshotOf(strings.ToUpper(path))
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, snap)
		return
	}
	all := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"beacons": all,
		"count":   len(all),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.Transition
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.events.Since(ts)
	} else {
		list = s.events.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": list,
		"count":  len(list),
	})
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.wl.Export())
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var f watchlist.File
		if err := json.Unmarshal(body, &f); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := s.wl.Replace(f); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "tracked": s.wl.Len()})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	beaconID, ok := s.readBeaconID(w, r)
	if !ok {
		return
	}
	if beaconID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.engine.TriggerManual(beaconID)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleSilence(w http.ResponseWriter, r *http.Request) {
	beaconID, ok := s.readBeaconID(w, r)
	if !ok {
		return
	}
	s.engine.SilenceManual(beaconID)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) readBeaconID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return "", false
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		BeaconID string `json:"beacon_id"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return "", false
		}
	}
	return strings.ToUpper(strings.TrimSpace(req.BeaconID)), true
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.events != nil {
		s.events.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine != nil {
		s.engine.Reset()
	}
	if s.events != nil {
		s.events.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
