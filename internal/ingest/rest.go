package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"zonewatch/internal/config"
	"zonewatch/internal/model"
	"zonewatch/internal/normalize"
)

// RESTServer accepts pre-decoded observations and replayed uplinks over
// HTTP, mainly for integration tests and bench setups without a broker.
type RESTServer struct {
	cfg    *config.Manager
	out    chan<- model.Observation
	logger *slog.Logger
}

func StartREST(ctx context.Context, cfg *config.Manager, out chan<- model.Observation, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	server := &RESTServer{cfg: cfg, out: out, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/observations", server.handleObservations)
	mux.HandleFunc("/uplinks", server.handleUplinks)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
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
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *RESTServer) handleObservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil || len(body) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var list []model.Observation
	trim := bytesTrim(body)
	if len(trim) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if trim[0] == '[' {
		if err := json.Unmarshal(trim, &list); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	} else {
		var obs model.Observation
		if err := json.Unmarshal(trim, &obs); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = append(list, obs)
	}

	accepted := 0
	for _, obs := range list {
		if obs.BeaconID == "" {
			continue
		}
		if obs.ObservedAt.IsZero() {
			obs.ObservedAt = time.Now().UTC()
		}
		obs.Source = "rest"
		if SendNonBlocking(r.Context(), s.out, obs, s.logger) {
			accepted++
		}
	}
	writeJSON(w, map[string]any{"accepted": accepted, "failed": len(list) - accepted})
}

func (s *RESTServer) handleUplinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil || len(body) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	up, err := normalize.ParseUplink(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	accepted := 0
	for _, obs := range up.Observations(time.Now().UTC()) {
		obs.Source = "rest"
		if SendNonBlocking(r.Context(), s.out, obs, s.logger) {
			accepted++
		}
	}
	writeJSON(w, map[string]any{"accepted": accepted})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func bytesTrim(b []byte) []byte {
	start := 0
	for start < len(b) && (b[start] == ' ' || b[start] == '\n' || b[start] == '\r' || b[start] == '\t') {
		start++
	}
	end := len(b)
	for end > start && (b[end-1] == ' ' || b[end-1] == '\n' || b[end-1] == '\r' || b[end-1] == '\t') {
		end--
	}
	return b[start:end]
}
