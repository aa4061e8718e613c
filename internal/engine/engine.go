package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"zonewatch/internal/bus"
	"zonewatch/internal/command"
	"zonewatch/internal/config"
	"zonewatch/internal/events"
	"zonewatch/internal/model"
	"zonewatch/internal/storage"
	"zonewatch/internal/watchlist"
)

// Engine owns the per-beacon alarm state machines. All mutation of beacon
// state happens under one mutex; downlink sends and event publication are
// deferred until the lock is released so no subscriber or transport call
// runs inside the critical section.
type Engine struct {
	logger  *slog.Logger
	cfg     atomic.Value
	wl      *watchlist.Store
	runner  *command.Runner
	bus     *bus.Bus
	events  *events.Store
	store   storage.Store
	beacons map[string]*beaconState
	mu      sync.Mutex
	started time.Time
}

// beaconState is exclusively owned by the engine; it lives for the process
// lifetime once the beacon is first observed.
type beaconState struct {
	id          string
	name        string
	zone        model.Zone
	lastRSSI    int
	lastSeen    time.Time
	weakSince   time.Time
	alarmActive bool
	initialized bool
	homeZoneID  string
	detected    string
}

func NewEngine(cfg *config.Config, logger *slog.Logger, wl *watchlist.Store, runner *command.Runner, eventBus *bus.Bus, eventStore *events.Store, store storage.Store) *Engine {
	e := &Engine{
		logger:  logger,
		wl:      wl,
		runner:  runner,
		bus:     eventBus,
		events:  eventStore,
		store:   store,
		beacons: make(map[string]*beaconState),
		started: time.Now().UTC(),
	}
	e.cfg.Store(cfg)
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// Start consumes observations from the ingest channel until ctx is done.
func (e *Engine) Start(ctx context.Context, in <-chan model.Observation) {
	go func() {
		for {
			select {
			case obs := <-in:
				e.Evaluate(obs)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// outcome collects the side effects decided under the lock so they can be
// performed after it is released.
type outcome struct {
	silence    bool
	trigger    bool
	target     string
	minor      string
	transition *model.Transition
}

// Evaluate runs one observation through the beacon's state machine and
// returns the resulting zone. Untracked beacons are ignored unless
// auto-discovery is enabled.
func (e *Engine) Evaluate(obs model.Observation) model.Zone {
	cfg := e.config()
	now := obs.ObservedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	beacon, tracked := e.wl.Resolve(obs.BeaconID)
	if !tracked {
		if !cfg.Alarm.AutoDiscover {
			return model.ZoneUnknown
		}
		beacon = e.wl.Discover(minorID(obs.BeaconID))
		if e.logger != nil {
			e.logger.Info("auto-discovered beacon", "beacon_id", beacon.ID)
		}
	}

	wrongZone, detectedZone, homeZone := e.checkTopology(cfg, beacon.ID, obs.GatewayID)
	weakSignal := isWeak(cfg, obs.RSSI)
	safe := !wrongZone && !weakSignal
	reason := model.ReasonNone
	if wrongZone {
		reason = model.ReasonWrongZone
	} else if weakSignal {
		reason = model.ReasonWeakSignal
	}
	target := e.resolveTarget(cfg, detectedZone)

	e.mu.Lock()
	st := e.getState(beacon.ID, beacon.Name)
	st.lastRSSI = obs.RSSI
	st.lastSeen = now
	st.homeZoneID = homeZone
	st.detected = detectedZone
	zone, out := e.step(cfg, st, safe, reason, now, target, detectedZone)
	e.mu.Unlock()

	e.perform(out)
	if e.store != nil {
		_ = e.store.SaveObservations(context.Background(), []model.Observation{obs})
	}
	return zone
}

// step applies the state machine transition for one observation. Called
// with the engine lock held; returns the side effects to run afterwards.
func (e *Engine) step(cfg *config.Config, st *beaconState, safe bool, reason model.UnsafeReason, now time.Time, target, detectedZone string) (model.Zone, outcome) {
	out := outcome{target: target, minor: st.id}

	// A beacon must never alarm on its very first sighting: there is no
	// baseline to tell "came online in the wrong place" from "just left".
	if !st.initialized {
		st.initialized = true
		st.zone = model.ZoneSafe
		st.weakSince = time.Time{}
		st.alarmActive = false
		out.silence = true
		if e.logger != nil {
			e.logger.Info("first sighting, forcing safe", "beacon_id", st.id, "rssi", st.lastRSSI)
		}
		return model.ZoneSafe, out
	}

	if safe {
		st.weakSince = time.Time{}
		if st.alarmActive {
			st.alarmActive = false
			out.silence = true
		}
		old := st.zone
		st.zone = model.ZoneSafe
		if old != model.ZoneSafe && old != model.ZoneUnknown {
			out.transition = e.transition(st, old, now, model.ReasonNone, detectedZone)
		}
		return model.ZoneSafe, out
	}

	if st.weakSince.IsZero() {
		st.weakSince = now
		old := st.zone
		st.zone = model.ZoneWeak
		if old != model.ZoneWeak {
			out.transition = e.transition(st, old, now, reason, detectedZone)
		}
		return model.ZoneWeak, out
	}

	duration := now.Sub(st.weakSince)
	if duration < 0 {
		// Clock skew between gateways; never crash or mis-latch over it.
		duration = 0
	}
	if duration < cfg.Alarm.Debounce {
		return model.ZoneWeak, out
	}

	if !st.alarmActive {
		st.alarmActive = true
		out.trigger = true
		old := st.zone
		st.zone = model.ZoneAlarm
		if old != model.ZoneAlarm {
			out.transition = e.transition(st, old, now, reason, detectedZone)
		}
		if e.logger != nil {
			e.logger.Warn("alarm latched",
				"beacon_id", st.id,
				"rssi", st.lastRSSI,
				"reason", string(reason),
				"sustained", duration.String(),
			)
		}
	}
	st.zone = model.ZoneAlarm
	return model.ZoneAlarm, out
}

func (e *Engine) transition(st *beaconState, from model.Zone, now time.Time, reason model.UnsafeReason, zoneID string) *model.Transition {
	return &model.Transition{
		Timestamp: now,
		BeaconID:  st.id,
		From:      from,
		To:        st.zone,
		RSSI:      st.lastRSSI,
		Reason:    reason,
		ZoneID:    zoneID,
	}
}

func (e *Engine) perform(out outcome) {
	if out.silence && e.runner != nil {
		e.runner.Silence(out.target)
	}
	if out.trigger && e.runner != nil {
		e.runner.Trigger(out.target, out.minor)
	}
	if out.transition != nil {
		e.publish(*out.transition)
	}
}

func (e *Engine) publish(tr model.Transition) {
	if e.events != nil {
		e.events.Add(tr)
	}
	if e.bus != nil {
		e.bus.Publish(model.EventStateChange, tr)
	}
	if e.store != nil {
		_ = e.store.SaveTransition(context.Background(), tr)
	}
	if e.logger != nil {
		e.logger.Info("zone transition",
			"beacon_id", tr.BeaconID,
			"from", string(tr.From),
			"to", string(tr.To),
			"rssi", tr.RSSI,
			"reason", string(tr.Reason),
		)
	}
}

// checkTopology decides the wrong-zone condition. An unknown reporting
// gateway maps to "zone unknown", which counts as unsafe-by-zone; a beacon
// with no assigned home zone cannot be in the wrong one.
func (e *Engine) checkTopology(cfg *config.Config, beaconID, gatewayID string) (wrong bool, detectedZone, homeZone string) {
	if !cfg.Alarm.TopologyEnabled {
		return false, "", ""
	}
	homeZone, hasHome := e.wl.HomeZoneOf(beaconID)
	detectedZone, hasDetected := e.wl.ZoneOf(gatewayID)
	if !hasHome {
		return false, detectedZone, ""
	}
	if !hasDetected {
		return true, "", homeZone
	}
	return detectedZone != homeZone, detectedZone, homeZone
}

func isWeak(cfg *config.Config, rssi int) bool {
	if cfg.Alarm.SafeWhenHigher {
		return rssi < cfg.Alarm.SafeRSSIThreshold
	}
	return rssi > cfg.Alarm.SafeRSSIThreshold
}

// resolveTarget picks the siren to command: in topology mode the one
// covering the detecting zone, otherwise the configured default.
func (e *Engine) resolveTarget(cfg *config.Config, detectedZone string) string {
	if cfg.Alarm.TopologyEnabled && detectedZone != "" {
		if eui := e.wl.SirenFor(detectedZone); eui != "" {
			return eui
		}
	}
	return cfg.Alarm.TargetEUI
}

func (e *Engine) getState(id, name string) *beaconState {
	if st, ok := e.beacons[id]; ok {
		if name != "" {
			st.name = name
		}
		return st
	}
	st := &beaconState{id: id, name: name, zone: model.ZoneUnknown, lastRSSI: -999}
	e.beacons[id] = st
	return st
}

// Snapshot returns a consistent copy of every beacon's state, ordered by
// beacon ID.
func (e *Engine) Snapshot() []model.Snapshot {
	e.mu.Lock()
	out := make([]model.Snapshot, 0, len(e.beacons))
	for _, st := range e.beacons {
		out = append(out, snapshotOf(st))
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].BeaconID < out[j].BeaconID })
	return out
}

func (e *Engine) SnapshotOf(beaconID string) (model.Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.beacons[beaconID]
	if !ok {
		return model.Snapshot{}, false
	}
	return snapshotOf(st), true
}

func snapshotOf(st *beaconState) model.Snapshot {
	return model.Snapshot{
		BeaconID:       st.id,
		DisplayName:    st.name,
		Zone:           st.zone,
		RSSI:           st.lastRSSI,
		LastSeen:       st.lastSeen,
		AlarmActive:    st.alarmActive,
		HomeZoneID:     st.homeZoneID,
		DetectedZoneID: st.detected,
	}
}

// TriggerManual fires the alarm sequence for a beacon on operator request,
// latching its state if the beacon is known.
func (e *Engine) TriggerManual(beaconID string) {
	cfg := e.config()
	id := beaconID
	if b, ok := e.wl.Resolve(beaconID); ok {
		id = b.ID
	}
	e.mu.Lock()
	target := cfg.Alarm.TargetEUI
	if st, ok := e.beacons[id]; ok {
		target = e.resolveTarget(cfg, st.detected)
		st.alarmActive = true
		st.zone = model.ZoneAlarm
	}
	e.mu.Unlock()
	if e.runner != nil {
		e.runner.Trigger(target, id)
	}
}

// SilenceManual mutes a beacon's siren on operator request. An empty
// beacon ID mutes the default target.
func (e *Engine) SilenceManual(beaconID string) {
	cfg := e.config()
	target := cfg.Alarm.TargetEUI
	if beaconID != "" {
		if b, ok := e.wl.Resolve(beaconID); ok {
			e.mu.Lock()
			if st, ok := e.beacons[b.ID]; ok {
				target = e.resolveTarget(cfg, st.detected)
				st.alarmActive = false
				st.weakSince = time.Time{}
				st.zone = model.ZoneSafe
			}
			e.mu.Unlock()
		}
	}
	if e.runner != nil {
		e.runner.Silence(target)
	}
}

// Reset drops all beacon state, forcing every beacon back through the
// startup-silence rule on its next sighting.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.beacons = make(map[string]*beaconState)
	e.mu.Unlock()
}

func minorID(full string) string {
	if len(full) >= 4 {
		return full[len(full)-4:]
	}
	return full
}
