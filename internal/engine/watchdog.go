package engine

import (
	"context"
	"time"

	"zonewatch/internal/model"
)

// Sweep checks every known beacon for silence and forces LOST transitions.
// Prolonged silence is treated the same as a confirmed exit from the safe
// zone: the trigger fires once, on the transition. Runs on a fixed
// interval independent of message arrival.
func (e *Engine) Sweep(now time.Time) {
	cfg := e.config()
	maxSilence := cfg.Alarm.MaxSilence

	var outs []outcome
	e.mu.Lock()
	for _, st := range e.beacons {
		if st.lastSeen.IsZero() {
			continue
		}
		if now.Sub(st.lastSeen) <= maxSilence {
			continue
		}
		if st.zone == model.ZoneLost {
			continue
		}
		old := st.zone
		st.zone = model.ZoneLost
		out := outcome{target: e.resolveTarget(cfg, st.detected), minor: st.id}
		if !st.alarmActive {
			st.alarmActive = true
			out.trigger = true
		}
		out.transition = e.transition(st, old, now, model.ReasonSilence, st.detected)
		outs = append(outs, out)
		if e.logger != nil {
			e.logger.Warn("beacon signal lost",
				"beacon_id", st.id,
				"last_seen", st.lastSeen,
				"silent_for", now.Sub(st.lastSeen).String(),
			)
		}
	}
	e.mu.Unlock()

	for _, out := range outs {
		e.perform(out)
	}
}

// StartWatchdog runs Sweep on the configured interval until ctx is done.
func (e *Engine) StartWatchdog(ctx context.Context) {
	go func() {
		interval := e.config().Alarm.WatchdogInterval
		if interval <= 0 {
			interval = 5 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.Sweep(time.Now().UTC())
			case <-ctx.Done():
				return
			}
		}
	}()
}
