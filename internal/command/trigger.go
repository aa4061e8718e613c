package command

import (
	"log/slog"
	"time"

	"zonewatch/internal/downlink"
)

// Runner executes the alarm command sequences against a siren device. The
// target cannot process back-to-back downlinks, so the trigger sequence
// spaces its three commands by a fixed delay. Trigger runs the sequence on
// its own goroutine so one beacon's alarm never stalls the evaluation of
// the others.
type Runner struct {
	sender   downlink.Sender
	builder  *Builder
	logger   *slog.Logger
	delay    time.Duration
	port     int
	volume   byte
	duration byte
}

func NewRunner(sender downlink.Sender, builder *Builder, logger *slog.Logger, delay time.Duration, port int, volume, duration byte) *Runner {
	return &Runner{
		sender:   sender,
		builder:  builder,
		logger:   logger,
		delay:    delay,
		port:     port,
		volume:   volume,
		duration: duration,
	}
}

// Trigger starts the alarm sequence for a beacon in the background.
func (r *Runner) Trigger(deviceEUI, minorID string) {
	go r.Run(deviceEUI, minorID)
}

// Run sends set-volume, set-duration, then search-beacon, pausing between
// commands. A failed send is logged and the sequence continues: the device
// treats each command idempotently and a missed one is corrected on the
// next cycle.
func (r *Runner) Run(deviceEUI, minorID string) {
	r.send(deviceEUI, r.builder.SetVolume(r.volume), "set_volume")
	r.pause()
	r.send(deviceEUI, r.builder.SetBuzzDuration(r.duration), "set_duration")
	r.pause()
	r.send(deviceEUI, r.builder.SearchBeacon(minorID), "search_beacon")
}

// Silence sends the single mute command, no sequencing or delay needed.
func (r *Runner) Silence(deviceEUI string) {
	r.send(deviceEUI, r.builder.Mute(), "mute")
}

func (r *Runner) send(deviceEUI string, payload []byte, name string) {
	if r.sender == nil {
		return
	}
	if err := r.sender.Send(deviceEUI, payload, r.port); err != nil {
		if r.logger != nil {
			r.logger.Warn("downlink send failed", "command", name, "device_eui", deviceEUI, "err", err)
		}
		return
	}
	if r.logger != nil {
		r.logger.Debug("downlink sent", "command", name, "device_eui", deviceEUI, "bytes", len(payload))
	}
}

func (r *Runner) pause() {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
}
