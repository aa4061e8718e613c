package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zonewatch/internal/model"
)

func TestSweepMarksSilentBeaconLost(t *testing.T) {
	eng, sender, eventStore := newTestEngine(t, testConfig())
	base := time.Now().UTC()

	eng.Evaluate(obsAt("64AF", -50, base, 0))
	eng.Evaluate(obsAt("64AF", -50, base, 10*time.Second))

	// Exactly at the limit is not yet lost.
	eng.Sweep(base.Add(130 * time.Second))
	snap, _ := eng.SnapshotOf("64AF")
	assert.Equal(t, model.ZoneSafe, snap.Zone)

	eng.Sweep(base.Add(131 * time.Second))
	snap, _ = eng.SnapshotOf("64AF")
	assert.Equal(t, model.ZoneLost, snap.Zone)
	assert.True(t, snap.AlarmActive)

	waitForSends(t, sender, 4) // startup mute + trigger sequence
	assert.Equal(t, 1, sender.countPrefix(0xAC))

	evs := eventStore.List(0)
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, model.ZoneLost, last.To)
	assert.Equal(t, model.ReasonSilence, last.Reason)
}

func TestSweepFiresOnlyOnce(t *testing.T) {
	eng, sender, _ := newTestEngine(t, testConfig())
	base := time.Now().UTC()

	eng.Evaluate(obsAt("64AF", -50, base, 0))

	eng.Sweep(base.Add(125 * time.Second))
	eng.Sweep(base.Add(130 * time.Second))
	eng.Sweep(base.Add(10 * time.Minute))

	waitForSends(t, sender, 4)
	assert.Equal(t, 1, sender.countPrefix(0xAC))
}

func TestSweepSkipsAlreadyAlarming(t *testing.T) {
	eng, sender, _ := newTestEngine(t, testConfig())
	base := time.Now().UTC()

	eng.Evaluate(obsAt("64AF", -90, base, 0))
	eng.Evaluate(obsAt("64AF", -90, base, 1*time.Second))
	eng.Evaluate(obsAt("64AF", -90, base, 6*time.Second))
	waitForSends(t, sender, 4)

	// The beacon then goes silent; the zone flips to LOST but the siren is
	// already sounding, so no second sequence goes out.
	eng.Sweep(base.Add(10 * time.Minute))
	snap, _ := eng.SnapshotOf("64AF")
	assert.Equal(t, model.ZoneLost, snap.Zone)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 4, sender.count())
}

func TestSweepIgnoresBeaconsNeverSeen(t *testing.T) {
	eng, sender, _ := newTestEngine(t, testConfig())

	// Watchlisted but never observed: nothing to sweep.
	eng.Sweep(time.Now().UTC().Add(time.Hour))
	assert.Equal(t, 0, sender.count())
	assert.Empty(t, eng.Snapshot())
}

func TestRecoveryAfterLost(t *testing.T) {
	eng, sender, _ := newTestEngine(t, testConfig())
	base := time.Now().UTC()

	eng.Evaluate(obsAt("64AF", -50, base, 0))
	eng.Sweep(base.Add(10 * time.Minute))
	waitForSends(t, sender, 4)

	// The beacon reappears with a good signal: back to SAFE with a mute.
	zone := eng.Evaluate(obsAt("64AF", -50, base, 11*time.Minute))
	assert.Equal(t, model.ZoneSafe, zone)
	waitForSends(t, sender, 5)
	assert.Equal(t, 2, sender.countMutes())
}
