package events

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zonewatch/internal/model"
)

func tr(i int, ts time.Time) model.Transition {
	return model.Transition{
		Timestamp: ts,
		BeaconID:  "64" + strconv.Itoa(i),
		From:      model.ZoneSafe,
		To:        model.ZoneWeak,
	}
}

func TestRingDropsOldestAtCapacity(t *testing.T) {
	s := NewStore(3)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		s.Add(tr(i, base.Add(time.Duration(i)*time.Second)))
	}

	got := s.List(0)
	require.Len(t, got, 3)
	assert.Equal(t, "642", got[0].BeaconID)
	assert.Equal(t, "644", got[2].BeaconID)
}

func TestListLimitReturnsNewest(t *testing.T) {
	s := NewStore(10)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		s.Add(tr(i, base))
	}

	got := s.List(2)
	require.Len(t, got, 2)
	assert.Equal(t, "643", got[0].BeaconID)
	assert.Equal(t, "644", got[1].BeaconID)
}

func TestSinceFiltersByTimestamp(t *testing.T) {
	s := NewStore(10)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		s.Add(tr(i, base.Add(time.Duration(i)*time.Second)))
	}

	got := s.Since(base.Add(3 * time.Second))
	require.Len(t, got, 2)
	assert.Equal(t, "643", got[0].BeaconID)
}

func TestClear(t *testing.T) {
	s := NewStore(10)
	s.Add(tr(0, time.Now().UTC()))
	s.Clear()
	assert.Empty(t, s.List(0))
}
