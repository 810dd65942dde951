package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeatStats_SweepMarksDeadAndStale(t *testing.T) {
	stats := NewHeartbeatStats()
	d := NewDescriptor("DS-1", "10.0.0.1", "h1", "", Ports{}, "1.0")
	d.SetAlive(1000)
	stats.Register(d)

	newlyDead := stats.Sweep(2000, 100000, 500)
	assert.Empty(t, newlyDead)
	assert.Equal(t, int64(1), stats.NumStaleNodes())

	newlyDead = stats.Sweep(999999, 100, 500)
	assert.Len(t, newlyDead, 1)
	assert.Equal(t, "DS-1", newlyDead[0].StorageID)

	newlyDead = stats.Sweep(1999999, 100, 500)
	assert.Empty(t, newlyDead)
}

func TestHeartbeatStats_ShouldAvoidStaleForWrite(t *testing.T) {
	stats := NewHeartbeatStats()
	assert.False(t, stats.ShouldAvoidStaleForWrite(false, 0.5))
	assert.True(t, stats.ShouldAvoidStaleForWrite(true, 0.5))

	d1 := NewDescriptor("DS-1", "10.0.0.1", "h1", "", Ports{}, "1.0")
	d1.SetAlive(1000)
	d2 := NewDescriptor("DS-2", "10.0.0.2", "h2", "", Ports{}, "1.0")
	d2.SetAlive(1000)
	stats.Register(d1)
	stats.Register(d2)

	stats.Sweep(1000+10000, 1000000, 500)
	assert.False(t, stats.ShouldAvoidStaleForWrite(true, 0.5))
}

func TestHeartbeatStats_RemoveDropsFromPopulation(t *testing.T) {
	stats := NewHeartbeatStats()
	d := NewDescriptor("DS-1", "10.0.0.1", "h1", "", Ports{}, "1.0")
	d.SetAlive(1000)
	stats.Register(d)
	assert.Equal(t, 1, stats.LiveCount())
	stats.Remove("DS-1")
	assert.Equal(t, 0, stats.LiveCount())
}
