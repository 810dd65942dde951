package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartDecommission_CompletesImmediatelyWithNoBlocks(t *testing.T) {
	stats := NewHeartbeatStats()
	d := NewDescriptor("DS-1", "10.0.0.1", "h1", "", Ports{}, "1.0")
	d.SetAlive(1000)

	startDecommission(d, NoopBlockManager{}, stats, 1000)

	assert.Equal(t, Decommissioned, d.Snapshot().Admin)
}

func TestStartDecommission_StaysInProgressWhileReplicating(t *testing.T) {
	stats := NewHeartbeatStats()
	d := NewDescriptor("DS-1", "10.0.0.1", "h1", "", Ports{}, "1.0")
	bm := blockingReplicationManager{}

	startDecommission(d, bm, stats, 1000)
	assert.Equal(t, DecommissionInProgress, d.Snapshot().Admin)

	attemptDecommissionCompletion(d, NoopBlockManager{})
	assert.Equal(t, Decommissioned, d.Snapshot().Admin)
}

type blockingReplicationManager struct {
	NoopBlockManager
}

func (blockingReplicationManager) IsReplicationInProgress(storageID string) bool { return true }

func TestStopDecommission_ReturnsToNormal(t *testing.T) {
	stats := NewHeartbeatStats()
	d := NewDescriptor("DS-1", "10.0.0.1", "h1", "", Ports{}, "1.0")
	d.SetAlive(1000)
	startDecommission(d, blockingReplicationManager{}, stats, 1000)
	require.Equal(t, DecommissionInProgress, d.Snapshot().Admin)

	stopDecommission(d, NoopBlockManager{}, stats)
	assert.Equal(t, Normal, d.Snapshot().Admin)
}

func TestDecommissionMonitor_TickCompletesStaleInProgressNodes(t *testing.T) {
	reg, _, stats := newTestRegistry()
	d := NewDescriptor("DS-1", "10.0.0.1", "h1", "", Ports{}, "1.0")
	d.NetworkLocation = "/dc1/rack1"
	require.NoError(t, reg.addDatanode(d))
	startDecommission(d, blockingReplicationManager{}, stats, 1000)
	require.Equal(t, DecommissionInProgress, d.Snapshot().Admin)

	mon := newDecommissionMonitor(reg, NoopBlockManager{}, time.Millisecond, 10)
	mon.tick()

	assert.Equal(t, Decommissioned, d.Snapshot().Admin)
}

func TestDecommissionMonitor_CyclesAcrossKeysBetweenTicks(t *testing.T) {
	reg, _, stats := newTestRegistry()
	for i := 1; i <= 3; i++ {
		d := NewDescriptor("DS-"+string(rune('0'+i)), "10.0.0.1", "h1", "", Ports{}, "1.0")
		d.NetworkLocation = "/dc1/rack1"
		require.NoError(t, reg.addDatanode(d))
		startDecommission(d, blockingReplicationManager{}, stats, 1000)
	}

	mon := newDecommissionMonitor(reg, NoopBlockManager{}, time.Millisecond, 1)
	mon.tick()
	firstKey := mon.lastKey
	mon.tick()
	assert.NotEqual(t, firstKey, mon.lastKey)
}
