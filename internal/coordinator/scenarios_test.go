package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1 — new registration against a non-empty include list admits the node,
// assigns a fresh storage ID, and the first heartbeat is empty.
func TestScenario_S1_NewRegistration(t *testing.T) {
	reader, err := NewFileHostReader("", "")
	require.NoError(t, err)
	reader.includes = []HostEntry{{IPAddress: "10.0.0.1"}}

	m := NewManager(DefaultConfig(), nil, reader, nil)
	id, err := m.RegisterDatanode(RegistrationInput{
		IPAddr: "10.0.0.1", HostName: "host-a", Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	d := m.registry.Get(id)
	require.NotNil(t, d)
	snap := d.Snapshot()
	assert.Equal(t, Normal, snap.Admin)
	assert.Equal(t, map[string]int{"1.0": 1}, m.registry.VersionHistogram())

	res := m.Heartbeat(HeartbeatInput{StorageID: id, IPAddr: "10.0.0.1", XferPort: 50010})
	assert.NoError(t, res.Err)
	assert.Empty(t, res.Commands)
}

// S2 — replacement: same storageID re-registers at a new address.
func TestScenario_S2_Replacement(t *testing.T) {
	m := newTestManager()
	_, err := m.RegisterDatanode(RegistrationInput{
		StorageID: "DS-1", IPAddr: "10.0.0.1", HostName: "host-a", Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)

	_, err = m.RegisterDatanode(RegistrationInput{
		StorageID: "DS-1", IPAddr: "10.0.0.2", HostName: "host-a", Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)

	assert.NotNil(t, m.registry.LookupByXferAddr("10.0.0.2", 50010))
	assert.Nil(t, m.registry.LookupByXferAddr("10.0.0.1", 50010))
}

// S3 — collision eviction: a new storageID claiming an address held by
// another evicts the prior descriptor entirely.
func TestScenario_S3_CollisionEviction(t *testing.T) {
	removed := make(chan string, 1)
	bm := &removalTrackingBlockManager{removed: removed}
	m := NewManager(DefaultConfig(), bm, nil, nil)

	_, err := m.RegisterDatanode(RegistrationInput{
		StorageID: "DS-1", IPAddr: "10.0.0.1", HostName: "host-a", Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)

	_, err = m.RegisterDatanode(RegistrationInput{
		StorageID: "DS-2", IPAddr: "10.0.0.1", HostName: "host-a", Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)

	assert.Nil(t, m.registry.Get("DS-1"))
	assert.NotNil(t, m.registry.Get("DS-2"))
	select {
	case id := <-removed:
		assert.Equal(t, "DS-1", id)
	default:
		t.Fatal("expected RemoveBlocksAssociatedTo to be invoked for the evicted descriptor")
	}
}

type removalTrackingBlockManager struct {
	NoopBlockManager
	removed chan string
}

func (b *removalTrackingBlockManager) RemoveBlocksAssociatedTo(storageID string) {
	b.removed <- storageID
}

// S4 — lease-recovery priority: with 3 expected locations of which 2 are
// stale, |L'| == 1 so the command addresses the full original set, and no
// other command kind appears in the same response.
func TestScenario_S4_LeaseRecoveryFallsBackToFullSetWhenOnlyOneNonStale(t *testing.T) {
	m := newTestManager()
	id := registerHelper(t, m, "DS-main", "10.0.0.1")
	registerHelper(t, m, "DS-2", "10.0.0.2")
	registerHelper(t, m, "DS-3", "10.0.0.3")

	m.registry.Get("DS-2").SetAlive(1)
	m.registry.Get("DS-3").SetAlive(1)

	d := m.registry.Get(id)
	d.EnqueueLeaseRecovery("blk-under-construction", []string{id, "DS-2", "DS-3"})
	d.EnqueueReplica("other-block", []string{"DS-2"})
	d.EnqueueInvalidate([]string{"stale-block"}, 1000)

	res := m.Heartbeat(HeartbeatInput{StorageID: id, IPAddr: "10.0.0.1", XferPort: 50010, MaxTransfers: 10})
	require.Len(t, res.Commands, 1)
	assert.Equal(t, CmdRecovery, res.Commands[0].Kind)
	assert.ElementsMatch(t, []string{id, "DS-2", "DS-3"}, res.Commands[0].Locations)
}

// S5 — a zero-block node added to the exclude list via refreshNodes
// transitions straight through DECOMMISSION_IN_PROGRESS to DECOMMISSIONED.
func TestScenario_S5_ExcludeListDecommissionsImmediately(t *testing.T) {
	m := newTestManager()
	id := registerHelper(t, m, "DS-1", "10.0.0.1")

	reader := m.hostReader.(*FileHostReader)
	reader.excludesPath = writeTempHostFile(t, "10.0.0.1\n")

	m.RefreshNodes()

	assert.Equal(t, Decommissioned, m.registry.Get(id).Snapshot().Admin)
}

// S6 — registering a node on a brand-new rack transitions the cluster to
// multi-rack exactly once, invoking processMisReplicatedBlocks exactly once.
func TestScenario_S6_MultiRackFirstTransition(t *testing.T) {
	calls := 0
	bm := &countingBlockManager{onProcessMisReplicated: func() { calls++ }}
	m := NewManager(DefaultConfig(), bm, nil, NewStaticSwitchResolver(map[string]string{
		"host-a": "/dc1/rack1",
		"host-b": "/dc1/rack2",
	}))
	m.registry.SetPopulatingReplicationQueues(true)

	_, err := m.RegisterDatanode(RegistrationInput{
		IPAddr: "10.0.0.1", HostName: "host-a", Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)
	assert.False(t, m.registry.HasEverBeenMultiRack())

	_, err = m.RegisterDatanode(RegistrationInput{
		IPAddr: "10.0.0.2", HostName: "host-b", Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)

	assert.True(t, m.registry.HasEverBeenMultiRack())
	assert.Equal(t, 1, calls)

	_, err = m.RegisterDatanode(RegistrationInput{
		IPAddr: "10.0.0.3", HostName: "host-a", Ports: Ports{Xfer: 50011}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
