package coordinator

// BlockManager is the external collaborator that owns block-to-node
// replication accounting. The Datanode Manager calls it only to remove
// blocks associated with a departing node, to detect replication-in-progress
// during decommission, to process re-replication after topology or
// membership changes, and to enqueue key updates delegated onto a
// heartbeat response.
//
// Out of scope of this package: block placement policy itself. The
// in-memory implementation below exists so the Manager has something real
// to drive end to end; production deployments would replace it with a
// collaborator backed by the actual block map.
type BlockManager interface {
	// RemoveBlocksAssociatedTo is called when a descriptor is fully
	// removed (operator command, replacement, or dead-sweep).
	RemoveBlocksAssociatedTo(storageID string)

	// IsReplicationInProgress reports whether storageID still hosts
	// blocks that need to finish re-replicating elsewhere before
	// decommission can complete.
	IsReplicationInProgress(storageID string) bool

	// ProcessOverReplicatedBlocks is invoked when a node is re-commissioned
	// while alive, so now-excess replicas can be scheduled for deletion.
	ProcessOverReplicatedBlocks(storageID string)

	// ProcessMisReplicatedBlocks is invoked on the first rack-count
	// transition to multi-rack, if the coordinator is still populating
	// replication queues.
	ProcessMisReplicatedBlocks()

	// EnqueueKeyUpdate lets the heartbeat responder delegate the
	// KEY_UPDATE command kind.
	EnqueueKeyUpdate(storageID string) []string
}

// NoopBlockManager is a minimal BlockManager that reports no in-flight
// replication and no key updates — it lets decommission complete
// immediately and never stalls on replication accounting, matching the
// scenario-S5-style "0 blocks" cluster.
type NoopBlockManager struct{}

func (NoopBlockManager) RemoveBlocksAssociatedTo(storageID string)     {}
func (NoopBlockManager) IsReplicationInProgress(storageID string) bool { return false }
func (NoopBlockManager) ProcessOverReplicatedBlocks(storageID string)  {}
func (NoopBlockManager) ProcessMisReplicatedBlocks()                   {}
func (NoopBlockManager) EnqueueKeyUpdate(storageID string) []string    { return nil }
