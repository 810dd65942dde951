package coordinator

import "sync"

// Registry is C4: the primary storageID → Descriptor map, kept in lockstep
// with hostIndex and Topology by every mutator below. The primary map and
// hostIndex are touched only while holding mu (the "Registry monitor" of
// §5's lock-ordering discipline) — short critical sections, no network or
// disk IO while held. Topology carries its own lock; the Manager's
// registration update path detaches and re-attaches a descriptor there
// directly, under the namesystem lock rather than mu.
type Registry struct {
	mu sync.RWMutex

	byStorageID map[string]*Descriptor
	hostIdx     *hostIndex
	topology    *Topology

	blockMgr BlockManager
	stats    *HeartbeatStats

	versionCounts map[string]int

	hasEverBeenMultiRack        bool
	populatingReplicationQueues bool
}

// NewRegistry wires a fresh Registry to its collaborators.
func NewRegistry(topology *Topology, blockMgr BlockManager, stats *HeartbeatStats) *Registry {
	return &Registry{
		byStorageID:   make(map[string]*Descriptor),
		hostIdx:       newHostIndex(),
		topology:      topology,
		blockMgr:      blockMgr,
		stats:         stats,
		versionCounts: make(map[string]int),
	}
}

// SetPopulatingReplicationQueues toggles whether the first multi-rack
// transition should ask the Block Manager to scan for mis-replicated
// blocks (S6).
func (r *Registry) SetPopulatingReplicationQueues(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.populatingReplicationQueues = v
}

// Get returns the descriptor for storageID, or nil.
func (r *Registry) Get(storageID string) *Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byStorageID[storageID]
}

// LookupByXferAddr returns the descriptor bound to (ipAddr, port), or nil.
func (r *Registry) LookupByXferAddr(ipAddr string, port int) *Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.byStorageID {
		if d.IPAddr == ipAddr && d.XferPort == port {
			return d
		}
	}
	return nil
}

// LookupByHost returns an arbitrary descriptor registered on host, or nil.
func (r *Registry) LookupByHost(host string) *Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hostIdx.lookupByHost(host)
}

// All returns a snapshot slice of every descriptor in the Registry.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.byStorageID))
	for _, d := range r.byStorageID {
		out = append(out, d)
	}
	return out
}

// addDatanode atomically: evicts any prior descriptor holding the same
// storageID from the host index, inserts d into the primary map, attaches
// it to the topology (propagating InvalidTopologyError on conflict), adds
// it to the host index, and re-checks the multi-rack transition.
//
// On InvalidTopologyError the primary-map insert is NOT undone here (the
// host-index add, which comes after the topology attach, has not happened
// yet) — the registration protocol's all-or-nothing rollback
// (removeDatanode + wipeDatanode) is the caller's responsibility, exactly
// as the original design assigns it.
func (r *Registry) addDatanode(d *Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.byStorageID[d.StorageID]; ok && prior != d {
		r.hostIdx.remove(prior)
	}
	r.byStorageID[d.StorageID] = d

	if err := r.topology.add(d); err != nil {
		return err
	}
	r.hostIdx.add(d)

	r.checkIfClusterIsNowMultiRackLocked()
	return nil
}

// wipeDatanode removes storageID from the primary map and host index. It
// does not touch the topology.
func (r *Registry) wipeDatanode(storageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byStorageID[storageID]
	if !ok {
		return
	}
	delete(r.byStorageID, storageID)
	r.hostIdx.remove(d)
}

// removeDatanode fully retires d: removes it from the Heartbeat Stats
// manager, tells the Block Manager to drop blocks associated to it, removes
// it from the topology, and decrements the version histogram if it was
// counted. Callers must hold the namesystem write lock (the Manager
// enforces this; Registry itself only guards its own short critical
// section).
func (r *Registry) removeDatanode(d *Descriptor) {
	r.stats.Remove(d.StorageID)
	r.blockMgr.RemoveBlocksAssociatedTo(d.StorageID)

	r.mu.Lock()
	r.topology.remove(d)
	r.mu.Unlock()

	r.DecrementVersionCount(d)
}

// checkIfClusterIsNowMultiRackLocked must be called with mu held. It sets
// the sticky hasEverBeenMultiRack flag on the first ≥2-rack observation and,
// if the coordinator is still populating replication queues, asks the
// Block Manager to scan for mis-replicated blocks exactly once (S6).
func (r *Registry) checkIfClusterIsNowMultiRackLocked() {
	if r.hasEverBeenMultiRack {
		return
	}
	if r.topology.numRacks() >= 2 {
		r.hasEverBeenMultiRack = true
		if r.populatingReplicationQueues {
			r.blockMgr.ProcessMisReplicatedBlocks()
		}
	}
}

// HasEverBeenMultiRack reports the sticky multi-rack flag.
func (r *Registry) HasEverBeenMultiRack() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasEverBeenMultiRack
}

// IncrementVersionCount adds d to the software-version histogram, at most
// once per descriptor (registry invariant 4: exactly those descriptors
// with a non-null version that are alive and not dead).
func (r *Registry) IncrementVersionCount(d *Descriptor) {
	if d.SoftwareVersion == "" {
		return
	}
	if !d.markVersionCounted() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versionCounts[d.SoftwareVersion]++
}

// DecrementVersionCount removes d from the histogram if it was counted.
func (r *Registry) DecrementVersionCount(d *Descriptor) {
	if !d.unmarkVersionCounted() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versionCounts[d.SoftwareVersion]--
	if r.versionCounts[d.SoftwareVersion] <= 0 {
		delete(r.versionCounts, d.SoftwareVersion)
	}
}

// VersionHistogram returns a snapshot copy of the version→count map.
func (r *Registry) VersionHistogram() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.versionCounts))
	for k, v := range r.versionCounts {
		out[k] = v
	}
	return out
}

// RecomputeVersionHistogram rebuilds the histogram from scratch against
// current liveness, used by refreshNodes.
func (r *Registry) RecomputeVersionHistogram() {
	for _, d := range r.All() {
		snap := d.Snapshot()
		dead := snap.LastUpdate == 0
		if snap.SoftwareVersion != "" && snap.IsAlive && !dead {
			r.IncrementVersionCount(d)
		} else {
			r.DecrementVersionCount(d)
		}
	}
}
