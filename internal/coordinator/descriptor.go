package coordinator

import (
	"sync"
)

// AdminState is the decommission state machine's current value for a
// descriptor.
type AdminState int

const (
	Normal AdminState = iota
	DecommissionInProgress
	Decommissioned
)

func (s AdminState) String() string {
	switch s {
	case Normal:
		return "NORMAL"
	case DecommissionInProgress:
		return "DECOMMISSION_IN_PROGRESS"
	case Decommissioned:
		return "DECOMMISSIONED"
	default:
		return "UNKNOWN"
	}
}

// pendingReplica is one outstanding replication target for a block.
type pendingReplica struct {
	block   string
	targets []string
}

// pendingRecovery is a block under construction awaiting lease recovery,
// with its last-known expected locations.
type pendingRecovery struct {
	block     string
	locations []string
}

// Descriptor is the per-node mutable record the Manager keeps for one
// storage node: identity, address, admin state, liveness timestamps, and
// the pending command queues drained on heartbeat.
//
// A Descriptor never points back at the Registry, hostIndex, or Topology
// that hold it; ownership flows one way, out of the Registry, so removal
// from the Registry is the single authoritative place indices get cleaned
// up (see registry.go).
type Descriptor struct {
	mu sync.Mutex

	StorageID       string
	IPAddr          string
	HostName        string
	PeerHostName    string
	XferPort        int
	InfoPort        int
	InfoSecurePort  int
	IPCPort         int
	NetworkLocation string

	// LastUpdate is monotonic milliseconds of the last heartbeat; 0 means
	// forced-dead.
	LastUpdate int64
	IsAlive    bool

	Admin      AdminState
	Disallowed bool

	SoftwareVersion string

	Capacity      uint64
	DfsUsed       uint64
	Remaining     uint64
	BlockPoolUsed uint64
	CacheCapacity uint64
	CacheUsed     uint64
	XceiverCount  int
	FailedVolumes int

	BalancerBandwidth int64

	DecommissionStartedAt int64

	pendingReplicas  []pendingReplica
	invalidateBlocks []string
	pendingCache     []string
	pendingUncache   []string
	leaseRecovery    []pendingRecovery

	// versionCounted records whether this descriptor is currently
	// contributing to the software-version histogram, so callers can
	// decrement exactly once regardless of how many times they ask.
	versionCounted bool
}

// NewDescriptor builds a fresh descriptor from registration fields. It does
// not touch any Manager-level index; callers insert it via Registry.
func NewDescriptor(storageID, ipAddr, hostName, peerHostName string, ports Ports, softwareVersion string) *Descriptor {
	return &Descriptor{
		StorageID:       storageID,
		IPAddr:          ipAddr,
		HostName:        hostName,
		PeerHostName:    peerHostName,
		XferPort:        ports.Xfer,
		InfoPort:        ports.Info,
		InfoSecurePort:  ports.InfoSecure,
		IPCPort:         ports.IPC,
		SoftwareVersion: softwareVersion,
		Admin:           Normal,
	}
}

// Ports is the same shape as cluster.Ports, duplicated here so this package
// does not need to import the wire package for an internal value type.
type Ports struct {
	Xfer       int
	Info       int
	InfoSecure int
	IPC        int
}

// ApplyRegistration overwrites identity/address fields from a fresh
// registration, the way the update path of the registration protocol does.
// It does not touch admin state, liveness, or queues.
func (d *Descriptor) ApplyRegistration(ipAddr, hostName, peerHostName string, ports Ports, softwareVersion string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.IPAddr = ipAddr
	d.HostName = hostName
	d.PeerHostName = peerHostName
	d.XferPort = ports.Xfer
	d.InfoPort = ports.Info
	d.InfoSecurePort = ports.InfoSecure
	d.IPCPort = ports.IPC
	d.SoftwareVersion = softwareVersion
	d.Disallowed = false
}

// XferAddr is the (ip, port) identity used for collision detection.
func (d *Descriptor) XferAddr() (string, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.IPAddr, d.XferPort
}

// SetAlive marks the descriptor alive as of the given monotonic millisecond
// timestamp.
func (d *Descriptor) SetAlive(nowMillis int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.LastUpdate = nowMillis
	d.IsAlive = true
}

// ForceDead sets lastUpdate to 0, the sentinel meaning "forced dead", used
// when a disallowed node heartbeats.
func (d *Descriptor) ForceDead() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.LastUpdate = 0
	d.IsAlive = false
}

// IsDead reports isDead(d) ≡ d.lastUpdate < now − heartbeatExpireInterval.
func (d *Descriptor) IsDead(nowMillis, heartbeatExpireIntervalMillis int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.LastUpdate < nowMillis-heartbeatExpireIntervalMillis
}

// IsStale reports whether the descriptor is alive but hasn't heartbeated
// within staleIntervalMillis.
func (d *Descriptor) IsStale(nowMillis, staleIntervalMillis int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.IsAlive && d.LastUpdate < nowMillis-staleIntervalMillis
}

// UpdateCapacity bulk-assigns the capacity counters reported on a heartbeat.
func (d *Descriptor) UpdateCapacity(req HeartbeatCapacity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Capacity = req.Capacity
	d.DfsUsed = req.DfsUsed
	d.Remaining = req.Remaining
	d.BlockPoolUsed = req.BlockPoolUsed
	d.CacheCapacity = req.CacheCapacity
	d.CacheUsed = req.CacheUsed
	d.XceiverCount = req.XceiverCount
	d.FailedVolumes = req.FailedVolumes
}

// HeartbeatCapacity is the capacity-accounting subset of a heartbeat
// request, kept separate from the wire type so this package doesn't import
// internal/cluster.
type HeartbeatCapacity struct {
	Capacity      uint64
	DfsUsed       uint64
	Remaining     uint64
	BlockPoolUsed uint64
	CacheCapacity uint64
	CacheUsed     uint64
	XceiverCount  int
	FailedVolumes int
}

// EnqueueReplica adds a pending replication target for block.
func (d *Descriptor) EnqueueReplica(block string, targets []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingReplicas = append(d.pendingReplicas, pendingReplica{block: block, targets: targets})
}

// DrainReplicas removes and returns up to max pending replication entries,
// FIFO.
func (d *Descriptor) DrainReplicas(max int) []pendingReplica {
	d.mu.Lock()
	defer d.mu.Unlock()
	if max <= 0 || len(d.pendingReplicas) == 0 {
		return nil
	}
	n := max
	if n > len(d.pendingReplicas) {
		n = len(d.pendingReplicas)
	}
	out := d.pendingReplicas[:n]
	d.pendingReplicas = d.pendingReplicas[n:]
	return out
}

// EnqueueInvalidate appends blocks to the invalidation queue, bounded by
// cap; entries beyond the bound are dropped (oldest kept).
func (d *Descriptor) EnqueueInvalidate(blocks []string, cap int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalidateBlocks = append(d.invalidateBlocks, blocks...)
	if len(d.invalidateBlocks) > cap {
		d.invalidateBlocks = d.invalidateBlocks[:cap]
	}
}

// DrainInvalidate removes and returns up to max queued invalidation blocks.
func (d *Descriptor) DrainInvalidate(max int) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if max <= 0 || len(d.invalidateBlocks) == 0 {
		return nil
	}
	n := max
	if n > len(d.invalidateBlocks) {
		n = len(d.invalidateBlocks)
	}
	out := d.invalidateBlocks[:n]
	d.invalidateBlocks = d.invalidateBlocks[n:]
	return out
}

// EnqueueCache/EnqueueUncache append block IDs to the respective queue.
func (d *Descriptor) EnqueueCache(blocks []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingCache = append(d.pendingCache, blocks...)
}

func (d *Descriptor) EnqueueUncache(blocks []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingUncache = append(d.pendingUncache, blocks...)
}

// DrainCache/DrainUncache clear and return the whole queue at once — there
// is no per-heartbeat cap on cache commands.
func (d *Descriptor) DrainCache() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.pendingCache
	d.pendingCache = nil
	return out
}

func (d *Descriptor) DrainUncache() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.pendingUncache
	d.pendingUncache = nil
	return out
}

// EnqueueLeaseRecovery appends a block-under-construction awaiting lease
// recovery.
func (d *Descriptor) EnqueueLeaseRecovery(block string, locations []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.leaseRecovery = append(d.leaseRecovery, pendingRecovery{block: block, locations: locations})
}

// DrainLeaseRecovery removes and returns the entire lease-recovery queue.
func (d *Descriptor) DrainLeaseRecovery() []pendingRecovery {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.leaseRecovery
	d.leaseRecovery = nil
	return out
}

// TakeBandwidth returns the current balancer bandwidth announcement and
// resets it to 0, acknowledging delivery.
func (d *Descriptor) TakeBandwidth() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	bw := d.BalancerBandwidth
	d.BalancerBandwidth = 0
	return bw
}

// SetBandwidth stores a pending balancer-bandwidth announcement.
func (d *Descriptor) SetBandwidth(bw int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.BalancerBandwidth = bw
}

// markVersionCounted/unmarkVersionCounted track whether this descriptor is
// currently included in the software-version histogram, so the Registry
// can increment/decrement exactly once.
func (d *Descriptor) markVersionCounted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.versionCounted {
		return false
	}
	d.versionCounted = true
	return true
}

func (d *Descriptor) unmarkVersionCounted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.versionCounted {
		return false
	}
	d.versionCounted = false
	return true
}

// Snapshot copies the subset of fields relevant to reporting and admin
// state transitions, safe to hand to a caller outside any lock.
func (d *Descriptor) Snapshot() DescriptorSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DescriptorSnapshot{
		StorageID:       d.StorageID,
		IPAddr:          d.IPAddr,
		HostName:        d.HostName,
		XferPort:        d.XferPort,
		NetworkLocation: d.NetworkLocation,
		Admin:           d.Admin,
		Disallowed:      d.Disallowed,
		IsAlive:         d.IsAlive,
		LastUpdate:      d.LastUpdate,
		SoftwareVersion: d.SoftwareVersion,
		Capacity:        d.Capacity,
		DfsUsed:         d.DfsUsed,
		Remaining:       d.Remaining,
	}
}

// DescriptorSnapshot is a defensive, lock-free copy of a Descriptor for
// reporting.
type DescriptorSnapshot struct {
	StorageID       string
	IPAddr          string
	HostName        string
	XferPort        int
	NetworkLocation string
	Admin           AdminState
	Disallowed      bool
	IsAlive         bool
	LastUpdate      int64
	SoftwareVersion string
	Capacity        uint64
	DfsUsed         uint64
	Remaining       uint64
}
