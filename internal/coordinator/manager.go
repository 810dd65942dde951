package coordinator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Config holds every tunable named in the external-interfaces table: the
// heartbeat cadence, dead/stale thresholds, decommission monitor pacing,
// and the admission/placement policy switches.
type Config struct {
	HeartbeatIntervalSeconds  int64
	HeartbeatRecheckInterval  time.Duration
	BlockInvalidateLimit      int
	CheckHostnameIP           bool
	AvoidStaleForRead         bool
	AvoidStaleForWrite        bool
	StaleInterval             time.Duration
	MinStaleIntervalFactor    int64
	UseStaleWriteRatio        float64
	DecommissionInterval      time.Duration
	DecommissionNodesPerTick  int
	DefaultXferPort           int
}

// DefaultConfig returns the values the manual names as defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatIntervalSeconds: 3,
		HeartbeatRecheckInterval: 1 * time.Second,
		BlockInvalidateLimit:     1000,
		CheckHostnameIP:          false,
		AvoidStaleForRead:        true,
		AvoidStaleForWrite:       true,
		StaleInterval:            30 * time.Second,
		MinStaleIntervalFactor:   3,
		UseStaleWriteRatio:       0.5,
		DecommissionInterval:     30 * time.Second,
		DecommissionNodesPerTick: 10,
		DefaultXferPort:          50010,
	}
}

// heartbeatExpireIntervalMillis implements §5's formula:
// 2·recheckInterval + 10·heartbeatIntervalSeconds, expressed in
// milliseconds.
func (c Config) heartbeatExpireIntervalMillis() int64 {
	return 2*c.HeartbeatRecheckInterval.Milliseconds() + 10*c.HeartbeatIntervalSeconds*1000
}

// effectiveStaleIntervalMillis clamps StaleInterval to the configured
// floor and warns (but does not clamp) when it exceeds the expiry window.
func (c Config) effectiveStaleIntervalMillis() int64 {
	floor := c.MinStaleIntervalFactor * c.HeartbeatIntervalSeconds * 1000
	v := c.StaleInterval.Milliseconds()
	if v < floor {
		v = floor
	}
	if v > c.heartbeatExpireIntervalMillis() {
		logrus.WithFields(logrus.Fields{
			"stale_interval_ms":  v,
			"expire_interval_ms": c.heartbeatExpireIntervalMillis(),
		}).Warn("stale interval exceeds heartbeat expire interval")
	}
	return v
}

// Manager is the Datanode Manager: it wires the Registry, Topology,
// HeartbeatStats, BlockManager, HostFileReader, and SwitchResolver
// together and exposes the registration/heartbeat/reporting/admin API.
//
// nsMu is the "namesystem write lock" of §5's lock ordering — the
// outermost lock, held across any mutation that also touches the Block
// Manager (registration, removeDatanode, refreshNodes). It must never be
// acquired after HeartbeatStats' or the Registry's own locks.
type Manager struct {
	nsMu sync.Mutex

	cfg Config

	registry   *Registry
	topology   *Topology
	stats      *HeartbeatStats
	blockMgr   BlockManager
	hostReader HostFileReader
	resolver   SwitchResolver

	sendCachingCommands bool
	safeMode            atomic.Bool

	decomMonitor *decommissionMonitor
	sweepCancel  context.CancelFunc
	sweepWG      sync.WaitGroup

	resolveLimiter *rate.Limiter

	metrics *Metrics
}

// NewManager builds a Manager with all collaborators wired. Pass nil for
// blockMgr/hostReader/resolver to get the package's in-memory defaults.
func NewManager(cfg Config, blockMgr BlockManager, hostReader HostFileReader, resolver SwitchResolver) *Manager {
	if blockMgr == nil {
		blockMgr = NoopBlockManager{}
	}
	if hostReader == nil {
		hostReader, _ = NewFileHostReader("", "")
	}
	if resolver == nil {
		resolver = NewStaticSwitchResolver(nil)
	}

	topology := NewTopology()
	stats := NewHeartbeatStats()
	registry := NewRegistry(topology, blockMgr, stats)

	m := &Manager{
		cfg:            cfg,
		registry:       registry,
		topology:       topology,
		stats:          stats,
		blockMgr:       blockMgr,
		hostReader:     hostReader,
		resolver:       resolver,
		resolveLimiter: rate.NewLimiter(rate.Limit(50), 50),
		metrics:        NewMetrics(),
	}
	m.decomMonitor = newDecommissionMonitor(registry, blockMgr, cfg.DecommissionInterval, cfg.DecommissionNodesPerTick)
	return m
}

// Start launches the Decommission Monitor and the Heartbeat Statistics
// dead-node sweep, both as cancellable background goroutines.
func (m *Manager) Start(ctx context.Context) {
	m.decomMonitor.Start(ctx)

	sweepCtx, cancel := context.WithCancel(ctx)
	m.sweepCancel = cancel
	m.sweepWG.Add(1)
	go func() {
		defer m.sweepWG.Done()
		ticker := time.NewTicker(m.cfg.HeartbeatRecheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				m.runSweep()
			}
		}
	}()
}

// Stop joins both background goroutines with the 3-second shutdown budget.
func (m *Manager) Stop() {
	m.decomMonitor.Stop()
	if m.sweepCancel == nil {
		return
	}
	m.sweepCancel()
	done := make(chan struct{})
	go func() {
		m.sweepWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		logrus.Warn("heartbeat stats sweep did not stop within shutdown budget")
	}
}

func (m *Manager) runSweep() {
	now := nowMillis()
	newlyDead := m.stats.Sweep(now, m.cfg.heartbeatExpireIntervalMillis(), m.cfg.effectiveStaleIntervalMillis())
	for _, d := range newlyDead {
		logrus.WithField("storage_id", d.StorageID).Warn("datanode declared dead")
	}
	m.metrics.Observe(m)
}

// nowMillis returns the current monotonic-ish wall clock in milliseconds.
// Descriptors compare against it, never against each other's clocks.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// SetSafeMode toggles coordinator safe mode. While in safe mode, heartbeats
// return an empty command list without even draining queues.
func (m *Manager) SetSafeMode(v bool) {
	m.safeMode.Store(v)
}

// MetricsRegistry returns a Prometheus registry pre-populated with this
// Manager's collectors, for cmd/coordinator to mount behind promhttp.
func (m *Manager) MetricsRegistry() *prometheus.Registry {
	return m.metrics.Registry()
}

// SetSendCachingCommands is the single-writer process-wide flag gating
// CACHE/UNCACHE command emission.
func (m *Manager) SetSendCachingCommands(v bool) {
	m.sendCachingCommands = v
}

// HasEverBeenMultiRack reports whether the cluster has ever contained
// datanodes spanning more than one rack.
func (m *Manager) HasEverBeenMultiRack() bool {
	return m.registry.HasEverBeenMultiRack()
}

// VersionHistogram returns the current software-version population counts.
func (m *Manager) VersionHistogram() map[string]int {
	return m.registry.VersionHistogram()
}

// SetPopulatingReplicationQueues toggles whether registration is allowed to
// trigger a mis-replicated-blocks scan, mirroring the namesystem's startup
// gate before it has finished building its replication queues.
func (m *Manager) SetPopulatingReplicationQueues(v bool) {
	m.registry.SetPopulatingReplicationQueues(v)
}

// generateStorageID mints a fresh, registry-unique storage identifier, the
// way the registration protocol does for a brand-new node presenting an
// empty storageID.
func generateStorageID(registry *Registry) string {
	for {
		id := fmt.Sprintf("DS-%d", rand.Int63())
		if registry.Get(id) == nil {
			return id
		}
	}
}
