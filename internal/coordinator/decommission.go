package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// startDecommission transitions d from NORMAL to DECOMMISSION_IN_PROGRESS,
// notes the start time, tells the stats manager, and immediately attempts
// the completion check (a node with zero blocks finishes in the same call,
// as in scenario S5).
func startDecommission(d *Descriptor, blockMgr BlockManager, stats *HeartbeatStats, nowMillis int64) {
	d.mu.Lock()
	if d.Admin != Normal {
		d.mu.Unlock()
		return
	}
	d.Admin = DecommissionInProgress
	d.DecommissionStartedAt = nowMillis
	d.mu.Unlock()

	stats.NoteDecommissionStart(d.StorageID)
	attemptDecommissionCompletion(d, blockMgr)
}

// stopDecommission transitions d back to NORMAL from either decommission
// state. If the node is alive, the Block Manager is asked to process
// now-over-replicated blocks since excess replicas created during
// decommission are no longer needed.
func stopDecommission(d *Descriptor, blockMgr BlockManager, stats *HeartbeatStats) {
	d.mu.Lock()
	if d.Admin == Normal {
		d.mu.Unlock()
		return
	}
	d.Admin = Normal
	alive := d.IsAlive
	d.mu.Unlock()

	stats.NoteDecommissionStop(d.StorageID)
	if alive {
		blockMgr.ProcessOverReplicatedBlocks(d.StorageID)
	}
}

// checkDecommissioning starts decommission if d is excluded; called after
// every registration update.
func checkDecommissioning(d *Descriptor, excluded bool, blockMgr BlockManager, stats *HeartbeatStats, nowMillis int64) {
	if excluded {
		startDecommission(d, blockMgr, stats, nowMillis)
	}
}

// attemptDecommissionCompletion moves d from DECOMMISSION_IN_PROGRESS to
// DECOMMISSIONED once the Block Manager reports no replication still in
// flight for it.
func attemptDecommissionCompletion(d *Descriptor, blockMgr BlockManager) {
	d.mu.Lock()
	inProgress := d.Admin == DecommissionInProgress
	id := d.StorageID
	d.mu.Unlock()
	if !inProgress {
		return
	}
	if blockMgr.IsReplicationInProgress(id) {
		return
	}
	d.mu.Lock()
	if d.Admin == DecommissionInProgress {
		d.Admin = Decommissioned
	}
	d.mu.Unlock()
	logrus.WithField("storage_id", id).Info("decommission complete")
}

// decommissionMonitor is C5's periodic task: every tick it inspects at most
// nodesPerInterval descriptors currently DECOMMISSION_IN_PROGRESS,
// iterating cyclically across the registry key space and preserving its
// last-visited key between ticks, the way the original monitor avoids
// starving nodes late in iteration order.
type decommissionMonitor struct {
	registry         *Registry
	blockMgr         BlockManager
	interval         time.Duration
	nodesPerInterval int

	mu      sync.Mutex
	lastKey string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newDecommissionMonitor(registry *Registry, blockMgr BlockManager, interval time.Duration, nodesPerInterval int) *decommissionMonitor {
	return &decommissionMonitor{
		registry:         registry,
		blockMgr:         blockMgr,
		interval:         interval,
		nodesPerInterval: nodesPerInterval,
	}
}

// Start launches the monitor's ticker goroutine.
func (m *decommissionMonitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.tick()
			}
		}
	}()
}

// Stop cancels the monitor and joins with a 3-second budget, per the
// shutdown contract in §5.
func (m *decommissionMonitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		logrus.Warn("decommission monitor did not stop within shutdown budget")
	}
}

// tick scans at most nodesPerInterval in-progress descriptors, cyclically
// continuing from the last-visited key.
func (m *decommissionMonitor) tick() {
	all := m.registry.All()
	if len(all) == 0 {
		return
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StorageID < all[j].StorageID })

	m.mu.Lock()
	startIdx := 0
	for i, d := range all {
		if d.StorageID > m.lastKey {
			startIdx = i
			break
		}
	}
	m.mu.Unlock()

	visited := 0
	checked := 0
	n := len(all)
	for i := 0; i < n && checked < m.nodesPerInterval; i++ {
		idx := (startIdx + i) % n
		d := all[idx]
		visited++
		if d.Snapshot().Admin != DecommissionInProgress {
			continue
		}
		attemptDecommissionCompletion(d, m.blockMgr)
		checked++
	}

	m.mu.Lock()
	if visited > 0 {
		m.lastKey = all[(startIdx+visited-1)%n].StorageID
	}
	m.mu.Unlock()
}
