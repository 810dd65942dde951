package coordinator

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// ReportType selects which bucket getDatanodeListForReport returns.
type ReportType int

const (
	ReportLive ReportType = iota
	ReportDead
	ReportAll
)

// GetDatanodeListForReport snapshots the primary map and buckets by
// liveness. When listing DEAD, it also synthesizes placeholder
// descriptors for included-but-unseen hosts not on the exclude list.
func (m *Manager) GetDatanodeListForReport(kind ReportType) []DescriptorSnapshot {
	all := m.registry.All()
	now := nowMillis()
	expire := m.cfg.heartbeatExpireIntervalMillis()

	var live, dead []DescriptorSnapshot
	for _, d := range all {
		snap := d.Snapshot()
		if d.IsDead(now, expire) {
			dead = append(dead, snap)
		} else {
			live = append(live, snap)
		}
	}

	switch kind {
	case ReportLive:
		return live
	case ReportDead:
		return append(dead, m.synthesizeUnseenDeadHosts(live, dead)...)
	default:
		out := make([]DescriptorSnapshot, 0, len(live)+len(dead))
		out = append(out, live...)
		out = append(out, dead...)
		return out
	}
}

// synthesizeUnseenDeadHosts builds placeholder dead descriptors for
// included hosts that are neither in the live/dead union nor excluded —
// operators expect such hosts to show up as dead rather than silently
// absent from reports.
func (m *Manager) synthesizeUnseenDeadHosts(live, dead []DescriptorSnapshot) []DescriptorSnapshot {
	seen := make(map[string]struct{}, len(live)+len(dead))
	hosts := make([]string, 0, len(live)+len(dead))
	for _, snap := range live {
		seen[snap.IPAddr] = struct{}{}
		hosts = append(hosts, snap.HostName)
	}
	for _, snap := range dead {
		seen[snap.IPAddr] = struct{}{}
		hosts = append(hosts, snap.HostName)
	}

	var synth []DescriptorSnapshot
nextEntry:
	for _, e := range m.hostReader.Includes() {
		if _, ok := seen[e.IPAddress]; ok {
			continue
		}
		if e.IPAddress == "" {
			for _, h := range hosts {
				if strings.HasPrefix(h, e.HostNamePrefix) {
					continue nextEntry
				}
			}
		}
		if m.hostReader.IsExcluded(e.IPAddress, e.HostNamePrefix, e.Port) {
			continue
		}
		port := e.Port
		if port == 0 {
			port = m.cfg.DefaultXferPort
		}
		synth = append(synth, DescriptorSnapshot{
			IPAddr:   e.IPAddress,
			HostName: e.HostNamePrefix,
			XferPort: port,
			Admin:    Normal,
			IsAlive:  false,
		})
	}
	return synth
}

// GetDecommissioningNodes filters LIVE descriptors to those currently
// DECOMMISSION_IN_PROGRESS.
func (m *Manager) GetDecommissioningNodes() []DescriptorSnapshot {
	var out []DescriptorSnapshot
	for _, snap := range m.GetDatanodeListForReport(ReportLive) {
		if snap.Admin == DecommissionInProgress {
			out = append(out, snap)
		}
	}
	return out
}

// RemoveDecomNodesFromList strips descriptors that are fully decommissioned
// and appear in neither the include nor the exclude set — an operator has
// retired them and they should no longer show up at all, but only once
// there is an include list to consult.
func (m *Manager) RemoveDecomNodesFromList(list []DescriptorSnapshot) []DescriptorSnapshot {
	if !m.hostReader.HasIncludes() {
		return list
	}
	out := make([]DescriptorSnapshot, 0, len(list))
	for _, snap := range list {
		if snap.Admin == Decommissioned {
			included := m.hostReader.IsIncluded(snap.IPAddr, snap.HostName, snap.XferPort)
			excluded := m.hostReader.IsExcluded(snap.IPAddr, snap.HostName, snap.XferPort)
			if !included && !excluded {
				continue
			}
		}
		out = append(out, snap)
	}
	return out
}

// demotionRank pushes decommissioned nodes, then (if enabled) stale nodes,
// to the end of a sort without disturbing relative order otherwise.
func demotionRank(d *Descriptor, nowMillis, staleIntervalMillis int64, avoidStaleForRead bool) int {
	snap := d.Snapshot()
	if snap.Admin == Decommissioned {
		return 2
	}
	if avoidStaleForRead && d.IsStale(nowMillis, staleIntervalMillis) {
		return 1
	}
	return 0
}

// SortLocatedBlocks resolves the reader's network location and, for each
// block's location list (expressed as storage IDs), pseudo-sorts by
// distance and then stably demotes decommissioned and (optionally) stale
// replicas to the end.
func (m *Manager) SortLocatedBlocks(readerHost string, blocks [][]string) [][]string {
	readerLoc := m.resolveReaderLocation(readerHost)
	now := nowMillis()
	staleMs := m.cfg.effectiveStaleIntervalMillis()

	out := make([][]string, len(blocks))
	for i, locs := range blocks {
		descs := make([]*Descriptor, 0, len(locs))
		for _, id := range locs {
			if d := m.registry.Get(id); d != nil {
				descs = append(descs, d)
			}
		}
		pseudoSortByDistance(readerLoc, descs)
		sort.SliceStable(descs, func(a, b int) bool {
			return demotionRank(descs[a], now, staleMs, m.cfg.AvoidStaleForRead) <
				demotionRank(descs[b], now, staleMs, m.cfg.AvoidStaleForRead)
		})
		ids := make([]string, len(descs))
		for j, d := range descs {
			ids[j] = d.StorageID
		}
		out[i] = ids
	}
	return out
}

// resolveReaderLocation prefers a registered node's own network location
// and only resolves via DNS when the reader host isn't itself a datanode.
func (m *Manager) resolveReaderLocation(host string) string {
	if d := m.registry.LookupByHost(host); d != nil {
		return d.Snapshot().NetworkLocation
	}
	return m.resolveLocation(host, host, "")
}

// GetDatanodeDescriptor is host-file-entry resolution: exact (ip, port),
// else any descriptor on the host, else a random descriptor in the same
// rack, else any node in the cluster.
func (m *Manager) GetDatanodeDescriptor(ipAddr string, port int, host string) *DescriptorSnapshot {
	if d := m.registry.LookupByXferAddr(ipAddr, port); d != nil {
		s := d.Snapshot()
		return &s
	}
	if d := m.registry.LookupByHost(host); d != nil {
		s := d.Snapshot()
		return &s
	}
	rack := m.resolveLocation(ipAddr, host, "")
	if nodes := m.topology.datanodesInRack(rack); len(nodes) > 0 {
		s := nodes[0].Snapshot()
		return &s
	}
	if d := m.topology.chooseRandom(); d != nil {
		s := d.Snapshot()
		return &s
	}
	return nil
}

// RefreshNodes reloads the host files (IO errors logged and tolerated —
// the previous policy stays in effect), pre-warms a CachingSwitchResolver
// with the include list, reclassifies every existing descriptor, then
// recomputes the software-version histogram.
func (m *Manager) RefreshNodes() {
	if err := m.hostReader.Refresh(); err != nil {
		logrus.WithError(err).Warn("refreshNodes: host file IO error, keeping previous policy")
	}
	if c, ok := m.resolver.(CachingSwitchResolver); ok {
		var names []string
		for _, e := range m.hostReader.Includes() {
			if e.IPAddress != "" {
				names = append(names, e.IPAddress)
			} else {
				names = append(names, e.HostNamePrefix)
			}
		}
		if err := c.ReloadCached(names); err != nil {
			logrus.WithError(err).Warn("refreshNodes: switch resolver pre-warm failed")
		}
	}

	m.nsMu.Lock()
	defer m.nsMu.Unlock()

	now := nowMillis()
	for _, d := range m.registry.All() {
		snap := d.Snapshot()
		included := m.hostReader.IsIncluded(snap.IPAddr, snap.HostName, snap.XferPort)
		excluded := m.hostReader.IsExcluded(snap.IPAddr, snap.HostName, snap.XferPort)

		switch {
		case !included:
			d.mu.Lock()
			d.Disallowed = true
			d.mu.Unlock()
		case included && excluded:
			startDecommission(d, m.blockMgr, m.stats, now)
		default:
			stopDecommission(d, m.blockMgr, m.stats)
		}
	}
	m.registry.RecomputeVersionHistogram()
}

// SetBalancerBandwidth broadcasts a new bandwidth value to every
// descriptor; each delivers it on its next heartbeat.
func (m *Manager) SetBalancerBandwidth(n int64) {
	for _, d := range m.registry.All() {
		d.SetBandwidth(n)
	}
}
