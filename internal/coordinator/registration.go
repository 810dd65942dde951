package coordinator

import (
	"context"

	"github.com/sirupsen/logrus"
)

// RegistrationInput is the Manager-facing form of an incoming registration:
// the claimed storageID (may be empty), identity/address fields, and the
// software version. RemoteAddr, when non-empty, is the RPC layer's observed
// peer address and authoritatively overrides IPAddr.
type RegistrationInput struct {
	StorageID       string
	IPAddr          string
	HostName        string
	PeerHostName    string
	Ports           Ports
	SoftwareVersion string
	RemoteAddr      string
}

// RegisterDatanode runs the full admission + resolution + update/new-
// descriptor protocol (C6) under a single namesystem write lock, and
// returns the (possibly freshly assigned) storage ID on success.
func (m *Manager) RegisterDatanode(in RegistrationInput) (string, error) {
	m.metrics.RegistrationsTotal.Inc()
	if in.RemoteAddr != "" {
		in.IPAddr = in.RemoteAddr
	}

	if m.cfg.CheckHostnameIP && in.HostName == in.IPAddr && !isLocalAddr(in.IPAddr) {
		return "", &DisallowedError{Reason: "unresolved"}
	}
	if m.hostReader.HasIncludes() && !m.hostReader.IsIncluded(in.IPAddr, in.HostName, in.Ports.Xfer) {
		return "", &DisallowedError{Reason: "not-included"}
	}

	m.nsMu.Lock()
	defer m.nsMu.Unlock()

	var s *Descriptor
	if in.StorageID != "" {
		s = m.registry.Get(in.StorageID)
	}
	n := m.registry.LookupByXferAddr(in.IPAddr, in.Ports.Xfer)

	if n != nil && n != s {
		logrus.WithFields(logrus.Fields{"storage_id": n.StorageID, "ip": in.IPAddr}).
			Info("evicting orphaned descriptor at colliding address")
		m.evictOrphan(n)
	}

	if s != nil {
		if err := m.updatePath(s, in); err != nil {
			return "", err
		}
		return s.StorageID, nil
	}

	id := in.StorageID
	if id == "" {
		id = generateStorageID(m.registry)
	}
	d, err := m.newPath(id, in)
	if err != nil {
		return "", err
	}
	return d.StorageID, nil
}

// updatePath implements the S ≠ null branch: same node restarted or
// replaced at a new address, both handled identically.
func (m *Manager) updatePath(s *Descriptor, in RegistrationInput) error {
	m.topology.remove(s)
	m.registry.DecrementVersionCount(s)

	s.ApplyRegistration(in.IPAddr, in.HostName, in.PeerHostName, in.Ports, in.SoftwareVersion)

	s.NetworkLocation = m.resolveLocation(in.IPAddr, in.HostName, in.PeerHostName)

	if err := m.topology.add(s); err != nil {
		m.evictResolverCache(in)
		m.rollback(s)
		return err
	}

	m.stats.Register(s)
	s.SetAlive(nowMillis())
	m.registry.IncrementVersionCount(s)
	checkDecommissioning(s, m.hostReader.IsExcluded(s.IPAddr, s.HostName, s.XferPort), m.blockMgr, m.stats, nowMillis())
	return nil
}

// newPath implements the S == null branch: a brand new descriptor.
func (m *Manager) newPath(id string, in RegistrationInput) (*Descriptor, error) {
	d := NewDescriptor(id, in.IPAddr, in.HostName, in.PeerHostName, in.Ports, in.SoftwareVersion)
	d.NetworkLocation = m.resolveLocation(in.IPAddr, in.HostName, in.PeerHostName)

	if err := m.registry.addDatanode(d); err != nil {
		m.evictResolverCache(in)
		m.rollback(d)
		return nil, err
	}

	m.registry.IncrementVersionCount(d)
	d.SetAlive(nowMillis())
	m.stats.Register(d)
	checkDecommissioning(d, m.hostReader.IsExcluded(d.IPAddr, d.HostName, d.XferPort), m.blockMgr, m.stats, nowMillis())
	return d, nil
}

// evictOrphan fully retires a descriptor that lost a collision: it belongs
// to a previous storage ID now orphaned at this address.
func (m *Manager) evictOrphan(d *Descriptor) {
	m.registry.removeDatanode(d)
	m.registry.wipeDatanode(d.StorageID)
}

// rollback undoes a partially applied registration: remove + wipe + recount
// versions, the all-or-nothing guarantee §7 requires.
func (m *Manager) rollback(d *Descriptor) {
	m.registry.removeDatanode(d)
	m.registry.wipeDatanode(d.StorageID)
}

// resolveLocation asks the SwitchResolver for d's rack path, falling back
// to DefaultRack and logging if the resolver has no mapping.
func (m *Manager) resolveLocation(ipAddr, hostName, peerHostName string) string {
	_ = m.resolveLimiter.Wait(context.Background())
	paths, err := m.resolver.Resolve([]string{hostName})
	if err != nil || len(paths) == 0 || paths[0] == "" {
		logrus.WithField("host", hostName).Warn("switch resolver returned no mapping, using default rack")
		return DefaultRack
	}
	return paths[0]
}

// evictResolverCache drops any cached mapping for the node's names so a
// later retry re-resolves cleanly, per the InvalidTopology error contract.
func (m *Manager) evictResolverCache(in RegistrationInput) {
	if c, ok := m.resolver.(CachingSwitchResolver); ok {
		c.Evict(in.HostName, in.IPAddr, in.PeerHostName)
	}
}

// isLocalAddr reports whether addr is a loopback address, exempted from
// the hostname/IP identity check.
func isLocalAddr(addr string) bool {
	return addr == "127.0.0.1" || addr == "::1" || addr == "localhost"
}
