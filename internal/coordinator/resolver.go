package coordinator

import "sync"

// DefaultRack is the fallback network location used when a resolver
// returns no mapping for a name (spec §7: "DNS resolver returns null").
const DefaultRack = "/default-rack"

// SwitchResolver maps a host or IP name to a rack path. Resolution may
// block on an external script or network call, so the heartbeat fast path
// must never call it directly (registration and the SortLocatedBlocks /
// GetDatanodeDescriptor queries do).
type SwitchResolver interface {
	Resolve(names []string) ([]string, error)
}

// CachingSwitchResolver is the capability-dispatch variant the Manager
// detects: resolvers that also support a bulk "reload and cache" call get
// used to pre-warm the include list on refreshNodes, instead of resolving
// one name at a time.
type CachingSwitchResolver interface {
	SwitchResolver
	ReloadCached(names []string) error
	Evict(names ...string)
}

// StaticSwitchResolver resolves against an explicit name→rack table,
// falling back to DefaultRack, and caches results so repeated lookups of
// the same name are free. It implements CachingSwitchResolver.
type StaticSwitchResolver struct {
	mu    sync.RWMutex
	table map[string]string
	cache map[string]string
}

// NewStaticSwitchResolver builds a resolver from a fixed table. A nil or
// empty table means every name falls back to DefaultRack.
func NewStaticSwitchResolver(table map[string]string) *StaticSwitchResolver {
	cp := make(map[string]string, len(table))
	for k, v := range table {
		cp[k] = v
	}
	return &StaticSwitchResolver{table: cp, cache: make(map[string]string)}
}

func (r *StaticSwitchResolver) Resolve(names []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(names))
	for i, n := range names {
		if cached, ok := r.cache[n]; ok {
			out[i] = cached
			continue
		}
		path, ok := r.table[n]
		if !ok || path == "" {
			path = DefaultRack
		}
		r.cache[n] = path
		out[i] = path
	}
	return out, nil
}

// ReloadCached resolves and caches names in bulk, used to pre-warm the
// cache for the include list before heartbeats start arriving.
func (r *StaticSwitchResolver) ReloadCached(names []string) error {
	_, err := r.Resolve(names)
	return err
}

// Evict drops names from the cache so the next Resolve re-derives them —
// called after InvalidTopology so a later retry resolves cleanly.
func (r *StaticSwitchResolver) Evict(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		delete(r.cache, n)
	}
}
