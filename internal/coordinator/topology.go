package coordinator

import (
	"math/rand"
	"sort"
	"strings"
	"sync"
)

// InvalidTopologyError is returned by Topology.add when a rack path
// conflicts with the tree's existing shape (see Topology.add).
type InvalidTopologyError struct {
	Path   string
	Reason string
}

func (e *InvalidTopologyError) Error() string {
	return "invalid topology: " + e.Path + ": " + e.Reason
}

// Topology is C2: an in-memory tree of rack paths. All rack paths
// registered at any time must share the same depth (number of "/"
// separated segments) — mixing a 2-level path like "/dc1/rack1" with a
// 1-level path like "/dc1" at the top of the tree is the conflict
// pseudoSortByDistance and chooseRandom rely on a consistent shape to rank
// against, so it is rejected as InvalidTopology rather than silently
// tolerated.
type Topology struct {
	mu    sync.RWMutex
	racks map[string]map[*Descriptor]struct{}
	depth int
}

// NewTopology returns an empty topology.
func NewTopology() *Topology {
	return &Topology{racks: make(map[string]map[*Descriptor]struct{})}
}

func segments(path string) int {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return 0
	}
	return len(strings.Split(trimmed, "/"))
}

// add attaches d at its NetworkLocation. Returns InvalidTopologyError if
// the path's depth disagrees with every other path already in the tree.
func (t *Topology) add(d *Descriptor) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	path := d.NetworkLocation
	n := segments(path)
	if len(t.racks) > 0 && t.depth != n {
		return &InvalidTopologyError{Path: path, Reason: "rack depth mismatch"}
	}
	t.depth = n

	set, ok := t.racks[path]
	if !ok {
		set = make(map[*Descriptor]struct{})
		t.racks[path] = set
	}
	set[d] = struct{}{}
	return nil
}

// remove detaches d from its rack, pruning the rack entry once empty.
func (t *Topology) remove(d *Descriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.racks[d.NetworkLocation]
	if !ok {
		return
	}
	delete(set, d)
	if len(set) == 0 {
		delete(t.racks, d.NetworkLocation)
		if len(t.racks) == 0 {
			t.depth = 0
		}
	}
}

// numRacks returns the count of distinct rack paths currently populated.
func (t *Topology) numRacks() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.racks)
}

// datanodesInRack returns every descriptor currently attached at path.
func (t *Topology) datanodesInRack(path string) []*Descriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.racks[path]
	out := make([]*Descriptor, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	return out
}

// chooseRandom returns a uniformly random descriptor from the whole
// topology, or nil if it is empty.
func (t *Topology) chooseRandom() *Descriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var all []*Descriptor
	for _, set := range t.racks {
		for d := range set {
			all = append(all, d)
		}
	}
	if len(all) == 0 {
		return nil
	}
	return all[rand.Intn(len(all))]
}

// distanceTier ranks candidate relative to reader: 0 = same node, 1 = same rack,
// 2 = same top-level (datacenter) segment, 3 = everything else.
func distanceTier(reader, candidate string) int {
	if reader == candidate {
		return 0
	}
	ra := strings.Split(strings.Trim(reader, "/"), "/")
	ca := strings.Split(strings.Trim(candidate, "/"), "/")
	if len(ra) > 0 && len(ca) > 0 && ra[0] == ca[0] {
		if len(ra) > 1 && len(ca) > 1 && ra[1] == ca[1] {
			return 1
		}
		return 2
	}
	return 3
}

// pseudoSortByDistance stably reorders nodes in place, placing topologically
// closer entries before farther ones (local < same rack < same datacenter <
// farther), without fully sorting within a tier.
func pseudoSortByDistance(readerLocation string, nodes []*Descriptor) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return distanceTier(readerLocation, nodes[i].NetworkLocation) < distanceTier(readerLocation, nodes[j].NetworkLocation)
	})
}
