package actor

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
)

// Node is one runtime process in the cluster.
type Node struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// Ring maps entity addresses onto nodes by consistent hashing with
// virtual nodes, so membership changes move only a slice of the keyspace.
type Ring struct {
	mu     sync.RWMutex
	vnodes int
	hashes []uint32
	owners map[uint32]Node
	nodes  map[string]Node
}

// NewRing builds an empty ring; vnodes <= 0 selects the default of 64
// virtual nodes per member.
func NewRing(vnodes int) *Ring {
	if vnodes <= 0 {
		vnodes = 64
	}
	return &Ring{
		vnodes: vnodes,
		owners: make(map[uint32]Node),
		nodes:  make(map[string]Node),
	}
}

// SetMembers replaces the full membership. Activations stranded on
// non-owning nodes are retired by the idle sweep.
func (r *Ring) SetMembers(nodes []Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hashes = r.hashes[:0]
	r.owners = make(map[uint32]Node, len(nodes)*r.vnodes)
	r.nodes = make(map[string]Node, len(nodes))

	for _, n := range nodes {
		r.nodes[n.ID] = n
		for v := 0; v < r.vnodes; v++ {
			h := hashKey(fmt.Sprintf("%s#%d", n.ID, v))
			r.hashes = append(r.hashes, h)
			r.owners[h] = n
		}
	}
	sort.Slice(r.hashes, func(i, j int) bool { return r.hashes[i] < r.hashes[j] })
}

// Owner returns the node responsible for the address. ok is false when
// the ring has no members.
func (r *Ring) Owner(addr string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.hashes) == 0 {
		return Node{}, false
	}
	h := hashKey(addr)
	i := sort.Search(len(r.hashes), func(i int) bool { return r.hashes[i] >= h })
	if i == len(r.hashes) {
		i = 0
	}
	return r.owners[r.hashes[i]], true
}

// Members returns the current nodes in no particular order.
func (r *Ring) Members() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

func hashKey(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}
