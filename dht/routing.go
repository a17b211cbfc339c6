package dht

import (
	"sort"
	"sync"
)

// PingFunc probes a contact and reports whether it answered. The
// routing table calls it when a full bucket must decide between its
// oldest contact and a new one.
type PingFunc func(*Node) bool

// KBucket holds up to maxSize contacts ordered least-recently-seen
// first, most-recently-seen last.
type KBucket struct {
	nodes   []*Node
	maxSize int
	mu      sync.RWMutex
}

// NewKBucket creates an empty k-bucket with the given capacity.
func NewKBucket(maxSize int) *KBucket {
	return &KBucket{
		nodes:   make([]*Node, 0, maxSize),
		maxSize: maxSize,
	}
}

// AddNode applies the Kademlia update rule. A contact already present
// moves to the tail. A contact joining a bucket with room is appended.
// When the bucket is full the head (oldest) contact is probed with
// ping: if it answers it rotates to the tail and the newcomer is
// dropped, otherwise it is evicted and the newcomer appended.
// The return value reports whether the newcomer is now in the bucket.
func (kb *KBucket) AddNode(node *Node, ping PingFunc) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	for i, existing := range kb.nodes {
		if existing.Equal(node) {
			existing.Touch()
			kb.nodes = append(kb.nodes[:i], kb.nodes[i+1:]...)
			kb.nodes = append(kb.nodes, existing)
			return true
		}
	}

	if len(kb.nodes) < kb.maxSize {
		kb.nodes = append(kb.nodes, node)
		return true
	}

	head := kb.nodes[0]
	if ping != nil && ping(head) {
		head.Touch()
		kb.nodes = append(kb.nodes[1:], head)
		return false
	}

	kb.nodes = append(kb.nodes[1:], node)
	return true
}

// GetNodes returns a copy of the bucket contents, oldest first.
func (kb *KBucket) GetNodes() []*Node {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	result := make([]*Node, len(kb.nodes))
	copy(result, kb.nodes)
	return result
}

// Len returns the number of contacts in the bucket.
func (kb *KBucket) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.nodes)
}

// RoutingTable is the XOR-bucketed contact set. Buckets are indexed by
// NodeID.BucketIndex relative to the local identifier and appended
// lazily the first time an index is needed.
type RoutingTable struct {
	selfID     NodeID
	buckets    []*KBucket
	bucketSize int
	pinger     PingFunc
	mu         sync.RWMutex
}

// NewRoutingTable creates a routing table for the given local
// identifier.
func NewRoutingTable(selfID NodeID, bucketSize int) *RoutingTable {
	return &RoutingTable{
		selfID:     selfID,
		buckets:    []*KBucket{NewKBucket(bucketSize)},
		bucketSize: bucketSize,
	}
}

// SetPinger installs the probe used for full-bucket eviction
// decisions. Without one, full buckets always evict their head.
func (rt *RoutingTable) SetPinger(ping PingFunc) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.pinger = ping
}

// AddNode inserts a contact into its bucket. Contacts carrying the
// local identifier are rejected.
func (rt *RoutingTable) AddNode(node *Node) bool {
	if node.ID == rt.selfID {
		return false
	}

	index := rt.selfID.BucketIndex(node.ID)

	rt.mu.Lock()
	for index >= len(rt.buckets) {
		rt.buckets = append(rt.buckets, NewKBucket(rt.bucketSize))
	}
	bucket := rt.buckets[index]
	ping := rt.pinger
	rt.mu.Unlock()

	return bucket.AddNode(node, ping)
}

// FindClosestNodes returns up to count contacts sorted ascending by
// XOR distance to target. The sort is stable, so equidistant contacts
// keep their gathering order.
func (rt *RoutingTable) FindClosestNodes(target NodeID, count int) []*Node {
	if count <= 0 {
		return nil
	}

	all := rt.AllNodes()
	sort.SliceStable(all, func(i, j int) bool {
		return distanceLess(all[i].ID.Xor(target), all[j].ID.Xor(target))
	})

	if len(all) > count {
		all = all[:count]
	}
	return all
}

// AllNodes returns every contact, walking buckets in index order.
func (rt *RoutingTable) AllNodes() []*Node {
	rt.mu.RLock()
	buckets := make([]*KBucket, len(rt.buckets))
	copy(buckets, rt.buckets)
	rt.mu.RUnlock()

	var all []*Node
	for _, bucket := range buckets {
		all = append(all, bucket.GetNodes()...)
	}
	return all
}

// Snapshot returns a copy of the bucket structure for read-only
// inspection.
func (rt *RoutingTable) Snapshot() [][]*Node {
	rt.mu.RLock()
	buckets := make([]*KBucket, len(rt.buckets))
	copy(buckets, rt.buckets)
	rt.mu.RUnlock()

	snapshot := make([][]*Node, len(buckets))
	for i, bucket := range buckets {
		snapshot[i] = bucket.GetNodes()
	}
	return snapshot
}

// Size returns the total number of contacts across all buckets.
func (rt *RoutingTable) Size() int {
	total := 0
	for _, nodes := range rt.Snapshot() {
		total += len(nodes)
	}
	return total
}
