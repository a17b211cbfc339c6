package dht

import (
	"net"
	"sync"
	"time"
)

// PeerAddr is one peer endpoint stored for an infohash.
type PeerAddr struct {
	IP   net.IP
	Port uint16
}

type peerEntry struct {
	addr  PeerAddr
	added time.Time
}

// PeerStore maps infohashes to the peers that announced them. Entries
// expire after a TTL: Get filters expired entries and Sweep reclaims
// them, so the store stays bounded by announce traffic within one TTL
// window.
type PeerStore struct {
	entries map[NodeID][]peerEntry
	ttl     time.Duration
	mu      sync.RWMutex
}

// NewPeerStore creates a peer store whose entries expire after ttl.
// A zero ttl disables expiry.
func NewPeerStore(ttl time.Duration) *PeerStore {
	return &PeerStore{
		entries: make(map[NodeID][]peerEntry),
		ttl:     ttl,
	}
}

// Add records a peer for an infohash. Duplicates are permitted; each
// announce refreshes presence through its own timestamp.
func (ps *PeerStore) Add(infohash NodeID, addr PeerAddr) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.entries[infohash] = append(ps.entries[infohash], peerEntry{
		addr:  addr,
		added: time.Now(),
	})
}

// Get returns the unexpired peers recorded for an infohash, oldest
// announce first.
func (ps *PeerStore) Get(infohash NodeID) []PeerAddr {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []PeerAddr
	for _, entry := range ps.entries[infohash] {
		if ps.expired(entry) {
			continue
		}
		peers = append(peers, entry.addr)
	}
	return peers
}

// Sweep drops expired entries and empty infohash keys, returning the
// number of entries removed.
func (ps *PeerStore) Sweep() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	removed := 0
	for infohash, entries := range ps.entries {
		kept := entries[:0]
		for _, entry := range entries {
			if ps.expired(entry) {
				removed++
				continue
			}
			kept = append(kept, entry)
		}
		if len(kept) == 0 {
			delete(ps.entries, infohash)
		} else {
			ps.entries[infohash] = kept
		}
	}
	return removed
}

// Len returns the number of infohashes with at least one entry.
func (ps *PeerStore) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.entries)
}

func (ps *PeerStore) expired(entry peerEntry) bool {
	return ps.ttl > 0 && time.Since(entry.added) > ps.ttl
}
