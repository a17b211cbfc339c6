package dht

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerStoreAddAndGet(t *testing.T) {
	ps := NewPeerStore(0)
	infohash := fillID(0x11)

	ps.Add(infohash, PeerAddr{IP: net.IPv4(1, 2, 3, 4), Port: 6881})
	ps.Add(infohash, PeerAddr{IP: net.IPv4(5, 6, 7, 8), Port: 51413})

	peers := ps.Get(infohash)
	require.Len(t, peers, 2)
	assert.True(t, peers[0].IP.Equal(net.IPv4(1, 2, 3, 4)), "oldest announce first")
	assert.Equal(t, 1, ps.Len())
}

func TestPeerStoreAllowsDuplicates(t *testing.T) {
	ps := NewPeerStore(0)
	infohash := fillID(0x11)
	addr := PeerAddr{IP: net.IPv4(1, 2, 3, 4), Port: 6881}

	ps.Add(infohash, addr)
	ps.Add(infohash, addr)
	assert.Len(t, ps.Get(infohash), 2)
}

func TestPeerStoreUnknownInfohash(t *testing.T) {
	ps := NewPeerStore(0)
	assert.Empty(t, ps.Get(fillID(0x22)))
}

func TestPeerStoreTTLFiltersOnGet(t *testing.T) {
	ps := NewPeerStore(10 * time.Millisecond)
	infohash := fillID(0x11)
	ps.Add(infohash, PeerAddr{IP: net.IPv4(1, 2, 3, 4), Port: 6881})

	require.Len(t, ps.Get(infohash), 1)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, ps.Get(infohash), "expired entries are filtered")
}

func TestPeerStoreSweepReclaimsExpired(t *testing.T) {
	ps := NewPeerStore(10 * time.Millisecond)
	ps.Add(fillID(0x11), PeerAddr{IP: net.IPv4(1, 2, 3, 4), Port: 6881})
	ps.Add(fillID(0x22), PeerAddr{IP: net.IPv4(5, 6, 7, 8), Port: 6881})

	time.Sleep(20 * time.Millisecond)
	ps.Add(fillID(0x22), PeerAddr{IP: net.IPv4(9, 9, 9, 9), Port: 6881})

	removed := ps.Sweep()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, ps.Len(), "empty infohash keys are deleted")
	assert.Len(t, ps.Get(fillID(0x22)), 1)
}

func TestPeerStoreZeroTTLNeverExpires(t *testing.T) {
	ps := NewPeerStore(0)
	ps.Add(fillID(0x11), PeerAddr{IP: net.IPv4(1, 2, 3, 4), Port: 6881})

	assert.Zero(t, ps.Sweep())
	assert.Len(t, ps.Get(fillID(0x11)), 1)
}
