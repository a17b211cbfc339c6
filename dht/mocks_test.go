package dht

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/amit19singh/Kademlia-DHT/transport"
)

// sentDatagram records one Send call on the mock transport.
type sentDatagram struct {
	data []byte
	addr net.Addr
}

// mockTransport is an in-memory transport.Transport. Sends are
// recorded for inspection; Query is answered by a test-provided
// function, defaulting to a timeout-like failure.
type mockTransport struct {
	mu      sync.Mutex
	sent    []sentDatagram
	queryFn func(data []byte, addr net.Addr) ([]byte, error)
	closed  chan struct{}
	local   net.Addr
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		closed: make(chan struct{}),
		local:  &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 6881},
	}
}

func (m *mockTransport) Send(data []byte, addr net.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.sent = append(m.sent, sentDatagram{data: buf, addr: addr})
	return nil
}

func (m *mockTransport) Query(data []byte, addr net.Addr, timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	fn := m.queryFn
	m.mu.Unlock()
	if fn == nil {
		return nil, errors.New("i/o timeout")
	}
	return fn(data, addr)
}

func (m *mockTransport) Run(handler transport.DatagramHandler) {
	<-m.closed
}

func (m *mockTransport) LocalAddr() net.Addr {
	return m.local
}

func (m *mockTransport) Close() error {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	return nil
}

func (m *mockTransport) sentDatagrams() []sentDatagram {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentDatagram, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *mockTransport) setQueryFn(fn func(data []byte, addr net.Addr) ([]byte, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryFn = fn
}

// newTestDHT builds a node over a mock transport with maintenance off
// and a fixed identifier.
func newTestDHT(selfID NodeID) (*DHT, *mockTransport) {
	tr := newMockTransport()
	options := DefaultOptions()
	options.NodeID = &selfID
	options.MaintenanceInterval = 0
	options.QueryTimeout = 50 * time.Millisecond

	node, err := NewWithTransport(options, tr)
	if err != nil {
		panic(err)
	}
	return node, tr
}

// testID builds a NodeID whose first byte is b and the rest zero.
func testID(b byte) NodeID {
	var id NodeID
	id[0] = b
	return id
}

// idBytes returns the identifier as a byte slice, for wire fields.
func idBytes(id NodeID) []byte {
	return id[:]
}

// fillID builds a NodeID with every byte set to b.
func fillID(b byte) NodeID {
	var id NodeID
	for i := range id {
		id[i] = b
	}
	return id
}
