package dht

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amit19singh/Kademlia-DHT/transport"
)

// Options configures a DHT node. Use DefaultOptions as the starting
// point and override fields as needed.
type Options struct {
	// ListenAddr is the UDP address the passive dispatcher binds.
	ListenAddr string

	// NodeID is the local identifier. Nil means generate a random one.
	NodeID *NodeID

	// BucketSize is the routing-table bucket capacity.
	BucketSize int

	// QueryTimeout bounds each synchronous outbound query.
	QueryTimeout time.Duration

	// PeerTTL is how long an announced peer stays in the store. Zero
	// disables expiry.
	PeerTTL time.Duration

	// MaintenanceInterval is the cadence of the peer-store sweep. Zero
	// disables maintenance.
	MaintenanceInterval time.Duration
}

// DefaultOptions returns the standard configuration: the conventional
// DHT port, K-sized buckets, a 2-second query timeout and a 30-minute
// peer TTL.
func DefaultOptions() *Options {
	return &Options{
		ListenAddr:          ":6881",
		BucketSize:          K,
		QueryTimeout:        2 * time.Second,
		PeerTTL:             30 * time.Minute,
		MaintenanceInterval: 5 * time.Minute,
	}
}

// DHT is a Mainline DHT node: routing table, peer store, KRPC engine
// and bootstrap driver behind one handle.
type DHT struct {
	options      *Options
	selfID       NodeID
	transport    transport.Transport
	routing      *RoutingTable
	peers        *PeerStore
	bootstrap    *BootstrapManager
	transactions *transactionCounter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New creates a DHT node and binds its UDP socket. A bind failure is
// fatal to startup and returned here.
func New(options *Options) (*DHT, error) {
	if options == nil {
		options = DefaultOptions()
	}

	tr, err := transport.NewUDPTransport(options.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("bind DHT socket: %w", err)
	}

	node, err := NewWithTransport(options, tr)
	if err != nil {
		tr.Close()
		return nil, err
	}
	return node, nil
}

// NewWithTransport creates a DHT node over an existing transport. Tests
// use it to substitute an in-memory transport.
func NewWithTransport(options *Options, tr transport.Transport) (*DHT, error) {
	if options == nil {
		options = DefaultOptions()
	}
	if options.BucketSize <= 0 {
		options.BucketSize = K
	}
	if options.QueryTimeout <= 0 {
		options.QueryTimeout = 2 * time.Second
	}

	selfID := NodeID{}
	if options.NodeID != nil {
		selfID = *options.NodeID
	} else {
		generated, err := GenerateNodeID()
		if err != nil {
			return nil, err
		}
		selfID = generated
	}

	transactions, err := newTransactionCounter()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &DHT{
		options:      options,
		selfID:       selfID,
		transport:    tr,
		routing:      NewRoutingTable(selfID, options.BucketSize),
		peers:        NewPeerStore(options.PeerTTL),
		transactions: transactions,
		ctx:          ctx,
		cancel:       cancel,
	}
	d.routing.SetPinger(d.Ping)
	d.bootstrap = NewBootstrapManager(selfID, d.findNode, d.routing)
	d.startMaintenance()

	logrus.WithFields(logrus.Fields{
		"function": "NewWithTransport",
		"node_id":  selfID.String(),
		"address":  tr.LocalAddr().String(),
	}).Info("DHT node created")

	return d, nil
}

// SelfID returns the local node identifier.
func (d *DHT) SelfID() NodeID {
	return d.selfID
}

// AddSeed registers a bootstrap seed endpoint.
func (d *DHT) AddSeed(ip net.IP, port uint16) error {
	return d.bootstrap.AddNode(ip, port)
}

// Bootstrap joins the overlay by querying every registered seed and
// folding the results into the routing table.
func (d *DHT) Bootstrap(ctx context.Context) error {
	return d.bootstrap.Bootstrap(ctx)
}

// FindPeers locates contacts near an infohash by fanning find_node
// across the seeds. Failures collapse to a smaller (possibly empty)
// result, never an error.
func (d *DHT) FindPeers(ctx context.Context, infohash NodeID) []*Node {
	return d.bootstrap.FindPeers(ctx, infohash)
}

// Run blocks in the passive dispatcher loop, answering inbound queries
// until Close is called.
func (d *DHT) Run() {
	logrus.WithFields(logrus.Fields{
		"function": "Run",
		"address":  d.transport.LocalAddr().String(),
	}).Info("Passive dispatcher running")
	d.transport.Run(d.handleDatagram)
}

// RoutingTable returns a read-only snapshot of the bucket structure.
func (d *DHT) RoutingTable() [][]*Node {
	return d.routing.Snapshot()
}

// Close stops maintenance and shuts the transport down, unblocking Run.
func (d *DHT) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		d.closeErr = d.transport.Close()
		d.wg.Wait()
	})
	return d.closeErr
}
