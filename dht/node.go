// Package dht implements a BitTorrent Mainline DHT node: a Kademlia
// routing table keyed by XOR distance, the KRPC protocol engine over
// UDP, and the bootstrap process that joins the overlay through seed
// nodes.
//
// Example:
//
//	node, err := dht.New(dht.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	node.AddSeed(net.ParseIP("67.215.246.10"), 6881)
//	if err := node.Bootstrap(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//	go node.Run()
package dht

import (
	"fmt"
	"net"
	"time"
)

// Node is a contact in the DHT overlay: an identifier plus the IPv4
// endpoint it speaks KRPC on. The triple is immutable once built; only
// bookkeeping like LastSeen changes.
type Node struct {
	ID       NodeID
	IP       net.IP
	Port     uint16
	LastSeen time.Time
}

// NewNode creates a contact from an identifier and endpoint.
func NewNode(id NodeID, ip net.IP, port uint16) *Node {
	return &Node{
		ID:       id,
		IP:       ip,
		Port:     port,
		LastSeen: time.Now(),
	}
}

// Addr returns the contact's UDP endpoint.
func (n *Node) Addr() *net.UDPAddr {
	return &net.UDPAddr{IP: n.IP, Port: int(n.Port)}
}

// Equal reports whether two contacts are the same (ID, IP, port)
// triple.
func (n *Node) Equal(other *Node) bool {
	return n.ID == other.ID && n.IP.Equal(other.IP) && n.Port == other.Port
}

// Touch marks the contact as seen now.
func (n *Node) Touch() {
	n.LastSeen = time.Now()
}

func (n *Node) String() string {
	return fmt.Sprintf("%s@%s:%d", n.ID, n.IP, n.Port)
}
