package dht

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/amit19singh/Kademlia-DHT/bencode"
)

// KRPC query names.
const (
	queryPing         = "ping"
	queryFindNode     = "find_node"
	queryGetPeers     = "get_peers"
	queryAnnouncePeer = "announce_peer"
)

// KRPC message classes carried in "y".
const (
	typeQuery    = "q"
	typeResponse = "r"
	typeError    = "e"
)

// compactNodeSize is one entry in a "nodes" field: 20-byte ID, 4-byte
// IPv4, 2-byte port, all network order.
const compactNodeSize = IDSize + 4 + 2

// compactPeerSize is one entry in a "values" field: 4-byte IPv4 and
// 2-byte port.
const compactPeerSize = 4 + 2

// message is a decoded KRPC envelope.
type message struct {
	TransactionID string
	Type          string
	Query         string
	Args          *bencode.Dict
	Response      *bencode.Dict
	ErrorCode     int64
	ErrorMsg      string
}

// parseMessage decodes one datagram into a KRPC envelope. Fields
// beyond those required for the message class are left untouched.
func parseMessage(data []byte) (*message, error) {
	value, err := bencode.DecodeAll(data)
	if err != nil {
		return nil, err
	}
	root, ok := value.Dict()
	if !ok {
		return nil, fmt.Errorf("krpc: message is not a dictionary")
	}

	msg := &message{}
	if msg.TransactionID, err = dictString(root, "t"); err != nil {
		return nil, err
	}
	if msg.Type, err = dictString(root, "y"); err != nil {
		return nil, err
	}

	switch msg.Type {
	case typeQuery:
		if msg.Query, err = dictString(root, "q"); err != nil {
			return nil, err
		}
		if msg.Args, err = dictDict(root, "a"); err != nil {
			return nil, err
		}
	case typeResponse:
		if msg.Response, err = dictDict(root, "r"); err != nil {
			return nil, err
		}
	case typeError:
		if err := msg.parseError(root); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("krpc: unknown message class %q", msg.Type)
	}

	return msg, nil
}

func (m *message) parseError(root *bencode.Dict) error {
	value, ok := root.Get("e")
	if !ok {
		return fmt.Errorf("krpc: error message missing %q", "e")
	}
	list, ok := value.List()
	if !ok || len(list) < 2 {
		return fmt.Errorf("krpc: malformed error payload")
	}
	code, ok := list[0].Int()
	if !ok {
		return fmt.Errorf("krpc: error code is not an integer")
	}
	msg, ok := list[1].StringBytes()
	if !ok {
		return fmt.Errorf("krpc: error message is not a string")
	}
	m.ErrorCode = code
	m.ErrorMsg = string(msg)
	return nil
}

// buildQuery encodes a query envelope around the given arguments.
func buildQuery(transactionID, name string, args *bencode.Dict) []byte {
	root := bencode.NewDict()
	root.Set("t", bencode.String(transactionID))
	root.Set("y", bencode.String(typeQuery))
	root.Set("q", bencode.String(name))
	root.Set("a", bencode.DictValue(args))
	return bencode.Encode(bencode.DictValue(root))
}

// buildResponse encodes a response envelope echoing the inbound
// transaction ID.
func buildResponse(transactionID string, response *bencode.Dict) []byte {
	root := bencode.NewDict()
	root.Set("t", bencode.String(transactionID))
	root.Set("y", bencode.String(typeResponse))
	root.Set("r", bencode.DictValue(response))
	return bencode.Encode(bencode.DictValue(root))
}

// encodeCompactNodes renders contacts in the 26-byte compact node
// format. Contacts without an IPv4 address are skipped.
func encodeCompactNodes(nodes []*Node) []byte {
	out := make([]byte, 0, len(nodes)*compactNodeSize)
	for _, node := range nodes {
		ip4 := node.IP.To4()
		if ip4 == nil {
			continue
		}
		out = append(out, node.ID[:]...)
		out = append(out, ip4...)
		out = binary.BigEndian.AppendUint16(out, node.Port)
	}
	return out
}

// parseCompactNodes decodes the 26-byte compact node format. A
// trailing partial entry is discarded.
func parseCompactNodes(data []byte) []*Node {
	count := len(data) / compactNodeSize
	nodes := make([]*Node, 0, count)

	for i := 0; i < count; i++ {
		entry := data[i*compactNodeSize : (i+1)*compactNodeSize]

		var id NodeID
		copy(id[:], entry[:IDSize])
		ip := net.IPv4(entry[IDSize], entry[IDSize+1], entry[IDSize+2], entry[IDSize+3])
		port := binary.BigEndian.Uint16(entry[IDSize+4:])

		nodes = append(nodes, NewNode(id, ip, port))
	}
	return nodes
}

// encodeCompactPeers renders peer endpoints in the 6-byte compact
// peer format.
func encodeCompactPeers(peers []PeerAddr) []byte {
	out := make([]byte, 0, len(peers)*compactPeerSize)
	for _, peer := range peers {
		ip4 := peer.IP.To4()
		if ip4 == nil {
			continue
		}
		out = append(out, ip4...)
		out = binary.BigEndian.AppendUint16(out, peer.Port)
	}
	return out
}

// parseCompactPeers decodes the 6-byte compact peer format, discarding
// a trailing partial entry.
func parseCompactPeers(data []byte) []PeerAddr {
	count := len(data) / compactPeerSize
	peers := make([]PeerAddr, 0, count)

	for i := 0; i < count; i++ {
		entry := data[i*compactPeerSize : (i+1)*compactPeerSize]
		peers = append(peers, PeerAddr{
			IP:   net.IPv4(entry[0], entry[1], entry[2], entry[3]),
			Port: binary.BigEndian.Uint16(entry[4:]),
		})
	}
	return peers
}

// transactionCounter issues two-byte transaction IDs from a
// crypto-seeded counter, unique enough to tell recent in-flight
// queries apart.
type transactionCounter struct {
	next uint16
	mu   sync.Mutex
}

func newTransactionCounter() (*transactionCounter, error) {
	var seed [2]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("seed transaction counter: %w", err)
	}
	return &transactionCounter{next: binary.BigEndian.Uint16(seed[:])}, nil
}

// Next returns the next transaction ID.
func (tc *transactionCounter) Next() string {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	var id [2]byte
	binary.BigEndian.PutUint16(id[:], tc.next)
	tc.next++
	return string(id[:])
}

func dictString(d *bencode.Dict, key string) (string, error) {
	value, ok := d.Get(key)
	if !ok {
		return "", fmt.Errorf("krpc: message missing %q", key)
	}
	s, ok := value.StringBytes()
	if !ok {
		return "", fmt.Errorf("krpc: field %q is not a string", key)
	}
	return string(s), nil
}

func dictDict(d *bencode.Dict, key string) (*bencode.Dict, error) {
	value, ok := d.Get(key)
	if !ok {
		return nil, fmt.Errorf("krpc: message missing %q", key)
	}
	dict, ok := value.Dict()
	if !ok {
		return nil, fmt.Errorf("krpc: field %q is not a dictionary", key)
	}
	return dict, nil
}
