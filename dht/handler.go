package dht

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/amit19singh/Kademlia-DHT/bencode"
)

// handleDatagram is the passive dispatcher entry point. Malformed
// datagrams are logged and dropped; they never propagate to the
// dispatcher loop. Responses and errors arriving here are logged only:
// the synchronous query path does its own correlation on ephemeral
// sockets.
func (d *DHT) handleDatagram(data []byte, addr net.Addr) {
	msg, err := parseMessage(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleDatagram",
			"address":  addr.String(),
			"error":    err.Error(),
		}).Warn("Dropping malformed datagram")
		return
	}

	switch msg.Type {
	case typeQuery:
		d.dispatchQuery(msg, addr)
	case typeResponse:
		logrus.WithFields(logrus.Fields{
			"function": "handleDatagram",
			"address":  addr.String(),
		}).Debug("Uncorrelated response on dispatcher socket")
	case typeError:
		logrus.WithFields(logrus.Fields{
			"function": "handleDatagram",
			"address":  addr.String(),
			"code":     msg.ErrorCode,
			"message":  msg.ErrorMsg,
		}).Debug("Error message received")
	}
}

func (d *DHT) dispatchQuery(msg *message, addr net.Addr) {
	sender, err := d.senderFromQuery(msg, addr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "dispatchQuery",
			"address":  addr.String(),
			"query":    msg.Query,
			"error":    err.Error(),
		}).Warn("Dropping query with bad sender info")
		return
	}
	d.routing.AddNode(sender)

	switch msg.Query {
	case queryPing:
		d.handlePing(msg, addr)
	case queryFindNode:
		d.handleFindNode(msg, addr)
	case queryGetPeers:
		d.handleGetPeers(msg, addr)
	case queryAnnouncePeer:
		d.handleAnnouncePeer(msg, sender, addr)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "dispatchQuery",
			"address":  addr.String(),
			"query":    msg.Query,
		}).Debug("Ignoring unknown query")
	}
}

// senderFromQuery builds the sender contact from the query's "id"
// argument and the datagram source address.
func (d *DHT) senderFromQuery(msg *message, addr net.Addr) (*Node, error) {
	id, err := dictNodeID(msg.Args, "id")
	if err != nil {
		return nil, err
	}
	udpAddr, err := net.ResolveUDPAddr("udp4", addr.String())
	if err != nil {
		return nil, err
	}
	return NewNode(id, udpAddr.IP, uint16(udpAddr.Port)), nil
}

// handlePing answers {id}.
func (d *DHT) handlePing(msg *message, addr net.Addr) {
	response := bencode.NewDict()
	response.Set("id", bencode.Bytes(d.selfID[:]))
	d.reply(msg, response, addr)

	logrus.WithFields(logrus.Fields{
		"function": "handlePing",
		"address":  addr.String(),
	}).Debug("Answered ping")
}

// handleFindNode answers {id, nodes} with the K contacts closest to
// the requested target.
func (d *DHT) handleFindNode(msg *message, addr net.Addr) {
	target, err := dictNodeID(msg.Args, "target")
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleFindNode",
			"address":  addr.String(),
			"error":    err.Error(),
		}).Warn("Dropping find_node with bad target")
		return
	}

	closest := d.routing.FindClosestNodes(target, K)

	response := bencode.NewDict()
	response.Set("id", bencode.Bytes(d.selfID[:]))
	response.Set("nodes", bencode.Bytes(encodeCompactNodes(closest)))
	d.reply(msg, response, addr)

	logrus.WithFields(logrus.Fields{
		"function": "handleFindNode",
		"address":  addr.String(),
		"target":   target.String(),
		"nodes":    len(closest),
	}).Debug("Answered find_node")
}

// handleGetPeers answers {id, values} when peers are stored for the
// infohash, otherwise {id, nodes} with the K closest contacts.
func (d *DHT) handleGetPeers(msg *message, addr net.Addr) {
	infohash, err := dictNodeID(msg.Args, "info_hash")
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleGetPeers",
			"address":  addr.String(),
			"error":    err.Error(),
		}).Warn("Dropping get_peers with bad infohash")
		return
	}

	response := bencode.NewDict()
	response.Set("id", bencode.Bytes(d.selfID[:]))

	peers := d.peers.Get(infohash)
	if len(peers) > 0 {
		response.Set("values", bencode.Bytes(encodeCompactPeers(peers)))
	} else {
		closest := d.routing.FindClosestNodes(infohash, K)
		response.Set("nodes", bencode.Bytes(encodeCompactNodes(closest)))
	}
	d.reply(msg, response, addr)

	logrus.WithFields(logrus.Fields{
		"function": "handleGetPeers",
		"address":  addr.String(),
		"infohash": infohash.String(),
		"peers":    len(peers),
	}).Debug("Answered get_peers")
}

// handleAnnouncePeer records the announced port with the sender's
// source IP and answers {id}. The port argument is authoritative, not
// the UDP source port.
func (d *DHT) handleAnnouncePeer(msg *message, sender *Node, addr net.Addr) {
	infohash, err := dictNodeID(msg.Args, "info_hash")
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleAnnouncePeer",
			"address":  addr.String(),
			"error":    err.Error(),
		}).Warn("Dropping announce_peer with bad infohash")
		return
	}
	port, err := dictPort(msg.Args, "port")
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleAnnouncePeer",
			"address":  addr.String(),
			"error":    err.Error(),
		}).Warn("Dropping announce_peer with bad port")
		return
	}

	d.peers.Add(infohash, PeerAddr{IP: sender.IP, Port: port})

	response := bencode.NewDict()
	response.Set("id", bencode.Bytes(d.selfID[:]))
	d.reply(msg, response, addr)

	logrus.WithFields(logrus.Fields{
		"function": "handleAnnouncePeer",
		"address":  addr.String(),
		"infohash": infohash.String(),
		"port":     port,
	}).Info("Stored announced peer")
}

// reply sends a response envelope reusing the inbound transaction ID.
func (d *DHT) reply(msg *message, response *bencode.Dict, addr net.Addr) {
	if err := d.transport.Send(buildResponse(msg.TransactionID, response), addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "reply",
			"address":  addr.String(),
			"error":    err.Error(),
		}).Warn("Failed to send reply")
	}
}

func dictNodeID(args *bencode.Dict, key string) (NodeID, error) {
	raw, err := dictString(args, key)
	if err != nil {
		return NodeID{}, err
	}
	return NodeIDFromBytes([]byte(raw))
}

func dictPort(args *bencode.Dict, key string) (uint16, error) {
	value, ok := args.Get(key)
	if !ok {
		return 0, &bencodeFieldError{key: key, reason: "missing"}
	}
	port, isInt := value.Int()
	if !isInt || port < 0 || port > 65535 {
		return 0, &bencodeFieldError{key: key, reason: "not a valid port"}
	}
	return uint16(port), nil
}

type bencodeFieldError struct {
	key    string
	reason string
}

func (e *bencodeFieldError) Error() string {
	return "krpc: field " + e.key + " " + e.reason
}
