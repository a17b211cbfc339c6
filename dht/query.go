package dht

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/amit19singh/Kademlia-DHT/bencode"
)

// findNode performs one synchronous find_node round trip against addr
// and returns the contacts from its reply. Send failures, timeouts and
// malformed replies all collapse to an empty result; the lookup API
// never surfaces transport errors.
func (d *DHT) findNode(addr net.Addr, target NodeID) []*Node {
	args := bencode.NewDict()
	args.Set("id", bencode.Bytes(d.selfID[:]))
	args.Set("target", bencode.Bytes(target[:]))
	request := buildQuery(d.transactions.Next(), queryFindNode, args)

	logrus.WithFields(logrus.Fields{
		"function": "findNode",
		"address":  addr.String(),
		"target":   target.String(),
	}).Debug("Sending find_node query")

	reply, err := d.transport.Query(request, addr, d.options.QueryTimeout)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "findNode",
			"address":  addr.String(),
			"error":    err.Error(),
		}).Warn("find_node query failed")
		return nil
	}

	msg, err := parseMessage(reply)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "findNode",
			"address":  addr.String(),
			"error":    err.Error(),
		}).Warn("Malformed find_node reply")
		return nil
	}
	if msg.Type != typeResponse {
		logrus.WithFields(logrus.Fields{
			"function":     "findNode",
			"address":      addr.String(),
			"message_type": msg.Type,
		}).Debug("find_node reply is not a response")
		return nil
	}

	compact, ok := msg.Response.Get("nodes")
	if !ok {
		return nil
	}
	raw, ok := compact.StringBytes()
	if !ok {
		return nil
	}

	nodes := parseCompactNodes(raw)
	logrus.WithFields(logrus.Fields{
		"function": "findNode",
		"address":  addr.String(),
		"nodes":    len(nodes),
	}).Debug("find_node reply parsed")
	return nodes
}

// Ping sends a ping query to a contact over an ephemeral socket and
// reports whether any reply arrived before the deadline. The routing
// table uses it to probe bucket heads before eviction.
func (d *DHT) Ping(node *Node) bool {
	args := bencode.NewDict()
	args.Set("id", bencode.Bytes(d.selfID[:]))
	request := buildQuery(d.transactions.Next(), queryPing, args)

	reply, err := d.transport.Query(request, node.Addr(), d.options.QueryTimeout)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Ping",
			"node":     node.String(),
			"error":    err.Error(),
		}).Debug("Ping went unanswered")
		return false
	}
	return len(reply) > 0
}
