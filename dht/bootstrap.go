package dht

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// BootstrapError describes a failure against one seed node.
type BootstrapError struct {
	Type  string
	Node  string
	Cause error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap %s failed for %s: %v", e.Type, e.Node, e.Cause)
}

// BootstrapNode is a known seed endpoint. Its identifier is a random
// placeholder. The seed itself is never entered into the routing
// table; only the contacts listed in its find_node reply are.
type BootstrapNode struct {
	ID       NodeID
	IP       net.IP
	Port     uint16
	LastUsed time.Time
	Success  bool
}

// Addr returns the seed's UDP endpoint.
func (bn *BootstrapNode) Addr() *net.UDPAddr {
	return &net.UDPAddr{IP: bn.IP, Port: int(bn.Port)}
}

// lookupFunc issues one synchronous find_node round trip and returns
// the contacts from the reply, empty on any failure.
type lookupFunc func(addr net.Addr, target NodeID) []*Node

type bootstrapResult struct {
	seed     *BootstrapNode
	contacts []*Node
	err      *BootstrapError
}

// BootstrapManager joins the node to the overlay through seed nodes:
// each seed is asked find_node(self) and the returned contacts are
// folded into the routing table.
type BootstrapManager struct {
	nodes        []*BootstrapNode
	selfID       NodeID
	lookup       lookupFunc
	routingTable *RoutingTable
	bootstrapped bool
	minSeeds     int
	attempts     int
	maxAttempts  int
	mu           sync.RWMutex
}

// NewBootstrapManager creates a bootstrap manager over the given
// routing table and lookup primitive.
func NewBootstrapManager(selfID NodeID, lookup lookupFunc, routingTable *RoutingTable) *BootstrapManager {
	return &BootstrapManager{
		nodes:        make([]*BootstrapNode, 0),
		selfID:       selfID,
		lookup:       lookup,
		routingTable: routingTable,
		minSeeds:     1,
		maxAttempts:  5,
	}
}

// AddNode registers a seed endpoint under a random placeholder
// identifier.
func (bm *BootstrapManager) AddNode(ip net.IP, port uint16) error {
	id, err := GenerateNodeID()
	if err != nil {
		return fmt.Errorf("seed placeholder ID: %w", err)
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.nodes = append(bm.nodes, &BootstrapNode{ID: id, IP: ip, Port: port})

	logrus.WithFields(logrus.Fields{
		"function":    "AddNode",
		"address":     fmt.Sprintf("%s:%d", ip, port),
		"total_nodes": len(bm.nodes),
	}).Info("Bootstrap node added")
	return nil
}

// Nodes returns a copy of the registered seeds.
func (bm *BootstrapManager) Nodes() []*BootstrapNode {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	nodes := make([]*BootstrapNode, len(bm.nodes))
	copy(nodes, bm.nodes)
	return nodes
}

// IsBootstrapped reports whether a previous Bootstrap call succeeded.
func (bm *BootstrapManager) IsBootstrapped() bool {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	return bm.bootstrapped
}

// Bootstrap asks every seed find_node(self) concurrently and folds the
// returned contacts into the routing table. It succeeds when at least
// minSeeds seeds answered with contacts.
func (bm *BootstrapManager) Bootstrap(ctx context.Context) error {
	if err := bm.validateBootstrapRequest(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Bootstrap",
			"error":    err.Error(),
		}).Error("Bootstrap validation failed")
		return err
	}

	seeds := bm.Nodes()
	logrus.WithFields(logrus.Fields{
		"function": "Bootstrap",
		"seeds":    len(seeds),
	}).Info("Starting bootstrap process")

	resultChan := make(chan *bootstrapResult, len(seeds))
	bm.launchWorkers(seeds, bm.selfID, resultChan)

	return bm.processResults(ctx, resultChan)
}

// validateBootstrapRequest checks preconditions and counts the attempt.
func (bm *BootstrapManager) validateBootstrapRequest() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if len(bm.nodes) == 0 {
		return errors.New("no bootstrap nodes available")
	}

	bm.attempts++
	if bm.attempts > bm.maxAttempts {
		return errors.New("maximum bootstrap attempts reached")
	}
	return nil
}

// launchWorkers queries every seed concurrently and closes resultChan
// when the last worker finishes.
func (bm *BootstrapManager) launchWorkers(seeds []*BootstrapNode, target NodeID, resultChan chan<- *bootstrapResult) {
	var wg sync.WaitGroup
	for _, seed := range seeds {
		wg.Add(1)
		go func(seed *BootstrapNode) {
			defer wg.Done()
			bm.querySeed(seed, target, resultChan)
		}(seed)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()
}

// querySeed performs one find_node round trip against a seed.
func (bm *BootstrapManager) querySeed(seed *BootstrapNode, target NodeID, resultChan chan<- *bootstrapResult) {
	bm.markUsed(seed)

	contacts := bm.lookup(seed.Addr(), target)
	if len(contacts) == 0 {
		resultChan <- &bootstrapResult{
			seed: seed,
			err: &BootstrapError{
				Type:  "find_node",
				Node:  seed.Addr().String(),
				Cause: errors.New("no contacts returned"),
			},
		}
		return
	}
	resultChan <- &bootstrapResult{seed: seed, contacts: contacts}
}

func (bm *BootstrapManager) markUsed(seed *BootstrapNode) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	seed.LastUsed = time.Now()
}

// processResults folds worker results into the routing table and
// decides overall success.
func (bm *BootstrapManager) processResults(ctx context.Context, resultChan <-chan *bootstrapResult) error {
	successful := 0
	var lastError *BootstrapError

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-resultChan:
			if !ok {
				return bm.finishBootstrap(successful, lastError)
			}
			if result.err != nil {
				lastError = result.err
				logrus.WithFields(logrus.Fields{
					"function": "processResults",
					"seed":     result.err.Node,
					"error":    result.err.Error(),
				}).Warn("Seed did not answer")
				continue
			}

			folded := 0
			for _, contact := range result.contacts {
				if bm.routingTable.AddNode(contact) {
					folded++
				}
			}
			bm.markSuccess(result.seed)
			successful++

			logrus.WithFields(logrus.Fields{
				"function": "processResults",
				"seed":     result.seed.Addr().String(),
				"contacts": len(result.contacts),
				"folded":   folded,
			}).Info("Seed contacts folded into routing table")
		}
	}
}

func (bm *BootstrapManager) markSuccess(seed *BootstrapNode) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	seed.Success = true
}

func (bm *BootstrapManager) finishBootstrap(successful int, lastError *BootstrapError) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if successful >= bm.minSeeds {
		bm.bootstrapped = true
		bm.attempts = 0
		logrus.WithFields(logrus.Fields{
			"function":   "finishBootstrap",
			"successful": successful,
		}).Info("Bootstrap completed")
		return nil
	}

	if lastError != nil {
		return lastError
	}
	return errors.New("bootstrap failed: no seed answered")
}

// FindPeers fans find_node(target=infohash) across every seed and
// accumulates the returned contacts, folding each into the routing
// table on the way. Seeds that fail contribute nothing.
func (bm *BootstrapManager) FindPeers(ctx context.Context, infohash NodeID) []*Node {
	seeds := bm.Nodes()
	if len(seeds) == 0 {
		return nil
	}

	resultChan := make(chan *bootstrapResult, len(seeds))
	bm.launchWorkers(seeds, infohash, resultChan)

	var found []*Node
	for {
		select {
		case <-ctx.Done():
			return found
		case result, ok := <-resultChan:
			if !ok {
				logrus.WithFields(logrus.Fields{
					"function": "FindPeers",
					"infohash": infohash.String(),
					"contacts": len(found),
				}).Info("Peer search across seeds finished")
				return found
			}
			if result.err != nil {
				continue
			}
			for _, contact := range result.contacts {
				bm.routingTable.AddNode(contact)
			}
			found = append(found, result.contacts...)
		}
	}
}
