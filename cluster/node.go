// Package cluster wires the election engine, the replication engine and
// the peer transport into one runnable node, and exposes the
// start/stop/status/sync surface consumed by the rest of Hive.
package cluster

import (
	"fmt"
	"sync"
	"time"

	"github.com/hiveteam/hive/common"
	"github.com/hiveteam/hive/election"
	"github.com/hiveteam/hive/replication"
	"github.com/hiveteam/hive/rpc"
	"github.com/hiveteam/hive/store"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Node is one running instance of the cluster coordination layer with its
// own local store. The election timers and the sync ticker run
// independently; a node may be mid-election while also replicating.
type Node struct {
	cfg      common.ClusterConfig
	store    *store.Store
	election *election.Engine
	repl     *replication.Engine
	manager  common.RPCManager
	peers    []common.PeerClient
	log      *zap.SugaredLogger

	mu           sync.Mutex
	started      bool
	stopped      bool
	disconnected bool
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

func New(cfg common.ClusterConfig, st *store.Store, logger *zap.SugaredLogger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.With("node", cfg.NodeID)
	manager := rpc.NewManager(cfg.RequestTimeout())

	var peers []common.PeerClient
	for _, peerCfg := range cfg.Peers {
		peer, err := manager.ConnectToPeer(common.ServerAddress(peerCfg.URL), peerCfg.ID)
		if err != nil {
			return nil, fmt.Errorf("connecting to peer %s: %w", peerCfg.ID, err)
		}
		peers = append(peers, peer)
	}

	elect, err := election.NewEngine(cfg, st, peers, log.Named("election"))
	if err != nil {
		return nil, err
	}
	elect.OnRoleChange = func(role election.Role) {
		roleChanges.WithLabelValues(role.String()).Inc()
		log.Infow("role changed", "role", role.String())
	}

	node := &Node{
		cfg:      cfg,
		store:    st,
		election: elect,
		repl:     replication.NewEngine(st, cfg, log.Named("replication")),
		manager:  manager,
		peers:    peers,
		log:      log,
		stopChan: make(chan struct{}),
	}
	return node, nil
}

// Start launches the RPC server, the election engine and the sync loop.
func (n *Node) Start() error {
	n.mu.Lock()
	if n.started || n.stopped {
		n.mu.Unlock()
		return fmt.Errorf("node %s already started", n.cfg.NodeID)
	}
	n.started = true
	n.mu.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		handler := &rpcHandler{node: n}
		if err := n.manager.Start(n.cfg.ListenAddress(), handler); err != nil {
			n.log.Errorw("rpc server failed to start", "address", n.cfg.ListenAddress(), "error", err)
		}
	}()
	n.election.Start()
	n.wg.Add(1)
	go n.syncLoop()
	n.log.Infow("node started", "address", n.cfg.ListenAddress(), "peers", len(n.peers))
	return nil
}

// Stop cancels all timers and lets in-flight calls finish or time out
// before releasing the store. No new timer is armed once shutdown begins.
func (n *Node) Stop() error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return nil
	}
	n.stopped = true
	close(n.stopChan)
	n.mu.Unlock()

	n.election.Stop()
	managerErr := n.manager.Stop()
	n.wg.Wait()
	storeErr := n.store.Close()
	n.log.Infow("node stopped")
	return multierr.Combine(managerErr, storeErr)
}

// Status returns a read-only snapshot of this node's view of the cluster.
func (n *Node) Status() common.NodeStatus {
	status := n.election.Status()
	if vector, err := n.store.Vector(); err == nil {
		status.Vector = vector
	}
	return status
}

// SyncNow runs one sync cycle immediately, outside the timer. Used by
// operator tooling and tests.
func (n *Node) SyncNow() (replication.SyncStats, error) {
	return n.syncOnce()
}

// Store exposes the node's local store to the rest of Hive.
func (n *Node) Store() *store.Store {
	return n.store
}

// Disconnect simulates a bidirectional network partition of this node.
// Outbound calls fail at the transport; inbound calls are rejected by the
// handler. Reconnect heals it.
func (n *Node) Disconnect() {
	n.mu.Lock()
	n.disconnected = true
	n.mu.Unlock()
	n.manager.Disconnect()
}

func (n *Node) Reconnect() {
	n.mu.Lock()
	n.disconnected = false
	n.mu.Unlock()
	n.manager.Reconnect()
}

func (n *Node) partitioned() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.disconnected
}

func (n *Node) syncLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.SyncInterval())
	defer ticker.Stop()
	for {
		select {
		case <-n.stopChan:
			return
		case <-ticker.C:
			if _, err := n.syncOnce(); err != nil {
				n.log.Warnw("sync tick abandoned", "error", err)
			}
		}
	}
}

func (n *Node) syncOnce() (replication.SyncStats, error) {
	syncCycles.Inc()
	stats, err := n.repl.SyncOnce(n.peers)
	if err != nil {
		syncFailures.Inc()
		return stats, err
	}
	eventsApplied.Add(float64(stats.Applied))
	storyMerges.Add(float64(stats.Merges))
	currentTerm.Set(float64(n.election.Status().Term))
	return stats, nil
}
