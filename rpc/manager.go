// Package rpc implements the peer transport over net/rpc: a serving
// Manager plus lazily connected Peer clients whose every call is bounded
// by the configured request timeout.
package rpc

import (
	"net"
	"net/rpc"
	"sync"
	"time"

	"github.com/hiveteam/hive/common"
)

// Manager is the implementation of common.RPCManager using the
// golang's net/rpc package.
type Manager struct {
	timeout time.Duration

	mu           sync.Mutex
	listener     net.Listener
	stopped      bool
	disconnected bool
}

var _ common.RPCManager = (*Manager)(nil)

func NewManager(timeout time.Duration) *Manager {
	return &Manager{timeout: timeout}
}

// Start serves the RPC surface at address until Stop closes the listener.
func (m *Manager) Start(address common.ServerAddress, handler common.RPCHandler) error {
	server := rpc.NewServer()
	if err := server.RegisterName("Node", handler); err != nil {
		return err
	}
	listener, err := net.Listen("tcp", string(address))
	if err != nil {
		return err
	}
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return listener.Close()
	}
	m.listener = listener
	m.mu.Unlock()
	// Accept returns once the listener is closed by Stop.
	server.Accept(listener)
	return nil
}

func (m *Manager) ConnectToPeer(address common.ServerAddress, id string) (common.PeerClient, error) {
	return newPeer(m, address, id), nil
}

func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.listener != nil {
		return m.listener.Close()
	}
	return nil
}

// Disconnect creates an artificial network partition: outbound calls fail
// immediately until Reconnect heals it. Used by failover tests.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = true
}

func (m *Manager) Reconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = false
}

func (m *Manager) partitioned() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnected
}
