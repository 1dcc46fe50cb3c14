package rpc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/rpc"
	"sync"
	"time"

	"github.com/hiveteam/hive/common"
)

// Peer is a connection to one remote node. The underlying net/rpc client
// is established lazily on the first call and dropped on transport faults
// so the next call redials.
type Peer struct {
	manager *Manager
	address common.ServerAddress
	id      string

	mu     sync.Mutex
	client *rpc.Client
}

var _ common.PeerClient = (*Peer)(nil)

func newPeer(manager *Manager, address common.ServerAddress, id string) *Peer {
	return &Peer{
		manager: manager,
		address: address,
		id:      id,
	}
}

func (p *Peer) ID() string {
	return p.id
}

// call performs one deadline-bounded RPC. A timed-out connection is closed
// rather than reused, because the late reply would otherwise answer the
// wrong request.
func (p *Peer) call(method string, args interface{}, reply interface{}) error {
	if p.manager.partitioned() {
		return fmt.Errorf("partitioned from peer %s", p.id)
	}
	client, err := p.connect()
	if err != nil {
		return err
	}
	pending := client.Go(method, args, reply, make(chan *rpc.Call, 1))
	timer := time.NewTimer(p.manager.timeout)
	defer timer.Stop()
	select {
	case done := <-pending.Done:
		if done.Error != nil {
			if errors.Is(done.Error, rpc.ErrShutdown) || errors.Is(done.Error, io.EOF) || errors.Is(done.Error, io.ErrUnexpectedEOF) {
				p.drop(client)
			}
			return done.Error
		}
		return nil
	case <-timer.C:
		p.drop(client)
		return fmt.Errorf("%s to peer %s timed out after %v", method, p.id, p.manager.timeout)
	}
}

func (p *Peer) connect() (*rpc.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	conn, err := net.DialTimeout("tcp", string(p.address), p.manager.timeout)
	if err != nil {
		return nil, err
	}
	p.client = rpc.NewClient(conn)
	return p.client, nil
}

func (p *Peer) drop(client *rpc.Client) {
	p.mu.Lock()
	if p.client == client {
		p.client = nil
	}
	p.mu.Unlock()
	client.Close()
}

func (p *Peer) Heartbeat(args *common.HeartbeatArgs, reply *common.HeartbeatReply) error {
	return p.call("Node.Heartbeat", args, reply)
}

func (p *Peer) RequestVote(args *common.RequestVoteArgs, reply *common.RequestVoteReply) error {
	return p.call("Node.RequestVote", args, reply)
}

func (p *Peer) VersionVectorExchange(args *common.VectorExchangeArgs, reply *common.VectorExchangeReply) error {
	return p.call("Node.VersionVectorExchange", args, reply)
}

func (p *Peer) PullDelta(args *common.PullDeltaArgs, reply *common.PullDeltaReply) error {
	return p.call("Node.PullDelta", args, reply)
}
