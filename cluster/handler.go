package cluster

import (
	"fmt"

	"github.com/hiveteam/hive/common"
	"github.com/hiveteam/hive/replication"
)

// rpcHandler is the peer-facing RPC surface of a node, delegating to the
// election and replication engines.
type rpcHandler struct {
	node *Node
}

var _ common.RPCHandler = (*rpcHandler)(nil)

func (h *rpcHandler) Heartbeat(args *common.HeartbeatArgs, reply *common.HeartbeatReply) error {
	if h.node.partitioned() {
		return fmt.Errorf("%s is partitioned", h.node.cfg.NodeID)
	}
	return h.node.election.HandleHeartbeat(args, reply)
}

func (h *rpcHandler) RequestVote(args *common.RequestVoteArgs, reply *common.RequestVoteReply) error {
	if h.node.partitioned() {
		return fmt.Errorf("%s is partitioned", h.node.cfg.NodeID)
	}
	return h.node.election.HandleRequestVote(args, reply)
}

func (h *rpcHandler) VersionVectorExchange(args *common.VectorExchangeArgs, reply *common.VectorExchangeReply) error {
	if h.node.partitioned() {
		return fmt.Errorf("%s is partitioned", h.node.cfg.NodeID)
	}
	vector, err := h.node.repl.VersionVector()
	if err != nil {
		return err
	}
	reply.Vector = vector
	return nil
}

func (h *rpcHandler) PullDelta(args *common.PullDeltaArgs, reply *common.PullDeltaReply) error {
	if h.node.partitioned() {
		return fmt.Errorf("%s is partitioned", h.node.cfg.NodeID)
	}
	limit := args.Limit
	if limit <= 0 || limit > replication.DefaultBatchLimit {
		limit = replication.DefaultBatchLimit
	}
	events, err := h.node.repl.DeltaSince(args.Since, limit)
	if err != nil {
		return err
	}
	reply.Events = events
	return nil
}
