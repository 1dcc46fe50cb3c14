package common

// RPCHandler is the surface a node exposes to its peers (and that its
// peers expose to it). Both the election engine and the replication
// engine speak through it.
type RPCHandler interface {
	Heartbeat(args *HeartbeatArgs, reply *HeartbeatReply) error
	RequestVote(args *RequestVoteArgs, reply *RequestVoteReply) error
	VersionVectorExchange(args *VectorExchangeArgs, reply *VectorExchangeReply) error
	PullDelta(args *PullDeltaArgs, reply *PullDeltaReply) error
}

// PeerClient manages the RPC lifecycle towards one remote peer. Every call
// is bounded by the configured request timeout; an unreachable peer yields
// an error, never a hang.
type PeerClient interface {
	ID() string
	Heartbeat(args *HeartbeatArgs, reply *HeartbeatReply) error
	RequestVote(args *RequestVoteArgs, reply *RequestVoteReply) error
	VersionVectorExchange(args *VectorExchangeArgs, reply *VectorExchangeReply) error
	PullDelta(args *PullDeltaArgs, reply *PullDeltaReply) error
}

// RPCManager abstracts away transport handling from the cluster runtime.
type RPCManager interface {
	// Start is a blocking call. It serves the RPC surface at the given
	// address until Stop is called. Start only returns an error if it
	// fails to bind the listener.
	Start(address ServerAddress, handler RPCHandler) error
	ConnectToPeer(address ServerAddress, id string) (PeerClient, error)
	// Stop the RPCManager (permanent)
	Stop() error
	// Disconnect simulates a network partition for all managed peers
	Disconnect()
	// Reconnect heals a partition created by Disconnect
	Reconnect()
}
