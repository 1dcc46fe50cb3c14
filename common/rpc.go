package common

// Wire structs for the peer RPC surface. A response carrying a higher term
// than known locally triggers immediate term adoption on the caller.

type HeartbeatArgs struct {
	Term     int64
	LeaderID string
}

type HeartbeatReply struct {
	Term     int64
	Accepted bool
}

type RequestVoteArgs struct {
	Term        int64
	CandidateID string
}

type RequestVoteReply struct {
	Term        int64
	VoteGranted bool
}

type VectorExchangeArgs struct {
	NodeID string
}

type VectorExchangeReply struct {
	Vector VersionVector
}

type PullDeltaArgs struct {
	Since VersionVector
	Limit int
}

type PullDeltaReply struct {
	Events []ChangeEvent
}
