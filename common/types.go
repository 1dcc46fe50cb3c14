package common

import "encoding/json"

// VersionVector maps an origin node id to the highest sequence number from
// that origin reflected locally. It summarizes causal history and doubles
// as the cursor for delta pulls. Entries only ever increase.
type VersionVector map[string]uint64

func (v VersionVector) Get(origin string) uint64 {
	return v[origin]
}

// Observe raises the entry for origin to seq if seq is higher.
func (v VersionVector) Observe(origin string, seq uint64) {
	if seq > v[origin] {
		v[origin] = seq
	}
}

func (v VersionVector) Copy() VersionVector {
	out := make(VersionVector, len(v))
	for origin, seq := range v {
		out[origin] = seq
	}
	return out
}

// Contains reports whether v reflects everything other does, i.e. a delta
// pull against other would return nothing new for us.
func (v VersionVector) Contains(other VersionVector) bool {
	for origin, seq := range other {
		if v[origin] < seq {
			return false
		}
	}
	return true
}

// Row operations carried by change events. Deletes are intentionally
// absent: rows only disappear through the local deduplication pass,
// which every node recomputes independently.
const (
	OpInsert = "insert"
	OpUpdate = "update"
)

// ChangeEvent is the immutable, replicated record of one row mutation.
// Ordering guarantees are per-origin only.
type ChangeEvent struct {
	Origin  string          `json:"origin"`
	Seq     uint64          `json:"seq"`
	Table   string          `json:"table"`
	RowID   string          `json:"row_id"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

// NodeStatus is the read-only snapshot exposed to the story scheduler and
// operator tooling. IsLeader is best-effort and can be transiently wrong
// during leadership transitions; callers must not treat it as a lock.
type NodeStatus struct {
	NodeID   string        `json:"node_id"`
	Role     string        `json:"role"`
	IsLeader bool          `json:"is_leader"`
	Term     int64         `json:"term"`
	LeaderID string        `json:"leader_id"`
	Vector   VersionVector `json:"version_vector"`
}
