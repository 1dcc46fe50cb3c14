package replication

import (
	"errors"
	"fmt"

	"github.com/hiveteam/hive/common"
	"github.com/hiveteam/hive/dedup"
	"github.com/hiveteam/hive/tracker"
)

// SyncStats summarizes one anti-entropy tick.
type SyncStats struct {
	Scanned int // locally stamped rows
	Applied int // remote events applied
	Merges  int // story merges performed
}

// PeerError marks a fault talking to one peer. Peer faults are never
// fatal: the peer is skipped and retried next tick.
type PeerError struct {
	Peer string
	Err  error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer %s: %v", e.Peer, e.Err)
}

func (e *PeerError) Unwrap() error { return e.Err }

// SyncOnce runs one full anti-entropy cycle: stamp local changes, pull and
// apply each peer's delta, then run the deduplication pass. Every node
// runs this on its own timer regardless of leadership.
//
// Unreachable or malformed peers are logged and skipped; a local storage
// error aborts the tick with nothing partially committed.
func (e *Engine) SyncOnce(peers []common.PeerClient) (SyncStats, error) {
	var stats SyncStats
	scanned, err := tracker.Scan(e.store, e.nodeID)
	if err != nil {
		return stats, err
	}
	stats.Scanned = scanned

	for _, peer := range peers {
		applied, err := e.pullFromPeer(peer)
		stats.Applied += applied
		if err != nil {
			var peerErr *PeerError
			if errors.As(err, &peerErr) {
				e.log.Warnw("peer unavailable, retrying next tick", "peer", peer.ID(), "error", peerErr.Err)
				continue
			}
			return stats, err
		}
	}

	merges, err := dedup.MergeSimilarStories(e.store, e.threshold)
	if err != nil {
		return stats, err
	}
	stats.Merges = merges
	return stats, nil
}

// pullFromPeer drains the peer's delta relative to our vector, looping
// while full batches return so a far-behind node catches up in one tick.
func (e *Engine) pullFromPeer(peer common.PeerClient) (int, error) {
	applied := 0
	for {
		local, err := e.VersionVector()
		if err != nil {
			return applied, err
		}
		var vecReply common.VectorExchangeReply
		if err := peer.VersionVectorExchange(&common.VectorExchangeArgs{NodeID: e.nodeID}, &vecReply); err != nil {
			return applied, &PeerError{Peer: peer.ID(), Err: err}
		}
		if local.Contains(vecReply.Vector) {
			return applied, nil
		}
		var deltaReply common.PullDeltaReply
		if err := peer.PullDelta(&common.PullDeltaArgs{Since: local, Limit: e.batchLimit}, &deltaReply); err != nil {
			return applied, &PeerError{Peer: peer.ID(), Err: err}
		}
		if len(deltaReply.Events) == 0 {
			return applied, nil
		}
		n, err := e.ApplyRemote(peer.ID(), deltaReply.Events)
		if err != nil {
			return applied, err
		}
		applied += n
		if n == 0 || len(deltaReply.Events) < e.batchLimit {
			return applied, nil
		}
	}
}
