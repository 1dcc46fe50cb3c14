package election_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hiveteam/hive/common"
	"github.com/hiveteam/hive/election"
	"github.com/hiveteam/hive/logging"
	"github.com/hiveteam/hive/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quietConfig yields an engine whose timers never fire during a test, so
// handler semantics can be exercised in isolation.
func quietConfig(nodeID string, peers ...string) common.ClusterConfig {
	cfg := common.ClusterConfig{
		NodeID:                   nodeID,
		HeartbeatIntervalMs:      3600000,
		ElectionTimeoutMinMs:     3600000,
		ElectionTimeoutMaxMs:     3600000,
		SyncIntervalMs:           3600000,
		RequestTimeoutMs:         500,
		StorySimilarityThreshold: 0.8,
	}
	for _, id := range peers {
		cfg.Peers = append(cfg.Peers, common.PeerConfig{ID: id, URL: "127.0.0.1:1"})
	}
	return cfg
}

func newEngine(t *testing.T, cfg common.ClusterConfig) (*election.Engine, *store.Store) {
	s, err := store.Open(filepath.Join(t.TempDir(), cfg.NodeID+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	engine, err := election.NewEngine(cfg, s, nil, logging.Nop())
	require.NoError(t, err)
	engine.Start()
	t.Cleanup(engine.Stop)
	return engine, s
}

func Test_VoteGrantRules(t *testing.T) {
	engine, _ := newEngine(t, quietConfig("node-a", "node-b", "node-c"))

	// First request of a term gets the vote.
	var reply common.RequestVoteReply
	err := engine.HandleRequestVote(&common.RequestVoteArgs{Term: 1, CandidateID: "node-b"}, &reply)
	assert.NoError(t, err)
	assert.True(t, reply.VoteGranted)
	assert.EqualValues(t, 1, reply.Term)

	// Same term, different candidate: rejected.
	err = engine.HandleRequestVote(&common.RequestVoteArgs{Term: 1, CandidateID: "node-c"}, &reply)
	assert.NoError(t, err)
	assert.False(t, reply.VoteGranted)

	// Same term, same candidate: re-granted (retry safe).
	err = engine.HandleRequestVote(&common.RequestVoteArgs{Term: 1, CandidateID: "node-b"}, &reply)
	assert.NoError(t, err)
	assert.True(t, reply.VoteGranted)

	// Stale term: rejected, our term returned.
	err = engine.HandleRequestVote(&common.RequestVoteArgs{Term: 0, CandidateID: "node-c"}, &reply)
	assert.NoError(t, err)
	assert.False(t, reply.VoteGranted)
	assert.EqualValues(t, 1, reply.Term)

	// Higher term: adopted, vote granted afresh.
	err = engine.HandleRequestVote(&common.RequestVoteArgs{Term: 5, CandidateID: "node-c"}, &reply)
	assert.NoError(t, err)
	assert.True(t, reply.VoteGranted)
	assert.EqualValues(t, 5, reply.Term)
	assert.EqualValues(t, 5, engine.Status().Term)
}

func Test_HeartbeatRules(t *testing.T) {
	engine, _ := newEngine(t, quietConfig("node-a", "node-b", "node-c"))

	var reply common.HeartbeatReply
	err := engine.HandleHeartbeat(&common.HeartbeatArgs{Term: 3, LeaderID: "node-b"}, &reply)
	assert.NoError(t, err)
	assert.True(t, reply.Accepted)
	assert.EqualValues(t, 3, reply.Term)

	status := engine.Status()
	assert.Equal(t, "follower", status.Role)
	assert.Equal(t, "node-b", status.LeaderID)
	assert.EqualValues(t, 3, status.Term)

	// Heartbeat from a stale leader is rejected with our term.
	err = engine.HandleHeartbeat(&common.HeartbeatArgs{Term: 2, LeaderID: "node-c"}, &reply)
	assert.NoError(t, err)
	assert.False(t, reply.Accepted)
	assert.EqualValues(t, 3, reply.Term)
	assert.Equal(t, "node-b", engine.Status().LeaderID)
}

func Test_TermSurvivesRestart(t *testing.T) {
	cfg := quietConfig("node-a", "node-b", "node-c")
	s, err := store.Open(filepath.Join(t.TempDir(), "node-a.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	engine, err := election.NewEngine(cfg, s, nil, logging.Nop())
	require.NoError(t, err)
	engine.Start()

	var reply common.RequestVoteReply
	require.NoError(t, engine.HandleRequestVote(&common.RequestVoteArgs{Term: 7, CandidateID: "node-b"}, &reply))
	require.True(t, reply.VoteGranted)
	engine.Stop()

	// A restarted node remembers the term and its vote: it must not vote
	// for a different candidate in the same term.
	restarted, err := election.NewEngine(cfg, s, nil, logging.Nop())
	require.NoError(t, err)
	restarted.Start()
	t.Cleanup(restarted.Stop)

	assert.EqualValues(t, 7, restarted.Status().Term)
	require.NoError(t, restarted.HandleRequestVote(&common.RequestVoteArgs{Term: 7, CandidateID: "node-c"}, &reply))
	assert.False(t, reply.VoteGranted)
}

func Test_SingleNodeBecomesLeader(t *testing.T) {
	cfg := quietConfig("node-a")
	cfg.ElectionTimeoutMinMs = 50
	cfg.ElectionTimeoutMaxMs = 100
	cfg.HeartbeatIntervalMs = 25
	engine, _ := newEngine(t, cfg)

	assert.Eventually(t, func() bool {
		status := engine.Status()
		return status.IsLeader && status.Term >= 1
	}, 3*time.Second, 20*time.Millisecond, "single node never elected itself")
	assert.Equal(t, "node-a", engine.Status().LeaderID)
}

func Test_RoleChangeCallback(t *testing.T) {
	cfg := quietConfig("node-a")
	cfg.ElectionTimeoutMinMs = 50
	cfg.ElectionTimeoutMaxMs = 100
	cfg.HeartbeatIntervalMs = 25

	s, err := store.Open(filepath.Join(t.TempDir(), "node-a.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	engine, err := election.NewEngine(cfg, s, nil, logging.Nop())
	require.NoError(t, err)

	roles := make(chan election.Role, 16)
	engine.OnRoleChange = func(role election.Role) { roles <- role }
	engine.Start()
	t.Cleanup(engine.Stop)

	seen := map[election.Role]bool{}
	deadline := time.After(3 * time.Second)
	for !seen[election.Candidate] || !seen[election.Leader] {
		select {
		case role := <-roles:
			seen[role] = true
		case <-deadline:
			t.Fatalf("missing role transitions, saw %v", seen)
		}
	}
}
