// Package election maintains exactly one leader per term among reachable
// nodes, with automatic failover. Guarantees rest on a majority quorum of
// the statically configured membership; randomized timeouts mitigate, but
// do not eliminate, split votes.
package election

import (
	"math/rand"
	"sync"
	"time"

	"github.com/hiveteam/hive/common"
	"github.com/hiveteam/hive/store"
	"go.uber.org/zap"
)

type Engine struct {
	mu sync.Mutex
	state

	nodeID      string
	clusterSize int
	peers       []common.PeerClient
	store       *store.Store
	log         *zap.SugaredLogger

	heartbeatInterval  time.Duration
	electionTimeoutMin time.Duration
	electionTimeoutMax time.Duration

	// Controller goroutines are driven by these channels: true re-arms
	// the corresponding timer, false disarms it.
	electionTimerChan  chan bool
	heartbeatTimerChan chan bool
	stopChan           chan struct{}
	stopOnce           sync.Once
	wg                 sync.WaitGroup

	// OnRoleChange, if set before Start, is invoked (in its own
	// goroutine) whenever the node's role changes.
	OnRoleChange func(Role)
}

func NewEngine(cfg common.ClusterConfig, st *store.Store, peers []common.PeerClient, log *zap.SugaredLogger) (*Engine, error) {
	persisted, err := loadState(st)
	if err != nil {
		return nil, err
	}
	return &Engine{
		state:              persisted,
		nodeID:             cfg.NodeID,
		clusterSize:        cfg.ClusterSize(),
		peers:              peers,
		store:              st,
		log:                log,
		heartbeatInterval:  cfg.HeartbeatInterval(),
		electionTimeoutMin: cfg.ElectionTimeoutMin(),
		electionTimeoutMax: cfg.ElectionTimeoutMax(),
		electionTimerChan:  make(chan bool, 10),
		heartbeatTimerChan: make(chan bool, 10),
		stopChan:           make(chan struct{}),
	}, nil
}

func (e *Engine) Start() {
	// Arm the election timer, keep the heartbeat timer disarmed.
	e.electionTimerChan <- true
	e.heartbeatTimerChan <- false
	e.wg.Add(2)
	go e.electionTimeoutController()
	go e.heartbeatController()
	e.log.Infow("election engine started", "term", e.term)
}

// Stop disarms both timers and waits for the controllers to exit.
// In-flight peer calls finish or time out on their own.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
	})
	e.wg.Wait()
}

// Status returns an immutable snapshot for external callers. The story
// scheduler gates its assignment pass on IsLeader.
func (e *Engine) Status() common.NodeStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return common.NodeStatus{
		NodeID:   e.nodeID,
		Role:     e.role.String(),
		IsLeader: e.role == Leader,
		Term:     e.term,
		LeaderID: e.leaderID,
	}
}

// HandleHeartbeat is the peer-facing heartbeat endpoint. Any heartbeat
// from a leader with term >= ours resets the election timer and adopts
// that leader.
func (e *Engine) HandleHeartbeat(args *common.HeartbeatArgs, reply *common.HeartbeatReply) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if args.Term < e.term {
		reply.Term = e.term
		reply.Accepted = false
		return nil
	}
	if args.Term > e.term {
		e.adoptTermLocked(args.Term)
	}
	if e.role != Follower {
		e.becomeFollowerLocked()
	}
	e.leaderID = args.LeaderID
	e.electionTimerChan <- true
	reply.Term = e.term
	reply.Accepted = true
	return nil
}

// HandleRequestVote grants a vote iff the request term is strictly greater
// than ours, or equal and we have not yet voted for a different candidate
// this term.
func (e *Engine) HandleRequestVote(args *common.RequestVoteArgs, reply *common.RequestVoteReply) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if args.Term > e.term {
		e.adoptTermLocked(args.Term)
		if e.role != Follower {
			e.becomeFollowerLocked()
		}
	}
	reply.Term = e.term
	if args.Term < e.term {
		reply.VoteGranted = false
		return nil
	}
	if e.votedFor != "" && e.votedFor != args.CandidateID {
		reply.VoteGranted = false
		return nil
	}
	e.votedFor = args.CandidateID
	e.persistLocked()
	reply.VoteGranted = true
	e.log.Debugw("vote granted", "candidate", args.CandidateID, "term", e.term)
	return nil
}

// adoptTermLocked converges on a higher observed term and forgets the
// current-term vote. Caller holds the mutex.
func (e *Engine) adoptTermLocked(term int64) {
	e.term = term
	e.votedFor = ""
	e.leaderID = ""
	e.persistLocked()
}

func (e *Engine) persistLocked() {
	// Persistence failures degrade durability of the vote, never
	// availability of the node.
	if err := persistState(e.store, e.term, e.votedFor); err != nil {
		e.log.Errorw("failed to persist election state", "error", err)
	}
}

func (e *Engine) becomeFollowerLocked() {
	if e.role != Follower {
		e.log.Infow("converting to follower", "term", e.term)
		e.setRoleLocked(Follower)
	}
	e.leaderID = ""
	e.electionTimerChan <- true
	e.heartbeatTimerChan <- false
}

// becomeCandidateLocked starts a new election: bump the term, vote for
// ourselves, and ask every peer with a deadline-bounded call.
func (e *Engine) becomeCandidateLocked() {
	e.setRoleLocked(Candidate)
	e.leaderID = ""
	e.term++
	e.votedFor = e.nodeID
	e.persistLocked()
	e.electionTimerChan <- true
	e.log.Infow("starting election", "term", e.term)

	args := common.RequestVoteArgs{Term: e.term, CandidateID: e.nodeID}
	total := e.clusterSize
	needed := total/2 + 1
	voteChan := make(chan bool, total)
	for _, peer := range e.peers {
		peer := peer
		go func() {
			var reply common.RequestVoteReply
			if err := peer.RequestVote(&args, &reply); err != nil {
				// Unreachable peer counts as "no vote", never fatal.
				voteChan <- false
				return
			}
			e.mu.Lock()
			if reply.Term > e.term {
				e.adoptTermLocked(reply.Term)
				e.becomeFollowerLocked()
			}
			e.mu.Unlock()
			voteChan <- reply.VoteGranted
		}()
	}
	go func() {
		// Our own vote is already counted.
		votes, granted := 1, 1
		for granted < needed && votes < total {
			select {
			case <-e.stopChan:
				return
			case vote := <-voteChan:
				votes++
				if vote {
					granted++
				}
			}
		}
		if granted >= needed {
			e.mu.Lock()
			e.becomeLeaderLocked(args.Term, granted)
			e.mu.Unlock()
		}
	}()
}

// becomeLeaderLocked completes an election won for term. Results of stale
// elections (the term moved on while votes were in flight) are discarded.
func (e *Engine) becomeLeaderLocked(term int64, granted int) {
	if term != e.term || e.role != Candidate {
		e.log.Debugw("discarding stale election result", "electionTerm", term, "term", e.term)
		return
	}
	e.log.Infow("elected leader", "term", e.term, "votes", granted)
	e.setRoleLocked(Leader)
	e.leaderID = e.nodeID
	e.electionTimerChan <- false
	e.heartbeatTimerChan <- true
	// Announce immediately; the heartbeat timer takes over from here.
	e.broadcastHeartbeatsLocked()
}

// broadcastHeartbeatsLocked announces leadership to every peer. A response
// bearing a higher term demotes us immediately.
func (e *Engine) broadcastHeartbeatsLocked() {
	args := common.HeartbeatArgs{Term: e.term, LeaderID: e.nodeID}
	for _, peer := range e.peers {
		peer := peer
		go func() {
			var reply common.HeartbeatReply
			if err := peer.Heartbeat(&args, &reply); err != nil {
				return
			}
			e.mu.Lock()
			defer e.mu.Unlock()
			if reply.Term > e.term {
				e.adoptTermLocked(reply.Term)
				e.becomeFollowerLocked()
			}
		}()
	}
}

func (e *Engine) setRoleLocked(role Role) {
	if e.role == role {
		return
	}
	e.role = role
	if e.OnRoleChange != nil {
		callback := e.OnRoleChange
		go callback(role)
	}
}

// electionTimeoutController runs in its own goroutine and owns the
// randomized election timer. Sending true to electionTimerChan resets it,
// false disarms it. On expiry we convert to candidate unless leading.
func (e *Engine) electionTimeoutController() {
	defer e.wg.Done()
	randomTimeout := func() time.Duration {
		spread := e.electionTimeoutMax - e.electionTimeoutMin
		if spread <= 0 {
			return e.electionTimeoutMin
		}
		return e.electionTimeoutMin + time.Duration(rand.Int63n(int64(spread)+1))
	}
	ticker := time.NewTicker(randomTimeout())
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			ticker.Stop()
			e.mu.Lock()
			if e.role != Leader {
				e.becomeCandidateLocked()
			}
			e.mu.Unlock()
			ticker.Reset(randomTimeout())
		case rearm := <-e.electionTimerChan:
			if rearm {
				ticker.Reset(randomTimeout())
			} else {
				ticker.Stop()
			}
		}
	}
}

// heartbeatController owns the leader's heartbeat timer. A queued tick can
// arrive after the timer was disarmed, so the role is re-checked under the
// lock before broadcasting.
func (e *Engine) heartbeatController() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.role == Leader {
				e.broadcastHeartbeatsLocked()
			}
			e.mu.Unlock()
		case rearm := <-e.heartbeatTimerChan:
			if rearm {
				ticker.Reset(e.heartbeatInterval)
			} else {
				ticker.Stop()
			}
		}
	}
}
