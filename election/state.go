package election

import (
	"strconv"

	"github.com/hiveteam/hive/store"
)

type Role int

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

// Meta keys for the persisted slice of election state. Term and voted_for
// survive restarts so a node cannot vote twice in the same term.
const (
	termKey     = "election_term"
	votedForKey = "election_voted_for"
)

// state is the per-node role/term belief, owned solely by the Engine and
// mutated only under its mutex.
type state struct {
	term     int64
	votedFor string // candidate voted for in the current term, "" if none
	role     Role
	leaderID string
}

func loadState(s *store.Store) (st state, err error) {
	st.role = Follower
	err = s.View(func(tx *store.Tx) error {
		if raw := tx.Meta(termKey); raw != nil {
			term, parseErr := strconv.ParseInt(string(raw), 10, 64)
			if parseErr != nil {
				return parseErr
			}
			st.term = term
		}
		if raw := tx.Meta(votedForKey); raw != nil {
			st.votedFor = string(raw)
		}
		return nil
	})
	return st, err
}

func persistState(s *store.Store, term int64, votedFor string) error {
	return s.Update(func(tx *store.Tx) error {
		if err := tx.SetMeta(termKey, []byte(strconv.FormatInt(term, 10))); err != nil {
			return err
		}
		if votedFor == "" {
			return tx.DeleteMeta(votedForKey)
		}
		return tx.SetMeta(votedForKey, []byte(votedFor))
	})
}
