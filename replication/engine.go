// Package replication converges the local stores of all nodes without a
// central authority. Change events are immutable, idempotent, and applied
// in per-origin sequence order, so two nodes holding the same event set
// reach the same per-row state regardless of arrival order.
package replication

import (
	"fmt"

	"github.com/hiveteam/hive/common"
	"github.com/hiveteam/hive/dedup"
	"github.com/hiveteam/hive/store"
	"go.uber.org/zap"
)

// DefaultBatchLimit bounds one delta pull.
const DefaultBatchLimit = 256

type Engine struct {
	store      *store.Store
	nodeID     string
	threshold  float64
	batchLimit int
	log        *zap.SugaredLogger
}

func NewEngine(st *store.Store, cfg common.ClusterConfig, log *zap.SugaredLogger) *Engine {
	return &Engine{
		store:      st,
		nodeID:     cfg.NodeID,
		threshold:  cfg.StorySimilarityThreshold,
		batchLimit: DefaultBatchLimit,
		log:        log,
	}
}

// VersionVector is this node's current knowledge summary: the max sequence
// per origin, including merged remote knowledge.
func (e *Engine) VersionVector() (common.VersionVector, error) {
	return e.store.Vector()
}

// DeltaSince returns up to limit change events ordered by origin then
// sequence whose sequence exceeds since[origin]. limit <= 0 means no limit.
func (e *Engine) DeltaSince(since common.VersionVector, limit int) ([]common.ChangeEvent, error) {
	var events []common.ChangeEvent
	err := e.store.View(func(tx *store.Tx) error {
		return tx.EachEvent(func(ev common.ChangeEvent) (bool, error) {
			if ev.Seq <= since.Get(ev.Origin) {
				return true, nil
			}
			events = append(events, ev)
			return limit <= 0 || len(events) < limit, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ApplyRemote upserts each event by row id and advances the local vector
// entry for the event's origin. Events at or below the known sequence for
// their origin are skipped, which makes replays and partial-batch retries
// safe. The whole batch is one transaction.
func (e *Engine) ApplyRemote(peerID string, events []common.ChangeEvent) (int, error) {
	applied := 0
	err := e.store.Update(func(tx *store.Tx) error {
		known, err := tx.Vector()
		if err != nil {
			return err
		}
		next := known.Copy()
		for _, ev := range events {
			if ev.Seq <= next.Get(ev.Origin) {
				continue
			}
			if err := applyEvent(tx, ev); err != nil {
				return fmt.Errorf("applying %s/%d from %s: %w", ev.Table, ev.Seq, peerID, err)
			}
			next.Observe(ev.Origin, ev.Seq)
			applied++
		}
		for origin, seq := range next {
			if seq == known.Get(origin) {
				continue
			}
			if err := tx.SetVectorEntry(origin, seq); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if applied > 0 {
		e.log.Debugw("applied remote events", "peer", peerID, "count", applied)
	}
	return applied, nil
}

// applyEvent upserts the payload: insert the row if absent, otherwise
// overwrite the fields the payload carries. The row's checkpoint is
// refreshed so the next local scan does not re-originate it.
//
// Events can be stamped before their origin's dedup pass ran but arrive
// after ours did, so story references in the payload are remapped through
// the recorded merge redirects, and an event for a story we already
// merged away is dropped rather than resurrecting the loser row.
func applyEvent(tx *store.Tx, ev common.ChangeEvent) error {
	incoming, err := store.DecodeRow(ev.Payload)
	if err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	if skip := remapMergedStories(tx, ev.Table, ev.RowID, incoming); skip {
		return nil
	}
	row, err := tx.GetRow(ev.Table, ev.RowID)
	if err != nil {
		return err
	}
	if row == nil {
		row = incoming
	} else {
		for field, value := range incoming {
			row[field] = value
		}
	}
	raw, err := store.EncodeRow(row)
	if err != nil {
		return err
	}
	if err := tx.PutRawRow(ev.Table, ev.RowID, raw); err != nil {
		return err
	}
	return tx.SetCheckpoint(ev.Table, ev.RowID, store.Fingerprint(raw))
}

// remapMergedStories rewrites story references in an incoming payload to
// their canonical ids. Returns true when the event targets a story this
// node already merged away, in which case it must not be applied.
func remapMergedStories(tx *store.Tx, table, rowID string, incoming store.Row) bool {
	if table == "stories" {
		if dedup.ResolveStory(tx, rowID) != rowID {
			return true
		}
		deps, ok := incoming["depends_on"].([]interface{})
		if !ok {
			return false
		}
		// Same filtering as the merge pass: no self-references, no
		// duplicates after remapping.
		var out []interface{}
		for _, dep := range deps {
			name, _ := dep.(string)
			name = dedup.ResolveStory(tx, name)
			if name == rowID || containsDep(out, name) {
				continue
			}
			out = append(out, name)
		}
		incoming["depends_on"] = out
		return false
	}
	for _, ref := range dedup.StoryRefTables {
		if table != ref {
			continue
		}
		if id := incoming.Str("story_id"); id != "" {
			incoming["story_id"] = dedup.ResolveStory(tx, id)
		}
		return false
	}
	return false
}

func containsDep(deps []interface{}, want string) bool {
	for _, dep := range deps {
		if s, _ := dep.(string); s == want {
			return true
		}
	}
	return false
}
