package dedup

import (
	"sort"

	"github.com/hiveteam/hive/store"
)

// Statuses in which a story can no longer be merged away.
var terminalStatuses = map[string]struct{}{
	"done":      {},
	"cancelled": {},
}

// StoryRefTables holds every table with a story_id foreign key that must
// follow a merge. The replication engine remaps the same tables when it
// applies events stamped before a merge the local node already performed.
var StoryRefTables = []string{"agents", "pull_requests", "escalations", "logs"}

type candidate struct {
	id    string
	title string
	desc  string
}

// MergeSimilarStories collapses every pair of active stories whose
// similarity meets the threshold. The canonical survivor is always the
// lexicographically smaller id; all foreign references are re-pointed to
// it inside the same transaction and the loser row is deleted.
//
// Checkpoints of every touched row are rewritten so the merge itself
// never appears in the change log. Each node recomputes the identical
// merge from converged data instead of replicating it, and records a
// loser -> canonical redirect for events that still reference the loser.
//
// Returns the number of merges performed; once only canonical rows
// remain, further calls return 0.
func MergeSimilarStories(s *store.Store, threshold float64) (int, error) {
	merges := 0
	err := s.Update(func(tx *store.Tx) error {
		var stories []candidate
		err := tx.EachRow("stories", func(id string, raw []byte) error {
			row, err := store.DecodeRow(raw)
			if err != nil {
				return err
			}
			if _, terminal := terminalStatuses[row.Str("status")]; terminal {
				return nil
			}
			stories = append(stories, candidate{
				id:    id,
				title: row.Str("title"),
				desc:  row.Str("description"),
			})
			return nil
		})
		if err != nil {
			return err
		}
		// Bolt iterates in key order already, but sort anyway so the
		// winner selection never depends on storage details.
		sort.Slice(stories, func(i, j int) bool { return stories[i].id < stories[j].id })

		merged := make(map[string]bool)
		for i := range stories {
			if merged[stories[i].id] {
				continue
			}
			for j := i + 1; j < len(stories); j++ {
				if merged[stories[j].id] {
					continue
				}
				score := Similarity(stories[i].title, stories[i].desc, stories[j].title, stories[j].desc)
				if score < threshold {
					continue
				}
				if err := mergeStory(tx, stories[i].id, stories[j].id); err != nil {
					return err
				}
				merged[stories[j].id] = true
				merges++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return merges, nil
}

// mergeStory re-points every reference from loser to canonical, then
// deletes the loser row. Bolt forbids mutating a bucket mid-iteration,
// so modified rows are collected first and written after.
func mergeStory(tx *store.Tx, canonical, loser string) error {
	for _, table := range StoryRefTables {
		modified, err := collectRepointed(tx, table, "story_id", canonical, loser)
		if err != nil {
			return err
		}
		if err := writeBack(tx, table, modified); err != nil {
			return err
		}
	}
	// Dependency lists on stories themselves.
	var modified []store.Row
	err := tx.EachRow("stories", func(id string, raw []byte) error {
		row, err := store.DecodeRow(raw)
		if err != nil {
			return err
		}
		deps, ok := row["depends_on"].([]interface{})
		if !ok {
			return nil
		}
		changed := false
		var out []interface{}
		for _, dep := range deps {
			name, _ := dep.(string)
			if name == loser {
				name = canonical
				changed = true
			}
			if name == id || containsString(out, name) {
				continue
			}
			out = append(out, name)
		}
		if changed {
			row["depends_on"] = out
			modified = append(modified, row)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := writeBack(tx, "stories", modified); err != nil {
		return err
	}
	if err := tx.DeleteRow("stories", loser); err != nil {
		return err
	}
	if err := tx.DeleteCheckpoint("stories", loser); err != nil {
		return err
	}
	return recordMergeTx(tx, loser, canonical)
}

func collectRepointed(tx *store.Tx, table, field, canonical, loser string) ([]store.Row, error) {
	var modified []store.Row
	err := tx.EachRow(table, func(id string, raw []byte) error {
		row, err := store.DecodeRow(raw)
		if err != nil {
			return err
		}
		if row.Str(field) != loser {
			return nil
		}
		row[field] = canonical
		modified = append(modified, row)
		return nil
	})
	return modified, err
}

// writeBack stores rows and refreshes their checkpoints, keeping the
// merge invisible to the change tracker.
func writeBack(tx *store.Tx, table string, rows []store.Row) error {
	for _, row := range rows {
		raw, err := store.EncodeRow(row)
		if err != nil {
			return err
		}
		if err := tx.PutRawRow(table, row.ID(), raw); err != nil {
			return err
		}
		if err := tx.SetCheckpoint(table, row.ID(), store.Fingerprint(raw)); err != nil {
			return err
		}
	}
	return nil
}

func containsString(values []interface{}, want string) bool {
	for _, v := range values {
		if s, _ := v.(string); s == want {
			return true
		}
	}
	return false
}
