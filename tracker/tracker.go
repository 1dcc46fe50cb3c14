// Package tracker detects local mutations made to the store outside the
// replication path and stamps them into the change log, so the version
// vector advances for every write no matter who made it.
package tracker

import (
	"bytes"

	"github.com/hiveteam/hive/common"
	"github.com/hiveteam/hive/store"
)

// Scan compares every row of every tracked table against its checkpoint
// fingerprint. Each differing row gets the next per-node sequence number,
// a recorded ChangeEvent, and a fresh checkpoint. The whole scan is one
// transaction; it either commits fully or not at all.
//
// Returns the number of newly stamped rows; with no intervening writes a
// repeated call returns 0.
func Scan(s *store.Store, nodeID string) (int, error) {
	count := 0
	err := s.Update(func(tx *store.Tx) error {
		vec, err := tx.Vector()
		if err != nil {
			return err
		}
		seq := vec.Get(nodeID)
		for _, table := range store.Tables {
			err := tx.EachRow(table, func(id string, raw []byte) error {
				fingerprint := store.Fingerprint(raw)
				prev := tx.Checkpoint(table, id)
				if bytes.Equal(prev, fingerprint) {
					return nil
				}
				op := common.OpUpdate
				if prev == nil {
					op = common.OpInsert
				}
				seq++
				event := common.ChangeEvent{
					Origin:  nodeID,
					Seq:     seq,
					Table:   table,
					RowID:   id,
					Op:      op,
					Payload: append([]byte(nil), raw...),
				}
				if err := tx.AppendEvent(event); err != nil {
					return err
				}
				if err := tx.SetCheckpoint(table, id, fingerprint); err != nil {
					return err
				}
				count++
				return nil
			})
			if err != nil {
				return err
			}
		}
		if seq != vec.Get(nodeID) {
			return tx.SetVectorEntry(nodeID, seq)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
