package dedup

import "github.com/hiveteam/hive/store"

const tombstonePrefix = "merge_tombstone/"

// recordMergeTx persists the loser -> canonical redirect. The loser row is
// gone after a merge, so events referencing it that arrive later can only
// be remapped through this record.
func recordMergeTx(tx *store.Tx, loser, canonical string) error {
	return tx.SetMeta(tombstonePrefix+loser, []byte(canonical))
}

// ResolveStory follows merge redirects to the surviving canonical story
// id. A canonical story can itself lose a later merge, so redirects chain.
// Ids that were never merged away resolve to themselves.
func ResolveStory(tx *store.Tx, id string) string {
	for i := 0; i < 64; i++ {
		raw := tx.Meta(tombstonePrefix + id)
		if raw == nil {
			return id
		}
		id = string(raw)
	}
	return id
}
