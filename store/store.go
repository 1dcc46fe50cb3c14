package store

// Bolt is a pure Go key/value store that doesn't require a full database
// server such as Postgres or MySQL. Every Hive node owns exactly one Bolt
// file holding its private copy of the shared tables plus the replication
// bookkeeping (change log, checkpoints, version vector, meta state).
import (
	"fmt"

	"github.com/boltdb/bolt"
	"github.com/hiveteam/hive/common"
)

// Tables tracked by the change tracker and replicated between nodes.
var Tables = []string{
	"teams",
	"agents",
	"stories",
	"requirements",
	"pull_requests",
	"escalations",
	"logs",
}

var (
	changeLogBucket   = []byte("change_log")
	checkpointsBucket = []byte("checkpoints")
	vectorBucket      = []byte("vector")
	metaBucket        = []byte("meta")
)

// Row is one record of a tracked table, decoded from its JSON form.
// Field sets are owned by the rest of Hive; this layer only requires
// the "id" field to be present.
type Row map[string]interface{}

func (r Row) ID() string {
	return r.Str("id")
}

// Str reads a string field, returning "" when absent or not a string.
func (r Row) Str(key string) string {
	s, _ := r[key].(string)
	return s
}

type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the node's Bolt file and ensures all
// buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(btx *bolt.Tx) error {
		for _, table := range Tables {
			if _, err := btx.CreateBucketIfNotExists([]byte(table)); err != nil {
				return err
			}
		}
		for _, name := range [][]byte{changeLogBucket, checkpointsBucket, vectorBucket, metaBucket} {
			if _, err := btx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn inside a single read-write Bolt transaction. The scan,
// apply and merge passes each run as one Update so a crash can never
// leave them half-visible.
func (s *Store) Update(fn func(tx *Tx) error) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&Tx{btx: btx})
	})
}

// View runs fn inside a single read-only Bolt transaction.
func (s *Store) View(fn func(tx *Tx) error) error {
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&Tx{btx: btx})
	})
}

// PutRow writes one row in its own transaction. This is the path used by
// the rest of Hive (planner, scheduler, agents). It does not touch the
// change log; the change tracker stamps the write on next scan.
func (s *Store) PutRow(table string, row Row) error {
	if row.ID() == "" {
		return fmt.Errorf("row for table %s has no id", table)
	}
	return s.Update(func(tx *Tx) error {
		return tx.PutRow(table, row)
	})
}

// GetRow returns the row, or nil if absent.
func (s *Store) GetRow(table, id string) (Row, error) {
	var row Row
	err := s.View(func(tx *Tx) error {
		var err error
		row, err = tx.GetRow(table, id)
		return err
	})
	return row, err
}

func (s *Store) DeleteRow(table, id string) error {
	return s.Update(func(tx *Tx) error {
		return tx.DeleteRow(table, id)
	})
}

// Rows returns all rows of a table in key order.
func (s *Store) Rows(table string) ([]Row, error) {
	var rows []Row
	err := s.View(func(tx *Tx) error {
		return tx.EachRow(table, func(id string, raw []byte) error {
			row, err := DecodeRow(raw)
			if err != nil {
				return err
			}
			rows = append(rows, row)
			return nil
		})
	})
	return rows, err
}

// Vector returns this node's version vector in its own transaction.
func (s *Store) Vector() (common.VersionVector, error) {
	var vec common.VersionVector
	err := s.View(func(tx *Tx) error {
		var err error
		vec, err = tx.Vector()
		return err
	})
	return vec, err
}
