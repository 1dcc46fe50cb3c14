package store

import (
	"fmt"

	"github.com/boltdb/bolt"
	"github.com/hiveteam/hive/common"
)

// Tx wraps a Bolt transaction with typed accessors for the table rows and
// the replication bookkeeping buckets.
type Tx struct {
	btx *bolt.Tx
}

func (tx *Tx) table(name string) (*bolt.Bucket, error) {
	bucket := tx.btx.Bucket([]byte(name))
	if bucket == nil {
		return nil, fmt.Errorf("unknown table %q", name)
	}
	return bucket, nil
}

func (tx *Tx) PutRow(table string, row Row) error {
	raw, err := EncodeRow(row)
	if err != nil {
		return err
	}
	return tx.PutRawRow(table, row.ID(), raw)
}

// PutRawRow stores pre-encoded (canonical JSON) row bytes.
func (tx *Tx) PutRawRow(table, id string, raw []byte) error {
	bucket, err := tx.table(table)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(id), raw)
}

// GetRow returns nil (and no error) when the row does not exist.
func (tx *Tx) GetRow(table, id string) (Row, error) {
	bucket, err := tx.table(table)
	if err != nil {
		return nil, err
	}
	raw := bucket.Get([]byte(id))
	if raw == nil {
		return nil, nil
	}
	return DecodeRow(raw)
}

func (tx *Tx) DeleteRow(table, id string) error {
	bucket, err := tx.table(table)
	if err != nil {
		return err
	}
	return bucket.Delete([]byte(id))
}

// EachRow visits rows in key order, which makes sequence stamping during a
// scan deterministic.
func (tx *Tx) EachRow(table string, fn func(id string, raw []byte) error) error {
	bucket, err := tx.table(table)
	if err != nil {
		return err
	}
	return bucket.ForEach(func(k, v []byte) error {
		return fn(string(k), v)
	})
}

// Checkpoint returns the stored fingerprint for a row, or nil.
func (tx *Tx) Checkpoint(table, id string) []byte {
	return tx.btx.Bucket(checkpointsBucket).Get(checkpointKey(table, id))
}

func (tx *Tx) SetCheckpoint(table, id string, fingerprint []byte) error {
	return tx.btx.Bucket(checkpointsBucket).Put(checkpointKey(table, id), fingerprint)
}

func (tx *Tx) DeleteCheckpoint(table, id string) error {
	return tx.btx.Bucket(checkpointsBucket).Delete(checkpointKey(table, id))
}

func (tx *Tx) Vector() (common.VersionVector, error) {
	vec := make(common.VersionVector)
	err := tx.btx.Bucket(vectorBucket).ForEach(func(k, v []byte) error {
		vec[string(k)] = bytesToUint64(v)
		return nil
	})
	return vec, err
}

func (tx *Tx) SetVectorEntry(origin string, seq uint64) error {
	return tx.btx.Bucket(vectorBucket).Put([]byte(origin), uint64ToBytes(seq))
}

func (tx *Tx) AppendEvent(ev common.ChangeEvent) error {
	raw, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return tx.btx.Bucket(changeLogBucket).Put(eventKey(ev.Origin, ev.Seq), raw)
}

// EachEvent visits change events ordered by origin then sequence (the
// bucket key order). fn returning false stops the iteration early.
func (tx *Tx) EachEvent(fn func(ev common.ChangeEvent) (bool, error)) error {
	cursor := tx.btx.Bucket(changeLogBucket).Cursor()
	for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
		ev, err := decodeEvent(v)
		if err != nil {
			return err
		}
		more, err := fn(ev)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// Meta returns the value for a meta key, or nil.
func (tx *Tx) Meta(key string) []byte {
	return tx.btx.Bucket(metaBucket).Get([]byte(key))
}

func (tx *Tx) SetMeta(key string, value []byte) error {
	return tx.btx.Bucket(metaBucket).Put([]byte(key), value)
}

func (tx *Tx) DeleteMeta(key string) error {
	return tx.btx.Bucket(metaBucket).Delete([]byte(key))
}
