package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"

	"github.com/hiveteam/hive/common"
)

// EncodeRow produces the canonical stored form of a row. encoding/json
// writes map keys in sorted order, so two rows with equal fields encode
// to identical bytes on every node.
func EncodeRow(row Row) ([]byte, error) {
	return json.Marshal(row)
}

func DecodeRow(raw []byte) (Row, error) {
	var row Row
	err := json.Unmarshal(raw, &row)
	return row, err
}

// Fingerprint hashes the canonical row bytes for checkpoint comparison.
func Fingerprint(raw []byte) []byte {
	sum := sha256.Sum256(raw)
	return sum[:]
}

func encodeEvent(ev common.ChangeEvent) ([]byte, error) {
	return json.Marshal(ev)
}

func decodeEvent(raw []byte) (common.ChangeEvent, error) {
	var ev common.ChangeEvent
	err := json.Unmarshal(raw, &ev)
	return ev, err
}

// eventKey orders the change log by origin, then sequence. The zero byte
// separator keeps distinct origins from sharing a key prefix.
func eventKey(origin string, seq uint64) []byte {
	key := make([]byte, 0, len(origin)+9)
	key = append(key, origin...)
	key = append(key, 0)
	return append(key, uint64ToBytes(seq)...)
}

// checkpointKey addresses one row's fingerprint in the checkpoints bucket.
func checkpointKey(table, id string) []byte {
	key := make([]byte, 0, len(table)+len(id)+1)
	key = append(key, table...)
	key = append(key, 0)
	return append(key, id...)
}

func bytesToUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func uint64ToBytes(u uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, u)
	return buf
}
