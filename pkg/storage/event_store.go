package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/exchangecity/exchanged/pkg/events"
)

// PebbleEventStore persists the audit log in a Pebble database. Keys
// are "e:" + 8-byte big-endian sequence so an iterator walks records
// in emission order.
type PebbleEventStore struct {
	db *pebble.DB
}

func NewPebbleEventStore(path string) (*PebbleEventStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &PebbleEventStore{db: db}, nil
}

func (s *PebbleEventStore) Close() error { return s.db.Close() }

func eventKey(seq uint64) []byte {
	k := make([]byte, 2+8)
	copy(k, "e:")
	binary.BigEndian.PutUint64(k[2:], seq)
	return k
}

// Append writes one record durably. Each record is synced; the log is
// the system of record for external observers.
func (s *PebbleEventStore) Append(r events.Record) error {
	val, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal event %d: %w", r.Seq, err)
	}
	if err := s.db.Set(eventKey(r.Seq), val, pebble.Sync); err != nil {
		return fmt.Errorf("append event %d: %w", r.Seq, err)
	}
	return nil
}

// Load returns every persisted record in sequence order. Used once at
// startup to restore the in-memory log.
func (s *PebbleEventStore) Load() ([]events.Record, error) {
	lower := eventKey(0)
	upper := eventKey(^uint64(0))
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("event iterator: %w", err)
	}
	defer iter.Close()

	var out []events.Record
	for iter.First(); iter.Valid(); iter.Next() {
		var r events.Record
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, fmt.Errorf("decode event at %x: %w", iter.Key(), err)
		}
		out = append(out, r)
	}
	return out, iter.Error()
}

var _ events.Store = (*PebbleEventStore)(nil)
