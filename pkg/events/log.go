package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/exchangecity/exchanged/pkg/util"
)

// Store is a durable sink for appended records. The pebble-backed
// implementation lives in pkg/storage.
type Store interface {
	Append(Record) error
}

// Log is the exchange's append-only audit log. Records are assigned a
// strictly increasing sequence number, kept in memory for polling
// reads, written to the durable store, and fanned out to subscribers.
// A record is a durable fact once Append returns.
type Log struct {
	mu      sync.RWMutex
	records []Record
	seq     uint64
	store   Store // optional
	subs    map[uint64]chan Record
	nextSub uint64
	clock   util.Clock
	logger  *zap.SugaredLogger
}

// NewLog creates an audit log. store may be nil for a purely in-memory
// log (tests); clock and logger may be nil.
func NewLog(store Store, clock util.Clock, logger *zap.SugaredLogger) *Log {
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Log{
		store:  store,
		subs:   make(map[uint64]chan Record),
		clock:  clock,
		logger: logger,
	}
}

// Restore seeds the log with previously persisted records, in order.
// Called once at startup before any Append.
func (l *Log) Restore(records []Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, records...)
	if n := len(l.records); n > 0 {
		l.seq = l.records[n-1].Seq
	}
}

// Append stamps the record with the next sequence number and the
// current time, persists it, and notifies subscribers. The payload
// pointer matching r.Kind must already be set by the caller.
func (l *Log) Append(r Record) Record {
	l.mu.Lock()
	l.seq++
	r.Seq = l.seq
	if r.Time == 0 {
		r.Time = l.clock.Now().UnixMilli()
	}
	l.records = append(l.records, r)
	if l.store != nil {
		if err := l.store.Append(r); err != nil {
			l.logger.Errorw("event_store_append_failed", "seq", r.Seq, "kind", r.Kind, "err", err)
		}
	}
	for _, ch := range l.subs {
		select {
		case ch <- r:
		default:
			// Slow subscriber; it can catch up via Records.
		}
	}
	l.mu.Unlock()
	return r
}

// Len returns the number of records emitted so far.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Records returns up to limit records with Seq > after, oldest first.
// limit <= 0 means no limit.
func (l *Log) Records(after uint64, limit int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	// Seqs are dense from 1, so the first match is at index `after`.
	if after >= uint64(len(l.records)) {
		return nil
	}
	out := l.records[after:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	res := make([]Record, len(out))
	copy(res, out)
	return res
}

// Subscribe returns a channel receiving every record appended after
// the call, and a cancel func releasing the subscription. Records are
// dropped for subscribers that fall behind the buffer.
func (l *Log) Subscribe(buffer int) (<-chan Record, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Record, buffer)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		if _, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(ch)
		}
		l.mu.Unlock()
	}
	return ch, cancel
}
