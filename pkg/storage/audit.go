package storage

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/exchangecity/exchanged/pkg/events"
)

// AuditFile mirrors the event stream to a newline-JSON file, one
// record per line. Meant as a human-greppable companion to the pebble
// store, not as the recovery source.
type AuditFile struct {
	mu sync.Mutex
	f  *os.File
}

func NewAuditFile(path string) (*AuditFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &AuditFile{f: f}, nil
}

func (a *AuditFile) Append(r events.Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.f.Write(line); err != nil {
		return err
	}
	_, err = a.f.Write([]byte{'\n'})
	return err
}

func (a *AuditFile) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.f.Close()
}

var _ events.Store = (*AuditFile)(nil)

// TeeStore writes each record to every underlying store, returning
// the first error.
type TeeStore []events.Store

func (t TeeStore) Append(r events.Record) error {
	var first error
	for _, s := range t {
		if err := s.Append(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
