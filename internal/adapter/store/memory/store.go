// Package memory provides an in-process implementation of ports.Store.
// Nothing survives the process; it backs tests and the --memory mode of the CLI.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/musicflow/musicflow/internal/domain"
	"github.com/musicflow/musicflow/internal/ports"
)

// Store implements ports.Store with maps.
//
// Thread-safe: All operations protected by sync.RWMutex.
type Store struct {
	mu         sync.RWMutex
	partitions map[ports.Partition]map[string]ports.Record
	closed     bool
}

// NewStore creates an empty store with every partition present.
func NewStore() *Store {
	partitions := make(map[ports.Partition]map[string]ports.Record, len(ports.Partitions))
	for _, p := range ports.Partitions {
		partitions[p] = make(map[string]ports.Record)
	}
	return &Store{partitions: partitions}
}

// Put upserts a record. Value and Blob are copied.
func (s *Store) Put(ctx context.Context, partition ports.Partition, record ports.Record) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("put", string(partition), record.Key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.partition("put", partition, record.Key)
	if err != nil {
		return err
	}
	records[record.Key] = cloneRecord(record)
	return nil
}

// Get returns the record for key.
func (s *Store) Get(ctx context.Context, partition ports.Partition, key string) (ports.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return ports.Record{}, false, domain.NewStorageError("get", string(partition), key, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.partition("get", partition, key)
	if err != nil {
		return ports.Record{}, false, err
	}
	rec, ok := records[key]
	if !ok {
		return ports.Record{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

// GetAll returns all records of the partition in index order.
func (s *Store) GetAll(ctx context.Context, partition ports.Partition) ([]ports.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("get_all", string(partition), "", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.partition("get_all", partition, "")
	if err != nil {
		return nil, err
	}

	out := make([]ports.Record, 0, len(records))
	for _, rec := range records {
		out = append(out, cloneRecord(rec))
	}
	slices.SortFunc(out, func(a, b ports.Record) int {
		if partition != ports.PartitionSettings {
			if c := a.SortAt.Compare(b.SortAt); c != 0 {
				return c
			}
		}
		return strings.Compare(a.Key, b.Key)
	})
	return out, nil
}

// Delete removes the record for key. Absent keys are ignored.
func (s *Store) Delete(ctx context.Context, partition ports.Partition, key string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("delete", string(partition), key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.partition("delete", partition, key)
	if err != nil {
		return err
	}
	delete(records, key)
	return nil
}

// Close marks the store closed. Subsequent calls fail with domain.ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// partition must be called with s.mu held.
func (s *Store) partition(op string, partition ports.Partition, key string) (map[string]ports.Record, error) {
	if s.closed {
		return nil, domain.NewStorageError(op, string(partition), key, domain.ErrStoreClosed)
	}
	records, ok := s.partitions[partition]
	if !ok {
		return nil, domain.NewStorageError(op, string(partition), key, domain.ErrUnknownPartition)
	}
	return records, nil
}

func cloneRecord(r ports.Record) ports.Record {
	r.Value = slices.Clone(r.Value)
	r.Blob = slices.Clone(r.Blob)
	return r
}

// Verify that Store implements the Store interface
var _ ports.Store = (*Store)(nil)
