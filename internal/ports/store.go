package ports

import (
	"context"
	"time"
)

// Partition names one of the store's record collections.
type Partition string

const (
	PartitionDownloads Partition = "downloads"
	PartitionUploads   Partition = "uploads"
	PartitionPlaylists Partition = "playlists"
	PartitionSettings  Partition = "settings"
)

// Partitions lists every partition the store must provide.
var Partitions = []Partition{
	PartitionDownloads,
	PartitionUploads,
	PartitionPlaylists,
	PartitionSettings,
}

// Valid reports whether p is a known partition.
func (p Partition) Valid() bool {
	for _, known := range Partitions {
		if p == known {
			return true
		}
	}
	return false
}

// Record is a single stored entry.
type Record struct {
	// Key is the primary key within the partition
	Key string

	// Value is the JSON-encoded entity or scalar
	Value []byte

	// Blob is the binary payload (audio bytes), nil for metadata-only partitions
	Blob []byte

	// SortAt is the secondary index: downloadedAt, uploadedAt or updatedAt.
	// Zero for settings.
	SortAt time.Time
}

// Store is the durable key/value store behind the library and settings.
//
// GetAll returns downloads and uploads ordered by their date index, playlists
// by updatedAt and settings by key. Delete is idempotent.
//
// Thread-safety: Implementations must be thread-safe and must open their
// backend at most once per process.
type Store interface {
	// Put upserts a record.
	Put(ctx context.Context, partition Partition, record Record) error

	// Get returns the record for key, or ok == false if absent.
	Get(ctx context.Context, partition Partition, key string) (rec Record, ok bool, err error)

	// GetAll returns every record of the partition in index order.
	GetAll(ctx context.Context, partition Partition) ([]Record, error)

	// Delete removes the record for key. Deleting an absent key is not an error.
	Delete(ctx context.Context, partition Partition, key string) error

	// Close releases the backend.
	Close() error
}
