package kv

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/musicflow/musicflow/internal/domain"
	"github.com/musicflow/musicflow/internal/ports"
)

// TrackRepository implements ports.TrackRepository over one partition
// (uploads or downloads). The track metadata is the JSON value, the audio
// payload is the record blob and StoredAt is the date index.
type TrackRepository struct {
	store     ports.Store
	partition ports.Partition
}

// NewUploadRepository creates a repository over the uploads partition.
func NewUploadRepository(store ports.Store) *TrackRepository {
	return &TrackRepository{store: store, partition: ports.PartitionUploads}
}

// NewDownloadRepository creates a repository over the downloads partition.
func NewDownloadRepository(store ports.Store) *TrackRepository {
	return &TrackRepository{store: store, partition: ports.PartitionDownloads}
}

// Save persists the track metadata and blob.
func (r *TrackRepository) Save(ctx context.Context, track domain.StoredTrack) error {
	data, err := json.Marshal(track.Track)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal track %s", track.Track.ID)
	}
	return r.store.Put(ctx, r.partition, ports.Record{
		Key:    track.Track.ID,
		Value:  data,
		Blob:   track.Blob,
		SortAt: track.StoredAt,
	})
}

// Load retrieves a stored track by ID.
func (r *TrackRepository) Load(ctx context.Context, id string) (domain.StoredTrack, error) {
	rec, ok, err := r.store.Get(ctx, r.partition, id)
	if err != nil {
		return domain.StoredTrack{}, err
	}
	if !ok {
		return domain.StoredTrack{}, errors.Wrapf(domain.ErrNotFound, "%s track %s", r.partition, id)
	}
	return decodeStoredTrack(rec)
}

// LoadAll retrieves all stored tracks ordered by storage date.
func (r *TrackRepository) LoadAll(ctx context.Context) ([]domain.StoredTrack, error) {
	records, err := r.store.GetAll(ctx, r.partition)
	if err != nil {
		return nil, err
	}

	tracks := make([]domain.StoredTrack, 0, len(records))
	for _, rec := range records {
		st, err := decodeStoredTrack(rec)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, st)
	}
	return tracks, nil
}

// Delete removes a stored track by ID.
func (r *TrackRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, r.partition, id)
}

func decodeStoredTrack(rec ports.Record) (domain.StoredTrack, error) {
	var t domain.Track
	if err := json.Unmarshal(rec.Value, &t); err != nil {
		return domain.StoredTrack{}, errors.Wrapf(err, "failed to unmarshal track %s", rec.Key)
	}
	return domain.StoredTrack{Track: t, Blob: rec.Blob, StoredAt: rec.SortAt}, nil
}

// Verify that TrackRepository implements the TrackRepository interface
var _ ports.TrackRepository = (*TrackRepository)(nil)
