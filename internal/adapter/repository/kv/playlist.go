// Package kv implements the repository ports on top of a ports.Store.
// Entities are stored as JSON values keyed by their ID.
package kv

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/musicflow/musicflow/internal/domain"
	"github.com/musicflow/musicflow/internal/ports"
)

// PlaylistRepository implements ports.PlaylistRepository.
// Playlists live in the playlists partition, indexed by UpdatedAt.
type PlaylistRepository struct {
	store ports.Store
}

// NewPlaylistRepository creates a new playlist repository.
func NewPlaylistRepository(store ports.Store) *PlaylistRepository {
	return &PlaylistRepository{store: store}
}

// Save persists a playlist, replacing any previous version.
func (r *PlaylistRepository) Save(ctx context.Context, playlist domain.Playlist) error {
	data, err := json.Marshal(playlist)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal playlist %s", playlist.ID)
	}
	return r.store.Put(ctx, ports.PartitionPlaylists, ports.Record{
		Key:    playlist.ID,
		Value:  data,
		SortAt: playlist.UpdatedAt,
	})
}

// Load retrieves a playlist by ID.
func (r *PlaylistRepository) Load(ctx context.Context, id string) (domain.Playlist, error) {
	rec, ok, err := r.store.Get(ctx, ports.PartitionPlaylists, id)
	if err != nil {
		return domain.Playlist{}, err
	}
	if !ok {
		return domain.Playlist{}, errors.Wrapf(domain.ErrNotFound, "playlist %s", id)
	}
	return decodePlaylist(rec)
}

// LoadAll retrieves all playlists ordered by UpdatedAt.
func (r *PlaylistRepository) LoadAll(ctx context.Context) ([]domain.Playlist, error) {
	records, err := r.store.GetAll(ctx, ports.PartitionPlaylists)
	if err != nil {
		return nil, err
	}

	playlists := make([]domain.Playlist, 0, len(records))
	for _, rec := range records {
		p, err := decodePlaylist(rec)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, p)
	}
	return playlists, nil
}

// Delete removes a playlist by ID.
func (r *PlaylistRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, ports.PartitionPlaylists, id)
}

func decodePlaylist(rec ports.Record) (domain.Playlist, error) {
	var p domain.Playlist
	if err := json.Unmarshal(rec.Value, &p); err != nil {
		return domain.Playlist{}, errors.Wrapf(err, "failed to unmarshal playlist %s", rec.Key)
	}
	if p.Tracks == nil {
		p.Tracks = []domain.Track{}
	}
	return p, nil
}

// Verify that PlaylistRepository implements the PlaylistRepository interface
var _ ports.PlaylistRepository = (*PlaylistRepository)(nil)
