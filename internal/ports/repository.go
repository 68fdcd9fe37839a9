// Package ports define repository interfaces for data persistence abstraction.
// These interfaces enable the repository pattern and allow swapping persistence mechanisms.
package ports

import (
	"context"

	"github.com/musicflow/musicflow/internal/domain"
)

// PlaylistRepository handles the persistence of playlists.
//
// Thread-safety: Implementations must be thread-safe.
type PlaylistRepository interface {
	// Save persists a playlist.
	// If a playlist with the same ID exists, it is replaced.
	Save(ctx context.Context, playlist domain.Playlist) error

	// Load retrieves a playlist by ID.
	// If the playlist doesn't exist, returns domain.ErrNotFound.
	Load(ctx context.Context, id string) (domain.Playlist, error)

	// LoadAll retrieves all saved playlists ordered by UpdatedAt.
	//
	// Returns an empty slice if none exist.
	LoadAll(ctx context.Context) ([]domain.Playlist, error)

	// Delete removes a playlist by ID.
	// If the playlist doesn't exist, this is a no-op (no error).
	Delete(ctx context.Context, id string) error
}

// TrackRepository handles the persistence of tracks together with their audio
// payload. One instance serves uploads, another downloads.
//
// Thread-safety: Implementations must be thread-safe.
type TrackRepository interface {
	// Save persists the track metadata and blob.
	Save(ctx context.Context, track domain.StoredTrack) error

	// Load retrieves a stored track by ID.
	// If the track doesn't exist, returns domain.ErrNotFound.
	Load(ctx context.Context, id string) (domain.StoredTrack, error)

	// LoadAll retrieves all stored tracks ordered by their storage date.
	LoadAll(ctx context.Context) ([]domain.StoredTrack, error)

	// Delete removes a stored track by ID. Deleting an absent track is a no-op.
	Delete(ctx context.Context, id string) error
}

// SettingsRepository handles the persistence of scalar settings.
//
// Thread-safety: Implementations must be thread-safe.
type SettingsRepository interface {
	// SaveVolume persists the volume level.
	SaveVolume(ctx context.Context, volume float64) error

	// LoadVolume retrieves the saved volume level.
	// ok is false when no volume was saved.
	LoadVolume(ctx context.Context) (volume float64, ok bool, err error)

	// SaveTheme persists the theme preference.
	SaveTheme(ctx context.Context, theme domain.Theme) error

	// SaveQuality persists the audio quality preference.
	SaveQuality(ctx context.Context, quality domain.AudioQuality) error

	// LoadSettings assembles the settings blob from the stored keys, filling
	// unset keys with defaults. Returns nil when no key is stored at all.
	LoadSettings(ctx context.Context) (*domain.Settings, error)
}
