package ports

import (
	"context"

	"github.com/musicflow/musicflow/internal/domain"
)

// Catalog is the read-only remote music catalog.
//
// Every query returns converted domain entities or a *domain.NetworkError.
// By-id lookups with no result return domain.ErrNotFound.
type Catalog interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]domain.Track, error)
	TracksByGenre(ctx context.Context, genre string, limit int) ([]domain.Track, error)
	FeaturedTracks(ctx context.Context, limit int) ([]domain.Track, error)
	NewReleases(ctx context.Context, limit int) ([]domain.Track, error)
	Track(ctx context.Context, id string) (domain.Track, error)
	Album(ctx context.Context, id string) (domain.Album, error)
	AlbumTracks(ctx context.Context, albumID string) ([]domain.Track, error)
	Artist(ctx context.Context, id string) (domain.Artist, error)
	ArtistTracks(ctx context.Context, artistID string, limit int) ([]domain.Track, error)
	SearchAlbums(ctx context.Context, query string, limit int) ([]domain.Album, error)
	SearchArtists(ctx context.Context, query string, limit int) ([]domain.Artist, error)
}
