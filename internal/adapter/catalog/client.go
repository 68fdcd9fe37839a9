// Package catalog implements ports.Catalog against the Jamendo v3.0 API.
// Responses are cached per request URL for a fixed TTL.
package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/musicflow/musicflow/internal/domain"
	"github.com/musicflow/musicflow/internal/ports"
)

const (
	// DefaultBaseURL is the Jamendo v3.0 API root.
	DefaultBaseURL = "https://api.jamendo.com/v3.0"

	// DefaultCacheTTL is how long a response is served from cache.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultLimit is the page size used when a query passes limit <= 0.
	DefaultLimit = 20

	maxBodyBytes = 8 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL      string
	ClientID     string
	CacheTTL     time.Duration
	DefaultLimit int
	HTTPClient   *http.Client
}

// Client is a caching catalog client.
//
// Thread-safety: Client is safe for concurrent use. Concurrent identical
// requests share one round trip.
type Client struct {
	baseURL      string
	clientID     string
	defaultLimit int
	http         *http.Client
	logger       zerolog.Logger

	// cache has no janitor: expired entries are dropped on the next lookup of their key.
	cache  *cache.Cache
	flight singleflight.Group
}

// NewClient creates a catalog client. Zero config fields take their defaults.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		defaultLimit: cfg.DefaultLimit,
		http:         cfg.HTTPClient,
		logger:       logger.With().Str("component", "catalog").Logger(),
		cache:        cache.New(cfg.CacheTTL, 0),
	}
}

// SearchTracks returns tracks matching a free-text query.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]domain.Track, error) {
	return c.tracks(ctx, url.Values{
		"limit":  {c.limit(limit)},
		"search": {query},
	})
}

// TracksByGenre returns tracks tagged with genre.
func (c *Client) TracksByGenre(ctx context.Context, genre string, limit int) ([]domain.Track, error) {
	return c.tracks(ctx, url.Values{
		"limit": {c.limit(limit)},
		"tags":  {genre},
	})
}

// FeaturedTracks returns the most popular tracks.
func (c *Client) FeaturedTracks(ctx context.Context, limit int) ([]domain.Track, error) {
	return c.tracks(ctx, url.Values{
		"limit": {c.limit(limit)},
		"order": {"popularity_total"},
	})
}

// NewReleases returns the most recently released tracks.
func (c *Client) NewReleases(ctx context.Context, limit int) ([]domain.Track, error) {
	return c.tracks(ctx, url.Values{
		"limit": {c.limit(limit)},
		"order": {"releasedate_desc"},
	})
}

// Track returns a single track by id.
func (c *Client) Track(ctx context.Context, id string) (domain.Track, error) {
	tracks, err := c.tracks(ctx, url.Values{"id": {id}})
	if err != nil {
		return domain.Track{}, err
	}
	if len(tracks) == 0 {
		return domain.Track{}, errors.Wrapf(domain.ErrNotFound, "track %s", id)
	}
	return tracks[0], nil
}

// Album returns album details by id.
func (c *Client) Album(ctx context.Context, id string) (domain.Album, error) {
	albums, err := c.albums(ctx, url.Values{"id": {id}})
	if err != nil {
		return domain.Album{}, err
	}
	if len(albums) == 0 {
		return domain.Album{}, errors.Wrapf(domain.ErrNotFound, "album %s", id)
	}
	return albums[0], nil
}

// AlbumTracks returns the tracks of an album.
func (c *Client) AlbumTracks(ctx context.Context, albumID string) ([]domain.Track, error) {
	return c.tracks(ctx, url.Values{"album_id": {albumID}})
}

// Artist returns artist details by id.
func (c *Client) Artist(ctx context.Context, id string) (domain.Artist, error) {
	artists, err := c.artists(ctx, url.Values{"id": {id}})
	if err != nil {
		return domain.Artist{}, err
	}
	if len(artists) == 0 {
		return domain.Artist{}, errors.Wrapf(domain.ErrNotFound, "artist %s", id)
	}
	return artists[0], nil
}

// ArtistTracks returns the tracks of an artist.
func (c *Client) ArtistTracks(ctx context.Context, artistID string, limit int) ([]domain.Track, error) {
	return c.tracks(ctx, url.Values{
		"artist_id": {artistID},
		"limit":     {c.limit(limit)},
	})
}

// SearchAlbums returns albums matching a free-text query.
func (c *Client) SearchAlbums(ctx context.Context, query string, limit int) ([]domain.Album, error) {
	return c.albums(ctx, url.Values{
		"limit":  {c.limit(limit)},
		"search": {query},
	})
}

// SearchArtists returns artists matching a free-text query.
func (c *Client) SearchArtists(ctx context.Context, query string, limit int) ([]domain.Artist, error) {
	return c.artists(ctx, url.Values{
		"limit":  {c.limit(limit)},
		"search": {query},
	})
}

func (c *Client) tracks(ctx context.Context, params url.Values) ([]domain.Track, error) {
	params.Set("include", "musicinfo")
	var resp response[wireTrack]
	if err := c.get(ctx, "tracks", params, &resp); err != nil {
		return nil, err
	}
	tracks := make([]domain.Track, len(resp.Results))
	for i, w := range resp.Results {
		tracks[i] = w.toTrack()
	}
	return tracks, nil
}

func (c *Client) albums(ctx context.Context, params url.Values) ([]domain.Album, error) {
	var resp response[wireAlbum]
	if err := c.get(ctx, "albums", params, &resp); err != nil {
		return nil, err
	}
	albums := make([]domain.Album, len(resp.Results))
	for i, w := range resp.Results {
		albums[i] = w.toAlbum()
	}
	return albums, nil
}

func (c *Client) artists(ctx context.Context, params url.Values) ([]domain.Artist, error) {
	var resp response[wireArtist]
	if err := c.get(ctx, "artists", params, &resp); err != nil {
		return nil, err
	}
	artists := make([]domain.Artist, len(resp.Results))
	for i, w := range resp.Results {
		artists[i] = w.toArtist()
	}
	return artists, nil
}

func (c *Client) limit(limit int) string {
	if limit <= 0 {
		limit = c.defaultLimit
	}
	return strconv.Itoa(limit)
}

// get fetches resource with params (served from cache when fresh) and decodes it into out.
func (c *Client) get(ctx context.Context, resource string, params url.Values, out any) error {
	params.Set("client_id", c.clientID)
	params.Set("format", "json")
	requestURL := c.baseURL + "/" + resource + "/?" + params.Encode()

	body, err := c.cachedFetch(ctx, requestURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewNetworkError(requestURL, 0, errors.Wrap(err, "failed to decode response"))
	}
	return nil
}

func (c *Client) cachedFetch(ctx context.Context, requestURL string) ([]byte, error) {
	if cached, ok := c.cache.Get(requestURL); ok {
		c.logger.Debug().Str("resource", redact(requestURL)).Msg("catalog cache hit")
		return cached.([]byte), nil
	}
	// Drop the expired entry, if any, before refetching.
	c.cache.Delete(requestURL)

	ch := c.flight.DoChan(requestURL, func() (any, error) {
		body, err := c.fetch(context.WithoutCancel(ctx), requestURL)
		if err != nil {
			return nil, err
		}
		c.cache.SetDefault(requestURL, body)
		return body, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, domain.NewNetworkError(requestURL, 0, ctx.Err())
	}
}

func (c *Client) fetch(ctx context.Context, requestURL string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, domain.NewNetworkError(requestURL, 0, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError(requestURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, domain.NewNetworkError(requestURL, resp.StatusCode, errors.Newf("API error: %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewNetworkError(requestURL, resp.StatusCode, err)
	}

	c.logger.Debug().
		Str("resource", redact(requestURL)).
		Dur("elapsed", time.Since(start)).
		Int("bytes", len(body)).
		Msg("catalog request")
	return body, nil
}

// redact strips the client id from a request URL for logging.
func redact(requestURL string) string {
	u, err := url.Parse(requestURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Del("client_id")
	u.RawQuery = q.Encode()
	return u.String()
}

// Verify that Client implements the Catalog interface
var _ ports.Catalog = (*Client)(nil)
