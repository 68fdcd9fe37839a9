package service

import (
	"context"
	"io"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/musicflow/musicflow/internal/domain"
	"github.com/musicflow/musicflow/internal/ports"
)

const (
	// DefaultMaxUploadBytes is the largest accepted upload (100 MiB).
	DefaultMaxUploadBytes = 100 << 20

	// UnknownArtist is used for uploads without an artist tag.
	UnknownArtist = "Unknown Artist"
)

var (
	allowedUploadTypes = map[string]bool{
		"audio/mpeg": true,
		"audio/mp3":  true,
		"audio/wav":  true,
		"audio/ogg":  true,
		"audio/aac":  true,
		"audio/m4a":  true,
	}
	uploadExtPattern = regexp.MustCompile(`(?i)\.(mp3|wav|ogg|aac|m4a)$`)
)

// LibraryConfig tunes the library service. Zero fields take their defaults.
type LibraryConfig struct {
	MaxUploadBytes int64
}

// DownloadProgressFunc receives download progress updates.
type DownloadProgressFunc func(progress domain.DownloadProgress)

// LibraryService is the in-memory mirror of playlists, uploads and downloads.
// Every mutation is persisted before the mirror changes, and mu is held
// across both, so the mirror matches the store when a call returns.
// Unknown ids are silent no-ops.
type LibraryService struct {
	// Dependencies (injected)
	logger    zerolog.Logger
	playlists ports.PlaylistRepository
	uploads   ports.TrackRepository
	downloads ports.TrackRepository
	probe     ports.MediaProbe
	fetcher   ports.Fetcher
	bus       ports.EventBus
	blobs     *BlobRegistry

	maxUploadBytes int64
	now            func() time.Time
	newID          func() string

	// State
	mu               sync.RWMutex
	playlistList     []domain.Playlist
	uploadedTracks   []domain.Track
	downloadedTracks []domain.Track
}

// NewLibraryService creates a new library service. Call RefreshLibrary to
// load the persisted collections.
func NewLibraryService(
	logger zerolog.Logger,
	playlists ports.PlaylistRepository,
	uploads ports.TrackRepository,
	downloads ports.TrackRepository,
	probe ports.MediaProbe,
	fetcher ports.Fetcher,
	bus ports.EventBus,
	blobs *BlobRegistry,
	cfg LibraryConfig,
) *LibraryService {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if blobs == nil {
		blobs = NewBlobRegistry()
	}

	logger.Debug().Int64("max_upload_bytes", cfg.MaxUploadBytes).Msg("library service initialized")

	return &LibraryService{
		logger:         logger,
		playlists:      playlists,
		uploads:        uploads,
		downloads:      downloads,
		probe:          probe,
		fetcher:        fetcher,
		bus:            bus,
		blobs:          blobs,
		maxUploadBytes: cfg.MaxUploadBytes,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// Blobs returns the session blob registry used for uploaded tracks.
func (s *LibraryService) Blobs() *BlobRegistry {
	return s.blobs
}

// RefreshLibrary reloads all three collections from the store concurrently.
// Uploaded tracks get fresh session locators.
func (s *LibraryService) RefreshLibrary(ctx context.Context) error {
	var (
		playlists []domain.Playlist
		uploads   []domain.StoredTrack
		downloads []domain.StoredTrack
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		playlists, err = s.playlists.LoadAll(gctx)
		return errors.Wrap(err, "failed to load playlists")
	})
	g.Go(func() error {
		var err error
		uploads, err = s.uploads.LoadAll(gctx)
		return errors.Wrap(err, "failed to load uploaded tracks")
	})
	g.Go(func() error {
		var err error
		downloads, err = s.downloads.LoadAll(gctx)
		return errors.Wrap(err, "failed to load downloaded tracks")
	})
	if err := g.Wait(); err != nil {
		s.logger.Error().Err(err).Msg("library refresh failed")
		return err
	}

	s.mu.Lock()
	for _, t := range s.uploadedTracks {
		s.blobs.Release(t.ID)
	}
	s.playlistList = playlists
	s.uploadedTracks = make([]domain.Track, 0, len(uploads))
	for _, st := range uploads {
		track := st.Track
		track.AudioURL = s.blobs.Register(track.ID, st.Blob)
		s.uploadedTracks = append(s.uploadedTracks, track)
	}
	s.downloadedTracks = make([]domain.Track, 0, len(downloads))
	for _, st := range downloads {
		s.downloadedTracks = append(s.downloadedTracks, st.Track)
	}
	s.mu.Unlock()

	s.logger.Info().
		Int("playlists", len(playlists)).
		Int("uploads", len(uploads)).
		Int("downloads", len(downloads)).
		Msg("library loaded")

	s.bus.Publish(domain.NewLibraryChangedEvent(domain.CollectionPlaylists, ""))
	s.bus.Publish(domain.NewLibraryChangedEvent(domain.CollectionUploads, ""))
	s.bus.Publish(domain.NewLibraryChangedEvent(domain.CollectionDownloads, ""))
	return nil
}

// Playlists returns copies of all playlists.
func (s *LibraryService) Playlists() []domain.Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Playlist, len(s.playlistList))
	for i, p := range s.playlistList {
		out[i] = p.Clone()
	}
	return out
}

// Playlist returns a copy of the playlist with the given id.
func (s *LibraryService) Playlist(id string) (domain.Playlist, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.playlistIndex(id); i >= 0 {
		return s.playlistList[i].Clone(), true
	}
	return domain.Playlist{}, false
}

// UploadedTracks returns the uploaded tracks.
func (s *LibraryService) UploadedTracks() []domain.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTracks(s.uploadedTracks)
}

// DownloadedTracks returns the downloaded tracks.
func (s *LibraryService) DownloadedTracks() []domain.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTracks(s.downloadedTracks)
}

// IsTrackDownloaded reports whether a track is in the downloads collection.
func (s *LibraryService) IsTrackDownloaded(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return trackIndex(s.downloadedTracks, id) >= 0
}

// CreatePlaylist creates, persists and returns a new empty playlist.
func (s *LibraryService) CreatePlaylist(ctx context.Context, name, description string) (domain.Playlist, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Playlist{}, domain.NewValidationError("name", name, "playlist name is required", nil)
	}

	now := s.now()
	playlist := domain.Playlist{
		ID:          s.newID(),
		Name:        name,
		Description: description,
		Tracks:      []domain.Track{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	if err := s.playlists.Save(ctx, playlist); err != nil {
		s.mu.Unlock()
		s.logger.Error().Err(err).Str("name", name).Msg("failed to create playlist")
		return domain.Playlist{}, err
	}
	s.playlistList = append(s.playlistList, playlist)
	s.mu.Unlock()

	s.logger.Info().Str("playlist_id", playlist.ID).Str("name", name).Msg("playlist created")
	s.bus.Publish(domain.NewLibraryChangedEvent(domain.CollectionPlaylists, playlist.ID))
	return playlist.Clone(), nil
}

// UpdatePlaylist merges the non-nil fields of update into the playlist.
func (s *LibraryService) UpdatePlaylist(ctx context.Context, id string, update domain.PlaylistUpdate) error {
	return s.mutatePlaylist(ctx, id, func(p *domain.Playlist) bool {
		if update.Name != nil {
			p.Name = *update.Name
		}
		if update.Description != nil {
			p.Description = *update.Description
		}
		if update.CoverImage != nil {
			p.CoverImage = *update.CoverImage
		}
		if update.Tracks != nil {
			p.Tracks = uniqueTracks(update.Tracks)
		}
		return true
	})
}

// DeletePlaylist removes a playlist. Deleting an unknown id succeeds.
func (s *LibraryService) DeletePlaylist(ctx context.Context, id string) error {
	s.mu.Lock()
	if err := s.playlists.Delete(ctx, id); err != nil {
		s.mu.Unlock()
		s.logger.Error().Err(err).Str("playlist_id", id).Msg("failed to delete playlist")
		return err
	}
	s.playlistList = slices.DeleteFunc(s.playlistList, func(p domain.Playlist) bool { return p.ID == id })
	s.mu.Unlock()

	s.bus.Publish(domain.NewLibraryChangedEvent(domain.CollectionPlaylists, id))
	return nil
}

// AddTrackToPlaylist appends a copy of track unless its id is already present.
func (s *LibraryService) AddTrackToPlaylist(ctx context.Context, id string, track domain.Track) error {
	return s.mutatePlaylist(ctx, id, func(p *domain.Playlist) bool {
		if p.HasTrack(track.ID) {
			return false
		}
		p.Tracks = append(p.Tracks, track)
		return true
	})
}

// RemoveTrackFromPlaylist removes every entry with trackID. The playlist is
// saved even when nothing matched.
func (s *LibraryService) RemoveTrackFromPlaylist(ctx context.Context, id, trackID string) error {
	return s.mutatePlaylist(ctx, id, func(p *domain.Playlist) bool {
		p.Tracks = slices.DeleteFunc(p.Tracks, func(t domain.Track) bool { return t.ID == trackID })
		return true
	})
}

// ReorderPlaylistTracks replaces the playlist's tracks with tracks.
// Repeated ids keep their first position.
func (s *LibraryService) ReorderPlaylistTracks(ctx context.Context, id string, tracks []domain.Track) error {
	return s.mutatePlaylist(ctx, id, func(p *domain.Playlist) bool {
		p.Tracks = uniqueTracks(tracks)
		return true
	})
}

// uniqueTracks copies tracks, dropping any whose id was already seen.
func uniqueTracks(tracks []domain.Track) []domain.Track {
	seen := make(map[string]struct{}, len(tracks))
	out := make([]domain.Track, 0, len(tracks))
	for _, t := range tracks {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}

// mutatePlaylist applies fn to a copy of the playlist and, if fn reports a
// change, bumps UpdatedAt, persists and replaces the in-memory entry.
func (s *LibraryService) mutatePlaylist(ctx context.Context, id string, fn func(p *domain.Playlist) bool) error {
	s.mu.Lock()
	i := s.playlistIndex(id)
	if i < 0 {
		s.mu.Unlock()
		s.logger.Debug().Str("playlist_id", id).Msg("playlist not found, ignoring")
		return nil
	}

	playlist := s.playlistList[i].Clone()
	if !fn(&playlist) {
		s.mu.Unlock()
		return nil
	}
	if playlist.Tracks == nil {
		playlist.Tracks = []domain.Track{}
	}
	playlist.UpdatedAt = s.now()

	if err := s.playlists.Save(ctx, playlist); err != nil {
		s.mu.Unlock()
		s.logger.Error().Err(err).Str("playlist_id", id).Msg("failed to save playlist")
		return err
	}
	s.playlistList[i] = playlist
	s.mu.Unlock()

	s.bus.Publish(domain.NewLibraryChangedEvent(domain.CollectionPlaylists, id))
	return nil
}

// UploadTrack validates, probes and stores a user audio file.
// Type and size are checked before the file is opened.
func (s *LibraryService) UploadTrack(ctx context.Context, file ports.FileHandle) (domain.Track, error) {
	if err := s.validateUpload(file); err != nil {
		s.logger.Warn().Err(err).Str("file", file.Name()).Msg("upload rejected")
		return domain.Track{}, err
	}

	data, err := s.readUpload(file)
	if err != nil {
		return domain.Track{}, err
	}

	info, err := s.probe.Probe(ctx, file.Name(), file.MIMEType(), data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Track{}, ctxErr
		}
		if !errors.Is(err, domain.ErrUnsupportedFormat) {
			return domain.Track{}, domain.NewValidationError("file", file.Name(), "failed to load audio file", err)
		}
	}

	now := s.now()
	track := domain.Track{
		ID:         s.newID(),
		Title:      info.Title,
		Artist:     info.Artist,
		Album:      info.Album,
		Duration:   info.Duration,
		IsLocal:    true,
		UploadedAt: &now,
	}
	if track.Title == "" {
		track.Title = strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
	}
	if track.Artist == "" {
		track.Artist = UnknownArtist
	}

	s.mu.Lock()
	track.AudioURL = s.blobs.Register(track.ID, data)
	if err := s.uploads.Save(ctx, domain.StoredTrack{Track: track, Blob: data, StoredAt: now}); err != nil {
		s.blobs.Release(track.ID)
		s.mu.Unlock()
		s.logger.Error().Err(err).Str("file", file.Name()).Msg("failed to save upload")
		return domain.Track{}, err
	}
	s.uploadedTracks = append(s.uploadedTracks, track)
	s.mu.Unlock()

	s.logger.Info().
		Str("track_id", track.ID).
		Str("title", track.Title).
		Float64("duration", track.Duration).
		Msg("track uploaded")
	s.bus.Publish(domain.NewLibraryChangedEvent(domain.CollectionUploads, track.ID))
	return track, nil
}

func (s *LibraryService) validateUpload(file ports.FileHandle) error {
	if !allowedUploadTypes[strings.ToLower(file.MIMEType())] && !uploadExtPattern.MatchString(file.Name()) {
		return domain.NewValidationError("type", file.MIMEType(),
			"unsupported file type, use MP3, WAV, OGG, AAC or M4A", domain.ErrUnsupportedFormat)
	}
	if file.Size() > s.maxUploadBytes {
		return domain.NewValidationError("size", file.Size(),
			"file too large, maximum is "+domain.FormatFileSize(s.maxUploadBytes), domain.ErrFileTooLarge)
	}
	return nil
}

// readUpload reads the whole file, enforcing the size limit on the actual bytes.
func (s *LibraryService) readUpload(file ports.FileHandle) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", file.Name())
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, s.maxUploadBytes+1))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", file.Name())
	}
	if int64(len(data)) > s.maxUploadBytes {
		return nil, domain.NewValidationError("size", len(data),
			"file too large, maximum is "+domain.FormatFileSize(s.maxUploadBytes), domain.ErrFileTooLarge)
	}
	return data, nil
}

// GetUploadedTrack returns an uploaded track with its payload.
func (s *LibraryService) GetUploadedTrack(ctx context.Context, id string) (domain.StoredTrack, error) {
	st, err := s.uploads.Load(ctx, id)
	if err != nil {
		return domain.StoredTrack{}, err
	}
	s.mu.RLock()
	if i := trackIndex(s.uploadedTracks, id); i >= 0 {
		st.Track.AudioURL = s.uploadedTracks[i].AudioURL
	}
	s.mu.RUnlock()
	return st, nil
}

// DeleteUploadedTrack removes an upload and releases its locator. Idempotent.
func (s *LibraryService) DeleteUploadedTrack(ctx context.Context, id string) error {
	s.mu.Lock()
	if err := s.uploads.Delete(ctx, id); err != nil {
		s.mu.Unlock()
		s.logger.Error().Err(err).Str("track_id", id).Msg("failed to delete upload")
		return err
	}
	s.uploadedTracks = slices.DeleteFunc(s.uploadedTracks, func(t domain.Track) bool { return t.ID == id })
	s.blobs.Release(id)
	s.mu.Unlock()

	s.bus.Publish(domain.NewLibraryChangedEvent(domain.CollectionUploads, id))
	return nil
}

// DownloadTrack fetches the track's audio and stores it for offline playback.
// onProgress (may be nil) receives percentages while the size is known, and
// the final status. Nothing is stored unless the whole payload arrived.
func (s *LibraryService) DownloadTrack(ctx context.Context, track domain.Track, onProgress DownloadProgressFunc) (domain.Track, error) {
	log := s.logger.With().Str("track_id", track.ID).Logger()

	notify := func(status domain.DownloadStatus, pct float64) {
		p := domain.DownloadProgress{TrackID: track.ID, Progress: pct, Status: status}
		if onProgress != nil {
			onProgress(p)
		}
		s.bus.Publish(domain.NewDownloadProgressEvent(p))
	}
	fail := func(err error) (domain.Track, error) {
		notify(domain.DownloadFailed, 0)
		log.Error().Err(err).Str("url", track.AudioURL).Msg("download failed")
		return domain.Track{}, domain.NewDownloadError(track.ID, track.AudioURL, err)
	}

	if track.AudioURL == "" || IsBlobLocator(track.AudioURL) {
		return fail(errors.New("track has no remote audio source"))
	}

	notify(domain.DownloadPending, 0)
	data, err := s.fetcher.Fetch(ctx, track.AudioURL, func(received, total int64) {
		if total > 0 {
			notify(domain.DownloadDownloading, min(100, float64(received)*100/float64(total)))
		}
	})
	if err != nil {
		return fail(err)
	}

	now := s.now()
	downloaded := track
	downloaded.IsDownloaded = true
	downloaded.DownloadedAt = &now

	s.mu.Lock()
	if err := s.downloads.Save(ctx, domain.StoredTrack{Track: downloaded, Blob: data, StoredAt: now}); err != nil {
		s.mu.Unlock()
		return fail(err)
	}
	if i := trackIndex(s.downloadedTracks, downloaded.ID); i >= 0 {
		s.downloadedTracks[i] = downloaded
	} else {
		s.downloadedTracks = append(s.downloadedTracks, downloaded)
	}
	s.mu.Unlock()

	notify(domain.DownloadCompleted, 100)
	log.Info().Int("bytes", len(data)).Msg("track downloaded")
	s.bus.Publish(domain.NewLibraryChangedEvent(domain.CollectionDownloads, downloaded.ID))
	return downloaded, nil
}

// GetDownloadedTrack returns a downloaded track with its payload.
func (s *LibraryService) GetDownloadedTrack(ctx context.Context, id string) (domain.StoredTrack, error) {
	return s.downloads.Load(ctx, id)
}

// DeleteDownloadedTrack removes a download. Idempotent.
func (s *LibraryService) DeleteDownloadedTrack(ctx context.Context, id string) error {
	s.mu.Lock()
	if err := s.downloads.Delete(ctx, id); err != nil {
		s.mu.Unlock()
		s.logger.Error().Err(err).Str("track_id", id).Msg("failed to delete download")
		return err
	}
	s.downloadedTracks = slices.DeleteFunc(s.downloadedTracks, func(t domain.Track) bool { return t.ID == id })
	s.mu.Unlock()

	s.bus.Publish(domain.NewLibraryChangedEvent(domain.CollectionDownloads, id))
	return nil
}

// playlistIndex must be called with mu held.
func (s *LibraryService) playlistIndex(id string) int {
	return slices.IndexFunc(s.playlistList, func(p domain.Playlist) bool { return p.ID == id })
}

func trackIndex(tracks []domain.Track, id string) int {
	return slices.IndexFunc(tracks, func(t domain.Track) bool { return t.ID == id })
}
