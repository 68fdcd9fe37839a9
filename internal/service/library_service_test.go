package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicflow/musicflow/internal/adapter/eventbus"
	"github.com/musicflow/musicflow/internal/adapter/media"
	"github.com/musicflow/musicflow/internal/adapter/repository/kv"
	"github.com/musicflow/musicflow/internal/adapter/store/memory"
	"github.com/musicflow/musicflow/internal/domain"
	"github.com/musicflow/musicflow/internal/logger"
	"github.com/musicflow/musicflow/internal/ports"
	"github.com/musicflow/musicflow/internal/testutil"
)

// fakeFetcher serves a fixed payload, reporting progress in four chunks.
type fakeFetcher struct {
	mu        sync.Mutex
	data      []byte
	err       error
	sizeKnown bool
	urls      []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, onProgress ports.ProgressFunc) ([]byte, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	data, err, known := f.data, f.err, f.sizeKnown
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	total := int64(-1)
	if known {
		total = int64(len(data))
	}
	if onProgress != nil {
		for i := 1; i <= 4; i++ {
			onProgress(int64(len(data)*i/4), total)
		}
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

type libraryFixture struct {
	library *LibraryService
	store   *memory.Store
	fetcher *fakeFetcher
	bus     *eventbus.SyncEventBus
	clock   time.Time
	clockMu sync.Mutex
}

func setupLibraryService(t *testing.T) *libraryFixture {
	t.Helper()
	log := logger.NewTestLogger()
	store := memory.NewStore()
	bus := eventbus.NewSyncEventBus(log)
	f := &libraryFixture{
		store:   store,
		fetcher: &fakeFetcher{data: []byte("remote-audio-payload"), sizeKnown: true},
		bus:     bus,
		clock:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.library = newLibraryOverStore(store, f.fetcher, bus)
	f.library.now = f.tick
	t.Cleanup(func() { _ = bus.Close() })
	return f
}

func newLibraryOverStore(store ports.Store, fetcher ports.Fetcher, bus ports.EventBus) *LibraryService {
	l := logger.NewTestLogger()
	return NewLibraryService(
		l,
		kv.NewPlaylistRepository(store),
		kv.NewUploadRepository(store),
		kv.NewDownloadRepository(store),
		media.NewProbe(l),
		fetcher,
		bus,
		nil,
		LibraryConfig{},
	)
}

// tick returns a strictly increasing time.
func (f *libraryFixture) tick() time.Time {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

// sizedFile reports a size without holding the bytes.
type sizedFile struct {
	*media.MemoryFile
	size int64
}

func (f sizedFile) Size() int64 { return f.size }

func TestLibraryService_CreatePlaylist(t *testing.T) {
	f := setupLibraryService(t)
	ctx := context.Background()

	p, err := f.library.CreatePlaylist(ctx, "Road Trip", "songs for the car")
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Road Trip", p.Name)
	assert.Empty(t, p.Tracks)
	assert.NotNil(t, p.Tracks)
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)

	stored, err := kv.NewPlaylistRepository(f.store).Load(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, stored.Name)

	got, ok := f.library.Playlist(p.ID)
	require.True(t, ok)
	assert.Equal(t, p.ID, got.ID)
}

func TestLibraryService_CreatePlaylistUniqueIDs(t *testing.T) {
	f := setupLibraryService(t)

	a, err := f.library.CreatePlaylist(context.Background(), "A", "")
	require.NoError(t, err)
	b, err := f.library.CreatePlaylist(context.Background(), "A", "")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, f.library.Playlists(), 2)
}

func TestLibraryService_CreatePlaylistRequiresName(t *testing.T) {
	f := setupLibraryService(t)

	_, err := f.library.CreatePlaylist(context.Background(), "  ", "")
	assert.True(t, domain.IsValidation(err))
	assert.Empty(t, f.library.Playlists())
}

func TestLibraryService_CreatePlaylistStorageFailure(t *testing.T) {
	f := setupLibraryService(t)
	require.NoError(t, f.store.Close())

	_, err := f.library.CreatePlaylist(context.Background(), "A", "")
	assert.True(t, domain.IsStorage(err))
	assert.Empty(t, f.library.Playlists(), "memory must not diverge from the store")
}

func TestLibraryService_UpdatePlaylist(t *testing.T) {
	f := setupLibraryService(t)
	ctx := context.Background()
	p, err := f.library.CreatePlaylist(ctx, "Old", "desc")
	require.NoError(t, err)

	name := "New"
	require.NoError(t, f.library.UpdatePlaylist(ctx, p.ID, domain.PlaylistUpdate{Name: &name}))

	got, _ := f.library.Playlist(p.ID)
	assert.Equal(t, "New", got.Name)
	assert.Equal(t, "desc", got.Description)
	assert.True(t, got.UpdatedAt.After(p.UpdatedAt))
	assert.Equal(t, p.CreatedAt, got.CreatedAt)

	stored, err := kv.NewPlaylistRepository(f.store).Load(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", stored.Name)
}

func TestLibraryService_UnknownPlaylistIsNoop(t *testing.T) {
	f := setupLibraryService(t)
	ctx := context.Background()
	name := "x"

	assert.NoError(t, f.library.UpdatePlaylist(ctx, "missing", domain.PlaylistUpdate{Name: &name}))
	assert.NoError(t, f.library.AddTrackToPlaylist(ctx, "missing", domain.Track{ID: "t"}))
	assert.NoError(t, f.library.RemoveTrackFromPlaylist(ctx, "missing", "t"))
	assert.NoError(t, f.library.ReorderPlaylistTracks(ctx, "missing", nil))
	assert.NoError(t, f.library.DeletePlaylist(ctx, "missing"))

	all, err := kv.NewPlaylistRepository(f.store).LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLibraryService_AddTrackDeduplicates(t *testing.T) {
	f := setupLibraryService(t)
	ctx := context.Background()
	p, err := f.library.CreatePlaylist(ctx, "P", "")
	require.NoError(t, err)
	track := domain.Track{ID: "t1", Title: "One"}

	require.NoError(t, f.library.AddTrackToPlaylist(ctx, p.ID, track))
	first, _ := f.library.Playlist(p.ID)
	require.NoError(t, f.library.AddTrackToPlaylist(ctx, p.ID, track))
	second, _ := f.library.Playlist(p.ID)

	assert.Len(t, second.Tracks, 1)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt, "duplicate add changes nothing")
}

func TestLibraryService_RemoveTrackPersistsOnMiss(t *testing.T) {
	f := setupLibraryService(t)
	ctx := context.Background()
	p, err := f.library.CreatePlaylist(ctx, "P", "")
	require.NoError(t, err)
	require.NoError(t, f.library.AddTrackToPlaylist(ctx, p.ID, domain.Track{ID: "t1"}))
	before, _ := f.library.Playlist(p.ID)

	require.NoError(t, f.library.RemoveTrackFromPlaylist(ctx, p.ID, "nope"))
	after, _ := f.library.Playlist(p.ID)
	assert.Len(t, after.Tracks, 1)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	require.NoError(t, f.library.RemoveTrackFromPlaylist(ctx, p.ID, "t1"))
	after, _ = f.library.Playlist(p.ID)
	assert.Empty(t, after.Tracks)
}

func TestLibraryService_ReorderPlaylistTracks(t *testing.T) {
	f := setupLibraryService(t)
	ctx := context.Background()
	p, err := f.library.CreatePlaylist(ctx, "P", "")
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, f.library.AddTrackToPlaylist(ctx, p.ID, domain.Track{ID: id}))
	}

	reordered := []domain.Track{{ID: "c"}, {ID: "a"}, {ID: "b"}}
	require.NoError(t, f.library.ReorderPlaylistTracks(ctx, p.ID, reordered))

	stored, err := kv.NewPlaylistRepository(f.store).Load(ctx, p.ID)
	require.NoError(t, err)
	ids := make([]string, 0, 3)
	for _, tr := range stored.Tracks {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	// The caller's slice is copied
	reordered[0].ID = "zzz"
	got, _ := f.library.Playlist(p.ID)
	assert.Equal(t, "c", got.Tracks[0].ID)
}

func TestLibraryService_ReplacedTracksStayUnique(t *testing.T) {
	f := setupLibraryService(t)
	ctx := context.Background()
	p, err := f.library.CreatePlaylist(ctx, "P", "")
	require.NoError(t, err)

	trackIDs := func() []string {
		stored, err := kv.NewPlaylistRepository(f.store).Load(ctx, p.ID)
		require.NoError(t, err)
		ids := make([]string, 0, len(stored.Tracks))
		for _, tr := range stored.Tracks {
			ids = append(ids, tr.ID)
		}
		return ids
	}

	require.NoError(t, f.library.ReorderPlaylistTracks(ctx, p.ID, []domain.Track{
		{ID: "b"}, {ID: "a"}, {ID: "b", Title: "second b"}, {ID: "c"}, {ID: "a"},
	}))
	assert.Equal(t, []string{"b", "a", "c"}, trackIDs())
	got, _ := f.library.Playlist(p.ID)
	assert.Empty(t, got.Tracks[0].Title, "first occurrence wins")

	require.NoError(t, f.library.UpdatePlaylist(ctx, p.ID, domain.PlaylistUpdate{
		Tracks: []domain.Track{{ID: "x"}, {ID: "x"}, {ID: "y"}},
	}))
	assert.Equal(t, []string{"x", "y"}, trackIDs())
}

func TestLibraryService_DeletePlaylistIdempotent(t *testing.T) {
	f := setupLibraryService(t)
	ctx := context.Background()
	p, err := f.library.CreatePlaylist(ctx, "P", "")
	require.NoError(t, err)

	require.NoError(t, f.library.DeletePlaylist(ctx, p.ID))
	require.NoError(t, f.library.DeletePlaylist(ctx, p.ID))

	_, ok := f.library.Playlist(p.ID)
	assert.False(t, ok)
	_, err = kv.NewPlaylistRepository(f.store).Load(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLibraryService_PlaylistSnapshotsSurviveDelete(t *testing.T) {
	f := setupLibraryService(t)
	ctx := context.Background()
	up, err := f.library.UploadTrack(ctx, media.NewMemoryFile("song.wav", "audio/wav", testutil.WAV(8000, 1)))
	require.NoError(t, err)
	p, err := f.library.CreatePlaylist(ctx, "P", "")
	require.NoError(t, err)
	require.NoError(t, f.library.AddTrackToPlaylist(ctx, p.ID, up))

	require.NoError(t, f.library.DeleteUploadedTrack(ctx, up.ID))

	got, _ := f.library.Playlist(p.ID)
	assert.True(t, got.HasTrack(up.ID))
}

func TestLibraryService_UploadTrack(t *testing.T) {
	f := setupLibraryService(t)
	ctx := context.Background()
	data := testutil.WAV(8000, 3)

	track, err := f.library.UploadTrack(ctx, media.NewMemoryFile("Morning Song.wav", "audio/wav", data))
	require.NoError(t, err)

	assert.NotEmpty(t, track.ID)
	assert.Equal(t, "Morning Song", track.Title)
	assert.Equal(t, UnknownArtist, track.Artist)
	assert.InDelta(t, 3.0, track.Duration, 0.01)
	assert.True(t, track.IsLocal)
	assert.False(t, track.IsDownloaded)
	require.NotNil(t, track.UploadedAt)
	assert.True(t, IsBlobLocator(track.AudioURL))

	blob, ok := f.library.Blobs().Resolve(track.AudioURL)
	require.True(t, ok)
	assert.Equal(t, data, blob)

	stored, err := f.library.GetUploadedTrack(ctx, track.ID)
	require.NoError(t, err)
	assert.Equal(t, data, stored.Blob)
	assert.Equal(t, track.AudioURL, stored.Track.AudioURL)

	assert.Len(t, f.library.UploadedTracks(), 1)
}

func TestLibraryService_UploadMP3RoundTrip(t *testing.T) {
	f := setupLibraryService(t)
	ctx := context.Background()
	data := testutil.Fixture(t, testutil.MP3Fixture)

	track, err := f.library.UploadTrack(ctx, media.NewMemoryFile("silence.mp3", "audio/mpeg", data))
	require.NoError(t, err)
	assert.Equal(t, "Quiet Morning", track.Title)
	assert.Equal(t, "Test Ensemble", track.Artist)
	assert.Equal(t, "Fixtures", track.Album)
	assert.InDelta(t, testutil.MP3FixtureDuration, track.Duration, 0.001)

	stored, err := f.library.GetUploadedTrack(ctx, track.ID)
	require.NoError(t, err)
	assert.Equal(t, data, stored.Blob)
	assert.Equal(t, track.ID, stored.Track.ID)
	assert.Equal(t, track.Title, stored.Track.Title)
	assert.Equal(t, track.AudioURL, stored.Track.AudioURL)
	assert.InDelta(t, track.Duration, stored.Track.Duration, 1e-9)

	require.NoError(t, f.library.DeleteUploadedTrack(ctx, track.ID))
	_, err = f.library.GetUploadedTrack(ctx, track.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.library.UploadedTracks())
	_, ok := f.library.Blobs().Resolve(track.AudioURL)
	assert.False(t, ok)
}

func TestLibraryService_UploadMP3WithoutExtension(t *testing.T) {
	f := setupLibraryService(t)

	track, err := f.library.UploadTrack(context.Background(),
		media.NewMemoryFile("song", "audio/mpeg", testutil.Fixture(t, testutil.MP3Fixture)))
	require.NoError(t, err)
	assert.InDelta(t, testutil.MP3FixtureDuration, track.Duration, 0.001)
}

func TestLibraryService_UploadAcceptsByExtension(t *testing.T) {
	f := setupLibraryService(t)

	track, err := f.library.UploadTrack(context.Background(),
		media.NewMemoryFile("LOUD.M4A", "application/octet-stream", testutil.M4A(600, 1500)))
	require.NoError(t, err)
	assert.Equal(t, "LOUD", track.Title)
	assert.InDelta(t, 2.5, track.Duration, 0.001)
}

func TestLibraryService_UploadRejectsType(t *testing.T) {
	f := setupLibraryService(t)

	_, err := f.library.UploadTrack(context.Background(), media.NewMemoryFile("notes.txt", "text/plain", []byte("hi")))

	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "type", vErr.Field)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	assert.Empty(t, f.library.UploadedTracks())
}

func TestLibraryService_UploadRejectsSizeBeforeIO(t *testing.T) {
	f := setupLibraryService(t)
	require.NoError(t, f.store.Close())

	file := sizedFile{MemoryFile: media.NewMemoryFile("big.mp3", "audio/mpeg", nil), size: DefaultMaxUploadBytes + 1}
	_, err := f.library.UploadTrack(context.Background(), file)

	assert.True(t, domain.IsValidation(err), "validation must win over the closed store")
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)
}

func TestLibraryService_UploadAtSizeLimit(t *testing.T) {
	f := setupLibraryService(t)
	data := testutil.WAV(8000, 1)
	f.library.maxUploadBytes = int64(len(data))

	_, err := f.library.UploadTrack(context.Background(), media.NewMemoryFile("ok.wav", "audio/wav", data))
	assert.NoError(t, err)

	_, err = f.library.UploadTrack(context.Background(), media.NewMemoryFile("big.wav", "audio/wav", append(data, 0)))
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)
}

func TestLibraryService_UploadRejectsUndecodable(t *testing.T) {
	f := setupLibraryService(t)

	for _, file := range []*media.MemoryFile{
		media.NewMemoryFile("broken.wav", "audio/wav", []byte("not a wav")),
		media.NewMemoryFile("broken.ogg", "audio/ogg", []byte("OggS garbage")),
		media.NewMemoryFile("broken.m4a", "audio/m4a", []byte("not an mp4")),
	} {
		_, err := f.library.UploadTrack(context.Background(), file)
		assert.True(t, domain.IsValidation(err), file.Name())
	}
	assert.Empty(t, f.library.UploadedTracks())
}

func TestLibraryService_DeleteUploadedTrack(t *testing.T) {
	f := setupLibraryService(t)
	ctx := context.Background()
	track, err := f.library.UploadTrack(ctx, media.NewMemoryFile("a.wav", "audio/wav", testutil.WAV(8000, 1)))
	require.NoError(t, err)

	require.NoError(t, f.library.DeleteUploadedTrack(ctx, track.ID))
	require.NoError(t, f.library.DeleteUploadedTrack(ctx, track.ID))

	assert.Empty(t, f.library.UploadedTracks())
	_, ok := f.library.Blobs().Resolve(track.AudioURL)
	assert.False(t, ok)
	_, err = f.library.GetUploadedTrack(ctx, track.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLibraryService_DownloadTrack(t *testing.T) {
	f := setupLibraryService(t)
	ctx := context.Background()
	remote := domain.Track{ID: "cat-1", Title: "Remote", AudioURL: "https://cdn/1.mp3"}

	var events []domain.DownloadProgress
	f.bus.Subscribe(domain.EventDownloadProgress, func(e domain.Event) {
		events = append(events, e.(domain.DownloadProgressEvent).Progress)
	})

	var progress []float64
	got, err := f.library.DownloadTrack(ctx, remote, func(p domain.DownloadProgress) {
		if p.Status == domain.DownloadDownloading {
			progress = append(progress, p.Progress)
		}
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{25, 50, 75, 100}, progress)
	assert.Equal(t, domain.DownloadPending, events[0].Status)
	assert.Equal(t, domain.DownloadCompleted, events[len(events)-1].Status)

	assert.True(t, got.IsDownloaded)
	require.NotNil(t, got.DownloadedAt)
	assert.Equal(t, "https://cdn/1.mp3", got.AudioURL)
	assert.True(t, f.library.IsTrackDownloaded("cat-1"))

	stored, err := f.library.GetDownloadedTrack(ctx, "cat-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote-audio-payload"), stored.Blob)
	assert.True(t, stored.Track.IsDownloaded)
}

func TestLibraryService_DownloadUnknownSizeSkipsPercentages(t *testing.T) {
	f := setupLibraryService(t)
	f.fetcher.sizeKnown = false

	var statuses []domain.DownloadStatus
	_, err := f.library.DownloadTrack(context.Background(), domain.Track{ID: "x", AudioURL: "https://cdn/x"},
		func(p domain.DownloadProgress) { statuses = append(statuses, p.Status) })
	require.NoError(t, err)

	assert.Equal(t, []domain.DownloadStatus{domain.DownloadPending, domain.DownloadCompleted}, statuses)
}

func TestLibraryService_DownloadTwiceKeepsOneEntry(t *testing.T) {
	f := setupLibraryService(t)
	track := domain.Track{ID: "x", AudioURL: "https://cdn/x"}

	_, err := f.library.DownloadTrack(context.Background(), track, nil)
	require.NoError(t, err)
	_, err = f.library.DownloadTrack(context.Background(), track, nil)
	require.NoError(t, err)

	assert.Len(t, f.library.DownloadedTracks(), 1)
}

func TestLibraryService_DownloadFailureLeavesNoRecord(t *testing.T) {
	f := setupLibraryService(t)
	ctx := context.Background()
	f.fetcher.err = domain.NewNetworkError("https://cdn/1.mp3", 503, errors.New("unavailable"))

	var last domain.DownloadProgress
	_, err := f.library.DownloadTrack(ctx, domain.Track{ID: "cat-1", AudioURL: "https://cdn/1.mp3"},
		func(p domain.DownloadProgress) { last = p })

	assert.True(t, domain.IsDownload(err))
	assert.True(t, domain.IsNetwork(err))
	assert.Equal(t, domain.DownloadFailed, last.Status)
	assert.False(t, f.library.IsTrackDownloaded("cat-1"))
	_, err = f.library.GetDownloadedTrack(ctx, "cat-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLibraryService_DownloadCanceled(t *testing.T) {
	f := setupLibraryService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.library.DownloadTrack(ctx, domain.Track{ID: "cat-1", AudioURL: "https://cdn/1.mp3"}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, domain.IsDownload(err))
	assert.Empty(t, f.library.DownloadedTracks())
}

func TestLibraryService_DownloadRequiresRemoteSource(t *testing.T) {
	f := setupLibraryService(t)

	_, err := f.library.DownloadTrack(context.Background(), domain.Track{ID: "local", AudioURL: BlobLocatorPrefix + "abc"}, nil)

	assert.True(t, domain.IsDownload(err))
	assert.Empty(t, f.fetcher.urls)
}

func TestLibraryService_DeleteDownloadedTrack(t *testing.T) {
	f := setupLibraryService(t)
	ctx := context.Background()
	_, err := f.library.DownloadTrack(ctx, domain.Track{ID: "d", AudioURL: "https://cdn/d"}, nil)
	require.NoError(t, err)

	require.NoError(t, f.library.DeleteDownloadedTrack(ctx, "d"))
	require.NoError(t, f.library.DeleteDownloadedTrack(ctx, "d"))

	assert.False(t, f.library.IsTrackDownloaded("d"))
}

func TestLibraryService_RefreshLibrary(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := setupLibraryService(t)
	ctx := context.Background()
	p, err := f.library.CreatePlaylist(ctx, "P", "")
	require.NoError(t, err)
	payload := testutil.Fixture(t, testutil.OggFixture)
	up, err := f.library.UploadTrack(ctx, media.NewMemoryFile("a.ogg", "audio/ogg", payload))
	require.NoError(t, err)
	_, err = f.library.DownloadTrack(ctx, domain.Track{ID: "d", AudioURL: "https://cdn/d"}, nil)
	require.NoError(t, err)

	// A second session over the same store
	fresh := newLibraryOverStore(f.store, f.fetcher, f.bus)
	require.NoError(t, fresh.RefreshLibrary(ctx))

	playlists := fresh.Playlists()
	require.Len(t, playlists, 1)
	assert.Equal(t, p.ID, playlists[0].ID)
	assert.True(t, fresh.IsTrackDownloaded("d"))

	uploads := fresh.UploadedTracks()
	require.Len(t, uploads, 1)
	assert.Equal(t, up.ID, uploads[0].ID)
	assert.NotEqual(t, up.AudioURL, uploads[0].AudioURL, "locators are session scoped")
	blob, ok := fresh.Blobs().Resolve(uploads[0].AudioURL)
	require.True(t, ok)
	assert.Equal(t, payload, blob)

	// Refreshing again re-issues locators without leaking old ones
	require.NoError(t, fresh.RefreshLibrary(ctx))
	assert.Equal(t, 1, fresh.Blobs().Len())
}

func TestLibraryService_RefreshLibraryFailure(t *testing.T) {
	f := setupLibraryService(t)
	_, err := f.library.CreatePlaylist(context.Background(), "P", "")
	require.NoError(t, err)
	require.NoError(t, f.store.Close())

	err = f.library.RefreshLibrary(context.Background())
	assert.True(t, domain.IsStorage(err))
	assert.Len(t, f.library.Playlists(), 1, "failed refresh keeps the previous view")
}

func TestLibraryService_PublishesLibraryChanged(t *testing.T) {
	f := setupLibraryService(t)
	var changes []domain.LibraryCollection
	f.bus.Subscribe(domain.EventLibraryChanged, func(e domain.Event) {
		changes = append(changes, e.(domain.LibraryChangedEvent).Collection)
	})

	p, err := f.library.CreatePlaylist(context.Background(), "P", "")
	require.NoError(t, err)
	require.NoError(t, f.library.AddTrackToPlaylist(context.Background(), p.ID, domain.Track{ID: "t"}))
	_, err = f.library.UploadTrack(context.Background(), media.NewMemoryFile("a.wav", "audio/wav", testutil.WAV(8000, 1)))
	require.NoError(t, err)

	assert.Equal(t, []domain.LibraryCollection{
		domain.CollectionPlaylists,
		domain.CollectionPlaylists,
		domain.CollectionUploads,
	}, changes)
}

func TestLibraryService_ConcurrentPlaylistWrites(t *testing.T) {
	f := setupLibraryService(t)
	ctx := context.Background()
	p, err := f.library.CreatePlaylist(ctx, "P", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = f.library.AddTrackToPlaylist(ctx, p.ID, domain.Track{ID: string(rune('a' + i))})
		}(i)
	}
	wg.Wait()

	got, _ := f.library.Playlist(p.ID)
	stored, err := kv.NewPlaylistRepository(f.store).Load(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Tracks, 10)
	assert.Equal(t, got.Tracks, stored.Tracks)
}
