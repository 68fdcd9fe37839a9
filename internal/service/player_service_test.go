package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicflow/musicflow/internal/adapter/audio/mock"
	"github.com/musicflow/musicflow/internal/adapter/eventbus"
	"github.com/musicflow/musicflow/internal/adapter/repository/kv"
	"github.com/musicflow/musicflow/internal/adapter/store/memory"
	"github.com/musicflow/musicflow/internal/domain"
	"github.com/musicflow/musicflow/internal/logger"
	"github.com/musicflow/musicflow/internal/testutil"
)

type collectingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *collectingReporter) Report(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *collectingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

type playerFixture struct {
	player   *PlayerService
	output   *mock.Output
	bus      *eventbus.SyncEventBus
	store    *memory.Store
	settings *kv.SettingsRepository
	reporter *collectingReporter
}

// setupPlayerService creates a player service with mock dependencies.
func setupPlayerService(t *testing.T) *playerFixture {
	t.Helper()
	log := logger.NewTestLogger()
	output := mock.NewOutput(log)
	bus := eventbus.NewSyncEventBus(log)
	store := memory.NewStore()
	settings := kv.NewSettingsRepository(store)
	reporter := &collectingReporter{}

	player := NewPlayerService(log, output, bus, settings, reporter, PlayerConfig{})
	t.Cleanup(func() {
		player.Shutdown()
		_ = bus.Close()
	})

	return &playerFixture{player, output, bus, store, settings, reporter}
}

func testQueue() []domain.Track {
	return []domain.Track{
		{ID: "a", Title: "A", Artist: "X", Duration: 180, AudioURL: "https://cdn/a.mp3"},
		{ID: "b", Title: "B", Artist: "X", Duration: 200, AudioURL: "https://cdn/b.mp3"},
		{ID: "c", Title: "C", Artist: "Y", Duration: 150, AudioURL: "https://cdn/c.mp3"},
	}
}

func assertConsistent(t *testing.T, st domain.PlayerState) {
	t.Helper()
	if st.CurrentIndex >= 0 && st.CurrentIndex < len(st.Queue) {
		require.NotNil(t, st.CurrentTrack)
		assert.Equal(t, st.Queue[st.CurrentIndex], *st.CurrentTrack)
	} else {
		assert.Nil(t, st.CurrentTrack)
		assert.False(t, st.IsPlaying, "playing implies a current track")
	}
}

func TestPlayerService_InitialState(t *testing.T) {
	f := setupPlayerService(t)

	st := f.player.State()
	assert.Nil(t, st.CurrentTrack)
	assert.False(t, st.IsPlaying)
	assert.Equal(t, DefaultVolume, st.Volume)
	assert.Equal(t, -1, st.CurrentIndex)
	assert.Empty(t, st.Queue)
	assert.Equal(t, domain.RepeatOff, st.Repeat)
	assert.False(t, st.Shuffle)

	_, ok := f.player.NowPlaying()
	assert.False(t, ok)
}

func TestPlayerService_SetQueueKeepsTransport(t *testing.T) {
	f := setupPlayerService(t)

	require.NoError(t, f.player.SetQueue(testQueue(), 1))

	st := f.player.State()
	assert.Equal(t, 1, st.CurrentIndex)
	assert.Equal(t, "b", st.CurrentTrack.ID)
	assert.False(t, st.IsPlaying)
	assert.Equal(t, 0.0, st.CurrentTime)
	assertConsistent(t, st)

	assert.Equal(t, "https://cdn/b.mp3", f.output.Source())
	assert.False(t, f.output.IsPlaying())
}

func TestPlayerService_SetQueueWhilePlayingStartsNewSource(t *testing.T) {
	f := setupPlayerService(t)
	require.NoError(t, f.player.PlayTracks(testQueue(), 0))

	require.NoError(t, f.player.SetQueue(testQueue()[1:], 0))

	assert.True(t, f.player.State().IsPlaying)
	assert.Equal(t, "https://cdn/b.mp3", f.output.Source())
	assert.True(t, f.output.IsPlaying())
}

func TestPlayerService_SetQueueEmptyGoesIdle(t *testing.T) {
	f := setupPlayerService(t)
	require.NoError(t, f.player.PlayTracks(testQueue(), 2))

	require.NoError(t, f.player.SetQueue(nil, 0))

	st := f.player.State()
	assert.Equal(t, -1, st.CurrentIndex)
	assert.Nil(t, st.CurrentTrack)
	assert.False(t, st.IsPlaying)
	assert.Equal(t, 0.0, st.Duration)
	assert.False(t, f.output.IsPlaying())
}

func TestPlayerService_SetQueueInvalidIndex(t *testing.T) {
	f := setupPlayerService(t)
	require.NoError(t, f.player.SetQueue(testQueue(), 0))

	assert.ErrorIs(t, f.player.SetQueue(testQueue(), 3), domain.ErrInvalidIndex)
	assert.ErrorIs(t, f.player.PlayTracks(testQueue(), -1), domain.ErrInvalidIndex)

	st := f.player.State()
	assert.Equal(t, 0, st.CurrentIndex)
	assert.False(t, st.IsPlaying)
}

func TestPlayerService_PlayTracks(t *testing.T) {
	f := setupPlayerService(t)

	require.NoError(t, f.player.PlayTracks(testQueue(), 2))

	st := f.player.State()
	assert.True(t, st.IsPlaying)
	assert.Equal(t, "c", st.CurrentTrack.ID)
	assert.Equal(t, 150.0, st.Duration)
	assert.True(t, f.output.IsPlaying())
	assert.Equal(t, "https://cdn/c.mp3", f.output.Source())
}

func TestPlayerService_AddToQueue(t *testing.T) {
	f := setupPlayerService(t)

	f.player.AddToQueue(testQueue()[0])
	st := f.player.State()
	assert.Len(t, st.Queue, 1)
	assert.Equal(t, -1, st.CurrentIndex)
	assert.Nil(t, st.CurrentTrack)

	require.NoError(t, f.player.SetQueue(testQueue()[:2], 1))
	f.player.AddToQueue(testQueue()[2])
	st = f.player.State()
	assert.Len(t, st.Queue, 3)
	assert.Equal(t, 1, st.CurrentIndex)
	assert.Equal(t, "b", st.CurrentTrack.ID)
}

func TestPlayerService_PlayTrack(t *testing.T) {
	t.Run("seeds empty queue", func(t *testing.T) {
		f := setupPlayerService(t)
		f.player.PlayTrack(testQueue()[1])

		st := f.player.State()
		require.Len(t, st.Queue, 1)
		assert.Equal(t, 0, st.CurrentIndex)
		assert.True(t, st.IsPlaying)
		assertConsistent(t, st)
	})

	t.Run("finds track in queue", func(t *testing.T) {
		f := setupPlayerService(t)
		require.NoError(t, f.player.SetQueue(testQueue(), 0))

		f.player.PlayTrack(testQueue()[2])

		st := f.player.State()
		assert.Len(t, st.Queue, 3)
		assert.Equal(t, 2, st.CurrentIndex)
		assert.True(t, st.IsPlaying)
	})

	t.Run("appends missing track", func(t *testing.T) {
		f := setupPlayerService(t)
		require.NoError(t, f.player.SetQueue(testQueue(), 0))

		extra := domain.Track{ID: "z", Title: "Z", AudioURL: "https://cdn/z.mp3"}
		f.player.PlayTrack(extra)

		st := f.player.State()
		require.Len(t, st.Queue, 4)
		assert.Equal(t, 3, st.CurrentIndex)
		assert.Equal(t, "z", st.CurrentTrack.ID)
		assertConsistent(t, st)
		assert.Equal(t, "https://cdn/z.mp3", f.output.Source())
	})
}

func TestPlayerService_PlayWithoutTrack(t *testing.T) {
	f := setupPlayerService(t)

	assert.ErrorIs(t, f.player.Play(), domain.ErrNoTrackLoaded)
	assert.False(t, f.player.State().IsPlaying)

	f.player.TogglePlay()
	assert.False(t, f.player.State().IsPlaying)
	assert.Empty(t, f.output.Calls())
}

func TestPlayerService_PlayPauseToggle(t *testing.T) {
	f := setupPlayerService(t)
	require.NoError(t, f.player.SetQueue(testQueue(), 0))

	require.NoError(t, f.player.Play())
	assert.True(t, f.player.State().IsPlaying)
	assert.True(t, f.output.IsPlaying())

	f.player.Pause()
	assert.False(t, f.player.State().IsPlaying)
	assert.False(t, f.output.IsPlaying())

	f.player.TogglePlay()
	assert.True(t, f.player.State().IsPlaying)
	f.player.TogglePlay()
	assert.False(t, f.player.State().IsPlaying)
}

func TestPlayerService_NextWrapsRegardlessOfRepeat(t *testing.T) {
	f := setupPlayerService(t)
	require.NoError(t, f.player.SetQueue(testQueue(), 2))

	f.player.Next()

	st := f.player.State()
	assert.Equal(t, 0, st.CurrentIndex)
	assert.Equal(t, domain.RepeatOff, st.Repeat)
	assertConsistent(t, st)
}

func TestPlayerService_NextEmptyQueueNoop(t *testing.T) {
	f := setupPlayerService(t)

	f.player.Next()
	f.player.Previous()

	assert.Equal(t, -1, f.player.State().CurrentIndex)
	assert.Empty(t, f.output.Calls())
}

func TestPlayerService_NextThenPreviousRestoresIndex(t *testing.T) {
	f := setupPlayerService(t)
	require.NoError(t, f.player.SetQueue(testQueue(), 1))

	f.player.Next()
	f.player.HandleTimeUpdate(2.5, 150)
	f.player.Previous()

	assert.Equal(t, 1, f.player.State().CurrentIndex)
}

func TestPlayerService_PreviousWrapsToLast(t *testing.T) {
	f := setupPlayerService(t)
	require.NoError(t, f.player.SetQueue(testQueue(), 0))

	f.player.Previous()

	assert.Equal(t, 2, f.player.State().CurrentIndex)
}

func TestPlayerService_PreviousRestartsAfterThreshold(t *testing.T) {
	f := setupPlayerService(t)
	require.NoError(t, f.player.PlayTracks(testQueue(), 1))
	f.player.HandleTimeUpdate(42, 200)
	f.output.ResetCalls()

	f.player.Previous()

	st := f.player.State()
	assert.Equal(t, 1, st.CurrentIndex)
	assert.Equal(t, 0.0, st.CurrentTime)
	assert.Equal(t, []string{"seek"}, f.output.Calls())
}

func TestPlayerService_ShuffleSingleTrackKeepsIndex(t *testing.T) {
	f := setupPlayerService(t)
	require.NoError(t, f.player.SetQueue(testQueue()[:1], 0))
	f.player.ToggleShuffle()

	assert.NotPanics(t, f.player.Next)
	assert.Equal(t, 0, f.player.State().CurrentIndex)
}

func TestPlayerService_ShuffleExcludesCurrent(t *testing.T) {
	f := setupPlayerService(t)
	var sizes []int
	f.player.intn = func(n int) int {
		sizes = append(sizes, n)
		return n - 1
	}
	require.NoError(t, f.player.SetQueue(testQueue(), 2))
	f.player.ToggleShuffle()
	assert.True(t, f.player.State().Shuffle)

	f.player.Next()

	// Candidates are [0 1]; picking the last one gives 1
	assert.Equal(t, []int{2}, sizes)
	assert.Equal(t, 1, f.player.State().CurrentIndex)
	// Queue order is untouched
	assert.Equal(t, testQueue(), f.player.State().Queue)
}

func TestPlayerService_ToggleRepeatCycle(t *testing.T) {
	f := setupPlayerService(t)

	f.player.ToggleRepeat()
	assert.Equal(t, domain.RepeatAll, f.player.State().Repeat)
	f.player.ToggleRepeat()
	assert.Equal(t, domain.RepeatOne, f.player.State().Repeat)
	f.player.ToggleRepeat()
	assert.Equal(t, domain.RepeatOff, f.player.State().Repeat)
}

func TestPlayerService_SeekTo(t *testing.T) {
	f := setupPlayerService(t)

	f.player.SeekTo(10)
	assert.Equal(t, 0.0, f.player.State().CurrentTime, "no track, no seek")

	require.NoError(t, f.player.PlayTracks(testQueue(), 0))
	f.player.SeekTo(33)
	assert.Equal(t, 33.0, f.player.State().CurrentTime)
	assert.Equal(t, 33.0, f.output.Position())
}

func TestPlayerService_SetVolumeClampsAndPersists(t *testing.T) {
	f := setupPlayerService(t)

	f.player.SetVolume(-0.5)
	assert.Equal(t, 0.0, f.player.State().Volume)
	assert.Equal(t, 0.0, f.output.Volume())

	f.player.SetVolume(1.7)
	assert.Equal(t, 1.0, f.player.State().Volume)
	assert.Equal(t, 1.0, f.output.Volume())

	f.player.SetVolume(0.4)
	f.player.Shutdown()

	saved, ok, err := f.settings.LoadVolume(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.4, saved)
}

func TestPlayerService_VolumePersistFailureIsReported(t *testing.T) {
	f := setupPlayerService(t)
	require.NoError(t, f.store.Close())

	f.player.SetVolume(0.3)
	f.player.Shutdown()

	assert.Equal(t, 0.3, f.player.State().Volume)
	assert.Equal(t, 1, f.reporter.count())
}

func TestPlayerService_LoadSavedVolume(t *testing.T) {
	f := setupPlayerService(t)
	require.NoError(t, f.settings.SaveVolume(context.Background(), 0.25))

	require.NoError(t, f.player.LoadSavedVolume(context.Background()))

	assert.Equal(t, 0.25, f.player.State().Volume)
	assert.Equal(t, 0.25, f.output.Volume())
}

func TestPlayerService_EndedScenarioRepeatOff(t *testing.T) {
	f := setupPlayerService(t)
	require.NoError(t, f.player.PlayTracks(testQueue(), 0))

	f.player.HandleEnded()
	st := f.player.State()
	assert.Equal(t, 1, st.CurrentIndex)
	assert.True(t, st.IsPlaying)

	require.NoError(t, f.player.PlayTracks(testQueue(), 2))
	f.player.HandleEnded()
	st = f.player.State()
	assert.Equal(t, 2, st.CurrentIndex)
	assert.False(t, st.IsPlaying)
	assertConsistent(t, st)
}

func TestPlayerService_EndedScenarioRepeatOne(t *testing.T) {
	f := setupPlayerService(t)
	require.NoError(t, f.player.PlayTracks(testQueue(), 1))
	f.player.ToggleRepeat()
	f.player.ToggleRepeat()
	require.Equal(t, domain.RepeatOne, f.player.State().Repeat)
	f.player.HandleTimeUpdate(199, 200)

	f.player.HandleEnded()

	st := f.player.State()
	assert.Equal(t, 0.0, st.CurrentTime)
	assert.Equal(t, 1, st.CurrentIndex)
	assert.True(t, st.IsPlaying)
	assert.True(t, f.output.IsPlaying())
}

func TestPlayerService_EndedRepeatAllWraps(t *testing.T) {
	f := setupPlayerService(t)
	require.NoError(t, f.player.PlayTracks(testQueue(), 2))
	f.player.ToggleRepeat()

	f.player.HandleEnded()

	st := f.player.State()
	assert.Equal(t, 0, st.CurrentIndex)
	assert.True(t, st.IsPlaying)
}

func TestPlayerService_OutputCallbacksDriveEngine(t *testing.T) {
	f := setupPlayerService(t)
	f.output.SetDuration("https://cdn/a.mp3", 10)
	require.NoError(t, f.player.PlayTracks(testQueue(), 0))

	f.output.SimulateProgress(4)
	st := f.player.State()
	assert.Equal(t, 4.0, st.CurrentTime)
	assert.Equal(t, 10.0, st.Duration)

	// Reaching the end re-enters the engine through OnEnded
	f.output.SimulateProgress(10)
	st = f.player.State()
	assert.Equal(t, 1, st.CurrentIndex)
	assert.Equal(t, "https://cdn/b.mp3", f.output.Source())
	assert.True(t, f.output.IsPlaying())
}

func TestPlayerService_OutputFailureKeepsIntent(t *testing.T) {
	f := setupPlayerService(t)
	f.output.SetFailPlay(true)

	require.NoError(t, f.player.PlayTracks(testQueue(), 0))

	assert.True(t, f.player.State().IsPlaying)
	assert.False(t, f.output.IsPlaying())
	assert.Equal(t, 1, f.reporter.count())
}

func TestPlayerService_PublishesEvents(t *testing.T) {
	f := setupPlayerService(t)

	var states []domain.PlayerState
	var tracks []string
	f.bus.Subscribe(domain.EventPlayerStateChanged, func(e domain.Event) {
		states = append(states, e.(domain.PlayerStateChangedEvent).State)
	})
	f.bus.Subscribe(domain.EventTrackChanged, func(e domain.Event) {
		tracks = append(tracks, e.(domain.TrackChangedEvent).Track.ID)
	})

	require.NoError(t, f.player.PlayTracks(testQueue(), 0))
	f.player.Next()
	f.player.Pause()

	require.Len(t, states, 3)
	assert.True(t, states[0].IsPlaying)
	assert.Equal(t, 1, states[1].CurrentIndex)
	assert.False(t, states[2].IsPlaying)
	assert.Equal(t, []string{"a", "b"}, tracks)
}

func TestPlayerService_HandlerMayReadState(t *testing.T) {
	f := setupPlayerService(t)

	var seen int
	f.bus.Subscribe(domain.EventTrackChanged, func(domain.Event) {
		seen = f.player.State().CurrentIndex
	})

	require.NoError(t, f.player.SetQueue(testQueue(), 2))
	assert.Equal(t, 2, seen)
}

// finishesWithin fails the test if fn does not return before the timeout.
func finishesWithin(t *testing.T, timeout time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("operation did not return")
	}
}

func TestPlayerService_HandlerMayIssueCommands(t *testing.T) {
	f := setupPlayerService(t)
	require.NoError(t, f.player.PlayTracks(testQueue(), 0))

	f.bus.Subscribe(domain.EventTrackEnded, func(domain.Event) {
		f.player.Pause()
	})

	finishesWithin(t, 2*time.Second, f.player.HandleEnded)

	st := f.player.State()
	assert.Equal(t, 1, st.CurrentIndex)
	assert.False(t, st.IsPlaying)
	assert.Equal(t, "pause", f.output.Calls()[len(f.output.Calls())-1])
}

func TestPlayerService_HandlerReadsStateDuringConcurrentCommands(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := setupPlayerService(t)
	require.NoError(t, f.player.SetQueue(testQueue(), 0))

	var reads atomic.Int64
	f.bus.Subscribe(domain.EventTrackChanged, func(domain.Event) {
		if st := f.player.State(); st.CurrentTrack != nil {
			reads.Add(1)
		}
	})

	finishesWithin(t, 5*time.Second, func() {
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					f.player.ToggleShuffle()
				}
			}()
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					f.player.Next()
				}
			}()
		}
		wg.Wait()
	})
	assert.Equal(t, int64(200), reads.Load())
}

func TestPlayerService_NowPlaying(t *testing.T) {
	f := setupPlayerService(t)
	tracks := testQueue()
	tracks[0].Album = "Album"
	tracks[0].ImageURL = "https://img/a.jpg"
	require.NoError(t, f.player.PlayTracks(tracks, 0))

	np, ok := f.player.NowPlaying()
	require.True(t, ok)
	assert.Equal(t, domain.NowPlaying{
		Title: "A", Artist: "X", Album: "Album", Artwork: "https://img/a.jpg",
		Playing: true, Duration: 180,
	}, np)
}

func TestPlayerService_ConcurrentOperations(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := setupPlayerService(t)
	require.NoError(t, f.player.SetQueue(testQueue(), 0))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 5 {
			case 0:
				f.player.Next()
			case 1:
				f.player.Previous()
			case 2:
				f.player.TogglePlay()
			case 3:
				f.player.SetVolume(float64(i) / 20)
			case 4:
				f.output.SimulateProgress(1)
			}
		}(i)
	}
	wg.Wait()
	f.player.Shutdown()

	assertConsistent(t, f.player.State())
}
