// Package service provides business logic for the MusicFlow player core.
package service

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/musicflow/musicflow/internal/domain"
	"github.com/musicflow/musicflow/internal/ports"
)

const (
	// DefaultVolume is the volume used until a saved one is loaded.
	DefaultVolume = 0.7

	// DefaultRestartThreshold is how far into a track Previous restarts it
	// instead of moving back in the queue.
	DefaultRestartThreshold = 3 * time.Second

	volumeSaveTimeout = 5 * time.Second
)

// PlayerConfig tunes the player service. Zero fields take their defaults.
type PlayerConfig struct {
	DefaultVolume    float64
	RestartThreshold time.Duration
}

// PlayerService owns the queue and transport state and drives the audio output.
//
// State is mutated under mu. The resulting output side effects are applied
// after mu is released, serialized by outMu, and events are published once
// both locks are free, so output callbacks and event handlers can re-enter
// the service. Output failures are reported and logged, never returned, and
// never roll back state: IsPlaying reflects intent.
type PlayerService struct {
	// Dependencies (injected)
	logger   zerolog.Logger
	output   ports.AudioOutput
	bus      ports.EventBus
	settings ports.SettingsRepository
	reporter ports.ErrorReporter

	restartThreshold float64
	intn             func(n int) int

	// State
	mu           sync.RWMutex
	queue        []domain.Track
	currentIndex int
	isPlaying    bool
	volume       float64
	currentTime  float64
	duration     float64
	shuffle      bool
	repeat       domain.RepeatMode

	outMu   sync.Mutex
	pending sync.WaitGroup

	// saveMu and volumeGen keep background saves from overwriting a newer volume
	saveMu    sync.Mutex
	volumeGen atomic.Uint64
}

// effects are the output calls a state change requires.
type effects struct {
	source    *string
	seek      *float64
	volume    *float64
	play      bool
	pause     bool
	published []domain.Event
}

// NewPlayerService creates a new player service and registers it as the output's listener.
// settings and reporter may be nil.
func NewPlayerService(
	logger zerolog.Logger,
	output ports.AudioOutput,
	bus ports.EventBus,
	settings ports.SettingsRepository,
	reporter ports.ErrorReporter,
	cfg PlayerConfig,
) *PlayerService {
	if cfg.DefaultVolume <= 0 || cfg.DefaultVolume > 1 {
		cfg.DefaultVolume = DefaultVolume
	}
	if cfg.RestartThreshold <= 0 {
		cfg.RestartThreshold = DefaultRestartThreshold
	}

	s := &PlayerService{
		logger:           logger,
		output:           output,
		bus:              bus,
		settings:         settings,
		reporter:         reporter,
		restartThreshold: cfg.RestartThreshold.Seconds(),
		intn:             rand.IntN,
		currentIndex:     -1,
		volume:           cfg.DefaultVolume,
		repeat:           domain.RepeatOff,
	}
	output.SetListener(s)

	logger.Debug().Float64("volume", s.volume).Msg("player service initialized")
	return s
}

// LoadSavedVolume restores the persisted volume, if any, and applies it to the output.
func (s *PlayerService) LoadSavedVolume(ctx context.Context) error {
	if s.settings == nil {
		return nil
	}
	volume, ok, err := s.settings.LoadVolume(ctx)
	if err != nil || !ok {
		return err
	}

	s.mu.Lock()
	s.volume = clamp(volume)
	fx := s.stateChanged(&effects{volume: ptr(s.volume)})
	s.applyAndUnlock(fx)
	return nil
}

// State returns a snapshot of the player state.
func (s *PlayerService) State() domain.PlayerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// NowPlaying returns the media-session metadata of the current track.
// ok is false when no track is loaded.
func (s *PlayerService) NowPlaying() (domain.NowPlaying, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	track := s.current()
	if track == nil {
		return domain.NowPlaying{}, false
	}
	return domain.NowPlaying{
		Title:    track.Title,
		Artist:   track.Artist,
		Album:    track.Album,
		Artwork:  track.ImageURL,
		Playing:  s.isPlaying,
		Position: s.currentTime,
		Duration: s.duration,
	}, true
}

// SetQueue replaces the queue and points at startIndex without changing IsPlaying.
// An empty queue makes the player idle. A start index outside a non-empty
// queue returns domain.ErrInvalidIndex and changes nothing.
func (s *PlayerService) SetQueue(tracks []domain.Track, startIndex int) error {
	return s.replaceQueue(tracks, startIndex, false)
}

// PlayTracks is SetQueue followed by playing.
func (s *PlayerService) PlayTracks(tracks []domain.Track, startIndex int) error {
	return s.replaceQueue(tracks, startIndex, true)
}

func (s *PlayerService) replaceQueue(tracks []domain.Track, startIndex int, play bool) error {
	if len(tracks) > 0 && (startIndex < 0 || startIndex >= len(tracks)) {
		return domain.ErrInvalidIndex
	}

	s.mu.Lock()
	wasPlaying := s.isPlaying
	s.queue = cloneTracks(tracks)
	s.currentTime = 0

	if len(tracks) == 0 {
		s.logger.Debug().Msg("queue cleared, player idle")
		s.currentIndex = -1
		s.isPlaying = false
		s.duration = 0
		fx := &effects{}
		if wasPlaying {
			fx.pause = true
		}
		fx.published = append(fx.published,
			domain.NewTrackChangedEvent(nil, -1),
			domain.NewQueueChangedEvent(cloneTracks(s.queue), -1))
		if wasPlaying {
			fx.published = append(fx.published, domain.NewPlaybackToggledEvent(false))
		}
		s.applyAndUnlock(s.stateChanged(fx))
		return nil
	}

	if play {
		s.isPlaying = true
	}
	fx := s.loadIndex(startIndex)
	if s.isPlaying && !wasPlaying {
		fx.published = append(fx.published, domain.NewPlaybackToggledEvent(true))
	}
	fx.published = append(fx.published, domain.NewQueueChangedEvent(cloneTracks(s.queue), s.currentIndex))
	s.logger.Debug().Int("size", len(tracks)).Int("index", startIndex).Bool("play", play).Msg("queue replaced")
	s.applyAndUnlock(s.stateChanged(fx))
	return nil
}

// AddToQueue appends a track without touching the current pointer.
func (s *PlayerService) AddToQueue(track domain.Track) {
	s.mu.Lock()
	s.queue = append(s.queue, track)
	fx := &effects{published: []domain.Event{domain.NewQueueChangedEvent(cloneTracks(s.queue), s.currentIndex)}}
	s.applyAndUnlock(s.stateChanged(fx))
}

// PlayTrack plays track. An empty queue is seeded with it; otherwise the track
// is located in the queue by id, and appended first if it is not there.
func (s *PlayerService) PlayTrack(track domain.Track) {
	s.mu.Lock()
	index := -1
	for i, t := range s.queue {
		if t.ID == track.ID {
			index = i
			break
		}
	}
	queueChanged := false
	if index < 0 {
		s.queue = append(s.queue, track)
		index = len(s.queue) - 1
		queueChanged = true
	}

	wasPlaying := s.isPlaying
	s.isPlaying = true
	fx := s.loadIndex(index)
	if !wasPlaying {
		fx.published = append(fx.published, domain.NewPlaybackToggledEvent(true))
	}
	if queueChanged {
		fx.published = append(fx.published, domain.NewQueueChangedEvent(cloneTracks(s.queue), s.currentIndex))
	}
	s.logger.Debug().Str("track_id", track.ID).Int("index", index).Msg("play track")
	s.applyAndUnlock(s.stateChanged(fx))
}

// Play sets IsPlaying. Returns domain.ErrNoTrackLoaded, changing nothing, if no track is loaded.
func (s *PlayerService) Play() error {
	s.mu.Lock()
	if s.current() == nil {
		s.mu.Unlock()
		return domain.ErrNoTrackLoaded
	}
	if s.isPlaying {
		s.mu.Unlock()
		return nil
	}
	s.applyAndUnlock(s.stateChanged(s.setPlaying(true)))
	return nil
}

// Pause clears IsPlaying.
func (s *PlayerService) Pause() {
	s.mu.Lock()
	if !s.isPlaying {
		s.mu.Unlock()
		return
	}
	s.applyAndUnlock(s.stateChanged(s.setPlaying(false)))
}

// TogglePlay flips IsPlaying. It is a no-op when no track is loaded.
func (s *PlayerService) TogglePlay() {
	s.mu.Lock()
	if s.current() == nil {
		s.mu.Unlock()
		return
	}
	s.applyAndUnlock(s.stateChanged(s.setPlaying(!s.isPlaying)))
}

// Next advances to the following track, wrapping at the end of the queue
// regardless of repeat mode. With shuffle on, a random index other than the
// current one is chosen; a single-track queue stays on its track.
func (s *PlayerService) Next() {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	s.applyAndUnlock(s.stateChanged(s.loadIndex(s.nextIndex())))
}

// Previous restarts the current track when more than the restart threshold
// has played. Otherwise it moves back one track, wrapping from the first to the last.
func (s *PlayerService) Previous() {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	if s.currentTime > s.restartThreshold {
		s.currentTime = 0
		s.applyAndUnlock(s.stateChanged(&effects{seek: ptr(0.0)}))
		return
	}

	prev := s.currentIndex - 1
	if s.currentIndex <= 0 {
		prev = len(s.queue) - 1
	}
	s.applyAndUnlock(s.stateChanged(s.loadIndex(prev)))
}

// SeekTo sets the position in seconds. The value is trusted as given.
func (s *PlayerService) SeekTo(position float64) {
	s.mu.Lock()
	if s.current() == nil {
		s.mu.Unlock()
		return
	}
	s.currentTime = position
	s.applyAndUnlock(s.stateChanged(&effects{seek: ptr(position)}))
}

// SetVolume clamps volume to [0, 1], applies it and persists it in the background.
func (s *PlayerService) SetVolume(volume float64) {
	s.mu.Lock()
	s.volume = clamp(volume)
	v := s.volume
	fx := &effects{
		volume:    ptr(v),
		published: []domain.Event{domain.NewVolumeChangedEvent(v)},
	}
	s.applyAndUnlock(s.stateChanged(fx))

	s.persistVolume(v)
}

// persistVolume saves the volume without blocking the caller. Failures go to the reporter.
func (s *PlayerService) persistVolume(volume float64) {
	if s.settings == nil {
		return
	}
	gen := s.volumeGen.Add(1)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.saveMu.Lock()
		defer s.saveMu.Unlock()
		if s.volumeGen.Load() != gen {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), volumeSaveTimeout)
		defer cancel()
		if err := s.settings.SaveVolume(ctx, volume); err != nil {
			s.logger.Warn().Err(err).Float64("volume", volume).Msg("failed to save volume")
			s.report(err)
		}
	}()
}

// ToggleShuffle flips shuffle. The queue order is not changed.
func (s *PlayerService) ToggleShuffle() {
	s.mu.Lock()
	s.shuffle = !s.shuffle
	fx := &effects{published: []domain.Event{domain.NewShuffleToggledEvent(s.shuffle)}}
	s.applyAndUnlock(s.stateChanged(fx))
}

// ToggleRepeat cycles the repeat mode off -> all -> one -> off.
func (s *PlayerService) ToggleRepeat() {
	s.mu.Lock()
	s.repeat = s.repeat.Next()
	fx := &effects{published: []domain.Event{domain.NewRepeatChangedEvent(s.repeat)}}
	s.applyAndUnlock(s.stateChanged(fx))
}

// HandleEnded reacts to the output finishing the current track.
// Repeat one restarts it; repeat all or a track before the last advances;
// otherwise playback stops on the last track.
func (s *PlayerService) HandleEnded() {
	s.mu.Lock()
	track := s.current()
	if track == nil {
		s.mu.Unlock()
		return
	}
	ended := domain.NewTrackEndedEvent(*track, s.currentIndex)

	var fx *effects
	switch {
	case s.repeat == domain.RepeatOne:
		fx = &effects{seek: ptr(0.0), play: true}
		if !s.isPlaying {
			fx.published = append(fx.published, domain.NewPlaybackToggledEvent(true))
		}
		s.currentTime = 0
		s.isPlaying = true
	case s.repeat == domain.RepeatAll || s.currentIndex < len(s.queue)-1:
		fx = s.loadIndex(s.nextIndex())
	default:
		fx = s.setPlaying(false)
	}
	fx.published = append([]domain.Event{ended}, fx.published...)
	s.logger.Debug().Str("track_id", track.ID).Str("repeat", string(s.repeat)).Msg("track ended")
	s.applyAndUnlock(s.stateChanged(fx))
}

// HandleTimeUpdate mirrors the output's position and duration into state.
func (s *PlayerService) HandleTimeUpdate(position, duration float64) {
	s.mu.Lock()
	s.currentTime = position
	s.duration = duration
	s.mu.Unlock()

	if s.bus.HasSubscribers(domain.EventTrackProgress) {
		s.bus.Publish(domain.NewTrackProgressEvent(position, duration))
	}
}

// OnTimeUpdate implements ports.AudioListener.
func (s *PlayerService) OnTimeUpdate(position, duration float64) {
	s.HandleTimeUpdate(position, duration)
}

// OnEnded implements ports.AudioListener.
func (s *PlayerService) OnEnded() {
	s.HandleEnded()
}

// Shutdown detaches from the output and waits for pending volume saves.
func (s *PlayerService) Shutdown() {
	s.output.SetListener(nil)
	s.pending.Wait()
	s.logger.Debug().Msg("player service shut down")
}

// loadIndex points at index, resets the position and schedules the source
// change. Must be called with mu held.
func (s *PlayerService) loadIndex(index int) *effects {
	s.currentIndex = index
	s.currentTime = 0
	s.duration = s.queue[index].Duration

	track := s.queue[index]
	fx := &effects{
		source:    ptr(track.AudioURL),
		volume:    ptr(s.volume),
		play:      s.isPlaying,
		published: []domain.Event{domain.NewTrackChangedEvent(&track, index)},
	}
	return fx
}

// nextIndex must be called with mu held and a non-empty queue.
func (s *PlayerService) nextIndex() int {
	n := len(s.queue)
	if !s.shuffle {
		return (s.currentIndex + 1) % n
	}
	if n == 1 {
		return 0
	}
	candidates := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if i != s.currentIndex {
			candidates = append(candidates, i)
		}
	}
	return candidates[s.intn(len(candidates))]
}

// setPlaying must be called with mu held.
func (s *PlayerService) setPlaying(playing bool) *effects {
	s.isPlaying = playing
	return &effects{
		play:      playing,
		pause:     !playing,
		published: []domain.Event{domain.NewPlaybackToggledEvent(playing)},
	}
}

// stateChanged appends the state snapshot event. Must be called with mu held.
func (s *PlayerService) stateChanged(fx *effects) *effects {
	fx.published = append(fx.published, domain.NewPlayerStateChangedEvent(s.snapshot()))
	return fx
}

// applyAndUnlock releases mu, applies fx to the output, then publishes its
// events with no lock held so handlers may call back into the service.
// Must be called with mu held.
func (s *PlayerService) applyAndUnlock(fx *effects) {
	// outMu is taken before mu is released so output calls keep state order
	s.outMu.Lock()
	s.mu.Unlock()
	s.applyOutput(fx)
	s.outMu.Unlock()

	for _, e := range fx.published {
		s.bus.Publish(e)
	}
}

// applyOutput must be called with outMu held.
func (s *PlayerService) applyOutput(fx *effects) {
	if fx.source != nil {
		s.call("set_source", *fx.source, func() error { return s.output.SetSource(*fx.source) })
	}
	if fx.volume != nil {
		s.call("set_volume", "", func() error { return s.output.SetVolume(*fx.volume) })
	}
	if fx.seek != nil {
		s.call("seek", "", func() error { return s.output.Seek(*fx.seek) })
	}
	switch {
	case fx.play:
		s.call("play", "", s.output.Play)
	case fx.pause:
		s.call("pause", "", s.output.Pause)
	}
}

func (s *PlayerService) call(op, source string, fn func() error) {
	if err := fn(); err != nil {
		var outErr *domain.AudioOutputError
		if !errors.As(err, &outErr) {
			err = domain.NewAudioOutputError(op, source, err)
		}
		s.logger.Warn().Err(err).Str("op", op).Msg("audio output failed")
		s.report(err)
	}
}

func (s *PlayerService) report(err error) {
	if s.reporter != nil {
		s.reporter.Report(err)
	}
}

// current must be called with mu held.
func (s *PlayerService) current() *domain.Track {
	if s.currentIndex < 0 || s.currentIndex >= len(s.queue) {
		return nil
	}
	return &s.queue[s.currentIndex]
}

// snapshot must be called with mu held.
func (s *PlayerService) snapshot() domain.PlayerState {
	state := domain.PlayerState{
		IsPlaying:    s.isPlaying,
		Volume:       s.volume,
		CurrentTime:  s.currentTime,
		Duration:     s.duration,
		Queue:        cloneTracks(s.queue),
		CurrentIndex: s.currentIndex,
		Shuffle:      s.shuffle,
		Repeat:       s.repeat,
	}
	if t := s.current(); t != nil {
		track := *t
		state.CurrentTrack = &track
	}
	return state
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func cloneTracks(tracks []domain.Track) []domain.Track {
	out := make([]domain.Track, len(tracks))
	copy(out, tracks)
	return out
}

func ptr[T any](v T) *T {
	return &v
}

// Verify interface compliance
var (
	_ ports.AudioListener = (*PlayerService)(nil)
)
