// Package mock provides a mock implementation of the AudioOutput interface.
// It is used for testing services and for headless runs without a real audio device.
package mock

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/musicflow/musicflow/internal/domain"
	"github.com/musicflow/musicflow/internal/ports"
)

// DefaultDuration is the duration reported for sources without a configured one.
const DefaultDuration = 180.0

// Output is a mock implementation of the AudioOutput interface.
// It simulates playback in memory without actually playing audio and records
// every call for assertions.
//
// Thread-safety: This implementation is thread-safe. Listener callbacks are
// invoked without the internal lock held.
type Output struct {
	logger zerolog.Logger

	mu        sync.Mutex
	listener  ports.AudioListener
	source    string
	playing   bool
	position  float64
	volume    float64
	durations map[string]float64
	calls     []string

	// Behavior configuration (for testing error scenarios)
	failSetSource bool
	failPlay      bool
	failVolume    bool
}

// NewOutput creates a new mock audio output.
func NewOutput(logger zerolog.Logger) *Output {
	return &Output{
		logger:    logger.With().Str("component", "mock_output").Logger(),
		volume:    1.0,
		durations: make(map[string]float64),
	}
}

// SetDuration configures the duration reported for a source.
func (o *Output) SetDuration(source string, seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.durations[source] = seconds
}

// SetFailSetSource configures the mock to fail source assignment (for testing).
func (o *Output) SetFailSetSource(fail bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failSetSource = fail
}

// SetFailPlay configures the mock to fail playback, as a blocked autoplay would (for testing).
func (o *Output) SetFailPlay(fail bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failPlay = fail
}

// SetFailVolume configures the mock to fail volume changes (for testing).
func (o *Output) SetFailVolume(fail bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failVolume = fail
}

// SetSource assigns a new source and resets the position.
func (o *Output) SetSource(source string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls = append(o.calls, "set_source:"+source)
	if o.failSetSource {
		return domain.NewAudioOutputError("set_source", source, errors.New("mock set source failed"))
	}
	o.source = source
	o.position = 0
	o.playing = false
	o.logger.Debug().Str("source", source).Msg("source set")
	return nil
}

// Play starts playback of the current source.
func (o *Output) Play() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls = append(o.calls, "play")
	if o.failPlay {
		return domain.NewAudioOutputError("play", o.source, errors.New("mock play failed"))
	}
	if o.source == "" {
		return domain.NewAudioOutputError("play", "", errors.New("no source"))
	}
	o.playing = true
	return nil
}

// Pause pauses playback.
func (o *Output) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls = append(o.calls, "pause")
	o.playing = false
	return nil
}

// Seek sets the playback position, clamped to [0, duration].
func (o *Output) Seek(position float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls = append(o.calls, "seek")
	if position < 0 {
		position = 0
	}
	if d := o.durationLocked(); position > d {
		position = d
	}
	o.position = position
	return nil
}

// SetVolume sets the output level.
func (o *Output) SetVolume(volume float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls = append(o.calls, "volume")
	if o.failVolume {
		return domain.NewAudioOutputError("set_volume", o.source, errors.New("mock volume failed"))
	}
	if volume < 0 || volume > 1 {
		return domain.NewAudioOutputError("set_volume", o.source, errors.Newf("volume out of range: %f", volume))
	}
	o.volume = volume
	return nil
}

// Position returns the current position in seconds.
func (o *Output) Position() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.position
}

// Duration returns the duration of the current source in seconds.
func (o *Output) Duration() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.durationLocked()
}

func (o *Output) durationLocked() float64 {
	if o.source == "" {
		return 0
	}
	if d, ok := o.durations[o.source]; ok {
		return d
	}
	return DefaultDuration
}

// SetListener registers the receiver of output events.
func (o *Output) SetListener(listener ports.AudioListener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listener = listener
}

// Source returns the current source.
func (o *Output) Source() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.source
}

// IsPlaying reports whether the output is playing.
func (o *Output) IsPlaying() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.playing
}

// Volume returns the current output level.
func (o *Output) Volume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// Calls returns a copy of the recorded calls.
func (o *Output) Calls() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.calls))
	copy(out, o.calls)
	return out
}

// ResetCalls clears the recorded calls.
func (o *Output) ResetCalls() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = nil
}

// SimulateProgress advances the position of a playing source by delta seconds,
// emitting a time update, and an ended event once the end is reached.
func (o *Output) SimulateProgress(delta float64) {
	o.mu.Lock()
	if !o.playing {
		o.mu.Unlock()
		return
	}
	duration := o.durationLocked()
	o.position += delta
	ended := o.position >= duration
	if ended {
		o.position = duration
		o.playing = false
	}
	position := o.position
	listener := o.listener
	o.mu.Unlock()

	if listener == nil {
		return
	}
	listener.OnTimeUpdate(position, duration)
	if ended {
		listener.OnEnded()
	}
}

// SimulateEnded plays the current source to completion.
func (o *Output) SimulateEnded() {
	o.mu.Lock()
	duration := o.durationLocked()
	o.position = duration
	o.playing = false
	listener := o.listener
	o.mu.Unlock()

	if listener != nil {
		listener.OnEnded()
	}
}

// Verify that Output implements the AudioOutput interface
var _ ports.AudioOutput = (*Output)(nil)
