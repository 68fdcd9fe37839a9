// Package ports define interfaces for dependency inversion.
// These interfaces allow the core business logic to remain independent of external frameworks.
package ports

// AudioOutput is the audio rendering primitive driven by the player.
// It abstracts the platform element that actually decodes and plays a source
// locator, and allows for testing with mocks.
//
// Implementations must be thread-safe as they may be called from multiple goroutines.
// Listener callbacks may be invoked from any goroutine, but never synchronously
// from within a call into the output itself.
type AudioOutput interface {
	// SetSource assigns a new source locator (remote URL or session blob locator).
	// The position resets to zero. Playback does not start until Play is called.
	SetSource(source string) error

	// Play starts or resumes playback of the current source.
	//
	// Returns an error if playback cannot be started (e.g. autoplay blocked).
	Play() error

	// Pause pauses playback. The position is preserved.
	Pause() error

	// Seek sets the playback position in seconds.
	Seek(position float64) error

	// SetVolume sets the output level from 0.0 (silent) to 1.0 (full volume).
	SetVolume(volume float64) error

	// Position returns the current position in seconds.
	Position() float64

	// Duration returns the duration of the current source in seconds (0 if unknown).
	Duration() float64

	// SetListener registers the receiver of output events. Passing nil detaches it.
	SetListener(listener AudioListener)
}

// AudioListener receives events from an AudioOutput.
type AudioListener interface {
	// OnTimeUpdate is called periodically while playing.
	OnTimeUpdate(position, duration float64)

	// OnEnded is called when the current source plays to completion.
	OnEnded()
}
