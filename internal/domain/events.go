// Package domain defines events for the event-driven architecture.
// Events are the subscription interface presentation layers use to observe the core.
package domain

import (
	"time"
)

// Event is the base interface for all events in the system.
// All events must implement this interface to be published via the event bus.
type Event interface {
	// Type returns the event type identifier
	Type() EventType

	// Timestamp returns when the event occurred
	Timestamp() time.Time
}

// EventType is a string identifier for different event types.
type EventType string

// Event type constants define all possible events in the system.
const (
	// Player events
	EventPlayerStateChanged EventType = "player.state_changed"
	EventTrackChanged       EventType = "player.track_changed"
	EventPlaybackToggled    EventType = "player.playback_toggled"
	EventTrackProgress      EventType = "player.progress"
	EventTrackEnded         EventType = "player.track_ended"
	EventVolumeChanged      EventType = "player.volume_changed"
	EventShuffleToggled     EventType = "player.shuffle_toggled"
	EventRepeatChanged      EventType = "player.repeat_changed"
	EventQueueChanged       EventType = "player.queue_changed"

	// Library events
	EventLibraryChanged   EventType = "library.changed"
	EventDownloadProgress EventType = "library.download_progress"

	// Settings events
	EventSettingsChanged EventType = "settings.changed"
)

// EventHandler is a function that handles events.
type EventHandler func(event Event)

// SubscriptionID uniquely identifies an event subscription.
type SubscriptionID string

// baseEvent provides common event functionality.
// All concrete events should embed this struct.
type baseEvent struct {
	timestamp time.Time
}

// Timestamp returns when the event occurred.
func (e baseEvent) Timestamp() time.Time {
	return e.timestamp
}

// newBaseEvent creates a new base event with the current timestamp.
func newBaseEvent() baseEvent {
	return baseEvent{timestamp: time.Now()}
}

// PlayerStateChangedEvent carries a snapshot of the player state after any mutation.
type PlayerStateChangedEvent struct {
	baseEvent
	State PlayerState
}

// Type returns the event type.
func (e PlayerStateChangedEvent) Type() EventType {
	return EventPlayerStateChanged
}

// NewPlayerStateChangedEvent creates a new PlayerStateChangedEvent.
func NewPlayerStateChangedEvent(state PlayerState) PlayerStateChangedEvent {
	return PlayerStateChangedEvent{
		baseEvent: newBaseEvent(),
		State:     state,
	}
}

// TrackChangedEvent is published when the current track changes.
// Track is nil when the player went idle.
type TrackChangedEvent struct {
	baseEvent
	Track *Track
	Index int
}

// Type returns the event type.
func (e TrackChangedEvent) Type() EventType {
	return EventTrackChanged
}

// NewTrackChangedEvent creates a new TrackChangedEvent.
func NewTrackChangedEvent(track *Track, index int) TrackChangedEvent {
	return TrackChangedEvent{
		baseEvent: newBaseEvent(),
		Track:     track,
		Index:     index,
	}
}

// PlaybackToggledEvent is published when the playing flag flips.
type PlaybackToggledEvent struct {
	baseEvent
	Playing bool
}

// Type returns the event type.
func (e PlaybackToggledEvent) Type() EventType {
	return EventPlaybackToggled
}

// NewPlaybackToggledEvent creates a new PlaybackToggledEvent.
func NewPlaybackToggledEvent(playing bool) PlaybackToggledEvent {
	return PlaybackToggledEvent{
		baseEvent: newBaseEvent(),
		Playing:   playing,
	}
}

// TrackProgressEvent is published on every time update from the audio output.
type TrackProgressEvent struct {
	baseEvent
	Position float64
	Duration float64
}

// Type returns the event type.
func (e TrackProgressEvent) Type() EventType {
	return EventTrackProgress
}

// NewTrackProgressEvent creates a new TrackProgressEvent.
func NewTrackProgressEvent(position, duration float64) TrackProgressEvent {
	return TrackProgressEvent{
		baseEvent: newBaseEvent(),
		Position:  position,
		Duration:  duration,
	}
}

// TrackEndedEvent is published when the audio output reports the end of a track.
type TrackEndedEvent struct {
	baseEvent
	Track Track
	Index int
}

// Type returns the event type.
func (e TrackEndedEvent) Type() EventType {
	return EventTrackEnded
}

// NewTrackEndedEvent creates a new TrackEndedEvent.
func NewTrackEndedEvent(track Track, index int) TrackEndedEvent {
	return TrackEndedEvent{
		baseEvent: newBaseEvent(),
		Track:     track,
		Index:     index,
	}
}

// VolumeChangedEvent is published when the volume changes.
type VolumeChangedEvent struct {
	baseEvent
	Volume float64 // 0.0 to 1.0
}

// Type returns the event type.
func (e VolumeChangedEvent) Type() EventType {
	return EventVolumeChanged
}

// NewVolumeChangedEvent creates a new VolumeChangedEvent.
func NewVolumeChangedEvent(volume float64) VolumeChangedEvent {
	return VolumeChangedEvent{
		baseEvent: newBaseEvent(),
		Volume:    volume,
	}
}

// ShuffleToggledEvent is published when shuffle is toggled.
type ShuffleToggledEvent struct {
	baseEvent
	Enabled bool
}

// Type returns the event type.
func (e ShuffleToggledEvent) Type() EventType {
	return EventShuffleToggled
}

// NewShuffleToggledEvent creates a new ShuffleToggledEvent.
func NewShuffleToggledEvent(enabled bool) ShuffleToggledEvent {
	return ShuffleToggledEvent{
		baseEvent: newBaseEvent(),
		Enabled:   enabled,
	}
}

// RepeatChangedEvent is published when the repeat mode cycles.
type RepeatChangedEvent struct {
	baseEvent
	Mode RepeatMode
}

// Type returns the event type.
func (e RepeatChangedEvent) Type() EventType {
	return EventRepeatChanged
}

// NewRepeatChangedEvent creates a new RepeatChangedEvent.
func NewRepeatChangedEvent(mode RepeatMode) RepeatChangedEvent {
	return RepeatChangedEvent{
		baseEvent: newBaseEvent(),
		Mode:      mode,
	}
}

// QueueChangedEvent is published when the queue changes.
type QueueChangedEvent struct {
	baseEvent
	Queue        []Track
	CurrentIndex int
}

// Type returns the event type.
func (e QueueChangedEvent) Type() EventType {
	return EventQueueChanged
}

// NewQueueChangedEvent creates a new QueueChangedEvent.
func NewQueueChangedEvent(queue []Track, index int) QueueChangedEvent {
	return QueueChangedEvent{
		baseEvent:    newBaseEvent(),
		Queue:        queue,
		CurrentIndex: index,
	}
}

// LibraryCollection names one of the library's in-memory collections.
type LibraryCollection string

const (
	CollectionPlaylists LibraryCollection = "playlists"
	CollectionUploads   LibraryCollection = "uploads"
	CollectionDownloads LibraryCollection = "downloads"
)

// LibraryChangedEvent is published after a library collection was mutated or reloaded.
type LibraryChangedEvent struct {
	baseEvent
	Collection LibraryCollection
	// ID is the affected entity (empty for a full reload)
	ID string
}

// Type returns the event type.
func (e LibraryChangedEvent) Type() EventType {
	return EventLibraryChanged
}

// NewLibraryChangedEvent creates a new LibraryChangedEvent.
func NewLibraryChangedEvent(collection LibraryCollection, id string) LibraryChangedEvent {
	return LibraryChangedEvent{
		baseEvent:  newBaseEvent(),
		Collection: collection,
		ID:         id,
	}
}

// DownloadProgressEvent is published while a track downloads.
type DownloadProgressEvent struct {
	baseEvent
	Progress DownloadProgress
}

// Type returns the event type.
func (e DownloadProgressEvent) Type() EventType {
	return EventDownloadProgress
}

// NewDownloadProgressEvent creates a new DownloadProgressEvent.
func NewDownloadProgressEvent(progress DownloadProgress) DownloadProgressEvent {
	return DownloadProgressEvent{
		baseEvent: newBaseEvent(),
		Progress:  progress,
	}
}

// SettingsChangedEvent is published when a setting is saved.
type SettingsChangedEvent struct {
	baseEvent
	Settings Settings
}

// Type returns the event type.
func (e SettingsChangedEvent) Type() EventType {
	return EventSettingsChanged
}

// NewSettingsChangedEvent creates a new SettingsChangedEvent.
func NewSettingsChangedEvent(settings Settings) SettingsChangedEvent {
	return SettingsChangedEvent{
		baseEvent: newBaseEvent(),
		Settings:  settings,
	}
}
