// Package domain contains core business models and logic with no infrastructure dependencies.
// This package defines the fundamental entities of the MusicFlow player core.
package domain

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Track represents a single playable audio track.
// Tracks are value types: playlists, queues and library collections hold copies.
type Track struct {
	// ID is an opaque, stable identifier (catalog id or UUID for uploads)
	ID string `json:"id"`

	// Title is the song title
	Title string `json:"title"`

	// Artist is the performing artist name
	Artist string `json:"artist"`

	ArtistID string `json:"artistId,omitempty"`
	Album    string `json:"album,omitempty"`
	AlbumID  string `json:"albumId,omitempty"`

	// Duration is the track length in seconds (0 if unknown)
	Duration float64 `json:"duration"`

	// AudioURL is the playable source locator: a remote URL or a session blob locator
	AudioURL string `json:"audioUrl"`

	// ImageURL is the artwork locator (empty if absent)
	ImageURL string `json:"imageUrl,omitempty"`

	// IsLocal marks user-uploaded tracks
	IsLocal bool `json:"isLocal"`

	// IsDownloaded marks tracks cached for offline playback
	IsDownloaded bool `json:"isDownloaded"`

	UploadedAt   *time.Time `json:"uploadedAt,omitempty"`
	DownloadedAt *time.Time `json:"downloadedAt,omitempty"`
}

// Album is a catalog album.
type Album struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Artist      string  `json:"artist"`
	ArtistID    string  `json:"artistId,omitempty"`
	ReleaseDate string  `json:"releaseDate,omitempty"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	Tracks      []Track `json:"tracks,omitempty"`
}

// Artist is a catalog artist.
type Artist struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl,omitempty"`
	Bio      string `json:"bio,omitempty"`
}

// Playlist represents a user-ordered collection of tracks.
// Tracks are snapshots: deleting the original upload or download leaves entries intact.
type Playlist struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Tracks      []Track   `json:"tracks"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	CoverImage  string    `json:"coverImage,omitempty"`
}

// HasTrack reports whether a track with the given id is in the playlist.
func (p *Playlist) HasTrack(trackID string) bool {
	for _, t := range p.Tracks {
		if t.ID == trackID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the playlist.
func (p Playlist) Clone() Playlist {
	tracks := make([]Track, len(p.Tracks))
	copy(tracks, p.Tracks)
	p.Tracks = tracks
	return p
}

// PlaylistUpdate carries the fields to merge into a playlist. Nil fields are left unchanged.
type PlaylistUpdate struct {
	Name        *string
	Description *string
	CoverImage  *string
	Tracks      []Track
}

// RepeatMode controls what happens when a track ends.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatAll RepeatMode = "all"
	RepeatOne RepeatMode = "one"
)

// Next returns the next mode in the off -> all -> one -> off cycle.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// PlayerState is the queue/transport aggregate owned by the player service.
type PlayerState struct {
	// CurrentTrack is the queue entry at CurrentIndex (nil if none)
	CurrentTrack *Track

	IsPlaying bool

	// Volume is the output level (0.0 to 1.0)
	Volume float64

	// CurrentTime is the playback position in seconds
	CurrentTime float64

	// Duration is the length of the current track in seconds (0 if unknown)
	Duration float64

	Queue []Track

	// CurrentIndex is the index in Queue (-1 if none)
	CurrentIndex int

	Shuffle bool
	Repeat  RepeatMode
}

// NowPlaying is the media-session view of the current track.
type NowPlaying struct {
	Title    string
	Artist   string
	Album    string
	Artwork  string
	Playing  bool
	Position float64
	Duration float64
}

// ThemeMode is the UI color scheme.
type ThemeMode string

const (
	ThemeLight ThemeMode = "light"
	ThemeDark  ThemeMode = "dark"
)

// Theme is the UI theme preference.
type Theme struct {
	Mode        ThemeMode `json:"mode" validate:"oneof=light dark"`
	AccentColor string    `json:"accentColor" validate:"hexcolor"`
}

// AudioQuality is the preferred streaming quality.
type AudioQuality string

const (
	QualityLow    AudioQuality = "low"
	QualityMedium AudioQuality = "medium"
	QualityHigh   AudioQuality = "high"
)

// Settings is the scalar settings blob.
type Settings struct {
	Theme   Theme        `json:"theme" validate:"required"`
	Volume  float64      `json:"volume" validate:"gte=0,lte=1"`
	Quality AudioQuality `json:"quality" validate:"oneof=low medium high"`
}

// DefaultSettings returns the settings used when nothing has been stored.
func DefaultSettings() Settings {
	return Settings{
		Theme:   Theme{Mode: ThemeDark, AccentColor: "#007AFF"},
		Volume:  0.7,
		Quality: QualityMedium,
	}
}

// DownloadStatus is the lifecycle state of a track download.
type DownloadStatus string

const (
	DownloadPending     DownloadStatus = "pending"
	DownloadDownloading DownloadStatus = "downloading"
	DownloadCompleted   DownloadStatus = "completed"
	DownloadFailed      DownloadStatus = "failed"
)

// DownloadProgress reports the progress of a download.
type DownloadProgress struct {
	TrackID string
	// Progress is a percentage (0-100)
	Progress float64
	Status   DownloadStatus
}

// StoredTrack is a track together with its binary payload, as kept in the uploads
// and downloads partitions.
type StoredTrack struct {
	Track Track
	Blob  []byte
	// StoredAt is the upload or download time, used for ordering
	StoredAt time.Time
}

// FormatDuration formats seconds as m:ss.
func FormatDuration(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) {
		return "0:00"
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// FormatFileSize formats a byte count in human-readable units.
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	sizes := []string{"Bytes", "KB", "MB", "GB"}
	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(sizes)-1 {
		value /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d Bytes", bytes)
	}
	return strconv.FormatFloat(math.Round(value*100)/100, 'f', -1, 64) + " " + sizes[i]
}
