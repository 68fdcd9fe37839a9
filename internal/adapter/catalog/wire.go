package catalog

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/musicflow/musicflow/internal/domain"
)

// response is the envelope every catalog endpoint returns.
type response[T any] struct {
	Results []T `json:"results"`
}

// wireTrack is a catalog track as sent over the wire. Every field is optional.
type wireTrack struct {
	ID            flexString `json:"id"`
	Name          wireText   `json:"name"`
	ArtistName    wireText   `json:"artist_name"`
	ArtistID      flexString `json:"artist_id"`
	AlbumName     wireText   `json:"album_name"`
	AlbumID       flexString `json:"album_id"`
	Duration      flexFloat  `json:"duration"`
	Audio         wireText   `json:"audio"`
	AudioDownload wireText   `json:"audiodownload"`
	Image         wireText   `json:"image"`
	AlbumImage    wireText   `json:"album_image"`
}

type wireAlbum struct {
	ID          flexString `json:"id"`
	Name        wireText   `json:"name"`
	ArtistName  wireText   `json:"artist_name"`
	ArtistID    flexString `json:"artist_id"`
	ReleaseDate wireText   `json:"releasedate"`
	Image       wireText   `json:"image"`
}

type wireArtist struct {
	ID    flexString `json:"id"`
	Name  wireText   `json:"name"`
	Image wireText   `json:"image"`
}

// toTrack converts a wire track. Absent fields map to zero values; the audio
// locator falls back to the download URL and artwork to the track image.
func (w wireTrack) toTrack() domain.Track {
	return domain.Track{
		ID:       string(w.ID),
		Title:    string(w.Name),
		Artist:   string(w.ArtistName),
		ArtistID: string(w.ArtistID),
		Album:    string(w.AlbumName),
		AlbumID:  string(w.AlbumID),
		Duration: float64(w.Duration),
		AudioURL: firstNonEmpty(w.Audio, w.AudioDownload),
		ImageURL: firstNonEmpty(w.AlbumImage, w.Image),
	}
}

func (w wireAlbum) toAlbum() domain.Album {
	return domain.Album{
		ID:          string(w.ID),
		Name:        string(w.Name),
		Artist:      string(w.ArtistName),
		ArtistID:    string(w.ArtistID),
		ReleaseDate: string(w.ReleaseDate),
		ImageURL:    string(w.Image),
	}
}

func (w wireArtist) toArtist() domain.Artist {
	return domain.Artist{
		ID:       string(w.ID),
		Name:     string(w.Name),
		ImageURL: string(w.Image),
	}
}

func firstNonEmpty(values ...wireText) string {
	for _, v := range values {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

// wireText is a text field. A value of any other JSON type decodes as "".
type wireText string

func (t *wireText) UnmarshalJSON(data []byte) error {
	*t = ""
	var v string
	if json.Unmarshal(data, &v) == nil {
		*t = wireText(v)
	}
	return nil
}

// flexString accepts a JSON string or number. Any other value decodes as "".
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	*s = ""
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if json.Unmarshal(data, &n) == nil {
		*s = flexString(n.String())
	}
	return nil
}

// flexFloat accepts a JSON number or numeric string. Anything unparsable,
// non-finite, negative or null decodes as 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	*f = 0
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return nil
	}
	*f = flexFloat(v)
	return nil
}
