// Package media reads duration and tag metadata from uploaded audio payloads.
package media

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"github.com/abema/go-mp4"
	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/rs/zerolog"

	"github.com/musicflow/musicflow/internal/domain"
	"github.com/musicflow/musicflow/internal/ports"
)

// Format is an audio container the probe can measure.
type Format string

const (
	FormatUnknown Format = ""
	FormatMP3     Format = "mp3"
	FormatWAV     Format = "wav"
	FormatOgg     Format = "ogg"
	FormatMP4     Format = "mp4"
	FormatADTS    Format = "adts"
)

var formatsByMIME = map[string]Format{
	"audio/mpeg":  FormatMP3,
	"audio/mp3":   FormatMP3,
	"audio/wav":   FormatWAV,
	"audio/x-wav": FormatWAV,
	"audio/wave":  FormatWAV,
	"audio/ogg":   FormatOgg,
	"audio/m4a":   FormatMP4,
	"audio/x-m4a": FormatMP4,
	"audio/mp4":   FormatMP4,
	"audio/aac":   FormatADTS,
}

var formatsByExt = map[string]Format{
	".mp3": FormatMP3,
	".wav": FormatWAV,
	".ogg": FormatOgg,
	".m4a": FormatMP4,
	".aac": FormatADTS,
}

// Probe implements ports.MediaProbe.
// Duration is decoded for MP3, WAV, Ogg Vorbis, MP4/M4A and ADTS AAC.
// Tags are read from ID3, MP4 and Vorbis comments when present.
type Probe struct {
	logger zerolog.Logger
}

// NewProbe creates a new media probe.
func NewProbe(logger zerolog.Logger) *Probe {
	return &Probe{logger: logger.With().Str("component", "media_probe").Logger()}
}

// Probe inspects data. The format is sniffed from the content first, then
// taken from mimeType, then from the extension of name. A payload whose
// duration cannot be determined still yields its tags; the returned error
// only describes the duration failure.
func (p *Probe) Probe(ctx context.Context, name, mimeType string, data []byte) (ports.MediaInfo, error) {
	if err := ctx.Err(); err != nil {
		return ports.MediaInfo{}, err
	}

	info := readTags(data)

	format := DetectFormat(name, mimeType, data)
	var err error
	switch format {
	case FormatMP3:
		info.Duration, err = mp3Duration(data)
	case FormatWAV:
		info.Duration, err = wavDuration(data)
	case FormatOgg:
		info.Duration, err = oggDuration(data)
	case FormatMP4:
		info.Duration, err = mp4Duration(data)
	case FormatADTS:
		info.Duration, err = adtsDuration(data)
	default:
		err = errors.Wrapf(domain.ErrUnsupportedFormat, "no duration decoder for %s", name)
	}
	if err != nil {
		p.logger.Debug().Err(err).Str("name", name).Str("format", string(format)).Msg("duration unknown")
	}
	return info, err
}

// DetectFormat picks the container of an audio payload.
func DetectFormat(name, mimeType string, data []byte) Format {
	if f := sniff(data); f != FormatUnknown {
		return f
	}
	mediaType, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), ";")
	if f, ok := formatsByMIME[strings.TrimSpace(mediaType)]; ok {
		return f
	}
	return formatsByExt[strings.ToLower(filepath.Ext(name))]
}

func sniff(data []byte) Format {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatOgg
	case len(data) >= 8 && string(data[4:8]) == "ftyp":
		return FormatMP4
	case bytes.HasPrefix(data, []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xF6 == 0xF0:
		// 12-bit sync with layer 00
		return FormatADTS
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 && data[1]&0x06 != 0:
		return FormatMP3
	}
	return FormatUnknown
}

func readTags(data []byte) ports.MediaInfo {
	metadata, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil || metadata == nil {
		return ports.MediaInfo{}
	}
	return ports.MediaInfo{
		Title:  strings.TrimSpace(metadata.Title()),
		Artist: strings.TrimSpace(metadata.Artist()),
		Album:  strings.TrimSpace(metadata.Album()),
	}
}

// mp3Duration decodes the stream length. The decoder emits 16-bit stereo
// samples, so one sample frame is 4 bytes.
func mp3Duration(data []byte) (float64, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, errors.Wrap(err, "failed to decode mp3")
	}
	length := d.Length()
	if length <= 0 || d.SampleRate() <= 0 {
		return 0, errors.New("mp3 length unknown")
	}
	return float64(length) / 4 / float64(d.SampleRate()), nil
}

func wavDuration(data []byte) (float64, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return 0, errors.New("invalid wav file")
	}
	dur, err := d.Duration()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read wav duration")
	}
	return dur.Seconds(), nil
}

func oggDuration(data []byte) (float64, error) {
	samples, format, err := oggvorbis.GetLength(bytes.NewReader(data))
	if err != nil {
		return 0, errors.Wrap(err, "failed to decode ogg vorbis")
	}
	if format == nil || format.SampleRate <= 0 {
		return 0, errors.New("ogg sample rate unknown")
	}
	return float64(samples) / float64(format.SampleRate), nil
}

func mp4Duration(data []byte) (float64, error) {
	boxes, err := mp4.ExtractBoxWithPayload(bytes.NewReader(data), nil,
		mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeMvhd()})
	if err != nil {
		return 0, errors.Wrap(err, "failed to read mp4 boxes")
	}
	if len(boxes) == 0 {
		return 0, errors.New("mp4 has no movie header")
	}
	mvhd, ok := boxes[0].Payload.(*mp4.Mvhd)
	if !ok || mvhd.Timescale == 0 {
		return 0, errors.New("mp4 timescale unknown")
	}
	return float64(mvhd.GetDuration()) / float64(mvhd.Timescale), nil
}

var adtsSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// adtsDuration walks the ADTS frame headers. Each raw data block holds 1024 samples.
func adtsDuration(data []byte) (float64, error) {
	var samples, rate int
	for pos := 0; pos+7 <= len(data); {
		h := data[pos : pos+7]
		if h[0] != 0xFF || h[1]&0xF6 != 0xF0 {
			return 0, errors.Newf("adts sync lost at byte %d", pos)
		}
		idx := int(h[2]>>2) & 0x0F
		if idx >= len(adtsSampleRates) {
			return 0, errors.Newf("adts sample rate index %d invalid", idx)
		}
		rate = adtsSampleRates[idx]
		frameLen := int(h[3]&0x03)<<11 | int(h[4])<<3 | int(h[5])>>5
		if frameLen < 7 {
			return 0, errors.Newf("adts frame length %d invalid", frameLen)
		}
		samples += 1024 * (int(h[6]&0x03) + 1)
		pos += frameLen
	}
	if samples == 0 {
		return 0, errors.New("no adts frames")
	}
	return float64(samples) / float64(rate), nil
}

// Verify that Probe implements the MediaProbe interface
var _ ports.MediaProbe = (*Probe)(nil)
