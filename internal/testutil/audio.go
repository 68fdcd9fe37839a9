package testutil

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// Fixture files in testdata/:
//
//	silence.mp3  ID3v2.3 tag (Quiet Morning / Test Ensemble / Fixtures) and
//	             40 silent MPEG-1 Layer III frames at 44.1 kHz (1.0449s)
//	tone.ogg     Ogg Vorbis, 44100 samples at 44.1 kHz (1s)
const (
	MP3Fixture         = "silence.mp3"
	MP3FixtureDuration = 40 * 1152 / 44100.0
	OggFixture         = "tone.ogg"
	OggFixtureDuration = 1.0
)

// Fixture returns the contents of a file in the testutil testdata directory.
func Fixture(t testing.TB, name string) []byte {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot locate testdata directory")
	}
	data, err := os.ReadFile(filepath.Join(filepath.Dir(file), "testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return data
}

// WAV builds a mono 16-bit PCM WAV file of the given length.
func WAV(sampleRate, seconds int) []byte {
	dataSize := sampleRate * seconds * 2
	var buf bytes.Buffer
	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	w(uint32(36 + dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	w(uint32(16))
	w(uint16(1)) // PCM
	w(uint16(1)) // mono
	w(uint32(sampleRate))
	w(uint32(sampleRate * 2)) // byte rate
	w(uint16(2))              // block align
	w(uint16(16))             // bits per sample
	buf.WriteString("data")
	w(uint32(dataSize))
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}

// M4A builds an MP4 container holding only ftyp and a moov with a version 0
// mvhd, which is all a duration probe reads.
func M4A(timescale, duration uint32) []byte {
	var mvhd bytes.Buffer
	w := func(v any) { _ = binary.Write(&mvhd, binary.BigEndian, v) }
	w(uint32(0)) // version and flags
	w(uint32(0)) // creation time
	w(uint32(0)) // modification time
	w(timescale)
	w(duration)
	w(int32(0x00010000)) // rate 1.0
	w(int16(0x0100))     // volume 1.0
	w(int16(0))
	w([2]uint32{})
	w([9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000})
	w([6]int32{})
	w(uint32(2)) // next track id

	var out bytes.Buffer
	out.Write(box("ftyp", append([]byte("M4A \x00\x00\x00\x00"), []byte("M4A isom")...)))
	out.Write(box("moov", box("mvhd", mvhd.Bytes())))
	return out.Bytes()
}

func box(kind string, payload []byte) []byte {
	b := make([]byte, 8, 8+len(payload))
	binary.BigEndian.PutUint32(b, uint32(8+len(payload)))
	copy(b[4:], kind)
	return append(b, payload...)
}

// ADTS builds a raw AAC stream of frames, each carrying 1024 samples of
// silence at 44.1 kHz stereo.
func ADTS(frames int) []byte {
	const payload = 16
	const frameLen = 7 + payload
	var out bytes.Buffer
	for i := 0; i < frames; i++ {
		out.Write([]byte{
			0xFF,
			0xF1,                // MPEG-4, no CRC
			0x50,                // AAC LC, 44.1 kHz, channel config high bit 0
			0x80 | frameLen>>11, // stereo, frame length bits 12-11
			byte(frameLen >> 3 & 0xFF),
			byte(frameLen&0x7)<<5 | 0x1F,
			0xFC, // one raw data block
		})
		out.Write(make([]byte, payload))
	}
	return out.Bytes()
}
