package media

import (
	"bytes"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/musicflow/musicflow/internal/ports"
)

// audioTypes covers the upload formats, which the platform MIME table may not know.
var audioTypes = map[string]string{
	".mp3": "audio/mpeg",
	".wav": "audio/wav",
	".ogg": "audio/ogg",
	".aac": "audio/aac",
	".m4a": "audio/m4a",
}

// TypeByExtension returns the MIME type for a file name's extension.
func TypeByExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	return mime.TypeByExtension(ext)
}

// LocalFile is a ports.FileHandle over a file on disk.
type LocalFile struct {
	path     string
	mimeType string
	size     int64
}

// OpenLocalFile stats path and returns a handle for it. The MIME type is
// guessed from the extension.
func OpenLocalFile(path string) (*LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %s", path)
	}
	if info.IsDir() {
		return nil, errors.Newf("%s is a directory", path)
	}
	return &LocalFile{
		path:     path,
		mimeType: TypeByExtension(path),
		size:     info.Size(),
	}, nil
}

func (f *LocalFile) Name() string     { return filepath.Base(f.path) }
func (f *LocalFile) MIMEType() string { return f.mimeType }
func (f *LocalFile) Size() int64      { return f.size }

// Open opens the file for reading.
func (f *LocalFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// MemoryFile is a ports.FileHandle over bytes already in memory.
type MemoryFile struct {
	name     string
	mimeType string
	data     []byte
}

// NewMemoryFile creates a handle over data.
func NewMemoryFile(name, mimeType string, data []byte) *MemoryFile {
	return &MemoryFile{name: name, mimeType: mimeType, data: data}
}

func (f *MemoryFile) Name() string     { return f.name }
func (f *MemoryFile) MIMEType() string { return f.mimeType }
func (f *MemoryFile) Size() int64      { return int64(len(f.data)) }

// Open returns a reader over the bytes.
func (f *MemoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

var (
	_ ports.FileHandle = (*LocalFile)(nil)
	_ ports.FileHandle = (*MemoryFile)(nil)
)
