package ports

import (
	"context"
	"io"
)

// FileHandle is a user-supplied audio file offered for upload.
type FileHandle interface {
	// Name is the file name including its extension.
	Name() string

	// MIMEType is the declared content type (may be empty).
	MIMEType() string

	// Size is the file size in bytes.
	Size() int64

	// Open returns a reader over the file contents.
	Open() (io.ReadCloser, error)
}

// MediaInfo is the metadata a probe could extract from an audio payload.
// Zero values mean "unknown".
type MediaInfo struct {
	Duration float64
	Title    string
	Artist   string
	Album    string
}

// MediaProbe extracts duration and tags from an audio payload.
type MediaProbe interface {
	// Probe inspects data. name and mimeType are format hints for payloads
	// whose content does not identify the format.
	Probe(ctx context.Context, name, mimeType string, data []byte) (MediaInfo, error)
}

// ProgressFunc receives the number of bytes received so far and the total
// size, or total < 0 when the size is unknown.
type ProgressFunc func(received, total int64)

// Fetcher retrieves a remote audio payload.
type Fetcher interface {
	// Fetch downloads url completely. Partial bodies are never returned.
	Fetch(ctx context.Context, url string, onProgress ProgressFunc) ([]byte, error)
}
