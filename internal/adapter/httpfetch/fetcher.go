// Package httpfetch downloads remote audio for offline playback.
package httpfetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/musicflow/musicflow/internal/domain"
	"github.com/musicflow/musicflow/internal/ports"
)

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes = 200 << 20

// Fetcher implements ports.Fetcher over net/http.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   zerolog.Logger
}

// NewFetcher creates a fetcher. A nil client uses one with the given timeout
// (no timeout when timeout <= 0). maxBytes <= 0 uses DefaultMaxBytes.
func NewFetcher(client *http.Client, timeout time.Duration, maxBytes int64, logger zerolog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{
		client:   client,
		maxBytes: maxBytes,
		logger:   logger.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch downloads url completely. onProgress (may be nil) is called after
// every chunk with the total from Content-Length, or -1 if the server sent none.
func (f *Fetcher) Fetch(ctx context.Context, url string, onProgress ports.ProgressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewNetworkError(url, 0, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError(url, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.NewNetworkError(url, resp.StatusCode, errors.Newf("unexpected status: %s", resp.Status))
	}

	total := resp.ContentLength
	if total > f.maxBytes {
		return nil, errors.Wrapf(domain.ErrFileTooLarge, "%d bytes", total)
	}

	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}

	reader := &progressReader{r: io.LimitReader(resp.Body, f.maxBytes+1), total: total, fn: onProgress}
	n, err := io.Copy(&buf, reader)
	if err != nil {
		return nil, domain.NewNetworkError(url, resp.StatusCode, errors.Wrap(err, "body read interrupted"))
	}
	if n > f.maxBytes {
		return nil, errors.Wrapf(domain.ErrFileTooLarge, "more than %d bytes", f.maxBytes)
	}
	if total >= 0 && n != total {
		return nil, domain.NewNetworkError(url, resp.StatusCode, errors.Newf("short body: got %d of %d bytes", n, total))
	}

	f.logger.Debug().Int64("bytes", n).Msg("download complete")
	return buf.Bytes(), nil
}

type progressReader struct {
	r        io.Reader
	received int64
	total    int64
	fn       ports.ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.received += int64(n)
		if p.fn != nil {
			p.fn(p.received, p.total)
		}
	}
	return n, err
}

// Verify that Fetcher implements the Fetcher interface
var _ ports.Fetcher = (*Fetcher)(nil)
