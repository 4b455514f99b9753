package storage

import (
	"errors"
	"io"
	"log/slog"

	"go.uber.org/atomic"
)

// ReadStream is the content stream of one URL. It counts the bytes read from the provider.
type ReadStream struct {
	rc    io.ReadCloser
	owner *MultiStorage
	entry ProviderEntry
	url   string

	bytes atomic.Int64
	ended atomic.Bool
}

func newReadStream(owner *MultiStorage, entry ProviderEntry, url string, rc io.ReadCloser) *ReadStream {
	return &ReadStream{
		rc:    rc,
		owner: owner,
		entry: entry,
		url:   url,
	}
}

func (s *ReadStream) Read(p []byte) (int, error) {
	n, err := s.rc.Read(p)
	s.bytes.Add(int64(n))

	switch {
	case errors.Is(err, io.EOF):
		if !s.ended.Swap(true) {
			total := s.bytes.Load()
			s.owner.metrics.BytesRead(s.entry.Name(), total)
			s.owner.log.Debug("Finished reading content",
				slog.String("provider", s.entry.Name()),
				slog.String("url", s.url),
				slog.Int64("bytes", total))
		}
	case err != nil:
		return n, s.owner.providerFailure(s.entry, "get_stream", err)
	}

	return n, err
}

func (s *ReadStream) Close() error {
	return s.rc.Close()
}

// Bytes returns the number of bytes read so far.
func (s *ReadStream) Bytes() int64 {
	return s.bytes.Load()
}

// PipeTo copies the whole stream into dst and closes the stream. It returns the
// number of bytes copied, or the first error of either side.
func (s *ReadStream) PipeTo(dst io.Writer) (int64, error) {
	n, err := io.Copy(dst, s)
	closeErr := s.Close()
	if err != nil {
		return n, err
	}
	return n, closeErr
}
