package storage

import (
	"bytes"
	"errors"
	"io"
	"slices"
	"sync"
)

var errSinkDone = errors.New("sink already committed or aborted")

// providerInfo holds the identity shared by all providers of this package.
type providerInfo struct {
	name     string
	schemes  []string
	priority int
}

// Name returns the provider name.
func (p *providerInfo) Name() string {
	return p.name
}

// Schemes returns the URL schemes handled by the provider.
func (p *providerInfo) Schemes() []string {
	return slices.Clone(p.schemes)
}

// Priority returns the declared priority, zero when none was set.
func (p *providerInfo) Priority() int {
	return p.priority
}

// SetPriority declares the priority the provider is admitted with.
func (p *providerInfo) SetPriority(priority int) {
	p.priority = priority
}

// SetName overrides the provider name.
func (p *providerInfo) SetName(name string) {
	p.name = name
}

// pipeSink streams written bytes into an upload running in its own goroutine.
type pipeSink struct {
	pw   *io.PipeWriter
	done chan struct{}
	url  string
	err  error
}

// newPipeSink starts upload reading from the sink. upload returns the URL of
// the stored content once its reader is exhausted.
func newPipeSink(upload func(r io.Reader) (string, error)) *pipeSink {
	pr, pw := io.Pipe()
	s := &pipeSink{pw: pw, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		s.url, s.err = upload(pr)
		if s.err != nil {
			pr.CloseWithError(s.err)
		} else {
			pr.Close()
		}
	}()

	return s
}

func (s *pipeSink) Write(p []byte) (int, error) {
	return s.pw.Write(p)
}

func (s *pipeSink) Commit() (string, error) {
	s.pw.Close()
	<-s.done
	return s.url, s.err
}

func (s *pipeSink) Abort(err error) {
	s.pw.CloseWithError(err)
	<-s.done
}

// bufferSink collects written bytes and stores them in one call on commit.
type bufferSink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	done   bool
	commit func(data []byte) (string, error)
}

func newBufferSink(commit func(data []byte) (string, error)) *bufferSink {
	return &bufferSink{commit: commit}
}

func (s *bufferSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return 0, errSinkDone
	}
	return s.buf.Write(p)
}

func (s *bufferSink) Commit() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return "", errSinkDone
	}
	s.done = true
	return s.commit(s.buf.Bytes())
}

func (s *bufferSink) Abort(error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.buf.Reset()
}
