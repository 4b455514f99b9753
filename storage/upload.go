package storage

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"log/slog"
	"sync"
	"time"

	"github.com/danielkbx/multi-storage/interfaces"
	"go.uber.org/atomic"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
)

var (
	errUploadClosed  = errors.New("upload already closed")
	errUploadAborted = errors.New("upload aborted")
)

type sinkState int

const (
	sinkPending sinkState = iota
	sinkSucceeded
	sinkFailed
)

func (s sinkState) String() string {
	switch s {
	case sinkPending:
		return "pending"
	case sinkSucceeded:
		return "succeeded"
	case sinkFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// sinkHandle tracks the sink of one provider during an upload. Only the
// goroutine draining chunks moves it out of the pending state.
type sinkHandle struct {
	entry  ProviderEntry
	sink   interfaces.Sink
	chunks chan []byte
	failed atomic.Bool

	state   sinkState
	url     string
	err     error
	written int64
}

// Upload is a streamed write fanned out to every provider. Bytes written to it
// are mirrored to one sink per provider. Close ends the input; Wait returns the
// outcome once every sink has succeeded or failed.
type Upload struct {
	owner   *MultiStorage
	opts    interfaces.WriteOptions
	handles []*sinkHandle
	start   time.Time
	ctx     context.Context
	cancel  context.CancelFunc

	writeMu sync.Mutex
	closed  bool
	bytes   atomic.Int64
	abort   atomic.Error

	hashMu sync.Mutex
	hash   hash.Hash

	stateMu sync.Mutex
	pending int

	done   chan struct{}
	result *interfaces.WriteResult
	err    error
}

// PostStream opens a sink on every provider and returns the upload feeding them.
//
// If any provider fails to open a sink the call fails with ErrSinkCreationFailed
// as soon as that failure is known, without waiting for slower providers. Sinks
// opened on other providers, including those opened after the failure, are
// aborted in the background.
func (m *MultiStorage) PostStream(ctx context.Context, opts interfaces.WriteOptions) (*Upload, error) {
	start := time.Now()
	opts = NormalizeOptions(opts)

	entries := m.Providers()
	if len(entries) == 0 {
		return nil, interfaces.ErrNoProviders
	}

	// sinkCtx lives until the upload settles; it is cancelled early when
	// creation fails so that slower providers stop opening sinks.
	sinkCtx, cancel := context.WithCancel(ctx)
	sinks := make([]interfaces.Sink, len(entries))
	firstErr := make(chan error, 1)

	var g errgroup.Group
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			sink, err := entry.Provider.PostStream(sinkCtx, opts)
			if err == nil && sink == nil {
				err = errNilSink
			}
			if err != nil {
				cancel()
				err = fmt.Errorf("%w: %w", interfaces.ErrSinkCreationFailed, m.providerFailure(entry, "post_stream", err))
				select {
				case firstErr <- err:
				default:
				}
				return err
			}
			sinks[i] = sink
			return nil
		})
	}

	created := make(chan error, 1)
	go func() {
		created <- g.Wait()
	}()

	var err error
	select {
	case err = <-created:
	case err = <-firstErr:
	}

	if err != nil {
		cancel()
		m.log.Error("Failed to open upload", "err", err)
		m.metrics.WriteSettled("post_stream", start, err)
		go func() {
			<-created
			m.abortSinks(entries, sinks, err)
		}()
		return nil, err
	}

	u := &Upload{
		owner:   m,
		opts:    opts,
		handles: make([]*sinkHandle, len(entries)),
		start:   start,
		ctx:     sinkCtx,
		cancel:  cancel,
		hash:    mustBlake2b(),
		pending: len(entries),
		done:    make(chan struct{}),
	}
	for i, entry := range entries {
		u.handles[i] = &sinkHandle{
			entry:  entry,
			sink:   sinks[i],
			chunks: make(chan []byte, m.queueSize),
		}
	}
	for _, h := range u.handles {
		go u.drain(h)
	}

	m.log.Debug("Opened upload",
		slog.String("name", opts.Name),
		slog.String("path", opts.Path),
		slog.Int("providers", len(entries)))

	return u, nil
}

// abortSinks aborts the sinks opened by a failed creation phase. It must only
// run after every provider returned from PostStream.
func (m *MultiStorage) abortSinks(entries []ProviderEntry, sinks []interfaces.Sink, err error) {
	for i, sink := range sinks {
		if sink == nil {
			continue
		}
		sink.Abort(err)
		m.log.Debug("Aborted abandoned sink", slog.String("provider", entries[i].Name()))
	}
}

// Options returns the normalized write options of the upload.
func (u *Upload) Options() interfaces.WriteOptions {
	return u.opts
}

// Write mirrors p to every provider that has not failed yet. Once every
// provider has failed, Write returns the aggregate error.
func (u *Upload) Write(p []byte) (int, error) {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()

	if u.closed {
		return 0, errUploadClosed
	}
	if err := u.settledErr(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	chunk := bytes.Clone(p)
	u.hashMu.Lock()
	u.hash.Write(chunk)
	u.hashMu.Unlock()
	u.bytes.Add(int64(len(chunk)))

	for _, h := range u.handles {
		if h.failed.Load() {
			continue
		}
		h.chunks <- chunk
	}
	return len(p), nil
}

// Close ends the input. Providers commit their writes in the background; use
// Wait for the outcome.
func (u *Upload) Close() error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()

	if u.closed {
		return nil
	}
	u.closed = true

	for _, h := range u.handles {
		close(h.chunks)
	}

	u.owner.log.Debug("Upload input ended",
		slog.String("name", u.opts.Name),
		slog.Int64("bytes", u.bytes.Load()))
	return nil
}

// Abort discards the upload on every provider that has not settled yet.
func (u *Upload) Abort(err error) {
	if err == nil {
		err = errUploadAborted
	}
	u.abort.Store(err)
	_ = u.Close()
}

// Bytes returns the number of bytes written to the upload so far.
func (u *Upload) Bytes() int64 {
	return u.bytes.Load()
}

// Done is closed once every provider has settled.
func (u *Upload) Done() <-chan struct{} {
	return u.done
}

// Wait blocks until every provider has settled and returns the outcome, in the
// same form as Post.
func (u *Upload) Wait(ctx context.Context) (*interfaces.WriteResult, error) {
	select {
	case <-u.done:
		return u.result, u.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (u *Upload) settledErr() error {
	select {
	case <-u.done:
		return u.err
	default:
		return nil
	}
}

// drain feeds the chunks of the upload into one sink and commits it at the end of input.
func (u *Upload) drain(h *sinkHandle) {
	for chunk := range h.chunks {
		if h.failed.Load() {
			continue
		}
		if err := u.abort.Load(); err != nil {
			u.fail(h, err)
			continue
		}
		if _, err := h.sink.Write(chunk); err != nil {
			u.fail(h, err)
			continue
		}
		h.written += int64(len(chunk))
	}

	if h.failed.Load() {
		return
	}
	if err := u.abort.Load(); err != nil {
		u.fail(h, err)
		return
	}

	url, err := h.sink.Commit()
	if err == nil {
		err = checkURL(url)
	}
	if err != nil {
		u.transition(h, "", u.owner.providerFailure(h.entry, "post_stream", err))
		return
	}

	u.owner.metrics.BytesWritten(h.entry.Name(), h.written)
	u.transition(h, url, nil)
}

func (u *Upload) fail(h *sinkHandle, err error) {
	h.failed.Store(true)
	h.sink.Abort(err)
	u.transition(h, "", u.owner.providerFailure(h.entry, "post_stream", err))
}

// transition moves h to its terminal state and settles the upload when no
// sink is pending anymore.
func (u *Upload) transition(h *sinkHandle, url string, err error) {
	u.stateMu.Lock()
	if h.state != sinkPending {
		u.stateMu.Unlock()
		return
	}
	if err != nil {
		h.state, h.err = sinkFailed, err
	} else {
		h.state, h.url = sinkSucceeded, url
	}
	u.pending--
	last := u.pending == 0
	u.stateMu.Unlock()

	u.owner.log.Debug("Sink settled",
		slog.String("provider", h.entry.Name()),
		slog.String("state", h.state.String()))

	if last {
		u.finish()
	}
}

func (u *Upload) finish() {
	entries := make([]ProviderEntry, len(u.handles))
	urls := make([]string, len(u.handles))
	errs := make([]error, len(u.handles))
	for i, h := range u.handles {
		entries[i], urls[i], errs[i] = h.entry, h.url, h.err
	}

	// The digest is only final once the input ended; an upload settling
	// earlier has failed on every provider and reports no digest.
	u.hashMu.Lock()
	digest := hex.EncodeToString(u.hash.Sum(nil))
	u.hashMu.Unlock()

	u.result, u.err = u.owner.settle(u.ctx, entries, urls, errs, u.bytes.Load(), digest)
	u.owner.metrics.WriteSettled("post_stream", u.start, u.err)
	u.cancel()
	close(u.done)
}

func mustBlake2b() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	return h
}
