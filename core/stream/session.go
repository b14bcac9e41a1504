package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

const (
	// DefaultChunkSize is the size of each disk read.
	DefaultChunkSize = 256 * 1024
	// DefaultQueueDepth is how many chunks may be read ahead of the consumer.
	DefaultQueueDepth = 2
)

// ErrStreamIO marks a filesystem failure after the transfer started.
var ErrStreamIO = errors.New("stream read failed")

// Source is an open file the session reads from.
type Source interface {
	io.ReaderAt
	io.Closer
}

// Opener opens path for reading.
type Opener func(path string) (Source, error)

func openFile(path string) (Source, error) {
	return os.Open(path)
}

// Options tunes a Session. Zero values select the defaults.
type Options struct {
	ChunkSize  int
	QueueDepth int
	Open       Opener
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = DefaultQueueDepth
	}
	if o.Open == nil {
		o.Open = openFile
	}
	return o
}

var openFiles atomic.Int64

// OpenFiles reports how many sources are currently held open by sessions.
func OpenFiles() int64 {
	return openFiles.Load()
}

// Session streams one byte range of one file, exactly once and in order.
//
// A producer goroutine reads chunks into a fixed pool of QueueDepth buffers.
// It can only read when the consumer has handed a buffer back, so a consumer
// that stops pulling stalls the disk reads and memory stays at
// QueueDepth*ChunkSize no matter how large the range is. The source is closed
// when the range is exhausted, a read fails, the context ends or Close is called.
type Session struct {
	rng ByteRange

	ready chan []byte // filled chunks, in offset order
	free  chan []byte // buffers the producer may fill next
	held  []byte      // chunk last returned by Next

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{} // closed once the source is closed
	err    error         // written by the producer before ready is closed

	closeOnce sync.Once
	delivered int64
}

// Open opens path and starts producing rng. Cancelling ctx has the same
// effect as Close.
func Open(ctx context.Context, path string, rng ByteRange, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	src, err := opts.Open(path)
	if err != nil {
		return nil, err
	}
	openFiles.Add(1)

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		rng:    rng,
		ready:  make(chan []byte, opts.QueueDepth),
		free:   make(chan []byte, opts.QueueDepth),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	bufSize := int64(opts.ChunkSize)
	if n := rng.Len(); n < bufSize {
		bufSize = max(n, 1)
	}
	for i := 0; i < opts.QueueDepth; i++ {
		s.free <- make([]byte, bufSize)
	}

	go s.produce(src)
	return s, nil
}

func (s *Session) produce(src Source) {
	defer func() {
		src.Close()
		openFiles.Add(-1)
		close(s.done)
		close(s.ready)
	}()

	off := s.rng.Start
	for off <= s.rng.End {
		var buf []byte
		select {
		case <-s.ctx.Done():
			return
		case buf = <-s.free:
		}

		want := min(int64(len(buf)), s.rng.End-off+1)
		n, err := src.ReadAt(buf[:want], off)
		if int64(n) < want {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			s.err = fmt.Errorf("%w: offset %d: %v", ErrStreamIO, off+int64(n), err)
			return
		}

		select {
		case <-s.ctx.Done():
			return
		case s.ready <- buf[:n]:
		}
		off += int64(n)
	}
}

// Range returns the interval being streamed.
func (s *Session) Range() ByteRange {
	return s.rng
}

// Next returns the next chunk. The slice is only valid until the following
// call to Next; handing it back is what lets the producer read further.
// At the end of the range Next returns io.EOF.
func (s *Session) Next() ([]byte, error) {
	if s.held != nil {
		s.free <- s.held[:cap(s.held)]
		s.held = nil
	}

	select {
	case chunk, ok := <-s.ready:
		if !ok {
			return nil, s.finalErr()
		}
		s.held = chunk
		s.delivered += int64(len(chunk))
		return chunk, nil
	case <-s.ctx.Done():
		// Prefer data that is already queued over reporting cancellation.
		select {
		case chunk, ok := <-s.ready:
			if ok {
				s.held = chunk
				s.delivered += int64(len(chunk))
				return chunk, nil
			}
		default:
		}
		return nil, s.ctx.Err()
	}
}

func (s *Session) finalErr() error {
	<-s.done
	if s.err != nil {
		return s.err
	}
	if s.delivered != s.rng.Len() {
		if err := s.ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: delivered %d of %d bytes", ErrStreamIO, s.delivered, s.rng.Len())
	}
	return io.EOF
}

// WriteTo copies the rest of the range to w. A failed write (the client went
// away) closes the session before returning.
func (s *Session) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for {
		chunk, err := s.Next()
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			s.Close()
			return written, err
		}
		n, werr := w.Write(chunk)
		written += int64(n)
		if werr != nil {
			s.Close()
			return written, werr
		}
	}
}

// Delivered returns how many bytes have been handed to the consumer.
func (s *Session) Delivered() int64 {
	return s.delivered
}

// Close stops the producer and waits until the source is closed. It is safe to
// call more than once and from any state.
func (s *Session) Close() error {
	s.closeOnce.Do(s.cancel)
	<-s.done
	return nil
}
