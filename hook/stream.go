package hook

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"

	"github.com/coro-oss/fiberhook/reactor"
)

// Stream is a convenience byte-stream wrapper over a hooked socket fd,
// adapted from the teacher package's AsyncStream. Unlike AsyncStream,
// Stream's read loop needs no manual EAGAIN/WaitForReady dance: hook.Read
// already cooperatively suspends inside doIO until data is available, so
// Stream only has to own the buffering and line/chunk-splitting logic on
// top.
type Stream struct {
	fd int

	buffer []byte

	writeLock reactor.Mutex
}

// NewStream wraps fd (already registered via Socket/Accept) as a Stream.
func NewStream(fd int) *Stream {
	return &Stream{fd: fd}
}

// Close closes the underlying descriptor.
func (s *Stream) Close(ctx context.Context) error {
	return Close(ctx, s.fd)
}

func (s *Stream) read(ctx context.Context, maxBytes int) (n int, err error) {
	if len(s.buffer) >= maxBytes {
		return maxBytes, nil
	}
	if cap(s.buffer) < maxBytes {
		s.buffer = slices.Grow(s.buffer, maxBytes)
	}

	readN, err := Read(ctx, s.fd, s.buffer[len(s.buffer):maxBytes])
	if readN > 0 {
		s.buffer = s.buffer[:len(s.buffer)+readN]
	}
	if readN == 0 && err == nil {
		err = io.EOF
	}
	return len(s.buffer), err
}

// Write writes data to the stream, serialized against any other
// concurrent Write via a [reactor.Mutex] so two fibers writing to the
// same stream never interleave their chunks.
func (s *Stream) Write(ctx context.Context, data []byte) reactor.Awaitable[int] {
	return reactor.Spawn(ctx, func(ctx context.Context) (int, error) {
		if err := s.writeLock.Lock(ctx); err != nil {
			return 0, err
		}
		defer s.writeLock.Unlock()

		var written int
		for len(data) > 0 {
			n, err := Write(ctx, s.fd, data)
			if n > 0 {
				written += n
				data = data[n:]
			}
			if err != nil {
				return written, err
			}
		}
		return written, nil
	})
}

func (s *Stream) consumeInto(buf []byte) (n int) {
	n = copy(buf, s.buffer)
	copy(s.buffer, s.buffer[n:])
	s.buffer = s.buffer[:len(s.buffer)-n]
	return n
}

func (s *Stream) consume(maxBytes int) []byte {
	buf := make([]byte, min(maxBytes, len(s.buffer)))
	n := s.consumeInto(buf)
	return buf[:n]
}

func (s *Stream) consumeAll() []byte {
	buf := slices.Clone(s.buffer)
	s.buffer = s.buffer[:0]
	return buf
}

// Chunks iterates over the stream in fixed-size chunks.
func (s *Stream) Chunks(ctx context.Context, chunkSize int) reactor.AsyncIterable[[]byte] {
	return reactor.AsyncIter(func(yield func([]byte) error) error {
		for {
			var err error
			for len(s.buffer) < chunkSize && err == nil {
				_, err = s.read(ctx, chunkSize)
			}
			if len(s.buffer) > 0 {
				if yieldErr := yield(s.consume(chunkSize)); yieldErr != nil {
					return yieldErr
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			} else if err != nil {
				return err
			}
		}
	})
}

func (s *Stream) yieldLines(yield func([]byte) error, data []byte) error {
	start := 0
	for i, b := range data {
		if b == '\n' || i == len(data)-1 {
			if err := yield(data[start : i+1]); err != nil {
				return err
			}
			start = i + 1
		}
	}
	return nil
}

// Lines iterates over the stream's newline-delimited lines, newline
// included.
func (s *Stream) Lines(ctx context.Context) reactor.AsyncIterable[[]byte] {
	return reactor.AsyncIter(func(yield func([]byte) error) error {
		bufSize := 1024
		scanned := 0
		for {
			_, err := s.read(ctx, bufSize)
			if errors.Is(err, io.EOF) {
				return s.yieldLines(yield, s.consumeAll())
			} else if err != nil {
				return err
			}

			for i := len(s.buffer) - 1; i >= scanned; i-- {
				if s.buffer[i] == '\n' {
					if err := s.yieldLines(yield, s.consume(i+1)); err != nil {
						return err
					}
					break
				}
			}
			scanned = len(s.buffer)
			if len(s.buffer) >= bufSize {
				bufSize *= 2
			}
		}
	})
}

// ReadLine reads up to and including the next newline.
func (s *Stream) ReadLine(ctx context.Context) ([]byte, error) {
	return s.ReadUntil(ctx, '\n')
}

// ReadUntil reads up to and including the next occurrence of character.
func (s *Stream) ReadUntil(ctx context.Context, character byte) ([]byte, error) {
	for i, b := range s.buffer {
		if b == character {
			return s.consume(i + 1), nil
		}
	}

	bufSize := 1024
	for {
		n, err := s.read(ctx, bufSize)
		for i := len(s.buffer) - n; i < len(s.buffer); i++ {
			if s.buffer[i] == character {
				return s.consume(i + 1), nil
			}
		}
		if errors.Is(err, io.EOF) && len(s.buffer) > 0 {
			return s.consumeAll(), nil
		} else if err != nil {
			return nil, err
		}
		if len(s.buffer) >= bufSize {
			bufSize *= 2
		}
	}
}

// ReadAll reads until the stream's end and returns everything read.
func (s *Stream) ReadAll(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	for chunk := range s.Chunks(ctx, 1024).UntilErr(&err) {
		buf.Write(chunk)
	}
	return buf.Bytes(), err
}
