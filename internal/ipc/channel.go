package ipc

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

const (
	headerSize = 4
	// MaxFrameSize bounds a single payload; larger prefixes mean a corrupt stream.
	MaxFrameSize = 64 << 20
)

// Direction labels what an endpoint carries.
type Direction string

const (
	DirectionCommands Direction = "commands"
	DirectionResults  Direction = "results"
)

var (
	// ErrClosed is returned by Send after the channel was closed.
	ErrClosed = errors.New("ipc: channel closed")
	// ErrNotReadable and ErrNotWritable report a call on the wrong end of a pipe.
	ErrNotReadable = errors.New("ipc: channel is write-only")
	ErrNotWritable = errors.New("ipc: channel is read-only")
)

// FrameError reports a frame that could not be turned into a Message. The
// stream cannot be resynchronised and the channel must be closed.
type FrameError struct {
	Size uint32
	Err  error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("ipc: malformed frame (%d bytes): %v", e.Size, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// Channel reads or writes length-prefixed Messages over one byte stream.
type Channel struct {
	dir    Direction
	r      *bufio.Reader
	w      io.Writer
	closer io.Closer

	rmu    sync.Mutex
	header [headerSize]byte

	wmu    sync.Mutex
	closed atomic.Bool
}

// NewReader wraps the receiving end of a stream.
func NewReader(dir Direction, rc io.ReadCloser) *Channel {
	return &Channel{dir: dir, r: bufio.NewReader(rc), closer: rc}
}

// NewWriter wraps the sending end of a stream.
func NewWriter(dir Direction, wc io.WriteCloser) *Channel {
	return &Channel{dir: dir, w: wc, closer: wc}
}

func (c *Channel) Direction() Direction { return c.dir }

// Send writes one frame: a 4-byte little-endian length followed by the
// encoded payload. Short writes are retried until the frame is flushed or
// the stream fails.
func (c *Channel) Send(m Message) error {
	if c.w == nil {
		return ErrNotWritable
	}
	if c.closed.Load() {
		return ErrClosed
	}
	payload, err := Encode(m)
	if err != nil {
		return err
	}
	if len(payload) > MaxFrameSize {
		return &FrameError{Size: uint32(len(payload)), Err: errors.New("payload exceeds maximum frame size")}
	}
	frame := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[headerSize:], payload)

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := writeFull(c.w, frame); err != nil {
		if c.closed.Load() {
			return ErrClosed
		}
		return fmt.Errorf("ipc: send %s on %s: %w", m.Kind, c.dir, err)
	}
	return nil
}

// Receive blocks until one whole frame arrived. It returns io.EOF when the
// stream ended, was truncated mid-frame, or the channel was closed.
func (c *Channel) Receive() (Message, error) {
	if c.r == nil {
		return Message{}, ErrNotReadable
	}
	c.rmu.Lock()
	defer c.rmu.Unlock()

	if _, err := io.ReadFull(c.r, c.header[:]); err != nil {
		return Message{}, c.readErr(err)
	}
	size := binary.LittleEndian.Uint32(c.header[:])
	if size > MaxFrameSize {
		return Message{}, &FrameError{Size: size, Err: errors.New("frame exceeds maximum size")}
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return Message{}, c.readErr(err)
	}
	msg, err := Decode(payload)
	if err != nil {
		return Message{}, &FrameError{Size: size, Err: err}
	}
	return msg, nil
}

// Close releases the stream. A Receive blocked on it returns io.EOF.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *Channel) readErr(err error) error {
	switch {
	case c.closed.Load(),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, os.ErrClosed):
		return io.EOF
	}
	return fmt.Errorf("ipc: receive on %s: %w", c.dir, err)
}

func writeFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		b = b[n:]
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}
