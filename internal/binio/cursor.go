// Package binio reads fixed-width binary fields of either byte order from a stream.
package binio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrBackwardSeek is returned by SeekTo when the target lies behind the current
// position and the underlying stream cannot seek.
var ErrBackwardSeek = errors.New("binio: cannot seek backwards in stream")

// Cursor reads binary fields and tracks the absolute stream position.
//
// Reads that hit end-of-stream before the first byte of a field return io.EOF.
// Reads that hit it part-way through a field return io.ErrUnexpectedEOF.
type Cursor struct {
	src    io.Reader
	r      *bufio.Reader
	pos    int64
	buf    [8]byte
	seeker io.Seeker
}

// NewCursor returns a cursor at position 0 of r. When r also implements io.Seeker,
// SeekTo can move backwards.
func NewCursor(r io.Reader) *Cursor {
	c := &Cursor{src: r, r: bufio.NewReaderSize(r, 64*1024)}
	if s, ok := r.(io.Seeker); ok {
		c.seeker = s
	}
	return c
}

// Pos returns the number of bytes consumed so far.
func (c *Cursor) Pos() int64 { return c.pos }

func (c *Cursor) fill(n int) ([]byte, error) {
	b := c.buf[:n]
	read, err := io.ReadFull(c.r, b)
	c.pos += int64(read)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Int32BE reads a big-endian signed 32-bit integer.
func (c *Cursor) Int32BE() (int32, error) {
	b, err := c.fill(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// Int32LE reads a little-endian signed 32-bit integer.
func (c *Cursor) Int32LE() (int32, error) {
	b, err := c.fill(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// Float64LE reads a little-endian IEEE 754 double.
func (c *Cursor) Float64LE() (float64, error) {
	b, err := c.fill(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// Float64BE reads a big-endian IEEE 754 double.
func (c *Cursor) Float64BE() (float64, error) {
	b, err := c.fill(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// Bytes reads exactly n bytes into a new slice.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	read, err := io.ReadFull(c.r, b)
	c.pos += int64(read)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Skip discards n bytes. Skipping past end-of-stream returns io.ErrUnexpectedEOF,
// or io.EOF when no byte at all was left.
func (c *Cursor) Skip(n int64) error {
	if n < 0 {
		return fmt.Errorf("binio: negative skip %d", n)
	}
	if n == 0 {
		return nil
	}
	skipped, err := io.CopyN(io.Discard, c.r, n)
	c.pos += skipped
	if err == io.EOF && skipped > 0 {
		return io.ErrUnexpectedEOF
	}
	return err
}

// SeekTo moves to absolute position pos.
func (c *Cursor) SeekTo(pos int64) error {
	if pos >= c.pos {
		return c.Skip(pos - c.pos)
	}
	if c.seeker == nil {
		return fmt.Errorf("%w: at %d, want %d", ErrBackwardSeek, c.pos, pos)
	}
	if _, err := c.seeker.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	c.r.Reset(c.src)
	c.pos = pos
	return nil
}
