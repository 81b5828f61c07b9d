/*
Copyright 2018 The go4 Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bmff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTruncated is returned when a read runs past the end of the source.
var ErrTruncated = errors.New("bmff: truncated file")

// Cursor provides sequential and random access over a bounded io.ReaderAt.
// All multi-byte integer reads are big-endian, per ISO/IEC 14496-12.
type Cursor struct {
	ra   io.ReaderAt
	pos  int64
	size int64
	mark int64
}

// NewCursor returns a cursor over the first size bytes of ra.
func NewCursor(ra io.ReaderAt, size int64) *Cursor {
	return &Cursor{ra: ra, size: size}
}

// NewBytesCursor returns a cursor over an in-memory buffer.
func NewBytesCursor(b []byte) *Cursor {
	return &Cursor{ra: bytes.NewReader(b), size: int64(len(b))}
}

// Pos returns the current absolute offset.
func (c *Cursor) Pos() int64 { return c.pos }

// Size returns the total size of the underlying source.
func (c *Cursor) Size() int64 { return c.size }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int64 { return c.size - c.pos }

// SeekTo moves the cursor to an absolute offset.
func (c *Cursor) SeekTo(off int64) error {
	if off < 0 || off > c.size {
		return fmt.Errorf("seek to %d outside [0,%d]: %w", off, c.size, ErrTruncated)
	}
	c.pos = off
	return nil
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int64) error {
	return c.SeekTo(c.pos + n)
}

// Mark records the current position for a later Reset.
func (c *Cursor) Mark() { c.mark = c.pos }

// Reset returns the cursor to the last marked position.
func (c *Cursor) Reset() { c.pos = c.mark }

// ReadFull reads exactly n bytes and advances the cursor.
func (c *Cursor) ReadFull(n int) ([]byte, error) {
	buf, err := c.Peek(n)
	if err != nil {
		return nil, err
	}
	c.pos += int64(n)
	return buf, nil
}

// Peek reads n bytes without advancing the cursor.
func (c *Cursor) Peek(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("bmff: negative read size %d", n)
	}
	if c.pos+int64(n) > c.size {
		return nil, fmt.Errorf("read of %d bytes at %d exceeds size %d: %w", n, c.pos, c.size, ErrTruncated)
	}
	buf := make([]byte, n)
	if _, err := c.ra.ReadAt(buf, c.pos); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrTruncated)
	}
	return buf, nil
}

func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.ReadFull(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) Uint16() (uint16, error) {
	b, err := c.ReadFull(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.ReadFull(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *Cursor) Uint64() (uint64, error) {
	b, err := c.ReadFull(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// UintN reads a big-endian unsigned integer of 0, 1, 2, 4 or 8 bytes, as
// used by the nibble-coded field widths of the iloc box. Width 0 reads
// nothing and yields 0.
func (c *Cursor) UintN(width int) (uint64, error) {
	switch width {
	case 0:
		return 0, nil
	case 1:
		v, err := c.Uint8()
		return uint64(v), err
	case 2:
		v, err := c.Uint16()
		return uint64(v), err
	case 4:
		v, err := c.Uint32()
		return uint64(v), err
	case 8:
		return c.Uint64()
	default:
		return 0, fmt.Errorf("bmff: invalid integer width %d", width)
	}
}

// CString reads a NUL-terminated string, not scanning past limit.
func (c *Cursor) CString(limit int64) (string, error) {
	if limit > c.Remaining() {
		limit = c.Remaining()
	}
	buf, err := c.Peek(int(limit))
	if err != nil {
		return "", err
	}
	i := bytes.IndexByte(buf, 0)
	if i < 0 {
		return "", fmt.Errorf("bmff: unterminated string at %d", c.pos)
	}
	c.pos += int64(i) + 1
	return string(buf[:i]), nil
}
