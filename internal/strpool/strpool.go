/*

Package strpool implements the append-only string pool replay rows
reference by byte offset.

It is the Go counterpart of original_source/stringtable.h: every stored
string is copied to the end of a growing buffer with a trailing NUL, and
the returned offset is what gets embedded in a row. There is no
deduplication and no reclamation on overwrite or removal — an accepted
space leak carried over from the reference implementation (see spec §4.2
and §9).

*/
package strpool

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// growSize is the fixed growth increment: capacity grows in 1 KiB steps,
// matching the reference.
const growSize = 1024

// Pool is an append-only byte buffer addressed by offset.
type Pool struct {
	buf []byte
}

// New creates an empty string pool.
func New() *Pool {
	return &Pool{buf: make([]byte, 0, growSize)}
}

// StoreString appends s with a trailing NUL and returns the offset at
// which it starts.
func (p *Pool) StoreString(s string) uint32 {
	offset := uint32(len(p.buf))

	needed := len(p.buf) + len(s) + 1
	if needed > cap(p.buf) {
		newCap := cap(p.buf)
		if newCap == 0 {
			newCap = growSize
		}
		for newCap < needed {
			newCap += growSize
		}
		grown := make([]byte, len(p.buf), newCap)
		copy(grown, p.buf)
		p.buf = grown
	}

	p.buf = append(p.buf, s...)
	p.buf = append(p.buf, 0)
	return offset
}

// GetString returns the NUL-terminated string starting at offset.
func (p *Pool) GetString(offset uint32) string {
	if int(offset) >= len(p.buf) {
		return ""
	}
	end := offset
	for end < uint32(len(p.buf)) && p.buf[end] != 0 {
		end++
	}
	return string(p.buf[offset:end])
}

// SerializeByteSize returns the serialized size: a 32-bit length prefix
// plus the raw buffer bytes.
func (p *Pool) SerializeByteSize() int {
	return 4 + len(p.buf)
}

// SerializeOut writes the pool into dest, which must be at least
// SerializeByteSize() bytes long.
func (p *Pool) SerializeOut(dest []byte) {
	binary.LittleEndian.PutUint32(dest[0:4], uint32(len(p.buf)))
	copy(dest[4:], p.buf)
}

// SerializeIn builds a Pool from data previously written by SerializeOut.
func SerializeIn(src []byte) (*Pool, error) {
	if len(src) < 4 {
		return nil, errors.New("strpool: truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(src[0:4])
	if int(4+n) > len(src) {
		return nil, errors.New("strpool: truncated buffer")
	}

	buf := make([]byte, n)
	copy(buf, src[4:4+n])
	return &Pool{buf: buf}, nil
}
