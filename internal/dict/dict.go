/*

Package dict implements the insertion-ordered string-to-small-integer
dictionary used to pack categorical replay metadata (modes, sources,
results) into a few bits per row.

It is the Go counterpart of original_source/namedbitfield.h: an
append-only list of distinct names plus a reverse lookup map, with a
fixed capacity so the caller's bit width is never exceeded.

*/
package dict

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
)

// ErrFull is returned by GetBits when inserting a new, previously unseen
// name would exceed the dictionary's capacity.
var ErrFull = errors.New("dict: dictionary is full")

// fold is the case-folding transform applied to every name before it is
// inserted or looked up, so "Win", "WIN" and "win" collapse to a single
// entry. golang.org/x/text is already part of this module's stack for text
// normalization (the teacher pulls it in to decode Korean replay titles);
// this is the same concern applied to categorical names instead of titles.
var fold = cases.Fold()

// Dictionary maps distinct strings to small integer indexes in insertion
// order, bounded by a fixed capacity (the number of bits the caller packs
// the index into).
type Dictionary struct {
	capacity uint32
	names    []string
	index    map[string]uint32
}

// New creates a Dictionary that can hold at most capacity distinct names.
func New(capacity uint32) *Dictionary {
	return &Dictionary{
		capacity: capacity,
		index:    make(map[string]uint32),
	}
}

// GetBits returns the index of name, inserting it if it has not been seen
// before. It returns ErrFull if name is new and the dictionary is already
// at capacity.
func (d *Dictionary) GetBits(name string) (uint32, error) {
	n := fold.String(name)

	if i, ok := d.index[n]; ok {
		return i, nil
	}

	if uint32(len(d.names)) >= d.capacity {
		return 0, ErrFull
	}

	i := uint32(len(d.names))
	d.names = append(d.names, n)
	d.index[n] = i
	return i, nil
}

// GetName returns the name stored at the given index. It panics if bits is
// out of range, mirroring the reference implementation's unchecked vector
// access (bits always comes from a row written by this same dictionary).
func (d *Dictionary) GetName(bits uint32) string {
	return d.names[bits]
}

// Len returns the number of distinct names currently stored.
func (d *Dictionary) Len() int {
	return len(d.names)
}

// GetSearchBitField builds a 32-bit mask whose bit k is set iff the name
// with dictionary index k is present in names. Unknown names are inserted
// (matching no stored row, since no row can carry an index that didn't
// exist until now), per spec: callers may pass names that aren't present
// yet. Indexes of 32 or more cannot be represented in the mask and
// are silently excluded, mirroring the 32-bit mask bound in the original
// implementation.
func (d *Dictionary) GetSearchBitField(names []string) uint32 {
	var mask uint32
	for _, name := range names {
		i, err := d.GetBits(name)
		if err != nil {
			// Dictionary is full: an unrepresentable filter name matches
			// nothing, which is the same outcome as an unknown name.
			continue
		}
		mask |= uint32(1) << i
	}
	return mask
}

// NameMatchesSearchBitField reports whether dictionary index v is set in
// the given search bit field mask.
func NameMatchesSearchBitField(mask uint32, v uint32) bool {
	return mask&(uint32(1)<<v) != 0
}

// byteSize returns the serialized size of the dictionary before 8-byte
// alignment: a 32-bit count, (offset,length) uint32 pairs per name, and
// the NUL-terminated name bytes.
func (d *Dictionary) byteSize() int {
	sz := 4 + 8*len(d.names)
	for _, n := range d.names {
		sz += len(n) + 1
	}
	return sz
}

// SerializeByteSize returns the 8-byte-aligned serialized size of the
// dictionary, per spec §4.1.
func (d *Dictionary) SerializeByteSize() int {
	return align8(d.byteSize())
}

// SerializeOut writes the dictionary into dest, which must be at least
// SerializeByteSize() bytes long. Trailing alignment padding is left
// zeroed.
func (d *Dictionary) SerializeOut(dest []byte) {
	binary.LittleEndian.PutUint32(dest[0:4], uint32(len(d.names)))

	pos := uint32(4 + 8*len(d.names))
	off := 4
	for _, n := range d.names {
		length := uint32(len(n) + 1)
		binary.LittleEndian.PutUint32(dest[off:off+4], pos)
		binary.LittleEndian.PutUint32(dest[off+4:off+8], length)
		off += 8
		pos += length
	}

	// Second pass: write the NUL-terminated name bytes at the positions
	// just recorded above.
	pos = uint32(4 + 8*len(d.names))
	for _, n := range d.names {
		copy(dest[pos:], n)
		dest[pos+uint32(len(n))] = 0
		pos += uint32(len(n) + 1)
	}
}

// SerializeIn builds a new Dictionary from the data previously written by
// SerializeOut, reading from the start of src.
func SerializeIn(src []byte) (*Dictionary, error) {
	if len(src) < 4 {
		return nil, errors.New("dict: truncated dictionary header")
	}
	count := binary.LittleEndian.Uint32(src[0:4])

	d := &Dictionary{
		capacity: count,
		names:    make([]string, 0, count),
		index:    make(map[string]uint32, count),
	}

	off := 4
	for i := uint32(0); i < count; i++ {
		if off+8 > len(src) {
			return nil, errors.New("dict: truncated dictionary offset table")
		}
		pos := binary.LittleEndian.Uint32(src[off : off+4])
		length := binary.LittleEndian.Uint32(src[off+4 : off+8])
		off += 8

		if int(pos+length) > len(src) || length == 0 {
			return nil, errors.New("dict: corrupt dictionary string bounds")
		}
		raw := src[pos : pos+length-1] // exclude the trailing NUL
		name := string(raw)

		d.names = append(d.names, name)
		d.index[name] = i
	}

	// The dictionary may grow further after a Load (e.g. a new mode seen
	// later), so capacity must stay at least the domain's true bit width;
	// the caller (replaydb package) re-wraps with the correct capacity
	// immediately after SerializeIn.
	if d.capacity < count {
		d.capacity = count
	}

	return d, nil
}

// WithCapacity returns d with its capacity reset to capacity. Used after
// SerializeIn, which doesn't know the domain's true bit-width bound.
func (d *Dictionary) WithCapacity(capacity uint32) *Dictionary {
	d.capacity = capacity
	return d
}

func align8(n int) int {
	return (n + 7) &^ 7
}
