package replaydb

import (
	"encoding/binary"

	"github.com/icza/replaydb/internal/dictspec"
)

// idSize is the fixed byte width of a replay id field, NUL-padded.
const idSize = 18

// replayBitsSize is the byte width of the packed ranked/mode/source/result
// word, stored as a single little-endian uint32 in both row kinds.
const replayBitsSize = 4

// replayRowFixedSize is the byte width of a replay row's fixed-width
// fields: id, date, eight string-pool offsets, and the bits word.
const replayRowFixedSize = idSize + 8 + 4*8 + replayBitsSize

func align8(n int) int {
	return (n + 7) &^ 7
}

// searchRowSize returns the 8-byte-aligned size of one search row: date,
// bits, and two card bitmaps of deckByteSize bytes each.
func searchRowSize(deckByteSize int) int {
	return align8(8 + replayBitsSize + deckByteSize*2)
}

// replayRowSize returns the 8-byte-aligned size of one replay row.
func replayRowSize() int {
	return align8(replayRowFixedSize)
}

// replayBits packs the ranked flag and the three dictionary indexes into
// one little-endian uint32: ranked in bit 0, mode in bits [1,8), source in
// bits [8,14), result in bits [14,18).
type replayBits uint32

func packBits(ranked bool, mode, source, result uint32) replayBits {
	var r uint32
	if ranked {
		r = 1
	}
	return replayBits(r | mode<<dictspec.RankedBits | source<<(dictspec.RankedBits+dictspec.ModeBits) | result<<(dictspec.RankedBits+dictspec.ModeBits+dictspec.SourceBits))
}

func (b replayBits) ranked() bool {
	return b&1 != 0
}

func (b replayBits) mode() uint32 {
	return uint32(b>>dictspec.RankedBits) & (dictspec.ModeCapacity - 1)
}

func (b replayBits) source() uint32 {
	return uint32(b>>(dictspec.RankedBits+dictspec.ModeBits)) & (dictspec.SourceCapacity - 1)
}

func (b replayBits) result() uint32 {
	return uint32(b>>(dictspec.RankedBits+dictspec.ModeBits+dictspec.SourceBits)) & (dictspec.ResultCapacity - 1)
}

// searchRow is a decoded view of one row of the search table: the columns
// the match engine scans, kept separate from the wider replay row so a
// full table scan touches as little memory as possible.
type searchRow struct {
	date  uint64
	bits  replayBits
	deck0 []byte
	deck1 []byte
}

func readSearchRow(row []byte, deckByteSize int) searchRow {
	date := binary.LittleEndian.Uint64(row[0:8])
	bits := replayBits(binary.LittleEndian.Uint32(row[8:12]))
	cards := row[8+replayBitsSize:]
	return searchRow{
		date:  date,
		bits:  bits,
		deck0: cards[:deckByteSize],
		deck1: cards[deckByteSize : deckByteSize*2],
	}
}

func writeSearchRow(row []byte, date uint64, bits replayBits, deck0, deck1 []byte) {
	binary.LittleEndian.PutUint64(row[0:8], date)
	binary.LittleEndian.PutUint32(row[8:12], uint32(bits))
	cards := row[8+replayBitsSize:]
	copy(cards, deck0)
	copy(cards[len(deck0):], deck1)
}

// replayRow is a decoded view of one row of the replay table: the id,
// date, bits, and string-pool offsets for every text field.
type replayRow struct {
	id            string
	date          uint64
	resultDescOff uint32
	titleOff      uint32
	linkOff       uint32
	deck0Off      uint32
	deck1Off      uint32
	regionOff     uint32
	authorLinkOff uint32
	authorNameOff uint32
	bits          replayBits
}

func readReplayRow(row []byte) replayRow {
	id := readFixedString(row[0:idSize])
	off := idSize
	date := binary.LittleEndian.Uint64(row[off : off+8])
	off += 8

	readOff := func() uint32 {
		v := binary.LittleEndian.Uint32(row[off : off+4])
		off += 4
		return v
	}

	r := replayRow{id: id, date: date}
	r.resultDescOff = readOff()
	r.titleOff = readOff()
	r.linkOff = readOff()
	r.deck0Off = readOff()
	r.deck1Off = readOff()
	r.regionOff = readOff()
	r.authorLinkOff = readOff()
	r.authorNameOff = readOff()
	r.bits = replayBits(binary.LittleEndian.Uint32(row[off : off+4]))
	return r
}

func writeReplayRow(row []byte, r replayRow) {
	writeFixedString(row[0:idSize], r.id)
	off := idSize
	binary.LittleEndian.PutUint64(row[off:off+8], r.date)
	off += 8

	writeOff := func(v uint32) {
		binary.LittleEndian.PutUint32(row[off:off+4], v)
		off += 4
	}
	writeOff(r.resultDescOff)
	writeOff(r.titleOff)
	writeOff(r.linkOff)
	writeOff(r.deck0Off)
	writeOff(r.deck1Off)
	writeOff(r.regionOff)
	writeOff(r.authorLinkOff)
	writeOff(r.authorNameOff)
	binary.LittleEndian.PutUint32(row[off:off+4], uint32(r.bits))
}

func readFixedString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func writeFixedString(dest []byte, s string) {
	for i := range dest {
		dest[i] = 0
	}
	copy(dest, s)
}
