package replaydb

import (
	"encoding/binary"
	"math/bits"

	"github.com/icza/replaydb/internal/bitmap"
	"github.com/icza/replaydb/internal/dict"
)

// matchResult is the outcome of comparing a query's card bitmaps against
// one stored replay row in one orientation (normal or flipped).
//
// sort is zero when the row is filtered out, which callers rely on to
// distinguish a candidate from a rejected row. A row that passes the
// filters with zero deck overlap still gets sort == date, so callers that
// need overlap check match0 and match1 as well.
type matchResult struct {
	flipped bool
	match0  uint32
	match1  uint32
	sort    uint64
}

// popcountAnd returns the population count of a&b, read as a sequence of
// little-endian uint32 words. Both slices must be the same length, a
// multiple of 4 (deck bitmaps are always 8-byte aligned).
func popcountAnd(a, b []byte) uint32 {
	var total uint32
	for i := 0; i+4 <= len(a); i += 4 {
		av := binary.LittleEndian.Uint32(a[i : i+4])
		bv := binary.LittleEndian.Uint32(b[i : i+4])
		total += uint32(bits.OnesCount32(av & bv))
	}
	return total
}

// match compares the row at rowIndex against the search bitmap set
// (in the requested orientation) and the scalar filters. It returns a
// matchResult with sort == 0 and zero match counts when the row is
// filtered out. Zero deck overlap is not filtered here: such a row gets
// match0 == match1 == 0 and sort == date.
func (db *DB) match(rowIndex int, flipped bool, minDate uint64, ranked, unranked bool, sourcesMask, modesMask, resultMask uint32, search *bitmap.Set) matchResult {
	row := db.searchTable[rowIndex*db.searchRowSz : (rowIndex+1)*db.searchRowSz]
	sr := readSearchRow(row, db.deckByteSize)

	var ret matchResult
	ret.flipped = flipped

	if sr.date < minDate {
		return ret
	}
	if !ranked && sr.bits.ranked() {
		return ret
	}
	if !unranked && !sr.bits.ranked() {
		return ret
	}
	if !dict.NameMatchesSearchBitField(sourcesMask, sr.bits.source()) {
		return ret
	}
	if !dict.NameMatchesSearchBitField(modesMask, sr.bits.mode()) {
		return ret
	}
	if !dict.NameMatchesSearchBitField(resultMask, sr.bits.result()) {
		return ret
	}

	ret.match0 = popcountAnd(search.Deck0(flipped), sr.deck0)
	ret.match1 = popcountAnd(search.Deck1(flipped), sr.deck1)

	var primary uint64
	if flipped {
		primary = uint64(ret.match1)*2 + uint64(ret.match0)
	} else {
		primary = uint64(ret.match0)*2 + uint64(ret.match1)
	}
	ret.sort = primary<<44 + sr.date
	return ret
}
