/*

Package archive implements the `.rrdb` file format: a fixed header
followed by six 8-byte-aligned sections (mode names, source names, result
names, string pool, search table, replay table).

It is the Go counterpart of the Save/Load pair in
original_source/replaydb.cc. Loading peeks at the header far enough to
validate the stamp, version, and row sizes before touching anything
else — a version mismatch rejects the whole file rather than attempting
any kind of migration, the same way repparser/repdecoder's
detectRepFormat peeks at a replay's signature before committing to a
parse strategy, except here the only two outcomes are "accept" and
"reject".

*/
package archive

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Stamp is the four-byte magic written at the start of every archive,
// "RRDB" read as a little-endian uint32.
const Stamp uint32 = 'R' | 'R'<<8 | 'D'<<16 | 'B'<<24

// Version is the only archive layout this package accepts. Version 1 (the
// fixed-width string columns predecessor, with no string pool) is
// recognized only far enough to be named in a rejection error.
const Version uint32 = 3

const legacyVersion uint32 = 1

// headerSize is the raw size of the on-disk header: 11 uint32 fields.
// The first section starts at align8(headerSize), not at headerSize
// itself.
const headerSize = 44

// Header describes the layout of one archive file. All integer fields
// are little-endian.
type Header struct {
	Stamp       uint32
	Version     uint32
	ReplayCount uint32
	SearchRowSz uint32
	ReplayRowSz uint32

	ModeNamesPos   uint32
	SourceNamesPos uint32
	ResultNamesPos uint32
	StringPoolPos  uint32
	SearchTablePos uint32
	ReplayTablePos uint32
}

// ErrBadStamp is returned when a file does not start with the archive
// magic.
var ErrBadStamp = errors.New("archive: bad stamp")

// ErrVersionMismatch is returned when a file's version is not the one
// this package supports. The archive is rejected outright, never
// migrated.
var ErrVersionMismatch = errors.New("archive: version mismatch")

// ErrRowSizeMismatch is returned when a file's row sizes don't match the
// caller's current card count / dictionary bit widths.
var ErrRowSizeMismatch = errors.New("archive: row size mismatch")

// Sections groups the serialized bytes of every section alongside the
// row table bytes, in the order they're laid out on disk.
type Sections struct {
	ModeNames   []byte
	SourceNames []byte
	ResultNames []byte
	StringPool  []byte
	SearchTable []byte
	ReplayTable []byte
}

// Path returns the archive file path for a game name, matching the
// original's `gameName + ".rrdb"` convention.
func Path(gameName string) string {
	return gameName + ".rrdb"
}

func align8(n int) int {
	return (n + 7) &^ 7
}

// Save writes header and sections to the archive file for gameName,
// using a write-to-temp-then-rename so a crash mid-write never leaves a
// half-written file at the final path.
func Save(gameName string, replayCount int, searchRowSz, replayRowSz int, s Sections) error {
	pos := align8(headerSize)

	modeNamesPos := pos
	pos = align8(pos + len(s.ModeNames))

	sourceNamesPos := pos
	pos = align8(pos + len(s.SourceNames))

	resultNamesPos := pos
	pos = align8(pos + len(s.ResultNames))

	stringPoolPos := pos
	pos = align8(pos + len(s.StringPool))

	searchTableSz := replayCount * searchRowSz
	searchTablePos := pos
	pos = align8(pos + searchTableSz)

	replayTableSz := replayCount * replayRowSz
	replayTablePos := pos
	pos = align8(pos + replayTableSz)

	buf := make([]byte, pos)

	h := Header{
		Stamp:          Stamp,
		Version:        Version,
		ReplayCount:    uint32(replayCount),
		SearchRowSz:    uint32(searchRowSz),
		ReplayRowSz:    uint32(replayRowSz),
		ModeNamesPos:   uint32(modeNamesPos),
		SourceNamesPos: uint32(sourceNamesPos),
		ResultNamesPos: uint32(resultNamesPos),
		StringPoolPos:  uint32(stringPoolPos),
		SearchTablePos: uint32(searchTablePos),
		ReplayTablePos: uint32(replayTablePos),
	}
	putHeader(buf, &h)

	copy(buf[modeNamesPos:], s.ModeNames)
	copy(buf[sourceNamesPos:], s.SourceNames)
	copy(buf[resultNamesPos:], s.ResultNames)
	copy(buf[stringPoolPos:], s.StringPool)
	copy(buf[searchTablePos:], s.SearchTable)
	copy(buf[replayTablePos:], s.ReplayTable)

	path := Path(gameName)
	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "archive: create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "archive: write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "archive: close temp file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "archive: rename temp file")
	}

	return nil
}

func putHeader(dest []byte, h *Header) {
	fields := []uint32{
		h.Stamp, h.Version, h.ReplayCount, h.SearchRowSz, h.ReplayRowSz,
		h.ModeNamesPos, h.SourceNamesPos, h.ResultNamesPos, h.StringPoolPos,
		h.SearchTablePos, h.ReplayTablePos,
	}
	for i, v := range fields {
		binary.LittleEndian.PutUint32(dest[i*4:i*4+4], v)
	}
}

func getHeader(src []byte) (Header, error) {
	var h Header
	if len(src) < headerSize {
		return h, errors.New("archive: file too small for header")
	}
	fields := []*uint32{
		&h.Stamp, &h.Version, &h.ReplayCount, &h.SearchRowSz, &h.ReplayRowSz,
		&h.ModeNamesPos, &h.SourceNamesPos, &h.ResultNamesPos, &h.StringPoolPos,
		&h.SearchTablePos, &h.ReplayTablePos,
	}
	for i, p := range fields {
		*p = binary.LittleEndian.Uint32(src[i*4 : i*4+4])
	}
	return h, nil
}

// Load reads the archive file for gameName and validates it against the
// caller's expected row sizes before returning its sections. A missing
// file is reported as a wrapped error for which
// errors.Is(err, os.ErrNotExist) holds.
//
// A rejection (bad stamp, version mismatch, or row size mismatch) never
// returns partial sections: on any error, Sections is the zero value.
func Load(gameName string, wantSearchRowSz, wantReplayRowSz int) (Header, Sections, error) {
	path := Path(gameName)
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, Sections{}, errors.Wrap(err, "archive: read file")
	}

	h, err := getHeader(data)
	if err != nil {
		return Header{}, Sections{}, err
	}

	if h.Stamp != Stamp {
		return Header{}, Sections{}, ErrBadStamp
	}
	if h.Version != Version {
		if h.Version == legacyVersion {
			return Header{}, Sections{}, errors.Wrapf(ErrVersionMismatch, "archive %q is the legacy version %d format, not %d", path, legacyVersion, Version)
		}
		return Header{}, Sections{}, errors.Wrapf(ErrVersionMismatch, "archive %q has version %d, want %d", path, h.Version, Version)
	}
	if int(h.SearchRowSz) != wantSearchRowSz || int(h.ReplayRowSz) != wantReplayRowSz {
		return Header{}, Sections{}, ErrRowSizeMismatch
	}

	searchTableSz := int(h.ReplayCount) * wantSearchRowSz
	replayTableSz := int(h.ReplayCount) * wantReplayRowSz

	bounds := []struct {
		name string
		off  uint32
		sz   int
	}{
		{"mode names", h.ModeNamesPos, int(h.SourceNamesPos) - int(h.ModeNamesPos)},
		{"source names", h.SourceNamesPos, int(h.ResultNamesPos) - int(h.SourceNamesPos)},
		{"result names", h.ResultNamesPos, int(h.StringPoolPos) - int(h.ResultNamesPos)},
		{"string pool", h.StringPoolPos, int(h.SearchTablePos) - int(h.StringPoolPos)},
		{"search table", h.SearchTablePos, searchTableSz},
		{"replay table", h.ReplayTablePos, replayTableSz},
	}
	for _, b := range bounds {
		if b.sz < 0 || int(b.off)+b.sz > len(data) {
			return Header{}, Sections{}, errors.Errorf("archive: %s section out of bounds", b.name)
		}
	}

	s := Sections{
		ModeNames:   data[h.ModeNamesPos : h.ModeNamesPos+uint32(bounds[0].sz)],
		SourceNames: data[h.SourceNamesPos : h.SourceNamesPos+uint32(bounds[1].sz)],
		ResultNames: data[h.ResultNamesPos : h.ResultNamesPos+uint32(bounds[2].sz)],
		StringPool:  data[h.StringPoolPos : h.StringPoolPos+uint32(bounds[3].sz)],
		SearchTable: data[h.SearchTablePos : h.SearchTablePos+uint32(searchTableSz)],
		ReplayTable: data[h.ReplayTablePos : h.ReplayTablePos+uint32(replayTableSz)],
	}

	return h, s, nil
}
