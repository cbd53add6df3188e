package replaydb

import (
	"errors"
	"log"
	"os"
	"runtime"

	"github.com/icza/replaydb/internal/archive"
	"github.com/icza/replaydb/internal/bitmap"
	"github.com/icza/replaydb/internal/dict"
	"github.com/icza/replaydb/internal/dictspec"
	"github.com/icza/replaydb/internal/strpool"
)

// DB is a replay index for a single game, holding every replay in memory
// and persisting to a `.rrdb` file named after the game.
type DB struct {
	gameName     string
	cardCount    int
	deckByteSize int

	modeNames   *dict.Dictionary
	sourceNames *dict.Dictionary
	resultNames *dict.Dictionary
	strings     *strpool.Pool

	searchRowSz int
	replayRowSz int
	searchTable []byte
	replayTable []byte
	replayCount int

	idIndex map[string]int
}

// New opens (or creates) a replay index for gameName, sized for replays
// using cardCount distinct cards. If a `.rrdb` archive for gameName
// already exists and matches this card count, it is loaded; a missing or
// incompatible archive starts the index empty rather than failing, since
// neither case is a caller error severe enough to refuse construction.
func New(gameName string, cardCount int) (*DB, error) {
	if cardCount <= 0 {
		return nil, ErrInvalidCardCount
	}

	db := newEmpty(gameName, cardCount)
	db.loadProtected()
	return db, nil
}

func newEmpty(gameName string, cardCount int) *DB {
	deckByteSize := bitmap.ByteSize(cardCount)
	return &DB{
		gameName:     gameName,
		cardCount:    cardCount,
		deckByteSize: deckByteSize,
		modeNames:    dict.New(dictspec.ModeCapacity),
		sourceNames:  dict.New(dictspec.SourceCapacity),
		resultNames:  dict.New(dictspec.ResultCapacity),
		strings:      strpool.New(),
		searchRowSz:  searchRowSize(deckByteSize),
		replayRowSz:  replayRowSize(),
		idIndex:      make(map[string]int),
	}
}

// loadProtected calls load, recovering from any panic a malformed archive
// might trigger during decode. Input is untrusted on-disk data; this
// protects both against a corrupt file and against bugs in the decoder
// itself. On any failure the index is reset to empty rather than left
// partially populated.
func (db *DB) loadProtected() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("replaydb: recovered while loading archive for %q: %v", db.gameName, r)
			buf := make([]byte, 2000)
			n := runtime.Stack(buf, false)
			log.Printf("replaydb: stack: %s", buf[:n])
			*db = *newEmpty(db.gameName, db.cardCount)
		}
	}()

	if err := db.load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("replaydb: discarding archive for %q: %v", db.gameName, err)
		}
		*db = *newEmpty(db.gameName, db.cardCount)
	}
}

func (db *DB) load() error {
	h, sections, err := archive.Load(db.gameName, db.searchRowSz, db.replayRowSz)
	if err != nil {
		return err
	}

	modeNames, err := dict.SerializeIn(sections.ModeNames)
	if err != nil {
		return err
	}
	sourceNames, err := dict.SerializeIn(sections.SourceNames)
	if err != nil {
		return err
	}
	resultNames, err := dict.SerializeIn(sections.ResultNames)
	if err != nil {
		return err
	}
	pool, err := strpool.SerializeIn(sections.StringPool)
	if err != nil {
		return err
	}

	db.modeNames = modeNames.WithCapacity(dictspec.ModeCapacity)
	db.sourceNames = sourceNames.WithCapacity(dictspec.SourceCapacity)
	db.resultNames = resultNames.WithCapacity(dictspec.ResultCapacity)
	db.strings = pool
	db.replayCount = int(h.ReplayCount)

	db.searchTable = append([]byte(nil), sections.SearchTable...)
	db.replayTable = append([]byte(nil), sections.ReplayTable...)

	db.idIndex = make(map[string]int, db.replayCount)
	for i := 0; i < db.replayCount; i++ {
		row := readReplayRow(db.replayTable[i*db.replayRowSz : (i+1)*db.replayRowSz])
		db.idIndex[row.id] = i
	}
	return nil
}

// Save writes the index's full state to its `.rrdb` file, replacing any
// existing file atomically.
func (db *DB) Save() error {
	return archive.Save(db.gameName, db.replayCount, db.searchRowSz, db.replayRowSz, archive.Sections{
		ModeNames:   serializeDict(db.modeNames),
		SourceNames: serializeDict(db.sourceNames),
		ResultNames: serializeDict(db.resultNames),
		StringPool:  serializeStrings(db.strings),
		SearchTable: db.searchTable[:db.replayCount*db.searchRowSz],
		ReplayTable: db.replayTable[:db.replayCount*db.replayRowSz],
	})
}

func serializeDict(d *dict.Dictionary) []byte {
	buf := make([]byte, d.SerializeByteSize())
	d.SerializeOut(buf)
	return buf
}

func serializeStrings(p *strpool.Pool) []byte {
	buf := make([]byte, p.SerializeByteSize())
	p.SerializeOut(buf)
	return buf
}

// GetReplayCount returns the number of replays currently indexed.
func (db *DB) GetReplayCount() int {
	return db.replayCount
}

// GetReplay returns the replay stored under id, or a Record with an
// empty ID if no replay has that id.
func (db *DB) GetReplay(id string) Record {
	index, ok := db.idIndex[id]
	if !ok {
		return Record{}
	}
	return db.recordAt(index)
}

func (db *DB) recordAt(rowIndex int) Record {
	row := readReplayRow(db.replayTable[rowIndex*db.replayRowSz : (rowIndex+1)*db.replayRowSz])
	return Record{
		ID:         row.id,
		Date:       row.date,
		Result:     db.resultNames.GetName(row.bits.result()),
		ResultDesc: db.strings.GetString(row.resultDescOff),
		Mode:       db.modeNames.GetName(row.bits.mode()),
		Title:      db.strings.GetString(row.titleOff),
		Link:       db.strings.GetString(row.linkOff),
		Source:     db.sourceNames.GetName(row.bits.source()),
		Deck0:      db.strings.GetString(row.deck0Off),
		Deck1:      db.strings.GetString(row.deck1Off),
		Region:     db.strings.GetString(row.regionOff),
		AuthorLink: db.strings.GetString(row.authorLinkOff),
		AuthorName: db.strings.GetString(row.authorNameOff),
		Ranked:     row.bits.ranked(),
	}
}

// SetReplay inserts a new replay or overwrites the existing one with the
// same id. It returns ErrModeOverflow, ErrSourceOverflow or
// ErrResultOverflow if r names a mode, source or result this index has
// never seen before and the corresponding dictionary is already full; in
// that case no row is written, though a mode or source name resolved
// before the failing one may already have been interned.
func (db *DB) SetReplay(r Record) error {
	mode, err := db.modeNames.GetBits(r.Mode)
	if err != nil {
		return ErrModeOverflow
	}
	source, err := db.sourceNames.GetBits(r.Source)
	if err != nil {
		return ErrSourceOverflow
	}
	result, err := db.resultNames.GetBits(r.Result)
	if err != nil {
		return ErrResultOverflow
	}

	index, exists := db.idIndex[r.ID]
	if !exists {
		index = db.replayCount
		db.growTo(index + 1)
		db.replayCount++
	}

	bits := packBits(r.Ranked, mode, source, result)

	rr := replayRow{
		id:            r.ID,
		date:          r.Date,
		resultDescOff: db.strings.StoreString(r.ResultDesc),
		titleOff:      db.strings.StoreString(r.Title),
		linkOff:       db.strings.StoreString(r.Link),
		deck0Off:      db.strings.StoreString(r.Deck0),
		deck1Off:      db.strings.StoreString(r.Deck1),
		regionOff:     db.strings.StoreString(r.Region),
		authorLinkOff: db.strings.StoreString(r.AuthorLink),
		authorNameOff: db.strings.StoreString(r.AuthorName),
		bits:          bits,
	}
	writeReplayRow(db.replayTable[index*db.replayRowSz:(index+1)*db.replayRowSz], rr)

	set := bitmap.Build(db.cardCount, r.Cards0, r.Cards1)
	writeSearchRow(db.searchTable[index*db.searchRowSz:(index+1)*db.searchRowSz], r.Date, bits, set.Deck0(false), set.Deck1(false))

	db.idIndex[r.ID] = index
	return nil
}

// growTo ensures both row tables have room for at least rows rows.
func (db *DB) growTo(rows int) {
	needSearch := rows * db.searchRowSz
	if len(db.searchTable) < needSearch {
		db.searchTable = append(db.searchTable, make([]byte, needSearch-len(db.searchTable))...)
	}
	needReplay := rows * db.replayRowSz
	if len(db.replayTable) < needReplay {
		db.replayTable = append(db.replayTable, make([]byte, needReplay-len(db.replayTable))...)
	}
}

// RemoveReplay deletes the replay stored under id, if any. Rows after
// the removed one are shifted down to keep both tables dense, and every
// id whose row index shifted has its idIndex entry corrected to match —
// unlike the original, the index is never left pointing at a row it no
// longer owns.
func (db *DB) RemoveReplay(id string) {
	index, ok := db.idIndex[id]
	if !ok {
		return
	}
	delete(db.idIndex, id)

	copyCount := db.replayCount - index - 1
	if copyCount > 0 {
		copy(db.replayTable[index*db.replayRowSz:], db.replayTable[(index+1)*db.replayRowSz:db.replayCount*db.replayRowSz])
		copy(db.searchTable[index*db.searchRowSz:], db.searchTable[(index+1)*db.searchRowSz:db.replayCount*db.searchRowSz])
	}
	db.replayCount--

	for sid, idx := range db.idIndex {
		if idx > index {
			db.idIndex[sid] = idx - 1
		}
	}
}

// NewGames returns the most recent replays (by date) matching filter,
// skipping the first offset matches and returning up to numResults. It
// returns nil if filter excludes both ranked and unranked games, since
// that combination can never match anything.
func (db *DB) NewGames(offset, numResults int, filter Filter) *QueryResult {
	if !filter.Ranked && !filter.Unranked {
		return nil
	}

	sourcesMask := db.sourceNames.GetSearchBitField(filter.Sources)
	modesMask := db.modeNames.GetSearchBitField(filter.Modes)
	resultMask := ^uint32(0)
	if filter.OnlyWins {
		resultMask = db.resultNames.GetSearchBitField([]string{"win"})
	}

	h := newTopKHeap(offset + numResults)
	validCount := 0

	for i := 0; i < db.replayCount; i++ {
		row := readSearchRow(db.searchTable[i*db.searchRowSz:(i+1)*db.searchRowSz], db.deckByteSize)

		if row.date < filter.MinDate {
			continue
		}
		if !filter.Ranked && row.bits.ranked() {
			continue
		}
		if !filter.Unranked && !row.bits.ranked() {
			continue
		}
		if !dict.NameMatchesSearchBitField(sourcesMask, row.bits.source()) {
			continue
		}
		if !dict.NameMatchesSearchBitField(modesMask, row.bits.mode()) {
			continue
		}
		if !dict.NameMatchesSearchBitField(resultMask, row.bits.result()) {
			continue
		}

		validCount++
		h.offer(candidate{rowIndex: i, result: matchResult{sort: row.date}})
	}

	return db.collectResults(h, offset, validCount)
}

// Search returns the replays whose decks best overlap cards0/cards1,
// ranked by the composite sort key (overlap score, then date), skipping
// the first offset matches and returning up to numResults. It returns
// nil if filter excludes both player and opponent orientations, or both
// ranked and unranked games.
func (db *DB) Search(offset, numResults int, cards0, cards1 []int, filter Filter) *QueryResult {
	if !filter.FromPlayer && !filter.FromOpponent {
		return nil
	}
	if !filter.Ranked && !filter.Unranked {
		return nil
	}

	sourcesMask := db.sourceNames.GetSearchBitField(filter.Sources)
	modesMask := db.modeNames.GetSearchBitField(filter.Modes)
	resultMask, flipResultMask := ^uint32(0), ^uint32(0)
	if filter.OnlyWins {
		resultMask = db.resultNames.GetSearchBitField([]string{"win"})
		flipResultMask = db.resultNames.GetSearchBitField([]string{"loss"})
	}

	search := bitmap.Build(db.cardCount, cards0, cards1)

	h := newTopKHeap(offset + numResults)
	validCount := 0

	for i := 0; i < db.replayCount; i++ {
		var m matchResult
		switch {
		case filter.FromPlayer && filter.FromOpponent:
			m0 := db.match(i, false, filter.MinDate, filter.Ranked, filter.Unranked, sourcesMask, modesMask, resultMask, search)
			m1 := db.match(i, true, filter.MinDate, filter.Ranked, filter.Unranked, sourcesMask, modesMask, flipResultMask, search)
			if m1.sort > m0.sort {
				m = m1
			} else {
				m = m0
			}
		case filter.FromPlayer:
			m = db.match(i, false, filter.MinDate, filter.Ranked, filter.Unranked, sourcesMask, modesMask, resultMask, search)
		case filter.FromOpponent:
			m = db.match(i, true, filter.MinDate, filter.Ranked, filter.Unranked, sourcesMask, modesMask, flipResultMask, search)
		}

		if m.sort == 0 {
			continue
		}
		if m.match0 == 0 && m.match1 == 0 {
			continue
		}

		validCount++
		h.offer(candidate{rowIndex: i, result: m})
	}

	return db.collectResults(h, offset, validCount)
}

func (db *DB) collectResults(h *topKHeap, offset, validCount int) *QueryResult {
	sorted := h.sorted()
	if offset > len(sorted) {
		offset = len(sorted)
	}
	page := sorted[offset:]

	replays := make([]Record, len(page))
	for i, c := range page {
		rec := db.recordAt(c.rowIndex)
		rec.Flipped = c.result.flipped
		rec.Match0 = c.result.match0
		rec.Match1 = c.result.match1
		replays[i] = rec
	}

	return &QueryResult{Replays: replays, TotalReplayCount: validCount}
}
