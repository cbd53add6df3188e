package replaydb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, cardCount int) *DB {
	t.Helper()
	game := filepath.Join(t.TempDir(), "game")
	db, err := New(game, cardCount)
	require.NoError(t, err)
	return db
}

func TestNewRejectsNonPositiveCardCount(t *testing.T) {
	_, err := New("x", 0)
	assert.ErrorIs(t, err, ErrInvalidCardCount)

	_, err = New("x", -1)
	assert.ErrorIs(t, err, ErrInvalidCardCount)
}

// Scenario 1: upsert then lookup.
func TestUpsertAndLookup(t *testing.T) {
	db := newTestDB(t, 16)

	id := idFill("A")
	err := db.SetReplay(Record{
		ID:     id,
		Date:   202401010000,
		Result: "win",
		Mode:   "std",
		Source: "u",
		Ranked: true,
		Cards0: []int{0, 1},
		Cards1: []int{2},
	})
	require.NoError(t, err)

	got := db.GetReplay(id)
	assert.Equal(t, uint64(202401010000), got.Date)
	assert.Equal(t, "win", got.Result)
	assert.Equal(t, id, got.ID)
}

// Scenario 2: card overlap scoring and orientation.
func TestSearchOverlapScoringAndOrientation(t *testing.T) {
	db := newTestDB(t, 16)

	r1 := idFill("1")
	r2 := idFill("2")

	require.NoError(t, db.SetReplay(Record{
		ID: r1, Date: 100, Result: "win", Mode: "std", Source: "u", Ranked: true,
		Cards0: []int{0, 1, 2}, Cards1: []int{8, 9},
	}))
	require.NoError(t, db.SetReplay(Record{
		ID: r2, Date: 200, Result: "win", Mode: "std", Source: "u", Ranked: true,
		Cards0: []int{8, 9}, Cards1: []int{0, 1, 2},
	}))

	filter := DefaultFilter()
	filter.Sources = []string{"u"}
	filter.Modes = []string{"std"}
	filter.FromPlayer, filter.FromOpponent = true, false

	res := db.Search(0, 10, []int{0, 1}, []int{8}, filter)
	require.NotNil(t, res)
	require.Len(t, res.Replays, 1)
	assert.Equal(t, r1, res.Replays[0].ID)
	assert.EqualValues(t, 2, res.Replays[0].Match0)
	assert.EqualValues(t, 1, res.Replays[0].Match1)
	assert.False(t, res.Replays[0].Flipped)

	filter.FromOpponent = true
	res = db.Search(0, 10, []int{0, 1}, []int{8}, filter)
	require.NotNil(t, res)
	require.Len(t, res.Replays, 2)
	// Both replays share the same primary score; the later date sorts first.
	assert.Equal(t, r2, res.Replays[0].ID)
	assert.True(t, res.Replays[0].Flipped)
	assert.Equal(t, r1, res.Replays[1].ID)
}

// Scenario 3: win-only filter excludes the normal orientation but allows
// the flipped one, since the opponent (flipped) result is the complement.
func TestSearchOnlyWinsFlipsResultFilter(t *testing.T) {
	db := newTestDB(t, 16)

	id := idFill("3")
	require.NoError(t, db.SetReplay(Record{
		ID: id, Date: 100, Result: "loss", Mode: "std", Source: "u", Ranked: true,
		Cards0: []int{0}, Cards1: []int{1},
	}))

	filter := DefaultFilter()
	filter.Sources = []string{"u"}
	filter.Modes = []string{"std"}
	filter.OnlyWins = true

	// Query decks swapped relative to the stored replay, so only the
	// flipped orientation has nonzero overlap.
	res := db.Search(0, 10, []int{1}, []int{0}, filter)
	require.NotNil(t, res)
	require.Len(t, res.Replays, 1)
	assert.Equal(t, id, res.Replays[0].ID)
	assert.True(t, res.Replays[0].Flipped)
}

// Scenario 4: a filter combination that can never match returns nil, not
// an empty result.
func TestNewGamesContradictoryFilterReturnsNil(t *testing.T) {
	db := newTestDB(t, 16)

	filter := DefaultFilter()
	filter.Ranked, filter.Unranked = false, false

	res := db.NewGames(0, 10, filter)
	assert.Nil(t, res)
}

func TestSearchContradictoryFilterReturnsNil(t *testing.T) {
	db := newTestDB(t, 16)

	filter := DefaultFilter()
	filter.FromPlayer, filter.FromOpponent = false, false

	res := db.Search(0, 10, []int{0}, []int{1}, filter)
	assert.Nil(t, res)
}

// Scenario 5: save/reload round trip.
func TestPersistenceRoundTrip(t *testing.T) {
	game := filepath.Join(t.TempDir(), "game")
	db, err := New(game, 16)
	require.NoError(t, err)

	ids := []string{idFill("a"), idFill("b"), idFill("c")}
	for i, id := range ids {
		require.NoError(t, db.SetReplay(Record{
			ID: id, Date: uint64(100 + i), Result: "win", Mode: "std", Source: "u",
			Ranked: true, Cards0: []int{0, 1}, Cards1: []int{2},
		}))
	}
	require.NoError(t, db.Save())

	reloaded, err := New(game, 16)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.GetReplayCount())
	for _, id := range ids {
		assert.Equal(t, id, reloaded.GetReplay(id).ID)
	}
}

// Scenario 6: reloading with a different card count (and thus a different
// row size) rejects the archive and starts empty.
func TestPersistenceRejectsRowSizeMismatch(t *testing.T) {
	game := filepath.Join(t.TempDir(), "game")
	db, err := New(game, 16)
	require.NoError(t, err)
	require.NoError(t, db.SetReplay(Record{
		ID: idFill("z"), Date: 1, Result: "win", Mode: "std", Source: "u", Ranked: true,
	}))
	require.NoError(t, db.Save())

	reloaded, err := New(game, 256)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.GetReplayCount())
}

// Invariant 3: remove makes a replay unreachable.
func TestRemoveReplay(t *testing.T) {
	db := newTestDB(t, 16)
	id := idFill("r")
	require.NoError(t, db.SetReplay(Record{ID: id, Result: "win", Mode: "std", Source: "u"}))

	db.RemoveReplay(id)

	assert.Equal(t, "", db.GetReplay(id).ID)
	assert.Equal(t, 0, db.GetReplayCount())
}

// Invariant 3 + the id-map staleness fix: removing a row must not corrupt
// the index entries of rows that shifted down to fill the gap.
func TestRemoveReplayKeepsRemainingIdsCorrect(t *testing.T) {
	db := newTestDB(t, 16)

	ids := []string{idFill("a"), idFill("b"), idFill("c")}
	for i, id := range ids {
		require.NoError(t, db.SetReplay(Record{
			ID: id, Date: uint64(i), Result: "win", Mode: "std", Source: "u",
		}))
	}

	db.RemoveReplay(ids[0])

	assert.Equal(t, 2, db.GetReplayCount())
	assert.Equal(t, ids[1], db.GetReplay(ids[1]).ID)
	assert.Equal(t, ids[2], db.GetReplay(ids[2]).ID)
	assert.Equal(t, uint64(1), db.GetReplay(ids[1]).Date)
	assert.Equal(t, uint64(2), db.GetReplay(ids[2]).Date)
}

// Invariant 4: re-setting an id overwrites every field.
func TestSetReplayOverwritesExisting(t *testing.T) {
	db := newTestDB(t, 16)
	id := idFill("o")

	require.NoError(t, db.SetReplay(Record{ID: id, Date: 1, Result: "win", Mode: "std", Source: "u"}))
	require.NoError(t, db.SetReplay(Record{ID: id, Date: 2, Result: "loss", Mode: "wild", Source: "u"}))

	got := db.GetReplay(id)
	assert.Equal(t, uint64(2), got.Date)
	assert.Equal(t, "loss", got.Result)
	assert.Equal(t, "wild", got.Mode)
	assert.Equal(t, 1, db.GetReplayCount())
}

// Invariant 6/7: paging and sort order.
func TestSearchRespectsNumResultsAndSortOrder(t *testing.T) {
	db := newTestDB(t, 16)

	for i := 0; i < 5; i++ {
		require.NoError(t, db.SetReplay(Record{
			ID: idFill(string(rune('a' + i))), Date: uint64(i), Result: "win", Mode: "std", Source: "u",
			Ranked: true, Cards0: []int{0, 1, 2}, Cards1: []int{},
		}))
	}

	filter := DefaultFilter()
	filter.Sources = []string{"u"}
	filter.Modes = []string{"std"}
	res := db.Search(0, 2, []int{0, 1, 2}, []int{}, filter)
	require.NotNil(t, res)
	assert.Len(t, res.Replays, 2)
	assert.GreaterOrEqual(t, res.TotalReplayCount, len(res.Replays))

	for i := 1; i < len(res.Replays); i++ {
		prevSort := res.Replays[i-1].Date
		curSort := res.Replays[i].Date
		assert.GreaterOrEqual(t, prevSort, curSort)
	}
}

// Invariant 8: every returned Search result has nonzero overlap.
func TestSearchResultsAlwaysHaveOverlap(t *testing.T) {
	db := newTestDB(t, 16)
	require.NoError(t, db.SetReplay(Record{
		ID: idFill("n"), Result: "win", Mode: "std", Source: "u",
		Cards0: []int{0}, Cards1: []int{1},
	}))

	filter := DefaultFilter()
	filter.Sources = []string{"u"}
	filter.Modes = []string{"std"}
	res := db.Search(0, 10, []int{0}, []int{1}, filter)
	require.NotNil(t, res)
	require.NotEmpty(t, res.Replays)
	for _, r := range res.Replays {
		assert.True(t, r.Match0+r.Match1 > 0)
	}
}

func TestSetReplayReturnsOverflowErrors(t *testing.T) {
	db := newTestDB(t, 16)

	for i := 0; i < 16; i++ {
		mode := string(rune('a' + i))
		require.NoError(t, db.SetReplay(Record{ID: idFill(mode), Result: "win", Mode: mode, Source: "u"}))
	}

	// Mode dictionary capacity is 128 names (7 bits), well above 16, so
	// push the result dictionary (4 bits, 16 names) past capacity instead.
	// "win" already occupies one of the 16 slots, leaving room for 15 more
	// distinct results before the dictionary is completely full.
	for i := 0; i < 15; i++ {
		result := "r" + string(rune('a'+i))
		require.NoError(t, db.SetReplay(Record{ID: idFill(result), Result: result, Mode: "std", Source: "u"}))
	}

	err := db.SetReplay(Record{ID: idFill("overflow"), Result: "one-too-many", Mode: "std", Source: "u"})
	assert.ErrorIs(t, err, ErrResultOverflow)
}

// idFill returns s unchanged; replay rows store ids in a NUL-padded
// fixed-width field and strip the padding back off on read, so any id up
// to idSize bytes round-trips exactly.
func idFill(s string) string {
	return s
}
