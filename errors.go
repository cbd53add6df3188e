package replaydb

import "errors"

// ErrInvalidCardCount is returned by New when cardCount is not positive.
var ErrInvalidCardCount = errors.New("replaydb: card count must be positive")

// ErrModeOverflow, ErrSourceOverflow and ErrResultOverflow are returned by
// SetReplay when a previously unseen mode, source or result name would
// exceed that dictionary's fixed bit width. Existing names keep working;
// this only rejects the insert that would have grown the dictionary past
// capacity.
var (
	ErrModeOverflow   = errors.New("replaydb: mode dictionary is full")
	ErrSourceOverflow = errors.New("replaydb: source dictionary is full")
	ErrResultOverflow = errors.New("replaydb: result dictionary is full")
)
