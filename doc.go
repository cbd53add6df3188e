// Package replaydb implements an in-memory, disk-persisted index over a
// card game's replays, answering two queries: the most recent games
// matching a set of scalar filters (NewGames), and the replays whose
// decks best overlap a queried pair of decks (Search).
//
// Replays are stored in two parallel, fixed-width row tables: a hot
// search table scanned on every query, and a cold replay table holding
// the full field set, read only for rows that already passed filtering.
// Variable-length text is interned once into an append-only string pool
// and referenced by byte offset; mode, source and result names are
// interned into small bit-packed dictionaries. The whole state can be
// written to and read back from a single `.rrdb` file (see package
// internal/archive).
package replaydb
