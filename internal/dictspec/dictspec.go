// Package dictspec names the fixed bit widths the replay row format
// reserves for each dictionary-encoded field, shared between the root
// package and anything that needs to size a Dictionary consistently.
package dictspec

// Bit widths for the packed ReplayBits word: ranked is a flag, mode /
// source / result are dictionary indexes.
const (
	RankedBits = 1
	ModeBits   = 7
	SourceBits = 6
	ResultBits = 4
)

// ModeCapacity, SourceCapacity and ResultCapacity are the maximum number
// of distinct dictionary entries the corresponding bit width can address.
const (
	ModeCapacity   = 1 << ModeBits
	SourceCapacity = 1 << SourceBits
	ResultCapacity = 1 << ResultBits
)
