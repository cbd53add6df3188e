package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteSizeIsAligned(t *testing.T) {
	assert.Equal(t, 8, ByteSize(1))
	assert.Equal(t, 8, ByteSize(64))
	assert.Equal(t, 16, ByteSize(65))
}

func TestBuildSetsMSBFirstBit(t *testing.T) {
	s := Build(16, []int{0}, nil)
	// Card index 0 sets the high bit of byte 0.
	assert.Equal(t, byte(0x80), s.Deck0(false)[0])

	s = Build(16, []int{7}, nil)
	assert.Equal(t, byte(0x01), s.Deck0(false)[0])

	s = Build(16, []int{8}, nil)
	assert.Equal(t, byte(0x80), s.Deck0(false)[1])
}

func TestFlippedSwapsDecks(t *testing.T) {
	s := Build(16, []int{0}, []int{8})

	assert.Equal(t, s.Deck0(false), s.Deck1(true))
	assert.Equal(t, s.Deck1(false), s.Deck0(true))
}

func TestBuildIgnoresOutOfRangeIndexes(t *testing.T) {
	s := Build(8, []int{-1, 1000}, nil)
	for _, b := range s.Normal {
		assert.Equal(t, byte(0), b)
	}
}
