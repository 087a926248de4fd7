package domain

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// MaxPip is the highest pip value in a double-six set.
const MaxPip = 6

// TileSetSize is the number of distinct tiles in a double-six set.
const TileSetSize = 28

// Tile is an unordered pair of pip values. {2,5} and {5,2} are the same tile.
type Tile struct {
	A int `json:"a"`
	B int `json:"b"`
}

// IsDouble reports whether both pip values are equal.
func (t Tile) IsDouble() bool {
	return t.A == t.B
}

// PipSum returns the combined pip value of the tile.
func (t Tile) PipSum() int {
	return t.A + t.B
}

// Equals compares two tiles ignoring orientation.
func (t Tile) Equals(other Tile) bool {
	return (t.A == other.A && t.B == other.B) || (t.A == other.B && t.B == other.A)
}

// HasPip reports whether either side of the tile carries the given pip value.
func (t Tile) HasPip(pip int) bool {
	return t.A == pip || t.B == pip
}

// key returns a canonical identity for set-membership checks.
func (t Tile) key() [2]int {
	if t.A <= t.B {
		return [2]int{t.A, t.B}
	}
	return [2]int{t.B, t.A}
}

// NewTileSet returns the 28 canonical tiles of a double-six set in enumeration order.
func NewTileSet() []Tile {
	tiles := make([]Tile, 0, TileSetSize)
	for a := 0; a <= MaxPip; a++ {
		for b := a; b <= MaxPip; b++ {
			tiles = append(tiles, Tile{A: a, B: b})
		}
	}
	return tiles
}

// SecureShuffle permutes tiles in place with a Fisher-Yates walk driven by
// crypto/rand. Deals decide real stakes, so a seedable PRNG is not acceptable
// here.
func SecureShuffle(tiles []Tile) {
	for i := len(tiles) - 1; i > 0; i-- {
		j := secureIntn(i + 1)
		tiles[i], tiles[j] = tiles[j], tiles[i]
	}
}

// secureIntn returns a uniform-enough value in [0,n) from secure random bytes
// reduced modulo the remaining range.
func secureIntn(n int) int {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the platform entropy source is broken;
		// dealing must not proceed on a predictable fallback.
		panic(fmt.Sprintf("secure shuffle: %v", err))
	}
	return int(binary.BigEndian.Uint64(buf[:]) % uint64(n))
}

// HandSizeFor returns the tiles dealt per seat for a supported seat count:
// 9 for heads-up, 7 for three or four seats.
func HandSizeFor(seatCount int) int {
	if seatCount == 2 {
		return 9
	}
	return 7
}

// Deal shuffles a fresh tile set and slices it into seatCount hands of
// tilesPerSeat tiles each, in seat order. The remainder becomes the draw pile.
func Deal(seatCount, tilesPerSeat int) (hands [][]Tile, pile []Tile, err error) {
	if seatCount < 2 || tilesPerSeat < 1 {
		return nil, nil, fmt.Errorf("deal: invalid configuration %dx%d", seatCount, tilesPerSeat)
	}
	if seatCount*tilesPerSeat > TileSetSize {
		return nil, nil, fmt.Errorf("deal: %d seats x %d tiles exceeds set size %d", seatCount, tilesPerSeat, TileSetSize)
	}

	tiles := NewTileSet()
	SecureShuffle(tiles)

	hands = make([][]Tile, seatCount)
	idx := 0
	for s := 0; s < seatCount; s++ {
		hands[s] = append([]Tile(nil), tiles[idx:idx+tilesPerSeat]...)
		idx += tilesPerSeat
	}
	pile = append([]Tile(nil), tiles[idx:]...)
	return hands, pile, nil
}

// RemainingPips sums both pip values of every tile in the hand.
func RemainingPips(hand []Tile) int {
	total := 0
	for _, t := range hand {
		total += t.PipSum()
	}
	return total
}

// RemoveTile removes one occurrence of the tile from the hand.
// The second return value reports whether the tile was present.
func RemoveTile(hand []Tile, tile Tile) ([]Tile, bool) {
	for i, t := range hand {
		if t.Equals(tile) {
			out := make([]Tile, 0, len(hand)-1)
			out = append(out, hand[:i]...)
			out = append(out, hand[i+1:]...)
			return out, true
		}
	}
	return hand, false
}

// ContainsTile reports whether the hand holds the tile.
func ContainsTile(hand []Tile, tile Tile) bool {
	for _, t := range hand {
		if t.Equals(tile) {
			return true
		}
	}
	return false
}
