package domain

// Side identifies which open end of the chain a tile attaches to.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// PlacedTile is one link of the chain. Left and Right are the tile's pip
// values after orientation: Right of record i always equals Left of record
// i+1, and the board's open ends are the first record's Left and the last
// record's Right.
type PlacedTile struct {
	Tile     Tile `json:"tile"`
	Left     int  `json:"left"`
	Right    int  `json:"right"`
	Side     Side `json:"side"`
	Position int  `json:"position"`
}

// Board is the ordered chain of placed tiles.
type Board []PlacedTile

// OpenEnds returns the two open pip values of the chain.
// ok is false for an empty board.
func (b Board) OpenEnds() (left, right int, ok bool) {
	if len(b) == 0 {
		return 0, 0, false
	}
	return b[0].Left, b[len(b)-1].Right, true
}

// CanPlace returns the sides the tile may legally attach to. An empty board
// accepts any tile on either side.
func (b Board) CanPlace(tile Tile) []Side {
	left, right, ok := b.OpenEnds()
	if !ok {
		return []Side{SideLeft, SideRight}
	}

	var sides []Side
	if tile.HasPip(left) {
		sides = append(sides, SideLeft)
	}
	if tile.HasPip(right) {
		sides = append(sides, SideRight)
	}
	return sides
}

// CanPlaceOn reports whether the tile may attach to the given side.
func (b Board) CanPlaceOn(tile Tile, side Side) bool {
	for _, s := range b.CanPlace(tile) {
		if s == side {
			return true
		}
	}
	return false
}

// Place attaches the tile to the given side and returns the grown board.
// The tile is oriented so the matching pip touches the existing open end:
// attaching on the right, the value equal to the current right end leads and
// the other value becomes the new open end. Scoring and OpenEnds rely on
// this orientation. Positions are re-indexed after the mutation.
func (b Board) Place(tile Tile, side Side) (Board, error) {
	if !b.CanPlaceOn(tile, side) {
		return b, ErrIllegalPlacement
	}

	left, right, occupied := b.OpenEnds()
	record := PlacedTile{Tile: tile, Side: side}

	var out Board
	switch {
	case !occupied:
		record.Left, record.Right = tile.A, tile.B
		out = append(Board{}, record)
	case side == SideRight:
		if tile.A == right {
			record.Left, record.Right = tile.A, tile.B
		} else {
			record.Left, record.Right = tile.B, tile.A
		}
		out = append(append(Board{}, b...), record)
	default:
		if tile.A == left {
			record.Left, record.Right = tile.B, tile.A
		} else {
			record.Left, record.Right = tile.A, tile.B
		}
		out = append(Board{record}, b...)
	}

	for i := range out {
		out[i].Position = i
	}
	return out, nil
}

// Tiles returns the raw tiles on the board in chain order.
func (b Board) Tiles() []Tile {
	tiles := make([]Tile, len(b))
	for i, p := range b {
		tiles[i] = p.Tile
	}
	return tiles
}
