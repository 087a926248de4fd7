package bot

import (
	"fmt"

	"domino/internal/domain"
)

// GreedyBrain plays the strongest legal placement: doubles before
// non-doubles, then the higher pip sum. With no placement it draws while the
// pile lasts and passes otherwise. The ordering is deterministic so replays
// and tests see identical decisions.
type GreedyBrain struct{}

// candidate is one legal (tile, side) placement.
type candidate struct {
	tile domain.Tile
	side domain.Side
}

func (b *GreedyBrain) CalculateMove(game *domain.Game, seatIndex int) (Move, error) {
	if game == nil || seatIndex < 0 || seatIndex >= len(game.Seats) {
		return Move{}, fmt.Errorf("greedy brain: seat %d out of range", seatIndex)
	}
	seat := game.Seats[seatIndex]

	var moves []candidate
	for _, tile := range seat.Hand {
		for _, side := range game.Board.CanPlace(tile) {
			moves = append(moves, candidate{tile: tile, side: side})
		}
	}

	if len(moves) == 0 {
		if game.CanDraw() {
			return Move{Action: ActionDraw}, nil
		}
		return Move{Action: ActionPass}, nil
	}

	best := moves[0]
	for _, m := range moves[1:] {
		if betterPlacement(m, best) {
			best = m
		}
	}
	return Move{Action: ActionPlace, Tile: best.tile, Side: best.side}, nil
}

// betterPlacement orders candidates: double beats non-double, then higher
// pip sum. Hand order breaks remaining ties, which is stable because hands
// are only appended to.
func betterPlacement(a, b candidate) bool {
	if a.tile.IsDouble() != b.tile.IsDouble() {
		return a.tile.IsDouble()
	}
	return a.tile.PipSum() > b.tile.PipSum()
}
