package bot

import (
	"domino/internal/domain"
)

// Action is the command category an automated seat submits.
type Action string

const (
	ActionPlace Action = "place"
	ActionDraw  Action = "draw"
	ActionPass  Action = "pass"
)

// Move is the decision produced by a brain. Tile and Side are only
// meaningful for ActionPlace.
type Move struct {
	Action Action
	Tile   domain.Tile
	Side   domain.Side
}

// Brain picks exactly one of place/draw/pass for the seat on turn. It must
// be a pure function of the visible game state and never block.
type Brain interface {
	CalculateMove(game *domain.Game, seatIndex int) (Move, error)
}
