package domain

import "errors"

// Command rejections. All of these are local validation failures: the game
// state is untouched and the caller decides whether to retry or force a pass.
var (
	ErrGameNotActive    = errors.New("invalid-action: game is not active")
	ErrNotYourTurn      = errors.New("not-your-turn: command from a seat that is not on turn")
	ErrTileNotInHand    = errors.New("tile-not-in-hand: acting seat does not hold the tile")
	ErrIllegalPlacement = errors.New("illegal-placement: tile does not match the open end")
	ErrDrawPileEmpty    = errors.New("draw-pile-empty: no tiles left to draw")
	ErrInvalidAction    = errors.New("invalid-action: malformed command")
)

// ErrIntegrity is returned by CheckIntegrity when the tiles in play no longer
// form exactly one canonical set. A game failing this check must not be
// persisted.
var ErrIntegrity = errors.New("tile set integrity violated")
