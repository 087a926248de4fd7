package app

import (
	"time"

	"domino/internal/domain"
)

// EventKind identifies emitted game events for Nakama dispatch.
type EventKind string

const (
	EventRoundStarted   EventKind = "round_started"
	EventHandDealt      EventKind = "hand_dealt"
	EventMoveApplied    EventKind = "move_applied"
	EventTileDrawn      EventKind = "tile_drawn"
	EventTurnChanged    EventKind = "turn_changed"
	EventRoundScored    EventKind = "round_scored"
	EventMatchBlocked   EventKind = "match_blocked"
	EventMatchCompleted EventKind = "match_completed"
)

// Event is a game event with optional targeted recipients.
type Event struct {
	Kind       EventKind
	Payload    any
	Recipients []string // user IDs; empty means broadcast
}

// RoundStartedPayload announces a fresh deal. Hands travel separately in
// private hand_dealt events.
type RoundStartedPayload struct {
	Round       int   `json:"round"`
	StarterSeat int   `json:"starter_seat"`
	HandCounts  []int `json:"hand_counts"`
	PileSize    int   `json:"pile_size"`
}

type HandDealtPayload struct {
	Seat int           `json:"seat"`
	Hand []domain.Tile `json:"hand"`
}

// MoveAppliedPayload is the broadcast state delta for an accepted command.
// Draw moves omit the tile; it is delivered privately via tile_drawn.
type MoveAppliedPayload struct {
	Seat       int             `json:"seat"`
	Kind       domain.MoveKind `json:"kind"`
	Tile       *domain.Tile    `json:"tile,omitempty"`
	Side       domain.Side     `json:"side,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	AutoPassed bool            `json:"auto_passed,omitempty"`
	OpenLeft   *int            `json:"open_left,omitempty"`
	OpenRight  *int            `json:"open_right,omitempty"`
	HandCounts []int           `json:"hand_counts"`
	PileSize   int             `json:"pile_size"`
}

// TileDrawnPayload is sent only to the seat that drew.
type TileDrawnPayload struct {
	Seat int         `json:"seat"`
	Tile domain.Tile `json:"tile"`
}

type TurnChangedPayload struct {
	Seat          int       `json:"seat"`
	TurnStartedAt time.Time `json:"turn_started_at"`
}

// RoundScoredPayload carries the resolver output for a terminal round.
type RoundScoredPayload struct {
	Result domain.RoundResult `json:"result"`
}

// MatchBlockedPayload announces a blocked board before scoring details.
type MatchBlockedPayload struct {
	WinnerSeat int   `json:"winner_seat"`
	PipCounts  []int `json:"pip_counts"`
}

type MatchCompletedPayload struct {
	WinnerSeat int              `json:"winner_seat"`
	Reason     domain.EndReason `json:"reason"`
	Scores     []int            `json:"scores"`
}
