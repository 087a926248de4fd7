package domain

import (
	"fmt"
	"time"
)

// GameState is the lifecycle state of a single round.
type GameState string

const (
	// GameActive is the only state that accepts commands.
	GameActive GameState = "active"
	// GameCompleted means a seat emptied its hand.
	GameCompleted GameState = "completed"
	// GameBlocked means no seat could move and the pile was exhausted,
	// or the whole table cycled through passes.
	GameBlocked GameState = "blocked"
	// GameCancelled means the room tore the round down before a result.
	GameCancelled GameState = "cancelled"
)

// EndReason records why a round reached a terminal state.
type EndReason string

const (
	EndEmptiedHand  EndReason = "emptied_hand"
	EndBoardBlocked EndReason = "board_blocked"
	EndCancelled    EndReason = "cancelled"
)

// MoveKind classifies entries of the move log.
type MoveKind string

const (
	MovePlace MoveKind = "place"
	MoveDraw  MoveKind = "draw"
	MovePass  MoveKind = "pass"
)

// Pass reasons carried on pass move records.
const (
	PassReasonManual        = "manual"
	PassReasonTurnTimeout   = "turn_timeout"
	PassReasonAutoAfterDraw = "auto_pass_after_draw"
)

// blockedPassThreshold is the consecutive-pass count per seat after which the
// round is declared blocked even if a draw is technically still possible.
const blockedPassThreshold = 2

// Seat is one position at the table. Index is the stable identity across the
// room/game handoff. Score accumulates across rounds in points mode.
type Seat struct {
	Index             int    `json:"index"`
	UserID            string `json:"user_id"`
	IsBot             bool   `json:"is_bot"`
	Connected         bool   `json:"connected"`
	ConsecutivePasses int    `json:"consecutive_passes"`
	Score             int    `json:"score"`
	Hand              []Tile `json:"hand"`
}

// Move is an applied command in the order it was accepted.
type Move struct {
	Seat     int       `json:"seat"`
	Kind     MoveKind  `json:"kind"`
	Tile     *Tile     `json:"tile,omitempty"`
	Side     Side      `json:"side,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	PlayedAt time.Time `json:"played_at"`
}

// Game is the authoritative state of one round. It is mutated only through
// the Apply* commands and becomes immutable once terminal.
type Game struct {
	State         GameState `json:"state"`
	Round         int       `json:"round"`
	Seats         []*Seat   `json:"seats"`
	Board         Board     `json:"board"`
	Pile          []Tile    `json:"pile"`
	CurrentSeat   int       `json:"current_seat"`
	TurnStartedAt time.Time `json:"turn_started_at"`
	Moves         []Move    `json:"moves"`
	WinnerSeat    int       `json:"winner_seat"`
	EndReason     EndReason `json:"end_reason,omitempty"`
}

// NewGame deals a fresh round for the given seats. Seats keep their index,
// identity, connectivity and cumulative score; hands and pass counters are
// reset. The starter seat takes the first turn (advanced past disconnected
// seats).
func NewGame(seats []*Seat, round, starterSeat int, now time.Time) (*Game, error) {
	hands, pile, err := Deal(len(seats), HandSizeFor(len(seats)))
	if err != nil {
		return nil, err
	}

	g := &Game{
		State:      GameActive,
		Round:      round,
		Seats:      seats,
		Pile:       pile,
		WinnerSeat: -1,
	}
	for i, seat := range seats {
		seat.Index = i
		seat.Hand = hands[i]
		seat.ConsecutivePasses = 0
	}

	if starterSeat < 0 || starterSeat >= len(seats) {
		starterSeat = 0
	}
	g.CurrentSeat = starterSeat
	if !g.Seats[starterSeat].Connected && !g.Seats[starterSeat].IsBot {
		g.advanceTurn(now)
	} else {
		g.TurnStartedAt = now
	}
	return g, nil
}

// Clone returns a deep copy. Commands are applied to a clone so the current
// and proposed states stay distinct without serialization round-trips.
func (g *Game) Clone() *Game {
	out := *g
	out.Seats = make([]*Seat, len(g.Seats))
	for i, seat := range g.Seats {
		s := *seat
		s.Hand = append([]Tile(nil), seat.Hand...)
		out.Seats[i] = &s
	}
	out.Board = append(Board(nil), g.Board...)
	out.Pile = append([]Tile(nil), g.Pile...)
	out.Moves = append([]Move(nil), g.Moves...)
	return &out
}

// SeatByUserID resolves a seat by its occupant, or nil.
func (g *Game) SeatByUserID(userID string) *Seat {
	for _, seat := range g.Seats {
		if seat.UserID == userID {
			return seat
		}
	}
	return nil
}

// Terminal reports whether the round has ended.
func (g *Game) Terminal() bool {
	return g.State != GameActive
}

func (g *Game) validateActor(seatIndex int) error {
	if g.State != GameActive {
		return ErrGameNotActive
	}
	if seatIndex < 0 || seatIndex >= len(g.Seats) {
		return ErrInvalidAction
	}
	if seatIndex != g.CurrentSeat {
		return ErrNotYourTurn
	}
	return nil
}

// ApplyPlace plays a tile from the acting seat's hand onto the given side.
func (g *Game) ApplyPlace(seatIndex int, tile Tile, side Side, now time.Time) error {
	if err := g.validateActor(seatIndex); err != nil {
		return err
	}
	if side != SideLeft && side != SideRight {
		return ErrInvalidAction
	}
	seat := g.Seats[seatIndex]
	if !ContainsTile(seat.Hand, tile) {
		return ErrTileNotInHand
	}

	board, err := g.Board.Place(tile, side)
	if err != nil {
		return err
	}

	seat.Hand, _ = RemoveTile(seat.Hand, tile)
	g.Board = board
	seat.ConsecutivePasses = 0
	t := tile
	g.Moves = append(g.Moves, Move{Seat: seatIndex, Kind: MovePlace, Tile: &t, Side: side, PlayedAt: now})

	if len(seat.Hand) == 0 {
		g.State = GameCompleted
		g.EndReason = EndEmptiedHand
		g.WinnerSeat = seatIndex
		return nil
	}

	g.advanceTurn(now)
	return nil
}

// ApplyDraw moves the top pile tile into the acting seat's hand. When the
// enlarged hand still has no legal placement the draw cascades into a
// system pass so the seat never sits on an unplayable turn.
func (g *Game) ApplyDraw(seatIndex int, now time.Time) (drawn Tile, autoPassed bool, err error) {
	if err := g.validateActor(seatIndex); err != nil {
		return Tile{}, false, err
	}
	if len(g.Pile) == 0 {
		return Tile{}, false, ErrDrawPileEmpty
	}

	seat := g.Seats[seatIndex]
	drawn = g.Pile[len(g.Pile)-1]
	g.Pile = g.Pile[:len(g.Pile)-1]
	seat.Hand = append(seat.Hand, drawn)
	seat.ConsecutivePasses = 0
	t := drawn
	g.Moves = append(g.Moves, Move{Seat: seatIndex, Kind: MoveDraw, Tile: &t, PlayedAt: now})

	if !g.hasLegalPlacement(seatIndex) {
		if err := g.ApplyPass(seatIndex, PassReasonAutoAfterDraw, now); err != nil {
			return drawn, false, err
		}
		return drawn, true, nil
	}
	return drawn, false, nil
}

// ApplyPass forfeits the turn. Blocked detection runs after every pass.
func (g *Game) ApplyPass(seatIndex int, reason string, now time.Time) error {
	if err := g.validateActor(seatIndex); err != nil {
		return err
	}
	if reason == "" {
		reason = PassReasonManual
	}

	seat := g.Seats[seatIndex]
	seat.ConsecutivePasses++
	g.Moves = append(g.Moves, Move{Seat: seatIndex, Kind: MovePass, Reason: reason, PlayedAt: now})

	if g.blocked() {
		g.State = GameBlocked
		g.EndReason = EndBoardBlocked
		g.WinnerSeat = g.blockWinner()
		return nil
	}

	g.advanceTurn(now)
	return nil
}

// hasLegalPlacement reports whether the seat can place any tile.
func (g *Game) hasLegalPlacement(seatIndex int) bool {
	for _, tile := range g.Seats[seatIndex].Hand {
		if len(g.Board.CanPlace(tile)) > 0 {
			return true
		}
	}
	return false
}

// CanDraw reports whether a draw command would be accepted for the seat.
func (g *Game) CanDraw() bool {
	return len(g.Pile) > 0
}

// HasLegalPlacement is the exported probe used by timeout handling and the
// automated policy. It never mutates state.
func (g *Game) HasLegalPlacement(seatIndex int) bool {
	if seatIndex < 0 || seatIndex >= len(g.Seats) {
		return false
	}
	return g.hasLegalPlacement(seatIndex)
}

// blocked evaluates both block conditions: no legal placement anywhere with
// an exhausted pile, or the whole table cycling through passes.
func (g *Game) blocked() bool {
	if len(g.Pile) == 0 {
		anyMove := false
		for i := range g.Seats {
			if g.hasLegalPlacement(i) {
				anyMove = true
				break
			}
		}
		if !anyMove {
			return true
		}
	}

	for _, seat := range g.Seats {
		if seat.ConsecutivePasses < blockedPassThreshold {
			return false
		}
	}
	return true
}

// blockWinner picks the seat with the lowest remaining pip total. Ties break
// to the lowest seat index.
func (g *Game) blockWinner() int {
	winner := 0
	best := RemainingPips(g.Seats[0].Hand)
	for i := 1; i < len(g.Seats); i++ {
		if pips := RemainingPips(g.Seats[i].Hand); pips < best {
			winner, best = i, pips
		}
	}
	return winner
}

// advanceTurn hands the turn to the next connected seat, scanning forward at
// most one full lap. When every other seat is unreachable the index is left
// unchanged and the caller must treat the game as stalled.
func (g *Game) advanceTurn(now time.Time) {
	n := len(g.Seats)
	for step := 1; step <= n; step++ {
		candidate := (g.CurrentSeat + step) % n
		seat := g.Seats[candidate]
		if seat.Connected || seat.IsBot {
			g.CurrentSeat = candidate
			g.TurnStartedAt = now
			return
		}
	}
}

// Cancel forces the round into the cancelled terminal state.
func (g *Game) Cancel() {
	if g.State == GameActive {
		g.State = GameCancelled
		g.EndReason = EndCancelled
	}
}

// CheckIntegrity verifies that the union of all hands, the draw pile and the
// board contains exactly the 28 canonical tiles, each exactly once.
func (g *Game) CheckIntegrity() error {
	seen := make(map[[2]int]int, TileSetSize)
	count := 0

	record := func(t Tile, where string) error {
		if t.A < 0 || t.A > MaxPip || t.B < 0 || t.B > MaxPip {
			return fmt.Errorf("%w: tile %d|%d out of range in %s", ErrIntegrity, t.A, t.B, where)
		}
		k := t.key()
		seen[k]++
		if seen[k] > 1 {
			return fmt.Errorf("%w: tile %d|%d duplicated in %s", ErrIntegrity, k[0], k[1], where)
		}
		count++
		return nil
	}

	for _, seat := range g.Seats {
		for _, t := range seat.Hand {
			if err := record(t, fmt.Sprintf("seat %d hand", seat.Index)); err != nil {
				return err
			}
		}
	}
	for _, t := range g.Pile {
		if err := record(t, "draw pile"); err != nil {
			return err
		}
	}
	for _, p := range g.Board {
		if err := record(p.Tile, "board"); err != nil {
			return err
		}
	}

	if count != TileSetSize {
		return fmt.Errorf("%w: %d tiles in play, want %d", ErrIntegrity, count, TileSetSize)
	}
	return nil
}
