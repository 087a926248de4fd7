package app

import (
	"fmt"
	"time"

	"domino/internal/domain"
)

// Service contains the game use-cases operating on domain state. Every
// command is applied to a clone of the current game and the clone is only
// handed back on success, so a rejected command can never leave the caller
// with a half-applied state.
type Service struct {
	mode   domain.ScoringMode
	target int
}

// NewService constructs a Service for one room's scoring configuration.
// target is only consulted in points mode.
func NewService(mode domain.ScoringMode, target int) *Service {
	if !domain.ValidScoringMode(mode) {
		mode = domain.ScoringStandard
	}
	return &Service{mode: mode, target: target}
}

// Mode returns the scoring rule this service resolves rounds under.
func (s *Service) Mode() domain.ScoringMode {
	return s.mode
}

// StartRound deals a fresh round for the given seats. Seats keep cumulative
// scores across rounds; hands and counters are reset by the deal.
func (s *Service) StartRound(seats []*domain.Seat, round, starterSeat int, now time.Time) (*domain.Game, []Event, error) {
	if len(seats) < MinSeats || len(seats) > MaxSeats {
		return nil, nil, fmt.Errorf("start round: %d seats outside supported range", len(seats))
	}

	game, err := domain.NewGame(seats, round, starterSeat, now)
	if err != nil {
		return nil, nil, err
	}
	// A deal that cannot account for every tile must never reach players.
	if err := game.CheckIntegrity(); err != nil {
		return nil, nil, err
	}

	handCounts := make([]int, len(game.Seats))
	events := make([]Event, 0, len(game.Seats)+2)
	for i, seat := range game.Seats {
		handCounts[i] = len(seat.Hand)
		if seat.IsBot {
			continue
		}
		events = append(events, Event{
			Kind:       EventHandDealt,
			Payload:    HandDealtPayload{Seat: i, Hand: seat.Hand},
			Recipients: []string{seat.UserID},
		})
	}

	events = append(events,
		Event{Kind: EventRoundStarted, Payload: RoundStartedPayload{
			Round:       game.Round,
			StarterSeat: game.CurrentSeat,
			HandCounts:  handCounts,
			PileSize:    len(game.Pile),
		}},
		Event{Kind: EventTurnChanged, Payload: TurnChangedPayload{
			Seat:          game.CurrentSeat,
			TurnStartedAt: game.TurnStartedAt,
		}},
	)
	return game, events, nil
}

// PlaceTile applies a PLACE command and returns the committed snapshot.
func (s *Service) PlaceTile(game *domain.Game, seatIndex int, tile domain.Tile, side domain.Side, now time.Time) (*domain.Game, []Event, error) {
	work := game.Clone()
	if err := work.ApplyPlace(seatIndex, tile, side, now); err != nil {
		return game, nil, err
	}

	t := tile
	events := []Event{s.moveApplied(work, MoveAppliedPayload{
		Seat: seatIndex,
		Kind: domain.MovePlace,
		Tile: &t,
		Side: side,
	})}
	events = append(events, s.afterCommand(work)...)
	return work, events, nil
}

// DrawTile applies a DRAW command. The drawn tile is delivered privately to
// the acting seat; when the draw cascades into a system pass the broadcast
// carries the reason tag so clients can render it distinctly.
func (s *Service) DrawTile(game *domain.Game, seatIndex int, now time.Time) (*domain.Game, []Event, error) {
	work := game.Clone()
	drawn, autoPassed, err := work.ApplyDraw(seatIndex, now)
	if err != nil {
		return game, nil, err
	}

	seat := work.Seats[seatIndex]
	events := make([]Event, 0, 4)
	if !seat.IsBot {
		events = append(events, Event{
			Kind:       EventTileDrawn,
			Payload:    TileDrawnPayload{Seat: seatIndex, Tile: drawn},
			Recipients: []string{seat.UserID},
		})
	}

	payload := MoveAppliedPayload{
		Seat:       seatIndex,
		Kind:       domain.MoveDraw,
		AutoPassed: autoPassed,
	}
	if autoPassed {
		payload.Reason = domain.PassReasonAutoAfterDraw
	}
	events = append(events, s.moveApplied(work, payload))
	events = append(events, s.afterCommand(work)...)
	return work, events, nil
}

// PassTurn applies a PASS command with the given reason tag.
func (s *Service) PassTurn(game *domain.Game, seatIndex int, reason string, now time.Time) (*domain.Game, []Event, error) {
	work := game.Clone()
	if err := work.ApplyPass(seatIndex, reason, now); err != nil {
		return game, nil, err
	}

	events := []Event{s.moveApplied(work, MoveAppliedPayload{
		Seat:   seatIndex,
		Kind:   domain.MovePass,
		Reason: reason,
	})}
	events = append(events, s.afterCommand(work)...)
	return work, events, nil
}

// ResolveRound runs the scoring resolver against a terminal game.
func (s *Service) ResolveRound(game *domain.Game) (domain.RoundResult, error) {
	return domain.ResolveRound(game, s.mode, s.target)
}

// moveApplied fills the shared board/hand summary onto the payload.
func (s *Service) moveApplied(game *domain.Game, payload MoveAppliedPayload) Event {
	payload.HandCounts = make([]int, len(game.Seats))
	for i, seat := range game.Seats {
		payload.HandCounts[i] = len(seat.Hand)
	}
	payload.PileSize = len(game.Pile)
	if left, right, ok := game.Board.OpenEnds(); ok {
		l, r := left, right
		payload.OpenLeft, payload.OpenRight = &l, &r
	}
	return Event{Kind: EventMoveApplied, Payload: payload}
}

// afterCommand emits the follow-up events for a committed command: either the
// next turn announcement or the terminal round resolution.
func (s *Service) afterCommand(game *domain.Game) []Event {
	if !game.Terminal() {
		return []Event{{Kind: EventTurnChanged, Payload: TurnChangedPayload{
			Seat:          game.CurrentSeat,
			TurnStartedAt: game.TurnStartedAt,
		}}}
	}

	result, err := s.ResolveRound(game)
	if err != nil {
		// Cancelled rounds resolve nothing; the room layer handles refunds.
		return nil
	}

	var events []Event
	if game.State == domain.GameBlocked {
		events = append(events, Event{Kind: EventMatchBlocked, Payload: MatchBlockedPayload{
			WinnerSeat: result.WinnerSeat,
			PipCounts:  result.PipCounts,
		}})
	}
	events = append(events, Event{Kind: EventRoundScored, Payload: RoundScoredPayload{Result: result}})
	if result.MatchOver {
		events = append(events, Event{Kind: EventMatchCompleted, Payload: MatchCompletedPayload{
			WinnerSeat: result.MatchWinnerSeat,
			Reason:     result.Reason,
			Scores:     result.Scores,
		}})
	}
	return events
}
