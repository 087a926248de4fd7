package app

import (
	"errors"
	"testing"
	"time"

	"domino/internal/domain"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testSeats(n int) []*domain.Seat {
	seats := make([]*domain.Seat, n)
	ids := []string{"u0", "u1", "u2", "u3"}
	for i := 0; i < n; i++ {
		seats[i] = &domain.Seat{UserID: ids[i], Connected: true}
	}
	return seats
}

func TestStartRoundDealsHands(t *testing.T) {
	svc := NewService(domain.ScoringStandard, 0)

	game, events, err := svc.StartRound(testSeats(2), 1, 0, testNow)
	if err != nil {
		t.Fatalf("start round: %v", err)
	}
	if game.State != domain.GameActive {
		t.Fatalf("state = %s, want active", game.State)
	}

	handEvents := 0
	for _, ev := range events {
		if ev.Kind == EventHandDealt {
			handEvents++
			payload := ev.Payload.(HandDealtPayload)
			if len(payload.Hand) != 9 {
				t.Fatalf("hand size = %d, want 9", len(payload.Hand))
			}
			if len(ev.Recipients) != 1 {
				t.Fatalf("hand_dealt must be private, recipients = %v", ev.Recipients)
			}
		}
	}
	if handEvents != 2 {
		t.Fatalf("hand events = %d, want 2", handEvents)
	}

	last := events[len(events)-1]
	if last.Kind != EventTurnChanged {
		t.Fatalf("last event = %s, want turn_changed", last.Kind)
	}
}

func TestStartRoundSkipsBotHandEvents(t *testing.T) {
	svc := NewService(domain.ScoringStandard, 0)
	seats := testSeats(2)
	seats[1].IsBot = true

	_, events, err := svc.StartRound(seats, 1, 0, testNow)
	if err != nil {
		t.Fatalf("start round: %v", err)
	}
	for _, ev := range events {
		if ev.Kind == EventHandDealt {
			payload := ev.Payload.(HandDealtPayload)
			if payload.Seat == 1 {
				t.Fatalf("bot seat received a hand_dealt event")
			}
		}
	}
}

func TestPlaceTileCommitsSnapshot(t *testing.T) {
	svc := NewService(domain.ScoringStandard, 0)
	game, _, err := svc.StartRound(testSeats(2), 1, 0, testNow)
	if err != nil {
		t.Fatalf("start round: %v", err)
	}

	// Force a deterministic layout for the acting seat.
	game.Seats[0].Hand = []domain.Tile{{A: 5, B: 5}, {A: 1, B: 2}}
	game.Seats[1].Hand = []domain.Tile{{A: 0, B: 6}}
	game.Board = nil

	next, events, err := svc.PlaceTile(game, 0, domain.Tile{A: 5, B: 5}, domain.SideRight, testNow)
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	// The input snapshot must be untouched.
	if len(game.Board) != 0 {
		t.Fatalf("input game mutated")
	}
	if len(next.Board) != 1 {
		t.Fatalf("committed board = %d records, want 1", len(next.Board))
	}

	if events[0].Kind != EventMoveApplied {
		t.Fatalf("first event = %s, want move_applied", events[0].Kind)
	}
	payload := events[0].Payload.(MoveAppliedPayload)
	if payload.OpenLeft == nil || *payload.OpenLeft != 5 {
		t.Fatalf("open left = %v, want 5", payload.OpenLeft)
	}
	if events[1].Kind != EventTurnChanged {
		t.Fatalf("second event = %s, want turn_changed", events[1].Kind)
	}
}

func TestPlaceTileRejectionLeavesGame(t *testing.T) {
	svc := NewService(domain.ScoringStandard, 0)
	game, _, err := svc.StartRound(testSeats(2), 1, 0, testNow)
	if err != nil {
		t.Fatalf("start round: %v", err)
	}

	same, events, err := svc.PlaceTile(game, 1, domain.Tile{A: 0, B: 0}, domain.SideRight, testNow)
	if !errors.Is(err, domain.ErrNotYourTurn) {
		t.Fatalf("err = %v, want ErrNotYourTurn", err)
	}
	if same != game {
		t.Fatalf("rejected command should return the original snapshot")
	}
	if len(events) != 0 {
		t.Fatalf("rejected command emitted events: %v", events)
	}
}

func TestDrawTileDeliversPrivately(t *testing.T) {
	svc := NewService(domain.ScoringStandard, 0)
	game, _, err := svc.StartRound(testSeats(2), 1, 0, testNow)
	if err != nil {
		t.Fatalf("start round: %v", err)
	}

	// Seat 0 cannot play on a 5|5 board and the pile top is playable, so the
	// draw keeps the turn.
	game.Board, _ = domain.Board(nil).Place(domain.Tile{A: 5, B: 5}, domain.SideRight)
	game.Seats[0].Hand = []domain.Tile{{A: 0, B: 1}}
	game.Seats[1].Hand = []domain.Tile{{A: 5, B: 6}}
	game.Pile = []domain.Tile{{A: 5, B: 2}}

	next, events, err := svc.DrawTile(game, 0, testNow)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if next.CurrentSeat != 0 {
		t.Fatalf("playable draw must keep the turn")
	}

	if events[0].Kind != EventTileDrawn {
		t.Fatalf("first event = %s, want tile_drawn", events[0].Kind)
	}
	if len(events[0].Recipients) != 1 || events[0].Recipients[0] != "u0" {
		t.Fatalf("tile_drawn recipients = %v", events[0].Recipients)
	}

	moveEv := events[1].Payload.(MoveAppliedPayload)
	if moveEv.Tile != nil {
		t.Fatalf("draw broadcast leaked the tile")
	}
	if moveEv.PileSize != 0 {
		t.Fatalf("pile size = %d, want 0", moveEv.PileSize)
	}
}

func TestDrawTileAutoPassTagged(t *testing.T) {
	svc := NewService(domain.ScoringStandard, 0)
	game, _, err := svc.StartRound(testSeats(2), 1, 0, testNow)
	if err != nil {
		t.Fatalf("start round: %v", err)
	}

	game.Board, _ = domain.Board(nil).Place(domain.Tile{A: 5, B: 5}, domain.SideRight)
	game.Seats[0].Hand = []domain.Tile{{A: 0, B: 1}}
	game.Seats[1].Hand = []domain.Tile{{A: 5, B: 6}}
	game.Pile = []domain.Tile{{A: 2, B: 3}}

	next, events, err := svc.DrawTile(game, 0, testNow)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if next.CurrentSeat != 1 {
		t.Fatalf("auto-pass should forfeit the turn")
	}

	var move *MoveAppliedPayload
	for _, ev := range events {
		if ev.Kind == EventMoveApplied {
			p := ev.Payload.(MoveAppliedPayload)
			move = &p
		}
	}
	if move == nil || !move.AutoPassed || move.Reason != domain.PassReasonAutoAfterDraw {
		t.Fatalf("auto-pass not tagged: %+v", move)
	}
}

func TestWinningPlaceEmitsCompletion(t *testing.T) {
	svc := NewService(domain.ScoringStandard, 0)
	game, _, err := svc.StartRound(testSeats(2), 1, 0, testNow)
	if err != nil {
		t.Fatalf("start round: %v", err)
	}

	game.Board = nil
	game.Seats[0].Hand = []domain.Tile{{A: 5, B: 5}}
	game.Seats[1].Hand = []domain.Tile{{A: 0, B: 6}}

	next, events, err := svc.PlaceTile(game, 0, domain.Tile{A: 5, B: 5}, domain.SideRight, testNow)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if next.State != domain.GameCompleted {
		t.Fatalf("state = %s, want completed", next.State)
	}

	kinds := make(map[EventKind]bool)
	for _, ev := range events {
		kinds[ev.Kind] = true
	}
	if !kinds[EventRoundScored] || !kinds[EventMatchCompleted] {
		t.Fatalf("terminal events missing: %v", kinds)
	}
	if kinds[EventTurnChanged] {
		t.Fatalf("terminal round must not announce a next turn")
	}
}

func TestBlockedRoundEmitsBlockEvent(t *testing.T) {
	svc := NewService(domain.ScoringPoints, 100)
	game, _, err := svc.StartRound(testSeats(2), 1, 0, testNow)
	if err != nil {
		t.Fatalf("start round: %v", err)
	}

	game.Board, _ = domain.Board(nil).Place(domain.Tile{A: 5, B: 5}, domain.SideRight)
	game.Seats[0].Hand = []domain.Tile{{A: 0, B: 1}}
	game.Seats[1].Hand = []domain.Tile{{A: 3, B: 4}}
	game.Pile = nil

	next, events, err := svc.PassTurn(game, 0, domain.PassReasonManual, testNow)
	if err != nil {
		t.Fatalf("pass: %v", err)
	}
	if next.State != domain.GameBlocked {
		t.Fatalf("state = %s, want blocked", next.State)
	}

	var blocked, scored, completed bool
	for _, ev := range events {
		switch ev.Kind {
		case EventMatchBlocked:
			blocked = true
		case EventRoundScored:
			scored = true
			result := ev.Payload.(RoundScoredPayload).Result
			// Winner takes the loser's 7 pips, well below the 100 target.
			if result.PointsAwarded != 7 || result.MatchOver {
				t.Fatalf("unexpected result %+v", result)
			}
		case EventMatchCompleted:
			completed = true
		}
	}
	if !blocked || !scored {
		t.Fatalf("blocked round events missing (blocked=%v scored=%v)", blocked, scored)
	}
	if completed {
		t.Fatalf("points round below target must not complete the match")
	}
}
