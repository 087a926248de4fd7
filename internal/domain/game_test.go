package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// testGame builds an active game with fixed hands, pile and board so tests
// stay deterministic. All seats are connected humans unless changed after.
func testGame(hands [][]Tile, pile []Tile, board Board) *Game {
	seats := make([]*Seat, len(hands))
	for i := range hands {
		seats[i] = &Seat{
			Index:     i,
			UserID:    fmt.Sprintf("u%d", i),
			Connected: true,
			Hand:      hands[i],
		}
	}
	return &Game{
		State:         GameActive,
		Round:         1,
		Seats:         seats,
		Pile:          pile,
		Board:         board,
		WinnerSeat:    -1,
		TurnStartedAt: testNow,
	}
}

func TestNewGameDealsAndStarts(t *testing.T) {
	seats := []*Seat{
		{UserID: "u0", Connected: true},
		{UserID: "u1", Connected: true},
	}
	g, err := NewGame(seats, 1, 0, testNow)
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	if g.State != GameActive {
		t.Fatalf("state = %s, want active", g.State)
	}
	for i, seat := range g.Seats {
		if len(seat.Hand) != 9 {
			t.Fatalf("seat %d hand = %d tiles, want 9", i, len(seat.Hand))
		}
	}
	if len(g.Pile) != 10 {
		t.Fatalf("pile = %d tiles, want 10", len(g.Pile))
	}
	if err := g.CheckIntegrity(); err != nil {
		t.Fatalf("fresh deal fails integrity: %v", err)
	}
	if g.CurrentSeat != 0 {
		t.Fatalf("starter = %d, want 0", g.CurrentSeat)
	}
}

func TestPlaceRejectionsAreNonMutating(t *testing.T) {
	g := testGame(
		[][]Tile{{{A: 5, B: 5}, {A: 1, B: 2}}, {{A: 0, B: 6}}},
		[]Tile{{A: 3, B: 3}},
		nil,
	)

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{
			name: "not your turn",
			call: func() error { return g.ApplyPlace(1, Tile{A: 0, B: 6}, SideRight, testNow) },
			want: ErrNotYourTurn,
		},
		{
			name: "tile not in hand",
			call: func() error { return g.ApplyPlace(0, Tile{A: 6, B: 6}, SideRight, testNow) },
			want: ErrTileNotInHand,
		},
		{
			name: "bad side",
			call: func() error { return g.ApplyPlace(0, Tile{A: 5, B: 5}, Side("middle"), testNow) },
			want: ErrInvalidAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if len(g.Moves) != 0 || len(g.Board) != 0 || g.CurrentSeat != 0 {
				t.Fatalf("rejected command mutated state")
			}
		})
	}
}

func TestPlaceEmptiesHandWinsRound(t *testing.T) {
	g := testGame(
		[][]Tile{{{A: 5, B: 5}}, {{A: 0, B: 6}, {A: 1, B: 1}}},
		[]Tile{{A: 3, B: 3}},
		nil,
	)

	if err := g.ApplyPlace(0, Tile{A: 5, B: 5}, SideRight, testNow); err != nil {
		t.Fatalf("place: %v", err)
	}
	if g.State != GameCompleted {
		t.Fatalf("state = %s, want completed", g.State)
	}
	if g.EndReason != EndEmptiedHand {
		t.Fatalf("end reason = %s, want emptied_hand", g.EndReason)
	}
	if g.WinnerSeat != 0 {
		t.Fatalf("winner = %d, want 0", g.WinnerSeat)
	}
}

func TestPlaceResetsPassCounterAndAdvances(t *testing.T) {
	g := testGame(
		[][]Tile{{{A: 5, B: 5}, {A: 1, B: 2}}, {{A: 0, B: 6}}},
		[]Tile{{A: 3, B: 3}},
		nil,
	)
	g.Seats[0].ConsecutivePasses = 1

	later := testNow.Add(3 * time.Second)
	if err := g.ApplyPlace(0, Tile{A: 5, B: 5}, SideRight, later); err != nil {
		t.Fatalf("place: %v", err)
	}
	if g.Seats[0].ConsecutivePasses != 0 {
		t.Fatalf("pass counter not reset")
	}
	if g.CurrentSeat != 1 {
		t.Fatalf("turn = %d, want 1", g.CurrentSeat)
	}
	if !g.TurnStartedAt.Equal(later) {
		t.Fatalf("turn start not restamped")
	}
	if len(g.Moves) != 1 || g.Moves[0].Kind != MovePlace {
		t.Fatalf("move log = %+v", g.Moves)
	}
}

func TestDrawCascadesIntoAutoPass(t *testing.T) {
	// Board open ends are 5 and 5; seat 0 holds nothing playable and the
	// pile top is also unplayable, so the draw must cascade into a tagged
	// system pass.
	board := buildBoard(t, []Tile{{A: 5, B: 5}})
	g := testGame(
		[][]Tile{{{A: 0, B: 1}}, {{A: 5, B: 6}}},
		[]Tile{{A: 2, B: 3}},
		board,
	)

	drawn, autoPassed, err := g.ApplyDraw(0, testNow)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if !drawn.Equals(Tile{A: 2, B: 3}) {
		t.Fatalf("drawn = %v, want 2|3", drawn)
	}
	if !autoPassed {
		t.Fatalf("expected auto-pass after unplayable draw")
	}
	if len(g.Pile) != 0 {
		t.Fatalf("pile not drained")
	}
	if len(g.Seats[0].Hand) != 2 {
		t.Fatalf("drawn tile not kept in hand")
	}
	if g.CurrentSeat != 1 {
		t.Fatalf("turn = %d, want 1", g.CurrentSeat)
	}

	// Move log carries the draw plus the system pass with its reason tag.
	if len(g.Moves) != 2 {
		t.Fatalf("moves = %d, want 2", len(g.Moves))
	}
	if g.Moves[1].Kind != MovePass || g.Moves[1].Reason != PassReasonAutoAfterDraw {
		t.Fatalf("second move = %+v, want auto pass", g.Moves[1])
	}
}

func TestDrawKeepsTurnWhenPlayable(t *testing.T) {
	board := buildBoard(t, []Tile{{A: 5, B: 5}})
	g := testGame(
		[][]Tile{{{A: 0, B: 1}}, {{A: 5, B: 6}}},
		[]Tile{{A: 5, B: 2}},
		board,
	)

	_, autoPassed, err := g.ApplyDraw(0, testNow)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if autoPassed {
		t.Fatalf("playable draw should not auto-pass")
	}
	if g.CurrentSeat != 0 {
		t.Fatalf("turn moved away from drawing seat")
	}
}

func TestDrawFromEmptyPile(t *testing.T) {
	g := testGame([][]Tile{{{A: 0, B: 1}}, {{A: 5, B: 6}}}, nil, nil)
	if _, _, err := g.ApplyDraw(0, testNow); !errors.Is(err, ErrDrawPileEmpty) {
		t.Fatalf("err = %v, want ErrDrawPileEmpty", err)
	}
}

func TestBlockedByExhaustion(t *testing.T) {
	// Open ends 5,5. Neither seat can play, pile empty: first pass blocks.
	board := buildBoard(t, []Tile{{A: 5, B: 5}})
	g := testGame(
		[][]Tile{{{A: 0, B: 1}, {A: 2, B: 2}}, {{A: 3, B: 4}}},
		nil,
		board,
	)

	if err := g.ApplyPass(0, PassReasonManual, testNow); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if g.State != GameBlocked {
		t.Fatalf("state = %s, want blocked", g.State)
	}
	if g.EndReason != EndBoardBlocked {
		t.Fatalf("end reason = %s", g.EndReason)
	}
	// Seat 0 holds 5 pips, seat 1 holds 7: seat 0 wins the block.
	if g.WinnerSeat != 0 {
		t.Fatalf("winner = %d, want 0", g.WinnerSeat)
	}
}

func TestBlockedByPassThreshold(t *testing.T) {
	// Both seats could still draw, but the table cycles through passes.
	board := buildBoard(t, []Tile{{A: 5, B: 5}})
	g := testGame(
		[][]Tile{{{A: 0, B: 1}}, {{A: 3, B: 4}}},
		[]Tile{{A: 5, B: 1}},
		board,
	)
	g.Seats[0].ConsecutivePasses = 2
	g.Seats[1].ConsecutivePasses = 1
	g.CurrentSeat = 1

	if err := g.ApplyPass(1, PassReasonManual, testNow); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if g.State != GameBlocked {
		t.Fatalf("state = %s, want blocked after threshold", g.State)
	}
}

func TestBlockWinnerTieBreaksLowestSeat(t *testing.T) {
	board := buildBoard(t, []Tile{{A: 5, B: 5}})
	g := testGame(
		[][]Tile{{{A: 0, B: 3}}, {{A: 1, B: 2}}, {{A: 4, B: 4}}},
		nil,
		board,
	)

	if err := g.ApplyPass(0, PassReasonManual, testNow); err != nil {
		t.Fatalf("pass: %v", err)
	}
	// Seats 0 and 1 both hold 3 pips; the lower index wins.
	if g.WinnerSeat != 0 {
		t.Fatalf("winner = %d, want tie-break to seat 0", g.WinnerSeat)
	}
}

func TestAdvanceSkipsDisconnectedSeats(t *testing.T) {
	g := testGame(
		[][]Tile{{{A: 5, B: 5}, {A: 0, B: 0}}, {{A: 1, B: 2}}, {{A: 3, B: 4}}},
		[]Tile{{A: 6, B: 6}},
		nil,
	)
	g.Seats[1].Connected = false

	if err := g.ApplyPlace(0, Tile{A: 5, B: 5}, SideRight, testNow); err != nil {
		t.Fatalf("place: %v", err)
	}
	if g.CurrentSeat != 2 {
		t.Fatalf("turn = %d, want 2 (seat 1 disconnected)", g.CurrentSeat)
	}
}

func TestAdvanceAllDisconnectedLeavesIndex(t *testing.T) {
	g := testGame(
		[][]Tile{{{A: 5, B: 5}, {A: 0, B: 0}}, {{A: 1, B: 2}}},
		[]Tile{{A: 6, B: 6}},
		nil,
	)
	g.Seats[0].Connected = false
	g.Seats[1].Connected = false

	before := g.TurnStartedAt
	g.advanceTurn(testNow.Add(time.Minute))
	if g.CurrentSeat != 0 {
		t.Fatalf("turn moved to %d with every seat offline", g.CurrentSeat)
	}
	if !g.TurnStartedAt.Equal(before) {
		t.Fatalf("turn start restamped on a stalled game")
	}
}

func TestDisconnectedBotStillTakesTurns(t *testing.T) {
	g := testGame(
		[][]Tile{{{A: 5, B: 5}, {A: 0, B: 0}}, {{A: 1, B: 2}}},
		[]Tile{{A: 6, B: 6}},
		nil,
	)
	g.Seats[1].Connected = false
	g.Seats[1].IsBot = true

	if err := g.ApplyPlace(0, Tile{A: 5, B: 5}, SideRight, testNow); err != nil {
		t.Fatalf("place: %v", err)
	}
	if g.CurrentSeat != 1 {
		t.Fatalf("bot seat should keep receiving turns, got %d", g.CurrentSeat)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := testGame(
		[][]Tile{{{A: 5, B: 5}, {A: 1, B: 2}}, {{A: 0, B: 6}}},
		[]Tile{{A: 3, B: 3}},
		nil,
	)

	clone := g.Clone()
	if err := clone.ApplyPlace(0, Tile{A: 5, B: 5}, SideRight, testNow); err != nil {
		t.Fatalf("place on clone: %v", err)
	}

	if len(g.Board) != 0 || len(g.Moves) != 0 {
		t.Fatalf("mutating the clone leaked into the original")
	}
	if len(g.Seats[0].Hand) != 2 {
		t.Fatalf("original hand changed: %v", g.Seats[0].Hand)
	}
}

func TestCheckIntegrityDetectsDuplicates(t *testing.T) {
	seats := []*Seat{
		{UserID: "u0", Connected: true},
		{UserID: "u1", Connected: true},
	}
	g, err := NewGame(seats, 1, 0, testNow)
	if err != nil {
		t.Fatalf("new game: %v", err)
	}

	// Duplicate a pile tile into a hand.
	g.Seats[0].Hand[0] = g.Pile[0]
	if err := g.CheckIntegrity(); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}
}

func TestTerminalPipConservation(t *testing.T) {
	seats := []*Seat{
		{UserID: "u0", Connected: true},
		{UserID: "u1", Connected: true},
	}
	g, err := NewGame(seats, 1, 0, testNow)
	if err != nil {
		t.Fatalf("new game: %v", err)
	}

	total := 0
	for _, seat := range g.Seats {
		total += RemainingPips(seat.Hand)
	}
	total += RemainingPips(g.Pile)
	for _, p := range g.Board {
		total += p.Tile.PipSum()
	}
	if total != TotalPipValue() {
		t.Fatalf("pip total = %d, want %d", total, TotalPipValue())
	}
}
