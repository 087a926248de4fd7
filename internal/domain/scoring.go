package domain

import "fmt"

// ScoringMode selects how terminal rounds convert into results.
type ScoringMode string

const (
	// ScoringStandard plays a single round; the round winner takes the match.
	ScoringStandard ScoringMode = "standard"
	// ScoringPoints accumulates opponents' leftover pips onto the round
	// winner until a seat reaches the target score.
	ScoringPoints ScoringMode = "points"
)

// ValidScoringMode reports whether the mode is one of the supported rules.
func ValidScoringMode(mode ScoringMode) bool {
	return mode == ScoringStandard || mode == ScoringPoints
}

// RoundResult is the resolved outcome of a terminal round.
type RoundResult struct {
	Round           int       `json:"round"`
	WinnerSeat      int       `json:"winner_seat"`
	Reason          EndReason `json:"reason"`
	PipCounts       []int     `json:"pip_counts"`
	PointsAwarded   int       `json:"points_awarded"`
	Scores          []int     `json:"scores"`
	MatchOver       bool      `json:"match_over"`
	MatchWinnerSeat int       `json:"match_winner_seat"`
}

// ResolveRound computes the round outcome and, in points mode, folds the
// award into the winner's cumulative score. The game must already be
// terminal with a winner (completed or blocked).
func ResolveRound(g *Game, mode ScoringMode, targetScore int) (RoundResult, error) {
	if g.State != GameCompleted && g.State != GameBlocked {
		return RoundResult{}, fmt.Errorf("resolve round: game state %s is not scorable", g.State)
	}
	if g.WinnerSeat < 0 || g.WinnerSeat >= len(g.Seats) {
		return RoundResult{}, fmt.Errorf("resolve round: winner seat %d out of range", g.WinnerSeat)
	}

	result := RoundResult{
		Round:           g.Round,
		WinnerSeat:      g.WinnerSeat,
		Reason:          g.EndReason,
		PipCounts:       make([]int, len(g.Seats)),
		MatchWinnerSeat: -1,
	}
	for i, seat := range g.Seats {
		result.PipCounts[i] = RemainingPips(seat.Hand)
	}

	switch mode {
	case ScoringStandard:
		result.MatchOver = true
		result.MatchWinnerSeat = g.WinnerSeat
	case ScoringPoints:
		award := 0
		for i, pips := range result.PipCounts {
			if i != g.WinnerSeat {
				award += pips
			}
		}
		result.PointsAwarded = award
		g.Seats[g.WinnerSeat].Score += award
		if targetScore > 0 && g.Seats[g.WinnerSeat].Score >= targetScore {
			result.MatchOver = true
			result.MatchWinnerSeat = g.WinnerSeat
		}
	default:
		return RoundResult{}, fmt.Errorf("resolve round: unknown scoring mode %q", mode)
	}

	result.Scores = make([]int, len(g.Seats))
	for i, seat := range g.Seats {
		result.Scores[i] = seat.Score
	}
	return result, nil
}

// TotalPipValue is the pip sum of a complete double-six set, used as a
// scoring sanity check.
func TotalPipValue() int {
	total := 0
	for _, t := range NewTileSet() {
		total += t.PipSum()
	}
	return total
}
