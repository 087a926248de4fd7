package ports

import (
	"context"
	"time"
)

// RoundRecord is the durable archive of a resolved round.
type RoundRecord struct {
	RoundID    string    `json:"round_id"`
	MatchID    string    `json:"match_id"`
	Round      int       `json:"round"`
	Seats      []string  `json:"seats"`
	WinnerSeat int       `json:"winner_seat"`
	Reason     string    `json:"reason"`
	PipCounts  []int     `json:"pip_counts"`
	Scores     []int     `json:"scores"`
	Pot        int64     `json:"pot"`
	EndedAt    time.Time `json:"ended_at"`
}

// MatchRecordPort persists round outcomes. Writes are guarded: a record key
// may be created exactly once, so a sweep resolving a round it has already
// resolved is rejected instead of reapplied.
type MatchRecordPort interface {
	// WriteRoundRecord archives a resolved round. Returns written=false when
	// the guard rejected a duplicate write.
	WriteRoundRecord(ctx context.Context, record RoundRecord) (written bool, err error)
}

// MatchmakingPort tracks which waiting room, if any, a user currently
// occupies. Create-only marker semantics double as the compare-and-swap
// guard against a user racing two join requests.
type MatchmakingPort interface {
	// ClaimWaitingSlot records that the user occupies the given waiting
	// room. Returns claimed=false when the user already holds a live claim.
	ClaimWaitingSlot(ctx context.Context, userID, matchID string) (claimed bool, err error)

	// CurrentWaitingRoom returns the match ID of the user's live claim, or
	// "" when the user is free to matchmake.
	CurrentWaitingRoom(ctx context.Context, userID string) (string, error)

	// ReleaseWaitingSlot clears the user's claim when the room starts, the
	// user leaves, or the room is cancelled.
	ReleaseWaitingSlot(ctx context.Context, userID string) error
}
