package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"domino/internal/app"
	"domino/internal/config"
	"domino/internal/domain"

	"github.com/heroiclabs/nakama-common/runtime"
)

// FindRoomRequest is the client's matchmaking criteria. Zero values fall
// back to the defaults in resolve().
type FindRoomRequest struct {
	SeatCount   int    `json:"seat_count"`
	Tier        string `json:"tier"`
	Scoring     string `json:"scoring"`
	TargetScore int    `json:"target_score"`
}

// FindRoomResponse is returned to clients with the room to join.
type FindRoomResponse struct {
	MatchID string `json:"match_id"`
	IsNew   bool   `json:"is_new"`
}

// resolve applies defaults and validates the criteria.
func (r *FindRoomRequest) resolve() error {
	if r.SeatCount == 0 {
		r.SeatCount = app.MaxSeats
	}
	if r.SeatCount < app.MinSeats || r.SeatCount > app.MaxSeats {
		return fmt.Errorf("seat_count %d outside supported range", r.SeatCount)
	}
	if r.Scoring == "" {
		r.Scoring = string(domain.ScoringStandard)
	}
	if !domain.ValidScoringMode(domain.ScoringMode(r.Scoring)) {
		return fmt.Errorf("unknown scoring mode %q", r.Scoring)
	}
	if r.TargetScore == 0 {
		r.TargetScore = config.GetGameConfig().DefaultTargetScore
	}
	if r.TargetScore < 0 {
		return fmt.Errorf("target_score must be positive")
	}
	return nil
}

// RegisterRPCs registers Nakama RPC endpoints.
func RegisterRPCs(initializer runtime.Initializer) error {
	return initializer.RegisterRpc(RpcFindRoom, rpcFindRoom)
}

// rpcFindRoom joins the caller to an open waiting room matching the
// criteria, creating one when none exists. A user may only occupy one
// waiting room at a time; a live claim rejects the request.
func rpcFindRoom(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, ok := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if !ok || userID == "" {
		return "", runtime.NewError("no user session", 16) // UNAUTHENTICATED
	}

	request := FindRoomRequest{}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &request); err != nil {
			return "", runtime.NewError("invalid request payload", 3) // INVALID_ARGUMENT
		}
	}
	if err := request.resolve(); err != nil {
		return "", runtime.NewError(err.Error(), 3)
	}

	matchmaking := NewNakamaRecordAdapter(nk)

	// Reject a user who already sits in a waiting room. A claim pointing at
	// a dead match is stale; clear it and carry on.
	if claimed, err := matchmaking.CurrentWaitingRoom(ctx, userID); err != nil {
		logger.Error("rpcFindRoom: Failed to read waiting claim for %s: %v", userID, err)
		return "", runtime.NewError("matchmaking unavailable", 13) // INTERNAL
	} else if claimed != "" {
		if _, err := nk.MatchGet(ctx, claimed); err == nil {
			return "", runtime.NewError("already waiting in another room", 9) // FAILED_PRECONDITION
		}
		if err := matchmaking.ReleaseWaitingSlot(ctx, userID); err != nil {
			logger.Warn("rpcFindRoom: Failed to clear stale claim for %s: %v", userID, err)
		}
	}

	// The stake is reserved on join, so a user who cannot cover it must not
	// be pointed at a room at all.
	tier := config.GetStakeTier(request.Tier)
	economy := NewNakamaEconomyAdapter(nk)
	balance, err := economy.Balance(ctx, userID)
	if err != nil {
		logger.Error("rpcFindRoom: Failed to read balance for %s: %v", userID, err)
		return "", runtime.NewError("balance unavailable", 13)
	}
	if balance < tier.Stake {
		return "", runtime.NewError("insufficient balance for stake tier", 9)
	}

	query := fmt.Sprintf("+label.game:domino +label.phase:%s +label.open:T +label.seats:%d +label.tier:%s +label.scoring:%s",
		PhaseWaiting, request.SeatCount, tier.ID, request.Scoring)

	limit := 10
	authoritative := true
	minSize := 1
	maxSize := request.SeatCount - 1

	matchID := ""
	isNew := false
	matches, err := nk.MatchList(ctx, limit, authoritative, "", &minSize, &maxSize, query)
	if err != nil {
		logger.Error("rpcFindRoom: MatchList error: %v", err)
		return "", runtime.NewError("matchmaking unavailable", 13)
	}
	if len(matches) > 0 {
		matchID = matches[0].MatchId
	} else {
		matchID, err = nk.MatchCreate(ctx, MatchNameDomino, map[string]interface{}{
			"seat_count":   request.SeatCount,
			"tier":         tier.ID,
			"scoring":      request.Scoring,
			"target_score": request.TargetScore,
		})
		if err != nil {
			logger.Error("rpcFindRoom: MatchCreate error: %v", err)
			return "", runtime.NewError("failed to create room", 13)
		}
		isNew = true
	}

	claimed, err := matchmaking.ClaimWaitingSlot(ctx, userID, matchID)
	if err != nil {
		logger.Error("rpcFindRoom: Failed to claim waiting slot for %s: %v", userID, err)
		return "", runtime.NewError("matchmaking unavailable", 13)
	}
	if !claimed {
		// Lost a race against another request from the same user.
		return "", runtime.NewError("already waiting in another room", 9)
	}

	resp := FindRoomResponse{MatchID: matchID, IsNew: isNew}
	b, _ := json.Marshal(resp)
	return string(b), nil
}
