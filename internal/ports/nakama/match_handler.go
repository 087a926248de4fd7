package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"domino/internal/app"
	"domino/internal/bot"
	"domino/internal/config"
	"domino/internal/domain"
	"domino/internal/ports"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

// RoomLabel is the queryable match label used by the find_room RPC.
type RoomLabel struct {
	Game    string `json:"game"`
	Phase   string `json:"phase"`
	Open    bool   `json:"open"`
	Seats   int    `json:"seats"`
	Tier    string `json:"tier"`
	Scoring string `json:"scoring"`
}

// PlaceTileRequest is the client payload for OpPlaceTile.
type PlaceTileRequest struct {
	Tile domain.Tile `json:"tile"`
	Side domain.Side `json:"side"`
}

// GameErrorPayload is sent privately when a command is rejected.
type GameErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RoomSeatState describes one seat in the room snapshot.
type RoomSeatState struct {
	Seat        int    `json:"seat"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsBot       bool   `json:"is_bot"`
	Connected   bool   `json:"connected"`
	HandCount   int    `json:"hand_count"`
	Score       int    `json:"score"`
}

// RoomStatePayload is broadcast whenever the roster or phase changes.
type RoomStatePayload struct {
	Phase   string          `json:"phase"`
	Tier    string          `json:"tier"`
	Stake   int64           `json:"stake"`
	Scoring string          `json:"scoring"`
	Pot     int64           `json:"pot"`
	Round   int             `json:"round"`
	Seats   []RoomSeatState `json:"seats"`
}

// RoomCancelledPayload announces room cancellation before termination.
type RoomCancelledPayload struct {
	Reason string `json:"reason"`
}

// MatchState holds the authoritative runtime state for one room.
type MatchState struct {
	Phase       string                      `json:"phase"`
	SeatCount   int                         `json:"seat_count"`
	Seats       []string                    `json:"seats"` // user IDs, empty string means seat is empty
	TierID      string                      `json:"tier_id"`
	Stake       int64                       `json:"stake"`
	Scoring     domain.ScoringMode          `json:"scoring"`
	TargetScore int                         `json:"target_score"`
	Pot         int64                       `json:"pot"`
	Reserved    map[string]int64            `json:"reserved"` // userID -> stake withheld on join
	Round       int                         `json:"round"`
	LastWinner  int                         `json:"last_winner"` // seat index of the last round winner

	Tick            int64 `json:"tick"`
	WaitingSince    int64 `json:"waiting_since"`     // tick the first occupant arrived
	FullSince       int64 `json:"full_since"`        // tick the room filled, 0 while not full
	TurnStartedTick int64 `json:"turn_started_tick"` // tick of the last turn handover
	NextRoundAt     int64 `json:"next_round_at"`     // tick to deal the next round, points mode only
	LastHumanTick   int64 `json:"last_human_tick"`   // tick a connected human was last seen
	EndedTick       int64 `json:"ended_tick"`        // tick the room reached a terminal phase
	BotWaitUntil    int64 `json:"bot_wait_until"`    // tick when the bot on turn should act
	BotMinDelay     int   `json:"bot_min_delay"`
	BotMaxDelay     int   `json:"bot_max_delay"`

	Presences map[string]runtime.Presence `json:"-"` // UserId -> Presence for targeted messaging
	App       *app.Service                `json:"-"`
	Game      *domain.Game                `json:"-"` // nil while waiting
	GameSeats []*domain.Seat              `json:"-"` // persists cumulative scores across rounds
	Bots      map[string]*bot.Agent       `json:"-"`

	Economy     ports.EconomyPort     `json:"-"`
	Records     ports.MatchRecordPort `json:"-"`
	Matchmaking ports.MatchmakingPort `json:"-"`
}

func (ms *MatchState) GetOpenSeatsCount() int {
	count := 0
	for _, seat := range ms.Seats {
		if seat == "" {
			count++
		}
	}
	return count
}

func (ms *MatchState) GetOccupiedSeatCount() int {
	return ms.SeatCount - ms.GetOpenSeatsCount()
}

func (ms *MatchState) GetHumanPlayerCount() int {
	count := 0
	for _, seat := range ms.Seats {
		if seat != "" && !isBotUserId(seat) {
			count++
		}
	}
	return count
}

// seatOf returns the seat index occupied by the user, or -1.
func (ms *MatchState) seatOf(userID string) int {
	for i, seat := range ms.Seats {
		if seat == userID {
			return i
		}
	}
	return -1
}

// hasConnectedHuman reports whether any human seat has a live presence.
func (ms *MatchState) hasConnectedHuman() bool {
	for _, seat := range ms.Seats {
		if seat == "" || isBotUserId(seat) {
			continue
		}
		if _, ok := ms.Presences[seat]; ok {
			return true
		}
	}
	return false
}

// isBotUserId reports whether the given user id represents a bot seat.
func isBotUserId(userId string) bool {
	return bot.IsBot(userId)
}

// NewMatch is the factory function registered with Nakama.
func NewMatch(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
	return &matchHandler{}, nil
}

type matchHandler struct{}

// paramInt reads an integer match-create parameter. Params may round-trip
// through JSON in distributed deployments, so numbers can arrive as float64.
func paramInt(params map[string]interface{}, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func paramString(params map[string]interface{}, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// MatchInit is called when the match is created.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	logger.Debug("MatchInit: Initializing room.")

	cfg := config.GetGameConfig()
	tier := config.GetStakeTier(paramString(params, "tier", ""))
	scoring := domain.ScoringMode(paramString(params, "scoring", string(domain.ScoringStandard)))
	if !domain.ValidScoringMode(scoring) {
		scoring = domain.ScoringStandard
	}
	seatCount := paramInt(params, "seat_count", app.MaxSeats)
	if seatCount < app.MinSeats || seatCount > app.MaxSeats {
		seatCount = app.MaxSeats
	}
	targetScore := paramInt(params, "target_score", cfg.DefaultTargetScore)

	state := &MatchState{
		Phase:       PhaseWaiting,
		SeatCount:   seatCount,
		Seats:       make([]string, seatCount),
		TierID:      tier.ID,
		Stake:       tier.Stake,
		Scoring:     scoring,
		TargetScore: targetScore,
		Reserved:    make(map[string]int64),
		LastWinner:  -1,
		Presences:   make(map[string]runtime.Presence),
		App:         app.NewService(scoring, targetScore),
		Bots:        make(map[string]*bot.Agent),
		Economy:     NewNakamaEconomyAdapter(nk),
		Records:     NewNakamaRecordAdapter(nk),
		Matchmaking: NewNakamaRecordAdapter(nk),
	}

	// Bot pacing from environment, with small defaults so bot turns read as
	// deliberate rather than instant.
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	if val, ok := env["domino_bot_min_delay_sec"]; ok {
		if i, err := strconv.Atoi(val); err == nil {
			state.BotMinDelay = i
		}
	}
	if val, ok := env["domino_bot_max_delay_sec"]; ok {
		if i, err := strconv.Atoi(val); err == nil {
			state.BotMaxDelay = i
		}
	}
	if state.BotMinDelay == 0 {
		state.BotMinDelay = 1
	}
	if state.BotMaxDelay < state.BotMinDelay {
		state.BotMaxDelay = state.BotMinDelay + 2
	}

	labelBytes, err := json.Marshal(mh.buildLabel(state))
	if err != nil {
		logger.Error("MatchInit: Failed to marshal label: %v", err)
		return nil, 0, ""
	}

	tickRate := 1 // 1 tick per second drives all lifecycle sweeps
	return state, tickRate, string(labelBytes)
}

func (mh *matchHandler) buildLabel(state *MatchState) *RoomLabel {
	return &RoomLabel{
		Game:    "domino",
		Phase:   state.Phase,
		Open:    state.Phase == PhaseWaiting && state.GetOpenSeatsCount() > 0,
		Seats:   state.SeatCount,
		Tier:    state.TierID,
		Scoring: string(state.Scoring),
	}
}

func (mh *matchHandler) updateLabel(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	labelBytes, err := json.Marshal(mh.buildLabel(state))
	if err != nil {
		logger.Error("UpdateLabel: Failed to marshal: %v", err)
		return
	}
	if err := dispatcher.MatchLabelUpdate(string(labelBytes)); err != nil {
		logger.Error("UpdateLabel: Failed to update: %v", err)
	}
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}

	// Reconnects are always welcome while the room is alive.
	if matchState.seatOf(presence.GetUserId()) >= 0 {
		return matchState, true, ""
	}

	if matchState.Phase != PhaseWaiting {
		return matchState, false, "room already started"
	}

	if matchState.GetOpenSeatsCount() <= 0 {
		hasBot := false
		for _, seat := range matchState.Seats {
			if isBotUserId(seat) {
				hasBot = true
				break
			}
		}
		if !hasBot {
			return matchState, false, "room full"
		}
	}

	return matchState, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}

	for _, p := range presences {
		userID := p.GetUserId()
		matchState.Presences[userID] = p
		matchState.LastHumanTick = matchState.Tick

		// Returning player keeps their seat; re-arm the in-game flag and
		// replay their hand so the client can redraw.
		if seat := matchState.seatOf(userID); seat >= 0 {
			if matchState.Game != nil {
				matchState.Game.Seats[seat].Connected = true
				mh.sendHand(matchState, dispatcher, logger, seat)
			}
			logger.Info("MatchJoin: User %s reconnected to seat %d.", userID, seat)
			continue
		}

		assigned := -1
		for i, seatUserId := range matchState.Seats {
			if seatUserId == "" {
				assigned = i
				break
			}
		}
		if assigned < 0 {
			for i, seatUserId := range matchState.Seats {
				if isBotUserId(seatUserId) {
					logger.Info("MatchJoin: Replacing bot %s with human %s in seat %d", seatUserId, userID, i)
					// The displaced bot takes its stake back out of the pot;
					// the human funds their own seat below.
					if amount := matchState.Reserved[seatUserId]; amount > 0 {
						if err := matchState.Economy.Refund(ctx, seatUserId, amount, map[string]interface{}{
							"match_id": ctx.Value(runtime.RUNTIME_CTX_MATCH_ID),
							"reason":   "stake_refund",
						}); err != nil {
							logger.Error("MatchJoin: Failed to refund stake for bot %s: %v", seatUserId, err)
						}
						matchState.Pot -= amount
						delete(matchState.Reserved, seatUserId)
					}
					delete(matchState.Bots, seatUserId)
					matchState.Seats[i] = ""
					assigned = i
					break
				}
			}
		}
		if assigned < 0 {
			logger.Warn("MatchJoin: User %s joined but no seat was available.", userID)
			continue
		}

		// The seat is only real once the stake is withheld. A failed reserve
		// rolls the assignment back and removes the player.
		if err := matchState.Economy.Reserve(ctx, userID, matchState.Stake, map[string]interface{}{
			"match_id": ctx.Value(runtime.RUNTIME_CTX_MATCH_ID),
			"reason":   "stake_reserve",
		}); err != nil {
			logger.Warn("MatchJoin: Failed to reserve stake for %s: %v", userID, err)
			delete(matchState.Presences, userID)
			if err := dispatcher.MatchKick([]runtime.Presence{p}); err != nil {
				logger.Error("MatchJoin: Failed to kick %s: %v", userID, err)
			}
			continue
		}

		matchState.Seats[assigned] = userID
		matchState.Reserved[userID] = matchState.Stake
		matchState.Pot += matchState.Stake

		if matchState.WaitingSince == 0 {
			matchState.WaitingSince = matchState.Tick
		}
	}

	if matchState.GetOpenSeatsCount() == 0 && matchState.FullSince == 0 {
		matchState.FullSince = matchState.Tick
	}

	mh.updateLabel(matchState, dispatcher, logger)
	mh.broadcastRoomState(matchState, dispatcher, logger)

	return matchState
}

// MatchLeave is called when one or more players leave the match.
func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}

	for _, p := range presences {
		userID := p.GetUserId()
		delete(matchState.Presences, userID)

		seat := matchState.seatOf(userID)
		if seat < 0 {
			continue
		}

		if matchState.Phase == PhaseWaiting {
			// Leaving the lobby frees the seat and undoes the stake.
			matchState.Seats[seat] = ""
			if amount := matchState.Reserved[userID]; amount > 0 {
				if err := matchState.Economy.Refund(ctx, userID, amount, map[string]interface{}{
					"match_id": ctx.Value(runtime.RUNTIME_CTX_MATCH_ID),
					"reason":   "stake_refund",
				}); err != nil {
					logger.Error("MatchLeave: Failed to refund stake for %s: %v", userID, err)
				}
				matchState.Pot -= amount
				delete(matchState.Reserved, userID)
			}
			if err := matchState.Matchmaking.ReleaseWaitingSlot(ctx, userID); err != nil {
				logger.Warn("MatchLeave: Failed to release waiting slot for %s: %v", userID, err)
			}
			matchState.FullSince = 0
			logger.Debug("MatchLeave: User %s left, seat %d freed.", userID, seat)
			continue
		}

		// Mid-game the seat stays occupied; the turn timeout sweep keeps the
		// round moving in their absence.
		if matchState.Game != nil {
			matchState.Game.Seats[seat].Connected = false
		}
		logger.Debug("MatchLeave: User %s disconnected from seat %d mid-game.", userID, seat)
	}

	if matchState.Phase == PhaseWaiting && matchState.GetHumanPlayerCount() == 0 {
		logger.Info("MatchLeave: Terminating empty waiting room.")
		return nil
	}

	mh.updateLabel(matchState, dispatcher, logger)
	mh.broadcastRoomState(matchState, dispatcher, logger)

	return matchState
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}

	matchState.Tick = tick
	if matchState.hasConnectedHuman() {
		matchState.LastHumanTick = tick
	}
	// A room whose creator never joined has no join to arm the waiting
	// clock, so arm it here or the abandonment sweep never sees it age.
	if matchState.Phase == PhaseWaiting && matchState.WaitingSince == 0 {
		matchState.WaitingSince = tick + 1
	}

	for _, msg := range messages {
		switch msg.GetOpCode() {
		case OpPlaceTile:
			mh.handlePlaceTile(ctx, matchState, dispatcher, logger, msg)
		case OpDrawTile:
			mh.handleDrawTile(ctx, matchState, dispatcher, logger, msg)
		case OpPassTurn:
			mh.handlePassTurn(ctx, matchState, dispatcher, logger, msg)
		default:
			logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
		}
	}

	if terminal := mh.sweepAbandonment(ctx, matchState, dispatcher, logger); terminal {
		return nil
	}

	switch matchState.Phase {
	case PhaseWaiting:
		mh.sweepBackfill(ctx, matchState, dispatcher, logger)
		mh.sweepStart(ctx, matchState, dispatcher, logger)
	case PhaseInProgress:
		mh.sweepNextRound(ctx, matchState, dispatcher, logger)
		mh.sweepTurn(ctx, matchState, dispatcher, logger)
	case PhaseCompleted, PhaseCancelled:
		// Leave a short grace window so the terminal broadcasts flush.
		if tick >= matchState.EndedTick+3 {
			return nil
		}
	}

	return matchState
}

// sweepAbandonment cancels rooms past the abandonment ceiling: a waiting
// room that never filled, or a running room whose humans have all been gone
// for the window. Reserved stakes are refunded before termination.
func (mh *matchHandler) sweepAbandonment(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) bool {
	timeout := int64(config.GetGameConfig().AbandonTimeoutSeconds)

	switch state.Phase {
	case PhaseWaiting:
		if state.WaitingSince == 0 || state.Tick-state.WaitingSince < timeout {
			return false
		}
	case PhaseInProgress:
		if state.hasConnectedHuman() {
			return false
		}
		if state.LastHumanTick == 0 || state.Tick-state.LastHumanTick < timeout {
			return false
		}
	default:
		return false
	}

	logger.Info("sweepAbandonment: Cancelling abandoned room.")
	mh.cancelRoom(ctx, state, dispatcher, logger, "abandoned")
	return true
}

// cancelRoom refunds all withheld stakes, announces the cancellation and
// marks the room terminal.
func (mh *matchHandler) cancelRoom(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, reason string) {
	if state.Game != nil {
		state.Game.Cancel()
	}

	for userID, amount := range state.Reserved {
		if amount <= 0 {
			continue
		}
		if err := state.Economy.Refund(ctx, userID, amount, map[string]interface{}{
			"match_id": ctx.Value(runtime.RUNTIME_CTX_MATCH_ID),
			"reason":   "cancellation_refund",
		}); err != nil {
			logger.Error("cancelRoom: Failed to refund stake for %s: %v", userID, err)
		}
		if err := state.Matchmaking.ReleaseWaitingSlot(ctx, userID); err != nil {
			logger.Warn("cancelRoom: Failed to release waiting slot for %s: %v", userID, err)
		}
	}
	state.Reserved = make(map[string]int64)
	state.Pot = 0

	state.Phase = PhaseCancelled
	state.EndedTick = state.Tick
	mh.updateLabel(state, dispatcher, logger)
	mh.send(state, dispatcher, logger, OpRoomCancelled, RoomCancelledPayload{Reason: reason}, nil)
}

// sweepBackfill tops up a stalled waiting room with automated players once
// the fill timeout expires. Only tiers flagged for backfill are eligible,
// and a room with no humans never backfills. Each seated bot funds the pot
// from its provisioned wallet exactly like a human join.
func (mh *matchHandler) sweepBackfill(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	if state.GetOpenSeatsCount() == 0 || state.GetHumanPlayerCount() == 0 {
		return
	}
	tier := config.GetStakeTier(state.TierID)
	if !tier.BotBackfill {
		return
	}
	if state.WaitingSince == 0 || state.Tick-state.WaitingSince < int64(config.GetGameConfig().FillTimeoutSeconds) {
		return
	}

	added := false
	for i, seat := range state.Seats {
		if seat != "" {
			continue
		}
		identity := bot.GetBotIdentity(i)
		botID := identity.UserID

		agent, err := bot.NewAgent(botID)
		if err != nil {
			logger.Error("sweepBackfill: Failed to create bot agent for %s: %v", botID, err)
			continue
		}

		// Same contract as a human join: the seat is only real once the
		// stake is withheld.
		if err := state.Economy.Reserve(ctx, botID, state.Stake, map[string]interface{}{
			"match_id": matchIDFromContext(ctx),
			"reason":   "stake_reserve",
		}); err != nil {
			logger.Error("sweepBackfill: Failed to reserve stake for bot %s: %v", botID, err)
			continue
		}

		state.Seats[i] = botID
		state.Bots[botID] = agent
		state.Reserved[botID] = state.Stake
		state.Pot += state.Stake
		logger.Info("sweepBackfill: Added bot %s (%s) to seat %d", identity.Username, botID, i)
		added = true
	}

	if added {
		if state.GetOpenSeatsCount() == 0 && state.FullSince == 0 {
			state.FullSince = state.Tick
		}
		mh.updateLabel(state, dispatcher, logger)
		mh.broadcastRoomState(state, dispatcher, logger)
	}
}

// sweepStart deals the first round once the room has been full for the
// settle delay, giving last-second joins and leaves time to settle.
func (mh *matchHandler) sweepStart(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	if state.GetOpenSeatsCount() > 0 || state.FullSince == 0 {
		return
	}
	if state.Tick-state.FullSince < int64(config.GetGameConfig().SettleDelaySeconds) {
		return
	}

	seats := make([]*domain.Seat, len(state.Seats))
	for i, userID := range state.Seats {
		_, connected := state.Presences[userID]
		seats[i] = &domain.Seat{
			Index:     i,
			UserID:    userID,
			IsBot:     isBotUserId(userID),
			Connected: connected,
		}
	}
	state.GameSeats = seats

	state.Phase = PhaseInProgress
	mh.startRound(ctx, state, dispatcher, logger)

	// Players are committed now; their waiting claims must not block future
	// matchmaking once this room ends.
	for _, userID := range state.Seats {
		if isBotUserId(userID) {
			continue
		}
		if err := state.Matchmaking.ReleaseWaitingSlot(ctx, userID); err != nil {
			logger.Warn("sweepStart: Failed to release waiting slot for %s: %v", userID, err)
		}
	}

	mh.updateLabel(state, dispatcher, logger)
	mh.broadcastRoomState(state, dispatcher, logger)
}

// startRound deals a fresh round on the persistent seats. The previous
// round's winner leads; seat 0 leads the first round.
func (mh *matchHandler) startRound(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	starter := state.LastWinner
	if starter < 0 {
		starter = 0
	}

	// Committed snapshots clone their seats, so cumulative scores and
	// connectivity flags live on the latest game, not the original roster.
	if state.Game != nil {
		state.GameSeats = state.Game.Seats
	}

	state.Round++
	game, events, err := state.App.StartRound(state.GameSeats, state.Round, starter, time.Now())
	if err != nil {
		logger.Error("startRound: Failed to deal round %d: %v", state.Round, err)
		mh.cancelRoom(ctx, state, dispatcher, logger, "deal_failed")
		return
	}

	state.Game = game
	state.NextRoundAt = 0
	state.BotWaitUntil = 0
	logger.Info("startRound: Round %d dealt, seat %d leads.", state.Round, game.CurrentSeat)

	for _, ev := range events {
		mh.dispatchEvent(ctx, state, dispatcher, logger, ev)
	}
}

// sweepNextRound deals the following round in points mode after the
// configured pause.
func (mh *matchHandler) sweepNextRound(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	if state.NextRoundAt == 0 || state.Tick < state.NextRoundAt {
		return
	}
	state.NextRoundAt = 0
	mh.startRound(ctx, state, dispatcher, logger)
}

// sweepTurn drives the seat on turn when it will not drive itself: bots act
// after a short pacing delay, and absent or idle humans get a forced move
// once the turn timeout expires.
func (mh *matchHandler) sweepTurn(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	if state.Game == nil || state.Game.State != domain.GameActive {
		return
	}

	seatIndex := state.Game.CurrentSeat
	userID := state.Seats[seatIndex]

	if isBotUserId(userID) {
		mh.playBotTurn(ctx, state, dispatcher, logger, seatIndex, userID)
		return
	}
	state.BotWaitUntil = 0

	if state.Tick-state.TurnStartedTick < int64(config.GetGameConfig().TurnTimeoutSeconds) {
		return
	}

	// Forced move for a timed-out human: draw when the rules require it,
	// otherwise pass with the timeout tag so clients can render it.
	now := time.Now()
	var (
		game   *domain.Game
		events []app.Event
		err    error
	)
	if !state.Game.HasLegalPlacement(seatIndex) && state.Game.CanDraw() {
		game, events, err = state.App.DrawTile(state.Game, seatIndex, now)
	} else {
		game, events, err = state.App.PassTurn(state.Game, seatIndex, domain.PassReasonTurnTimeout, now)
	}
	if err != nil {
		logger.Error("sweepTurn: Forced move for seat %d failed: %v", seatIndex, err)
		return
	}

	logger.Info("sweepTurn: Seat %d (%s) timed out, move forced.", seatIndex, userID)
	state.Game = game
	for _, ev := range events {
		mh.dispatchEvent(ctx, state, dispatcher, logger, ev)
	}
}

// playBotTurn asks the agent on turn for its move after the pacing delay.
func (mh *matchHandler) playBotTurn(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, seatIndex int, userID string) {
	if state.BotWaitUntil == 0 {
		delay := rand.Intn(state.BotMaxDelay-state.BotMinDelay+1) + state.BotMinDelay
		state.BotWaitUntil = state.Tick + int64(delay)
		return
	}
	if state.Tick < state.BotWaitUntil {
		return
	}
	state.BotWaitUntil = 0

	agent, exists := state.Bots[userID]
	if !exists {
		var err error
		agent, err = bot.NewAgent(userID)
		if err != nil {
			logger.Error("playBotTurn: Failed to create fallback agent: %v", err)
			return
		}
		state.Bots[userID] = agent
	}

	move, err := agent.Play(state.Game, seatIndex)
	if err != nil {
		logger.Error("playBotTurn: Bot %s failed to calculate move: %v", userID, err)
		move = bot.Move{Action: bot.ActionPass}
	}

	now := time.Now()
	var (
		game   *domain.Game
		events []app.Event
	)
	switch move.Action {
	case bot.ActionPlace:
		game, events, err = state.App.PlaceTile(state.Game, seatIndex, move.Tile, move.Side, now)
	case bot.ActionDraw:
		game, events, err = state.App.DrawTile(state.Game, seatIndex, now)
	default:
		game, events, err = state.App.PassTurn(state.Game, seatIndex, domain.PassReasonManual, now)
	}
	if err != nil {
		// A rejected bot move means the brain and rules disagree; pass so
		// the round cannot wedge.
		logger.Error("playBotTurn: Bot %s move rejected: %v", userID, err)
		game, events, err = state.App.PassTurn(state.Game, seatIndex, domain.PassReasonManual, now)
		if err != nil {
			logger.Error("playBotTurn: Bot %s fallback pass rejected: %v", userID, err)
			return
		}
	}

	state.Game = game
	for _, ev := range events {
		mh.dispatchEvent(ctx, state, dispatcher, logger, ev)
	}
}

// senderSeat resolves and validates the acting seat for a client message.
func (mh *matchHandler) senderSeat(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) (int, bool) {
	senderID := msg.GetUserId()
	seat := state.seatOf(senderID)
	if seat < 0 {
		logger.Warn("senderSeat: Message from %s who holds no seat.", senderID)
		return -1, false
	}
	if state.Game == nil {
		mh.sendError(state, dispatcher, logger, senderID, 400, "round not started")
		return -1, false
	}
	return seat, true
}

func (mh *matchHandler) handlePlaceTile(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	seat, ok := mh.senderSeat(state, dispatcher, logger, msg)
	if !ok {
		return
	}
	senderID := msg.GetUserId()

	request := PlaceTileRequest{}
	if err := json.Unmarshal(msg.GetData(), &request); err != nil {
		logger.Warn("handlePlaceTile: Invalid payload from %s: %v", senderID, err)
		mh.sendError(state, dispatcher, logger, senderID, 400, "invalid payload")
		return
	}

	game, events, err := state.App.PlaceTile(state.Game, seat, request.Tile, request.Side, time.Now())
	if err != nil {
		logger.Warn("handlePlaceTile: User %s (seat %d) rejected: %v", senderID, seat, err)
		mh.sendError(state, dispatcher, logger, senderID, 400, err.Error())
		return
	}

	state.Game = game
	for _, ev := range events {
		mh.dispatchEvent(ctx, state, dispatcher, logger, ev)
	}
}

func (mh *matchHandler) handleDrawTile(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	seat, ok := mh.senderSeat(state, dispatcher, logger, msg)
	if !ok {
		return
	}
	senderID := msg.GetUserId()

	game, events, err := state.App.DrawTile(state.Game, seat, time.Now())
	if err != nil {
		logger.Warn("handleDrawTile: User %s (seat %d) rejected: %v", senderID, seat, err)
		mh.sendError(state, dispatcher, logger, senderID, 400, err.Error())
		return
	}

	state.Game = game
	for _, ev := range events {
		mh.dispatchEvent(ctx, state, dispatcher, logger, ev)
	}
}

func (mh *matchHandler) handlePassTurn(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	seat, ok := mh.senderSeat(state, dispatcher, logger, msg)
	if !ok {
		return
	}
	senderID := msg.GetUserId()

	game, events, err := state.App.PassTurn(state.Game, seat, domain.PassReasonManual, time.Now())
	if err != nil {
		logger.Warn("handlePassTurn: User %s (seat %d) rejected: %v", senderID, seat, err)
		mh.sendError(state, dispatcher, logger, senderID, 400, err.Error())
		return
	}

	state.Game = game
	for _, ev := range events {
		mh.dispatchEvent(ctx, state, dispatcher, logger, ev)
	}
}

// dispatchEvent converts an app event to a Nakama broadcast and runs the
// lifecycle side effects that hang off terminal events.
func (mh *matchHandler) dispatchEvent(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, ev app.Event) {
	var opCode int64
	switch ev.Kind {
	case app.EventRoundStarted:
		opCode = OpRoundStarted
	case app.EventHandDealt:
		opCode = OpHandDealt
	case app.EventMoveApplied:
		opCode = OpMoveApplied
	case app.EventTileDrawn:
		opCode = OpTileDrawn
	case app.EventTurnChanged:
		opCode = OpTurnChanged
		state.TurnStartedTick = state.Tick
		state.BotWaitUntil = 0
	case app.EventRoundScored:
		opCode = OpRoundScored
		mh.onRoundScored(ctx, state, dispatcher, logger, ev.Payload.(app.RoundScoredPayload))
	case app.EventMatchBlocked:
		opCode = OpMatchBlocked
	case app.EventMatchCompleted:
		opCode = OpMatchCompleted
		mh.onMatchCompleted(ctx, state, dispatcher, logger, ev.Payload.(app.MatchCompletedPayload))
	default:
		logger.Warn("dispatchEvent: Unknown event kind: %v", ev.Kind)
		return
	}

	mh.send(state, dispatcher, logger, opCode, ev.Payload, ev.Recipients)
}

// onRoundScored archives the round and, in points mode, schedules the next
// deal. The versioned record write makes a replayed resolution a no-op.
func (mh *matchHandler) onRoundScored(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, payload app.RoundScoredPayload) {
	result := payload.Result
	state.LastWinner = result.WinnerSeat

	// A round that cannot account for its tiles must not be archived as
	// the authoritative outcome.
	if state.Game != nil {
		if err := state.Game.CheckIntegrity(); err != nil {
			logger.Error("onRoundScored: Refusing to archive round %d: %v", result.Round, err)
			if !result.MatchOver {
				state.NextRoundAt = state.Tick + int64(config.GetGameConfig().RoundIntervalSeconds)
			}
			return
		}
	}

	record := ports.RoundRecord{
		RoundID:    uuid.NewString(),
		MatchID:    matchIDFromContext(ctx),
		Round:      result.Round,
		Seats:      append([]string(nil), state.Seats...),
		WinnerSeat: result.WinnerSeat,
		Reason:     string(result.Reason),
		PipCounts:  result.PipCounts,
		Scores:     result.Scores,
		Pot:        state.Pot,
		EndedAt:    time.Now().UTC(),
	}
	written, err := state.Records.WriteRoundRecord(ctx, record)
	if err != nil {
		logger.Error("onRoundScored: Failed to archive round %d: %v", result.Round, err)
	} else if !written {
		logger.Debug("onRoundScored: Round %d already archived.", result.Round)
	}

	if !result.MatchOver {
		state.NextRoundAt = state.Tick + int64(config.GetGameConfig().RoundIntervalSeconds)
	}
}

// onMatchCompleted settles the pot and marks the room terminal. The winner
// collects the pot minus the configured tax; an automated winner forfeits
// the payout to the house.
func (mh *matchHandler) onMatchCompleted(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, payload app.MatchCompletedPayload) {
	winnerID := ""
	if payload.WinnerSeat >= 0 && payload.WinnerSeat < len(state.Seats) {
		winnerID = state.Seats[payload.WinnerSeat]
	}

	if winnerID != "" && !isBotUserId(winnerID) && state.Pot > 0 {
		tax := int64(float64(state.Pot) * config.GetGameConfig().TaxRate)
		payout := state.Pot - tax
		updates := []ports.WalletUpdate{
			{
				UserID: winnerID,
				Amount: payout,
				Metadata: map[string]interface{}{
					"match_id":      matchIDFromContext(ctx),
					"settlement_id": uuid.NewString(),
					"reason":        "match_settlement",
					"pot":           state.Pot,
					"tax":           tax,
				},
			},
		}
		if err := state.Economy.Payout(ctx, updates); err != nil {
			logger.Error("onMatchCompleted: Failed to pay out pot to %s: %v", winnerID, err)
		} else {
			logger.Info("onMatchCompleted: Seat %d (%s) collected %d (tax %d).", payload.WinnerSeat, winnerID, payout, tax)
		}
	}

	state.Pot = 0
	state.Reserved = make(map[string]int64)
	state.Phase = PhaseCompleted
	state.EndedTick = state.Tick
	state.NextRoundAt = 0
	mh.updateLabel(state, dispatcher, logger)
}

// sendHand re-delivers the seat's current hand privately, used on reconnect.
func (mh *matchHandler) sendHand(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, seatIndex int) {
	seat := state.Game.Seats[seatIndex]
	mh.send(state, dispatcher, logger, OpHandDealt, app.HandDealtPayload{
		Seat: seatIndex,
		Hand: seat.Hand,
	}, []string{seat.UserID})
}

func (mh *matchHandler) broadcastRoomState(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	seats := make([]RoomSeatState, 0, state.SeatCount)
	for i, userID := range state.Seats {
		if userID == "" {
			continue
		}

		displayName := userID
		if p, exists := state.Presences[userID]; exists {
			displayName = p.GetUsername()
		} else if name := bot.GetBotDisplayName(userID); name != "" {
			displayName = name
		}

		rs := RoomSeatState{
			Seat:        i,
			UserID:      userID,
			DisplayName: displayName,
			IsBot:       isBotUserId(userID),
		}
		if _, ok := state.Presences[userID]; ok || rs.IsBot {
			rs.Connected = true
		}
		if state.Game != nil {
			rs.HandCount = len(state.Game.Seats[i].Hand)
			rs.Score = state.Game.Seats[i].Score
			rs.Connected = state.Game.Seats[i].Connected || rs.IsBot
		}
		seats = append(seats, rs)
	}

	mh.send(state, dispatcher, logger, OpRoomState, RoomStatePayload{
		Phase:   state.Phase,
		Tier:    state.TierID,
		Stake:   state.Stake,
		Scoring: string(state.Scoring),
		Pot:     state.Pot,
		Round:   state.Round,
		Seats:   seats,
	}, nil)
}

// send marshals and broadcasts a payload. Non-empty recipients narrow the
// delivery to connected presences; if none of the intended recipients are
// connected the message is dropped rather than leaked to everyone.
func (mh *matchHandler) send(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, opCode int64, payload interface{}, recipientIDs []string) {
	bytes, err := json.Marshal(payload)
	if err != nil {
		logger.Error("send: Failed to marshal payload for opcode %d: %v", opCode, err)
		return
	}

	var recipients []runtime.Presence
	if len(recipientIDs) > 0 {
		for _, uid := range recipientIDs {
			if p, ok := state.Presences[uid]; ok {
				recipients = append(recipients, p)
			}
		}
		if len(recipients) == 0 {
			return
		}
	}

	if err := dispatcher.BroadcastMessage(opCode, bytes, recipients, nil, true); err != nil {
		logger.Error("send: Broadcast failed for opcode %d: %v", opCode, err)
	}
}

// sendError sends a GameErrorPayload to a specific user.
func (mh *matchHandler) sendError(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string, code int, message string) {
	mh.send(state, dispatcher, logger, OpGameError, GameErrorPayload{
		Code:    code,
		Message: message,
	}, []string{userID})
}

func matchIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runtime.RUNTIME_CTX_MATCH_ID).(string); ok {
		return id
	}
	return ""
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, reason int) interface{} {
	logger.Debug("MatchTerminate: Match terminated for reason %d", reason)
	return state
}

func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	return state, ""
}
