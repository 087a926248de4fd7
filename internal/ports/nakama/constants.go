package nakama

const (
	// RpcFindRoom is the Nakama RPC id clients call to join or create a room.
	RpcFindRoom = "find_room"

	// MatchNameDomino is the authoritative match handler name registered with Nakama.
	MatchNameDomino = "domino_match"
)

// Op codes for client messages and server events.
const (
	// Client -> Server
	OpPlaceTile int64 = 1
	OpDrawTile  int64 = 2
	OpPassTurn  int64 = 3

	// Server -> Client events
	OpRoomState      int64 = 101
	OpRoundStarted   int64 = 102
	OpHandDealt      int64 = 103 // send privately
	OpMoveApplied    int64 = 104
	OpTileDrawn      int64 = 105 // send privately
	OpTurnChanged    int64 = 106
	OpRoundScored    int64 = 107
	OpMatchBlocked   int64 = 108
	OpMatchCompleted int64 = 109
	OpRoomCancelled  int64 = 110
	OpGameError      int64 = 111
)

// Room phases carried in the match label and the room state snapshot.
const (
	PhaseWaiting    = "waiting"
	PhaseInProgress = "in_progress"
	PhaseCompleted  = "completed"
	PhaseCancelled  = "cancelled"
)
