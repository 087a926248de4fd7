package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"domino/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	roundRecordCollection = "round_records"
	matchmakingCollection = "matchmaking"
	waitingRoomKey        = "waiting_room"
)

// NakamaRecordAdapter persists round records and waiting-room claims in
// Nakama storage. Both use create-only writes (Version "*") so concurrent
// or repeated writers lose deterministically instead of clobbering.
type NakamaRecordAdapter struct {
	nk runtime.NakamaModule
}

// NewNakamaRecordAdapter creates a new record adapter.
func NewNakamaRecordAdapter(nk runtime.NakamaModule) *NakamaRecordAdapter {
	return &NakamaRecordAdapter{nk: nk}
}

// WriteRoundRecord archives a resolved round under a key derived from match
// and round number. A sweep that already archived this round is rejected by
// the version guard and reports written=false.
func (a *NakamaRecordAdapter) WriteRoundRecord(ctx context.Context, record ports.RoundRecord) (bool, error) {
	value, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("failed to marshal round record: %w", err)
	}

	writes := []*runtime.StorageWrite{
		{
			Collection:      roundRecordCollection,
			Key:             fmt.Sprintf("%s.%d", record.MatchID, record.Round),
			Value:           string(value),
			Version:         "*",
			PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
			PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
		},
	}

	if _, err := a.nk.StorageWrite(ctx, writes); err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return false, nil
		}
		return false, fmt.Errorf("failed to write round record: %w", err)
	}
	return true, nil
}

type waitingClaim struct {
	MatchID string `json:"match_id"`
}

// ClaimWaitingSlot records the user's waiting room. The create-only write is
// the guard against the same user racing two join requests.
func (a *NakamaRecordAdapter) ClaimWaitingSlot(ctx context.Context, userID, matchID string) (bool, error) {
	value, err := json.Marshal(waitingClaim{MatchID: matchID})
	if err != nil {
		return false, fmt.Errorf("failed to marshal waiting claim: %w", err)
	}

	writes := []*runtime.StorageWrite{
		{
			Collection:      matchmakingCollection,
			Key:             waitingRoomKey,
			UserID:          userID,
			Value:           string(value),
			Version:         "*",
			PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
			PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
		},
	}

	if _, err := a.nk.StorageWrite(ctx, writes); err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim waiting slot: %w", err)
	}
	return true, nil
}

// CurrentWaitingRoom returns the match ID of the user's live claim, or ""
// when no claim exists.
func (a *NakamaRecordAdapter) CurrentWaitingRoom(ctx context.Context, userID string) (string, error) {
	reads := []*runtime.StorageRead{
		{
			Collection: matchmakingCollection,
			Key:        waitingRoomKey,
			UserID:     userID,
		},
	}

	objects, err := a.nk.StorageRead(ctx, reads)
	if err != nil {
		return "", fmt.Errorf("failed to read waiting claim: %w", err)
	}
	if len(objects) == 0 {
		return "", nil
	}

	var claim waitingClaim
	if err := json.Unmarshal([]byte(objects[0].Value), &claim); err != nil {
		return "", fmt.Errorf("failed to unmarshal waiting claim: %w", err)
	}
	return claim.MatchID, nil
}

// ReleaseWaitingSlot clears the user's claim. Deleting an absent claim is
// not an error.
func (a *NakamaRecordAdapter) ReleaseWaitingSlot(ctx context.Context, userID string) error {
	deletes := []*runtime.StorageDelete{
		{
			Collection: matchmakingCollection,
			Key:        waitingRoomKey,
			UserID:     userID,
		},
	}

	if err := a.nk.StorageDelete(ctx, deletes); err != nil {
		return fmt.Errorf("failed to release waiting slot: %w", err)
	}
	return nil
}

var (
	_ ports.MatchRecordPort = (*NakamaRecordAdapter)(nil)
	_ ports.MatchmakingPort = (*NakamaRecordAdapter)(nil)
)
