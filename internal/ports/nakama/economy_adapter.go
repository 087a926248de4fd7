package nakama

import (
	"context"
	"encoding/json"
	"fmt"

	"domino/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

// NakamaEconomyAdapter implements ports.EconomyPort using Nakama's wallet system.
type NakamaEconomyAdapter struct {
	nk runtime.NakamaModule
}

// NewNakamaEconomyAdapter creates a new economy adapter.
func NewNakamaEconomyAdapter(nk runtime.NakamaModule) *NakamaEconomyAdapter {
	return &NakamaEconomyAdapter{
		nk: nk,
	}
}

// Balance retrieves the current gold balance for a user.
func (a *NakamaEconomyAdapter) Balance(ctx context.Context, userID string) (int64, error) {
	account, err := a.nk.AccountGetId(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get account: %w", err)
	}

	var wallet map[string]int64
	if err := json.Unmarshal([]byte(account.Wallet), &wallet); err != nil {
		return 0, fmt.Errorf("failed to unmarshal wallet: %w", err)
	}

	return wallet["gold"], nil
}

// Reserve withholds a stake from the user's wallet. Nakama rejects updates
// that would drive the balance negative, which doubles as the funds check.
func (a *NakamaEconomyAdapter) Reserve(ctx context.Context, userID string, amount int64, metadata map[string]interface{}) error {
	if amount <= 0 {
		return fmt.Errorf("reserve amount must be positive")
	}
	return a.apply(ctx, userID, -amount, metadata)
}

// Refund returns a previously reserved stake.
func (a *NakamaEconomyAdapter) Refund(ctx context.Context, userID string, amount int64, metadata map[string]interface{}) error {
	if amount <= 0 {
		return fmt.Errorf("refund amount must be positive")
	}
	return a.apply(ctx, userID, amount, metadata)
}

// Payout applies multiple wallet credits.
func (a *NakamaEconomyAdapter) Payout(ctx context.Context, updates []ports.WalletUpdate) error {
	for _, update := range updates {
		if update.Amount == 0 {
			continue
		}
		if err := a.apply(ctx, update.UserID, update.Amount, update.Metadata); err != nil {
			return err
		}
	}
	return nil
}

func (a *NakamaEconomyAdapter) apply(ctx context.Context, userID string, amount int64, metadata map[string]interface{}) error {
	changes := map[string]int64{
		"gold": amount,
	}

	_, _, err := a.nk.WalletUpdate(ctx, userID, changes, metadata, true)
	if err != nil {
		return fmt.Errorf("failed to update wallet for user %s: %w", userID, err)
	}
	return nil
}

var _ ports.EconomyPort = (*NakamaEconomyAdapter)(nil)
