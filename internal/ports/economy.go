package ports

import "context"

// WalletUpdate represents a single currency change for a user.
type WalletUpdate struct {
	UserID   string
	Amount   int64
	Metadata map[string]interface{}
}

// EconomyPort is the stake ledger contract. The engine calls it at the
// lifecycle points defined by the room manager (join, cancellation,
// completion) and owns none of the balance data behind it.
type EconomyPort interface {
	// Balance retrieves the current gold balance for a user.
	Balance(ctx context.Context, userID string) (int64, error)

	// Reserve withholds a stake from the user when a seat is taken.
	// A failed reserve must leave the seat assignment rolled back.
	Reserve(ctx context.Context, userID string, amount int64, metadata map[string]interface{}) error

	// Refund returns a previously reserved stake on leave/cancellation.
	Refund(ctx context.Context, userID string, amount int64, metadata map[string]interface{}) error

	// Payout credits match winnings.
	Payout(ctx context.Context, updates []WalletUpdate) error
}
