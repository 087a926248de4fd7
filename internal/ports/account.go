package ports

import "context"

// AccountPort updates account profiles. The engine treats identity as an
// opaque string plus a human/automated tag; profile writes only happen
// during onboarding.
type AccountPort interface {
	// UpdateProfile applies username/displayName to the given account.
	UpdateProfile(ctx context.Context, userID, username, displayName string) error
}
