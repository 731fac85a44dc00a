package tokens

import "context"

// Store persists the single refresh-token hash each user may hold.
//
// Every method is one all-or-nothing write or read. Transport failures and
// expired contexts are reported as ErrStoreUnavailable.
type Store interface {
	// SaveRefreshHash overwrites whatever hash the user had. ErrNotFound
	// means the user does not exist (backends that can tell).
	SaveRefreshHash(ctx context.Context, identity, hash string) error

	// LoadRefreshHash returns ErrNotFound when the user has no active
	// refresh token.
	LoadRefreshHash(ctx context.Context, identity string) (string, error)

	// SwapRefreshHash replaces expected with next, or fails with
	// ErrHashMismatch (ErrNotFound when the hash is gone entirely).
	SwapRefreshHash(ctx context.Context, identity, expected, next string) error

	// ClearRefreshHash removes the hash. Clearing an absent hash succeeds.
	ClearRefreshHash(ctx context.Context, identity string) error
}
