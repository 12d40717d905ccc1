// Package identity manages user accounts and the HMAC-challenge identity
// tokens carried inside bid envelopes. A token embeds a challenge derived
// from the account's current credential hash, so rotating the password
// invalidates every outstanding token.
package identity

import "context"

// Account is the stored user record. PasswordHash never leaves this package.
type Account struct {
	ID           string `bson:"_id" json:"-"`
	Username     string `bson:"username" json:"username"`
	PasswordHash string `bson:"password" json:"-"`
	AvatarURL    string `bson:"avatarUrl" json:"avatarUrl"`
}

// User is the resolved identity of a token holder.
type User struct {
	ID        string
	Username  string
	AvatarURL string
}

// Profile is the public projection of an account.
type Profile struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// Accounts is the account repository contract.
type Accounts interface {
	// Insert stores a new account, failing with common.ErrConflict when
	// the username is taken.
	Insert(ctx context.Context, a Account) error
	// Find returns the account for username or common.ErrNotFound.
	Find(ctx context.Context, username string) (Account, error)
	// Update replaces an existing account or fails with common.ErrNotFound.
	Update(ctx context.Context, a Account) error
}
