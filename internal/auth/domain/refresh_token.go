package domain

import "time"

// RefreshToken is a ledger entry. Only the keyed hash of the raw token is
// ever persisted; RawToken is populated solely on the issue path so the
// handler can set the cookie.
type RefreshToken struct {
	ID        string
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
	RawToken  string
}
