package domain

import "time"

type UserID string

type User struct {
	ID           UserID
	Email        string
	DisplayName  string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

// DefaultRoles is assigned to every new account.
var DefaultRoles = []string{"user"}

func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
