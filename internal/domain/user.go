package domain

import (
	"context"
	"time"
)

// User is a chat-platform user as stored in the registry.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	FirstSeen time.Time
}

// UserRegistry persists users seen by the bot.
type UserRegistry interface {
	// GetUser returns nil, nil when the user is unknown.
	GetUser(ctx context.Context, id int64) (*User, error)
	// CreateUser inserts the user unless a row with the same id exists.
	// It reports whether a row was created.
	CreateUser(ctx context.Context, u User) (bool, error)
	CountUsers(ctx context.Context) (int, error)
	Close() error
}
