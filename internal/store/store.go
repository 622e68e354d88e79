package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("already exists")
)

// User represents a registered user.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Avatar       *string // display avatar reference, nil when unset
	CreatedAt    time.Time
}

// MessageType tags the kind of content a message carries.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	// MessageTypeCallInvite marks a fallback notification for a call invite.
	MessageTypeCallInvite MessageType = "callInvite"
)

// Message represents a persisted chat message.
type Message struct {
	ID        int64
	ChannelID string
	Sender    string
	Text      *string
	Type      MessageType
	ImagePath *string
	CreatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// UpdateAvatar sets the display avatar reference of a user.
	UpdateAvatar(ctx context.Context, username string, avatar *string) error
}

// AvatarStore resolves sender presentation data.
type AvatarStore interface {
	// LookupAvatar returns the avatar reference for a username.
	// A known user without an avatar and an unknown user both yield (nil, nil).
	LookupAvatar(ctx context.Context, username string) (*string, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// InsertMessage persists a message and returns its ID. msg.ID is set as well.
	InsertMessage(ctx context.Context, msg *Message) (int64, error)

	// QueryRecent returns up to limit messages of a channel, newest first.
	QueryRecent(ctx context.Context, channelID string, limit int) ([]*Message, error)

	// QueryPage returns one 1-based page of a channel's messages, newest first.
	QueryPage(ctx context.Context, channelID string, page, pageSize int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	AvatarStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
