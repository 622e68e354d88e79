package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"

	"github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wirecall-server/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file, or ":memory:".
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash)
		VALUES (?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, username, passwordHash); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByUsername(ctx, username)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, avatar, created_at
		FROM users
		WHERE username = ?
	`
	var user store.User
	var avatar sql.NullString
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&avatar,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.Avatar = nullableString(avatar)

	return &user, nil
}

// UpdateAvatar sets the display avatar reference of a user.
func (s *SQLiteStore) UpdateAvatar(ctx context.Context, username string, avatar *string) error {
	query := `UPDATE users SET avatar = ? WHERE username = ?`
	result, err := s.db.ExecContext(ctx, query, avatar, username)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %q: %w", username, store.ErrNotFound)
	}
	return nil
}

// ==== AvatarStore implementation ====

// LookupAvatar returns the avatar reference for a username.
func (s *SQLiteStore) LookupAvatar(ctx context.Context, username string) (*string, error) {
	var avatar sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT avatar FROM users WHERE username = ?`, username).Scan(&avatar)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query avatar: %w", err)
	}
	return nullableString(avatar), nil
}

// ==== MessageStore implementation ====

// InsertMessage persists a message to storage.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *store.Message) (int64, error) {
	query := `
		INSERT INTO messages (channel_id, sender, text, type, image_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.ChannelID, msg.Sender, msg.Text, string(msg.Type), msg.ImagePath, msg.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	return id, nil
}

// QueryRecent returns up to limit messages of a channel, newest first.
func (s *SQLiteStore) QueryRecent(ctx context.Context, channelID string, limit int) ([]*store.Message, error) {
	return s.queryMessages(ctx, channelID, limit, 0)
}

// QueryPage returns one 1-based page of a channel's messages, newest first.
func (s *SQLiteStore) QueryPage(ctx context.Context, channelID string, page, pageSize int) ([]*store.Message, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		return []*store.Message{}, nil
	}
	if page-1 > math.MaxInt32/pageSize {
		return []*store.Message{}, nil
	}
	return s.queryMessages(ctx, channelID, pageSize, (page-1)*pageSize)
}

func (s *SQLiteStore) queryMessages(ctx context.Context, channelID string, limit, offset int) ([]*store.Message, error) {
	if limit <= 0 {
		return []*store.Message{}, nil
	}

	query := `
		SELECT id, channel_id, sender, text, type, image_path, created_at
		FROM messages
		WHERE channel_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, channelID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0, limit)
	for rows.Next() {
		var msg store.Message
		var text, imagePath sql.NullString
		var msgType string
		if err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.Sender, &text, &msgType, &imagePath, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Text = nullableString(text)
		msg.ImagePath = nullableString(imagePath)
		msg.Type = store.MessageType(msgType)
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
