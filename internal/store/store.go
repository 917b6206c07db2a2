package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// User represents an account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsGuest      bool
	SessionID    string // For guest user session tracking
	CreatedAt    time.Time
}

// LibraryStatus is the progress of a pair through a show.
type LibraryStatus string

const (
	LibraryPlanToWatch LibraryStatus = "plan_to_watch"
	LibraryWatching    LibraryStatus = "watching"
	LibraryCompleted   LibraryStatus = "completed"
)

// Valid reports whether s is a known status.
func (s LibraryStatus) Valid() bool {
	switch s {
	case LibraryPlanToWatch, LibraryWatching, LibraryCompleted:
		return true
	}
	return false
}

// SharedWatch is one episode two accounts started together.
type SharedWatch struct {
	ID        int64
	UserA     int64
	UserB     int64
	RoomCode  string
	SourceURL string
	Show      string // raw JSON as sent by the host
	Episode   string // raw JSON as sent by the host
	StreamURL string
	WatchedAt time.Time
}

// LibraryEntry is a show on a pair's shared list.
type LibraryEntry struct {
	UserA     int64
	UserB     int64
	SourceURL string
	Show      string
	Status    LibraryStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Pair orders two user ids so each pair has one canonical key.
func Pair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// CreateGuestUser creates a temporary guest user with session ID.
	CreateGuestUser(ctx context.Context, sessionID string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetUserBySessionID retrieves a guest user by session ID.
	GetUserBySessionID(ctx context.Context, sessionID string) (*User, error)
}

// WatchStore records episodes watched together.
type WatchStore interface {
	// RecordSharedWatch inserts one pairwise watch row. UserA/UserB are
	// normalized with Pair.
	RecordSharedWatch(ctx context.Context, w *SharedWatch) error

	// ListSharedWatches returns the newest watches involving userID.
	ListSharedWatches(ctx context.Context, userID int64, limit int) ([]*SharedWatch, error)
}

// LibraryStore handles the per-pair shared library.
type LibraryStore interface {
	// AddLibraryEntry puts a show on the pair's list as plan_to_watch.
	// An existing entry is returned unchanged.
	AddLibraryEntry(ctx context.Context, userA, userB int64, sourceURL, show string) (*LibraryEntry, error)

	// StartWatching moves plan_to_watch to watching, inserts watching when
	// absent and leaves other statuses alone. It returns the resulting status.
	StartWatching(ctx context.Context, userA, userB int64, sourceURL, show string) (LibraryStatus, error)

	// ListLibrary returns every entry involving userID, newest first.
	ListLibrary(ctx context.Context, userID int64) ([]*LibraryEntry, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	WatchStore
	LibraryStore

	// Close closes the underlying database connection.
	Close() error
}
