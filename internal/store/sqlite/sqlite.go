package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/watchparty-server/internal/store"
)

const dsnOptions = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies pending migrations.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Tests pass Migrate against ":memory:".
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:"
	// pointing at one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

const userColumns = `id, username, password_hash, is_guest, COALESCE(session_id, ''), created_at`

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, is_guest)
		VALUES (?, ?, 0)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// CreateGuestUser creates a temporary guest user with session ID.
func (s *SQLiteStore) CreateGuestUser(ctx context.Context, sessionID string) (*store.User, error) {
	if len(sessionID) < 8 {
		return nil, fmt.Errorf("guest session id too short")
	}
	query := `
		INSERT INTO users (username, password_hash, is_guest, session_id)
		VALUES (?, '', 1, ?)
	`
	guestUsername := "guest_" + sessionID[:8]

	result, err := s.db.ExecContext(ctx, query, guestUsername, sessionID)
	if err != nil {
		return nil, fmt.Errorf("insert guest user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetUserByUsername retrieves a registered (non-guest) user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = ? AND is_guest = 0`, username)
}

// GetUserBySessionID retrieves a guest user by session ID.
func (s *SQLiteStore) GetUserBySessionID(ctx context.Context, sessionID string) (*store.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE session_id = ? AND is_guest = 1`, sessionID)
}

func (s *SQLiteStore) queryUser(ctx context.Context, query string, arg any) (*store.User, error) {
	var user store.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.IsGuest,
		&user.SessionID,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// ==== WatchStore implementation ====

// RecordSharedWatch inserts one pairwise watch row.
func (s *SQLiteStore) RecordSharedWatch(ctx context.Context, w *store.SharedWatch) error {
	a, b := store.Pair(w.UserA, w.UserB)
	if a == b {
		return fmt.Errorf("shared watch needs two distinct users")
	}
	query := `
		INSERT INTO shared_watches (user_a, user_b, room_code, source_url, show, episode, stream_url)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, a, b, w.RoomCode, w.SourceURL, nullString(w.Show), nullString(w.Episode), w.StreamURL)
	if err != nil {
		return fmt.Errorf("insert shared watch: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	w.ID = id
	w.UserA, w.UserB = a, b
	return nil
}

// ListSharedWatches returns the newest watches involving userID.
func (s *SQLiteStore) ListSharedWatches(ctx context.Context, userID int64, limit int) ([]*store.SharedWatch, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_a, user_b, room_code, source_url, COALESCE(show, ''), COALESCE(episode, ''), stream_url, watched_at
		FROM shared_watches
		WHERE user_a = ? OR user_b = ?
		ORDER BY watched_at DESC, id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query shared watches: %w", err)
	}
	defer rows.Close()

	var watches []*store.SharedWatch
	for rows.Next() {
		var w store.SharedWatch
		if err := rows.Scan(&w.ID, &w.UserA, &w.UserB, &w.RoomCode, &w.SourceURL, &w.Show, &w.Episode, &w.StreamURL, &w.WatchedAt); err != nil {
			return nil, fmt.Errorf("scan shared watch: %w", err)
		}
		watches = append(watches, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared watches: %w", err)
	}
	return watches, nil
}

// ==== LibraryStore implementation ====

const libraryColumns = `user_a, user_b, source_url, COALESCE(show, ''), status, created_at, updated_at`

// AddLibraryEntry puts a show on the pair's list as plan_to_watch.
func (s *SQLiteStore) AddLibraryEntry(ctx context.Context, userA, userB int64, sourceURL, show string) (*store.LibraryEntry, error) {
	a, b := store.Pair(userA, userB)
	if a == b {
		return nil, fmt.Errorf("library entry needs two distinct users")
	}
	query := `
		INSERT INTO shared_library (user_a, user_b, source_url, show, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_a, user_b, source_url) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, a, b, sourceURL, nullString(show), store.LibraryPlanToWatch); err != nil {
		return nil, fmt.Errorf("insert library entry: %w", err)
	}
	return s.getLibraryEntry(ctx, a, b, sourceURL)
}

// StartWatching moves the pair's entry for sourceURL to watching.
func (s *SQLiteStore) StartWatching(ctx context.Context, userA, userB int64, sourceURL, show string) (store.LibraryStatus, error) {
	a, b := store.Pair(userA, userB)
	if a == b {
		return "", fmt.Errorf("library entry needs two distinct users")
	}
	query := `
		INSERT INTO shared_library (user_a, user_b, source_url, show, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_a, user_b, source_url)
		DO UPDATE SET status = CASE WHEN shared_library.status = ? THEN excluded.status ELSE shared_library.status END,
		              show = COALESCE(excluded.show, shared_library.show),
		              updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, a, b, sourceURL, nullString(show), store.LibraryWatching, store.LibraryPlanToWatch); err != nil {
		return "", fmt.Errorf("upsert library entry: %w", err)
	}
	entry, err := s.getLibraryEntry(ctx, a, b, sourceURL)
	if err != nil {
		return "", err
	}
	return entry.Status, nil
}

// ListLibrary returns every entry involving userID, newest first.
func (s *SQLiteStore) ListLibrary(ctx context.Context, userID int64) ([]*store.LibraryEntry, error) {
	query := `SELECT ` + libraryColumns + `
		FROM shared_library
		WHERE user_a = ? OR user_b = ?
		ORDER BY updated_at DESC, source_url
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query library: %w", err)
	}
	defer rows.Close()

	var entries []*store.LibraryEntry
	for rows.Next() {
		e, err := scanLibraryEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate library: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) getLibraryEntry(ctx context.Context, a, b int64, sourceURL string) (*store.LibraryEntry, error) {
	query := `SELECT ` + libraryColumns + ` FROM shared_library WHERE user_a = ? AND user_b = ? AND source_url = ?`
	e, err := scanLibraryEntry(s.db.QueryRowContext(ctx, query, a, b, sourceURL))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("library entry: %w", store.ErrNotFound)
	}
	return e, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLibraryEntry(row rowScanner) (*store.LibraryEntry, error) {
	var (
		e      store.LibraryEntry
		status string
	)
	if err := row.Scan(&e.UserA, &e.UserB, &e.SourceURL, &e.Show, &status, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan library entry: %w", err)
	}
	e.Status = store.LibraryStatus(status)
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
