// Package sqlitestore implements directory.Store on SQLite through
// modernc.org/sqlite. Links live in their own table whose primary key is the
// (provider, subject) pair, so the index is the table itself.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/directory"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY,
	guest_secret_hash TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS identities (
	provider TEXT NOT NULL,
	subject TEXT NOT NULL,
	user_id TEXT NOT NULL REFERENCES users(user_id),
	PRIMARY KEY (provider, subject),
	UNIQUE (user_id, provider)
);
`

// Store is a SQLite-backed directory.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema. Use
// ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlitestore: path is required")
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single writer connection serialises conditional writes and keeps
	// in-memory databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetUser implements directory.Store.
func (s *Store) GetUser(ctx context.Context, userID string) (*directory.User, error) {
	var (
		u         = &directory.User{UserID: userID, Links: make(map[string]string)}
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT guest_secret_hash, created_at FROM users WHERE user_id = ?`, userID,
	).Scan(&u.GuestSecretHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()

	rows, err := s.db.QueryContext(ctx, `SELECT provider, subject FROM identities WHERE user_id = ?`, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()
	for rows.Next() {
		var provider, subject string
		if err := rows.Scan(&provider, &subject); err != nil {
			return nil, unavailable(err)
		}
		u.Links[provider] = subject
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return u, nil
}

// InsertUserIfAbsent implements directory.Store.
func (s *Store) InsertUserIfAbsent(ctx context.Context, user *directory.User) error {
	if user == nil || user.UserID == "" {
		return errors.New("sqlitestore: user id required")
	}
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (user_id, guest_secret_hash, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
			user.UserID, user.GuestSecretHash, createdAt.Unix(),
		)
		if err != nil {
			return unavailable(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return directory.ErrUserExists
		}

		for _, l := range user.LinkList() {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO identities (provider, subject, user_id) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
				l.Provider, l.Subject, user.UserID,
			)
			if err != nil {
				return unavailable(err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return directory.ErrIdentityTaken
			}
		}
		return nil
	})
}

// UpdateUserIfExists implements directory.Store.
func (s *Store) UpdateUserIfExists(ctx context.Context, userID string, link directory.Link) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.link(ctx, tx, link, userID)
	})
}

// InsertIdentityIfAbsent implements directory.Store.
func (s *Store) InsertIdentityIfAbsent(ctx context.Context, link directory.Link, userID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.link(ctx, tx, link, userID)
	})
}

func (s *Store) link(ctx context.Context, tx *sql.Tx, link directory.Link, userID string) error {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE user_id = ?`, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.ErrNotFound
	}
	if err != nil {
		return unavailable(err)
	}

	var owner string
	err = tx.QueryRowContext(ctx,
		`SELECT user_id FROM identities WHERE provider = ? AND subject = ?`, link.Provider, link.Subject,
	).Scan(&owner)
	switch {
	case err == nil && owner == userID:
		return nil
	case err == nil:
		return directory.ErrIdentityTaken
	case !errors.Is(err, sql.ErrNoRows):
		return unavailable(err)
	}

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT subject FROM identities WHERE user_id = ? AND provider = ?`, userID, link.Provider,
	).Scan(&current)
	if err == nil {
		return directory.ErrLinkConflict
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return unavailable(err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO identities (provider, subject, user_id) VALUES (?, ?, ?)`,
		link.Provider, link.Subject, userID,
	); err != nil {
		return unavailable(err)
	}
	return nil
}

// LookupIdentity implements directory.Store.
func (s *Store) LookupIdentity(ctx context.Context, link directory.Link) (string, error) {
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM identities WHERE provider = ? AND subject = ?`, link.Provider, link.Subject,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", directory.ErrNotFound
	}
	if err != nil {
		return "", unavailable(err)
	}
	return owner, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
}
