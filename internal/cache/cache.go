// Package cache is the client's local persistence: the auth tokens and user
// of the signed-in session plus the last-known group list. It mirrors the
// original product's local-storage semantics; entries are overwritten
// wholesale on each update and there is no eviction policy.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/models"
)

// ErrNotFound is returned when the cache holds no entry.
var ErrNotFound = errors.New("cache: not found")

// Store is a SQLite-backed local cache.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the cache database at the given path and runs
// migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache database: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS auth (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			user_json TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS groups (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAuth overwrites the cached session credentials.
func (s *Store) SaveAuth(ctx context.Context, user models.User, tokens models.TokenPair) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO auth (id, access_token, refresh_token, user_json, updated_at)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			user_json = excluded.user_json,
			updated_at = excluded.updated_at`,
		tokens.AccessToken, tokens.RefreshToken, string(userJSON), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save auth: %w", err)
	}
	return nil
}

// LoadAuth returns the cached session credentials, or ErrNotFound when no
// session has been saved.
func (s *Store) LoadAuth(ctx context.Context) (models.User, models.TokenPair, error) {
	var (
		user     models.User
		tokens   models.TokenPair
		userJSON string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT access_token, refresh_token, user_json FROM auth WHERE id = 1",
	).Scan(&tokens.AccessToken, &tokens.RefreshToken, &userJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return user, tokens, ErrNotFound
	}
	if err != nil {
		return user, tokens, fmt.Errorf("load auth: %w", err)
	}
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return user, tokens, fmt.Errorf("decode user: %w", err)
	}
	return user, tokens, nil
}

// ClearAuth removes the cached session, e.g. on logout or session expiry.
func (s *Store) ClearAuth(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM auth WHERE id = 1"); err != nil {
		return fmt.Errorf("clear auth: %w", err)
	}
	return nil
}

// SaveGroups replaces the cached group list wholesale.
func (s *Store) SaveGroups(ctx context.Context, groups []models.Group) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM groups"); err != nil {
		return fmt.Errorf("clear groups: %w", err)
	}

	now := time.Now().Unix()
	for _, g := range groups {
		data, err := json.Marshal(g)
		if err != nil {
			return fmt.Errorf("encode group %s: %w", g.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO groups (id, data, updated_at) VALUES (?, ?, ?)",
			g.ID, string(data), now,
		); err != nil {
			return fmt.Errorf("insert group %s: %w", g.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LoadGroups returns the last-known group list, possibly empty.
func (s *Store) LoadGroups(ctx context.Context) ([]models.Group, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM groups ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		var g models.Group
		if err := json.Unmarshal([]byte(data), &g); err != nil {
			return nil, fmt.Errorf("decode group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}
