/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store errors surfaced to the handler layer.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// StoredUser is a row in the users table.
type StoredUser struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    string
}

// StoredConfig is a row in the webrtc_configurations table.
type StoredConfig struct {
	ID               string
	UserID           string
	WebsocketURI     string
	SIPUsername      string
	SIPPassword      string
	UDPServerAddress string
	DisplayName      string
	Realm            string
	HA1Password      string
	STUNServers      string
	TURNServers      string
}

// StoredCallStats is a row in the call_statistics table. StatsBlob is
// kept as raw JSON text.
type StoredCallStats struct {
	ID              string
	CallID          string
	UserID          string
	StartTime       string
	EndTime         string
	DurationSeconds int
	StatsBlob       json.RawMessage
	CreatedAt       string
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS webrtc_configurations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL UNIQUE REFERENCES users(id),
	websocket_uri TEXT NOT NULL,
	sip_username TEXT NOT NULL,
	sip_password TEXT NOT NULL,
	udp_server_address TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	realm TEXT NOT NULL DEFAULT '',
	ha1_password TEXT NOT NULL DEFAULT '',
	stun_servers TEXT NOT NULL DEFAULT '',
	turn_servers TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS call_statistics (
	id TEXT PRIMARY KEY,
	call_id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL REFERENCES users(id),
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	duration_seconds INTEGER NOT NULL,
	stats_blob TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// Store persists users, signaling configurations, and call statistics in
// SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the SQLite database at path and
// applies the schema. Use ":memory:" for an in-memory database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The driver serializes access through a single connection; SQLite
	// handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// isUniqueViolation detects SQLite unique-constraint failures. The
// modernc driver reports them through the error string.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ---- Users ----

// CreateUser inserts a new user. Returns ErrDuplicate when the username
// is taken.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*StoredUser, error) {
	user := &StoredUser{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// UserByUsername looks up a user for login. Returns ErrNotFound when the
// username is unknown.
func (s *Store) UserByUsername(ctx context.Context, username string) (*StoredUser, error) {
	var user StoredUser
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`,
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// ---- WebRTC configurations ----

// SaveConfig creates or replaces the user's signaling configuration. Each
// user holds at most one.
func (s *Store) SaveConfig(ctx context.Context, cfg *StoredConfig) (*StoredConfig, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webrtc_configurations
			(id, user_id, websocket_uri, sip_username, sip_password,
			 udp_server_address, display_name, realm, ha1_password,
			 stun_servers, turn_servers)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			websocket_uri = excluded.websocket_uri,
			sip_username = excluded.sip_username,
			sip_password = excluded.sip_password,
			udp_server_address = excluded.udp_server_address,
			display_name = excluded.display_name,
			realm = excluded.realm,
			ha1_password = excluded.ha1_password,
			stun_servers = excluded.stun_servers,
			turn_servers = excluded.turn_servers`,
		cfg.ID, cfg.UserID, cfg.WebsocketURI, cfg.SIPUsername, cfg.SIPPassword,
		cfg.UDPServerAddress, cfg.DisplayName, cfg.Realm, cfg.HA1Password,
		cfg.STUNServers, cfg.TURNServers)
	if err != nil {
		return nil, fmt.Errorf("save config: %w", err)
	}
	return s.ConfigByUserID(ctx, cfg.UserID)
}

// ConfigByUserID fetches the user's signaling configuration. Returns
// ErrNotFound when none has been saved.
func (s *Store) ConfigByUserID(ctx context.Context, userID string) (*StoredConfig, error) {
	var cfg StoredConfig
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, websocket_uri, sip_username, sip_password,
		       udp_server_address, display_name, realm, ha1_password,
		       stun_servers, turn_servers
		FROM webrtc_configurations WHERE user_id = ?`,
		userID).Scan(&cfg.ID, &cfg.UserID, &cfg.WebsocketURI, &cfg.SIPUsername,
		&cfg.SIPPassword, &cfg.UDPServerAddress, &cfg.DisplayName, &cfg.Realm,
		&cfg.HA1Password, &cfg.STUNServers, &cfg.TURNServers)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query config: %w", err)
	}
	return &cfg, nil
}

// ---- Call statistics ----

// InsertCallStats stores one call's statistics. The call_id column is
// unique, so a duplicate submission for the same call returns
// ErrDuplicate.
func (s *Store) InsertCallStats(ctx context.Context, rec *StoredCallStats) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	blob := rec.StatsBlob
	if len(blob) == 0 {
		blob = json.RawMessage("{}")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO call_statistics
			(id, call_id, user_id, start_time, end_time, duration_seconds, stats_blob, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CallID, rec.UserID, rec.StartTime, rec.EndTime,
		rec.DurationSeconds, string(blob), rec.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert call stats: %w", err)
	}
	return nil
}

// CallStatsByUserID lists the user's stored call statistics, newest first.
func (s *Store) CallStatsByUserID(ctx context.Context, userID string) ([]*StoredCallStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, call_id, user_id, start_time, end_time, duration_seconds, stats_blob, created_at
		FROM call_statistics WHERE user_id = ? ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query call stats: %w", err)
	}
	defer rows.Close()

	var out []*StoredCallStats
	for rows.Next() {
		var rec StoredCallStats
		var blob string
		if err := rows.Scan(&rec.ID, &rec.CallID, &rec.UserID, &rec.StartTime,
			&rec.EndTime, &rec.DurationSeconds, &blob, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call stats: %w", err)
		}
		rec.StatsBlob = json.RawMessage(blob)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
