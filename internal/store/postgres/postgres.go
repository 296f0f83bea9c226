// Package postgres implements the store contract on a networked PostgreSQL
// database.
package postgres

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"

	_ "github.com/lib/pq"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS cities (
    id         BIGSERIAL PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS points (
    id         BIGSERIAL PRIMARY KEY,
    city_id    BIGINT NOT NULL REFERENCES cities(id) ON DELETE CASCADE,
    name       TEXT NOT NULL,
    UNIQUE (city_id, name)
);

CREATE TABLE IF NOT EXISTS users (
    chat_id    BIGINT PRIMARY KEY,
    username   TEXT,
    full_name  TEXT,
    role       TEXT NOT NULL DEFAULT 'point' CHECK (role IN ('point', 'admin')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS point_users (
    chat_id    BIGINT PRIMARY KEY REFERENCES users(chat_id) ON DELETE CASCADE,
    point_id   BIGINT NOT NULL REFERENCES points(id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS operators (
    id            BIGSERIAL PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'operator' CHECK (role IN ('operator', 'admin')),
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS moves (
    id                BIGSERIAL PRIMARY KEY,
    status            TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'sent', 'done', 'canceled')),
    created_by        BIGINT NOT NULL,
    operator_id       BIGINT NOT NULL,
    from_point_id     BIGINT REFERENCES points(id),
    to_point_id       BIGINT REFERENCES points(id),
    photo_file_id     TEXT,
    note              TEXT NOT NULL DEFAULT '',
    invoice_version   INT NOT NULL DEFAULT 1,
    handed_at         TIMESTAMPTZ,
    handed_by         BIGINT,
    received_at       TIMESTAMPTZ,
    received_by       BIGINT,
    correction_status TEXT NOT NULL DEFAULT 'none' CHECK (correction_status IN ('none', 'requested', 'resolved')),
    correction_note   TEXT NOT NULL DEFAULT '',
    correction_photo  TEXT NOT NULL DEFAULT '',
    correction_by     BIGINT,
    correction_at     TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS move_photos (
    move_id   BIGINT NOT NULL REFERENCES moves(id) ON DELETE CASCADE,
    version   INT NOT NULL,
    position  INT NOT NULL,
    photo_ref TEXT NOT NULL,
    PRIMARY KEY (move_id, version, position)
);

CREATE INDEX IF NOT EXISTS idx_points_city_id ON points(city_id);
CREATE INDEX IF NOT EXISTS idx_point_users_point_id ON point_users(point_id);
CREATE INDEX IF NOT EXISTS idx_moves_status ON moves(status);
CREATE INDEX IF NOT EXISTS idx_moves_from_point ON moves(from_point_id);
CREATE INDEX IF NOT EXISTS idx_moves_to_point ON moves(to_point_id);
`

// Store implements the store contract on PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the database at url, verifies the connection, and
// ensures the schema exists.
func Open(url string) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// JWTSecret retrieves the API signing secret from the database. If no secret
// exists, it generates one, stores it, and returns it. Uses ON CONFLICT DO
// NOTHING plus a re-SELECT to avoid a TOCTOU race on concurrent startup.
func (s *Store) JWTSecret(ctx context.Context) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	candidate := hex.EncodeToString(buf)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES ('jwt_secret', $1) ON CONFLICT (key) DO NOTHING`,
		candidate,
	)
	if err != nil {
		return "", fmt.Errorf("storing jwt_secret: %w", err)
	}

	var secret string
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = 'jwt_secret'`,
	).Scan(&secret)
	if err != nil {
		return "", fmt.Errorf("querying jwt_secret: %w", err)
	}

	return secret, nil
}
