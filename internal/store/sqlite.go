// Package store persists the conversation transcript: every inbound
// message and every emitted response, keyed by channel. It is an audit
// trail, not a runtime dependency; coordinators keep working when writes
// fail.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// TranscriptEntry is one persisted transcript row.
type TranscriptEntry struct {
	ID        int64
	ChannelID string
	Author    string
	Text      string
	Direction string // "in" | "out"
	CreatedAt time.Time
}

// SQLiteStore implements the transcript store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (creating if needed) the transcript database at dbPath.
func New(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcript (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id  TEXT NOT NULL,
		author      TEXT NOT NULL,
		text        TEXT NOT NULL,
		direction   TEXT NOT NULL CHECK (direction IN ('in', 'out')),
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_transcript_channel ON transcript(channel_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordInbound persists a received chat message.
func (s *SQLiteStore) RecordInbound(ctx context.Context, channelID, author, text string) error {
	return s.record(ctx, channelID, author, text, "in")
}

// RecordOutbound persists an emitted response chunk.
func (s *SQLiteStore) RecordOutbound(ctx context.Context, channelID, author, text string) error {
	return s.record(ctx, channelID, author, text, "out")
}

func (s *SQLiteStore) record(ctx context.Context, channelID, author, text, direction string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcript (channel_id, author, text, direction, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		channelID, author, text, direction, time.Now(),
	)
	return err
}

// Recent returns the last limit entries for a channel, oldest first.
func (s *SQLiteStore) Recent(ctx context.Context, channelID string, limit int) ([]TranscriptEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel_id, author, text, direction, created_at
		 FROM transcript WHERE channel_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, channelID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry
		if err := rows.Scan(&e.ID, &e.ChannelID, &e.Author, &e.Text, &e.Direction, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Purge deletes transcript rows older than the cutoff.
func (s *SQLiteStore) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transcript WHERE created_at < ?`, time.Now().Add(-olderThan),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
