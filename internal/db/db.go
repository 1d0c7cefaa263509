// Package db persists decoded sessions and their event logs to sqlite so
// captures can be compared across runs without re-decoding the pcap.
package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/dronetrace/internal/infer"
	"github.com/banshee-data/dronetrace/internal/rc"
	"github.com/banshee-data/dronetrace/internal/session"
)

type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the session store at path and brings
// the schema up to date.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db %s: %w", path, err)
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// RecordSession stores a summary and its full event log under a fresh
// session ID, which is returned. The write is transactional; a failed
// insert leaves no partial session behind.
func (db *DB) RecordSession(source string, cfg rc.Config, sum *session.Summary) (string, error) {
	sessionID := uuid.New().String()

	tx, err := db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sessions (
			session_id, source, target_port, deadband, debounce_secs,
			total_packets, control_frames, boot_frames, invalid_frames,
			decode_errors, checksum_errors, first_ts, last_ts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, source, cfg.TargetPort, cfg.Deadband, cfg.DebounceSeconds,
		sum.TotalPackets, sum.ControlFrames, sum.BootFrames, sum.InvalidFrames,
		sum.DecodeErrors, sum.ChecksumErrors, sum.FirstTimestamp, sum.LastTimestamp,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO events (
			session_id, seq, kind, label, start_ts, end_ts, duration_secs, truncated_at_eof
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for seq, e := range sum.Events {
		_, err = stmt.Exec(sessionID, seq, string(e.Kind), e.Label, e.Start, e.End, e.Duration(), e.TruncatedAtEOF)
		if err != nil {
			return "", fmt.Errorf("failed to insert event %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit session: %w", err)
	}
	return sessionID, nil
}

// SessionEvents reads back the ordered event log for a session.
func (db *DB) SessionEvents(sessionID string) ([]infer.Event, error) {
	rows, err := db.Query(`
		SELECT kind, label, start_ts, end_ts, truncated_at_eof
		FROM events WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []infer.Event
	for rows.Next() {
		var e infer.Event
		var kind string
		if err := rows.Scan(&kind, &e.Label, &e.Start, &e.End, &e.TruncatedAtEOF); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Kind = infer.EventKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

// SessionCount reports how many sessions the store holds.
func (db *DB) SessionCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}
