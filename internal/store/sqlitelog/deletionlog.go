// Package sqlitelog provides a durable, idempotent tombstone log for
// node and edge deletions. HasNodeDeletion answers whether a node has a
// tombstone; the validators and the room reconciler do not query it.
package sqlitelog

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"

	_ "modernc.org/sqlite"
)

// Log is a durable deletion-entry store backed by SQLite.
type Log struct {
	db *sql.DB
}

// Open opens (creating if necessary) the deletion log database at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitelog: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitelog: create schema: %w", err)
	}
	return &Log{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS node_deletion_log (
	room_id    TEXT NOT NULL,
	node_id    TEXT NOT NULL,
	deleted_at INTEGER NOT NULL,
	signer     TEXT NOT NULL,
	signature  TEXT NOT NULL,
	PRIMARY KEY (room_id, node_id)
);

CREATE TABLE IF NOT EXISTS edge_deletion_log (
	room_id    TEXT NOT NULL,
	src        TEXT NOT NULL,
	label      TEXT NOT NULL,
	dest       TEXT NOT NULL,
	deleted_at INTEGER NOT NULL,
	signer     TEXT NOT NULL,
	signature  TEXT NOT NULL,
	PRIMARY KEY (room_id, src, label, dest)
);
`

// RecordNodeDeletion inserts a node tombstone. Idempotent: recording
// the same (room, node) twice overwrites rather than erroring, since a
// reconciliation pass may observe the same remote delete more than
// once.
func (l *Log) RecordNodeDeletion(ctx context.Context, roomID, nodeID, signer, signature []byte, deletedAt int64) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO node_deletion_log (room_id, node_id, deleted_at, signer, signature)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(room_id, node_id) DO UPDATE SET
			deleted_at = excluded.deleted_at,
			signer = excluded.signer,
			signature = excluded.signature
	`, b64(roomID), b64(nodeID), deletedAt, b64(signer), b64(signature))
	if err != nil {
		return fmt.Errorf("sqlitelog: record node deletion: %w", err)
	}
	return nil
}

// RecordEdgeDeletion inserts an edge tombstone, idempotently.
func (l *Log) RecordEdgeDeletion(ctx context.Context, roomID, src []byte, label string, dest, signer, signature []byte, deletedAt int64) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO edge_deletion_log (room_id, src, label, dest, deleted_at, signer, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id, src, label, dest) DO UPDATE SET
			deleted_at = excluded.deleted_at,
			signer = excluded.signer,
			signature = excluded.signature
	`, b64(roomID), b64(src), label, b64(dest), deletedAt, b64(signer), b64(signature))
	if err != nil {
		return fmt.Errorf("sqlitelog: record edge deletion: %w", err)
	}
	return nil
}

// HasNodeDeletion reports whether nodeID has a tombstone in room.
func (l *Log) HasNodeDeletion(ctx context.Context, roomID, nodeID []byte) (bool, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM node_deletion_log WHERE room_id = ? AND node_id = ?)
	`, b64(roomID), b64(nodeID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlitelog: check node deletion: %w", err)
	}
	return exists, nil
}

// Close closes the underlying database handle.
func (l *Log) Close() error { return l.db.Close() }

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }
