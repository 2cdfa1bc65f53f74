package db

import (
	"context"

	"github.com/marcus/lists/internal/store"
)

// maxSyncHistory bounds how many runs are kept per user.
const maxSyncHistory = 200

// SyncRun is one row of the sync_history table.
type SyncRun struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	StartedAt int64  `json:"started_at"` // epoch millis
	Migrated  int    `json:"migrated"`
	Lists     int    `json:"lists"`
	Items     int    `json:"items"`
	Outbound  int    `json:"outbound"`
	Inbound   int    `json:"inbound"`
	Error     string `json:"error,omitempty"`
}

// RecordSyncRun appends a run and prunes the user's oldest rows beyond the cap.
func (db *DB) RecordSyncRun(ctx context.Context, run *SyncRun) error {
	err := db.withWriteLock(func() error {
		res, err := db.conn.ExecContext(ctx, `
			INSERT INTO sync_history (user_id, started_at, migrated, lists, items, outbound, inbound, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.UserID, run.StartedAt, run.Migrated, run.Lists, run.Items, run.Outbound, run.Inbound, run.Error)
		if err != nil {
			return err
		}
		if run.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		_, err = db.conn.ExecContext(ctx, `
			DELETE FROM sync_history WHERE user_id = ? AND id NOT IN (
				SELECT id FROM sync_history WHERE user_id = ? ORDER BY id DESC LIMIT ?
			)`, run.UserID, run.UserID, maxSyncHistory)
		return err
	})
	return store.Wrap("record sync run", err)
}

// GetSyncHistoryTail returns the user's last limit runs, oldest first.
func (db *DB) GetSyncHistoryTail(ctx context.Context, userID string, limit int) ([]SyncRun, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, started_at, migrated, lists, items, outbound, inbound, error
		FROM sync_history
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, store.Wrap("get sync history", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var r SyncRun
		if err := rows.Scan(&r.ID, &r.UserID, &r.StartedAt, &r.Migrated, &r.Lists, &r.Items, &r.Outbound, &r.Inbound, &r.Error); err != nil {
			return nil, store.Wrap("get sync history", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("get sync history", err)
	}

	// Reverse to chronological order
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	return runs, nil
}
