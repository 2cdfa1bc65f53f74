package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/store"
)

// GetProfile returns the user's profile, or nil if none was saved yet.
func (db *DB) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	var syncOnStartup int
	err := db.conn.QueryRowContext(ctx, `
		SELECT user_id, name, email, sync_on_startup, last_sync_time FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.Name, &p.Email, &syncOnStartup, &p.LastSyncTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("get profile", err)
	}
	p.SyncOnStartup = syncOnStartup != 0
	return &p, nil
}

// SaveProfile upserts the user's profile.
func (db *DB) SaveProfile(ctx context.Context, userID string, p *models.Profile) error {
	p.UserID = userID
	syncOnStartup := 0
	if p.SyncOnStartup {
		syncOnStartup = 1
	}
	err := db.withWriteLock(func() error {
		_, err := db.conn.ExecContext(ctx, `
			INSERT INTO profiles (user_id, name, email, sync_on_startup, last_sync_time)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				name = excluded.name,
				email = excluded.email,
				sync_on_startup = excluded.sync_on_startup,
				last_sync_time = excluded.last_sync_time`,
			userID, p.Name, p.Email, syncOnStartup, p.LastSyncTime)
		return err
	})
	return store.Wrap("save profile", err)
}
